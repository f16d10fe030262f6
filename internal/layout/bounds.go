// Package layout computes node footprints and resolves overlaps on the
// canvas. Every function is pure: nodes are read, never mutated, and the
// same input always yields the same output.
package layout

import (
	"math"

	"github.com/bert-systems/canvasgraph/pkg/schema"
)

const (
	// GridSize is the snap grid cell size in canvas units.
	GridSize = 20.0

	// DefaultPadding is the minimum visual gap enforced between any two
	// nodes' footprints.
	DefaultPadding = 20.0

	// ColumnTolerance is the x-distance under which two nodes are treated
	// as the same column and ordered by y instead.
	ColumnTolerance = 50.0

	// MaxSearchRadius bounds the spiral search in FindFreePosition.
	MaxSearchRadius = 600.0

	// DefaultWidth and DefaultHeight are the last-resort footprint for
	// nodes with no measured size, explicit size, or display mode.
	DefaultWidth  = 320.0
	DefaultHeight = 240.0
)

// footprint is the default size implied by a display mode. Heights are a
// range; the midpoint is used as the estimate before first render.
type footprint struct {
	width     float64
	minHeight float64
	maxHeight float64
}

var modeFootprints = map[schema.DisplayMode]footprint{
	schema.DisplayModeCompact:  {width: 240, minHeight: 100, maxHeight: 180},
	schema.DisplayModeStandard: {width: 320, minHeight: 180, maxHeight: 320},
	schema.DisplayModeExpanded: {width: 420, minHeight: 280, maxHeight: 520},
}

// Bounds is an axis-aligned bounding box.
type Bounds struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// Right returns the right edge of the box.
func (b Bounds) Right() float64 { return b.X + b.Width }

// Bottom returns the bottom edge of the box.
func (b Bounds) Bottom() float64 { return b.Y + b.Height }

// BoundsOf computes the bounding box of a node, inflated symmetrically by
// padding. Size resolution order: measured (rendered) size, explicit user
// size, display-mode footprint, global default. This lets layout proceed
// before a node has ever been rendered.
func BoundsOf(n *schema.Node, padding float64) Bounds {
	w, h := sizeOf(n)
	return Bounds{
		X:      n.Position.X - padding,
		Y:      n.Position.Y - padding,
		Width:  w + 2*padding,
		Height: h + 2*padding,
	}
}

func sizeOf(n *schema.Node) (w, h float64) {
	if n.Measured != nil && n.Measured.Width > 0 && n.Measured.Height > 0 {
		return n.Measured.Width, n.Measured.Height
	}
	if n.Size != nil && n.Size.Width > 0 && n.Size.Height > 0 {
		return n.Size.Width, n.Size.Height
	}
	if fp, ok := modeFootprints[n.DisplayMode]; ok {
		return fp.width, (fp.minHeight + fp.maxHeight) / 2
	}
	return DefaultWidth, DefaultHeight
}

// Snap rounds a coordinate to the nearest grid multiple.
func Snap(v float64) float64 {
	return math.Round(v/GridSize) * GridSize
}

// SnapPosition snaps both coordinates of a position.
func SnapPosition(p schema.Position) schema.Position {
	return schema.Position{X: Snap(p.X), Y: Snap(p.Y)}
}

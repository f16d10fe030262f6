package layout

import (
	"cmp"
	"math"
	"slices"
	"strings"

	"github.com/bert-systems/canvasgraph/pkg/schema"
)

// BatchResult is the outcome of a whole-canvas layout pass.
type BatchResult struct {
	Nodes         []*schema.Node
	AdjustedCount int
}

// ResolveAll re-places every node that collides with a previously placed
// one, so the returned set satisfies the no-overlap invariant.
//
// Nodes are processed in reading order: sorted by x, except that nodes
// within ColumnTolerance on x are ordered by y (then x, then ID, so ties
// are fully deterministic). The first node is placed as-is; each subsequent
// node is tested against the accumulated placed list and moved via
// FindFreePosition only when it collides. The returned slice preserves the
// input order; the input nodes are not mutated.
func ResolveAll(nodes []*schema.Node, padding float64) BatchResult {
	clones := make([]*schema.Node, len(nodes))
	index := make(map[string]int, len(nodes))
	for i, n := range nodes {
		clones[i] = n.Clone()
		index[n.ID] = i
	}

	ordered := append([]*schema.Node(nil), clones...)
	slices.SortStableFunc(ordered, func(a, b *schema.Node) int {
		if math.Abs(a.Position.X-b.Position.X) < ColumnTolerance {
			if c := cmp.Compare(a.Position.Y, b.Position.Y); c != 0 {
				return c
			}
			if c := cmp.Compare(a.Position.X, b.Position.X); c != 0 {
				return c
			}
			return strings.Compare(a.ID, b.ID)
		}
		return cmp.Compare(a.Position.X, b.Position.X)
	})

	placed := make([]*schema.Node, 0, len(ordered))
	adjusted := 0
	for _, n := range ordered {
		if FindCollisions(placed, n, padding).HasCollision {
			n.Position = FindFreePosition(placed, n, n.Position, padding).Position
			adjusted++
		}
		placed = append(placed, n)
	}

	out := make([]*schema.Node, len(clones))
	for _, n := range placed {
		out[index[n.ID]] = n
	}
	return BatchResult{Nodes: out, AdjustedCount: adjusted}
}

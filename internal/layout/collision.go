package layout

import "github.com/bert-systems/canvasgraph/pkg/schema"

// Collides reports whether two nodes' footprints are closer than padding on
// both axes. The gap convention is single-sided: raw bounds are compared
// with padding added once in the separating-axis test, so two nodes are
// clear of each other when at least `padding` units separate their edges.
// A node never collides with itself.
func Collides(a, b *schema.Node, padding float64) bool {
	if a.ID == b.ID {
		return false
	}
	ba := BoundsOf(a, 0)
	bb := BoundsOf(b, 0)
	separated := ba.Right()+padding <= bb.X ||
		bb.Right()+padding <= ba.X ||
		ba.Bottom()+padding <= bb.Y ||
		bb.Bottom()+padding <= ba.Y
	return !separated
}

// CollisionReport lists the nodes a target overlaps.
type CollisionReport struct {
	HasCollision bool
	CollidingIDs []string
}

// FindCollisions scans nodes linearly and returns every ID (excluding the
// target's own) whose footprint collides with the target.
func FindCollisions(nodes []*schema.Node, target *schema.Node, padding float64) CollisionReport {
	var report CollisionReport
	for _, n := range nodes {
		if Collides(target, n, padding) {
			report.CollidingIDs = append(report.CollidingIDs, n.ID)
		}
	}
	report.HasCollision = len(report.CollidingIDs) > 0
	return report
}

// HasAnyCollisions reports whether any pair of nodes collides.
func HasAnyCollisions(nodes []*schema.Node, padding float64) bool {
	for i := 0; i < len(nodes); i++ {
		for j := i + 1; j < len(nodes); j++ {
			if Collides(nodes[i], nodes[j], padding) {
				return true
			}
		}
	}
	return false
}

package layout

import "github.com/bert-systems/canvasgraph/pkg/schema"

// Placement is the outcome of a single-node placement request.
type Placement struct {
	Position schema.Position
	Adjusted bool
}

// spiralOffsets are the eight candidate directions tested at each radius,
// in fixed order for determinism: cardinals first, then diagonals.
var spiralOffsets = [8][2]float64{
	{1, 0}, {-1, 0}, {0, 1}, {0, -1},
	{1, 1}, {-1, -1}, {1, -1}, {-1, 1},
}

// FindFreePosition returns the nearest collision-free, grid-snapped position
// for target at or around desired, tested against the reference nodes.
//
// The desired position is tried first; when already free it is returned
// snapped with Adjusted=false. Otherwise an expanding spiral probes eight
// offsets per radius, one grid step at a time, up to MaxSearchRadius. When
// the spiral is exhausted the target is placed immediately right of the
// rightmost node that collided with the original desired position, keeping
// the desired y. That fallback is deterministic, so the function always
// terminates with a reproducible answer.
func FindFreePosition(nodes []*schema.Node, target *schema.Node, desired schema.Position, padding float64) Placement {
	probe := *target
	probe.Position = desired

	origin := FindCollisions(nodes, &probe, padding)
	if !origin.HasCollision {
		return Placement{Position: SnapPosition(desired), Adjusted: false}
	}

	for r := GridSize; r <= MaxSearchRadius; r += GridSize {
		for _, off := range spiralOffsets {
			candidate := SnapPosition(schema.Position{
				X: desired.X + off[0]*r,
				Y: desired.Y + off[1]*r,
			})
			probe.Position = candidate
			if !FindCollisions(nodes, &probe, padding).HasCollision {
				return Placement{Position: candidate, Adjusted: true}
			}
		}
	}

	// Fallback: clear the rightmost edge of the original colliders.
	maxRight := desired.X
	byID := make(map[string]*schema.Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}
	for _, id := range origin.CollidingIDs {
		if n, ok := byID[id]; ok {
			if right := BoundsOf(n, 0).Right(); right > maxRight {
				maxRight = right
			}
		}
	}
	pos := SnapPosition(schema.Position{X: maxRight + padding, Y: desired.Y})
	return Placement{Position: pos, Adjusted: true}
}

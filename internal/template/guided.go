package template

import (
	"context"

	"github.com/bert-systems/canvasgraph/internal/expressions"
	"github.com/bert-systems/canvasgraph/internal/graph"
	"github.com/bert-systems/canvasgraph/pkg/schema"
)

// GuidedTracker evaluates a template's guided steps against live graph
// state. Steps are ordered; Current returns the first incomplete one.
//
// Completion rules per step:
//   - a condition expression wins when present, evaluated with CEL
//   - otherwise a target node counts as complete once it reaches completed
//   - a step with neither is manual and never auto-completes
type GuidedTracker struct {
	steps []schema.GuidedStep
	cel   *expressions.CELEngine
}

// NewGuidedTracker creates a tracker for a template's steps.
func NewGuidedTracker(steps []schema.GuidedStep) (*GuidedTracker, error) {
	eng, err := expressions.NewCELEngine()
	if err != nil {
		return nil, err
	}
	return &GuidedTracker{steps: steps, cel: eng}, nil
}

// Steps returns the tracked steps in order.
func (t *GuidedTracker) Steps() []schema.GuidedStep { return t.steps }

// Completed reports whether the step with the given ID is complete.
func (t *GuidedTracker) Completed(ctx context.Context, g *graph.Graph, stepID string) (bool, error) {
	for i := range t.steps {
		if t.steps[i].ID == stepID {
			return t.stepComplete(ctx, g, &t.steps[i])
		}
	}
	return false, schema.NewErrorf(schema.ErrCodeNotFound, "guided step %s not found", stepID)
}

// Current returns the first incomplete step, or nil when every step is
// complete. A broken condition expression surfaces as an error rather than
// silently skipping the step.
func (t *GuidedTracker) Current(ctx context.Context, g *graph.Graph) (*schema.GuidedStep, error) {
	for i := range t.steps {
		done, err := t.stepComplete(ctx, g, &t.steps[i])
		if err != nil {
			return nil, err
		}
		if !done {
			step := t.steps[i]
			return &step, nil
		}
	}
	return nil, nil
}

func (t *GuidedTracker) stepComplete(ctx context.Context, g *graph.Graph, step *schema.GuidedStep) (bool, error) {
	if step.Condition != "" {
		out, err := t.cel.Evaluate(ctx, step.Condition, stateOf(g))
		if err != nil {
			return false, err
		}
		b, ok := out.(bool)
		if !ok {
			return false, schema.NewErrorf(schema.ErrCodeValidation,
				"guided step %s condition did not evaluate to a boolean", step.ID)
		}
		return b, nil
	}
	if step.TargetNode != "" {
		n, err := g.Node(step.TargetNode)
		if err != nil {
			return false, nil
		}
		return n.Status == schema.StatusCompleted, nil
	}
	return false, nil
}

// stateOf projects graph state into the CEL evaluation environment.
func stateOf(g *graph.Graph) map[string]any {
	all := g.Nodes()
	nodes := make(map[string]any, len(all))
	for _, n := range all {
		progress := 0
		if n.Progress != nil {
			progress = *n.Progress
		}
		nodes[n.ID] = map[string]any{
			"status":     string(n.Status),
			"progress":   progress,
			"has_result": n.Result != nil,
		}
	}
	return map[string]any{
		"nodes": nodes,
		"board": map[string]any{
			"id":         g.BoardID(),
			"name":       g.Name(),
			"node_count": len(all),
		},
	}
}

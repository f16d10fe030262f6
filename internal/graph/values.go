package graph

import (
	"context"
	"slices"

	"github.com/bert-systems/canvasgraph/pkg/schema"
)

// InputValue is the resolved state of one input port. An input is ready
// only when its upstream node is completed with a result of a compatible
// kind; anything else — no edge, upstream idle/running/error, mismatched
// result kind — is "not ready", never an error.
type InputValue struct {
	Port   schema.Port
	Ready  bool
	Result schema.Result // nil unless Ready
	Value  any           // selector output, or the result map when no selector
}

// ResolveInputs computes the value of every input port of a node from the
// current state of its upstream edges.
func (g *Graph) ResolveInputs(ctx context.Context, nodeID string) (map[string]InputValue, error) {
	g.mu.RLock()
	n, ok := g.nodes[nodeID]
	if !ok {
		g.mu.RUnlock()
		return nil, nodeNotFound(nodeID)
	}

	type upstream struct {
		port     schema.Port
		source   *schema.Node
		selector string
	}

	resolved := make(map[string]InputValue, len(n.Inputs))
	var pending []upstream
	for _, port := range n.Inputs {
		resolved[port.ID] = InputValue{Port: port}
		for _, e := range g.edges {
			if e.Target.NodeID != nodeID || e.Target.PortID != port.ID {
				continue
			}
			if src, exists := g.nodes[e.Source.NodeID]; exists {
				pending = append(pending, upstream{port: port, source: src.Clone(), selector: e.Selector})
			}
			break
		}
	}
	g.mu.RUnlock()

	for _, up := range pending {
		if up.source.Status != schema.StatusCompleted || up.source.Result == nil {
			continue
		}
		if !schema.Compatible(schema.ResultPortType(up.source.Result.Kind()), up.port.Type) {
			continue
		}

		value := any(schema.ResultValue(up.source.Result))
		if up.selector != "" {
			selected, err := g.jq.Evaluate(ctx, up.selector, schema.ResultValue(up.source.Result))
			if err != nil {
				// A broken selector degrades to not-ready rather than
				// failing the whole resolution.
				continue
			}
			value = selected
		}

		resolved[up.port.ID] = InputValue{
			Port:   up.port,
			Ready:  true,
			Result: up.source.Result,
			Value:  value,
		}
	}

	return resolved, nil
}

// MissingRequired returns the IDs of required input ports that are not
// ready. An empty slice means the node may execute.
func (g *Graph) MissingRequired(ctx context.Context, nodeID string) ([]string, error) {
	inputs, err := g.ResolveInputs(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	var missing []string
	for _, iv := range inputs {
		if iv.Port.Required && !iv.Ready {
			missing = append(missing, iv.Port.ID)
		}
	}
	slices.Sort(missing)
	return missing, nil
}

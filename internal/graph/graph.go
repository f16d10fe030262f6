// Package graph holds the canonical in-memory workflow graph: nodes, ports,
// and edges, mutated through a single-writer API. All structural changes
// and execution-state updates are serialized through one mutex, so the rest
// of the system never races on graph state. Reads return clones; callers
// never hold references into live state.
package graph

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/bert-systems/canvasgraph/internal/expressions"
	"github.com/bert-systems/canvasgraph/internal/layout"
	"github.com/bert-systems/canvasgraph/internal/logging"
	"github.com/bert-systems/canvasgraph/internal/streaming"
	"github.com/bert-systems/canvasgraph/pkg/schema"
)

// Graph is the canonical state container for one board.
type Graph struct {
	mu      sync.RWMutex
	boardID string
	name    string
	nodes   map[string]*schema.Node
	edges   map[string]*schema.Edge
	order   []string // node insertion order, for deterministic listing

	padding float64
	hub     streaming.EventHub
	jq      *expressions.JQEngine
	logger  *slog.Logger
}

// Option configures a Graph.
type Option func(*Graph)

// WithHub attaches a streaming hub; every mutation publishes an event.
func WithHub(hub streaming.EventHub) Option {
	return func(g *Graph) { g.hub = hub }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(g *Graph) { g.logger = logger }
}

// WithPadding overrides the collision padding used for placement.
func WithPadding(padding float64) Option {
	return func(g *Graph) { g.padding = padding }
}

// WithName sets the board display name.
func WithName(name string) Option {
	return func(g *Graph) { g.name = name }
}

// New creates an empty graph with a fresh board ID.
func New(opts ...Option) *Graph {
	g := &Graph{
		boardID: uuid.NewString(),
		nodes:   make(map[string]*schema.Node),
		edges:   make(map[string]*schema.Edge),
		padding: layout.DefaultPadding,
		jq:      expressions.NewJQEngine(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// BoardID returns the board's unique ID.
func (g *Graph) BoardID() string { return g.boardID }

// Name returns the board display name.
func (g *Graph) Name() string { return g.name }

// Padding returns the collision padding used for placement.
func (g *Graph) Padding() float64 { return g.padding }

// --- Structural mutations ---

// AddNode inserts a node. An empty ID is minted; status is forced to idle
// and any stale execution fields are dropped. The initial position is
// resolved against the existing nodes so the no-overlap invariant holds
// from the moment the node appears. Returns a clone of the stored node.
func (g *Graph) AddNode(ctx context.Context, n *schema.Node) (*schema.Node, error) {
	if n == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "node is nil")
	}

	stored := n.Clone()
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	stored.Status = schema.StatusIdle
	stored.Progress = nil
	stored.Error = ""
	stored.Result = nil

	g.mu.Lock()
	if _, exists := g.nodes[stored.ID]; exists {
		g.mu.Unlock()
		return nil, schema.NewErrorf(schema.ErrCodeConflict, "node %s already exists", stored.ID)
	}

	placement := layout.FindFreePosition(g.nodeListLocked(), stored, stored.Position, g.padding)
	stored.Position = placement.Position

	g.nodes[stored.ID] = stored
	g.order = append(g.order, stored.ID)
	out := stored.Clone()
	g.mu.Unlock()

	g.publish(ctx, stored.ID, schema.EventNodeAdded, map[string]any{
		"type":     stored.Type,
		"position": stored.Position,
		"adjusted": placement.Adjusted,
	})
	return out, nil
}

// InsertNode stores a node at its authored position without resolving
// collisions. Used for bulk loads where a ResolveLayout pass follows; user
// additions go through AddNode instead.
func (g *Graph) InsertNode(ctx context.Context, n *schema.Node) (*schema.Node, error) {
	if n == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "node is nil")
	}

	stored := n.Clone()
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	stored.Status = schema.StatusIdle
	stored.Progress = nil
	stored.Error = ""
	stored.Result = nil

	g.mu.Lock()
	if _, exists := g.nodes[stored.ID]; exists {
		g.mu.Unlock()
		return nil, schema.NewErrorf(schema.ErrCodeConflict, "node %s already exists", stored.ID)
	}
	g.nodes[stored.ID] = stored
	g.order = append(g.order, stored.ID)
	out := stored.Clone()
	g.mu.Unlock()

	g.publish(ctx, stored.ID, schema.EventNodeAdded, map[string]any{
		"type":     stored.Type,
		"position": stored.Position,
	})
	return out, nil
}

// Announce publishes a board-level event to the hub, if one is attached.
func (g *Graph) Announce(ctx context.Context, eventType string, payload any) {
	g.publish(ctx, "", eventType, payload)
}

// RemoveNode deletes a node and cascades to its incident edges.
func (g *Graph) RemoveNode(ctx context.Context, nodeID string) error {
	g.mu.Lock()
	if _, ok := g.nodes[nodeID]; !ok {
		g.mu.Unlock()
		return nodeNotFound(nodeID)
	}

	var removedEdges []string
	for id, e := range g.edges {
		if e.Source.NodeID == nodeID || e.Target.NodeID == nodeID {
			delete(g.edges, id)
			removedEdges = append(removedEdges, id)
		}
	}
	delete(g.nodes, nodeID)
	for i, id := range g.order {
		if id == nodeID {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	g.mu.Unlock()

	for _, edgeID := range removedEdges {
		g.publish(ctx, nodeID, schema.EventEdgeDisconnected, map[string]any{"edge_id": edgeID})
	}
	g.publish(ctx, nodeID, schema.EventNodeRemoved, nil)
	return nil
}

// MoveNode places a node at (or near) the desired position, resolving
// collisions against the other nodes. Returns the final position and
// whether it was adjusted.
func (g *Graph) MoveNode(ctx context.Context, nodeID string, desired schema.Position) (schema.Position, bool, error) {
	g.mu.Lock()
	n, ok := g.nodes[nodeID]
	if !ok {
		g.mu.Unlock()
		return schema.Position{}, false, nodeNotFound(nodeID)
	}

	others := make([]*schema.Node, 0, len(g.nodes)-1)
	for _, other := range g.nodes {
		if other.ID != nodeID {
			others = append(others, other)
		}
	}
	placement := layout.FindFreePosition(others, n, desired, g.padding)
	n.Position = placement.Position
	g.mu.Unlock()

	g.publish(ctx, nodeID, schema.EventNodeMoved, map[string]any{
		"position": placement.Position,
		"adjusted": placement.Adjusted,
	})
	return placement.Position, placement.Adjusted, nil
}

// ResizeNode sets a node's explicit size (manual resize).
func (g *Graph) ResizeNode(ctx context.Context, nodeID string, size schema.Size) error {
	err := g.updateNode(nodeID, func(n *schema.Node) error {
		if size.Width <= 0 || size.Height <= 0 {
			return schema.NewError(schema.ErrCodeValidation, "size must be positive").WithNode(nodeID)
		}
		s := size
		n.Size = &s
		return nil
	})
	if err != nil {
		return err
	}
	g.publish(ctx, nodeID, schema.EventNodeResized, map[string]any{"size": size})
	return nil
}

// SetMeasured records the rendered size reported back by the UI.
func (g *Graph) SetMeasured(_ context.Context, nodeID string, size schema.Size) error {
	return g.updateNode(nodeID, func(n *schema.Node) error {
		s := size
		n.Measured = &s
		return nil
	})
}

// SetDisplayMode changes a node's density mode and drops the stale measured
// size so the layout engine falls back to the mode's footprint.
func (g *Graph) SetDisplayMode(_ context.Context, nodeID string, mode schema.DisplayMode) error {
	return g.updateNode(nodeID, func(n *schema.Node) error {
		n.DisplayMode = mode
		n.Measured = nil
		return nil
	})
}

// Connect validates and inserts an edge. The source port must be an output,
// the target port an input of a compatible type, and the target input must
// be free. Invalid edges are rejected before anything is stored.
func (g *Graph) Connect(ctx context.Context, source, target schema.Endpoint, selector string) (*schema.Edge, error) {
	g.mu.Lock()

	src, ok := g.nodes[source.NodeID]
	if !ok {
		g.mu.Unlock()
		return nil, nodeNotFound(source.NodeID)
	}
	dst, ok := g.nodes[target.NodeID]
	if !ok {
		g.mu.Unlock()
		return nil, nodeNotFound(target.NodeID)
	}

	srcPort := src.Output(source.PortID)
	if srcPort == nil {
		g.mu.Unlock()
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"output port %s not found", source.PortID).WithNode(source.NodeID)
	}
	dstPort := dst.Input(target.PortID)
	if dstPort == nil {
		g.mu.Unlock()
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"input port %s not found", target.PortID).WithNode(target.NodeID)
	}

	if !schema.Compatible(srcPort.Type, dstPort.Type) {
		g.mu.Unlock()
		return nil, schema.NewErrorf(schema.ErrCodeIncompatiblePorts,
			"cannot connect %s output to %s input", srcPort.Type, dstPort.Type).
			WithDetails(map[string]any{
				"source_node": source.NodeID, "source_port": source.PortID,
				"target_node": target.NodeID, "target_port": target.PortID,
			})
	}

	for _, e := range g.edges {
		if e.Target == target {
			g.mu.Unlock()
			return nil, schema.NewErrorf(schema.ErrCodeConflict,
				"input %s of node %s is already connected", target.PortID, target.NodeID)
		}
	}

	edge := &schema.Edge{
		ID:       uuid.NewString(),
		Source:   source,
		Target:   target,
		Selector: selector,
	}
	g.edges[edge.ID] = edge
	out := *edge
	g.mu.Unlock()

	g.publish(ctx, target.NodeID, schema.EventEdgeConnected, map[string]any{
		"edge_id": edge.ID,
		"source":  source,
		"target":  target,
	})
	return &out, nil
}

// Disconnect removes an edge.
func (g *Graph) Disconnect(ctx context.Context, edgeID string) error {
	g.mu.Lock()
	e, ok := g.edges[edgeID]
	if !ok {
		g.mu.Unlock()
		return schema.NewErrorf(schema.ErrCodeNotFound, "edge %s not found", edgeID)
	}
	delete(g.edges, edgeID)
	target := e.Target.NodeID
	g.mu.Unlock()

	g.publish(ctx, target, schema.EventEdgeDisconnected, map[string]any{"edge_id": edgeID})
	return nil
}

// --- Execution-state mutations ---
//
// These setters enforce the data invariants: running implies no error,
// error implies no result, and progress exists only while running. The
// engine's FSM is the authority on transition legality; the guards here are
// the last line of defense against a buggy caller.

// SetRunning marks a node running, clearing any previous result, error, and
// progress from an earlier run.
func (g *Graph) SetRunning(ctx context.Context, nodeID string) error {
	err := g.updateNode(nodeID, func(n *schema.Node) error {
		n.Status = schema.StatusRunning
		n.Error = ""
		n.Result = nil
		zero := 0
		n.Progress = &zero
		return nil
	})
	if err != nil {
		return err
	}
	g.publish(ctx, nodeID, schema.EventNodeExecutionStarted, nil)
	return nil
}

// SetProgress records a progress update. Only meaningful while running.
func (g *Graph) SetProgress(ctx context.Context, nodeID string, percent int) error {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	err := g.updateNode(nodeID, func(n *schema.Node) error {
		if n.Status != schema.StatusRunning {
			return schema.NewErrorf(schema.ErrCodeInvalidTransition,
				"progress update while %s", n.Status).WithNode(nodeID)
		}
		p := percent
		n.Progress = &p
		return nil
	})
	if err != nil {
		return err
	}
	g.publish(ctx, nodeID, schema.EventNodeProgress, map[string]any{"progress": percent})
	return nil
}

// SetCompleted attaches a result and marks the node completed.
func (g *Graph) SetCompleted(ctx context.Context, nodeID string, result schema.Result) error {
	err := g.updateNode(nodeID, func(n *schema.Node) error {
		if n.Status != schema.StatusRunning {
			return schema.NewErrorf(schema.ErrCodeInvalidTransition,
				"completion while %s", n.Status).WithNode(nodeID)
		}
		if result == nil {
			return schema.NewError(schema.ErrCodeValidation, "completed without a result").WithNode(nodeID)
		}
		n.Status = schema.StatusCompleted
		n.Result = result
		n.Error = ""
		n.Progress = nil
		return nil
	})
	if err != nil {
		return err
	}
	g.publish(ctx, nodeID, schema.EventNodeCompleted, map[string]any{
		"result_kind": string(result.Kind()),
	})
	return nil
}

// SetFailed records an execution failure with a human-readable message.
func (g *Graph) SetFailed(ctx context.Context, nodeID string, message string) error {
	if message == "" {
		message = "generation failed"
	}
	err := g.updateNode(nodeID, func(n *schema.Node) error {
		if n.Status != schema.StatusRunning {
			return schema.NewErrorf(schema.ErrCodeInvalidTransition,
				"failure while %s", n.Status).WithNode(nodeID)
		}
		n.Status = schema.StatusError
		n.Error = message
		n.Result = nil
		n.Progress = nil
		return nil
	})
	if err != nil {
		return err
	}
	g.publish(ctx, nodeID, schema.EventNodeFailed, map[string]any{"error": message})
	return nil
}

// ClearExecution resets a node to idle, dropping result, error, and progress.
func (g *Graph) ClearExecution(ctx context.Context, nodeID string) error {
	err := g.updateNode(nodeID, func(n *schema.Node) error {
		n.Status = schema.StatusIdle
		n.Error = ""
		n.Result = nil
		n.Progress = nil
		return nil
	})
	if err != nil {
		return err
	}
	g.publish(ctx, nodeID, schema.EventNodeCleared, nil)
	return nil
}

// --- Reads ---

// Node returns a clone of the node, or a NOT_FOUND error.
func (g *Graph) Node(nodeID string) (*schema.Node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[nodeID]
	if !ok {
		return nil, nodeNotFound(nodeID)
	}
	return n.Clone(), nil
}

// Nodes returns clones of all nodes in insertion order.
func (g *Graph) Nodes() []*schema.Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*schema.Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id].Clone())
	}
	return out
}

// Edges returns copies of all edges.
func (g *Graph) Edges() []*schema.Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*schema.Edge, 0, len(g.edges))
	for _, e := range g.edges {
		cp := *e
		out = append(out, &cp)
	}
	return out
}

// EdgeInto returns the edge feeding the given input port, if any.
func (g *Graph) EdgeInto(nodeID, portID string) (*schema.Edge, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, e := range g.edges {
		if e.Target.NodeID == nodeID && e.Target.PortID == portID {
			cp := *e
			return &cp, true
		}
	}
	return nil, false
}

// Snapshot returns a point-in-time copy of the whole board.
func (g *Graph) Snapshot() *schema.Board {
	g.mu.RLock()
	defer g.mu.RUnlock()
	b := &schema.Board{ID: g.boardID, Name: g.name}
	for _, id := range g.order {
		b.Nodes = append(b.Nodes, g.nodes[id].Clone())
	}
	for _, e := range g.edges {
		cp := *e
		b.Edges = append(b.Edges, &cp)
	}
	return b
}

// ResolveLayout runs a batch layout pass over the whole board, applying the
// resolved positions. Returns how many nodes were moved. Used after
// template loads and bulk pastes, where authored positions may conflict.
func (g *Graph) ResolveLayout(ctx context.Context) int {
	g.mu.Lock()
	result := layout.ResolveAll(g.nodeListLocked(), g.padding)
	moved := make(map[string]schema.Position)
	for _, resolved := range result.Nodes {
		if n, ok := g.nodes[resolved.ID]; ok && n.Position != resolved.Position {
			n.Position = resolved.Position
			moved[resolved.ID] = resolved.Position
		}
	}
	g.mu.Unlock()

	for id, pos := range moved {
		g.publish(ctx, id, schema.EventNodeMoved, map[string]any{"position": pos, "adjusted": true})
	}
	return result.AdjustedCount
}

// --- internals ---

func (g *Graph) nodeListLocked() []*schema.Node {
	out := make([]*schema.Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

func (g *Graph) updateNode(nodeID string, fn func(*schema.Node) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[nodeID]
	if !ok {
		return nodeNotFound(nodeID)
	}
	return fn(n)
}

func (g *Graph) publish(ctx context.Context, nodeID, eventType string, payload any) {
	if g.hub == nil {
		return
	}
	event := streaming.StreamEvent{
		BoardID:   g.boardID,
		NodeID:    nodeID,
		EventType: eventType,
		Payload:   payload,
	}
	if err := g.hub.Publish(ctx, event); err != nil {
		logging.LogWith(ctx, g.logger).Warn("publish graph event failed",
			slog.String("event_type", eventType), slog.String("error", err.Error()))
	}
}

func nodeNotFound(nodeID string) *schema.CanvasError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "node %s not found", nodeID).WithNode(nodeID)
}

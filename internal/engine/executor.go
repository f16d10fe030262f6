package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/bert-systems/canvasgraph/internal/expressions"
	"github.com/bert-systems/canvasgraph/internal/graph"
	"github.com/bert-systems/canvasgraph/internal/logging"
	"github.com/bert-systems/canvasgraph/internal/store"
	"github.com/bert-systems/canvasgraph/pkg/schema"
)

// DefaultPoolSize is the default max number of concurrently running jobs.
const DefaultPoolSize = 4

// Config holds executor configuration.
type Config struct {
	PoolSize int
	Logger   *slog.Logger
}

// Executor bridges the graph to the external generation collaborators.
// Execute dispatches a job and returns immediately; the graph is updated
// later from the completion or failure callback. Each dispatch carries a
// generation token, and callbacks whose token no longer matches the node's
// current generation are discarded, so a stale result from an abandoned run
// can never land in a graph the user has since changed.
type Executor struct {
	graph    *graph.Graph
	registry *GeneratorRegistry
	fsm      *NodeFSM
	pool     *DispatchPool
	interp   *expressions.Interpolator
	appender EventAppender
	logger   *slog.Logger

	mu     sync.Mutex
	tokens map[string]uint64 // node ID → current generation
}

// NewExecutor creates an Executor over a graph and a generator registry.
// The appender receives lifecycle events; pass nil to disable.
func NewExecutor(g *graph.Graph, registry *GeneratorRegistry, appender EventAppender, cfg Config) *Executor {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = DefaultPoolSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if appender == nil {
		appender = NoopAppender{}
	}
	return &Executor{
		graph:    g,
		registry: registry,
		fsm:      NewNodeFSM(appender),
		pool:     NewDispatchPool(cfg.PoolSize),
		interp:   expressions.NewInterpolator(),
		appender: appender,
		logger:   cfg.Logger,
		tokens:   make(map[string]uint64),
	}
}

// FSM exposes the state machine for hook registration.
func (e *Executor) FSM() *NodeFSM { return e.fsm }

// Execute validates readiness and dispatches a generation job for the node.
// A node with unready required inputs stays idle and the call fails with
// INPUT_NOT_READY. A node that is already running cannot be re-executed.
func (e *Executor) Execute(ctx context.Context, nodeID string) error {
	ctx = logging.WithBoardID(logging.WithNodeID(ctx, nodeID), e.graph.BoardID())

	node, err := e.graph.Node(nodeID)
	if err != nil {
		return err
	}
	if node.Status == schema.StatusRunning {
		return schema.NewError(schema.ErrCodeConflict, "node is already running").WithNode(nodeID)
	}

	missing, err := e.graph.MissingRequired(ctx, nodeID)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return schema.NewError(schema.ErrCodeInputNotReady, "required inputs are not ready").
			WithNode(nodeID).
			WithDetails(map[string]any{"ports": missing})
	}

	gen, ok := e.registry.Lookup(node.Type)
	if !ok {
		return schema.NewErrorf(schema.ErrCodeValidation,
			"no generator registered for node type %s", node.Type).WithNode(nodeID)
	}

	if err := e.fsm.Transition(ctx, e.graph.BoardID(), nodeID, node.Status, schema.StatusRunning); err != nil {
		return err
	}
	if err := e.graph.SetRunning(ctx, nodeID); err != nil {
		return err
	}
	token := e.bumpToken(nodeID)

	inputs, err := e.graph.ResolveInputs(ctx, nodeID)
	if err != nil {
		return e.failNode(ctx, nodeID, token, err.Error())
	}

	params, err := e.interp.Resolve(ctx, node.Parameters, &expressions.Scope{
		Inputs: inputValues(inputs),
		Params: node.Parameters,
		Node: map[string]any{
			"id":       node.ID,
			"type":     node.Type,
			"category": node.Category,
		},
	})
	if err != nil {
		return e.failNode(ctx, nodeID, token, err.Error())
	}

	req := Request{
		NodeID:     nodeID,
		NodeType:   node.Type,
		Parameters: params,
		Inputs:     inputs,
		OnProgress: func(percent int) {
			_ = e.Progress(context.WithoutCancel(ctx), nodeID, token, percent)
		},
	}

	// The job outlives the Execute call; detach it from the caller's
	// cancellation.
	jobCtx := context.WithoutCancel(ctx)
	submitErr := e.pool.Submit(jobCtx, func(ctx context.Context) error {
		result, genErr := gen.Generate(ctx, req)
		if genErr != nil {
			return e.Fail(ctx, nodeID, token, genErr.Error())
		}
		return e.Complete(ctx, nodeID, token, result)
	})
	if submitErr != nil {
		return e.failNode(ctx, nodeID, token, "dispatch failed: "+submitErr.Error())
	}

	logging.LogWith(ctx, e.logger).Info("node execution dispatched",
		slog.String("node_type", node.Type))
	return nil
}

// Progress records a progress update for an in-flight job. Stale tokens
// are dropped silently.
func (e *Executor) Progress(ctx context.Context, nodeID string, token uint64, percent int) error {
	if e.stale(nodeID, token) {
		return nil
	}
	if err := e.fsm.Transition(ctx, e.graph.BoardID(), nodeID, schema.StatusRunning, schema.StatusRunning); err != nil {
		return err
	}
	return e.graph.SetProgress(ctx, nodeID, percent)
}

// Complete attaches the result of a finished job. A completion whose token
// no longer matches the node's current generation is discarded: the graph
// has moved on.
func (e *Executor) Complete(ctx context.Context, nodeID string, token uint64, result schema.Result) error {
	if e.stale(nodeID, token) {
		e.discard(ctx, nodeID, "completion")
		return nil
	}
	if err := e.fsm.Transition(ctx, e.graph.BoardID(), nodeID, schema.StatusRunning, schema.StatusCompleted); err != nil {
		return err
	}
	return e.graph.SetCompleted(ctx, nodeID, result)
}

// Fail records a job failure. Stale tokens are discarded like completions.
func (e *Executor) Fail(ctx context.Context, nodeID string, token uint64, message string) error {
	if e.stale(nodeID, token) {
		e.discard(ctx, nodeID, "failure")
		return nil
	}
	if err := e.fsm.Transition(ctx, e.graph.BoardID(), nodeID, schema.StatusRunning, schema.StatusError); err != nil {
		return err
	}
	return e.graph.SetFailed(ctx, nodeID, message)
}

// Clear resets a node to idle and fences any in-flight job for it. Clearing
// an idle node is a no-op.
func (e *Executor) Clear(ctx context.Context, nodeID string) error {
	node, err := e.graph.Node(nodeID)
	if err != nil {
		return err
	}
	if node.Status == schema.StatusIdle {
		return nil
	}
	e.bumpToken(nodeID)
	if err := e.fsm.Transition(ctx, e.graph.BoardID(), nodeID, node.Status, schema.StatusIdle); err != nil {
		return err
	}
	return e.graph.ClearExecution(ctx, nodeID)
}

// Wait blocks until all in-flight jobs have finished.
func (e *Executor) Wait() { e.pool.Wait() }

// Shutdown stops accepting jobs and waits for active ones.
func (e *Executor) Shutdown() { e.pool.Shutdown() }

// Metrics returns dispatch pool counters.
func (e *Executor) Metrics() PoolMetrics { return e.pool.Metrics() }

// --- internals ---

func (e *Executor) bumpToken(nodeID string) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tokens[nodeID]++
	return e.tokens[nodeID]
}

func (e *Executor) stale(nodeID string, token uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tokens[nodeID] != token
}

func (e *Executor) discard(ctx context.Context, nodeID, kind string) {
	logging.LogWith(ctx, e.logger).Debug("stale generation callback discarded",
		slog.String("kind", kind), slog.String("node_id", nodeID))
	_ = e.appender.AppendNodeEvent(ctx, &store.NodeEvent{
		BoardID: e.graph.BoardID(),
		NodeID:  nodeID,
		Type:    schema.EventResultDiscarded,
	})
}

// failNode moves a node that already entered running into the error state,
// used for pre-dispatch failures (interpolation, pool shutdown).
func (e *Executor) failNode(ctx context.Context, nodeID string, token uint64, message string) error {
	if err := e.Fail(ctx, nodeID, token, message); err != nil {
		return err
	}
	return schema.NewError(schema.ErrCodeExecution, message).WithNode(nodeID)
}

func inputValues(inputs map[string]graph.InputValue) map[string]any {
	out := make(map[string]any, len(inputs))
	for id, iv := range inputs {
		if iv.Ready {
			out[id] = iv.Value
		}
	}
	return out
}

// Package engine drives node execution: the per-node lifecycle state
// machine, the bounded dispatch pool, and the executor that bridges the
// graph to external generation services.
package engine

import (
	"context"
	"sync"

	"github.com/bert-systems/canvasgraph/internal/store"
	"github.com/bert-systems/canvasgraph/pkg/schema"
)

// TransitionHook is called before or after a state transition.
type TransitionHook func(from, to string) error

// EventAppender is satisfied by the store and by test mocks; the FSM emits
// an event on every transition.
type EventAppender interface {
	AppendNodeEvent(ctx context.Context, event *store.NodeEvent) error
}

// NoopAppender discards events, for hosts that run without a store.
type NoopAppender struct{}

func (NoopAppender) AppendNodeEvent(context.Context, *store.NodeEvent) error { return nil }

type hookKey struct {
	from, to schema.NodeStatus
}

// NodeFSM manages node execution lifecycle transitions:
// idle → running → completed | error, re-runnable from either terminal
// state, and resettable to idle by an explicit clear.
type NodeFSM struct {
	mu       sync.Mutex
	appender EventAppender
	before   map[hookKey][]TransitionHook
	after    map[hookKey][]TransitionHook
}

// NewNodeFSM creates a NodeFSM that emits events via the given appender.
// A nil appender disables event emission.
func NewNodeFSM(appender EventAppender) *NodeFSM {
	if appender == nil {
		appender = NoopAppender{}
	}
	return &NodeFSM{
		appender: appender,
		before:   make(map[hookKey][]TransitionHook),
		after:    make(map[hookKey][]TransitionHook),
	}
}

// OnBefore registers a hook called before a transition.
func (f *NodeFSM) OnBefore(from, to schema.NodeStatus, hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := hookKey{from, to}
	f.before[key] = append(f.before[key], hook)
}

// OnAfter registers a hook called after a transition.
func (f *NodeFSM) OnAfter(from, to schema.NodeStatus, hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := hookKey{from, to}
	f.after[key] = append(f.after[key], hook)
}

// Transition validates and executes a node state transition, emitting the
// corresponding event. The caller (Executor) applies the new state to the
// graph.
func (f *NodeFSM) Transition(ctx context.Context, boardID, nodeID string, from, to schema.NodeStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !isValidTransition(from, to) {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"invalid node transition: %s -> %s", from, to).
			WithNode(nodeID).
			WithDetails(map[string]any{"board_id": boardID, "from": string(from), "to": string(to)})
	}

	key := hookKey{from, to}

	for _, hook := range f.before[key] {
		if err := hook(string(from), string(to)); err != nil {
			return err
		}
	}

	if eventType := nodeEventType(from, to); eventType != "" {
		event := &store.NodeEvent{
			BoardID: boardID,
			NodeID:  nodeID,
			Type:    eventType,
		}
		if err := f.appender.AppendNodeEvent(ctx, event); err != nil {
			return schema.NewErrorf(schema.ErrCodeStore, "emit node event: %s", err.Error()).
				WithNode(nodeID).WithCause(err)
		}
	}

	for _, hook := range f.after[key] {
		if err := hook(string(from), string(to)); err != nil {
			return err
		}
	}

	return nil
}

func isValidTransition(from, to schema.NodeStatus) bool {
	allowed, ok := ValidNodeTransitions[from]
	if !ok {
		return false
	}
	for _, a := range allowed {
		if a == to {
			return true
		}
	}
	return false
}

func nodeEventType(from, to schema.NodeStatus) string {
	switch {
	case from == schema.StatusRunning && to == schema.StatusRunning:
		return schema.EventNodeProgress
	case to == schema.StatusRunning:
		return schema.EventNodeExecutionStarted
	case to == schema.StatusCompleted:
		return schema.EventNodeCompleted
	case to == schema.StatusError:
		return schema.EventNodeFailed
	case to == schema.StatusIdle:
		return schema.EventNodeCleared
	default:
		return ""
	}
}

// ValidNodeTransitions defines the allowed node lifecycle transitions.
// running → running carries progress updates; the idle targets are reached
// only through an explicit clear action.
var ValidNodeTransitions = map[schema.NodeStatus][]schema.NodeStatus{
	schema.StatusIdle:      {schema.StatusRunning},
	schema.StatusRunning:   {schema.StatusRunning, schema.StatusCompleted, schema.StatusError, schema.StatusIdle},
	schema.StatusCompleted: {schema.StatusRunning, schema.StatusIdle},
	schema.StatusError:     {schema.StatusRunning, schema.StatusIdle},
}

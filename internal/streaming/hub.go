// Package streaming delivers graph and execution events to UI observers.
package streaming

import "context"

// StreamEvent is a real-time event emitted as the graph mutates or a node's
// execution state changes.
type StreamEvent struct {
	BoardID   string `json:"board_id,omitempty"`
	NodeID    string `json:"node_id,omitempty"`
	EventType string `json:"event_type"`
	Payload   any    `json:"payload,omitempty"`
}

// EventFilter specifies which events a subscriber wants to receive.
//
// ReplayLast asks the hub to deliver up to that many of the most recent
// matching events before any live ones, so a renderer attaching mid-run can
// catch up on execution state it missed. Zero means live events only.
type EventFilter struct {
	BoardID    string   `json:"board_id,omitempty"`
	NodeID     string   `json:"node_id,omitempty"`
	EventTypes []string `json:"event_types,omitempty"`
	ReplayLast int      `json:"replay_last,omitempty"`
}

// EventHub provides pub/sub for real-time graph events.
type EventHub interface {
	Publish(ctx context.Context, event StreamEvent) error
	Subscribe(ctx context.Context, filter EventFilter) (<-chan StreamEvent, func(), error)
}

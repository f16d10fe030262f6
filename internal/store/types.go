package store

import (
	"encoding/json"
	"time"
)

// BoardRecord is the persisted form of a board snapshot.
type BoardRecord struct {
	ID        string          `json:"id"`
	Name      string          `json:"name,omitempty"`
	Snapshot  json.RawMessage `json:"snapshot"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// NodeEvent is an immutable entry in the per-board event log, with a
// monotonically increasing per-board sequence.
type NodeEvent struct {
	ID        int64           `json:"id"`
	BoardID   string          `json:"board_id"`
	NodeID    string          `json:"node_id,omitempty"`
	Type      string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Sequence  int64           `json:"sequence"`
}

// EventFilter specifies criteria for listing node events.
type EventFilter struct {
	NodeID    string `json:"node_id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Since     int64  `json:"since,omitempty"` // sequence floor, exclusive
	Limit     int    `json:"limit,omitempty"`
}

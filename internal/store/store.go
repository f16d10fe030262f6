// Package store persists board snapshots and the append-only node event
// log. The graph core never requires a store; it is wired in by the host
// application for saved boards and autosave.
package store

import "context"

// BoardStore defines the persistence contract.
// All implementations must be safe for concurrent use.
type BoardStore interface {
	// Boards
	SaveBoard(ctx context.Context, board *BoardRecord) error
	GetBoard(ctx context.Context, id string) (*BoardRecord, error)
	ListBoards(ctx context.Context) ([]*BoardRecord, error)
	DeleteBoard(ctx context.Context, id string) error

	// Node events (append-only)
	AppendNodeEvent(ctx context.Context, event *NodeEvent) error
	ListNodeEvents(ctx context.Context, boardID string, filter EventFilter) ([]*NodeEvent, error)

	// Maintenance
	Migrate(ctx context.Context) error

	// Lifecycle
	Close() error
}

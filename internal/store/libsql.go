package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/bert-systems/canvasgraph/pkg/schema"
)

// LibSQLStore implements BoardStore using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// --- Boards ---

// SaveBoard inserts or replaces a board snapshot.
func (s *LibSQLStore) SaveBoard(ctx context.Context, board *BoardRecord) error {
	if board.ID == "" {
		return schema.NewError(schema.ErrCodeValidation, "board has empty ID")
	}
	now := time.Now().UTC()
	created := board.CreatedAt
	if created.IsZero() {
		created = now
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO boards (id, name, snapshot, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name=excluded.name, snapshot=excluded.snapshot, updated_at=excluded.updated_at`,
		board.ID, board.Name, string(board.Snapshot), created, now,
	)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "save board %s: %s", board.ID, err.Error()).WithCause(err)
	}
	return nil
}

// GetBoard fetches one board snapshot.
func (s *LibSQLStore) GetBoard(ctx context.Context, id string) (*BoardRecord, error) {
	b := &BoardRecord{}
	var name sql.NullString
	var snapshot string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, snapshot, created_at, updated_at FROM boards WHERE id = ?`, id,
	).Scan(&b.ID, &name, &snapshot, &b.CreatedAt, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "board %s not found", id)
	}
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "get board %s: %s", id, err.Error()).WithCause(err)
	}
	b.Name = name.String
	b.Snapshot = []byte(snapshot)
	return b, nil
}

// ListBoards returns all boards ordered by last update, newest first.
func (s *LibSQLStore) ListBoards(ctx context.Context) ([]*BoardRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, snapshot, created_at, updated_at FROM boards ORDER BY updated_at DESC`)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "list boards: %s", err.Error()).WithCause(err)
	}
	defer rows.Close()

	var out []*BoardRecord
	for rows.Next() {
		b := &BoardRecord{}
		var name sql.NullString
		var snapshot string
		if err := rows.Scan(&b.ID, &name, &snapshot, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeStore, "scan board: %s", err.Error()).WithCause(err)
		}
		b.Name = name.String
		b.Snapshot = []byte(snapshot)
		out = append(out, b)
	}
	return out, rows.Err()
}

// DeleteBoard removes a board and its event log.
func (s *LibSQLStore) DeleteBoard(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "begin delete: %s", err.Error()).WithCause(err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM node_events WHERE board_id = ?`, id); err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "delete board events: %s", err.Error()).WithCause(err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM boards WHERE id = ?`, id); err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "delete board %s: %s", id, err.Error()).WithCause(err)
	}
	return tx.Commit()
}

// --- Node events ---

// AppendNodeEvent appends an event with a monotonically increasing
// per-board sequence. The sequence read and insert share one transaction
// so concurrent appenders cannot interleave.
func (s *LibSQLStore) AppendNodeEvent(ctx context.Context, event *NodeEvent) error {
	if event.BoardID == "" {
		return schema.NewError(schema.ErrCodeValidation, "event has empty board ID")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "begin event tx: %s", err.Error()).WithCause(err)
	}
	defer tx.Rollback()

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM node_events WHERE board_id = ?`, event.BoardID,
	).Scan(&seq)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "next sequence: %s", err.Error()).WithCause(err)
	}
	event.Sequence = seq

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	var payload sql.NullString
	if len(event.Payload) > 0 {
		payload = sql.NullString{String: string(event.Payload), Valid: true}
	}
	var nodeID sql.NullString
	if event.NodeID != "" {
		nodeID = sql.NullString{String: event.NodeID, Valid: true}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO node_events (board_id, node_id, event_type, payload, timestamp, sequence)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		event.BoardID, nodeID, event.Type, payload, event.Timestamp, seq,
	)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "insert event: %s", err.Error()).WithCause(err)
	}

	if err := tx.Commit(); err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "commit event: %s", err.Error()).WithCause(err)
	}
	return nil
}

// ListNodeEvents returns events for a board matching the filter, ordered by
// sequence ascending.
func (s *LibSQLStore) ListNodeEvents(ctx context.Context, boardID string, filter EventFilter) ([]*NodeEvent, error) {
	query := `SELECT id, board_id, node_id, event_type, payload, timestamp, sequence
		 FROM node_events WHERE board_id = ? AND sequence > ?`
	args := []any{boardID, filter.Since}

	if filter.NodeID != "" {
		query += ` AND node_id = ?`
		args = append(args, filter.NodeID)
	}
	if filter.EventType != "" {
		query += ` AND event_type = ?`
		args = append(args, filter.EventType)
	}
	query += ` ORDER BY sequence ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "list events: %s", err.Error()).WithCause(err)
	}
	defer rows.Close()

	var out []*NodeEvent
	for rows.Next() {
		e := &NodeEvent{}
		var nodeID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.BoardID, &nodeID, &e.Type, &payload, &e.Timestamp, &e.Sequence); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeStore, "scan event: %s", err.Error()).WithCause(err)
		}
		e.NodeID = nodeID.String
		if payload.Valid {
			e.Payload = []byte(payload.String)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

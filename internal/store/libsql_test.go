package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bert-systems/canvasgraph/pkg/schema"
)

func newTestStore(t *testing.T) *LibSQLStore {
	t.Helper()
	path := "file:" + filepath.Join(t.TempDir(), "canvas.db")
	s, err := NewLibSQLStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestLibSQLStore_SaveAndGetBoard(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	snapshot, err := json.Marshal(map[string]any{"id": "b1", "nodes": []any{}})
	require.NoError(t, err)

	require.NoError(t, s.SaveBoard(ctx, &BoardRecord{ID: "b1", Name: "storyboard", Snapshot: snapshot}))

	got, err := s.GetBoard(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "b1", got.ID)
	assert.Equal(t, "storyboard", got.Name)
	assert.JSONEq(t, string(snapshot), string(got.Snapshot))
	assert.False(t, got.CreatedAt.IsZero())
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestLibSQLStore_SaveBoardUpserts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveBoard(ctx, &BoardRecord{ID: "b1", Name: "v1", Snapshot: []byte(`{"v":1}`)}))
	first, err := s.GetBoard(ctx, "b1")
	require.NoError(t, err)

	require.NoError(t, s.SaveBoard(ctx, &BoardRecord{ID: "b1", Name: "v2", Snapshot: []byte(`{"v":2}`)}))
	second, err := s.GetBoard(ctx, "b1")
	require.NoError(t, err)

	assert.Equal(t, "v2", second.Name)
	assert.JSONEq(t, `{"v":2}`, string(second.Snapshot))
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
}

func TestLibSQLStore_SaveBoardRejectsEmptyID(t *testing.T) {
	s := newTestStore(t)
	err := s.SaveBoard(context.Background(), &BoardRecord{Snapshot: []byte(`{}`)})
	require.Error(t, err)
	cErr, ok := err.(*schema.CanvasError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeValidation, cErr.Code)
}

func TestLibSQLStore_GetBoardNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetBoard(context.Background(), "ghost")
	require.Error(t, err)
	cErr, ok := err.(*schema.CanvasError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeNotFound, cErr.Code)
}

func TestLibSQLStore_ListBoards(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveBoard(ctx, &BoardRecord{ID: "b1", Snapshot: []byte(`{}`)}))
	require.NoError(t, s.SaveBoard(ctx, &BoardRecord{ID: "b2", Snapshot: []byte(`{}`)}))

	boards, err := s.ListBoards(ctx)
	require.NoError(t, err)
	require.Len(t, boards, 2)
}

func TestLibSQLStore_DeleteBoardCascadesEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveBoard(ctx, &BoardRecord{ID: "b1", Snapshot: []byte(`{}`)}))
	require.NoError(t, s.AppendNodeEvent(ctx, &NodeEvent{BoardID: "b1", NodeID: "n1", Type: "node_added"}))

	require.NoError(t, s.DeleteBoard(ctx, "b1"))

	_, err := s.GetBoard(ctx, "b1")
	require.Error(t, err)
	events, err := s.ListNodeEvents(ctx, "b1", EventFilter{})
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestLibSQLStore_AppendNodeEventSequencing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, eventType := range []string{"node_added", "node_execution_started", "node_completed"} {
		require.NoError(t, s.AppendNodeEvent(ctx, &NodeEvent{
			BoardID: "b1",
			NodeID:  "n1",
			Type:    eventType,
		}))
	}
	// A different board keeps its own sequence.
	require.NoError(t, s.AppendNodeEvent(ctx, &NodeEvent{BoardID: "b2", NodeID: "n1", Type: "node_added"}))

	events, err := s.ListNodeEvents(ctx, "b1", EventFilter{})
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i, e := range events {
		assert.Equal(t, int64(i+1), e.Sequence)
		assert.False(t, e.Timestamp.IsZero())
	}

	other, err := s.ListNodeEvents(ctx, "b2", EventFilter{})
	require.NoError(t, err)
	require.Len(t, other, 1)
	assert.Equal(t, int64(1), other[0].Sequence)
}

func TestLibSQLStore_ListNodeEventsFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	payload, _ := json.Marshal(map[string]any{"progress": 40})
	require.NoError(t, s.AppendNodeEvent(ctx, &NodeEvent{BoardID: "b1", NodeID: "n1", Type: "node_added"}))
	require.NoError(t, s.AppendNodeEvent(ctx, &NodeEvent{BoardID: "b1", NodeID: "n2", Type: "node_added"}))
	require.NoError(t, s.AppendNodeEvent(ctx, &NodeEvent{BoardID: "b1", NodeID: "n1", Type: "node_progress", Payload: payload}))
	require.NoError(t, s.AppendNodeEvent(ctx, &NodeEvent{BoardID: "b1", NodeID: "n1", Type: "node_completed"}))

	byNode, err := s.ListNodeEvents(ctx, "b1", EventFilter{NodeID: "n1"})
	require.NoError(t, err)
	assert.Len(t, byNode, 3)

	byType, err := s.ListNodeEvents(ctx, "b1", EventFilter{EventType: "node_progress"})
	require.NoError(t, err)
	require.Len(t, byType, 1)
	assert.JSONEq(t, string(payload), string(byType[0].Payload))

	since, err := s.ListNodeEvents(ctx, "b1", EventFilter{Since: 2})
	require.NoError(t, err)
	assert.Len(t, since, 2)

	limited, err := s.ListNodeEvents(ctx, "b1", EventFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, int64(1), limited[0].Sequence)
}

func TestLibSQLStore_MigrateIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.Migrate(context.Background()))
}

func TestLibSQLStore_AppendRejectsEmptyBoardID(t *testing.T) {
	s := newTestStore(t)
	err := s.AppendNodeEvent(context.Background(), &NodeEvent{NodeID: "n1", Type: "node_added"})
	require.Error(t, err)
}

// Package scheduler runs the background autosave loop: snapshot the board on
// a cron cadence and write it through the store, skipping ticks where the
// board has not changed since the last save.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/bert-systems/canvasgraph/internal/logging"
	"github.com/bert-systems/canvasgraph/internal/store"
	"github.com/bert-systems/canvasgraph/pkg/schema"
)

// DefaultSchedule saves every minute.
const DefaultSchedule = "* * * * *"

// Snapshotter produces a point-in-time copy of a board. Satisfied by
// *graph.Graph (avoids import cycle).
type Snapshotter interface {
	BoardID() string
	Name() string
	Snapshot() *schema.Board
}

// Announcer publishes board-level events. Also satisfied by *graph.Graph;
// optional.
type Announcer interface {
	Announce(ctx context.Context, eventType string, payload any)
}

// Autosaver periodically persists a board snapshot.
type Autosaver struct {
	board    Snapshotter
	store    store.BoardStore
	announce Announcer
	schedule cron.Schedule
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	saving   atomic.Bool
	lastHash atomic.Value // string; JSON of last saved snapshot
	saves    atomic.Int64
	skips    atomic.Int64
}

// NewAutosaver creates an Autosaver for one board. cronExpr uses the
// standard five-field format; empty means DefaultSchedule. announce may be
// nil.
func NewAutosaver(board Snapshotter, s store.BoardStore, announce Announcer, cronExpr string, logger *slog.Logger) (*Autosaver, error) {
	if cronExpr == "" {
		cronExpr = DefaultSchedule
	}
	if logger == nil {
		logger = slog.Default()
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("parse autosave schedule %q: %w", cronExpr, err)
	}
	return &Autosaver{
		board:    board,
		store:    s,
		announce: announce,
		schedule: schedule,
		logger:   logger,
	}, nil
}

// Start launches the background save loop.
func (a *Autosaver) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.done != nil {
		a.mu.Unlock()
		return fmt.Errorf("autosaver already started")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})
	a.mu.Unlock()

	go a.loop(loopCtx)
	a.logger.Info("autosaver started", slog.String("board_id", a.board.BoardID()))
	return nil
}

func (a *Autosaver) loop(ctx context.Context) {
	defer close(a.done)

	for {
		next := a.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			if err := a.SaveNow(ctx); err != nil {
				a.logger.Error("autosave failed",
					slog.String("board_id", a.board.BoardID()),
					slog.String("error", err.Error()))
			}
		}
	}
}

// SaveNow persists the current snapshot immediately. Unchanged boards are
// skipped; overlapping saves are deduplicated.
func (a *Autosaver) SaveNow(ctx context.Context) error {
	if !a.saving.CompareAndSwap(false, true) {
		return nil // a save is already in flight
	}
	defer a.saving.Store(false)

	ctx = logging.WithBoardID(ctx, a.board.BoardID())

	snapshot, err := json.Marshal(a.board.Snapshot())
	if err != nil {
		return fmt.Errorf("marshal board snapshot: %w", err)
	}
	if prev, ok := a.lastHash.Load().(string); ok && prev == string(snapshot) {
		a.skips.Add(1)
		return nil
	}

	now := time.Now().UTC()
	if err := a.store.SaveBoard(ctx, &store.BoardRecord{
		ID:        a.board.BoardID(),
		Name:      a.board.Name(),
		Snapshot:  snapshot,
		UpdatedAt: now,
	}); err != nil {
		return err
	}
	a.lastHash.Store(string(snapshot))
	a.saves.Add(1)

	if a.announce != nil {
		a.announce.Announce(ctx, schema.EventBoardSaved, map[string]any{"saved_at": now})
	}
	logging.LogWith(ctx, a.logger).Debug("board autosaved", slog.Int("bytes", len(snapshot)))
	return nil
}

// Stop shuts down the loop and flushes one final save.
func (a *Autosaver) Stop(ctx context.Context) error {
	a.mu.Lock()
	if a.cancel == nil {
		a.mu.Unlock()
		return nil
	}
	a.cancel()
	done := a.done
	a.cancel = nil
	a.done = nil
	a.mu.Unlock()

	<-done
	err := a.SaveNow(ctx)
	a.logger.Info("autosaver stopped", slog.String("board_id", a.board.BoardID()))
	return err
}

// Metrics reports save and skip counters.
func (a *Autosaver) Metrics() (saves, skips int64) {
	return a.saves.Load(), a.skips.Load()
}

package streaming

import (
	"context"
	"sync"
	"sync/atomic"
)

const (
	defaultChannelBuffer = 64

	// historyLimit caps the per-board replay window. A board's history is a
	// ring of its most recent events, enough to reconstruct current node
	// execution state for a subscriber that attaches mid-run.
	historyLimit = 256
)

type subscriber struct {
	ch     chan StreamEvent
	filter EventFilter
}

// MemoryHub is an in-memory EventHub implementation using channels. It keeps
// a bounded per-board history so subscribers can request replay of recent
// events via EventFilter.ReplayLast.
type MemoryHub struct {
	mu      sync.RWMutex
	subs    map[uint64]*subscriber
	history map[string][]StreamEvent
	seq     atomic.Uint64
}

// NewMemoryHub creates a new MemoryHub.
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{
		subs:    make(map[uint64]*subscriber),
		history: make(map[string][]StreamEvent),
	}
}

// Publish sends an event to all matching subscribers and records it in the
// board's replay window.
// Non-blocking: if a subscriber's channel is full the event is dropped.
func (h *MemoryHub) Publish(ctx context.Context, event StreamEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ring := append(h.history[event.BoardID], event)
	if len(ring) > historyLimit {
		ring = ring[len(ring)-historyLimit:]
	}
	h.history[event.BoardID] = ring

	for _, sub := range h.subs {
		if !matchFilter(sub.filter, event) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			// backpressure: drop event for slow subscriber
		}
	}
	return nil
}

// Subscribe creates a new subscription filtered by the given EventFilter.
// If the filter requests replay, the most recent matching events are queued
// on the channel before any live ones, oldest first.
// Returns a receive-only channel, a cancel function, and any error.
func (h *MemoryHub) Subscribe(ctx context.Context, filter EventFilter) (<-chan StreamEvent, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	id := h.seq.Add(1)
	ch := make(chan StreamEvent, defaultChannelBuffer)

	h.mu.Lock()
	for _, ev := range h.replayLocked(filter) {
		select {
		case ch <- ev:
		default:
		}
	}
	h.subs[id] = &subscriber{ch: ch, filter: filter}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}

	return ch, cancel, nil
}

// DropBoard discards the replay window of a board, for hosts that close one.
func (h *MemoryHub) DropBoard(boardID string) {
	h.mu.Lock()
	delete(h.history, boardID)
	h.mu.Unlock()
}

// replayLocked collects the tail of matching history for a subscription.
// Caller holds h.mu.
func (h *MemoryHub) replayLocked(filter EventFilter) []StreamEvent {
	if filter.ReplayLast <= 0 {
		return nil
	}

	var rings [][]StreamEvent
	if filter.BoardID != "" {
		rings = append(rings, h.history[filter.BoardID])
	} else {
		for _, ring := range h.history {
			rings = append(rings, ring)
		}
	}

	var matched []StreamEvent
	for _, ring := range rings {
		for _, ev := range ring {
			if matchFilter(filter, ev) {
				matched = append(matched, ev)
			}
		}
	}
	if len(matched) > filter.ReplayLast {
		matched = matched[len(matched)-filter.ReplayLast:]
	}
	return matched
}

func matchFilter(f EventFilter, e StreamEvent) bool {
	if f.BoardID != "" && f.BoardID != e.BoardID {
		return false
	}
	if f.NodeID != "" && f.NodeID != e.NodeID {
		return false
	}
	if len(f.EventTypes) > 0 {
		found := false
		for _, t := range f.EventTypes {
			if t == e.EventType {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

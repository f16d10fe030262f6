package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// PoolMetrics tracks dispatch pool operational counters.
type PoolMetrics struct {
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Panics    int64 `json:"panics"`
}

// ErrPoolShutdown is returned when a job is submitted to a shut-down pool.
var ErrPoolShutdown = errors.New("dispatch pool is shut down")

// DispatchPool is a bounded goroutine pool for concurrent generation jobs.
// Multiple nodes may run at once; the bound is backpressure against
// flooding the external generation services.
type DispatchPool struct {
	sem    chan struct{}
	wg     sync.WaitGroup
	active atomic.Int64
	done   atomic.Int64
	failed atomic.Int64
	panics atomic.Int64

	mu       sync.Mutex
	closed   bool
	shutdown chan struct{}
}

// NewDispatchPool creates a pool with the given max concurrency.
func NewDispatchPool(size int) *DispatchPool {
	if size <= 0 {
		size = 1
	}
	return &DispatchPool{
		sem:      make(chan struct{}, size),
		shutdown: make(chan struct{}),
	}
}

// Submit enqueues a job. It blocks while the pool is at capacity,
// respecting context cancellation, and returns ErrPoolShutdown once the
// pool has been shut down.
func (p *DispatchPool) Submit(ctx context.Context, fn func(ctx context.Context) error) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolShutdown
	}
	p.mu.Unlock()

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.shutdown:
		return ErrPoolShutdown
	}

	// Re-check closed after acquiring the slot; wg.Add must happen under
	// the lock so Shutdown's wg.Wait cannot race it.
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.sem
		return ErrPoolShutdown
	}
	p.wg.Add(1)
	p.active.Add(1)
	p.mu.Unlock()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.panics.Add(1)
				p.failed.Add(1)
			}
			p.active.Add(-1)
			<-p.sem
			p.wg.Done()
		}()

		if err := fn(ctx); err != nil {
			p.failed.Add(1)
		} else {
			p.done.Add(1)
		}
	}()

	return nil
}

// Wait blocks until all submitted jobs complete.
func (p *DispatchPool) Wait() {
	p.wg.Wait()
}

// Shutdown prevents new submissions and waits for active jobs to finish.
func (p *DispatchPool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.shutdown)
	p.mu.Unlock()

	p.wg.Wait()
}

// Metrics returns a snapshot of the pool counters.
func (p *DispatchPool) Metrics() PoolMetrics {
	return PoolMetrics{
		Active:    p.active.Load(),
		Completed: p.done.Load(),
		Failed:    p.failed.Load(),
		Panics:    p.panics.Load(),
	}
}

// Package pool keeps a bounded set of reusable transport handles and hands
// them out in FIFO order.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/dshills/vsbench/core"
)

// ErrNotOwned is returned when releasing a handle that is not checked out
var ErrNotOwned = errors.New("handle is not checked out from this pool")

// Handle is a pooled connection to the service
type Handle interface {
	comparable
	Health(ctx context.Context) error
	Close() error
}

// Factory builds one handle
type Factory[H Handle] func() (H, error)

// Options configures a pool
type Options struct {
	// AcquireTimeout bounds how long Acquire waits. Zero waits until the
	// caller's context is done.
	AcquireTimeout time.Duration
	// Warmup pings every handle once at construction.
	Warmup bool
}

// Stats is a snapshot of pool usage
type Stats struct {
	Capacity     int           `json:"capacity"`
	InUse        int           `json:"in_use"`
	Acquisitions int64         `json:"acquisitions"`
	Timeouts     int64         `json:"timeouts"`
	TotalWait    time.Duration `json:"total_wait"`
}

// Pool is a fixed-capacity pool of handles. Waiters are served in arrival
// order; a handle is owned by at most one caller at a time.
type Pool[H Handle] struct {
	capacity int
	options  Options
	sem      *semaphore.Weighted

	mu     sync.Mutex
	free   []H
	all    []H
	out    map[H]struct{}
	closed bool
	stats  Stats
}

// New creates a pool with capacity handles built up front by factory. If any
// handle fails to build or warm up, the handles built so far are closed and
// the error is returned.
func New[H Handle](ctx context.Context, capacity int, factory Factory[H], options Options) (*Pool[H], error) {
	if capacity <= 0 {
		return nil, core.ConfigErrorf("pool capacity must be positive, got %d", capacity)
	}

	p := &Pool[H]{
		capacity: capacity,
		options:  options,
		sem:      semaphore.NewWeighted(int64(capacity)),
		free:     make([]H, 0, capacity),
		all:      make([]H, 0, capacity),
		out:      make(map[H]struct{}, capacity),
		stats:    Stats{Capacity: capacity},
	}

	for i := 0; i < capacity; i++ {
		h, err := factory()
		if err == nil && options.Warmup {
			if err = h.Health(ctx); err != nil {
				_ = h.Close()
			}
		}
		if err != nil {
			if closeErr := p.closeAll(); closeErr != nil {
				err = multierror.Append(err, closeErr)
			}
			return nil, fmt.Errorf("failed to build pooled handle %d: %w", i, err)
		}
		p.all = append(p.all, h)
		p.free = append(p.free, h)
	}

	log.WithFields(log.Fields{
		"capacity": capacity,
		"warmup":   options.Warmup,
	}).Debug("Connection pool ready")

	return p, nil
}

// Capacity returns the number of handles in the pool
func (p *Pool[H]) Capacity() int {
	return p.capacity
}

// Acquire takes a free handle, waiting in FIFO order when none is free. It
// returns core.ErrPoolTimeout once AcquireTimeout elapses and
// core.ErrPoolClosed after Shutdown. If ctx ends first, ctx's error is
// returned.
func (p *Pool[H]) Acquire(ctx context.Context) (H, error) {
	var zero H

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return zero, core.ErrPoolClosed
	}

	waitCtx := ctx
	if p.options.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, p.options.AcquireTimeout)
		defer cancel()
	}

	start := time.Now()
	err := p.sem.Acquire(waitCtx, 1)
	waited := time.Since(start)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.TotalWait += waited

	if err != nil {
		switch {
		case p.closed:
			return zero, core.ErrPoolClosed
		case ctx.Err() != nil:
			return zero, ctx.Err()
		default:
			p.stats.Timeouts++
			return zero, fmt.Errorf("waited %s: %w", waited.Round(time.Millisecond), core.ErrPoolTimeout)
		}
	}

	if p.closed {
		p.sem.Release(1)
		return zero, core.ErrPoolClosed
	}

	h := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	p.out[h] = struct{}{}
	p.stats.Acquisitions++
	return h, nil
}

// Release returns a handle to the pool. The handle is never closed here.
func (p *Pool[H]) Release(h H) error {
	p.mu.Lock()
	if _, ok := p.out[h]; !ok {
		p.mu.Unlock()
		return ErrNotOwned
	}
	delete(p.out, h)
	p.free = append(p.free, h)
	p.mu.Unlock()

	p.sem.Release(1)
	return nil
}

// WithHandle runs fn with an acquired handle and releases it on every exit
// path, panics included.
func (p *Pool[H]) WithHandle(ctx context.Context, fn func(H) error) error {
	h, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer p.Release(h)

	return fn(h)
}

// Stats returns a snapshot of pool usage
func (p *Pool[H]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.stats
	s.InUse = len(p.out)
	return s
}

// Shutdown refuses new acquisitions, waits for outstanding handles to come
// back and closes every handle. If ctx ends before all handles return, the
// handles still out are closed anyway and ctx's error is reported along with
// any close errors.
func (p *Pool[H]) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	var result error
	drained := p.sem.Acquire(ctx, int64(p.capacity)) == nil
	if !drained {
		result = multierror.Append(result, fmt.Errorf("waiting for handles: %w", ctx.Err()))
	}

	p.mu.Lock()
	outstanding := len(p.out)
	if err := p.closeAll(); err != nil {
		result = multierror.Append(result, err)
	}
	p.mu.Unlock()

	// wake queued waiters so they observe the closed pool
	if drained {
		p.sem.Release(int64(p.capacity))
	}

	log.WithFields(log.Fields{
		"capacity":    p.capacity,
		"outstanding": outstanding,
	}).Debug("Connection pool shut down")

	return result
}

func (p *Pool[H]) closeAll() error {
	var result error
	for _, h := range p.all {
		if err := h.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	p.all = nil
	p.free = nil
	return result
}

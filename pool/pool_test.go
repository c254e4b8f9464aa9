package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/vsbench/core"
)

type fakeHandle struct {
	id        int
	healthErr error
	closeErr  error
	closed    atomic.Bool
	pings     atomic.Int32
}

func (f *fakeHandle) Health(ctx context.Context) error {
	f.pings.Add(1)
	return f.healthErr
}

func (f *fakeHandle) Close() error {
	f.closed.Store(true)
	return f.closeErr
}

type fakeFactory struct {
	mu     sync.Mutex
	built  []*fakeHandle
	failAt int
	mutate func(*fakeHandle)
}

func (f *fakeFactory) build() (*fakeHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failAt > 0 && len(f.built)+1 == f.failAt {
		return nil, errors.New("dial refused")
	}
	h := &fakeHandle{id: len(f.built)}
	if f.mutate != nil {
		f.mutate(h)
	}
	f.built = append(f.built, h)
	return h, nil
}

func newTestPool(t *testing.T, capacity int, opts Options) (*Pool[*fakeHandle], *fakeFactory) {
	t.Helper()
	factory := &fakeFactory{}
	p, err := New[*fakeHandle](context.Background(), capacity, factory.build, opts)
	require.NoError(t, err)
	return p, factory
}

func TestPoolCapacity(t *testing.T) {
	p, _ := newTestPool(t, 3, Options{AcquireTimeout: 50 * time.Millisecond})
	ctx := context.Background()

	held := make(map[*fakeHandle]bool)
	for i := 0; i < 3; i++ {
		h, err := p.Acquire(ctx)
		require.NoError(t, err)
		assert.False(t, held[h], "handle handed out twice")
		held[h] = true
	}
	assert.Equal(t, 3, p.Stats().InUse)

	_, err := p.Acquire(ctx)
	assert.ErrorIs(t, err, core.ErrPoolTimeout)
	assert.NotErrorIs(t, err, core.ErrPoolClosed)
	assert.Equal(t, int64(1), p.Stats().Timeouts)

	for h := range held {
		require.NoError(t, p.Release(h))
	}
	assert.Equal(t, 0, p.Stats().InUse)
}

func TestPoolNeverExceedsCapacity(t *testing.T) {
	const capacity = 4
	p, _ := newTestPool(t, capacity, Options{})
	ctx := context.Background()

	var (
		inUse   atomic.Int32
		maxSeen atomic.Int32
		wg      sync.WaitGroup
	)
	for w := 0; w < 32; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				err := p.WithHandle(ctx, func(h *fakeHandle) error {
					n := inUse.Add(1)
					for {
						m := maxSeen.Load()
						if n <= m || maxSeen.CompareAndSwap(m, n) {
							break
						}
					}
					time.Sleep(100 * time.Microsecond)
					inUse.Add(-1)
					return nil
				})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, maxSeen.Load(), int32(capacity))
	assert.Equal(t, int64(32*20), p.Stats().Acquisitions)
}

func TestPoolServesWaitersInArrivalOrder(t *testing.T) {
	p, _ := newTestPool(t, 1, Options{AcquireTimeout: 5 * time.Second})
	ctx := context.Background()

	held, err := p.Acquire(ctx)
	require.NoError(t, err)

	const waiters = 5
	var (
		mu    sync.Mutex
		order []int
		wg    sync.WaitGroup
	)
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := p.Acquire(ctx)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			assert.NoError(t, p.Release(h))
		}(i)
		// Let waiter i queue up before waiter i+1 arrives
		time.Sleep(20 * time.Millisecond)
	}

	require.NoError(t, p.Release(held))
	wg.Wait()

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestPoolWithHandleReleasesOnPanic(t *testing.T) {
	p, _ := newTestPool(t, 1, Options{AcquireTimeout: 50 * time.Millisecond})
	ctx := context.Background()

	assert.Panics(t, func() {
		_ = p.WithHandle(ctx, func(h *fakeHandle) error {
			panic("boom")
		})
	})

	h, err := p.Acquire(ctx)
	require.NoError(t, err)
	require.NoError(t, p.Release(h))
}

func TestPoolReleaseNotOwned(t *testing.T) {
	p, _ := newTestPool(t, 1, Options{})

	h, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, p.Release(h))
	assert.ErrorIs(t, p.Release(h), ErrNotOwned)
	assert.ErrorIs(t, p.Release(&fakeHandle{}), ErrNotOwned)
}

func TestPoolAcquireAfterShutdown(t *testing.T) {
	p, factory := newTestPool(t, 2, Options{})

	require.NoError(t, p.Shutdown(context.Background()))

	_, err := p.Acquire(context.Background())
	assert.ErrorIs(t, err, core.ErrPoolClosed)
	assert.ErrorIs(t, err, core.ErrPoolTimeout)

	for _, h := range factory.built {
		assert.True(t, h.closed.Load())
	}

	// idempotent
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestPoolShutdownWaitsForOutstanding(t *testing.T) {
	p, factory := newTestPool(t, 2, Options{})
	ctx := context.Background()

	h, err := p.Acquire(ctx)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- p.Shutdown(ctx) }()

	select {
	case <-done:
		t.Fatal("shutdown returned while a handle was still out")
	case <-time.After(30 * time.Millisecond):
	}
	assert.False(t, h.closed.Load())

	require.NoError(t, p.Release(h))
	require.NoError(t, <-done)

	for _, built := range factory.built {
		assert.True(t, built.closed.Load())
	}
}

func TestPoolShutdownWakesWaiters(t *testing.T) {
	p, _ := newTestPool(t, 1, Options{})
	ctx := context.Background()

	h, err := p.Acquire(ctx)
	require.NoError(t, err)

	waiter := make(chan error, 1)
	go func() {
		_, err := p.Acquire(ctx)
		waiter <- err
	}()
	time.Sleep(10 * time.Millisecond)

	shutdown := make(chan error, 1)
	go func() { shutdown <- p.Shutdown(ctx) }()
	time.Sleep(10 * time.Millisecond)

	require.NoError(t, p.Release(h))
	assert.ErrorIs(t, <-waiter, core.ErrPoolClosed)
	assert.NoError(t, <-shutdown)
}

func TestPoolShutdownDeadline(t *testing.T) {
	p, _ := newTestPool(t, 1, Options{})

	_, err := p.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = p.Shutdown(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPoolCallerCancellation(t *testing.T) {
	p, _ := newTestPool(t, 1, Options{})

	_, err := p.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(0), p.Stats().Timeouts)
}

func TestPoolWarmup(t *testing.T) {
	factory := &fakeFactory{}
	p, err := New[*fakeHandle](context.Background(), 3, factory.build, Options{Warmup: true})
	require.NoError(t, err)
	defer p.Shutdown(context.Background())

	for _, h := range factory.built {
		assert.Equal(t, int32(1), h.pings.Load())
	}
}

func TestPoolConstructionFailureClosesBuilt(t *testing.T) {
	factory := &fakeFactory{failAt: 3}
	_, err := New[*fakeHandle](context.Background(), 4, factory.build, Options{})
	require.Error(t, err)

	require.Len(t, factory.built, 2)
	for _, h := range factory.built {
		assert.True(t, h.closed.Load())
	}

	unhealthy := &fakeFactory{mutate: func(h *fakeHandle) { h.healthErr = errors.New("unhealthy") }}
	_, err = New[*fakeHandle](context.Background(), 2, unhealthy.build, Options{Warmup: true})
	require.Error(t, err)
	for _, h := range unhealthy.built {
		assert.True(t, h.closed.Load())
	}

	_, err = New[*fakeHandle](context.Background(), 0, factory.build, Options{})
	assert.True(t, core.IsConfigError(err))
}

func TestPoolShutdownAggregatesCloseErrors(t *testing.T) {
	factory := &fakeFactory{mutate: func(h *fakeHandle) { h.closeErr = errors.New("close failed") }}
	p, err := New[*fakeHandle](context.Background(), 2, factory.build, Options{})
	require.NoError(t, err)

	err = p.Shutdown(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 errors occurred")
}

// Package dispatch fans a list of work items out across a fixed set of
// workers. Each worker borrows a pooled handle per item, so the number of
// calls in flight never exceeds min(concurrency, pool capacity).
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/vsbench/core"
	"github.com/dshills/vsbench/metrics"
)

// State is the final state of a work item
type State int

const (
	StateSucceeded State = iota
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Pool hands out transport handles
type Pool[H any] interface {
	Acquire(ctx context.Context) (H, error)
	Release(h H) error
}

// Recorder receives one sample per dispatched item
type Recorder interface {
	Record(metrics.Sample)
}

// Config controls a dispatch run
type Config struct {
	Concurrency int
	Kind        metrics.Kind
}

// Outcome is the result of one work item. Index is the item's position in
// the input slice.
type Outcome[R any] struct {
	Index  int
	Value  R
	Err    error
	State  State
	Sample metrics.Sample
}

// Run applies fn to every item using cfg.Concurrency workers and returns one
// outcome per item, in input order. Each item is processed at most once.
//
// Cancelling ctx stops new items from starting. Calls already in flight run
// to completion under their own transport timeout and are recorded as usual;
// items never started come back as StateCancelled with no sample.
func Run[T, R, H any](
	ctx context.Context,
	cfg Config,
	pool Pool[H],
	rec Recorder,
	items []T,
	fn func(ctx context.Context, h H, item T) (R, error),
) []Outcome[R] {
	outcomes := make([]Outcome[R], len(items))
	if len(items) == 0 {
		return outcomes
	}

	workers := cfg.Concurrency
	if workers < 1 {
		workers = 1
	}
	if workers > len(items) {
		workers = len(items)
	}

	queue := make(chan int, len(items))
	for i := range items {
		queue <- i
	}
	close(queue)

	results := make(chan Outcome[R], workers)
	callCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for i := range queue {
				if err := ctx.Err(); err != nil {
					results <- Outcome[R]{Index: i, Err: err, State: StateCancelled}
					continue
				}
				results <- process(ctx, callCtx, cfg.Kind, pool, rec, i, items[i], fn)
			}
			return nil
		})
	}

	// Workers report failures through outcomes and never return an error
	go func() {
		_ = g.Wait()
		close(results)
	}()

	for o := range results {
		outcomes[o.Index] = o
	}
	return outcomes
}

func process[T, R, H any](
	ctx, callCtx context.Context,
	kind metrics.Kind,
	pool Pool[H],
	rec Recorder,
	i int,
	item T,
	fn func(ctx context.Context, h H, item T) (R, error),
) Outcome[R] {
	out := Outcome[R]{Index: i}

	acquireStart := time.Now()
	h, err := pool.Acquire(ctx)
	if err != nil {
		if !errors.Is(err, core.ErrPoolTimeout) && ctx.Err() != nil {
			out.Err = err
			out.State = StateCancelled
			return out
		}
		out.Err = fmt.Errorf("acquiring connection: %w", err)
		out.State = StateFailed
		out.Sample = metrics.NewSample(kind, acquireStart, time.Now(), err)
		rec.Record(out.Sample)
		return out
	}

	start := time.Now()
	out.Value, out.Err = call(callCtx, pool, h, item, fn)
	out.Sample = metrics.NewSample(kind, start, time.Now(), out.Err)
	rec.Record(out.Sample)

	if out.Err != nil {
		out.State = StateFailed
		log.WithFields(log.Fields{
			"kind":  kind,
			"index": i,
			"code":  out.Sample.Code,
		}).WithError(out.Err).Debug("Call failed")
	}
	return out
}

// call runs fn and always returns the handle, converting a panic into an
// error so the item still yields exactly one outcome.
func call[T, R, H any](
	ctx context.Context,
	pool Pool[H],
	h H,
	item T,
	fn func(ctx context.Context, h H, item T) (R, error),
) (value R, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("call panicked: %v", r)
		}
		if releaseErr := pool.Release(h); releaseErr != nil && err == nil {
			err = releaseErr
		}
	}()
	return fn(ctx, h, item)
}

// Summary counts outcomes by state
type Summary struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}

// Summarize counts outcomes by state
func Summarize[R any](outcomes []Outcome[R]) Summary {
	var s Summary
	for _, o := range outcomes {
		switch o.State {
		case StateSucceeded:
			s.Succeeded++
		case StateFailed:
			s.Failed++
		case StateCancelled:
			s.Cancelled++
		}
	}
	return s
}

// FirstError returns the error of the first failed outcome, if any
func FirstError[R any](outcomes []Outcome[R]) error {
	for _, o := range outcomes {
		if o.State == StateFailed {
			return o.Err
		}
	}
	return nil
}

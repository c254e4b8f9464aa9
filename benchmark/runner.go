// Package benchmark runs a benchmark scenario against the vector search
// service phase by phase and reports per-phase statistics.
package benchmark

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/dshills/vsbench/client"
	"github.com/dshills/vsbench/config"
	"github.com/dshills/vsbench/core"
	"github.com/dshills/vsbench/dispatch"
	"github.com/dshills/vsbench/metrics"
	"github.com/dshills/vsbench/pool"
	"github.com/dshills/vsbench/workload"
)

// Phase names used in reports
const (
	PhaseCreate         = "create"
	PhaseIngest         = "ingest"
	PhaseSearch         = "search"
	PhaseSave           = "save"
	PhaseDelete         = "delete"
	PhaseLoad           = "load"
	PhaseReloadSearch   = "search_after_load"
	PhaseDeleteFromDisk = "delete_from_disk"
	PhaseCleanup        = "cleanup"
)

const shutdownTimeout = 10 * time.Second

// Option configures a Runner
type Option func(*Runner)

// WithObservers forwards every recorded sample to the given observers
func WithObservers(observers ...metrics.Observer) Option {
	return func(r *Runner) {
		r.observers = append(r.observers, observers...)
	}
}

// WithGenerator replaces the generator built from the scenario workload
func WithGenerator(g *workload.Generator) Option {
	return func(r *Runner) {
		r.generator = g
	}
}

// Runner executes one scenario. A Runner is single use.
type Runner struct {
	scenario  config.Scenario
	observers []metrics.Observer
	generator *workload.Generator
	agg       *metrics.Aggregator
}

// NewRunner creates a runner for scenario
func NewRunner(scenario config.Scenario, opts ...Option) *Runner {
	r := &Runner{scenario: scenario}
	for _, opt := range opts {
		opt(r)
	}
	r.agg = metrics.NewAggregator(r.observers...)
	return r
}

// workloadSet is everything generated before the first phase
type workloadSet struct {
	batches []core.VectorBatch
	queries []core.SearchQuery
	filters []core.FilterExpression
}

// Run executes the scenario. Configuration errors are returned before any
// request is sent, with a nil report. Otherwise the report is always
// returned; it holds every completed phase, and when a fatal phase fails or
// ctx is cancelled it is marked aborted and the cause is also returned.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	s := r.scenario
	if err := s.Validate(); err != nil {
		return nil, err
	}

	work, err := r.prepare()
	if err != nil {
		return nil, err
	}

	report := &Report{
		RunID:    uuid.New().String(),
		Scenario: s,
		Start:    time.Now(),
	}
	defer func() { report.End = time.Now() }()

	logger := log.WithFields(log.Fields{
		"run_id":   report.RunID,
		"scenario": s.Name,
		"index":    s.Index.Name,
	})
	logger.WithFields(log.Fields{
		"batches": len(work.batches),
		"queries": len(work.queries),
		"filters": len(work.filters),
	}).Info("Starting benchmark")

	cl, err := client.New(s.Client)
	if err != nil {
		return report, report.abort(err)
	}

	conns, err := pool.New[*client.Conn](ctx, s.PoolSize(), cl.NewConn, pool.Options{
		AcquireTimeout: s.Pool.AcquireTimeout,
		Warmup:         s.Pool.Warmup,
	})
	if err != nil {
		return report, report.abort(fmt.Errorf("building connection pool: %w", err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		report.Pool = conns.Stats()
		if err := conns.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Connection pool shutdown failed")
		}
	}()

	e := &executor{runner: r, pool: conns, report: report, logger: logger}
	name := s.Index.Name

	// A rejected create aborts the run
	if err := e.single(ctx, PhaseCreate, metrics.KindCreate, func(ctx context.Context, c *client.Conn) error {
		return c.CreateIndex(ctx, s.Index)
	}); err != nil {
		return report, err
	}

	if err := e.ingest(ctx, work.batches); err != nil {
		return report, err
	}

	for _, filter := range work.filters {
		if err := e.search(ctx, PhaseSearch, filter, work.queries); err != nil {
			return report, err
		}
	}

	if s.Lifecycle {
		steps := []struct {
			phase string
			kind  metrics.Kind
			call  func(ctx context.Context, c *client.Conn) error
		}{
			{PhaseSave, metrics.KindSave, func(ctx context.Context, c *client.Conn) error { return c.SaveIndex(ctx, name) }},
			{PhaseDelete, metrics.KindDelete, func(ctx context.Context, c *client.Conn) error { return c.DeleteIndex(ctx, name) }},
			{PhaseLoad, metrics.KindLoad, func(ctx context.Context, c *client.Conn) error { return c.LoadIndex(ctx, name) }},
		}
		for _, step := range steps {
			if err := e.single(ctx, step.phase, step.kind, step.call); err != nil {
				return report, err
			}
		}

		if err := e.search(ctx, PhaseReloadSearch, core.FilterExpression{Label: workload.FilterNone}, work.queries); err != nil {
			return report, err
		}

		if err := e.single(ctx, PhaseDelete, metrics.KindDelete, func(ctx context.Context, c *client.Conn) error {
			return c.DeleteIndex(ctx, name)
		}); err != nil {
			return report, err
		}
		if err := e.single(ctx, PhaseDeleteFromDisk, metrics.KindDeleteFromDisk, func(ctx context.Context, c *client.Conn) error {
			return c.DeleteIndexFromDisk(ctx, name)
		}); err != nil {
			return report, err
		}
	} else if s.Cleanup {
		// A failed cleanup is reported but does not abort the run
		_ = e.single(ctx, PhaseCleanup, metrics.KindDelete, func(ctx context.Context, c *client.Conn) error {
			return c.DeleteIndex(ctx, name)
		})
		if err := ctx.Err(); err != nil {
			return report, report.abort(err)
		}
	}

	logger.WithField("phases", len(report.Phases)).Info("Benchmark complete")
	return report, nil
}

// prepare generates and validates every batch and query up front so that a
// vector of the wrong length is a configuration error, not a failed call.
func (r *Runner) prepare() (*workloadSet, error) {
	s := r.scenario

	gen := r.generator
	if gen == nil {
		var err error
		gen, err = workload.NewGenerator(s.GeneratorConfig())
		if err != nil {
			return nil, err
		}
	}

	batches, err := gen.GenerateBatches(s.Ingest.Batches, s.Ingest.BatchSize)
	if err != nil {
		return nil, err
	}
	for i, b := range batches {
		if err := core.ValidateBatch(b, s.Index.Dimension); err != nil {
			return nil, fmt.Errorf("batch %d: %w", i, err)
		}
	}

	queries, err := gen.GenerateQueries(s.Search.Queries, s.Search.K, s.Search.EfSearch, s.Search.ReturnMetadata)
	if err != nil {
		return nil, err
	}
	for i, q := range queries {
		if err := core.ValidateQuery(q, s.Index.Dimension); err != nil {
			return nil, fmt.Errorf("query %d: %w", i, err)
		}
	}

	catalog := gen.Filters()
	var filters []core.FilterExpression
	for _, label := range s.FilterLabels() {
		for _, f := range catalog {
			if f.Label == label {
				filters = append(filters, f)
			}
		}
	}

	return &workloadSet{batches: batches, queries: queries, filters: filters}, nil
}

// executor runs phases against a shared pool and appends them to a report
type executor struct {
	runner *Runner
	pool   *pool.Pool[*client.Conn]
	report *Report
	logger *log.Entry
}

// single runs one fatal call as its own phase
func (e *executor) single(ctx context.Context, phase string, kind metrics.Kind, call func(context.Context, *client.Conn) error) error {
	items := []struct{}{{}}
	outcomes := dispatch.Run(ctx, dispatch.Config{Concurrency: 1, Kind: kind}, e.pool, e.runner.agg, items,
		func(ctx context.Context, c *client.Conn, _ struct{}) (struct{}, error) {
			return struct{}{}, call(ctx, c)
		})

	pr := finishPhase(e, phase, kind, "", outcomes)
	if err := ctx.Err(); err != nil {
		return e.report.abort(err)
	}
	if err := dispatch.FirstError(outcomes); err != nil {
		return e.report.abort(fmt.Errorf("%s failed: %w", pr.Name, err))
	}
	return nil
}

// ingest adds every batch with the ingest concurrency. Failed batches are
// recorded as failed samples.
func (e *executor) ingest(ctx context.Context, batches []core.VectorBatch) error {
	s := e.runner.scenario
	outcomes := dispatch.Run(ctx, dispatch.Config{Concurrency: s.Ingest.Concurrency, Kind: metrics.KindAdd}, e.pool, e.runner.agg, batches,
		func(ctx context.Context, c *client.Conn, b core.VectorBatch) (struct{}, error) {
			return struct{}{}, c.AddDocuments(ctx, s.Index.Name, b)
		})

	finishPhase(e, PhaseIngest, metrics.KindAdd, "", outcomes)
	if err := ctx.Err(); err != nil {
		return e.report.abort(err)
	}
	return nil
}

// search runs every query with filter applied
func (e *executor) search(ctx context.Context, phase string, filter core.FilterExpression, queries []core.SearchQuery) error {
	s := e.runner.scenario
	filtered := workload.WithFilter(queries, filter)
	outcomes := dispatch.Run(ctx, dispatch.Config{Concurrency: s.Search.Concurrency, Kind: metrics.KindSearch}, e.pool, e.runner.agg, filtered,
		func(ctx context.Context, c *client.Conn, q core.SearchQuery) (int, error) {
			res, err := c.Search(ctx, s.Index.Name, q)
			return len(res.Hits), err
		})

	pr := finishPhase(e, phase, metrics.KindSearch, filter.Label, outcomes)
	if pr.Succeeded > 0 {
		var hits int
		for _, o := range outcomes {
			hits += o.Value
		}
		e.report.Phases[len(e.report.Phases)-1].AvgHits = float64(hits) / float64(pr.Succeeded)
	}

	if err := ctx.Err(); err != nil {
		return e.report.abort(err)
	}
	return nil
}

// finishPhase closes a phase: it summarizes the phase samples, appends the phase
// report and resets the aggregator for the next phase.
func finishPhase[R any](e *executor, phase string, kind metrics.Kind, filter string, outcomes []dispatch.Outcome[R]) PhaseReport {
	pr := PhaseReport{
		Name:    phase,
		Kind:    kind,
		Filter:  filter,
		Summary: dispatch.Summarize(outcomes),
	}

	stats, err := e.runner.agg.Summarize(kind)
	switch {
	case err == nil:
		pr.Stats = &stats
	case !errors.Is(err, core.ErrEmptyMetrics):
		e.logger.WithError(err).Warn("Failed to summarize phase")
	}
	e.runner.agg.Reset()

	if err := dispatch.FirstError(outcomes); err != nil {
		pr.Err = err.Error()
	}

	fields := log.Fields{
		"phase":     phase,
		"succeeded": pr.Succeeded,
		"failed":    pr.Failed,
		"cancelled": pr.Cancelled,
	}
	if filter != "" {
		fields["filter"] = filter
	}
	if pr.Stats != nil {
		fields["p50"] = pr.Stats.P50Latency
		fields["p99"] = pr.Stats.P99Latency
		fields["throughput"] = fmt.Sprintf("%.1f/s", pr.Stats.Throughput)
	}
	entry := e.logger.WithFields(fields)
	if pr.Failed > 0 {
		entry.WithField("first_error", pr.Err).Warn("Phase finished with failures")
	} else {
		entry.Info("Phase finished")
	}

	e.report.Phases = append(e.report.Phases, pr)
	return pr
}

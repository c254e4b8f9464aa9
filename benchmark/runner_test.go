package benchmark

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/vsbench/client"
	"github.com/dshills/vsbench/config"
	"github.com/dshills/vsbench/core"
	"github.com/dshills/vsbench/metrics"
	"github.com/dshills/vsbench/mockserver"
	"github.com/dshills/vsbench/persistence"
	"github.com/dshills/vsbench/workload"
)

func newService(t *testing.T, cfg mockserver.ServerConfig) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(mockserver.NewServer(persistence.NewMemoryStore(), cfg))
	t.Cleanup(srv.Close)
	return srv
}

func testScenario(baseURL string) config.Scenario {
	seed := int64(7)

	s := config.DefaultScenario()
	s.Name = "test"
	s.Client.BaseURL = baseURL
	s.Index = core.IndexConfig{
		Name:      "bench",
		Dimension: 8,
		Kind:      core.IndexFlat,
		Space:     core.SpaceIP,
	}
	s.Workload.Seed = &seed
	s.Workload.WithMetadata = true
	s.Ingest = config.IngestConfig{Batches: 5, BatchSize: 20, Concurrency: 3}
	s.Search = config.SearchConfig{Queries: 30, K: 5, Concurrency: 4, Filters: []string{workload.FilterNone}}
	s.Pool = config.PoolConfig{AcquireTimeout: 5 * time.Second, Warmup: true}
	s.Lifecycle = false
	s.Cleanup = false
	return s
}

func newTestConn(t *testing.T, baseURL string) *client.Conn {
	t.Helper()
	cfg := client.DefaultConfig()
	cfg.BaseURL = baseURL
	cl, err := client.New(cfg)
	require.NoError(t, err)
	conn, err := cl.NewConn()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

type countingObserver struct {
	mu     sync.Mutex
	counts map[metrics.Kind]int
}

func (o *countingObserver) Observe(s metrics.Sample) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.counts == nil {
		o.counts = make(map[metrics.Kind]int)
	}
	o.counts[s.Kind]++
}

func TestRunFullScenario(t *testing.T) {
	wires := []struct {
		name string
		wire client.Wire
	}{
		{"camel string", client.Wire{Naming: client.NamingCamel, Filter: client.FilterString}},
		{"snake structured", client.Wire{Naming: client.NamingSnake, Filter: client.FilterStructured}},
	}

	for _, tt := range wires {
		t.Run(tt.name, func(t *testing.T) {
			srv := newService(t, mockserver.DefaultServerConfig())

			s := testScenario(srv.URL)
			s.Client.Wire = tt.wire
			s.Search.Filters = []string{config.FilterAll}
			s.Lifecycle = true

			obs := &countingObserver{}
			report, err := NewRunner(s, WithObservers(obs)).Run(context.Background())
			require.NoError(t, err)
			require.NotNil(t, report)

			assert.False(t, report.Aborted)
			assert.NotEmpty(t, report.RunID)
			assert.False(t, report.End.Before(report.Start))

			var names []string
			for _, p := range report.Phases {
				names = append(names, p.Name)
				assert.Zero(t, p.Failed, "phase %s/%s: %s", p.Name, p.Filter, p.Err)
			}
			assert.Equal(t, []string{
				PhaseCreate, PhaseIngest,
				PhaseSearch, PhaseSearch, PhaseSearch, PhaseSearch, PhaseSearch, PhaseSearch,
				PhaseSave, PhaseDelete, PhaseLoad, PhaseReloadSearch, PhaseDelete, PhaseDeleteFromDisk,
			}, names)

			ingest, ok := report.Phase(PhaseIngest, "")
			require.True(t, ok)
			require.NotNil(t, ingest.Stats)
			assert.Equal(t, 5, ingest.Stats.Successes)

			// 100 documents, ids 0..99, k=5
			expectedHits := map[string]float64{
				workload.FilterNone:        5,
				workload.FilterExact:       1,
				workload.FilterGreaterThan: 5,
				workload.FilterLessThan:    5,
				workload.FilterAnd:         5,
				workload.FilterOr:          2,
			}
			for label, hits := range expectedHits {
				p, ok := report.Phase(PhaseSearch, label)
				require.True(t, ok, label)
				assert.Equal(t, 30, p.Succeeded, label)
				assert.Equal(t, hits, p.AvgHits, label)
			}

			reloaded, ok := report.Phase(PhaseReloadSearch, workload.FilterNone)
			require.True(t, ok)
			assert.Equal(t, 5.0, reloaded.AvgHits)

			obs.mu.Lock()
			assert.Equal(t, 5, obs.counts[metrics.KindAdd])
			assert.Equal(t, 7*30, obs.counts[metrics.KindSearch])
			assert.Equal(t, 2, obs.counts[metrics.KindDelete])
			obs.mu.Unlock()

			names, err = newTestConn(t, srv.URL).ListIndices(context.Background())
			require.NoError(t, err)
			assert.Empty(t, names)
		})
	}
}

func TestRunCleanup(t *testing.T) {
	srv := newService(t, mockserver.DefaultServerConfig())

	s := testScenario(srv.URL)
	s.Cleanup = true

	report, err := NewRunner(s).Run(context.Background())
	require.NoError(t, err)

	last := report.Phases[len(report.Phases)-1]
	assert.Equal(t, PhaseCleanup, last.Name)
	assert.Equal(t, 1, last.Succeeded)

	names, err := newTestConn(t, srv.URL).ListIndices(context.Background())
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestInnerProductRankingEndToEnd(t *testing.T) {
	srv := newService(t, mockserver.DefaultServerConfig())
	conn := newTestConn(t, srv.URL)
	ctx := context.Background()

	cfg := core.IndexConfig{Name: "rank", Dimension: 4, Kind: core.IndexApproximate, Space: core.SpaceIP, M: 16, EfConstruction: 200}
	require.NoError(t, conn.CreateIndex(ctx, cfg))

	batch := make(core.VectorBatch, 4)
	for i := range batch {
		v := float32(i + 1)
		batch[i] = core.Document{ID: int64(i), Vector: []float32{v, v, v, v}}
	}
	require.NoError(t, conn.AddDocuments(ctx, "rank", batch))

	res, err := conn.Search(ctx, "rank", core.SearchQuery{Vector: []float32{1, 1, 1, 1}, K: 4})
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 2, 1, 0}, res.Hits)
	assert.Equal(t, []float32{-15, -11, -7, -3}, res.Distances)
}

func TestRunThroughputBound(t *testing.T) {
	const (
		latency     = 20 * time.Millisecond
		queries     = 40
		concurrency = 4
	)

	cfg := mockserver.DefaultServerConfig()
	cfg.Latency = latency
	srv := newService(t, cfg)

	s := testScenario(srv.URL)
	s.Ingest = config.IngestConfig{Batches: 1, BatchSize: 10, Concurrency: 1}
	s.Search.Queries = queries
	s.Search.Concurrency = concurrency
	s.Pool.Size = concurrency

	report, err := NewRunner(s).Run(context.Background())
	require.NoError(t, err)

	p, ok := report.Phase(PhaseSearch, workload.FilterNone)
	require.True(t, ok)
	require.NotNil(t, p.Stats)
	assert.Equal(t, queries, p.Stats.Successes)

	minWall := time.Duration(queries/concurrency) * latency
	assert.GreaterOrEqual(t, p.Stats.WallTime, minWall)
	assert.GreaterOrEqual(t, p.Stats.MinLatency, latency)

	ideal := float64(concurrency) / latency.Seconds()
	assert.InDelta(t, ideal, p.Stats.Throughput, ideal*0.25)
}

func TestRunRecordsCallFailures(t *testing.T) {
	cfg := mockserver.DefaultServerConfig()
	cfg.FailEvery = 3
	srv := newService(t, cfg)

	s := testScenario(srv.URL)
	s.Ingest = config.IngestConfig{Batches: 6, BatchSize: 10, Concurrency: 2}
	s.Search.Queries = 9

	report, err := NewRunner(s).Run(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Aborted)

	// Requests are numbered from 1: create, six adds, nine searches
	ingest, ok := report.Phase(PhaseIngest, "")
	require.True(t, ok)
	assert.Equal(t, 2, ingest.Failed)
	assert.Equal(t, 4, ingest.Succeeded)
	require.NotNil(t, ingest.Stats)
	assert.Equal(t, map[metrics.Code]int{metrics.CodeAPI: 2}, ingest.Stats.FailuresByCode)
	assert.Contains(t, ingest.Err, "503")

	search, ok := report.Phase(PhaseSearch, workload.FilterNone)
	require.True(t, ok)
	assert.Equal(t, 3, search.Failed)
	assert.Equal(t, 6, search.Stats.Successes)
}

func TestRunAbortsWhenCreateFails(t *testing.T) {
	srv := newService(t, mockserver.DefaultServerConfig())
	s := testScenario(srv.URL)

	// The index already exists, so create is rejected
	require.NoError(t, newTestConn(t, srv.URL).CreateIndex(context.Background(), s.Index))

	report, err := NewRunner(s).Run(context.Background())
	require.Error(t, err)
	require.NotNil(t, report)

	var apiErr *core.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)

	assert.True(t, report.Aborted)
	assert.Equal(t, err, report.Cause)
	require.Len(t, report.Phases, 1)
	assert.Equal(t, PhaseCreate, report.Phases[0].Name)
	assert.Equal(t, 1, report.Phases[0].Failed)
}

func TestRunAbortsWhenLifecycleStepFails(t *testing.T) {
	cfg := mockserver.DefaultServerConfig()
	// create, one add, one search, then save is the fourth request
	cfg.FailEvery = 4
	srv := newService(t, cfg)

	s := testScenario(srv.URL)
	s.Ingest = config.IngestConfig{Batches: 1, BatchSize: 10, Concurrency: 1}
	s.Search.Queries = 1
	s.Lifecycle = true

	report, err := NewRunner(s).Run(context.Background())
	require.Error(t, err)
	assert.True(t, report.Aborted)

	last := report.Phases[len(report.Phases)-1]
	assert.Equal(t, PhaseSave, last.Name)
	assert.Equal(t, 1, last.Failed)
}

func TestRunCancelled(t *testing.T) {
	cfg := mockserver.DefaultServerConfig()
	cfg.Latency = 20 * time.Millisecond
	srv := newService(t, cfg)

	s := testScenario(srv.URL)
	s.Ingest = config.IngestConfig{Batches: 1, BatchSize: 10, Concurrency: 1}
	s.Search.Queries = 200
	s.Search.Concurrency = 2
	s.Pool.Warmup = false
	s.Lifecycle = true

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(150*time.Millisecond, cancel)
	defer cancel()

	report, err := NewRunner(s).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.True(t, report.Aborted)
	assert.ErrorIs(t, report.Cause, context.Canceled)

	last := report.Phases[len(report.Phases)-1]
	assert.Equal(t, PhaseSearch, last.Name)
	assert.Greater(t, last.Cancelled, 0)
	assert.Equal(t, 200, last.Succeeded+last.Failed+last.Cancelled)

	// Calls in flight at cancellation still complete
	require.NotNil(t, last.Stats)
	assert.Equal(t, last.Succeeded, last.Stats.Successes)
}

func TestRunConfigErrors(t *testing.T) {
	srv := newService(t, mockserver.DefaultServerConfig())

	t.Run("invalid scenario", func(t *testing.T) {
		s := testScenario(srv.URL)
		s.Search.K = 0

		report, err := NewRunner(s).Run(context.Background())
		assert.Nil(t, report)
		assert.True(t, core.IsConfigError(err))
	})

	t.Run("filters without metadata", func(t *testing.T) {
		s := testScenario(srv.URL)
		s.Workload.WithMetadata = false
		s.Search.Filters = []string{config.FilterAll}

		report, err := NewRunner(s).Run(context.Background())
		assert.Nil(t, report)
		assert.True(t, core.IsConfigError(err))
	})

	t.Run("vector dimension mismatch", func(t *testing.T) {
		s := testScenario(srv.URL)
		gen, err := workload.NewGenerator(workload.DefaultConfig(s.Index.Dimension + 1))
		require.NoError(t, err)

		report, err := NewRunner(s, WithGenerator(gen)).Run(context.Background())
		assert.Nil(t, report)
		assert.True(t, core.IsConfigError(err))

		// Nothing reached the service
		names, err := newTestConn(t, srv.URL).ListIndices(context.Background())
		require.NoError(t, err)
		assert.Empty(t, names)
	})
}

func TestRunUnreachableService(t *testing.T) {
	srv := newService(t, mockserver.DefaultServerConfig())
	url := srv.URL
	srv.Close()

	s := testScenario(url)
	s.Client.ConnectTimeout = 200 * time.Millisecond

	report, err := NewRunner(s).Run(context.Background())
	require.Error(t, err)
	require.NotNil(t, report)
	assert.True(t, report.Aborted)
	assert.Empty(t, report.Phases)

	var transportErr *core.TransportError
	assert.True(t, errors.As(err, &transportErr))
}

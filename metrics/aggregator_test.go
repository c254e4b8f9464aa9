package metrics

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/vsbench/core"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func sampleAt(kind Kind, startMs, latencyMs int, err error) Sample {
	start := epoch.Add(time.Duration(startMs) * time.Millisecond)
	return NewSample(kind, start, start.Add(time.Duration(latencyMs)*time.Millisecond), err)
}

func TestPercentile(t *testing.T) {
	tests := []struct {
		name     string
		values   []int
		p        float64
		expected int
	}{
		{"single value", []int{7}, 99, 7},
		{"median of ten", []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 50, 5},
		{"p95 of ten", []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 95, 10},
		{"p99 of hundred", seq(100), 99, 99},
		{"p0 clamps to first", []int{3, 4, 5}, 0, 3},
		{"p100 is max", []int{3, 4, 5}, 100, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sorted := make([]time.Duration, len(tt.values))
			for i, v := range tt.values {
				sorted[i] = time.Duration(v)
			}
			assert.Equal(t, time.Duration(tt.expected), Percentile(sorted, tt.p))
		})
	}
}

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

func TestPercentilesAreMonotonic(t *testing.T) {
	agg := NewAggregator()
	for i := 0; i < 257; i++ {
		agg.Record(sampleAt(KindSearch, i, (i*37)%101+1, nil))
	}

	stats, err := agg.Summarize(KindSearch)
	require.NoError(t, err)

	assert.LessOrEqual(t, stats.MinLatency, stats.P50Latency)
	assert.LessOrEqual(t, stats.P50Latency, stats.P95Latency)
	assert.LessOrEqual(t, stats.P95Latency, stats.P99Latency)
	assert.LessOrEqual(t, stats.P99Latency, stats.MaxLatency)
}

func TestSummarizeEmpty(t *testing.T) {
	agg := NewAggregator()
	_, err := agg.Summarize()
	assert.ErrorIs(t, err, core.ErrEmptyMetrics)

	agg.Record(sampleAt(KindAdd, 0, 5, nil))
	_, err = agg.Summarize(KindSearch)
	assert.ErrorIs(t, err, core.ErrEmptyMetrics)
}

func TestSummarizeSeparatesFailures(t *testing.T) {
	agg := NewAggregator()
	agg.Record(sampleAt(KindSearch, 0, 10, nil))
	agg.Record(sampleAt(KindSearch, 0, 30, nil))
	agg.Record(sampleAt(KindSearch, 0, 500, &core.APIError{Op: "search", Status: 404, Body: "Index not found"}))
	agg.Record(sampleAt(KindSearch, 10, 990, &core.TransportError{Op: "search", Err: errors.New("deadline"), Timeout: true}))
	agg.Record(sampleAt(KindSearch, 20, 1, fmt.Errorf("acquire: %w", core.ErrPoolTimeout)))

	stats, err := agg.Summarize(KindSearch)
	require.NoError(t, err)

	assert.Equal(t, 5, stats.Count)
	assert.Equal(t, 2, stats.Successes)
	assert.Equal(t, 3, stats.Failures)
	assert.Equal(t, map[Code]int{CodeAPI: 1, CodeTimeout: 1, CodePoolTimeout: 1}, stats.FailuresByCode)

	// failed calls never skew latency statistics
	assert.Equal(t, 20*time.Millisecond, stats.AvgLatency)
	assert.Equal(t, 30*time.Millisecond, stats.MaxLatency)

	assert.Equal(t, time.Second, stats.WallTime)
	assert.InDelta(t, 2.0, stats.Throughput, 1e-9)
}

func TestSummarizeAllFailed(t *testing.T) {
	stats, err := Summarize([]Sample{sampleAt(KindCreate, 0, 5, &core.APIError{Status: 400})})
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Successes)
	assert.Zero(t, stats.Throughput)
	assert.Zero(t, stats.P99Latency)
}

func TestAggregatorResetAndFilter(t *testing.T) {
	agg := NewAggregator()
	agg.Record(sampleAt(KindAdd, 0, 5, nil))
	agg.Record(sampleAt(KindSearch, 0, 5, nil))
	agg.Record(sampleAt(KindSearch, 0, 5, nil))

	stats, err := agg.Summarize(KindSearch)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Count)

	stats, err = agg.Summarize()
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Count)

	agg.Reset()
	assert.Equal(t, 0, agg.Len())
	assert.Empty(t, agg.Samples())
}

func TestAggregatorConcurrentRecord(t *testing.T) {
	agg := NewAggregator()

	var wg sync.WaitGroup
	for w := 0; w < 10; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				agg.Record(sampleAt(KindAdd, w*100+i, 1, nil))
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, 1000, agg.Len())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   Code
	}{
		{"success", nil, 200, CodeNone},
		{"api error", &core.APIError{Status: 400}, 400, CodeAPI},
		{"wrapped api error", fmt.Errorf("search: %w", &core.APIError{Status: 404}), 404, CodeAPI},
		{"transport", &core.TransportError{Err: errors.New("connection refused")}, 0, CodeTransport},
		{"timeout", &core.TransportError{Err: errors.New("slow"), Timeout: true}, 0, CodeTimeout},
		{"pool timeout", core.ErrPoolTimeout, 0, CodePoolTimeout},
		{"pool closed", core.ErrPoolClosed, 0, CodePoolTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code := Classify(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}
}

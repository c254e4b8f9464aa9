package metrics

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/dshills/vsbench/core"
)

// Stats summarizes a set of samples. Latency fields cover successful
// samples only; failures are reported as counts.
type Stats struct {
	Count          int           `json:"count"`
	Successes      int           `json:"successes"`
	Failures       int           `json:"failures"`
	FailuresByCode map[Code]int  `json:"failures_by_code,omitempty"`
	AvgLatency     time.Duration `json:"avg_latency"`
	MinLatency     time.Duration `json:"min_latency"`
	MaxLatency     time.Duration `json:"max_latency"`
	P50Latency     time.Duration `json:"p50_latency"`
	P95Latency     time.Duration `json:"p95_latency"`
	P99Latency     time.Duration `json:"p99_latency"`
	WallTime       time.Duration `json:"wall_time"`
	Throughput     float64       `json:"throughput"` // successful operations per second
}

// Observer receives every sample as it is recorded
type Observer interface {
	Observe(Sample)
}

// Aggregator collects samples from concurrent workers. Record is safe to call
// from any goroutine.
type Aggregator struct {
	mu        sync.Mutex
	samples   []Sample
	observers []Observer
}

// NewAggregator creates a new aggregator that forwards samples to observers
func NewAggregator(observers ...Observer) *Aggregator {
	return &Aggregator{observers: observers}
}

// Record appends one sample
func (a *Aggregator) Record(s Sample) {
	a.mu.Lock()
	a.samples = append(a.samples, s)
	a.mu.Unlock()

	for _, o := range a.observers {
		o.Observe(s)
	}
}

// Samples returns a copy of the recorded samples
func (a *Aggregator) Samples() []Sample {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]Sample, len(a.samples))
	copy(out, a.samples)
	return out
}

// Len returns the number of recorded samples
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.samples)
}

// Reset discards all samples, typically at a phase barrier
func (a *Aggregator) Reset() {
	a.mu.Lock()
	a.samples = nil
	a.mu.Unlock()
}

// Summarize computes statistics over the samples of the given kinds, or over
// all samples when no kind is given.
func (a *Aggregator) Summarize(kinds ...Kind) (Stats, error) {
	return Summarize(a.Samples(), kinds...)
}

// Summarize computes statistics over samples filtered by kind. It returns
// core.ErrEmptyMetrics when nothing is left to summarize.
func Summarize(samples []Sample, kinds ...Kind) (Stats, error) {
	filtered := filterKinds(samples, kinds)
	if len(filtered) == 0 {
		return Stats{}, core.ErrEmptyMetrics
	}

	stats := Stats{Count: len(filtered)}
	latencies := make([]time.Duration, 0, len(filtered))
	first, last := filtered[0].Start, filtered[0].End

	for _, s := range filtered {
		if s.Start.Before(first) {
			first = s.Start
		}
		if s.End.After(last) {
			last = s.End
		}

		if s.Success {
			stats.Successes++
			latencies = append(latencies, s.Latency())
			continue
		}

		stats.Failures++
		if stats.FailuresByCode == nil {
			stats.FailuresByCode = make(map[Code]int)
		}
		stats.FailuresByCode[s.Code]++
	}

	stats.WallTime = last.Sub(first)
	if stats.WallTime > 0 {
		stats.Throughput = float64(stats.Successes) / stats.WallTime.Seconds()
	}

	if len(latencies) == 0 {
		return stats, nil
	}

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, lat := range latencies {
		sum += lat
	}

	stats.AvgLatency = sum / time.Duration(len(latencies))
	stats.MinLatency = latencies[0]
	stats.MaxLatency = latencies[len(latencies)-1]
	stats.P50Latency = Percentile(latencies, 50)
	stats.P95Latency = Percentile(latencies, 95)
	stats.P99Latency = Percentile(latencies, 99)

	return stats, nil
}

// Percentile returns the nearest-rank percentile of an ascending slice: the
// value at rank ceil(p*n/100), clamped to [1, n].
func Percentile(sorted []time.Duration, p float64) time.Duration {
	n := len(sorted)
	if n == 0 {
		return 0
	}

	rank := int(math.Ceil(p * float64(n) / 100))
	if rank < 1 {
		rank = 1
	}
	if rank > n {
		rank = n
	}
	return sorted[rank-1]
}

func filterKinds(samples []Sample, kinds []Kind) []Sample {
	if len(kinds) == 0 {
		return samples
	}

	want := make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		want[k] = true
	}

	var out []Sample
	for _, s := range samples {
		if want[s.Kind] {
			out = append(out, s)
		}
	}
	return out
}

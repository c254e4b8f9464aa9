package benchmark

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/dshills/vsbench/config"
	"github.com/dshills/vsbench/dispatch"
	"github.com/dshills/vsbench/metrics"
	"github.com/dshills/vsbench/pool"
)

// PhaseReport contains the results of one phase
type PhaseReport struct {
	Name   string       `json:"name"`
	Kind   metrics.Kind `json:"kind"`
	Filter string       `json:"filter,omitempty"`
	// Stats is nil when the phase recorded no samples
	Stats *metrics.Stats `json:"stats,omitempty"`
	dispatch.Summary
	// AvgHits is the mean result count of successful searches
	AvgHits float64 `json:"avg_hits,omitempty"`
	// Err is the first per-call error of the phase
	Err string `json:"error,omitempty"`
}

// Report is the outcome of one benchmark run
type Report struct {
	RunID    string          `json:"run_id"`
	Start    time.Time       `json:"start"`
	End      time.Time       `json:"end"`
	Scenario config.Scenario `json:"scenario"`
	Phases   []PhaseReport   `json:"phases"`
	Pool     pool.Stats      `json:"pool"`
	Aborted  bool            `json:"aborted"`
	Cause    error           `json:"-"`
	Error    string          `json:"error,omitempty"`
}

func (r *Report) abort(cause error) error {
	r.Aborted = true
	r.Cause = cause
	r.Error = cause.Error()
	return cause
}

// Phase returns the first phase with the given name and filter label
func (r *Report) Phase(name, filter string) (PhaseReport, bool) {
	for _, p := range r.Phases {
		if p.Name == name && p.Filter == filter {
			return p, true
		}
	}
	return PhaseReport{}, false
}

// WriteJSON writes the report as indented JSON
func WriteJSON(w io.Writer, r *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// PrintReport writes the report as a formatted table
func PrintReport(w io.Writer, r *Report) {
	fmt.Fprintf(w, "\n=== Benchmark %s (%s) ===\n", r.Scenario.Name, r.RunID)
	fmt.Fprintf(w, "Index %s: %s/%s, dim %d\n",
		r.Scenario.Index.Name, r.Scenario.Index.Kind, r.Scenario.Index.Space, r.Scenario.Index.Dimension)
	fmt.Fprintf(w, "%-18s %-13s %8s %6s %10s %10s %10s %10s %10s %12s\n",
		"Phase", "Filter", "Count", "Fail", "Avg", "Min", "P50", "P95", "P99", "Throughput")
	fmt.Fprintln(w, strings.Repeat("-", 116))

	for _, p := range r.Phases {
		filter := p.Filter
		if filter == "" {
			filter = "-"
		}
		if p.Stats == nil {
			fmt.Fprintf(w, "%-18s %-13s %8d %6d %10s %10s %10s %10s %10s %12s\n",
				p.Name, filter, p.Succeeded+p.Failed, p.Failed, "-", "-", "-", "-", "-", "-")
			continue
		}
		fmt.Fprintf(w, "%-18s %-13s %8d %6d %10s %10s %10s %10s %10s %10.2f/s\n",
			p.Name,
			filter,
			p.Stats.Count,
			p.Stats.Failures,
			formatDuration(p.Stats.AvgLatency),
			formatDuration(p.Stats.MinLatency),
			formatDuration(p.Stats.P50Latency),
			formatDuration(p.Stats.P95Latency),
			formatDuration(p.Stats.P99Latency),
			p.Stats.Throughput,
		)
	}

	for _, p := range r.Phases {
		if p.Stats == nil || len(p.Stats.FailuresByCode) == 0 {
			continue
		}
		codes := make([]string, 0, len(p.Stats.FailuresByCode))
		for code, n := range p.Stats.FailuresByCode {
			codes = append(codes, fmt.Sprintf("%s=%d", code, n))
		}
		sort.Strings(codes)
		fmt.Fprintf(w, "  %s failures: %s\n", p.Name, strings.Join(codes, " "))
	}

	fmt.Fprintf(w, "Pool: %d connections, %d acquisitions, %d timeouts\n",
		r.Pool.Capacity, r.Pool.Acquisitions, r.Pool.Timeouts)
	fmt.Fprintf(w, "Elapsed: %s\n", formatDuration(r.End.Sub(r.Start)))
	if r.Aborted {
		fmt.Fprintf(w, "ABORTED: %s\n", r.Error)
	}
}

// formatDuration formats a duration for display
func formatDuration(d time.Duration) string {
	if d < time.Microsecond {
		return fmt.Sprintf("%dns", d.Nanoseconds())
	} else if d < time.Millisecond {
		return fmt.Sprintf("%.1fµs", float64(d.Nanoseconds())/1000)
	} else if d < time.Second {
		return fmt.Sprintf("%.1fms", float64(d.Nanoseconds())/1000000)
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "vsbench"

// Collector mirrors recorded samples into Prometheus metrics
type Collector struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewCollector creates the request counter and latency histogram and
// registers them with reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Number of API calls issued, by operation kind and outcome.",
			},
			[]string{"kind", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Latency of successful API calls, by operation kind.",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 16),
			},
			[]string{"kind"},
		),
	}

	for _, col := range []prometheus.Collector{c.requests, c.duration} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Observe implements Observer
func (c *Collector) Observe(s Sample) {
	outcome := "success"
	if !s.Success {
		outcome = string(s.Code)
	}
	c.requests.WithLabelValues(string(s.Kind), outcome).Inc()

	if s.Success {
		c.duration.WithLabelValues(string(s.Kind)).Observe(s.Latency().Seconds())
	}
}

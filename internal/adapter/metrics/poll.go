package metrics

import "github.com/prometheus/client_golang/prometheus"

// PollMetrics holds Prometheus metrics for the upstream fetch loop and the
// per-subscriber comparison cycles.
type PollMetrics struct {
	FetchesTotal        *prometheus.CounterVec
	FetchDuration       prometheus.Histogram
	RegionsInSnapshot   prometheus.Gauge
	CyclesTotal         *prometheus.CounterVec
	RegionsChanged      prometheus.Counter
	CircuitBreakerState prometheus.Gauge
}

// NewPollMetrics creates and registers poll metrics on the given registry.
func NewPollMetrics(reg prometheus.Registerer) *PollMetrics {
	m := &PollMetrics{
		FetchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "fetches_total",
			Help:      "Total number of upstream fetches, by result.",
		}, []string{"result"}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of upstream fetch and parse in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		RegionsInSnapshot: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "regions",
			Help:      "Number of regions in the latest snapshot.",
		}),
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscriber_cycles_total",
			Help:      "Total number of subscriber comparison cycles, by outcome.",
		}, []string{"outcome"}),
		RegionsChanged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "regions_changed_total",
			Help:      "Total number of region changes reported to subscribers.",
		}),
		CircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "circuit_breaker_state",
			Help:      "Upstream circuit breaker state (0=closed, 1=half-open, 2=open).",
		}),
	}

	reg.MustRegister(m.FetchesTotal, m.FetchDuration, m.RegionsInSnapshot, m.CyclesTotal, m.RegionsChanged, m.CircuitBreakerState)
	return m
}

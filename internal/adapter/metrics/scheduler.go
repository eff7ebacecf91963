package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulerMetrics tracks registered subscribers and their running timers.
type SchedulerMetrics struct {
	Subscribers  prometheus.Gauge
	ActiveTimers prometheus.Gauge
	TimerDrift   *prometheus.CounterVec
}

// NewSchedulerMetrics creates and registers scheduler metrics on the given registry.
func NewSchedulerMetrics(reg prometheus.Registerer) *SchedulerMetrics {
	m := &SchedulerMetrics{
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscribers",
			Help:      "Number of registered subscribers.",
		}),
		ActiveTimers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "active_timers",
			Help:      "Number of running per-subscriber timers.",
		}),
		TimerDrift: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "timer_drift_fixed_total",
			Help:      "Timers corrected by the reconciler, by kind (missing, stale, interval).",
		}, []string{"kind"}),
	}

	reg.MustRegister(m.Subscribers, m.ActiveTimers, m.TimerDrift)
	return m
}

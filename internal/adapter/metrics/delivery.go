package metrics

import "github.com/prometheus/client_golang/prometheus"

// DeliveryMetrics holds Prometheus metrics for report delivery sinks.
type DeliveryMetrics struct {
	ReportsTotal     *prometheus.CounterVec
	DeliveryDuration *prometheus.HistogramVec
}

// NewDeliveryMetrics creates and registers delivery metrics on the given registry.
func NewDeliveryMetrics(reg prometheus.Registerer) *DeliveryMetrics {
	m := &DeliveryMetrics{
		ReportsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "reports_total",
			Help:      "Total number of reports handed to a sink, by sink and result.",
		}, []string{"sink", "result"}),
		DeliveryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "duration_seconds",
			Help:      "Duration of a single report delivery in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"sink"}),
	}

	reg.MustRegister(m.ReportsTotal, m.DeliveryDuration)
	return m
}

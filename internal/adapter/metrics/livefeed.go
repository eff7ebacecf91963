package metrics

import "github.com/prometheus/client_golang/prometheus"

// LiveFeedMetrics tracks WebSocket report feed clients.
type LiveFeedMetrics struct {
	Clients         prometheus.Gauge
	MessagesSent    prometheus.Counter
	MessagesDropped prometheus.Counter
	PingFailures    prometheus.Counter
}

func NewLiveFeedMetrics(reg prometheus.Registerer) *LiveFeedMetrics {
	m := &LiveFeedMetrics{
		Clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "livefeed",
			Name:      "clients",
			Help:      "Number of connected live feed clients.",
		}),
		MessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "livefeed",
			Name:      "messages_sent_total",
			Help:      "Total reports written to live feed clients.",
		}),
		MessagesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "livefeed",
			Name:      "messages_dropped_total",
			Help:      "Total reports dropped because a client's buffer was full.",
		}),
		PingFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "livefeed",
			Name:      "ping_failures_total",
			Help:      "Total failed keepalive pings.",
		}),
	}

	reg.MustRegister(m.Clients, m.MessagesSent, m.MessagesDropped, m.PingFailures)
	return m
}

package metrics

import "github.com/prometheus/client_golang/prometheus"

// ChatMetrics tracks inbound chat commands.
type ChatMetrics struct {
	CommandsTotal *prometheus.CounterVec
	PollErrors    prometheus.Counter
}

func NewChatMetrics(reg prometheus.Registerer) *ChatMetrics {
	m := &ChatMetrics{
		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "commands_total",
			Help:      "Total chat commands handled, by command.",
		}, []string{"command"}),
		PollErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "poll_errors_total",
			Help:      "Total failed getUpdates calls.",
		}),
	}

	reg.MustRegister(m.CommandsTotal, m.PollErrors)
	return m
}

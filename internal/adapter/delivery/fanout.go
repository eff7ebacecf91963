// Package delivery fans reports out to every configured sink.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pscheid92/electionwatch/internal/adapter/metrics"
	"github.com/pscheid92/electionwatch/internal/domain"
)

// Sink is a named deliverer.
type Sink struct {
	Name      string
	Deliverer domain.Deliverer
}

// Fanout implements domain.Deliverer by sending each report to every sink.
// A failing sink does not stop the others; their errors are joined.
type Fanout struct {
	sinks   []Sink
	metrics *metrics.DeliveryMetrics
}

var _ domain.Deliverer = (*Fanout)(nil)

func NewFanout(m *metrics.DeliveryMetrics, sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks, metrics: m}
}

// Len returns the number of sinks.
func (f *Fanout) Len() int { return len(f.sinks) }

func (f *Fanout) Deliver(ctx context.Context, r domain.Report) error {
	var errs []error
	for _, s := range f.sinks {
		start := time.Now()
		err := s.Deliverer.Deliver(ctx, r)
		f.metrics.DeliveryDuration.WithLabelValues(s.Name).Observe(time.Since(start).Seconds())

		if err != nil {
			f.metrics.ReportsTotal.WithLabelValues(s.Name, "error").Inc()
			slog.WarnContext(ctx, "Report delivery failed", "sink", s.Name, "subscriber", r.SubscriberID, "region", r.Region, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
			continue
		}
		f.metrics.ReportsTotal.WithLabelValues(s.Name, "ok").Inc()
	}
	return errors.Join(errs...)
}

// LogSink writes reports to the structured log. It is the sink used when no
// chat or stream is configured.
type LogSink struct{}

func (LogSink) Deliver(ctx context.Context, r domain.Report) error {
	slog.InfoContext(ctx, "Report", "subscriber", r.SubscriberID, "region", r.Region, "text", r.Text)
	return nil
}

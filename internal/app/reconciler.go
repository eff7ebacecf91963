package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/electionwatch/internal/adapter/metrics"
	"github.com/pscheid92/electionwatch/internal/domain"
)

const defaultReconcileInterval = 5 * time.Minute

// TimerReconciler periodically checks that the running timers match the
// registered subscribers and their intervals.
type TimerReconciler struct {
	registry  *Registry
	scheduler *Scheduler
	metrics   *metrics.SchedulerMetrics
	interval  time.Duration
	clock     clockwork.Clock
}

// NewTimerReconciler creates a reconciliation background job.
func NewTimerReconciler(registry *Registry, scheduler *Scheduler, clock clockwork.Clock, m *metrics.SchedulerMetrics) *TimerReconciler {
	return &TimerReconciler{
		registry:  registry,
		scheduler: scheduler,
		metrics:   m,
		interval:  defaultReconcileInterval,
		clock:     clock,
	}
}

// Start runs the reconciliation loop until ctx is cancelled.
func (r *TimerReconciler) Start(ctx context.Context) {
	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			r.reconcile(ctx)
		case <-ctx.Done():
			slog.Info("Timer reconciler stopped")
			return
		}
	}
}

// reconcile starts missing timers, cancels timers of removed subscribers and
// restarts timers whose interval no longer matches.
func (r *TimerReconciler) reconcile(ctx context.Context) int {
	fixed := 0

	for _, id := range r.scheduler.Scheduled() {
		if _, ok := r.registry.Get(id); !ok {
			slog.WarnContext(ctx, "Timer drift: stale timer", "subscriber", id)
			r.scheduler.Cancel(id)
			r.metrics.TimerDrift.WithLabelValues("stale").Inc()
			fixed++
		}
	}

	for _, id := range r.registry.IDs() {
		sub, ok := r.registry.Get(id)
		if !ok {
			continue
		}
		running, scheduled := r.scheduler.Interval(id)
		kind := driftKind(sub, running, scheduled)
		if kind == "" {
			continue
		}
		slog.WarnContext(ctx, "Timer drift detected", "subscriber", id, "kind", kind, "want", sub.PollInterval, "running", running)
		r.scheduler.Schedule(id, sub.PollInterval)
		r.metrics.TimerDrift.WithLabelValues(kind).Inc()
		fixed++
	}

	if fixed > 0 {
		slog.InfoContext(ctx, "Timer drift auto-fixed", "fixed", fixed)
	}
	return fixed
}

func driftKind(sub *domain.Subscriber, running time.Duration, scheduled bool) string {
	switch {
	case sub.PollInterval <= 0 && scheduled:
		return "stale"
	case sub.PollInterval > 0 && !scheduled:
		return "missing"
	case scheduled && running != sub.PollInterval:
		return "interval"
	default:
		return ""
	}
}

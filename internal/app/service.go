package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/electionwatch/internal/adapter/metrics"
	"github.com/pscheid92/electionwatch/internal/domain"
)

// Service is the application layer used by the chat and HTTP adapters. It
// keeps the registry and the per-subscriber timers in step and hands
// reports to the deliverer.
type Service struct {
	registry  *Registry
	source    *SnapshotSource
	scheduler *Scheduler
	reconcile *TimerReconciler
	deliverer domain.Deliverer
	regions   []string
	metrics   *metrics.SchedulerMetrics

	running  atomic.Bool
	stopOnce sync.Once
}

// NewService wires a service. regions lists the names offered to users.
func NewService(registry *Registry, source *SnapshotSource, deliverer domain.Deliverer, regions []string, clock clockwork.Clock, m *metrics.SchedulerMetrics) *Service {
	s := &Service{
		registry:  registry,
		source:    source,
		deliverer: deliverer,
		regions:   regions,
		metrics:   m,
	}
	s.scheduler = NewScheduler(clock, s.runCycle, m)
	s.reconcile = NewTimerReconciler(registry, s.scheduler, clock, m)
	return s
}

// Run loads persisted subscribers, starts their timers and the shared fetch
// loop, and blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	s.source.Warm(ctx)

	subs, err := s.registry.Load(ctx)
	if err != nil {
		return err
	}

	s.scheduler.Start(ctx)
	for _, sub := range subs {
		s.scheduler.Schedule(sub.ID, sub.PollInterval)
	}
	s.metrics.Subscribers.Set(float64(len(subs)))
	s.running.Store(true)
	slog.InfoContext(ctx, "Service started", "subscribers", len(subs), "timers", s.scheduler.Active())

	var wg sync.WaitGroup
	wg.Go(func() { s.reconcile.Start(ctx) })

	s.source.Run(ctx)

	wg.Wait()
	s.Stop()
	return nil
}

// Running reports whether Run is active on this instance.
func (s *Service) Running() bool {
	return s.running.Load()
}

// Stop cancels every subscriber timer and waits for running cycles.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		s.running.Store(false)
		s.scheduler.Stop()
		slog.Info("Service stopped")
	})
}

func (s *Service) Subscribe(ctx context.Context, id domain.SubscriberID) (*domain.Subscriber, bool) {
	sub, created := s.registry.Subscribe(ctx, id)
	if created {
		s.scheduler.Schedule(id, sub.PollInterval)
		s.metrics.Subscribers.Set(float64(s.registry.Len()))
	}
	return sub, created
}

// Unsubscribe cancels the timer before dropping state so that an in-flight
// cycle cannot write back.
func (s *Service) Unsubscribe(ctx context.Context, id domain.SubscriberID) bool {
	s.scheduler.Cancel(id)
	removed := s.registry.Unsubscribe(ctx, id)
	s.metrics.Subscribers.Set(float64(s.registry.Len()))
	return removed
}

func (s *Service) Watch(ctx context.Context, id domain.SubscriberID, region string) (string, error) {
	_, known := s.registry.Get(id)
	resolved, err := s.registry.Watch(ctx, id, region)
	if err != nil {
		return "", err
	}
	if !known {
		s.afterImplicitRegister(id)
	}
	return resolved, nil
}

func (s *Service) Unwatch(ctx context.Context, id domain.SubscriberID, region string) (string, error) {
	return s.registry.Unwatch(ctx, id, region)
}

func (s *Service) SetInterval(ctx context.Context, id domain.SubscriberID, interval time.Duration) (*domain.Subscriber, error) {
	sub, err := s.registry.SetInterval(ctx, id, interval)
	if err != nil {
		return nil, err
	}
	s.scheduler.Schedule(id, sub.PollInterval)
	s.metrics.Subscribers.Set(float64(s.registry.Len()))
	return sub, nil
}

func (s *Service) Subscriber(id domain.SubscriberID) (*domain.Subscriber, error) {
	sub, ok := s.registry.Get(id)
	if !ok {
		return nil, domain.ErrSubscriberNotFound
	}
	return sub, nil
}

func (s *Service) Info(ctx context.Context, region string) (string, error) {
	return s.registry.Info(ctx, region)
}

func (s *Service) Regions() []string {
	return append([]string(nil), s.regions...)
}

// PollOnce runs a cycle for every subscriber against a fresh snapshot and
// delivers the resulting reports. The reports are returned in delivery order
// even when some deliveries fail.
func (s *Service) PollOnce(ctx context.Context) ([]domain.Report, error) {
	reports, err := s.registry.PollOnce(ctx)
	if err != nil {
		return reports, fmt.Errorf("poll failed: %w", err)
	}
	return reports, s.deliver(ctx, reports)
}

func (s *Service) runCycle(ctx context.Context, id domain.SubscriberID) {
	reports, err := s.registry.Check(ctx, id)
	if errors.Is(err, domain.ErrSubscriberNotFound) || errors.Is(err, context.Canceled) {
		slog.DebugContext(ctx, "Discarded cycle for removed subscriber", "subscriber", id)
		return
	}
	if err != nil {
		slog.WarnContext(ctx, "Subscriber cycle failed", "subscriber", id, "error", err)
		return
	}
	if len(reports) == 0 {
		return
	}

	slog.InfoContext(ctx, "Delivering reports", "subscriber", id, "regions", len(reports))
	if err := s.deliver(ctx, reports); err != nil {
		slog.WarnContext(ctx, "Report delivery failed", "subscriber", id, "error", err)
	}
}

func (s *Service) deliver(ctx context.Context, reports []domain.Report) error {
	var errs []error
	for _, r := range reports {
		if err := s.deliverer.Deliver(ctx, r); err != nil {
			errs = append(errs, fmt.Errorf("deliver %s/%s: %w", r.SubscriberID, r.Region, err))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", domain.ErrDeliveryFailed, errors.Join(errs...))
}

func (s *Service) afterImplicitRegister(id domain.SubscriberID) {
	if sub, ok := s.registry.Get(id); ok {
		s.scheduler.Schedule(id, sub.PollInterval)
	}
	s.metrics.Subscribers.Set(float64(s.registry.Len()))
}

package app

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/electionwatch/internal/adapter/metrics"
	"github.com/pscheid92/electionwatch/internal/domain"
	"github.com/pscheid92/electionwatch/internal/platform/correlation"
)

// CycleFunc runs one scheduled cycle for a subscriber.
type CycleFunc func(ctx context.Context, id domain.SubscriberID)

// Scheduler runs one timer goroutine per subscriber. Rescheduling or
// cancelling a subscriber cancels its context before the next firing; a cycle
// already running sees the cancellation and discards its result.
type Scheduler struct {
	clock   clockwork.Clock
	cycle   CycleFunc
	metrics *metrics.SchedulerMetrics

	mu      sync.Mutex
	baseCtx context.Context
	timers  map[domain.SubscriberID]*timer
	wg      sync.WaitGroup
}

type timer struct {
	interval time.Duration
	cancel   context.CancelFunc
}

func NewScheduler(clock clockwork.Clock, cycle CycleFunc, m *metrics.SchedulerMetrics) *Scheduler {
	return &Scheduler{
		clock:   clock,
		cycle:   cycle,
		metrics: m,
		baseCtx: context.Background(),
		timers:  make(map[domain.SubscriberID]*timer),
	}
}

// Start sets the parent context for timers scheduled afterwards.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()
}

// Schedule (re)starts the timer for id. A zero interval only cancels.
// Scheduling the same interval again keeps the running timer.
func (s *Scheduler) Schedule(id domain.SubscriberID, interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.timers[id]; ok {
		if current.interval == interval {
			return
		}
		current.cancel()
		delete(s.timers, id)
	}

	if interval > 0 {
		ctx, cancel := context.WithCancel(s.baseCtx)
		t := &timer{interval: interval, cancel: cancel}
		s.timers[id] = t
		s.wg.Go(func() { s.run(ctx, id, t) })
	}
	s.metrics.ActiveTimers.Set(float64(len(s.timers)))
}

// Cancel stops the timer for id, if any.
func (s *Scheduler) Cancel(id domain.SubscriberID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.timers[id]; ok {
		current.cancel()
		delete(s.timers, id)
	}
	s.metrics.ActiveTimers.Set(float64(len(s.timers)))
}

// Interval returns the running interval for id.
func (s *Scheduler) Interval(id domain.SubscriberID) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.timers[id]
	if !ok {
		return 0, false
	}
	return t.interval, true
}

// Scheduled returns the ids that currently have a running timer.
func (s *Scheduler) Scheduled() []domain.SubscriberID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Collect(maps.Keys(s.timers))
}

func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels every timer and waits for running cycles to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	for id, t := range s.timers {
		t.cancel()
		delete(s.timers, id)
	}
	s.metrics.ActiveTimers.Set(0)
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context, id domain.SubscriberID, t *timer) {
	ticker := s.clock.NewTicker(t.interval)
	defer ticker.Stop()
	defer s.cleanup(id, t)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if ctx.Err() != nil {
				return
			}
			s.cycle(correlation.WithID(ctx, correlation.NewID()), id)
		}
	}
}

func (s *Scheduler) cleanup(id domain.SubscriberID, t *timer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.timers[id]; ok && current == t {
		delete(s.timers, id)
		s.metrics.ActiveTimers.Set(float64(len(s.timers)))
	}
}

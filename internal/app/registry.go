package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/electionwatch/internal/adapter/metrics"
	"github.com/pscheid92/electionwatch/internal/domain"
	"github.com/pscheid92/electionwatch/internal/election"
	"github.com/pscheid92/electionwatch/internal/report"
)

// snapshotProvider is the part of SnapshotSource the registry needs.
type snapshotProvider interface {
	Current(ctx context.Context) (domain.ElectionSnapshot, error)
	Refresh(ctx context.Context) (domain.ElectionSnapshot, error)
}

// SubscriberDefaults apply to subscribers registered implicitly.
type SubscriberDefaults struct {
	Watchlist    []string
	PollInterval time.Duration
}

// Registry owns all subscriber state and runs the
// unregistered -> no baseline -> active lifecycle.
//
// Every mutation is persisted best-effort through the repository while the
// registry lock is held, so the stored order of writes matches memory.
type Registry struct {
	repo      domain.SubscriberRepository
	source    snapshotProvider
	detector  election.Detector
	formatter *report.Formatter
	regions   domain.RegionResolver
	clock     clockwork.Clock
	defaults  SubscriberDefaults
	poll      *metrics.PollMetrics

	mu   sync.Mutex
	subs map[domain.SubscriberID]*domain.Subscriber
}

// NewRegistry resolves the default watchlist to canonical region names and
// fails on any entry the resolver does not know.
func NewRegistry(repo domain.SubscriberRepository, source snapshotProvider, detector election.Detector, formatter *report.Formatter, regions domain.RegionResolver, clock clockwork.Clock, defaults SubscriberDefaults, poll *metrics.PollMetrics) (*Registry, error) {
	watchlist := make([]string, 0, len(defaults.Watchlist))
	for _, text := range defaults.Watchlist {
		region, ok := regions.Resolve(text)
		if !ok {
			return nil, fmt.Errorf("default watchlist: %w: %q", domain.ErrUnknownRegion, text)
		}
		watchlist = append(watchlist, region)
	}
	slices.Sort(watchlist)
	defaults.Watchlist = slices.Compact(watchlist)

	return &Registry{
		repo:      repo,
		source:    source,
		detector:  detector,
		formatter: formatter,
		regions:   regions,
		clock:     clock,
		defaults:  defaults,
		poll:      poll,
		subs:      make(map[domain.SubscriberID]*domain.Subscriber),
	}, nil
}

// Load replaces in-memory state with the repository contents.
func (r *Registry) Load(ctx context.Context) ([]*domain.Subscriber, error) {
	stored, err := r.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscribers: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.subs = make(map[domain.SubscriberID]*domain.Subscriber, len(stored))
	out := make([]*domain.Subscriber, 0, len(stored))
	for _, sub := range stored {
		r.subs[sub.ID] = sub
		out = append(out, sub.Clone())
	}
	return out, nil
}

// Subscribe registers id with the default watchlist and interval. Calling it
// for a known subscriber is a no-op that reports created=false.
func (r *Registry) Subscribe(ctx context.Context, id domain.SubscriberID) (sub *domain.Subscriber, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.subs[id]; ok {
		return existing.Clone(), false
	}
	s := r.register(ctx, id)
	return s.Clone(), true
}

// Unsubscribe drops all state for id, baseline included.
func (r *Registry) Unsubscribe(ctx context.Context, id domain.SubscriberID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.subs[id]; !ok {
		return false
	}
	delete(r.subs, id)
	if err := r.repo.Delete(ctx, id); err != nil {
		slog.ErrorContext(ctx, "Failed to delete subscriber", "subscriber", id, "error", err)
	}
	return true
}

// Watch resolves text to a region and adds it to the watchlist.
func (r *Registry) Watch(ctx context.Context, id domain.SubscriberID, text string) (string, error) {
	region, ok := r.regions.Resolve(text)
	if !ok {
		return "", fmt.Errorf("%w: %q", domain.ErrUnknownRegion, text)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sub := r.ensure(ctx, id)
	if sub.Watch(region) {
		r.touch(ctx, sub)
	}
	return region, nil
}

// Unwatch removes a region from the watchlist but keeps its baseline. The
// resolved region is returned with ErrNotWatching when it was not watched.
func (r *Registry) Unwatch(ctx context.Context, id domain.SubscriberID, text string) (string, error) {
	region, ok := r.regions.Resolve(text)
	if !ok {
		return "", fmt.Errorf("%w: %q", domain.ErrUnknownRegion, text)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subs[id]
	if !ok {
		return "", domain.ErrSubscriberNotFound
	}
	if !sub.Unwatch(region) {
		return region, fmt.Errorf("%w: %s", domain.ErrNotWatching, region)
	}
	r.touch(ctx, sub)
	return region, nil
}

// SetInterval changes the polling cadence. Zero disables the timer.
func (r *Registry) SetInterval(ctx context.Context, id domain.SubscriberID, interval time.Duration) (*domain.Subscriber, error) {
	if interval < 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidInterval, interval)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sub := r.ensure(ctx, id)
	sub.PollInterval = interval
	r.touch(ctx, sub)
	return sub.Clone(), nil
}

// Get returns a copy of the subscriber.
func (r *Registry) Get(id domain.SubscriberID) (*domain.Subscriber, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok {
		return nil, false
	}
	return sub.Clone(), true
}

// IDs returns all subscriber ids in sorted order.
func (r *Registry) IDs() []domain.SubscriberID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Sorted(maps.Keys(r.subs))
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// Info renders the current situation in a region without deltas.
func (r *Registry) Info(ctx context.Context, text string) (string, error) {
	region, ok := r.regions.Resolve(text)
	if !ok {
		return "", fmt.Errorf("%w: %q", domain.ErrUnknownRegion, text)
	}

	snap, err := r.source.Current(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrNoSnapshot, err)
	}

	state, ok := snap.State(region)
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrRegionNotReported, region)
	}
	return r.formatter.Format(region, state, nil), nil
}

// Check runs one comparison cycle for a single subscriber against the latest
// snapshot. If the subscriber is removed or ctx is cancelled while the
// snapshot is being fetched, the result is discarded and nothing changes.
func (r *Registry) Check(ctx context.Context, id domain.SubscriberID) ([]domain.Report, error) {
	snap, err := r.source.Current(ctx)
	if err != nil {
		r.poll.CyclesTotal.WithLabelValues("fetch_failed").Inc()
		return nil, err
	}
	return r.apply(ctx, id, snap)
}

// PollOnce fetches a fresh snapshot and runs a cycle for every subscriber.
// Reports are ordered by subscriber id, then region. A failed fetch leaves
// every baseline untouched.
func (r *Registry) PollOnce(ctx context.Context) ([]domain.Report, error) {
	snap, err := r.source.Refresh(ctx)
	if err != nil {
		r.poll.CyclesTotal.WithLabelValues("fetch_failed").Inc()
		return nil, err
	}

	var all []domain.Report
	for _, id := range r.IDs() {
		reports, err := r.apply(ctx, id, snap)
		if errors.Is(err, domain.ErrSubscriberNotFound) {
			continue
		}
		if err != nil {
			return all, err
		}
		all = append(all, reports...)
	}
	return all, nil
}

func (r *Registry) apply(ctx context.Context, id domain.SubscriberID, snap domain.ElectionSnapshot) ([]domain.Report, error) {
	if err := ctx.Err(); err != nil {
		r.poll.CyclesTotal.WithLabelValues("discarded").Inc()
		return nil, fmt.Errorf("cycle cancelled: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subs[id]
	if !ok {
		r.poll.CyclesTotal.WithLabelValues("discarded").Inc()
		return nil, domain.ErrSubscriberNotFound
	}

	firstContact := sub.Baseline == nil
	reports, dirty := r.advance(sub, snap)
	if dirty {
		r.touch(ctx, sub)
	}

	switch {
	case firstContact:
		r.poll.CyclesTotal.WithLabelValues("baseline").Inc()
	case len(reports) > 0:
		r.poll.CyclesTotal.WithLabelValues("reported").Inc()
		r.poll.RegionsChanged.Add(float64(len(reports)))
	default:
		r.poll.CyclesTotal.WithLabelValues("unchanged").Inc()
	}
	return reports, nil
}

// advance compares snap against the subscriber's baseline and moves the
// baseline forward for reported regions only. dirty reports whether the
// baseline changed at all.
func (r *Registry) advance(sub *domain.Subscriber, snap domain.ElectionSnapshot) (reports []domain.Report, dirty bool) {
	if sub.Baseline == nil {
		baseline := snap
		sub.Baseline = &baseline
		return nil, true
	}

	baseline := *sub.Baseline
	updates := make(map[string]domain.StateSnapshot)

	for _, region := range r.detector.Detect(baseline, snap, sub.Watchlist) {
		previous, _ := baseline.State(region)
		current, _ := snap.State(region)
		reports = append(reports, domain.Report{
			SubscriberID: sub.ID,
			Region:       region,
			Text:         r.formatter.Format(region, current, &previous),
		})
		updates[region] = current
	}

	// Regions the baseline has never seen are adopted without a report.
	for _, region := range snap.Regions() {
		if _, known := baseline.State(region); !known {
			updates[region], _ = snap.State(region)
		}
	}

	if len(updates) == 0 {
		return reports, false
	}
	next := baseline.WithStates(updates)
	sub.Baseline = &next
	return reports, true
}

func (r *Registry) ensure(ctx context.Context, id domain.SubscriberID) *domain.Subscriber {
	if sub, ok := r.subs[id]; ok {
		return sub
	}
	return r.register(ctx, id)
}

func (r *Registry) register(ctx context.Context, id domain.SubscriberID) *domain.Subscriber {
	now := r.clock.Now()
	sub := &domain.Subscriber{
		ID:           id,
		Watchlist:    slices.Clone(r.defaults.Watchlist),
		PollInterval: r.defaults.PollInterval,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.subs[id] = sub
	r.persist(ctx, sub)
	slog.InfoContext(ctx, "Subscriber registered", "subscriber", id, "watchlist", sub.Watchlist)
	return sub
}

func (r *Registry) touch(ctx context.Context, sub *domain.Subscriber) {
	sub.UpdatedAt = r.clock.Now()
	r.persist(ctx, sub)
}

func (r *Registry) persist(ctx context.Context, sub *domain.Subscriber) {
	if err := r.repo.Save(ctx, sub); err != nil {
		slog.ErrorContext(ctx, "Failed to persist subscriber", "subscriber", sub.ID, "error", err)
	}
}

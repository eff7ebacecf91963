package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/pscheid92/electionwatch/internal/adapter/metrics"
	"github.com/pscheid92/electionwatch/internal/domain"
	"github.com/pscheid92/electionwatch/internal/election"
	"github.com/pscheid92/electionwatch/internal/platform/correlation"
)

const (
	DefaultFetchInterval = 60 * time.Second
	fetchKey             = "upstream"
)

// SnapshotSource owns the shared upstream fetch. At most one fetch is in
// flight at any time; concurrent callers share its result. The latest good
// snapshot is kept in memory and mirrored to an optional cache so that a
// restart does not begin empty.
type SnapshotSource struct {
	fetcher  domain.Fetcher
	cache    domain.SnapshotCache
	clock    clockwork.Clock
	interval time.Duration
	poll     *metrics.PollMetrics
	hits     *metrics.CacheMetrics

	group singleflight.Group

	mu     sync.RWMutex
	latest *domain.CachedSnapshot
}

// NewSnapshotSource creates a source. cache may be nil.
func NewSnapshotSource(fetcher domain.Fetcher, cache domain.SnapshotCache, clock clockwork.Clock, interval time.Duration, poll *metrics.PollMetrics, hits *metrics.CacheMetrics) *SnapshotSource {
	if interval <= 0 {
		interval = DefaultFetchInterval
	}
	return &SnapshotSource{
		fetcher:  fetcher,
		cache:    cache,
		clock:    clock,
		interval: interval,
		poll:     poll,
		hits:     hits,
	}
}

// Warm loads the last cached snapshot, if any.
func (s *SnapshotSource) Warm(ctx context.Context) {
	if s.cache == nil {
		return
	}

	cached, err := s.cache.Load(ctx)
	if err != nil {
		slog.WarnContext(ctx, "Snapshot cache load failed", "error", err)
		return
	}
	if cached == nil {
		s.hits.Misses.WithLabelValues("shared").Inc()
		return
	}

	s.hits.Hits.WithLabelValues("shared").Inc()
	s.store(*cached)
	slog.InfoContext(ctx, "Warmed snapshot from cache", "regions", cached.Snapshot.Len(), "fetched_at", cached.FetchedAt)
}

// Run refreshes the snapshot immediately and then on every tick. It blocks
// until ctx is cancelled.
func (s *SnapshotSource) Run(ctx context.Context) {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.tick(ctx)
		}
	}
}

func (s *SnapshotSource) tick(ctx context.Context) {
	tickCtx := correlation.WithID(ctx, correlation.NewID())
	if _, err := s.Refresh(tickCtx); err != nil {
		slog.WarnContext(tickCtx, "Ticker: upstream refresh failed", "error", err)
	}
}

// Refresh fetches and parses a new snapshot. On failure the previous snapshot
// stays in place.
func (s *SnapshotSource) Refresh(ctx context.Context) (domain.ElectionSnapshot, error) {
	v, err, shared := s.group.Do(fetchKey, func() (any, error) {
		return s.fetch(context.WithoutCancel(ctx))
	})
	if shared {
		slog.DebugContext(ctx, "Joined in-flight upstream fetch")
	}
	if err != nil {
		return domain.ElectionSnapshot{}, err
	}
	return v.(domain.ElectionSnapshot), nil
}

// Current returns the latest snapshot, fetching one if none is held yet.
func (s *SnapshotSource) Current(ctx context.Context) (domain.ElectionSnapshot, error) {
	if latest, ok := s.Latest(); ok {
		s.hits.Hits.WithLabelValues("memory").Inc()
		return latest.Snapshot, nil
	}
	s.hits.Misses.WithLabelValues("memory").Inc()
	return s.Refresh(ctx)
}

// Latest returns the held snapshot without fetching.
func (s *SnapshotSource) Latest() (domain.CachedSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return domain.CachedSnapshot{}, false
	}
	return *s.latest, true
}

func (s *SnapshotSource) fetch(ctx context.Context) (domain.ElectionSnapshot, error) {
	start := s.clock.Now()
	defer func() {
		s.poll.FetchDuration.Observe(s.clock.Since(start).Seconds())
	}()

	raw, err := s.fetcher.FetchRaw(ctx)
	if err != nil {
		s.poll.FetchesTotal.WithLabelValues("transport_error").Inc()
		return domain.ElectionSnapshot{}, fmt.Errorf("fetch upstream: %w", err)
	}

	snap, err := election.Parse(raw)
	if err != nil {
		s.poll.FetchesTotal.WithLabelValues("malformed").Inc()
		return domain.ElectionSnapshot{}, err
	}

	s.poll.FetchesTotal.WithLabelValues("ok").Inc()
	s.poll.RegionsInSnapshot.Set(float64(snap.Len()))

	cached := domain.CachedSnapshot{Snapshot: snap, FetchedAt: s.clock.Now()}
	s.store(cached)

	if s.cache != nil {
		if err := s.cache.Store(ctx, cached); err != nil && !errors.Is(err, context.Canceled) {
			slog.WarnContext(ctx, "Snapshot cache store failed", "error", err)
		}
	}

	slog.DebugContext(ctx, "Fetched upstream snapshot", "regions", snap.Len())
	return snap, nil
}

func (s *SnapshotSource) store(snap domain.CachedSnapshot) {
	s.mu.Lock()
	s.latest = &snap
	s.mu.Unlock()
}

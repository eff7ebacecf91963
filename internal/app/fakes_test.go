package app

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/pscheid92/electionwatch/internal/adapter/metrics"
	"github.com/pscheid92/electionwatch/internal/domain"
	"github.com/pscheid92/electionwatch/internal/election"
	"github.com/pscheid92/electionwatch/internal/report"
)

type region struct {
	name      string
	cast, all int64
	biden     int64
	trump     int64
}

func payload(regions ...region) []byte {
	p := make(map[string]any, len(regions))
	for i, r := range regions {
		p[strconv.Itoa(i)] = []any{
			[]any{r.name, r.cast, r.all, 50},
			[]any{
				[]any{"Joe", "Biden", "dem", 0, r.biden},
				[]any{"Donald", "Trump", "gop", 0, r.trump},
			},
		}
	}
	b, err := json.Marshal(map[string]any{"P": p})
	if err != nil {
		panic(err)
	}
	return b
}

// fakeFetcher serves the most recently set payload. When gate is non-nil,
// FetchRaw signals on started and blocks until gate is closed.
type fakeFetcher struct {
	mu      sync.Mutex
	body    []byte
	err     error
	calls   int
	gate    chan struct{}
	started chan struct{}
}

func (f *fakeFetcher) set(body []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.body = body
	f.err = nil
}

func (f *fakeFetcher) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeFetcher) hold() (started <-chan struct{}, release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
	f.started = make(chan struct{}, 16)
	gate := f.gate
	return f.started, func() { close(gate) }
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeFetcher) FetchRaw(_ context.Context) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	gate, started := f.gate, f.started
	f.mu.Unlock()

	if gate != nil {
		started <- struct{}{}
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.body, nil
}

type recordingDeliverer struct {
	mu      sync.Mutex
	reports []domain.Report
	err     error
}

func (d *recordingDeliverer) Deliver(_ context.Context, r domain.Report) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reports = append(d.reports, r)
	return d.err
}

func (d *recordingDeliverer) delivered() []domain.Report {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]domain.Report, len(d.reports))
	copy(out, d.reports)
	return out
}

type failingRepo struct {
	*MemoryRepository
}

func (failingRepo) Save(context.Context, *domain.Subscriber) error {
	return errors.New("disk full")
}

type harness struct {
	clock    *clockwork.FakeClock
	fetcher  *fakeFetcher
	source   *SnapshotSource
	repo     domain.SubscriberRepository
	registry *Registry
	poll     *metrics.PollMetrics
	promReg  *prometheus.Registry
	defaults []string
}

func withDefaultWatchlist(regions ...string) func(*harness) {
	return func(h *harness) {
		h.defaults = regions
	}
}

func newHarness(t *testing.T, opts ...func(*harness)) *harness {
	t.Helper()

	h := &harness{
		clock:    clockwork.NewFakeClock(),
		fetcher:  &fakeFetcher{},
		repo:     NewMemoryRepository(),
		promReg:  prometheus.NewRegistry(),
		defaults: []string{"Nevada", "Arizona"},
	}
	for _, opt := range opts {
		opt(h)
	}

	h.poll = metrics.NewPollMetrics(h.promReg)
	h.source = NewSnapshotSource(h.fetcher, nil, h.clock, time.Minute, h.poll, metrics.NewCacheMetrics(h.promReg))

	formatter, err := report.NewFormatter([]string{"Joe Biden", "Donald Trump"})
	require.NoError(t, err)

	h.registry, err = NewRegistry(
		h.repo,
		h.source,
		election.NewDetector(election.DefaultThreshold),
		formatter,
		election.USRegions(),
		h.clock,
		SubscriberDefaults{Watchlist: h.defaults},
		h.poll,
	)
	require.NoError(t, err)
	return h
}

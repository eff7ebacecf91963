package redis

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	redistest "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/pscheid92/electionwatch/internal/adapter/metrics"
	"github.com/pscheid92/electionwatch/internal/domain"
)

func setupTestClient(t *testing.T) (*goredis.Client, *metrics.RedisMetrics) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	ctx := context.Background()
	container, err := redistest.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, container.Terminate(ctx))
	})

	connStr, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	m := metrics.NewRedisMetrics(prometheus.NewRegistry())
	client, err := NewClient(ctx, connStr, m)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.FlushAll(ctx).Err())
	return client, m
}

func sampleSnapshot() domain.ElectionSnapshot {
	return domain.NewElectionSnapshot(map[string]domain.StateSnapshot{
		"Nevada": {
			Name:       "Nevada",
			VotesCast:  1000,
			VotesAll:   2000,
			VotesRatio: 50,
			Candidates: map[string]domain.CandidateTally{
				"Joe Biden":    {Party: "dem", Votes: 519},
				"Donald Trump": {Party: "gop", Votes: 481},
			},
		},
	})
}

func TestNewClient_InvalidURL(t *testing.T) {
	_, err := NewClient(context.Background(), "not a url", metrics.NewRedisMetrics(prometheus.NewRegistry()))
	assert.ErrorContains(t, err, "failed to parse redis URL")
}

func TestNewClient_RecordsOperations(t *testing.T) {
	client, m := setupTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "k", "v", 0).Err())
	_, err := client.Get(ctx, "missing").Result()
	assert.ErrorIs(t, err, goredis.Nil)

	assert.InDelta(t, 1, testutil.ToFloat64(m.OpsTotal.WithLabelValues("set", "success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.OpsTotal.WithLabelValues("get", "success")), 0, "a miss is not an error")
}

func TestSubscriberStore_RoundTrip(t *testing.T) {
	client, _ := setupTestClient(t)
	store := NewSubscriberStore(client)
	ctx := context.Background()

	baseline := sampleSnapshot()
	now := time.Date(2020, 11, 5, 12, 0, 0, 0, time.UTC)
	sub := &domain.Subscriber{
		ID:           "42",
		Watchlist:    []string{"Arizona", "Nevada"},
		PollInterval: 5 * time.Minute,
		Baseline:     &baseline,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, store.Save(ctx, sub))

	got, err := store.Get(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, sub.Watchlist, got.Watchlist)
	assert.Equal(t, 5*time.Minute, got.PollInterval)
	assert.True(t, now.Equal(got.CreatedAt))
	require.NotNil(t, got.Baseline)
	nevada, ok := got.Baseline.State("Nevada")
	require.True(t, ok)
	assert.Equal(t, int64(519), nevada.Votes("Joe Biden"))
	assert.Equal(t, domain.StateActive, got.State())
}

func TestSubscriberStore_GetMissing(t *testing.T) {
	client, _ := setupTestClient(t)
	store := NewSubscriberStore(client)

	_, err := store.Get(context.Background(), "nobody")
	assert.ErrorIs(t, err, domain.ErrSubscriberNotFound)
}

func TestSubscriberStore_ListAndDelete(t *testing.T) {
	client, _ := setupTestClient(t)
	store := NewSubscriberStore(client)
	ctx := context.Background()

	subs, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, subs)

	for _, id := range []domain.SubscriberID{"c", "a", "b"} {
		require.NoError(t, store.Save(ctx, &domain.Subscriber{ID: id, Watchlist: []string{"Nevada"}}))
	}

	require.NoError(t, store.Delete(ctx, "b"))
	require.NoError(t, store.Delete(ctx, "never-existed"))

	subs, err = store.List(ctx)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, domain.SubscriberID("a"), subs[0].ID)
	assert.Equal(t, domain.SubscriberID("c"), subs[1].ID)
	assert.Equal(t, domain.StateNoBaseline, subs[0].State())
}

func TestSubscriberStore_ListSkipsDanglingIndex(t *testing.T) {
	client, _ := setupTestClient(t)
	store := NewSubscriberStore(client)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &domain.Subscriber{ID: "a"}))
	require.NoError(t, client.Del(ctx, subscriberKey("a")).Err())

	subs, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestSnapshotCache(t *testing.T) {
	client, _ := setupTestClient(t)
	cache := NewSnapshotCache(client)
	ctx := context.Background()

	got, err := cache.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	fetched := time.Date(2020, 11, 5, 12, 0, 0, 0, time.UTC)
	require.NoError(t, cache.Store(ctx, domain.CachedSnapshot{Snapshot: sampleSnapshot(), FetchedAt: fetched}))

	got, err = cache.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, fetched.Equal(got.FetchedAt))
	assert.Equal(t, []string{"Nevada"}, got.Snapshot.Regions())

	ttl, err := client.TTL(ctx, snapshotKey).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 23*time.Hour)
}

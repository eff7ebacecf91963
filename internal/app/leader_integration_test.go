package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	redistest "github.com/testcontainers/testcontainers-go/modules/redis"
)

func setupTestRedis(t *testing.T) *goredis.Client {
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

	opts, err := goredis.ParseURL(connStr)
	require.NoError(t, err)

	client := goredis.NewClient(opts)
	require.NoError(t, client.Ping(ctx).Err())
	require.NoError(t, client.FlushAll(ctx).Err())

	return client
}

func TestLeaderElector_TryAcquire_SingleInstance(t *testing.T) {
	rdb := setupTestRedis(t)
	ctx := context.Background()

	elector := NewLeaderElector(rdb, clockwork.NewRealClock(), "instance-1")

	acquired, err := elector.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, acquired, "first instance should acquire leadership")

	val, err := rdb.Get(ctx, leaderLockKey).Result()
	require.NoError(t, err)
	assert.Equal(t, "instance-1", val)

	ttl, err := rdb.TTL(ctx, leaderLockKey).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl.Seconds(), 20.0, "TTL should be ~30s")
	assert.LessOrEqual(t, ttl.Seconds(), 30.0)
}

func TestLeaderElector_TryAcquire_MultipleInstances(t *testing.T) {
	rdb := setupTestRedis(t)
	ctx := context.Background()
	clock := clockwork.NewRealClock()

	acquired, err := NewLeaderElector(rdb, clock, "instance-1").TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, acquired)

	acquired, err = NewLeaderElector(rdb, clock, "instance-2").TryAcquire(ctx)
	require.NoError(t, err)
	assert.False(t, acquired, "instance 2 should NOT become leader")
}

func TestLeaderElector_Renew_LockLost(t *testing.T) {
	rdb := setupTestRedis(t)
	ctx := context.Background()

	elector := NewLeaderElector(rdb, clockwork.NewRealClock(), "instance-1")
	acquired, err := elector.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, acquired)

	require.NoError(t, rdb.Del(ctx, leaderLockKey).Err())

	err = elector.Renew(ctx)
	assert.ErrorContains(t, err, "leader lock lost")
}

func TestLeaderElector_Renew_LockStolen(t *testing.T) {
	rdb := setupTestRedis(t)
	ctx := context.Background()

	elector := NewLeaderElector(rdb, clockwork.NewRealClock(), "instance-1")
	acquired, err := elector.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, acquired)

	require.NoError(t, rdb.Set(ctx, leaderLockKey, "instance-2", 30*time.Second).Err())

	err = elector.Renew(ctx)
	assert.ErrorContains(t, err, "leader lock stolen by instance-2")
}

func TestLeaderElector_Release_NotLeader(t *testing.T) {
	rdb := setupTestRedis(t)
	ctx := context.Background()
	clock := clockwork.NewRealClock()

	elector1 := NewLeaderElector(rdb, clock, "instance-1")
	acquired, err := elector1.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, acquired)

	require.NoError(t, NewLeaderElector(rdb, clock, "instance-2").Release(ctx))

	val, err := rdb.Get(ctx, leaderLockKey).Result()
	require.NoError(t, err)
	assert.Equal(t, "instance-1", val, "instance 1 should still be leader")

	require.NoError(t, elector1.Release(ctx))
	_, err = rdb.Get(ctx, leaderLockKey).Result()
	assert.ErrorIs(t, err, goredis.Nil)
}

func TestLeaderElector_Run_ReleasesOnReturn(t *testing.T) {
	rdb := setupTestRedis(t)
	ctx := context.Background()

	elector := NewLeaderElector(rdb, clockwork.NewRealClock(), "instance-1")

	var ran bool
	err := elector.Run(ctx, func(workCtx context.Context) error {
		ran = true
		val, err := rdb.Get(workCtx, leaderLockKey).Result()
		require.NoError(t, err)
		assert.Equal(t, "instance-1", val)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)

	_, err = rdb.Get(ctx, leaderLockKey).Result()
	assert.ErrorIs(t, err, goredis.Nil, "lock should be released after work returns")
}

func TestLeaderElector_Run_StandbyWaitsForLeader(t *testing.T) {
	rdb := setupTestRedis(t)
	ctx := context.Background()
	clock := clockwork.NewFakeClock()

	require.NoError(t, rdb.Set(ctx, leaderLockKey, "instance-1", 30*time.Second).Err())

	standby := NewLeaderElector(rdb, clock, "instance-2")
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- standby.Run(ctx, func(context.Context) error {
			close(started)
			return nil
		})
	}()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	select {
	case <-started:
		t.Fatal("standby must not run while another instance leads")
	default:
	}

	require.NoError(t, rdb.Del(ctx, leaderLockKey).Err())

	assert.Eventually(t, func() bool {
		clock.Advance(leaderRetryInterval)
		select {
		case <-started:
			return true
		default:
			return false
		}
	}, 5*time.Second, 10*time.Millisecond, "standby did not take over")
	require.NoError(t, <-done)
}

func TestLeaderElector_Run_StepsDownWhenLockStolen(t *testing.T) {
	rdb := setupTestRedis(t)
	ctx := context.Background()
	clock := clockwork.NewFakeClock()

	elector := NewLeaderElector(rdb, clock, "instance-1")
	done := make(chan error, 1)
	go func() {
		done <- elector.Run(ctx, func(workCtx context.Context) error {
			<-workCtx.Done()
			return nil
		})
	}()

	assert.Eventually(t, func() bool {
		val, err := rdb.Get(ctx, leaderLockKey).Result()
		return err == nil && val == "instance-1"
	}, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, rdb.Set(ctx, leaderLockKey, "instance-2", 30*time.Second).Err())

	var runErr error
	assert.Eventually(t, func() bool {
		clock.Advance(leaderRenewInterval)
		select {
		case runErr = <-done:
			return true
		default:
			return false
		}
	}, 5*time.Second, 10*time.Millisecond, "leader did not step down")
	assert.True(t, errors.Is(runErr, ErrLeadershipLost))

	val, err := rdb.Get(ctx, leaderLockKey).Result()
	require.NoError(t, err)
	assert.Equal(t, "instance-2", val, "release must not delete another instance's lock")
}

package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pscheid92/electionwatch/internal/adapter/metrics"
)

func TestBreakerHook_OpensAfterFailures(t *testing.T) {
	m := metrics.NewRedisMetrics(prometheus.NewRegistry())
	h := newBreakerHook(m)

	calls := 0
	process := h.ProcessHook(func(context.Context, goredis.Cmder) error {
		calls++
		return errors.New("connection reset")
	})

	ctx := context.Background()
	for range 5 {
		require.Error(t, process(ctx, goredis.NewStringCmd(ctx, "get", "k")))
	}
	assert.Equal(t, circuitbreaker.OpenState, h.State())
	assert.InDelta(t, 2, testutil.ToFloat64(m.BreakerState), 0)

	cmd := goredis.NewStringCmd(ctx, "get", "k")
	err := process(ctx, cmd)
	require.ErrorIs(t, err, circuitbreaker.ErrOpen)
	require.ErrorIs(t, cmd.Err(), circuitbreaker.ErrOpen)
	assert.Equal(t, 5, calls)
}

func TestBreakerHook_MissesCountAsSuccess(t *testing.T) {
	h := newBreakerHook(metrics.NewRedisMetrics(prometheus.NewRegistry()))
	process := h.ProcessHook(func(context.Context, goredis.Cmder) error { return goredis.Nil })

	ctx := context.Background()
	for range 10 {
		assert.ErrorIs(t, process(ctx, goredis.NewStringCmd(ctx, "get", "k")), goredis.Nil)
	}
	assert.Equal(t, circuitbreaker.ClosedState, h.State())
}

func TestBreakerHook_PipelineFailsFastWhenOpen(t *testing.T) {
	h := newBreakerHook(metrics.NewRedisMetrics(prometheus.NewRegistry()))
	pipeline := h.ProcessPipelineHook(func(context.Context, []goredis.Cmder) error {
		return errors.New("i/o timeout")
	})

	ctx := context.Background()
	for range 5 {
		require.Error(t, pipeline(ctx, nil))
	}

	cmds := []goredis.Cmder{goredis.NewStatusCmd(ctx, "set", "a", "1"), goredis.NewIntCmd(ctx, "sadd", "s", "a")}
	require.ErrorIs(t, pipeline(ctx, cmds), circuitbreaker.ErrOpen)
	for _, cmd := range cmds {
		assert.ErrorIs(t, cmd.Err(), circuitbreaker.ErrOpen)
	}
}

package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	goredis "github.com/redis/go-redis/v9"

	"github.com/pscheid92/electionwatch/internal/adapter/metrics"
)

// breakerHook fails Redis calls fast while Redis is unhealthy. Subscriber
// and snapshot writes are best-effort, so an open breaker only costs
// durability, never a subscriber cycle.
type breakerHook struct {
	cb circuitbreaker.CircuitBreaker[any]
}

var _ goredis.Hook = (*breakerHook)(nil)

// newBreakerHook opens at a 60% failure rate over at least 5 calls in a 10s
// window and probes again after 30s.
func newBreakerHook(m *metrics.RedisMetrics) *breakerHook {
	cb := circuitbreaker.NewBuilder[any]().
		WithFailureRateThreshold(0.6, 5, 10*time.Second).
		WithDelay(30 * time.Second).
		WithSuccessThreshold(1).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			slog.Warn("Circuit breaker state changed",
				"component", "redis",
				"from", e.OldState.String(),
				"to", e.NewState.String(),
			)
			m.BreakerState.Set(metrics.CircuitStateValue(e.NewState))
		}).
		Build()

	return &breakerHook{cb: cb}
}

func (h *breakerHook) DialHook(next goredis.DialHook) goredis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		if !h.cb.TryAcquirePermit() {
			return nil, fmt.Errorf("redis dial: %w", circuitbreaker.ErrOpen)
		}
		conn, err := next(ctx, network, addr)
		h.record(err)
		return conn, err
	}
}

func (h *breakerHook) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		if !h.cb.TryAcquirePermit() {
			err := fmt.Errorf("redis %s: %w", cmd.Name(), circuitbreaker.ErrOpen)
			cmd.SetErr(err)
			return err
		}
		err := next(ctx, cmd)
		h.record(err)
		return err
	}
}

func (h *breakerHook) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []goredis.Cmder) error {
		if !h.cb.TryAcquirePermit() {
			err := fmt.Errorf("redis pipeline: %w", circuitbreaker.ErrOpen)
			for _, cmd := range cmds {
				cmd.SetErr(err)
			}
			return err
		}
		err := next(ctx, cmds)
		h.record(err)
		return err
	}
}

// record counts a result. Misses and caller cancellations say nothing about
// Redis health.
func (h *breakerHook) record(err error) {
	switch {
	case err == nil, errors.Is(err, goredis.Nil):
		h.cb.RecordSuccess()
	case errors.Is(err, context.Canceled):
	default:
		h.cb.RecordError(err)
	}
}

func (h *breakerHook) State() circuitbreaker.State {
	return h.cb.State()
}

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
)

const (
	leaderLockKey       = "electionwatch:poller:leader"
	leaderLockTTL       = 30 * time.Second
	leaderRenewInterval = 10 * time.Second
	leaderRetryInterval = 5 * time.Second
	leaderReleaseWait   = 5 * time.Second
)

// ErrLeadershipLost is returned by Run when the lease could not be renewed.
var ErrLeadershipLost = errors.New("leadership lost")

var releaseScript = goredis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

// LeaderElector implements Redis-based leader election using SET NX with TTL.
// Only the leader polls upstream and serves subscribers; other instances wait
// on standby.
type LeaderElector struct {
	rdb        *goredis.Client
	clock      clockwork.Clock
	instanceID string
	lockKey    string
	lockTTL    time.Duration
}

// NewLeaderElector creates a leader election coordinator.
// instanceID must be unique per instance.
func NewLeaderElector(rdb *goredis.Client, clock clockwork.Clock, instanceID string) *LeaderElector {
	return &LeaderElector{
		rdb:        rdb,
		clock:      clock,
		instanceID: instanceID,
		lockKey:    leaderLockKey,
		lockTTL:    leaderLockTTL,
	}
}

// TryAcquire attempts to become the leader.
func (l *LeaderElector) TryAcquire(ctx context.Context) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, l.lockKey, l.instanceID, l.lockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire leader lock: %w", err)
	}
	return ok, nil
}

// Renew extends the lease. It fails if another instance holds the lock.
func (l *LeaderElector) Renew(ctx context.Context) error {
	current, err := l.rdb.Get(ctx, l.lockKey).Result()
	if errors.Is(err, goredis.Nil) {
		return fmt.Errorf("leader lock lost")
	}
	if err != nil {
		return fmt.Errorf("failed to check leader: %w", err)
	}
	if current != l.instanceID {
		return fmt.Errorf("leader lock stolen by %s", current)
	}

	ok, err := l.rdb.Expire(ctx, l.lockKey, l.lockTTL).Result()
	if err != nil {
		return fmt.Errorf("failed to renew leader lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("leader lock lost during renewal")
	}
	return nil
}

// Release gives up leadership if this instance still holds it.
func (l *LeaderElector) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.rdb, []string{l.lockKey}, l.instanceID).Err()
}

// Run waits until this instance is leader, then calls work with a context
// that is cancelled when ctx ends or the lease cannot be renewed. The lock is
// released when work returns.
func (l *LeaderElector) Run(ctx context.Context, work func(ctx context.Context) error) error {
	if err := l.await(ctx); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Acquired leadership", "instance", l.instanceID)

	workCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	renewDone := make(chan struct{})
	go func() {
		defer close(renewDone)
		l.renewLoop(workCtx, cancel)
	}()

	err := work(workCtx)
	cancel(nil)
	<-renewDone

	releaseCtx, releaseCancel := context.WithTimeout(context.WithoutCancel(ctx), leaderReleaseWait)
	defer releaseCancel()
	if relErr := l.Release(releaseCtx); relErr != nil {
		slog.Error("Failed to release leader lock", "error", relErr)
	}

	if cause := context.Cause(workCtx); errors.Is(cause, ErrLeadershipLost) {
		return errors.Join(cause, err)
	}
	return err
}

func (l *LeaderElector) await(ctx context.Context) error {
	ticker := l.clock.NewTicker(leaderRetryInterval)
	defer ticker.Stop()

	for {
		ok, err := l.TryAcquire(ctx)
		if err != nil {
			slog.WarnContext(ctx, "Leader election attempt failed", "error", err)
		}
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
		}
	}
}

func (l *LeaderElector) renewLoop(ctx context.Context, cancel context.CancelCauseFunc) {
	ticker := l.clock.NewTicker(leaderRenewInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if err := l.Renew(ctx); err != nil {
				slog.ErrorContext(ctx, "Leader renewal failed, stepping down", "error", err)
				cancel(fmt.Errorf("%w: %w", ErrLeadershipLost, err))
				return
			}
		}
	}
}

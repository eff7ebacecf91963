package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pscheid92/electionwatch/internal/domain"
)

const (
	upsertSubscriberSQL = `
INSERT INTO subscribers (id, watchlist, poll_interval_ms, baseline, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET
    watchlist        = EXCLUDED.watchlist,
    poll_interval_ms = EXCLUDED.poll_interval_ms,
    baseline         = EXCLUDED.baseline,
    updated_at       = EXCLUDED.updated_at`

	selectSubscriberSQL = `
SELECT id, watchlist, poll_interval_ms, baseline, created_at, updated_at
FROM subscribers WHERE id = $1`

	listSubscribersSQL = `
SELECT id, watchlist, poll_interval_ms, baseline, created_at, updated_at
FROM subscribers ORDER BY id`

	deleteSubscriberSQL = `DELETE FROM subscribers WHERE id = $1`
)

type SubscriberRepo struct {
	pool *pgxpool.Pool
}

var _ domain.SubscriberRepository = (*SubscriberRepo)(nil)

func NewSubscriberRepo(pool *pgxpool.Pool) *SubscriberRepo {
	return &SubscriberRepo{pool: pool}
}

func (r *SubscriberRepo) Save(ctx context.Context, sub *domain.Subscriber) error {
	var baseline []byte
	if sub.Baseline != nil {
		var err error
		if baseline, err = json.Marshal(sub.Baseline); err != nil {
			return fmt.Errorf("failed to marshal baseline for %s: %w", sub.ID, err)
		}
	}

	watchlist := sub.Watchlist
	if watchlist == nil {
		watchlist = []string{}
	}

	_, err := r.pool.Exec(ctx, upsertSubscriberSQL,
		string(sub.ID), watchlist, sub.PollInterval.Milliseconds(), baseline, sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save subscriber %s: %w", sub.ID, err)
	}
	return nil
}

func (r *SubscriberRepo) Get(ctx context.Context, id domain.SubscriberID) (*domain.Subscriber, error) {
	rows, err := r.pool.Query(ctx, selectSubscriberSQL, string(id))
	if err != nil {
		return nil, fmt.Errorf("failed to get subscriber %s: %w", id, err)
	}
	sub, err := pgx.CollectExactlyOneRow(rows, scanSubscriber)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSubscriberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscriber %s: %w", id, err)
	}
	return sub, nil
}

func (r *SubscriberRepo) Delete(ctx context.Context, id domain.SubscriberID) error {
	if _, err := r.pool.Exec(ctx, deleteSubscriberSQL, string(id)); err != nil {
		return fmt.Errorf("failed to delete subscriber %s: %w", id, err)
	}
	return nil
}

func (r *SubscriberRepo) List(ctx context.Context) ([]*domain.Subscriber, error) {
	rows, err := r.pool.Query(ctx, listSubscribersSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscribers: %w", err)
	}
	subs, err := pgx.CollectRows(rows, scanSubscriber)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscribers: %w", err)
	}
	return subs, nil
}

func scanSubscriber(row pgx.CollectableRow) (*domain.Subscriber, error) {
	var (
		id         string
		watchlist  []string
		intervalMS int64
		baseline   []byte
		sub        domain.Subscriber
	)
	if err := row.Scan(&id, &watchlist, &intervalMS, &baseline, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
		return nil, err
	}

	sub.ID = domain.SubscriberID(id)
	sub.Watchlist = watchlist
	sub.PollInterval = time.Duration(intervalMS) * time.Millisecond
	if baseline != nil {
		var snap domain.ElectionSnapshot
		if err := json.Unmarshal(baseline, &snap); err != nil {
			return nil, fmt.Errorf("failed to unmarshal baseline for %s: %w", id, err)
		}
		sub.Baseline = &snap
	}
	return &sub, nil
}

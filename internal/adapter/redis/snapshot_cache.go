package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pscheid92/electionwatch/internal/domain"
)

const (
	snapshotKey = keyPrefix + "snapshot:latest"
	snapshotTTL = 24 * time.Hour
)

// SnapshotCache keeps the most recent good snapshot so a restarted or
// newly elected instance can answer /info before its first fetch.
type SnapshotCache struct {
	rdb goredis.Cmdable
	ttl time.Duration
}

var _ domain.SnapshotCache = (*SnapshotCache)(nil)

func NewSnapshotCache(rdb goredis.Cmdable) *SnapshotCache {
	return &SnapshotCache{rdb: rdb, ttl: snapshotTTL}
}

// Load returns nil without error when nothing is cached.
func (c *SnapshotCache) Load(ctx context.Context) (*domain.CachedSnapshot, error) {
	data, err := c.rdb.Get(ctx, snapshotKey).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	var cached domain.CachedSnapshot
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &cached, nil
}

func (c *SnapshotCache) Store(ctx context.Context, snap domain.CachedSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := c.rdb.Set(ctx, snapshotKey, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store snapshot: %w", err)
	}
	return nil
}

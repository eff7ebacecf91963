package domain

import (
	"context"
	"time"
)

// Fetcher retrieves the raw upstream payload.
type Fetcher interface {
	FetchRaw(ctx context.Context) ([]byte, error)
}

// CachedSnapshot is the most recent snapshot and when it was fetched.
type CachedSnapshot struct {
	Snapshot  ElectionSnapshot `json:"snapshot"`
	FetchedAt time.Time        `json:"fetched_at"`
}

// SnapshotCache keeps the latest snapshot across restarts.
type SnapshotCache interface {
	Load(ctx context.Context) (*CachedSnapshot, error)
	Store(ctx context.Context, snap CachedSnapshot) error
}

// RegionResolver maps user input (full name or abbreviation, any case) to the
// canonical region name used in snapshots.
type RegionResolver interface {
	Resolve(text string) (string, bool)
	Abbreviation(region string) (string, bool)
}

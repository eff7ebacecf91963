package domain

import (
	"context"
	"math"
	"slices"
	"time"
)

// MaxIntervalMinutes is the longest poll interval, in minutes, that fits in
// a time.Duration.
const MaxIntervalMinutes = math.MaxInt64 / int64(time.Minute)

// SubscriberID identifies a report recipient. Adapters choose the format
// (chat id, API key, ...); the core treats it as opaque.
type SubscriberID string

// SubscriberState is the lifecycle position of a subscriber.
type SubscriberState int

const (
	StateUnregistered SubscriberState = iota
	StateNoBaseline
	StateActive
)

func (s SubscriberState) String() string {
	switch s {
	case StateNoBaseline:
		return "no_baseline"
	case StateActive:
		return "active"
	default:
		return "unregistered"
	}
}

type Subscriber struct {
	ID           SubscriberID      `json:"id"`
	Watchlist    []string          `json:"watchlist"`
	PollInterval time.Duration     `json:"poll_interval"`
	Baseline     *ElectionSnapshot `json:"baseline,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// State derives the lifecycle state. A nil subscriber is unregistered.
func (s *Subscriber) State() SubscriberState {
	switch {
	case s == nil:
		return StateUnregistered
	case s.Baseline == nil:
		return StateNoBaseline
	default:
		return StateActive
	}
}

// Watches reports whether region is on the watchlist.
func (s *Subscriber) Watches(region string) bool {
	_, found := slices.BinarySearch(s.Watchlist, region)
	return found
}

// Watch adds region to the watchlist, keeping it sorted. It returns false if
// the region was already present.
func (s *Subscriber) Watch(region string) bool {
	i, found := slices.BinarySearch(s.Watchlist, region)
	if found {
		return false
	}
	s.Watchlist = slices.Insert(s.Watchlist, i, region)
	return true
}

// Unwatch removes region from the watchlist. The stored baseline for the
// region is left untouched.
func (s *Subscriber) Unwatch(region string) bool {
	i, found := slices.BinarySearch(s.Watchlist, region)
	if !found {
		return false
	}
	s.Watchlist = slices.Delete(s.Watchlist, i, i+1)
	return true
}

// Clone returns a copy that shares the (immutable) baseline but not the watchlist.
func (s *Subscriber) Clone() *Subscriber {
	c := *s
	c.Watchlist = slices.Clone(s.Watchlist)
	return &c
}

type SubscriberRepository interface {
	Save(ctx context.Context, sub *Subscriber) error
	Get(ctx context.Context, id SubscriberID) (*Subscriber, error)
	Delete(ctx context.Context, id SubscriberID) error
	List(ctx context.Context) ([]*Subscriber, error)
}

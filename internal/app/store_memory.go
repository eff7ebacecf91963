package app

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/pscheid92/electionwatch/internal/domain"
)

// MemoryRepository keeps subscribers in process memory for single-instance
// mode and tests. State is lost on restart.
type MemoryRepository struct {
	mu   sync.Mutex
	subs map[domain.SubscriberID]*domain.Subscriber
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{subs: make(map[domain.SubscriberID]*domain.Subscriber)}
}

func (r *MemoryRepository) Save(_ context.Context, sub *domain.Subscriber) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[sub.ID] = sub.Clone()
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id domain.SubscriberID) (*domain.Subscriber, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok {
		return nil, domain.ErrSubscriberNotFound
	}
	return sub.Clone(), nil
}

func (r *MemoryRepository) Delete(_ context.Context, id domain.SubscriberID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subs, id)
	return nil
}

func (r *MemoryRepository) List(_ context.Context) ([]*domain.Subscriber, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.Subscriber, 0, len(r.subs))
	for _, id := range slices.Sorted(maps.Keys(r.subs)) {
		out = append(out, r.subs[id].Clone())
	}
	return out, nil
}

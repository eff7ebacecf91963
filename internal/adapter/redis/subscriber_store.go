package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pscheid92/electionwatch/internal/domain"
)

const (
	subscriberKeyPrefix = keyPrefix + "subscriber:"
	subscriberIndexKey  = keyPrefix + "subscribers"
)

// SubscriberStore persists subscribers as JSON documents plus an index set
// of ids.
type SubscriberStore struct {
	rdb goredis.Cmdable
}

var _ domain.SubscriberRepository = (*SubscriberStore)(nil)

func NewSubscriberStore(rdb goredis.Cmdable) *SubscriberStore {
	return &SubscriberStore{rdb: rdb}
}

func subscriberKey(id domain.SubscriberID) string {
	return subscriberKeyPrefix + string(id)
}

func (s *SubscriberStore) Save(ctx context.Context, sub *domain.Subscriber) error {
	data, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("failed to marshal subscriber %s: %w", sub.ID, err)
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, subscriberKey(sub.ID), data, 0)
		pipe.SAdd(ctx, subscriberIndexKey, string(sub.ID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save subscriber %s: %w", sub.ID, err)
	}
	return nil
}

func (s *SubscriberStore) Get(ctx context.Context, id domain.SubscriberID) (*domain.Subscriber, error) {
	data, err := s.rdb.Get(ctx, subscriberKey(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, domain.ErrSubscriberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscriber %s: %w", id, err)
	}
	return decodeSubscriber(data)
}

func (s *SubscriberStore) Delete(ctx context.Context, id domain.SubscriberID) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, subscriberKey(id))
		pipe.SRem(ctx, subscriberIndexKey, string(id))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete subscriber %s: %w", id, err)
	}
	return nil
}

// List returns every indexed subscriber sorted by id. Index entries whose
// document has disappeared are skipped.
func (s *SubscriberStore) List(ctx context.Context) ([]*domain.Subscriber, error) {
	ids, err := s.rdb.SMembers(ctx, subscriberIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriber ids: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	slices.Sort(ids)

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = subscriberKey(domain.SubscriberID(id))
	}
	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load subscribers: %w", err)
	}

	out := make([]*domain.Subscriber, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		sub, err := decodeSubscriber([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("subscriber %s: %w", ids[i], err)
		}
		out = append(out, sub)
	}
	return out, nil
}

func decodeSubscriber(data []byte) (*domain.Subscriber, error) {
	var sub domain.Subscriber
	if err := json.Unmarshal(data, &sub); err != nil {
		return nil, fmt.Errorf("failed to unmarshal subscriber: %w", err)
	}
	return &sub, nil
}

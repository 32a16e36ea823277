package webhook

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const deliveryKeyPrefix = "medcred:webhook:delivery:"

// DeliveryStore remembers processed delivery IDs so redeliveries are
// acknowledged without being applied twice.
type DeliveryStore interface {
	// MarkDelivered records id and reports whether this is its first delivery.
	MarkDelivered(ctx context.Context, id string) (bool, error)
	// Forget drops id so a later redelivery is processed again.
	Forget(ctx context.Context, id string) error
}

// MemoryDeliveryStore is a process-local DeliveryStore for single-instance
// deployments and tests.
type MemoryDeliveryStore struct {
	mu        sync.Mutex
	seen      map[string]time.Time
	ttl       time.Duration
	now       func() time.Time
	lastSweep time.Time
}

func NewMemoryDeliveryStore(ttl time.Duration) *MemoryDeliveryStore {
	return &MemoryDeliveryStore{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

func (s *MemoryDeliveryStore) MarkDelivered(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastSweep) > s.ttl {
		for k, exp := range s.seen {
			if !now.Before(exp) {
				delete(s.seen, k)
			}
		}
		s.lastSweep = now
	}

	if exp, ok := s.seen[id]; ok && now.Before(exp) {
		return false, nil
	}
	s.seen[id] = now.Add(s.ttl)
	return true, nil
}

func (s *MemoryDeliveryStore) Forget(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.seen, id)
	return nil
}

// RedisDeliveryStore shares delivery IDs across instances with SETNX.
type RedisDeliveryStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisDeliveryStore(client *redis.Client, ttl time.Duration) *RedisDeliveryStore {
	return &RedisDeliveryStore{client: client, ttl: ttl}
}

func (s *RedisDeliveryStore) MarkDelivered(ctx context.Context, id string) (bool, error) {
	first, err := s.client.SetNX(ctx, deliveryKeyPrefix+id, "1", s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("mark webhook delivery: %w", err)
	}
	return first, nil
}

func (s *RedisDeliveryStore) Forget(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, deliveryKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("forget webhook delivery: %w", err)
	}
	return nil
}

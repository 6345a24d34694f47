package services

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultIdempotencyTTL is how long a used key keeps rejecting repeats.
const DefaultIdempotencyTTL = 24 * time.Hour

// IdempotencyStore reserves request keys for a bounded window.
type IdempotencyStore interface {
	// Reserve returns false when key is already reserved and not yet expired.
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release frees a key whose request failed so it can be retried.
	Release(ctx context.Context, key string) error
}

const memorySweepThreshold = 1024

// MemoryIdempotencyStore keeps reservations in process memory; expired keys are swept lazily.
type MemoryIdempotencyStore struct {
	mu      sync.Mutex
	entries map[string]time.Time // key -> expiry
	clock   func() time.Time
}

func NewMemoryIdempotencyStore(clock func() time.Time) *MemoryIdempotencyStore {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryIdempotencyStore{entries: make(map[string]time.Time), clock: clock}
}

func (m *MemoryIdempotencyStore) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock()
	if len(m.entries) >= memorySweepThreshold {
		for k, expiry := range m.entries {
			if !now.Before(expiry) {
				delete(m.entries, k)
			}
		}
	}
	if expiry, ok := m.entries[key]; ok && now.Before(expiry) {
		return false, nil
	}
	m.entries[key] = now.Add(ttl)
	return true, nil
}

func (m *MemoryIdempotencyStore) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// RedisIdempotencyStore reserves keys with SETNX so every ledger-api replica sees them.
type RedisIdempotencyStore struct {
	client *redis.Client
	prefix string
}

func NewRedisIdempotencyStore(client *redis.Client, prefix string) *RedisIdempotencyStore {
	if prefix == "" {
		prefix = "ledger:idem"
	}
	return &RedisIdempotencyStore{client: client, prefix: prefix}
}

func (r *RedisIdempotencyStore) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, r.prefix+":"+key, time.Now().UTC().Format(time.RFC3339Nano), ttl).Result()
}

func (r *RedisIdempotencyStore) Release(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.prefix+":"+key).Err()
}

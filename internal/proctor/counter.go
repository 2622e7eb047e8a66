package proctor

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// CounterStore is the injected key-value capability backing the persisted
// violation counter. The count is stored as a string-encoded integer so any
// durable scalar store satisfies the contract.
type CounterStore interface {
	Get(ctx context.Context, key string) (int, error)
	Set(ctx context.Context, key string, count int) error
	Delete(ctx context.Context, key string) error
}

// RedisCounterStore persists violation counters in Redis. Keys survive a
// full page reload during an in-progress exam; they are deleted on exam
// completion.
type RedisCounterStore struct {
	rdb *redis.Client
}

// NewRedisCounterStore creates a Redis-backed counter store.
func NewRedisCounterStore(rdb *redis.Client) *RedisCounterStore {
	return &RedisCounterStore{rdb: rdb}
}

// Get returns the stored count, or zero when the key is absent.
func (s *RedisCounterStore) Get(ctx context.Context, key string) (int, error) {
	val, err := s.rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("get counter: %w", err)
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid counter value %q: %w", val, err)
	}
	return n, nil
}

// Set stores the count as a string-encoded integer.
func (s *RedisCounterStore) Set(ctx context.Context, key string, count int) error {
	if err := s.rdb.Set(ctx, key, strconv.Itoa(count), 0).Err(); err != nil {
		return fmt.Errorf("set counter: %w", err)
	}
	return nil
}

// Delete removes the counter key.
func (s *RedisCounterStore) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("delete counter: %w", err)
	}
	return nil
}

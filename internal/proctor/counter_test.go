package proctor

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) *RedisCounterStore {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisCounterStore(rdb)
}

func TestRedisCounterStoreMissingKeyIsZero(t *testing.T) {
	store := newRedisStore(t)

	count, err := store.Get(context.Background(), "violations:absent")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestRedisCounterStoreSetGet(t *testing.T) {
	ctx := context.Background()
	store := newRedisStore(t)

	require.NoError(t, store.Set(ctx, "violations:abc", 3))

	count, err := store.Get(ctx, "violations:abc")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestRedisCounterStoreDelete(t *testing.T) {
	ctx := context.Background()
	store := newRedisStore(t)
	require.NoError(t, store.Set(ctx, "violations:abc", 5))

	require.NoError(t, store.Delete(ctx, "violations:abc"))

	count, err := store.Get(ctx, "violations:abc")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

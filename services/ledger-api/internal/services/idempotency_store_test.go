package services

import (
	"context"
	"testing"
	"time"

	"github.com/nimeshabuddhika/resilient-ledger/pkg/cache"
	testutils "github.com/nimeshabuddhika/resilient-ledger/pkg/utils/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMemoryIdempotencyStore(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryIdempotencyStore(func() time.Time { return now })
	ctx := context.Background()

	ok, err := store.Reserve(ctx, "alice:k1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Reserve(ctx, "alice:k1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "still inside the window")

	now = now.Add(time.Minute)
	ok, err = store.Reserve(ctx, "alice:k1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "window elapsed")

	require.NoError(t, store.Release(ctx, "alice:k1"))
	ok, err = store.Reserve(ctx, "alice:k1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "released keys are reusable")
}

func TestMemoryIdempotencyStore_SweepsExpired(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryIdempotencyStore(func() time.Time { return now })
	ctx := context.Background()
	for i := 0; i < memorySweepThreshold; i++ {
		_, err := store.Reserve(ctx, time.Duration(i).String(), time.Second)
		require.NoError(t, err)
	}
	now = now.Add(time.Hour)
	_, err := store.Reserve(ctx, "fresh", time.Second)
	require.NoError(t, err)
	assert.Len(t, store.entries, 1)
}

func TestMemoryIdempotencyStore_CancelledContext(t *testing.T) {
	store := NewMemoryIdempotencyStore(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := store.Reserve(ctx, "k", time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRedisIdempotencyStore_Integration(t *testing.T) {
	testutils.RequireDocker(t)

	addr, terminate, err := testutils.StartRedisForTests()
	require.NoError(t, err)
	defer terminate()

	ctx := context.Background()
	client, closeClient, err := cache.New(ctx, zap.NewNop(), cache.Config{Addr: addr})
	require.NoError(t, err)
	defer closeClient()

	store := NewRedisIdempotencyStore(client, "")
	ok, err := store.Reserve(ctx, "alice:k1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Reserve(ctx, "alice:k1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	ttl, err := client.TTL(ctx, "ledger:idem:alice:k1").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, store.Release(ctx, "alice:k1"))
	ok, err = store.Reserve(ctx, "alice:k1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

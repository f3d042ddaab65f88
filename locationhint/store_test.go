package locationhint

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/edgecore/edge-go/core"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreSetAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Set(ctx, "or2", time.Hour))
	hint, ok, err := store.Get(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "or2", hint.Value)
}

func TestMemoryStoreEmptyValueClears(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Set(ctx, "or2", time.Hour))
	require.NoError(t, store.Set(ctx, "", time.Hour))

	_, ok, err := store.Get(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Set(ctx, "or2", 10*time.Millisecond))
	time.Sleep(30 * time.Millisecond)

	_, ok, err := store.Get(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryStoreDefaultTTL(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Set(ctx, "or2", 0))
	hint, ok, err := store.Get(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.WithinDuration(t, time.Now().Add(DefaultTTL), hint.ExpiresAt, time.Second)
}

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client, err := core.NewRedisClient(core.RedisClientOptions{
		RedisURL:  fmt.Sprintf("redis://%s", mr.Addr()),
		DB:        core.RedisDBLocationHint,
		Namespace: "edge",
	})
	require.NoError(t, err)

	return NewRedisStore(client, nil), mr
}

func TestRedisStoreSetGetClear(t *testing.T) {
	store, mr := newTestRedisStore(t)
	defer mr.Close()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "or2", time.Hour))
	hint, ok, err := store.Get(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "or2", hint.Value)

	require.NoError(t, store.Clear(ctx))
	_, ok, err = store.Get(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisStoreExpiry(t *testing.T) {
	store, mr := newTestRedisStore(t)
	defer mr.Close()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "or2", time.Second))
	mr.FastForward(2 * time.Second)

	_, ok, err := store.Get(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

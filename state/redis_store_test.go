package state

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/edgecore/edge-go/core"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	client, err := core.NewRedisClient(core.RedisClientOptions{
		RedisURL:  fmt.Sprintf("redis://%s", mr.Addr()),
		DB:        core.RedisDBState,
		Namespace: "edge",
	})
	require.NoError(t, err)

	return NewRedisStore(client, nil), mr
}

func TestRedisStoreMergeAndActiveEntries(t *testing.T) {
	store, mr := newTestRedisStore(t)
	defer mr.Close()

	ctx := context.Background()
	require.NoError(t, store.Merge(ctx, []Update{
		{Key: "k1", Value: "v1", MaxAge: time.Hour},
		{Key: "k2", Value: "v2", MaxAge: time.Hour},
	}))

	entries, err := store.ActiveEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestRedisStoreMaxAgeZeroDeletes(t *testing.T) {
	store, mr := newTestRedisStore(t)
	defer mr.Close()

	ctx := context.Background()
	require.NoError(t, store.Merge(ctx, []Update{{Key: "k", Value: "v", MaxAge: time.Hour}}))
	require.NoError(t, store.Merge(ctx, []Update{{Key: "k", MaxAge: 0}}))

	entries, err := store.ActiveEntries(ctx)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestRedisStoreExpiry(t *testing.T) {
	store, mr := newTestRedisStore(t)
	defer mr.Close()

	ctx := context.Background()
	require.NoError(t, store.Merge(ctx, []Update{{Key: "k", Value: "v", MaxAge: time.Second}}))
	mr.FastForward(2 * time.Second)

	entries, err := store.ActiveEntries(ctx)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestRedisStoreClear(t *testing.T) {
	store, mr := newTestRedisStore(t)
	defer mr.Close()

	ctx := context.Background()
	require.NoError(t, store.Merge(ctx, []Update{
		{Key: "a", Value: "1", MaxAge: time.Hour},
		{Key: "b", Value: "2", MaxAge: time.Hour},
	}))
	require.NoError(t, store.Clear(ctx))

	entries, err := store.ActiveEntries(ctx)
	require.NoError(t, err)
	require.Empty(t, entries)
}

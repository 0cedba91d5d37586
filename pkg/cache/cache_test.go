package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(client), mr
}

func TestCache_PutTracked_PutsValueAndTracksKey(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.PutTracked(ctx, "orders:42", "orders:42:listing", map[string]int{"count": 3}, time.Minute))

	require.True(t, mr.Exists("orders:42:listing"))
	members, err := mr.SMembers(trackingSetKey("orders:42"))
	require.NoError(t, err)
	require.Contains(t, members, "orders:42:listing")
}

func TestCache_PutTracked_RefreshesTrackingSetTTL(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.PutTracked(ctx, "orders:42", "orders:42:listing", 1, time.Minute))

	ttl := mr.TTL(trackingSetKey("orders:42"))
	require.Equal(t, time.Minute*trackingSetTTLMultiplier, ttl)
}

func TestCache_Get_RoundTrips(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	type payload struct {
		Count int `json:"count"`
	}
	require.NoError(t, c.PutTracked(ctx, "orders:42", "orders:42:listing", payload{Count: 7}, time.Minute))

	var got payload
	require.NoError(t, c.Get(ctx, "orders:42:listing", &got))
	require.Equal(t, 7, got.Count)
}

func TestCache_Get_Miss(t *testing.T) {
	c, _ := newTestCache(t)
	var got map[string]int
	err := c.Get(context.Background(), "missing-key", &got)
	require.ErrorIs(t, err, redis.Nil)
}

func TestCache_InvalidateNamespace_DeletesAllTrackedKeys(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.PutTracked(ctx, "orders:42", "orders:42:listing", 1, time.Minute))
	require.NoError(t, c.PutTracked(ctx, "orders:42", "orders:42:summary", 2, time.Minute))
	require.NoError(t, c.PutTracked(ctx, "orders:43", "orders:43:listing", 3, time.Minute))

	n, err := c.InvalidateNamespace(ctx, "orders:42")
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	require.False(t, mr.Exists("orders:42:listing"))
	require.False(t, mr.Exists("orders:42:summary"))
	require.True(t, mr.Exists("orders:43:listing"))
	require.False(t, mr.Exists(trackingSetKey("orders:42")))
}

func TestCache_InvalidateNamespace_EmptyNamespaceIsNoop(t *testing.T) {
	c, _ := newTestCache(t)
	n, err := c.InvalidateNamespace(context.Background(), "never-used")
	require.NoError(t, err)
	require.EqualValues(t, 0, n)
}

// Package cache implements the Cache Keystore (CK): a namespace-tracked
// Redis cache. Every PutTracked call records its key in a per-namespace
// tracking set; InvalidateNamespace deletes every tracked key plus the
// tracking set itself in one atomic script, never a KEYS/SCAN pattern sweep
// (spec.md §4.5's explicit constraint — scans do not compose with a
// cache that may hold millions of keys across unrelated namespaces).
//
// Grounded on the teacher's pkg/kernel/limiter_redis.go: the
// redis.NewScript Lua-atomicity idiom, generalized from a token-bucket
// counter to a tracked-set invalidation.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// invalidateScript deletes every member of the namespace's tracking set and
// the tracking set itself, atomically. Run once per InvalidateNamespace
// call regardless of how many keys are tracked.
//
// KEYS[1] = tracking set key (e.g. "ck:ns:orders:42")
var invalidateScript = redis.NewScript(`
local members = redis.call("SMEMBERS", KEYS[1])
for _, k in ipairs(members) do
    redis.call("DEL", k)
end
redis.call("DEL", KEYS[1])
return #members
`)

// trackingSetTTLMultiplier is k in spec.md §3's T_set = k·T_entry: the
// tracking set must outlive every entry it tracks, or a late-arriving
// PutTracked's SADD could land in a set that already expired while the
// entry it describes is still live.
const trackingSetTTLMultiplier = 4

// Cache is the Redis-backed Cache Keystore.
type Cache struct {
	client *redis.Client
}

// New wraps an already-configured *redis.Client.
func New(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func trackingSetKey(namespace string) string {
	return fmt.Sprintf("ck:ns:%s", namespace)
}

// PutTracked stores value under key with ttl, adds key to namespace's
// tracking set, and refreshes the tracking set's own TTL to k·ttl
// (spec.md §3's Tracked Cache Entry invariant and §4.5's put_tracked
// definition: the tracking set must self-clean like any other cache
// entry, not live forever). Uses a MULTI/EXEC pipeline so all three
// commands apply atomically in one round trip.
func (c *Cache) PutTracked(ctx context.Context, namespace, key string, value any, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: put tracked: marshal: %w", err)
	}

	pipe := c.client.TxPipeline()
	pipe.Set(ctx, key, payload, ttl)
	pipe.SAdd(ctx, trackingSetKey(namespace), key)
	pipe.Expire(ctx, trackingSetKey(namespace), ttl*trackingSetTTLMultiplier)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache: put tracked: %w", err)
	}
	return nil
}

// Get fetches key and unmarshals it into dest. Returns redis.Nil (via the
// underlying client) on a cache miss — callers should treat that as "go to
// the system of record," never as an error worth surfacing to the caller
// of the read path.
func (c *Cache) Get(ctx context.Context, key string, dest any) error {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

// InvalidateNamespace deletes every key tracked under namespace, plus the
// tracking set, atomically. This is the sole invalidation primitive CDCC
// and WP use — no pattern-matching sweep ever runs against the keyspace.
func (c *Cache) InvalidateNamespace(ctx context.Context, namespace string) (int64, error) {
	res, err := invalidateScript.Run(ctx, c.client, []string{trackingSetKey(namespace)}).Result()
	if err != nil {
		return 0, fmt.Errorf("cache: invalidate namespace: %w", err)
	}
	n, ok := res.(int64)
	if !ok {
		return 0, fmt.Errorf("cache: invalidate namespace: unexpected script result %T", res)
	}
	return n, nil
}

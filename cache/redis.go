package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"github.com/dmntable/dmntable/store"
)

var cacheGetDurationMs = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "dmntable_cache_get_duration_ms",
	Help:    "Latency of decision-table cache lookups in milliseconds",
	Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50},
})

const tableKeyPrefix = "dmntable:def:"

// RedisTableCache is a Redis-backed implementation of TableCache. This is
// the implementation to reach for in a multi-instance deployment where every
// instance must observe the same invalidations.
type RedisTableCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisTableCache constructs a Redis-backed table cache. ttl of zero
// stores entries with no expiration.
func NewRedisTableCache(client *redis.Client, ttl time.Duration) *RedisTableCache {
	return &RedisTableCache{client: client, ttl: ttl}
}

// Get retrieves a cached definition. Errors talking to Redis are treated as
// cache misses so a degraded cache never blocks evaluation.
func (c *RedisTableCache) Get(namespace, id string) (*store.Definition, bool) {
	start := time.Now()
	defer func() {
		cacheGetDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	raw, err := c.client.Get(ctx, tableKeyPrefix+namespace+":"+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		return nil, false
	}

	var def store.Definition
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, false
	}
	return &def, true
}

// Set stores a definition in Redis, silently dropping the write on failure;
// a cache-write failure degrades to a store round trip on the next Get, not
// an evaluation failure.
func (c *RedisTableCache) Set(namespace, id string, def *store.Definition) {
	raw, err := json.Marshal(def)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c.client.Set(ctx, tableKeyPrefix+namespace+":"+id, raw, c.ttl)
}

func (c *RedisTableCache) Invalidate(namespace, id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c.client.Del(ctx, tableKeyPrefix+namespace+":"+id)
}

// InvalidateNamespace scans for and removes every cached entry under
// namespace. SCAN is used instead of KEYS to avoid blocking Redis on large
// keyspaces.
func (c *RedisTableCache) InvalidateNamespace(namespace string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pattern := tableKeyPrefix + namespace + ":*"
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if len(keys) > 0 {
		c.client.Del(ctx, keys...)
	}
}

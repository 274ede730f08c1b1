package market

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/coinlens/coinlens/internal/metrics"
)

// Cache is a TTL cache for market data. A value past its TTL is still
// returned, flagged as stale, until it is dropped entirely at the hard
// expiry. Callers decide whether stale data is acceptable.
type Cache interface {
	Get(ctx context.Context, key string) (value []byte, stale bool, ok bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// staleFactor controls how long past the soft TTL an entry survives before
// it is evicted outright.
const staleFactor = 4

type cacheEnvelope struct {
	StoredAt time.Time       `json:"stored_at"`
	TTLMs    int64           `json:"ttl_ms"`
	Value    json.RawMessage `json:"value"`
}

// RedisCache implements Cache on top of Redis. Hard expiry is delegated to
// Redis key TTLs; staleness is computed from the stored timestamp.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache creates a Redis-backed cache. Keys are namespaced under
// prefix (default "market:").
func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	if prefix == "" {
		prefix = "market:"
	}
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, bool) {
	raw, err := c.client.Get(ctx, c.prefix+key).Result()
	if err == redis.Nil {
		metrics.CacheMisses.Inc()
		return nil, false, false
	}
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Redis error during cache lookup")
		metrics.CacheMisses.Inc()
		return nil, false, false
	}

	var env cacheEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to unmarshal cache envelope")
		metrics.CacheMisses.Inc()
		return nil, false, false
	}

	stale := time.Since(env.StoredAt) > time.Duration(env.TTLMs)*time.Millisecond
	metrics.CacheHits.Inc()
	return env.Value, stale, true
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	env := cacheEnvelope{
		StoredAt: time.Now(),
		TTLMs:    ttl.Milliseconds(),
		Value:    value,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal cache envelope: %w", err)
	}

	if err := c.client.Set(ctx, c.prefix+key, data, ttl*staleFactor).Err(); err != nil {
		return fmt.Errorf("failed to cache %s: %w", key, err)
	}
	return nil
}

// MemoryCache is an in-process Cache for tests and cache-less deployments.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	storedAt time.Time
	ttl      time.Duration
	value    []byte
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry)}
}

func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, bool, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		metrics.CacheMisses.Inc()
		return nil, false, false
	}

	age := time.Since(entry.storedAt)
	if age > entry.ttl*staleFactor {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		metrics.CacheMisses.Inc()
		return nil, false, false
	}

	metrics.CacheHits.Inc()
	return entry.value, age > entry.ttl, true
}

func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	c.entries[key] = memoryEntry{storedAt: time.Now(), ttl: ttl, value: value}
	c.mu.Unlock()
	return nil
}

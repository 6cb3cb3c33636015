// Package accesscache is the keyed cache in front of the authorization
// lookup paths and the resource/operation registry. Values are JSON encoded
// and absence is cached too, so repeated misses do not hit the database.
package accesscache

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// MetricsRecorder receives cache hit/miss counts per key family.
type MetricsRecorder interface {
	CacheHit(family string)
	CacheMiss(family string)
}

// Cache wraps Redis with JSON encoding and explicit invalidation.
// A lookup error degrades to a miss: the caller falls through to the
// database, never to an unchecked allow.
type Cache struct {
	client     *redis.Client
	defaultTTL time.Duration
	logger     *slog.Logger
	metrics    MetricsRecorder
}

// New constructs the cache service. defaultTTL zero means entries live until
// explicit invalidation.
func New(client *redis.Client, defaultTTL time.Duration, logger *slog.Logger, metrics MetricsRecorder) *Cache {
	return &Cache{client: client, defaultTTL: defaultTTL, logger: logger, metrics: metrics}
}

// GetJSON loads a cached value into dest. It reports whether the key was
// present; errors are logged and treated as a miss.
func (c *Cache) GetJSON(ctx context.Context, key string, dest any) bool {
	if c == nil || c.client == nil {
		return false
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		c.miss(key)
		return false
	}
	if err != nil {
		if c.logger != nil {
			c.logger.Warn("cache get", slog.String("key", key), slog.Any("error", err))
		}
		c.miss(key)
		return false
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		if c.logger != nil {
			c.logger.Warn("cache decode", slog.String("key", key), slog.Any("error", err))
		}
		c.miss(key)
		return false
	}
	c.hit(key)
	return true
}

// SetJSON stores a value under key. ttl <= 0 falls back to the default TTL;
// a zero default persists the entry until invalidation.
func (c *Cache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) {
	if c == nil || c.client == nil {
		return
	}
	payload, err := json.Marshal(value)
	if err != nil {
		if c.logger != nil {
			c.logger.Warn("cache encode", slog.String("key", key), slog.Any("error", err))
		}
		return
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	if err := c.client.Set(ctx, key, payload, ttl).Err(); err != nil && c.logger != nil {
		c.logger.Warn("cache set", slog.String("key", key), slog.Any("error", err))
	}
}

// Invalidate removes the given keys. Large sets are deleted in chunks.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) error {
	if c == nil || c.client == nil || len(keys) == 0 {
		return nil
	}
	const chunk = 512
	for start := 0; start < len(keys); start += chunk {
		end := start + chunk
		if end > len(keys) {
			end = len(keys)
		}
		if err := c.client.Del(ctx, keys[start:end]...).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Cache) hit(key string) {
	if c.metrics != nil {
		c.metrics.CacheHit(keyFamily(key))
	}
}

func (c *Cache) miss(key string) {
	if c.metrics != nil {
		c.metrics.CacheMiss(keyFamily(key))
	}
}

func keyFamily(key string) string {
	if idx := strings.IndexByte(key, '-'); idx > 0 {
		return key[:idx]
	}
	return key
}

// TTLForExpiry converts the soonest grant expiry among cached rows into a
// TTL so a cached decision never outlives the grant. Zero expiry means no
// bound. A non-positive result means the rows are already at their expiry
// and must not be cached at all.
func TTLForExpiry(soonest int64, now time.Time) (time.Duration, bool) {
	if soonest == 0 {
		return 0, true
	}
	ttl := time.Unix(soonest, 0).Sub(now)
	if ttl <= 0 {
		return 0, false
	}
	return ttl, true
}

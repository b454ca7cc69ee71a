package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "rcng"

// Observer receives hit and miss notifications per entity family.
type Observer interface {
	Hit(family string)
	Miss(family string)
}

// Cache is a read-through JSON cache over Redis. Keys are namespaced by
// entity family and a per-family version, so invalidating one family never
// touches another. A nil *Cache is valid and always calls the loader.
type Cache struct {
	client   *redis.Client
	logger   *slog.Logger
	observer Observer
	group    singleflight.Group
}

// Option configures the cache.
type Option func(*Cache)

// WithLogger sets the logger used for backend failures.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) { c.logger = logger }
}

// WithObserver sets the hit/miss observer.
func WithObserver(o Observer) Option {
	return func(c *Cache) { c.observer = o }
}

// NewCache wraps client. Passing a nil client yields a pass-through cache.
func NewCache(client *redis.Client, opts ...Option) *Cache {
	if client == nil {
		return nil
	}
	c := &Cache{client: client, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Remember returns the cached value for family/key, computing it with loader
// on a miss. Backend failures fall back to the loader.
func (c *Cache) Remember(ctx context.Context, family, key string, ttl time.Duration, dest any, loader func(context.Context) (any, error)) error {
	if loader == nil {
		return errors.New("cache: loader required")
	}
	if c == nil || c.client == nil {
		return load(ctx, dest, loader)
	}

	version, err := c.version(ctx, family)
	if err != nil {
		c.logger.Warn("cache version lookup failed", slog.String("family", family), slog.Any("error", err))
		return load(ctx, dest, loader)
	}
	fullKey := dataKey(family, version, key)

	payload, err := c.client.Get(ctx, fullKey).Bytes()
	if err == nil {
		c.hit(family)
		return json.Unmarshal(payload, dest)
	}
	if !errors.Is(err, redis.Nil) {
		c.logger.Warn("cache get failed", slog.String("key", fullKey), slog.Any("error", err))
		return load(ctx, dest, loader)
	}
	c.miss(family)

	raw, err, _ := c.group.Do(fullKey, func() (any, error) {
		value, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		if err := c.client.Set(ctx, fullKey, encoded, ttl).Err(); err != nil {
			c.logger.Warn("cache set failed", slog.String("key", fullKey), slog.Any("error", err))
		}
		return encoded, nil
	})
	if err != nil {
		return err
	}
	return json.Unmarshal(raw.([]byte), dest)
}

// Forget removes a single key from the current version of family.
func (c *Cache) Forget(ctx context.Context, family, key string) error {
	if c == nil || c.client == nil {
		return nil
	}
	version, err := c.version(ctx, family)
	if err != nil {
		return err
	}
	return c.client.Del(ctx, dataKey(family, version, key)).Err()
}

// ForgetFamily invalidates every key of family by bumping its version. Old
// entries expire on their own TTL.
func (c *Cache) ForgetFamily(ctx context.Context, family string) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, versionKey(family)).Err()
}

// Invalidate bumps family and logs instead of failing; writes must not fail
// because the cache is unavailable.
func (c *Cache) Invalidate(ctx context.Context, family string) {
	if err := c.ForgetFamily(ctx, family); err != nil {
		c.logger.Warn("cache invalidate failed", slog.String("family", family), slog.Any("error", err))
	}
}

func (c *Cache) version(ctx context.Context, family string) (int64, error) {
	ver, err := c.client.Get(ctx, versionKey(family)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return ver, err
}

func (c *Cache) hit(family string) {
	if c.observer != nil {
		c.observer.Hit(family)
	}
}

func (c *Cache) miss(family string) {
	if c.observer != nil {
		c.observer.Miss(family)
	}
}

func load(ctx context.Context, dest any, loader func(context.Context) (any, error)) error {
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

func versionKey(family string) string {
	return strings.Join([]string{keyPrefix, family, "version"}, ":")
}

func dataKey(family string, version int64, key string) string {
	return fmt.Sprintf("%s:%s:v%d:%s", keyPrefix, family, version, key)
}

// Key joins parts into a cache key segment.
func Key(parts ...any) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, fmt.Sprint(p))
	}
	return strings.Join(out, ":")
}

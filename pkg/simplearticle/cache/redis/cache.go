// Package redis caches resolved redirect destinations in Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tendant/simple-article/pkg/simplearticle"
)

const (
	// DefaultTTL bounds how long a resolved destination is served from cache.
	DefaultTTL = 5 * time.Minute
	// DefaultPrefix namespaces redirect keys.
	DefaultPrefix = "simplearticle:redirect:"
)

// Cache implements simplearticle.RedirectCache on top of a Redis client.
type Cache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ simplearticle.RedirectCache = (*Cache)(nil)

// Option configures a Cache.
type Option func(*Cache)

// WithPrefix overrides the key prefix.
func WithPrefix(prefix string) Option {
	return func(c *Cache) {
		c.prefix = prefix
	}
}

// WithTTL overrides the entry lifetime. Non-positive values keep the default.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// New wraps an existing client.
func New(client redis.UniversalClient, opts ...Option) *Cache {
	c := &Cache{client: client, prefix: DefaultPrefix, ttl: DefaultTTL}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromURL parses a redis:// URL, connects and pings the server.
func NewFromURL(ctx context.Context, url string, opts ...Option) (*Cache, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(options)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return New(client, opts...), nil
}

// Key returns the Redis key used for slug.
func (c *Cache) Key(slug string) string {
	return c.prefix + slug
}

// Get returns the cached destination for slug.
func (c *Cache) Get(ctx context.Context, slug string) (string, bool, error) {
	target, err := c.client.Get(ctx, c.Key(slug)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return target, true, nil
}

// Set stores the destination for slug.
func (c *Cache) Set(ctx context.Context, slug, target string) error {
	return c.client.Set(ctx, c.Key(slug), target, c.ttl).Err()
}

// Invalidate drops the given slugs.
func (c *Cache) Invalidate(ctx context.Context, slugs ...string) error {
	if len(slugs) == 0 {
		return nil
	}
	keys := make([]string, len(slugs))
	for i, slug := range slugs {
		keys[i] = c.Key(slug)
	}
	return c.client.Del(ctx, keys...).Err()
}

// Ping checks the connection.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (c *Cache) Close() error {
	return c.client.Close()
}

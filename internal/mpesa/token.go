package mpesa

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenCache stores the provider access token between requests so every
// STK push does not regenerate it.
type TokenCache interface {
	// Get returns the cached token, or "" when none is cached.
	Get(ctx context.Context) (string, error)
	Set(ctx context.Context, token string, ttl time.Duration) error
}

// RedisCache caches the access token in Redis.
type RedisCache struct {
	client *redis.Client
	key    string
}

// NewRedisCache creates a Redis-backed token cache.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client, key: "mpesa:access_token"}
}

// Get returns the cached token, or "" when expired or missing.
func (c *RedisCache) Get(ctx context.Context) (string, error) {
	token, err := c.client.Get(ctx, c.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return token, nil
}

// Set stores the token with the given TTL.
func (c *RedisCache) Set(ctx context.Context, token string, ttl time.Duration) error {
	return c.client.Set(ctx, c.key, token, ttl).Err()
}

// MemoryCache is an in-process token cache used when Redis is not configured.
type MemoryCache struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewMemoryCache creates an in-memory token cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{}
}

// Get returns the cached token, or "" when expired or missing.
func (c *MemoryCache) Get(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == "" || time.Now().After(c.expiresAt) {
		return "", nil
	}
	return c.token, nil
}

// Set stores the token with the given TTL.
func (c *MemoryCache) Set(ctx context.Context, token string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	c.expiresAt = time.Now().Add(ttl)
	return nil
}

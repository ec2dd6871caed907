package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores health records by provider name. Implementations must be safe
// for concurrent use; freshness is decided by the Tracker, not the cache.
type Cache interface {
	Get(ctx context.Context, provider string) (ProviderHealth, bool, error)
	Set(ctx context.Context, h ProviderHealth, ttl time.Duration) error
	Delete(ctx context.Context, provider string) error
}

// MemoryCache is an in-process Cache. Concurrent writers to the same key
// resolve last-write-wins.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]ProviderHealth
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]ProviderHealth)}
}

func (c *MemoryCache) Get(_ context.Context, provider string) (ProviderHealth, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	h, ok := c.entries[provider]
	return h, ok, nil
}

func (c *MemoryCache) Set(_ context.Context, h ProviderHealth, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[h.Provider] = h
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, provider string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, provider)
	return nil
}

func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// RedisCache shares health records between processes. Values are JSON and
// expire with the tracker TTL.
type RedisCache struct {
	client redis.Cmdable
	prefix string
}

func NewRedisCache(client redis.Cmdable, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) key(provider string) string {
	return c.prefix + provider
}

func (c *RedisCache) Get(ctx context.Context, provider string) (ProviderHealth, bool, error) {
	data, err := c.client.Get(ctx, c.key(provider)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ProviderHealth{}, false, nil
	}
	if err != nil {
		return ProviderHealth{}, false, fmt.Errorf("redis get %s: %w", c.key(provider), err)
	}

	var h ProviderHealth
	if err := json.Unmarshal(data, &h); err != nil {
		return ProviderHealth{}, false, fmt.Errorf("decode health record %s: %w", provider, err)
	}
	return h, true, nil
}

func (c *RedisCache) Set(ctx context.Context, h ProviderHealth, ttl time.Duration) error {
	data, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("encode health record %s: %w", h.Provider, err)
	}
	if err := c.client.Set(ctx, c.key(h.Provider), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", c.key(h.Provider), err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, provider string) error {
	if err := c.client.Del(ctx, c.key(provider)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", c.key(provider), err)
	}
	return nil
}

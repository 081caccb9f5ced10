package cache

import (
	"context"
	"time"
)

// LayeredCache implements two-level cache (L1: Memory, L2: Redis).
type LayeredCache struct {
	memCache   *MemoryCache
	redisCache *RedisCache
}

// NewLayeredCache creates a layered cache with memory and Redis.
func NewLayeredCache(redisCache *RedisCache) *LayeredCache {
	return &LayeredCache{
		memCache:   NewMemoryCache(WithMemoryMaxSize(1000)),
		redisCache: redisCache,
	}
}

func (lc *LayeredCache) Set(ctx context.Context, key, value string, expiration time.Duration) error {
	// Write-through: Redis first, then memory
	if err := lc.redisCache.Set(ctx, key, value, expiration); err != nil {
		return err
	}
	_ = lc.memCache.Set(ctx, key, value, expiration)
	return nil
}

func (lc *LayeredCache) Get(ctx context.Context, key string) (string, error) {
	// L1: Try memory first
	if v, err := lc.memCache.Get(ctx, key); err == nil {
		return v, nil
	}

	// L2: Try Redis
	v, err := lc.redisCache.Get(ctx, key)
	if err != nil {
		return "", err
	}

	// Store in memory for next time
	_ = lc.memCache.Set(ctx, key, v, 0)
	return v, nil
}

func (lc *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = lc.memCache.Delete(ctx, keys...)
	return lc.redisCache.Delete(ctx, keys...)
}

// TryLock goes straight to Redis so the lock is shared across instances.
func (lc *LayeredCache) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return lc.redisCache.TryLock(ctx, key, ttl)
}

func (lc *LayeredCache) Unlock(ctx context.Context, key string) error {
	return lc.redisCache.Unlock(ctx, key)
}

// Close closes both cache layers.
func (lc *LayeredCache) Close() error {
	_ = lc.memCache.Close()
	return lc.redisCache.Close()
}

package cache

import (
	"sync"
	"time"
)

// Entries above this trigger an expired-entry purge on the next write. With
// 15 second response TTLs the purge keeps the map near the active client set.
const purgeAbove = 8192

type entry struct {
	b   []byte
	exp time.Time
}

// TTLCache is the in-process ResponseCache used when Redis is disabled.
type TTLCache struct {
	mu sync.RWMutex
	m  map[string]entry
}

func NewTTLCache() *TTLCache {
	return &TTLCache{m: make(map[string]entry)}
}

func (c *TTLCache) GetBytes(key string) ([]byte, bool, error) {
	c.mu.RLock()
	e, ok := c.m[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !e.exp.IsZero() && time.Now().After(e.exp) {
		c.mu.Lock()
		delete(c.m, key)
		c.mu.Unlock()
		return nil, false, nil
	}
	return e.b, true, nil
}

func (c *TTLCache) SetBytes(key string, value []byte, ttl time.Duration) error {
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	c.mu.Lock()
	if len(c.m) > purgeAbove {
		c.purgeExpired()
	}
	c.m[key] = entry{b: value, exp: exp}
	c.mu.Unlock()
	return nil
}

// purgeExpired removes dead entries. Caller holds mu.
func (c *TTLCache) purgeExpired() {
	now := time.Now()
	for k, e := range c.m {
		if !e.exp.IsZero() && now.After(e.exp) {
			delete(c.m, k)
		}
	}
}

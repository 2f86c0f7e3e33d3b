package botguard

import (
	"sync"
	"time"
)

// MemoryCache keeps Botguard outputs for the lifetime of the process.
type MemoryCache struct {
	mu   sync.RWMutex
	data map[string]Output
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{data: make(map[string]Output)}
}

// Get retrieves a cached output by key. Expired entries are dropped.
func (c *MemoryCache) Get(key string) (Output, bool) {
	c.mu.RLock()
	v, ok := c.data[key]
	c.mu.RUnlock()
	if !ok {
		return Output{}, false
	}
	if v.Expired(time.Now()) {
		c.mu.Lock()
		delete(c.data, key)
		c.mu.Unlock()
		return Output{}, false
	}
	return v, true
}

// Set stores a value in the cache
func (c *MemoryCache) Set(key string, value Output) {
	c.mu.Lock()
	c.data[key] = value
	c.mu.Unlock()
}

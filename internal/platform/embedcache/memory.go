package embedcache

import (
	"context"
	"sync"
)

type memoryCache struct {
	mu      sync.RWMutex
	entries map[string][]float32
}

// NewMemory returns a process-local cache. Used in tests and as the fallback
// when no persistent provider is configured.
func NewMemory() Cache {
	return &memoryCache{entries: map[string][]float32{}}
}

func (c *memoryCache) Get(_ context.Context, key string) ([]float32, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	vec, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]float32, len(vec))
	copy(out, vec)
	return out, true, nil
}

func (c *memoryCache) Put(_ context.Context, key string, vector []float32) error {
	if key == "" || len(vector) == 0 {
		return nil
	}
	stored := make([]float32, len(vector))
	copy(stored, vector)
	c.mu.Lock()
	c.entries[key] = stored
	c.mu.Unlock()
	return nil
}

func (c *memoryCache) Close() error { return nil }

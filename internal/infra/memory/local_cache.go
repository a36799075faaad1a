package memory

import (
	"context"
	"sync"
)

// LocalCache is a process-local app.LocalCache.
type LocalCache struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewLocalCache() *LocalCache {
	return &LocalCache{values: make(map[string]string)}
}

func (c *LocalCache) Read(_ context.Context, key string) (string, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok, nil
}

func (c *LocalCache) Write(_ context.Context, key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
	return nil
}

func (c *LocalCache) Clear(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
	return nil
}

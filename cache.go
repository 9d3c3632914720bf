package manager

import "sync"

// Cache stores the last known datafile per sdk key so a restarted process can
// serve flags before the first fetch completes.
//
// Get returns nil and no error when the key is absent. Implementations must be
// safe for concurrent use.
type Cache interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
}

type memoryCache struct {
	store map[string][]byte
	mu    sync.RWMutex
}

// NewMemoryCache returns a process local Cache
func NewMemoryCache() Cache {
	return &memoryCache{store: make(map[string][]byte)}
}

func (c *memoryCache) Get(key string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	value, ok := c.store[key]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (c *memoryCache) Set(key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	stored := make([]byte, len(value))
	copy(stored, value)
	c.store[key] = stored
	return nil
}

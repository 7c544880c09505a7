package path

import (
	"sync"
	"sync/atomic"
)

// Cache stores compiled paths keyed by their source reference. Compiled
// paths are immutable, so one cache is shared by every concurrent render.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Path
	maxSize int
	hits    atomic.Int64
	misses  atomic.Int64
}

// NewCache creates a cache holding at most maxSize references.
func NewCache(maxSize int) *Cache {
	if maxSize <= 0 {
		maxSize = 1000 // Default to 1000 entries
	}
	return &Cache{
		entries: make(map[string]Path),
		maxSize: maxSize,
	}
}

// Compile returns the cached path for raw, compiling and storing it on a miss.
// Failed compilations are not cached.
func (c *Cache) Compile(raw string) (Path, error) {
	c.mu.RLock()
	p, ok := c.entries[raw]
	c.mu.RUnlock()
	if ok {
		c.hits.Add(1)
		return p, nil
	}
	c.misses.Add(1)

	p, err := Compile(raw)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Simple eviction: drop a tenth of the entries when full
	if len(c.entries) >= c.maxSize {
		c.evict(c.maxSize/10 + 1)
	}
	c.entries[raw] = p
	return p, nil
}

// Clear removes all entries from the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]Path)
	c.mu.Unlock()
}

// Stats returns cache statistics.
func (c *Cache) Stats() CacheStats {
	c.mu.RLock()
	count := len(c.entries)
	c.mu.RUnlock()

	return CacheStats{
		Entries: count,
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}
}

// CacheStats holds cache statistics.
type CacheStats struct {
	Entries int
	Hits    int64
	Misses  int64
}

// HitRate returns the cache hit rate as a percentage (0-100).
func (s CacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

// evict removes n arbitrary entries. Caller must hold the lock.
func (c *Cache) evict(n int) {
	for key := range c.entries {
		if n <= 0 {
			return
		}
		delete(c.entries, key)
		n--
	}
}

// Shared is the process-wide cache used when resolving references by name.
var Shared = NewCache(4096)

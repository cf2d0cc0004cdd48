// Package cache provides a small in-memory TTL cache with a bounded entry
// count. The chat session uses it to avoid repeating oracle calls for
// questions it has already answered.
package cache

import (
	"sync"
	"time"
)

// Entry is a cached value with expiry metadata.
type Entry struct {
	Value     interface{}
	ExpiresAt time.Time
	CreatedAt time.Time
	HitCount  int
}

// IsExpired reports whether the entry is past its TTL.
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.ExpiresAt)
}

// Cache is a concurrency-safe TTL cache. At capacity it evicts expired
// entries first, then the oldest entry by creation time.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	maxSize int
}

// New creates a cache holding at most maxSize entries.
func New(maxSize int) *Cache {
	if maxSize <= 0 {
		maxSize = 100 // Default max entries
	}
	return &Cache{
		entries: make(map[string]*Entry),
		maxSize: maxSize,
	}
}

// Get retrieves a value from the cache. Expired entries are removed on
// access and reported as misses.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	entry, exists := c.entries[key]
	c.mu.RUnlock()

	if !exists {
		return nil, false
	}

	if entry.IsExpired() {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false
	}

	c.mu.Lock()
	entry.HitCount++
	c.mu.Unlock()

	return entry.Value, true
}

// Set stores a value in the cache with the given TTL.
func (c *Cache) Set(key string, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxSize {
		c.evictExpiredLocked()
	}

	// Still at capacity: make room by dropping the oldest entry
	if len(c.entries) >= c.maxSize {
		c.evictOldestLocked()
	}

	c.entries[key] = &Entry{
		Value:     value,
		ExpiresAt: time.Now().Add(ttl),
		CreatedAt: time.Now(),
		HitCount:  0,
	}
}

// Delete removes a specific key from the cache.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Size returns the number of entries in the cache.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns cache statistics for logging.
func (c *Cache) Stats() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	totalHits := 0
	expiredCount := 0
	now := time.Now()

	for _, entry := range c.entries {
		totalHits += entry.HitCount
		if now.After(entry.ExpiresAt) {
			expiredCount++
		}
	}

	return map[string]interface{}{
		"size":          len(c.entries),
		"max_size":      c.maxSize,
		"total_hits":    totalHits,
		"expired_count": expiredCount,
	}
}

// evictExpiredLocked removes all expired entries (must hold write lock).
func (c *Cache) evictExpiredLocked() {
	now := time.Now()
	for key, entry := range c.entries {
		if now.After(entry.ExpiresAt) {
			delete(c.entries, key)
		}
	}
}

// evictOldestLocked removes the oldest entry by creation time (must hold
// write lock).
func (c *Cache) evictOldestLocked() {
	var oldestKey string
	var oldestTime time.Time
	first := true

	for key, entry := range c.entries {
		if first || entry.CreatedAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.CreatedAt
			first = false
		}
	}

	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// Package cache provides a sharded in-process TTL cache for per-symbol
// analysis results shared across users.
package cache

import (
	"hash/fnv"
	"sync"
	"time"
)

const numShards = 16

// TTLCache is a sharded key/value cache with per-entry expiry and a bound on
// total entries. It is written by the periodic agent coordinator and read by
// every trading loop, so reads take only a shard RLock.
type TTLCache struct {
	shards     [numShards]*shard
	ttl        time.Duration
	maxEntries int
}

type shard struct {
	mu    sync.RWMutex
	items map[string]entry
}

type entry struct {
	value     any
	expiresAt time.Time
}

// New creates a cache with the given default TTL and total entry bound.
// maxEntries <= 0 means unbounded.
func New(ttl time.Duration, maxEntries int) *TTLCache {
	c := &TTLCache{ttl: ttl, maxEntries: maxEntries}
	for i := 0; i < numShards; i++ {
		c.shards[i] = &shard{items: make(map[string]entry)}
	}
	return c
}

func (c *TTLCache) getShard(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return c.shards[h.Sum32()%numShards]
}

// Set stores a value under key with the default TTL.
func (c *TTLCache) Set(key string, value any) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL stores a value with an explicit TTL.
func (c *TTLCache) SetWithTTL(key string, value any, ttl time.Duration) {
	if c.maxEntries > 0 && c.Len() >= c.maxEntries {
		c.evictOldest()
	}
	s := c.getShard(key)
	s.mu.Lock()
	s.items[key] = entry{value: value, expiresAt: time.Now().Add(ttl)}
	s.mu.Unlock()
}

// Get retrieves a live value; expired entries read as missing.
func (c *TTLCache) Get(key string) (any, bool) {
	s := c.getShard(key)
	s.mu.RLock()
	e, ok := s.items[key]
	s.mu.RUnlock()
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

// Delete removes a key.
func (c *TTLCache) Delete(key string) {
	s := c.getShard(key)
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
}

// Len returns total items across all shards, expired included.
func (c *TTLCache) Len() int {
	total := 0
	for _, s := range c.shards {
		s.mu.RLock()
		total += len(s.items)
		s.mu.RUnlock()
	}
	return total
}

// Cleanup removes expired entries and returns how many were dropped.
func (c *TTLCache) Cleanup() int {
	removed := 0
	now := time.Now()
	for _, s := range c.shards {
		s.mu.Lock()
		for k, e := range s.items {
			if now.After(e.expiresAt) {
				delete(s.items, k)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// evictOldest drops the entry closest to expiry to bound total size.
func (c *TTLCache) evictOldest() {
	var (
		oldestKey   string
		oldestShard *shard
		oldestAt    time.Time
	)
	for _, s := range c.shards {
		s.mu.RLock()
		for k, e := range s.items {
			if oldestShard == nil || e.expiresAt.Before(oldestAt) {
				oldestKey, oldestShard, oldestAt = k, s, e.expiresAt
			}
		}
		s.mu.RUnlock()
	}
	if oldestShard != nil {
		oldestShard.mu.Lock()
		delete(oldestShard.items, oldestKey)
		oldestShard.mu.Unlock()
	}
}

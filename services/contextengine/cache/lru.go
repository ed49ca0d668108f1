// Copyright (C) 2025 DealDesk AI (engineering@dealdesk.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package cache provides the bounded TTL+LRU cache primitive shared by the
// retrieval, summarization, and tool-isolation layers.
//
// The cache knows nothing about its payload type. The three engine caches
// differ only in entry shape and in their TTL/size parameters.
package cache

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"
)

// Cache is a thread-safe LRU cache with TTL expiry.
//
// Description:
//
//	Fixed-size cache keyed by string. Entries expire lazily: a Get past the
//	TTL deletes the entry and reports a miss. At capacity, Set evicts the
//	least recently used entry. Reads touch the entry (move-to-front), so
//	the LRU discipline is uniform across all instantiations.
//
// Thread Safety: All methods are safe for concurrent use. The engine's
// caches are process-wide and shared by every request handler, so the
// mutex is required, not optional.
type Cache[V any] struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	lru     *list.List // Front = most recent, Back = least recent
	ttl     time.Duration
	maxSize int

	// Metrics (atomic for lock-free reads)
	hits        atomic.Int64
	misses      atomic.Int64
	evictions   atomic.Int64
	expirations atomic.Int64

	// now is swappable for TTL boundary tests.
	now func() time.Time
}

// entry holds one cached value and its insertion time.
type entry[V any] struct {
	key        string
	value      V
	insertedAt time.Time
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	Evictions   int64 `json:"evictions"`
	Expirations int64 `json:"expirations"`
	Size        int   `json:"size"`
	MaxSize     int   `json:"max_size"`
}

// New creates a cache with the given TTL and maximum size.
//
// Inputs:
//   - ttl: How long entries remain valid. Must be > 0.
//   - maxSize: Maximum entries before LRU eviction. A maxSize <= 0 yields
//     a cache that stores nothing (every Set is a no-op).
//
// Outputs:
//   - *Cache[V]: Ready-to-use cache. Never nil.
//
// Example:
//
//	c := cache.New[retrieval.Entry](5*time.Minute, 20)
//	c.Set(key, entry)
//	if e, ok := c.Get(key); ok {
//	    // cached context
//	}
func New[V any](ttl time.Duration, maxSize int) *Cache[V] {
	return &Cache[V]{
		entries: make(map[string]*list.Element),
		lru:     list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Get retrieves a value if present and not expired.
//
// Expired entries are deleted on the spot and counted as misses. A hit
// moves the entry to the most-recently-used position.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	elem, ok := c.entries[key]
	if !ok {
		c.misses.Add(1)
		return zero, false
	}

	e := elem.Value.(*entry[V])
	if c.now().Sub(e.insertedAt) > c.ttl {
		c.removeElement(elem)
		c.expirations.Add(1)
		c.misses.Add(1)
		return zero, false
	}

	c.lru.MoveToFront(elem)
	c.hits.Add(1)
	return e.value, true
}

// Set stores a value, evicting the least recently used entry at capacity.
// Setting an existing key refreshes its value and TTL.
func (c *Cache[V]) Set(key string, value V) {
	if c.maxSize <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		e := elem.Value.(*entry[V])
		e.value = value
		e.insertedAt = c.now()
		c.lru.MoveToFront(elem)
		return
	}

	for c.lru.Len() >= c.maxSize {
		c.evictOldest()
	}

	elem := c.lru.PushFront(&entry[V]{key: key, value: value, insertedAt: c.now()})
	c.entries[key] = elem
}

// Has reports whether a live (unexpired) entry exists without touching its
// LRU position or the hit/miss counters.
func (c *Cache[V]) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return false
	}
	return c.now().Sub(elem.Value.(*entry[V]).insertedAt) <= c.ttl
}

// Clear removes all entries and resets the counters.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*list.Element)
	c.lru = list.New()
	c.hits.Store(0)
	c.misses.Store(0)
	c.evictions.Store(0)
	c.expirations.Store(0)
}

// Len returns the number of entries currently held, expired or not.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Stats returns a snapshot of the cache counters.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	size := c.lru.Len()
	c.mu.Unlock()

	return Stats{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Evictions:   c.evictions.Load(),
		Expirations: c.expirations.Load(),
		Size:        size,
		MaxSize:     c.maxSize,
	}
}

// HitRate returns the hit ratio in [0, 1], or 0 before any lookup.
func (c *Cache[V]) HitRate() float64 {
	hits := c.hits.Load()
	total := hits + c.misses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// SetClock overrides the cache's time source. Test hook only.
func (c *Cache[V]) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// evictOldest removes the least recently used entry.
// Caller must hold the lock.
func (c *Cache[V]) evictOldest() {
	if elem := c.lru.Back(); elem != nil {
		c.removeElement(elem)
		c.evictions.Add(1)
	}
}

// removeElement removes an element from both the list and the map.
// Caller must hold the lock.
func (c *Cache[V]) removeElement(elem *list.Element) {
	c.lru.Remove(elem)
	delete(c.entries, elem.Value.(*entry[V]).key)
}

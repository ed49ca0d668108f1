// Copyright (C) 2025 DealDesk AI (engineering@dealdesk.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestCache_BasicOperations(t *testing.T) {
	c := New[string](10*time.Minute, 100)

	t.Run("set and get", func(t *testing.T) {
		c.Set("k", "v")
		got, ok := c.Get("k")
		if !ok {
			t.Fatal("expected cache hit")
		}
		if got != "v" {
			t.Errorf("expected v, got %s", got)
		}
	})

	t.Run("miss for absent key", func(t *testing.T) {
		if _, ok := c.Get("absent"); ok {
			t.Error("expected cache miss")
		}
	})

	t.Run("has does not count as lookup", func(t *testing.T) {
		before := c.Stats()
		if !c.Has("k") {
			t.Error("expected Has=true")
		}
		after := c.Stats()
		if after.Hits != before.Hits || after.Misses != before.Misses {
			t.Error("Has must not move the hit/miss counters")
		}
	})

	t.Run("update refreshes value without growing", func(t *testing.T) {
		c.Set("k", "v2")
		if c.Len() != 1 {
			t.Errorf("expected len 1, got %d", c.Len())
		}
		got, _ := c.Get("k")
		if got != "v2" {
			t.Errorf("expected v2, got %s", got)
		}
	})
}

func TestCache_ZeroSizeStoresNothing(t *testing.T) {
	c := New[int](time.Minute, 0)
	c.Set("k", 1)
	if _, ok := c.Get("k"); ok {
		t.Error("zero-size cache must not store entries")
	}
}

func TestCache_TTLBoundary(t *testing.T) {
	c := New[int](100*time.Millisecond, 10)

	base := time.Unix(1700000000, 0)
	now := base
	c.SetClock(func() time.Time { return now })

	c.Set("k", 7)

	// Present just before expiry.
	now = base.Add(100*time.Millisecond - time.Millisecond)
	if _, ok := c.Get("k"); !ok {
		t.Error("expected hit at ttl-epsilon")
	}

	// Absent just past expiry, and deleted.
	now = base.Add(100*time.Millisecond + time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Error("expected miss at ttl+epsilon")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry should be deleted, len=%d", c.Len())
	}
	if c.Stats().Expirations != 1 {
		t.Errorf("expected 1 expiration, got %d", c.Stats().Expirations)
	}
}

func TestCache_LRUEviction(t *testing.T) {
	c := New[int](time.Minute, 3)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	// Touch "a" so "b" becomes least recently used.
	c.Get("a")

	c.Set("d", 4)

	for _, key := range []string{"a", "c", "d"} {
		if _, ok := c.Get(key); !ok {
			t.Errorf("%s should survive eviction", key)
		}
	}
	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted as LRU")
	}
	if c.Stats().Evictions != 1 {
		t.Errorf("expected exactly 1 eviction, got %d", c.Stats().Evictions)
	}
}

func TestCache_EvictsExactlyOnePerInsert(t *testing.T) {
	const max = 5
	c := New[int](time.Minute, max)

	for i := 0; i < max+1; i++ {
		c.Set(fmt.Sprintf("k%d", i), i)
	}

	if c.Len() != max {
		t.Errorf("expected len %d, got %d", max, c.Len())
	}
	// Oldest insertion is gone, the rest are retrievable.
	if _, ok := c.Get("k0"); ok {
		t.Error("k0 should be evicted")
	}
	for i := 1; i <= max; i++ {
		if _, ok := c.Get(fmt.Sprintf("k%d", i)); !ok {
			t.Errorf("k%d should be present", i)
		}
	}
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := New[int](time.Minute, 50)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", i%60)
				c.Set(key, i)
				c.Get(key)
			}
		}(g)
	}
	wg.Wait()

	if c.Len() > 50 {
		t.Errorf("cache exceeded max size: %d", c.Len())
	}
}

func TestCache_ClearResetsCounters(t *testing.T) {
	c := New[int](time.Minute, 10)
	c.Set("k", 1)
	c.Get("k")
	c.Get("miss")

	c.Clear()

	s := c.Stats()
	if s.Size != 0 || s.Hits != 0 || s.Misses != 0 {
		t.Errorf("expected zeroed stats after Clear, got %+v", s)
	}
}

// Copyright 2025 The Filen Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cache implements the caching strategies used by the gateway:
// a bounded LRU for session state and a TTL store for slowly changing
// backend answers.
package cache

import (
	"container/list"
	"sync"
)

// LRU is a least-recently used cache, safe for concurrent access.
type LRU struct {
	maxEntries int

	mu    sync.Mutex
	ll    *list.List
	cache map[interface{}]*list.Element
}

// *entry is the type stored in each *list.Element.
type entry struct {
	key, value interface{}
}

// NewLRU returns a new cache with the provided maximum items.
func NewLRU(maxEntries int) *LRU {
	return &LRU{
		maxEntries: maxEntries,
		ll:         list.New(),
		cache:      make(map[interface{}]*list.Element),
	}
}

// Add adds the provided key and value to the cache, evicting an old
// item if necessary. It returns the evicted key and value, which are
// both nil when nothing was displaced; callers that must release
// resources held by the value (an open session, say) do so on their
// side of this boundary.
func (c *LRU) Add(key, value interface{}) (ekey, evalue interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Already in cache?
	if ee, ok := c.cache[key]; ok {
		c.ll.MoveToFront(ee)
		ee.Value.(*entry).value = value
		return nil, nil
	}

	// Add to cache if not present.
	ele := c.ll.PushFront(&entry{key, value})
	c.cache[key] = ele

	if c.ll.Len() > c.maxEntries {
		return c.removeOldest()
	}
	return nil, nil
}

// Get fetches the key's value from the cache.
// The ok result will be true if the item was found.
func (c *LRU) Get(key interface{}) (value interface{}, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ele, hit := c.cache[key]; hit {
		c.ll.MoveToFront(ele)
		return ele.Value.(*entry).value, true
	}
	return
}

// Remove deletes the entry for key, returning its value and whether it
// was present.
func (c *LRU) Remove(key interface{}) (value interface{}, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ele, hit := c.cache[key]
	if !hit {
		return nil, false
	}
	c.ll.Remove(ele)
	ent := ele.Value.(*entry)
	delete(c.cache, ent.key)
	return ent.value, true
}

// RemoveOldest removes the oldest item in the cache and returns its key
// and value. If the cache is empty, nil and nil are returned.
func (c *LRU) RemoveOldest() (key, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeOldest()
}

// note: must hold c.mu
func (c *LRU) removeOldest() (key, value interface{}) {
	ele := c.ll.Back()
	if ele == nil {
		return
	}
	c.ll.Remove(ele)
	ent := ele.Value.(*entry)
	delete(c.cache, ent.key)
	return ent.key, ent.value
}

// Len returns the number of items in the cache.
func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Do calls f for every entry in the cache, newest first, while holding
// the cache lock. f must not call back into the cache.
func (c *LRU) Do(f func(key, value interface{})) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for ele := c.ll.Front(); ele != nil; ele = ele.Next() {
		ent := ele.Value.(*entry)
		f(ent.key, ent.value)
	}
}

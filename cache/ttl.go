// Copyright 2025 The Filen Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cache

import (
	"sync"
	"time"
)

// TTL is a small expiring key/value store, safe for concurrent access.
// Entries vanish after the store's fixed lifetime; there is no
// background sweeper, expired entries are dropped on access.
type TTL struct {
	lifetime time.Duration

	mu      sync.Mutex
	entries map[interface{}]ttlEntry
}

type ttlEntry struct {
	value   interface{}
	expires time.Time
}

// NewTTL returns an empty store whose entries live for the given
// duration after each Add.
func NewTTL(lifetime time.Duration) *TTL {
	return &TTL{
		lifetime: lifetime,
		entries:  make(map[interface{}]ttlEntry),
	}
}

// Add stores value under key, restarting its lifetime.
func (c *TTL) Add(key, value interface{}) {
	c.add(time.Now(), key, value)
}

func (c *TTL) add(now time.Time, key, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = ttlEntry{value: value, expires: now.Add(c.lifetime)}
}

// Get fetches the key's value. The ok result is false if the entry is
// absent or its lifetime has passed.
func (c *TTL) Get(key interface{}) (value interface{}, ok bool) {
	return c.get(time.Now(), key)
}

func (c *TTL) get(now time.Time, key interface{}) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if now.After(e.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

// Remove deletes the entry for key, if any.
func (c *TTL) Remove(key interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

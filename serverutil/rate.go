// Copyright 2025 The Filen Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package serverutil provides helpers used when building the gateway's
// HTTP servers.
package serverutil

import (
	"sync"
	"time"
)

// The maximum number of visitors that a RateLimiter can track.
const rateMaxVisitors = 100000

// RateLimiter implements a fixed-window rate limiter. The first request
// for a key opens a counting window of length Window; requests beyond
// Limit within that window are denied, and the count resets when the
// window lapses.
type RateLimiter struct {
	// Window specifies the length of the counting window for a key.
	Window time.Duration

	// Limit specifies how many requests a single key may make within
	// one window.
	Limit int

	mu          sync.Mutex // Guards the fields below.
	m           map[string]*visitor
	first, last *visitor
}

type visitor struct {
	key   string
	seen  time.Time // Last request, passing or not.
	start time.Time // Beginning of the current window.
	count int

	prev, next *visitor
}

// Pass attempts to pass key through the rate limiter, returning true if
// key is within the rate limit. If it returns false it also returns the
// duration that must elapse before the key will be allowed to pass
// again.
func (r *RateLimiter) Pass(key string) (bool, time.Duration) {
	return r.pass(time.Now(), key)
}

func (r *RateLimiter) pass(now time.Time, key string) (bool, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Initialize the map lazily so that RateLimiter
	// may be useful in its zero form.
	if r.m == nil {
		r.m = map[string]*visitor{}
	}

	v, ok := r.m[key]
	if !ok {
		// We haven't seen this visitor before,
		// so add a map entry and permit it.
		v = &visitor{
			key:   key,
			seen:  now,
			start: now,
			count: 1,
		}
		r.m[key] = v

		// Add visitor to the end of the list.
		if r.last != nil {
			r.last.next = v
			v.prev = r.last
		}
		r.last = v

		// If the list is empty, add it at the start.
		if r.first == nil {
			r.first = v
		}
	} else {
		// We have seen this visitor before. If its window has
		// lapsed, open a fresh one; otherwise count the request
		// against the current window and deny past the limit.
		v.seen = now
		if !now.Before(v.start.Add(r.Window)) {
			v.start = now
			v.count = 1
		} else {
			v.count++
			if v.count > r.Limit {
				return false, v.start.Add(r.Window).Sub(now)
			}
		}

		// Move v to the end of the list, if it's not there already.
		if r.last != v {
			// Remove v from the list.
			if v.prev != nil {
				v.prev.next = v.next
			} else {
				r.first = v.next
			}
			if v.next != nil {
				v.next.prev = v.prev
			}
			// Attach v to the end of the list.
			v.prev = r.last
			v.next = nil
			r.last.next = v
			r.last = v
		}
	}

	// Find and delete expired visitors.
	// Also check whether we have exceeded the maximum number of visitors
	// that we can track at once. If so, prune back to the maximum.
	drop := 0
	if len(r.m) >= rateMaxVisitors {
		drop = len(r.m) - rateMaxVisitors
	}
	for v, i := r.first, 0; v != nil; v, i = v.next, i+1 {
		if !now.After(v.seen.Add(r.Window)) && i >= drop {
			break
		}
		delete(r.m, v.key)
		r.first = v.next
		if v.next != nil {
			v.next.prev = nil
		}
	}

	return true, 0
}

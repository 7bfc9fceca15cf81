// Copyright 2025 The Filen Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package serverutil

import (
	"fmt"
	"testing"
	"time"
)

func TestRateLimiter(t *testing.T) {
	r := RateLimiter{
		Window: 10 * time.Second,
		Limit:  3,
	}

	now := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

	const (
		a, b = "a", "b"
	)
	testCases := []struct {
		key      string
		sec      int
		pass     bool
		resetSec int
		len      int
	}{
		{a, 0, true, 0, 1}, // window [0,10)
		{a, 1, true, 0, 1},
		{a, 2, true, 0, 1},
		{a, 3, false, 7, 1}, // fourth request inside the window
		{b, 4, true, 0, 2},  // keys count independently
		{b, 5, true, 0, 2},
		{a, 9, false, 1, 2}, // denied to the window's edge

		{a, 10, true, 0, 2}, // window lapsed, fresh count
		{a, 11, true, 0, 2},
		{a, 12, true, 0, 2},
		{a, 13, false, 7, 2},

		{b, 30, true, 0, 1}, // b restarts; a expired and is pruned
		{a, 60, true, 0, 1}, // a returns fresh; now b is pruned
	}
	for i, c := range testCases {
		pass, reset := r.pass(now.Add(time.Duration(c.sec)*time.Second), c.key)
		if pass != c.pass {
			t.Errorf("case %d: %d seconds for %q: got %v, want %v", i, c.sec, c.key, pass, c.pass)
		}
		if reset != time.Duration(c.resetSec)*time.Second {
			t.Errorf("case %d: expected reset = %d s, got = %v", i, c.resetSec, reset)
		}
		if got, want := len(r.m), c.len; got != want {
			t.Errorf("case %d: %d seconds for %q: len(r.m) = %d, want %d", i, c.sec, c.key, got, want)
		}
	}
}

func TestRateLimiterMaxVisitors(t *testing.T) {
	r := RateLimiter{
		Window: 10 * time.Second,
		Limit:  1,
	}

	now := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < rateMaxVisitors+1; i++ {
		now = now.Add(time.Nanosecond)
		r.pass(now, fmt.Sprint(i))
	}
	// Key 0 was pushed out by the visitor cap, so it passes as new.
	if ok, _ := r.pass(now, "0"); !ok {
		t.Errorf("key 0 should have been purged")
	}
	// The most recent key is still tracked, so with Limit 1 a second
	// request inside the window is denied.
	k := fmt.Sprint(rateMaxVisitors)
	if ok, _ := r.pass(now, k); ok {
		t.Errorf("key %v should not have been purged", k)
	}
}

func BenchmarkRateLimiter(b *testing.B) {
	r := RateLimiter{
		Window: time.Second,
		Limit:  1000,
	}

	now := time.Now()
	for n := 0; n < b.N; n++ {
		now = now.Add(time.Nanosecond)
		r.pass(now, fmt.Sprint(n))
	}
}

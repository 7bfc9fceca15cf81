// Copyright 2025 The Filen Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cache

import (
	"testing"
	"time"
)

func TestTTL(t *testing.T) {
	start := time.Now()
	at := func(d time.Duration) time.Time { return start.Add(d) }

	c := NewTTL(time.Minute)

	if _, ok := c.get(at(0), "statfs"); ok {
		t.Fatal("expected miss on empty store")
	}

	c.add(at(0), "statfs", 42)

	for _, tc := range []struct {
		age  time.Duration
		ok   bool
		desc string
	}{
		{0, true, "immediately"},
		{30 * time.Second, true, "half life"},
		{time.Minute, true, "exactly at lifetime"},
		{time.Minute + time.Nanosecond, false, "just past lifetime"},
	} {
		v, ok := c.get(at(tc.age), "statfs")
		if ok != tc.ok {
			t.Errorf("%s: ok = %v; want %v", tc.desc, ok, tc.ok)
			continue
		}
		if ok && v != 42 {
			t.Errorf("%s: value = %v; want 42", tc.desc, v)
		}
	}

	// The expired entry was dropped, so an earlier clock cannot revive it.
	if _, ok := c.get(at(0), "statfs"); ok {
		t.Error("expired entry still present")
	}
}

func TestTTLReAddRestartsLifetime(t *testing.T) {
	start := time.Now()
	at := func(d time.Duration) time.Time { return start.Add(d) }

	c := NewTTL(time.Minute)
	c.add(at(0), "k", "v1")
	c.add(at(50*time.Second), "k", "v2")

	v, ok := c.get(at(100*time.Second), "k")
	if !ok {
		t.Fatal("expected hit 50s after re-add")
	}
	if v != "v2" {
		t.Fatalf("value = %v; want v2", v)
	}
	if _, ok := c.get(at(111*time.Second), "k"); ok {
		t.Fatal("expected miss 61s after re-add")
	}
}

func TestTTLRemove(t *testing.T) {
	c := NewTTL(time.Minute)
	c.Add("k", "v")
	c.Remove("k")
	if _, ok := c.Get("k"); ok {
		t.Fatal("expected miss after Remove")
	}
	// Removing an absent key is a no-op.
	c.Remove("absent")
}

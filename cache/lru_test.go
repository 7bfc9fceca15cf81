// Copyright 2025 The Filen Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cache_test

import (
	"reflect"
	"testing"

	"github.com/FilenCloudDienste/filen-webdav/cache"
)

func TestLRU(t *testing.T) {
	c := cache.NewLRU(2)

	expectMiss := func(k string) {
		v, ok := c.Get(k)
		if ok {
			t.Fatalf("expected cache miss on key %q but hit value %v", k, v)
		}
	}

	expectHit := func(k string, ev interface{}) {
		v, ok := c.Get(k)
		if !ok {
			t.Fatalf("expected cache(%q)=%v; but missed", k, ev)
		}
		if !reflect.DeepEqual(v, ev) {
			t.Fatalf("expected cache(%q)=%v; but got %v", k, ev, v)
		}
	}

	expectMiss("1")
	c.Add("1", "one")
	expectHit("1", "one")

	c.Add("2", "two")
	expectHit("1", "one")
	expectHit("2", "two")

	c.Add("3", "three")
	expectHit("3", "three")
	expectHit("2", "two")
	expectMiss("1")
}

func TestLRUEvictedPair(t *testing.T) {
	c := cache.NewLRU(2)

	if k, v := c.Add("1", "one"); k != nil || v != nil {
		t.Fatalf("evicted = %v, %v; want nil, nil", k, v)
	}
	if k, v := c.Add("2", "two"); k != nil || v != nil {
		t.Fatalf("evicted = %v, %v; want nil, nil", k, v)
	}

	// Overwriting an existing key displaces nothing.
	if k, v := c.Add("2", "deux"); k != nil || v != nil {
		t.Fatalf("evicted = %v, %v; want nil, nil", k, v)
	}

	// A third key pushes out the least recently used one.
	if k, v := c.Add("3", "three"); k != "1" || v != "one" {
		t.Fatalf("evicted = %v, %v; want 1, one", k, v)
	}
	if c.Len() != 2 {
		t.Fatalf("Len = %d; want 2", c.Len())
	}
}

func TestLRURemoveOldest(t *testing.T) {
	c := cache.NewLRU(2)
	c.Add("1", "one")
	c.Add("2", "two")
	if k, v := c.RemoveOldest(); k != "1" || v != "one" {
		t.Fatalf("oldest = %q, %q; want 1, one", k, v)
	}
	if k, v := c.RemoveOldest(); k != "2" || v != "two" {
		t.Fatalf("oldest = %q, %q; want 2, two", k, v)
	}
	if k, v := c.RemoveOldest(); k != nil || v != nil {
		t.Fatalf("oldest = %v, %v; want nil, nil", k, v)
	}
}

func TestLRURemoveOne(t *testing.T) {
	c := cache.NewLRU(10)
	c.Add("1", "one")
	c.Add("2", "two")
	if c.Len() != 2 {
		t.Errorf("Expected Len=2, got %d", c.Len())
	}
	value, ok := c.Remove("2")
	if !ok || value != "two" {
		t.Errorf("Expected 'two', got %v", value)
	}
	if c.Len() != 1 {
		t.Errorf("Expected Len=1, got %d", c.Len())
	}
	if _, ok := c.Remove("99"); ok {
		t.Errorf("Expected miss removing absent key")
	}
}

func TestLRUDo(t *testing.T) {
	c := cache.NewLRU(4)
	c.Add("1", "one")
	c.Add("2", "two")
	c.Add("3", "three")

	var keys []string
	c.Do(func(key, value interface{}) {
		keys = append(keys, key.(string))
	})
	want := []string{"3", "2", "1"}
	if !reflect.DeepEqual(keys, want) {
		t.Errorf("Do order = %v; want %v", keys, want)
	}
}

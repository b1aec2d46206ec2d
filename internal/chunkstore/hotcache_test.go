// Copyright 2026 The Pixie Authors
// SPDX-License-Identifier: Apache-2.0

package chunkstore

import (
	"testing"

	"github.com/pixie-fleet/pixie/internal/wire"
)

func TestHotCacheGetMiss(t *testing.T) {
	cache := newHotCache(1024)
	if _, ok := cache.get(wire.HashChunk([]byte("nope"))); ok {
		t.Error("expected miss on empty cache")
	}
}

func TestHotCachePutGet(t *testing.T) {
	cache := newHotCache(1024)
	hash := wire.HashChunk([]byte("a"))
	cache.put(hash, []byte("decompressed bytes"))

	got, ok := cache.get(hash)
	if !ok {
		t.Fatal("expected hit after put")
	}
	if string(got) != "decompressed bytes" {
		t.Errorf("got %q", got)
	}
}

func TestHotCacheEvictsOldestFirst(t *testing.T) {
	cache := newHotCache(30)

	hashA := wire.HashChunk([]byte("a"))
	hashB := wire.HashChunk([]byte("b"))
	hashC := wire.HashChunk([]byte("c"))

	cache.put(hashA, make([]byte, 10))
	cache.put(hashB, make([]byte, 10))
	cache.put(hashC, make([]byte, 15)) // pushes total to 35, over budget

	if _, ok := cache.get(hashA); ok {
		t.Error("oldest entry should have been evicted")
	}
	if _, ok := cache.get(hashB); !ok {
		t.Error("second entry should still be cached")
	}
	if _, ok := cache.get(hashC); !ok {
		t.Error("newest entry should be cached")
	}
}

func TestHotCacheGetDoesNotReorder(t *testing.T) {
	cache := newHotCache(20)

	hashA := wire.HashChunk([]byte("a"))
	hashB := wire.HashChunk([]byte("b"))
	cache.put(hashA, make([]byte, 10))
	cache.put(hashB, make([]byte, 10))

	// Touch A — FIFO eviction means this must NOT protect it.
	cache.get(hashA)

	hashC := wire.HashChunk([]byte("c"))
	cache.put(hashC, make([]byte, 10))

	if _, ok := cache.get(hashA); ok {
		t.Error("FIFO cache should evict A despite the recent get")
	}
}

// Copyright 2026 The Pixie Authors
// SPDX-License-Identifier: Apache-2.0

package chunkstore

import (
	"container/list"
	"sync"

	"github.com/pixie-fleet/pixie/internal/wire"
)

// hotCache is a bounded, FIFO-eviction cache of decompressed chunk
// bytes. It exists so that a chunk requested twice within the cache
// window — the common case when the same chunk is hinted and then
// explicitly requested, or requested by several units in the same
// group in quick succession — is decompressed once.
//
// Eviction is oldest-inserted-first, not least-recently-used: a get
// does not move an entry to the back of the queue. This keeps the
// cache O(1) on the hot path with no reordering under the lock.
type hotCache struct {
	budget int64

	mu      sync.Mutex
	bytes   int64
	order   *list.List
	entries map[wire.ChunkHash]*list.Element
}

type hotCacheEntry struct {
	hash wire.ChunkHash
	data []byte
}

func newHotCache(budget int64) *hotCache {
	return &hotCache{
		budget:  budget,
		order:   list.New(),
		entries: make(map[wire.ChunkHash]*list.Element),
	}
}

func (c *hotCache) get(hash wire.ChunkHash) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[hash]
	if !ok {
		return nil, false
	}
	return elem.Value.(*hotCacheEntry).data, true
}

func (c *hotCache) put(hash wire.ChunkHash, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[hash]; ok {
		return
	}

	elem := c.order.PushBack(&hotCacheEntry{hash: hash, data: data})
	c.entries[hash] = elem
	c.bytes += int64(len(data))

	for c.bytes > c.budget && c.order.Len() > 0 {
		oldest := c.order.Front()
		entry := oldest.Value.(*hotCacheEntry)
		c.order.Remove(oldest)
		delete(c.entries, entry.hash)
		c.bytes -= int64(len(entry.data))
	}
}

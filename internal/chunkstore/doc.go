// Copyright 2026 The Pixie Authors
// SPDX-License-Identifier: Apache-2.0

// Package chunkstore implements the deduplicated, reference-counted,
// content-addressed blob store that backs every image in the
// registry. Blobs are stored LZ4-compressed, sharded two levels deep
// by hex hash, with every mutation surviving a crash via
// atomicfile-style temp-write-then-rename.
//
// Put is idempotent and never rewrites a known hash. Get never
// blocks on a concurrent Put — blob files are immutable once written,
// so only the in-memory index needs synchronization. A bounded
// in-memory cache of recently decompressed bytes sits in front of
// disk reads, evicting the oldest entry (FIFO, not LRU) once a byte
// budget is exceeded.
package chunkstore

// Copyright 2026 The Pixie Authors
// SPDX-License-Identifier: Apache-2.0

package chunkstore

import (
	"bytes"
	"errors"
	"testing"

	"github.com/pierrec/lz4/v4"

	"github.com/pixie-fleet/pixie/internal/wire"
)

// compressForTest LZ4-compresses data, which must be large and
// repetitive enough to compress (every fixture in this file repeats
// a short pattern many times for exactly this reason).
func compressForTest(t *testing.T, data []byte) []byte {
	t.Helper()
	bound := lz4.CompressBlockBound(len(data))
	dst := make([]byte, bound)
	n, err := lz4.CompressBlock(data, dst, nil)
	if err != nil {
		t.Fatalf("CompressBlock: %v", err)
	}
	if n == 0 {
		t.Fatalf("test fixture did not compress — make it larger or more repetitive")
	}
	return dst[:n]
}

func TestPutGetRoundtrip(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	original := bytes.Repeat([]byte("pixie chunk data "), 1000)
	hash := wire.HashChunk(original)
	compressed := compressForTest(t, original)

	csize, err := store.Put(hash, wire.CompressionLZ4, compressed)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if csize != uint32(len(compressed)) {
		t.Errorf("csize = %d, want %d", csize, len(compressed))
	}

	got, err := store.Get(hash)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, original) {
		t.Error("decompressed bytes do not match original")
	}
}

func TestPutGetRoundtripIncompressible(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Stored raw under CompressionNone, the tag push.go uses for
	// chunks LZ4 does not shrink. The fixture is a
	// 256-byte pattern repeated; the store never compresses it, so
	// what matters here is only that Get returns the raw bytes as-is.
	original := make([]byte, 4096)
	for i := range original {
		original[i] = byte(i*2654435761 + 17)
	}
	hash := wire.HashChunk(original)

	csize, err := store.Put(hash, wire.CompressionNone, original)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if csize != uint32(len(original)) {
		t.Errorf("csize = %d, want %d (raw storage is not compressed)", csize, len(original))
	}

	got, err := store.Get(hash)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, original) {
		t.Error("raw bytes do not round-trip through Get")
	}
}

func TestPutIsIdempotent(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	original := bytes.Repeat([]byte("idempotent "), 1000)
	hash := wire.HashChunk(original)
	compressed := compressForTest(t, original)

	first, err := store.Put(hash, wire.CompressionLZ4, compressed)
	if err != nil {
		t.Fatalf("first Put: %v", err)
	}

	second, err := store.Put(hash, wire.CompressionLZ4, []byte("different bytes that should be ignored"))
	if err != nil {
		t.Fatalf("second Put: %v", err)
	}

	if first != second {
		t.Errorf("Put not idempotent: first csize %d, second csize %d", first, second)
	}
}

func TestGetUnknownHashFails(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var hash wire.ChunkHash
	_, err = store.Get(hash)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestIncrefDecref(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	original := bytes.Repeat([]byte("refcounted "), 1000)
	hash := wire.HashChunk(original)
	compressed := compressForTest(t, original)

	if _, err := store.Put(hash, wire.CompressionLZ4, compressed); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if err := store.Incref(hash, 3); err != nil {
		t.Fatalf("Incref: %v", err)
	}
	if got := store.RefCount(hash); got != 3 {
		t.Errorf("RefCount = %d, want 3", got)
	}

	if err := store.Decref(hash, 1); err != nil {
		t.Fatalf("Decref: %v", err)
	}
	if got := store.RefCount(hash); got != 2 {
		t.Errorf("RefCount = %d, want 2", got)
	}
}

func TestDecrefBelowZeroPanics(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	original := []byte(bytes.Repeat([]byte("panic "), 1000))
	hash := wire.HashChunk(original)
	compressed := compressForTest(t, original)
	if _, err := store.Put(hash, wire.CompressionLZ4, compressed); err != nil {
		t.Fatalf("Put: %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Error("expected panic on decref below zero")
		}
	}()
	store.Decref(hash, 1)
}

func TestGCRemovesZeroRefChunks(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	live := bytes.Repeat([]byte("live "), 1000)
	dead := bytes.Repeat([]byte("dead "), 1000)
	liveHash := wire.HashChunk(live)
	deadHash := wire.HashChunk(dead)

	if _, err := store.Put(liveHash, wire.CompressionLZ4, compressForTest(t, live)); err != nil {
		t.Fatalf("Put live: %v", err)
	}
	if _, err := store.Put(deadHash, wire.CompressionLZ4, compressForTest(t, dead)); err != nil {
		t.Fatalf("Put dead: %v", err)
	}
	if err := store.Incref(liveHash, 1); err != nil {
		t.Fatalf("Incref: %v", err)
	}

	result, err := store.GC()
	if err != nil {
		t.Fatalf("GC: %v", err)
	}
	if result.ChunksRemoved != 1 {
		t.Errorf("ChunksRemoved = %d, want 1", result.ChunksRemoved)
	}

	if !store.Contains(liveHash) {
		t.Error("live chunk should survive GC")
	}
	if store.Contains(deadHash) {
		t.Error("dead chunk should be removed by GC")
	}

	if _, err := store.Get(deadHash); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for gc'd chunk, got %v", err)
	}
}

func TestNewLoadsExistingIndex(t *testing.T) {
	dir := t.TempDir()

	store1, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	original := bytes.Repeat([]byte("persisted "), 1000)
	hash := wire.HashChunk(original)
	if _, err := store1.Put(hash, wire.CompressionLZ4, compressForTest(t, original)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store1.Incref(hash, 5); err != nil {
		t.Fatalf("Incref: %v", err)
	}

	store2, err := New(dir)
	if err != nil {
		t.Fatalf("reopening store: %v", err)
	}
	if !store2.Contains(hash) {
		t.Fatal("reopened store should contain the chunk")
	}
	if got := store2.RefCount(hash); got != 5 {
		t.Errorf("RefCount after reopen = %d, want 5", got)
	}
}

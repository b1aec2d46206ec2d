// Copyright 2026 The Pixie Authors
// SPDX-License-Identifier: Apache-2.0

package chunkstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pierrec/lz4/v4"

	"github.com/pixie-fleet/pixie/internal/wire"
	"github.com/pixie-fleet/pixie/lib/atomicfile"
)

// entry is the on-disk and in-memory record for one stored chunk.
type entry struct {
	RefCount uint64              `json:"ref_count"`
	CSize    uint32              `json:"csize"`
	Tag      wire.CompressionTag `json:"tag"`
}

// Store is the content-addressed chunk store rooted at a directory
// containing a "chunks" subdirectory and a "chunks.json" index.
//
// Store is safe for concurrent use. Get takes no lock that blocks
// Put; the index map is guarded by a RWMutex, and blob files are
// never modified after their initial write.
type Store struct {
	root      string
	chunksDir string
	indexPath string

	mu    sync.RWMutex
	index map[wire.ChunkHash]*entry

	cache *hotCache
}

// CacheBudgetBytes bounds the hot decompressed-chunk cache. Sized to
// hold a handful of full-size chunks without meaningfully competing
// with the OS page cache for the blob directory itself.
const CacheBudgetBytes = 64 * 1024 * 1024

// New opens (or creates) a chunk store rooted at root. The directory
// structure is created if missing; an existing index is loaded.
func New(root string) (*Store, error) {
	chunksDir := filepath.Join(root, "chunks")
	if err := os.MkdirAll(chunksDir, 0755); err != nil {
		return nil, fmt.Errorf("creating chunk directory: %w", err)
	}

	store := &Store{
		root:      root,
		chunksDir: chunksDir,
		indexPath: filepath.Join(root, "chunks.json"),
		index:     make(map[wire.ChunkHash]*entry),
		cache:     newHotCache(CacheBudgetBytes),
	}

	if err := store.loadIndex(); err != nil {
		return nil, fmt.Errorf("loading chunk index: %w", err)
	}

	return store, nil
}

// indexRecord is the JSON-serializable form of the index, keyed by
// hex hash since Go map keys must round-trip through JSON object
// keys as strings.
type indexRecord struct {
	Hash     string              `json:"hash"`
	RefCount uint64              `json:"ref_count"`
	CSize    uint32              `json:"csize"`
	Tag      wire.CompressionTag `json:"tag"`
}

func (s *Store) loadIndex() error {
	data, err := os.ReadFile(s.indexPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var records []indexRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("parsing %s: %w", s.indexPath, err)
	}

	for _, record := range records {
		hash, err := wire.ParseHash(record.Hash)
		if err != nil {
			return fmt.Errorf("index record: %w", err)
		}
		s.index[hash] = &entry{RefCount: record.RefCount, CSize: record.CSize, Tag: record.Tag}
	}
	return nil
}

// persistIndex rewrites chunks.json atomically. It takes s.mu for
// read access itself while copying a snapshot of the index, and
// releases it before marshaling and writing, so callers must not hold
// s.mu when calling it.
func (s *Store) persistIndex() error {
	s.mu.RLock()
	records := make([]indexRecord, 0, len(s.index))
	for hash, e := range s.index {
		records = append(records, indexRecord{Hash: hash.String(), RefCount: e.RefCount, CSize: e.CSize, Tag: e.Tag})
	}
	s.mu.RUnlock()

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling chunk index: %w", err)
	}

	return atomicfile.Write(s.indexPath, data, 0644)
}

// blobPath returns the two-level sharded path for a hash:
// <root>/chunks/<hex[:2]>/<hex[2:4]>/<hex>
func (s *Store) blobPath(hash wire.ChunkHash) string {
	hex := hash.String()
	return filepath.Join(s.chunksDir, hex[:2], hex[2:4], hex)
}

// Put stores payload under hash, tagged with the compression
// algorithm it was encoded with (wire.CompressionNone for
// incompressible chunks stored raw). Idempotent: if hash is already
// known, returns the previously stored csize without rewriting the
// blob. The caller is responsible for having verified that payload
// decodes to content actually hashing to hash — the store trusts its
// callers (see tcpserver.handleUploadChunk).
func (s *Store) Put(hash wire.ChunkHash, tag wire.CompressionTag, payload []byte) (uint32, error) {
	s.mu.Lock()
	if existing, ok := s.index[hash]; ok {
		s.mu.Unlock()
		return existing.CSize, nil
	}
	s.index[hash] = &entry{RefCount: 0, CSize: uint32(len(payload)), Tag: tag}
	s.mu.Unlock()

	path := s.blobPath(hash)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, fmt.Errorf("creating shard directory for %s: %w", hash, err)
	}
	if err := atomicfile.Write(path, payload, 0644); err != nil {
		return 0, fmt.Errorf("writing chunk %s: %w", hash, err)
	}

	if err := s.persistIndex(); err != nil {
		return 0, fmt.Errorf("persisting index after put %s: %w", hash, err)
	}

	return uint32(len(payload)), nil
}

// Get returns the decoded bytes for hash, serving from the hot cache
// when present. Returns an error wrapping [ErrNotFound] if the hash
// is unknown.
//
// The returned slice may be the same backing array cached internally
// for hash — callers must treat it as read-only. Every current caller
// (e.g. udpserver.sendChunkRange) only reads it, but a future caller
// that mutates it in place would corrupt the cache.
func (s *Store) Get(hash wire.ChunkHash) ([]byte, error) {
	if data, ok := s.cache.get(hash); ok {
		return data, nil
	}

	s.mu.RLock()
	e, ok := s.index[hash]
	tag := wire.CompressionLZ4
	if ok {
		tag = e.Tag
	}
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("chunk %s: %w", hash, ErrNotFound)
	}

	stored, err := os.ReadFile(s.blobPath(hash))
	if err != nil {
		return nil, fmt.Errorf("reading chunk %s: %w", hash, err)
	}

	var data []byte
	switch tag {
	case wire.CompressionNone:
		data = stored
	case wire.CompressionLZ4:
		destination := make([]byte, wire.CHUNK_SIZE)
		n, err := lz4.UncompressBlock(stored, destination)
		if err != nil {
			return nil, fmt.Errorf("decompressing chunk %s: %w", hash, err)
		}
		data = destination[:n]
	default:
		return nil, fmt.Errorf("chunk %s: unknown compression tag %s", hash, tag)
	}

	s.cache.put(hash, data)
	return data, nil
}

// Contains reports whether hash is known to the store.
func (s *Store) Contains(hash wire.ChunkHash) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.index[hash]
	return ok
}

// CSize returns the compressed size on disk for hash, or 0 if the
// hash is unknown. Used by GetChunkSize to let clients skip chunks
// the server already has.
func (s *Store) CSize(hash wire.ChunkHash) uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.index[hash]
	if !ok {
		return 0
	}
	return e.CSize
}

// Incref increments hash's reference count by n. Fails if hash is
// unknown to the store — a reference must always be backed by a
// stored blob.
func (s *Store) Incref(hash wire.ChunkHash, n uint64) error {
	s.mu.Lock()
	e, ok := s.index[hash]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("incref chunk %s: %w", hash, ErrNotFound)
	}
	e.RefCount += n
	s.mu.Unlock()

	return s.persistIndex()
}

// Decref decrements hash's reference count by n. Decrementing below
// zero is a fatal invariant violation: the reference count tracks
// actual occurrences across all image manifests, and a negative count
// means registry bookkeeping has diverged from reality. Decref panics
// rather than silently clamping to zero.
func (s *Store) Decref(hash wire.ChunkHash, n uint64) error {
	s.mu.Lock()
	e, ok := s.index[hash]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("decref chunk %s: %w", hash, ErrNotFound)
	}
	if n > e.RefCount {
		s.mu.Unlock()
		panic(fmt.Sprintf("chunkstore: decref chunk %s by %d would drop ref_count %d below zero", hash, n, e.RefCount))
	}
	e.RefCount -= n
	s.mu.Unlock()

	return s.persistIndex()
}

// RefCount returns the current reference count for hash, or 0 if
// hash is unknown.
func (s *Store) RefCount(hash wire.ChunkHash) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.index[hash]
	if !ok {
		return 0
	}
	return e.RefCount
}

// GCResult reports what a GC pass removed.
type GCResult struct {
	ChunksRemoved int
	BytesFreed    int64
}

// GC removes every entry with RefCount == 0 from the index and the
// filesystem. After GC returns successfully, the on-disk blob set is
// exactly the set of hashes with RefCount > 0.
func (s *Store) GC() (GCResult, error) {
	s.mu.Lock()
	var dead []wire.ChunkHash
	var freed int64
	for hash, e := range s.index {
		if e.RefCount == 0 {
			dead = append(dead, hash)
			freed += int64(e.CSize)
		}
	}
	for _, hash := range dead {
		delete(s.index, hash)
	}
	s.mu.Unlock()

	for _, hash := range dead {
		if err := os.Remove(s.blobPath(hash)); err != nil && !os.IsNotExist(err) {
			return GCResult{}, fmt.Errorf("removing chunk %s during gc: %w", hash, err)
		}
	}

	if len(dead) > 0 {
		if err := s.persistIndex(); err != nil {
			return GCResult{}, fmt.Errorf("persisting index after gc: %w", err)
		}
	}

	return GCResult{ChunksRemoved: len(dead), BytesFreed: freed}, nil
}

// ErrNotFound is returned when a requested hash is not present in
// the store.
var ErrNotFound = fmt.Errorf("chunk not found")

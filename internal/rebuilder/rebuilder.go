// Copyright 2026 The Pixie Authors
// SPDX-License-Identifier: Apache-2.0

// Package rebuilder implements the client-side chunk reassembly
// described in spec.md §4.4: for each chunk the client currently
// wants, a byte-level missing bitmap and buffer accumulate incoming
// DataPacket payloads until the chunk is complete and its hash
// verifies, at which point it is handed to the completion channel.
//
// A retransmit watchdog (driven externally by a ticker, not by this
// package) calls Tick periodically; Tick returns the coalesced
// DataRequests for every chunk that has gone quiet for
// wire.ClientTimeout, at most MaxRunsPerChunk per chunk. The total
// number of requests per Tick is not capped.
package rebuilder

import (
	"log/slog"
	"sync"
	"time"

	"github.com/pixie-fleet/pixie/internal/udpproto"
	"github.com/pixie-fleet/pixie/internal/wire"
	"github.com/pixie-fleet/pixie/lib/clock"
)

// MaxRunsPerChunk bounds how many coalesced retransmit ranges a
// single stale chunk contributes to one Tick, so one badly
// fragmented chunk cannot crowd out every other stale chunk.
const MaxRunsPerChunk = 8

// MaxConsecutiveFailures is how many times in a row a completed
// chunk may fail hash verification before the rebuilder gives up on
// it and reports failure (spec.md §7's Integrity failure escalation
// rule).
const MaxConsecutiveFailures = 2

// Completed is a chunk that finished reassembly, successfully or not.
// Err is non-nil only after MaxConsecutiveFailures verification
// failures.
type Completed struct {
	Hash wire.ChunkHash
	Data []byte
	Err  error
}

type wanted struct {
	size                uint32
	missing             *Bitmap
	buffer              []byte
	lastSeen            time.Time
	consecutiveFailures int
}

// Rebuilder reassembles chunks from UDP DataPackets.
type Rebuilder struct {
	clock  clock.Clock
	logger *slog.Logger

	mu     sync.Mutex
	wanted map[wire.ChunkHash]*wanted

	completed chan Completed
}

// New returns a Rebuilder. logger receives conflict and integrity
// diagnostics; clk is injected for deterministic tests.
func New(clk clock.Clock, logger *slog.Logger) *Rebuilder {
	return &Rebuilder{
		clock:     clk,
		logger:    logger,
		wanted:    make(map[wire.ChunkHash]*wanted),
		completed: make(chan Completed, 16),
	}
}

// Completed delivers chunks as they finish reassembly (success or
// exhausted-retry failure).
func (r *Rebuilder) Completed() <-chan Completed {
	return r.completed
}

// Want registers interest in hash, a chunk of the given size. If the
// hash is already wanted, Want is a no-op (idempotent registration,
// matching spec.md §4.4's tolerance of duplicate/redundant requests).
func (r *Rebuilder) Want(hash wire.ChunkHash, size uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.wanted[hash]; ok {
		return
	}
	r.wanted[hash] = &wanted{
		size:     size,
		missing:  NewBitmap(int(size)),
		buffer:   make([]byte, size),
		lastSeen: r.clock.Now(),
	}
}

// Forget removes hash from the wanted set without completing it —
// used when an admin cancels an in-flight pull (spec.md §5).
func (r *Rebuilder) Forget(hash wire.ChunkHash) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.wanted, hash)
}

// Wanted reports whether hash is currently being reassembled.
func (r *Rebuilder) Wanted(hash wire.ChunkHash) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.wanted[hash]
	return ok
}

// HandleDataPacket applies one received DataPacket. Packets for
// chunks not currently wanted are silently dropped (spec.md §4.4).
func (r *Rebuilder) HandleDataPacket(pkt udpproto.DataPacket) {
	r.mu.Lock()
	w, ok := r.wanted[pkt.Hash]
	if !ok {
		r.mu.Unlock()
		return
	}

	start := int(pkt.Offset)
	end := start + len(pkt.Payload)
	if end > len(w.buffer) {
		end = len(w.buffer)
	}

	for i := start; i < end; i++ {
		b := pkt.Payload[i-start]
		if w.missing.IsSet(i) {
			w.buffer[i] = b
		} else if w.buffer[i] != b {
			r.logger.Warn("conflicting byte in chunk reassembly",
				"hash", pkt.Hash, "offset", i)
		}
	}
	w.missing.ClearRange(start, end-start)
	w.lastSeen = r.clock.Now()

	done := w.missing.Count() == 0
	var completedData []byte
	var failNow bool
	if done {
		completedData = w.buffer
		if wire.HashChunk(completedData) == pkt.Hash {
			delete(r.wanted, pkt.Hash)
		} else {
			w.consecutiveFailures++
			if w.consecutiveFailures >= MaxConsecutiveFailures {
				failNow = true
				delete(r.wanted, pkt.Hash)
			} else {
				w.missing.SetAll()
				w.buffer = make([]byte, w.size)
			}
			done = false
		}
	}
	r.mu.Unlock()

	if failNow {
		r.completed <- Completed{Hash: pkt.Hash, Err: errChunkIntegrity(pkt.Hash)}
		return
	}
	if done {
		r.completed <- Completed{Hash: pkt.Hash, Data: completedData}
	}
}

// Tick advances the retransmission watchdog: any chunk with no fresh
// byte for wire.ClientTimeout has its missing ranges coalesced into
// DataRequests, up to MaxRunsPerChunk per chunk.
func (r *Rebuilder) Tick() []udpproto.DataRequest {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	var requests []udpproto.DataRequest
	for hash, w := range r.wanted {
		if now.Sub(w.lastSeen) < wire.ClientTimeout*time.Second {
			continue
		}
		for _, run := range w.missing.Runs(MaxRunsPerChunk) {
			requests = append(requests, udpproto.DataRequest{
				Start:  uint32(run.Start),
				Length: uint32(run.Length),
				Hash:   hash,
			})
		}
	}
	return requests
}

type integrityError struct {
	hash wire.ChunkHash
}

func (e *integrityError) Error() string {
	return "chunk " + e.hash.String() + ": repeated BLAKE3 mismatch after reassembly"
}

func errChunkIntegrity(hash wire.ChunkHash) error {
	return &integrityError{hash: hash}
}

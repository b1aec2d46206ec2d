// Copyright 2026 The Pixie Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// ChunkHash is a 32-byte BLAKE3 digest of a chunk's uncompressed
// bytes. Equality is byte equality; it serves as the content address
// for every chunk in the store and every chunk descriptor in an
// image manifest.
//
// Unlike the keyed, domain-separated hashing used elsewhere for
// artifact storage, chunk hashes are plain unkeyed BLAKE3: there is
// exactly one hash domain in this system (disk chunks), so domain
// separation buys nothing and would only complicate interop with the
// legacy 28-byte SHA-224 header variant this system explicitly does
// not speak.
type ChunkHash [32]byte

// HashChunk computes the content hash of a chunk's uncompressed
// bytes.
func HashChunk(data []byte) ChunkHash {
	sum := blake3.Sum256(data)
	return ChunkHash(sum)
}

// String returns the hex-encoded hash, for logging and diagnostics.
func (h ChunkHash) String() string {
	return hex.EncodeToString(h[:])
}

// MarshalText implements encoding.TextMarshaler so that ChunkHash
// serializes as a hex string in both JSON (images/*.json,
// registered.json) and CBOR (lib/codec configures the CBOR encoder
// to honor TextMarshaler).
func (h ChunkHash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *ChunkHash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHash parses a 64-character hex string into a ChunkHash.
func ParseHash(hexString string) (ChunkHash, error) {
	var hash ChunkHash
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return hash, fmt.Errorf("parsing chunk hash %q: %w", hexString, err)
	}
	if len(decoded) != len(hash) {
		return hash, fmt.Errorf("chunk hash %q is %d bytes, want %d", hexString, len(decoded), len(hash))
	}
	copy(hash[:], decoded)
	return hash, nil
}

// IsZero reports whether h is the zero hash, for use as a sentinel
// for "no hash" where a pointer or extra bool would be overkill.
func (h ChunkHash) IsZero() bool {
	return h == ChunkHash{}
}

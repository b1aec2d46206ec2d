// Copyright 2026 The Pixie Authors
// SPDX-License-Identifier: Apache-2.0

package wire

// CHUNK_SIZE is the maximum size, in bytes, of an uncompressed chunk.
// Only the final chunk of a contiguous region may be smaller.
const CHUNK_SIZE = 4 * 1024 * 1024

// PACKET_LEN is the MTU-safe UDP envelope size: large enough to carry
// a useful payload, small enough to never fragment on a typical LAN
// (1500-byte Ethernet MTU minus IP/UDP headers).
const PACKET_LEN = 1472

// HEADER_LEN is the fixed preamble on every UDP chunk packet: a
// 4-byte big-endian message type, a 4-byte big-endian offset, and
// the 32-byte BLAKE3 chunk hash. This is the modern header variant
// (see internal/udpproto's package doc); the legacy stack's 28-byte SHA-224 variant is
// not implemented, and the two MUST NOT be mixed on the wire.
const HEADER_LEN = 4 + 4 + 32

// BODY_LEN is the maximum chunk payload carried in one UDP packet.
const BODY_LEN = PACKET_LEN - HEADER_LEN

// ClientTimeout is how long the rebuilder waits without a fresh byte
// for a chunk before declaring it stale and re-requesting the
// missing ranges.
const ClientTimeout = 5 // seconds

// HintInterval is the period between HintPacket broadcasts.
const HintInterval = 1 // seconds

// ChunksPort and HintPort are the default UDP ports for the chunk
// transport's unicast request socket and its broadcast hint socket,
// carried over from the original implementation's pixie-shared
// constants so that a mixed fleet of old and new clients agrees on
// where to listen without any configuration.
const (
	ChunksPort = 4041
	HintPort   = 4042
)

// TCPPort is the default port for the length-prefixed TCP bulk
// transport (GetImage/GetChunkSize/UploadChunk/UploadImage/Register/
// ActionComplete), carried over from the original implementation's
// ACTION_PORT constant.
const TCPPort = 25640

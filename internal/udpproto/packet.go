// Copyright 2026 The Pixie Authors
// SPDX-License-Identifier: Apache-2.0

package udpproto

import (
	"encoding/binary"
	"fmt"

	"github.com/pixie-fleet/pixie/internal/wire"
	"github.com/pixie-fleet/pixie/lib/codec"
)

// Server-bound message type tags.
const (
	TypeChunkListRequest uint32 = 1 // body: hash[32]
	TypeDataRequest      uint32 = 2 // body: start u32, length u32, hash[32]
	TypeActionProgress   uint32 = 3 // body: mac[6], chunks_done u32, chunks_total u32
)

// Client-bound message type tags. Reuses the numeric values of the
// server-bound tags — see package doc.
const (
	TypeChunkListInfo uint32 = 1 // body: length u32, hash[32]
	TypeDataPacket    uint32 = 2 // body: offset u32, hash[32], payload[<=BODY_LEN]
)

// hashSize is the wire size of a ChunkHash.
const hashSize = 32

// ErrTooShort is returned when a packet is too short to contain even
// its message type tag, or shorter than the fixed body its tag
// implies. Per spec.md §4.4, such packets are simply dropped by
// callers — this error exists so callers can log and drop uniformly.
var ErrTooShort = fmt.Errorf("udpproto: packet too short")

// ErrUnknownType is returned for a message type tag this package
// does not recognize.
var ErrUnknownType = fmt.Errorf("udpproto: unknown message type")

func decodeType(packet []byte) (uint32, []byte, error) {
	if len(packet) < 4 {
		return 0, nil, ErrTooShort
	}
	return binary.BigEndian.Uint32(packet[:4]), packet[4:], nil
}

// EncodeChunkListRequest builds a request asking the server whether
// it has (and how large) the chunk named by hash.
func EncodeChunkListRequest(hash wire.ChunkHash) []byte {
	buf := make([]byte, 4+hashSize)
	binary.BigEndian.PutUint32(buf[0:4], TypeChunkListRequest)
	copy(buf[4:], hash[:])
	return buf
}

// DecodeChunkListRequest parses a ChunkListRequest packet.
func DecodeChunkListRequest(packet []byte) (wire.ChunkHash, error) {
	typ, body, err := decodeType(packet)
	if err != nil {
		return wire.ChunkHash{}, err
	}
	if typ != TypeChunkListRequest {
		return wire.ChunkHash{}, fmt.Errorf("%w: %d", ErrUnknownType, typ)
	}
	if len(body) < hashSize {
		return wire.ChunkHash{}, ErrTooShort
	}
	var hash wire.ChunkHash
	copy(hash[:], body[:hashSize])
	return hash, nil
}

// EncodeChunkListInfo builds the server's reply reporting a chunk's
// stored (compressed) length, letting the client size its
// reassembly buffer before any DataPacket arrives.
func EncodeChunkListInfo(length uint32, hash wire.ChunkHash) []byte {
	buf := make([]byte, 4+4+hashSize)
	binary.BigEndian.PutUint32(buf[0:4], TypeChunkListInfo)
	binary.BigEndian.PutUint32(buf[4:8], length)
	copy(buf[8:], hash[:])
	return buf
}

// DecodeChunkListInfo parses a ChunkListInfo packet.
func DecodeChunkListInfo(packet []byte) (length uint32, hash wire.ChunkHash, err error) {
	typ, body, err := decodeType(packet)
	if err != nil {
		return 0, wire.ChunkHash{}, err
	}
	if typ != TypeChunkListInfo {
		return 0, wire.ChunkHash{}, fmt.Errorf("%w: %d", ErrUnknownType, typ)
	}
	if len(body) < 4+hashSize {
		return 0, wire.ChunkHash{}, ErrTooShort
	}
	length = binary.BigEndian.Uint32(body[0:4])
	copy(hash[:], body[4:4+hashSize])
	return length, hash, nil
}

// DataRequest is a client's request for one byte range of a chunk —
// either the initial full-range request that kicks off a transfer,
// or a coalesced retransmission request for a gap in the missing
// bitmap.
type DataRequest struct {
	Start  uint32
	Length uint32
	Hash   wire.ChunkHash
}

// EncodeDataRequest builds a DataRequest packet.
func EncodeDataRequest(req DataRequest) []byte {
	buf := make([]byte, 4+wire.HEADER_LEN)
	binary.BigEndian.PutUint32(buf[0:4], TypeDataRequest)
	binary.BigEndian.PutUint32(buf[4:8], req.Start)
	binary.BigEndian.PutUint32(buf[8:12], req.Length)
	copy(buf[12:], req.Hash[:])
	return buf
}

// DecodeDataRequest parses a DataRequest packet.
func DecodeDataRequest(packet []byte) (DataRequest, error) {
	typ, body, err := decodeType(packet)
	if err != nil {
		return DataRequest{}, err
	}
	if typ != TypeDataRequest {
		return DataRequest{}, fmt.Errorf("%w: %d", ErrUnknownType, typ)
	}
	if len(body) < 4+4+hashSize {
		return DataRequest{}, ErrTooShort
	}
	var req DataRequest
	req.Start = binary.BigEndian.Uint32(body[0:4])
	req.Length = binary.BigEndian.Uint32(body[4:8])
	copy(req.Hash[:], body[8:8+hashSize])
	return req, nil
}

// EncodeDataPacket builds one DataPacket carrying payload bytes of a
// chunk starting at offset. Callers must ensure
// len(payload) <= wire.BODY_LEN so the packet never exceeds
// wire.PACKET_LEN.
func EncodeDataPacket(offset uint32, hash wire.ChunkHash, payload []byte) ([]byte, error) {
	if len(payload) > wire.BODY_LEN {
		return nil, fmt.Errorf("udpproto: payload of %d bytes exceeds BODY_LEN %d", len(payload), wire.BODY_LEN)
	}
	buf := make([]byte, wire.HEADER_LEN+len(payload))
	binary.BigEndian.PutUint32(buf[0:4], TypeDataPacket)
	binary.BigEndian.PutUint32(buf[4:8], offset)
	copy(buf[8:8+hashSize], hash[:])
	copy(buf[8+hashSize:], payload)
	return buf, nil
}

// DataPacket is a decoded chunk of chunk data received over UDP.
type DataPacket struct {
	Offset  uint32
	Hash    wire.ChunkHash
	Payload []byte
}

// DecodeDataPacket parses a DataPacket. The returned Payload aliases
// packet; callers that retain it past the lifetime of the receive
// buffer must copy it.
func DecodeDataPacket(packet []byte) (DataPacket, error) {
	typ, body, err := decodeType(packet)
	if err != nil {
		return DataPacket{}, err
	}
	if typ != TypeDataPacket {
		return DataPacket{}, fmt.Errorf("%w: %d", ErrUnknownType, typ)
	}
	if len(body) < 4+hashSize {
		return DataPacket{}, ErrTooShort
	}
	var pkt DataPacket
	pkt.Offset = binary.BigEndian.Uint32(body[0:4])
	copy(pkt.Hash[:], body[4:4+hashSize])
	pkt.Payload = body[4+hashSize:]
	return pkt, nil
}

// ActionProgressMsg is a client's lossy, high-frequency progress
// ping. Unlike ActionComplete (TCP, reliable — it drives a state
// transition), losing an ActionProgress packet is harmless: the next
// one supersedes it.
type ActionProgressMsg struct {
	MAC      wire.MAC
	Progress wire.Progress
}

// EncodeActionProgress builds an ActionProgress packet.
func EncodeActionProgress(msg ActionProgressMsg) []byte {
	buf := make([]byte, 4+6+4+4)
	binary.BigEndian.PutUint32(buf[0:4], TypeActionProgress)
	copy(buf[4:10], msg.MAC[:])
	binary.BigEndian.PutUint32(buf[10:14], msg.Progress.ChunksDone)
	binary.BigEndian.PutUint32(buf[14:18], msg.Progress.ChunksTotal)
	return buf
}

// EncodeHintPacket CBOR-encodes hint with Core Deterministic Encoding
// via lib/codec. Unlike the fixed-header messages above, HintPacket
// has no bounded shape (an arbitrary number of images and groups), so
// it is the one UDP message that pays for a self-describing codec
// instead of a hand-packed binary layout.
func EncodeHintPacket(hint wire.HintPacket) ([]byte, error) {
	data, err := codec.Marshal(hint)
	if err != nil {
		return nil, fmt.Errorf("udpproto: encoding HintPacket: %w", err)
	}
	return data, nil
}

// DecodeHintPacket decodes a HintPacket broadcast.
func DecodeHintPacket(packet []byte) (wire.HintPacket, error) {
	var hint wire.HintPacket
	if err := codec.Unmarshal(packet, &hint); err != nil {
		return wire.HintPacket{}, fmt.Errorf("udpproto: decoding HintPacket: %w", err)
	}
	return hint, nil
}

// DecodeActionProgress parses an ActionProgress packet.
func DecodeActionProgress(packet []byte) (ActionProgressMsg, error) {
	typ, body, err := decodeType(packet)
	if err != nil {
		return ActionProgressMsg{}, err
	}
	if typ != TypeActionProgress {
		return ActionProgressMsg{}, fmt.Errorf("%w: %d", ErrUnknownType, typ)
	}
	if len(body) < 6+4+4 {
		return ActionProgressMsg{}, ErrTooShort
	}
	var msg ActionProgressMsg
	copy(msg.MAC[:], body[0:6])
	msg.Progress.ChunksDone = binary.BigEndian.Uint32(body[6:10])
	msg.Progress.ChunksTotal = binary.BigEndian.Uint32(body[10:14])
	return msg, nil
}

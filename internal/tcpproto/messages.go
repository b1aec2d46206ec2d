// Copyright 2026 The Pixie Authors
// SPDX-License-Identifier: Apache-2.0

package tcpproto

import (
	"encoding/binary"
	"fmt"
	"io"
	"net/netip"

	"github.com/pixie-fleet/pixie/internal/wire"
	"github.com/pixie-fleet/pixie/lib/codec"
)

// Kind names one TCP request/response variant.
type Kind string

const (
	KindGetImage       Kind = "get_image"
	KindGetChunkSize   Kind = "get_chunk_size"
	KindUploadChunk    Kind = "upload_chunk"
	KindUploadImage    Kind = "upload_image"
	KindRegister       Kind = "register"
	KindActionComplete Kind = "action_complete"
)

// MaxMessageSize bounds one TCP frame: large enough to carry an
// UploadChunk request holding a full CHUNK_SIZE chunk (diskengine.Push
// uploads a chunk raw whenever LZ4 does not shrink it),
// small enough that a malformed or hostile length prefix cannot
// trigger an unbounded allocation.
const MaxMessageSize = wire.CHUNK_SIZE + 4096

// Request is a tagged union of every TCP request variant. Only the
// fields relevant to Kind are meaningful.
type Request struct {
	Kind Kind `cbor:"kind"`

	// GetImage, UploadImage
	Name string `cbor:"name,omitempty"`

	// GetChunkSize
	Hash wire.ChunkHash `cbor:"hash,omitempty"`

	// UploadChunk
	ChunkHash      wire.ChunkHash      `cbor:"chunk_hash,omitempty"`
	CompressionTag wire.CompressionTag `cbor:"compression_tag,omitempty"`
	Compressed     []byte              `cbor:"compressed,omitempty"`

	// UploadImage
	Image wire.Image `cbor:"image,omitempty"`

	// Register, ActionComplete
	MAC wire.MAC `cbor:"mac,omitempty"`

	// Register
	Group string `cbor:"group,omitempty"`
	Row   uint8  `cbor:"row,omitempty"`
	Col   uint8  `cbor:"col,omitempty"`

	// ActionComplete
	Progress wire.Progress `cbor:"progress,omitempty"`
}

// Response is a tagged union of every TCP response variant. Error is
// set, and every field other than Kind left zero, on failure.
type Response struct {
	Kind  Kind   `cbor:"kind"`
	Error string `cbor:"error,omitempty"`

	// GetImage
	Image wire.Image `cbor:"image,omitempty"`

	// GetChunkSize
	CSize uint32 `cbor:"csize,omitempty"`

	// UploadChunk
	StoredCSize uint32 `cbor:"stored_csize,omitempty"`

	// Register
	StaticIP netip.Addr  `cbor:"static_ip,omitzero"`
	Action   wire.Action `cbor:"action,omitempty"`
}

// WriteRequest frames and writes req to w: a 4-byte big-endian length
// followed by the CBOR-encoded payload.
func WriteRequest(w io.Writer, req Request) error {
	return writeFrame(w, req)
}

// ReadRequest reads one length-prefixed request frame from r.
func ReadRequest(r io.Reader) (Request, error) {
	var req Request
	if err := readFrame(r, &req); err != nil {
		return Request{}, err
	}
	return req, nil
}

// WriteResponse frames and writes resp to w.
func WriteResponse(w io.Writer, resp Response) error {
	return writeFrame(w, resp)
}

// ReadResponse reads one length-prefixed response frame from r.
func ReadResponse(r io.Reader) (Response, error) {
	var resp Response
	if err := readFrame(r, &resp); err != nil {
		return Response{}, err
	}
	return resp, nil
}

func writeFrame(w io.Writer, v any) error {
	payload, err := codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("tcpproto: encoding frame: %w", err)
	}
	if len(payload) > MaxMessageSize {
		return fmt.Errorf("tcpproto: encoded frame of %d bytes exceeds MaxMessageSize %d", len(payload), MaxMessageSize)
	}

	var lengthPrefix [4]byte
	binary.BigEndian.PutUint32(lengthPrefix[:], uint32(len(payload)))
	if _, err := w.Write(lengthPrefix[:]); err != nil {
		return fmt.Errorf("tcpproto: writing length prefix: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("tcpproto: writing payload: %w", err)
	}
	return nil
}

func readFrame(r io.Reader, v any) error {
	var lengthPrefix [4]byte
	if _, err := io.ReadFull(r, lengthPrefix[:]); err != nil {
		return fmt.Errorf("tcpproto: reading length prefix: %w", err)
	}
	length := binary.BigEndian.Uint32(lengthPrefix[:])
	if length > MaxMessageSize {
		return fmt.Errorf("tcpproto: frame length %d exceeds MaxMessageSize %d", length, MaxMessageSize)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return fmt.Errorf("tcpproto: reading payload: %w", err)
	}
	if err := codec.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("tcpproto: decoding frame: %w", err)
	}
	return nil
}

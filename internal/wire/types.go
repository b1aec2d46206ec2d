// Copyright 2026 The Pixie Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"fmt"
	"net/netip"
	"time"
)

// Chunk describes one content-addressed fragment of a disk image.
//
// Invariant: Size <= CHUNK_SIZE. Within an Image.Disk list, chunks
// are ordered by Start and never overlap.
type Chunk struct {
	Hash  ChunkHash `json:"hash"`
	Start uint64    `json:"start"`
	Size  uint32    `json:"size"`
	CSize uint32    `json:"csize"`
}

// CompressionTag identifies how a chunk's bytes are stored on disk
// and on the wire between pixie-client and pixie-server.
type CompressionTag uint8

const (
	// CompressionLZ4 is LZ4 block compression, the default for chunk
	// storage.
	CompressionLZ4 CompressionTag = 0

	// CompressionNone marks a chunk that LZ4 could not shrink —
	// for incompressible input (already-compressed or random data)
	// lz4.CompressBlock returns 0 or a block no smaller than the
	// input, so the raw bytes are stored and transmitted unchanged.
	CompressionNone CompressionTag = 1
)

// String returns the human-readable name of a compression tag.
func (tag CompressionTag) String() string {
	switch tag {
	case CompressionLZ4:
		return "lz4"
	case CompressionNone:
		return "none"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(tag))
	}
}

// Image is a disk snapshot: an ordered, non-overlapping list of
// chunks plus the boot option this image should install. An Image
// has no inherent total size — the highest written offset is the
// last chunk's Start+Size.
type Image struct {
	BootOptionID uint32  `json:"boot_option_id"`
	BootEntry    []byte  `json:"boot_entry,omitempty"`
	Disk         []Chunk `json:"disk"`
}

// Validate checks that Disk is ordered by Start and non-overlapping,
// and that every chunk's Size respects CHUNK_SIZE.
func (img *Image) Validate() error {
	var prevEnd uint64
	for i, chunk := range img.Disk {
		if chunk.Size > CHUNK_SIZE {
			return fmt.Errorf("chunk %d: size %d exceeds CHUNK_SIZE %d", i, chunk.Size, CHUNK_SIZE)
		}
		if i > 0 && chunk.Start < prevEnd {
			return fmt.Errorf("chunk %d: start %d overlaps previous chunk ending at %d", i, chunk.Start, prevEnd)
		}
		prevEnd = chunk.Start + uint64(chunk.Size)
	}
	return nil
}

// MAC is a 6-byte hardware address, the primary key for a Unit.
type MAC [6]byte

// String returns the conventional colon-separated hex form.
func (m MAC) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", m[0], m[1], m[2], m[3], m[4], m[5])
}

// MarshalText implements encoding.TextMarshaler.
func (m MAC) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *MAC) UnmarshalText(text []byte) error {
	parsed, err := ParseMAC(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ParseMAC parses a colon-separated hex MAC address.
func ParseMAC(s string) (MAC, error) {
	var mac MAC
	n, err := fmt.Sscanf(s, "%02x:%02x:%02x:%02x:%02x:%02x",
		&mac[0], &mac[1], &mac[2], &mac[3], &mac[4], &mac[5])
	if err != nil || n != 6 {
		return mac, fmt.Errorf("parsing MAC address %q: %w", s, err)
	}
	return mac, nil
}

// ActionKind names one state in a unit's action state machine.
type ActionKind string

const (
	ActionWait     ActionKind = "wait"
	ActionReboot   ActionKind = "reboot"
	ActionRegister ActionKind = "register"
	ActionPush     ActionKind = "push"
	ActionPull     ActionKind = "pull"
)

// Action is the tagged-variant action a unit is told to perform.
// Only the fields relevant to Kind are meaningful: Image for
// Push/Pull, ChunksPort/HintPort for Pull.
type Action struct {
	Kind       ActionKind `json:"kind"`
	Image      string     `json:"image,omitempty"`
	ChunksPort uint16     `json:"chunks_port,omitempty"`
	HintPort   uint16     `json:"hint_port,omitempty"`
}

// Progress is the payload of an ActionProgress or ActionComplete
// report sent by a client. Error is non-empty only on a failed
// ActionComplete.
type Progress struct {
	ChunksDone  uint32 `json:"chunks_done"`
	ChunksTotal uint32 `json:"chunks_total"`
	Error       string `json:"error,omitempty"`
}

// Unit is one managed machine, keyed by MAC address, with its
// logical fleet coordinates and its position in the action state
// machine. Fleet state owns the authoritative copy; the HTTP layer
// and WsUpdate snapshots hold read-mostly copies.
type Unit struct {
	MAC   MAC    `json:"mac"`
	Group string `json:"group"`
	Row   uint8  `json:"row"`
	Col   uint8  `json:"col"`

	CurrAction   Action   `json:"curr_action"`
	CurrProgress Progress `json:"curr_progress"`
	NextAction   Action   `json:"next_action"`

	Image string `json:"image,omitempty"`

	LastPingTimestamp time.Time `json:"last_ping_timestamp"`
	LastPingMsg       string    `json:"last_ping_msg,omitempty"`

	// StaticIP is the address reserved for MAC in the fleet's
	// MAC<->IP bijection, when one exists. Zero value (!IsValid())
	// means no reservation.
	StaticIP netip.Addr `json:"static_ip,omitzero"`
}

// HintPacket is broadcast periodically on the hint port so that a
// client with no prior state can discover what it is expected to
// become: the set of known images, the group roster, and how many
// units remain unregistered.
type HintPacket struct {
	Images       map[string]Image `cbor:"images"`
	Groups       map[string]uint8 `cbor:"groups"`
	Unregistered uint8            `cbor:"unregistered"`
}

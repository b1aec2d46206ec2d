// Copyright 2026 The Pixie Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import "testing"

func TestImageValidateAcceptsOrderedNonOverlapping(t *testing.T) {
	img := Image{
		Disk: []Chunk{
			{Hash: HashChunk([]byte("a")), Start: 0, Size: 100},
			{Hash: HashChunk([]byte("b")), Start: 100, Size: 50},
			{Hash: HashChunk([]byte("c")), Start: 200, Size: 10},
		},
	}

	if err := img.Validate(); err != nil {
		t.Errorf("expected valid image, got error: %v", err)
	}
}

func TestImageValidateRejectsOverlap(t *testing.T) {
	img := Image{
		Disk: []Chunk{
			{Hash: HashChunk([]byte("a")), Start: 0, Size: 100},
			{Hash: HashChunk([]byte("b")), Start: 50, Size: 50},
		},
	}

	if err := img.Validate(); err == nil {
		t.Error("expected error for overlapping chunks")
	}
}

func TestImageValidateRejectsOversizedChunk(t *testing.T) {
	img := Image{
		Disk: []Chunk{
			{Hash: HashChunk([]byte("a")), Start: 0, Size: CHUNK_SIZE + 1},
		},
	}

	if err := img.Validate(); err == nil {
		t.Error("expected error for chunk exceeding CHUNK_SIZE")
	}
}

func TestMACStringAndParseRoundtrip(t *testing.T) {
	original := MAC{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}

	parsed, err := ParseMAC(original.String())
	if err != nil {
		t.Fatalf("ParseMAC: %v", err)
	}

	if parsed != original {
		t.Errorf("roundtrip mismatch: got %v, want %v", parsed, original)
	}
}

func TestBodyLenConsistentWithHeader(t *testing.T) {
	if BODY_LEN+HEADER_LEN != PACKET_LEN {
		t.Errorf("BODY_LEN (%d) + HEADER_LEN (%d) != PACKET_LEN (%d)", BODY_LEN, HEADER_LEN, PACKET_LEN)
	}
}

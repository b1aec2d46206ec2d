// Copyright 2026 The Pixie Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Pixie's standard CBOR encoding configuration.
//
// Pixie uses two serialization formats with a clear boundary:
//
//   - JSON for on-disk, human-inspectable state: images/<name>.json
//     manifests, registered.json fleet state, config.yaml-adjacent
//     CLI output.
//   - CBOR for wire protocols: TCP request/response framing and the
//     UDP HintPacket broadcast, where compact encoding matters because
//     the payload travels over the network, potentially to hundreds
//     of machines at once.
//
// This package provides the shared CBOR encoding and decoding modes so
// that every Pixie package encodes identically without duplicating
// configuration. The encoder uses Core Deterministic Encoding (RFC 8949
// §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items. Same logical data always produces identical
// bytes.
//
// For buffer-oriented operations (files, tokens):
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations (sockets, IPC):
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
//
// # Struct Tag Rules
//
// The struct tag on a type documents its serialization format:
//
//   - `cbor` tag: this type is ONLY ever serialized as CBOR. It never
//     touches disk as JSON. Examples: tcpproto.Request/Response envelopes,
//     HintPacket.
//   - `json` tag: this type may be serialized as BOTH JSON and CBOR.
//     fxamacker/cbor v2 reads `json` tags as fallback when `cbor` tags
//     are absent, so a single `json` tag controls field naming and
//     omitempty for both formats. Examples: Chunk and Image, which are
//     both written to images/<name>.json on disk and carried inside
//     CBOR wire messages (UploadImage, GetImage's response).
//
// Never use both `cbor` and `json` tags on the same field. The tag
// choice documents the contract — doubling up is noise that obscures
// whether a type participates in JSON serialization.
package codec

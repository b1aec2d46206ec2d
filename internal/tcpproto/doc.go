// Copyright 2026 The Pixie Authors
// SPDX-License-Identifier: Apache-2.0

// Package tcpproto implements the length-prefixed, CBOR-encoded TCP
// request/response protocol from spec.md §4.5/§6: GetImage,
// GetChunkSize, UploadChunk, UploadImage, Register, and
// ActionComplete.
//
// Framing is [4-byte big-endian length][CBOR payload]. The CBOR
// payload is always a Request or Response value, whose Kind field
// self-describes which variant is present — so, unlike the legacy
// wire format's leading type byte, Pixie's TCP frame carries no
// separate type tag at the transport layer.
package tcpproto

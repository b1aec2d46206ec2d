// Copyright 2026 The Pixie Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire defines Pixie's shared data model and wire-format
// constants: the chunk hash, chunk and image descriptors, the action
// state machine's vocabulary, and the byte-size constants that bound
// every UDP packet and chunk.
//
// This package holds no behavior beyond encoding helpers — it is the
// vocabulary that udpproto, tcpproto, chunkstore, imageregistry, and
// fleet all import so that a Chunk or an Action means the same thing
// wherever it appears, on disk or on the wire.
package wire

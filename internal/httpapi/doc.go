// Copyright 2026 The Pixie Authors
// SPDX-License-Identifier: Apache-2.0

// Package httpapi implements spec.md §4.7's admin HTTP/WebSocket
// control plane: setting a unit's (or group's, or the whole fleet's)
// next action, and streaming WsUpdate snapshots of fleet state to
// admin consumers (pixie-admin's one-shot reads, pixie-top's live
// dashboard).
//
// Fleet state itself lives in internal/fleet, guarded by its own
// lock; this package mostly translates HTTP requests into fleet.State
// calls and fleet.State subscriptions into WebSocket frames, plus two
// admin-only endpoints that pass straight through to imageregistry.Registry
// and chunkstore.Store (GET /admin/images, POST /admin/gc) so
// pixie-admin and pixie-top don't need a second transport for image
// and storage management. It never touches the UDP transport.
package httpapi

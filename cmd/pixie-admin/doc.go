// Copyright 2026 The Pixie Authors
// SPDX-License-Identifier: Apache-2.0

// pixie-admin is a one-shot CLI over the admin HTTP API served by
// internal/httpapi. Where cmd/pixie-top holds a WebSocket open for a
// live dashboard, pixie-admin issues a single request and prints its
// result — the two consumers SPEC_FULL.md §4.7 names for GET
// /admin/status and its WebSocket counterpart.
//
//	pixie-admin status --server http://host:port
//	pixie-admin action all reboot --server http://host:port
//	pixie-admin action lab flash --image golden --server http://host:port
//	pixie-admin images --server http://host:port
//	pixie-admin gc --server http://host:port
package main

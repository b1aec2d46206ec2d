// Copyright 2026 The Pixie Authors
// SPDX-License-Identifier: Apache-2.0

// pixie-top is a terminal dashboard for a Pixie fleet. It holds
// internal/httpapi's admin WebSocket open and renders a live grid of
// units positioned by row/column, colored by their current action,
// with an fzf fuzzy-matching selector for jumping to a unit or group by
// name — the "admin tool" component SPEC_FULL.md §2 calls for distinct
// from the (out of scope) browser admin UI, consuming the same feed a
// browser client would.
package main

// Copyright 2026 The Pixie Authors
// SPDX-License-Identifier: Apache-2.0

// Package fleet is the single authoritative in-memory model of every
// known Unit, guarded by one writer lock, persisted to
// registered.json (spec.md §6), and mutated by three call paths: the
// TCP Register/ActionComplete handlers, the UDP ActionProgress
// handler, and the HTTP admin control plane.
//
// State machine per unit (spec.md §4.7):
//
//	Idle -> (admin sets NextAction) -> on next Register poll:
//	CurrAction = NextAction -> client reports Progress -> on
//	ActionComplete: CurrAction = Wait, NextAction unchanged unless
//	the admin already overwrote it.
//
// Pixie's wire protocol has no dedicated "poll for my action"
// message; instead, each Register call doubles as the client's poll
// (a PXE-booting client always re-registers), so State.Register both
// upserts the unit's coordinates and — when the unit is currently
// idle — promotes NextAction into CurrAction, returning the result.
package fleet

// Copyright 2026 The Pixie Authors
// SPDX-License-Identifier: Apache-2.0

// pixie-client is the idiomatic-Go stand-in for the UEFI network boot
// binary described in SPEC_FULL.md §2: the disk engine and chunk
// rebuilder, invoked as a normal Linux process against a real block
// device (or, for testing without hardware, a plain file). Only the
// execution environment differs from the original UEFI application —
// the disk model and wire protocol it speaks are identical.
//
// It has three subcommands:
//
//	pixie-client register --server host:port --mac aa:bb:cc:dd:ee:ff --group lab --row 0 --col 0
//	pixie-client push     --server host:port --mac aa:bb:cc:dd:ee:ff --device /dev/sda --image golden
//	pixie-client pull     --server host:port --mac aa:bb:cc:dd:ee:ff --device /dev/sda --image golden
//
// register reports the unit's fleet coordinates and learns its
// assigned static IP and pending action. push reads a device's
// allocated chunks and publishes them as a named image. pull writes a
// named image onto a device, skipping any chunk whose on-disk bytes
// already match. Both push and pull report ActionComplete to the
// server's TCP control port when done.
package main

// Copyright 2026 The Pixie Authors
// SPDX-License-Identifier: Apache-2.0

// Package diskengine implements spec.md §4.6's client-side disk
// engine: block device I/O, GPT and filesystem-aware chunk planning,
// and the push/pull flows that move a disk image to and from a Pixie
// server.
//
// The original pixie-uefi client runs this logic inside a UEFI
// application with no operating system underneath it. Pixie's client
// is an ordinary Linux process, so BlockDevice talks to a normal
// block device node (or, for tests and non-destructive development,
// a plain file) instead of a UEFI block I/O protocol — the disk
// model, chunk planning, and wire protocol this package drives are
// otherwise unchanged from the original.
package diskengine

// Copyright 2026 The Pixie Authors
// SPDX-License-Identifier: Apache-2.0

// Package imageregistry maps image names to manifests, stored as
// human-inspectable JSON under images/<name>.json with atomic rename
// on every write. Put computes the multiset difference between the
// outgoing and incoming manifest and drives the chunk store's
// reference counts: increments for additions are applied before
// decrements for removals, so a replacement that is a net no-op for
// some hash never transiently drops its reference count to zero.
package imageregistry

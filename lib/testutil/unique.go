// Copyright 2026 The Pixie Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"sync/atomic"
)

var uniqueCounter atomic.Uint64

// UniqueID returns a string of the form "prefix-N" where N is a
// monotonically increasing integer. Use this instead of time.Now() when
// tests need unique identifiers for image names, group names, or
// temporary storage roots that must not collide across parallel tests.
//
//	image := testutil.UniqueID("image")   // "image-1", "image-2", ...
//	group := testutil.UniqueID("group")   // "group-3", ...
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, uniqueCounter.Add(1))
}

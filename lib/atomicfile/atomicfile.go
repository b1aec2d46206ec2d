// Copyright 2026 The Pixie Authors
// SPDX-License-Identifier: Apache-2.0

// Package atomicfile provides crash-safe file writes: write to a
// temporary sibling file, then rename over the target. A process that
// dies mid-write leaves the temporary file behind and the target
// untouched; a reader never observes a partially written file.
package atomicfile

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Write atomically replaces path with data. The temporary file is
// named "<base>.tmp.<pid>.<nonce>" in the same directory as path, so
// the final rename is same-filesystem and therefore atomic.
func Write(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmpPath := filepath.Join(dir, fmt.Sprintf("%s.tmp.%d.%s", filepath.Base(path), os.Getpid(), uuid.NewString()))

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if err := os.WriteFile(tmpPath, data, perm); err != nil {
		return fmt.Errorf("writing temp file %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming %s to %s: %w", tmpPath, path, err)
	}

	success = true
	return nil
}

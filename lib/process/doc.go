// Copyright 2026 The Pixie Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers for the
// pixie-server, pixie-client, pixie-admin, and pixie-top binaries.
// [Fatal] centralizes the one legitimate raw I/O pattern that exists
// before the structured logger is configured: error reporting to
// stderr followed by process exit.
package process

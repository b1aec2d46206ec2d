// Copyright 2026 The Pixie Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for Pixie binaries.
//
// Configuration is loaded from a single file specified by either the
// PIXIE_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no fallbacks, no ~/.config discovery,
// and no automatic file search. This ensures deterministic, auditable
// configuration with no hidden overrides.
//
// Three environment variables override specific fields after the file
// is loaded, for per-deployment adjustment without editing config.yaml:
// PIXIE_STORAGE, PIXIE_HTTP_ADDR, and PIXIE_HTTP_PORT. No other field
// is affected by the environment.
//
// Variable expansion is performed on the Storage field after loading:
// ${HOME} and ${VAR:-default} patterns are expanded.
//
// Key exports:
//
//   - [Config] -- master struct with Storage, HTTP, Network, Groups
//   - [Default] -- returns a Config with development-friendly defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
//
// This package depends on no other Pixie package.
package config

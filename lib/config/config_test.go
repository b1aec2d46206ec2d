// Copyright 2026 The Pixie Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.HTTP.Port != 8080 {
		t.Errorf("expected http.port=8080, got %d", cfg.HTTP.Port)
	}

	if cfg.Network.TTL != 1 {
		t.Errorf("expected network.ttl=1, got %d", cfg.Network.TTL)
	}

	if cfg.Storage == "" {
		t.Error("expected non-empty default storage path")
	}
}

func TestLoad_RequiresPixieConfig(t *testing.T) {
	origConfig := os.Getenv("PIXIE_CONFIG")
	defer os.Setenv("PIXIE_CONFIG", origConfig)

	os.Unsetenv("PIXIE_CONFIG")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when PIXIE_CONFIG not set, got nil")
	}

	expectedMsg := "PIXIE_CONFIG environment variable not set"
	if err.Error()[:len(expectedMsg)] != expectedMsg {
		t.Errorf("expected error message to start with %q, got %q", expectedMsg, err.Error())
	}
}

func TestLoad_WithPixieConfig(t *testing.T) {
	origConfig := os.Getenv("PIXIE_CONFIG")
	defer os.Setenv("PIXIE_CONFIG", origConfig)

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
storage: /test/storage
http:
  port: 9090
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	os.Setenv("PIXIE_CONFIG", configPath)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Storage != "/test/storage" {
		t.Errorf("expected storage=/test/storage, got %s", cfg.Storage)
	}
	if cfg.HTTP.Port != 9090 {
		t.Errorf("expected http.port=9090, got %d", cfg.HTTP.Port)
	}
}

func TestLoadFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
storage: /custom/storage

http:
  addr: 127.0.0.1
  port: 7000

network:
  interface: eth0
  broadcast_addr: 255.255.255.255:9000
  ttl: 2

groups:
  lab-a:
    bits_per_second: 100000000
  lab-b:
    bits_per_second: 50000000
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Storage != "/custom/storage" {
		t.Errorf("expected storage=/custom/storage, got %s", cfg.Storage)
	}

	if cfg.HTTP.Addr != "127.0.0.1" || cfg.HTTP.Port != 7000 {
		t.Errorf("expected http=127.0.0.1:7000, got %s:%d", cfg.HTTP.Addr, cfg.HTTP.Port)
	}

	if cfg.Network.Interface != "eth0" {
		t.Errorf("expected interface=eth0, got %s", cfg.Network.Interface)
	}

	if cfg.Network.TTL != 2 {
		t.Errorf("expected ttl=2, got %d", cfg.Network.TTL)
	}

	if len(cfg.Groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(cfg.Groups))
	}

	if cfg.Groups["lab-a"].BitsPerSecond != 100000000 {
		t.Errorf("expected lab-a rate=100000000, got %d", cfg.Groups["lab-a"].BitsPerSecond)
	}
}

func TestEnvOverrides(t *testing.T) {
	for _, key := range []string{"PIXIE_STORAGE", "PIXIE_HTTP_ADDR", "PIXIE_HTTP_PORT"} {
		orig := os.Getenv(key)
		defer os.Setenv(key, orig)
	}

	os.Setenv("PIXIE_STORAGE", "/env/storage")
	os.Setenv("PIXIE_HTTP_ADDR", "0.0.0.0")
	os.Setenv("PIXIE_HTTP_PORT", "9999")

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
storage: /file/storage
http:
  addr: 127.0.0.1
  port: 8080
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Storage != "/env/storage" {
		t.Errorf("expected storage overridden to /env/storage, got %s", cfg.Storage)
	}
	if cfg.HTTP.Addr != "0.0.0.0" {
		t.Errorf("expected addr overridden to 0.0.0.0, got %s", cfg.HTTP.Addr)
	}
	if cfg.HTTP.Port != 9999 {
		t.Errorf("expected port overridden to 9999, got %d", cfg.HTTP.Port)
	}
}

func TestExpandVars(t *testing.T) {
	tests := []struct {
		input    string
		vars     map[string]string
		expected string
	}{
		{
			input:    "${HOME}/pixie",
			vars:     map[string]string{"HOME": "/home/user"},
			expected: "/home/user/pixie",
		},
		{
			input:    "${MISSING:-default}",
			vars:     map[string]string{},
			expected: "default",
		},
		{
			input:    "${PRESENT:-default}",
			vars:     map[string]string{"PRESENT": "value"},
			expected: "value",
		},
		{
			input:    "no variables here",
			vars:     map[string]string{},
			expected: "no variables here",
		},
	}

	for _, tt := range tests {
		result := expandVars(tt.input, tt.vars)
		if result != tt.expected {
			t.Errorf("expandVars(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "empty storage",
			modify: func(c *Config) {
				c.Storage = ""
			},
			wantErr: true,
		},
		{
			name: "invalid port",
			modify: func(c *Config) {
				c.HTTP.Port = 0
			},
			wantErr: true,
		},
		{
			name: "negative group rate",
			modify: func(c *Config) {
				c.Groups = map[string]GroupConfig{"lab-a": {BitsPerSecond: -1}}
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEnsurePaths(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := Default()
	cfg.Storage = filepath.Join(tmpDir, "pixie")

	if err := cfg.EnsurePaths(); err != nil {
		t.Fatalf("EnsurePaths failed: %v", err)
	}

	for _, path := range []string{cfg.Storage, filepath.Join(cfg.Storage, "chunks"), filepath.Join(cfg.Storage, "images")} {
		info, err := os.Stat(path)
		if err != nil {
			t.Errorf("path %s not created: %v", path, err)
			continue
		}
		if !info.IsDir() {
			t.Errorf("path %s is not a directory", path)
		}
	}
}

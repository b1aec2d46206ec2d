// Copyright 2026 The Pixie Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads Pixie's configuration for each binary.
//
// Configuration is loaded from a single file specified by:
//   - PIXIE_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. This ensures
// deterministic, auditable configuration with no hidden overrides, except
// for the narrow set of environment variables documented on [LoadFile]
// that are meant to be set per-deployment without editing the file
// (PIXIE_STORAGE, PIXIE_HTTP_ADDR, PIXIE_HTTP_PORT).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the master configuration for a Pixie binary.
type Config struct {
	// Storage is the root directory holding chunks/, images/, and
	// registered.json.
	Storage string `yaml:"storage"`

	// HTTP configures the admin HTTP/WebSocket control plane.
	HTTP HTTPConfig `yaml:"http"`

	// Network configures the outgoing interface used for UDP
	// broadcast/multicast hints.
	Network NetworkConfig `yaml:"network"`

	// Groups maps a group name to its send-rate configuration. The
	// group set is entirely config-defined; there is no built-in
	// default group.
	Groups map[string]GroupConfig `yaml:"groups"`

	// StaticIPs is the MAC<->IP bijection (internal/bijection):
	// every entry reserves one IPv4 address for one MAC address.
	// Units whose MAC has no entry here register successfully but
	// receive no StaticIP.
	StaticIPs []StaticIPConfig `yaml:"static_ips"`
}

// StaticIPConfig is one MAC<->IP reservation in the config file.
type StaticIPConfig struct {
	MAC string `yaml:"mac"`
	IP  string `yaml:"ip"`
}

// HTTPConfig configures the admin control plane listener.
type HTTPConfig struct {
	// Addr is the bind address, e.g. "" or "0.0.0.0" for all interfaces.
	Addr string `yaml:"addr"`

	// Port is the TCP port for the admin HTTP/WebSocket API.
	Port int `yaml:"port"`
}

// NetworkConfig configures the UDP transport's outgoing interface.
type NetworkConfig struct {
	// Interface is the name of the network interface (e.g. "eth0") used
	// to send HintPacket and DataPacket broadcasts. Empty means the OS
	// default route.
	Interface string `yaml:"interface"`

	// BroadcastAddr is the destination address for hint broadcasts,
	// e.g. "255.255.255.255:9000" or a multicast group address.
	BroadcastAddr string `yaml:"broadcast_addr"`

	// TTL is the IP TTL/hop-limit set on outgoing hint and data
	// packets. Default: 1 (stay on the local subnet).
	TTL int `yaml:"ttl"`
}

// GroupConfig configures the send budget for one group.
type GroupConfig struct {
	// BitsPerSecond is the token-bucket rate enforced for all chunk
	// sends to units in this group.
	BitsPerSecond int64 `yaml:"bits_per_second"`
}

// Default returns the default configuration. These defaults are used as
// a base before loading the config file. They exist primarily to ensure
// all fields have sensible zero-values, not as a fallback — the config
// file is required.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultStorage := filepath.Join(homeDir, ".local", "share", "pixie")

	return &Config{
		Storage: defaultStorage,
		HTTP: HTTPConfig{
			Addr: "",
			Port: 8080,
		},
		Network: NetworkConfig{
			TTL: 1,
		},
		Groups: map[string]GroupConfig{},
	}
}

// Load loads configuration from the path named by the PIXIE_CONFIG
// environment variable.
//
// This is the only way to load configuration without an explicit path.
// There are no fallbacks or defaults — if PIXIE_CONFIG is not set, this
// fails. This ensures deterministic, auditable configuration with no
// hidden overrides.
func Load() (*Config, error) {
	configPath := os.Getenv("PIXIE_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("PIXIE_CONFIG environment variable not set; " +
			"set it to the path of your config.yaml file, or use --config")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the primary source of truth. After loading,
// LoadFile applies three narrow environment-variable overrides meant
// for per-deployment adjustment without editing the file:
// PIXIE_STORAGE overrides Storage, PIXIE_HTTP_ADDR overrides
// HTTP.Addr, and PIXIE_HTTP_PORT overrides HTTP.Port. No other field
// is affected by the environment. ${HOME} and similar path variables
// are then expanded in Storage.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	cfg.expandVariables()

	return cfg, nil
}

// loadFile loads a single configuration file, merging into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, c)
}

// applyEnvOverrides applies PIXIE_STORAGE, PIXIE_HTTP_ADDR, and
// PIXIE_HTTP_PORT on top of the loaded file, when set.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("PIXIE_STORAGE"); v != "" {
		c.Storage = v
	}
	if v := os.Getenv("PIXIE_HTTP_ADDR"); v != "" {
		c.HTTP.Addr = v
	}
	if v := os.Getenv("PIXIE_HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.HTTP.Port = port
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in Storage.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}
	c.Storage = expandVars(c.Storage, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Storage == "" {
		errs = append(errs, fmt.Errorf("storage is required"))
	}

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port))
	}

	if c.Network.TTL < 0 || c.Network.TTL > 255 {
		errs = append(errs, fmt.Errorf("network.ttl must be between 0 and 255, got %d", c.Network.TTL))
	}

	for name, group := range c.Groups {
		if group.BitsPerSecond <= 0 {
			errs = append(errs, fmt.Errorf("groups.%s.bits_per_second must be positive, got %d", name, group.BitsPerSecond))
		}
	}

	seenMACs := make(map[string]struct{}, len(c.StaticIPs))
	seenIPs := make(map[string]struct{}, len(c.StaticIPs))
	for i, entry := range c.StaticIPs {
		if _, dup := seenMACs[entry.MAC]; dup {
			errs = append(errs, fmt.Errorf("static_ips[%d]: duplicate mac %s", i, entry.MAC))
		}
		seenMACs[entry.MAC] = struct{}{}
		if _, dup := seenIPs[entry.IP]; dup {
			errs = append(errs, fmt.Errorf("static_ips[%d]: duplicate ip %s", i, entry.IP))
		}
		seenIPs[entry.IP] = struct{}{}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsurePaths creates the storage directory tree if it doesn't exist.
func (c *Config) EnsurePaths() error {
	paths := []string{
		c.Storage,
		filepath.Join(c.Storage, "chunks"),
		filepath.Join(c.Storage, "images"),
	}

	for _, path := range paths {
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}

	return nil
}

// Addr returns the HTTP listener address in host:port form.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Addr, c.HTTP.Port)
}

// Copyright 2026 The Pixie Authors
// SPDX-License-Identifier: Apache-2.0

// Package bijection implements the MAC<->IP total, inverse pair of
// mappings that binds every fleet unit to a static IPv4 address, so
// that the control plane's notion of a unit's identity and the
// address the DHCP/PXE stack (out of scope; see spec.md §1) hands it
// never drift apart.
//
// The mapping is entirely config-defined: Pixie does not allocate
// addresses dynamically. A duplicate MAC or duplicate IP across
// entries is a configuration error, fatal at startup (spec.md §7).
package bijection

import (
	"fmt"
	"net/netip"

	"github.com/pixie-fleet/pixie/internal/wire"
	"github.com/pixie-fleet/pixie/lib/config"
)

// Entry is one static MAC<->IP reservation, as read from config.
type Entry struct {
	MAC wire.MAC
	IP  netip.Addr
}

// Table is a total, inverse pair of mappings between MAC addresses
// and IPv4 addresses. Table is immutable after New: reservations are
// a deployment-time configuration decision, not something the fleet
// mutates at runtime.
type Table struct {
	forward  map[wire.MAC]netip.Addr
	backward map[netip.Addr]wire.MAC
}

// New builds a Table from entries. Returns an error — the caller is
// expected to treat this as a fatal configuration error — if any MAC
// or IP appears more than once, since either would break the
// bijection's totality.
func New(entries []Entry) (*Table, error) {
	table := &Table{
		forward:  make(map[wire.MAC]netip.Addr, len(entries)),
		backward: make(map[netip.Addr]wire.MAC, len(entries)),
	}

	for _, e := range entries {
		if !e.IP.Is4() {
			return nil, fmt.Errorf("bijection: %s: %s is not an IPv4 address", e.MAC, e.IP)
		}
		if existing, ok := table.forward[e.MAC]; ok {
			return nil, fmt.Errorf("bijection: duplicate MAC %s (%s and %s)", e.MAC, existing, e.IP)
		}
		if existing, ok := table.backward[e.IP]; ok {
			return nil, fmt.Errorf("bijection: duplicate IP %s (%s and %s)", e.IP, existing, e.MAC)
		}
		table.forward[e.MAC] = e.IP
		table.backward[e.IP] = e.MAC
	}

	return table, nil
}

// IPFor returns the IP reserved for mac, if any.
func (t *Table) IPFor(mac wire.MAC) (netip.Addr, bool) {
	ip, ok := t.forward[mac]
	return ip, ok
}

// MACFor returns the MAC that reserves ip, if any.
func (t *Table) MACFor(ip netip.Addr) (wire.MAC, bool) {
	mac, ok := t.backward[ip]
	return mac, ok
}

// Len returns the number of reservations in the table.
func (t *Table) Len() int {
	return len(t.forward)
}

// LoadConfig parses config.yaml's static_ips section into a Table.
// A malformed MAC or IP, or a duplicate, is a configuration error —
// callers should treat any error from LoadConfig as fatal at
// startup, per spec.md §7.
func LoadConfig(entries []config.StaticIPConfig) (*Table, error) {
	parsed := make([]Entry, 0, len(entries))
	for i, raw := range entries {
		mac, err := wire.ParseMAC(raw.MAC)
		if err != nil {
			return nil, fmt.Errorf("static_ips[%d]: %w", i, err)
		}
		ip, err := netip.ParseAddr(raw.IP)
		if err != nil {
			return nil, fmt.Errorf("static_ips[%d]: parsing ip %q: %w", i, raw.IP, err)
		}
		parsed = append(parsed, Entry{MAC: mac, IP: ip})
	}
	return New(parsed)
}

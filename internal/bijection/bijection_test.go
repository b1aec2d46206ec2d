// Copyright 2026 The Pixie Authors
// SPDX-License-Identifier: Apache-2.0

package bijection

import (
	"net/netip"
	"testing"

	"github.com/pixie-fleet/pixie/internal/wire"
)

func mustMAC(t *testing.T, s string) wire.MAC {
	t.Helper()
	mac, err := wire.ParseMAC(s)
	if err != nil {
		t.Fatalf("parsing MAC %q: %v", s, err)
	}
	return mac
}

func TestRoundTrip(t *testing.T) {
	mac1 := mustMAC(t, "aa:bb:cc:dd:ee:01")
	mac2 := mustMAC(t, "aa:bb:cc:dd:ee:02")
	ip1 := netip.MustParseAddr("10.0.0.1")
	ip2 := netip.MustParseAddr("10.0.0.2")

	table, err := New([]Entry{{MAC: mac1, IP: ip1}, {MAC: mac2, IP: ip2}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if got, ok := table.IPFor(mac1); !ok || got != ip1 {
		t.Errorf("IPFor(mac1) = %v, %v; want %v, true", got, ok, ip1)
	}
	if got, ok := table.MACFor(ip1); !ok || got != mac1 {
		t.Errorf("MACFor(ip1) = %v, %v; want %v, true", got, ok, mac1)
	}

	if _, ok := table.IPFor(mustMAC(t, "ff:ff:ff:ff:ff:ff")); ok {
		t.Error("IPFor unknown MAC should not be found")
	}
}

func TestDuplicateMAC(t *testing.T) {
	mac := mustMAC(t, "aa:bb:cc:dd:ee:01")
	entries := []Entry{
		{MAC: mac, IP: netip.MustParseAddr("10.0.0.1")},
		{MAC: mac, IP: netip.MustParseAddr("10.0.0.2")},
	}
	if _, err := New(entries); err == nil {
		t.Fatal("expected error for duplicate MAC")
	}
}

func TestDuplicateIP(t *testing.T) {
	ip := netip.MustParseAddr("10.0.0.1")
	entries := []Entry{
		{MAC: mustMAC(t, "aa:bb:cc:dd:ee:01"), IP: ip},
		{MAC: mustMAC(t, "aa:bb:cc:dd:ee:02"), IP: ip},
	}
	if _, err := New(entries); err == nil {
		t.Fatal("expected error for duplicate IP")
	}
}

func TestRejectsIPv6(t *testing.T) {
	entries := []Entry{
		{MAC: mustMAC(t, "aa:bb:cc:dd:ee:01"), IP: netip.MustParseAddr("fe80::1")},
	}
	if _, err := New(entries); err == nil {
		t.Fatal("expected error for IPv6 address")
	}
}

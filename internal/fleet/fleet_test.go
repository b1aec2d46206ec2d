// Copyright 2026 The Pixie Authors
// SPDX-License-Identifier: Apache-2.0

package fleet

import (
	"net/netip"
	"path/filepath"
	"testing"

	"github.com/pixie-fleet/pixie/internal/bijection"
	"github.com/pixie-fleet/pixie/internal/wire"
	"github.com/pixie-fleet/pixie/lib/clock"
)

func mustMAC(t *testing.T, s string) wire.MAC {
	t.Helper()
	mac, err := wire.ParseMAC(s)
	if err != nil {
		t.Fatalf("parsing MAC: %v", err)
	}
	return mac
}

func TestRegisterAssignsStaticIP(t *testing.T) {
	mac := mustMAC(t, "aa:bb:cc:dd:ee:01")
	table, err := bijection.New([]bijection.Entry{{MAC: mac, IP: netip.MustParseAddr("10.0.0.5")}})
	if err != nil {
		t.Fatalf("bijection.New: %v", err)
	}

	path := filepath.Join(t.TempDir(), "registered.json")
	state, err := Open(path, table, clock.Real())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	unit, err := state.Register(mac, "row1", 1, 2)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if unit.StaticIP != netip.MustParseAddr("10.0.0.5") {
		t.Errorf("StaticIP = %v, want 10.0.0.5", unit.StaticIP)
	}
	if unit.CurrAction.Kind != wire.ActionWait {
		t.Errorf("CurrAction.Kind = %v, want Wait", unit.CurrAction.Kind)
	}
}

func TestRegisterPromotesNextAction(t *testing.T) {
	mac := mustMAC(t, "aa:bb:cc:dd:ee:02")
	path := filepath.Join(t.TempDir(), "registered.json")
	state, err := Open(path, nil, clock.Real())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if _, err := state.Register(mac, "g", 0, 0); err != nil {
		t.Fatalf("Register: %v", err)
	}

	push := wire.Action{Kind: wire.ActionPush, Image: "golden"}
	if n, err := state.SetNextAction(Selector(mac.String()), push); err != nil || n != 1 {
		t.Fatalf("SetNextAction: n=%d err=%v", n, err)
	}

	// Unit is idle, so the next poll (Register) promotes NextAction.
	unit, err := state.Register(mac, "g", 0, 0)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if unit.CurrAction.Kind != wire.ActionPush || unit.CurrAction.Image != "golden" {
		t.Errorf("CurrAction = %+v, want Push{golden}", unit.CurrAction)
	}
}

func TestActionCompleteResetsToWaitPreservingNext(t *testing.T) {
	mac := mustMAC(t, "aa:bb:cc:dd:ee:03")
	path := filepath.Join(t.TempDir(), "registered.json")
	state, err := Open(path, nil, clock.Real())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := state.Register(mac, "g", 0, 0); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := state.SetNextAction(Selector(mac.String()), wire.Action{Kind: wire.ActionPull, Image: "x"}); err != nil {
		t.Fatalf("SetNextAction: %v", err)
	}
	if _, err := state.Register(mac, "g", 0, 0); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := state.ActionComplete(mac, wire.Progress{ChunksDone: 5, ChunksTotal: 5}); err != nil {
		t.Fatalf("ActionComplete: %v", err)
	}

	unit, ok := state.Get(mac)
	if !ok {
		t.Fatal("unit not found after ActionComplete")
	}
	if unit.CurrAction.Kind != wire.ActionWait {
		t.Errorf("CurrAction.Kind = %v, want Wait", unit.CurrAction.Kind)
	}
	if unit.NextAction.Kind != wire.ActionPull || unit.NextAction.Image != "x" {
		t.Errorf("NextAction = %+v, want Pull{x} preserved", unit.NextAction)
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	mac := mustMAC(t, "aa:bb:cc:dd:ee:04")
	path := filepath.Join(t.TempDir(), "registered.json")

	state, err := Open(path, nil, clock.Real())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := state.Register(mac, "group-a", 3, 4); err != nil {
		t.Fatalf("Register: %v", err)
	}

	reopened, err := Open(path, nil, clock.Real())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	unit, ok := reopened.Get(mac)
	if !ok {
		t.Fatal("unit missing after reopen")
	}
	if unit.Group != "group-a" || unit.Row != 3 || unit.Col != 4 {
		t.Errorf("unit = %+v after reopen", unit)
	}
}

func TestSetNextActionBySelector(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registered.json")
	state, err := Open(path, nil, clock.Real())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	mac1 := mustMAC(t, "aa:bb:cc:dd:ee:05")
	mac2 := mustMAC(t, "aa:bb:cc:dd:ee:06")
	state.Register(mac1, "lab-a", 0, 0)
	state.Register(mac2, "lab-b", 0, 0)

	n, err := state.SetNextAction(SelectorAll, wire.Action{Kind: wire.ActionReboot})
	if err != nil || n != 2 {
		t.Fatalf("SetNextAction(all): n=%d err=%v", n, err)
	}

	n, err = state.SetNextAction(Selector("lab-a"), wire.Action{Kind: wire.ActionWait})
	if err != nil || n != 1 {
		t.Fatalf("SetNextAction(lab-a): n=%d err=%v", n, err)
	}
}

func TestSubscribeNotifiesOnMutation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registered.json")
	state, err := Open(path, nil, clock.Real())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ch, cancel := state.Subscribe()
	defer cancel()

	mac := mustMAC(t, "aa:bb:cc:dd:ee:07")
	if _, err := state.Register(mac, "g", 0, 0); err != nil {
		t.Fatalf("Register: %v", err)
	}

	select {
	case <-ch:
	default:
		t.Error("expected a notification after Register")
	}
}

// Copyright 2026 The Pixie Authors
// SPDX-License-Identifier: Apache-2.0

package fleet

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/pixie-fleet/pixie/internal/bijection"
	"github.com/pixie-fleet/pixie/internal/wire"
	"github.com/pixie-fleet/pixie/lib/atomicfile"
	"github.com/pixie-fleet/pixie/lib/clock"
)

// State is the authoritative fleet model: every known Unit, keyed by
// MAC, guarded by one mutex. State is safe for concurrent use.
type State struct {
	path      string
	bijection *bijection.Table
	clock     clock.Clock

	mu    sync.Mutex
	units map[wire.MAC]*wire.Unit

	subMu       sync.Mutex
	subscribers map[chan struct{}]struct{}
}

// Open loads registered.json from path (creating an empty fleet if
// the file does not exist) and returns a State bound to it. table
// may be nil, in which case no unit ever receives a StaticIP.
func Open(path string, table *bijection.Table, clk clock.Clock) (*State, error) {
	s := &State{
		path:        path,
		bijection:   table,
		clock:       clk,
		units:       make(map[wire.MAC]*wire.Unit),
		subscribers: make(map[chan struct{}]struct{}),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading fleet state %s: %w", path, err)
	}

	var units []wire.Unit
	if err := json.Unmarshal(data, &units); err != nil {
		return nil, fmt.Errorf("parsing fleet state %s: %w", path, err)
	}
	for i := range units {
		u := units[i]
		s.units[u.MAC] = &u
	}

	return s, nil
}

// Register creates or updates the Unit for mac with the given
// coordinates. If the unit is currently idle (CurrAction.Kind ==
// Wait), NextAction is promoted into CurrAction — this is the
// client's poll for its next instruction (see package doc). The
// returned Unit is a copy; mutating it does not affect fleet state.
func (s *State) Register(mac wire.MAC, group string, row, col uint8) (wire.Unit, error) {
	s.mu.Lock()
	u, ok := s.units[mac]
	if !ok {
		u = &wire.Unit{MAC: mac, NextAction: wire.Action{Kind: wire.ActionWait}, CurrAction: wire.Action{Kind: wire.ActionWait}}
		s.units[mac] = u
	}
	u.Group = group
	u.Row = row
	u.Col = col
	u.LastPingTimestamp = s.clock.Now()

	if s.bijection != nil {
		if ip, has := s.bijection.IPFor(mac); has {
			u.StaticIP = ip
		}
	}

	if u.CurrAction.Kind == wire.ActionWait || u.CurrAction.Kind == "" {
		u.CurrAction = u.NextAction
	}

	snapshot := *u
	s.mu.Unlock()

	if err := s.persist(); err != nil {
		return wire.Unit{}, err
	}
	s.notify()
	return snapshot, nil
}

// Get returns a copy of the unit for mac.
func (s *State) Get(mac wire.MAC) (wire.Unit, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.units[mac]
	if !ok {
		return wire.Unit{}, false
	}
	return *u, true
}

// Snapshot returns a copy of every known unit, for HTTP/WS reads.
func (s *State) Snapshot() []wire.Unit {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]wire.Unit, 0, len(s.units))
	for _, u := range s.units {
		out = append(out, *u)
	}
	return out
}

// GroupCounts returns, for the HintPacket broadcaster, the number of
// known units per non-empty group and the number of units with no
// group assigned yet ("unregistered" in spec.md §3's HintPacket
// sense — present in the fleet but never told where they belong).
func (s *State) GroupCounts() (groups map[string]uint8, unregistered uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()

	groups = make(map[string]uint8)
	for _, u := range s.units {
		if u.Group == "" {
			unregistered++
			continue
		}
		groups[u.Group]++
	}
	return groups, unregistered
}

// Selector names a subset of units for an admin command: "all", a
// group name, or a specific MAC's colon-hex string.
type Selector string

const SelectorAll Selector = "all"

// SetNextAction applies action to every unit matched by sel and
// persists the result.
func (s *State) SetNextAction(sel Selector, action wire.Action) (int, error) {
	s.mu.Lock()
	matched := 0
	for mac, u := range s.units {
		if s.matches(mac, u, sel) {
			u.NextAction = action
			matched++
		}
	}
	s.mu.Unlock()

	if matched == 0 {
		return 0, nil
	}
	if err := s.persist(); err != nil {
		return 0, err
	}
	s.notify()
	return matched, nil
}

func (s *State) matches(mac wire.MAC, u *wire.Unit, sel Selector) bool {
	switch {
	case sel == SelectorAll:
		return true
	case string(sel) == mac.String():
		return true
	case string(sel) == u.Group:
		return true
	default:
		return false
	}
}

// ActionProgress records an in-progress report from a client. Unknown
// MACs are ignored — a progress report for a unit the server has
// forgotten about is a stale/late UDP packet, not an error (spec.md
// §7 classifies this as transient/protocol-level, not fatal).
func (s *State) ActionProgress(mac wire.MAC, progress wire.Progress) {
	s.mu.Lock()
	u, ok := s.units[mac]
	if ok {
		u.CurrProgress = progress
		u.LastPingTimestamp = s.clock.Now()
	}
	s.mu.Unlock()

	if ok {
		s.notify()
	}
}

// ActionComplete transitions mac's CurrAction to Wait. NextAction is
// left untouched: an admin may already have set it (including to
// Wait, for cancellation — spec.md §5's cancellation flow), and a
// completed action never overwrites a pending admin decision.
func (s *State) ActionComplete(mac wire.MAC, progress wire.Progress) error {
	s.mu.Lock()
	u, ok := s.units[mac]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("action complete for unknown unit %s: %w", mac, ErrNotFound)
	}
	u.CurrAction = wire.Action{Kind: wire.ActionWait}
	u.CurrProgress = progress
	u.LastPingTimestamp = s.clock.Now()
	if progress.Error != "" {
		u.LastPingMsg = progress.Error
	}
	s.mu.Unlock()

	if err := s.persist(); err != nil {
		return err
	}
	s.notify()
	return nil
}

// Remove deletes mac from the fleet entirely (explicit admin
// removal; spec.md §3's Unit lifecycle).
func (s *State) Remove(mac wire.MAC) error {
	s.mu.Lock()
	_, ok := s.units[mac]
	if ok {
		delete(s.units, mac)
	}
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("removing unit %s: %w", mac, ErrNotFound)
	}
	if err := s.persist(); err != nil {
		return err
	}
	s.notify()
	return nil
}

func (s *State) persist() error {
	s.mu.Lock()
	units := make([]wire.Unit, 0, len(s.units))
	for _, u := range s.units {
		units = append(units, *u)
	}
	s.mu.Unlock()

	data, err := json.MarshalIndent(units, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling fleet state: %w", err)
	}
	if err := atomicfile.Write(s.path, data, 0644); err != nil {
		return fmt.Errorf("writing fleet state %s: %w", s.path, err)
	}
	return nil
}

// Subscribe returns a channel that receives a signal (a non-blocking
// send of a zero value) after every fleet mutation. The channel has
// capacity 1: a slow reader coalesces bursts into a single pending
// wakeup rather than blocking State's writer path. Call the returned
// cancel function to unsubscribe.
func (s *State) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	s.subMu.Lock()
	s.subscribers[ch] = struct{}{}
	s.subMu.Unlock()

	cancel := func() {
		s.subMu.Lock()
		delete(s.subscribers, ch)
		s.subMu.Unlock()
	}
	return ch, cancel
}

func (s *State) notify() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for ch := range s.subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// ErrNotFound is returned when a requested MAC is not present in the
// fleet.
var ErrNotFound = fmt.Errorf("unit not found")

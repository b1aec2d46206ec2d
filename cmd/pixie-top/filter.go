// Copyright 2026 The Pixie Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"sort"

	"github.com/charmbracelet/lipgloss"

	"github.com/pixie-fleet/pixie/internal/wire"
)

// FilterModel is pixie-top's fuzzy selector for jumping to a unit or
// group by name: it scores a unit's MAC address, group, current/next
// action kind, and image against the filter query with fzf's own
// matching algorithm (github.com/junegunn/fzf/src/algo, wrapped by
// fuzzyMatch), the same one fzf itself uses to narrow a candidate list
// as you type. Adapted from the teacher's lib/ticketui.FilterModel,
// which does the equivalent scoring across ticket ID, title, labels,
// assignee, type, and status.
type FilterModel struct {
	// Input is the current filter query text.
	Input string

	// Active is true when the filter input has keyboard focus (the
	// user pressed / to start typing).
	Active bool
}

// unitScore pairs a unit with its best fuzzy match score across its
// searchable fields, so Apply can sort best-match-first the way fzf's
// own result list does.
type unitScore struct {
	unit  wire.Unit
	score int
}

// scoreUnit returns the best score across every field fzf would
// reasonably let you jump to a unit by: its MAC, group, current and
// next action kind, and image name. Fields that don't match this
// pattern contribute a zero score and are ignored.
func scoreUnit(unit wire.Unit, pattern []rune) int {
	best := 0
	for _, field := range [...]string{
		unit.MAC.String(),
		unit.Group,
		string(unit.CurrAction.Kind),
		string(unit.NextAction.Kind),
		unit.Image,
	} {
		if field == "" {
			continue
		}
		if result := fuzzyMatch(field, pattern); result.Score > best {
			best = result.Score
		}
	}
	return best
}

// MatchesUnit returns true if the unit matches the current filter. An
// empty filter matches everything.
func (filter *FilterModel) MatchesUnit(unit wire.Unit) bool {
	if filter.Input == "" {
		return true
	}
	return scoreUnit(unit, []rune(filter.Input)) > 0
}

// Apply filters a slice of units down to those the query fuzzy-matches
// and sorts them best-match-first — the "jump to a unit or group by
// name" behavior SPEC_FULL.md asks for: the unit you're typing toward
// rises to the top of the (now short) list rather than merely staying
// present in it.
func (filter *FilterModel) Apply(units []wire.Unit) []wire.Unit {
	if filter.Input == "" {
		return units
	}

	pattern := []rune(filter.Input)
	scored := make([]unitScore, 0, len(units))
	for _, unit := range units {
		if score := scoreUnit(unit, pattern); score > 0 {
			scored = append(scored, unitScore{unit: unit, score: score})
		}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})

	result := make([]wire.Unit, len(scored))
	for i, s := range scored {
		result[i] = s.unit
	}
	return result
}

// HandleRune processes a character typed while the filter is active.
// Returns true if the input changed.
func (filter *FilterModel) HandleRune(character rune) bool {
	filter.Input += string(character)
	return true
}

// HandleBackspace removes the last character from the filter input.
// Returns true if the input changed.
func (filter *FilterModel) HandleBackspace() bool {
	if len(filter.Input) == 0 {
		return false
	}
	runes := []rune(filter.Input)
	filter.Input = string(runes[:len(runes)-1])
	return true
}

// Clear resets the filter input and deactivates it.
func (filter *FilterModel) Clear() {
	filter.Input = ""
	filter.Active = false
}

// View renders the filter bar. When active, shows the input with a
// cursor. When inactive with text, shows the filter text. When
// inactive with no text, returns empty string (hidden).
func (filter *FilterModel) View(theme Theme, width int) string {
	if !filter.Active && filter.Input == "" {
		return ""
	}

	style := lipgloss.NewStyle().
		Foreground(theme.NormalText).
		Width(width)

	if filter.Active {
		cursor := lipgloss.NewStyle().
			Foreground(theme.HeaderForeground).
			Bold(true).
			Render("▎")
		return style.Render(" / " + filter.Input + cursor)
	}

	dimStyle := lipgloss.NewStyle().
		Foreground(theme.FaintText).
		Width(width)
	return dimStyle.Render(" filter: " + filter.Input)
}

// Copyright 2026 The Pixie Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/pixie-fleet/pixie/internal/wire"
)

// Theme is a fleet-dashboard-scoped adaptation of the teacher's
// lib/tui.Theme: universal chrome plus one semantic color per action
// state, in place of ticket priority/status colors. lib/tui's other
// widgets (dropdown, note modal, animation, scrollbar) are ticket-
// editing UI with no counterpart in a read-only fleet grid, so only
// the theme shape is carried over.
type Theme struct {
	NormalText lipgloss.Color
	FaintText  lipgloss.Color

	SelectedBackground lipgloss.Color
	SelectedForeground lipgloss.Color

	HeaderForeground lipgloss.Color
	BorderColor      lipgloss.Color
	HelpText         lipgloss.Color

	ActionWait     lipgloss.Color
	ActionReboot   lipgloss.Color
	ActionRegister lipgloss.Color
	ActionPush     lipgloss.Color
	ActionPull     lipgloss.Color
	ActionUnknown  lipgloss.Color
}

// DefaultTheme is the built-in dark-terminal palette, colors chosen
// from the same ANSI 256 ramp as the teacher's DefaultTheme.
var DefaultTheme = Theme{
	NormalText: lipgloss.Color("252"),
	FaintText:  lipgloss.Color("245"),

	SelectedBackground: lipgloss.Color("236"),
	SelectedForeground: lipgloss.Color("255"),

	HeaderForeground: lipgloss.Color("255"),
	BorderColor:      lipgloss.Color("240"),
	HelpText:         lipgloss.Color("241"),

	ActionWait:     lipgloss.Color("245"), // gray: idle
	ActionReboot:   lipgloss.Color("220"), // amber
	ActionRegister: lipgloss.Color("141"), // light purple
	ActionPush:     lipgloss.Color("75"),  // blue: uploading to server
	ActionPull:     lipgloss.Color("114"), // green: writing to disk
	ActionUnknown:  lipgloss.Color("196"), // red
}

// ActionColor returns the color for a unit's current action kind.
func (theme Theme) ActionColor(kind wire.ActionKind) lipgloss.Color {
	switch kind {
	case wire.ActionWait:
		return theme.ActionWait
	case wire.ActionReboot:
		return theme.ActionReboot
	case wire.ActionRegister:
		return theme.ActionRegister
	case wire.ActionPush:
		return theme.ActionPush
	case wire.ActionPull:
		return theme.ActionPull
	default:
		return theme.ActionUnknown
	}
}

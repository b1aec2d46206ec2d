// Copyright 2026 The Pixie Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"sort"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"

	"github.com/pixie-fleet/pixie/internal/httpapi"
	"github.com/pixie-fleet/pixie/internal/wire"
)

// Model is pixie-top's bubbletea model: a live grid of units
// positioned by row/column, colored by current action, with a fuzzy
// selector over MAC/group/action/image for jumping to a unit or group
// by name. Structured after the teacher's
// lib/ticketui.Model (event channel in Init, filter overlay, cursor
// over a derived visible slice) with the ticket list/detail split
// dropped — a fleet grid has one view, not two panes.
type Model struct {
	keys  KeyMap
	theme Theme

	updates <-chan any
	done    chan<- struct{}

	units        []wire.Unit
	groups       map[string]uint8
	unregistered uint8
	connErr      error

	filter FilterModel
	cursor int

	width  int
	height int

	quitting bool
}

// NewModel constructs a Model that reads WsUpdate/error values from
// updates (as delivered by runWebSocketLoop) and signals done when
// the program exits, so the caller can stop the WebSocket goroutine.
func NewModel(updates <-chan any, done chan<- struct{}) Model {
	return Model{
		keys:    DefaultKeyMap,
		theme:   DefaultTheme,
		updates: updates,
		done:    done,
	}
}

// Init implements tea.Model. Starts listening for WsUpdate frames,
// following the teacher's Init/listenForSourceEvent shape.
func (model Model) Init() tea.Cmd {
	return listenForUpdate(model.updates)
}

// visibleUnits returns the units the grid should render. With no
// filter query, that's every unit in grid order (group, then
// row/col). With a query, FilterModel.Apply has already ranked them
// best-match-first — re-sorting by position here would undo the
// "jump to a unit by name" effect of a fuzzy selector, so filtered
// results keep their score order instead.
func (model Model) visibleUnits() []wire.Unit {
	if model.filter.Input != "" {
		return model.filter.Apply(model.units)
	}

	sorted := make([]wire.Unit, len(model.units))
	copy(sorted, model.units)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Group != sorted[j].Group {
			return sorted[i].Group < sorted[j].Group
		}
		if sorted[i].Row != sorted[j].Row {
			return sorted[i].Row < sorted[j].Row
		}
		return sorted[i].Col < sorted[j].Col
	})
	return sorted
}

// Update implements tea.Model.
func (model Model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.WindowSizeMsg:
		model.width, model.height = message.Width, message.Height
		return model, nil

	case updateMsg:
		model.connErr = nil
		model.units = message.update.Units
		model.groups = message.update.Groups
		model.unregistered = message.update.Unregistered
		if model.cursor >= len(model.visibleUnits()) {
			model.cursor = 0
		}
		return model, listenForUpdate(model.updates)

	case connErrMsg:
		model.connErr = message.err
		return model, listenForUpdate(model.updates)

	case tea.KeyMsg:
		if model.filter.Active {
			return model.handleFilterKeys(message)
		}
		return model.handleNormalKeys(message)
	}
	return model, nil
}

func (model Model) handleFilterKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(message, model.keys.FilterClear):
		model.filter.Clear()
		model.cursor = 0
		return model, nil
	case message.Type == tea.KeyEnter:
		model.filter.Active = false
		return model, nil
	case message.Type == tea.KeyBackspace:
		model.filter.HandleBackspace()
		model.cursor = 0
		return model, nil
	case message.Type == tea.KeyRunes:
		for _, r := range message.Runes {
			model.filter.HandleRune(r)
		}
		// Jump the cursor to the best-scoring match as the query
		// narrows, the way fzf's own selector keeps the top result
		// highlighted while you type.
		model.cursor = 0
		return model, nil
	}
	return model, nil
}

func (model Model) handleNormalKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(message, model.keys.Quit):
		model.quitting = true
		if model.done != nil {
			close(model.done)
		}
		return model, tea.Quit

	case key.Matches(message, model.keys.FilterActivate):
		model.filter.Active = true
		return model, nil

	case key.Matches(message, model.keys.Up):
		if model.cursor > 0 {
			model.cursor--
		}
		return model, nil

	case key.Matches(message, model.keys.Down):
		if model.cursor < len(model.visibleUnits())-1 {
			model.cursor++
		}
		return model, nil

	case key.Matches(message, model.keys.Refresh):
		return model, listenForUpdate(model.updates)
	}
	return model, nil
}

// View implements tea.Model.
func (model Model) View() string {
	if model.quitting {
		return ""
	}

	var body string
	if model.connErr != nil {
		body = lipgloss.NewStyle().Foreground(model.theme.ActionUnknown).
			Render(fmt.Sprintf("connection error: %v (retrying)", model.connErr))
	} else {
		body = model.renderGrid()
	}

	header := lipgloss.NewStyle().
		Foreground(model.theme.HeaderForeground).
		Bold(true).
		Render(fmt.Sprintf("pixie-top — %d unit(s), %d group(s), %d unregistered",
			len(model.units), len(model.groups), model.unregistered))

	filterBar := model.filter.View(model.theme, model.width)

	help := lipgloss.NewStyle().Foreground(model.theme.HelpText).
		Render("j/k move  /  filter  r reconnect  q quit")

	sections := []string{header}
	if filterBar != "" {
		sections = append(sections, filterBar)
	}
	sections = append(sections, body, help)
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// renderGrid lays out the visible units one per line, grouped by
// their fleet group, colored by current action kind.
func (model Model) renderGrid() string {
	units := model.visibleUnits()
	if len(units) == 0 {
		return lipgloss.NewStyle().Foreground(model.theme.FaintText).Render("no units match")
	}

	var lines []string
	currentGroup := ""
	for i, unit := range units {
		if unit.Group != currentGroup {
			currentGroup = unit.Group
			lines = append(lines, lipgloss.NewStyle().
				Foreground(model.theme.FaintText).
				Render(fmt.Sprintf("── %s ──", currentGroup)))
		}

		style := lipgloss.NewStyle().Foreground(model.theme.ActionColor(unit.CurrAction.Kind))
		if i == model.cursor {
			style = style.Background(model.theme.SelectedBackground).Foreground(model.theme.SelectedForeground)
		}

		line := fmt.Sprintf("  [%d,%d] %-17s curr=%-8s next=%-8s progress=%d/%d",
			unit.Row, unit.Col, unit.MAC, unit.CurrAction.Kind, unit.NextAction.Kind,
			unit.CurrProgress.ChunksDone, unit.CurrProgress.ChunksTotal)
		lines = append(lines, style.Render(line))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// snapshotFromWsUpdate is a small seam used by tests to build a Model
// already populated with a fixed WsUpdate, without a live channel.
func snapshotFromWsUpdate(update httpapi.WsUpdate) Model {
	model := NewModel(nil, nil)
	model.units = update.Units
	model.groups = update.Groups
	model.unregistered = update.Unregistered
	return model
}

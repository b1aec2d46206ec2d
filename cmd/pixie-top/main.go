// Copyright 2026 The Pixie Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/pixie-fleet/pixie/lib/process"
	"github.com/pixie-fleet/pixie/lib/version"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		process.Fatal(err)
	}
}

func run(args []string) error {
	var server string
	var showVersion bool

	flagSet := pflag.NewFlagSet("pixie-top", pflag.ContinueOnError)
	flagSet.StringVar(&server, "server", "", "pixie-server admin HTTP base URL (e.g. http://host:8080)")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	if showVersion {
		fmt.Printf("pixie-top %s\n", version.Info())
		return nil
	}
	if server == "" {
		return fmt.Errorf("--server is required")
	}

	addr, err := wsAddr(server)
	if err != nil {
		return err
	}

	updates := make(chan any, 1)
	done := make(chan struct{})
	go runWebSocketLoop(addr, updates, done)

	model := NewModel(updates, done)
	program := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return err
	}
	return nil
}

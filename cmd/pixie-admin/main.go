// Copyright 2026 The Pixie Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/pixie-fleet/pixie/internal/httpapi"
	"github.com/pixie-fleet/pixie/internal/imageregistry"
	"github.com/pixie-fleet/pixie/lib/process"
	"github.com/pixie-fleet/pixie/lib/version"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		process.Fatal(err)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: pixie-admin <status|action|images|gc> [flags]")
	}

	subcommand, rest := args[0], args[1:]
	switch subcommand {
	case "status":
		return runStatus(rest)
	case "action":
		return runAction(rest)
	case "images":
		return runImages(rest)
	case "gc":
		return runGC(rest)
	case "-version", "--version":
		fmt.Printf("pixie-admin %s\n", version.Info())
		return nil
	default:
		return fmt.Errorf("unknown subcommand %q (want status, action, images, or gc)", subcommand)
	}
}

// baseFlags is the -server flag every subcommand needs, following
// pixie-client's clientFlags pattern of one small embeddable struct
// per shared flag group.
type baseFlags struct {
	server string
}

func (f *baseFlags) register(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&f.server, "server", "", "pixie-server admin HTTP base URL (e.g. http://host:8080)")
}

func (f *baseFlags) url(path string) (string, error) {
	if f.server == "" {
		return "", fmt.Errorf("--server is required")
	}
	return strings.TrimSuffix(f.server, "/") + path, nil
}

// commandResponse mirrors internal/httpapi's unexported response type
// for admin command endpoints; duplicated here since the field names
// are the JSON contract (spec.md §7), not shared Go state.
type commandResponse struct {
	Status  string `json:"status"`
	Reason  string `json:"reason,omitempty"`
	Matched int    `json:"matched,omitempty"`
}

type gcResponse struct {
	ChunksRemoved int   `json:"chunks_removed"`
	BytesFreed    int64 `json:"bytes_freed"`
}

func getJSON(url string, out any) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response from %s: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: HTTP %d", url, resp.StatusCode)
	}
	return nil
}

func postJSON(url string, out any) error {
	resp, err := http.Post(url, "", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("decoding response from %s: %w (body: %s)", url, err, body)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: HTTP %d", url, resp.StatusCode)
	}
	return nil
}

func runStatus(args []string) error {
	var flags baseFlags
	flagSet := pflag.NewFlagSet("status", pflag.ContinueOnError)
	flags.register(flagSet)
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	url, err := flags.url("/admin/status")
	if err != nil {
		return err
	}
	var update httpapi.WsUpdate
	if err := getJSON(url, &update); err != nil {
		return err
	}

	fmt.Printf("%d unit(s), %d unregistered\n", len(update.Units), update.Unregistered)
	for group, count := range update.Groups {
		fmt.Printf("  group %-16s %d unit(s)\n", group, count)
	}
	for _, unit := range update.Units {
		fmt.Printf("  %s  group=%-12s row=%d col=%d curr=%-8s next=%-8s\n",
			unit.MAC, unit.Group, unit.Row, unit.Col, unit.CurrAction.Kind, unit.NextAction.Kind)
	}
	return nil
}

func runAction(args []string) error {
	var flags baseFlags
	var image string
	flagSet := pflag.NewFlagSet("action", pflag.ContinueOnError)
	flags.register(flagSet)
	flagSet.StringVar(&image, "image", "", "image name (required for store/flash)")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	positional := flagSet.Args()
	if len(positional) != 2 {
		return fmt.Errorf("usage: pixie-admin action <selector> <store|flash|reboot|register|wait> [--image name]")
	}
	selector, actionName := positional[0], positional[1]

	path := fmt.Sprintf("/admin/curr_action/%s/%s", selector, actionName)
	if image != "" {
		path += "?image=" + image
	}
	url, err := flags.url(path)
	if err != nil {
		return err
	}

	var resp commandResponse
	if err := postJSON(url, &resp); err != nil {
		return err
	}
	if resp.Status != "ok" {
		return fmt.Errorf("%s", resp.Reason)
	}
	fmt.Printf("ok: %d unit(s) matched\n", resp.Matched)
	return nil
}

func runImages(args []string) error {
	var flags baseFlags
	flagSet := pflag.NewFlagSet("images", pflag.ContinueOnError)
	flags.register(flagSet)
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	url, err := flags.url("/admin/images")
	if err != nil {
		return err
	}
	var summaries []imageregistry.Summary
	if err := getJSON(url, &summaries); err != nil {
		return err
	}

	for _, summary := range summaries {
		fmt.Printf("%-24s size=%-10s csize=%-10s reclaimable=%s\n", summary.Name,
			humanize.Bytes(summary.Size), humanize.Bytes(summary.CSize), humanize.Bytes(summary.Reclaimable))
	}
	return nil
}

func runGC(args []string) error {
	var flags baseFlags
	flagSet := pflag.NewFlagSet("gc", pflag.ContinueOnError)
	flags.register(flagSet)
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	url, err := flags.url("/admin/gc")
	if err != nil {
		return err
	}
	var resp gcResponse
	if err := postJSON(url, &resp); err != nil {
		return err
	}
	fmt.Printf("removed %d chunk(s), freed %s\n", resp.ChunksRemoved, humanize.Bytes(uint64(resp.BytesFreed)))
	return nil
}

// Copyright 2026 The Pixie Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/pixie-fleet/pixie/internal/chunkstore"
	"github.com/pixie-fleet/pixie/internal/fleet"
	"github.com/pixie-fleet/pixie/internal/imageregistry"
	"github.com/pixie-fleet/pixie/internal/tcpserver"
	"github.com/pixie-fleet/pixie/lib/clock"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestChunkHostExtractsHostFromServerAddress(t *testing.T) {
	host, err := chunkHost("192.0.2.1:25640")
	if err != nil {
		t.Fatalf("chunkHost: %v", err)
	}
	if host != "192.0.2.1" {
		t.Errorf("host = %q, want 192.0.2.1", host)
	}
}

func TestChunkHostRejectsMissingPort(t *testing.T) {
	if _, err := chunkHost("not-a-host-port"); err == nil {
		t.Fatal("expected an error for a malformed server address")
	}
}

func TestParsedMACRequiresFlag(t *testing.T) {
	var f clientFlags
	if _, err := f.parsedMAC(); err == nil {
		t.Fatal("expected an error when --mac is unset")
	}
}

func TestParsedMACRejectsMalformedAddress(t *testing.T) {
	f := clientFlags{mac: "not-a-mac"}
	if _, err := f.parsedMAC(); err == nil {
		t.Fatal("expected an error for a malformed MAC address")
	}
}

// startServer brings up a real tcpserver.Server on an ephemeral port,
// the same way internal/diskengine's own tests do, so the push/pull/
// register subcommands can be exercised end to end.
func startServer(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	store, err := chunkstore.New(root)
	if err != nil {
		t.Fatalf("chunkstore.New: %v", err)
	}
	registry, err := imageregistry.Open(filepath.Join(root, "images"), store)
	if err != nil {
		t.Fatalf("imageregistry.Open: %v", err)
	}
	fleetState, err := fleet.Open(filepath.Join(root, "registered.json"), nil, clock.Real())
	if err != nil {
		t.Fatalf("fleet.Open: %v", err)
	}
	server := tcpserver.New(store, registry, fleetState, discardLogger())

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		listener.Close()
	})
	go server.Serve(ctx, listener)
	return listener.Addr().String()
}

func TestRunRegisterReachesServer(t *testing.T) {
	addr := startServer(t)

	err := runRegister([]string{
		"--server", addr,
		"--mac", "aa:bb:cc:dd:ee:ff",
		"--group", "lab",
		"--row", "1",
		"--col", "2",
	})
	if err != nil {
		t.Fatalf("runRegister: %v", err)
	}
}

func TestRunRegisterRejectsMissingGroup(t *testing.T) {
	addr := startServer(t)

	err := runRegister([]string{
		"--server", addr,
		"--mac", "aa:bb:cc:dd:ee:ff",
	})
	if err == nil {
		t.Fatal("expected an error when --group is missing")
	}
}

func TestRunPushRejectsMissingDevice(t *testing.T) {
	addr := startServer(t)

	err := runPush([]string{
		"--server", addr,
		"--mac", "aa:bb:cc:dd:ee:ff",
		"--image", "golden",
	})
	if err == nil {
		t.Fatal("expected an error when --device is missing")
	}
}

func TestRunPushAndPullRoundTripThroughAFile(t *testing.T) {
	addr := startServer(t)
	if err := runRegister([]string{"--server", addr, "--mac", "aa:bb:cc:dd:ee:ff", "--group", "lab"}); err != nil {
		t.Fatalf("runRegister: %v", err)
	}

	source := filepath.Join(t.TempDir(), "source.img")
	data := make([]byte, 8192)
	for i := range data {
		data[i] = byte(i)
	}
	if err := os.WriteFile(source, data, 0o600); err != nil {
		t.Fatalf("writing source file: %v", err)
	}

	if err := runPush([]string{
		"--server", addr,
		"--mac", "aa:bb:cc:dd:ee:ff",
		"--device", source,
		"--image", "golden",
	}); err != nil {
		t.Fatalf("runPush: %v", err)
	}

	// Pre-populate dest with the same bytes push just uploaded, so Pull
	// takes its already-matches fast path (internal/diskengine's own
	// TestPullSkipsFetchWhenDiskAlreadyMatches) and this test does not
	// depend on a live UDP chunk transport, which internal/udpserver
	// tests separately.
	dest := filepath.Join(t.TempDir(), "dest.img")
	if err := os.WriteFile(dest, data, 0o600); err != nil {
		t.Fatalf("writing dest file: %v", err)
	}

	if err := runPull([]string{
		"--server", addr,
		"--mac", "aa:bb:cc:dd:ee:ff",
		"--device", dest,
		"--image", "golden",
	}); err != nil {
		t.Fatalf("runPull: %v", err)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("reading dest file: %v", err)
	}
	if len(got) != len(data) {
		t.Fatalf("dest has %d bytes, want %d", len(got), len(data))
	}
	for i := range data {
		if got[i] != data[i] {
			t.Fatalf("dest[%d] = %d, want %d", i, got[i], data[i])
		}
	}
}

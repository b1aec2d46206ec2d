// Copyright 2026 The Pixie Authors
// SPDX-License-Identifier: Apache-2.0

package diskengine

import (
	"context"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/pixie-fleet/pixie/internal/chunkstore"
	"github.com/pixie-fleet/pixie/internal/fleet"
	"github.com/pixie-fleet/pixie/internal/imageregistry"
	"github.com/pixie-fleet/pixie/internal/tcpclient"
	"github.com/pixie-fleet/pixie/internal/tcpserver"
	"github.com/pixie-fleet/pixie/internal/wire"
	"github.com/pixie-fleet/pixie/lib/clock"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startTestServer(t *testing.T) (*tcpclient.Client, *chunkstore.Store) {
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

	client, err := tcpclient.Dial(context.Background(), listener.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	return client, store
}

func TestPushUploadsChunksAndPublishesImage(t *testing.T) {
	client, store := startTestServer(t)

	disk := newMemDisk(2 * wire.CHUNK_SIZE)
	for i := range disk.data {
		disk.data[i] = byte(i)
	}

	image, err := Push(disk, client, wire.MAC{}, nil, nil, "golden", wire.Image{}, nil)
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if len(image.Disk) != 2 {
		t.Fatalf("got %d chunks, want 2", len(image.Disk))
	}

	for _, chunk := range image.Disk {
		if !store.Contains(chunk.Hash) {
			t.Errorf("store missing chunk %s", chunk.Hash)
		}
	}

	got, err := client.GetImage("golden")
	if err != nil {
		t.Fatalf("GetImage: %v", err)
	}
	if len(got.Disk) != len(image.Disk) {
		t.Fatalf("published image has %d chunks, want %d", len(got.Disk), len(image.Disk))
	}
}

func TestPushStoresIncompressibleChunksRaw(t *testing.T) {
	client, store := startTestServer(t)

	// Pseudo-random bytes: no repeating pattern for LZ4 to exploit,
	// so lz4.CompressBlock cannot shrink it and push.go must fall back
	// to storing the chunk raw rather than failing (spec.md's random-data
	// dedup scenario would otherwise never get past the first push).
	disk := newMemDisk(wire.CHUNK_SIZE)
	seed := uint32(0x9e3779b9)
	for i := range disk.data {
		seed = seed*1664525 + 1013904223
		disk.data[i] = byte(seed >> 24)
	}

	image, err := Push(disk, client, wire.MAC{}, nil, nil, "random", wire.Image{}, nil)
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if len(image.Disk) != 1 {
		t.Fatalf("got %d chunks, want 1", len(image.Disk))
	}
	chunk := image.Disk[0]
	if chunk.CSize != chunk.Size {
		t.Errorf("CSize = %d, want %d (incompressible chunk should be stored raw)", chunk.CSize, chunk.Size)
	}
	if !store.Contains(chunk.Hash) {
		t.Fatalf("store missing chunk %s", chunk.Hash)
	}

	got, err := store.Get(chunk.Hash)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != string(disk.data) {
		t.Error("raw chunk bytes did not round-trip through the store")
	}
}

func TestPullSkipsFetchWhenDiskAlreadyMatches(t *testing.T) {
	client, _ := startTestServer(t)

	source := newMemDisk(2 * wire.CHUNK_SIZE)
	for i := range source.data {
		source.data[i] = byte(i * 7)
	}
	image, err := Push(source, client, wire.MAC{}, nil, nil, "golden", wire.Image{}, nil)
	if err != nil {
		t.Fatalf("Push: %v", err)
	}

	// target already has identical bytes on disk: Pull must not touch
	// the network to complete.
	target := newMemDisk(2 * wire.CHUNK_SIZE)
	copy(target.data, source.data)

	udpConn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	defer udpConn.Close()
	udpConn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	got, err := Pull(ctx, target, client, wire.MAC{}, udpConn, udpConn.LocalAddr().(*net.UDPAddr), nil, "golden", discardLogger())
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if len(got.Disk) != len(image.Disk) {
		t.Fatalf("got %d chunks, want %d", len(got.Disk), len(image.Disk))
	}
	if string(target.data) != string(source.data) {
		t.Error("target disk bytes changed even though they already matched")
	}
}

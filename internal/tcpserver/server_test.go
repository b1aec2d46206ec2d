// Copyright 2026 The Pixie Authors
// SPDX-License-Identifier: Apache-2.0

package tcpserver

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/pierrec/lz4/v4"

	"github.com/pixie-fleet/pixie/internal/chunkstore"
	"github.com/pixie-fleet/pixie/internal/fleet"
	"github.com/pixie-fleet/pixie/internal/imageregistry"
	"github.com/pixie-fleet/pixie/internal/tcpproto"
	"github.com/pixie-fleet/pixie/internal/wire"
	"github.com/pixie-fleet/pixie/lib/clock"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) (*Server, *chunkstore.Store, *imageregistry.Registry, *fleet.State) {
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
	return New(store, registry, fleetState, discardLogger()), store, registry, fleetState
}

func serveOnPipe(t *testing.T, server *Server) net.Conn {
	t.Helper()
	client, serverSide := net.Pipe()
	go server.handleConn(context.Background(), serverSide)
	t.Cleanup(func() { client.Close() })
	return client
}

func compress(t *testing.T, data []byte) []byte {
	t.Helper()
	buf := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := lz4.CompressBlock(data, buf, nil)
	if err != nil {
		t.Fatalf("CompressBlock: %v", err)
	}
	return buf[:n]
}

func TestUploadChunkThenGetChunkSize(t *testing.T) {
	server, _, _, _ := newTestServer(t)
	conn := serveOnPipe(t, server)

	data := []byte("hello pixie chunk contents")
	hash := wire.HashChunk(data)
	compressed := compress(t, data)

	if err := tcpproto.WriteRequest(conn, tcpproto.Request{
		Kind:       tcpproto.KindUploadChunk,
		ChunkHash:  hash,
		Compressed: compressed,
	}); err != nil {
		t.Fatalf("WriteRequest: %v", err)
	}
	resp, err := tcpproto.ReadResponse(conn)
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	if resp.Error != "" {
		t.Fatalf("upload chunk error: %s", resp.Error)
	}

	if err := tcpproto.WriteRequest(conn, tcpproto.Request{Kind: tcpproto.KindGetChunkSize, Hash: hash}); err != nil {
		t.Fatalf("WriteRequest: %v", err)
	}
	resp, err = tcpproto.ReadResponse(conn)
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	if resp.CSize == 0 {
		t.Error("expected non-zero csize after upload")
	}
}

func TestUploadChunkAcceptsIncompressibleRawBytes(t *testing.T) {
	server, store, _, _ := newTestServer(t)
	conn := serveOnPipe(t, server)

	// A 256-byte pattern repeated twice, sent with CompressionNone
	// as diskengine.Push does for chunks LZ4 does not shrink; the
	// server stores the payload as given either way.
	data := make([]byte, 512)
	for i := range data {
		data[i] = byte(i*2654435761 + 3)
	}
	hash := wire.HashChunk(data)

	if err := tcpproto.WriteRequest(conn, tcpproto.Request{
		Kind:           tcpproto.KindUploadChunk,
		ChunkHash:      hash,
		CompressionTag: wire.CompressionNone,
		Compressed:     data,
	}); err != nil {
		t.Fatalf("WriteRequest: %v", err)
	}
	resp, err := tcpproto.ReadResponse(conn)
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	if resp.Error != "" {
		t.Fatalf("upload chunk error: %s", resp.Error)
	}
	if resp.StoredCSize != uint32(len(data)) {
		t.Errorf("StoredCSize = %d, want %d (raw storage is not compressed)", resp.StoredCSize, len(data))
	}

	got, err := store.Get(hash)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("raw chunk did not round-trip through the store")
	}
}

func TestUploadChunkRejectsHashMismatch(t *testing.T) {
	server, _, _, _ := newTestServer(t)
	conn := serveOnPipe(t, server)

	compressed := compress(t, []byte("some content"))
	var wrongHash wire.ChunkHash

	if err := tcpproto.WriteRequest(conn, tcpproto.Request{
		Kind:       tcpproto.KindUploadChunk,
		ChunkHash:  wrongHash,
		Compressed: compressed,
	}); err != nil {
		t.Fatalf("WriteRequest: %v", err)
	}
	resp, err := tcpproto.ReadResponse(conn)
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	if resp.Error == "" {
		t.Fatal("expected hash mismatch error")
	}
}

func TestUploadImageThenGetImage(t *testing.T) {
	server, store, _, _ := newTestServer(t)
	conn := serveOnPipe(t, server)

	data := []byte("disk region contents")
	hash := wire.HashChunk(data)
	if _, err := store.Put(hash, wire.CompressionLZ4, compress(t, data)); err != nil {
		t.Fatalf("store.Put: %v", err)
	}

	image := wire.Image{Disk: []wire.Chunk{{Hash: hash, Start: 0, Size: uint32(len(data)), CSize: 10}}}
	if err := tcpproto.WriteRequest(conn, tcpproto.Request{Kind: tcpproto.KindUploadImage, Name: "golden", Image: image}); err != nil {
		t.Fatalf("WriteRequest: %v", err)
	}
	resp, err := tcpproto.ReadResponse(conn)
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	if resp.Error != "" {
		t.Fatalf("upload image error: %s", resp.Error)
	}

	if err := tcpproto.WriteRequest(conn, tcpproto.Request{Kind: tcpproto.KindGetImage, Name: "golden"}); err != nil {
		t.Fatalf("WriteRequest: %v", err)
	}
	resp, err = tcpproto.ReadResponse(conn)
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	if len(resp.Image.Disk) != 1 || resp.Image.Disk[0].Hash != hash {
		t.Errorf("got image %+v", resp.Image)
	}

	if store.RefCount(hash) != 1 {
		t.Errorf("RefCount = %d, want 1", store.RefCount(hash))
	}
}

func TestRegisterThenActionComplete(t *testing.T) {
	server, _, _, fleetState := newTestServer(t)
	conn := serveOnPipe(t, server)

	mac, err := wire.ParseMAC("aa:bb:cc:dd:ee:ff")
	if err != nil {
		t.Fatalf("ParseMAC: %v", err)
	}

	if err := tcpproto.WriteRequest(conn, tcpproto.Request{Kind: tcpproto.KindRegister, MAC: mac, Group: "g", Row: 1, Col: 2}); err != nil {
		t.Fatalf("WriteRequest: %v", err)
	}
	resp, err := tcpproto.ReadResponse(conn)
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	if resp.Error != "" {
		t.Fatalf("register error: %s", resp.Error)
	}

	if err := tcpproto.WriteRequest(conn, tcpproto.Request{
		Kind:     tcpproto.KindActionComplete,
		MAC:      mac,
		Progress: wire.Progress{ChunksDone: 1, ChunksTotal: 1},
	}); err != nil {
		t.Fatalf("WriteRequest: %v", err)
	}
	resp, err = tcpproto.ReadResponse(conn)
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	if resp.Error != "" {
		t.Fatalf("action complete error: %s", resp.Error)
	}

	unit, ok := fleetState.Get(mac)
	if !ok {
		t.Fatal("unit not found")
	}
	if unit.CurrAction.Kind != wire.ActionWait {
		t.Errorf("CurrAction.Kind = %v, want Wait", unit.CurrAction.Kind)
	}
}

func TestPipelinedRequestsOnOneConnection(t *testing.T) {
	server, _, _, _ := newTestServer(t)
	conn := serveOnPipe(t, server)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5; i++ {
			resp, err := tcpproto.ReadResponse(conn)
			if err != nil {
				t.Errorf("ReadResponse %d: %v", i, err)
				return
			}
			if resp.Kind != tcpproto.KindGetChunkSize {
				t.Errorf("frame %d: kind = %v", i, resp.Kind)
			}
		}
	}()

	for i := 0; i < 5; i++ {
		if err := tcpproto.WriteRequest(conn, tcpproto.Request{Kind: tcpproto.KindGetChunkSize}); err != nil {
			t.Fatalf("WriteRequest %d: %v", i, err)
		}
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for pipelined responses")
	}
}

// Copyright 2026 The Pixie Authors
// SPDX-License-Identifier: Apache-2.0

// Package tcpserver implements the server side of spec.md §4.5's TCP
// transport: GetImage, GetChunkSize, UploadChunk, UploadImage,
// Register, and ActionComplete, framed and encoded per
// internal/tcpproto.
//
// One goroutine per accepted connection reads pipelined requests in
// order (TCP per-connection ordering is preserved end-to-end,
// spec.md §5) and writes responses back in the same order. A
// connection idle for more than idleTimeout (spec.md §5's 30s) is
// dropped.
package tcpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/pierrec/lz4/v4"

	"github.com/pixie-fleet/pixie/internal/chunkstore"
	"github.com/pixie-fleet/pixie/internal/fleet"
	"github.com/pixie-fleet/pixie/internal/imageregistry"
	"github.com/pixie-fleet/pixie/internal/tcpproto"
	"github.com/pixie-fleet/pixie/internal/wire"
	"github.com/pixie-fleet/pixie/lib/netutil"
)

// idleTimeout is spec.md §5's "a TCP request without progress for
// 30s is dropped" cancellation rule, implemented as a rolling read
// deadline reset before every frame.
const idleTimeout = 30 * time.Second

// Server dispatches TCP requests against the chunk store, image
// registry, and fleet state.
type Server struct {
	store    *chunkstore.Store
	registry *imageregistry.Registry
	fleet    *fleet.State
	logger   *slog.Logger
}

// New returns a Server bound to the given components.
func New(store *chunkstore.Store, registry *imageregistry.Registry, fleetState *fleet.State, logger *slog.Logger) *Server {
	return &Server{store: store, registry: registry, fleet: fleetState, logger: logger}
}

// Serve accepts connections on listener until ctx is cancelled. The
// caller creates the listener (via net.Listen or Listen below) so
// that tests can discover the actual bound address before Serve
// blocks.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.logger.Info("tcp server listening", "addr", listener.Addr())

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if netutil.IsExpectedCloseError(err) {
				return nil
			}
			return fmt.Errorf("tcpserver: accept: %w", err)
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(idleTimeout))

		req, err := tcpproto.ReadRequest(conn)
		if err != nil {
			if !netutil.IsExpectedCloseError(err) && !errors.Is(err, context.Canceled) {
				s.logger.Debug("tcp connection closed", "remote", conn.RemoteAddr(), "error", err)
			}
			return
		}

		resp := s.handleRequest(req)

		conn.SetWriteDeadline(time.Now().Add(idleTimeout))
		if err := tcpproto.WriteResponse(conn, resp); err != nil {
			s.logger.Debug("tcp response write failed", "remote", conn.RemoteAddr(), "error", err)
			return
		}
	}
}

func (s *Server) handleRequest(req tcpproto.Request) tcpproto.Response {
	switch req.Kind {
	case tcpproto.KindGetImage:
		return s.handleGetImage(req)
	case tcpproto.KindGetChunkSize:
		return s.handleGetChunkSize(req)
	case tcpproto.KindUploadChunk:
		return s.handleUploadChunk(req)
	case tcpproto.KindUploadImage:
		return s.handleUploadImage(req)
	case tcpproto.KindRegister:
		return s.handleRegister(req)
	case tcpproto.KindActionComplete:
		return s.handleActionComplete(req)
	default:
		return tcpproto.Response{Kind: req.Kind, Error: fmt.Sprintf("unknown request kind %q", req.Kind)}
	}
}

func (s *Server) handleGetImage(req tcpproto.Request) tcpproto.Response {
	image, err := s.registry.Get(req.Name)
	if err != nil {
		return tcpproto.Response{Kind: req.Kind, Error: err.Error()}
	}
	return tcpproto.Response{Kind: req.Kind, Image: image}
}

func (s *Server) handleGetChunkSize(req tcpproto.Request) tcpproto.Response {
	return tcpproto.Response{Kind: req.Kind, CSize: s.store.CSize(req.Hash)}
}

func (s *Server) handleUploadChunk(req tcpproto.Request) tcpproto.Response {
	var verified []byte
	switch req.CompressionTag {
	case wire.CompressionNone:
		verified = req.Compressed
	case wire.CompressionLZ4:
		decompressed := make([]byte, wire.CHUNK_SIZE)
		n, err := lz4.UncompressBlock(req.Compressed, decompressed)
		if err != nil {
			return tcpproto.Response{Kind: req.Kind, Error: fmt.Sprintf("decompressing chunk: %v", err)}
		}
		verified = decompressed[:n]
	default:
		return tcpproto.Response{Kind: req.Kind, Error: fmt.Sprintf("unknown compression tag %s", req.CompressionTag)}
	}

	if got := wire.HashChunk(verified); got != req.ChunkHash {
		return tcpproto.Response{Kind: req.Kind, Error: fmt.Sprintf("hash mismatch: got %s, want %s", got, req.ChunkHash)}
	}

	csize, err := s.store.Put(req.ChunkHash, req.CompressionTag, req.Compressed)
	if err != nil {
		return tcpproto.Response{Kind: req.Kind, Error: err.Error()}
	}
	return tcpproto.Response{Kind: req.Kind, StoredCSize: csize}
}

func (s *Server) handleUploadImage(req tcpproto.Request) tcpproto.Response {
	if err := s.registry.Put(req.Name, req.Image); err != nil {
		return tcpproto.Response{Kind: req.Kind, Error: err.Error()}
	}
	return tcpproto.Response{Kind: req.Kind}
}

func (s *Server) handleRegister(req tcpproto.Request) tcpproto.Response {
	unit, err := s.fleet.Register(req.MAC, req.Group, req.Row, req.Col)
	if err != nil {
		return tcpproto.Response{Kind: req.Kind, Error: err.Error()}
	}
	return tcpproto.Response{Kind: req.Kind, StaticIP: unit.StaticIP, Action: unit.CurrAction}
}

func (s *Server) handleActionComplete(req tcpproto.Request) tcpproto.Response {
	if err := s.fleet.ActionComplete(req.MAC, req.Progress); err != nil {
		return tcpproto.Response{Kind: req.Kind, Error: err.Error()}
	}
	return tcpproto.Response{Kind: req.Kind}
}

// Copyright 2026 The Pixie Authors
// SPDX-License-Identifier: Apache-2.0

package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/pixie-fleet/pixie/internal/chunkstore"
	"github.com/pixie-fleet/pixie/internal/fleet"
	"github.com/pixie-fleet/pixie/internal/imageregistry"
	"github.com/pixie-fleet/pixie/internal/wire"
	"github.com/pixie-fleet/pixie/lib/clock"
)

// shutdownTimeout bounds how long Serve waits for in-flight requests
// (and open WebSocket connections) to drain after ctx is cancelled.
// Mirrors the teacher's service.HTTPServer default.
const shutdownTimeout = 10 * time.Second

// Server serves the admin control plane described in spec.md §4.7:
// reading and mutating fleet.State over HTTP, and pushing WsUpdate
// snapshots over WebSocket. It owns no state of its own beyond the
// remote-reboot timestamp — everything else is read through fleet.
type Server struct {
	fleet    *fleet.State
	registry *imageregistry.Registry
	store    *chunkstore.Store
	clock    clock.Clock
	logger   *slog.Logger

	// rebootAt is the Unix timestamp GET /reboot_timestamp hands to
	// polling clients, 0 meaning "no pending reboot". It is set by
	// POST /admin/curr_action/<sel>/reboot — a reboot has no
	// chunk-transfer progress to track through fleet.State, so it
	// needs its own out-of-band signal.
	rebootAt atomic.Int64

	ready chan struct{}
	addr  net.Addr
}

// New returns a Server that reads and mutates state through fleetState,
// registry, and store. registry and store back the read-only
// GET /admin/images listing and the POST /admin/gc trigger — pixie-top
// and pixie-admin's manifest/GC surface, per SPEC_FULL.md §2.
func New(fleetState *fleet.State, registry *imageregistry.Registry, store *chunkstore.Store, clk clock.Clock, logger *slog.Logger) *Server {
	return &Server{
		fleet:    fleetState,
		registry: registry,
		store:    store,
		clock:    clk,
		logger:   logger,
		ready:    make(chan struct{}),
	}
}

// Ready returns a channel closed once the server is bound and
// accepting connections.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Addr returns the resolved listen address. Only valid after Ready()
// closes.
func (s *Server) Addr() net.Addr { return s.addr }

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /admin/", s.handleAdminRoot)
	mux.HandleFunc("POST /admin/curr_action/{selector}/{action}", s.handleSetCurrAction)
	mux.HandleFunc("GET /admin/status", s.handleStatus)
	mux.HandleFunc("GET /admin/ws", s.handleWebSocket)
	mux.HandleFunc("GET /admin/images", s.handleImages)
	mux.HandleFunc("POST /admin/gc", s.handleGC)
	mux.HandleFunc("GET /reboot_timestamp", s.handleRebootTimestamp)
	return mux
}

// Serve binds addr and serves the admin API until ctx is cancelled,
// then drains in-flight requests for up to shutdownTimeout. Follows
// the same bind-then-signal-ready-then-serve shape as the teacher's
// lib/service.HTTPServer.
func (s *Server) Serve(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("httpapi: listening on %s: %w", addr, err)
	}
	s.addr = listener.Addr()
	close(s.ready)

	httpServer := &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("admin http server listening", "address", s.addr.String())

	serveErr := make(chan error, 1)
	go func() {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("httpapi: shutdown: %w", err)
	}
	<-serveErr
	return nil
}

// commandResponse is the structured JSON contract spec.md §7 requires
// of every admin command: a status, and on failure a reason.
type commandResponse struct {
	Status  string `json:"status"`
	Reason  string `json:"reason,omitempty"`
	Matched int    `json:"matched,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, reason string) {
	writeJSON(w, code, commandResponse{Status: "error", Reason: reason})
}

// adminRootHTML is a minimal landing page. pixie-top, not this page,
// is the real fleet dashboard (SPEC_FULL.md §4.7); this just points
// an operator opening /admin/ in a browser at the machine-readable
// endpoints.
const adminRootHTML = `<!DOCTYPE html>
<html><head><title>pixie admin</title></head>
<body>
<h1>pixie admin</h1>
<ul>
<li><a href="/admin/status">/admin/status</a> - one-shot fleet snapshot</li>
<li>/admin/ws - live fleet snapshot stream (WebSocket)</li>
<li><a href="/admin/images">/admin/images</a> - image manifest summaries</li>
<li>POST /admin/gc - reclaim chunks orphaned by deleted/replaced images</li>
<li>/reboot_timestamp - client reboot poll target</li>
<li>POST /admin/curr_action/&lt;all|group|mac&gt;/&lt;store|flash|reboot|register|wait&gt;</li>
</ul>
</body></html>
`

func (s *Server) handleAdminRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(adminRootHTML))
}

// actionFromPath maps spec.md §4.7's literal admin action vocabulary
// (store, flash, reboot, register, wait) onto wire.ActionKind. "store"
// means push an image onto the server's chunk store from a client
// disk; "flash" means pull (write) an image onto a client's disk —
// the spec's operator-facing names for wire.ActionPush/wire.ActionPull.
func actionFromPath(name string) (wire.ActionKind, bool) {
	switch name {
	case "store":
		return wire.ActionPush, true
	case "flash":
		return wire.ActionPull, true
	case "reboot":
		return wire.ActionReboot, true
	case "register":
		return wire.ActionRegister, true
	case "wait":
		return wire.ActionWait, true
	default:
		return "", false
	}
}

func (s *Server) handleSetCurrAction(w http.ResponseWriter, r *http.Request) {
	selector := fleet.Selector(r.PathValue("selector"))
	actionName := r.PathValue("action")

	kind, ok := actionFromPath(actionName)
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown action %q", actionName))
		return
	}

	action := wire.Action{Kind: kind}
	if kind == wire.ActionPush || kind == wire.ActionPull {
		image := r.URL.Query().Get("image")
		if image == "" {
			writeError(w, http.StatusBadRequest, "image query parameter is required for store/flash")
			return
		}
		action.Image = image
	}
	if kind == wire.ActionPull {
		action.ChunksPort = wire.ChunksPort
		action.HintPort = wire.HintPort
	}

	matched, err := s.fleet.SetNextAction(selector, action)
	if err != nil {
		s.logger.Error("set next action failed", "selector", selector, "action", actionName, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if matched == 0 {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no unit matches selector %q", selector))
		return
	}

	if kind == wire.ActionReboot {
		s.rebootAt.Store(s.clock.Now().Unix())
	}

	writeJSON(w, http.StatusOK, commandResponse{Status: "ok", Matched: matched})
}

// handleStatus serves a single WsUpdate snapshot — the polling
// counterpart to the streaming GET /admin/ws.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, snapshotUpdate(s.fleet))
}

// handleImages serves imageregistry.Summary for every published image
// — pixie-admin's "show manifests" and pixie-top's image picker.
func (s *Server) handleImages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.List())
}

// gcResponse mirrors chunkstore.GCResult in JSON; chunkstore.GCResult
// itself carries no json tags since it is otherwise only consumed
// in-process (by cmd/pixie-server's periodic GC goroutine).
type gcResponse struct {
	ChunksRemoved int   `json:"chunks_removed"`
	BytesFreed    int64 `json:"bytes_freed"`
}

// handleGC runs a chunk store GC pass on demand — the manual
// counterpart to cmd/pixie-server's hourly GC goroutine, for an
// operator who just deleted a large image and wants the space back
// immediately.
func (s *Server) handleGC(w http.ResponseWriter, r *http.Request) {
	result, err := s.store.GC()
	if err != nil {
		s.logger.Error("admin gc failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, gcResponse{ChunksRemoved: result.ChunksRemoved, BytesFreed: result.BytesFreed})
}

func (s *Server) handleRebootTimestamp(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		RebootTimestamp int64 `json:"reboot_timestamp"`
	}{RebootTimestamp: s.rebootAt.Load()})
}

// snapshotUpdate builds a WsUpdate from the current fleet state.
func snapshotUpdate(fleetState *fleet.State) WsUpdate {
	units := fleetState.Snapshot()
	groups, unregistered := fleetState.GroupCounts()
	return WsUpdate{
		Units:        units,
		Groups:       groups,
		Unregistered: unregistered,
	}
}

// WsUpdate is the JSON snapshot pushed to admin WebSocket clients and
// served by GET /admin/status, per spec.md §4.7.
type WsUpdate struct {
	Units        []wire.Unit      `json:"units"`
	Groups       map[string]uint8 `json:"groups"`
	Unregistered uint8            `json:"unregistered"`
}

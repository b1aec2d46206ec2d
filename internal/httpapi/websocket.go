// Copyright 2026 The Pixie Authors
// SPDX-License-Identifier: Apache-2.0

package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// wsDebounce is SPEC_FULL.md §4.7's "at most one push per 100ms per
// connection" ceiling on WsUpdate delivery: fleet.State can mutate
// many times per second (every client poll, every progress ping),
// but no admin dashboard needs updates faster than this.
const wsDebounce = 100 * time.Millisecond

// wsWriteTimeout bounds a single WsUpdate frame write, so one stalled
// admin connection cannot block the debounce loop indefinitely.
const wsWriteTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	// The admin API has no cross-origin caller today (pixie-top and
	// pixie-admin both dial the API's own host); this is revisited if
	// a browser-hosted admin UI ever needs a different origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWebSocket upgrades the connection and pushes a WsUpdate
// snapshot immediately, then again after every fleet.State mutation,
// debounced to wsDebounce. The connection is otherwise read-only from
// the client's perspective: pixie-top and pixie-admin never send
// application messages over it, so any inbound frame just keeps the
// read loop alive to notice a close.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	changed, cancel := s.fleet.Subscribe()
	defer cancel()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := s.pushSnapshot(conn); err != nil {
		return
	}

	ticker := time.NewTicker(wsDebounce)
	defer ticker.Stop()

	dirty := false
	for {
		select {
		case <-closed:
			return
		case <-changed:
			dirty = true
		case <-ticker.C:
			if !dirty {
				continue
			}
			dirty = false
			if err := s.pushSnapshot(conn); err != nil {
				return
			}
		}
	}
}

func (s *Server) pushSnapshot(conn *websocket.Conn) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(snapshotUpdate(s.fleet))
}

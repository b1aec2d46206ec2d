// Copyright 2026 The Pixie Authors
// SPDX-License-Identifier: Apache-2.0

package httpapi

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pixie-fleet/pixie/internal/wire"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/admin/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dialing websocket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWebSocketPushesInitialSnapshot(t *testing.T) {
	fleetState := newTestFleet(t)
	ts := newTestServer(t, fleetState)

	conn := dialWS(t, ts)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var update WsUpdate
	if err := conn.ReadJSON(&update); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if len(update.Units) != 0 {
		t.Errorf("Units = %+v, want empty fleet", update.Units)
	}
}

func TestWebSocketPushesOnFleetMutation(t *testing.T) {
	fleetState := newTestFleet(t)
	ts := newTestServer(t, fleetState)

	conn := dialWS(t, ts)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first WsUpdate
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("initial ReadJSON: %v", err)
	}

	mac := wire.MAC{1, 2, 3, 4, 5, 6}
	if _, err := fleetState.Register(mac, "lab", 0, 0); err != nil {
		t.Fatalf("Register: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var second WsUpdate
	if err := conn.ReadJSON(&second); err != nil {
		t.Fatalf("post-mutation ReadJSON: %v", err)
	}
	if len(second.Units) != 1 || second.Units[0].MAC != mac {
		t.Errorf("Units = %+v", second.Units)
	}
}

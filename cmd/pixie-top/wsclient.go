// Copyright 2026 The Pixie Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/pixie-fleet/pixie/internal/httpapi"
)

// reconnectDelay is how long runWebSocketLoop waits before retrying a dropped
// connection, so a restarting pixie-server doesn't get hammered.
const reconnectDelay = 2 * time.Second

// updateMsg wraps a WsUpdate snapshot for delivery through the
// bubbletea event loop, the pixie-top counterpart to the teacher's
// sourceEventMsg in lib/ticketui/model.go.
type updateMsg struct {
	update httpapi.WsUpdate
}

// connErrMsg reports a transport failure, delivered instead of an
// updateMsg when the WebSocket connection drops or fails to dial.
type connErrMsg struct {
	err error
}

// wsAddr converts a pixie-server admin base URL (as accepted by
// --server, e.g. "http://host:8080") into its ws:// equivalent.
func wsAddr(server string) (string, error) {
	parsed, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("parsing --server %q: %w", server, err)
	}
	switch parsed.Scheme {
	case "http", "":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	case "ws", "wss":
		// already a websocket scheme
	default:
		return "", fmt.Errorf("unsupported scheme %q in --server", parsed.Scheme)
	}
	parsed.Path = strings.TrimSuffix(parsed.Path, "/") + "/admin/ws"
	return parsed.String(), nil
}

// listenForUpdate returns a tea.Cmd that blocks until a WsUpdate
// arrives on channel, then delivers it as an updateMsg — the same
// blocking-receive-then-wrap shape as the teacher's
// listenForSourceEvent in lib/ticketui/model.go, generalized from a
// Source event channel to a WsUpdate channel.
func listenForUpdate(channel <-chan any) tea.Cmd {
	return func() tea.Msg {
		message, ok := <-channel
		if !ok {
			return nil
		}
		switch message := message.(type) {
		case httpapi.WsUpdate:
			return updateMsg{update: message}
		case error:
			return connErrMsg{err: message}
		default:
			return nil
		}
	}
}

// runWebSocketLoop dials addr and forwards decoded WsUpdate frames
// (or a terminal error) onto channel, reconnecting after
// reconnectDelay on any failure. It runs for the lifetime of the
// program on its own goroutine, started from main.
func runWebSocketLoop(addr string, channel chan<- any, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.Dial(addr, nil)
		if err != nil {
			select {
			case channel <- fmt.Errorf("dial %s: %w", addr, err):
			case <-done:
				return
			}
			select {
			case <-time.After(reconnectDelay):
			case <-done:
				return
			}
			continue
		}

		for {
			var update httpapi.WsUpdate
			if err := conn.ReadJSON(&update); err != nil {
				conn.Close()
				select {
				case channel <- fmt.Errorf("read from %s: %w", addr, err):
				case <-done:
					return
				}
				break
			}
			select {
			case channel <- update:
			case <-done:
				conn.Close()
				return
			}
		}

		select {
		case <-time.After(reconnectDelay):
		case <-done:
			return
		}
	}
}

// Copyright 2026 The Pixie Authors
// SPDX-License-Identifier: Apache-2.0

// Package tcpclient is the client side of spec.md §4.5's TCP
// transport, used by the disk engine's push/pull flows and by the
// register subcommand.
package tcpclient

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"sync"

	"github.com/pixie-fleet/pixie/internal/tcpproto"
	"github.com/pixie-fleet/pixie/internal/wire"
)

// Client is a single TCP connection to a Pixie server. Requests are
// serialized: Client does not pipeline, since its callers (a single
// disk engine push or pull) already issue requests sequentially.
type Client struct {
	conn net.Conn
	mu   sync.Mutex
}

// Dial connects to a Pixie server's TCP control port.
func Dial(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("tcpclient: dialing %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) roundTrip(req tcpproto.Request) (tcpproto.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := tcpproto.WriteRequest(c.conn, req); err != nil {
		return tcpproto.Response{}, err
	}
	resp, err := tcpproto.ReadResponse(c.conn)
	if err != nil {
		return tcpproto.Response{}, err
	}
	if resp.Error != "" {
		return tcpproto.Response{}, fmt.Errorf("tcpclient: %s: %s", req.Kind, resp.Error)
	}
	return resp, nil
}

// GetImage fetches name's manifest.
func (c *Client) GetImage(name string) (wire.Image, error) {
	resp, err := c.roundTrip(tcpproto.Request{Kind: tcpproto.KindGetImage, Name: name})
	if err != nil {
		return wire.Image{}, err
	}
	return resp.Image, nil
}

// GetChunkSize asks the server whether it already has hash, and if
// so, its stored compressed size. Zero means unknown.
func (c *Client) GetChunkSize(hash wire.ChunkHash) (uint32, error) {
	resp, err := c.roundTrip(tcpproto.Request{Kind: tcpproto.KindGetChunkSize, Hash: hash})
	if err != nil {
		return 0, err
	}
	return resp.CSize, nil
}

// UploadChunk uploads payload for hash, tagged with the compression
// algorithm (if any) payload was encoded with.
func (c *Client) UploadChunk(hash wire.ChunkHash, tag wire.CompressionTag, payload []byte) (uint32, error) {
	resp, err := c.roundTrip(tcpproto.Request{Kind: tcpproto.KindUploadChunk, ChunkHash: hash, CompressionTag: tag, Compressed: payload})
	if err != nil {
		return 0, err
	}
	return resp.StoredCSize, nil
}

// UploadImage publishes image under name.
func (c *Client) UploadImage(name string, image wire.Image) error {
	_, err := c.roundTrip(tcpproto.Request{Kind: tcpproto.KindUploadImage, Name: name, Image: image})
	return err
}

// Register establishes or updates the calling unit's fleet
// coordinates. Returns the assigned static IP (invalid if none is
// reserved) and the unit's current action, which the server may have
// just promoted from NextAction (see internal/fleet package doc).
func (c *Client) Register(mac wire.MAC, group string, row, col uint8) (netip.Addr, wire.Action, error) {
	resp, err := c.roundTrip(tcpproto.Request{Kind: tcpproto.KindRegister, MAC: mac, Group: group, Row: row, Col: col})
	if err != nil {
		return netip.Addr{}, wire.Action{}, err
	}
	return resp.StaticIP, resp.Action, nil
}

// ActionComplete reports that mac finished its current action.
func (c *Client) ActionComplete(mac wire.MAC, progress wire.Progress) error {
	_, err := c.roundTrip(tcpproto.Request{Kind: tcpproto.KindActionComplete, MAC: mac, Progress: progress})
	return err
}

// Copyright 2026 The Pixie Authors
// SPDX-License-Identifier: Apache-2.0

// Package udpserver implements the server side of spec.md §4.3's UDP
// chunk transport: a receive loop that turns ChunkListRequest,
// DataRequest, and ActionProgress datagrams into work, a per-group
// rate-limited send worker that streams chunk data back out, and a
// periodic HintPacket broadcaster.
//
// Send and receive use two different socket abstractions on purpose.
// Receiving unicast client requests needs nothing beyond an ordinary
// *net.UDPConn. Sending HintPacket and DataPacket broadcasts needs
// explicit control over the outgoing interface and IP TTL — a plain
// net.ListenUDP-backed connection lets the kernel's default route
// pick both, which is wrong on a multi-homed boot server where the
// route to the fleet's subnet is not necessarily the default one.
// golang.org/x/net/ipv4's PacketConn wraps the same underlying socket
// to add that control for the send path only; DataRequest/
// ActionProgress reads still go through the raw connection.
package udpserver

// Copyright 2026 The Pixie Authors
// SPDX-License-Identifier: Apache-2.0

package udpserver

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/time/rate"

	"github.com/pixie-fleet/pixie/internal/bijection"
	"github.com/pixie-fleet/pixie/internal/fleet"
	"github.com/pixie-fleet/pixie/internal/imageregistry"
	"github.com/pixie-fleet/pixie/internal/udpproto"
	"github.com/pixie-fleet/pixie/internal/wire"
	"github.com/pixie-fleet/pixie/lib/clock"
	"github.com/pixie-fleet/pixie/lib/config"
)

// hintInterval is spec.md §4.3's "≈1s" HintPacket broadcast cadence.
const hintInterval = time.Duration(wire.HintInterval) * time.Second

// workQueueDepth bounds the per-group FIFO of pending sends. A full
// queue applies backpressure to the receive loop (spec.md §5's
// concurrency model) by blocking the send rather than growing
// unbounded.
const workQueueDepth = 256

// workItem is one (hash, byte range, destination) send request,
// deduplicated by workKey before it ever reaches a group's queue.
type workItem struct {
	hash   wire.ChunkHash
	start  uint32
	length uint32
	dest   *net.UDPAddr
}

type workKey struct {
	hash   wire.ChunkHash
	start  uint32
	length uint32
	dest   string
}

func (w workItem) key() workKey {
	return workKey{hash: w.hash, start: w.start, length: w.length, dest: w.dest.String()}
}

// Store is the subset of chunkstore.Store the UDP transport needs:
// Get to load chunk bytes for sending, CSize to answer
// ChunkListRequest without loading the chunk at all.
type Store interface {
	Get(hash wire.ChunkHash) ([]byte, error)
	CSize(hash wire.ChunkHash) uint32
}

// Server is the UDP chunk transport's server side: one receive loop
// dispatching ChunkListRequest/DataRequest/ActionProgress datagrams,
// one send worker goroutine per configured group, and one HintPacket
// broadcaster.
type Server struct {
	store    Store
	registry *imageregistry.Registry
	fleet    *fleet.State
	table    *bijection.Table
	clock    clock.Clock
	logger   *slog.Logger

	network config.NetworkConfig
	groups  map[string]config.GroupConfig

	recvConn *net.UDPConn
	sendConn *ipv4.PacketConn
	hintAddr *net.UDPAddr

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	queues   map[string]chan workItem
	pending  map[workKey]struct{}
}

// New returns a Server bound to its dependencies. cfg's Groups and
// Network sections drive the per-group rate limiters and the send
// socket's outgoing interface/TTL.
func New(store Store, registry *imageregistry.Registry, fleetState *fleet.State, table *bijection.Table, clk clock.Clock, logger *slog.Logger, cfg *config.Config) *Server {
	return &Server{
		store:    store,
		registry: registry,
		fleet:    fleetState,
		table:    table,
		clock:    clk,
		logger:   logger,
		network:  cfg.Network,
		groups:   cfg.Groups,
		limiters: make(map[string]*rate.Limiter),
		queues:   make(map[string]chan workItem),
		pending:  make(map[workKey]struct{}),
	}
}

// Serve binds recvAddr for receiving unicast client requests and
// hintAddr as the destination for HintPacket/DataPacket broadcasts,
// then runs the receive loop, one send worker per configured group,
// and the hint broadcaster until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, recvAddr, hintAddr string) error {
	udpAddr, err := net.ResolveUDPAddr("udp4", recvAddr)
	if err != nil {
		return fmt.Errorf("udpserver: resolving %s: %w", recvAddr, err)
	}
	conn, err := net.ListenUDP("udp4", udpAddr)
	if err != nil {
		return fmt.Errorf("udpserver: listening on %s: %w", recvAddr, err)
	}
	defer conn.Close()
	s.recvConn = conn

	dest, err := net.ResolveUDPAddr("udp4", hintAddr)
	if err != nil {
		return fmt.Errorf("udpserver: resolving hint address %s: %w", hintAddr, err)
	}
	s.hintAddr = dest

	pconn := ipv4.NewPacketConn(conn)
	if s.network.Interface != "" {
		iface, err := net.InterfaceByName(s.network.Interface)
		if err != nil {
			return fmt.Errorf("udpserver: resolving interface %s: %w", s.network.Interface, err)
		}
		if err := pconn.SetMulticastInterface(iface); err != nil {
			return fmt.Errorf("udpserver: setting outgoing interface: %w", err)
		}
	}
	ttl := s.network.TTL
	if ttl == 0 {
		ttl = 1
	}
	if err := pconn.SetTTL(ttl); err != nil {
		return fmt.Errorf("udpserver: setting ttl: %w", err)
	}
	if err := pconn.SetControlMessage(ipv4.FlagTTL, true); err != nil {
		s.logger.Debug("udpserver: control message not supported", "error", err)
	}
	s.sendConn = pconn

	for name, gc := range s.groups {
		limit := rate.Limit(float64(gc.BitsPerSecond) / 8)
		burst := int(gc.BitsPerSecond/8) + wire.BODY_LEN
		if burst <= 0 {
			burst = wire.BODY_LEN
		}
		s.limiters[name] = rate.NewLimiter(limit, burst)
		s.queues[name] = make(chan workItem, workQueueDepth)
	}

	var wg sync.WaitGroup
	for name := range s.groups {
		wg.Add(1)
		go func(group string) {
			defer wg.Done()
			s.sendWorker(ctx, group)
		}(name)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.hintBroadcaster(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		conn.Close()
	}()

	err = s.receiveLoop(ctx, conn)
	wg.Wait()
	return err
}

func (s *Server) receiveLoop(ctx context.Context, conn *net.UDPConn) error {
	buf := make([]byte, wire.PACKET_LEN)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("udpserver: reading: %w", err)
		}
		packet := make([]byte, n)
		copy(packet, buf[:n])
		s.handlePacket(packet, addr)
	}
}

func (s *Server) handlePacket(packet []byte, from *net.UDPAddr) {
	if len(packet) < 4 {
		return
	}
	msgType := binary.BigEndian.Uint32(packet[:4])
	switch msgType {
	case udpproto.TypeChunkListRequest:
		hash, err := udpproto.DecodeChunkListRequest(packet)
		if err != nil {
			s.logger.Debug("udpserver: bad ChunkListRequest", "from", from, "error", err)
			return
		}
		s.handleChunkListRequest(hash, from)
	case udpproto.TypeDataRequest:
		req, err := udpproto.DecodeDataRequest(packet)
		if err != nil {
			s.logger.Debug("udpserver: bad DataRequest", "from", from, "error", err)
			return
		}
		s.handleDataRequest(req, from)
	case udpproto.TypeActionProgress:
		msg, err := udpproto.DecodeActionProgress(packet)
		if err != nil {
			s.logger.Debug("udpserver: bad ActionProgress", "from", from, "error", err)
			return
		}
		s.fleet.ActionProgress(msg.MAC, msg.Progress)
	default:
		s.logger.Debug("udpserver: unknown message type", "type", msgType, "from", from)
	}
}

func (s *Server) handleChunkListRequest(hash wire.ChunkHash, from *net.UDPAddr) {
	csize := s.store.CSize(hash)
	if csize == 0 {
		return
	}
	packet := udpproto.EncodeChunkListInfo(csize, hash)
	s.sendTo(packet, from)
}

// handleDataRequest resolves the requesting unicast address to a
// group (via the bijection and fleet state) for rate-limit purposes,
// deduplicates against already-pending work, and enqueues one item
// per requested byte range. dest is spec.md §4.3's "typically the
// subnet broadcast resolved from the requesting unicast address": the
// requester's own /24 broadcast address, so every unit on the subnet
// overhears the reply, not just the one that asked.
func (s *Server) handleDataRequest(req udpproto.DataRequest, from *net.UDPAddr) {
	group := s.groupFor(from)
	dest := subnetBroadcast(from)

	item := workItem{hash: req.Hash, start: req.Start, length: req.Length, dest: dest}

	s.mu.Lock()
	key := item.key()
	if _, dup := s.pending[key]; dup {
		s.mu.Unlock()
		return
	}
	queue, ok := s.queues[group]
	if !ok {
		s.mu.Unlock()
		s.logger.Debug("udpserver: unknown group for DataRequest", "from", from, "group", group)
		return
	}
	s.pending[key] = struct{}{}
	s.mu.Unlock()

	queue <- item
}

func (s *Server) groupFor(from *net.UDPAddr) string {
	if s.table == nil {
		return ""
	}
	addr, ok := netip.AddrFromSlice(from.IP.To4())
	if !ok {
		return ""
	}
	mac, ok := s.table.MACFor(addr)
	if !ok {
		return ""
	}
	unit, ok := s.fleet.Get(mac)
	if !ok {
		return ""
	}
	return unit.Group
}

func subnetBroadcast(from *net.UDPAddr) *net.UDPAddr {
	ip4 := from.IP.To4()
	if ip4 == nil {
		return from
	}
	broadcast := net.IPv4(ip4[0], ip4[1], ip4[2], 255)
	return &net.UDPAddr{IP: broadcast, Port: from.Port}
}

func (s *Server) sendWorker(ctx context.Context, group string) {
	s.mu.Lock()
	queue := s.queues[group]
	limiter := s.limiters[group]
	s.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return
		case item := <-queue:
			s.mu.Lock()
			delete(s.pending, item.key())
			s.mu.Unlock()
			s.sendChunkRange(ctx, item, limiter)
		}
	}
}

// sendChunkRange loads (and, via the store's hot cache, possibly
// avoids re-decompressing) the chunk, slices [start, start+length)
// into BODY_LEN packets, and sends each one after waiting on the
// group's token bucket for its byte cost.
func (s *Server) sendChunkRange(ctx context.Context, item workItem, limiter *rate.Limiter) {
	data, err := s.store.Get(item.hash)
	if err != nil {
		s.logger.Debug("udpserver: loading chunk for send", "hash", item.hash, "error", err)
		return
	}

	end := item.start + item.length
	if int(end) > len(data) {
		end = uint32(len(data))
	}
	for offset := item.start; offset < end; offset += wire.BODY_LEN {
		chunkEnd := offset + wire.BODY_LEN
		if chunkEnd > end {
			chunkEnd = end
		}
		payload := data[offset:chunkEnd]

		if limiter != nil {
			if err := limiter.WaitN(ctx, len(payload)); err != nil {
				return
			}
		}

		packet, err := udpproto.EncodeDataPacket(offset, item.hash, payload)
		if err != nil {
			s.logger.Debug("udpserver: encoding DataPacket", "error", err)
			continue
		}
		s.sendTo(packet, item.dest)
	}
}

func (s *Server) sendTo(packet []byte, dest *net.UDPAddr) {
	if _, err := s.sendConn.WriteTo(packet, nil, dest); err != nil {
		s.logger.Debug("udpserver: send failed", "dest", dest, "error", err)
	}
}

// hintBroadcaster sends a HintPacket to hintAddr every hintInterval,
// summarizing every known image, the per-group unit counts, and how
// many known units have no group yet — the bootstrap signal for a
// client with no prior state.
func (s *Server) hintBroadcaster(ctx context.Context) {
	ticker := s.clock.NewTicker(hintInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.broadcastHint()
		}
	}
}

func (s *Server) broadcastHint() {
	groups, unregistered := s.fleet.GroupCounts()
	hint := wire.HintPacket{
		Images:       s.registry.All(),
		Groups:       groups,
		Unregistered: unregistered,
	}
	data, err := udpproto.EncodeHintPacket(hint)
	if err != nil {
		s.logger.Debug("udpserver: encoding HintPacket", "error", err)
		return
	}
	s.sendTo(data, s.hintAddr)
}

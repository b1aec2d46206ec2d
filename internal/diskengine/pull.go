// Copyright 2026 The Pixie Authors
// SPDX-License-Identifier: Apache-2.0

package diskengine

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/pixie-fleet/pixie/internal/rebuilder"
	"github.com/pixie-fleet/pixie/internal/tcpclient"
	"github.com/pixie-fleet/pixie/internal/udpproto"
	"github.com/pixie-fleet/pixie/internal/wire"
	"github.com/pixie-fleet/pixie/lib/clock"
)

// tickInterval drives rebuilder.Tick — how often the retransmission
// watchdog is allowed to notice a stale chunk. It only fires
// retransmits for chunks quiet for wire.ClientTimeout, so this can
// safely be shorter than that.
const tickInterval = time.Second

// destination is where one chunk's bytes belong on disk — a chunk
// hash can appear at multiple offsets when the same content repeats
// (e.g. a disk full of zeros).
type destination struct {
	size uint32
	at   []int64
}

// Pull fetches name's manifest and writes it onto dev, skipping any
// chunk whose on-disk bytes already match (spec.md §4.6's idempotence
// requirement: pulling an already-matching disk fetches zero chunks).
// mac and progressAddr identify the caller for ActionProgress pings
// sent over udpConn as chunks complete.
func Pull(ctx context.Context, dev Device, client *tcpclient.Client, mac wire.MAC, udpConn *net.UDPConn, serverChunkAddr, progressAddr *net.UDPAddr, name string, logger *slog.Logger) (wire.Image, error) {
	image, err := client.GetImage(name)
	if err != nil {
		return wire.Image{}, fmt.Errorf("diskengine: fetching image %s: %w", name, err)
	}

	needed := make(map[wire.ChunkHash]*destination)
	for _, chunk := range image.Disk {
		d, ok := needed[chunk.Hash]
		if !ok {
			d = &destination{size: chunk.Size}
			needed[chunk.Hash] = d
		}
		d.at = append(d.at, int64(chunk.Start))
	}

	total := len(needed)
	for hash, d := range needed {
		buf := make([]byte, d.size)
		matched := false
		for _, off := range d.at {
			if _, err := dev.ReadAt(buf, off); err != nil {
				continue
			}
			if wire.HashChunk(buf) == hash {
				matched = true
				break
			}
		}
		if matched {
			for _, off := range d.at {
				if _, err := dev.WriteAt(buf, off); err != nil {
					return wire.Image{}, fmt.Errorf("diskengine: writing matched chunk %s: %w", hash, err)
				}
			}
			delete(needed, hash)
		}
	}

	done := total - len(needed)
	logger.Info("diskengine: disk scanned", "chunks_to_fetch", len(needed), "chunks_total", total)
	if len(needed) == 0 {
		return image, nil
	}

	rb := rebuilder.New(clock.Real(), logger)
	for hash, d := range needed {
		rb.Want(hash, d.size)
		requestChunk(udpConn, serverChunkAddr, udpproto.DataRequest{Hash: hash, Start: 0, Length: d.size})
	}

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	packets := make(chan udpproto.DataPacket, 64)
	readErrs := make(chan error, 1)
	go readDataPackets(ctx, udpConn, packets, readErrs)

	for len(needed) > 0 {
		select {
		case <-ctx.Done():
			return wire.Image{}, ctx.Err()
		case err := <-readErrs:
			return wire.Image{}, fmt.Errorf("diskengine: reading chunk data: %w", err)
		case pkt := <-packets:
			rb.HandleDataPacket(pkt)
		case <-ticker.C:
			for _, req := range rb.Tick() {
				requestChunk(udpConn, serverChunkAddr, req)
			}
		case completed := <-rb.Completed():
			d, ok := needed[completed.Hash]
			if !ok {
				continue
			}
			if completed.Err != nil {
				return wire.Image{}, fmt.Errorf("diskengine: chunk %s: %w", completed.Hash, completed.Err)
			}
			for _, off := range d.at {
				if _, err := dev.WriteAt(completed.Data, off); err != nil {
					return wire.Image{}, fmt.Errorf("diskengine: writing chunk %s: %w", completed.Hash, err)
				}
			}
			delete(needed, completed.Hash)
			done++

			if progressAddr != nil {
				msg := udpproto.EncodeActionProgress(udpproto.ActionProgressMsg{
					MAC:      mac,
					Progress: wire.Progress{ChunksDone: uint32(done), ChunksTotal: uint32(total)},
				})
				udpConn.WriteToUDP(msg, progressAddr)
			}
		}
	}

	return image, nil
}

func requestChunk(conn *net.UDPConn, addr *net.UDPAddr, req udpproto.DataRequest) {
	conn.WriteToUDP(udpproto.EncodeDataRequest(req), addr)
}

// readDataPackets decodes DataPackets off conn until ctx is cancelled
// or a read error occurs, feeding parseable ones to out. Malformed or
// off-topic (non-DataPacket) datagrams are dropped, not reported —
// this socket also receives HintPacket broadcasts.
func readDataPackets(ctx context.Context, conn *net.UDPConn, out chan<- udpproto.DataPacket, errs chan<- error) {
	buf := make([]byte, wire.PACKET_LEN)
	for {
		conn.SetReadDeadline(time.Now().Add(tickInterval))
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			errs <- err
			return
		}
		pkt, err := udpproto.DecodeDataPacket(buf[:n])
		if err != nil {
			continue
		}
		payload := make([]byte, len(pkt.Payload))
		copy(payload, pkt.Payload)
		pkt.Payload = payload
		select {
		case out <- pkt:
		case <-ctx.Done():
			return
		}
	}
}

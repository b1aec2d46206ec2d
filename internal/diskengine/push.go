// Copyright 2026 The Pixie Authors
// SPDX-License-Identifier: Apache-2.0

package diskengine

import (
	"fmt"
	"net"

	"github.com/pierrec/lz4/v4"

	"github.com/pixie-fleet/pixie/internal/tcpclient"
	"github.com/pixie-fleet/pixie/internal/udpproto"
	"github.com/pixie-fleet/pixie/internal/wire"
)

// ProgressFunc is called by Push after each chunk completes, so a
// caller (a CLI progress bar, or the fleet client's periodic
// ActionProgress ping) can report advancement without this package
// depending on how progress is displayed.
type ProgressFunc func(done, total int)

// Device is the subset of *BlockDevice push/pull need.
type Device interface {
	Size() int64
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
}

// Push reads dev's allocated chunks, uploads any the server doesn't
// already have, and publishes the resulting manifest under name. It
// reports progress by sending ActionProgress datagrams to
// progressAddr as well as invoking onProgress.
func Push(dev Device, client *tcpclient.Client, mac wire.MAC, progressConn *net.UDPConn, progressAddr *net.UDPAddr, name string, image wire.Image, onProgress ProgressFunc) (wire.Image, error) {
	ranges, err := Plan(dev, dev.Size())
	if err != nil {
		return wire.Image{}, fmt.Errorf("diskengine: planning chunks: %w", err)
	}

	image.Disk = make([]wire.Chunk, 0, len(ranges))
	total := len(ranges)

	for i, r := range ranges {
		data := make([]byte, r.size)
		if _, err := dev.ReadAt(data, r.start); err != nil {
			return wire.Image{}, fmt.Errorf("diskengine: reading range at %d: %w", r.start, err)
		}
		hash := wire.HashChunk(data)

		csize, err := client.GetChunkSize(hash)
		if err != nil {
			return wire.Image{}, fmt.Errorf("diskengine: checking chunk %s: %w", hash, err)
		}
		if csize == 0 {
			buf := make([]byte, lz4.CompressBlockBound(len(data)))
			n, err := lz4.CompressBlock(data, buf, nil)
			if err != nil {
				return wire.Image{}, fmt.Errorf("diskengine: compressing chunk %s: %w", hash, err)
			}

			// Incompressible data (already-compressed or random bytes)
			// comes back from CompressBlock as 0 or as a block no
			// smaller than the input. Store it raw in that case.
			tag, payload := wire.CompressionLZ4, buf[:n]
			if n == 0 || n >= len(data) {
				tag, payload = wire.CompressionNone, data
			}

			csize, err = client.UploadChunk(hash, tag, payload)
			if err != nil {
				return wire.Image{}, fmt.Errorf("diskengine: uploading chunk %s: %w", hash, err)
			}
		}

		image.Disk = append(image.Disk, wire.Chunk{
			Hash:  hash,
			Start: uint64(r.start),
			Size:  uint32(len(data)),
			CSize: csize,
		})

		if progressConn != nil && progressAddr != nil {
			msg := udpproto.EncodeActionProgress(udpproto.ActionProgressMsg{
				MAC:      mac,
				Progress: wire.Progress{ChunksDone: uint32(i + 1), ChunksTotal: uint32(total)},
			})
			progressConn.WriteToUDP(msg, progressAddr)
		}
		if onProgress != nil {
			onProgress(i+1, total)
		}
	}

	if err := client.UploadImage(name, image); err != nil {
		return wire.Image{}, fmt.Errorf("diskengine: publishing image %s: %w", name, err)
	}
	return image, nil
}

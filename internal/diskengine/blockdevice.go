// Copyright 2026 The Pixie Authors
// SPDX-License-Identifier: Apache-2.0

package diskengine

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// BlockDevice is the single owner of one open file descriptor onto a
// disk — a real block device node in production, or a plain regular
// file when testing without hardware. All I/O goes through pread(2)
// and pwrite(2) so that concurrent readers never race over a shared
// seek offset the way they would through *os.File's Read/Write.
type BlockDevice struct {
	fd   int
	size int64
}

// Open opens path for reading and writing. size is discovered from
// the kernel via BLKGETSIZE64 when path is a block device node, and
// falls back to fstat's regular-file size otherwise (a disk image
// file used in tests or by the file-backed pixie-client target).
func Open(path string) (*BlockDevice, error) {
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("diskengine: opening %s: %w", path, err)
	}

	size, err := deviceSize(fd)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("diskengine: sizing %s: %w", path, err)
	}

	return &BlockDevice{fd: fd, size: size}, nil
}

func deviceSize(fd int) (int64, error) {
	if size, err := unix.IoctlGetInt(fd, unix.BLKGETSIZE64); err == nil {
		return int64(size), nil
	}

	var stat unix.Stat_t
	if err := unix.Fstat(fd, &stat); err != nil {
		return 0, fmt.Errorf("fstat: %w", err)
	}
	return stat.Size, nil
}

// Size returns the device's size in bytes.
func (d *BlockDevice) Size() int64 {
	return d.size
}

// ReadAt reads len(p) bytes starting at byte offset off.
func (d *BlockDevice) ReadAt(p []byte, off int64) (int, error) {
	n, err := unix.Pread(d.fd, p, off)
	if err != nil {
		return n, fmt.Errorf("diskengine: pread at %d: %w", off, err)
	}
	if n < len(p) {
		return n, fmt.Errorf("diskengine: short read at %d: got %d of %d bytes", off, n, len(p))
	}
	return n, nil
}

// WriteAt writes p starting at byte offset off.
func (d *BlockDevice) WriteAt(p []byte, off int64) (int, error) {
	total := 0
	for len(p) > 0 {
		n, err := unix.Pwrite(d.fd, p, off)
		if err != nil {
			return total, fmt.Errorf("diskengine: pwrite at %d: %w", off, err)
		}
		total += n
		p = p[n:]
		off += int64(n)
	}
	return total, nil
}

// Sync flushes pending writes to the underlying storage.
func (d *BlockDevice) Sync() error {
	return unix.Fsync(d.fd)
}

// Close closes the underlying file descriptor.
func (d *BlockDevice) Close() error {
	return unix.Close(d.fd)
}

// Copyright 2026 The Pixie Authors
// SPDX-License-Identifier: Apache-2.0

package diskengine

import (
	"encoding/binary"
)

// ext4Chunks returns the allocated byte ranges of an ext4 filesystem
// occupying [start, end) of the disk, or nil if the range does not
// hold a recognizable ext4 superblock. Ranges are relative to start.
//
// This mirrors the original client's superblock/block-group-descriptor
// walk: for each block group, either its data blocks are unallocated
// (BLOCK_UNINIT: only the superblock/descriptor blocks are emitted, and
// only for groups holding a superblock backup) or its allocation bitmap
// is read and walked bit by bit.
func ext4Chunks(dev Reader, start, end int64) []byteRange {
	if start+2048 > end {
		return nil
	}

	superblock := make([]byte, 1024)
	if _, err := dev.ReadAt(superblock, start+1024); err != nil {
		return nil
	}

	if binary.LittleEndian.Uint16(superblock[0x38:]) != 0xEF53 {
		return nil
	}

	featureIncompat := binary.LittleEndian.Uint32(superblock[0x60:])
	if featureIncompat&0x80 == 0 { // INCOMPAT_64BIT
		return nil
	}
	featureROCompat := binary.LittleEndian.Uint32(superblock[0x64:])
	if featureROCompat&0x1 == 0 { // RO_COMPAT_SPARSE_SUPER
		return nil
	}

	blocksCountLo := uint64(binary.LittleEndian.Uint32(superblock[0x4:]))
	blocksCountHi := uint64(binary.LittleEndian.Uint32(superblock[0x150:]))
	blocksCount := blocksCountLo | blocksCountHi<<32

	logBlockSize := binary.LittleEndian.Uint32(superblock[0x18:])
	blockSize := int64(1) << (10 + logBlockSize)

	blocksPerGroup := uint64(binary.LittleEndian.Uint32(superblock[0x20:]))
	if blocksPerGroup == 0 {
		return nil
	}
	groups := (blocksCount + blocksPerGroup - 1) / blocksPerGroup

	firstDataBlock := uint64(binary.LittleEndian.Uint32(superblock[0x14:]))
	descSize := uint64(binary.LittleEndian.Uint16(superblock[0xfe:]))
	if descSize == 0 {
		descSize = 32
	}
	reservedGDTBlocks := uint64(binary.LittleEndian.Uint16(superblock[0xce:]))

	blocksForSpecialGroup := 1 + (descSize*groups+uint64(blockSize)-1)/uint64(blockSize) + reservedGDTBlocks

	descTableSize := int64(descSize * groups)
	groupDescriptors := make([]byte, descTableSize)
	if _, err := dev.ReadAt(groupDescriptors, start+blockSize*int64(firstDataBlock+1)); err != nil {
		return nil
	}

	var ranges []byteRange
	bitmap := make([]byte, blockSize)

	for group := uint64(0); group < groups; group++ {
		desc := groupDescriptors[group*descSize : (group+1)*descSize]
		flags := binary.LittleEndian.Uint16(desc[0x12:])

		if flags&0x2 != 0 { // EXT4_BG_BLOCK_UNINIT
			if !hasSuperblock(group) {
				continue
			}
			for block := uint64(0); block < blocksForSpecialGroup; block++ {
				abs := group*blocksPerGroup + block
				if abs >= blocksCount {
					break
				}
				ranges = appendBlock(ranges, blockSize, abs)
			}
			continue
		}

		blockBitmapLo := uint64(binary.LittleEndian.Uint32(desc[0x0:]))
		blockBitmapHi := uint64(binary.LittleEndian.Uint32(desc[0x20:]))
		blockBitmap := blockBitmapLo | blockBitmapHi<<32

		if _, err := dev.ReadAt(bitmap, start+blockSize*int64(blockBitmap)); err != nil {
			return nil
		}
		for block := uint64(0); block < 8*uint64(blockSize); block++ {
			abs := group*blocksPerGroup + block
			if abs >= blocksCount {
				break
			}
			if bitmap[block/8]>>(block%8)&1 != 0 {
				ranges = appendBlock(ranges, blockSize, abs)
			}
		}
	}

	return coalesce(ranges)
}

// hasSuperblock reports whether ext4's sparse_super layout places a
// backup superblock in group (group 0 and 1, plus powers of 3, 5, 7).
func hasSuperblock(group uint64) bool {
	if group <= 1 {
		return true
	}
	for _, d := range []uint64{3, 5, 7} {
		p := uint64(1)
		for p < group {
			p *= d
		}
		if p == group {
			return true
		}
	}
	return false
}

func appendBlock(ranges []byteRange, blockSize int64, block uint64) []byteRange {
	return append(ranges, byteRange{start: int64(block) * blockSize, size: blockSize})
}

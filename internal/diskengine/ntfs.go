// Copyright 2026 The Pixie Authors
// SPDX-License-Identifier: Apache-2.0

package diskengine

import "encoding/binary"

// ntfsChunks returns the allocated byte ranges of an NTFS filesystem
// occupying [start, end), or nil if the boot sector or $Bitmap MFT
// record cannot be parsed — callers fall back to raw linear chunking
// in that case, per spec.md §9's best-effort filesystem awareness.
//
// This walks the $Bitmap file's non-resident data runs the same way
// the original client does: locate the $DATA attribute (type 0x80) in
// MFT record 6, then decode its run list to find where the
// cluster allocation bitmap itself lives on disk.
func ntfsChunks(dev Reader, start, end int64) (ranges []byteRange) {
	defer func() {
		if recover() != nil {
			ranges = nil
		}
	}()

	if end-start < 512 {
		return nil
	}

	bootSector := make([]byte, 512)
	if _, err := dev.ReadAt(bootSector, start); err != nil {
		return nil
	}
	if string(bootSector[3:11]) != "NTFS    " {
		return nil
	}

	bytesPerSector := int64(binary.LittleEndian.Uint16(bootSector[0x0b:]))
	sectorsPerCluster := signedClusterField(bootSector[0x0d])
	if sectorsPerCluster <= 0 {
		return nil
	}
	bytesPerCluster := bytesPerSector * sectorsPerCluster
	numClusters := (end - start + bytesPerCluster - 1) / bytesPerCluster

	bytesPerFileRecord := signedRecordField(bootSector[0x40], bytesPerCluster)
	if bytesPerFileRecord <= 0 {
		return nil
	}

	mftClusterNumber := int64(binary.LittleEndian.Uint64(bootSector[0x30:]))
	mftAddress := bytesPerCluster * mftClusterNumber

	bitmapEntryAddress := mftAddress + 6*bytesPerFileRecord
	bitmapEntry := make([]byte, 1024)
	if _, err := dev.ReadAt(bitmapEntry, start+bitmapEntryAddress); err != nil {
		return nil
	}

	attrOffset := int(binary.LittleEndian.Uint16(bitmapEntry[0x14:]))
	for binary.LittleEndian.Uint32(bitmapEntry[attrOffset:]) != 0x80 {
		length := binary.LittleEndian.Uint32(bitmapEntry[attrOffset+4:])
		if length == 0 {
			return nil
		}
		attrOffset += int(length)
	}

	if bitmapEntry[attrOffset+8] != 1 { // non-resident flag
		return nil
	}

	startVCN := binary.LittleEndian.Uint64(bitmapEntry[attrOffset+0x10:])
	lastVCN := binary.LittleEndian.Uint64(bitmapEntry[attrOffset+0x18:])
	dataRunOffset := attrOffset + int(binary.LittleEndian.Uint16(bitmapEntry[attrOffset+0x20:]))

	var clusterIndex int64
	buf := make([]byte, bytesPerCluster)

	for startVCN <= lastVCN {
		ctrl := bitmapEntry[dataRunOffset]
		if ctrl == 0 {
			break
		}
		lengthLen := int(ctrl & 0x0f)
		offsetLen := int(ctrl >> 4)

		runLength := int64(decodeRunField(bitmapEntry, dataRunOffset+1, lengthLen))
		runOffset := int64(decodeRunField(bitmapEntry, dataRunOffset+1+lengthLen, offsetLen))

		for i := int64(0); i < int64(runLength); i++ {
			addr := start + (int64(runOffset)+i)*bytesPerCluster
			if _, err := dev.ReadAt(buf, addr); err != nil {
				return nil
			}
			for _, b := range buf {
				for bit := 0; bit < 8; bit++ {
					if clusterIndex >= numClusters {
						break
					}
					if b>>uint(bit)&1 != 0 {
						ranges = append(ranges, byteRange{start: clusterIndex * bytesPerCluster, size: bytesPerCluster})
					}
					clusterIndex++
				}
			}
		}

		startVCN += uint64(runLength)
		dataRunOffset += 1 + lengthLen + offsetLen
	}

	return coalesce(ranges)
}

func signedClusterField(b byte) int64 {
	switch {
	case b <= 127:
		return int64(b)
	case b >= 225:
		return 1 << uint(256-int(b))
	default:
		return -1
	}
}

func signedRecordField(b byte, bytesPerCluster int64) int64 {
	switch {
	case b <= 127:
		return int64(b) * bytesPerCluster
	case b >= 225:
		return 1 << uint(256-int(b))
	default:
		return -1
	}
}

// decodeRunField reads a little-endian n-byte field (n up to 8) used
// by NTFS data run encoding — length and offset fields are variable
// width, packed byte-by-byte starting at offset.
func decodeRunField(b []byte, offset, n int) uint64 {
	var v uint64
	for i := 0; i < n; i++ {
		v |= uint64(b[offset+i]) << uint(8*i)
	}
	return v
}

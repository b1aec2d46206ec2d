// Copyright 2026 The Pixie Authors
// SPDX-License-Identifier: Apache-2.0

package diskengine

import (
	"sort"

	"github.com/pixie-fleet/pixie/internal/wire"
)

// byteRange is a half-open [start, start+size) interval, used
// internally while planning chunks before they are split to
// wire.CHUNK_SIZE boundaries.
type byteRange struct {
	start int64
	size  int64
}

// coalesce sorts ranges by start and merges adjacent ones, mirroring
// the original client's "collapse the gap between run i and run i+1
// when they touch" pass over both ext4 and NTFS bitmap walks.
func coalesce(ranges []byteRange) []byteRange {
	if len(ranges) == 0 {
		return nil
	}
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].start < ranges[j].start })

	merged := []byteRange{ranges[0]}
	for _, r := range ranges[1:] {
		last := &merged[len(merged)-1]
		if last.start+last.size == r.start {
			last.size += r.size
		} else {
			merged = append(merged, r)
		}
	}
	return merged
}

// planPartition returns the allocated ranges (relative to the
// partition's own start) of one partition spanning [start, end) of
// the disk, trying ext4, then NTFS, and falling back to treating the
// whole partition as one raw range.
func planPartition(dev Reader, start, end int64) []byteRange {
	if ranges := ext4Chunks(dev, start, end); ranges != nil {
		return ranges
	}
	if ranges := ntfsChunks(dev, start, end); ranges != nil {
		return ranges
	}
	return []byteRange{{start: 0, size: end - start}}
}

// Plan computes the chunk list for a whole disk: GPT partitions are
// chunked filesystem-aware where recognized, unpartitioned space (and
// disks with no GPT at all) is chunked raw-linear, adjacent ranges
// coalesce, and the result is split at wire.CHUNK_SIZE boundaries —
// aligned to absolute disk offsets, not partition-relative ones, so
// two images sharing identical unchanged regions produce identical
// chunk boundaries.
func Plan(dev Reader, diskSize int64) ([]byteRange, error) {
	partitions, err := ReadPartitions(dev, diskSize)
	if err != nil {
		return nil, err
	}
	if partitions == nil {
		return splitToChunkSize(planPartition(dev, 0, diskSize)), nil
	}

	sort.Slice(partitions, func(i, j int) bool { return partitions[i].Start < partitions[j].Start })

	var all []byteRange
	pos := int64(0)
	for _, p := range partitions {
		begin := int64(p.Start)
		end := begin + int64(p.Size)

		if pos < begin {
			all = append(all, byteRange{start: pos, size: begin - pos})
		}

		for _, r := range planPartition(dev, begin, end) {
			all = append(all, byteRange{start: r.start + begin, size: r.size})
		}
		pos = end
	}
	if pos < diskSize {
		all = append(all, byteRange{start: pos, size: diskSize - pos})
	}

	return splitToChunkSize(coalesce(all)), nil
}

// splitToChunkSize splits (already-coalesced, disjoint, ascending)
// ranges so that no resulting range crosses a wire.CHUNK_SIZE-aligned
// disk offset — matching the original client's split points
// (`(start/CHUNK_SIZE + 1) * CHUNK_SIZE`).
func splitToChunkSize(ranges []byteRange) []byteRange {
	const chunkSize = wire.CHUNK_SIZE
	var out []byteRange
	for _, r := range ranges {
		start, end := r.start, r.start+r.size
		for start < end {
			boundary := (start/chunkSize + 1) * chunkSize
			split := end
			if boundary < split {
				split = boundary
			}
			out = append(out, byteRange{start: start, size: split - start})
			start = split
		}
	}
	return out
}

// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

// Package slab implements the bump allocator and process-wide recycling
// pool that back the hash join core's row records. Geometry is grounded
// on Voskan-arena-cache's generation/arena split (an arena is a flat
// buffer values are bump-allocated into; rotation, not per-value free,
// reclaims it) and the pooled-handle idiom in the teacher's
// pkg/storage/spanlatch/manager.go (a single mutex guarding acquire /
// release of a shared resource).
package slab

import (
	"github.com/ericsun2/vecjoin/pkg/sql/colexec/colexecerror"
)

const (
	// Size is the fixed size of a slab in bytes: 128 KiB.
	Size = 128 * 1024
	// offsetBits is the number of low bits of an encoded address reserved
	// for the byte offset within a slab (2^17 == 128 KiB).
	offsetBits = 17
	// offsetMask isolates the offset portion of an encoded address.
	offsetMask = (int64(1) << offsetBits) - 1
	// None is the sentinel encoded address denoting "no row".
	None int64 = -1
)

// EncodeAddr packs a slab index and byte offset into a 63-bit encoded row
// address, per the layout in the data model: high bits above bit 17 are
// the slab index, the low 17 bits are the byte offset.
func EncodeAddr(slabIdx int, offset int) int64 {
	if offset < 0 || offset >= Size {
		colexecerror.InternalPanicf("slab: offset %d out of range [0,%d)", offset, Size)
	}
	return (int64(slabIdx) << offsetBits) | int64(offset)
}

// DecodeAddr unpacks an encoded row address into its slab index and byte
// offset.
func DecodeAddr(addr int64) (slabIdx int, offset int) {
	return int(addr >> offsetBits), int(addr & offsetMask)
}

// Allocator bump-allocates fixed-size row records out of 128 KiB slabs
// drawn from a Pool. It never frees individual rows; the only way to
// reclaim memory is Close, which returns every acquired slab to the pool.
type Allocator struct {
	pool *Pool

	slabs []*[Size]byte
	fill  []int
	// current is the index into slabs of the slab currently being filled.
	current int
}

// NewAllocator returns an Allocator drawing its slabs from pool.
func NewAllocator(pool *Pool) *Allocator {
	return &Allocator{pool: pool, current: -1}
}

// AllocBytes reserves n contiguous bytes and returns the encoded address
// of the first byte. n must not exceed Size.
func (a *Allocator) AllocBytes(n int) int64 {
	if n <= 0 || n > Size {
		colexecerror.InternalPanicf("slab: invalid allocation size %d", n)
	}
	if a.current < 0 || a.fill[a.current]+n > Size {
		a.growSlab(n)
	}
	offset := a.fill[a.current]
	a.fill[a.current] = offset + n
	return EncodeAddr(a.current, offset)
}

// growSlab acquires a fresh slab from the pool and makes it current,
// growing the parallel slabs/fill arrays by doubling as needed.
func (a *Allocator) growSlab(n int) {
	buf := a.pool.acquire()
	idx := len(a.slabs)
	if idx == cap(a.slabs) {
		newCap := 2 * (idx + 1)
		grownSlabs := make([]*[Size]byte, idx, newCap)
		copy(grownSlabs, a.slabs)
		grownFill := make([]int, idx, newCap)
		copy(grownFill, a.fill)
		a.slabs = grownSlabs
		a.fill = grownFill
	}
	a.slabs = append(a.slabs, buf)
	a.fill = append(a.fill, n)
	a.current = idx
}

// Bytes returns the byte slice backing the row at addr, positioned so
// that the row itself starts at the returned offset into the slice.
func (a *Allocator) Bytes(addr int64) (buf *[Size]byte, offset int) {
	slabIdx, offset := DecodeAddr(addr)
	if slabIdx < 0 || slabIdx >= len(a.slabs) {
		colexecerror.InternalPanicf("slab: address %d references unallocated slab %d", addr, slabIdx)
	}
	return a.slabs[slabIdx], offset
}

// WalkRows calls fn with the encoded address of every fixed-size record
// of rowSize bytes allocated so far, in slab/offset order. It is used by
// Finalize to compute hashes and insert rows after all build batches
// have been pushed.
func (a *Allocator) WalkRows(rowSize int, fn func(addr int64)) {
	for slabIdx, fill := range a.fill {
		for off := 0; off+rowSize <= fill; off += rowSize {
			fn(EncodeAddr(slabIdx, off))
		}
	}
}

// NumSlabs reports how many slabs this allocator currently holds. Used by
// tests asserting pool-return conservation on Close.
func (a *Allocator) NumSlabs() int {
	return len(a.slabs)
}

// Close returns every slab held by this allocator back to its pool and
// drops all internal references. The allocator is unusable afterwards.
func (a *Allocator) Close() {
	for _, buf := range a.slabs {
		a.pool.release(buf)
	}
	a.slabs = nil
	a.fill = nil
	a.current = -1
}

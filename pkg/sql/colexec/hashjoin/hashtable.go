// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

// Package hashjoin is the core of a vectorized, cache-conscious hash-join
// engine: a fixed-layout slab allocator, a group-scan open-addressing
// directory with 8-way buckets, a per-bucket chained overflow list
// threaded through the build rows, an optional probabilistic pre-filter,
// and a software-pipelined probe loop. It is grounded on the teacher's
// hash-join core (pkg/sql/colexec/hashjoiner.go's bucket-chained
// hashTable) and on the Swiss-table-style group-scan match trick found in
// thepudds-swisstable/map.go and the CLHT-derived hashmap vendored into
// grafana-tempo (github.com/maypok86/otter/v2/internal/hashmap).
package hashjoin

import (
	"math/bits"

	"github.com/ericsun2/vecjoin/pkg/sql/colexec/colexecerror"
	"github.com/ericsun2/vecjoin/pkg/sql/colexec/colexeclog"
	"github.com/ericsun2/vecjoin/pkg/sql/colexec/slab"
)

const (
	// rowSize is the fixed 32-byte layout of a row record: k1, k2, d1,
	// next, each an 8-byte int64 field.
	rowSize = 32

	offK1   = 0
	offK2   = 8
	offD1   = 16
	offNext = 24

	// minDirectoryEntries is the floor applied to the directory's bucket
	// count B (so at least 1024 buckets, 8192 slots) -- see directorySize.
	minDirectoryEntries = 1024

	// loadFactorNum/Den express the 1.3x target load factor from the
	// spec as an integer ratio to avoid floating point in the sizing
	// path.
	loadFactorNum = 13
	loadFactorDen = 10

	// bucketWidth is the number of slots processed by one group-scan: 8
	// status bytes packed into a single 64-bit word.
	bucketWidth = 8

	// allBytesHigh and allBytesLow are the classic SWAR "has a zero
	// byte" constants, broadcast across all 8 bytes of a word.
	allBytesLow  uint64 = 0x0101010101010101
	allBytesHigh uint64 = 0x8080808080808080

	// emptyStatusWord is every slot marked empty: high bit set in all 8
	// bytes.
	emptyStatusWord uint64 = allBytesHigh

	// mixConstant is the 64-bit odd constant used twice by the hash
	// mixer (the well-known MurmurHash64A multiplier).
	mixConstant uint64 = 0xC6A4A7935BD1E995
)

// mix is the avalanching 64-bit mixer the spec normatively requires:
// mix(x) = ((x*K) ^ ((x*K) >> 47)) * K.
func mix(x uint64) uint64 {
	x *= mixConstant
	x ^= x >> 47
	x *= mixConstant
	return x
}

// Hash computes the composite-key hash exactly as specified: mix(k1),
// then mix(k2) multiplied once more by K, XORed together and multiplied
// by K again. This exact sequence is normative; tests hash known (k1,k2)
// pairs against it.
func Hash(k1, k2 int64) uint64 {
	h := mix(uint64(k1))
	g := mix(uint64(k2)) * mixConstant
	return (h ^ g) * mixConstant
}

// matchByte returns a bitmask with the high bit of byte p set for every
// byte p of status that is occupied (its own high bit clear) and whose low
// 7 bits equal tag. This is the bit-parallel "equals broadcast byte" trick
// described in the spec. The borrow of the subtraction can also flag an
// occupied byte sitting above a true match (one whose tag differs from
// tag only in its lowest bit), so every hit must be verified by a key
// comparison. Empty bytes (high bit set) can never register a hit here
// because XORing with a tag whose high bit is 0 cannot clear their high
// bit, which the haszero step requires.
func matchByte(status uint64, tag uint64) uint64 {
	field := tag * allBytesLow
	x := status ^ field
	return (x - allBytesLow) & ^x & allBytesHigh
}

// emptyMask returns a bitmask with the high bit of byte p set iff slot p
// is empty.
func emptyMask(status uint64) uint64 {
	return status & allBytesHigh
}

// lowestSet returns the byte position (0..7) of the lowest set byte in a
// matchByte/emptyMask-style mask, and whether any bit was set at all.
func lowestSet(mask uint64) (pos int, ok bool) {
	if mask == 0 {
		return 0, false
	}
	return bits.TrailingZeros64(mask) / 8, true
}

// clearLowest clears the lowest set byte in a matchByte/emptyMask-style
// mask, for walking a bucket's remaining candidates.
func clearLowest(mask uint64) uint64 {
	pos, _ := lowestSet(mask)
	return mask &^ (uint64(0xFF) << uint(pos*8))
}

// Stats are hot-path counters exposed for tests and for ambient
// telemetry. They are plain fields, not atomics: the operator is
// single-threaded per the spec's concurrency model, matching how
// Voskan-arena-cache only reaches for atomic.Uint64 once a structure is
// genuinely shared across goroutines.
type Stats struct {
	// PreFilterRejections counts probe candidates that were short
	// circuited by the pre-filter without ever touching the directory
	// (scenario F in the spec).
	PreFilterRejections int64
	// BucketProbes counts how many bucket group-scans were performed
	// during probing, for rough throughput diagnostics.
	BucketProbes int64
}

// Table is the HashTable of the spec: it owns the row-record slab
// allocator, the open-addressing directory and status arrays, and the
// optional pre-filter. Rows are fixed 32-byte records; the directory and
// status arrays are built once at Finalize and are immutable afterwards.
type Table struct {
	alloc *slab.Allocator

	// table holds one encoded row address per occupied directory slot;
	// length is 8*B. status holds one packed status word per bucket;
	// length is B.
	table  []int64
	status []uint64

	// statusMask is B-1; B is the directory's bucket count, a power of
	// two. statusMask == 0 with entryCount == 0 is the "empty table"
	// sentinel from the spec (setSize(0)).
	statusMask uint64

	entryCount int64

	useBloomFilter bool
	preFilter      []uint64

	Stats Stats
}

// New returns an empty Table that allocates row records from alloc and,
// if useBloomFilter is set, populates a pre-filter alongside the
// directory during Insert.
func New(alloc *slab.Allocator, useBloomFilter bool) *Table {
	return &Table{alloc: alloc, useBloomFilter: useBloomFilter}
}

// IsEmpty reports whether the table was finalized over zero entries, in
// which case probing must short circuit to "no matches" without touching
// the (absent) directory.
func (t *Table) IsEmpty() bool {
	return t.statusMask == 0 && t.entryCount == 0
}

// AllocRow reserves space for a new 32-byte row record and returns its
// encoded address. The caller is responsible for writing k1, k2, d1, and
// next via SetRow before the record is read back.
func (t *Table) AllocRow() int64 {
	addr := t.alloc.AllocBytes(rowSize)
	t.entryCount++
	return addr
}

// SetRow writes a row record's fields at addr.
func (t *Table) SetRow(addr int64, k1, k2, d1, next int64) {
	buf, off := t.alloc.Bytes(addr)
	putInt64(buf, off+offK1, k1)
	putInt64(buf, off+offK2, k2)
	putInt64(buf, off+offD1, d1)
	putInt64(buf, off+offNext, next)
}

// Row reads a row record's fields at addr.
func (t *Table) Row(addr int64) (k1, k2, d1, next int64) {
	buf, off := t.alloc.Bytes(addr)
	return getInt64(buf, off+offK1), getInt64(buf, off+offK2), getInt64(buf, off+offD1), getInt64(buf, off+offNext)
}

// SetNext updates only the next-chain field of the row record at addr,
// used to link a newly inserted duplicate onto an existing chain head.
func (t *Table) SetNext(addr int64, next int64) {
	buf, off := t.alloc.Bytes(addr)
	putInt64(buf, off+offNext, next)
}

// EntryCount returns the number of row records allocated so far (build
// side) or finalized over (after Finalize).
func (t *Table) EntryCount() int64 {
	return t.entryCount
}

// StatusMask exposes B-1 for tests asserting the directory sizing
// invariant.
func (t *Table) StatusMask() uint64 {
	return t.statusMask
}

// directorySize computes B = smallest power of two >= max(1024, ceil(1.3
// * entries)), per the spec's sizing rule. entries counts rows; B is a
// bucket count used as-is by Finalize (8*B slots, B status words), so the
// 1024 floor applies to buckets.
func directorySize(entries int64) uint64 {
	target := (entries*loadFactorNum + loadFactorDen - 1) / loadFactorDen
	if target < minDirectoryEntries {
		target = minDirectoryEntries
	}
	b := uint64(1)
	for b < uint64(target) {
		b <<= 1
	}
	return b
}

// Finalize sizes and allocates the directory and status arrays for the
// entryCount rows accumulated so far. If entryCount is zero, the table is
// left in the "empty" state and no probe will ever reach the directory.
func (t *Table) Finalize() {
	if t.entryCount == 0 {
		t.statusMask = 0
		colexeclog.WithComponent("hashtable").Debug("finalize: empty build side")
		return
	}

	b := directorySize(t.entryCount)
	t.table = make([]int64, bucketWidth*b)
	t.status = make([]uint64, b)
	for i := range t.status {
		t.status[i] = emptyStatusWord
	}
	t.statusMask = b - 1

	if t.useBloomFilter {
		size := uint64(t.entryCount)/8 + 1
		t.preFilter = make([]uint64, size)
	}

	colexeclog.WithComponent("hashtable").
		WithField("entries", t.entryCount).
		WithField("buckets", b).
		Debug("finalize: directory sized")
}

// populatePreFilter sets the four bits the spec's pre-filter layout
// derives from hash h: bits (h>>32)&63, (h>>38)&63, (h>>44)&63, (h>>50)&63
// of the word at index h mod len(preFilter).
func (t *Table) populatePreFilter(h uint64) {
	if t.preFilter == nil {
		return
	}
	word := &t.preFilter[h%uint64(len(t.preFilter))]
	*word |= uint64(1) << ((h >> 32) & 63)
	*word |= uint64(1) << ((h >> 38) & 63)
	*word |= uint64(1) << ((h >> 44) & 63)
	*word |= uint64(1) << ((h >> 50) & 63)
}

// MayContain tests the pre-filter for h, returning true if all four of
// its bits are set (meaning h may be present) or if no pre-filter exists
// (in which case every hash "may" be present and the directory must be
// consulted).
func (t *Table) MayContain(h uint64) bool {
	if t.preFilter == nil {
		return true
	}
	word := t.preFilter[h%uint64(len(t.preFilter))]
	mask := uint64(1)<<((h>>32)&63) | uint64(1)<<((h>>38)&63) | uint64(1)<<((h>>44)&63) | uint64(1)<<((h>>50)&63)
	return word&mask == mask
}

// Insert links addr into the directory for a row whose composite-key
// hash is h, per the 8-way bucket scan described in the spec: a match
// scan first looks for an existing chain head with the same key, in
// which case addr becomes the new head of that chain (newest-first) and
// the directory slot is repointed at it; an empty scan claims a fresh
// slot if no match was found.
//
// sameKey is called to verify candidate slots; Insert never trusts a
// tag match alone.
func (t *Table) Insert(h uint64, addr int64, sameKey func(existingAddr int64) bool) {
	if t.useBloomFilter {
		t.populatePreFilter(h)
	}

	bucket := h & t.statusMask
	tag := (h >> 57) & 0x7F

	for {
		st := t.status[bucket]
		base := bucket * bucketWidth

		if hits := matchByte(st, tag); hits != 0 {
			for m := hits; m != 0; m = clearLowest(m) {
				p, _ := lowestSet(m)
				existing := t.table[base+uint64(p)]
				if sameKey(existing) {
					t.SetNext(addr, existing)
					t.table[base+uint64(p)] = addr
					return
				}
			}
		}

		if empty := emptyMask(st); empty != 0 {
			p, _ := lowestSet(empty)
			t.status[bucket] = (st &^ (uint64(0xFF) << uint(p*8))) | (tag << uint(p*8))
			t.table[base+uint64(p)] = addr
			return
		}

		bucket = (bucket + 1) & t.statusMask
	}
}

// lookupFirst returns the bucket group-scan state needed to begin
// checking for a key with hash h: the bucket index, its status word, the
// H7 tag, the match-byte mask, and the empty-byte mask. Shared by the
// scalar and 4-wide probe loops.
func (t *Table) lookupFirst(h uint64) (bucket uint64, tag uint64, hits uint64, empty uint64) {
	t.Stats.BucketProbes++
	bucket = h & t.statusMask
	tag = (h >> 57) & 0x7F
	st := t.status[bucket]
	hits = matchByte(st, tag)
	empty = emptyMask(st)
	return
}

// advanceBucket moves to the next bucket in the linear-probe sequence and
// reloads its match/empty masks for tag.
func (t *Table) advanceBucket(bucket uint64, tag uint64) (nextBucket uint64, hits uint64, empty uint64) {
	t.Stats.BucketProbes++
	nextBucket = (bucket + 1) & t.statusMask
	st := t.status[nextBucket]
	hits = matchByte(st, tag)
	empty = emptyMask(st)
	return
}

// EntryAt returns the encoded row address stored at the given bucket and
// in-bucket position.
func (t *Table) EntryAt(bucket uint64, pos int) int64 {
	return t.table[bucket*bucketWidth+uint64(pos)]
}

// walkRows visits every allocated row record in slab/offset order,
// calling fn with its address and key columns. Used by Builder.Finalize
// to compute hashes and insert rows after all build batches are pushed.
func (t *Table) walkRows(fn func(addr int64, k1, k2 int64)) {
	t.alloc.WalkRows(rowSize, func(addr int64) {
		k1, k2, _, _ := t.Row(addr)
		fn(addr, k1, k2)
	})
}

// Close releases the row-record slab allocator back to its pool and
// drops the directory. The Table is unusable afterwards.
func (t *Table) Close() {
	t.alloc.Close()
	t.table = nil
	t.status = nil
	t.preFilter = nil
}

func putInt64(buf *[slab.Size]byte, off int, v int64) {
	if off < 0 || off+8 > slab.Size {
		colexecerror.InternalPanicf("hashjoin: row field offset %d out of range", off)
	}
	u := uint64(v)
	buf[off+0] = byte(u)
	buf[off+1] = byte(u >> 8)
	buf[off+2] = byte(u >> 16)
	buf[off+3] = byte(u >> 24)
	buf[off+4] = byte(u >> 32)
	buf[off+5] = byte(u >> 40)
	buf[off+6] = byte(u >> 48)
	buf[off+7] = byte(u >> 56)
}

func getInt64(buf *[slab.Size]byte, off int) int64 {
	if off < 0 || off+8 > slab.Size {
		colexecerror.InternalPanicf("hashjoin: row field offset %d out of range", off)
	}
	u := uint64(buf[off+0]) |
		uint64(buf[off+1])<<8 |
		uint64(buf[off+2])<<16 |
		uint64(buf[off+3])<<24 |
		uint64(buf[off+4])<<32 |
		uint64(buf[off+5])<<40 |
		uint64(buf[off+6])<<48 |
		uint64(buf[off+7])<<56
	return int64(u)
}

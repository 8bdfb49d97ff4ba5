// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

package hashjoin

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ericsun2/vecjoin/pkg/sql/colexec/slab"
)

// TestHashZero pins mix's one exactly hand-checkable fixed point: mix(0)
// multiplies, shifts, and XORs zero at every step, so Hash(0, 0) must be
// exactly zero regardless of the mix constant's value.
func TestHashZero(t *testing.T) {
	require.Equal(t, uint64(0), Hash(0, 0))
}

func TestHashDeterministic(t *testing.T) {
	require.Equal(t, Hash(123, 456), Hash(123, 456))
	require.NotEqual(t, Hash(123, 456), Hash(456, 123), "swapping k1/k2 should not collide for an arbitrary pair")
}

func TestDirectorySize(t *testing.T) {
	cases := []struct {
		entries int64
		want    uint64
	}{
		{0, 1024},
		{100, 1024},
		{1024, 2048},
		{10000, 16384},
	}
	for _, c := range cases {
		require.Equal(t, c.want, directorySize(c.entries), "entries=%d", c.entries)
	}
}

func TestDirectorySizeIsAlwaysPowerOfTwo(t *testing.T) {
	for _, entries := range []int64{0, 1, 7, 1023, 1024, 1025, 999999} {
		b := directorySize(entries)
		require.Equal(t, uint64(0), b&(b-1), "entries=%d produced non-power-of-two %d", entries, b)
	}
}

// TestMatchByteHandTracedVectors exercises matchByte/emptyMask against
// status words whose carries were traced by hand byte-by-byte, since the
// SWAR trick's correctness hinges on borrow propagation across bytes that
// a purely symbolic description can't make obvious.
func TestMatchByteHandTracedVectors(t *testing.T) {
	// Slot 0 holds tag 5, slots 1-7 hold tag 0 (all occupied, no empties).
	status := uint64(0x05)

	hits := matchByte(status, 5)
	pos, ok := lowestSet(hits)
	require.True(t, ok)
	require.Equal(t, 0, pos)
	require.Equal(t, uint64(0), clearLowest(hits), "only slot 0 should match tag 5")

	require.Equal(t, uint64(0), matchByte(status, 3), "tag 3 is absent from every slot")
	require.Equal(t, uint64(0), emptyMask(status), "no slot in this word is empty")
}

func TestMatchByteNeverMatchesEmptySlot(t *testing.T) {
	for tag := uint64(0); tag < 0x80; tag++ {
		require.Equal(t, uint64(0), matchByte(emptyStatusWord, tag), "tag=%d", tag)
	}
}

func TestEmptyMaskOnFullyEmptyWord(t *testing.T) {
	require.Equal(t, emptyStatusWord, emptyMask(emptyStatusWord))
}

func TestLowestSetAndClearLowest(t *testing.T) {
	mask := uint64(0x80) | uint64(0x80)<<24 | uint64(0x80)<<56

	pos, ok := lowestSet(mask)
	require.True(t, ok)
	require.Equal(t, 0, pos)

	mask = clearLowest(mask)
	pos, ok = lowestSet(mask)
	require.True(t, ok)
	require.Equal(t, 3, pos)

	mask = clearLowest(mask)
	pos, ok = lowestSet(mask)
	require.True(t, ok)
	require.Equal(t, 7, pos)

	mask = clearLowest(mask)
	_, ok = lowestSet(mask)
	require.False(t, ok)
}

func TestLowestSetOnZeroMask(t *testing.T) {
	pos, ok := lowestSet(0)
	require.False(t, ok)
	require.Equal(t, 0, pos)
}

// TestMayContainRejectsDefiniteAbsence drives the pre-filter directly
// with chosen hash values rather than through Hash(k1,k2), so the bit
// positions each hash sets/queries are exactly known rather than
// depending on the 64-bit mixer's output for an arbitrary key.
func TestMayContainRejectsDefiniteAbsence(t *testing.T) {
	pool := slab.NewPool()
	alloc := slab.NewAllocator(pool)
	tbl := New(alloc, true /* useBloomFilter */)

	addr := tbl.AllocRow()
	tbl.SetRow(addr, 1, 1, 100, slab.None)
	tbl.Finalize()

	// Hash 0 sets bits (0>>32)&63 four times over, i.e. only bit 0 of
	// word 0 (len(preFilter) == 1 for a single entry, so every hash
	// lands on the same word).
	tbl.Insert(0, addr, func(int64) bool { return true })
	require.True(t, tbl.MayContain(0))

	// h2 additionally requires bit 1 of the same word, which was never
	// set, so MayContain must prove it absent.
	h2 := uint64(1) << 32
	require.False(t, tbl.MayContain(h2))
}

func TestMayContainWithNoPreFilterAlwaysTrue(t *testing.T) {
	pool := slab.NewPool()
	alloc := slab.NewAllocator(pool)
	tbl := New(alloc, false /* useBloomFilter */)
	addr := tbl.AllocRow()
	tbl.SetRow(addr, 1, 1, 100, slab.None)
	tbl.Finalize()
	tbl.Insert(Hash(1, 1), addr, func(int64) bool { return true })

	require.True(t, tbl.MayContain(12345))
}

// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

// Package coldata provides the minimal columnar batch representation the
// hash join core is compiled against. The full columnar block/decoder
// abstraction lives in the surrounding query engine and is out of scope
// here; this package is the seam a real engine substitutes its own
// decoder behind.
package coldata

// BatchSize is the maximum number of logical rows carried by a single
// input or output batch.
const BatchSize = 1024

// Int64Column is a decoded int64 vector together with optional null and
// dictionary-remap side channels, mirroring what a BlockDecoder yields for
// a single column: a flat longs[] plus an optional valueIsNull[] and an
// optional rowNumberMap[] (present when the source block is
// dictionary/RLE-compressed, so physical index = rowNumberMap[logical]).
type Int64Column struct {
	Values []int64
	// Nulls is nil when the column has no nulls in this batch.
	Nulls []bool
	// RowMap remaps logical row index to physical index into Values/Nulls.
	// Nil when IsIdentityMap is true.
	RowMap        []int
	IsIdentityMap bool
}

// Len returns the logical row count described by the column.
func (c *Int64Column) Len() int {
	if c.RowMap != nil {
		return len(c.RowMap)
	}
	return len(c.Values)
}

// physical returns the underlying storage index for logical row i.
func (c *Int64Column) physical(i int) int {
	if c.IsIdentityMap || c.RowMap == nil {
		return i
	}
	return c.RowMap[i]
}

// At returns the value and null-ness of logical row i.
func (c *Int64Column) At(i int) (v int64, isNull bool) {
	p := c.physical(i)
	if c.Nulls != nil && c.Nulls[p] {
		return 0, true
	}
	return c.Values[p], false
}

// Batch is a columnar block of up to three BIGINT columns: two join keys
// (K1, K2) and, on the build side, one payload (D1). Length is the
// logical row count; it may be smaller than len(K1.Values) when a
// selection vector narrows the batch, which this minimal seam models via
// RowMap rather than a separate Sel slice.
type Batch struct {
	K1     Int64Column
	K2     Int64Column
	D1     Int64Column
	Length int
}

// OutputBatch is the shape ProbePhase.Pull emits: a probe-row index
// (ResultMap) paired with the matching build payload (Result1).
type OutputBatch struct {
	ResultMap []int
	Result1   []int64
}

// Reset truncates an OutputBatch for reuse without reallocating.
func (b *OutputBatch) Reset() {
	b.ResultMap = b.ResultMap[:0]
	b.Result1 = b.Result1[:0]
}

// Len returns the number of rows currently held.
func (b *OutputBatch) Len() int {
	return len(b.ResultMap)
}

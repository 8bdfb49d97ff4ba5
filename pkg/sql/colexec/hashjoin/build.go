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
	"github.com/ericsun2/vecjoin/pkg/col/coldata"
	"github.com/ericsun2/vecjoin/pkg/sql/colexec/colexeclog"
	"github.com/ericsun2/vecjoin/pkg/sql/colexec/slab"
)

// insertRunSize bounds how many freshly-built rows are hashed and
// inserted together in one pass over the batch inserter, matching the
// "runs of up to 1024" the spec's Finalize step describes.
const insertRunSize = coldata.BatchSize

// Builder is the BuildPhase of the spec: it decodes build batches,
// appends row records into a Table, and on Finalize walks every
// allocated row to compute its hash and insert it into the table's
// directory. Grounded on the teacher's hashJoinEqOp.build/hj.ht.build
// call, generalized from cockroach's arbitrary-typed equality columns
// down to the fixed (BIGINT,BIGINT,BIGINT) shape this core supports.
type Builder struct {
	table   *Table
	decoder coldata.BlockDecoder

	// addrs and hashes buffer up to insertRunSize freshly allocated rows
	// awaiting insertion, so Finalize's walk happens in bounded runs
	// rather than one pass per row.
	addrs  [insertRunSize]int64
	hashes [insertRunSize]uint64
	n      int
}

// NewBuilder returns a Builder that allocates rows from alloc via a fresh
// Table and decodes input batches with decoder.
func NewBuilder(alloc *slab.Allocator, decoder coldata.BlockDecoder, useBloomFilter bool) *Builder {
	return &Builder{
		table:   New(alloc, useBloomFilter),
		decoder: decoder,
	}
}

// Table returns the Table being built, for handing off to a ProbePhase
// once Finalize has run.
func (b *Builder) Table() *Table {
	return b.table
}

// Push decodes one build batch and appends a row record for every row
// whose k1 and k2 are both non-null; rows with a null key are dropped
// per the spec's NULL-never-matches-NULL semantics and contribute
// nothing to the table.
func (b *Builder) Push(batch *coldata.Batch) {
	k1 := b.decoder.DecodeK1(batch)
	k2 := b.decoder.DecodeK2(batch)
	d1 := b.decoder.DecodeD1(batch)

	for i := 0; i < batch.Length; i++ {
		k1v, k1Null := k1.At(i)
		if k1Null {
			continue
		}
		k2v, k2Null := k2.At(i)
		if k2Null {
			continue
		}
		d1v, _ := d1.At(i)

		addr := b.table.AllocRow()
		b.table.SetRow(addr, k1v, k2v, d1v, slab.None)
	}
}

// Finalize sizes the table's directory for the accumulated row count and
// inserts every allocated row, walking slab/offset order in bounded runs
// and computing each row's hash immediately before insertion.
func (b *Builder) Finalize() *Table {
	b.table.Finalize()
	if b.table.IsEmpty() {
		return b.table
	}

	colexeclog.WithComponent("build").
		WithField("rows", b.table.EntryCount()).
		Debug("inserting build rows")

	b.n = 0
	b.table.walkRows(func(addr int64, k1, k2 int64) {
		b.addrs[b.n] = addr
		b.hashes[b.n] = Hash(k1, k2)
		b.n++
		if b.n == insertRunSize {
			b.flush()
		}
	})
	b.flush()

	return b.table
}

// flush inserts the currently buffered run of (hash, addr) pairs into the
// directory and resets the run.
func (b *Builder) flush() {
	for i := 0; i < b.n; i++ {
		addr := b.addrs[i]
		h := b.hashes[i]
		k1, k2, _, _ := b.table.Row(addr)
		b.table.Insert(h, addr, func(existing int64) bool {
			ek1, ek2, _, _ := b.table.Row(existing)
			return ek1 == k1 && ek2 == k2
		})
	}
	b.n = 0
}

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
	"github.com/ericsun2/vecjoin/pkg/sql/colexec/colexecerror"
	"github.com/ericsun2/vecjoin/pkg/sql/colexec/slab"
)

// Prober is the ProbePhase of the spec. It holds per-probe-batch state
// (decoded columns, hashes, the post-null/pre-filter candidate list, and
// an in-progress chain walk) and emits matched (probeIdx, d1) pairs in
// output batches bounded by maxResults. Grounded on the teacher's
// hashJoinProber, generalized from cockroach's multi-column, arbitrary-
// typed probe to the fixed (BIGINT,BIGINT) composite key this core
// supports, and specialized to a lazily-pulled stream rather than a
// single eager batch-in/batch-out call.
type Prober struct {
	table   *Table
	decoder coldata.BlockDecoder

	maxResults int

	k1, k2 coldata.Int64Column

	hashes        []uint64
	candidates    []int
	candidateFill int
	currentProbe  int
	currentResult int64

	out coldata.OutputBatch
}

// NewProber returns a Prober that probes table, decoding probe batches
// with decoder and emitting output batches of at most maxResults rows.
func NewProber(table *Table, decoder coldata.BlockDecoder, maxResults int) *Prober {
	return &Prober{
		table:         table,
		decoder:       decoder,
		maxResults:    maxResults,
		hashes:        make([]uint64, coldata.BatchSize),
		candidates:    make([]int, 0, coldata.BatchSize),
		currentResult: slab.None,
	}
}

// NeedsInput reports whether the prober has no in-progress chain walk and
// has consumed every candidate from the last pushed batch, i.e. it is
// safe (and necessary) to Push another probe batch.
func (p *Prober) NeedsInput() bool {
	return p.currentResult == slab.None && p.currentProbe == p.candidateFill
}

// Push decodes a probe batch's key columns, builds the candidate list
// (rows with non-null k1 and k2), computes each candidate's hash, and --
// if the table has a pre-filter -- drops candidates the filter proves
// cannot match. It is a programmer error to Push while a previous batch
// has not been fully drained.
func (p *Prober) Push(batch *coldata.Batch) {
	if !p.NeedsInput() {
		colexecerror.InternalPanicf("hashjoin: probe batch pushed before the previous one was drained")
	}

	p.k1 = p.decoder.DecodeK1(batch)
	p.k2 = p.decoder.DecodeK2(batch)

	p.candidates = p.candidates[:0]
	p.currentProbe = 0
	p.currentResult = slab.None

	if p.table.IsEmpty() {
		// Nothing can ever match; don't bother computing hashes or
		// touching the (absent) directory.
		p.candidateFill = 0
		return
	}

	for i := 0; i < batch.Length; i++ {
		k1v, k1Null := p.k1.At(i)
		if k1Null {
			continue
		}
		k2v, k2Null := p.k2.At(i)
		if k2Null {
			continue
		}
		h := Hash(k1v, k2v)
		p.hashes[i] = h
		if p.table.MayContain(h) {
			p.candidates = append(p.candidates, i)
		} else {
			p.table.Stats.PreFilterRejections++
		}
	}

	p.candidateFill = len(p.candidates)
}

// Pull produces the next output batch, or (nil, false) if the current
// probe batch's candidates are exhausted with no pending chain walk (at
// which point NeedsInput reports true and the caller should Push again).
func (p *Prober) Pull() (*coldata.OutputBatch, bool) {
	p.out.Reset()

	if p.currentResult != slab.None {
		pos := p.currentProbe
		rowIdx := p.candidates[pos]
		filled, done := p.emitFromChain(p.currentResult, rowIdx)
		if done {
			p.currentProbe = pos + 1
		}
		if filled {
			return &p.out, true
		}
	}

	// Process four candidates in lockstep: bucket, tag, and status-word
	// match/empty masks are computed for every lane before any lane's
	// match is resolved, which is the section the spec calls out as
	// performance-critical (independent loads/ALU work with no
	// inter-lane data dependency, exposing instruction-level
	// parallelism). Resolving each lane is then just a sequential call
	// to the same per-lane walk the tail loop below uses: the lanes are
	// independent of each other until their own emit, so calling them in
	// sequence after the shared setup is observably identical to calling
	// them in true lockstep.
	for p.currentProbe+4 <= p.candidateFill {
		if p.probeFourWide() {
			return &p.out, true
		}
	}

	for p.currentProbe < p.candidateFill {
		if p.probeOne(p.currentProbe) {
			return &p.out, true
		}
	}

	if p.currentProbe == p.candidateFill && p.currentResult == slab.None {
		p.releaseColumns()
	}

	if p.out.Len() == 0 {
		return nil, false
	}
	return &p.out, true
}

// laneState holds one candidate's bucket-scan setup: the row index and
// key values being probed, the bucket its hash maps to, the H7 tag, and
// the match/empty masks for that bucket's status word.
type laneState struct {
	rowIdx      int
	k1v, k2v    int64
	bucket, tag uint64
	hits, empty uint64
}

// probeFourWide computes lane setup for four consecutive candidates
// before resolving any of them, then walks each lane in turn.
func (p *Prober) probeFourWide() bool {
	base := p.currentProbe
	var lanes [4]laneState
	for l := 0; l < 4; l++ {
		rowIdx := p.candidates[base+l]
		k1v, _ := p.k1.At(rowIdx)
		k2v, _ := p.k2.At(rowIdx)
		bucket, tag, hits, empty := p.table.lookupFirst(p.hashes[rowIdx])
		lanes[l] = laneState{rowIdx: rowIdx, k1v: k1v, k2v: k2v, bucket: bucket, tag: tag, hits: hits, empty: empty}
	}
	for l := 0; l < 4; l++ {
		ln := lanes[l]
		if p.walkLane(base+l, ln.rowIdx, ln.k1v, ln.k2v, ln.bucket, ln.tag, ln.hits, ln.empty) {
			return true
		}
	}
	return false
}

// probeOne processes the single candidate at candidates[pos], used by
// the tail loop once fewer than four candidates remain.
func (p *Prober) probeOne(pos int) bool {
	rowIdx := p.candidates[pos]
	k1v, _ := p.k1.At(rowIdx)
	k2v, _ := p.k2.At(rowIdx)
	bucket, tag, hits, empty := p.table.lookupFirst(p.hashes[rowIdx])
	return p.walkLane(pos, rowIdx, k1v, k2v, bucket, tag, hits, empty)
}

// walkLane performs the bucket-chain walk for one probe row: scan the
// current bucket's match mask for a verified key equality; if none is
// found and the bucket has an empty slot, the key is provably absent;
// otherwise advance to the next bucket in the linear-probe sequence and
// repeat. On a verified match it drains the duplicate chain via
// emitFromChain. It always leaves p.currentProbe in the correct state
// for the next Pull call: pos (resume this candidate's chain) if the
// output filled mid-chain, or pos+1 (move on) once this candidate is
// fully resolved, whether matched, drained, or absent. It returns true
// iff the output batch filled and Pull should return immediately.
func (p *Prober) walkLane(pos, rowIdx int, k1v, k2v int64, bucket, tag, hits, empty uint64) bool {
	for {
		for hits != 0 {
			bpos, _ := lowestSet(hits)
			entry := p.table.EntryAt(bucket, bpos)
			ek1, ek2, _, _ := p.table.Row(entry)
			if ek1 == k1v && ek2 == k2v {
				filled, done := p.emitFromChain(entry, rowIdx)
				if done {
					p.currentProbe = pos + 1
				} else {
					p.currentProbe = pos
				}
				return filled
			}
			hits = clearLowest(hits)
		}
		if empty != 0 {
			p.currentProbe = pos + 1
			return false
		}
		bucket, hits, empty = p.table.advanceBucket(bucket, tag)
	}
}

// emitFromChain walks the duplicate chain starting at entry, appending
// (resultMap=rowIdx, result1=d1) for every row on the chain. filled
// reports whether the output batch reached maxResults rows during this
// call (true is always sticky until Pull returns); done reports whether
// the chain was fully drained (next == -1) during this call, which may
// coincide with filled if the very last row on the chain is the one that
// fills the batch.
func (p *Prober) emitFromChain(entry int64, rowIdx int) (filled, done bool) {
	addr := entry
	for {
		_, _, d1, next := p.table.Row(addr)
		p.out.ResultMap = append(p.out.ResultMap, rowIdx)
		p.out.Result1 = append(p.out.Result1, d1)

		atEnd := next == slab.None
		full := p.out.Len() == p.maxResults

		if atEnd {
			p.currentResult = slab.None
			return full, true
		}
		if full {
			p.currentResult = next
			return true, false
		}
		addr = next
	}
}

// releaseColumns drops the references to the last pushed batch's decoded
// columns once every candidate has been consumed and no chain is in
// progress, per the spec's lifecycle note for per-batch probe state.
func (p *Prober) releaseColumns() {
	p.k1 = coldata.Int64Column{}
	p.k2 = coldata.Int64Column{}
}

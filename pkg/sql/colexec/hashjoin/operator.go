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
	"github.com/ericsun2/vecjoin/pkg/col/coltypes"
	"github.com/ericsun2/vecjoin/pkg/sql/colexec/colexecerror"
	"github.com/ericsun2/vecjoin/pkg/sql/colexec/colexeclog"
	"github.com/ericsun2/vecjoin/pkg/sql/colexec/slab"
)

// SupportsLayout is the operator's exact enablement gate: the core only
// ever handles a two-column composite key over three BIGINT columns
// (k1, k2, d1). Any other shape is rejected synchronously by the
// factory, per the spec's UnsupportedLayout error.
func SupportsLayout(types []coltypes.T, joinChannels int) bool {
	if joinChannels != 2 {
		return false
	}
	if len(types) != 3 {
		return false
	}
	for _, t := range types {
		if t != coltypes.BigInt {
			return false
		}
	}
	return true
}

// BuildPhase is the operator-surface build side: it decodes and absorbs
// build batches, then Finalize hands the caller a ready-to-probe
// LookupSource. Grounded on the teacher's NewEqHashJoinerOp/hj.build
// split between accumulating the build relation and switching the
// operator into its probing state.
type BuildPhase struct {
	builder *Builder
	pool    *slab.Pool
	cfg     Config
	closed  bool
}

// NewBuildPhase validates types/joinChannels against SupportsLayout and
// returns a BuildPhase that allocates row records from a fresh Allocator
// drawn from pool. If pool is nil, a brand-new private Pool is created
// and cfg.RecycleSlabs governs it; an already-shared Pool (including
// slab.DefaultPool) is never reconfigured as a side effect of
// constructing one operator, since other operators may be drawing from
// it concurrently.
func NewBuildPhase(types []coltypes.T, joinChannels int, decoder coldata.BlockDecoder, pool *slab.Pool, cfg Config) (*BuildPhase, error) {
	if !SupportsLayout(types, joinChannels) {
		return nil, colexecerror.ErrUnsupportedLayout
	}
	if pool == nil {
		pool = slab.NewPool()
		pool.Recycle = cfg.RecycleSlabs
	}

	alloc := slab.NewAllocator(pool)
	return &BuildPhase{
		builder: NewBuilder(alloc, decoder, cfg.UseBloomFilter),
		pool:    pool,
		cfg:     cfg,
	}, nil
}

// Push absorbs one build batch. All build-time errors (memory
// exhaustion, a decoder error) are fatal to the operator. Rows are
// appended one at a time, so a panic part way through a batch leaves the
// rows before it in the table; since no LookupSource exists before
// Finalize, that partial build is never observable.
func (bp *BuildPhase) Push(batch *coldata.Batch) {
	if bp.closed {
		colexecerror.InternalPanic(colexecerror.ErrOperatorClosed)
	}
	bp.builder.Push(batch)
}

// Finalize sizes the directory for the accumulated build rows, inserts
// them all, and returns a LookupSource ready to be probed. No partial
// build is ever observable: either Finalize succeeds and returns a
// usable LookupSource, or the caller abandons the operator and calls
// Close without ever having seen one.
func (bp *BuildPhase) Finalize() *LookupSource {
	table := bp.builder.Finalize()
	return &LookupSource{
		table:  table,
		prober: NewProber(table, bp.builder.decoder, bp.cfg.outputBatchSize()),
	}
}

// LookupSource is the operator-surface probe side returned by
// BuildPhase.Finalize: Push/Pull/NeedsInput/Close as specified in the
// spec's external interfaces section.
type LookupSource struct {
	table  *Table
	prober *Prober
	closed bool
}

// Push decodes one probe batch and prepares its candidate list, per
// ProbePhase.push.
func (ls *LookupSource) Push(batch *coldata.Batch) {
	if ls.closed {
		colexecerror.InternalPanic(colexecerror.ErrOperatorClosed)
	}
	ls.prober.Push(batch)
}

// Pull returns the next output batch's resultMap/result1 columns (always
// of equal length), or ok=false if the last pushed batch's candidates
// are exhausted with no pending chain walk.
func (ls *LookupSource) Pull() (resultMap []int, result1 []int64, ok bool) {
	if ls.closed {
		colexecerror.InternalPanic(colexecerror.ErrOperatorClosed)
	}
	batch, ok := ls.prober.Pull()
	if !ok {
		return nil, nil, false
	}
	return batch.ResultMap, batch.Result1, true
}

// NeedsInput reports whether the caller must Push another probe batch
// before calling Pull again.
func (ls *LookupSource) NeedsInput() bool {
	return ls.prober.NeedsInput()
}

// IsEmpty reports whether the build side produced zero rows, per the
// spec's isEmpty() accessor.
func (ls *LookupSource) IsEmpty() bool {
	return ls.table.IsEmpty()
}

// Stats exposes the table's hot-path counters (pre-filter rejections,
// bucket probes) for tests and ambient telemetry.
func (ls *LookupSource) Stats() Stats {
	return ls.table.Stats
}

// Close releases all slabs held by the table back to its pool and marks
// the LookupSource unusable. Per the spec's resource model, the
// HashTable is owned by exactly one LookupSource; after Close its
// buffers are returned to the pool and it cannot be probed again.
func (ls *LookupSource) Close() {
	if ls.closed {
		return
	}
	colexeclog.WithComponent("probe").Debug("closing lookup source")
	ls.table.Close()
	ls.closed = true
}

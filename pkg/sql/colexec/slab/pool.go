// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

package slab

import (
	"sync"

	"github.com/ericsun2/vecjoin/pkg/sql/colexec/colexeclog"
)

// Pool is a process-wide recycling pool of 128 KiB slab buffers, guarded
// by a single mutex. Per the re-architecture note in the spec, it is an
// explicit handle rather than a hidden singleton -- the teacher prefers
// the same shape for its latch Manager, whose zero value is directly
// usable and whose acquire/release are O(1) under one lock. A package
// default remains available below for callers that don't need
// isolation.
type Pool struct {
	mu   sync.Mutex
	free []*[Size]byte

	// Recycle controls whether release() actually returns buffers to the
	// free list (true) or drops them for the GC to reclaim (false). This
	// is the useBloomFilter-style feature flag named recycleTable in the
	// spec; false is useful in tests that want to observe a pristine
	// zeroed slab on every allocation.
	Recycle bool
}

// NewPool returns a Pool with recycling enabled.
func NewPool() *Pool {
	return &Pool{Recycle: true}
}

// DefaultPool is the package-wide default slab pool, used by callers that
// have no reason to isolate their slab traffic from the rest of the
// process (e.g. a single long-lived query engine instance).
var DefaultPool = NewPool()

// acquire pops a slab off the free list, allocating a fresh 128 KiB
// buffer if the pool is empty.
func (p *Pool) acquire() *[Size]byte {
	p.mu.Lock()
	n := len(p.free)
	if n == 0 {
		p.mu.Unlock()
		colexeclog.WithComponent("slabpool").Debug("allocating fresh slab")
		return new([Size]byte)
	}
	buf := p.free[n-1]
	p.free[n-1] = nil
	p.free = p.free[:n-1]
	p.mu.Unlock()
	return buf
}

// release returns buf to the pool, unless recycling is disabled, in
// which case it is a no-op and the buffer is left for the GC. Slabs are
// never zeroed on release: callers must only read bytes they previously
// wrote into a slab they hold.
func (p *Pool) release(buf *[Size]byte) {
	if !p.Recycle {
		return
	}
	p.mu.Lock()
	p.free = append(p.free, buf)
	p.mu.Unlock()
}

// NumFree reports how many slabs currently sit in the free list. Used by
// tests asserting pool-return conservation: after an Allocator.Close, the
// slabs it held must be observable here (or have been dropped
// intentionally, if Recycle is false).
func (p *Pool) NumFree() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

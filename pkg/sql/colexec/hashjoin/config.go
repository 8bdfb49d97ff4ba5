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

import "github.com/ericsun2/vecjoin/pkg/col/coldata"

// Config is the hash join core's init-time configuration. Per the spec,
// UseBloomFilter and RecycleSlabs are compile-time-or-init-time feature
// flags, not runtime-tunable state; there is intentionally no config
// file, environment variable, or wire format for them.
type Config struct {
	// UseBloomFilter enables the probabilistic pre-filter populated
	// during build and consulted before every probe directory access.
	UseBloomFilter bool
	// RecycleSlabs controls whether a closed operator's slabs are
	// returned to its Pool for reuse (true) or left for the garbage
	// collector (false, useful in tests asserting on pristine memory).
	// It is applied only to the private Pool NewBuildPhase creates when
	// given a nil pool; a Pool passed in keeps its own Recycle setting.
	RecycleSlabs bool
	// OutputBatchSize bounds the number of rows in each batch ProbePhase
	// emits. Zero selects the spec's default of 1024.
	OutputBatchSize int
}

// outputBatchSize returns c.OutputBatchSize, or coldata.BatchSize if
// unset.
func (c Config) outputBatchSize() int {
	if c.OutputBatchSize <= 0 {
		return coldata.BatchSize
	}
	return c.OutputBatchSize
}

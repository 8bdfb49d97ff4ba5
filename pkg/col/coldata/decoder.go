// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

package coldata

// BlockDecoder is the only interface the join core consumes from outside
// itself. A real query engine hands the core a decoder that knows how to
// pull a column's values out of whatever on-wire block format it stores;
// the core only ever asks for the already-decoded Int64Column.
type BlockDecoder interface {
	// DecodeK1 decodes the first join-key column of batch.
	DecodeK1(batch *Batch) Int64Column
	// DecodeK2 decodes the second join-key column of batch.
	DecodeK2(batch *Batch) Int64Column
	// DecodeD1 decodes the payload column of batch. Only called on the
	// build side.
	DecodeD1(batch *Batch) Int64Column
}

// IdentityDecoder is a BlockDecoder that reads columns directly off of a
// Batch with no dictionary remapping. It is the decoder used by tests and
// by callers that have already materialized their columns, and stands in
// for the "isIdentityMap" case described for BlockDecoder.
type IdentityDecoder struct{}

var _ BlockDecoder = IdentityDecoder{}

// DecodeK1 implements BlockDecoder.
func (IdentityDecoder) DecodeK1(batch *Batch) Int64Column { return batch.K1 }

// DecodeK2 implements BlockDecoder.
func (IdentityDecoder) DecodeK2(batch *Batch) Int64Column { return batch.K2 }

// DecodeD1 implements BlockDecoder.
func (IdentityDecoder) DecodeD1(batch *Batch) Int64Column { return batch.D1 }

// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

// Package colexecerror centralizes the join core's error taxonomy. The
// teacher's own execerror package (github.com/cockroachdb/cockroach/pkg/sql/
// colexec/execerror) is cockroach-internal and isn't part of the retrieval
// pack, so this is a from-scratch package grounded on how the teacher's
// hashjoiner.go calls into it: a panic-based "internal panic" convention
// for invariant violations, which the operator itself lets escape and a
// caller converts back into an error by deferring
// CatchVectorizedRuntimeError, plus github.com/pkg/errors for everything
// that should propagate as a normal error.
package colexecerror

import (
	"github.com/pkg/errors"
)

// Sentinel errors forming the taxonomy from the spec's error-handling
// design: UnsupportedLayout is raised synchronously from the operator
// factory, AllocationFailure is fatal to an in-flight operator.
var (
	ErrUnsupportedLayout = errors.New("hashjoin: unsupported column layout")
	ErrAllocationFailure = errors.New("hashjoin: allocation failure")
	ErrOperatorClosed    = errors.New("hashjoin: operator already closed")
)

// internalPanic is the payload recovered by CatchVectorizedRuntimeError.
// Wrapping invariant violations in a distinct type lets the top-level
// recover distinguish "this is a bug in the core" from an arbitrary
// runtime panic it should let propagate.
type internalPanic struct {
	err error
}

// InternalPanic panics with err wrapped so that a deferred
// CatchVectorizedRuntimeError can convert it back into a plain error. Used
// for programmer-error invariant violations: negative counts, addresses
// with an out-of-range byte offset, operating on a closed operator.
func InternalPanic(err error) {
	panic(internalPanic{err: err})
}

// InternalPanicf is a convenience wrapper around InternalPanic that
// formats its message like errors.Errorf.
func InternalPanicf(format string, args ...interface{}) {
	InternalPanic(errors.Errorf(format, args...))
}

// CatchVectorizedRuntimeError recovers a panic previously raised via
// InternalPanic and stores it into *errOut. Panics not raised by
// InternalPanic are re-raised unchanged, matching the teacher's
// execerror.CatchVectorizedRuntimeError convention of only ever
// intercepting panics that originated inside the vectorized engine
// itself.
func CatchVectorizedRuntimeError(errOut *error) {
	r := recover()
	if r == nil {
		return
	}
	if p, ok := r.(internalPanic); ok {
		*errOut = p.err
		return
	}
	panic(r)
}

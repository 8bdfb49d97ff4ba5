// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

package colexecerror

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCatchVectorizedRuntimeErrorRecoversInternalPanic(t *testing.T) {
	var err error
	func() {
		defer CatchVectorizedRuntimeError(&err)
		InternalPanic(ErrAllocationFailure)
	}()
	require.Equal(t, ErrAllocationFailure, err)
}

func TestCatchVectorizedRuntimeErrorRecoversInternalPanicf(t *testing.T) {
	var err error
	func() {
		defer CatchVectorizedRuntimeError(&err)
		InternalPanicf("bad offset %d", 17)
	}()
	require.EqualError(t, err, "bad offset 17")
}

func TestCatchVectorizedRuntimeErrorRepanicsOnForeignPanic(t *testing.T) {
	require.Panics(t, func() {
		var err error
		defer CatchVectorizedRuntimeError(&err)
		panic("not ours")
	})
}

func TestCatchVectorizedRuntimeErrorNoPanicIsNoop(t *testing.T) {
	var err error
	func() {
		defer CatchVectorizedRuntimeError(&err)
	}()
	require.NoError(t, err)
}

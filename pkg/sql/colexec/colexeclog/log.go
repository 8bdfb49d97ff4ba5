// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

// Package colexeclog carries the hash join core's ambient logging. It is
// deliberately thin: a package-level logrus.FieldLogger any caller can
// swap out, grounded on the push-executor lifecycle logging pattern in
// warmchang-pranadb's push/exec/table_exec.go (log.Trace around
// long-running/await states).
package colexeclog

import (
	"github.com/sirupsen/logrus"
)

// Log is the logger used by the hash join core for phase-transition and
// resource-lifecycle tracing. Callers embedding the core into a larger
// engine may replace it wholesale (e.g. with a logger carrying
// query/session fields); the default is a usable logrus.Logger at its
// default (Info) level, so build/probe tracing is silent unless the
// caller raises the level.
var Log = logrus.New()

// WithComponent returns a logger tagged with the given core component
// name ("slabpool", "hashtable", "build", "probe"), mirroring the
// sub-component tagging the pack's logrus consumers do ad hoc per call
// site.
func WithComponent(component string) *logrus.Entry {
	return Log.WithField("component", component)
}

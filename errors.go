// Copyright 2024 The tagheap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Error kinds (spec §7). Generalizes the teacher's runtime.Error marker
// interface and errorString/TypeAssertionError concrete types (error.go)
// into the collector's own fatal-error taxonomy: every one of these is a
// broken GC invariant, not a recoverable condition (spec §7: "The GC's
// contract is 'either completes a full cycle or halts the system'").

package gc

import "fmt"

// Error identifies a collector-fatal invariant violation, the way the
// teacher's runtime.Error identifies a runtime-fatal one.
type Error interface {
	error

	// RuntimeError is a no-op; it exists only to distinguish collector
	// invariant violations from ordinary errors.
	RuntimeError()
}

var (
	_ Error = (*HeaderError)(nil)
	_ Error = (*TransportError)(nil)
	_ Error = (*ScanError)(nil)
	_ Error = (*MetadataError)(nil)
	_ Error = (*NestedCycleError)(nil)
)

// ScanError reports an unrecognized object tag encountered while scanning
// an object's reference slots (spec §4.1 "scan-error", §4.3).
type ScanError struct {
	Addr Address
	Type ObjectType
	Msg  string
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("gc: scan: %s at %#x", e.Msg, uint64(e.Addr))
}
func (*ScanError) RuntimeError() {}

// MetadataError reports bad per-PC stack metadata: a forbidden field
// combination in a mid-call frame, or a missing table entry (spec §4.4
// step 3, §7 "Bad stack metadata").
type MetadataError struct {
	PC    uint64
	Field string
	Msg   string
}

func (e *MetadataError) Error() string {
	return fmt.Sprintf("gc: stack metadata at pc=%#x: %s (%s)", e.PC, e.Msg, e.Field)
}
func (*MetadataError) RuntimeError() {}

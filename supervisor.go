// Copyright 2024 The tagheap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Supervisor is the collector's only window onto the outside world (spec §6
// "External interfaces"). The teacher's mgc.go and mgcmark.go call straight
// into os-package-internal primitives (stopTheWorld, sysReserve/sysAlloc,
// gentraceback); this repo names the same set of capabilities as an
// interface so the collector stays unit-testable against a fake and the
// real implementation can be swapped for one backed by actual memory
// protection (vm.go).
package gc

import "context"

// Supervisor provides the collector with the primitives spec §6 lists as
// the GC's external interface: stopping every other thread, toggling page
// protection, persisting read-only meters, and resolving PC-to-function
// metadata for the stack walker.
type Supervisor interface {
	// WithWorldStopped runs fn with every mutator thread parked, the way
	// the teacher's stopTheWorld/startTheWorld bracket mgc.go's gc(mode).
	// fn must not block waiting on a mutator.
	WithWorldStopped(ctx context.Context, fn func() error) error

	// ProtectMemoryRange write-protects [addr, addr+words). The cycle
	// driver does not call it.
	ProtectMemoryRange(addr Address, words uint64) error

	// ReleaseMemoryRange makes [addr, addr+words) writable again; when
	// unmap is true it also discards the range's contents first (spec §4.8
	// step 9). VMSupervisor does this with madvise(MADV_DONTNEED) and keeps
	// the mapping in place.
	ReleaseMemoryRange(addr Address, words uint64, unmap bool) error

	// StoreStatistics persists a snapshot of the read-only meters (spec
	// §6), called once per completed cycle.
	StoreStatistics(snapshot StatisticsSnapshot)

	// ReturnAddressToFunction resolves a return address on some thread's
	// stack to the function object containing it (spec §4.4 step 2).
	ReturnAddressToFunction(pc uint64) (Address, bool)

	// MapFunctionGCMetadata returns the PC metadata table embedded in fn's
	// constant pool (spec §4.4 step 3).
	MapFunctionGCMetadata(fn Address) (*PCMetadataTable, error)

	// DebugPrintLine writes a single diagnostic line, the structured-log
	// equivalent of the teacher's print() builtin used throughout mgc.go.
	DebugPrintLine(line string)

	// Panic reports an unrecoverable supervisor-level condition; spec's
	// external "panic" primitive. Implementations should not return.
	Panic(err error)
}

// StatisticsSnapshot is the payload passed to StoreStatistics: the read-only
// meters of spec §6 taken as of the end of one cycle.
type StatisticsSnapshot struct {
	Epoch                    uint64
	DynamicSpaceSizeWords    uint64
	WordsConsed              uint64
	MemoryExpansionRemaining uint64
	PinnedWordsUsed          uint64
	WiredWordsUsed           uint64
}

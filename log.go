// Copyright 2024 The tagheap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Diagnostics (spec §6 "debug_print_line, panic", §4.4 step 3's dumped
// frame state, mgcmark.go's gcDumpObject). The teacher prints directly to
// the console with the runtime-internal print builtin; this repo routes
// the same diagnostics through a structured logger, per SPEC_FULL.md's
// ambient-stack section.

package gc

import "go.uber.org/zap"

// NewLogger builds the package's default structured logger: a production
// zap.Logger unless development mode is requested, mirroring the way the
// pack's Voskan-arena-cache wires zap for its own cache diagnostics.
func NewLogger(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// dumpObject logs the words of the object at addr for debugging, the
// structured-log equivalent of the teacher's gcDumpObject (mgcmark.go).
func (gcc *Collector) dumpObject(label string, addr Address, words uint64) {
	fields := make([]zap.Field, 0, words+1)
	fields = append(fields, zap.Uint64("addr", uint64(addr)))
	for i := uint64(0); i < words; i++ {
		fields = append(fields, zap.Uint64(fieldName(i), uint64(gcc.heap.PeekWord(addr+Address(i)<<addrOffsetShift))))
	}
	gcc.log.Debug("gc: object dump: "+label, fields...)
}

func fieldName(i uint64) string {
	const letters = "0123456789"
	if i < 10 {
		return "w" + string(letters[i])
	}
	return "wN"
}

// dumpWords is how many words of frame state panicDiagnostic dumps around a
// diagnosed address: the frame pointer slot, the saved caller pc/fp, and a
// couple of slots past it (spec §4.4 step 3 "panic with diagnostic state").
const dumpWords = 4

// panicDiagnostic logs a fatal collector invariant violation before
// panicking with err, mirroring the teacher's practice of printing state
// immediately before throw(...) (spec §7, §4.4 step 3 "panic with
// diagnostic state"). If err carries an address, the frame or object words
// around it are dumped first (spec §7 "dumped frame state").
func (gcc *Collector) panicDiagnostic(err Error, fields ...zap.Field) {
	if addr, ok := diagnosticAddr(err); ok {
		gcc.safeDumpObject("diagnostic", addr)
	}
	allFields := append([]zap.Field{zap.Error(err)}, fields...)
	gcc.log.Error("gc: fatal collector invariant violated", allFields...)
	panic(err)
}

// diagnosticAddr extracts the address an Error diagnosed against, for the
// error kinds that carry one. MetadataError carries a pc, not a heap
// address, so it has nothing to dump.
func diagnosticAddr(err Error) (Address, bool) {
	switch e := err.(type) {
	case *HeaderError:
		return e.Addr, true
	case *ScanError:
		return e.Addr, true
	case *TransportError:
		return e.Addr, true
	default:
		return 0, false
	}
}

// safeDumpObject dumps the words at addr, recovering silently if addr
// itself is the out-of-range address that triggered the diagnostic in the
// first place — dumpObject's own PeekWord would otherwise panic before the
// diagnostic log line is ever written.
func (gcc *Collector) safeDumpObject(label string, addr Address) {
	defer func() { _ = recover() }()
	gcc.dumpObject(label, addr, dumpWords)
}

// Copyright 2024 The tagheap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiagnosticAddrExtractsKnownErrorKinds(t *testing.T) {
	addr := MakeAddress(RegionGeneral, 0, 5)

	cases := []Error{
		&HeaderError{Op: "x", Addr: addr},
		&ScanError{Addr: addr},
		&TransportError{Addr: addr},
	}
	for _, err := range cases {
		got, ok := diagnosticAddr(err)
		assert.True(t, ok)
		assert.Equal(t, addr, got)
	}

	_, ok := diagnosticAddr(&MetadataError{PC: 1})
	assert.False(t, ok)
}

func TestPanicDiagnosticDumpsObjectBeforePanicking(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Heap = smallHeapConfig()
	sup := newFakeSupervisor()
	gcc := newTestCollector(t, cfg, sup)

	addr := MakeAddress(RegionGeneral, 0, 0)
	gcc.heap.PokeWord(addr, Header{Type: TypeSymbol}.Encode())

	assert.PanicsWithValue(t, Error(&ScanError{Addr: addr, Msg: "boom"}), func() {
		gcc.panicDiagnostic(&ScanError{Addr: addr, Msg: "boom"})
	})
}

func TestPanicDiagnosticSurvivesOutOfRangeDiagnosticAddr(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Heap = smallHeapConfig()
	sup := newFakeSupervisor()
	gcc := newTestCollector(t, cfg, sup)

	oob := MakeAddress(RegionGeneral, 0, uint64(len(gcc.heap.General.space(0).Words))+10)

	assert.Panics(t, func() {
		gcc.panicDiagnostic(&HeaderError{Op: "PeekWord", Addr: oob, Msg: "offset out of range"})
	})
}

func TestPanicDiagnosticSkipsDumpForAddressFreeErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Heap = smallHeapConfig()
	sup := newFakeSupervisor()
	gcc := newTestCollector(t, cfg, sup)

	assert.Panics(t, func() {
		gcc.panicDiagnostic(&MetadataError{PC: 0xdead, Field: "layout", Msg: "no entry"})
	})
}

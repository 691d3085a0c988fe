// Copyright 2024 The tagheap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestWalkStackScansLayoutBitmapAndRelocatesLiveSlot builds a single
// mid-call frame with a two-bit layout bitmap whose only live bit points at
// an oldspace object, and checks the walker both scavenges that slot and
// marks the function object itself pinned-live.
func TestWalkStackScansLayoutBitmapAndRelocatesLiveSlot(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Heap = smallHeapConfig()
	sup := newFakeSupervisor()
	gcc := newTestCollector(t, cfg, sup)
	gcc.heap.PinnedMarkBit = true

	fnAddr := MakeAddress(RegionWired, 0, 0)
	gcc.heap.PokeWord(fnAddr, Header{Type: TypeSymbol, Mark: false}.Encode())

	bitmapAddr := MakeAddress(RegionWired, 0, 6)
	gcc.heap.PokeWord(bitmapAddr, Word(1)) // bit 0 only

	fp := MakeAddress(RegionWired, 0, 20)
	fpMinus8 := fp - Address(wordBytes)
	sp := fpMinus8 - Address(wordBytes)

	liveAddr := MakeAddress(RegionGeneral, 1, 0)
	gcc.heap.PokeWord(liveAddr, Header{Type: TypeSymbol}.Encode())
	gcc.heap.PokeWord(fpMinus8, MakeTagged(TagObject, liveAddr))

	gcc.heap.PokeWord(fp, Word(0))                      // caller fp: end of chain
	gcc.heap.PokeWord(fp+Address(wordBytes), Word(0))    // caller pc: end of chain

	pc := uint64(fnAddr)
	sup.registerFunction(fnAddr, pc, pc+1, NewPCMetadataTable([]PCMetadataEntry{
		{
			Offset:       0,
			Framep:       true,
			PushedValues: -1,
			LayoutAddr:   bitmapAddr,
			LayoutLength: 2,
		},
	}))

	thr := &Thread{}
	gcc.walkStack(thr, sp, fp, pc)

	updated := gcc.heap.PeekWord(fpMinus8)
	require.Equal(t, TagObject, TagField(updated))
	assert.True(t, gcc.heap.InNewspace(PointerField(updated)), "live slot found via the layout bitmap is relocated")

	fnHeader := DecodeHeader(gcc.heap.PeekWord(fnAddr))
	assert.True(t, fnHeader.Mark, "the function object itself is marked pinned-live")
}

func TestWalkStackRejectsInterruptp(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Heap = smallHeapConfig()
	sup := newFakeSupervisor()
	gcc := newTestCollector(t, cfg, sup)

	fnAddr := MakeAddress(RegionWired, 0, 0)
	gcc.heap.PokeWord(fnAddr, Header{Type: TypeSymbol}.Encode())

	pc := uint64(fnAddr)
	sup.registerFunction(fnAddr, pc, pc+1, NewPCMetadataTable([]PCMetadataEntry{
		{Offset: 0, Interruptp: true},
	}))

	assert.Panics(t, func() { gcc.walkStack(&Thread{}, 0, 0, pc) })
}

func TestWalkStackRejectsFullSaveOnlyFieldOnMidCallFrame(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Heap = smallHeapConfig()
	sup := newFakeSupervisor()
	gcc := newTestCollector(t, cfg, sup)

	fnAddr := MakeAddress(RegionWired, 0, 0)
	gcc.heap.PokeWord(fnAddr, Header{Type: TypeSymbol}.Encode())

	pc := uint64(fnAddr)
	sup.registerFunction(fnAddr, pc, pc+1, NewPCMetadataTable([]PCMetadataEntry{
		{Offset: 0, MultipleValues: 1},
	}))

	assert.Panics(t, func() { gcc.walkStack(&Thread{}, 0, 0, pc) })
}

func TestWalkStackPanicsOnUnresolvedReturnAddress(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Heap = smallHeapConfig()
	sup := newFakeSupervisor()
	gcc := newTestCollector(t, cfg, sup)

	assert.Panics(t, func() { gcc.walkStack(&Thread{}, 0, 0, 0xdeadbeef) })
}

// TestScanDXRootHonorsPartialNLXGuard implements spec §9's dangling-DX
// guard: a dx-root payload below the current sp is skipped, not scanned.
func TestScanDXRootHonorsPartialNLXGuard(t *testing.T) {
	h := newTestHeap()
	gcc := &Collector{heap: h, meters: newMeters(), cfg: DefaultConfig()}

	payloadAddr := MakeAddress(RegionWired, 0, 0)
	h.PokeWord(payloadAddr, Header{Type: ObjectType(200)}.Encode()) // unrecognized type: would panic if Scan were reached

	dxWord := MakeTagged(TagDXRoot, payloadAddr)
	sp := payloadAddr + Address(8) // sp above the payload: dangling

	assert.NotPanics(t, func() { gcc.scanDXRoot(dxWord, sp) })
}

// Copyright 2024 The tagheap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanReferenceArrayScavengesEachElement(t *testing.T) {
	h := newTestHeap()
	gcc := &Collector{heap: h, meters: newMeters(), cfg: DefaultConfig()}

	liveAddr := MakeAddress(RegionGeneral, 1, 0)
	h.PokeWord(liveAddr, Header{Type: TypeSymbol}.Encode())

	addr := MakeAddress(RegionGeneral, 0, 0)
	h.PokeWord(addr, Header{Type: TypeReferenceArray, Data: 2}.Encode())
	h.PokeWord(addr.Slot(1), fixnum(1))
	h.PokeWord(addr.Slot(2), MakeTagged(TagObject, liveAddr))

	gcc.Scan(addr, DecodeHeader(h.PeekWord(addr)))

	assert.Equal(t, fixnum(1), h.PeekWord(addr.Slot(1)))
	updated := h.PeekWord(addr.Slot(2))
	require.Equal(t, TagObject, TagField(updated))
	assert.True(t, h.InNewspace(PointerField(updated)))
}

func TestScanLeafTypesDoNothing(t *testing.T) {
	h := newTestHeap()
	gcc := &Collector{heap: h, meters: newMeters(), cfg: DefaultConfig()}

	addr := MakeAddress(RegionGeneral, 0, 0)
	h.PokeWord(addr, Header{Type: TypeFloatDouble}.Encode())
	h.PokeWord(addr.Slot(1), Word(0x1234))

	assert.NotPanics(t, func() { gcc.Scan(addr, DecodeHeader(h.PeekWord(addr))) })
	assert.Equal(t, Word(0x1234), h.PeekWord(addr.Slot(1)))
}

func TestScanUnrecognizedTypePanics(t *testing.T) {
	h := newTestHeap()
	gcc := &Collector{heap: h, meters: newMeters(), cfg: DefaultConfig()}

	addr := MakeAddress(RegionGeneral, 0, 0)
	assert.Panics(t, func() { gcc.Scan(addr, Header{Type: ObjectType(200)}) })
}

func TestScanFunctionWalksConstantPool(t *testing.T) {
	h := newTestHeap()
	gcc := &Collector{heap: h, meters: newMeters(), cfg: DefaultConfig()}

	liveAddr := MakeAddress(RegionGeneral, 1, 0)
	h.PokeWord(liveAddr, Header{Type: TypeSymbol}.Encode())

	addr := MakeAddress(RegionGeneral, 0, 0)
	data := encodeFunctionData(8, 8, 0) // 1 word of machine code, 1 word pool
	h.PokeWord(addr, Header{Type: TypeFunction, Data: data}.Encode())
	h.PokeWord(addr.Slot(2), MakeTagged(TagObject, liveAddr)) // pool base: header(1) + mc_size/8(1) = slot 2

	gcc.Scan(addr, DecodeHeader(h.PeekWord(addr)))

	updated := h.PeekWord(addr.Slot(2))
	require.Equal(t, TagObject, TagField(updated))
	assert.True(t, h.InNewspace(PointerField(updated)))
}

func TestScanThreadObjectWarnsWhenNotRegistered(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Heap = smallHeapConfig()
	sup := newFakeSupervisor()
	gcc := newTestCollector(t, cfg, sup)

	addr := MakeAddress(RegionGeneral, 0, 0)
	h := Header{Type: TypeThread}
	gcc.heap.PokeWord(addr, h.Encode())

	assert.NotPanics(t, func() { gcc.Scan(addr, h) })
}

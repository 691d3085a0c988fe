// Copyright 2024 The tagheap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pinnedAddr(offset uint64) Address { return MakeAddress(RegionPinned, 0, offset) }

// TestRebuildFreelistCoalescesAdjacentRuns implements S6: a pinned region
// with five symbol-sized (6-word) objects, P1 and P3 marked live, P2, P4,
// P5 unmarked. The rebuilt freelist must have exactly one entry covering
// P2 and one covering P4+P5 merged.
func TestRebuildFreelistCoalescesAdjacentRuns(t *testing.T) {
	h := newTestHeap()
	gcc := &Collector{heap: h, meters: newMeters(), cfg: DefaultConfig()}
	h.PinnedMarkBit = true

	offsets := []uint64{0, 6, 12, 18, 24}
	live := map[int]bool{0: true, 2: true} // P1, P3

	for i, off := range offsets {
		h.PokeWord(pinnedAddr(off), Header{Type: TypeSymbol, Mark: live[i]}.Encode())
	}

	base := pinnedAddr(0)
	end := pinnedAddr(30)
	head := gcc.RebuildFreelist(RegionPinned, base, end)

	require.Equal(t, pinnedAddr(6), head) // P2's address

	entry1 := DecodeHeader(h.PeekWord(pinnedAddr(6)))
	assert.Equal(t, TypeFreelistEntry, entry1.Type)
	assert.Equal(t, uint64(6), entry1.Data)

	next := h.PeekWord(pinnedAddr(6).Slot(freelistSlotNext))
	require.Equal(t, TagObject, TagField(next))
	assert.Equal(t, pinnedAddr(18), PointerField(next))

	entry2 := DecodeHeader(h.PeekWord(pinnedAddr(18)))
	assert.Equal(t, TypeFreelistEntry, entry2.Type)
	assert.Equal(t, uint64(12), entry2.Data) // P4 + P5 merged

	terminator := h.PeekWord(pinnedAddr(18).Slot(freelistSlotNext))
	assert.Equal(t, Word(0), terminator)

	assert.True(t, h.Pinned.HasFreelist)
	assert.Equal(t, pinnedAddr(6), h.Pinned.Freelist)

	// P1 and P3 are the only marked (live) objects, 6 words each.
	assert.Equal(t, 12, h.Pinned.Used)
}

func TestMarkPinnedObjectFlipsMarkAndScans(t *testing.T) {
	h := newTestHeap()
	gcc := &Collector{heap: h, meters: newMeters(), cfg: DefaultConfig()}
	h.PinnedMarkBit = true

	addr := pinnedAddr(0)
	h.PokeWord(addr, Header{Type: TypeSymbol, Mark: false}.Encode())

	gcc.MarkPinned(MakeTagged(TagObject, addr))

	got := DecodeHeader(h.PeekWord(addr))
	assert.True(t, got.Mark)
}

func TestMarkPinnedIsIdempotentWithinACycle(t *testing.T) {
	h := newTestHeap()
	gcc := &Collector{heap: h, meters: newMeters(), cfg: DefaultConfig()}
	h.PinnedMarkBit = true

	addr := pinnedAddr(0)
	h.PokeWord(addr, Header{Type: TypeSymbol, Mark: true}.Encode())

	// Already marked this cycle: MarkPinned must not re-scan (no panic from
	// scanning garbage slots, since TypeSymbol has no pointer-typed data
	// here, so the proof is simply that it returns without error either way).
	assert.NotPanics(t, func() { gcc.MarkPinned(MakeTagged(TagObject, addr)) })
}

func TestMarkPinnedRejectsFreelistEntry(t *testing.T) {
	h := newTestHeap()
	gcc := &Collector{heap: h, meters: newMeters(), cfg: DefaultConfig()}

	addr := pinnedAddr(0)
	h.PokeWord(addr, Header{Type: TypeFreelistEntry, Data: 6}.Encode())

	assert.Panics(t, func() { gcc.MarkPinned(MakeTagged(TagObject, addr)) })
}

func TestMarkPinnedConsVerifiesHeaderTag(t *testing.T) {
	h := newTestHeap()
	gcc := &Collector{heap: h, meters: newMeters(), cfg: DefaultConfig()}

	headerAddr := pinnedAddr(0)
	carAddr := pinnedAddr(2)
	h.PokeWord(headerAddr, Word(TagCons))
	h.PokeWord(carAddr, fixnum(1))
	h.PokeWord(carAddr.Slot(1), fixnum(2))

	assert.NotPanics(t, func() { gcc.MarkPinned(MakeTagged(TagCons, carAddr)) })

	bogusHeader := pinnedAddr(4)
	h.PokeWord(bogusHeader, Word(TagObject))
	bogusCar := pinnedAddr(6)
	assert.Panics(t, func() { gcc.MarkPinned(MakeTagged(TagCons, bogusCar)) })
}

func wiredAddr(offset uint64) Address { return MakeAddress(RegionWired, 0, offset) }

func TestBaseAddressOfInternalPointerFindsContainingObjectInWired(t *testing.T) {
	h := newTestHeap()
	gcc := &Collector{heap: h, meters: newMeters(), cfg: DefaultConfig()}

	addr := wiredAddr(0)
	h.PokeWord(addr, Header{Type: TypeReferenceArray, Data: 4}.Encode())

	base, ok := gcc.BaseAddressOfInternalPointer(wiredAddr(3))
	require.True(t, ok)
	assert.Equal(t, addr, base)
}

func TestBaseAddressOfInternalPointerFindsContainingObjectInPinned(t *testing.T) {
	h := newTestHeap()
	gcc := &Collector{heap: h, meters: newMeters(), cfg: DefaultConfig()}

	addr := pinnedAddr(6)
	h.PokeWord(addr, Header{Type: TypeSymbol}.Encode())

	base, ok := gcc.BaseAddressOfInternalPointer(pinnedAddr(6).Slot(2))
	require.True(t, ok)
	assert.Equal(t, addr, base)
}

func TestBaseAddressOfInternalPointerMissReturnsFalse(t *testing.T) {
	h := newTestHeap()
	gcc := &Collector{heap: h, meters: newMeters(), cfg: DefaultConfig()}

	h.PokeWord(pinnedAddr(0), Header{Type: TypeSymbol}.Encode())

	_, ok := gcc.BaseAddressOfInternalPointer(pinnedAddr(200))
	assert.False(t, ok)
}

func TestBaseAddressOfInternalPointerRejectsOtherRegions(t *testing.T) {
	h := newTestHeap()
	gcc := &Collector{heap: h, meters: newMeters(), cfg: DefaultConfig()}

	_, ok := gcc.BaseAddressOfInternalPointer(MakeAddress(RegionGeneral, 0, 0))
	assert.False(t, ok)
}

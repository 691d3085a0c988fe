// Copyright 2024 The tagheap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Scavenger (spec §4.3). Generalizes the teacher's greyobject/scanobject
// pair (mgcmark.go) — "decide what a slot's value means, possibly queue
// more work" — from a single mark-bit scheme to the spec's four-way
// dispatch over immediate, newspace pointer, oldspace pointer, and pinned
// pointer.

package gc

// Scavenge updates a single tagged word, relocating it if it names a live
// oldspace object and marking it if it names a pinned object (spec §4.3).
func (gcc *Collector) Scavenge(w Word) Word {
	if Immediatep(w) {
		return w
	}
	tag := TagField(w)
	switch tag {
	case TagCons, TagObject:
		addr := PointerField(w)
		switch AddressTag(addr) {
		case RegionGeneral, RegionCons:
			if gcc.heap.InNewspace(addr) {
				return w
			}
			return gcc.Transport(w)
		case RegionPinned, RegionWired:
			gcc.MarkPinned(w)
			return w
		case RegionStack:
			return w
		default:
			return w
		}
	case TagDXRoot:
		// Handled explicitly by the stack walker (spec §4.4 step 6); a DX
		// root encountered outside that context is left untouched.
		return w
	default:
		return w
	}
}

// ScavengeSlot re-reads heap slot i of the object at addr, scavenges it,
// and writes it back only if it changed, per spec §4.3's interrupt-safety
// rule: "writes only if the value changed".
func (gcc *Collector) ScavengeSlot(addr Address, i uint64) {
	slot := addr + Address(i)<<addrOffsetShift
	old := gcc.heap.PeekWord(slot)
	updated := gcc.Scavenge(old)
	if updated != old {
		gcc.heap.PokeWord(slot, updated)
	}
}

// Copyright 2024 The tagheap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Pinned marking & freelist rebuild (spec §4.6). Generalizes the teacher's
// mark-sweep sweep loop (mgcsweep.go's sweepone, absent from this trimmed
// checkout but mirrored by mcache.go's span-recycling bookkeeping) into an
// explicit object-by-object walk over a region that is never copied,
// coalescing adjacent free runs into freelist entries the way the
// teacher's span freeing coalesces adjacent free spans.

package gc

// MarkPinned implements spec §4.6 "mark_pinned(obj)": flips a pinned
// object's mark bit to the current parity and recursively scans it, unless
// it is already marked this cycle.
func (gcc *Collector) MarkPinned(w Word) {
	tag := TagField(w)
	addr := PointerField(w)

	var headerAddr Address
	switch tag {
	case TagCons:
		// spec §4.6: "For a cons, the header is at addr - 16; verify it is
		// tagged cons, else panic." A pinned cons's header word carries the
		// primary TagCons tag directly, not an object-type header.
		headerAddr = addr - Address(2*wordBytes)
		if TagField(gcc.heap.PeekWord(headerAddr)) != TagCons {
			panic(&HeaderError{Op: "mark_pinned", Addr: addr, Msg: "pinned cons header is not tagged cons"})
		}
		gcc.markConsAt(headerAddr)
		return
	case TagObject:
		headerAddr = addr
		h := DecodeHeader(gcc.heap.PeekWord(headerAddr))
		if h.Type == TypeFreelistEntry {
			panic(&HeaderError{Op: "mark_pinned", Addr: addr, Type: h.Type, Msg: "attempt to mark a freelist entry live"})
		}
		gcc.markPinnedAt(headerAddr, false)
		return
	default:
		panic(&HeaderError{Op: "mark_pinned", Addr: addr, Msg: "mark_pinned called on a non-pinned tag: " + tag.String()})
	}
}

func (gcc *Collector) markPinnedAt(headerAddr Address, isCons bool) {
	h := DecodeHeader(gcc.heap.PeekWord(headerAddr))
	if h.Mark == gcc.heap.PinnedMarkBit {
		return // already marked this cycle
	}
	h.Mark = gcc.heap.PinnedMarkBit
	gcc.heap.PokeWord(headerAddr, h.Encode())
	gcc.Scan(headerAddr, h)
}

// pinnedConsMarkBit is the bit immediately above the 3-bit primary tag of
// a pinned cons's header word, since a cons carries no ObjectType header to
// host the usual Header.Mark field (spec §4.6's cons branch).
const pinnedConsMarkBit = Word(1) << tagBits

func (gcc *Collector) markConsAt(headerAddr Address) {
	header := gcc.heap.PeekWord(headerAddr)
	marked := header&pinnedConsMarkBit != 0
	if marked == gcc.heap.PinnedMarkBit {
		return // already marked this cycle
	}
	if gcc.heap.PinnedMarkBit {
		header |= pinnedConsMarkBit
	} else {
		header &^= pinnedConsMarkBit
	}
	gcc.heap.PokeWord(headerAddr, header)
	gcc.ScanCons(headerAddr + Address(2*wordBytes))
}

// freelistSlotNext is the word offset (in words, from an entry's header)
// of the link to the next free block (spec §4.6 step 4, GLOSSARY "Freelist
// entry": "whose second slot is the link to the next free block").
const freelistSlotNext = 1

// RebuildFreelist implements spec §4.6 "rebuild_freelist": walk
// [regionBase, regionEnd) object by object, coalesce adjacent unmarked runs
// into freelist entries, and link them through slot 1 into a singly linked
// list. The head entry is stored in the region's PinnedRegion.Freelist and
// also returned.
func (gcc *Collector) RebuildFreelist(region Region, regionBase, regionEnd Address) Address {
	var head Address
	var hasHead bool
	var tail Address
	var liveWords uint64

	addr := regionBase
	for addr < regionEnd {
		h := DecodeHeader(gcc.heap.PeekWord(addr))
		size, err := ObjectSize(h)
		if err != nil {
			panic(&HeaderError{Op: "rebuild_freelist", Addr: addr, Type: h.Type, Msg: err.Error()})
		}
		words := Address(size)

		marked := h.Mark == gcc.heap.PinnedMarkBit
		if marked {
			liveWords += size
			addr += words << addrOffsetShift
			continue
		}

		entryAddr := addr
		runWords := size
		next := addr + words<<addrOffsetShift
		for next < regionEnd {
			nh := DecodeHeader(gcc.heap.PeekWord(next))
			nsize, err := ObjectSize(nh)
			if err != nil {
				panic(&HeaderError{Op: "rebuild_freelist", Addr: next, Type: nh.Type, Msg: err.Error()})
			}
			if nh.Mark == gcc.heap.PinnedMarkBit {
				break
			}
			runWords += nsize
			next += Address(nsize) << addrOffsetShift
		}

		runWords = padGeneralWords(runWords)
		entryHeader := Header{Type: TypeFreelistEntry, Mark: gcc.heap.PinnedMarkBit, Data: runWords}
		gcc.heap.PokeWord(entryAddr, entryHeader.Encode())
		gcc.heap.PokeWord(entryAddr+Address(freelistSlotNext)<<addrOffsetShift, MakeTagged(TagGCForward, 0))

		if gcc.cfg.Paranoid {
			gcc.poisonFreelistEntry(entryAddr, runWords)
		}

		if !hasHead {
			head = entryAddr
			hasHead = true
		} else {
			gcc.heap.PokeWord(tail+Address(freelistSlotNext)<<addrOffsetShift, MakeTagged(TagObject, entryAddr))
		}
		tail = entryAddr

		addr = next
	}

	if hasHead {
		gcc.heap.PokeWord(tail+Address(freelistSlotNext)<<addrOffsetShift, 0)
	}

	pr, ok := gcc.heap.pinnedRegionFor(region)
	if ok {
		pr.Freelist = head
		pr.HasFreelist = hasHead
		// Used is the live extent of spec §8 property 5: words still
		// carved out by marked objects once the freelist is rebuilt.
		pr.Used = int(liveWords)
	}
	return head
}

// BaseAddressOfInternalPointer implements spec §6's
// base_address_of_internal_pointer(a): linearly search the wired region,
// then the pinned region, for the object whose word extent contains a, and
// return that object's header address. Returns false if a does not fall
// inside any object currently laid out in either region.
func (gcc *Collector) BaseAddressOfInternalPointer(a Address) (Address, bool) {
	for _, region := range [...]Region{RegionWired, RegionPinned} {
		if AddressTag(a) != region {
			continue
		}
		pr, ok := gcc.heap.pinnedRegionFor(region)
		if !ok {
			continue
		}
		regionBase := MakeAddress(region, 0, 0)
		regionEnd := MakeAddress(region, 0, uint64(len(pr.Words)))
		if base, found := gcc.searchRegionForAddress(regionBase, regionEnd, a); found {
			return base, true
		}
	}
	return 0, false
}

// searchRegionForAddress walks [regionBase, regionEnd) object by object via
// their headers, the same walk RebuildFreelist performs, looking for the
// object whose extent [addr, addr+size) contains a.
func (gcc *Collector) searchRegionForAddress(regionBase, regionEnd, a Address) (Address, bool) {
	addr := regionBase
	for addr < regionEnd {
		h := DecodeHeader(gcc.heap.PeekWord(addr))
		size, err := ObjectSize(h)
		if err != nil {
			panic(&HeaderError{Op: "base_address_of_internal_pointer", Addr: addr, Type: h.Type, Msg: err.Error()})
		}
		words := Address(size)
		next := addr + words<<addrOffsetShift
		if a >= addr && a < next {
			return addr, true
		}
		addr = next
	}
	return 0, false
}

// poisonFreelistEntry implements spec §4.6 step 5's paranoid mode:
// overwrite all non-header/non-link words of a freelist entry with -1 to
// trap use-after-free.
func (gcc *Collector) poisonFreelistEntry(entryAddr Address, words uint64) {
	for i := uint64(2); i < words; i++ {
		gcc.heap.PokeWord(entryAddr+Address(i)<<addrOffsetShift, Word(^uint64(0)))
	}
}

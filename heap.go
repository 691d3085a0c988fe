// Copyright 2024 The tagheap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The heap memory model (spec §3, §5 "Shared resources", §6 "Persisted
// state"). Generalizes the teacher's per-size-class mcache/mcentral span
// bookkeeping (mcache.go) into the two copying semispaces and the two
// pinned regions this collector manages.

package gc

import "fmt"

// Space is one half of a copying semispace: a word-addressed backing
// store, a bump pointer marking the next free word, and a scan finger
// marking how far the drain loop (spec §4.8 step 7) has progressed.
type Space struct {
	Words  []Word
	Limit  int // committed words, <= len(Words)
	Bump   int // next free word offset
	Finger int // next word offset to be scanned
}

func newSpace(capacityWords int) *Space {
	return &Space{Words: make([]Word, capacityWords)}
}

func (s *Space) reset(committed int) {
	s.Limit = committed
	s.Bump = 0
	s.Finger = 0
}

// Drained reports whether the drain loop has caught up to the bump
// pointer: the newspace finger has met its bump pointer (spec §4.8 step 7).
func (s *Space) Drained() bool { return s.Finger >= s.Bump }

// SemiSpace is a copying region with two backing Spaces, selected by the
// address space bit (spec §3 "newspace/oldspace flag").
type SemiSpace struct {
	Region Region
	spaces [2]*Space
}

func newSemiSpace(region Region, capacityWords int) *SemiSpace {
	return &SemiSpace{
		Region: region,
		spaces: [2]*Space{newSpace(capacityWords), newSpace(capacityWords)},
	}
}

func (ss *SemiSpace) space(bit uint8) *Space { return ss.spaces[bit&1] }

// PinnedRegion is a mark-sweep region: a fixed backing store that is never
// copied, plus a freelist rebuilt after every mark (spec §4.6).
type PinnedRegion struct {
	Region   Region
	Words    []Word
	Used     int // words held by objects marked live at the last freelist rebuild
	Freelist Address
	HasFreelist bool
}

func newPinnedRegion(region Region, capacityWords int) *PinnedRegion {
	return &PinnedRegion{Region: region, Words: make([]Word, capacityWords)}
}

// Heap bundles the four managed regions and the cycle-spanning mark-bit
// parity state (spec §3 "Address tag", §5 "Shared resources": region bump
// pointers, scan fingers, and mark bits are process-wide and persist across
// cycles to encode parity).
type Heap struct {
	General *SemiSpace
	Cons    *SemiSpace
	Pinned  *PinnedRegion
	Wired   *PinnedRegion

	DynamicMarkBit uint8 // which space value is newspace this cycle
	PinnedMarkBit  bool  // "marked this cycle" iff a pinned header's mark bit equals this
}

// HeapConfig sizes the four regions, in words, at construction.
type HeapConfig struct {
	GeneralWords int
	ConsWords    int
	PinnedWords  int
	WiredWords   int
}

// DefaultHeapConfig mirrors the teacher's heapminimum default order of
// magnitude (mgc.go: 4<<20 bytes), scaled down for an in-process simulated
// heap sized in words rather than bytes.
func DefaultHeapConfig() HeapConfig {
	return HeapConfig{
		GeneralWords: 1 << 16,
		ConsWords:    1 << 16,
		PinnedWords:  1 << 15,
		WiredWords:   1 << 12,
	}
}

// NewHeap allocates a heap with the given region capacities. Initially
// DynamicMarkBit selects space 0 as newspace.
func NewHeap(cfg HeapConfig) *Heap {
	h := &Heap{
		General: newSemiSpace(RegionGeneral, cfg.GeneralWords),
		Cons:    newSemiSpace(RegionCons, cfg.ConsWords),
		Pinned:  newPinnedRegion(RegionPinned, cfg.PinnedWords),
		Wired:   newPinnedRegion(RegionWired, cfg.WiredWords),
	}
	h.General.space(0).reset(cfg.GeneralWords)
	h.Cons.space(0).reset(cfg.ConsWords)
	return h
}

// semiSpaceFor returns the SemiSpace for a copying region.
func (h *Heap) semiSpaceFor(r Region) (*SemiSpace, bool) {
	switch r {
	case RegionGeneral:
		return h.General, true
	case RegionCons:
		return h.Cons, true
	default:
		return nil, false
	}
}

// pinnedRegionFor returns the PinnedRegion for a non-copying region.
func (h *Heap) pinnedRegionFor(r Region) (*PinnedRegion, bool) {
	switch r {
	case RegionPinned:
		return h.Pinned, true
	case RegionWired:
		return h.Wired, true
	default:
		return nil, false
	}
}

// InNewspace reports whether addr's space bit names this cycle's newspace.
func (h *Heap) InNewspace(addr Address) bool {
	return SpaceBit(addr) == h.DynamicMarkBit
}

// PeekWord reads the word at addr. Panics (via a HeaderError-shaped
// diagnostic) on an out-of-range address, mirroring the teacher's
// throw-on-corruption posture rather than returning a recoverable error —
// an out-of-range heap address is always a collector bug, never mutator
// input (spec §7: "no error is recoverable locally").
func (h *Heap) PeekWord(addr Address) Word {
	region := AddressTag(addr)
	off := int(Offset(addr))
	if ss, ok := h.semiSpaceFor(region); ok {
		s := ss.space(SpaceBit(addr))
		if off < 0 || off >= len(s.Words) {
			panic(&HeaderError{Op: "PeekWord", Addr: addr, Msg: fmt.Sprintf("offset %d out of range for %s", off, region)})
		}
		return s.Words[off]
	}
	if pr, ok := h.pinnedRegionFor(region); ok {
		if off < 0 || off >= len(pr.Words) {
			panic(&HeaderError{Op: "PeekWord", Addr: addr, Msg: fmt.Sprintf("offset %d out of range for %s", off, region)})
		}
		return pr.Words[off]
	}
	panic(&HeaderError{Op: "PeekWord", Addr: addr, Msg: "address is not in a heap region"})
}

// PokeWord writes w at addr.
func (h *Heap) PokeWord(addr Address, w Word) {
	region := AddressTag(addr)
	off := int(Offset(addr))
	if ss, ok := h.semiSpaceFor(region); ok {
		s := ss.space(SpaceBit(addr))
		if off < 0 || off >= len(s.Words) {
			panic(&HeaderError{Op: "PokeWord", Addr: addr, Msg: fmt.Sprintf("offset %d out of range for %s", off, region)})
		}
		s.Words[off] = w
		return
	}
	if pr, ok := h.pinnedRegionFor(region); ok {
		if off < 0 || off >= len(pr.Words) {
			panic(&HeaderError{Op: "PokeWord", Addr: addr, Msg: fmt.Sprintf("offset %d out of range for %s", off, region)})
		}
		pr.Words[off] = w
		return
	}
	panic(&HeaderError{Op: "PokeWord", Addr: addr, Msg: "address is not in a heap region"})
}

// bumpAllocate reserves words words of newspace in the given copying
// region and returns the address of the first reserved word. For the
// general region, an odd word count is padded by one zeroed word (spec
// §4.2 step 3, §3 Invariant 4); the cons region always allocates exactly 2
// words.
func (h *Heap) bumpAllocate(region Region, words uint64) (Address, error) {
	ss, ok := h.semiSpaceFor(region)
	if !ok {
		return 0, fmt.Errorf("gc: bumpAllocate: %s is not a copying region", region)
	}
	if region == RegionCons {
		words = 2
	} else {
		words = padGeneralWords(words)
	}
	s := ss.space(h.DynamicMarkBit)
	if s.Bump+int(words) > s.Limit {
		return 0, fmt.Errorf("gc: bumpAllocate: %s newspace exhausted (need %d, have %d)", region, words, s.Limit-s.Bump)
	}
	off := s.Bump
	s.Bump += int(words)
	for i := off; i < off+int(words); i++ {
		s.Words[i] = 0
	}
	return MakeAddress(region, h.DynamicMarkBit, uint64(off)), nil
}

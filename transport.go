// Copyright 2024 The tagheap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Transport (spec §4.2). Generalizes the teacher's typedmemmove
// (mbarrier.go) — copy-with-bookkeeping of a typed value — into copying an
// entire tagged object from oldspace to newspace and leaving a forwarding
// pointer behind, the move a precise copying collector performs in place
// of a mark bit.

package gc

// Transport copies the live object addressed by w from oldspace to
// newspace, installing a forwarding pointer in the process, and returns the
// tagged pointer to the copy. Preconditions: w's tag is TagObject or
// TagCons and its address is in oldspace (spec §4.2).
//
// Transport is idempotent: a second call on the same oldspace object finds
// the gc-forward tag left by the first and returns the prior relocation
// without allocating (spec §4.2, Testable property 2).
func (gcc *Collector) Transport(w Word) Word {
	tag := TagField(w)
	if tag != TagObject && tag != TagCons {
		panic(&HeaderError{Op: "transport", Msg: "transport called on a non-pointer tag: " + tag.String()})
	}
	addr := PointerField(w)

	first := gcc.heap.PeekWord(addr)
	if TagField(first) == TagGCForward {
		return MakeTagged(tag, PointerField(first))
	}

	var newAddr Address
	var words, consedWords uint64
	switch tag {
	case TagCons:
		words = 2
		consedWords = 2
		var err error
		newAddr, err = gcc.heap.bumpAllocate(RegionCons, words)
		if err != nil {
			panic(&TransportError{Addr: addr, Msg: err.Error()})
		}
	case TagObject:
		h := DecodeHeader(first)
		size, err := ObjectSize(h)
		if err != nil {
			panic(&TransportError{Addr: addr, Msg: err.Error()})
		}
		words = size
		consedWords = padGeneralWords(size)
		newAddr, err = gcc.heap.bumpAllocate(RegionGeneral, size)
		if err != nil {
			panic(&TransportError{Addr: addr, Msg: err.Error()})
		}
	}
	// wordsConsed reflects words actually reserved by bumpAllocate, which
	// pads the general region to an even count (spec §3 Invariant 4); only
	// the unpadded count below is copied, since the source object has no
	// readable pad word of its own.
	gcc.meters.wordsConsed.Add(float64(consedWords))

	for i := uint64(0); i < words; i++ {
		gcc.heap.PokeWord(newAddr+Address(i)<<addrOffsetShift, gcc.heap.PeekWord(addr+Address(i)<<addrOffsetShift))
	}

	gcc.heap.PokeWord(addr, MakeTagged(TagGCForward, newAddr))

	gcc.meters.objectsCopied.Inc()
	gcc.meters.wordsCopied.Add(float64(words))

	return MakeTagged(tag, newAddr)
}

// TransportError reports a GC-invariant violation encountered while
// transporting an object: an unrecognized object tag, or newspace
// exhaustion (spec §4.2, §7 "Unrecognized object tag").
type TransportError struct {
	Addr Address
	Msg  string
}

func (e *TransportError) Error() string      { return "gc: transport: " + e.Msg }
func (*TransportError) RuntimeError()        {}

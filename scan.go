// Copyright 2024 The tagheap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Scan (spec §4.3 "scan(obj)"). Generalizes the teacher's scanobject
// (mgcmark.go), which walks a heapBits-described span of pointer words, into
// a dispatch over the fixed set of object types, since this collector has
// no separate pointer bitmap side table for heap objects the way the
// teacher's GC does — the type tag itself says which slots are references.

package gc

// Scan walks the reference slots of the object addressed by addr with
// header h, scavenging each one in place (spec §4.3). Cons cells are
// handled by ScanCons since they carry no header.
func (gcc *Collector) Scan(addr Address, h Header) {
	switch h.Type {
	case TypeReferenceArray, TypeStructure:
		n := 1 + h.Data
		for i := uint64(1); i < n; i++ {
			gcc.ScavengeSlot(addr, i)
		}

	case TypeSymbol:
		for i := uint64(1); i < sizeSymbolWords; i++ {
			gcc.ScavengeSlot(addr, i)
		}

	case TypeStdInstance, TypeFunctionRef:
		for i := uint64(1); i < sizeStdInstanceWords; i++ {
			gcc.ScavengeSlot(addr, i)
		}

	case TypeComplexRational, TypeRatio:
		for i := uint64(1); i < sizeComplexWords; i++ {
			gcc.ScavengeSlot(addr, i)
		}

	case TypeComplexArray:
		// Dimension/metadata slots only; the leaf element payload is not
		// scanned (spec §4.3 "simple arrays: 4 dimension/metadata slots").
		const metadataSlots = 4
		for i := uint64(1); i < metadataSlots; i++ {
			gcc.ScavengeSlot(addr, i)
		}

	case TypeFunction:
		gcc.scanFunction(addr, h)

	case TypeThread:
		gcc.scanThreadObject(addr)

	case TypeWeakPointer:
		gcc.discoverWeakPointer(addr)

	case TypeBignum, TypeFloatSingle, TypeFloatDouble, TypeFloatLong,
		TypeSimdVector, TypeNumericArray, TypeUnboundValue, TypeFreelistEntry,
		TypeSimpleString:
		// Leaf types: no reference slots (spec §4.3).

	default:
		panic(&ScanError{Addr: addr, Type: h.Type, Msg: "unrecognized object type"})
	}
}

// ScanCons scans the two slots of a cons cell at addr (spec §4.3 "Cons: two
// slots"). Cons cells have no header word; both words are data slots.
func (gcc *Collector) ScanCons(addr Address) {
	car := gcc.heap.PeekWord(addr)
	if updated := gcc.Scavenge(car); updated != car {
		gcc.heap.PokeWord(addr, updated)
	}
	cdrSlot := addr + Address(1)<<addrOffsetShift
	cdr := gcc.heap.PeekWord(cdrSlot)
	if updated := gcc.Scavenge(cdr); updated != cdr {
		gcc.heap.PokeWord(cdrSlot, updated)
	}
}

// scanFunction walks a function object's constant pool, which follows its
// machine code in the object's word extent (spec §4.3 "Functions: walk the
// constant pool ... Pool base = object_addr + mc_size; pool length =
// pool_size_field").
func (gcc *Collector) scanFunction(addr Address, h Header) {
	fd := decodeFunctionData(h.Data)
	poolBaseWords := ceilDiv(fd.mcSize, 8)
	poolLenWords := ceilDiv(fd.poolSize, 8)
	for i := uint64(0); i < poolLenWords; i++ {
		gcc.ScavengeSlot(addr, 1+poolBaseWords+i)
	}
}

// Copyright 2024 The tagheap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Size derivation (spec §3 "Size derivation", §4.1 object_size).

package gc

import "math/bits"

// Fixed sizes, in 8-byte words, for object types whose size does not depend
// on their header data field (spec §3).
const (
	sizeFloatWords       = 2
	sizeComplexWords     = 3
	sizeSymbolWords      = 6
	sizeStdInstanceWords = 4
	sizeThreadWords      = 512
	sizeWeakPointerWords = 6
	sizeUnboundValueWords = 2
)

// ObjectSize returns the size, in 8-byte words, of the object whose header
// is h, or an error if h.Type is not a recognized object type (spec §4.1,
// §4.2 step 2: "if size is undefined ... panic").
func ObjectSize(h Header) (uint64, error) {
	switch h.Type {
	case TypeReferenceArray, TypeStructure:
		return 1 + h.Data, nil
	case TypeNumericArray:
		return 1 + packedWords(h.Data), nil
	case TypeComplexArray:
		// Metadata slots (dimensions, fill pointer, etc.) plus header; the
		// leaf element payload is not scanned but must still be sized, and
		// its bit width travels in the same packed encoding as a simple
		// numeric array (spec §3 "Packed numeric arrays").
		// The header plus three metadata slots are the four words Scan
		// walks for this type.
		return 4 + packedWords(h.Data), nil
	case TypeSimpleString:
		return 1 + packedWords(h.Data), nil
	case TypeSymbol:
		return sizeSymbolWords, nil
	case TypeStdInstance, TypeFunctionRef:
		return sizeStdInstanceWords, nil
	case TypeFunction:
		// Each sub-field rounds up to a whole word on its own, matching
		// scanFunction's pool-base arithmetic exactly (1 header word + each
		// of mc/pool/gcinfo independently ceil-divided); a joint ceiling of
		// the summed byte counts can under-report by a word whenever two
		// sub-fields both have a nonzero remainder.
		fd := decodeFunctionData(h.Data)
		return 1 + ceilDiv(fd.mcSize, 8) + ceilDiv(fd.poolSize, 8) + ceilDiv(fd.gcInfoSize, 8), nil
	case TypeBignum:
		return 1 + h.Data, nil
	case TypeFloatSingle, TypeFloatDouble, TypeFloatLong:
		return sizeFloatWords, nil
	case TypeComplexRational, TypeRatio:
		return sizeComplexWords, nil
	case TypeSimdVector:
		return 1 + h.Data, nil
	case TypeThread:
		return sizeThreadWords, nil
	case TypeWeakPointer:
		return sizeWeakPointerWords, nil
	case TypeUnboundValue:
		return sizeUnboundValueWords, nil
	case TypeFreelistEntry:
		// The data field of a freelist entry directly encodes its size in
		// words (spec §4.6 step 2, GLOSSARY "Freelist entry").
		return h.Data, nil
	default:
		return 0, &HeaderError{Op: "object_size", Type: h.Type, Msg: "unrecognized object type"}
	}
}

// packedWords computes ceil(length * element-bits / 64) for a packed
// numeric array whose data field encodes (length, element-bits) as the low
// 48 bits and top 8 bits respectively. This is an implementation choice for
// how the two packed sub-fields share the 56/57-bit data field; see
// DESIGN.md.
func packedWords(data uint64) uint64 {
	const lengthBits = 48
	length := data & (uint64(1)<<lengthBits - 1)
	elemBits := data >> lengthBits
	if elemBits == 0 {
		elemBits = 1
	}
	return ceilDiv(length*elemBits, 64)
}

func ceilDiv(n, d uint64) uint64 {
	if d == 0 {
		return 0
	}
	return (n + d - 1) / d
}

// padGeneralWords rounds a general-region allocation up to an even word
// count (spec §3 Invariant 4).
func padGeneralWords(words uint64) uint64 {
	return (words + 1) &^ 1
}

// bitLen reports the number of bits needed to represent n. Nothing in the
// package calls it.
func bitLen(n uint64) int { return bits.Len64(n) }

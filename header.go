// Copyright 2024 The tagheap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Object headers and the type tag (spec §3 "Object header", §3 "Object
// types"). Generalizes the teacher's _type.kind byte (type.go) from a
// single reflect kind byte to the GC's own closed object-type tag, and its
// gc[2]uintptr side-table idea into a single packed header word.

package gc

// ObjectType is the 6-bit type tag occupying the low bits of an object
// header word.
type ObjectType uint8

const (
	TypeReferenceArray ObjectType = iota // t-array of references
	TypeNumericArray                     // packed leaf numeric array
	TypeComplexArray                     // complex array (metadata + leaf payload)
	TypeSimpleString
	TypeSymbol
	TypeStructure
	TypeStdInstance
	TypeFunctionRef
	TypeFunction
	TypeBignum
	TypeFloatSingle
	TypeFloatDouble
	TypeFloatLong
	TypeComplexRational
	TypeRatio
	TypeSimdVector
	TypeThread
	TypeWeakPointer
	TypeFreelistEntry
	TypeUnboundValue
)

func (t ObjectType) String() string {
	names := [...]string{
		"reference-array", "numeric-array", "complex-array", "simple-string",
		"symbol", "structure", "std-instance", "function-ref", "function",
		"bignum", "single-float", "double-float", "long-float",
		"complex-rational", "ratio", "simd-vector", "thread", "weak-pointer",
		"freelist-entry", "unbound-value",
	}
	if int(t) < len(names) {
		return names[t]
	}
	return "unknown-object-type"
}

const (
	headerTypeBits   = 6
	headerTypeMask   = Word(1)<<headerTypeBits - 1
	headerMarkBit    = Word(1) << headerTypeBits
	headerDataShift  = headerTypeBits + 1
)

// Header is the decoded form of an object's first word: a 6-bit type tag, a
// pinned-area mark bit (meaningful only for pinned/wired objects), and a
// data field whose interpretation depends on the type (spec §3).
type Header struct {
	Type ObjectType
	Mark bool
	Data uint64
}

// DecodeHeader reads the fields of a raw header word.
func DecodeHeader(w Word) Header {
	return Header{
		Type: ObjectType(w & headerTypeMask),
		Mark: w&headerMarkBit != 0,
		Data: uint64(w >> headerDataShift),
	}
}

// Encode packs h back into a raw header word.
func (h Header) Encode() Word {
	w := Word(h.Type) & headerTypeMask
	if h.Mark {
		w |= headerMarkBit
	}
	w |= Word(h.Data) << headerDataShift
	return w
}

// functionHeaderData unpacks the three sub-fields of a function object's
// data field: machine-code size, constant-pool size, and GC-info size, all
// in bytes (spec §3 "Size derivation", functions).
type functionHeaderData struct {
	mcSize     uint64
	poolSize   uint64
	gcInfoSize uint64
}

const (
	fnFieldBits = 19 // 3 * 19 = 57 <= available data bits
	fnFieldMask = uint64(1)<<fnFieldBits - 1
)

func decodeFunctionData(data uint64) functionHeaderData {
	return functionHeaderData{
		mcSize:     data & fnFieldMask,
		poolSize:   (data >> fnFieldBits) & fnFieldMask,
		gcInfoSize: (data >> (2 * fnFieldBits)) & fnFieldMask,
	}
}

func encodeFunctionData(mcSize, poolSize, gcInfoSize uint64) uint64 {
	return (mcSize & fnFieldMask) |
		(poolSize&fnFieldMask)<<fnFieldBits |
		(gcInfoSize&fnFieldMask)<<(2*fnFieldBits)
}

// HeaderError reports an unrecognized or structurally invalid object
// header, the GC-invariant violation class of spec §7 ("Unrecognized
// object tag", "Pinned-object header mismatch").
type HeaderError struct {
	Op   string
	Addr Address
	Type ObjectType
	Msg  string
}

func (e *HeaderError) Error() string {
	return "gc: " + e.Op + ": " + e.Msg
}

// RuntimeError marks HeaderError as a collector-fatal error, mirroring the
// teacher's runtime.Error marker (error.go).
func (*HeaderError) RuntimeError() {}

// Copyright 2024 The tagheap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Stack walker (spec §4.4, §4.5a). Generalizes the teacher's gentraceback
// (stack.go/traceback-adjacent machinery in the real runtime), which walks
// frames using per-function pcdata tables, into the spec's explicit
// (sp, fp, pc) triple plus a layout-bitmap lookup, including the
// full-save enrichments of §4.5a that only the first frame of an
// interrupted thread ever carries.

package gc

const wordBytes = 8

// walkStack implements the mid-call path of spec §4.5: the initial walker
// triple is read directly off the thread's saved (sp, fp, pc) with no
// full-save enrichments in play.
func (gcc *Collector) walkStack(t *Thread, sp, fp Address, pc uint64) {
	gcc.walkFrames(t, sp, fp, pc, false)
}

// scanFullSave implements spec §4.5a: the first frame carries the
// interrupt-precise enrichments (data registers, extra_registers,
// block_or_tagbody_thunk, multiple_values, register-borne incoming
// arguments and pushed-values count), after which the walk continues into
// the caller exactly as an ordinary mid-call frame.
func (gcc *Collector) scanFullSave(t *Thread) {
	gcc.scavengeDataRegisters(&t.DataRegisters)
	gcc.walkFrames(t, t.SP, t.FP, t.PC, true)
}

// walkFrames is the shared frame loop. firstFullSave is true only for the
// first iteration of a full-save thread's walk (spec §4.5a); every
// subsequent frame, and every frame of a mid-call thread, is ordinary.
func (gcc *Collector) walkFrames(t *Thread, sp, fp Address, pc uint64, firstFullSave bool) {
	for {
		if pc == 0 {
			return // spec §4.4 "Termination: empty return address"
		}

		fn, ok := gcc.sup.ReturnAddressToFunction(pc)
		if !ok {
			gcc.panicDiagnostic(&MetadataError{PC: pc, Field: "return_address_to_function", Msg: "unresolved return address"})
			return
		}

		table, err := gcc.sup.MapFunctionGCMetadata(fn)
		if err != nil {
			gcc.panicDiagnostic(err.(Error))
			return
		}

		offset := pc - uint64(fn)
		entry, ok := table.Lookup(offset)
		if !ok {
			gcc.panicDiagnostic(&MetadataError{PC: pc, Field: "layout", Msg: "no metadata entry covers this call site"})
			return
		}

		fullSave := firstFullSave
		gcc.validateFrameMetadata(entry, fullSave)

		// Step 4: scavenge the function pointer itself.
		gcc.Scavenge(MakeTagged(TagObject, fn))

		if fullSave {
			sp, fp = gcc.applyFullSaveEnrichments(t, entry, sp, fp)
		}

		gcc.scanLayoutBitmap(entry, sp, fp)
		gcc.scanPushedValues(t, entry, sp, fullSave)
		gcc.scanIncomingArguments(t, entry, sp, pc, fullSave)

		if !entry.Framep {
			gcc.panicDiagnostic(&MetadataError{PC: pc, Field: "framep", Msg: "mid-call frame without a frame pointer"})
			return
		}

		nextSP := fp + Address(2*wordBytes)
		nextFP := Address(gcc.heap.PeekWord(fp))
		nextPC := uint64(gcc.heap.PeekWord(fp + Address(wordBytes)))

		if fp == 0 {
			return // spec §4.4 "or zero frame pointer ends the walk"
		}

		sp, fp, pc = nextSP, nextFP, nextPC
		firstFullSave = false
	}
}

// validateFrameMetadata enforces spec §4.4 step 3: interruptp is never
// legal, and the full-save-only fields are rejected outside a full-save
// frame.
func (gcc *Collector) validateFrameMetadata(entry PCMetadataEntry, fullSave bool) {
	if entry.Interruptp {
		gcc.panicDiagnostic(&MetadataError{Field: "interruptp", Msg: "interruptp is unsupported in stack frames"})
	}
	if !fullSave && entry.isFullSaveOnly() {
		gcc.panicDiagnostic(&MetadataError{Field: "full-save-only", Msg: "full-save-only field set on a mid-call frame"})
	}
}

// applyFullSaveEnrichments handles the §4.5a fields that can redirect
// (sp, fp) before the frame's ordinary layout is scanned: block_or_tagbody
// NLX redirection, and extra_registers.
func (gcc *Collector) applyFullSaveEnrichments(t *Thread, entry PCMetadataEntry, sp, fp Address) (Address, Address) {
	switch entry.ExtraRegisters {
	case ExtraRegistersRax:
		t.DataRegisters.RAX = gcc.Scavenge(t.DataRegisters.RAX)
	case ExtraRegistersRaxRcx:
		t.DataRegisters.RAX = gcc.Scavenge(t.DataRegisters.RAX)
		t.DataRegisters.RCX = gcc.Scavenge(t.DataRegisters.RCX)
	case ExtraRegistersRaxRcxRdx:
		t.DataRegisters.RAX = gcc.Scavenge(t.DataRegisters.RAX)
		t.DataRegisters.RCX = gcc.Scavenge(t.DataRegisters.RCX)
		t.DataRegisters.RDX = gcc.Scavenge(t.DataRegisters.RDX)
	}

	if entry.BlockOrTagbodyThunk {
		block := PointerField(t.DataRegisters.RAX)
		sp = Address(gcc.heap.PeekWord(block + Address(2*wordBytes)))
		fp = Address(gcc.heap.PeekWord(block + Address(3*wordBytes)))
	}

	if entry.MultipleValues != 0 {
		for i := range t.MVSlots {
			t.MVSlots[i] = gcc.Scavenge(t.MVSlots[i])
		}
	}

	return sp, fp
}

// scanLayoutBitmap implements spec §4.4 steps 5-6: walk the layout bitmap,
// scavenging tagged slots and recursing into dynamic-extent roots.
func (gcc *Collector) scanLayoutBitmap(entry PCMetadataEntry, sp, fp Address) {
	for i := uint64(0); i < entry.LayoutLength; i++ {
		word, bit := i/64, i%64
		bitmapWord := gcc.heap.PeekWord(entry.LayoutAddr + Address(word*wordBytes))
		if uint64(bitmapWord)&(1<<bit) == 0 {
			continue
		}

		var slotAddr Address
		if entry.Framep {
			slotAddr = fp - Address((i+1)*wordBytes)
		} else {
			slotAddr = sp + Address(i*wordBytes)
		}

		val := gcc.heap.PeekWord(slotAddr)

		if TagField(val) == TagDXRoot {
			gcc.scanDXRoot(val, sp)
			continue // spec §4.4 step 6: "Do not scavenge/overwrite it"
		}

		updated := gcc.Scavenge(val)
		if updated != val {
			gcc.heap.PokeWord(slotAddr, updated)
		}
	}
}

// scanDXRoot implements spec §4.4 step 6: a dx-root-object slot names an
// inline payload on the same stack, scanned only if it has not been left
// dangling by an in-progress nonlocal exit.
func (gcc *Collector) scanDXRoot(val Word, sp Address) {
	payload := PointerField(val)
	if payload < sp {
		return // spec §9 "Partial NLX": the sole dangling-DX guard
	}
	h := DecodeHeader(gcc.heap.PeekWord(payload))
	gcc.Scan(payload, h)
}

// scanPushedValues implements spec §4.4 step 7 / §4.5a's register variant:
// scan a fixed count of additional tagged slots immediately above sp.
func (gcc *Collector) scanPushedValues(t *Thread, entry PCMetadataEntry, sp Address, fullSave bool) {
	if entry.PushedValues < 0 {
		return
	}
	count := entry.PushedValues
	if fullSave && entry.PushedValuesRegister {
		count += fixnumValue(t.DataRegisters.RCX)
	}
	for i := int64(0); i < count; i++ {
		slotAddr := sp + Address(uint64(i)*wordBytes)
		val := gcc.heap.PeekWord(slotAddr)
		updated := gcc.Scavenge(val)
		if updated != val {
			gcc.heap.PokeWord(slotAddr, updated)
		}
	}
}

// scanIncomingArguments implements spec §4.4 step 8 / §4.5a's "rcx"
// variant: scavenge the caller's outgoing-args strip above the return
// address once the declared argument count exceeds the 5 always-scavenged
// by the callee's own frame.
func (gcc *Collector) scanIncomingArguments(t *Thread, entry PCMetadataEntry, sp Address, returnPC uint64, fullSave bool) {
	ia := entry.IncomingArguments
	if !ia.Present {
		return
	}

	var nArgs int64
	if ia.Register {
		if !fullSave {
			return // rejected earlier by validateFrameMetadata; defensive no-op
		}
		nArgs = fixnumValue(t.DataRegisters.RCX)
	} else {
		slotAddr := sp + Address(ia.SlotIndex*wordBytes)
		nArgs = fixnumValue(gcc.heap.PeekWord(slotAddr))
	}

	extra := nArgs - 5
	if extra <= 0 {
		return
	}

	// The outgoing-args strip sits directly above the return address slot
	// on the caller's frame; this offset is an implementation choice for
	// where that slot lives relative to sp, documented in DESIGN.md.
	base := sp + Address(wordBytes) // past the return-address slot itself
	for i := int64(0); i < extra; i++ {
		slotAddr := base + Address(uint64(i)*wordBytes)
		val := gcc.heap.PeekWord(slotAddr)
		updated := gcc.Scavenge(val)
		if updated != val {
			gcc.heap.PokeWord(slotAddr, updated)
		}
	}
}

// fixnumValue decodes a tagged fixnum word to its signed integer value.
func fixnumValue(w Word) int64 {
	return int64(w) >> tagBits
}

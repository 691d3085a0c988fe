// Copyright 2024 The tagheap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Weak pointers & finalizers (spec §4.7). Generalizes the teacher's
// mfinal.go (a single global finalizer queue keyed by object address) into
// the spec's weak-pointer object with an explicit livep bit, worklist, and
// finalizer-link chain, and implements the Haible/Peyton-Jones fixpoint the
// teacher's simpler "finalizer survives one extra cycle" scheme doesn't
// need.

package gc

// weakLivepBit is the bit of a weak pointer's header data field recording
// whether the key was observed live in the current cycle (spec §3 "Object
// header", §4.7).
const weakLivepBit = uint64(1)

// Weak pointer slot indices, 1-based from the object's header word (spec
// §4.7: "slots: key, value, link, finalizer-link, finalizer").
const (
	weakSlotKey = 1 + iota
	weakSlotValue
	weakSlotLink
	weakSlotFinalizerLink
	weakSlotFinalizer
)

// WeakPointer is a handle onto a weak-pointer object's heap words, read and
// written directly through the owning Collector's heap so every mutation
// is immediately visible to later scans of the same address — there is no
// separate copy of its state.
type WeakPointer struct {
	gcc  *Collector
	Addr Address
}

func (w *WeakPointer) slot(i uint64) Address { return w.Addr + Address(i)<<addrOffsetShift }

func (w *WeakPointer) header() Header     { return DecodeHeader(w.gcc.heap.PeekWord(w.Addr)) }
func (w *WeakPointer) setHeader(h Header) { w.gcc.heap.PokeWord(w.Addr, h.Encode()) }

func (w *WeakPointer) livep() bool { return w.header().Data&weakLivepBit != 0 }

func (w *WeakPointer) setLivep(live bool) {
	h := w.header()
	if live {
		h.Data |= weakLivepBit
	} else {
		h.Data &^= weakLivepBit
	}
	w.setHeader(h)
}

func (w *WeakPointer) key() Word       { return w.gcc.heap.PeekWord(w.slot(weakSlotKey)) }
func (w *WeakPointer) setKey(v Word)   { w.gcc.heap.PokeWord(w.slot(weakSlotKey), v) }
func (w *WeakPointer) value() Word     { return w.gcc.heap.PeekWord(w.slot(weakSlotValue)) }
func (w *WeakPointer) setValue(v Word) { w.gcc.heap.PokeWord(w.slot(weakSlotValue), v) }
func (w *WeakPointer) finalizer() Word { return w.gcc.heap.PeekWord(w.slot(weakSlotFinalizer)) }

// WeakPointerValue implements the exposed "weak_pointer_value(o) -> (value,
// live?)" interface of spec §6.
func (gcc *Collector) WeakPointerValue(addr Address) (Word, bool) {
	w := &WeakPointer{gcc: gcc, Addr: addr}
	return w.value(), w.livep()
}

// WeakPointerP implements spec §6's "weak_pointer_p(o)".
func (gcc *Collector) WeakPointerP(addr Address) bool {
	return DecodeHeader(gcc.heap.PeekWord(addr)).Type == TypeWeakPointer
}

// discoverWeakPointer implements spec §4.3's weak-pointer scan case: if
// livep is set, prepend to the worklist and scavenge the slots that must
// survive regardless of key liveness (finalizer-link, finalizer).
func (gcc *Collector) discoverWeakPointer(addr Address) {
	w := &WeakPointer{gcc: gcc, Addr: addr}

	gcc.ScavengeSlot(addr, weakSlotFinalizerLink)
	gcc.ScavengeSlot(addr, weakSlotFinalizer)

	if w.livep() {
		gcc.weakWorklist = append([]*WeakPointer{w}, gcc.weakWorklist...)
	}
}

// keyLiveness examines a weak pointer's key per spec §4.7 "Key examination"
// and, if live, returns the (possibly forwarded) key value.
func (gcc *Collector) keyLiveness(key Word) (live bool, forwarded Word) {
	if Immediatep(key) {
		return true, key
	}
	tag := TagField(key)
	switch tag {
	case TagCons, TagObject:
		addr := PointerField(key)
		switch AddressTag(addr) {
		case RegionGeneral, RegionCons:
			first := gcc.heap.PeekWord(addr)
			if TagField(first) == TagGCForward {
				return true, MakeTagged(tag, PointerField(first))
			}
			return false, 0
		case RegionPinned, RegionWired:
			h := DecodeHeader(gcc.heap.PeekWord(addr))
			return h.Mark == gcc.heap.PinnedMarkBit, key
		}
	}
	return true, key
}

// weakFixpoint runs the Haible/Peyton-Jones liveness fixpoint of spec §4.7
// over gcc.weakWorklist, draining newly discovered transport work between
// passes via drain.
func (gcc *Collector) weakFixpoint(drain func()) {
	for {
		var retained []*WeakPointer
		progressed := false

		for _, w := range gcc.weakWorklist {
			live, forwardedKey := gcc.keyLiveness(w.key())
			if live {
				w.setKey(forwardedKey)
				w.setValue(gcc.Scavenge(w.value()))
				progressed = true
				continue
			}
			retained = append(retained, w)
		}

		gcc.weakWorklist = retained

		if !progressed {
			break
		}
		drain()
	}

	for _, w := range gcc.weakWorklist {
		w.setKey(0)
		w.setValue(0)
		w.setLivep(false)
		gcc.meters.weakPointersBroken.Inc()
	}
}

// spliceFinalizers walks gcc.knownFinalizers and moves every weak pointer
// whose livep bit is now clear onto gcc.pendingFinalizers, per spec §4.7
// "Finalizer processing".
func (gcc *Collector) spliceFinalizers() {
	var remaining []*WeakPointer
	for _, w := range gcc.knownFinalizers {
		if w.livep() {
			remaining = append(remaining, w)
			continue
		}
		gcc.pendingFinalizers = append([]*WeakPointer{w}, gcc.pendingFinalizers...)
	}
	gcc.knownFinalizers = remaining
}

// KnownFinalizer registers a weak pointer as carrying a live finalizer,
// the bookkeeping the spec leaves to "creation (out of scope)" but which a
// usable implementation still needs a registration point for.
func (gcc *Collector) KnownFinalizer(addr Address) {
	gcc.knownFinalizers = append(gcc.knownFinalizers, &WeakPointer{gcc: gcc, Addr: addr})
}

// runPendingFinalizers invokes every queued finalizer after the
// stop-the-world phase has ended (spec §4.7, §4.8 step 13), clearing the
// finalizer slot immediately after each call so a finalized object cannot
// be kept alive through its own finalizer closure.
func (gcc *Collector) runPendingFinalizers(call func(fn Word)) {
	pending := gcc.pendingFinalizers
	gcc.pendingFinalizers = nil
	for _, w := range pending {
		fn := w.finalizer()
		w.gcc.heap.PokeWord(w.slot(weakSlotFinalizer), 0)
		if fn != 0 {
			call(fn)
		}
		gcc.meters.finalizersRun.Inc()
	}
}

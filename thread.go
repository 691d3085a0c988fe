// Copyright 2024 The tagheap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Thread scanner (spec §4.5, §4.5a). Generalizes the teacher's g (goroutine)
// struct and its stack-scanning entry point scanstack (mgcmark.go) from "one
// fixed Go calling convention, one register set the runtime itself chose"
// to the spec's externally defined thread layout: admin slots, a TLS slot
// range, an MV-area, and either a full register save or a live (sp, fp, pc)
// triple.

package gc

import "go.uber.org/zap"

func zapAddr(addr Address) zap.Field { return zap.Uint64("addr", uint64(addr)) }

// ThreadState mirrors spec §6 "Thread accessors: state" — dead, runnable,
// or the numeric sentinel for partially-initialized.
type ThreadState int

const (
	ThreadRunnable ThreadState = iota
	ThreadDead
	ThreadPartiallyInitialized
)

// ExtraRegisters enumerates spec §4.5a's "extra_registers" field: how many
// of rax/rcx/rdx hold additional live tagged values at a full-save site.
type ExtraRegisters int

const (
	ExtraRegistersNone ExtraRegisters = iota
	ExtraRegistersRax
	ExtraRegistersRaxRcx
	ExtraRegistersRaxRcxRdx
)

// Registers is the subset of a thread's saved register file the scanner
// and stack walker ever need (spec §6: "register-value accessors (rax,
// rcx, rdx, r8..r13, rbx)").
type Registers struct {
	RAX, RCX, RDX Word
	R8, R9, R10, R11, R12, R13 Word
	RBX Word
}

// Thread is the scanner's view of one mutator thread (spec §4.5). AdminSlots
// holds the identity/bookkeeping tagged values scavenged unconditionally
// (name, state, lock, stack object, special-stack-pointer, wait-item,
// linked-list siblings, pending-footholds, mutex-stack — spec §4.5 first
// bullet); its exact layout is owned by the embedding system, not the
// collector, so the collector only ever walks the slice.
type Thread struct {
	Addr Address

	State ThreadState

	AdminSlots []Word

	// DataRegisters (r8-r13, rbx) are scavenged for a partially-initialized
	// thread (spec §4.5) and on the full-save path (spec §4.5a). A thread
	// stopped mid-call does not have them scanned.
	DataRegisters Registers

	// TLSSlots is the thread-local-storage slot range, scavenged for every
	// live thread regardless of state (spec §4.5).
	TLSSlots []Word

	// MVSlots is the fixed-size multiple-value area inside the thread
	// object (spec §4.5a "multiple_values"). Its base is derived from the
	// thread's own address per spec §9's corrected-form design note, not
	// from any ambient variable.
	MVSlots []Word

	// System marks a thread whose stack is guaranteed to reference only
	// wired objects transitively, exempting it from stack scanning (spec
	// §4.5 "a small, named set of system threads").
	System bool

	// FullSave is true when the thread is parked at an interrupt boundary
	// with its entire register file saved (spec §4.5 "full-save path");
	// false means it is stopped mid-call and (SP, FP, PC) name a resumable
	// walker triple directly.
	FullSave bool

	SP, FP Address
	PC     uint64

	// NLXBlock, when non-zero, is the address of the nonlocal-exit info
	// block pointed to by rax at a block_or_tagbody_thunk site (spec
	// §4.5a), for the caller's own bookkeeping. The stack walker does not
	// read this field: it takes the block address from DataRegisters.RAX
	// and reads words 2 and 3 there.
	NLXBlock Address
}

// mvAreaBase derives the MV area's absolute base address from the thread's
// own address, per spec §9's open-question resolution: the original
// source's scavenge referenced an unbound variable named address, so the
// corrected form recomputes the base from thread_addr + 8 +
// mv_slots_start*8 instead of trusting it. Here MVSlots is already
// materialized as a Go slice, so this function exists to document that
// resolution for readers translating this code back against the spec; it
// is not otherwise called.
func mvAreaBase(threadAddr Address, mvSlotsStart uint64) Address {
	return threadAddr + Address(8+mvSlotsStart*8)
}

// scanThread implements spec §4.5: admin slots always, then state-gated
// register/TLS/stack scanning.
func (gcc *Collector) scanThread(t *Thread, isCurrent bool) {
	for i := range t.AdminSlots {
		t.AdminSlots[i] = gcc.Scavenge(t.AdminSlots[i])
	}

	if t.State == ThreadDead {
		return
	}

	if t.State == ThreadPartiallyInitialized {
		gcc.scavengeDataRegisters(&t.DataRegisters)
		for i := range t.TLSSlots {
			t.TLSSlots[i] = gcc.Scavenge(t.TLSSlots[i])
		}
		return
	}

	for i := range t.TLSSlots {
		t.TLSSlots[i] = gcc.Scavenge(t.TLSSlots[i])
	}

	if isCurrent || t.System {
		return
	}

	if t.FullSave {
		gcc.scanFullSave(t)
		return
	}

	gcc.walkStack(t, t.SP, t.FP, t.PC)
}

// scanThreadObject implements the "Threads: delegate to §4.5" case of
// spec §4.3's scan dispatch: a thread encountered as a heap reference (e.g.
// from another thread's admin slots) is scanned the same way the cycle
// driver scans its own registered threads.
func (gcc *Collector) scanThreadObject(addr Address) {
	for i, t := range gcc.threads {
		if t.Addr == addr {
			gcc.scanThread(t, i == gcc.currentIndex)
			return
		}
	}
	gcc.log.Warn("gc: scan: thread object referenced but not registered", zapAddr(addr))
}

func (gcc *Collector) scavengeDataRegisters(r *Registers) {
	r.R8 = gcc.Scavenge(r.R8)
	r.R9 = gcc.Scavenge(r.R9)
	r.R10 = gcc.Scavenge(r.R10)
	r.R11 = gcc.Scavenge(r.R11)
	r.R12 = gcc.Scavenge(r.R12)
	r.R13 = gcc.Scavenge(r.R13)
	r.RBX = gcc.Scavenge(r.RBX)
}

// Copyright 2024 The tagheap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Cycle driver (spec §4.8). Generalizes the teacher's gc(mode) (mgc.go),
// which sequences stopTheWorld/mark/sweep/startTheWorld behind a single
// entry point, into the spec's explicit 13-step sequence: flip, reprotect,
// scavenge roots, drain, weak fixpoint, unmap, rebuild freelists, trim,
// update meters, advance epoch, resume, run finalizers.

package gc

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// GC runs one full collection cycle (spec §4.8). It returns ErrNestedCycle
// if a cycle is already in progress.
func (gcc *Collector) GC(ctx context.Context) error {
	// Step 1: fail fast if already in progress.
	if err := gcc.tryAcquireWorld(ctx); err != nil {
		return err
	}
	defer gcc.releaseWorld()

	var cycleErr error
	err := gcc.sup.WithWorldStopped(ctx, func() error {
		cycleErr = gcc.runCycleLocked(ctx)
		return cycleErr
	})
	if err != nil {
		return err
	}

	// Step 13 (tail): finalizers run after world restart, on a logically
	// separate context (spec §5 "Ordering").
	gcc.runPendingFinalizers(gcc.invokeFinalizer)
	return nil
}

// runCycleLocked performs steps 3-13 of spec §4.8 under the world-stop
// established by GC. It must not be called directly.
func (gcc *Collector) runCycleLocked(ctx context.Context) error {
	// Step 3: clear weak worklist. The meters are cumulative Prometheus
	// counters and gauges; they are not reset at the start of a cycle.
	gcc.weakWorklist = nil

	// Step 4: flip.
	gcc.heap.DynamicMarkBit ^= 1
	gcc.heap.PinnedMarkBit = !gcc.heap.PinnedMarkBit
	newGeneral := gcc.heap.General.space(gcc.heap.DynamicMarkBit)
	newCons := gcc.heap.Cons.space(gcc.heap.DynamicMarkBit)
	oldGeneral := gcc.heap.General.space(gcc.heap.DynamicMarkBit ^ 1)
	oldCons := gcc.heap.Cons.space(gcc.heap.DynamicMarkBit ^ 1)
	newGeneral.reset(len(newGeneral.Words))
	newCons.reset(len(newCons.Words))

	// Step 5: reprotect newspace writable, zero-fill-on-demand.
	if err := gcc.reprotectNewspace(); err != nil {
		return err
	}

	// Step 6: scavenge roots, then the current thread's stack.
	gcc.scavengeRoots()
	if gcc.currentIndex < len(gcc.threads) {
		gcc.scanThread(gcc.threads[gcc.currentIndex], false)
	}
	if err := gcc.scavengeOtherThreads(ctx); err != nil {
		return err
	}

	// Step 7: drain.
	gcc.drain()

	// Step 8: weak-pointer fixpoint; finalizer splicing.
	gcc.weakFixpoint(gcc.drain)
	gcc.spliceFinalizers()

	// Step 9: unmap oldspace.
	if err := gcc.sup.ReleaseMemoryRange(MakeAddress(RegionGeneral, gcc.heap.DynamicMarkBit^1, 0), uint64(oldGeneral.Limit), true); err != nil {
		gcc.log.Warn("gc: release oldspace general failed", zap.Error(err))
	}
	if err := gcc.sup.ReleaseMemoryRange(MakeAddress(RegionCons, gcc.heap.DynamicMarkBit^1, 0), uint64(oldCons.Limit), true); err != nil {
		gcc.log.Warn("gc: release oldspace cons failed", zap.Error(err))
	}

	// Step 10: rebuild pinned and wired freelists.
	gcc.RebuildFreelist(RegionPinned, MakeAddress(RegionPinned, 0, 0), MakeAddress(RegionPinned, 0, uint64(len(gcc.heap.Pinned.Words))))
	gcc.RebuildFreelist(RegionWired, MakeAddress(RegionWired, 0, 0), MakeAddress(RegionWired, 0, uint64(len(gcc.heap.Wired.Words))))

	// Step 11: trim newspace.
	gcc.trimNewspace(newGeneral)
	gcc.trimNewspace(newCons)

	// Step 12: update memory-expansion-remaining.
	gcc.updateMeters(newGeneral, newCons)

	// Step 13 (minus finalizer invocation, done by the caller after resume):
	// increment gc-epoch.
	gcc.epoch++
	gcc.meters.gcEpoch.Set(float64(gcc.epoch))
	gcc.meters.cyclesCompleted.Inc()

	return nil
}

func (gcc *Collector) reprotectNewspace() error {
	if err := gcc.sup.ReleaseMemoryRange(MakeAddress(RegionGeneral, gcc.heap.DynamicMarkBit, 0), uint64(len(gcc.heap.General.space(gcc.heap.DynamicMarkBit).Words)), false); err != nil {
		return err
	}
	return gcc.sup.ReleaseMemoryRange(MakeAddress(RegionCons, gcc.heap.DynamicMarkBit, 0), uint64(len(gcc.heap.Cons.space(gcc.heap.DynamicMarkBit).Words)), false)
}

// scavengeRoots implements spec §4.8 step 6's static root list: a short
// set of named runtime singletons, each a Root registered via AddRoot.
func (gcc *Collector) scavengeRoots() {
	for _, r := range gcc.roots {
		old := r.Get()
		updated := gcc.Scavenge(old)
		if updated != old {
			r.Set(updated)
		}
	}
}

// scavengeOtherThreads scans the remaining registered threads through an
// errgroup, the counterpart to the teacher's markroot loop over allgs
// (mgcmark.go). The group is limited to one goroutine at a time: scanning
// transports objects into the shared Heap and appends to the weak worklist,
// neither of which is locked, so the scans run one after another.
func (gcc *Collector) scavengeOtherThreads(ctx context.Context) error {
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(1)
	for i, t := range gcc.threads {
		if i == gcc.currentIndex {
			continue
		}
		t := t
		g.Go(func() error {
			gcc.scanThread(t, false)
			return nil
		})
	}
	return g.Wait()
}

// drain implements spec §4.8 step 7: alternate general and cons areas,
// scanning one object per inner step and advancing the scan finger by its
// padded size (general) or 16 bytes (cons), until both fingers meet their
// bump pointers.
func (gcc *Collector) drain() {
	for {
		generalSpace := gcc.heap.General.space(gcc.heap.DynamicMarkBit)
		consSpace := gcc.heap.Cons.space(gcc.heap.DynamicMarkBit)
		if generalSpace.Drained() && consSpace.Drained() {
			return
		}
		if !generalSpace.Drained() {
			gcc.drainOneGeneral(generalSpace)
		}
		if !consSpace.Drained() {
			gcc.drainOneCons(consSpace)
		}
	}
}

func (gcc *Collector) drainOneGeneral(s *Space) {
	addr := MakeAddress(RegionGeneral, gcc.heap.DynamicMarkBit, uint64(s.Finger))
	h := DecodeHeader(gcc.heap.PeekWord(addr))
	gcc.Scan(addr, h)
	size, err := ObjectSize(h)
	if err != nil {
		panic(&HeaderError{Op: "drain", Addr: addr, Type: h.Type, Msg: err.Error()})
	}
	s.Finger += int(padGeneralWords(size))
}

func (gcc *Collector) drainOneCons(s *Space) {
	addr := MakeAddress(RegionCons, gcc.heap.DynamicMarkBit, uint64(s.Finger))
	gcc.ScanCons(addr)
	s.Finger += 2
}

// trimAlignmentWords reports the configured trim boundary, defaulting to
// spec §4.8 step 11's "2 MiB boundary" scaled to this word-addressed heap
// via Config.TrimAlignmentWords.
func (gcc *Collector) trimAlignmentWords() int {
	if gcc.cfg.TrimAlignmentWords == 0 {
		return 1
	}
	return int(gcc.cfg.TrimAlignmentWords)
}

// trimNewspace implements spec §4.8 step 11 by rounding the bump pointer up
// to the trim alignment and lowering the space's committed Limit to it. The
// words beyond the new Limit are not handed back to the supervisor; no
// ReleaseMemoryRange call is made here.
func (gcc *Collector) trimNewspace(s *Space) {
	align := gcc.trimAlignmentWords()
	rounded := ((s.Bump + align - 1) / align) * align
	if rounded >= s.Limit {
		return
	}
	s.Limit = rounded
}

// updateMeters implements spec §4.8 step 12: recompute
// memory-expansion-remaining as the newspace words left between each
// space's bump pointer and its Limit, minus FreelistHeadroomBlocks taken as
// a word count (floored at zero), and publish the read-only meters of spec
// §6. No backing-store block statistics are consulted.
func (gcc *Collector) updateMeters(generalSpace, consSpace *Space) {
	dynamicWords := uint64(generalSpace.Bump + consSpace.Bump)
	gcc.meters.dynamicSpaceSizeWords.Set(float64(dynamicWords))

	remaining := uint64(generalSpace.Limit-generalSpace.Bump) + uint64(consSpace.Limit-consSpace.Bump)
	headroom := gcc.cfg.FreelistHeadroomBlocks
	if remaining < headroom {
		remaining = 0
	} else {
		remaining -= headroom
	}
	gcc.meters.memoryExpansionRemaining.Set(float64(remaining))

	gcc.meters.pinnedBytesUsed.Set(float64(gcc.heap.Pinned.Used))
	gcc.meters.wiredBytesUsed.Set(float64(gcc.heap.Wired.Used))

	gcc.sup.StoreStatistics(StatisticsSnapshot{
		Epoch:                    gcc.epoch + 1,
		DynamicSpaceSizeWords:    dynamicWords,
		WordsConsed:              dynamicWords,
		MemoryExpansionRemaining: remaining,
		PinnedWordsUsed:          uint64(gcc.heap.Pinned.Used),
		WiredWordsUsed:           uint64(gcc.heap.Wired.Used),
	})
}

// invokeFinalizer is the default finalizer call strategy: the finalizer
// slot holds a tagged function reference the embedding system knows how to
// invoke. The collector itself has no calling convention for it, so by
// default it only logs; embedders needing real invocation should run
// GC with a Collector whose callers drive runPendingFinalizers directly
// with their own call function instead of going through GC.
func (gcc *Collector) invokeFinalizer(fn Word) {
	gcc.log.Debug("gc: finalizer ready to run", zap.Uint64("fn", uint64(fn)))
}

// Copyright 2024 The tagheap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// VMSupervisor is a real Supervisor backed by an actual mmap'd region
// (spec §4.8 steps 2 and 9, §6 "protect_memory_range/release_memory_range").
// Generalizes the teacher's sysReserve/sysMap/sysUnused (mem.go, written
// against raw mmap(2)/mprotect(2) syscalls) by routing the same calls
// through golang.org/x/sys/unix instead of runtime-internal asm stubs,
// the way the pack's go-interpreter-wagon module protects its compiled
// code pages.

package gc

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// wordSize is the byte width backing one simulated Word, so an Address's
// word-granular offsets can be translated to the byte-granular offsets
// mmap/mprotect require.
const wordSize = 8

// VMSupervisor mmaps one real backing region per simulated heap region and
// applies mprotect/madvise to it for ProtectMemoryRange/ReleaseMemoryRange.
// The simulated Heap keeps its words in ordinary Go slices, separate from
// these mappings, so the protection does not trap writes made through the
// Heap.
type VMSupervisor struct {
	log *zap.Logger

	mu      sync.Mutex
	regions map[Region][]byte

	worldMu sync.Mutex

	stats StatisticsSnapshot

	fnTables map[Address]*PCMetadataTable
	retToFn  map[uint64]Address
}

// NewVMSupervisor mmaps one anonymous, read-write region per heap region
// named in cfg, sized generously enough to back the simulated Heap's word
// slices with real pages worth protecting.
func NewVMSupervisor(cfg HeapConfig, log *zap.Logger) (*VMSupervisor, error) {
	if log == nil {
		log = zap.NewNop()
	}
	sizes := map[Region]int{
		RegionGeneral: cfg.GeneralWords * wordSize * 2,
		RegionCons:    cfg.ConsWords * wordSize * 2,
		RegionPinned:  cfg.PinnedWords * wordSize,
		RegionWired:   cfg.WiredWords * wordSize,
	}
	regions := make(map[Region][]byte, len(sizes))
	for r, size := range sizes {
		if size == 0 {
			continue
		}
		b, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
		if err != nil {
			return nil, fmt.Errorf("gc: vm: mmap region %s: %w", r, err)
		}
		regions[r] = b
	}
	return &VMSupervisor{
		log:      log,
		regions:  regions,
		fnTables: make(map[Address]*PCMetadataTable),
		retToFn:  make(map[uint64]Address),
	}, nil
}

// Close unmaps every region backing this supervisor.
func (v *VMSupervisor) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	var firstErr error
	for r, b := range v.regions {
		if err := unix.Munmap(b); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("gc: vm: munmap region %s: %w", r, err)
		}
	}
	v.regions = nil
	return firstErr
}

func (v *VMSupervisor) WithWorldStopped(ctx context.Context, fn func() error) error {
	v.worldMu.Lock()
	defer v.worldMu.Unlock()
	v.log.Debug("gc: world stopped")
	err := fn()
	v.log.Debug("gc: world resumed")
	return err
}

func (v *VMSupervisor) ProtectMemoryRange(addr Address, words uint64) error {
	b, off, err := v.slice(addr, words)
	if err != nil {
		return err
	}
	if err := unix.Mprotect(b, unix.PROT_READ); err != nil {
		return fmt.Errorf("gc: vm: mprotect read-only at offset %d: %w", off, err)
	}
	return nil
}

func (v *VMSupervisor) ReleaseMemoryRange(addr Address, words uint64, unmap bool) error {
	b, off, err := v.slice(addr, words)
	if err != nil {
		return err
	}
	if unmap {
		if err := unix.Madvise(b, unix.MADV_DONTNEED); err != nil {
			return fmt.Errorf("gc: vm: madvise DONTNEED at offset %d: %w", off, err)
		}
	}
	if err := unix.Mprotect(b, unix.PROT_READ|unix.PROT_WRITE); err != nil {
		return fmt.Errorf("gc: vm: mprotect read-write at offset %d: %w", off, err)
	}
	return nil
}

func (v *VMSupervisor) slice(addr Address, words uint64) (b []byte, byteOff uint64, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	region, ok := v.regions[AddressTag(addr)]
	if !ok {
		return nil, 0, fmt.Errorf("gc: vm: no mapped region for address %#x", uint64(addr))
	}
	byteOff = Offset(addr) * wordSize
	byteLen := words * wordSize
	if byteOff+byteLen > uint64(len(region)) {
		return nil, 0, fmt.Errorf("gc: vm: range [%d,%d) exceeds mapped region of %d bytes", byteOff, byteOff+byteLen, len(region))
	}
	return region[byteOff : byteOff+byteLen], byteOff, nil
}

func (v *VMSupervisor) StoreStatistics(snapshot StatisticsSnapshot) {
	v.mu.Lock()
	v.stats = snapshot
	v.mu.Unlock()
	v.log.Info("gc: cycle statistics",
		zap.Uint64("epoch", snapshot.Epoch),
		zap.Uint64("dynamic_space_size_words", snapshot.DynamicSpaceSizeWords),
		zap.Uint64("words_consed", snapshot.WordsConsed),
		zap.Uint64("memory_expansion_remaining", snapshot.MemoryExpansionRemaining),
	)
}

// Statistics returns the last snapshot passed to StoreStatistics.
func (v *VMSupervisor) Statistics() StatisticsSnapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stats
}

// RegisterFunction associates a function object's address with the PC range
// its code occupies and the metadata table embedded in its constant pool,
// letting ReturnAddressToFunction and MapFunctionGCMetadata resolve real
// call-site information during tests and the demonstration CLI.
func (v *VMSupervisor) RegisterFunction(fn Address, codeStart, codeEnd uintptr, table *PCMetadataTable) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.fnTables[fn] = table
	for pc := uint64(codeStart); pc < uint64(codeEnd); pc++ {
		v.retToFn[pc] = fn
	}
}

func (v *VMSupervisor) ReturnAddressToFunction(pc uint64) (Address, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fn, ok := v.retToFn[pc]
	return fn, ok
}

func (v *VMSupervisor) MapFunctionGCMetadata(fn Address) (*PCMetadataTable, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	t, ok := v.fnTables[fn]
	if !ok {
		return nil, &MetadataError{Field: "function", Msg: fmt.Sprintf("no gc metadata registered for function at %#x", uint64(fn))}
	}
	return t, nil
}

func (v *VMSupervisor) DebugPrintLine(line string) { v.log.Info(line) }

func (v *VMSupervisor) Panic(err error) {
	v.log.Error("gc: supervisor panic", zap.Error(err))
	panic(err)
}


// Copyright 2024 The tagheap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import (
	"context"
	"testing"

	"go.uber.org/zap/zaptest"
)

// fakeSupervisor is a minimal in-memory Supervisor for tests that never
// need real memory protection, grounded in the teacher's own practice of
// testing mgc.go's phases against fakes rather than the live OS allocator
// wherever the real one isn't the thing under test.
type fakeSupervisor struct {
	stats      StatisticsSnapshot
	tables     map[Address]*PCMetadataTable
	retToFn    map[uint64]Address
	panicked   error
	printLines []string
}

func newFakeSupervisor() *fakeSupervisor {
	return &fakeSupervisor{
		tables:  make(map[Address]*PCMetadataTable),
		retToFn: make(map[uint64]Address),
	}
}

func (f *fakeSupervisor) WithWorldStopped(ctx context.Context, fn func() error) error { return fn() }
func (f *fakeSupervisor) ProtectMemoryRange(addr Address, words uint64) error         { return nil }
func (f *fakeSupervisor) ReleaseMemoryRange(addr Address, words uint64, unmap bool) error {
	return nil
}
func (f *fakeSupervisor) StoreStatistics(s StatisticsSnapshot) { f.stats = s }

func (f *fakeSupervisor) ReturnAddressToFunction(pc uint64) (Address, bool) {
	fn, ok := f.retToFn[pc]
	return fn, ok
}

func (f *fakeSupervisor) MapFunctionGCMetadata(fn Address) (*PCMetadataTable, error) {
	t, ok := f.tables[fn]
	if !ok {
		return nil, &MetadataError{Field: "function", Msg: "no table registered"}
	}
	return t, nil
}

func (f *fakeSupervisor) DebugPrintLine(line string) { f.printLines = append(f.printLines, line) }
func (f *fakeSupervisor) Panic(err error)            { f.panicked = err; panic(err) }

func (f *fakeSupervisor) registerFunction(fn Address, pcStart, pcEnd uint64, table *PCMetadataTable) {
	f.tables[fn] = table
	for pc := pcStart; pc < pcEnd; pc++ {
		f.retToFn[pc] = fn
	}
}

func newTestCollector(t *testing.T, cfg Config, sup Supervisor) *Collector {
	return New(cfg, sup, zaptest.NewLogger(t))
}

func smallHeapConfig() HeapConfig {
	return HeapConfig{GeneralWords: 256, ConsWords: 256, PinnedWords: 128, WiredWords: 64}
}

// Copyright 2024 The tagheap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Per-PC stack metadata (spec §4.4 steps 2-3). Generalizes the teacher's
// pcvalue tables and stackmap bitmaps (funcdata, pcdatavalue) into an
// explicit sorted table searched by "greatest offset <= query", exactly as
// spec §4.4 step 3 describes, carrying the full field set spec §4.4 step 2
// lists rather than the teacher's single live-pointer bitmap per call site.

package gc

import "sort"

// IncomingArguments names how a call site reports its argument count for
// spec §4.4 step 8 / §4.5a's "incoming_arguments == :rcx" rule: either
// absent, a stack slot index, or the register marker only valid in
// full-save frames.
type IncomingArguments struct {
	Present    bool
	SlotIndex  uint64 // valid when !Register
	Register   bool   // true means "read rcx" (spec §4.5a), only legal full-save
}

// PCMetadataEntry is one call site's GC state, the fields spec §4.4 step 2
// enumerates verbatim.
type PCMetadataEntry struct {
	Offset uint64 // offset from function entry

	Framep      bool // slots are indexed from fp, not sp (spec §4.4 step 5)
	Interruptp  bool // unsupported in stack frames (spec §4.4 step 3); always rejected

	PushedValues         int64 // fixed count of extra tagged slots above sp (spec §4.4 step 7); -1 if none
	PushedValuesRegister bool  // add rcx to PushedValues (spec §4.5a); full-save only

	LayoutAddr   Address // base of the layout bitmap (spec §4.4 step 5)
	LayoutLength uint64  // number of significant bits in the bitmap

	MultipleValues int64 // k for the MV-area rule of spec §4.5a; 0 means not applicable

	IncomingArguments IncomingArguments

	BlockOrTagbodyThunk bool // live sp/fp come from an NLX info block (spec §4.5a); full-save only

	ExtraRegisters ExtraRegisters // full-save only
}

// isFullSaveOnly reports whether e uses any field spec §4.4 step 3 restricts
// to full-save frames.
func (e PCMetadataEntry) isFullSaveOnly() bool {
	return e.PushedValuesRegister ||
		e.MultipleValues != 0 ||
		e.BlockOrTagbodyThunk ||
		(e.IncomingArguments.Present && e.IncomingArguments.Register) ||
		e.ExtraRegisters != ExtraRegistersNone
}

// PCMetadataTable is a function's full set of per-call-site metadata
// entries, sorted by Offset ascending (spec §6 "map_function_gc_metadata":
// "enumerate metadata entries in ascending PC-offset order").
type PCMetadataTable struct {
	Entries []PCMetadataEntry
}

// NewPCMetadataTable builds a table from entries in arbitrary order,
// sorting them once so Lookup can binary search.
func NewPCMetadataTable(entries []PCMetadataEntry) *PCMetadataTable {
	sorted := make([]PCMetadataEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Offset < sorted[j].Offset })
	return &PCMetadataTable{Entries: sorted}
}

// Lookup finds the entry with the greatest Offset <= offset, spec §4.4
// step 3's exact search rule. ok is false when offset precedes every
// entry, meaning the table has no metadata for this call site at all.
func (t *PCMetadataTable) Lookup(offset uint64) (entry PCMetadataEntry, ok bool) {
	entries := t.Entries
	i := sort.Search(len(entries), func(i int) bool { return entries[i].Offset > offset })
	if i == 0 {
		return PCMetadataEntry{}, false
	}
	return entries[i-1], true
}

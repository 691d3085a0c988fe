// Copyright 2024 The tagheap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPCMetadataTableLookupGreatestOffsetBelow(t *testing.T) {
	table := NewPCMetadataTable([]PCMetadataEntry{
		{Offset: 10},
		{Offset: 30},
		{Offset: 20},
	})

	_, ok := table.Lookup(5)
	assert.False(t, ok, "offset before every entry has no metadata")

	e, ok := table.Lookup(10)
	assert.True(t, ok)
	assert.Equal(t, uint64(10), e.Offset, "exact match returns that entry")

	e, ok = table.Lookup(15)
	assert.True(t, ok)
	assert.Equal(t, uint64(10), e.Offset, "between entries returns the lesser one")

	e, ok = table.Lookup(1000)
	assert.True(t, ok)
	assert.Equal(t, uint64(30), e.Offset, "past every entry returns the last one")
}

func TestPCMetadataTableLookupEmpty(t *testing.T) {
	table := NewPCMetadataTable(nil)
	_, ok := table.Lookup(0)
	assert.False(t, ok)
}

func TestIsFullSaveOnly(t *testing.T) {
	assert.False(t, PCMetadataEntry{}.isFullSaveOnly())
	assert.True(t, PCMetadataEntry{PushedValuesRegister: true}.isFullSaveOnly())
	assert.True(t, PCMetadataEntry{MultipleValues: 1}.isFullSaveOnly())
	assert.True(t, PCMetadataEntry{BlockOrTagbodyThunk: true}.isFullSaveOnly())
	assert.True(t, PCMetadataEntry{ExtraRegisters: ExtraRegistersRax}.isFullSaveOnly())
	assert.True(t, PCMetadataEntry{IncomingArguments: IncomingArguments{Present: true, Register: true}}.isFullSaveOnly())
	assert.False(t, PCMetadataEntry{IncomingArguments: IncomingArguments{Present: true, SlotIndex: 2}}.isFullSaveOnly())
}

// Copyright 2024 The tagheap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMakeTaggedRoundTrip(t *testing.T) {
	addr := Address(12345)
	w := MakeTagged(TagObject, addr)
	assert.Equal(t, TagObject, TagField(w))
	assert.Equal(t, addr, PointerField(w))
}

func TestImmediatep(t *testing.T) {
	assert.True(t, Immediatep(MakeTagged(TagFixnumEven, 0)))
	assert.True(t, Immediatep(MakeTagged(TagFixnumOdd, 0)))
	assert.True(t, Immediatep(MakeTagged(TagCharacter, 0)))
	assert.True(t, Immediatep(MakeTagged(TagSingleFloat, 0)))
	assert.False(t, Immediatep(MakeTagged(TagCons, 1)))
	assert.False(t, Immediatep(MakeTagged(TagObject, 1)))
}

func TestPointerp(t *testing.T) {
	assert.True(t, Pointerp(MakeTagged(TagCons, 1)))
	assert.True(t, Pointerp(MakeTagged(TagObject, 1)))
	assert.True(t, Pointerp(MakeTagged(TagGCForward, 1)))
	assert.True(t, Pointerp(MakeTagged(TagDXRoot, 1)))
	assert.False(t, Pointerp(MakeTagged(TagFixnumEven, 1)))
}

func TestAddressRoundTrip(t *testing.T) {
	for _, region := range []Region{RegionGeneral, RegionCons, RegionPinned, RegionWired} {
		for _, space := range []uint8{0, 1} {
			addr := MakeAddress(region, space, 4096)
			assert.Equal(t, region, AddressTag(addr))
			assert.Equal(t, space, SpaceBit(addr))
			assert.Equal(t, uint64(4096), Offset(addr))
		}
	}
}

func TestAddressSlotPreservesRegionAndSpace(t *testing.T) {
	base := MakeAddress(RegionGeneral, 1, 10)
	slot := base.Slot(3)
	assert.Equal(t, RegionGeneral, AddressTag(slot))
	assert.Equal(t, uint8(1), SpaceBit(slot))
	assert.Equal(t, uint64(13), Offset(slot))
}

func TestWithSpace(t *testing.T) {
	addr := MakeAddress(RegionCons, 0, 7)
	flipped := addr.WithSpace(1)
	assert.Equal(t, uint8(1), SpaceBit(flipped))
	assert.Equal(t, RegionCons, AddressTag(flipped))
	assert.Equal(t, uint64(7), Offset(flipped))
}

// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

package arena

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArenaBytes(t *testing.T) {
	a := New()

	b1 := a.Bytes(10)
	b2 := a.Bytes(20)
	require.Len(t, b1, 10)
	require.Len(t, b2, 20)
	assert.Equal(t, 10, cap(b1), "capacity must be clipped")
	assert.Equal(t, 1, a.Chunks(), "small allocations share a chunk")
	assert.Equal(t, 30, a.Allocated())

	// Appending to b1 must not overwrite b2
	b2[0] = 0x55
	b1 = append(b1, 0xAA)
	assert.Equal(t, byte(0x55), b2[0])
}

func TestArenaLargeAllocation(t *testing.T) {
	a := New()
	a.Bytes(8)
	b := a.Bytes(defaultChunkSize * 2)
	assert.Len(t, b, defaultChunkSize*2)
	assert.Equal(t, 2, a.Chunks())

	// The shared chunk is still used for the next small allocation
	a.Bytes(8)
	assert.Equal(t, 2, a.Chunks())
}

func TestArenaChunkRollover(t *testing.T) {
	a := New()
	for i := 0; i < defaultChunkSize/512+1; i++ {
		a.Bytes(512)
	}
	assert.Equal(t, 2, a.Chunks())
}

func TestArenaCopyAndReset(t *testing.T) {
	var a Arena
	src := []byte{1, 2, 3}
	c := a.Copy(src)
	src[0] = 9
	assert.Equal(t, []byte{1, 2, 3}, c)
	assert.Nil(t, a.Bytes(0))

	a.Reset()
	assert.Equal(t, 0, a.Allocated())
	assert.Equal(t, 0, a.Chunks())
}

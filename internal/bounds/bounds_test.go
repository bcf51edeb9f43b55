// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

package bounds

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPadding(t *testing.T) {
	assert.Equal(t, uint32(0), Padding[uint32](0, 4))
	assert.Equal(t, uint32(3), Padding[uint32](1, 4))
	assert.Equal(t, uint32(1), Padding[uint32](7, 8))
	assert.Equal(t, uint8(0), Padding[uint8](16, 8))
}

func TestAlignUp(t *testing.T) {
	cases := []struct {
		offs, n, out uint32
		ok           bool
	}{
		{0, 4, 0, true},
		{5, 4, 8, true},
		{5, 1, 5, true},
		{0xFFFFFFF8, 8, 0xFFFFFFF8, true},
		{0xFFFFFFF9, 8, 0, false},
		{0xFFFFFFFF, 2, 0, false},
	}

	for _, c := range cases {
		out, ok := AlignUp(c.offs, c.n)
		assert.Equal(t, c.ok, ok, "AlignUp(%#x, %d)", c.offs, c.n)
		if c.ok {
			assert.Equal(t, c.out, out, "AlignUp(%#x, %d)", c.offs, c.n)
		}
	}
}

func TestAlignDown(t *testing.T) {
	assert.Equal(t, uint32(8), AlignDown(13, 8))
	assert.Equal(t, uint32(13), AlignDown(13, 1))
	assert.Equal(t, uint32(12), AlignDown(12, 4))
}

func TestAddMul(t *testing.T) {
	_, ok := Add(0xFFFFFFFF, 1)
	assert.False(t, ok)
	s, ok := Add(0xFFFFFFFE, 1)
	assert.True(t, ok)
	assert.Equal(t, uint32(0xFFFFFFFF), s)

	_, ok = Mul(0x10000, 0x10000)
	assert.False(t, ok)
	p, ok := Mul(0x8000, 2)
	assert.True(t, ok)
	assert.Equal(t, uint32(0x10000), p)
}

func TestWithinAndMissing(t *testing.T) {
	assert.True(t, Within(0, 4, 4))
	assert.False(t, Within(1, 4, 4))
	assert.False(t, Within(0xFFFFFFFF, 2, 4))

	assert.Equal(t, uint32(0), Missing(0, 4, 4))
	assert.Equal(t, uint32(2), Missing(2, 4, 4))
	assert.Equal(t, uint32(0xFFFFFFFF-4), Missing(0xFFFFFFFF, 2, 4))
}

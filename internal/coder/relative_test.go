// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

package coder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ndrinterfaces "go.e43.eu/ndr/interfaces"
	"go.e43.eu/ndr/internal/errors"
)

func TestEncodeRelative(t *testing.T) {
	e := NewCoder().newEncoder(0)
	a := new(int)

	// Two slots referring to one target
	require.NoError(t, e.RelativePtr1(a))
	require.NoError(t, e.RelativePtr1(a))
	require.NoError(t, e.RelativePtr1((*int)(nil)))

	emit, err := e.RelativePtr2Start(a)
	require.NoError(t, err)
	require.True(t, emit)
	require.NoError(t, e.EncodeUint16(0xBBAA))
	require.NoError(t, e.RelativePtr2End(a))

	emit, err = e.RelativePtr2Start(a)
	require.NoError(t, err)
	assert.False(t, emit, "target already written")

	assert.Equal(t, []byte{
		0x0C, 0x00, 0x00, 0x00,
		0x0C, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0xAA, 0xBB,
	}, e.Bytes())
}

func TestEncodeRelativeBase(t *testing.T) {
	e := NewCoder().newEncoder(0)
	a, base := new(int), new(int)

	require.NoError(t, e.EncodeUint32(0xFF))
	require.NoError(t, e.SetupRelativeBase1(base, e.Offset()))
	require.NoError(t, e.RelativePtr1(a))

	require.NoError(t, e.SetupRelativeBase2(base))
	assert.Equal(t, uint32(4), e.RelativeBase())
	emit, err := e.RelativePtr2Start(a)
	require.NoError(t, err)
	require.True(t, emit)
	require.NoError(t, e.EncodeUint8(1))

	assert.Equal(t, []byte{
		0xFF, 0x00, 0x00, 0x00,
		0x04, 0x00, 0x00, 0x00,
		0x01,
	}, e.Bytes())
}

func TestEncodeRelativeSharedAcrossBases(t *testing.T) {
	e := NewCoder().newEncoder(0)
	a, inner := new(int), new(int)

	require.NoError(t, e.RelativePtr1(a))
	emit, err := e.RelativePtr2Start(a)
	require.NoError(t, err)
	require.True(t, emit)
	require.NoError(t, e.EncodeUint32(7))
	require.NoError(t, e.RelativePtr2End(a))

	require.NoError(t, e.SetupRelativeBase1(inner, e.Offset()))
	require.NoError(t, e.RelativePtr1(a))
	require.NoError(t, e.SetupRelativeBase2(inner))
	emit, err = e.RelativePtr2Start(a)
	require.NoError(t, err)
	assert.True(t, emit, "target written under another base")
	require.NoError(t, e.EncodeUint32(7))

	assert.Equal(t, []byte{
		0x04, 0x00, 0x00, 0x00,
		0x07, 0x00, 0x00, 0x00,
		0x04, 0x00, 0x00, 0x00,
		0x07, 0x00, 0x00, 0x00,
	}, e.Bytes())
}

func TestEncodeRelativeEmptyTarget(t *testing.T) {
	e := NewCoder().newEncoder(0)
	empty := sliceKey{data: 1}

	require.NoError(t, e.RelativePtr1(empty))
	require.NoError(t, e.RelativePtr1(empty))
	for i := 0; i < 2; i++ {
		emit, err := e.RelativePtr2Start(empty)
		require.NoError(t, err)
		assert.True(t, emit, "empty targets are never shared")
		require.NoError(t, e.EncodeUint32(0))
	}

	assert.Equal(t, []byte{
		0x0C, 0x00, 0x00, 0x00,
		0x08, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
	}, e.Bytes())
}

func TestEncodeShortRelative(t *testing.T) {
	e := NewCoder().newEncoder(0)
	a := new(int)

	require.NoError(t, e.ShortRelativePtr1(a))
	emit, err := e.ShortRelativePtr2(a)
	require.NoError(t, err)
	require.True(t, emit)
	require.NoError(t, e.EncodeUint16(0x1234))
	assert.Equal(t, []byte{0x02, 0x00, 0x34, 0x12}, e.Bytes())
}

func TestEncodeRelativeAlign(t *testing.T) {
	e := NewCoder().newEncoder(ndrinterfaces.FlagAlign4)
	a := new(int)

	require.NoError(t, e.RelativePtr1(a))
	require.NoError(t, e.EncodeUint8(9))
	emit, err := e.RelativePtr2Start(a)
	require.NoError(t, err)
	require.True(t, emit)
	require.NoError(t, e.EncodeUint8(1))

	assert.Equal(t, []byte{
		0x08, 0x00, 0x00, 0x00,
		0x09, 0x00, 0x00, 0x00,
		0x01,
	}, e.Bytes())
}

func TestEncodeRelativeReverse(t *testing.T) {
	e := NewCoder().newEncoder(ndrinterfaces.FlagRelativeReverse)
	a := new(int)

	require.NoError(t, e.RelativePtr1(a))
	_, err := e.RelativePtr2Start(a)
	assert.ErrorIs(t, err, errors.ErrRelative, "no relative end offset")

	e = NewCoder().newEncoder(ndrinterfaces.FlagRelativeReverse)
	sub, err := e.SubcontextStart(0, 16)
	require.NoError(t, err)

	require.NoError(t, sub.RelativePtr1(a))
	emit, err := sub.RelativePtr2Start(a)
	require.NoError(t, err)
	require.True(t, emit)
	require.NoError(t, sub.EncodeUint32(0xAABBCCDD))
	require.NoError(t, sub.RelativePtr2End(a))
	assert.Equal(t, uint32(4), sub.Offset(), "cursor returns to where the target began")

	require.NoError(t, e.SubcontextEnd(sub, 0, 16))
	assert.Equal(t, []byte{
		0x0C, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0xDD, 0xCC, 0xBB, 0xAA,
	}, e.Bytes())
}

func TestDecodeRelative(t *testing.T) {
	buf := []byte{
		0x08, 0x00, 0x00, 0x00,
		0x01, 0x00, 0x00, 0x00,
		0xAA, 0xBB,
	}
	a := new(int)

	d := testDecoder(t, buf, 0)
	ofs, err := d.DecodeUint32()
	require.NoError(t, err)
	require.NoError(t, d.RelativePtr1(a, ofs))

	saved, err := d.RelativePtr2(a)
	require.NoError(t, err)
	v, err := d.DecodeUint16()
	require.NoError(t, err)
	assert.Equal(t, uint16(0xBBAA), v)
	require.NoError(t, d.RelativeRestore(saved))

	assert.Equal(t, uint32(4), d.Offset())
	assert.Equal(t, uint32(10), d.RelativeHighestOffset())

	// Beyond the end of the data
	assert.ErrorIs(t, d.RelativePtr1(a, 11), errors.ErrRelative)

	// Wrapping around
	require.NoError(t, d.SetupRelativeBase1(a, 4))
	assert.ErrorIs(t, d.RelativePtr1(a, 0xFFFFFFFE), errors.ErrRelative)
}

func TestDecodeRelativeNoBackward(t *testing.T) {
	a, b := new(int), new(int)
	buf := make([]byte, 12)

	d := testDecoder(t, buf, ndrinterfaces.FlagRelativeNoBackward)
	require.NoError(t, d.RelativePtr1(a, 8))
	require.NoError(t, d.RelativePtr1(b, 4))

	saved, err := d.RelativePtr2(a)
	require.NoError(t, err)
	require.NoError(t, d.RelativeRestore(saved))

	_, err = d.RelativePtr2(b)
	assert.ErrorIs(t, err, errors.ErrRelative)

	// Permitted by default
	d = testDecoder(t, buf, 0)
	require.NoError(t, d.RelativePtr1(a, 8))
	require.NoError(t, d.RelativePtr1(b, 4))
	_, err = d.RelativePtr2(a)
	require.NoError(t, err)
	_, err = d.RelativePtr2(b)
	assert.NoError(t, err)
}

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

func TestSubcontextHeaders(t *testing.T) {
	tests := []struct {
		name   string
		header uint32
		wire   []byte
	}{
		{"None", 0, []byte{7, 0}},
		{"Two", 2, []byte{2, 0, 7, 0}},
		{"Four", 4, []byte{2, 0, 0, 0, 7, 0}},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			e := NewCoder().newEncoder(0)
			sub, err := e.SubcontextStart(tc.header, -1)
			require.NoError(t, err)
			require.NoError(t, sub.EncodeUint16(7))
			require.NoError(t, e.SubcontextEnd(sub, tc.header, -1))
			assert.Equal(t, tc.wire, e.Bytes())

			d := testDecoder(t, tc.wire, 0)
			dsub, err := d.SubcontextStart(tc.header, -1)
			require.NoError(t, err)
			v, err := dsub.DecodeUint16()
			require.NoError(t, err)
			assert.Equal(t, uint16(7), v)
			require.NoError(t, d.SubcontextEnd(dsub, tc.header, -1))
			assert.Equal(t, uint32(len(tc.wire)), d.Offset())
		})
	}
}

func TestSubcontextSizeIs(t *testing.T) {
	e := NewCoder().newEncoder(0)
	sub, err := e.SubcontextStart(4, 8)
	require.NoError(t, err)
	require.NoError(t, sub.EncodeUint16(7))
	require.NoError(t, e.SubcontextEnd(sub, 4, 8))
	assert.Equal(t, []byte{
		8, 0, 0, 0,
		7, 0, 0, 0, 0, 0, 0, 0,
	}, e.Bytes())

	// Content larger than size_is
	e = NewCoder().newEncoder(0)
	sub, err = e.SubcontextStart(0, 2)
	require.NoError(t, err)
	require.NoError(t, sub.EncodeUint32(7))
	assert.ErrorIs(t, e.SubcontextEnd(sub, 0, 2), errors.ErrSubcontext)

	// Header disagrees with size_is
	d := testDecoder(t, []byte{3, 0, 1, 2, 3}, 0)
	_, err = d.SubcontextStart(2, 2)
	assert.ErrorIs(t, err, errors.ErrSubcontext)

	// Header claims more than is present
	d = testDecoder(t, []byte{9, 0, 1, 2, 3}, 0)
	_, err = d.SubcontextStart(2, -1)
	assert.ErrorIs(t, err, errors.ErrBufSize)
}

func TestSubcontextBadHeader(t *testing.T) {
	e := NewCoder().newEncoder(0)
	_, err := e.SubcontextStart(3, -1)
	assert.ErrorIs(t, err, errors.ErrSubcontext)

	d := testDecoder(t, []byte{0, 0, 0, 0}, 0)
	_, err = d.SubcontextStart(3, -1)
	assert.ErrorIs(t, err, errors.ErrSubcontext)
}

func TestSubcontextUnreadBytes(t *testing.T) {
	buf := []byte{4, 0, 0, 0, 7, 0, 0, 0}

	d := testDecoder(t, buf, ndrinterfaces.FlagSubcontextNoUnreadBytes)
	sub, err := d.SubcontextStart(4, -1)
	require.NoError(t, err)
	_, err = sub.DecodeUint16()
	require.NoError(t, err)
	assert.ErrorIs(t, d.SubcontextEnd(sub, 4, -1), errors.ErrUnreadBytes)

	d = testDecoder(t, buf, 0)
	sub, err = d.SubcontextStart(4, -1)
	require.NoError(t, err)
	_, err = sub.DecodeUint16()
	require.NoError(t, err)
	require.NoError(t, d.SubcontextEnd(sub, 4, -1))
	assert.Equal(t, uint32(8), d.Offset())
}

func TestSubcontextShallow(t *testing.T) {
	d := testDecoder(t, []byte{0xFF, 0, 1, 0, 2, 0}, 0)
	_, err := d.DecodeUint16()
	require.NoError(t, err)

	sub, err := d.SubcontextStart(ndrinterfaces.SubcontextShallow, -1)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), sub.Offset())
	for _, expected := range []uint16{1, 2} {
		v, err := sub.DecodeUint16()
		require.NoError(t, err)
		assert.Equal(t, expected, v)
	}
	require.NoError(t, d.SubcontextEnd(sub, ndrinterfaces.SubcontextShallow, -1))
	assert.Equal(t, uint32(6), d.Offset())
}

func TestSubcontextIsNDR(t *testing.T) {
	e := NewCoder().newEncoder(ndrinterfaces.FlagNDR64)
	sub, err := e.SubcontextStart(0, -1)
	require.NoError(t, err)
	assert.Zero(t, sub.Flags()&ndrinterfaces.FlagNDR64)
	require.NoError(t, sub.EncodeUint3264(1))
	require.NoError(t, e.SubcontextEnd(sub, 0, -1))
	assert.Equal(t, []byte{1, 0, 0, 0}, e.Bytes())
}

func TestTypeSerialisationHeader(t *testing.T) {
	e := NewCoder().newEncoder(0)
	sub, err := e.SubcontextStart(ndrinterfaces.SubcontextTypeSerialization, -1)
	require.NoError(t, err)
	require.NoError(t, sub.EncodeUint32(7))
	require.NoError(t, e.SubcontextEnd(sub, ndrinterfaces.SubcontextTypeSerialization, -1))

	wire := []byte{
		0x01, 0x10, 0x08, 0x00,
		0xCC, 0xCC, 0xCC, 0xCC,
		0x08, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x07, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
	}
	assert.Equal(t, wire, e.Bytes())

	d := testDecoder(t, wire, 0)
	dsub, err := d.SubcontextStart(ndrinterfaces.SubcontextTypeSerialization, -1)
	require.NoError(t, err)
	v, err := dsub.DecodeUint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(7), v)
	require.NoError(t, d.SubcontextEnd(dsub, ndrinterfaces.SubcontextTypeSerialization, -1))
	assert.Equal(t, uint32(len(wire)), d.Offset())

	bad := append([]byte(nil), wire...)
	bad[0] = 2
	d = testDecoder(t, bad, 0)
	_, err = d.SubcontextStart(ndrinterfaces.SubcontextTypeSerialization, -1)
	assert.ErrorIs(t, err, errors.ErrSubcontext)

	bad = append([]byte(nil), wire...)
	bad[8] = 7
	d = testDecoder(t, bad, 0)
	_, err = d.SubcontextStart(ndrinterfaces.SubcontextTypeSerialization, -1)
	assert.ErrorIs(t, err, errors.ErrSubcontext, "content not padded to 8")
}

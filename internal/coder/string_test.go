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

const sb = ndrinterfaces.ScalarsAndBuffers

func TestStringFraming(t *testing.T) {
	tests := []struct {
		name  string
		flags ndrinterfaces.Flags
		s     string
		wire  []byte
	}{
		{
			name:  "Conformant varying UTF-16",
			flags: ndrinterfaces.FlagStrLen4 | ndrinterfaces.FlagStrSize4,
			s:     "Hi",
			wire: []byte{
				3, 0, 0, 0,
				0, 0, 0, 0,
				3, 0, 0, 0,
				'H', 0, 'i', 0, 0, 0,
			},
		},
		{
			name:  "Size2 ASCII unterminated",
			flags: ndrinterfaces.FlagStrSize2 | ndrinterfaces.FlagStrASCII | ndrinterfaces.FlagStrNoTerm,
			s:     "Hi",
			wire:  []byte{2, 0, 'H', 'i'},
		},
		{
			name:  "Null terminated ASCII",
			flags: ndrinterfaces.FlagStrNullTerm | ndrinterfaces.FlagStrASCII,
			s:     "Hi",
			wire:  []byte{'H', 'i', 0},
		},
		{
			name:  "Character length",
			flags: ndrinterfaces.FlagStrSize4 | ndrinterfaces.FlagStrCharLen,
			s:     "Hi",
			wire:  []byte{2, 0, 0, 0, 'H', 0, 'i', 0, 0, 0},
		},
		{
			name:  "Byte size",
			flags: ndrinterfaces.FlagStrLen4 | ndrinterfaces.FlagStrByteSize | ndrinterfaces.FlagStrNoTerm,
			s:     "Hi",
			wire:  []byte{0, 0, 0, 0, 4, 0, 0, 0, 'H', 0, 'i', 0},
		},
		{
			name:  "Remaining UTF-8",
			flags: ndrinterfaces.FlagRemaining | ndrinterfaces.FlagStrUTF8 | ndrinterfaces.FlagStrNoTerm,
			s:     "é",
			wire:  []byte{0xC3, 0xA9},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			e := NewCoder().newEncoder(tc.flags)
			require.NoError(t, e.EncodeString(sb, tc.s))
			assert.Equal(t, tc.wire, e.Bytes())

			d := testDecoder(t, tc.wire, tc.flags)
			s, err := d.DecodeString(sb)
			require.NoError(t, err)
			assert.Equal(t, tc.s, s)
			assert.Equal(t, uint32(0), d.Remaining())
		})
	}
}

func TestStringErrors(t *testing.T) {
	e := NewCoder().newEncoder(0)
	assert.ErrorIs(t, e.EncodeString(sb, "x"), errors.ErrString, "no framing flags")

	e = NewCoder().newEncoder(ndrinterfaces.FlagStrSize4 | ndrinterfaces.FlagStrNoEmbeddedNUL)
	assert.ErrorIs(t, e.EncodeString(sb, "a\x00b"), errors.ErrCharCnv)

	// Length greater than size
	flags := ndrinterfaces.FlagStrLen4 | ndrinterfaces.FlagStrSize4
	d := testDecoder(t, []byte{
		1, 0, 0, 0,
		0, 0, 0, 0,
		2, 0, 0, 0,
		'H', 0, 0, 0,
	}, flags)
	_, err := d.DecodeString(sb)
	assert.ErrorIs(t, err, errors.ErrString)
	assert.Equal(t, uint32(0), d.Offset(), "offset restored on failure")

	// Embedded NUL on decode
	d = testDecoder(t, []byte{
		3, 0, 0, 0,
		'a', 0, 'b',
	}, ndrinterfaces.FlagStrSize4|ndrinterfaces.FlagStrASCII|
		ndrinterfaces.FlagStrNoTerm|ndrinterfaces.FlagStrNoEmbeddedNUL)
	_, err = d.DecodeString(sb)
	assert.ErrorIs(t, err, errors.ErrCharCnv)
}

func TestCharset(t *testing.T) {
	e := NewCoder().newEncoder(0)
	require.NoError(t, e.EncodeCharset(sb, "ab", 4, 2, ndrinterfaces.CharsetUTF16))
	assert.Equal(t, []byte{'a', 0, 'b', 0, 0, 0, 0, 0}, e.Bytes())
	assert.ErrorIs(t, e.EncodeCharset(sb, "abcde", 4, 2, ndrinterfaces.CharsetUTF16), errors.ErrCharCnv)

	d := testDecoder(t, e.Bytes(), 0)
	s, err := d.DecodeCharset(sb, 4, 2, ndrinterfaces.CharsetUTF16)
	require.NoError(t, err)
	assert.Equal(t, "ab", s)
	assert.Equal(t, uint32(8), d.Offset())
}

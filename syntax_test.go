// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

package ndr

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyntaxFlags(t *testing.T) {
	f, ok := NDRSyntax.Flags()
	assert.True(t, ok)
	assert.Equal(t, Flags(0), f)

	f, ok = NDR64Syntax.Flags()
	assert.True(t, ok)
	assert.Equal(t, FlagNDR64, f)

	_, ok = SyntaxID{UUID: NDRSyntax.UUID, IfVersion: 1}.Flags()
	assert.False(t, ok)

	assert.Equal(t, "8a885d04-1ceb-11c9-9fe8-08002b104860/0x00000002", NDRSyntax.String())
}

func TestPolicyHandle(t *testing.T) {
	var h PolicyHandle
	assert.True(t, h.IsZero())

	h = PolicyHandle{
		HandleType: 1,
		UUID:       uuid.MustParse("00112233-4455-6677-8899-aabbccddeeff"),
	}
	assert.False(t, h.IsZero())

	RunTestcases(t, []testcase{
		{
			Name:   "Handle",
			Object: h,
			Bytes: hexBytes(
				[]byte{0x01, 0x00, 0x00, 0x00},
				[]byte{0x33, 0x22, 0x11, 0x00, 0x55, 0x44, 0x77, 0x66},
				[]byte{0x88, 0x99, 0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff},
			),
		},
		{
			Name: "HandleInStruct",
			Object: struct {
				A uint8
				H PolicyHandle
			}{7, PolicyHandle{}},
			Bytes: hexBytes(
				[]byte{0x07, 0x00, 0x00, 0x00},
				make([]byte, 20),
			),
		},
	})
}

func TestNDR64(t *testing.T) {
	RunTestcases(t, []testcase{
		{
			Name:   "Pointer",
			Flags:  FlagNDR64,
			Object: struct{ P *uint32 }{u32ptr(5)},
			Bytes: hexBytes(
				[]byte{0x00, 0x00, 0x02, 0x00, 0x00, 0x00, 0x00, 0x00},
				[]byte{0x05, 0x00, 0x00, 0x00},
			),
		},
		{
			Name:   "ConformantArray",
			Flags:  FlagNDR64,
			Object: []uint16{1, 2, 3},
			Bytes: hexBytes(
				[]byte{0x03, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
				[]byte{0x01, 0x00, 0x02, 0x00, 0x03, 0x00},
			),
		},
		{
			Name:      "SizeUpperBits",
			Direction: decodeTest,
			Flags:     FlagNDR64,
			Object:    []uint16{},
			Bytes: hexBytes(
				[]byte{0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00},
			),
			DecErrorIs: ErrNDR64,
		},
	})
}

// addCall is the argument structure of a function taking two numbers and
// returning their sum
type addCall struct {
	A, B uint16
	Sum  uint32
}

func (c *addCall) MarshalNDRFunction(e Encoder, flags ScopeFlags) error {
	if flags&In != 0 {
		if err := e.EncodeUint16(c.A); err != nil {
			return err
		}
		if err := e.EncodeUint16(c.B); err != nil {
			return err
		}
	}
	if flags&Out != 0 {
		return e.EncodeUint32(c.Sum)
	}
	return nil
}

func (c *addCall) UnmarshalNDRFunction(d Decoder, flags ScopeFlags) (err error) {
	if flags&In != 0 {
		if c.A, err = d.DecodeUint16(); err != nil {
			return err
		}
		if c.B, err = d.DecodeUint16(); err != nil {
			return err
		}
	}
	if flags&Out != 0 {
		c.Sum, err = d.DecodeUint32()
	}
	return err
}

func TestFunctionMarshaler(t *testing.T) {
	call := &addCall{A: 1, B: 2, Sum: 3}

	e := NewEncoder(0)
	require.NoError(t, e.Encode(call, In))
	assert.Equal(t, []byte{1, 0, 2, 0}, e.Bytes())

	e = NewEncoder(0)
	require.NoError(t, e.Encode(call, Out))
	assert.Equal(t, []byte{3, 0, 0, 0}, e.Bytes())

	e = NewEncoder(0)
	assert.ErrorIs(t, e.Encode(call, In|Scalars), ErrFlags)

	d, err := NewDecoder([]byte{1, 0, 2, 0, 3, 0, 0, 0}, 0)
	require.NoError(t, err)
	var got addCall
	require.NoError(t, d.Decode(&got, Both))
	assert.Equal(t, *call, got)
}

// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

package coder

import (
	"reflect"

	"github.com/google/uuid"

	ndrinterfaces "go.e43.eu/ndr/interfaces"
)

// Primitives live entirely in the scalars of their containing type

// boolCodec handles booleans
type boolCodec struct{}

var boolCodecI xCodec = boolCodec{}

func (boolCodec) alignment() int { return 1 }

func (boolCodec) Encode(e ndrinterfaces.Encoder, flags ndrinterfaces.ScopeFlags, v reflect.Value) error {
	if flags&ndrinterfaces.Scalars == 0 {
		return nil
	}
	return e.EncodeBool(v.Bool())
}

func (boolCodec) Decode(d ndrinterfaces.Decoder, flags ndrinterfaces.ScopeFlags, v reflect.Value) error {
	if flags&ndrinterfaces.Scalars == 0 {
		return nil
	}
	b, e := d.DecodeBool()
	v.SetBool(b)
	return e
}

// [u]int[8/16/32]Codec handle the basic integers, each at its own width
type int8Codec struct{}
type int16Codec struct{}
type int32Codec struct{}
type uint8Codec struct{}
type uint16Codec struct{}
type uint32Codec struct{}

var (
	int8CodecI   xCodec = int8Codec{}
	int16CodecI  xCodec = int16Codec{}
	int32CodecI  xCodec = int32Codec{}
	uint8CodecI  xCodec = uint8Codec{}
	uint16CodecI xCodec = uint16Codec{}
	uint32CodecI xCodec = uint32Codec{}
)

func (int8Codec) alignment() int   { return 1 }
func (int16Codec) alignment() int  { return 2 }
func (int32Codec) alignment() int  { return 4 }
func (uint8Codec) alignment() int  { return 1 }
func (uint16Codec) alignment() int { return 2 }
func (uint32Codec) alignment() int { return 4 }

func (int8Codec) Encode(e ndrinterfaces.Encoder, flags ndrinterfaces.ScopeFlags, v reflect.Value) error {
	if flags&ndrinterfaces.Scalars == 0 {
		return nil
	}
	return e.EncodeInt8(int8(v.Int()))
}

func (int8Codec) Decode(d ndrinterfaces.Decoder, flags ndrinterfaces.ScopeFlags, v reflect.Value) error {
	if flags&ndrinterfaces.Scalars == 0 {
		return nil
	}
	i, e := d.DecodeInt8()
	v.SetInt(int64(i))
	return e
}

func (int16Codec) Encode(e ndrinterfaces.Encoder, flags ndrinterfaces.ScopeFlags, v reflect.Value) error {
	if flags&ndrinterfaces.Scalars == 0 {
		return nil
	}
	return e.EncodeInt16(int16(v.Int()))
}

func (int16Codec) Decode(d ndrinterfaces.Decoder, flags ndrinterfaces.ScopeFlags, v reflect.Value) error {
	if flags&ndrinterfaces.Scalars == 0 {
		return nil
	}
	i, e := d.DecodeInt16()
	v.SetInt(int64(i))
	return e
}

func (int32Codec) Encode(e ndrinterfaces.Encoder, flags ndrinterfaces.ScopeFlags, v reflect.Value) error {
	if flags&ndrinterfaces.Scalars == 0 {
		return nil
	}
	return e.EncodeInt32(int32(v.Int()))
}

func (int32Codec) Decode(d ndrinterfaces.Decoder, flags ndrinterfaces.ScopeFlags, v reflect.Value) error {
	if flags&ndrinterfaces.Scalars == 0 {
		return nil
	}
	i, e := d.DecodeInt32()
	v.SetInt(int64(i))
	return e
}

func (uint8Codec) Encode(e ndrinterfaces.Encoder, flags ndrinterfaces.ScopeFlags, v reflect.Value) error {
	if flags&ndrinterfaces.Scalars == 0 {
		return nil
	}
	return e.EncodeUint8(uint8(v.Uint()))
}

func (uint8Codec) Decode(d ndrinterfaces.Decoder, flags ndrinterfaces.ScopeFlags, v reflect.Value) error {
	if flags&ndrinterfaces.Scalars == 0 {
		return nil
	}
	i, e := d.DecodeUint8()
	v.SetUint(uint64(i))
	return e
}

func (uint16Codec) Encode(e ndrinterfaces.Encoder, flags ndrinterfaces.ScopeFlags, v reflect.Value) error {
	if flags&ndrinterfaces.Scalars == 0 {
		return nil
	}
	return e.EncodeUint16(uint16(v.Uint()))
}

func (uint16Codec) Decode(d ndrinterfaces.Decoder, flags ndrinterfaces.ScopeFlags, v reflect.Value) error {
	if flags&ndrinterfaces.Scalars == 0 {
		return nil
	}
	i, e := d.DecodeUint16()
	v.SetUint(uint64(i))
	return e
}

func (uint32Codec) Encode(e ndrinterfaces.Encoder, flags ndrinterfaces.ScopeFlags, v reflect.Value) error {
	if flags&ndrinterfaces.Scalars == 0 {
		return nil
	}
	return e.EncodeUint32(uint32(v.Uint()))
}

func (uint32Codec) Decode(d ndrinterfaces.Decoder, flags ndrinterfaces.ScopeFlags, v reflect.Value) error {
	if flags&ndrinterfaces.Scalars == 0 {
		return nil
	}
	i, e := d.DecodeUint32()
	v.SetUint(uint64(i))
	return e
}

// [u]hyperCodec handles hyper ([u]int64) integers
type hyperCodec struct{}
type uhyperCodec struct{}

var (
	hyperCodecI  xCodec = hyperCodec{}
	uhyperCodecI xCodec = uhyperCodec{}
)

func (hyperCodec) alignment() int  { return 8 }
func (uhyperCodec) alignment() int { return 8 }

func (hyperCodec) Encode(e ndrinterfaces.Encoder, flags ndrinterfaces.ScopeFlags, v reflect.Value) error {
	if flags&ndrinterfaces.Scalars == 0 {
		return nil
	}
	return e.EncodeInt64(v.Int())
}

func (hyperCodec) Decode(d ndrinterfaces.Decoder, flags ndrinterfaces.ScopeFlags, v reflect.Value) error {
	if flags&ndrinterfaces.Scalars == 0 {
		return nil
	}
	i, e := d.DecodeInt64()
	v.SetInt(i)
	return e
}

func (uhyperCodec) Encode(e ndrinterfaces.Encoder, flags ndrinterfaces.ScopeFlags, v reflect.Value) error {
	if flags&ndrinterfaces.Scalars == 0 {
		return nil
	}
	return e.EncodeHyper(v.Uint())
}

func (uhyperCodec) Decode(d ndrinterfaces.Decoder, flags ndrinterfaces.ScopeFlags, v reflect.Value) error {
	if flags&ndrinterfaces.Scalars == 0 {
		return nil
	}
	i, e := d.DecodeHyper()
	v.SetUint(i)
	return e
}

// doubleCodec handles doubles
type doubleCodec struct{}

var doubleCodecI xCodec = doubleCodec{}

func (doubleCodec) alignment() int { return 8 }

func (doubleCodec) Encode(e ndrinterfaces.Encoder, flags ndrinterfaces.ScopeFlags, v reflect.Value) error {
	if flags&ndrinterfaces.Scalars == 0 {
		return nil
	}
	return e.EncodeDouble(v.Float())
}

func (doubleCodec) Decode(d ndrinterfaces.Decoder, flags ndrinterfaces.ScopeFlags, v reflect.Value) error {
	if flags&ndrinterfaces.Scalars == 0 {
		return nil
	}
	f, e := d.DecodeDouble()
	v.SetFloat(f)
	return e
}

// guidCodec handles uuid.UUID as an NDR GUID
type guidCodec struct{}

var guidCodecI xCodec = guidCodec{}

func (guidCodec) alignment() int { return 4 }

func (guidCodec) Encode(e ndrinterfaces.Encoder, flags ndrinterfaces.ScopeFlags, v reflect.Value) error {
	if flags&ndrinterfaces.Scalars == 0 {
		return nil
	}
	return e.EncodeGUID(v.Interface().(uuid.UUID))
}

func (guidCodec) Decode(d ndrinterfaces.Decoder, flags ndrinterfaces.ScopeFlags, v reflect.Value) error {
	if flags&ndrinterfaces.Scalars == 0 {
		return nil
	}
	g, e := d.DecodeGUID()
	v.Set(reflect.ValueOf(g))
	return e
}

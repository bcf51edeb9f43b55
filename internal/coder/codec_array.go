// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

package coder

import (
	"fmt"
	"math"
	"reflect"

	ndrinterfaces "go.e43.eu/ndr/interfaces"
	"go.e43.eu/ndr/internal/errors"
	"go.e43.eu/ndr/internal/tags"
)

// arrayCodec handles fixed size arrays, which are marshalled in place without
// any size information
type arrayCodec struct {
	elem    xCodec
	isBytes bool
}

var _ xCodec = &arrayCodec{}

func makeArrayCodec(cr *Coder, t reflect.Type, tag tags.NDRTag) xCodec {
	if tag.Kind() != tags.Noop {
		return &errorCodec{fmt.Errorf("invalid tag %s for array type %s", tag, t)}
	}

	elem := cr.getCodec(t.Elem(), tag.Next())
	return &arrayCodec{
		elem:    elem,
		isBytes: elem == uint8CodecI,
	}
}

func (c *arrayCodec) alignment() int {
	return codecAlignment(c.elem)
}

func (c *arrayCodec) usesRelative() bool {
	return codecUsesRelative(c.elem)
}

func (c *arrayCodec) Encode(e ndrinterfaces.Encoder, flags ndrinterfaces.ScopeFlags, v reflect.Value) error {
	n := v.Len()
	if c.isBytes {
		return e.EncodeArrayUint8(flags&ndrinterfaces.Scalars, addressable(v).Slice(0, n).Bytes())
	}

	if flags&ndrinterfaces.Scalars != 0 {
		for i := 0; i < n; i++ {
			if err := c.elem.Encode(e, ndrinterfaces.Scalars, v.Index(i)); err != nil {
				return err
			}
		}
	}

	if flags&ndrinterfaces.Buffers != 0 {
		for i := 0; i < n; i++ {
			if err := c.elem.Encode(e, ndrinterfaces.Buffers, v.Index(i)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *arrayCodec) Decode(d ndrinterfaces.Decoder, flags ndrinterfaces.ScopeFlags, v reflect.Value) error {
	n := v.Len()
	if c.isBytes {
		if flags&ndrinterfaces.Scalars == 0 {
			return nil
		}

		b, err := d.DecodeArrayUint8(ndrinterfaces.Scalars, uint32(n))
		if err != nil {
			return err
		}
		copy(v.Slice(0, n).Bytes(), b)
		return nil
	}

	if flags&ndrinterfaces.Scalars != 0 {
		for i := 0; i < n; i++ {
			if err := c.elem.Decode(d, ndrinterfaces.Scalars, v.Index(i)); err != nil {
				return err
			}
		}
	}

	if flags&ndrinterfaces.Buffers != 0 {
		for i := 0; i < n; i++ {
			if err := c.elem.Decode(d, ndrinterfaces.Buffers, v.Index(i)); err != nil {
				return err
			}
		}
	}
	return nil
}

// sliceCodec handles slices. The target of a slice is a conformant array
// (size, then elements), a conformant varying array (size, offset, length,
// then elements) or a DATA_BLOB
type sliceCodec struct {
	kind    tags.NDRTagKind // Inline or a pointer kind
	layer   tags.NDRTagKind // Noop, Varying or Blob
	elem    xCodec
	elemt   reflect.Type
	isBytes bool
}

var _ xCodec = &sliceCodec{}

func makeSliceCodec(cr *Coder, t reflect.Type, tag tags.NDRTag) xCodec {
	k := tag.Kind()
	explicit := k.IsPointer() || k == tags.Inline

	kind, tag := splitPointerKind(tag)
	layer := tag.Kind()
	switch layer {
	case tags.Noop, tags.Varying:

	case tags.Blob:
		if t.Elem().Kind() != reflect.Uint8 {
			return &errorCodec{fmt.Errorf("blob tag applied to %s", t)}
		}
		// A DATA_BLOB lives in place unless explicitly placed behind a pointer
		if !explicit {
			kind = tags.Inline
		}

	default:
		return &errorCodec{fmt.Errorf("invalid tag %s for slice type %s", tag, t)}
	}

	elemt := t.Elem()
	elem := cr.getCodec(elemt, tag.Next())
	return &sliceCodec{
		kind:    kind,
		layer:   layer,
		elem:    elem,
		elemt:   elemt,
		isBytes: elem == uint8CodecI,
	}
}

func (c *sliceCodec) alignment() int {
	switch {
	case c.kind != tags.Inline:
		return referent(c.kind).alignment()
	case c.layer == tags.Blob:
		return 5
	default:
		return maxAlignment(5, codecAlignment(c.elem))
	}
}

func (c *sliceCodec) usesRelative() bool {
	if c.kind != tags.Inline && referent(c.kind).isRelative() {
		return true
	}
	return codecUsesRelative(c.elem)
}

func (c *sliceCodec) Encode(e ndrinterfaces.Encoder, flags ndrinterfaces.ScopeFlags, v reflect.Value) error {
	if c.kind == tags.Inline {
		return c.encodeBody(e, flags, v)
	}

	key := keyOfSlice(v)
	if flags&ndrinterfaces.Scalars != 0 {
		if err := referent(c.kind).encodeScalars(e, key); err != nil {
			return err
		}
	}

	if flags&ndrinterfaces.Buffers == 0 || key == nil {
		return nil
	}
	return referent(c.kind).encodeBuffers(e, key, func() error {
		return c.encodeBody(e, ndrinterfaces.ScalarsAndBuffers, v)
	})
}

func (c *sliceCodec) encodeBody(e ndrinterfaces.Encoder, flags ndrinterfaces.ScopeFlags, v reflect.Value) error {
	n := v.Len()
	if uint64(n) > math.MaxUint32 {
		return errors.New(errors.ErrArraySize, "array of %d elements is too large", n)
	}

	if c.layer == tags.Blob {
		return e.EncodeDataBlob(flags&ndrinterfaces.Scalars, v.Bytes())
	}

	if flags&ndrinterfaces.Scalars != 0 {
		if err := e.EncodeUint3264(uint32(n)); err != nil {
			return err
		}

		if c.layer == tags.Varying {
			if err := e.EncodeUint3264(0); err != nil {
				return err
			}
			if err := e.EncodeUint3264(uint32(n)); err != nil {
				return err
			}
		}

		if c.isBytes {
			return e.EncodeArrayUint8(ndrinterfaces.Scalars, v.Bytes())
		}

		for i := 0; i < n; i++ {
			if err := c.elem.Encode(e, ndrinterfaces.Scalars, v.Index(i)); err != nil {
				return err
			}
		}
	}

	if flags&ndrinterfaces.Buffers != 0 && !c.isBytes {
		for i := 0; i < n; i++ {
			if err := c.elem.Encode(e, ndrinterfaces.Buffers, v.Index(i)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *sliceCodec) Decode(d ndrinterfaces.Decoder, flags ndrinterfaces.ScopeFlags, v reflect.Value) error {
	if c.kind == tags.Inline {
		return c.decodeBody(d, flags, v)
	}

	key := v.Addr().Interface()
	if flags&ndrinterfaces.Scalars != 0 {
		present, err := referent(c.kind).decodeScalars(d, key)
		if err != nil {
			return err
		}

		// A present but not yet decoded target is marked by an empty slice
		if present {
			v.Set(reflect.MakeSlice(v.Type(), 0, 0))
		} else {
			v.Set(reflect.Zero(v.Type()))
		}
	}

	if flags&ndrinterfaces.Buffers == 0 || v.IsNil() {
		return nil
	}
	return referent(c.kind).decodeBuffers(d, key, func() error {
		return c.decodeBody(d, ndrinterfaces.ScalarsAndBuffers, v)
	})
}

func (c *sliceCodec) decodeBody(d ndrinterfaces.Decoder, flags ndrinterfaces.ScopeFlags, v reflect.Value) error {
	if c.layer == tags.Blob {
		if flags&ndrinterfaces.Scalars == 0 {
			return nil
		}

		b, err := d.DecodeDataBlob(ndrinterfaces.Scalars)
		if err != nil {
			return err
		}
		v.SetBytes(b)
		return nil
	}

	if flags&ndrinterfaces.Scalars != 0 {
		count, err := c.decodeCount(d, v.Addr().Interface())
		if err != nil {
			return err
		}

		if c.isBytes {
			b, err := d.DecodeArrayUint8(ndrinterfaces.Scalars, count)
			if err != nil {
				return err
			}
			v.SetBytes(b)
			return nil
		}

		v.Set(reflect.MakeSlice(v.Type(), int(count), int(count)))
		for i := 0; i < int(count); i++ {
			if err := c.elem.Decode(d, ndrinterfaces.Scalars, v.Index(i)); err != nil {
				return err
			}
		}
	}

	if flags&ndrinterfaces.Buffers != 0 && !c.isBytes {
		for i, n := 0, v.Len(); i < n; i++ {
			if err := c.elem.Decode(d, ndrinterfaces.Buffers, v.Index(i)); err != nil {
				return err
			}
		}
	}
	return nil
}

// decodeCount reads the size (and for varying arrays the offset and length)
// of an array, returning the number of elements which follow
func (c *sliceCodec) decodeCount(d ndrinterfaces.Decoder, key interface{}) (uint32, error) {
	if err := d.DecodeArraySize(key); err != nil {
		return 0, err
	}

	var (
		count uint32
		err   error
	)
	if c.layer == tags.Varying {
		if err := d.DecodeArrayLength(key); err != nil {
			return 0, err
		}
		if count, err = d.StealArrayLength(key); err != nil {
			return 0, err
		}
		if _, err = d.StealArraySize(key); err != nil {
			return 0, err
		}
	} else if count, err = d.StealArraySize(key); err != nil {
		return 0, err
	}

	if err := checkCount(d, count, c.elemt); err != nil {
		return 0, err
	}
	return count, nil
}

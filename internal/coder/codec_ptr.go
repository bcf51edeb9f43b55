// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

package coder

import (
	"fmt"
	"reflect"

	ndrinterfaces "go.e43.eu/ndr/interfaces"
	"go.e43.eu/ndr/internal/errors"
	"go.e43.eu/ndr/internal/tags"
)

// relativeUser is implemented by codecs which may contain relative pointers
// (and so require a relative base to be set up by the containing structure)
type relativeUser interface {
	usesRelative() bool
}

func codecUsesRelative(c xCodec) bool {
	if r, ok := c.(relativeUser); ok {
		return r.usesRelative()
	}
	return false
}

// splitPointerKind splits the pointer kind off the front of tag. Pointers and
// slices are unique pointers unless tagged otherwise
func splitPointerKind(tag tags.NDRTag) (tags.NDRTagKind, tags.NDRTag) {
	if k := tag.Kind(); k.IsPointer() || k == tags.Inline {
		return k, tag.Next()
	}
	return tags.Unique, tag
}

// referent implements the pointer part of pointers and slices; key identifies
// the target
type referent tags.NDRTagKind

func (r referent) alignment() int {
	switch tags.NDRTagKind(r) {
	case tags.ShortRelative:
		return 2
	case tags.Relative:
		return 4
	default:
		return 5
	}
}

func (r referent) isRelative() bool {
	return tags.NDRTagKind(r) == tags.Relative || tags.NDRTagKind(r) == tags.ShortRelative
}

func (r referent) encodeScalars(e ndrinterfaces.Encoder, key interface{}) error {
	switch tags.NDRTagKind(r) {
	case tags.Full:
		return e.EncodeFullPtr(key)
	case tags.Ref:
		if key == nil {
			return errors.New(errors.ErrInvalidPointer, "NULL [ref] pointer")
		}
		return e.EncodeRefPtr()
	case tags.Relative:
		return e.RelativePtr1(key)
	case tags.ShortRelative:
		return e.ShortRelativePtr1(key)
	default:
		return e.EncodeUniquePtr(key)
	}
}

// encodeBuffers writes the target (using body) of a non-nil pointer
func (r referent) encodeBuffers(e ndrinterfaces.Encoder, key interface{}, body func() error) error {
	switch tags.NDRTagKind(r) {
	case tags.Relative:
		emit, err := e.RelativePtr2Start(key)
		if err != nil || !emit {
			return err
		}
		if err := body(); err != nil {
			return err
		}
		return e.RelativePtr2End(key)

	case tags.ShortRelative:
		emit, err := e.ShortRelativePtr2(key)
		if err != nil || !emit {
			return err
		}
		return body()

	default:
		return body()
	}
}

// decodeScalars reads the pointer, returning whether the target is present
func (r referent) decodeScalars(d ndrinterfaces.Decoder, key interface{}) (bool, error) {
	switch tags.NDRTagKind(r) {
	case tags.Ref:
		id, err := d.DecodeRefPtr()
		if err != nil {
			return false, err
		}
		if id == 0 {
			return false, errors.New(errors.ErrInvalidPointer, "NULL [ref] pointer")
		}
		return true, nil

	case tags.Relative:
		rel, err := d.DecodeUint32()
		if err != nil || rel == 0 {
			return false, err
		}
		return true, d.RelativePtr1(key, rel)

	case tags.ShortRelative:
		rel, err := d.DecodeUint16()
		if err != nil || rel == 0 {
			return false, err
		}
		return true, d.RelativePtr1(key, uint32(rel))

	default:
		// Full pointers decode as unique pointers: each referent is allocated
		// separately
		id, err := d.DecodeGenericPtr()
		return id != 0, err
	}
}

// decodeBuffers reads the target (using body) of a present pointer
func (r referent) decodeBuffers(d ndrinterfaces.Decoder, key interface{}, body func() error) error {
	if !r.isRelative() {
		return body()
	}

	saved, err := d.RelativePtr2(key)
	if err != nil {
		return err
	}
	if err := body(); err != nil {
		return err
	}
	return d.RelativeRestore(saved)
}

// ptrCodec handles pointers
type ptrCodec struct {
	kind  tags.NDRTagKind
	elem  xCodec
	elemt reflect.Type
}

var _ xCodec = &ptrCodec{}

func makePtrCodec(cr *Coder, t reflect.Type, tag tags.NDRTag) xCodec {
	kind, tag := splitPointerKind(tag)

	// The entry for the pointer's own layer must be empty
	switch tag.Kind() {
	case tags.Noop:
		tag = tag.Next()
	default:
		return &errorCodec{fmt.Errorf("invalid tag %s for pointer type %s", tag, t)}
	}

	elemt := t.Elem()
	return &ptrCodec{
		kind:  kind,
		elem:  cr.getCodec(elemt, tag),
		elemt: elemt,
	}
}

func (c *ptrCodec) alignment() int {
	if c.kind == tags.Inline {
		return codecAlignment(c.elem)
	}
	return referent(c.kind).alignment()
}

func (c *ptrCodec) usesRelative() bool {
	if c.kind != tags.Inline && referent(c.kind).isRelative() {
		return true
	}
	return codecUsesRelative(c.elem)
}

func (c *ptrCodec) Encode(e ndrinterfaces.Encoder, flags ndrinterfaces.ScopeFlags, v reflect.Value) error {
	if c.kind == tags.Inline {
		if v.IsNil() {
			return errors.ErrNilPointer
		}
		return c.elem.Encode(e, flags, v.Elem())
	}

	var key interface{}
	if !v.IsNil() {
		key = v.Interface()
	}

	if flags&ndrinterfaces.Scalars != 0 {
		if err := referent(c.kind).encodeScalars(e, key); err != nil {
			return err
		}
	}

	if flags&ndrinterfaces.Buffers == 0 || key == nil {
		return nil
	}
	return referent(c.kind).encodeBuffers(e, key, func() error {
		return c.elem.Encode(e, ndrinterfaces.ScalarsAndBuffers, v.Elem())
	})
}

func (c *ptrCodec) Decode(d ndrinterfaces.Decoder, flags ndrinterfaces.ScopeFlags, v reflect.Value) error {
	if c.kind == tags.Inline {
		if v.IsNil() {
			v.Set(reflect.New(c.elemt))
		}
		return c.elem.Decode(d, flags, v.Elem())
	}

	// The pointer's own location identifies it between the two passes
	key := v.Addr().Interface()

	if flags&ndrinterfaces.Scalars != 0 {
		present, err := referent(c.kind).decodeScalars(d, key)
		if err != nil {
			return err
		}
		if present {
			v.Set(reflect.New(c.elemt))
		} else {
			v.Set(reflect.Zero(v.Type()))
		}
	}

	if flags&ndrinterfaces.Buffers == 0 || v.IsNil() {
		return nil
	}
	return referent(c.kind).decodeBuffers(d, key, func() error {
		return c.elem.Decode(d, ndrinterfaces.ScalarsAndBuffers, v.Elem())
	})
}

// sliceKey identifies the target of a slice. Empty slices may all share one
// data address, so they are told apart by where the slice itself is held
type sliceKey struct {
	data uintptr
	len  int
	at   uintptr
}

func keyOfSlice(v reflect.Value) interface{} {
	if v.IsNil() {
		return nil
	}
	k := sliceKey{data: v.Pointer(), len: v.Len()}
	if k.len == 0 && v.CanAddr() {
		k.at = v.Addr().Pointer()
	}
	return k
}

// checkCount fails if count elements of type t cannot possibly be present in
// the remaining input
func checkCount(d ndrinterfaces.Decoder, count uint32, t reflect.Type) error {
	if t.Size() == 0 || count <= d.Remaining() {
		return nil
	}
	return errors.New(errors.ErrArraySize,
		"array of %d elements exceeds the %d bytes remaining", count, d.Remaining())
}

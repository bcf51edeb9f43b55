// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

package coder

import (
	"reflect"
	"sync"
	"sync/atomic"

	ndrinterfaces "go.e43.eu/ndr/interfaces"
	"go.e43.eu/ndr/internal/tags"
)

// type xCodec is the internal codec representation we use
type xCodec = ndrinterfaces.Codec

// aligner is implemented by codecs which know the alignment of their type.
// Pseudo alignments 3 and 5 may be returned (see Encoder.Align)
type aligner interface {
	alignment() int
}

// codecAlignment returns the alignment of the type handled by c
func codecAlignment(c xCodec) int {
	if a, ok := c.(aligner); ok {
		return a.alignment()
	}
	return 1
}

// alignSizeOrder orders pseudo alignments between the real ones
func alignSizeOrder(n int) int {
	switch n {
	case 3:
		return 6 // between 2 and 4
	case 5:
		return 12 // between 4 and 8
	default:
		return n * 2
	}
}

// maxAlignment returns the greater of two alignments
func maxAlignment(a, b int) int {
	if alignSizeOrder(a) >= alignSizeOrder(b) {
		return a
	}
	return b
}

// codec embedding a fixed, memoised error (generally
// indicating that a type can't be marshalled)
type errorCodec struct {
	err error
}

func (c *errorCodec) Encode(e ndrinterfaces.Encoder, flags ndrinterfaces.ScopeFlags, v reflect.Value) error {
	return c.err
}

func (c *errorCodec) Decode(d ndrinterfaces.Decoder, flags ndrinterfaces.ScopeFlags, v reflect.Value) error {
	return c.err
}

// placeholder codec for types under construction, to handle cycles
type deferredCodec struct {
	real atomic.Value // xCodec
	wg   sync.WaitGroup
}

var _ xCodec = &deferredCodec{}

func newDeferredCodec() *deferredCodec {
	dc := new(deferredCodec)
	dc.wg.Add(1)
	return dc
}

func (dc *deferredCodec) get() xCodec {
	real := dc.real.Load()
	if real == nil {
		dc.wg.Wait()
		real = dc.real.Load()
	}
	return real.(xCodec)
}

func (dc *deferredCodec) Encode(e ndrinterfaces.Encoder, flags ndrinterfaces.ScopeFlags, v reflect.Value) error {
	return dc.get().Encode(e, flags, v)
}

func (dc *deferredCodec) Decode(d ndrinterfaces.Decoder, flags ndrinterfaces.ScopeFlags, v reflect.Value) error {
	return dc.get().Decode(d, flags, v)
}

// A type which refers to itself can only do so through a pointer, so an
// unresolved codec is never asked for the alignment of an inline value
func (dc *deferredCodec) alignment() int {
	if real := dc.real.Load(); real != nil {
		return codecAlignment(real.(xCodec))
	}
	return 1
}

func (dc *deferredCodec) usesRelative() bool {
	if real := dc.real.Load(); real != nil {
		return codecUsesRelative(real.(xCodec))
	}
	return false
}

func (dc *deferredCodec) resolve(real xCodec) {
	dc.real.Store(real)
	dc.wg.Done()
}

// marshalerCodec handles types which know how to self marshal
type marshalerCodec struct{}

var marshalerCodecI = marshalerCodec{}

func (marshalerCodec) Encode(e ndrinterfaces.Encoder, flags ndrinterfaces.ScopeFlags, v reflect.Value) error {
	return v.Interface().(ndrinterfaces.Marshaler).MarshalNDR(e, flags)
}

func (marshalerCodec) Decode(d ndrinterfaces.Decoder, flags ndrinterfaces.ScopeFlags, v reflect.Value) error {
	return v.Interface().(ndrinterfaces.Marshaler).UnmarshalNDR(d, flags)
}

// addrMarshalerCodec handles types whose pointer knows how to self marshal
type addrMarshalerCodec struct{}

var addrMarshalerCodecI = addrMarshalerCodec{}

func addressable(v reflect.Value) reflect.Value {
	if v.CanAddr() {
		return v
	}
	nv := reflect.New(v.Type()).Elem()
	nv.Set(v)
	return nv
}

func (addrMarshalerCodec) Encode(e ndrinterfaces.Encoder, flags ndrinterfaces.ScopeFlags, v reflect.Value) error {
	return addressable(v).Addr().Interface().(ndrinterfaces.Marshaler).MarshalNDR(e, flags)
}

func (addrMarshalerCodec) Decode(d ndrinterfaces.Decoder, flags ndrinterfaces.ScopeFlags, v reflect.Value) error {
	return v.Addr().Interface().(ndrinterfaces.Marshaler).UnmarshalNDR(d, flags)
}

// flagsCodec sets wire flags while marshalling the wrapped value
type flagsCodec struct {
	flags ndrinterfaces.Flags
	inner xCodec
}

func makeFlagsCodec(cr *Coder, t reflect.Type, tag tags.NDRTag) xCodec {
	lo, hi := tag.Value(1), tag.Value(2)
	return &flagsCodec{
		flags: ndrinterfaces.Flags(lo) | ndrinterfaces.Flags(hi)<<32,
		inner: cr.getCodec(t, tag.Next()),
	}
}

func (c *flagsCodec) alignment() int {
	if c.flags&ndrinterfaces.FlagNoAlign != 0 {
		return 1
	}
	return codecAlignment(c.inner)
}

func (c *flagsCodec) usesRelative() bool {
	return codecUsesRelative(c.inner)
}

func (c *flagsCodec) Encode(e ndrinterfaces.Encoder, flags ndrinterfaces.ScopeFlags, v reflect.Value) error {
	saved := e.Flags()
	e.SetFlags(c.flags)
	err := c.inner.Encode(e, flags, v)
	e.ReplaceFlags(saved)
	return err
}

func (c *flagsCodec) Decode(d ndrinterfaces.Decoder, flags ndrinterfaces.ScopeFlags, v reflect.Value) error {
	saved := d.Flags()
	d.SetFlags(c.flags)
	err := c.inner.Decode(d, flags, v)
	d.ReplaceFlags(saved)
	return err
}

// subcontextCodec marshals the wrapped value into a subcontext. The whole
// value (scalars and buffers) lives in the subcontext, which is written in
// the scalars pass of the containing type
type subcontextCodec struct {
	headerSize uint32
	sizeIs     int64
	inner      xCodec
}

func makeSubcontextCodec(cr *Coder, t reflect.Type, tag tags.NDRTag) xCodec {
	c := &subcontextCodec{
		headerSize: tag.Value(1),
		sizeIs:     -1,
		inner:      cr.getCodec(t, tag.Next()),
	}

	if _, n := tag.ValueRange(); n > 2 {
		c.sizeIs = int64(tag.Value(2))
	}
	return c
}

func (c *subcontextCodec) alignment() int {
	switch c.headerSize {
	case 2:
		return 2
	case 4:
		return 5
	default:
		return 1
	}
}

func (c *subcontextCodec) Encode(e ndrinterfaces.Encoder, flags ndrinterfaces.ScopeFlags, v reflect.Value) error {
	if err := e.CheckFlags(flags); err != nil {
		return err
	}
	if flags&ndrinterfaces.Scalars == 0 {
		return nil
	}

	sub, err := e.SubcontextStart(c.headerSize, c.sizeIs)
	if err != nil {
		return err
	}
	if err := c.inner.Encode(sub, ndrinterfaces.ScalarsAndBuffers, v); err != nil {
		return err
	}
	return e.SubcontextEnd(sub, c.headerSize, c.sizeIs)
}

func (c *subcontextCodec) Decode(d ndrinterfaces.Decoder, flags ndrinterfaces.ScopeFlags, v reflect.Value) error {
	if err := d.CheckFlags(flags); err != nil {
		return err
	}
	if flags&ndrinterfaces.Scalars == 0 {
		return nil
	}

	sub, err := d.SubcontextStart(c.headerSize, c.sizeIs)
	if err != nil {
		return err
	}
	if err := c.inner.Decode(sub, ndrinterfaces.ScalarsAndBuffers, v); err != nil {
		return err
	}
	return d.SubcontextEnd(sub, c.headerSize, c.sizeIs)
}

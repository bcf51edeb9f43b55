// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

package coder

import (
	"math"
	"reflect"
	"sync"

	"github.com/google/uuid"

	ndrinterfaces "go.e43.eu/ndr/interfaces"
	"go.e43.eu/ndr/internal/bounds"
	"go.e43.eu/ndr/internal/errors"
	"go.e43.eu/ndr/internal/tokens"
)

// Allocation granularity of growable push buffers
const baseMarshallSize = 1024

// relativeEndUnset marks an encoder on which no relative end offset has
// been established (so reverse relative pointers may not be used)
const relativeEndUnset = 0xFFFFFFFF

const refPtrReferent = 0xAEF1AEF1

var encoderPool = sync.Pool{
	New: func() interface{} {
		return &encoder{
			codecCacheSlot: 3,
		}
	},
}

type encoder struct {
	ndrContext

	// data[0:len(data)] is the allocated buffer
	data  []byte
	fixed bool

	fullPtrList       tokens.List
	relativeBeginList tokens.List
	// Relative targets already emitted, by key, with their absolute offset
	relativeDoneList  tokens.List
	relativeEndOffset uint32

	// Compression state which persists between chunks
	mszipDict []byte

	// Small cache of most recently encoded types. Typically a small number of types
	// are repeatedly written to an encoder
	codecCache [4]struct {
		type_ reflect.Type
		codec xCodec
	}
	// Next slot for replacement
	codecCacheSlot int
}

var _ ndrinterfaces.Encoder = &encoder{}

func (e *encoder) reset(cr *Coder, flags ndrinterfaces.Flags) {
	if e.cr != cr {
		for i := range e.codecCache {
			e.codecCache[i].type_ = nil
			e.codecCache[i].codec = nil
		}
	}

	e.ndrContext.reset(cr, flags)
	e.data = e.data[:0]
	e.fixed = false
	e.fullPtrList.Reset()
	e.relativeBeginList.Reset()
	e.relativeDoneList.Reset()
	e.relativeEndOffset = relativeEndUnset
	e.mszipDict = nil
}

// newChild returns a fresh encoder for a subcontext of e
func (e *encoder) newChild(flags ndrinterfaces.Flags) *encoder {
	c := encoderPool.Get().(*encoder)
	c.reset(e.cr, flags)
	c.inherit(&e.ndrContext, flags)
	return c
}

func (e *encoder) release() {
	if e.fixed {
		e.data = nil
	}
	encoderPool.Put(e)
}

func (e *encoder) Bytes() []byte {
	return e.data[:e.offset]
}

func (e *encoder) SetOffset(ofs uint32) error {
	if ofs > uint32(len(e.data)) {
		return e.error(errors.ErrBufSize, "Attempt to set offset %d beyond allocated size %d",
			ofs, len(e.data))
	}
	e.offset = ofs
	return nil
}

// expandTo ensures the buffer holds at least size bytes
func (e *encoder) expandTo(size uint32) error {
	alloc := uint32(len(e.data))

	if e.fixed {
		if alloc >= size {
			return nil
		}
		return e.error(errors.ErrBufSize,
			"Overflow of fixed buffer in push_expand to %d", size)
	}

	if alloc > size {
		return nil
	}

	newAlloc, ok := bounds.Add(alloc, baseMarshallSize)
	if !ok {
		newAlloc = math.MaxUint32
	}
	if size >= newAlloc {
		newAlloc = size + 1
	}

	if uint32(cap(e.data)) >= newAlloc {
		e.data = e.data[:newAlloc]
	} else {
		nd := make([]byte, newAlloc)
		copy(nd, e.data)
		e.data = nd
	}
	return nil
}

func (e *encoder) Expand(n uint32) error {
	size, ok := bounds.Add(e.offset, n)
	if !ok || size == math.MaxUint32 {
		return e.error(errors.ErrBufSize,
			"Overflow in push_expand to %d+%d", e.offset, n)
	}
	return e.expandTo(size)
}

// reserve aligns to align, ensures n bytes are available and returns them.
// The offset is only moved when the whole operation succeeds
func (e *encoder) reserve(align int, n uint32) ([]byte, error) {
	pos := e.offset
	if e.flags&ndrinterfaces.FlagNoAlign == 0 {
		var ok bool
		pos, ok = bounds.AlignUp(pos, e.alignSize(align))
		if !ok {
			return nil, e.error(errors.ErrOffset, "Overflow aligning offset %d to %d",
				e.offset, e.alignSize(align))
		}
	}

	end, ok := bounds.Add(pos, n)
	if !ok || end == math.MaxUint32 {
		return nil, e.error(errors.ErrBufSize,
			"Overflow in push_expand to %d+%d", pos, n)
	}
	if err := e.expandTo(end); err != nil {
		return nil, err
	}

	for i := e.offset; i < pos; i++ {
		e.data[i] = 0
	}
	e.offset = end
	return e.data[pos:end], nil
}

func (e *encoder) doAlign(n uint32) error {
	if e.flags&ndrinterfaces.FlagNoAlign != 0 || n <= 1 {
		return nil
	}
	_, err := e.reserve(int(n), 0)
	return err
}

func (e *encoder) Align(n int) error {
	return e.doAlign(e.alignSize(n))
}

func (e *encoder) UnionAlign(n int) error {
	if !e.ndr64() {
		return nil
	}
	return e.Align(n)
}

func (e *encoder) TrailerAlign(n int) error {
	if !e.ndr64() {
		return nil
	}
	return e.Align(n)
}

func (e *encoder) EncodeZero(n uint32) error {
	b, err := e.reserve(1, n)
	for i := range b {
		b[i] = 0
	}
	return err
}

func (e *encoder) EncodeBytes(buf []byte) error {
	if uint64(len(buf)) >= math.MaxUint32 {
		return e.error(errors.ErrBufSize, "Byte array of %d bytes too long", len(buf))
	}
	b, err := e.reserve(1, uint32(len(buf)))
	copy(b, buf)
	return err
}

func (e *encoder) EncodeArrayUint8(flags ndrinterfaces.ScopeFlags, b []byte) error {
	if err := e.CheckFlags(flags); err != nil {
		return err
	}
	if flags&ndrinterfaces.Scalars == 0 {
		return nil
	}
	return e.EncodeBytes(b)
}

func (e *encoder) EncodeDataBlob(flags ndrinterfaces.ScopeFlags, b []byte) error {
	if err := e.CheckFlags(flags); err != nil {
		return err
	}
	if flags&ndrinterfaces.Scalars == 0 {
		return nil
	}

	switch {
	case e.flags&ndrinterfaces.FlagRemaining != 0:
		// Nothing to do

	case e.flags&(ndrinterfaces.FlagAlign2|ndrinterfaces.FlagAlign4|ndrinterfaces.FlagAlign8) != 0:
		// The blob is padding, whatever it contains
		return e.EncodeZero(bounds.Padding(e.offset, e.flagAlignment()))

	default:
		if uint64(len(b)) > math.MaxUint32 {
			return e.error(errors.ErrLength, "DATA_BLOB of %d bytes too long", len(b))
		}
		if err := e.EncodeUint3264(uint32(len(b))); err != nil {
			return err
		}
	}
	return e.EncodeBytes(b)
}

func (e *encoder) EncodeBool(b bool) error {
	if b {
		return e.EncodeUint8(1)
	}
	return e.EncodeUint8(0)
}

func (e *encoder) EncodeUint8(v uint8) error {
	b, err := e.reserve(1, 1)
	if err != nil {
		return err
	}
	b[0] = v
	return nil
}

func (e *encoder) EncodeInt8(v int8) error {
	return e.EncodeUint8(uint8(v))
}

func (e *encoder) EncodeUint16(v uint16) error {
	b, err := e.reserve(2, 2)
	if err != nil {
		return err
	}
	e.order().PutUint16(b, v)
	return nil
}

func (e *encoder) EncodeInt16(v int16) error {
	return e.EncodeUint16(uint16(v))
}

func (e *encoder) EncodeUint1632(v uint16) error {
	if e.ndr64() {
		return e.EncodeUint32(uint32(v))
	}
	return e.EncodeUint16(v)
}

func (e *encoder) EncodeUint32(v uint32) error {
	b, err := e.reserve(4, 4)
	if err != nil {
		return err
	}
	e.order().PutUint32(b, v)
	return nil
}

func (e *encoder) EncodeInt32(v int32) error {
	return e.EncodeUint32(uint32(v))
}

func (e *encoder) EncodeUint3264(v uint32) error {
	if e.ndr64() {
		return e.EncodeHyper(uint64(v))
	}
	return e.EncodeUint32(v)
}

func (e *encoder) EncodeInt3264(v int32) error {
	if e.ndr64() {
		return e.EncodeDlong(int64(v))
	}
	return e.EncodeInt32(v)
}

// putUdlong writes v as two 32-bit words, low word first
func (e *encoder) putUdlong(b []byte, v uint64) {
	o := e.order()
	o.PutUint32(b[0:4], uint32(v))
	o.PutUint32(b[4:8], uint32(v>>32))
}

// putUdlongr writes v as two 32-bit words, high word first
func (e *encoder) putUdlongr(b []byte, v uint64) {
	o := e.order()
	o.PutUint32(b[0:4], uint32(v>>32))
	o.PutUint32(b[4:8], uint32(v))
}

func (e *encoder) EncodeUdlong(v uint64) error {
	b, err := e.reserve(4, 8)
	if err != nil {
		return err
	}
	e.putUdlong(b, v)
	return nil
}

func (e *encoder) EncodeUdlongr(v uint64) error {
	b, err := e.reserve(4, 8)
	if err != nil {
		return err
	}
	e.putUdlongr(b, v)
	return nil
}

func (e *encoder) EncodeDlong(v int64) error {
	return e.EncodeUdlong(uint64(v))
}

func (e *encoder) EncodeHyper(v uint64) error {
	b, err := e.reserve(8, 8)
	if err != nil {
		return err
	}
	if e.bigEndian() {
		e.putUdlongr(b, v)
	} else {
		e.putUdlong(b, v)
	}
	return nil
}

func (e *encoder) EncodeInt64(v int64) error {
	return e.EncodeHyper(uint64(v))
}

func (e *encoder) EncodeDouble(v float64) error {
	return e.EncodeHyper(math.Float64bits(v))
}

func (e *encoder) EncodeEnumUint8(v uint8) error {
	return e.EncodeUint8(v)
}

func (e *encoder) EncodeEnumUint16(v uint16) error {
	return e.EncodeUint1632(v)
}

func (e *encoder) EncodeEnumUint1632(v uint16) error {
	return e.EncodeUint1632(v)
}

func (e *encoder) EncodeGUID(g uuid.UUID) error {
	b, err := e.reserve(4, 16)
	if err != nil {
		return err
	}

	// The first three fields are integers in the context byte order; the
	// rest is a byte array
	o := e.order()
	o.PutUint32(b[0:4], uint32(g[0])<<24|uint32(g[1])<<16|uint32(g[2])<<8|uint32(g[3]))
	o.PutUint16(b[4:6], uint16(g[4])<<8|uint16(g[5]))
	o.PutUint16(b[6:8], uint16(g[6])<<8|uint16(g[7]))
	copy(b[8:16], g[8:16])
	return nil
}

func isNilKey(p interface{}) bool {
	if p == nil {
		return true
	}
	v := reflect.ValueOf(p)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Chan, reflect.Func, reflect.Interface, reflect.Slice, reflect.UnsafePointer:
		return v.IsNil()
	default:
		return false
	}
}

func (e *encoder) EncodeUniquePtr(p interface{}) error {
	var ptr uint32
	if !isNilKey(p) {
		ptr = e.ptrCount*4 | 0x00020000
		e.ptrCount++
	}
	return e.EncodeUint3264(ptr)
}

func (e *encoder) EncodeFullPtr(p interface{}) error {
	var ptr uint32
	if !isNilKey(p) {
		var err error
		ptr, err = e.fullPtrList.Peek(p)
		if err != nil {
			e.ptrCount++
			ptr = e.ptrCount
			if err := e.fullPtrList.Store(p, ptr); err != nil {
				return e.tokenError("full_ptr_list", err)
			}
		}
	}
	return e.EncodeUint3264(ptr)
}

func (e *encoder) EncodeRefPtr() error {
	return e.EncodeUint3264(refPtrReferent)
}

func (e *encoder) SetPtrCount(n uint32) {
	e.ptrCount = n
}

func (e *encoder) Encode(o interface{}, flags ndrinterfaces.ScopeFlags) error {
	if fm, ok := o.(ndrinterfaces.FunctionMarshaler); ok && isFnFlags(flags) {
		if err := e.CheckFnFlags(flags); err != nil {
			return err
		}
		return fm.MarshalNDRFunction(e, flags)
	}
	return e.EncodeValue(reflect.ValueOf(o), flags)
}

func (e *encoder) EncodeValue(v reflect.Value, flags ndrinterfaces.ScopeFlags) error {
	if err := e.CheckFlags(flags); err != nil {
		return err
	}

	if !v.IsValid() {
		return errors.ErrNilPointer
	}
	t := v.Type()

	// Token keys are derived from the addresses of the values being encoded,
	// so work on an addressable copy
	if !v.CanAddr() {
		switch t.Kind() {
		case reflect.Struct, reflect.Array:
			nv := reflect.New(t).Elem()
			nv.Set(v)
			v = nv
		}
	}

	for _, ce := range e.codecCache {
		if ce.type_ == t {
			return ce.codec.Encode(e, flags, v)
		}
	}

	c := e.cr.getTopLevelCodec(t)
	e.codecCacheSlot = (e.codecCacheSlot + 1) & (len(e.codecCache) - 1)
	e.codecCache[e.codecCacheSlot].type_ = t
	e.codecCache[e.codecCacheSlot].codec = c

	return c.Encode(e, flags, v)
}

// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

package coder

import (
	"math"
	"reflect"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"go.e43.eu/ndr/arena"
	ndrinterfaces "go.e43.eu/ndr/interfaces"
	"go.e43.eu/ndr/internal/bounds"
	"go.e43.eu/ndr/internal/errors"
	"go.e43.eu/ndr/internal/tokens"
)

var decoderPool = sync.Pool{
	New: func() interface{} {
		return new(decoder)
	},
}

type decoder struct {
	ndrContext

	data     []byte
	dataSize uint32
	missing  uint32

	arena *arena.Arena

	arraySizeList   tokens.List
	arrayLengthList tokens.List

	// Highest offset reached while reading relative targets
	relativeHighest uint32
	// Highest relative target resolved so far
	relativeTargetHighest uint32

	mszipDict []byte
}

var _ ndrinterfaces.Decoder = &decoder{}

func (d *decoder) reset(cr *Coder, buf []byte, flags ndrinterfaces.Flags) {
	d.ndrContext.reset(cr, flags)
	d.data = buf
	d.dataSize = uint32(len(buf))
	d.missing = 0
	d.arena = nil
	d.arraySizeList.Reset()
	d.arrayLengthList.Reset()
	d.relativeHighest = 0
	d.relativeTargetHighest = 0
	d.mszipDict = nil
}

// newChild returns a decoder for a subcontext of d reading buf
func (d *decoder) newChild(buf []byte, flags ndrinterfaces.Flags) *decoder {
	c := decoderPool.Get().(*decoder)
	c.reset(d.cr, buf, flags)
	c.inherit(&d.ndrContext, flags)
	c.arena = d.arena
	return c
}

func (d *decoder) release() {
	d.data = nil
	d.arena = nil
	decoderPool.Put(d)
}

func (d *decoder) DataSize() uint32 {
	return d.dataSize
}

func (d *decoder) Remaining() uint32 {
	return d.dataSize - d.offset
}

func (d *decoder) Missing() uint32 {
	return d.missing
}

func (d *decoder) Arena() *arena.Arena {
	if d.arena == nil {
		d.arena = arena.New()
	}
	return d.arena
}

func (d *decoder) SetArena(a *arena.Arena) {
	d.arena = a
}

// need checks that n bytes at offs lie within the data
func (d *decoder) need(offs, n uint32) error {
	if bounds.Within(offs, n, d.dataSize) {
		return nil
	}

	if d.flags&ndrinterfaces.FlagIncompleteBuffer != 0 {
		missing := bounds.Missing(offs, n, d.dataSize)
		d.missing = missing
		err := d.error(errors.ErrIncompleteBuffer, "Pull bytes %d (missing %d)", n, missing)
		err.(*errors.Error).Missing = missing
		return err
	}

	return d.error(errors.ErrBufSize, "Pull bytes %d at offset %d (%d available)",
		n, offs, d.dataSize)
}

// checkPadding fails if any of the bytes in [from, to) are non-zero
func (d *decoder) checkPadding(from, to uint32) error {
	for i := from; i < to && i < d.dataSize; i++ {
		if d.data[i] != 0 {
			d.log.Warn("non-zero padding",
				zap.Uint32("offset", i), zap.Uint32("aligned_offset", to), zap.Uint8("byte", d.data[i]))
			return d.error(errors.ErrValidate, "Non-zero padding at offset %d", i)
		}
	}
	return nil
}

// take aligns to align and consumes n bytes. The offset is only moved when the
// whole operation succeeds
func (d *decoder) take(align int, n uint32) ([]byte, error) {
	pos := d.offset
	if d.flags&ndrinterfaces.FlagNoAlign == 0 {
		var ok bool
		pos, ok = bounds.AlignUp(pos, d.alignSize(align))
		if !ok {
			return nil, d.error(errors.ErrOffset, "Overflow aligning offset %d to %d",
				d.offset, d.alignSize(align))
		}
	}

	if err := d.need(pos, n); err != nil {
		return nil, err
	}

	if d.flags&ndrinterfaces.FlagPadCheck != 0 {
		if err := d.checkPadding(d.offset, pos); err != nil {
			return nil, err
		}
	}

	d.offset = pos + n
	return d.data[pos : pos+n], nil
}

func (d *decoder) SetOffset(ofs uint32) error {
	if ofs > d.dataSize {
		return d.error(errors.ErrBufSize, "ndr_pull_set_offset %d > %d", ofs, d.dataSize)
	}
	d.offset = ofs
	return nil
}

func (d *decoder) Advance(n uint32) error {
	_, err := d.take(1, n)
	return err
}

func (d *decoder) doAlign(n uint32) error {
	if d.flags&ndrinterfaces.FlagNoAlign != 0 || n <= 1 {
		return nil
	}
	_, err := d.take(int(n), 0)
	return err
}

func (d *decoder) Align(n int) error {
	return d.doAlign(d.alignSize(n))
}

func (d *decoder) UnionAlign(n int) error {
	if !d.ndr64() {
		return nil
	}
	return d.Align(n)
}

func (d *decoder) TrailerAlign(n int) error {
	if !d.ndr64() {
		return nil
	}
	return d.Align(n)
}

func (d *decoder) DecodeBytes(n uint32) ([]byte, error) {
	b, err := d.take(1, n)
	if err != nil {
		return nil, err
	}
	return d.Arena().Copy(b), nil
}

func (d *decoder) DecodeArrayUint8(flags ndrinterfaces.ScopeFlags, n uint32) ([]byte, error) {
	if err := d.CheckFlags(flags); err != nil {
		return nil, err
	}
	if flags&ndrinterfaces.Scalars == 0 {
		return nil, nil
	}
	return d.DecodeBytes(n)
}

func (d *decoder) DecodeDataBlob(flags ndrinterfaces.ScopeFlags) ([]byte, error) {
	if err := d.CheckFlags(flags); err != nil {
		return nil, err
	}
	if flags&ndrinterfaces.Scalars == 0 {
		return nil, nil
	}

	var length uint32
	switch {
	case d.flags&ndrinterfaces.FlagRemaining != 0:
		length = d.Remaining()

	case d.flags&(ndrinterfaces.FlagAlign2|ndrinterfaces.FlagAlign4|ndrinterfaces.FlagAlign8) != 0:
		length = bounds.Min(bounds.Padding(d.offset, d.flagAlignment()), d.Remaining())

	default:
		var err error
		if length, err = d.DecodeUint3264(); err != nil {
			return nil, err
		}
	}
	return d.DecodeBytes(length)
}

func (d *decoder) DecodeBool() (bool, error) {
	v, err := d.take(1, 1)
	if err != nil {
		return false, err
	}

	switch v[0] {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		d.offset--
		return false, d.error(errors.ErrValidate, "Invalid boolean value %d", v[0])
	}
}

func (d *decoder) DecodeUint8() (uint8, error) {
	b, err := d.take(1, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *decoder) DecodeInt8() (int8, error) {
	v, err := d.DecodeUint8()
	return int8(v), err
}

func (d *decoder) DecodeUint16() (uint16, error) {
	b, err := d.take(2, 2)
	if err != nil {
		return 0, err
	}
	return d.order().Uint16(b), nil
}

func (d *decoder) DecodeInt16() (int16, error) {
	v, err := d.DecodeUint16()
	return int16(v), err
}

func (d *decoder) DecodeUint1632() (uint16, error) {
	if !d.ndr64() {
		return d.DecodeUint16()
	}

	save := d.offset
	v, err := d.DecodeUint32()
	if err != nil {
		return 0, err
	}
	if v > math.MaxUint16 {
		d.offset = save
		return 0, d.error(errors.ErrNDR64, "non-zero upper 16 bits 0x%08x", v)
	}
	return uint16(v), nil
}

func (d *decoder) DecodeUint32() (uint32, error) {
	b, err := d.take(4, 4)
	if err != nil {
		return 0, err
	}
	return d.order().Uint32(b), nil
}

func (d *decoder) DecodeInt32() (int32, error) {
	v, err := d.DecodeUint32()
	return int32(v), err
}

func (d *decoder) DecodeUint3264() (uint32, error) {
	if !d.ndr64() {
		return d.DecodeUint32()
	}

	save := d.offset
	v, err := d.DecodeHyper()
	if err != nil {
		return 0, err
	}
	if v > math.MaxUint32 {
		d.offset = save
		return 0, d.error(errors.ErrNDR64, "non-zero upper 32 bits 0x%016x", v)
	}
	return uint32(v), nil
}

func (d *decoder) DecodeInt3264() (int32, error) {
	if !d.ndr64() {
		return d.DecodeInt32()
	}

	save := d.offset
	v, err := d.DecodeDlong()
	if err != nil {
		return 0, err
	}
	if v < math.MinInt32 || v > math.MaxInt32 {
		d.offset = save
		return 0, d.error(errors.ErrNDR64, "value 0x%016x does not fit in 32 bits", v)
	}
	return int32(v), nil
}

func (d *decoder) udlong(b []byte) uint64 {
	o := d.order()
	return uint64(o.Uint32(b[0:4])) | uint64(o.Uint32(b[4:8]))<<32
}

func (d *decoder) udlongr(b []byte) uint64 {
	o := d.order()
	return uint64(o.Uint32(b[0:4]))<<32 | uint64(o.Uint32(b[4:8]))
}

func (d *decoder) DecodeUdlong() (uint64, error) {
	b, err := d.take(4, 8)
	if err != nil {
		return 0, err
	}
	return d.udlong(b), nil
}

func (d *decoder) DecodeUdlongr() (uint64, error) {
	b, err := d.take(4, 8)
	if err != nil {
		return 0, err
	}
	return d.udlongr(b), nil
}

func (d *decoder) DecodeDlong() (int64, error) {
	v, err := d.DecodeUdlong()
	return int64(v), err
}

func (d *decoder) DecodeHyper() (uint64, error) {
	b, err := d.take(8, 8)
	if err != nil {
		return 0, err
	}
	if d.bigEndian() {
		return d.udlongr(b), nil
	}
	return d.udlong(b), nil
}

func (d *decoder) DecodeInt64() (int64, error) {
	v, err := d.DecodeHyper()
	return int64(v), err
}

func (d *decoder) DecodeDouble() (float64, error) {
	v, err := d.DecodeHyper()
	return math.Float64frombits(v), err
}

func (d *decoder) DecodeEnumUint8() (uint8, error) {
	return d.DecodeUint8()
}

func (d *decoder) DecodeEnumUint16() (uint16, error) {
	return d.DecodeUint1632()
}

func (d *decoder) DecodeEnumUint1632() (uint16, error) {
	return d.DecodeUint1632()
}

func (d *decoder) DecodeGUID() (g uuid.UUID, err error) {
	b, err := d.take(4, 16)
	if err != nil {
		return g, err
	}

	o := d.order()
	tl, tm, th := o.Uint32(b[0:4]), o.Uint16(b[4:6]), o.Uint16(b[6:8])
	g[0], g[1], g[2], g[3] = byte(tl>>24), byte(tl>>16), byte(tl>>8), byte(tl)
	g[4], g[5] = byte(tm>>8), byte(tm)
	g[6], g[7] = byte(th>>8), byte(th)
	copy(g[8:16], b[8:16])
	return g, nil
}

func (d *decoder) DecodeGenericPtr() (uint32, error) {
	v, err := d.DecodeUint3264()
	if err != nil {
		return 0, err
	}
	if v != 0 {
		d.ptrCount++
	}
	return v, nil
}

func (d *decoder) DecodeRefPtr() (uint32, error) {
	// A ref pointer is always present, whatever its referent
	return d.DecodeGenericPtr()
}

func (d *decoder) DecodeArraySize(key interface{}) error {
	size, err := d.DecodeUint3264()
	if err != nil {
		return err
	}
	if err := d.arraySizeList.Store(key, size); err != nil {
		return d.tokenError("array_size_list", err)
	}
	return nil
}

func (d *decoder) GetArraySize(key interface{}) (uint32, error) {
	v, err := d.arraySizeList.Peek(key)
	if err != nil {
		return 0, d.tokenError("array_size_list", err)
	}
	return v, nil
}

func (d *decoder) StealArraySize(key interface{}) (uint32, error) {
	v, err := d.arraySizeList.Retrieve(key)
	if err != nil {
		return 0, d.tokenError("array_size_list", err)
	}
	return v, nil
}

func (d *decoder) CheckArraySize(key interface{}, size uint32) error {
	stored, err := d.GetArraySize(key)
	if err != nil {
		return err
	}
	if stored != size {
		return d.error(errors.ErrArraySize, "Bad array size %d should be %d", stored, size)
	}
	return nil
}

func (d *decoder) CheckStealArraySize(key interface{}, size uint32) error {
	stored, err := d.StealArraySize(key)
	if err != nil {
		return err
	}
	if stored != size {
		return d.error(errors.ErrArraySize, "Bad array size %d should be %d", stored, size)
	}
	return nil
}

func (d *decoder) DecodeArrayLength(key interface{}) error {
	save := d.offset
	ofs, err := d.DecodeUint3264()
	if err != nil {
		return err
	}
	if ofs != 0 {
		d.offset = save
		return d.error(errors.ErrArraySize, "non-zero array offset %d", ofs)
	}

	length, err := d.DecodeUint3264()
	if err != nil {
		d.offset = save
		return err
	}

	if size, err := d.arraySizeList.Peek(key); err == nil && length > size {
		d.offset = save
		return d.error(errors.ErrArraySize, "Bad array length %d greater than array size %d",
			length, size)
	}

	if err := d.arrayLengthList.Store(key, length); err != nil {
		return d.tokenError("array_length_list", err)
	}
	return nil
}

func (d *decoder) GetArrayLength(key interface{}) (uint32, error) {
	v, err := d.arrayLengthList.Peek(key)
	if err != nil {
		return 0, d.tokenError("array_length_list", err)
	}
	return v, nil
}

func (d *decoder) StealArrayLength(key interface{}) (uint32, error) {
	v, err := d.arrayLengthList.Retrieve(key)
	if err != nil {
		return 0, d.tokenError("array_length_list", err)
	}
	return v, nil
}

func (d *decoder) CheckArrayLength(key interface{}, length uint32) error {
	stored, err := d.GetArrayLength(key)
	if err != nil {
		return err
	}
	if stored != length {
		return d.error(errors.ErrArraySize, "Bad array length %d should be %d", stored, length)
	}
	return nil
}

func (d *decoder) CheckStealArrayLength(key interface{}, length uint32) error {
	stored, err := d.StealArrayLength(key)
	if err != nil {
		return err
	}
	if stored != length {
		return d.error(errors.ErrArraySize, "Bad array length %d should be %d", stored, length)
	}
	return nil
}

func (d *decoder) Decode(op interface{}, flags ndrinterfaces.ScopeFlags) (err error) {
	v := reflect.ValueOf(op)
	if !v.IsValid() || v.Type().Kind() != reflect.Ptr {
		return errors.ErrNotPointer
	}
	if v.IsNil() {
		return errors.ErrNilPointer
	}

	if fm, ok := op.(ndrinterfaces.FunctionMarshaler); ok && isFnFlags(flags) {
		if err := d.CheckFnFlags(flags); err != nil {
			return err
		}
		return fm.UnmarshalNDRFunction(d, flags)
	}
	return d.decodeValue(v.Elem(), flags)
}

func (d *decoder) DecodeValue(v reflect.Value, flags ndrinterfaces.ScopeFlags) (err error) {
	if !v.CanSet() {
		return errors.ErrNotPointer
	}
	return d.decodeValue(v, flags)
}

func (d *decoder) decodeValue(v reflect.Value, flags ndrinterfaces.ScopeFlags) (err error) {
	if err := d.CheckFlags(flags); err != nil {
		return err
	}
	return d.cr.getTopLevelCodec(v.Type()).Decode(d, flags, v)
}

// checkAllRead fails unless every byte was consumed, either directly or as
// the target of a relative pointer
func (d *decoder) checkAllRead() error {
	highest := bounds.Max(d.offset, d.relativeHighest)
	if highest < d.dataSize {
		return d.error(errors.ErrUnreadBytes, "not all bytes consumed: highest offset %d, size %d",
			highest, d.dataSize)
	}
	return nil
}

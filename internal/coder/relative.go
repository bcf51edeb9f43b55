// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

package coder

import (
	"math"

	"go.uber.org/zap"

	ndrinterfaces "go.e43.eu/ndr/interfaces"
	"go.e43.eu/ndr/internal/bounds"
	"go.e43.eu/ndr/internal/errors"
)

// Relative pointers are written in two phases. Phase 1 (in the scalars of the
// structure) reserves a slot and records its offset against the key. Phase 2
// (once the target is about to be written) fills the slot with the offset of
// the target from the relative base.
//
// In reverse mode, targets are written forwards as usual and then moved to
// the end of the region bounded by the relative end offset, which moves
// backwards as targets are placed.

func (e *encoder) RelativePtr1(key interface{}) error {
	if isNilKey(key) {
		return e.EncodeUint32(0)
	}
	if err := e.Align(4); err != nil {
		return err
	}
	if err := e.relativeList.Store(key, e.offset); err != nil {
		return e.tokenError("relative_list", err)
	}
	return e.EncodeUint32(0xFFFFFFFF)
}

func (e *encoder) ShortRelativePtr1(key interface{}) error {
	if isNilKey(key) {
		return e.EncodeUint16(0)
	}
	if err := e.Align(2); err != nil {
		return err
	}
	if err := e.relativeList.Store(key, e.offset); err != nil {
		return e.tokenError("relative_list", err)
	}
	return e.EncodeUint16(0xFFFF)
}

// fillSlot writes the relative offset of target into the slot reserved for key
func (e *encoder) fillSlot(key interface{}, target uint32, short bool) error {
	slot, err := e.relativeList.Retrieve(key)
	if err != nil {
		return e.tokenError("relative_list", err)
	}

	if slot > target {
		// Only reverse layouts place a target before its slot
		if e.flags&ndrinterfaces.FlagRelativeReverse == 0 {
			return e.error(errors.ErrBufSize,
				"relative pointer slot %d > target offset %d", slot, target)
		}
	}
	if target < e.relativeBase {
		return e.error(errors.ErrBufSize,
			"relative target %d < relative base %d", target, e.relativeBase)
	}
	rel := target - e.relativeBase

	if short {
		if rel > math.MaxUint16 {
			return e.error(errors.ErrBufSize,
				"short relative offset %d > UINT16_MAX", rel)
		}
		e.order().PutUint16(e.data[slot:slot+2], uint16(rel))
	} else {
		e.order().PutUint32(e.data[slot:slot+4], rel)
	}
	return nil
}

// doneKey identifies a written target. Targets are only shared between
// pointers under the same relative base
type doneKey struct {
	key  interface{}
	base uint32
}

// isEmptyTarget reports whether key is an empty slice. Every empty slice may
// share one address, so these are never shared
func isEmptyTarget(key interface{}) bool {
	k, ok := key.(sliceKey)
	return ok && k.len == 0
}

// resolveDone fills the slot of key if its target has already been written
// under the current relative base
func (e *encoder) resolveDone(key interface{}, short bool) (bool, error) {
	if isEmptyTarget(key) {
		return false, nil
	}

	target, err := e.relativeDoneList.Peek(doneKey{key, e.relativeBase})
	if err != nil || target < e.relativeBase {
		return false, nil
	}

	if e.flags&ndrinterfaces.FlagRelativeReverse == 0 {
		slot, err := e.relativeList.Peek(key)
		if err != nil {
			return false, e.tokenError("relative_list", err)
		}
		if slot > target {
			return false, nil
		}
	}
	return true, e.fillSlot(key, target, short)
}

// padRelative pads so that the next target is aligned relative to the base
func (e *encoder) padRelative() error {
	if e.offset < e.relativeBase {
		return e.error(errors.ErrBufSize,
			"offset %d < relative base %d", e.offset, e.relativeBase)
	}
	pad := bounds.Padding(e.offset-e.relativeBase, e.flagAlignment())
	if pad != 0 {
		return e.EncodeZero(pad)
	}
	return nil
}

func (e *encoder) markDone(key interface{}, target uint32) error {
	if isEmptyTarget(key) {
		return nil
	}
	if err := e.relativeDoneList.Store(doneKey{key, e.relativeBase}, target); err != nil {
		return e.tokenError("relative_done_list", err)
	}
	return nil
}

func (e *encoder) RelativePtr2Start(key interface{}) (bool, error) {
	if isNilKey(key) {
		return false, nil
	}

	if done, err := e.resolveDone(key, false); done || err != nil {
		return false, err
	}

	if e.flags&ndrinterfaces.FlagRelativeReverse == 0 {
		if err := e.padRelative(); err != nil {
			return false, err
		}
		if err := e.fillSlot(key, e.offset, false); err != nil {
			return false, err
		}
		return true, e.markDone(key, e.offset)
	}

	if e.relativeEndOffset == relativeEndUnset && e.flags&ndrinterfaces.FlagNoNDRSize == 0 {
		return false, e.error(errors.ErrRelative,
			"RELATIVE_REVERSE flag set and relative end offset unset")
	}
	if err := e.relativeBeginList.Store(key, e.offset); err != nil {
		return false, e.tokenError("relative_begin_list", err)
	}
	return true, nil
}

func (e *encoder) RelativePtr2End(key interface{}) error {
	if isNilKey(key) || e.flags&ndrinterfaces.FlagRelativeReverse == 0 {
		return nil
	}

	if e.flags&ndrinterfaces.FlagNoNDRSize != 0 {
		// Only sizing; better to overestimate than move anything
		return e.Align(8)
	}

	if e.relativeEndOffset < e.offset {
		return e.error(errors.ErrRelative,
			"relative end offset %d < offset %d", e.relativeEndOffset, e.offset)
	}

	begin, err := e.relativeBeginList.Retrieve(key)
	if err != nil {
		return e.tokenError("relative_begin_list", err)
	}
	if e.offset < begin {
		return e.error(errors.ErrRelative, "offset %d < begin offset %d", e.offset, begin)
	}

	length := e.offset - begin
	end := e.relativeEndOffset
	if end < length {
		return e.error(errors.ErrRelative,
			"relative end offset %d < target length %d", end, length)
	}

	correct := bounds.AlignDown(end-length, e.flagAlignment())
	if correct < begin {
		return e.error(errors.ErrRelative,
			"reverse target offset %d < begin offset %d", correct, begin)
	}
	if err := e.expandTo(end); err != nil {
		return err
	}

	e.log.Debug("moving reverse relative target",
		zap.Uint32("begin", begin), zap.Uint32("target", correct), zap.Uint32("length", length))

	// Move the target to the end of the free region, then clear what it
	// vacated and the alignment gap after it
	copy(e.data[correct:correct+length], e.data[begin:begin+length])
	clear(e.data[begin:bounds.Min(begin+length, correct)])
	clear(e.data[correct+length : end])

	e.relativeEndOffset = correct
	if err := e.fillSlot(key, correct, false); err != nil {
		return err
	}
	if err := e.markDone(key, correct); err != nil {
		return err
	}

	e.offset = begin
	return nil
}

func (e *encoder) ShortRelativePtr2(key interface{}) (bool, error) {
	if isNilKey(key) {
		return false, nil
	}

	if done, err := e.resolveDone(key, true); done || err != nil {
		return false, err
	}

	if err := e.padRelative(); err != nil {
		return false, err
	}
	if err := e.fillSlot(key, e.offset, true); err != nil {
		return false, err
	}
	return true, e.markDone(key, e.offset)
}

func (d *decoder) RelativePtr1(key interface{}, relOffset uint32) error {
	abs, ok := bounds.Add(d.relativeBase, relOffset)
	switch {
	case !ok:
		return d.error(errors.ErrRelative,
			"relative offset %d from base %d wraps around", relOffset, d.relativeBase)
	case abs > d.dataSize:
		return d.error(errors.ErrRelative,
			"relative target %d > data size %d", abs, d.dataSize)
	}

	if err := d.relativeList.Store(key, abs); err != nil {
		return d.tokenError("relative_list", err)
	}
	return nil
}

func (d *decoder) RelativePtr2(key interface{}) (uint32, error) {
	saved := d.offset

	abs, err := d.relativeList.Retrieve(key)
	if err != nil {
		return saved, d.tokenError("relative_list", err)
	}

	if d.flags&ndrinterfaces.FlagRelativeNoBackward != 0 && abs < d.relativeTargetHighest {
		return saved, d.error(errors.ErrRelative,
			"relative target %d precedes previous target %d", abs, d.relativeTargetHighest)
	}
	d.relativeTargetHighest = bounds.Max(d.relativeTargetHighest, abs)

	return saved, d.SetOffset(abs)
}

func (d *decoder) RelativeRestore(saved uint32) error {
	d.relativeHighest = bounds.Max(d.relativeHighest, d.offset)
	return d.SetOffset(saved)
}

func (d *decoder) RelativeHighestOffset() uint32 {
	return d.relativeHighest
}

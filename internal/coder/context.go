// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

package coder

import (
	"encoding/binary"
	stderrors "errors"
	"fmt"

	"go.uber.org/zap"

	ndrinterfaces "go.e43.eu/ndr/interfaces"
	"go.e43.eu/ndr/internal/errors"
	"go.e43.eu/ndr/internal/tokens"
)

// ndrContext is the state common to the push and pull contexts
type ndrContext struct {
	cr     *Coder
	log    *zap.Logger
	flags  ndrinterfaces.Flags
	offset uint32

	// Recursion guard
	depth              uint32
	globalMaxRecursion uint32

	ptrCount uint32

	switchList       tokens.List
	relativeList     tokens.List
	relativeBaseList tokens.List
	relativeBase     uint32
}

func (c *ndrContext) reset(cr *Coder, flags ndrinterfaces.Flags) {
	c.cr = cr
	c.log = cr.logger()
	c.flags = flags
	c.offset = 0
	c.depth = 0
	c.globalMaxRecursion = cr.globalMaxRecursion
	c.ptrCount = 0
	c.switchList.Reset()
	c.relativeList.Reset()
	c.relativeBaseList.Reset()
	c.relativeBase = 0
}

// inherit sets up c as a child of parent with the specified flags
func (c *ndrContext) inherit(parent *ndrContext, flags ndrinterfaces.Flags) {
	c.reset(parent.cr, flags)
	c.log = parent.log
	c.globalMaxRecursion = parent.globalMaxRecursion
	c.depth = parent.depth
}

// error constructs (and logs) an error of the specified code
func (c *ndrContext) error(code errors.Code, format string, args ...interface{}) error {
	err := errors.New(code, format, args...)
	if code != errors.ErrIncompleteBuffer {
		c.log.Debug("ndr error",
			zap.Stringer("code", code),
			zap.String("msg", err.Msg),
			zap.Uint32("offset", c.offset),
			zap.String("flags", fmt.Sprintf("%#x", uint64(c.flags))))
	}
	return err
}

// tokenError maps a token store failure onto the matching error code
func (c *ndrContext) tokenError(list string, err error) error {
	var full tokens.ErrFull
	if stderrors.As(err, &full) {
		return c.error(errors.ErrRange, "%s: %v", list, err)
	}
	return c.error(errors.ErrToken, "%s: %v", list, err)
}

func (c *ndrContext) Flags() ndrinterfaces.Flags {
	return c.flags
}

func (c *ndrContext) SetFlags(f ndrinterfaces.Flags) {
	c.flags = c.flags.Set(f)
}

func (c *ndrContext) ReplaceFlags(f ndrinterfaces.Flags) {
	c.flags = f
}

func (c *ndrContext) Offset() uint32 {
	return c.offset
}

func (c *ndrContext) PtrCount() uint32 {
	return c.ptrCount
}

func (c *ndrContext) bigEndian() bool {
	return c.flags.IsBigEndian()
}

func (c *ndrContext) order() binary.ByteOrder {
	if c.flags.IsBigEndian() {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

func (c *ndrContext) ndr64() bool {
	return c.flags&ndrinterfaces.FlagNDR64 != 0
}

// alignSize resolves the pseudo alignments 3 and 5, which are 2 and 4 bytes
// respectively in NDR and 4 and 8 bytes in NDR64
func (c *ndrContext) alignSize(n int) uint32 {
	switch n {
	case 3:
		if c.ndr64() {
			return 4
		}
		return 2
	case 5:
		if c.ndr64() {
			return 8
		}
		return 4
	default:
		return uint32(n)
	}
}

// flagAlignment returns the alignment selected by the Align flags (or 1)
func (c *ndrContext) flagAlignment() uint32 {
	switch {
	case c.flags&ndrinterfaces.FlagNoAlign != 0:
		return 1
	case c.flags&ndrinterfaces.FlagAlign2 != 0:
		return 2
	case c.flags&ndrinterfaces.FlagAlign4 != 0:
		return 4
	case c.flags&ndrinterfaces.FlagAlign8 != 0:
		return 8
	default:
		return 1
	}
}

func (c *ndrContext) CheckFlags(flags ndrinterfaces.ScopeFlags) error {
	if flags&^ndrinterfaces.ScalarsAndBuffers != 0 {
		return c.error(errors.ErrFlags, "Invalid ndr_flags 0x%x", uint32(flags))
	}
	return nil
}

// isFnFlags reports whether flags select function arguments rather than
// parts of a type
func isFnFlags(flags ndrinterfaces.ScopeFlags) bool {
	return flags&ndrinterfaces.Both != 0
}

func (c *ndrContext) CheckFnFlags(flags ndrinterfaces.ScopeFlags) error {
	if flags&^(ndrinterfaces.Both|ndrinterfaces.SetValues) != 0 ||
		flags&ndrinterfaces.Both == 0 {
		return c.error(errors.ErrFlags, "Invalid fn flags 0x%x", uint32(flags))
	}
	return nil
}

func (c *ndrContext) RecursionCheck(limit uint32) error {
	ceiling := limit
	if c.globalMaxRecursion != 0 && c.globalMaxRecursion < ceiling {
		ceiling = c.globalMaxRecursion
	}

	c.depth++
	if c.depth > ceiling {
		return c.error(errors.ErrMaxRecursionExceeded,
			"Depth of recursion exceeds (%d)", ceiling)
	}
	return nil
}

func (c *ndrContext) RecursionUnwind() error {
	if c.depth == 0 {
		return c.error(errors.ErrUnderflow, "Recursion depth underflow")
	}
	c.depth--
	return nil
}

func (c *ndrContext) SetGlobalMaxRecursion(n uint32) {
	c.globalMaxRecursion = n
}

func (c *ndrContext) SetSwitchValue(key interface{}, v uint32) error {
	if err := c.switchList.Store(key, v); err != nil {
		return c.tokenError("switch_list", err)
	}
	return nil
}

func (c *ndrContext) StealSwitchValue(key interface{}) (uint32, error) {
	v, err := c.switchList.Retrieve(key)
	if err != nil {
		return 0, c.tokenError("switch_list", err)
	}
	return v, nil
}

func (c *ndrContext) SetupRelativeBase1(key interface{}, offset uint32) error {
	if err := c.relativeBaseList.Store(key, offset); err != nil {
		return c.tokenError("relative_base_list", err)
	}
	c.relativeBase = offset
	return nil
}

func (c *ndrContext) SetupRelativeBase2(key interface{}) error {
	v, err := c.relativeBaseList.Retrieve(key)
	if err != nil {
		return c.tokenError("relative_base_list", err)
	}
	c.relativeBase = v
	return nil
}

func (c *ndrContext) RelativeBase() uint32 {
	return c.relativeBase
}

func (c *ndrContext) RestoreRelativeBase(offset uint32) {
	c.relativeBase = offset
}

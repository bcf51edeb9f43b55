// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

package ndr

import (
	"fmt"

	"github.com/google/uuid"
)

// SyntaxID identifies an interface or transfer syntax: a GUID and a version
type SyntaxID struct {
	UUID      uuid.UUID
	IfVersion uint32
}

func (s SyntaxID) String() string {
	return fmt.Sprintf("%s/0x%08x", s.UUID, s.IfVersion)
}

var (
	// NDRSyntax is the NDR 2.0 transfer syntax
	NDRSyntax = SyntaxID{
		UUID:      uuid.MustParse("8a885d04-1ceb-11c9-9fe8-08002b104860"),
		IfVersion: 2,
	}

	// NDR64Syntax is the NDR64 transfer syntax
	NDR64Syntax = SyntaxID{
		UUID:      uuid.MustParse("71710533-beba-4937-8319-b5dbef9ccc36"),
		IfVersion: 1,
	}
)

// Flags returns the wire flags selected by a transfer syntax, and whether
// the syntax is supported
func (s SyntaxID) Flags() (Flags, bool) {
	switch s {
	case NDRSyntax:
		return 0, true
	case NDR64Syntax:
		return FlagNDR64, true
	default:
		return 0, false
	}
}

// PolicyHandle is an RPC context handle
type PolicyHandle struct {
	HandleType uint32
	UUID       uuid.UUID
}

// IsZero reports whether the handle is the null handle
func (h *PolicyHandle) IsZero() bool {
	return h.HandleType == 0 && h.UUID == uuid.Nil
}

func (h *PolicyHandle) MarshalNDR(e Encoder, flags ScopeFlags) error {
	if err := e.CheckFlags(flags); err != nil {
		return err
	}
	if flags&Scalars == 0 {
		return nil
	}

	if err := e.Align(4); err != nil {
		return err
	}
	if err := e.EncodeUint32(h.HandleType); err != nil {
		return err
	}
	if err := e.EncodeGUID(h.UUID); err != nil {
		return err
	}
	return e.TrailerAlign(4)
}

func (h *PolicyHandle) UnmarshalNDR(d Decoder, flags ScopeFlags) (err error) {
	if err := d.CheckFlags(flags); err != nil {
		return err
	}
	if flags&Scalars == 0 {
		return nil
	}

	if err = d.Align(4); err != nil {
		return
	}
	if h.HandleType, err = d.DecodeUint32(); err != nil {
		return
	}
	if h.UUID, err = d.DecodeGUID(); err != nil {
		return
	}
	return d.TrailerAlign(4)
}

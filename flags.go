// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

package ndr

import (
	ndrinterfaces "go.e43.eu/ndr/interfaces"
	"go.e43.eu/ndr/internal/tags"
)

// Flags are the wire flags of an encoder or decoder
type Flags = ndrinterfaces.Flags

// ScopeFlags select the parts of a type (scalars and/or buffers) or function
// (in and/or out arguments) covered by a marshalling call
type ScopeFlags = ndrinterfaces.ScopeFlags

type CompressionAlg = ndrinterfaces.CompressionAlg

type Charset = ndrinterfaces.Charset

const (
	FlagBigEndian               = ndrinterfaces.FlagBigEndian
	FlagNoAlign                 = ndrinterfaces.FlagNoAlign
	FlagStrASCII                = ndrinterfaces.FlagStrASCII
	FlagStrLen4                 = ndrinterfaces.FlagStrLen4
	FlagStrSize4                = ndrinterfaces.FlagStrSize4
	FlagStrNoTerm               = ndrinterfaces.FlagStrNoTerm
	FlagStrNullTerm             = ndrinterfaces.FlagStrNullTerm
	FlagStrSize2                = ndrinterfaces.FlagStrSize2
	FlagStrByteSize             = ndrinterfaces.FlagStrByteSize
	FlagStrNoEmbeddedNUL        = ndrinterfaces.FlagStrNoEmbeddedNUL
	FlagStrConformant           = ndrinterfaces.FlagStrConformant
	FlagStrCharLen              = ndrinterfaces.FlagStrCharLen
	FlagStrUTF8                 = ndrinterfaces.FlagStrUTF8
	FlagStrRaw8                 = ndrinterfaces.FlagStrRaw8
	FlagIsSecret                = ndrinterfaces.FlagIsSecret
	FlagNoCompression           = ndrinterfaces.FlagNoCompression
	FlagIncompleteBuffer        = ndrinterfaces.FlagIncompleteBuffer
	FlagSubcontextNoUnreadBytes = ndrinterfaces.FlagSubcontextNoUnreadBytes
	FlagNoRelativeReverse       = ndrinterfaces.FlagNoRelativeReverse
	FlagRelativeReverse         = ndrinterfaces.FlagRelativeReverse
	FlagRefAlloc                = ndrinterfaces.FlagRefAlloc
	FlagRemaining               = ndrinterfaces.FlagRemaining
	FlagAlign2                  = ndrinterfaces.FlagAlign2
	FlagAlign4                  = ndrinterfaces.FlagAlign4
	FlagAlign8                  = ndrinterfaces.FlagAlign8
	FlagLittleEndian            = ndrinterfaces.FlagLittleEndian
	FlagPadCheck                = ndrinterfaces.FlagPadCheck
	FlagNDR64                   = ndrinterfaces.FlagNDR64
	FlagNoNDRSize               = ndrinterfaces.FlagNoNDRSize
	FlagRelativeNoBackward      = ndrinterfaces.FlagRelativeNoBackward
)

const (
	In                = ndrinterfaces.In
	Out               = ndrinterfaces.Out
	Both              = ndrinterfaces.Both
	Scalars           = ndrinterfaces.Scalars
	Buffers           = ndrinterfaces.Buffers
	ScalarsAndBuffers = ndrinterfaces.ScalarsAndBuffers
)

const (
	CompressionNone          = ndrinterfaces.CompressionNone
	CompressionMSZip         = ndrinterfaces.CompressionMSZip
	CompressionMSZipCAB      = ndrinterfaces.CompressionMSZipCAB
	CompressionXpress        = ndrinterfaces.CompressionXpress
	CompressionXpressHuffRaw = ndrinterfaces.CompressionXpressHuffRaw
)

const (
	CharsetUTF16   = ndrinterfaces.CharsetUTF16
	CharsetUTF16BE = ndrinterfaces.CharsetUTF16BE
	CharsetDOS     = ndrinterfaces.CharsetDOS
	CharsetUTF8    = ndrinterfaces.CharsetUTF8
)

// ParseFlags parses a `|` separated list of flag names (as accepted by the
// `flags:` tag) or numbers
func ParseFlags(s string) (Flags, error) {
	return tags.ParseFlags(s)
}

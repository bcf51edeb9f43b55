// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

package ndrinterfaces

// Flags is the set of wire format flags carried by an encoder or decoder,
// selecting byte order, alignment and string framing among other things.
// They are distinct from (and wider than) ScopeFlags.
type Flags uint64

const (
	FlagBigEndian Flags = 1 << iota
	FlagNoAlign
	FlagStrASCII
	FlagStrLen4
	FlagStrSize4
	FlagStrNoTerm
	FlagStrNullTerm
	FlagStrSize2
	FlagStrByteSize
	FlagStrNoEmbeddedNUL
	FlagStrConformant
	FlagStrCharLen
	FlagStrUTF8
	FlagStrRaw8
	// Marks a value as secret; it must never appear in logs
	FlagIsSecret
	FlagNoCompression
	// Report how many bytes are missing instead of plainly failing
	FlagIncompleteBuffer
	// Fail a subcontext which was not consumed completely
	FlagSubcontextNoUnreadBytes
	FlagNoRelativeReverse
	FlagRelativeReverse
	FlagRefAlloc
	FlagRemaining
	FlagAlign2
	FlagAlign4
	FlagAlign8
	FlagPrintArrayHex
	FlagPrintSetValues
	FlagLittleEndian
	// Fail when alignment padding contains non-zero bytes
	FlagPadCheck
	FlagNDR64
	FlagObjectPresent
	FlagNoNDRSize
	// Reject relative pointers whose target precedes one already resolved
	FlagRelativeNoBackward
)

const (
	StringFlags = FlagStrASCII |
		FlagStrLen4 |
		FlagStrSize4 |
		FlagStrNoTerm |
		FlagStrNullTerm |
		FlagStrSize2 |
		FlagStrByteSize |
		FlagStrNoEmbeddedNUL |
		FlagStrConformant |
		FlagStrCharLen |
		FlagStrUTF8 |
		FlagStrRaw8

	EncodingFlags = FlagStrASCII | FlagStrUTF8 | FlagStrRaw8

	AlignFlags = FlagNoAlign | FlagRemaining | FlagAlign2 | FlagAlign4 | FlagAlign8
)

// IsBigEndian reports whether these flags select big endian byte order
func (f Flags) IsBigEndian() bool {
	return f&(FlagBigEndian|FlagLittleEndian) == FlagBigEndian
}

// Set merges nf into f. Mutually exclusive groups (byte order, alignment
// mode, string framing, relative pointer ordering) are replaced rather than
// combined.
func (f Flags) Set(nf Flags) Flags {
	if nf&FlagLittleEndian != 0 {
		f &^= FlagBigEndian | FlagNDR64
	}
	if nf&FlagBigEndian != 0 {
		f &^= FlagLittleEndian
	}
	if nf&FlagRemaining != 0 {
		f &^= AlignFlags
	}
	if nf&AlignFlags != 0 {
		f &^= AlignFlags
	}
	if nf&FlagNoRelativeReverse != 0 {
		f &^= FlagRelativeReverse
	}
	if nf&StringFlags != 0 {
		f &^= StringFlags
	}
	return f | nf
}

// ScopeFlags selects which parts of a type a marshalling call covers:
// the scalar and/or buffer (deferred) parts of a type, or the in and/or out
// parameters of a function.
type ScopeFlags uint32

const (
	In        ScopeFlags = 0x10
	Out       ScopeFlags = 0x20
	Both      ScopeFlags = In | Out
	SetValues ScopeFlags = 0x40
	Scalars   ScopeFlags = 0x100
	Buffers   ScopeFlags = 0x200

	ScalarsAndBuffers = Scalars | Buffers
)

// CompressionAlg identifies the algorithm of a compressed subcontext
type CompressionAlg uint8

const (
	CompressionNone              CompressionAlg = 0
	CompressionXpressLZNT1       CompressionAlg = 102
	CompressionXpressRaw         CompressionAlg = 103
	CompressionXpressHuffRaw     CompressionAlg = 104
	CompressionMSZipCAB          CompressionAlg = 201
	CompressionMSZip             CompressionAlg = 202
	CompressionXpress            CompressionAlg = 203
	CompressionWin2k3LZ77Direct2 CompressionAlg = 204
	CompressionInvalid           CompressionAlg = 255
)

func (a CompressionAlg) String() string {
	switch a {
	case CompressionNone:
		return "NONE"
	case CompressionXpressLZNT1:
		return "XPRESS_LZNT1"
	case CompressionXpressRaw:
		return "XPRESS_RAW"
	case CompressionXpressHuffRaw:
		return "XPRESS_HUFF_RAW"
	case CompressionMSZipCAB:
		return "MSZIP_CAB"
	case CompressionMSZip:
		return "MSZIP"
	case CompressionXpress:
		return "XPRESS"
	case CompressionWin2k3LZ77Direct2:
		return "WIN2K3_LZ77_DIRECT2"
	default:
		return "INVALID"
	}
}

// Charset selects the character set of fixed size character buffers
type Charset int

const (
	CharsetUTF16 Charset = iota
	CharsetUTF16BE
	CharsetDOS
	CharsetUTF8
)

// Header sizes with special meaning to subcontexts
const (
	// MS-RPCE type serialisation version 1 header
	SubcontextTypeSerialization uint32 = 0xFFFFFC01
	// A shallow subcontext sharing its parent's data and offset
	SubcontextShallow uint32 = 0xFFFFFFFF
)

// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

package coder

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"

	ndrinterfaces "go.e43.eu/ndr/interfaces"
)

// charset describes how strings are converted to and from the wire
type charset struct {
	name    string
	enc     encoding.Encoding // nil for raw and UTF-8 data
	byteMul uint32
	raw     bool
}

var (
	charsetUTF16 = charset{
		name:    "UTF-16LE",
		enc:     unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM),
		byteMul: 2,
	}
	charsetUTF16BE = charset{
		name:    "UTF-16BE",
		enc:     unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM),
		byteMul: 2,
	}
	charsetDOS = charset{
		name:    "CP850",
		enc:     charmap.CodePage850,
		byteMul: 1,
	}
	charsetUTF8 = charset{
		name:    "UTF-8",
		byteMul: 1,
	}
	charsetRaw8 = charset{
		name:    "RAW8",
		byteMul: 1,
		raw:     true,
	}
)

// stringCharset selects the charset of a string from the context flags
func stringCharset(flags ndrinterfaces.Flags) charset {
	switch {
	case flags&ndrinterfaces.FlagStrRaw8 != 0:
		return charsetRaw8
	case flags&ndrinterfaces.FlagStrUTF8 != 0:
		return charsetUTF8
	case flags&ndrinterfaces.FlagStrASCII != 0:
		return charsetDOS
	case flags.IsBigEndian():
		return charsetUTF16BE
	default:
		return charsetUTF16
	}
}

// explicitCharset maps a Charset, as passed to the fixed length charset
// operations, taking the context byte order into account
func explicitCharset(cs ndrinterfaces.Charset, flags ndrinterfaces.Flags) (charset, error) {
	switch cs {
	case ndrinterfaces.CharsetUTF16:
		if flags.IsBigEndian() {
			return charsetUTF16BE, nil
		}
		return charsetUTF16, nil
	case ndrinterfaces.CharsetUTF16BE:
		return charsetUTF16BE, nil
	case ndrinterfaces.CharsetDOS:
		return charsetDOS, nil
	case ndrinterfaces.CharsetUTF8:
		return charsetUTF8, nil
	default:
		return charset{}, fmt.Errorf("unknown charset %d", cs)
	}
}

// toWire converts s (which must be valid UTF-8) to the wire charset
func (cs charset) toWire(s string) ([]byte, error) {
	switch {
	case cs.raw:
		return []byte(s), nil
	case !utf8.ValidString(s):
		return nil, fmt.Errorf("invalid UTF-8 in string")
	case cs.enc == nil:
		return []byte(s), nil
	}

	b, err := cs.enc.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("converting to %s: %w", cs.name, err)
	}
	return b, nil
}

// fromWire converts b from the wire charset
func (cs charset) fromWire(b []byte) (string, error) {
	switch {
	case cs.raw:
		return string(b), nil
	case cs.enc == nil:
		if !utf8.Valid(b) {
			return "", fmt.Errorf("invalid UTF-8 in string")
		}
		return string(b), nil
	case uint32(len(b))%cs.byteMul != 0:
		return "", fmt.Errorf("%d bytes is not a whole number of %s characters", len(b), cs.name)
	}

	s, err := cs.enc.NewDecoder().Bytes(b)
	if err != nil {
		return "", fmt.Errorf("converting from %s: %w", cs.name, err)
	}
	return string(s), nil
}

// trimNUL truncates s at its first NUL, as a C string would be. If
// noEmbedded is set then a NUL followed by anything other than more NULs
// is an error
func trimNUL(s string, noEmbedded bool) (string, error) {
	i := strings.IndexByte(s, 0)
	if i < 0 {
		return s, nil
	}
	if noEmbedded && strings.Trim(s[i:], "\x00") != "" {
		return "", fmt.Errorf("string contains embedded NUL at %d", i)
	}
	return s[:i], nil
}

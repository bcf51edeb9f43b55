// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

package coder

import (
	"bytes"
	"math"
	"strings"

	"go.uber.org/zap"

	ndrinterfaces "go.e43.eu/ndr/interfaces"
	"go.e43.eu/ndr/internal/bounds"
	"go.e43.eu/ndr/internal/errors"
)

// The string flags which select how a string is framed
const stringFraming = ndrinterfaces.FlagStrLen4 |
	ndrinterfaces.FlagStrSize4 |
	ndrinterfaces.FlagStrSize2 |
	ndrinterfaces.FlagStrNullTerm

func (e *encoder) EncodeString(flags ndrinterfaces.ScopeFlags, s string) error {
	if err := e.CheckFlags(flags); err != nil {
		return err
	}
	if flags&ndrinterfaces.Scalars == 0 {
		return nil
	}

	f := e.flags
	cs := stringCharset(f)
	term := f&ndrinterfaces.FlagStrNoTerm == 0

	if f&ndrinterfaces.FlagStrNoEmbeddedNUL != 0 && strings.IndexByte(s, 0) >= 0 {
		return e.error(errors.ErrCharCnv, "String with embedded NUL")
	}

	src := s
	if term {
		src += "\x00"
	}

	var dest []byte
	if len(src) > 0 {
		var err error
		if dest, err = cs.toWire(src); err != nil {
			return e.error(errors.ErrCharCnv, "Bad character conversion: %v", err)
		}
	}

	if uint64(len(dest)) > math.MaxUint32 {
		return e.error(errors.ErrString, "String of %d bytes too long", len(dest))
	}
	dLen := uint32(len(dest))

	var cLen uint32
	switch {
	case f&ndrinterfaces.FlagStrByteSize != 0:
		cLen = dLen
	case f&ndrinterfaces.FlagStrCharLen != 0:
		cLen = dLen / cs.byteMul
		if term && cLen > 0 {
			cLen--
		}
	default:
		cLen = dLen / cs.byteMul
	}

	switch f & stringFraming {
	case ndrinterfaces.FlagStrLen4 | ndrinterfaces.FlagStrSize4:
		if err := e.EncodeUint32(cLen); err != nil {
			return err
		}
		if err := e.EncodeUint32(0); err != nil {
			return err
		}
		if err := e.EncodeUint32(cLen); err != nil {
			return err
		}

	case ndrinterfaces.FlagStrLen4:
		if err := e.EncodeUint32(0); err != nil {
			return err
		}
		if err := e.EncodeUint32(cLen); err != nil {
			return err
		}

	case ndrinterfaces.FlagStrSize4:
		if err := e.EncodeUint32(cLen); err != nil {
			return err
		}

	case ndrinterfaces.FlagStrSize2:
		if cLen > math.MaxUint16 {
			return e.error(errors.ErrString, "Bad string length %d for STR_SIZE2", cLen)
		}
		if err := e.EncodeUint16(uint16(cLen)); err != nil {
			return err
		}

	case ndrinterfaces.FlagStrNullTerm:
		// The terminator is the framing

	default:
		if f&stringFraming != 0 || f&ndrinterfaces.FlagRemaining == 0 {
			return e.error(errors.ErrString, "Bad string flags 0x%x", uint64(f&ndrinterfaces.StringFlags))
		}
	}

	return e.EncodeBytes(dest)
}

// nulTermLength returns the length in bytes of the string at the start of b,
// including its terminator if present
func nulTermLength(b []byte, byteMul uint32) uint32 {
	if byteMul == 1 {
		if i := bytes.IndexByte(b, 0); i >= 0 {
			return uint32(i + 1)
		}
		return uint32(len(b))
	}

	n := uint32(len(b)) &^ 1
	for i := uint32(0); i+1 < n; i += 2 {
		if b[i] == 0 && b[i+1] == 0 {
			return i + 2
		}
	}
	return n
}

func (d *decoder) DecodeString(flags ndrinterfaces.ScopeFlags) (string, error) {
	if err := d.CheckFlags(flags); err != nil {
		return "", err
	}
	if flags&ndrinterfaces.Scalars == 0 {
		return "", nil
	}

	save := d.offset
	s, err := d.decodeString()
	if err != nil {
		d.offset = save
	}
	return s, err
}

func (d *decoder) decodeString() (string, error) {
	f := d.flags
	cs := stringCharset(f)
	term := f&ndrinterfaces.FlagStrNoTerm == 0

	lenMul := cs.byteMul
	if f&ndrinterfaces.FlagStrByteSize != 0 {
		lenMul = 1
	}

	var (
		n       uint32
		counted = true
		err     error
	)

	switch f & stringFraming {
	case ndrinterfaces.FlagStrLen4 | ndrinterfaces.FlagStrSize4:
		var len1, ofs, len2 uint32
		if len1, err = d.DecodeUint32(); err != nil {
			return "", err
		}
		if ofs, err = d.DecodeUint32(); err != nil {
			return "", err
		}
		if ofs != 0 {
			return "", d.error(errors.ErrString, "non-zero array offset with string %d", ofs)
		}
		if len2, err = d.DecodeUint32(); err != nil {
			return "", err
		}
		if len2 > len1 {
			return "", d.error(errors.ErrString,
				"Bad string lengths len1=%d ofs=%d len2=%d", len1, ofs, len2)
		} else if len1 != len2 {
			d.log.Debug("string size and length differ",
				zap.Uint32("size", len1), zap.Uint32("length", len2))
		}
		n = len2

	case ndrinterfaces.FlagStrSize4:
		if n, err = d.DecodeUint32(); err != nil {
			return "", err
		}

	case ndrinterfaces.FlagStrLen4:
		var ofs uint32
		if ofs, err = d.DecodeUint32(); err != nil {
			return "", err
		}
		if ofs != 0 {
			return "", d.error(errors.ErrString, "non-zero array offset with string %d", ofs)
		}
		if n, err = d.DecodeUint32(); err != nil {
			return "", err
		}

	case ndrinterfaces.FlagStrSize2:
		var n16 uint16
		if n16, err = d.DecodeUint16(); err != nil {
			return "", err
		}
		n = uint32(n16)

	case ndrinterfaces.FlagStrNullTerm:
		n = nulTermLength(d.data[d.offset:], cs.byteMul)
		lenMul, counted = 1, false

	default:
		if f&stringFraming != 0 || f&ndrinterfaces.FlagRemaining == 0 {
			return "", d.error(errors.ErrString, "Bad string flags 0x%x (missing NDR_REMAINING)",
				uint64(f&ndrinterfaces.StringFlags))
		}
		n = d.Remaining()
		lenMul, counted = 1, false
	}

	// A character count excludes the terminator
	if counted && term && f&ndrinterfaces.FlagStrCharLen != 0 {
		if n, err = d.addChecked(n, 1); err != nil {
			return "", err
		}
	}

	nBytes, ok := bounds.Mul(n, lenMul)
	if !ok {
		return "", d.error(errors.ErrString, "String length %d*%d overflows", n, lenMul)
	}

	b, err := d.take(1, nBytes)
	if err != nil {
		return "", err
	}

	s, err := cs.fromWire(b)
	if err != nil {
		return "", d.error(errors.ErrCharCnv, "Bad character conversion: %v", err)
	}

	switch {
	case !term && strings.HasSuffix(s, "\x00"):
		d.log.Debug("short string sent with NUL termination despite NOTERM")
	case term && !strings.HasSuffix(s, "\x00"):
		d.log.Debug("long string sent without expected NUL termination")
	}

	s, err = trimNUL(s, f&ndrinterfaces.FlagStrNoEmbeddedNUL != 0)
	if err != nil {
		return "", d.error(errors.ErrCharCnv, "%v", err)
	}
	return s, nil
}

func (d *decoder) addChecked(a, b uint32) (uint32, error) {
	s, ok := bounds.Add(a, b)
	if !ok {
		return 0, d.error(errors.ErrOffset, "Overflow adding %d to %d", b, a)
	}
	return s, nil
}

func (e *encoder) EncodeCharset(
	flags ndrinterfaces.ScopeFlags,
	s string,
	length uint32,
	byteMul int,
	charset ndrinterfaces.Charset,
) error {
	if err := e.CheckFlags(flags); err != nil {
		return err
	}
	if flags&ndrinterfaces.Scalars == 0 {
		return nil
	}

	cs, err := explicitCharset(charset, e.flags)
	if err != nil {
		return e.error(errors.ErrCharCnv, "%v", err)
	}

	required, ok := bounds.Mul(length, uint32(byteMul))
	if byteMul < 0 || !ok {
		return e.error(errors.ErrLength, "Charset length %d*%d overflows", length, byteMul)
	}

	dest, err := cs.toWire(s)
	if err != nil {
		return e.error(errors.ErrCharCnv, "Bad character conversion: %v", err)
	}
	if uint64(len(dest)) > uint64(required) {
		return e.error(errors.ErrCharCnv,
			"Bad character conversion: %d bytes do not fit in %d", len(dest), required)
	}

	b, err := e.reserve(1, required)
	if err != nil {
		return err
	}
	n := copy(b, dest)
	for i := n; i < len(b); i++ {
		b[i] = 0
	}
	return nil
}

func (d *decoder) DecodeCharset(
	flags ndrinterfaces.ScopeFlags,
	length uint32,
	byteMul int,
	charset ndrinterfaces.Charset,
) (string, error) {
	if err := d.CheckFlags(flags); err != nil {
		return "", err
	}
	if flags&ndrinterfaces.Scalars == 0 || length == 0 {
		return "", nil
	}

	cs, err := explicitCharset(charset, d.flags)
	if err != nil {
		return "", d.error(errors.ErrCharCnv, "%v", err)
	}

	required, ok := bounds.Mul(length, uint32(byteMul))
	if byteMul < 0 || !ok {
		return "", d.error(errors.ErrLength, "Charset length %d*%d overflows", length, byteMul)
	}

	if err := d.need(d.offset, required); err != nil {
		return "", err
	}

	s, err := cs.fromWire(d.data[d.offset : d.offset+required])
	if err != nil {
		return "", d.error(errors.ErrCharCnv, "Bad character conversion: %v", err)
	}
	s, _ = trimNUL(s, false)

	d.offset += required
	return s, nil
}

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

// Type serialisation version 1 common header + private header
const (
	typeSerializationVersion  = 1
	typeSerializationDrepLE   = 0x10
	typeSerializationDrepBE   = 0x00
	typeSerializationHdrLen   = 8
	typeSerializationFiller   = 0xCCCCCCCC
	typeSerializationHdrBytes = 16
)

// subcontextFlags derives the flags of a child context. Subcontexts are
// always plain NDR, whatever their parent
func subcontextFlags(f ndrinterfaces.Flags) ndrinterfaces.Flags {
	return f &^ ndrinterfaces.FlagNDR64
}

func (d *decoder) SubcontextStart(headerSize uint32, sizeIs int64) (ndrinterfaces.Decoder, error) {
	if sizeIs > math.MaxUint32 {
		return nil, d.error(errors.ErrSubcontext, "Bad subcontext size_is %d", sizeIs)
	}

	flags := subcontextFlags(d.flags)
	var content uint32

	switch headerSize {
	case 0:
		if sizeIs >= 0 {
			content = uint32(sizeIs)
		} else {
			content = d.Remaining()
		}

	case 2:
		n, err := d.DecodeUint16()
		if err != nil {
			return nil, err
		}
		content = uint32(n)
		if sizeIs >= 0 && uint32(sizeIs) != content {
			return nil, d.error(errors.ErrSubcontext,
				"Bad subcontext (PULL) size_is(%d) (0x%04x) mismatch content_size %d (0x%04x)",
				sizeIs, sizeIs, content, content)
		}

	case 4:
		n, err := d.DecodeUint3264()
		if err != nil {
			return nil, err
		}
		content = n
		if sizeIs >= 0 && uint32(sizeIs) != content {
			return nil, d.error(errors.ErrSubcontext,
				"Bad subcontext (PULL) size_is(%d) (0x%08x) mismatch content_size %d (0x%08x)",
				sizeIs, sizeIs, content, content)
		}

	case ndrinterfaces.SubcontextTypeSerialization:
		var err error
		if content, flags, err = d.decodeTypeSerializationHeader(flags); err != nil {
			return nil, err
		}
		if sizeIs >= 0 && uint32(sizeIs) != content {
			return nil, d.error(errors.ErrSubcontext,
				"Bad subcontext (PULL) size_is(%d) mismatch content_size %d", sizeIs, content)
		}

	case ndrinterfaces.SubcontextShallow:
		// Shares the data (and position) of the parent. It is bounded by
		// size_is when one is supplied
		end := d.dataSize
		if sizeIs >= 0 {
			if err := d.need(d.offset, uint32(sizeIs)); err != nil {
				return nil, err
			}
			end = d.offset + uint32(sizeIs)
		}
		sub := d.newChild(d.data[:end], flags)
		sub.offset = d.offset
		return sub, nil

	default:
		return nil, d.error(errors.ErrSubcontext,
			"Bad subcontext (PULL) header_size %d", headerSize)
	}

	if err := d.need(d.offset, content); err != nil {
		return nil, err
	}

	sub := d.newChild(d.data[d.offset:d.offset+content], flags)
	return sub, nil
}

func (d *decoder) decodeTypeSerializationHeader(flags ndrinterfaces.Flags) (uint32, ndrinterfaces.Flags, error) {
	version, err := d.DecodeUint8()
	if err != nil {
		return 0, flags, err
	}
	if version != typeSerializationVersion {
		return 0, flags, d.error(errors.ErrSubcontext,
			"Bad subcontext (PULL) Common Type Header version %d != 1", version)
	}

	drep, err := d.DecodeUint8()
	if err != nil {
		return 0, flags, err
	}
	switch drep {
	case typeSerializationDrepLE:
		flags = flags.Set(ndrinterfaces.FlagLittleEndian)
	case typeSerializationDrepBE:
		flags = flags.Set(ndrinterfaces.FlagBigEndian)
	default:
		return 0, flags, d.error(errors.ErrSubcontext,
			"Bad subcontext (PULL) Common Type Header invalid drep 0x%02x", drep)
	}

	hdrLen, err := d.DecodeUint16()
	if err != nil {
		return 0, flags, err
	}
	if hdrLen != typeSerializationHdrLen {
		return 0, flags, d.error(errors.ErrSubcontext,
			"Bad subcontext (PULL) Common Type Header length %d != 8", hdrLen)
	}

	// Filler; its value is not checked
	if _, err := d.DecodeUint32(); err != nil {
		return 0, flags, err
	}

	content, err := d.DecodeUint32()
	if err != nil {
		return 0, flags, err
	}
	if content%8 != 0 {
		return 0, flags, d.error(errors.ErrSubcontext,
			"Bad subcontext (PULL) size_is(%d) not padded to 8", content)
	}

	// Reserved
	if _, err := d.DecodeUint32(); err != nil {
		return 0, flags, err
	}
	return content, flags, nil
}

func (d *decoder) SubcontextEnd(sub ndrinterfaces.Decoder, headerSize uint32, sizeIs int64) error {
	s, ok := sub.(*decoder)
	if !ok {
		return d.error(errors.ErrSubcontext, "subcontext was not created by this decoder")
	}
	defer s.release()

	var advance uint32
	switch {
	case headerSize == ndrinterfaces.SubcontextShallow:
		if s.offset < d.offset {
			return d.error(errors.ErrSubcontext,
				"Bad subcontext (PULL) sub offset %d < parent offset %d", s.offset, d.offset)
		}
		advance = s.offset - d.offset
	case sizeIs >= 0:
		advance = uint32(sizeIs)
	case headerSize > 0:
		advance = s.dataSize
	default:
		advance = s.offset
	}

	if s.flags&ndrinterfaces.FlagSubcontextNoUnreadBytes != 0 {
		highest := bounds.Max(s.offset, s.relativeHighest)
		limit := s.dataSize
		if highest < limit {
			d.log.Debug("unread subcontext bytes",
				zap.Uint32("highest", highest), zap.Uint32("size", limit))
			return d.error(errors.ErrUnreadBytes,
				"not all subcontext bytes consumed: highest offset %d, size %d", highest, limit)
		}
	}

	return d.Advance(advance)
}

func (e *encoder) SubcontextStart(headerSize uint32, sizeIs int64) (ndrinterfaces.Encoder, error) {
	switch headerSize {
	case 0, 2, 4, ndrinterfaces.SubcontextTypeSerialization, ndrinterfaces.SubcontextShallow:
	default:
		return nil, e.error(errors.ErrSubcontext,
			"Bad subcontext (PUSH) header_size %d", headerSize)
	}
	if sizeIs > math.MaxUint32 {
		return nil, e.error(errors.ErrSubcontext, "Bad subcontext size_is %d", sizeIs)
	}

	sub := e.newChild(subcontextFlags(e.flags))
	if sizeIs > 0 {
		if err := sub.expandTo(uint32(sizeIs)); err != nil {
			sub.release()
			return nil, err
		}
		clear(sub.data)
		sub.relativeEndOffset = uint32(sizeIs)
	}
	return sub, nil
}

func (e *encoder) SubcontextEnd(sub ndrinterfaces.Encoder, headerSize uint32, sizeIs int64) error {
	s, ok := sub.(*encoder)
	if !ok {
		return e.error(errors.ErrSubcontext, "subcontext was not created by this encoder")
	}
	defer s.release()

	if sizeIs >= 0 {
		size := uint32(sizeIs)
		if s.offset > size {
			return e.error(errors.ErrSubcontext,
				"Bad subcontext (PUSH) content_size %d is larger than size_is(%d)", s.offset, size)
		}
		// The region was zeroed by SubcontextStart, and reverse relative
		// targets may already occupy its end
		if err := s.expandTo(size); err != nil {
			return err
		}
		s.offset = size
	}

	switch headerSize {
	case 0, ndrinterfaces.SubcontextShallow:

	case 2:
		if s.offset > math.MaxUint16 {
			return e.error(errors.ErrSubcontext,
				"Bad subcontext (PUSH) content_size %d does not fit in 16 bits", s.offset)
		}
		if err := e.EncodeUint16(uint16(s.offset)); err != nil {
			return err
		}

	case 4:
		if err := e.EncodeUint3264(s.offset); err != nil {
			return err
		}

	case ndrinterfaces.SubcontextTypeSerialization:
		if err := s.doAlign(8); err != nil {
			return err
		}
		if err := e.encodeTypeSerializationHeader(s.offset, s.bigEndian()); err != nil {
			return err
		}

	default:
		return e.error(errors.ErrSubcontext,
			"Bad subcontext (PUSH) header_size %d", headerSize)
	}

	return e.EncodeBytes(s.Bytes())
}

func (e *encoder) encodeTypeSerializationHeader(content uint32, bigEndian bool) error {
	drep := uint8(typeSerializationDrepLE)
	if bigEndian {
		drep = typeSerializationDrepBE
	}

	b, err := e.reserve(1, typeSerializationHdrBytes)
	if err != nil {
		return err
	}

	o := e.order()
	b[0] = typeSerializationVersion
	b[1] = drep
	o.PutUint16(b[2:4], typeSerializationHdrLen)
	o.PutUint32(b[4:8], typeSerializationFiller)
	o.PutUint32(b[8:12], content)
	o.PutUint32(b[12:16], 0)
	return nil
}

// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

package coder

import (
	"bytes"
	"io"
	"math"

	"github.com/klauspost/compress/flate"
	"go.uber.org/zap"

	ndrinterfaces "go.e43.eu/ndr/interfaces"
	"go.e43.eu/ndr/internal/bounds"
	"go.e43.eu/ndr/internal/errors"
)

const (
	mszipMaxChunk  = 0x8000
	xpressMaxChunk = 0x10000
)

// Every MSZIP chunk starts with this signature
var mszipSignature = []byte("CK")

// checkCompression validates alg, returning the compressor it requires (if any)
func (c *ndrContext) checkCompression(alg ndrinterfaces.CompressionAlg) (ndrinterfaces.Compressor, error) {
	switch alg {
	case ndrinterfaces.CompressionNone,
		ndrinterfaces.CompressionMSZip,
		ndrinterfaces.CompressionMSZipCAB:
		return nil, nil

	case ndrinterfaces.CompressionXpress,
		ndrinterfaces.CompressionXpressHuffRaw:
		comp, ok := c.cr.compressor(alg)
		if !ok {
			return nil, c.error(errors.ErrCompression,
				"No compressor registered for compression algorithm %s (%d)", alg, alg)
		}
		return comp, nil

	default:
		return nil, c.error(errors.ErrCompression,
			"Bad compression algorithm %s (%d)", alg, alg)
	}
}

// effectiveCompression maps alg to NONE when compression has been disabled
func (c *ndrContext) effectiveCompression(alg ndrinterfaces.CompressionAlg) ndrinterfaces.CompressionAlg {
	if c.flags&ndrinterfaces.FlagNoCompression != 0 {
		return ndrinterfaces.CompressionNone
	}
	return alg
}

func deflateChunk(plain, dict []byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(mszipSignature)

	w, err := flate.NewWriterDict(&buf, flate.DefaultCompression, dict)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(plain); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// inflateChunk decompresses a signed MSZIP chunk which must expand to exactly
// plainLen bytes
func inflateChunk(comp []byte, plainLen uint32, dict []byte) ([]byte, error) {
	if len(comp) < len(mszipSignature) || !bytes.HasPrefix(comp, mszipSignature) {
		return nil, errBadSignature
	}

	r := flate.NewReaderDict(bytes.NewReader(comp[len(mszipSignature):]), dict)
	defer r.Close()

	plain := make([]byte, plainLen)
	if _, err := io.ReadFull(r, plain); err != nil {
		return nil, err
	}

	var extra [1]byte
	switch n, err := r.Read(extra[:]); {
	case n != 0:
		return nil, errTrailingData
	case err != nil && err != io.EOF:
		return nil, err
	}
	return plain, nil
}

type compressionError string

func (e compressionError) Error() string {
	return string(e)
}

const (
	errBadSignature = compressionError("missing CK signature")
	errTrailingData = compressionError("chunk decompresses to more data than declared")
)

func (e *encoder) CompressionStart(alg ndrinterfaces.CompressionAlg) (ndrinterfaces.Encoder, error) {
	if _, err := e.checkCompression(e.effectiveCompression(alg)); err != nil {
		return nil, err
	}
	return e.newChild(e.flags), nil
}

func (e *encoder) CompressionEnd(uncompressed ndrinterfaces.Encoder, alg ndrinterfaces.CompressionAlg) error {
	u, ok := uncompressed.(*encoder)
	if !ok {
		return e.error(errors.ErrCompression, "compression context was not created by this encoder")
	}
	defer u.release()

	alg = e.effectiveCompression(alg)
	comp, err := e.checkCompression(alg)
	if err != nil {
		return err
	}

	plain := u.Bytes()
	e.log.Debug("compressing",
		zap.Stringer("alg", alg), zap.Int("plain_size", len(plain)))

	switch alg {
	case ndrinterfaces.CompressionNone:
		return e.EncodeBytes(plain)
	case ndrinterfaces.CompressionMSZip:
		return e.encodeMSZip(plain)
	case ndrinterfaces.CompressionMSZipCAB:
		return e.encodeMSZipCAB(plain)
	case ndrinterfaces.CompressionXpress:
		return e.encodeXpress(comp, plain)
	default:
		out, err := comp.Compress(plain)
		if err != nil {
			return e.error(errors.ErrCompression, "%s compression failed: %v", alg, err)
		}
		return e.EncodeBytes(out)
	}
}

func (e *encoder) encodeMSZip(plain []byte) error {
	var dict []byte
	for {
		n := bounds.Min(len(plain), mszipMaxChunk)
		chunk := plain[:n]

		out, err := deflateChunk(chunk, dict)
		if err != nil {
			return e.error(errors.ErrCompression, "MSZIP deflate failed: %v", err)
		}
		if err := e.EncodeUint32(uint32(n)); err != nil {
			return err
		}
		if err := e.EncodeUint32(uint32(len(out))); err != nil {
			return err
		}
		if err := e.EncodeBytes(out); err != nil {
			return err
		}

		dict, plain = chunk, plain[n:]
		if n < mszipMaxChunk {
			return nil
		}
	}
}

func (e *encoder) encodeMSZipCAB(plain []byte) error {
	for {
		n := bounds.Min(len(plain), mszipMaxChunk)
		chunk := plain[:n]

		out, err := deflateChunk(chunk, e.mszipDict)
		if err != nil {
			return e.error(errors.ErrCompression, "MSZIP deflate failed: %v", err)
		}
		if err := e.EncodeBytes(out); err != nil {
			return err
		}

		e.mszipDict = append(e.mszipDict[:0], chunk...)
		plain = plain[n:]
		if len(plain) == 0 {
			return nil
		}
	}
}

func (e *encoder) encodeXpress(comp ndrinterfaces.Compressor, plain []byte) error {
	for {
		n := bounds.Min(len(plain), xpressMaxChunk)

		out, err := comp.Compress(plain[:n])
		if err != nil {
			return e.error(errors.ErrCompression, "XPRESS compression failed: %v", err)
		}
		if uint64(len(out)) > math.MaxUint32 {
			return e.error(errors.ErrCompression, "XPRESS chunk of %d bytes too long", len(out))
		}
		if err := e.EncodeUint32(uint32(n)); err != nil {
			return err
		}
		if err := e.EncodeUint32(uint32(len(out))); err != nil {
			return err
		}
		if err := e.EncodeBytes(out); err != nil {
			return err
		}

		plain = plain[n:]
		if n < xpressMaxChunk {
			return nil
		}
	}
}

func (d *decoder) CompressionStart(
	alg ndrinterfaces.CompressionAlg,
	decompressedLen, compressedLen int64,
) (ndrinterfaces.Decoder, error) {
	alg = d.effectiveCompression(alg)
	comp, err := d.checkCompression(alg)
	if err != nil {
		return nil, err
	}
	if decompressedLen > math.MaxUint32 || compressedLen > math.MaxUint32 {
		return nil, d.error(errors.ErrCompression,
			"Bad compression lengths %d/%d", decompressedLen, compressedLen)
	}

	var plain []byte
	switch alg {
	case ndrinterfaces.CompressionNone:
		n := d.Remaining()
		switch {
		case decompressedLen >= 0:
			n = uint32(decompressedLen)
		case compressedLen >= 0:
			n = uint32(compressedLen)
		}
		plain, err = d.take(1, n)

	case ndrinterfaces.CompressionMSZip:
		plain, err = d.decodeMSZip()

	case ndrinterfaces.CompressionMSZipCAB:
		plain, err = d.decodeMSZipCAB(decompressedLen, compressedLen)

	case ndrinterfaces.CompressionXpress:
		plain, err = d.decodeXpress(comp)

	default:
		plain, err = d.decodeRawCompressed(comp, alg, decompressedLen, compressedLen)
	}
	if err != nil {
		return nil, err
	}

	if decompressedLen >= 0 && int64(len(plain)) != decompressedLen {
		return nil, d.error(errors.ErrCompression,
			"Bad uncompressed_len [%d] != [%d](0x%08x) (PULL)",
			len(plain), decompressedLen, decompressedLen)
	}

	d.log.Debug("decompressed",
		zap.Stringer("alg", alg), zap.Int("plain_size", len(plain)))
	return d.newChild(plain, d.flags), nil
}

func (d *decoder) CompressionEnd(compressed ndrinterfaces.Decoder, alg ndrinterfaces.CompressionAlg) error {
	c, ok := compressed.(*decoder)
	if !ok {
		return d.error(errors.ErrCompression, "compression context was not created by this decoder")
	}
	c.release()
	return nil
}

// decodeChunkHeader reads the plain and compressed sizes of a chunk
func (d *decoder) decodeChunkHeader(name string, max uint32) (uint32, []byte, error) {
	plainLen, err := d.DecodeUint32()
	if err != nil {
		return 0, nil, err
	}
	if plainLen > max {
		return 0, nil, d.error(errors.ErrCompression,
			"Bad %s plain chunk size %08X > 0x%08X (PULL)", name, plainLen, max)
	}

	compLen, err := d.DecodeUint32()
	if err != nil {
		return 0, nil, err
	}
	comp, err := d.take(1, compLen)
	if err != nil {
		return 0, nil, err
	}
	return plainLen, comp, nil
}

// lastChunk reports whether a chunk of plainLen bytes ended the stream
func (d *decoder) lastChunk(plainLen, max uint32) bool {
	return plainLen < max || uint64(d.offset)+4 >= uint64(d.dataSize)
}

func (d *decoder) decodeMSZip() ([]byte, error) {
	var (
		out  []byte
		dict []byte
	)
	for {
		plainLen, comp, err := d.decodeChunkHeader("MSZIP", mszipMaxChunk)
		if err != nil {
			return nil, err
		}

		chunk, err := inflateChunk(comp, plainLen, dict)
		if err != nil {
			return nil, d.error(errors.ErrCompression, "Bad MSZIP chunk (PULL): %v", err)
		}
		out = append(out, chunk...)
		dict = chunk

		if d.lastChunk(plainLen, mszipMaxChunk) {
			return out, nil
		}
	}
}

func (d *decoder) decodeMSZipCAB(decompressedLen, compressedLen int64) ([]byte, error) {
	if decompressedLen < 0 || compressedLen < 0 {
		return nil, d.error(errors.ErrCompression,
			"MSZIP_CAB requires both compressed and decompressed lengths")
	}
	if decompressedLen > mszipMaxChunk {
		return nil, d.error(errors.ErrCompression,
			"Bad MSZIP_CAB plain chunk size %08X > 0x%08X (PULL)", decompressedLen, mszipMaxChunk)
	}

	comp, err := d.take(1, uint32(compressedLen))
	if err != nil {
		return nil, err
	}

	chunk, err := inflateChunk(comp, uint32(decompressedLen), d.mszipDict)
	if err != nil {
		return nil, d.error(errors.ErrCompression, "Bad MSZIP_CAB chunk (PULL): %v", err)
	}
	d.mszipDict = append(d.mszipDict[:0], chunk...)
	return chunk, nil
}

func (d *decoder) decodeXpress(comp ndrinterfaces.Compressor) ([]byte, error) {
	var out []byte
	for {
		plainLen, src, err := d.decodeChunkHeader("XPRESS", xpressMaxChunk)
		if err != nil {
			return nil, err
		}

		chunk, err := comp.Decompress(src, int(plainLen))
		switch {
		case err != nil:
			return nil, d.error(errors.ErrCompression, "Bad XPRESS chunk (PULL): %v", err)
		case len(chunk) != int(plainLen):
			return nil, d.error(errors.ErrCompression,
				"Bad XPRESS chunk length %d != %d (PULL)", len(chunk), plainLen)
		}
		out = append(out, chunk...)

		if d.lastChunk(plainLen, xpressMaxChunk) {
			return out, nil
		}
	}
}

func (d *decoder) decodeRawCompressed(
	comp ndrinterfaces.Compressor,
	alg ndrinterfaces.CompressionAlg,
	decompressedLen, compressedLen int64,
) ([]byte, error) {
	if decompressedLen < 0 {
		return nil, d.error(errors.ErrCompression, "%s requires the decompressed length", alg)
	}

	n := d.Remaining()
	if compressedLen >= 0 {
		n = uint32(compressedLen)
	}
	src, err := d.take(1, n)
	if err != nil {
		return nil, err
	}

	out, err := comp.Decompress(src, int(decompressedLen))
	if err != nil {
		return nil, d.error(errors.ErrCompression, "%s decompression failed: %v", alg, err)
	}
	return out, nil
}

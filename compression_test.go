// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

package ndr

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// identityCompressor "compresses" by copying
type identityCompressor struct{}

func (identityCompressor) Compress(plain []byte) ([]byte, error) {
	return append([]byte(nil), plain...), nil
}

func (identityCompressor) Decompress(src []byte, plainLen int) ([]byte, error) {
	if len(src) != plainLen {
		return nil, fmt.Errorf("got %d bytes, expected %d", len(src), plainLen)
	}
	return append([]byte(nil), src...), nil
}

func compress(t *testing.T, cr Coder, flags Flags, alg CompressionAlg, values []uint32) []byte {
	t.Helper()

	e := cr.NewEncoder(flags)
	sub, err := e.CompressionStart(alg)
	require.NoError(t, err)
	for _, v := range values {
		require.NoError(t, sub.EncodeUint32(v))
	}
	require.NoError(t, e.CompressionEnd(sub, alg))
	return e.Bytes()
}

func decompress(t *testing.T, cr Coder, flags Flags, alg CompressionAlg, buf []byte, plainLen, compLen int64) []uint32 {
	t.Helper()

	d, err := cr.NewDecoder(buf, flags)
	require.NoError(t, err)

	sub, err := d.CompressionStart(alg, plainLen, compLen)
	require.NoError(t, err)

	var values []uint32
	for sub.Remaining() > 0 {
		v, err := sub.DecodeUint32()
		require.NoError(t, err)
		values = append(values, v)
	}
	require.NoError(t, d.CompressionEnd(sub, alg))
	assert.Equal(t, uint32(0), d.Remaining(), "compressed data should be consumed")
	return values
}

func testValues(n int) []uint32 {
	values := make([]uint32, n)
	for i := range values {
		values[i] = uint32(i % 100)
	}
	return values
}

func TestCompressionNone(t *testing.T) {
	buf := compress(t, &DefaultCoder, 0, CompressionNone, []uint32{7})
	assert.Equal(t, []byte{7, 0, 0, 0}, buf)
	assert.Equal(t, []uint32{7}, decompress(t, &DefaultCoder, 0, CompressionNone, buf, 4, -1))
}

func TestCompressionMSZip(t *testing.T) {
	// Spans two chunks
	values := testValues(10000)
	buf := compress(t, &DefaultCoder, 0, CompressionMSZip, values)
	assert.Less(t, len(buf), 40000)

	// The first chunk is full
	assert.Equal(t, []byte{0, 0x80, 0, 0}, buf[0:4])
	assert.Equal(t, []byte("CK"), buf[8:10])

	assert.Equal(t, values, decompress(t, &DefaultCoder, 0, CompressionMSZip, buf, 40000, -1))
	assert.Equal(t, values, decompress(t, &DefaultCoder, 0, CompressionMSZip, buf, -1, -1))

	d, err := NewDecoder(buf, 0)
	require.NoError(t, err)
	_, err = d.CompressionStart(CompressionMSZip, 39996, -1)
	assert.ErrorIs(t, err, ErrCompression)
}

func TestCompressionMSZipBadSignature(t *testing.T) {
	buf := compress(t, &DefaultCoder, 0, CompressionMSZip, testValues(10))
	buf[8] = 'X'

	d, err := NewDecoder(buf, 0)
	require.NoError(t, err)
	_, err = d.CompressionStart(CompressionMSZip, -1, -1)
	assert.ErrorIs(t, err, ErrCompression)
}

func TestCompressionMSZipCAB(t *testing.T) {
	values := testValues(100)
	buf := compress(t, &DefaultCoder, 0, CompressionMSZipCAB, values)
	assert.Equal(t, []byte("CK"), buf[0:2])

	assert.Equal(t, values,
		decompress(t, &DefaultCoder, 0, CompressionMSZipCAB, buf, 400, int64(len(buf))))

	d, err := NewDecoder(buf, 0)
	require.NoError(t, err)
	_, err = d.CompressionStart(CompressionMSZipCAB, 400, -1)
	assert.ErrorIs(t, err, ErrCompression)
}

func TestNoCompressionFlag(t *testing.T) {
	buf := compress(t, &DefaultCoder, FlagNoCompression, CompressionMSZip, []uint32{7})
	assert.Equal(t, []byte{7, 0, 0, 0}, buf)
	assert.Equal(t, []uint32{7},
		decompress(t, &DefaultCoder, FlagNoCompression, CompressionMSZip, buf, 4, -1))
}

func TestCompressionXpress(t *testing.T) {
	e := NewEncoder(0)
	_, err := e.CompressionStart(CompressionXpress)
	assert.ErrorIs(t, err, ErrCompression)

	cr := NewCoder(WithCompressor(CompressionXpress, identityCompressor{}))
	buf := compress(t, cr, 0, CompressionXpress, []uint32{7})
	assert.Equal(t, []byte{
		4, 0, 0, 0,
		4, 0, 0, 0,
		7, 0, 0, 0,
	}, buf)
	assert.Equal(t, []uint32{7}, decompress(t, cr, 0, CompressionXpress, buf, 4, -1))
}

func TestCompressionXpressHuffRaw(t *testing.T) {
	cr := NewCoder(WithCompressor(CompressionXpressHuffRaw, identityCompressor{}))
	buf := compress(t, cr, 0, CompressionXpressHuffRaw, []uint32{7, 8})
	assert.Equal(t, []byte{7, 0, 0, 0, 8, 0, 0, 0}, buf)
	assert.Equal(t, []uint32{7, 8}, decompress(t, cr, 0, CompressionXpressHuffRaw, buf, 8, -1))

	d, err := cr.NewDecoder(buf, 0)
	require.NoError(t, err)
	_, err = d.CompressionStart(CompressionXpressHuffRaw, -1, -1)
	assert.ErrorIs(t, err, ErrCompression)
}

func TestCompressionBadAlgorithm(t *testing.T) {
	e := NewEncoder(0)
	_, err := e.CompressionStart(CompressionAlg(99))
	assert.ErrorIs(t, err, ErrCompression)

	assert.Panics(t, func() {
		NewCoder(WithCompressor(CompressionMSZip, identityCompressor{}))
	})
}

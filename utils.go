// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

package ndr

import (
	"reflect"

	"go.uber.org/zap"

	ndrinterfaces "go.e43.eu/ndr/interfaces"
	"go.e43.eu/ndr/internal/coder"
)

type defaultCoder struct {
	coder.Coder
}

func (d *defaultCoder) RegisterCodec(template interface{}, c ndrinterfaces.Codec) {
	panic("Cannot register type on default codec")
}

func (d *defaultCoder) RegisterCodecReflect(type_ reflect.Type, c ndrinterfaces.Codec) {
	panic("Cannot register type on default codec")
}

func (d *defaultCoder) RegisterCompressor(alg ndrinterfaces.CompressionAlg, c ndrinterfaces.Compressor) {
	panic("Cannot register compressor on default codec")
}

// The default coder (used by the package global functions)
//
// This behaves identically to a coder created using NewCoder with no options,
// except that it is not permitted to register any codecs or compressors upon
// it.
var DefaultCoder defaultCoder

// Marshals o into the returned buffer
func Marshal(o interface{}) ([]byte, error) {
	return DefaultCoder.Marshal(o)
}

// Marshals o into the returned buffer with the specified wire flags
func MarshalFlags(o interface{}, flags Flags) ([]byte, error) {
	return DefaultCoder.MarshalFlags(o, flags)
}

// Marshals o into buf, which it must fill exactly
func MarshalInto(buf []byte, o interface{}) error {
	return DefaultCoder.MarshalInto(buf, o)
}

// Marshals the non-encapsulated union pointed to by o with discriminant level
func MarshalUnion(level uint32, o interface{}) ([]byte, error) {
	return DefaultCoder.MarshalUnion(level, o)
}

// Unmarshals buf into the object pointed to by op. Trailing bytes are ignored
func Unmarshal(buf []byte, op interface{}) error {
	return DefaultCoder.Unmarshal(buf, op)
}

// Unmarshals buf into the object pointed to by op with the specified wire flags
func UnmarshalFlags(buf []byte, op interface{}, flags Flags) error {
	return DefaultCoder.UnmarshalFlags(buf, op, flags)
}

// Unmarshals buf into the object pointed to by op, failing with ErrUnreadBytes
// if it is not consumed completely
func UnmarshalAll(buf []byte, op interface{}) error {
	return DefaultCoder.UnmarshalAll(buf, op)
}

// Unmarshals the non-encapsulated union pointed to by op with discriminant
// level
func UnmarshalUnion(buf []byte, level uint32, op interface{}) error {
	return DefaultCoder.UnmarshalUnion(buf, level, op)
}

// Size returns the number of bytes o marshals to
func Size(o interface{}, flags Flags) (uint32, error) {
	return DefaultCoder.Size(o, flags)
}

// Constructs a new encoder with a growable buffer
func NewEncoder(flags Flags) Encoder {
	return DefaultCoder.NewEncoder(flags)
}

// Constructs a new encoder writing into buf, which may not grow
func NewFixedEncoder(buf []byte, flags Flags) Encoder {
	return DefaultCoder.NewFixedEncoder(buf, flags)
}

// Constructs a new decoder reading from buf
func NewDecoder(buf []byte, flags Flags) (Decoder, error) {
	return DefaultCoder.NewDecoder(buf, flags)
}

type Option = coder.Option

// WithLogger sets the logger through which encoders and decoders report
// errors (at debug level) and suspicious input (at warn level)
func WithLogger(log *zap.Logger) Option {
	return coder.WithLogger(log)
}

// WithFlags sets the default wire flags of the coder
func WithFlags(flags Flags) Option {
	return coder.WithFlags(flags)
}

// WithMaxRecursion sets the depth to which structures and unions may nest
// (by default 1024)
func WithMaxRecursion(n uint32) Option {
	return coder.WithMaxRecursion(n)
}

// WithGlobalMaxRecursion sets a recursion ceiling which overrides every other
func WithGlobalMaxRecursion(n uint32) Option {
	return coder.WithGlobalMaxRecursion(n)
}

// WithCompressor registers the compressor for alg
func WithCompressor(alg CompressionAlg, c Compressor) Option {
	return coder.WithCompressor(alg, c)
}

// Construct a new Coder
func NewCoder(opts ...Option) Coder {
	return coder.NewCoder(opts...)
}

// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

// Package ndrinterfaces defines the primary interfaces of the NDR encoder
//
// (This package is primarily separated out in order to permit the implementation to
// be broken down into multiple packages)
package ndrinterfaces

import (
	"reflect"

	"github.com/google/uuid"
	"go.e43.eu/ndr/arena"
)

// interface Marshaler is the interface implemented by a type which knows how to encode
// and decode itself to/from NDR. This is the shape of generated code: each call
// handles the parts of the type selected by flags (Scalars and/or Buffers).
type Marshaler interface {
	MarshalNDR(e Encoder, flags ScopeFlags) error
	UnmarshalNDR(d Decoder, flags ScopeFlags) error
}

// interface FunctionMarshaler is implemented by the argument structures of RPC
// functions. flags selects the In and/or Out arguments. Encoder.Encode and
// Decoder.Decode dispatch to it when passed In and/or Out flags.
type FunctionMarshaler interface {
	MarshalNDRFunction(e Encoder, flags ScopeFlags) error
	UnmarshalNDRFunction(d Decoder, flags ScopeFlags) error
}

// interface Codec is the interface by which the marshalling of types which are
// not natively supported may be defined.
//
// Codecs may be registered with a Coder in order to specify how to handle a
// specific type.
type Codec interface {
	// Encodes the parts of v selected by flags into the encoder e.
	Encode(e Encoder, flags ScopeFlags, v reflect.Value) error

	// Decodes the parts of v selected by flags from the decoder d.
	Decode(d Decoder, flags ScopeFlags, v reflect.Value) error
}

// interface Compressor is implemented by pluggable compression algorithms.
// Implementations must not retain the passed buffers.
type Compressor interface {
	Compress(plain []byte) ([]byte, error)

	// Decompress decompresses src, which must expand to exactly plainLen bytes
	Decompress(src []byte, plainLen int) ([]byte, error)
}

// interface Coder is the top-level interface to the NDR library
//
// A coder (which may be safely used from multiple threads) provides the ability
// to marshal objects to and from NDR. It also contains a repository of Codecs
// and Compressors
type Coder interface {
	// Marshals o into the returned buffer using the coder's default flags
	Marshal(o interface{}) ([]byte, error)

	// Marshals o into the returned buffer with the specified flags
	MarshalFlags(o interface{}, flags Flags) ([]byte, error)

	// Marshals o into buf, which must be filled exactly
	MarshalInto(buf []byte, o interface{}) error

	// Marshals the union o with the discriminant level
	MarshalUnion(level uint32, o interface{}) ([]byte, error)

	// Unmarshals buf into the object pointed to by op. Trailing bytes are ignored
	Unmarshal(buf []byte, op interface{}) error

	// Unmarshals buf into the object pointed to by op with the specified flags
	UnmarshalFlags(buf []byte, op interface{}, flags Flags) error

	// Unmarshals buf into the object pointed to by op, failing if any bytes
	// remain unread
	UnmarshalAll(buf []byte, op interface{}) error

	// Unmarshals the union pointed to by op with the discriminant level
	UnmarshalUnion(buf []byte, level uint32, op interface{}) error

	// Size returns the encoded size of o
	Size(o interface{}, flags Flags) (uint32, error)

	// Constructs a new encoder with a growable buffer
	NewEncoder(flags Flags) Encoder

	// Constructs a new encoder which writes into buf and may not grow
	NewFixedEncoder(buf []byte, flags Flags) Encoder

	// Constructs a new decoder reading from buf
	NewDecoder(buf []byte, flags Flags) (Decoder, error)

	// Registers the codec. Panics if a codec is already registered for
	// the type, or an attempt is made to register a codec for a type
	// for which it is not permitted to register codecs.
	RegisterCodec(template interface{}, c Codec)
	RegisterCodecReflect(type_ reflect.Type, c Codec)

	// Registers a compressor for alg. Panics for algorithms which are
	// built in or explicitly unsupported.
	RegisterCompressor(alg CompressionAlg, c Compressor)
}

// interface Encoder is the interface to the NDR encoder (push context)
//
// Keys passed to the token based operations identify the instance being
// encoded (typically a pointer to it) and must be comparable.
type Encoder interface {
	// Flags returns the current wire flags
	Flags() Flags
	// SetFlags merges f into the current flags (see Flags.Set)
	SetFlags(f Flags)
	// ReplaceFlags replaces the current flags, e.g. to restore saved flags
	ReplaceFlags(f Flags)

	// Offset returns the current offset
	Offset() uint32
	// SetOffset moves the cursor within the allocated buffer
	SetOffset(ofs uint32) error
	// Bytes returns the encoded data up to the current offset. The result
	// aliases the encoder's buffer
	Bytes() []byte
	// Expand ensures that n more bytes may be written
	Expand(n uint32) error

	CheckFlags(flags ScopeFlags) error
	CheckFnFlags(flags ScopeFlags) error

	Align(n int) error
	UnionAlign(n int) error
	TrailerAlign(n int) error

	EncodeZero(n uint32) error
	EncodeBytes(b []byte) error
	EncodeArrayUint8(flags ScopeFlags, b []byte) error
	EncodeDataBlob(flags ScopeFlags, b []byte) error

	EncodeBool(b bool) error
	EncodeUint8(v uint8) error
	EncodeInt8(v int8) error
	EncodeUint16(v uint16) error
	EncodeInt16(v int16) error
	EncodeUint1632(v uint16) error
	EncodeUint32(v uint32) error
	EncodeInt32(v int32) error
	EncodeUint3264(v uint32) error
	EncodeInt3264(v int32) error
	EncodeUdlong(v uint64) error
	EncodeUdlongr(v uint64) error
	EncodeDlong(v int64) error
	EncodeHyper(v uint64) error
	EncodeInt64(v int64) error
	EncodeDouble(v float64) error
	EncodeEnumUint8(v uint8) error
	EncodeEnumUint16(v uint16) error
	EncodeEnumUint1632(v uint16) error
	EncodeGUID(g uuid.UUID) error

	// EncodeString writes s framed according to the current string flags
	EncodeString(flags ScopeFlags, s string) error
	// EncodeCharset writes s into a fixed buffer of length characters
	EncodeCharset(flags ScopeFlags, s string, length uint32, byteMul int, cs Charset) error

	// EncodeUniquePtr writes the referent ID for a unique pointer (0 when p is nil)
	EncodeUniquePtr(p interface{}) error
	// EncodeFullPtr writes the referent ID of a full pointer, reusing the ID
	// previously assigned to p
	EncodeFullPtr(p interface{}) error
	// EncodeRefPtr writes the placeholder referent of an embedded ref pointer
	EncodeRefPtr() error
	PtrCount() uint32
	SetPtrCount(n uint32)

	SetSwitchValue(key interface{}, v uint32) error
	StealSwitchValue(key interface{}) (uint32, error)

	SetupRelativeBase1(key interface{}, offset uint32) error
	SetupRelativeBase2(key interface{}) error
	RelativeBase() uint32
	RestoreRelativeBase(offset uint32)
	RelativePtr1(key interface{}) error
	ShortRelativePtr1(key interface{}) error
	// RelativePtr2Start prepares for writing the target of key. If the
	// target has already been written, the pointer is resolved to it and emit
	// is false; the caller must then skip both the target and RelativePtr2End
	RelativePtr2Start(key interface{}) (emit bool, err error)
	RelativePtr2End(key interface{}) error
	ShortRelativePtr2(key interface{}) (emit bool, err error)

	RecursionCheck(limit uint32) error
	RecursionUnwind() error

	SubcontextStart(headerSize uint32, sizeIs int64) (Encoder, error)
	SubcontextEnd(sub Encoder, headerSize uint32, sizeIs int64) error
	CompressionStart(alg CompressionAlg) (Encoder, error)
	CompressionEnd(uncompressed Encoder, alg CompressionAlg) error

	// Encode writes an object to the NDR encoder
	Encode(o interface{}, flags ScopeFlags) error

	// EncodeValue encodes an object to the NDR encoder (via reflection)
	EncodeValue(v reflect.Value, flags ScopeFlags) error
}

// interface Decoder is the interface to the NDR decoder (pull context)
type Decoder interface {
	Flags() Flags
	SetFlags(f Flags)
	ReplaceFlags(f Flags)

	Offset() uint32
	// SetOffset moves the cursor; it may not be moved past the end of the data
	SetOffset(ofs uint32) error
	DataSize() uint32
	Remaining() uint32
	Advance(n uint32) error
	// Missing returns the number of bytes found missing by the last failed
	// read when FlagIncompleteBuffer is set
	Missing() uint32

	// Arena returns the allocation scope of decoded data
	Arena() *arena.Arena
	SetArena(a *arena.Arena)

	CheckFlags(flags ScopeFlags) error
	CheckFnFlags(flags ScopeFlags) error

	Align(n int) error
	UnionAlign(n int) error
	TrailerAlign(n int) error

	DecodeBytes(n uint32) ([]byte, error)
	DecodeArrayUint8(flags ScopeFlags, n uint32) ([]byte, error)
	DecodeDataBlob(flags ScopeFlags) ([]byte, error)

	DecodeBool() (bool, error)
	DecodeUint8() (uint8, error)
	DecodeInt8() (int8, error)
	DecodeUint16() (uint16, error)
	DecodeInt16() (int16, error)
	DecodeUint1632() (uint16, error)
	DecodeUint32() (uint32, error)
	DecodeInt32() (int32, error)
	DecodeUint3264() (uint32, error)
	DecodeInt3264() (int32, error)
	DecodeUdlong() (uint64, error)
	DecodeUdlongr() (uint64, error)
	DecodeDlong() (int64, error)
	DecodeHyper() (uint64, error)
	DecodeInt64() (int64, error)
	DecodeDouble() (float64, error)
	DecodeEnumUint8() (uint8, error)
	DecodeEnumUint16() (uint16, error)
	DecodeEnumUint1632() (uint16, error)
	DecodeGUID() (uuid.UUID, error)

	DecodeString(flags ScopeFlags) (string, error)
	DecodeCharset(flags ScopeFlags, length uint32, byteMul int, cs Charset) (string, error)

	// DecodeGenericPtr reads a referent ID; 0 means the pointer is absent
	DecodeGenericPtr() (uint32, error)
	// DecodeRefPtr reads the referent of an embedded ref pointer
	DecodeRefPtr() (uint32, error)
	PtrCount() uint32

	// DecodeArraySize reads the conformant size of the array key
	DecodeArraySize(key interface{}) error
	GetArraySize(key interface{}) (uint32, error)
	StealArraySize(key interface{}) (uint32, error)
	CheckArraySize(key interface{}, size uint32) error
	CheckStealArraySize(key interface{}, size uint32) error
	// DecodeArrayLength reads the offset and length of the varying array key
	DecodeArrayLength(key interface{}) error
	GetArrayLength(key interface{}) (uint32, error)
	StealArrayLength(key interface{}) (uint32, error)
	CheckArrayLength(key interface{}, length uint32) error
	CheckStealArrayLength(key interface{}, length uint32) error

	SetSwitchValue(key interface{}, v uint32) error
	StealSwitchValue(key interface{}) (uint32, error)

	SetupRelativeBase1(key interface{}, offset uint32) error
	SetupRelativeBase2(key interface{}) error
	RelativeBase() uint32
	RestoreRelativeBase(offset uint32)
	// RelativePtr1 records the target of key at relOffset from the current base
	RelativePtr1(key interface{}, relOffset uint32) error
	// RelativePtr2 moves the cursor to the target of key and returns the
	// offset to pass to RelativeRestore
	RelativePtr2(key interface{}) (saved uint32, err error)
	// RelativeRestore returns to saved after reading a relative target
	RelativeRestore(saved uint32) error
	RelativeHighestOffset() uint32

	RecursionCheck(limit uint32) error
	RecursionUnwind() error
	SetGlobalMaxRecursion(n uint32)

	SubcontextStart(headerSize uint32, sizeIs int64) (Decoder, error)
	SubcontextEnd(sub Decoder, headerSize uint32, sizeIs int64) error
	CompressionStart(alg CompressionAlg, decompressedLen, compressedLen int64) (Decoder, error)
	CompressionEnd(compressed Decoder, alg CompressionAlg) error

	// Decode reads an object from the stream into *op.
	Decode(op interface{}, flags ScopeFlags) error

	// DecodeValue reads an object from the stream
	// v must be a settable value (v.CanSet() is true)
	DecodeValue(v reflect.Value, flags ScopeFlags) error
}

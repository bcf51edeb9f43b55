// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

package coder

import (
	"fmt"
	"math"
	"reflect"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	ndrinterfaces "go.e43.eu/ndr/interfaces"
	"go.e43.eu/ndr/internal/errors"
	"go.e43.eu/ndr/internal/tags"
)

// DefaultMaxRecursion is the recursion ceiling applied by the reflection
// codecs when none has been configured
const DefaultMaxRecursion = 1024

var (
	marshalerType = reflect.TypeOf((*ndrinterfaces.Marshaler)(nil)).Elem()
	uuidType      = reflect.TypeOf(uuid.UUID{})
)

type xType struct {
	Type       reflect.Type
	EncodedTag string
}

// Coder is safe for concurrent use. The zero value is usable, with default
// options
type Coder struct {
	log                *zap.Logger
	flags              ndrinterfaces.Flags
	maxRecursion       uint32
	globalMaxRecursion uint32

	knownBaseCodecs sync.Map // map[reflect.Type]xCodec
	knownCodecs     sync.Map // map[xType]xCodec
	compressors     sync.Map // map[CompressionAlg]Compressor
}

type Option func(cr *Coder)

// WithLogger sets the logger used by encoders and decoders
func WithLogger(log *zap.Logger) Option {
	return func(cr *Coder) {
		cr.log = log
	}
}

// WithFlags sets the default wire flags
func WithFlags(flags ndrinterfaces.Flags) Option {
	return func(cr *Coder) {
		cr.flags = flags
	}
}

// WithMaxRecursion sets the depth to which structures and unions may nest
func WithMaxRecursion(n uint32) Option {
	return func(cr *Coder) {
		cr.maxRecursion = n
	}
}

// WithGlobalMaxRecursion sets a ceiling which overrides every other
// recursion limit (including those passed by hand written marshalers)
func WithGlobalMaxRecursion(n uint32) Option {
	return func(cr *Coder) {
		cr.globalMaxRecursion = n
	}
}

func WithCompressor(alg ndrinterfaces.CompressionAlg, c ndrinterfaces.Compressor) Option {
	return func(cr *Coder) {
		cr.RegisterCompressor(alg, c)
	}
}

func NewCoder(opts ...Option) *Coder {
	cr := new(Coder)
	for _, o := range opts {
		o(cr)
	}
	return cr
}

func (cr *Coder) logger() *zap.Logger {
	if cr.log == nil {
		return zap.NewNop()
	}
	return cr.log
}

func (cr *Coder) recursionLimit() uint32 {
	if cr.maxRecursion == 0 {
		return DefaultMaxRecursion
	}
	return cr.maxRecursion
}

func (cr *Coder) Flags() ndrinterfaces.Flags {
	return cr.flags
}

func (cr *Coder) getBaseCodec(t reflect.Type) xCodec {
	c, ok := cr.knownBaseCodecs.Load(t)
	if ok {
		return c.(xCodec)
	}

	// Less common case: need to construct a codec
	return cr.getNewCodec(xType{t, ""}, nil)
}

func (cr *Coder) getCodec(t reflect.Type, tag tags.NDRTag) xCodec {
	// Common case: already known; just lookup type
	xt := xType{t, tag.ByteString()}
	c, ok := cr.knownCodecs.Load(xt)
	if ok {
		return c.(xCodec)
	}

	// Less common case: need to construct a codec
	return cr.getNewCodec(xt, tag)
}

var inlineTag = tags.NDRTag(nil).Append(tags.Inline)

// getTopLevelCodec returns the codec for a value passed directly to Encode or
// Decode. Such a value is never itself a pointer: a *T is marshalled as T, and
// a []T as a conformant array
func (cr *Coder) getTopLevelCodec(t reflect.Type) xCodec {
	switch t.Kind() {
	case reflect.Ptr:
		switch t.Elem().Kind() {
		case reflect.Ptr, reflect.Slice:
			if t.Elem() == t {
				break
			}
			// The target is itself top level
			return &ptrCodec{
				kind:  tags.Inline,
				elem:  cr.getTopLevelCodec(t.Elem()),
				elemt: t.Elem(),
			}
		}
		return cr.getCodec(t, inlineTag)
	case reflect.Slice:
		return cr.getCodec(t, inlineTag)
	default:
		return cr.getBaseCodec(t)
	}
}

// Types of object you are prevented from registering codecs for
var prohibitedCustomCodecKinds = map[reflect.Kind]struct{}{
	reflect.Invalid: struct{}{},

	// Prohibited because these would interact poorly with tagged fields in structs.
	// These problems are not unsolvable, but we are protecting against them for now
	reflect.Array:  struct{}{},
	reflect.Slice:  struct{}{},
	reflect.String: struct{}{},
	reflect.Map:    struct{}{},

	// Would make behaviour of pointers in general inconsistent
	reflect.Ptr: struct{}{},

	// These make little sense to support
	reflect.Chan: struct{}{},
	reflect.Func: struct{}{},

	reflect.UnsafePointer: struct{}{},
}

// These are blocked because implementing different behaviour for
// the primitive types would be incredibly confusing
var prohibitedPrimitives = map[reflect.Type]struct{}{
	reflect.TypeOf(false):      struct{}{},
	reflect.TypeOf(int8(0)):    struct{}{},
	reflect.TypeOf(int16(0)):   struct{}{},
	reflect.TypeOf(int32(0)):   struct{}{},
	reflect.TypeOf(int64(0)):   struct{}{},
	reflect.TypeOf(int(0)):     struct{}{},
	reflect.TypeOf(uint8(0)):   struct{}{},
	reflect.TypeOf(uint16(0)):  struct{}{},
	reflect.TypeOf(uint32(0)):  struct{}{},
	reflect.TypeOf(uint64(0)):  struct{}{},
	reflect.TypeOf(uint(0)):    struct{}{},
	reflect.TypeOf(uintptr(0)): struct{}{},
	reflect.TypeOf(float32(0)): struct{}{},
	reflect.TypeOf(float64(0)): struct{}{},
	uuidType:                   struct{}{},
}

func (cr *Coder) RegisterCodec(template interface{}, c ndrinterfaces.Codec) {
	cr.RegisterCodecReflect(reflect.TypeOf(template), c)
}

func (cr *Coder) RegisterCodecReflect(t reflect.Type, c ndrinterfaces.Codec) {
	if t == nil {
		panic("Attempt to register codec for nil type")
	}

	if _, badKind := prohibitedCustomCodecKinds[t.Kind()]; badKind {
		panic(fmt.Sprintf("Attempt to register codec for type %s which is of a prohibited kind", t))
	}

	if _, isPrimitive := prohibitedPrimitives[t]; isPrimitive {
		panic(fmt.Sprintf("Attempt to register codec for primitive %s is prohibited", t))
	}

	xt := xType{t, ""}
	existing, found := cr.knownCodecs.LoadOrStore(xt, c)
	if found && existing.(xCodec) != c {
		panic(fmt.Sprintf("Attempt to register codec '%v' for type '%s' but '%v' is already registered", c, t, existing))
	}
	cr.knownBaseCodecs.Store(t, c)
}

func (cr *Coder) RegisterCompressor(alg ndrinterfaces.CompressionAlg, c ndrinterfaces.Compressor) {
	switch alg {
	case ndrinterfaces.CompressionXpress, ndrinterfaces.CompressionXpressHuffRaw:
	case ndrinterfaces.CompressionNone, ndrinterfaces.CompressionMSZip, ndrinterfaces.CompressionMSZipCAB:
		panic(fmt.Sprintf("Compression algorithm %s is built in", alg))
	default:
		panic(fmt.Sprintf("Compression algorithm %s (%d) is not supported", alg, alg))
	}

	if c == nil {
		panic("Attempt to register nil compressor")
	}

	if _, found := cr.compressors.LoadOrStore(alg, c); found {
		panic(fmt.Sprintf("Attempt to register compressor for %s but one is already registered", alg))
	}
}

func (cr *Coder) compressor(alg ndrinterfaces.CompressionAlg) (ndrinterfaces.Compressor, bool) {
	c, ok := cr.compressors.Load(alg)
	if !ok {
		return nil, false
	}
	return c.(ndrinterfaces.Compressor), true
}

func (cr *Coder) getNewCodec(xt xType, tag tags.NDRTag) xCodec {
	// We create a "deferred codec" in order to handle cycles in the type graph. Note
	// that we also need to be prepared for the possibility that another goroutine
	// is constructing a type related to this one or looking this one up simultaneously,
	// so this codec must not explode if called while being constructed
	//
	// Every call to the deferred codec will block until we finish constructing the
	// real one.
	dc := newDeferredCodec()

	// We were potentially racing against someone else to build the codec up to this point,
	// so we must check that here. If someone else has built (or is building) the codec,
	// we'll go with theirs instead
	c, ok := cr.knownCodecs.LoadOrStore(xt, dc)
	if ok {
		return c.(xCodec)
	}

	// Actually construct the codec
	cc := cr.buildCodec(xt.Type, tag)

	// Publish our newly built: Replace the deferred one in the store, and release
	// anyone waiting on us
	cr.knownCodecs.Store(xt, cc)
	if tag.Empty() {
		cr.knownBaseCodecs.Store(xt.Type, cc)
	}
	dc.resolve(cc)
	return cc
}

func (cr *Coder) buildCodec(t reflect.Type, tag tags.NDRTag) xCodec {
	// Handle the field scoped tags first; they wrap whatever follows them
	switch tag.Kind() {
	case tags.Flags:
		return makeFlagsCodec(cr, t, tag)

	case tags.Subcontext:
		return makeSubcontextCodec(cr, t, tag)
	}

	k := t.Kind()

	// Types which marshal themselves (and GUIDs, which are arrays in Go)
	// admit no tags
	if k != reflect.Ptr {
		var c xCodec
		switch {
		case t.Implements(marshalerType):
			c = marshalerCodecI
		case reflect.PtrTo(t).Implements(marshalerType):
			c = addrMarshalerCodecI
		case t == uuidType:
			c = guidCodecI
		}

		switch {
		case c == nil:
		case !tag.Empty():
			return &errorCodec{errors.InvalidTagForTypeError{T: t, Tag: tag}}
		default:
			return c
		}
	}

	// Delegate straight through to types with their own tag handling
	switch k {
	case reflect.Ptr:
		return makePtrCodec(cr, t, tag)

	case reflect.Slice:
		return makeSliceCodec(cr, t, tag)

	case reflect.Array:
		return makeArrayCodec(cr, t, tag)

	case reflect.String:
		return makeStringCodec(t, tag)
	}

	// None of the remaining types admit any tags
	if !tag.Empty() {
		return &errorCodec{errors.InvalidTagForTypeError{T: t, Tag: tag}}
	}

	switch k {
	case reflect.Bool:
		return boolCodecI
	case reflect.Int8:
		return int8CodecI
	case reflect.Int16:
		return int16CodecI
	case reflect.Int32:
		return int32CodecI
	case reflect.Uint8:
		return uint8CodecI
	case reflect.Uint16:
		return uint16CodecI
	case reflect.Uint32:
		return uint32CodecI
	case reflect.Int64:
		return hyperCodecI
	case reflect.Uint64:
		return uhyperCodecI
	case reflect.Float64:
		return doubleCodecI
	case reflect.Struct:
		return makeStructCodec(cr, t)
	default:
		return &errorCodec{errors.InvalidTypeError{T: t}}
	}
}

func (cr *Coder) NewEncoder(flags ndrinterfaces.Flags) ndrinterfaces.Encoder {
	e := &encoder{codecCacheSlot: 3}
	e.reset(cr, flags)
	return e
}

func (cr *Coder) NewFixedEncoder(buf []byte, flags ndrinterfaces.Flags) ndrinterfaces.Encoder {
	e := &encoder{codecCacheSlot: 3}
	e.reset(cr, flags)
	e.data = buf[:len(buf):len(buf)]
	e.fixed = true
	return e
}

func (cr *Coder) newEncoder(flags ndrinterfaces.Flags) *encoder {
	e := encoderPool.Get().(*encoder)
	e.reset(cr, flags)
	return e
}

func (cr *Coder) NewDecoder(buf []byte, flags ndrinterfaces.Flags) (ndrinterfaces.Decoder, error) {
	if uint64(len(buf)) > math.MaxUint32 {
		return nil, errors.New(errors.ErrBufSize, "Input of %d bytes too large", len(buf))
	}

	d := new(decoder)
	d.reset(cr, buf, flags)
	return d, nil
}

func (cr *Coder) newDecoder(buf []byte, flags ndrinterfaces.Flags) (*decoder, error) {
	if uint64(len(buf)) > math.MaxUint32 {
		return nil, errors.New(errors.ErrBufSize, "Input of %d bytes too large", len(buf))
	}

	d := decoderPool.Get().(*decoder)
	d.reset(cr, buf, flags)
	return d, nil
}

func (cr *Coder) Marshal(o interface{}) ([]byte, error) {
	return cr.MarshalFlags(o, cr.flags)
}

func (cr *Coder) MarshalFlags(o interface{}, flags ndrinterfaces.Flags) ([]byte, error) {
	e := cr.newEncoder(flags)
	defer e.release()

	if err := e.Encode(o, ndrinterfaces.ScalarsAndBuffers); err != nil {
		return nil, err
	}
	return append([]byte(nil), e.Bytes()...), nil
}

func (cr *Coder) MarshalInto(buf []byte, o interface{}) error {
	e := cr.newEncoder(cr.flags)
	defer e.release()

	e.data = buf[:len(buf):len(buf)]
	e.fixed = true

	if err := e.Encode(o, ndrinterfaces.ScalarsAndBuffers); err != nil {
		return err
	}
	if e.offset != uint32(len(buf)) {
		return e.error(errors.ErrBufSize, "Encoded %d bytes into a buffer of %d", e.offset, len(buf))
	}
	return nil
}

func (cr *Coder) MarshalUnion(level uint32, o interface{}) ([]byte, error) {
	v := reflect.ValueOf(o)
	if !v.IsValid() || v.Kind() != reflect.Ptr {
		return nil, errors.ErrNotPointer
	}
	if v.IsNil() {
		return nil, errors.ErrNilPointer
	}

	e := cr.newEncoder(cr.flags)
	defer e.release()

	if err := e.SetSwitchValue(o, level); err != nil {
		return nil, err
	}
	if err := e.EncodeValue(v.Elem(), ndrinterfaces.ScalarsAndBuffers); err != nil {
		return nil, err
	}
	return append([]byte(nil), e.Bytes()...), nil
}

func (cr *Coder) Unmarshal(buf []byte, op interface{}) error {
	return cr.UnmarshalFlags(buf, op, cr.flags)
}

func (cr *Coder) UnmarshalFlags(buf []byte, op interface{}, flags ndrinterfaces.Flags) error {
	d, err := cr.newDecoder(buf, flags)
	if err != nil {
		return err
	}
	defer d.release()

	return d.Decode(op, ndrinterfaces.ScalarsAndBuffers)
}

func (cr *Coder) UnmarshalAll(buf []byte, op interface{}) error {
	d, err := cr.newDecoder(buf, cr.flags)
	if err != nil {
		return err
	}
	defer d.release()

	if err := d.Decode(op, ndrinterfaces.ScalarsAndBuffers); err != nil {
		return err
	}
	return d.checkAllRead()
}

func (cr *Coder) UnmarshalUnion(buf []byte, level uint32, op interface{}) error {
	d, err := cr.newDecoder(buf, cr.flags)
	if err != nil {
		return err
	}
	defer d.release()

	v := reflect.ValueOf(op)
	if !v.IsValid() || v.Kind() != reflect.Ptr {
		return errors.ErrNotPointer
	}
	if v.IsNil() {
		return errors.ErrNilPointer
	}

	if err := d.SetSwitchValue(op, level); err != nil {
		return err
	}
	return d.Decode(op, ndrinterfaces.ScalarsAndBuffers)
}

func (cr *Coder) Size(o interface{}, flags ndrinterfaces.Flags) (uint32, error) {
	e := cr.newEncoder(flags | ndrinterfaces.FlagNoNDRSize)
	defer e.release()

	if err := e.Encode(o, ndrinterfaces.ScalarsAndBuffers); err != nil {
		return 0, err
	}
	return e.offset, nil
}

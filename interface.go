// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

// Package ndr implements encoding and decoding of NDR (the Network Data
// Representation of DCE/RPC and MS-RPCE), including the NDR64 transfer
// syntax.
//
// The Encoder/Decoder types in this package offer the low level marshalling
// primitives (the interface which hand written or generated marshalling code
// is built upon), but in most cases you will wish to use the higher level
// functions based upon reflection.
//
// The mapping from Go types to NDR is:
//
//                        Go | NDR
//     ----------------------+------------------------------------------------
//                      bool | boolean8
//               int8, uint8 | int8, uint8
//             int16, uint16 | int16, uint16
//             int32, uint32 | int32, uint32
//            int64, uint64  | hyper (8 byte aligned)
//                   float64 | double
//                 uuid.UUID | GUID
//                    string | [string] (conformant varying UTF-16 unless
//                           | other string flags are set)
//                        *T | [unique] T *
//                       []T | [unique, size_is] T *
//                      [N]T | T ident[N]
//              struct{ ...} | struct { ... }
//
// Values passed directly to Marshal or Unmarshal are never themselves
// pointers: a *T is marshalled as T, and a []T as a conformant array.
//
// Enumerations should be defined as named integer types of the appropriate
// width:
//
//     type MyEnum uint16
//
// Further control is provided using the `ndr:"..."` struct tag. Some field
// definitions contain multiple layers of types: the type *[]T has three (ptr
// slice T). Tags separated by forward slashes apply in turn from the outer to
// the inner type; if it is necessary to skip a level, that level should be
// left empty.
//
//                                 IDL | Go
//     --------------------------------+----------------------------------------
//     [ref] T *ident                  |  *T     `ndr:"ref"`
//     [ptr] T *ident                  |  *T     `ndr:"full"`
//     [relative] T *ident             |  *T     `ndr:"relative"`
//     [relative_short] T *ident       |  *T     `ndr:"short_relative"`
//     [size_is(n)] T ident[]          | []T     `ndr:"inline"`
//     [size_is(n),length_is(n)]       | []T     `ndr:"inline,varying"`
//     DATA_BLOB ident                 | []byte  `ndr:"blob"`
//     [unique] T **ident              | **T     `ndr:"/ref"`
//     [flag(NDR_ALIGN4)] T ident      |  T      `ndr:"flags:align4"`
//     [subcontext(4)] T ident         |  T      `ndr:"subcontext:4"`
//     [switch_is(level)] U ident      |  U      `ndr:"switch_is:Level"`
//
// Defined tags:
//
//     `-`
//         Must comprise the entirety of the tag; the field is skipped.
//         Unexported fields are always skipped.
//
//     `unique`, `ref`, `full`, `relative`, `short_relative`, `inline`
//         Pointer kinds, applicable to pointers and slices. `inline` places
//         the target where the pointer would be, without a referent.
//
//     `varying`
//         Applied to a slice: the array is conformant varying (size, offset
//         and length precede the elements)
//
//     `blob`
//         Applied to a byte slice: a DATA_BLOB, marshalled in place unless a
//         pointer kind is given
//
//     `flags:a|b|c`
//         Sets wire flags (as accepted by ParseFlags) while marshalling the
//         field
//
//     `subcontext:H` or `subcontext:H,S`
//         Marshals the field into a subcontext with a header of H bytes (0, 2,
//         4, or 0xFFFFFC01 for a type serialisation header), optionally of the
//         fixed size S
//
//     `switch_is:Field`
//         The union in this field takes its discriminant from Field, which
//         must be declared earlier in the structure
//
// Field scoped tags (flags, subcontext and switch_is) must precede all others.
//
// Unions are defined as structs where the fields are annotated with union
// tags:
//
//                                          IDL | Go
//     -----------------------------------------+-------------------------------------------
//     union my_union switch(uint32 level) {    | type MyUnion struct {
//                                              |   Level   uint32 `ndr:"union:switch"`
//       case 0:  uint32 a;                     |   A       uint32 `ndr:"union:0"`
//       case 1:  T *b;                         |   B       *T     `ndr:"union:1"`
//       default: ;                             |   Default struct{} `ndr:"union:default"`
//     }                                        | }
//
//     `union:switch`
//          The enclosing structure is an encapsulated union (the discriminant
//          is on the wire) and this field is the discriminant.
//
//     `union:discriminant`
//          The enclosing structure is a non-encapsulated union: the
//          discriminant is supplied by the containing structure (see
//          `switch_is`) or to MarshalUnion/UnmarshalUnion, and is stored in
//          this field when decoding.
//
//     `union:A,B,C`, `union:true`, `union:false`, `union:default`
//          Specifies which case(s) this field corresponds to.
//
// You can specify custom behaviour for your type using the Marshaler interface.
// If implemented, it replaces the default behaviour. You can override behaviour
// for third party types by implementing and registering a Codec with a Coder.
//
// To avoid confusion and conflicts between different packages, it is not
// possible to register new codecs or compressors with the default (global)
// Coder.
package ndr

import ndrinterfaces "go.e43.eu/ndr/interfaces"

// interface Coder is the top-level interface to the NDR library
//
// A coder (which may be safely used from multiple threads) provides the ability
// to marshal objects to and from NDR. It also contains a repository of Codecs
// which know how to marshal various types, and of Compressors
type Coder = ndrinterfaces.Coder

// interface Encoder is the interface to the NDR encoder (push context)
type Encoder = ndrinterfaces.Encoder

// interface Decoder is the interface to the NDR decoder (pull context)
type Decoder = ndrinterfaces.Decoder

type Codec = ndrinterfaces.Codec

type Marshaler = ndrinterfaces.Marshaler

type FunctionMarshaler = ndrinterfaces.FunctionMarshaler

type Compressor = ndrinterfaces.Compressor

// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

package ndr

import (
	"encoding/gob"
	"encoding/json"
	"io/ioutil"
	"reflect"
	"testing"
)

func EncodeBenchmarkCommon(b *testing.B, ob interface{}) {
	b.Run("NDRMarshal", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_, err := Marshal(ob)
			if err != nil {
				b.Fatalf("Marshal: %s", err)
			}
		}
	})

	b.Run("NDRSize", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_, err := Size(ob, 0)
			if err != nil {
				b.Fatalf("Size: %s", err)
			}
		}
	})

	b.Run("NDRMarshalInto", func(b *testing.B) {
		n, err := Size(ob, 0)
		if err != nil {
			b.Fatalf("Size: %s", err)
		}
		buf := make([]byte, n)
		for i := 0; i < b.N; i++ {
			if err := MarshalInto(buf, ob); err != nil {
				b.Fatalf("MarshalInto: %s", err)
			}
		}
	})

	b.Run("JSONMarshal", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_, err := json.Marshal(ob)
			if err != nil {
				b.Fatalf("json.Marshal: %s", err)
			}
		}
	})

	b.Run("GobEncoderDiscard", func(b *testing.B) {
		w := gob.NewEncoder(ioutil.Discard)
		for i := 0; i < b.N; i++ {
			err := w.Encode(ob)
			if err != nil {
				b.Fatalf("Encode: %s", err)
			}
		}
	})
}

func DecodeBenchmarkCommon(b *testing.B, ob interface{}) {
	buf, err := Marshal(ob)
	if err != nil {
		b.Fatalf("Marshal: %s", err)
	}
	t := reflect.TypeOf(ob)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	b.Run("NDRUnmarshal", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			if err := Unmarshal(buf, reflect.New(t).Interface()); err != nil {
				b.Fatalf("Unmarshal: %s", err)
			}
		}
	})

	jbuf, err := json.Marshal(ob)
	if err != nil {
		b.Fatalf("json.Marshal: %s", err)
	}
	b.Run("JSONUnmarshal", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			if err := json.Unmarshal(jbuf, reflect.New(t).Interface()); err != nil {
				b.Fatalf("json.Unmarshal: %s", err)
			}
		}
	})
}

func BenchmarkUint32Encode(b *testing.B) {
	EncodeBenchmarkCommon(b, uint32(123))
}

func BenchmarkHyperEncode(b *testing.B) {
	EncodeBenchmarkCommon(b, int64(768))
}

func BenchmarkStringEncode(b *testing.B) {
	EncodeBenchmarkCommon(b, "Hello World")
}

type benchStruct struct {
	X uint32
	Y int64
	S string
	O []byte  `ndr:"blob"`
	P *uint32 `json:",omitempty"`
	Q *uint32 `json:",omitempty"`
}

func newBenchStruct() *benchStruct {
	return &benchStruct{
		X: 123456,
		Y: 12345678,
		S: "Hello Encoders",
		O: []byte("Byte Slice"),
		P: new(uint32),
	}
}

func BenchmarkSimpleStructEncode(b *testing.B) {
	EncodeBenchmarkCommon(b, newBenchStruct())
}

func BenchmarkSimpleStructDecode(b *testing.B) {
	DecodeBenchmarkCommon(b, newBenchStruct())
}

type benchS1 struct {
	Frob uint32
	Glob uint32
}

type benchS2 struct {
	Foo uint32
	Bar string
}

type benchS3 struct {
	Foo *benchS1 `json:"foo,omitempty"`
	Baz uint32
}

type benchUnion struct {
	Switch uint32   `ndr:"union:switch"`
	S1     *benchS1 `ndr:"union:0" json:"s1,omitempty"`
	S2     *benchS2 `ndr:"union:1" json:"s2,omitempty"`
	S3     *benchS3 `ndr:"union:2" json:"s3,omitempty"`
}

type benchUnions struct {
	U []benchUnion
}

func newBenchUnions() *benchUnions {
	return &benchUnions{U: []benchUnion{
		{Switch: 0, S1: &benchS1{123, 456}},
		{Switch: 1, S2: &benchS2{789, "A string"}},
		{Switch: 2, S3: &benchS3{&benchS1{65535, 1024}, 512}},
		{Switch: 1, S2: &benchS2{789, "A second string"}},
		{Switch: 2, S3: &benchS3{nil, 256}},
	}}
}

func BenchmarkUnionStructsEncode(b *testing.B) {
	EncodeBenchmarkCommon(b, newBenchUnions())
}

func BenchmarkUnionStructsDecode(b *testing.B) {
	DecodeBenchmarkCommon(b, newBenchUnions())
}

type relBenchEntry struct {
	Name  *uint32 `ndr:"relative"`
	Value *uint32 `ndr:"relative"`
	Flags uint32
}

func BenchmarkRelativeEncode(b *testing.B) {
	entries := make([]relBenchEntry, 16)
	for i := range entries {
		n, v := uint32(i), uint32(i*2)
		entries[i] = relBenchEntry{Name: &n, Value: &v}
	}
	EncodeBenchmarkCommon(b, &struct{ E []relBenchEntry }{entries})
}

// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

package tags

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ndrinterfaces "go.e43.eu/ndr/interfaces"
)

var (
	u32Type    = reflect.TypeOf(uint32(0))
	u32PtrType = reflect.TypeOf((*uint32)(nil))
)

func parse(t *testing.T, typ reflect.Type, s string) NDRTag {
	t.Helper()
	notUnion := NotInUnion
	tag, err := ParseTag(typ, s, &notUnion)
	require.NoError(t, err)
	return tag
}

func parseErr(typ reflect.Type, s string) error {
	isUnion := MaybeInUnion
	_, err := ParseTag(typ, s, &isUnion)
	return err
}

func TestParseLayers(t *testing.T) {
	assert.True(t, parse(t, u32Type, "").Empty())
	assert.Equal(t, Skip, parse(t, u32Type, "-").Kind())

	assert.Equal(t, NDRTag{byte(Unique)}, parse(t, u32PtrType, "unique"))
	assert.Equal(t, NDRTag{byte(Inline)}, parse(t, u32PtrType, " inline "))

	assert.Equal(t,
		NDRTag{byte(Unique), byte(Noop), byte(Ref)},
		parse(t, reflect.TypeOf((**uint16)(nil)), "unique/ref"))

	assert.Equal(t,
		NDRTag{byte(Unique), byte(Varying)},
		parse(t, reflect.TypeOf([]uint32(nil)), "unique,varying"))

	assert.Equal(t,
		NDRTag{byte(Noop), byte(Relative)},
		parse(t, reflect.TypeOf([]*uint32(nil)), "/relative"))

	assert.Equal(t,
		NDRTag{byte(Blob)},
		parse(t, reflect.TypeOf([]byte(nil)), "blob"))
}

func TestParseLayerErrors(t *testing.T) {
	tests := []struct {
		name string
		typ  reflect.Type
		tag  string
	}{
		{"VaryingScalar", u32Type, "varying"},
		{"BlobOfUint16", reflect.TypeOf([]uint16(nil)), "blob"},
		{"PointerKindOnScalar", u32Type, "unique"},
		{"PointerKindOnArray", reflect.TypeOf([4]byte{}), "unique"},
		{"PointerKindOnElem", u32PtrType, "unique/unique"},
		{"TrailingLayers", u32PtrType, "unique//"},
		{"ModifierOrder", reflect.TypeOf([]uint32(nil)), "varying,unique"},
		{"Unknown", u32Type, "frobnicate"},
		{"ScopedAfterLayer", u32PtrType, "unique/flags:noalign"},
		{"UnionOutsideUnion", u32Type, "union:1"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			assert.Error(t, parseErr(tc.typ, tc.tag))
		})
	}
}

func TestParseFieldScoped(t *testing.T) {
	tag := parse(t, u32PtrType, "flags:align4|0x100/unique")
	require.Equal(t, Flags, tag.Kind())
	f := ndrinterfaces.FlagAlign4 | 0x100
	assert.Equal(t, uint32(f), tag.Value(1))
	assert.Equal(t, uint32(f>>32), tag.Value(2))
	assert.Equal(t, Unique, tag.Next().Kind())

	tag = parse(t, u32Type, "subcontext:4,8")
	require.Equal(t, Subcontext, tag.Kind())
	i, n := tag.ValueRange()
	assert.Equal(t, 1, i)
	assert.Equal(t, 3, n)
	assert.Equal(t, uint32(4), tag.Value(1))
	assert.Equal(t, uint32(8), tag.Value(2))

	tag = parse(t, u32Type, "subcontext:0xFFFFFC01")
	assert.Equal(t, uint32(ndrinterfaces.SubcontextTypeSerialization), tag.Value(1))

	// switch_is is hoisted before the other scoped entries
	tag = parse(t, u32Type, "flags:noalign/switch_is:Level")
	require.Equal(t, SwitchIs, tag.Kind())
	assert.Equal(t, "Level", tag.StringValue())
	assert.Equal(t, Flags, tag.Next().Kind())

	assert.Error(t, parseErr(u32Type, "subcontext:3"))
	assert.Error(t, parseErr(u32Type, "subcontext:4,8,12"))
	assert.Error(t, parseErr(u32Type, "switch_is:"))
	assert.Error(t, parseErr(u32Type, "flags:nonsense"))
}

func TestParseUnion(t *testing.T) {
	isUnion := MaybeInUnion
	tag, err := ParseTag(reflect.TypeOf(uint16(0)), "union:switch", &isUnion)
	require.NoError(t, err)
	assert.Equal(t, UnionSwitch, tag.Kind())
	assert.Equal(t, InUnion, isUnion)

	tag, err = ParseTag(u32PtrType, "union:1, 2/unique", &isUnion)
	require.NoError(t, err)
	require.Equal(t, UnionCases, tag.Kind())
	i, n := tag.ValueRange()
	var cases []uint32
	for ; i < n; i++ {
		cases = append(cases, tag.Value(i))
	}
	assert.Equal(t, []uint32{1, 2}, cases)
	assert.Equal(t, Unique, tag.Next().Kind())

	tag, err = ParseTag(reflect.TypeOf(struct{}{}), "union:default", &isUnion)
	require.NoError(t, err)
	assert.Equal(t, UnionDefault, tag.Kind())

	tag, err = ParseTag(u32Type, "union:true", &isUnion)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), tag.Value(1))

	// Every union field is tagged
	_, err = ParseTag(u32Type, "", &isUnion)
	assert.Error(t, err)

	// Only one switch
	_, err = ParseTag(u32Type, "union:discriminant", &isUnion)
	assert.Error(t, err)

	isUnion = MaybeInUnion
	_, err = ParseTag(reflect.TypeOf(""), "union:switch", &isUnion)
	assert.Error(t, err, "strings cannot be discriminants")

	isUnion = MaybeInUnion
	_, err = ParseTag(u32Type, "", &isUnion)
	require.NoError(t, err)
	assert.Equal(t, NotInUnion, isUnion)
}

func TestTagManipulation(t *testing.T) {
	var tag NDRTag
	tag = tag.Append(Flags, 1, 0).Append(Unique).Append(Noop).AppendString(SwitchIs, "X").Append(Noop)

	trimmed := tag.Trimmed()
	assert.Equal(t, len(tag)-1, len(trimmed))
	assert.Equal(t, "[c1](00000001, 00000000);[2];[0];[40](\"X\")", trimmed.String())

	assert.Panics(t, func() { tag.Append(Unique, 1) })
	assert.Panics(t, func() { tag.AppendString(Unique, "x") })
}

func TestParseFlags(t *testing.T) {
	f, err := ParseFlags("align4 | str_ascii")
	require.NoError(t, err)
	assert.Equal(t, ndrinterfaces.FlagAlign4|ndrinterfaces.FlagStrASCII, f)

	f, err = ParseFlags("0x10|ndr64")
	require.NoError(t, err)
	assert.Equal(t, ndrinterfaces.Flags(0x10)|ndrinterfaces.FlagNDR64, f)

	_, err = ParseFlags("nope")
	assert.Error(t, err)
}

// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

package coder

import (
	"fmt"
	"reflect"

	ndrinterfaces "go.e43.eu/ndr/interfaces"
	"go.e43.eu/ndr/internal/errors"
	"go.e43.eu/ndr/internal/tags"
)

type field struct {
	index int
	name  string
	codec xCodec

	// Position (in the fields of the containing struct) of the field which
	// holds the discriminant of this union field, or -1
	switchIs int
	isPtr    bool
}

type structCodec struct {
	name     string
	fields   []field
	align    int
	relative bool
	limit    uint32
}

var _ xCodec = &structCodec{}

type unionCodec struct {
	name         string
	encapsulated bool
	switchField  field
	arms         []field
	cases        map[uint32]int
	defaultArm   int
	armAlign     int
	limit        uint32
}

var _ xCodec = &unionCodec{}

// switchSetter is implemented by both encoders and decoders
type switchSetter interface {
	SetSwitchValue(key interface{}, v uint32) error
}

func makeField(cr *Coder, f reflect.StructField, tag tags.NDRTag) field {
	return field{
		index:    f.Index[0],
		name:     f.Name,
		codec:    cr.getCodec(f.Type, tag),
		switchIs: -1,
	}
}

func switchValueOf(v reflect.Value) uint32 {
	switch v.Kind() {
	case reflect.Bool:
		if v.Bool() {
			return 1
		}
		return 0
	case reflect.Int8, reflect.Int16, reflect.Int32:
		return uint32(v.Int())
	default:
		return uint32(v.Uint())
	}
}

func setSwitchValueOf(v reflect.Value, level uint32) {
	switch v.Kind() {
	case reflect.Bool:
		v.SetBool(level != 0)
	case reflect.Int8, reflect.Int16, reflect.Int32:
		v.SetInt(int64(int32(level)))
	default:
		v.SetUint(uint64(level))
	}
}

func makeStructCodec(cr *Coder, t reflect.Type) xCodec {
	var (
		f   reflect.StructField
		tag tags.NDRTag
		err error
	)

	// Iterate until we figure out if we're a union or not
	isUnion := tags.MaybeInUnion
	i, fieldCount := 0, t.NumField()
	for ; i < fieldCount && isUnion == tags.MaybeInUnion; i++ {
		f = t.Field(i)
		if f.PkgPath != "" {
			continue
		}

		tag, err = tags.ParseStructTag(f.Type, f.Tag, &isUnion)
		if err != nil {
			return &errorCodec{fmt.Errorf("Parsing tag of field '%s' of '%s': %v",
				f.Name, t, err)}
		}

		switch {
		case tag.Kind() == tags.Skip:
			continue
		case isUnion == tags.MaybeInUnion:
			panic("We found an unskipped field but somehow don't know if we're a union or not")
		}
	}

	switch isUnion {
	case tags.MaybeInUnion:
		// No (unskipped) fields: an empty structure
		return &structCodec{name: t.Name(), align: 1, limit: cr.recursionLimit()}

	case tags.NotInUnion:
		c := &structCodec{
			name:   t.Name(),
			fields: make([]field, 0, fieldCount),
			align:  1,
			limit:  cr.recursionLimit(),
		}

		if err := c.addField(cr, t, f, tag); err != nil {
			return &errorCodec{err}
		}

		for ; i < fieldCount; i++ {
			f = t.Field(i)
			if f.PkgPath != "" {
				continue
			}

			tag, err = tags.ParseStructTag(f.Type, f.Tag, &isUnion)
			if err != nil {
				return &errorCodec{fmt.Errorf("Parsing tag of field '%s' of '%s': %v",
					f.Name, t, err)}
			}

			if tag.Kind() == tags.Skip {
				continue
			}

			if err := c.addField(cr, t, f, tag); err != nil {
				return &errorCodec{err}
			}
		}

		return c

	case tags.InUnion:
		// f is our switch; every following field is prefixed by a case or
		// default tag
		c := &unionCodec{
			name:         t.Name(),
			encapsulated: tag.Kind() == tags.UnionSwitch,
			switchField:  makeField(cr, f, tag.Next()),
			cases:        make(map[uint32]int, fieldCount-1),
			defaultArm:   -1,
			armAlign:     1,
			limit:        cr.recursionLimit(),
		}

		for ; i < fieldCount; i++ {
			f = t.Field(i)
			if f.PkgPath != "" {
				continue
			}

			tag, err = tags.ParseStructTag(f.Type, f.Tag, &isUnion)
			if err != nil {
				return &errorCodec{fmt.Errorf("Parsing tag of field '%s' of '%s': %v",
					f.Name, t, err)}
			}

			if tag.Kind() == tags.Skip {
				continue
			}

			arm := len(c.arms)
			c.arms = append(c.arms, makeField(cr, f, tag.Next()))
			c.armAlign = maxAlignment(c.armAlign, codecAlignment(c.arms[arm].codec))

			switch tag.Kind() {
			case tags.UnionCases:
				for j, e := tag.ValueRange(); j < e; j++ {
					v := tag.Value(j)
					if _, ok := c.cases[v]; ok {
						return &errorCodec{fmt.Errorf("Union value 0x%08x of %s duplicated", v, t)}
					}
					c.cases[v] = arm
				}

			case tags.UnionDefault:
				if c.defaultArm != -1 {
					return &errorCodec{fmt.Errorf("Default case of %s duplicated", t)}
				}
				c.defaultArm = arm
			}
		}

		return c

	default:
		panic("unreachable")
	}
}

func (c *structCodec) addField(cr *Coder, t reflect.Type, f reflect.StructField, tag tags.NDRTag) error {
	switchIs := -1
	if tag.Kind() == tags.SwitchIs {
		name := tag.StringValue()
		for j, sf := range c.fields {
			if sf.name == name {
				switchIs = j
			}
		}

		if switchIs == -1 {
			return fmt.Errorf("Field '%s' of '%s' switches on '%s', which must be an earlier field",
				f.Name, t, name)
		}
		if sf, _ := t.FieldByName(name); !isSwitchKind(sf.Type.Kind()) {
			return fmt.Errorf("Field '%s' of '%s' of type %s cannot be a union discriminant",
				name, t, sf.Type)
		}
		tag = tag.Next()
	}

	fld := makeField(cr, f, tag)
	fld.switchIs = switchIs
	fld.isPtr = isPointerCodec(fld.codec)

	c.align = maxAlignment(c.align, codecAlignment(fld.codec))
	c.relative = c.relative || codecUsesRelative(fld.codec)
	c.fields = append(c.fields, fld)
	return nil
}

func isSwitchKind(k reflect.Kind) bool {
	switch k {
	case reflect.Bool, reflect.Int8, reflect.Int16, reflect.Int32,
		reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return true
	default:
		return false
	}
}

func isPointerCodec(c xCodec) bool {
	switch c := c.(type) {
	case *ptrCodec:
		return c.kind != tags.Inline
	case *flagsCodec:
		return isPointerCodec(c.inner)
	default:
		return false
	}
}

func (c *structCodec) alignment() int {
	return c.align
}

// setSwitch passes the discriminant of union field f to it. Inline unions
// receive it in every pass; the target of a pointer only in the buffers pass
func (c *structCodec) setSwitch(ctx switchSetter, v reflect.Value, f *field, pass ndrinterfaces.ScopeFlags) error {
	if f.switchIs < 0 {
		return nil
	}

	fv := v.Field(f.index)
	var key interface{}
	if f.isPtr {
		if pass != ndrinterfaces.Buffers || fv.IsNil() {
			return nil
		}
		key = fv.Interface()
	} else {
		key = fv.Addr().Interface()
	}

	return ctx.SetSwitchValue(key, switchValueOf(v.Field(c.fields[f.switchIs].index)))
}

// bufferField returns the j-th field in the order in which buffers are
// marshalled
func (c *structCodec) bufferField(j int, flags ndrinterfaces.Flags) *field {
	if flags&ndrinterfaces.FlagRelativeReverse != 0 {
		j = len(c.fields) - 1 - j
	}
	return &c.fields[j]
}

func (c *structCodec) Encode(e ndrinterfaces.Encoder, flags ndrinterfaces.ScopeFlags, v reflect.Value) error {
	if err := e.RecursionCheck(c.limit); err != nil {
		return errors.WithFieldError(err, c.name)
	}

	err := c.encode(e, flags, addressable(v))
	if uerr := e.RecursionUnwind(); err == nil {
		err = uerr
	}
	return err
}

func (c *structCodec) encode(e ndrinterfaces.Encoder, flags ndrinterfaces.ScopeFlags, v reflect.Value) error {
	key := v.Addr().Interface()

	savedBase := e.RelativeBase()
	defer e.RestoreRelativeBase(savedBase)

	if flags&ndrinterfaces.Scalars != 0 {
		if err := e.Align(c.align); err != nil {
			return errors.WithFieldError(err, c.name)
		}
		if c.relative {
			if err := e.SetupRelativeBase1(key, e.Offset()); err != nil {
				return errors.WithFieldError(err, c.name)
			}
		}

		for i := range c.fields {
			f := &c.fields[i]
			if err := c.setSwitch(e, v, f, ndrinterfaces.Scalars); err != nil {
				return errors.WithFieldError(err, c.name, f.name)
			}
			if err := f.codec.Encode(e, ndrinterfaces.Scalars, v.Field(f.index)); err != nil {
				return errors.WithFieldError(err, c.name, f.name)
			}
		}

		if err := e.TrailerAlign(c.align); err != nil {
			return errors.WithFieldError(err, c.name)
		}
	}

	if flags&ndrinterfaces.Buffers != 0 {
		if c.relative {
			if err := e.SetupRelativeBase2(key); err != nil {
				return errors.WithFieldError(err, c.name)
			}
		}

		for j := range c.fields {
			f := c.bufferField(j, e.Flags())
			if err := c.setSwitch(e, v, f, ndrinterfaces.Buffers); err != nil {
				return errors.WithFieldError(err, c.name, f.name)
			}
			if err := f.codec.Encode(e, ndrinterfaces.Buffers, v.Field(f.index)); err != nil {
				return errors.WithFieldError(err, c.name, f.name)
			}
		}
	}
	return nil
}

func (c *structCodec) Decode(d ndrinterfaces.Decoder, flags ndrinterfaces.ScopeFlags, v reflect.Value) error {
	if err := d.RecursionCheck(c.limit); err != nil {
		return errors.WithFieldError(err, c.name)
	}

	err := c.decode(d, flags, v)
	if uerr := d.RecursionUnwind(); err == nil {
		err = uerr
	}
	return err
}

func (c *structCodec) decode(d ndrinterfaces.Decoder, flags ndrinterfaces.ScopeFlags, v reflect.Value) error {
	key := v.Addr().Interface()

	savedBase := d.RelativeBase()
	defer d.RestoreRelativeBase(savedBase)

	if flags&ndrinterfaces.Scalars != 0 {
		if err := d.Align(c.align); err != nil {
			return errors.WithFieldError(err, c.name)
		}
		if c.relative {
			if err := d.SetupRelativeBase1(key, d.Offset()); err != nil {
				return errors.WithFieldError(err, c.name)
			}
		}

		for i := range c.fields {
			f := &c.fields[i]
			if err := c.setSwitch(d, v, f, ndrinterfaces.Scalars); err != nil {
				return errors.WithFieldError(err, c.name, f.name)
			}
			if err := f.codec.Decode(d, ndrinterfaces.Scalars, v.Field(f.index)); err != nil {
				return errors.WithFieldError(err, c.name, f.name)
			}
		}

		if err := d.TrailerAlign(c.align); err != nil {
			return errors.WithFieldError(err, c.name)
		}
	}

	if flags&ndrinterfaces.Buffers != 0 {
		if c.relative {
			if err := d.SetupRelativeBase2(key); err != nil {
				return errors.WithFieldError(err, c.name)
			}
		}

		for j := range c.fields {
			f := c.bufferField(j, d.Flags())
			if err := c.setSwitch(d, v, f, ndrinterfaces.Buffers); err != nil {
				return errors.WithFieldError(err, c.name, f.name)
			}
			if err := f.codec.Decode(d, ndrinterfaces.Buffers, v.Field(f.index)); err != nil {
				return errors.WithFieldError(err, c.name, f.name)
			}
		}
	}
	return nil
}

func (c *unionCodec) alignment() int {
	if c.encapsulated {
		return maxAlignment(codecAlignment(c.switchField.codec), c.armAlign)
	}
	return c.armAlign
}

// arm returns the arm selected by level
func (c *unionCodec) arm(level uint32) (*field, error) {
	i, ok := c.cases[level]
	if !ok {
		i = c.defaultArm
	}
	if i < 0 {
		err := errors.New(errors.ErrBadSwitch, "Bad switch value %d", level)
		return nil, errors.WithFieldError(err, c.name, "?", fmt.Sprintf("union:0x%x", level))
	}
	return &c.arms[i], nil
}

// encodeLevel returns the discriminant to encode. A union without a wire
// discriminant takes it from the value set by its container, if any, and
// otherwise from its discriminant field
func (c *unionCodec) encodeLevel(e ndrinterfaces.Encoder, v reflect.Value) (uint32, error) {
	swv := v.Field(c.switchField.index)
	if c.encapsulated {
		return switchValueOf(swv), nil
	}

	level, err := e.StealSwitchValue(v.Addr().Interface())
	switch {
	case err == nil:
		return level, nil
	case errors.CodeOf(err) == errors.ErrToken:
		return switchValueOf(swv), nil
	default:
		return 0, err
	}
}

func (c *unionCodec) Encode(e ndrinterfaces.Encoder, flags ndrinterfaces.ScopeFlags, v reflect.Value) error {
	if err := e.RecursionCheck(c.limit); err != nil {
		return errors.WithFieldError(err, c.name)
	}

	err := c.encode(e, flags, addressable(v))
	if uerr := e.RecursionUnwind(); err == nil {
		err = uerr
	}
	return err
}

func (c *unionCodec) encode(e ndrinterfaces.Encoder, flags ndrinterfaces.ScopeFlags, v reflect.Value) error {
	level, err := c.encodeLevel(e, v)
	if err != nil {
		return errors.WithFieldError(err, c.name, c.switchField.name, "union:switch")
	}

	arm, err := c.arm(level)
	if err != nil {
		return err
	}
	armCase := fmt.Sprintf("union:0x%x", level)

	if flags&ndrinterfaces.Scalars != 0 {
		if c.encapsulated {
			swv := v.Field(c.switchField.index)
			if err := c.switchField.codec.Encode(e, ndrinterfaces.Scalars, swv); err != nil {
				return errors.WithFieldError(err, c.name, c.switchField.name, "union:switch")
			}
		}

		if err := e.UnionAlign(c.armAlign); err != nil {
			return errors.WithFieldError(err, c.name)
		}
		if err := arm.codec.Encode(e, ndrinterfaces.Scalars, v.Field(arm.index)); err != nil {
			return errors.WithFieldError(err, c.name, arm.name, armCase)
		}
	}

	if flags&ndrinterfaces.Buffers != 0 {
		if err := arm.codec.Encode(e, ndrinterfaces.Buffers, v.Field(arm.index)); err != nil {
			return errors.WithFieldError(err, c.name, arm.name, armCase)
		}
	}
	return nil
}

func (c *unionCodec) Decode(d ndrinterfaces.Decoder, flags ndrinterfaces.ScopeFlags, v reflect.Value) error {
	if err := d.RecursionCheck(c.limit); err != nil {
		return errors.WithFieldError(err, c.name)
	}

	err := c.decode(d, flags, v)
	if uerr := d.RecursionUnwind(); err == nil {
		err = uerr
	}
	return err
}

func (c *unionCodec) decode(d ndrinterfaces.Decoder, flags ndrinterfaces.ScopeFlags, v reflect.Value) error {
	swv := v.Field(c.switchField.index)

	switch {
	case !c.encapsulated:
		level, err := d.StealSwitchValue(v.Addr().Interface())
		if err != nil {
			return errors.WithFieldError(err, c.name, c.switchField.name, "union:discriminant")
		}
		setSwitchValueOf(swv, level)

	case flags&ndrinterfaces.Scalars != 0:
		if err := c.switchField.codec.Decode(d, ndrinterfaces.Scalars, swv); err != nil {
			return errors.WithFieldError(err, c.name, c.switchField.name, "union:switch")
		}
	}

	level := switchValueOf(swv)
	arm, err := c.arm(level)
	if err != nil {
		return err
	}
	armCase := fmt.Sprintf("union:0x%x", level)

	if flags&ndrinterfaces.Scalars != 0 {
		if err := d.UnionAlign(c.armAlign); err != nil {
			return errors.WithFieldError(err, c.name)
		}
		if err := arm.codec.Decode(d, ndrinterfaces.Scalars, v.Field(arm.index)); err != nil {
			return errors.WithFieldError(err, c.name, arm.name, armCase)
		}
	}

	if flags&ndrinterfaces.Buffers != 0 {
		if err := arm.codec.Decode(d, ndrinterfaces.Buffers, v.Field(arm.index)); err != nil {
			return errors.WithFieldError(err, c.name, arm.name, armCase)
		}
	}
	return nil
}

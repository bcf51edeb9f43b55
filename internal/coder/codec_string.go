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

// Strings which have not been given any string flags are conformant varying
// UTF-16 strings
const defaultStringFlags = ndrinterfaces.FlagStrLen4 | ndrinterfaces.FlagStrSize4

// stringCodec handles strings, framed according to the string flags in effect
type stringCodec struct{}

var stringCodecI xCodec = stringCodec{}

func makeStringCodec(t reflect.Type, tag tags.NDRTag) xCodec {
	switch {
	case tag.Empty():
		return stringCodecI
	case !tag.Next().Empty():
		return &errorCodec{fmt.Errorf("string must not have any following tags (%s)", tag)}
	default:
		return &errorCodec{errors.InvalidTagForTypeError{T: t, Tag: tag}}
	}
}

func (stringCodec) alignment() int { return 4 }

// withStringFlags applies the default string flags if none are set, and
// returns the flags to restore afterwards
func withStringFlags(f ndrinterfaces.Flags, set func(ndrinterfaces.Flags)) (ndrinterfaces.Flags, bool) {
	if f&stringFraming != 0 || f&ndrinterfaces.FlagRemaining != 0 {
		return f, false
	}
	set(f | defaultStringFlags)
	return f, true
}

func (stringCodec) Encode(e ndrinterfaces.Encoder, flags ndrinterfaces.ScopeFlags, v reflect.Value) error {
	if flags&ndrinterfaces.Scalars == 0 {
		return nil
	}

	saved, changed := withStringFlags(e.Flags(), e.ReplaceFlags)
	err := e.EncodeString(ndrinterfaces.Scalars, v.String())
	if changed {
		e.ReplaceFlags(saved)
	}
	return err
}

func (stringCodec) Decode(d ndrinterfaces.Decoder, flags ndrinterfaces.ScopeFlags, v reflect.Value) error {
	if flags&ndrinterfaces.Scalars == 0 {
		return nil
	}

	saved, changed := withStringFlags(d.Flags(), d.ReplaceFlags)
	s, err := d.DecodeString(ndrinterfaces.Scalars)
	if changed {
		d.ReplaceFlags(saved)
	}
	if err != nil {
		return err
	}
	v.SetString(s)
	return nil
}

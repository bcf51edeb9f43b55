// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

package ndr

import (
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testDirection int

const (
	bothTest testDirection = iota
	encodeTest
	decodeTest
)

// skip is a sentinel for testcase.TruncErrorIs
var skip = errors.New("skip")

type testcase struct {
	// Name of this test case
	Name string

	// Which directions to run this test in (defaults to both)
	Direction testDirection

	// Wire flags to marshal with
	Flags Flags

	// The object to marshal, or to use for comparison on unmarshalling
	Object interface{}

	// The encoded representation of the object
	Bytes []byte

	// Error expected on en/decode
	EncErrorIs error
	DecErrorIs error

	// Error expected on decoding Bytes less its final byte (ErrBufSize if
	// unset). Set to skip to omit the truncated variant
	TruncErrorIs error

	// Comparator to use (instead of default) after successful decoding
	DecodeComparator func(t *testing.T, expt, actual interface{})
}

// hexBytes builds a byte slice from a list of byte groups; it exists so that
// test vectors can be laid out one wire field per line
func hexBytes(groups ...[]byte) []byte {
	var b []byte
	for _, g := range groups {
		b = append(b, g...)
	}
	return b
}

func RunTestcases(t *testing.T, tcs []testcase) {
	for i := range tcs {
		tc := &tcs[i]
		if tc.DecodeComparator == nil {
			tc.DecodeComparator = func(t *testing.T, l, r interface{}) {
				t.Helper()
				assert.Equal(t, l, r, "unmarshal output should match")
			}
		}
	}

	generatedTestcases := append([]testcase(nil), tcs...)
	t.Parallel()

	// Every successful decode must also fail cleanly on each truncation of
	// its input
	for _, tc := range tcs {
		if tc.Direction == encodeTest || tc.DecErrorIs != nil || len(tc.Bytes) == 0 ||
			tc.TruncErrorIs == skip {
			continue
		}
		tc := tc
		tc.Name += "+truncated"
		tc.Direction = decodeTest
		tc.Bytes = tc.Bytes[:len(tc.Bytes)-1]
		tc.DecErrorIs = tc.TruncErrorIs
		if tc.DecErrorIs == nil {
			tc.DecErrorIs = ErrBufSize
		}

		generatedTestcases = append(generatedTestcases, tc)
	}

	for _, tc := range generatedTestcases {
		tc := tc
		t.Run(tc.Name, func(t *testing.T) {
			t.Parallel()

			if tc.Direction != decodeTest {
				t.Run("Encode", func(t *testing.T) {
					t.Parallel()

					b, err := MarshalFlags(tc.Object, tc.Flags)
					if tc.EncErrorIs != nil {
						require.Error(t, err, "Encoding should have returned an error")
						require.Truef(t, errors.Is(err, tc.EncErrorIs), "Error expected to be %s, but was %s", tc.EncErrorIs, err)
					} else {
						require.NoError(t, err, "Encode should succeed")
						assert.Equal(t, tc.Bytes, b, "Expected written data to match expected")
					}
				})

				// A pointer to the object marshals identically
				t.Run("EncodePtr", func(t *testing.T) {
					t.Parallel()

					v := reflect.ValueOf(tc.Object)
					vp := reflect.New(v.Type())
					vp.Elem().Set(v)

					e := NewEncoder(tc.Flags)
					err := e.Encode(vp.Interface(), ScalarsAndBuffers)
					if tc.EncErrorIs != nil {
						require.Error(t, err, "Encoding should have returned an error")
						require.Truef(t, errors.Is(err, tc.EncErrorIs), "Error expected to be %s, but was %s", tc.EncErrorIs, err)
					} else {
						require.NoError(t, err, "Encode should succeed")
						assert.Equal(t, tc.Bytes, e.Bytes(), "Expected written data to match expected")
					}
				})

				if tc.EncErrorIs == nil {
					t.Run("Size", func(t *testing.T) {
						t.Parallel()

						n, err := Size(tc.Object, tc.Flags)
						require.NoError(t, err)
						assert.GreaterOrEqual(t, n, uint32(len(tc.Bytes)))
					})
				}
			}

			if tc.Direction != encodeTest {
				t.Run("Decode", func(t *testing.T) {
					t.Parallel()

					d, err := NewDecoder(tc.Bytes, tc.Flags)
					require.NoError(t, err)

					// If tc.Object is of type T, then construct new(T)
					tgtp := reflect.New(reflect.TypeOf(tc.Object)).Interface()

					err = d.Decode(tgtp, ScalarsAndBuffers)
					if tc.DecErrorIs != nil {
						if assert.Error(t, err, "Decoding should have returned an error") {
							assert.Truef(t, errors.Is(err, tc.DecErrorIs), "Error expected to be %s, but was %s", tc.DecErrorIs, err)
						} else {
							t.Logf("Returned %+v", tgtp)
						}
					} else {
						require.NoError(t, err, "Decode should succeed")

						// Every byte was consumed, directly or as a relative target
						consumed := d.Offset()
						if h := d.RelativeHighestOffset(); h > consumed {
							consumed = h
						}
						assert.Equalf(t, uint32(len(tc.Bytes)), consumed,
							"Decoder left trailing bytes after end: %x", tc.Bytes[consumed:])

						// Dereference the pointer to get a T for comparison purposes
						o := reflect.ValueOf(tgtp).Elem().Interface()
						tc.DecodeComparator(t, o, tc.Object)
					}
				})
			}
		})
	}
}

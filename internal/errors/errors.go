// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

package errors

import (
	"fmt"
	"reflect"
	"strings"

	"go.e43.eu/ndr/internal/tags"
)

// Code identifies the kind of an NDR failure. Codes are themselves errors, so
// they may be used as targets for errors.Is
type Code uint32

const (
	// Array size or length does not match (or exceeds) the expected value
	ErrArraySize Code = iota + 1
	// Union discriminant has no matching arm
	ErrBadSwitch
	// Offset arithmetic would overflow
	ErrOffset
	// Relative pointer out of range or out of order
	ErrRelative
	// Character set conversion failed
	ErrCharCnv
	ErrLength
	ErrSubcontext
	ErrCompression
	// String framing is invalid
	ErrString
	// Malformed input (e.g. non-zero padding or an invalid boolean)
	ErrValidate
	// Read or write past the end of the buffer
	ErrBufSize
	// ErrAlloc, ErrIPv4Address and ErrIPv6Address are never produced; they
	// keep the codes numbered as in libndr
	ErrAlloc
	// Too many tokens
	ErrRange
	// Token not found; this indicates a bug in the caller
	ErrToken
	ErrIPv4Address
	ErrIPv6Address
	ErrInvalidPointer
	// Not all bytes were consumed
	ErrUnreadBytes
	// Value does not fit in the 32-bit representation
	ErrNDR64
	// Scope flags out of range; this indicates a bug in the caller
	ErrFlags
	// As ErrBufSize, but with the number of missing bytes recorded
	ErrIncompleteBuffer
	ErrMaxRecursionExceeded
	// Recursion depth went below zero; this indicates a bug in the caller
	ErrUnderflow
)

var codeDescriptions = map[Code]string{
	ErrArraySize:            "Bad Array Size",
	ErrBadSwitch:            "Bad Switch",
	ErrOffset:               "Offset Error",
	ErrRelative:             "Relative Pointer Error",
	ErrCharCnv:              "Character Conversion Error",
	ErrLength:               "Length Error",
	ErrSubcontext:           "Subcontext Error",
	ErrCompression:          "Compression Error",
	ErrString:               "String Error",
	ErrValidate:             "Validate Error",
	ErrBufSize:              "Buffer Size Error",
	ErrAlloc:                "Alloc Error",
	ErrRange:                "Range Error",
	ErrToken:                "Token Error",
	ErrIPv4Address:          "IPv4 Address Error",
	ErrIPv6Address:          "IPv6 Address Error",
	ErrInvalidPointer:       "Invalid Pointer",
	ErrUnreadBytes:          "Unread Bytes",
	ErrNDR64:                "NDR64 assertion error",
	ErrFlags:                "Invalid flags",
	ErrIncompleteBuffer:     "Incomplete Buffer",
	ErrMaxRecursionExceeded: "Maximum Recursion Exceeded",
	ErrUnderflow:            "Underflow",
}

func (c Code) String() string {
	if d, ok := codeDescriptions[c]; ok {
		return d
	}
	return fmt.Sprintf("Unknown error 0x%08x", uint32(c))
}

func (c Code) Error() string {
	return "ndr: " + c.String()
}

// IsDefect returns true for codes which indicate a bug in the calling code
// rather than malformed input
func (c Code) IsDefect() bool {
	switch c {
	case ErrToken, ErrUnderflow, ErrFlags:
		return true
	default:
		return false
	}
}

// Error is returned by every failing encoder and decoder operation
type Error struct {
	Code Code
	Msg  string

	// For ErrIncompleteBuffer, the number of bytes which were missing
	Missing uint32
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Code.Error()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Code
}

// An incomplete buffer is still a buffer size error
func (e *Error) Is(target error) bool {
	return e.Code == ErrIncompleteBuffer && target == ErrBufSize
}

// New constructs an error with a formatted message
func New(c Code, format string, args ...interface{}) *Error {
	return &Error{Code: c, Msg: fmt.Sprintf(format, args...)}
}

// CodeOf returns the Code of err (or 0 if err is not an NDR error)
func CodeOf(err error) Code {
	switch err := err.(type) {
	case nil:
		return 0
	case Code:
		return err
	case *Error:
		return err.Code
	case FieldError:
		return CodeOf(err.Underlying)
	default:
		return 0
	}
}

type xerror string

func (e xerror) Error() string {
	return string(e)
}

const (
	// Decode expected pointer parameter
	ErrNotPointer = xerror("ndr: Expected pointer parameter")

	// Pointer was unexpectedly nil
	ErrNilPointer = xerror("ndr: Unexpected nil pointer")
)

type InvalidTypeError struct {
	T reflect.Type
}

func (e InvalidTypeError) Error() string {
	return fmt.Sprintf("ndr: Type '%s' unsupported", e.T)
}

type InvalidTagForTypeError struct {
	T   reflect.Type
	Tag tags.NDRTag
}

func (e InvalidTagForTypeError) Error() string {
	return fmt.Sprintf("ndr: Tag '%s' unsupported for type '%s'", e.Tag, e.T)
}

type FieldError struct {
	Underlying error
	Path       string
}

func (err FieldError) Unwrap() error {
	return err.Underlying
}

func (err FieldError) Error() string {
	uerr := strings.TrimPrefix(err.Underlying.Error(), "ndr: ")
	return fmt.Sprintf("ndr: %s (at %s)", uerr, err.Path)
}

func WithFieldError(err error, parts ...string) error {
	if err == nil {
		return nil
	}

	var combined string
	if parts[0] == "" {
		parts[0] = "<anonymous>"
	}

	switch len(parts) {
	case 1:
		combined = parts[0]
	case 3:
		combined = fmt.Sprintf("%s.%s(%s)", parts[0], parts[1], parts[2])
	default:
		combined = strings.Join(parts, ".")
	}

	switch err := err.(type) {
	case FieldError:
		err.Path = fmt.Sprintf("%s %s", combined, err.Path)
		return err
	default:
		return FieldError{err, combined}
	}
}

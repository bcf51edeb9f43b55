// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

package ndr

import "go.e43.eu/ndr/internal/errors"

// Error is returned by failing encoder and decoder operations. Match it
// against the error codes using errors.Is
type Error = errors.Error

// ErrorCode identifies the class of an Error
type ErrorCode = errors.Code

// FieldError locates an error within a structure
type FieldError = errors.FieldError

type InvalidTypeError = errors.InvalidTypeError

type InvalidTagForTypeError = errors.InvalidTagForTypeError

const (
	ErrArraySize            = errors.ErrArraySize
	ErrBadSwitch            = errors.ErrBadSwitch
	ErrOffset               = errors.ErrOffset
	ErrRelative             = errors.ErrRelative
	ErrCharCnv              = errors.ErrCharCnv
	ErrLength               = errors.ErrLength
	ErrSubcontext           = errors.ErrSubcontext
	ErrCompression          = errors.ErrCompression
	ErrString               = errors.ErrString
	ErrValidate             = errors.ErrValidate
	ErrBufSize              = errors.ErrBufSize
	ErrAlloc                = errors.ErrAlloc
	ErrRange                = errors.ErrRange
	ErrToken                = errors.ErrToken
	ErrIPv4Address          = errors.ErrIPv4Address
	ErrIPv6Address          = errors.ErrIPv6Address
	ErrInvalidPointer       = errors.ErrInvalidPointer
	ErrUnreadBytes          = errors.ErrUnreadBytes
	ErrNDR64                = errors.ErrNDR64
	ErrFlags                = errors.ErrFlags
	ErrIncompleteBuffer     = errors.ErrIncompleteBuffer
	ErrMaxRecursionExceeded = errors.ErrMaxRecursionExceeded
	ErrUnderflow            = errors.ErrUnderflow

	// Decode expected pointer parameter
	ErrNotPointer = errors.ErrNotPointer

	// Pointer was unexpectedly nil
	ErrNilPointer = errors.ErrNilPointer
)

// CodeOf returns the code of err, or 0 if err did not come from this package
func CodeOf(err error) ErrorCode {
	return errors.CodeOf(err)
}

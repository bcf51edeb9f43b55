// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

// Package bounds implements the overflow checked offset arithmetic shared by
// the encoder and decoder. Offsets are 32-bit on the wire; every helper
// reports wrap-around instead of silently truncating.
package bounds

import (
	"golang.org/x/exp/constraints"
)

// Padding returns the number of bytes needed to pad offs to a multiple of n.
// n must be a power of two.
func Padding[T constraints.Unsigned](offs, n T) T {
	return (n - (offs & (n - 1))) & (n - 1)
}

// AlignUp rounds offs up to a multiple of n (a power of two). ok is false if
// the result does not fit in 32 bits.
func AlignUp(offs uint32, n uint32) (uint32, bool) {
	if n <= 1 {
		return offs, true
	}
	return Add(offs, Padding(offs, n))
}

// AlignDown rounds offs down to a multiple of n (a power of two)
func AlignDown(offs uint32, n uint32) uint32 {
	if n <= 1 {
		return offs
	}
	return offs &^ (n - 1)
}

// Add returns a+b; ok is false on wrap-around
func Add(a, b uint32) (uint32, bool) {
	s := a + b
	return s, s >= a
}

// Mul returns a*b; ok is false on overflow
func Mul(a, b uint32) (uint32, bool) {
	p := uint64(a) * uint64(b)
	return uint32(p), p <= 0xFFFFFFFF
}

// Within reports whether n bytes starting at offs lie inside a buffer of size
func Within(offs, n, size uint32) bool {
	end, ok := Add(offs, n)
	return ok && end <= size
}

// Missing returns how many bytes past size a read of n bytes at offs needs.
// On wrap-around it saturates.
func Missing(offs, n, size uint32) uint32 {
	end, ok := Add(offs, n)
	switch {
	case !ok:
		return 0xFFFFFFFF - size
	case end <= size:
		return 0
	default:
		return end - size
	}
}

// Max returns the larger of a and b
func Max[T constraints.Ordered](a, b T) T {
	if a > b {
		return a
	}
	return b
}

// Min returns the smaller of a and b
func Min[T constraints.Ordered](a, b T) T {
	if a < b {
		return a
	}
	return b
}

// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

// Package arena provides the allocation scope used by decoders.
//
// All byte data produced while decoding a single call is carved out of the
// chunks of one Arena. Dropping (or resetting) the arena releases the whole
// decoded tree at once; there is no per-field ownership.
package arena

const defaultChunkSize = 4096

// Arena is a bump allocator for byte slices. The zero value is ready to use.
//
// An Arena is not safe for concurrent use.
type Arena struct {
	chunk     []byte
	chunks    int
	allocated int
}

// New returns a new arena
func New() *Arena {
	return new(Arena)
}

// Bytes returns a zeroed slice of length n, allocated from the arena. The
// capacity of the returned slice is n, so appending to it never tramples
// other allocations.
func (a *Arena) Bytes(n int) []byte {
	if n <= 0 {
		return nil
	}

	a.allocated += n

	// Large allocations get their own chunk and leave the current one alone
	if n > defaultChunkSize/4 {
		a.chunks++
		return make([]byte, n)
	}

	if len(a.chunk)+n > cap(a.chunk) {
		a.chunk = make([]byte, 0, defaultChunkSize)
		a.chunks++
	}

	s := len(a.chunk)
	a.chunk = a.chunk[:s+n]
	return a.chunk[s : s+n : s+n]
}

// Copy returns a copy of b allocated from the arena
func (a *Arena) Copy(b []byte) []byte {
	o := a.Bytes(len(b))
	copy(o, b)
	return o
}

// Allocated returns the number of bytes handed out since the arena was
// created or last reset
func (a *Arena) Allocated() int {
	return a.allocated
}

// Chunks returns the number of backing allocations made
func (a *Arena) Chunks() int {
	return a.chunks
}

// Reset forgets every allocation. Slices previously returned remain valid
// (they are owned by the garbage collector) but are no longer accounted to
// this arena.
func (a *Arena) Reset() {
	a.chunk = nil
	a.chunks = 0
	a.allocated = 0
}

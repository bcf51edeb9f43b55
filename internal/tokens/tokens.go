// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

// Package tokens implements the small key/value stores which carry state
// between the two halves of a deferred operation (array sizes read in the
// scalars pass and checked in the buffers pass, relative pointer slots
// written in one place and resolved in another).
//
// Lists are expected to be short and recently stored keys are the most
// likely to be looked up, so lookups scan from the end.
package tokens

import (
	"fmt"
	"reflect"

	"golang.org/x/exp/slices"
)

// MaxListSize is the largest number of tokens a single list may hold
const MaxListSize = 0xFFFF

// ErrFull is returned when storing into a list which holds MaxListSize tokens
type ErrFull struct{}

func (ErrFull) Error() string { return "token list full" }

// ErrNotFound is returned when a key is not present
type ErrNotFound struct {
	Key interface{}
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("token %v not found", e.Key)
}

// ErrKey is returned when a key is not comparable
type ErrKey struct {
	Key interface{}
}

func (e ErrKey) Error() string {
	return fmt.Sprintf("token key of type %T is not comparable", e.Key)
}

type token struct {
	key   interface{}
	value uint32
}

// List is an ordered list of (key, value) tokens. The zero value is an empty list
type List struct {
	tokens []token
}

func isComparable(key interface{}) bool {
	return key == nil || reflect.TypeOf(key).Comparable()
}

// Store appends a token. Keys need not be unique; later tokens shadow earlier ones
func (l *List) Store(key interface{}, value uint32) error {
	if !isComparable(key) {
		return ErrKey{key}
	}
	if len(l.tokens) >= MaxListSize {
		return ErrFull{}
	}
	l.tokens = append(l.tokens, token{key, value})
	return nil
}

func (l *List) find(key interface{}) int {
	if !isComparable(key) {
		return -1
	}
	for i := len(l.tokens) - 1; i >= 0; i-- {
		if l.tokens[i].key == key {
			return i
		}
	}
	return -1
}

// Peek returns the value of the most recent token for key
func (l *List) Peek(key interface{}) (uint32, error) {
	i := l.find(key)
	if i < 0 {
		return 0, ErrNotFound{key}
	}
	return l.tokens[i].value, nil
}

// PeekFunc returns the value of the most recent token whose key satisfies match
func (l *List) PeekFunc(match func(key interface{}) bool) (uint32, error) {
	for i := len(l.tokens) - 1; i >= 0; i-- {
		if match(l.tokens[i].key) {
			return l.tokens[i].value, nil
		}
	}
	return 0, ErrNotFound{}
}

// Has reports whether a token for key is present
func (l *List) Has(key interface{}) bool {
	return l.find(key) >= 0
}

// Retrieve returns the value of the most recent token for key, and removes it
func (l *List) Retrieve(key interface{}) (uint32, error) {
	i := l.find(key)
	if i < 0 {
		return 0, ErrNotFound{key}
	}
	v := l.tokens[i].value
	l.tokens = slices.Delete(l.tokens, i, i+1)
	return v, nil
}

// Len returns the number of tokens held
func (l *List) Len() int {
	return len(l.tokens)
}

// Reset removes every token
func (l *List) Reset() {
	l.tokens = l.tokens[:0]
}

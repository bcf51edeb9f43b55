// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

package tokens

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreRetrieve(t *testing.T) {
	var l List
	a, b := new(int), new(int)

	require.NoError(t, l.Store(a, 1))
	require.NoError(t, l.Store(b, 2))
	require.NoError(t, l.Store(a, 3))
	assert.Equal(t, 3, l.Len())

	v, err := l.Peek(a)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), v, "latest token wins")

	v, err = l.Retrieve(a)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), v)

	v, err = l.Retrieve(a)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), v)

	_, err = l.Retrieve(a)
	assert.Equal(t, ErrNotFound{a}, err)

	assert.True(t, l.Has(b))
	l.Reset()
	assert.False(t, l.Has(b))
}

func TestFull(t *testing.T) {
	var l List
	for i := 0; i < MaxListSize; i++ {
		require.NoError(t, l.Store(i, uint32(i)))
	}
	assert.Equal(t, ErrFull{}, l.Store(-1, 0))
}

func TestUncomparableKey(t *testing.T) {
	var l List
	k := []int{1}
	assert.Equal(t, ErrKey{k}, l.Store(k, 0))

	_, err := l.Peek(k)
	assert.IsType(t, ErrNotFound{}, err)
}

func TestPeekFunc(t *testing.T) {
	var l List
	require.NoError(t, l.Store("abc", 1))
	require.NoError(t, l.Store("abd", 2))
	require.NoError(t, l.Store("xyz", 3))

	v, err := l.PeekFunc(func(k interface{}) bool {
		s, ok := k.(string)
		return ok && s[0] == 'a'
	})
	require.NoError(t, err)
	assert.Equal(t, uint32(2), v)
	assert.Equal(t, 3, l.Len(), "peeking does not remove")

	_, err = l.PeekFunc(func(interface{}) bool { return false })
	assert.IsType(t, ErrNotFound{}, err)
}

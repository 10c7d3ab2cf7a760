// Copyright (C) 2024  The paratreet-ng Authors
//
// SPDX-License-Identifier: GPL-2.0-or-later

package ptkey_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"git.lukeshu.com/paratreet-ng/lib/ptkey"
)

func TestKeyChildParent(t *testing.T) {
	k := ptkey.Root
	for c := 0; c < 8; c++ {
		child := k.Child(c)
		assert.Equal(t, c, child.Octant())
		parent, ok := child.Parent()
		assert.True(t, ok)
		assert.Equal(t, k, parent)
	}
}

func TestKeyRootHasNoParent(t *testing.T) {
	_, ok := ptkey.Root.Parent()
	assert.False(t, ok)
}

func TestKeyDepth(t *testing.T) {
	assert.Equal(t, 0, ptkey.Root.Depth())
	assert.Equal(t, 1, ptkey.Root.Child(3).Depth())
	assert.Equal(t, 2, ptkey.Root.Child(3).Child(7).Depth())
}

func TestKeyIsPrefix(t *testing.T) {
	root := ptkey.Root
	a := root.Child(2)
	b := a.Child(5)
	assert.True(t, ptkey.IsPrefix(root, b))
	assert.True(t, ptkey.IsPrefix(a, b))
	assert.True(t, ptkey.IsPrefix(b, b))
	assert.False(t, ptkey.IsPrefix(b, a))

	other := root.Child(1).Child(5)
	assert.False(t, ptkey.IsPrefix(a, other))
}

func TestKeyCmpOrdering(t *testing.T) {
	a := ptkey.Root.Child(1)
	b := ptkey.Root.Child(2)
	assert.Equal(t, -1, a.Cmp(b))
	assert.Equal(t, 1, b.Cmp(a))
	assert.Equal(t, 0, a.Cmp(a))
}

func TestKeyString(t *testing.T) {
	assert.Equal(t, "0x0000000000000001", ptkey.Root.String())
}

type keyedInt struct {
	k ptkey.Key
	v int
}

func (ki keyedInt) SortKey() ptkey.Key { return ki.k }

func TestBinarySearch(t *testing.T) {
	s := []keyedInt{
		{ptkey.Key(1), 0},
		{ptkey.Key(3), 1},
		{ptkey.Key(3), 2},
		{ptkey.Key(5), 3},
		{ptkey.Key(9), 4},
	}
	assert.Equal(t, 0, ptkey.BinarySearchGE(ptkey.Key(1), s, 0, len(s)))
	assert.Equal(t, 1, ptkey.BinarySearchGE(ptkey.Key(2), s, 0, len(s)))
	assert.Equal(t, 1, ptkey.BinarySearchGE(ptkey.Key(3), s, 0, len(s)))
	assert.Equal(t, 3, ptkey.BinarySearchGE(ptkey.Key(4), s, 0, len(s)))
	assert.Equal(t, 5, ptkey.BinarySearchGE(ptkey.Key(10), s, 0, len(s)))

	assert.Equal(t, 1, ptkey.BinarySearchG(ptkey.Key(1), s, 0, len(s)))
	assert.Equal(t, 3, ptkey.BinarySearchG(ptkey.Key(3), s, 0, len(s)))
	assert.Equal(t, 5, ptkey.BinarySearchG(ptkey.Key(9), s, 0, len(s)))
}

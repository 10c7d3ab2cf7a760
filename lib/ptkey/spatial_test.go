// Copyright (C) 2024  The paratreet-ng Authors
//
// SPDX-License-Identifier: GPL-2.0-or-later

package ptkey_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"git.lukeshu.com/paratreet-ng/lib/ptkey"
)

func TestBoxUnion(t *testing.T) {
	a := ptkey.Box{Min: ptkey.Vector3{X: 0, Y: 0, Z: 0}, Max: ptkey.Vector3{X: 1, Y: 1, Z: 1}}
	b := ptkey.Box{Min: ptkey.Vector3{X: -1, Y: 2, Z: 0.5}, Max: ptkey.Vector3{X: 0.5, Y: 3, Z: 2}}
	u := a.Union(b)
	assert.Equal(t, ptkey.Vector3{X: -1, Y: 0, Z: 0}, u.Min)
	assert.Equal(t, ptkey.Vector3{X: 1, Y: 3, Z: 2}, u.Max)
}

func TestEmptyBoxIsUnionIdentity(t *testing.T) {
	a := ptkey.Box{Min: ptkey.Vector3{X: 1, Y: 2, Z: 3}, Max: ptkey.Vector3{X: 4, Y: 5, Z: 6}}
	u := ptkey.EmptyBox().Union(a)
	assert.Equal(t, a, u)
}

func TestBoxIntersectsSphere(t *testing.T) {
	box := ptkey.Box{Min: ptkey.Vector3{X: 0, Y: 0, Z: 0}, Max: ptkey.Vector3{X: 1, Y: 1, Z: 1}}
	assert.True(t, box.IntersectsSphere(ptkey.Vector3{X: 0.5, Y: 0.5, Z: 0.5}, 0.1))
	assert.True(t, box.IntersectsSphere(ptkey.Vector3{X: 2, Y: 0.5, Z: 0.5}, 1.5))
	assert.False(t, box.IntersectsSphere(ptkey.Vector3{X: 10, Y: 10, Z: 10}, 1))
}

func TestNewFromUnitCoordsDistinctOctants(t *testing.T) {
	seen := map[ptkey.Key]bool{}
	for _, c := range []ptkey.Vector3{
		{X: 0.1, Y: 0.1, Z: 0.1},
		{X: 0.9, Y: 0.1, Z: 0.1},
		{X: 0.1, Y: 0.9, Z: 0.1},
		{X: 0.9, Y: 0.9, Z: 0.9},
	} {
		k := ptkey.NewFromUnitCoords(c)
		assert.False(t, seen[k], "key collision for %v", c)
		seen[k] = true
		assert.True(t, k > ptkey.Root)
	}
}

func TestNewFromUnitCoordsClampsOutOfRange(t *testing.T) {
	assert.NotPanics(t, func() {
		ptkey.NewFromUnitCoords(ptkey.Vector3{X: -1, Y: 2, Z: 0.5})
	})
}

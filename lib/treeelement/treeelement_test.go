// Copyright (C) 2024  The paratreet-ng Authors
//
// SPDX-License-Identifier: GPL-2.0-or-later

package treeelement_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.lukeshu.com/paratreet-ng/lib/ptkey"
	"git.lukeshu.com/paratreet-ng/lib/treeelement"
)

func sumCombiner(a, b int) int { return a + b }

func TestElementCompletesOnSingleTreePieceContribution(t *testing.T) {
	var got int
	var gotKey ptkey.Key
	e := treeelement.New[int](ptkey.Root, func(key ptkey.Key, d int) {
		gotKey = key
		got = d
	})
	e.ReceiveData(sumCombiner, 42, false)
	assert.Equal(t, ptkey.Root, gotKey)
	assert.Equal(t, 42, got)
}

func TestElementWaitsForEightOctants(t *testing.T) {
	completed := false
	var total int
	e := treeelement.New[int](ptkey.Root, func(_ ptkey.Key, d int) {
		completed = true
		total = d
	})
	for i := 0; i < 7; i++ {
		e.ReceiveData(sumCombiner, 1, true)
		assert.False(t, completed)
	}
	e.ReceiveData(sumCombiner, 1, true)
	assert.True(t, completed)
	assert.Equal(t, 8, total)
}

func TestTableGetOrCreateReusesElement(t *testing.T) {
	table := treeelement.NewTable[int]()
	e1 := table.GetOrCreate(ptkey.Root, func(ptkey.Key, int) {})
	e2 := table.GetOrCreate(ptkey.Root, func(ptkey.Key, int) {})
	assert.Same(t, e1, e2)

	_, ok := table.Get(ptkey.Root)
	require.True(t, ok)
}

// Copyright (C) 2024  The paratreet-ng Authors
//
// SPDX-License-Identifier: GPL-2.0-or-later

package decomp_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.lukeshu.com/paratreet-ng/lib/decomp"
	"git.lukeshu.com/paratreet-ng/lib/particle"
	"git.lukeshu.com/paratreet-ng/lib/ptkey"
	"git.lukeshu.com/paratreet-ng/lib/reader"
)

// fakeParticles builds a uniform population of n particles with keys
// spread evenly across the whole key space, for exercising the search
// without a live reader pool.
func fakeParticles(n int) []particle.Particle {
	out := make([]particle.Particle, n)
	span := uint64(1) << 40
	for i := range out {
		out[i] = particle.Particle{Key: ptkey.Key(uint64(i)*span/uint64(n) + 2)}
	}
	return out
}

func countFn(particles []particle.Particle) decomp.CountFn {
	return func(ranges []reader.KeyRange) []int {
		counts := make([]int, len(ranges))
		for i, rng := range ranges {
			for _, p := range particles {
				if p.Key >= rng.From && (rng.To == ^ptkey.Key(0) || p.Key < rng.To) {
					counts[i]++
				}
			}
		}
		return counts
	}
}

func TestFindOctSplittersCoversAllParticles(t *testing.T) {
	particles := fakeParticles(1000)
	splitters := decomp.FindOctSplitters(countFn(particles), 1.0, 50, 20)
	require.NotEmpty(t, splitters)
	assert.Equal(t, len(particles), splitters.TotalParticles())
	require.NoError(t, decomp.Verify(splitters, len(particles)))
}

func TestFindOctSplittersSortedAndDisjoint(t *testing.T) {
	particles := fakeParticles(500)
	splitters := decomp.FindOctSplitters(countFn(particles), 1.0, 30, 20)
	for i := 1; i < len(splitters); i++ {
		assert.True(t, splitters[i-1].From < splitters[i].From)
	}
}

func TestFindOctSplittersRespectsBucketBound(t *testing.T) {
	particles := fakeParticles(2000)
	maxPerTP := 40
	splitters := decomp.FindOctSplitters(countFn(particles), 1.0, maxPerTP, 20)
	for _, s := range splitters {
		assert.LessOrEqual(t, s.N, maxPerTP*2)
	}
}

func TestVerifyDetectsMismatch(t *testing.T) {
	splitters := particle.Splitters{{From: 1, To: 2, N: 5}}
	err := decomp.Verify(splitters, 6)
	assert.Error(t, err)
}

func TestFindOctSplittersTerminatesOnDegenerateInput(t *testing.T) {
	particles := make([]particle.Particle, 0, 1000)
	for i := 0; i < 990; i++ {
		particles = append(particles, particle.Particle{Key: ptkey.Root.Child(0).Child(0).Child(0)})
	}
	for i := 0; i < 10; i++ {
		particles = append(particles, particle.Particle{Key: ptkey.Root.Child(5)})
	}
	splitters := decomp.FindOctSplitters(countFn(particles), 1.0, 50, 15)
	assert.Equal(t, len(particles), splitters.TotalParticles())
}

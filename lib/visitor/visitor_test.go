// Copyright (C) 2024  The paratreet-ng Authors
//
// SPDX-License-Identifier: GPL-2.0-or-later

package visitor_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.lukeshu.com/paratreet-ng/lib/particle"
	"git.lukeshu.com/paratreet-ng/lib/ptkey"
	"git.lukeshu.com/paratreet-ng/lib/tree"
	"git.lukeshu.com/paratreet-ng/lib/visitor"
)

func gridParticles(n int) []particle.Particle {
	out := make([]particle.Particle, n)
	span := uint64(1) << 40
	for i := range out {
		out[i] = particle.Particle{
			Key:  ptkey.Key(uint64(i)*span/uint64(n) + 2),
			Pos:  ptkey.Vector3{X: float64(i), Y: 0, Z: 0},
			Mass: 1,
		}
	}
	return out
}

func buildAndCentroid(t *testing.T, particles []particle.Particle, maxPerLeaf int) (*tree.Node[visitor.CentroidData], []*tree.Node[visitor.CentroidData]) {
	t.Helper()
	b := tree.Builder{TPKey: ptkey.Root, MaxParticlesPerLeaf: maxPerLeaf}
	root, leaves := tree.Build[visitor.CentroidData](b, particles)
	v := visitor.Centroid{Particles: particles}
	tree.Upward[visitor.CentroidData](v, root)
	return root, leaves
}

func TestCentroidConservesMass(t *testing.T) {
	particles := gridParticles(50)
	root, _ := buildAndCentroid(t, particles, 5)
	assert.Equal(t, float64(len(particles)), root.Data.Mass)
	assert.Equal(t, len(particles), root.Data.Count)
}

func TestGravityProducesNonzeroForceOnLine(t *testing.T) {
	particles := gridParticles(64)
	root, leaves := buildAndCentroid(t, particles, 4)

	g := visitor.NewGravity(particles)
	err := tree.Downward[visitor.CentroidData](context.Background(), g, root, leaves, func(context.Context, ptkey.Key, tree.Type, int) (*tree.Node[visitor.CentroidData], error) {
		t.Fatal("unexpected fetch in single-partition test")
		return nil, nil
	})
	require.NoError(t, err)

	var anyNonzero bool
	for _, p := range particles {
		if p.Force.LengthSquared() > 0 {
			anyNonzero = true
			break
		}
	}
	assert.True(t, anyNonzero)
}

func TestDensityAccumulatesNeighbourMass(t *testing.T) {
	particles := gridParticles(20)
	root, leaves := buildAndCentroid(t, particles, 4)

	d := visitor.NewDensity(particles)
	err := tree.Downward[visitor.CentroidData](context.Background(), d, root, leaves, nil)
	require.NoError(t, err)

	for _, p := range particles {
		assert.Greater(t, p.Density, 0.0)
	}
}

func TestCountHistogramsPairDistances(t *testing.T) {
	particles := gridParticles(16)
	root, leaves := buildAndCentroid(t, particles, 4)

	c := visitor.NewCount(particles, visitor.BinEdges{5, 10, 20})
	err := tree.Downward[visitor.CentroidData](context.Background(), c, root, leaves, nil)
	require.NoError(t, err)

	var total int64
	for _, b := range c.Bins {
		total += b
	}
	assert.Equal(t, int64(len(particles)*len(particles)), total)
}

func TestSplineKernelZeroOutsideSupport(t *testing.T) {
	var k visitor.SplineKernel
	assert.Equal(t, 0.0, k.Evaluate(200, 100))
	assert.Greater(t, k.Evaluate(1, 100), 0.0)
}

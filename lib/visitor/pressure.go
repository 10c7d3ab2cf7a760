// Copyright (C) 2024  The paratreet-ng Authors
//
// SPDX-License-Identifier: GPL-2.0-or-later

package visitor

import (
	"math"

	"git.lukeshu.com/paratreet-ng/lib/particle"
	"git.lukeshu.com/paratreet-ng/lib/tree"
)

// Pressure turns each particle's density (computed by a prior Density
// pass) into a pressure-gradient force from its SPH neighbours,
// admissible on the same box-sphere test Density uses.
type Pressure struct {
	Particles   []particle.Particle
	Radius      float64
	Kernel      SplineKernel
	RestDensity float64
	GasConstant float64
}

var _ tree.Visitor[CentroidData] = Pressure{}

// NewPressure returns a Pressure visitor with the reference constants
// used by the original SPH demo (rest density 1000, gas constant 2000).
func NewPressure(particles []particle.Particle) Pressure {
	return Pressure{
		Particles:   particles,
		Radius:      100,
		RestDensity: 1000,
		GasConstant: 2000,
	}
}

func (p Pressure) Node(source, target *tree.Node[CentroidData]) bool {
	return target.Data.Box.IntersectsSphere(source.Data.Centroid, p.Radius)
}

func (p Pressure) Leaf(source, target *tree.Node[CentroidData]) {
	targets := target.Particles(p.Particles)
	sources := source.Particles(p.Particles)
	for ti := range targets {
		pi := p.GasConstant * (targets[ti].Density - p.RestDensity)
		accum := targets[ti].Force
		for _, s := range sources {
			if s.Key == targets[ti].Key {
				continue
			}
			diff := targets[ti].Pos.Sub(s.Pos)
			distSq := diff.LengthSquared()
			if distSq >= p.Radius*p.Radius || s.Density == 0 {
				continue
			}
			dist := math.Sqrt(distSq)
			pj := p.GasConstant * (s.Density - p.RestDensity)
			gradient := p.Kernel.EvaluateGradient(dist, p.Radius)
			scale := s.Mass * (pi + pj) / (2 * s.Density) * gradient
			accum = accum.Add(diff.Scale(-scale))
		}
		targets[ti].Force = accum
	}
}

func (p Pressure) Combine(children []CentroidData) CentroidData {
	return Centroid{}.Combine(children)
}

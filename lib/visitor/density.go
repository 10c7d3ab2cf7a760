// Copyright (C) 2024  The paratreet-ng Authors
//
// SPDX-License-Identifier: GPL-2.0-or-later

package visitor

import (
	"math"

	"git.lukeshu.com/paratreet-ng/lib/particle"
	"git.lukeshu.com/paratreet-ng/lib/tree"
)

// SplineKernel is the cubic spline SPH smoothing kernel, evaluated at
// distance r within a support radius h.
type SplineKernel struct{}

func (SplineKernel) Evaluate(r, h float64) float64 {
	if r < 0 || r > h || h == 0 {
		return 0
	}
	q := r / h
	norm := 1 / (math.Pi * h * h * h)
	switch {
	case q <= 1:
		return norm * (1 - 1.5*q*q + 0.75*q*q*q)
	default:
		d := 2 - q
		return norm * 0.25 * d * d * d
	}
}

// EvaluateGradient is the kernel's derivative with respect to q = r/h
// (zero or negative inside the support), used by Pressure to turn a
// density difference into a force.
func (SplineKernel) EvaluateGradient(r, h float64) float64 {
	if r < 0 || r > h || h == 0 {
		return 0
	}
	q := r / h
	norm := 1 / (math.Pi * h * h * h)
	switch {
	case q <= 1:
		return norm * (-3*q + 2.25*q*q)
	default:
		d := 2 - q
		return -norm * 0.75 * d * d
	}
}

// Density accumulates each particle's SPH density estimate from every
// neighbour within Radius, admissible when the source subtree's
// bounding box comes within Radius of the target's centroid.
type Density struct {
	Particles []particle.Particle
	Radius    float64
	Kernel    SplineKernel
}

var _ tree.Visitor[CentroidData] = Density{}

// NewDensity returns a Density visitor with the reference radius of 100
// simulation-length-units used by the original SPH demo.
func NewDensity(particles []particle.Particle) Density {
	return Density{Particles: particles, Radius: 100}
}

func (d Density) Node(source, target *tree.Node[CentroidData]) bool {
	return target.Data.Box.IntersectsSphere(source.Data.Centroid, d.Radius)
}

func (d Density) Leaf(source, target *tree.Node[CentroidData]) {
	targets := target.Particles(d.Particles)
	sources := source.Particles(d.Particles)
	for ti := range targets {
		var density float64
		for _, s := range sources {
			diff := s.Pos.Sub(targets[ti].Pos)
			distSq := diff.LengthSquared()
			if distSq <= d.Radius*d.Radius {
				density += s.Mass * d.Kernel.Evaluate(math.Sqrt(distSq), d.Radius)
			}
		}
		targets[ti].Density += density
	}
}

func (d Density) Combine(children []CentroidData) CentroidData {
	return Centroid{}.Combine(children)
}

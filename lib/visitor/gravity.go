// Copyright (C) 2024  The paratreet-ng Authors
//
// SPDX-License-Identifier: GPL-2.0-or-later

package visitor

import (
	"math"

	"git.lukeshu.com/paratreet-ng/lib/particle"
	"git.lukeshu.com/paratreet-ng/lib/ptkey"
	"git.lukeshu.com/paratreet-ng/lib/tree"
)

// softening avoids a singular force when two particles coincide.
const softening = 1e-4

// Gravity applies the Barnes-Hut opening-angle criterion: a source
// node's subtree is treated as a single point mass at its centroid
// unless it subtends more than Theta radians as seen from the target,
// in which case the traversal must descend into its children for a
// more accurate approximation.
type Gravity struct {
	Particles []particle.Particle
	Theta     float64
	G         float64
}

var _ tree.Visitor[CentroidData] = Gravity{}

// NewGravity returns a Gravity visitor with the conventional defaults
// (theta=0.5, G=1 in simulation units).
func NewGravity(particles []particle.Particle) Gravity {
	return Gravity{Particles: particles, Theta: 0.5, G: 1}
}

// Node decides, for an internal source against target: if the source
// subtree is far enough (opens at less than Theta radians), apply its
// mass as a single point at its centroid and stop; otherwise signal the
// traversal to descend into its children.
func (g Gravity) Node(source, target *tree.Node[CentroidData]) bool {
	if source.Data.Mass == 0 {
		return false
	}
	size := source.Data.Box.Size().Length()
	dist := source.Data.Centroid.Sub(target.Data.Centroid).Length()
	if dist == 0 {
		return true
	}
	if size/dist > g.Theta {
		return true
	}
	g.approximate(target.Particles(g.Particles), source.Data)
	return false
}

// Leaf runs the direct particle-pair sum once the traversal has
// descended source all the way to a leaf.
func (g Gravity) Leaf(source, target *tree.Node[CentroidData]) {
	g.directSum(target.Particles(g.Particles), source.Particles(g.Particles))
}

// directSum accumulates pairwise forces when the source is itself a
// leaf: used once the traversal has descended all the way down.
func (g Gravity) directSum(targets, sources []particle.Particle) {
	for ti := range targets {
		for _, s := range sources {
			if s.Key == targets[ti].Key {
				continue
			}
			targets[ti].Force = targets[ti].Force.Add(g.forceFrom(targets[ti].Pos, s.Pos, s.Mass))
		}
	}
}

// approximate treats the whole source subtree as a point mass at its
// centroid, the admissible case where Node returned false.
func (g Gravity) approximate(targets []particle.Particle, source CentroidData) {
	for ti := range targets {
		targets[ti].Force = targets[ti].Force.Add(g.forceFrom(targets[ti].Pos, source.Centroid, source.Mass))
	}
}

func (g Gravity) forceFrom(at, from ptkey.Vector3, mass float64) ptkey.Vector3 {
	delta := from.Sub(at)
	distSq := delta.LengthSquared() + softening*softening
	dist := math.Sqrt(distSq)
	magnitude := g.G * mass / distSq
	return delta.Scale(magnitude / dist)
}

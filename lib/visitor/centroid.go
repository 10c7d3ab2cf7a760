// Copyright (C) 2024  The paratreet-ng Authors
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package visitor implements the node/leaf/combine contract every
// traversal runs against: Centroid for upward aggregation, and Gravity,
// Density, Pressure, Count for the downward interaction pass, per §4.H.
package visitor

import (
	"git.lukeshu.com/paratreet-ng/lib/particle"
	"git.lukeshu.com/paratreet-ng/lib/ptkey"
	"git.lukeshu.com/paratreet-ng/lib/tree"
)

// CentroidData is the payload every node in the tree carries: the
// shared currency all visitors read from and the Centroid visitor
// writes during the upward pass, mirroring the original's single
// CentroidData struct used across every visitor.
type CentroidData struct {
	Box      ptkey.Box
	Mass     float64
	Centroid ptkey.Vector3
	Count    int
}

// Centroid computes the upward reduction: each leaf's Data is the mass,
// box, and mass-weighted centroid of its own particles; each internal
// node's Data combines its children's.
type Centroid struct {
	Particles []particle.Particle
}

var _ tree.Visitor[CentroidData] = Centroid{}

func (c Centroid) Node(source, target *tree.Node[CentroidData]) bool { return false }

func (c Centroid) Leaf(source, target *tree.Node[CentroidData]) {
	box := particle.EmptyBoundingBox()
	for _, p := range target.Particles(c.Particles) {
		box = box.Include(p)
	}
	target.Data = CentroidData{
		Box:      box.Box,
		Mass:     box.TotalMass,
		Centroid: weightedCentroid(target.Particles(c.Particles)),
		Count:    box.Count,
	}
}

func (c Centroid) Combine(children []CentroidData) CentroidData {
	var out CentroidData
	out.Box = ptkey.EmptyBox()
	for _, ch := range children {
		out.Box = out.Box.Union(ch.Box)
		out.Centroid = out.Centroid.Add(ch.Centroid.Scale(ch.Mass))
		out.Mass += ch.Mass
		out.Count += ch.Count
	}
	if out.Mass > 0 {
		out.Centroid = out.Centroid.Scale(1 / out.Mass)
	}
	return out
}

func weightedCentroid(particles []particle.Particle) ptkey.Vector3 {
	var sum ptkey.Vector3
	var mass float64
	for _, p := range particles {
		sum = sum.Add(p.Pos.Scale(p.Mass))
		mass += p.Mass
	}
	if mass == 0 {
		return ptkey.Vector3{}
	}
	return sum.Scale(1 / mass)
}

// Copyright (C) 2024  The paratreet-ng Authors
//
// SPDX-License-Identifier: GPL-2.0-or-later

package visitor

import (
	"sync"

	"git.lukeshu.com/paratreet-ng/lib/particle"
	"git.lukeshu.com/paratreet-ng/lib/tree"
)

// BinEdges partitions [0, +inf) into histogram bins by distance; Bins[i]
// covers [BinEdges[i-1], BinEdges[i]), with Bins[0] covering [0,
// BinEdges[0]) and the final bin open-ended.
type BinEdges []float64

// findBin returns the bin index covering the range [lo, hi]: if the
// whole range falls in one bin, that index; if it straddles a boundary
// the pair can't be resolved to a single bin without descending
// further, so -1 signals "keep descending" the way CountVisitor.node's
// idx==-1 sentinel does.
func (e BinEdges) findBin(lo, hi float64) int {
	loBin := e.bucket(lo)
	hiBin := e.bucket(hi)
	if loBin != hiBin {
		return -1
	}
	return loBin
}

func (e BinEdges) bucket(d float64) int {
	for i, edge := range e {
		if d < edge {
			return i
		}
	}
	return len(e)
}

// Count implements the pairwise-distance histogram visitor: node-level
// admissibility separates two subtrees' bounding radii so their whole
// cross product can be attributed to one bin without a particle-level
// scan; leaf level falls back to exact pairwise distances.
type Count struct {
	Particles []particle.Particle
	Edges     BinEdges

	mu   sync.Mutex
	Bins []int64
}

var _ tree.Visitor[CentroidData] = (*Count)(nil)

// NewCount returns a Count visitor with one bin per consecutive pair of
// edges plus an overflow bin for distances beyond the last edge.
func NewCount(particles []particle.Particle, edges BinEdges) *Count {
	return &Count{Particles: particles, Edges: edges, Bins: make([]int64, len(edges)+1)}
}

func radius(data CentroidData) float64 {
	return data.Box.Size().Length() / 2
}

func (c *Count) Node(source, target *tree.Node[CentroidData]) bool {
	if source.Data.Count == 0 || target.Data.Count == 0 {
		return false
	}
	d := source.Data.Centroid.Sub(target.Data.Centroid).Length()
	r1, r2 := radius(source.Data), radius(target.Data)
	idx := c.Edges.findBin(d-r1-r2, d+r1+r2)
	if idx < 0 {
		return true
	}
	c.addBin(idx, int64(source.Data.Count)*int64(target.Data.Count))
	return false
}

func (c *Count) Leaf(source, target *tree.Node[CentroidData]) {
	targets := target.Particles(c.Particles)
	sources := source.Particles(c.Particles)
	for _, t := range targets {
		for _, s := range sources {
			d := t.Pos.Sub(s.Pos).Length()
			c.addBin(c.Edges.bucket(d), 1)
		}
	}
}

func (c *Count) addBin(idx int, n int64) {
	c.mu.Lock()
	c.Bins[idx] += n
	c.mu.Unlock()
}

func (c *Count) Combine(children []CentroidData) CentroidData {
	return Centroid{}.Combine(children)
}

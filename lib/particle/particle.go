// Copyright (C) 2024  The paratreet-ng Authors
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package particle holds the Particle record, its reducible BoundingBox,
// and the Splitter partition produced by decomposition.
package particle

import (
	"fmt"

	"git.lukeshu.com/paratreet-ng/lib/ptkey"
)

// Particle is one body: position, velocity, mass, and the per-iteration
// scratch fields (Density, Force) that visitors accumulate into. Particles
// are totally ordered by Key.
type Particle struct {
	Pos      ptkey.Vector3
	Vel      ptkey.Vector3
	Mass     float64
	Key      ptkey.Key
	Density  float64
	Force    ptkey.Vector3
	Pressure float64
}

// SortKey satisfies ptkey.Keyed, so a []Particle slice can feed
// ptkey.BinarySearchGE/BinarySearchG directly.
func (p Particle) SortKey() ptkey.Key { return p.Key }

// Less orders particles by Key, the order the reader sorts batches into
// before TreePieces merge them.
func (p Particle) Less(other Particle) bool { return p.Key < other.Key }

// Perturb advances position by one leapfrog step of size dt under the
// accumulated force, then clears the per-iteration scratch fields so the
// next tree build starts clean.
func (p *Particle) Perturb(dt float64) {
	if p.Mass == 0 {
		return
	}
	accel := p.Force.Scale(1 / p.Mass)
	p.Vel = p.Vel.Add(accel.Scale(dt))
	p.Pos = p.Pos.Add(p.Vel.Scale(dt))
	p.Force = ptkey.Vector3{}
	p.Density = 0
	p.Pressure = 0
}

func (p Particle) String() string {
	return fmt.Sprintf("Particle{key=%v, pos=%+v, mass=%g}", p.Key, p.Pos, p.Mass)
}

// BoundingBox is an oriented box plus the particle count and total mass
// found inside it; Union is the associative-commutative combiner used to
// reduce per-reader partial boxes into the universe box.
type BoundingBox struct {
	Box      ptkey.Box
	Count    int
	TotalMass float64
}

// EmptyBoundingBox is the identity element for Union.
func EmptyBoundingBox() BoundingBox {
	return BoundingBox{Box: ptkey.EmptyBox()}
}

func (b BoundingBox) Union(other BoundingBox) BoundingBox {
	return BoundingBox{
		Box:       b.Box.Union(other.Box),
		Count:     b.Count + other.Count,
		TotalMass: b.TotalMass + other.TotalMass,
	}
}

// Include folds a single particle into the box.
func (b BoundingBox) Include(p Particle) BoundingBox {
	return b.Union(BoundingBox{
		Box:       ptkey.Box{Min: p.Pos, Max: p.Pos},
		Count:     1,
		TotalMass: p.Mass,
	})
}

// Splitter is one partition of the key space: particles with
// From <= Key < To belong to the TreePiece addressed by TreePieceKey, and
// N is how many such particles exist (as counted during decomposition).
type Splitter struct {
	From, To     ptkey.Key
	TreePieceKey ptkey.Key
	N            int
}

func (s Splitter) String() string {
	return fmt.Sprintf("Splitter{[%v,%v) tp=%v n=%d}", s.From, s.To, s.TreePieceKey, s.N)
}

// Splitters is a sorted-by-From, gapless, non-overlapping partition of
// [smallest particle key, largest particle key]; their N fields sum to the
// universe's total particle count.
type Splitters []Splitter

// IndexOf returns the index i such that Splitters[i] owns k, or -1 if k
// falls outside every splitter's range (which should never happen for a
// well-formed partition).
func (s Splitters) IndexOf(k ptkey.Key) int {
	lo, hi := 0, len(s)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if s[mid].To <= k {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(s) && s[lo].From <= k && k < s[lo].To {
		return lo
	}
	return -1
}

// TotalParticles sums the N field across all splitters.
func (s Splitters) TotalParticles() int {
	total := 0
	for _, sp := range s {
		total += sp.N
	}
	return total
}

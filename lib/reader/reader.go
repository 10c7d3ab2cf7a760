// Copyright (C) 2024  The paratreet-ng Authors
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package reader implements the reader-pool branch: each Reader holds a
// disjoint local slice of particles and answers the driver's per-round
// requests (bounding box, octant histograms, flush-to-TreePiece) without
// any cross-reader coordination of its own; the driver supplies that via
// lib/actor.
package reader

import (
	"bufio"
	"context"
	"encoding/binary"
	"io"
	"sort"

	"github.com/datawire/dlib/dlog"

	"git.lukeshu.com/paratreet-ng/lib/particle"
	"git.lukeshu.com/paratreet-ng/lib/ptkey"
)

// Source is a binary particle stream: each call to Next yields one
// record's position, velocity, and mass, or io.EOF. Exact on-disk layout
// is opaque to the rest of the core; Source is the only seam that knows
// it.
type Source interface {
	Next() (pos, vel ptkey.Vector3, mass float64, err error)
}

// binReader reads the fixed 7-float64 particle record layout used by
// the reference particle generator: x,y,z,vx,vy,vz,mass.
type binReader struct {
	r io.Reader
}

// NewBinarySource wraps r as a Source reading little-endian float64
// septuples.
func NewBinarySource(r io.Reader) Source {
	return &binReader{r: bufio.NewReader(r)}
}

func (b *binReader) Next() (pos, vel ptkey.Vector3, mass float64, err error) {
	var buf [7]float64
	for i := range buf {
		if err = binary.Read(b.r, binary.LittleEndian, &buf[i]); err != nil {
			return ptkey.Vector3{}, ptkey.Vector3{}, 0, err
		}
	}
	pos = ptkey.Vector3{X: buf[0], Y: buf[1], Z: buf[2]}
	vel = ptkey.Vector3{X: buf[3], Y: buf[4], Z: buf[5]}
	return pos, vel, buf[6], nil
}

// Reader holds one branch's share of the particle population.
type Reader struct {
	Index     int
	Particles []particle.Particle
	universe  ptkey.Box
	splitters particle.Splitters
}

// New creates an empty Reader for the given branch index.
func New(index int) *Reader {
	return &Reader{Index: index}
}

// Load reads every particle src yields into the branch's local slice
// and returns their local bounding box; the driver sum-reduces these
// across branches into the universe box.
func (r *Reader) Load(ctx context.Context, src Source) (particle.BoundingBox, error) {
	box := particle.EmptyBoundingBox()
	for {
		pos, vel, mass, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return particle.BoundingBox{}, err
		}
		p := particle.Particle{Pos: pos, Vel: vel, Mass: mass}
		r.Particles = append(r.Particles, p)
		box = box.Include(p)
	}
	dlog.Infof(ctx, "reader[%d]: loaded %d particles", r.Index, len(r.Particles))
	return box, nil
}

// ComputeUniverseBoundingBox recomputes this branch's local bounding box
// after perturbation, for another round of the driver's sum-reduction.
func (r *Reader) ComputeUniverseBoundingBox() particle.BoundingBox {
	box := particle.EmptyBoundingBox()
	for _, p := range r.Particles {
		box = box.Include(p)
	}
	return box
}

// AssignKeys computes each local particle's Morton key relative to the
// given universe box, then sorts the local slice by key.
func (r *Reader) AssignKeys(universe ptkey.Box) {
	r.universe = universe
	size := universe.Size()
	for i := range r.Particles {
		rel := r.Particles[i].Pos.Sub(universe.Min)
		unit := ptkey.Vector3{
			X: safeDiv(rel.X, size.X),
			Y: safeDiv(rel.Y, size.Y),
			Z: safeDiv(rel.Z, size.Z),
		}
		r.Particles[i].Key = ptkey.NewFromUnitCoords(unit)
	}
	sort.Slice(r.Particles, func(i, j int) bool {
		return r.Particles[i].Key < r.Particles[j].Key
	})
}

func safeDiv(num, denom float64) float64 {
	if denom == 0 {
		return 0
	}
	return num / denom
}

// KeyRange is one candidate splitter range under consideration by the
// decomposition search.
type KeyRange struct {
	From, To ptkey.Key
}

// CountOct returns, for each requested range, the count of local
// particles whose key falls in [From, To).
func (r *Reader) CountOct(ranges []KeyRange) []int {
	counts := make([]int, len(ranges))
	for i, rng := range ranges {
		lo := ptkey.BinarySearchGE(rng.From, r.Particles, 0, len(r.Particles))
		hi := ptkey.BinarySearchGE(rng.To, r.Particles, 0, len(r.Particles))
		counts[i] = hi - lo
	}
	return counts
}

// SetSplitters caches the finalized splitter partition for Flush to
// consult.
func (r *Reader) SetSplitters(splitters particle.Splitters) {
	r.splitters = splitters
}

// FlushTarget is the owning TreePiece's index plus the particles routed
// to it.
type FlushTarget struct {
	TreePiece int
	Particles []particle.Particle
}

// Flush partitions the local particle slice by splitter ownership and
// returns one FlushTarget per non-empty destination, in splitter order.
func (r *Reader) Flush() []FlushTarget {
	if len(r.splitters) == 0 {
		return nil
	}
	buckets := make([][]particle.Particle, len(r.splitters))
	for _, p := range r.Particles {
		idx := r.splitters.IndexOf(p.Key)
		if idx < 0 {
			continue
		}
		buckets[idx] = append(buckets[idx], p)
	}
	var out []FlushTarget
	for i, b := range buckets {
		if len(b) == 0 {
			continue
		}
		out = append(out, FlushTarget{TreePiece: i, Particles: b})
	}
	return out
}

// Receive appends inbound particles, the path used during rebuild
// cycles when TreePieces redistribute back to readers.
func (r *Reader) Receive(particles []particle.Particle) {
	r.Particles = append(r.Particles, particles...)
}

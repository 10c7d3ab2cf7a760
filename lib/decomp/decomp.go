// Copyright (C) 2024  The paratreet-ng Authors
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package decomp implements the octree splitter search: the iterative
// histogramming loop that refines a work set of candidate key ranges
// until every bucket's particle count is within tolerance, producing the
// Splitters that address the TreePiece partition.
package decomp

import (
	"sort"

	"git.lukeshu.com/paratreet-ng/lib/paraerr"
	"git.lukeshu.com/paratreet-ng/lib/particle"
	"git.lukeshu.com/paratreet-ng/lib/ptkey"
	"git.lukeshu.com/paratreet-ng/lib/reader"
)

// maxKey is the sentinel "open end" of the top range, ~Key(0) in the
// original's bit arithmetic.
const maxKey = ^ptkey.Key(0)

// CountFn answers, for every candidate range in one round, the summed
// count of particles across all reader branches. It is the seam where
// lib/actor's Reduce ties the search to the live reader pool; tests
// supply a pure function over an in-memory particle set instead.
type CountFn func(ranges []reader.KeyRange) []int

// work is one candidate [from, to) range still under consideration,
// tagged with the octree depth it was produced at so the search can
// enforce maxDepth.
type work struct {
	from, to ptkey.Key
	depth    int
}

// FindOctSplitters runs the splitter-search loop described in §4.C: it
// starts from the single range [1, ~0) covering the whole key space and
// repeatedly splits any range whose count exceeds tolerance *
// maxParticlesPerTP into its 8 child octants, until every surviving
// range is within tolerance. maxDepth caps the recursion so a
// degenerate input (many particles sharing a long key prefix) cannot
// loop forever: at maxDepth the range becomes a splitter regardless of
// its count, per the spec's termination edge case.
func FindOctSplitters(count CountFn, tolerance float64, maxParticlesPerTP int, maxDepth int) particle.Splitters {
	threshold := tolerance * float64(maxParticlesPerTP)

	pending := []work{{from: ptkey.Root, to: maxKey, depth: 0}}

	var splitters particle.Splitters
	for len(pending) > 0 {
		ranges := make([]reader.KeyRange, len(pending))
		for i, w := range pending {
			ranges[i] = reader.KeyRange{From: w.from, To: w.to}
		}
		counts := count(ranges)

		var next []work
		for i, w := range pending {
			n := counts[i]
			if float64(n) > threshold && w.depth < maxDepth {
				next = append(next, splitOctants(w.from, w.to, w.depth)...)
				continue
			}
			splitters = append(splitters, particle.Splitter{
				From:         ptkey.RemoveLeadingZeros(w.from),
				To:           ptkey.RemoveLeadingZeros(w.to),
				TreePieceKey: w.from,
				N:            n,
			})
		}
		pending = next
	}

	sort.Slice(splitters, func(i, j int) bool { return splitters[i].From < splitters[j].From })
	return splitters
}

func splitOctants(from, to ptkey.Key, depth int) []work {
	out := make([]work, 0, 8)
	base := from << 3
	for c := 0; c < 7; c++ {
		out = append(out, work{from: base + ptkey.Key(c), to: base + ptkey.Key(c+1), depth: depth + 1})
	}
	last := work{from: base + 7, depth: depth + 1}
	if to == maxKey {
		last.to = maxKey
	} else {
		last.to = to << 3
	}
	out = append(out, last)
	return out
}

// Verify checks the correctness property from §4.C/§8.1: splitter
// counts must sum to the universe's particle count, or the
// decomposition is fatally inconsistent.
func Verify(splitters particle.Splitters, universeCount int) error {
	got := splitters.TotalParticles()
	if got != universeCount {
		return paraerr.Abort(&paraerr.DecompositionMismatchError{Expected: universeCount, Got: got})
	}
	return nil
}

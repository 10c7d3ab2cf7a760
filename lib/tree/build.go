// Copyright (C) 2024  The paratreet-ng Authors
//
// SPDX-License-Identifier: GPL-2.0-or-later

package tree

import (
	"math"

	"git.lukeshu.com/paratreet-ng/lib/particle"
	"git.lukeshu.com/paratreet-ng/lib/ptkey"
)

// BucketTolerance scales MaxParticlesPerLeaf the way DECOMP_TOLERANCE
// scales max_particles_per_tp in the splitter search: a leaf may hold up
// to ceil(BucketTolerance * maxParticlesPerLeaf) particles before it
// must be split further.
const BucketTolerance = 1.5

// Builder recursively classifies one TreePiece's local octree.
type Builder struct {
	TPKey               ptkey.Key
	MaxParticlesPerLeaf int

	// Splitters is the full partition set, consulted to resolve Owner on
	// nodes the recursion types Remote. A nil/empty Splitters leaves
	// Owner at its zero value, which is correct for single-TreePiece
	// builds where no Remote node is ever produced.
	Splitters particle.Splitters
}

// Build constructs the tree over particles (already sorted by key) under
// a synthetic root of key ptkey.Root, and returns the root plus the
// ordered list of local leaves registered along the way.
func Build[Data any](b Builder, particles []particle.Particle) (*Node[Data], []*Node[Data]) {
	var leaves []*Node[Data]
	root := buildNode[Data](b, &leaves, particles, ptkey.Root, 0, 0, len(particles), false)
	return root, leaves
}

func (b Builder) lightThreshold() int {
	return int(math.Ceil(BucketTolerance * float64(b.MaxParticlesPerLeaf)))
}

// ownerOf resolves which TreePiece index a disjoint branch belongs to, so
// a Remote node's Owner is set before any traversal consumes it (§3). The
// build recursion stops at the shallowest node that diverges from the
// local TPKey, which may be coarser than any single splitter's key (it
// can span several sibling partitions); when that happens the
// lowest-indexed splitter under the branch stands in as the fetch
// target, mirroring the original's owner_tp_start/owner_tp_end narrowing
// collapsed to a single index.
func ownerOf(splitters particle.Splitters, key ptkey.Key) int {
	if i := splitters.IndexOf(key); i >= 0 {
		return i
	}
	for i, s := range splitters {
		if ptkey.IsPrefix(key, s.TreePieceKey) {
			return i
		}
	}
	return -1
}

func buildNode[Data any](
	b Builder,
	leaves *[]*Node[Data],
	particles []particle.Particle,
	key ptkey.Key,
	depth, start, n int,
	sawTPKey bool,
) *Node[Data] {
	if key == b.TPKey {
		sawTPKey = true
	}
	isLight := n <= b.lightThreshold()

	node := &Node[Data]{Key: key, Depth: depth, Start: start, N: n}

	if sawTPKey && isLight {
		if n == 0 {
			node.Type = EmptyLeaf
		} else {
			node.Type = Leaf
		}
		*leaves = append(*leaves, node)
		return node
	}

	if !sawTPKey && !ptkey.IsPrefix(b.TPKey, key) && !ptkey.IsPrefix(key, b.TPKey) {
		node.Type = Remote
		node.Owner = ownerOf(b.Splitters, key)
		return node
	}

	allLocal := true
	childStart := start
	for c := 0; c < 8; c++ {
		childKey := key.Child(c)
		var childEnd int
		if c == 7 {
			childEnd = start + n
		} else {
			upperBound := key.Child(c + 1)
			childEnd = start + ptkey.BinarySearchGE(upperBound, particles[start:start+n], 0, n)
		}
		childN := childEnd - childStart
		child := buildNode[Data](b, leaves, particles, childKey, depth+1, childStart, childN, sawTPKey)
		child.Parent = node
		node.Children[c] = child
		if !child.Type.IsLocal() {
			allLocal = false
		}
		childStart = childEnd
	}

	if allLocal {
		node.Type = Internal
	} else {
		node.Type = Boundary
	}
	return node
}

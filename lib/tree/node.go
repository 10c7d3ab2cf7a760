// Copyright (C) 2024  The paratreet-ng Authors
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package tree builds and traverses the per-partition octree: the
// recursive classification of local subtrees (lib/tree itself), and the
// TreePiece that owns one partition's build, upward, and downward
// traversals.
package tree

import (
	"fmt"

	"git.lukeshu.com/paratreet-ng/lib/particle"
	"git.lukeshu.com/paratreet-ng/lib/ptkey"
)

// Type classifies a Node by how its data is owned and where its
// subtree physically lives.
type Type int

const (
	Internal Type = iota
	Leaf
	EmptyLeaf
	Boundary
	Remote
	RemoteLeaf
	RemoteEmptyLeaf
	RemoteAboveTPKey
	CachedBoundary
	CachedRemote
	CachedRemoteLeaf
	Shared
	Local
)

func (t Type) String() string {
	switch t {
	case Internal:
		return "Internal"
	case Leaf:
		return "Leaf"
	case EmptyLeaf:
		return "EmptyLeaf"
	case Boundary:
		return "Boundary"
	case Remote:
		return "Remote"
	case RemoteLeaf:
		return "RemoteLeaf"
	case RemoteEmptyLeaf:
		return "RemoteEmptyLeaf"
	case RemoteAboveTPKey:
		return "RemoteAboveTPKey"
	case CachedBoundary:
		return "CachedBoundary"
	case CachedRemote:
		return "CachedRemote"
	case CachedRemoteLeaf:
		return "CachedRemoteLeaf"
	case Shared:
		return "Shared"
	case Local:
		return "Local"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// IsLocal reports whether the node's subtree is fully owned by the
// TreePiece that built it (no remote fetch needed to read further).
func (t Type) IsLocal() bool {
	switch t {
	case Internal, Leaf, EmptyLeaf, Local:
		return true
	default:
		return false
	}
}

// RequiresFetch reports whether visiting this node during downward
// traversal requires going out to another partition (directly, or via
// its TreeElement), per §5 "Suspension points".
func (t Type) RequiresFetch() bool {
	switch t {
	case Boundary, Remote, RemoteLeaf, RemoteAboveTPKey, RemoteEmptyLeaf:
		return true
	default:
		return false
	}
}

// Node is one cell of the octree, parameterized over the visitor
// payload Data (e.g. a centroid, or SPH moments).
type Node[Data any] struct {
	Key      ptkey.Key
	Depth    int
	Type     Type
	Owner    int // owning TreePiece index, meaningful when Type is a Remote* variant
	Start    int // index of first particle in the owning slice
	N        int // number of particles in this subtree
	Children [8]*Node[Data]
	Parent   *Node[Data]
	Data     Data

	// WaitCount counts outstanding children during upward reduction, and
	// outstanding prerequisites during downward pre-blocking.
	WaitCount int
}

func (n *Node[Data]) String() string {
	return fmt.Sprintf("Node{key=%v depth=%d type=%v n=%d}", n.Key, n.Depth, n.Type, n.N)
}

// IsLeafLike reports whether the node's type is one of the leaf
// variants a downward traversal calls visitor.Leaf on.
func (n *Node[Data]) IsLeafLike() bool {
	switch n.Type {
	case Leaf, EmptyLeaf, CachedRemoteLeaf, RemoteEmptyLeaf:
		return true
	default:
		return false
	}
}

// Particles returns the subrange of all owned by the TreePiece that
// this node spans.
func (n *Node[Data]) Particles(all []particle.Particle) []particle.Particle {
	if n.Start < 0 || n.Start+n.N > len(all) {
		return nil
	}
	return all[n.Start : n.Start+n.N]
}

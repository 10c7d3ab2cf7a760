// Copyright (C) 2024  The paratreet-ng Authors
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package ptkey implements the bit-interleaved Morton keys that address
// nodes of the octree, and the binary-search helpers that relate a sorted
// particle slice to a key.
package ptkey

import (
	"fmt"
	"math/bits"

	"git.lukeshu.com/paratreet-ng/lib/fmtutil"
)

// Key is a 64-bit path in an octree.  The root has Key(1); a child with
// octant index c∈[0,7] has key (parent<<3)|c.  The leading 1 bit marks the
// root, so the depth of a key is (bit-length-1)/3.
type Key uint64

// Root is the key of the synthetic global root that every TreePiece builds
// under, per §4.D of the build recursion.
const Root Key = 1

func (k Key) Format(f fmt.State, verb rune) {
	switch verb {
	case 'v', 's', 'q':
		fmt.Fprintf(f, fmtutil.FmtStateString(f, verb), k.String())
	default:
		fmt.Fprintf(f, fmtutil.FmtStateString(f, verb), uint64(k))
	}
}

func (k Key) String() string { return fmt.Sprintf("0x%016x", uint64(k)) }

// Cmp gives Key a total order by numeric value.
func (k Key) Cmp(other Key) int {
	switch {
	case k < other:
		return -1
	case k > other:
		return 1
	default:
		return 0
	}
}

// Depth returns the octree depth of the key: the root is depth 0.
func (k Key) Depth() int {
	if k == 0 {
		return 0
	}
	return (bits.Len64(uint64(k)) - 1) / 3
}

// Child returns the key of the c'th child (c∈[0,7]).
func (k Key) Child(c int) Key {
	return (k << 3) | Key(c)
}

// Parent returns the key's immediate parent, and false if k is the root.
func (k Key) Parent() (Key, bool) {
	if k == Root {
		return 0, false
	}
	return k >> 3, true
}

// Octant returns which of the parent's 8 children k is.
func (k Key) Octant() int {
	return int(k & 0x7)
}

// removeLeadingZeros normalizes a truncated splitter key to full width: a
// candidate splitter key like from=0b1011 (depth 1) represents the same
// octree path regardless of how many leading zero bits pad the machine
// word, but particle keys are always stored at canonical minimum width.
// RemoveLeadingZeros is a no-op for keys already in that form (every Key
// produced by NewFromCoords or Child already is); it exists to normalize
// decomposition-search candidates of the form `from`/`to` shifted
// directly from the bit pattern, which are already canonical in this
// representation since the leading 1 is explicit. It is kept as the
// identity transform that the original algorithm names, so splitter
// construction reads the same as the spec.
func RemoveLeadingZeros(k Key) Key {
	return k
}

// IsPrefix reports whether k is an ancestor of (or equal to) j: every bit
// path below k's depth in j matches k.
func IsPrefix(k, j Key) bool {
	dk, dj := k.Depth(), j.Depth()
	if dk > dj {
		return false
	}
	return j>>(3*(dj-dk)) == k
}

// Keyed is anything that exposes a sort key, satisfied by Particle.
type Keyed interface {
	SortKey() Key
}

// BinarySearchGE returns the smallest index in [lo,hi) of s whose key is
// >= k, or hi if there is none. s must be sorted ascending by key. Ties
// (equal keys) resolve to the leftmost matching index, so the search is
// stable under repeated keys.
func BinarySearchGE[T Keyed](k Key, s []T, lo, hi int) int {
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if s[mid].SortKey() < k {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// BinarySearchG returns the smallest index in [lo,hi) of s whose key is
// strictly > k, or hi if there is none.
func BinarySearchG[T Keyed](k Key, s []T, lo, hi int) int {
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if s[mid].SortKey() <= k {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

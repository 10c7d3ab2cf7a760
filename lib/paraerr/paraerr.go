// Copyright (C) 2024  The paratreet-ng Authors
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package paraerr defines the typed fatal errors the core surfaces as an
// abort: every one identifies the partition index and the invariant it
// violates. None of these are retried; there is no transient kind.
package paraerr

import (
	"fmt"

	"git.lukeshu.com/paratreet-ng/lib/ptkey"
)

// PartitionError wraps an underlying cause with the index of the
// TreePiece or splitter partition it was raised against, the way
// btrfstree.NodeError[Addr] wraps a cause with the node address it was
// raised against.
type PartitionError struct {
	Op    string
	Index int
	Err   error
}

func (e *PartitionError) Error() string {
	return fmt.Sprintf("%s: partition[%d]: %v", e.Op, e.Index, e.Err)
}

func (e *PartitionError) Unwrap() error { return e.Err }

// DecompositionMismatchError fires when splitter counts do not sum to the
// universe's particle count.
type DecompositionMismatchError struct {
	Expected, Got int
}

func (e *DecompositionMismatchError) Error() string {
	return fmt.Sprintf("decomposition mismatch: splitters account for %d particles, universe has %d",
		e.Got, e.Expected)
}

// DeliveryMismatchError fires when a TreePiece receives a particle count
// different from what its splitter promised.
type DeliveryMismatchError struct {
	TreePiece     int
	Expected, Got int
}

func (e *DeliveryMismatchError) Error() string {
	return fmt.Sprintf("treepiece %d: received %d particles, expected %d",
		e.TreePiece, e.Got, e.Expected)
}

// CapacityOverflowError fires when the splitter search produces more
// TreePieces than the configured maximum.
type CapacityOverflowError struct {
	NumTreePieces, MaxTreePieces int
}

func (e *CapacityOverflowError) Error() string {
	return fmt.Sprintf("splitter search produced %d treepieces, exceeding the configured maximum of %d",
		e.NumTreePieces, e.MaxTreePieces)
}

// InvariantViolationError fires for a tree-shape invariant broken at a
// specific key: a Boundary node with no descendants, a missing child, an
// Internal node whose data doesn't match the combination of its children.
type InvariantViolationError struct {
	Key     ptkey.Key
	Message string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("invariant violated at key %v: %s", e.Key, e.Message)
}

// Abort is the single entry point the core uses to turn any of the above
// into a fatal process exit; callers further up (e.g. cmd/paratreet) are
// expected to log it with dlog and exit non-zero, never retry it.
func Abort(err error) error {
	return fmt.Errorf("fatal: %w", err)
}

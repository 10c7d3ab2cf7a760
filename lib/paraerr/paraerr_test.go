// Copyright (C) 2024  The paratreet-ng Authors
//
// SPDX-License-Identifier: GPL-2.0-or-later

package paraerr_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"git.lukeshu.com/paratreet-ng/lib/paraerr"
	"git.lukeshu.com/paratreet-ng/lib/ptkey"
)

func TestPartitionErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := &paraerr.PartitionError{Op: "build", Index: 3, Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "partition[3]")
}

func TestDecompositionMismatchError(t *testing.T) {
	err := &paraerr.DecompositionMismatchError{Expected: 100, Got: 99}
	assert.Contains(t, err.Error(), "99")
	assert.Contains(t, err.Error(), "100")
}

func TestInvariantViolationError(t *testing.T) {
	err := &paraerr.InvariantViolationError{Key: ptkey.Root, Message: "boundary has no descendants"}
	assert.Contains(t, err.Error(), "no descendants")
}

func TestAbortWraps(t *testing.T) {
	cause := &paraerr.CapacityOverflowError{NumTreePieces: 10, MaxTreePieces: 8}
	err := paraerr.Abort(cause)
	assert.ErrorIs(t, err, error(cause))
}

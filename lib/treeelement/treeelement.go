// Copyright (C) 2024  The paratreet-ng Authors
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package treeelement implements the per-global-key aggregator that
// combines Boundary-node contributions from every TreePiece that shares
// a key, independent of the cache that later serves the result.
package treeelement

import (
	"sync"

	"git.lukeshu.com/paratreet-ng/lib/ptkey"
)

// Combiner folds one more contribution d into acc; it must be
// associative and commutative, matching the visitor's Combine.
type Combiner[Data any] func(acc, d Data) Data

// Element is the aggregator addressed by a single node key.
type Element[Data any] struct {
	mu         sync.Mutex
	Key        ptkey.Key
	data       Data
	waitCount  int
	haveFirst  bool
	onComplete func(key ptkey.Key, data Data)
}

// New creates an Element keyed at key; onComplete is invoked exactly
// once, when WaitCount reaches zero, with the fully combined data.
func New[Data any](key ptkey.Key, onComplete func(ptkey.Key, Data)) *Element[Data] {
	return &Element[Data]{Key: key, onComplete: onComplete}
}

// ReceiveData folds one contribution into the element's running total,
// per §4.E: the first receive (a TreePiece reporting its tp_key
// contribution) sets WaitCount to 1; receives from another aggregator's
// parent side set it to 8 (one per octant). When WaitCount reaches zero
// the combined data is pushed one level up via onComplete.
func (e *Element[Data]) ReceiveData(combine Combiner[Data], d Data, fromParentSide bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.haveFirst {
		e.haveFirst = true
		e.data = d
		if fromParentSide {
			e.waitCount = 8
		} else {
			e.waitCount = 1
		}
	} else {
		e.data = combine(e.data, d)
	}
	e.waitCount--

	if e.waitCount <= 0 && e.onComplete != nil {
		onComplete := e.onComplete
		e.onComplete = nil
		data := e.data
		key := e.Key
		e.mu.Unlock()
		onComplete(key, data)
		e.mu.Lock()
	}
}

// RequestData serves the currently aggregated data to a requesting
// cache branch; it does not block on completion, matching §4.F's fetch
// path which blocks at the cache layer instead.
func (e *Element[Data]) RequestData() (data Data, complete bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.data, e.waitCount <= 0
}

// Table is the process-local collection of Elements, keyed by node key.
type Table[Data any] struct {
	mu       sync.Mutex
	elements map[ptkey.Key]*Element[Data]
}

// NewTable creates an empty Table.
func NewTable[Data any]() *Table[Data] {
	return &Table[Data]{elements: make(map[ptkey.Key]*Element[Data])}
}

// GetOrCreate returns the Element for key, creating it with onComplete
// if this is the first contribution seen for that key.
func (t *Table[Data]) GetOrCreate(key ptkey.Key, onComplete func(ptkey.Key, Data)) *Element[Data] {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.elements[key]; ok {
		return e
	}
	e := New[Data](key, onComplete)
	t.elements[key] = e
	return e
}

// Get returns the Element for key if one has already been created.
func (t *Table[Data]) Get(key ptkey.Key) (*Element[Data], bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.elements[key]
	return e, ok
}

// Keys returns every key this table currently holds an Element for,
// including ancestor keys populated purely by upward propagation (never
// directly reported by a TreePiece). Used by the driver to gather the
// aggregated global tree for the starter-pack cut.
func (t *Table[Data]) Keys() []ptkey.Key {
	t.mu.Lock()
	defer t.mu.Unlock()
	keys := make([]ptkey.Key, 0, len(t.elements))
	for k := range t.elements {
		keys = append(keys, k)
	}
	return keys
}

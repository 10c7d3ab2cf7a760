// Copyright (C) 2024  The paratreet-ng Authors
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package cache implements the process-local cache manager: node key to
// Cached* Node, plus fetch coalescing via a curr_waiting map and the
// starter-pack install that short-circuits the first round of remote
// fetches, per §4.F.
package cache

import (
	"context"
	"sync"

	"github.com/datawire/dlib/dlog"

	"git.lukeshu.com/paratreet-ng/lib/containers"
	"git.lukeshu.com/paratreet-ng/lib/ptkey"
	"git.lukeshu.com/paratreet-ng/lib/tree"
)

// defaultCacheSize bounds the adaptive-replacement cache's resident set;
// entries beyond it are demoted under the ARC policy rather than pinned
// forever, since a Boundary/Remote fetch can be re-issued if evicted.
const defaultCacheSize = 8192

// FetchFn issues the actual upstream request for key (to a TreeElement
// or owning TreePiece, per nodeType/owner) and returns the resolved node
// once the response arrives.
type FetchFn[Data any] func(ctx context.Context, key ptkey.Key, nodeType tree.Type, owner int) (*tree.Node[Data], error)

// Resumer re-invokes a blocked traversal for a TreePiece once its
// awaited key resolves. It is kept as a distinct interface from Manager
// per §4.G, since it may later batch resumptions or apply priority; the
// default implementation just calls back synchronously.
type Resumer interface {
	Resume(ctx context.Context, key ptkey.Key, waiters []int)
}

// ResumeFunc adapts a plain function to Resumer.
type ResumeFunc func(ctx context.Context, key ptkey.Key, waiters []int)

func (f ResumeFunc) Resume(ctx context.Context, key ptkey.Key, waiters []int) { f(ctx, key, waiters) }

// Manager is the per-process cache: an ARC-backed key->node map using
// containers.LRUCache's adaptive-replacement policy (entries demoted
// under memory pressure between the recency and frequency lists rather
// than evicted by strict LRU order), plus the curr_waiting coalescing
// table.
type Manager[Data any] struct {
	mu          sync.Mutex
	starterKeys map[ptkey.Key]bool
	nodes       *containers.LRUCache[ptkey.Key, *tree.Node[Data]]
	currWaiting map[ptkey.Key][]int
	fetch       FetchFn[Data]
	resumer     Resumer
}

// New creates an empty Manager; fetch issues upstream requests and
// resumer re-enters blocked traversals once they resolve.
func New[Data any](fetch FetchFn[Data], resumer Resumer) *Manager[Data] {
	return &Manager[Data]{
		starterKeys: make(map[ptkey.Key]bool),
		nodes:       containers.NewLRUCache[ptkey.Key, *tree.Node[Data]](defaultCacheSize),
		currWaiting: make(map[ptkey.Key][]int),
		fetch:       fetch,
		resumer:     resumer,
	}
}

// RecvStarterPack installs the top num_share_levels of the global tree
// as CachedBoundary, immediately available without a fetch.
func (m *Manager[Data]) RecvStarterPack(nodes []*tree.Node[Data]) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range nodes {
		coerced := coerce(n, tree.CachedBoundary)
		m.nodes.Add(n.Key, coerced)
		m.starterKeys[n.Key] = true
	}
}

// coerce returns a shallow copy of n retyped to asType, the "type
// coercion on install" step of §4.F: Boundary-originated data becomes
// CachedBoundary, Remote becomes CachedRemote, RemoteLeaf becomes
// CachedRemoteLeaf.
func coerce[Data any](n *tree.Node[Data], asType tree.Type) *tree.Node[Data] {
	cp := *n
	cp.Type = asType
	return &cp
}

func cachedTypeFor(original tree.Type) tree.Type {
	switch original {
	case tree.Boundary, tree.RemoteAboveTPKey:
		return tree.CachedBoundary
	case tree.RemoteLeaf:
		return tree.CachedRemoteLeaf
	default:
		return tree.CachedRemote
	}
}

// Lookup returns the cached node for key, if present.
func (m *Manager[Data]) Lookup(key ptkey.Key) (*tree.Node[Data], bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nodes.Get(key)
}

// Fetch resolves key for the requesting TreePiece tpIndex: if already
// cached it returns immediately; if a request for key is already in
// flight, tpIndex is coalesced onto the existing waiter list without
// re-issuing the upstream fetch; otherwise it issues the fetch, installs
// the result (with type coercion), and resumes every waiter including
// the caller. owner is the node's own Owner field (meaningful for
// Remote/RemoteLeaf; ignored by Boundary/RemoteAboveTPKey fetches),
// passed through to the installed FetchFn so it can route the request.
func (m *Manager[Data]) Fetch(ctx context.Context, key ptkey.Key, originalType tree.Type, owner, tpIndex int) (*tree.Node[Data], error) {
	m.mu.Lock()
	if n, ok := m.nodes.Get(key); ok {
		m.mu.Unlock()
		return n, nil
	}
	if waiters, inFlight := m.currWaiting[key]; inFlight {
		m.currWaiting[key] = append(waiters, tpIndex)
		m.mu.Unlock()
		return nil, nil
	}
	m.currWaiting[key] = []int{tpIndex}
	m.mu.Unlock()

	n, err := m.fetch(ctx, key, originalType, owner)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	cached := coerce(n, cachedTypeFor(originalType))
	m.nodes.Add(key, cached)
	waiters := m.currWaiting[key]
	delete(m.currWaiting, key)
	m.mu.Unlock()

	dlog.Debugf(ctx, "cache: resolved key=%v waiters=%d", key, len(waiters))
	if m.resumer != nil {
		m.resumer.Resume(ctx, key, waiters)
	}
	return cached, nil
}

// Destroy drops every non-starter entry between iterations, per §4.F
// "Destroy", so stale pointers from the previous tree cannot be
// consulted; starter-pack entries survive if keepStarters is true.
func (m *Manager[Data]) Destroy(keepStarters bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if keepStarters {
		for _, key := range m.nodes.Keys() {
			if !m.starterKeys[key] {
				m.nodes.Remove(key)
			}
		}
	} else {
		m.nodes.Purge()
		m.starterKeys = make(map[ptkey.Key]bool)
	}
	m.currWaiting = make(map[ptkey.Key][]int)
}

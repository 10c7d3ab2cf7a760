// Copyright (C) 2024  The paratreet-ng Authors
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package actor is the messaging substrate every other component runs
// on: typed async point-to-point messages, broadcast to a collection,
// reductions with user combiners, and quiescence detection as the
// barrier between phases. Each Mailbox processes one message at a time;
// across mailboxes, delivery is parallel and unordered except that
// messages from one sender to one receiver keep send order.
package actor

import (
	"context"
	"sync"

	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dlog"
)

// Mailbox serializes delivery of messages of type M to a single
// goroutine: Send enqueues, and the owner's Run loop processes messages
// one at a time, the way a Charm++ chare processes one entry method at a
// time. The zero value is not usable; construct with NewMailbox.
type Mailbox[M any] struct {
	ch chan M
}

// NewMailbox creates a Mailbox with the given buffer depth; 0 makes Send
// block until Run has picked up the previous message, which preserves
// strict alternation for tests that need to observe state between sends.
func NewMailbox[M any](buffer int) *Mailbox[M] {
	return &Mailbox[M]{ch: make(chan M, buffer)}
}

// Send delivers msg in order relative to this Mailbox's other Sends from
// the same goroutine. While the buffer is full it blocks until there is
// room or ctx is done, in which case it returns ctx.Err().
func (mb *Mailbox[M]) Send(ctx context.Context, msg M) error {
	select {
	case mb.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes messages with handle until ctx is cancelled or Close is
// called and the buffer drains. handle runs on a single goroutine, so it
// never needs its own locking.
func (mb *Mailbox[M]) Run(ctx context.Context, handle func(context.Context, M) error) error {
	for {
		select {
		case msg, ok := <-mb.ch:
			if !ok {
				return nil
			}
			if err := handle(ctx, msg); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close signals Run to stop once the buffer has drained.
func (mb *Mailbox[M]) Close() { close(mb.ch) }

// Collection is an object-addressed group of per-key mailboxes, the
// Go analogue of a Charm++ chare array: readers and TreePieces are each
// addressed by an integer index, TreeElements and cache branches by a
// process rank.
type Collection[K comparable, M any] struct {
	mu    sync.RWMutex
	boxes map[K]*Mailbox[M]
}

// NewCollection creates an empty Collection.
func NewCollection[K comparable, M any]() *Collection[K, M] {
	return &Collection[K, M]{boxes: make(map[K]*Mailbox[M])}
}

// Put registers the mailbox addressed by key; it is an error in the
// caller's domain logic to Put the same key twice, but Collection itself
// just overwrites.
func (c *Collection[K, M]) Put(key K, mb *Mailbox[M]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.boxes[key] = mb
}

// Get returns the mailbox for key, or nil, false if unregistered.
func (c *Collection[K, M]) Get(key K) (*Mailbox[M], bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	mb, ok := c.boxes[key]
	return mb, ok
}

// Keys returns a snapshot of every registered address.
func (c *Collection[K, M]) Keys() []K {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]K, 0, len(c.boxes))
	for k := range c.boxes {
		out = append(out, k)
	}
	return out
}

// Send delivers msg to the single mailbox addressed by key.
func (c *Collection[K, M]) Send(ctx context.Context, key K, msg M) error {
	mb, ok := c.Get(key)
	if !ok {
		dlog.Errorf(ctx, "actor: send to unregistered address %v", key)
		return errUnregistered[K]{key}
	}
	return mb.Send(ctx, msg)
}

// Broadcast delivers msg to every mailbox in the collection and waits
// for all sends to complete (not for all sent messages to be handled).
// It is the building block every phase-transition broadcast uses: the
// starter-pack share, the splitter-candidate round, the perturb signal.
func (c *Collection[K, M]) Broadcast(ctx context.Context, msg M) error {
	grp := dgroup.NewGroup(ctx, dgroup.GroupConfig{})
	for _, key := range c.Keys() {
		key := key
		grp.Go("broadcast", func(ctx context.Context) error {
			return c.Send(ctx, key, msg)
		})
	}
	return grp.Wait()
}

type errUnregistered[K comparable] struct{ key K }

func (e errUnregistered[K]) Error() string {
	return "actor: no mailbox registered for address"
}

// Reduce fans a request out to every key, collects each partial result
// with get, and folds them with combine starting from zero. Because
// combine must be associative and commutative per §5, callers may safely
// use it for bounding-box union, particle counts, and completion
// tallies regardless of arrival order.
func Reduce[K comparable, M, R any](
	ctx context.Context,
	c *Collection[K, M],
	zero R,
	get func(ctx context.Context, key K) (R, error),
	combine func(a, b R) R,
) (R, error) {
	keys := c.Keys()
	results := make([]R, len(keys))
	grp := dgroup.NewGroup(ctx, dgroup.GroupConfig{})
	for i, key := range keys {
		i, key := i, key
		grp.Go("reduce", func(ctx context.Context) error {
			r, err := get(ctx, key)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return zero, err
	}
	acc := zero
	for _, r := range results {
		acc = combine(acc, r)
	}
	return acc, nil
}

// Barrier is a quiescence detector: it counts outstanding in-flight
// messages and lets Wait block until the count returns to zero, the
// synchronization primitive the spec names between phases (build →
// upward traversal → starter-pack broadcast → downward traversal →
// interact → perturb).
type Barrier struct {
	mu      sync.Mutex
	cond    *sync.Cond
	inFlight int
}

// NewBarrier creates a quiesced Barrier (zero messages in flight).
func NewBarrier() *Barrier {
	b := &Barrier{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Enter marks one more message in flight; call it when a message is sent.
func (b *Barrier) Enter() {
	b.mu.Lock()
	b.inFlight++
	b.mu.Unlock()
}

// Leave marks one message as fully handled; call it when its handler
// returns. It wakes any Wait once the count reaches zero.
func (b *Barrier) Leave() {
	b.mu.Lock()
	b.inFlight--
	if b.inFlight < 0 {
		b.inFlight = 0
	}
	if b.inFlight == 0 {
		b.cond.Broadcast()
	}
	b.mu.Unlock()
}

// Wait blocks until quiescence (inFlight == 0) or ctx is cancelled.
func (b *Barrier) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.mu.Lock()
		for b.inFlight != 0 {
			b.cond.Wait()
		}
		b.mu.Unlock()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

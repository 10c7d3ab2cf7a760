// Copyright (C) 2024  The paratreet-ng Authors
//
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/datawire/dlib/dlog"

	"git.lukeshu.com/paratreet-ng/lib/cache"
	"git.lukeshu.com/paratreet-ng/lib/config"
	"git.lukeshu.com/paratreet-ng/lib/driver"
	"git.lukeshu.com/paratreet-ng/lib/ptkey"
	"git.lukeshu.com/paratreet-ng/lib/tree"
	"git.lukeshu.com/paratreet-ng/lib/visitor"
)

// visitorFor returns the per-TreePiece Visitor constructor for the
// configured kind. Centroid is excluded: the driver's Upward pass runs
// it directly rather than through Downward.
func visitorFor(kind string) (func(tp *tree.TreePiece[visitor.CentroidData]) tree.Visitor[visitor.CentroidData], error) {
	switch kind {
	case "gravity":
		return func(tp *tree.TreePiece[visitor.CentroidData]) tree.Visitor[visitor.CentroidData] {
			return visitor.NewGravity(tp.Particles)
		}, nil
	case "density":
		return func(tp *tree.TreePiece[visitor.CentroidData]) tree.Visitor[visitor.CentroidData] {
			return visitor.NewDensity(tp.Particles)
		}, nil
	case "pressure":
		return func(tp *tree.TreePiece[visitor.CentroidData]) tree.Visitor[visitor.CentroidData] {
			return visitor.NewPressure(tp.Particles)
		}, nil
	case "count":
		return func(tp *tree.TreePiece[visitor.CentroidData]) tree.Visitor[visitor.CentroidData] {
			return visitor.NewCount(tp.Particles, visitor.BinEdges{1, 2, 5, 10, 20, 50})
		}, nil
	default:
		return nil, fmt.Errorf("unknown visitor %q (want gravity, density, pressure, or count)", kind)
	}
}

// makeFetch builds the cache manager's upstream FetchFn, routing a miss
// per the node type the traversal encountered, per §4.D "goDown": a
// Boundary/RemoteAboveTPKey node is addressed via its TreeElement,
// Remote/RemoteLeaf/RemoteEmptyLeaf via the owning TreePiece's
// RequestNodes. d is captured by reference: d.Pieces/d.Elements are
// populated by the time an iteration's downward traversal can trigger a
// miss.
func makeFetch(d *driver.Driver) cache.FetchFn[visitor.CentroidData] {
	return func(ctx context.Context, key ptkey.Key, nodeType tree.Type, owner int) (*tree.Node[visitor.CentroidData], error) {
		switch nodeType {
		case tree.Boundary, tree.RemoteAboveTPKey:
			el, ok := d.Elements.Get(key)
			if !ok {
				return nil, fmt.Errorf("fetch for key %v: no TreeElement aggregator registered for this Boundary key", key)
			}
			data, _ := el.RequestData()
			return &tree.Node[visitor.CentroidData]{Key: key, Type: tree.Boundary, Data: data}, nil
		case tree.Remote, tree.RemoteLeaf, tree.RemoteEmptyLeaf:
			if owner < 0 || owner >= len(d.Pieces) {
				return nil, fmt.Errorf("fetch for key %v: no owning treepiece resolved (owner index %d)", key, owner)
			}
			slab := d.Pieces[owner].RequestNodes(key)
			if len(slab) == 0 {
				return nil, fmt.Errorf("fetch for key %v: treepiece %d has no node at this key", key, owner)
			}
			return slab[0], nil
		default:
			return nil, fmt.Errorf("fetch for key %v: node type %v does not require a remote fetch", key, nodeType)
		}
	}
}

// runSimulation wires a Driver to the configured input file and runs
// num_iterations rounds of the configured visitor, discarding non-starter
// cache entries between iterations the way a fresh tree invalidates the
// prior round's fetches.
func runSimulation(ctx context.Context, cfg config.Config) error {
	visitorKind := cfg.VisitorKind
	if visitorKind == "" {
		visitorKind = "gravity"
	}
	makeVisitor, err := visitorFor(visitorKind)
	if err != nil {
		return err
	}
	if cfg.NReaders != 1 {
		return fmt.Errorf("this build only supports a single reader branch reading one input file; got n_readers=%d", cfg.NReaders)
	}

	f, err := os.Open(cfg.InputFile)
	if err != nil {
		return err
	}
	defer f.Close()

	d := driver.New(cfg)
	if _, err := d.Load(ctx, []io.Reader{f}); err != nil {
		return err
	}

	cm := cache.New[visitor.CentroidData](makeFetch(d), cache.ResumeFunc(func(context.Context, ptkey.Key, []int) {}))
	d.Cache = cm

	for it := 0; it < cfg.NumIterations; it++ {
		dlog.Infof(ctx, "iteration %d/%d (visitor=%s)", it+1, cfg.NumIterations, visitorKind)
		if err := d.RunIteration(ctx, it, 1.0, makeVisitor); err != nil {
			return err
		}
		cm.Destroy(true)
	}
	return nil
}

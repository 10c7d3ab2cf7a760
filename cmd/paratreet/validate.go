// Copyright (C) 2024  The paratreet-ng Authors
//
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/datawire/dlib/dlog"

	"git.lukeshu.com/paratreet-ng/lib/config"
	"git.lukeshu.com/paratreet-ng/lib/driver"
	"git.lukeshu.com/paratreet-ng/lib/tree"
)

// runValidate runs the decomposition, tree-build and upward phases only
// (no cache, no interact/perturb) and reports partition completeness,
// delivery, the leaf bucket bound and mass conservation as structured
// findings, the promotion of the
// original's DEBUG-only treepieces.check() calls into something CI can
// run without a full force-computation pass.
func runValidate(ctx context.Context, cfg config.Config) error {
	if cfg.NReaders != 1 {
		return fmt.Errorf("validate only supports a single reader branch reading one input file; got n_readers=%d", cfg.NReaders)
	}
	f, err := os.Open(cfg.InputFile)
	if err != nil {
		return err
	}
	defer f.Close()

	d := driver.New(cfg)
	box, err := d.Load(ctx, []io.Reader{f})
	if err != nil {
		return err
	}
	dlog.Infof(ctx, "validate: loaded %d particles", box.Count)

	d.AssignKeys()
	if err := d.FindSplitters(ctx, box.Count); err != nil {
		dlog.Errorf(ctx, "validate: FAIL partition completeness: %v", err)
		return err
	}
	d.MakeTreePieces()
	dlog.Infof(ctx, "validate: OK partition completeness (%d treepieces, counts sum to %d)", len(d.Pieces), box.Count)

	d.Flush()
	if err := d.BuildTrees(ctx); err != nil {
		dlog.Errorf(ctx, "validate: FAIL delivery/build: %v", err)
		return err
	}
	dlog.Infof(ctx, "validate: OK delivery (every treepiece received its expected particle count)")

	leafBound := int(math.Ceil(tree.BucketTolerance * float64(cfg.MaxParticlesPerLeaf)))
	overLeaf := 0
	for _, tp := range d.Pieces {
		for _, l := range tp.Leaves {
			if l.N > leafBound {
				overLeaf++
			}
		}
	}
	if overLeaf > 0 {
		err := fmt.Errorf("validate: FAIL leaf bucket bound: %d leaves exceed %d (ceil(%g * max_particles_per_leaf=%d))", overLeaf, leafBound, tree.BucketTolerance, cfg.MaxParticlesPerLeaf)
		dlog.Errorf(ctx, "%v", err)
		return err
	}
	dlog.Infof(ctx, "validate: OK leaf bucket bound (<= %d particles/leaf)", leafBound)

	d.Upward(ctx)
	var totalMass float64
	for _, tp := range d.Pieces {
		if el, ok := d.Elements.Get(tp.TPKey); ok {
			data, _ := el.RequestData()
			totalMass += data.Mass
		}
	}
	if math.Abs(totalMass-box.TotalMass) > 1e-9*math.Max(1, math.Abs(box.TotalMass)) {
		err := fmt.Errorf("validate: FAIL mass conservation: sum over treepiece tp_keys = %g, loaded total = %g", totalMass, box.TotalMass)
		dlog.Errorf(ctx, "%v", err)
		return err
	}
	dlog.Infof(ctx, "validate: OK mass conservation (sum over treepiece tp_keys = %g)", totalMass)

	return nil
}

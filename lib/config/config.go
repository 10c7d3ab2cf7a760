// Copyright (C) 2024  The paratreet-ng Authors
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package config holds the recognized run options (§6 "Configuration")
// and the pflag.Value enum types used to validate them at the CLI layer.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"git.lukeshu.com/paratreet-ng/lib/slices"
)

// visitorKinds lists the interaction visitors cmd/paratreet knows how to
// build; "" makes cmd/paratreet fall back to gravity.
var visitorKinds = []string{"", "gravity", "density", "pressure", "count"}

// DecompType selects how the universe is partitioned into TreePieces.
type DecompType int

const (
	DecompOct DecompType = iota
	DecompSFC
)

var _ pflag.Value = (*DecompType)(nil)

// Type implements pflag.Value.
func (d *DecompType) Type() string { return "decomptype" }

// Set implements pflag.Value.
func (d *DecompType) Set(str string) error {
	switch strings.ToUpper(str) {
	case "OCT":
		*d = DecompOct
	case "SFC":
		*d = DecompSFC
	default:
		return fmt.Errorf("invalid decomp_type: %q (want OCT or SFC)", str)
	}
	return nil
}

// String implements pflag.Value.
func (d *DecompType) String() string {
	switch *d {
	case DecompOct:
		return "OCT"
	case DecompSFC:
		return "SFC"
	default:
		return fmt.Sprintf("DecompType(%d)", int(*d))
	}
}

// TreeType selects the shape of tree built atop a decomposition. Only
// OCT is implemented; the flag exists so a command line naming another
// value fails fast instead of silently degrading.
type TreeType int

const (
	TreeOct TreeType = iota
)

var _ pflag.Value = (*TreeType)(nil)

func (t *TreeType) Type() string { return "treetype" }

func (t *TreeType) Set(str string) error {
	switch strings.ToUpper(str) {
	case "OCT":
		*t = TreeOct
	default:
		return fmt.Errorf("invalid tree_type: %q (want OCT)", str)
	}
	return nil
}

func (t *TreeType) String() string {
	switch *t {
	case TreeOct:
		return "OCT"
	default:
		return fmt.Sprintf("TreeType(%d)", int(*t))
	}
}

// Config is the full set of options recognized by a run: it is the
// single value threaded from CLI flags through the driver into the
// reader pool and decomposition search.
type Config struct {
	InputFile           string
	NReaders            int
	DecompTolerance     float64
	MaxParticlesPerTP   int
	MaxParticlesPerLeaf int
	DecompType          DecompType
	TreeType            TreeType
	NumIterations       int
	FlushPeriod         int
	LBPeriod            int
	NumTotalTreePieces  int
	NumShareLevels      int
	VisitorKind         string
}

// Default returns a Config populated with the values the original system
// ships as defaults, before flags are applied.
func Default() Config {
	return Config{
		NReaders:            1,
		DecompTolerance:     1.0,
		MaxParticlesPerTP:   1 << 20,
		MaxParticlesPerLeaf: 12,
		DecompType:          DecompOct,
		TreeType:            TreeOct,
		NumIterations:       1,
		FlushPeriod:         1,
		LBPeriod:            0,
		NumTotalTreePieces:  1 << 16,
		NumShareLevels:      3,
		VisitorKind:         "gravity",
	}
}

// Validate checks the invariants the CLI can't express via flag types
// alone: decomp_tolerance must be >= 1, counts must be positive.
func (c Config) Validate() error {
	switch {
	case c.InputFile == "":
		return fmt.Errorf("input_file is required")
	case c.NReaders < 1:
		return fmt.Errorf("n_readers must be >= 1, got %d", c.NReaders)
	case c.DecompTolerance < 1:
		return fmt.Errorf("decomp_tolerance must be >= 1, got %g", c.DecompTolerance)
	case c.MaxParticlesPerTP < 1:
		return fmt.Errorf("max_particles_per_tp must be >= 1, got %d", c.MaxParticlesPerTP)
	case c.MaxParticlesPerLeaf < 1:
		return fmt.Errorf("max_particles_per_leaf must be >= 1, got %d", c.MaxParticlesPerLeaf)
	case c.NumIterations < 1:
		return fmt.Errorf("num_iterations must be >= 1, got %d", c.NumIterations)
	case c.FlushPeriod < 1:
		return fmt.Errorf("flush_period must be >= 1, got %d", c.FlushPeriod)
	case c.NumTotalTreePieces < 1:
		return fmt.Errorf("num_total_treepieces must be >= 1, got %d", c.NumTotalTreePieces)
	case c.NumShareLevels < -1:
		return fmt.Errorf("num_share_levels must be >= -1, got %d", c.NumShareLevels)
	}
	if !slices.Contains(c.VisitorKind, visitorKinds) {
		return fmt.Errorf("visitor must be one of gravity, density, pressure, count; got %q", c.VisitorKind)
	}
	return nil
}

// Flags registers every recognized option onto fs, backed by c.
func (c *Config) Flags(fs *pflag.FlagSet) {
	fs.StringVar(&c.InputFile, "input-file", c.InputFile, "path to the binary particle stream")
	fs.IntVar(&c.NReaders, "n-readers", c.NReaders, "number of reader branches")
	fs.Float64Var(&c.DecompTolerance, "decomp-tolerance", c.DecompTolerance, "splitter-search bucket tolerance multiplier (>=1)")
	fs.IntVar(&c.MaxParticlesPerTP, "max-particles-per-tp", c.MaxParticlesPerTP, "target particle count per TreePiece")
	fs.IntVar(&c.MaxParticlesPerLeaf, "max-particles-per-leaf", c.MaxParticlesPerLeaf, "target particle count per leaf node")
	fs.Var(&c.DecompType, "decomp-type", "decomposition strategy: OCT or SFC")
	fs.Var(&c.TreeType, "tree-type", "tree shape: OCT")
	fs.IntVar(&c.NumIterations, "num-iterations", c.NumIterations, "number of simulation iterations to run")
	fs.IntVar(&c.FlushPeriod, "flush-period", c.FlushPeriod, "rebuild the tree from scratch every N iterations")
	fs.IntVar(&c.LBPeriod, "lb-period", c.LBPeriod, "rebalance TreePieces across processes every N iterations (0 disables)")
	fs.IntVar(&c.NumTotalTreePieces, "num-total-treepieces", c.NumTotalTreePieces, "upper bound on the number of TreePiece partitions")
	fs.IntVar(&c.NumShareLevels, "num-share-levels", c.NumShareLevels, "depth of the starter pack shared before downward traversal (-1 shares everything)")
	fs.StringVar(&c.VisitorKind, "visitor", c.VisitorKind, "interaction visitor to run: gravity, density, pressure, or count")
}

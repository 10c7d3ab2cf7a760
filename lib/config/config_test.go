// Copyright (C) 2024  The paratreet-ng Authors
//
// SPDX-License-Identifier: GPL-2.0-or-later

package config_test

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.lukeshu.com/paratreet-ng/lib/config"
)

func TestDecompTypeSetString(t *testing.T) {
	var d config.DecompType
	require.NoError(t, d.Set("oct"))
	assert.Equal(t, "OCT", d.String())
	require.NoError(t, d.Set("SFC"))
	assert.Equal(t, "SFC", d.String())
	assert.Error(t, d.Set("bogus"))
}

func TestDefaultValidates(t *testing.T) {
	c := config.Default()
	c.InputFile = "particles.bin"
	assert.NoError(t, c.Validate())
}

func TestValidateRejectsBadTolerance(t *testing.T) {
	c := config.Default()
	c.InputFile = "particles.bin"
	c.DecompTolerance = 0.5
	assert.Error(t, c.Validate())
}

func TestValidateRequiresInputFile(t *testing.T) {
	c := config.Default()
	assert.Error(t, c.Validate())
}

func TestValidateRejectsUnknownVisitor(t *testing.T) {
	c := config.Default()
	c.InputFile = "particles.bin"
	c.VisitorKind = "bogus"
	assert.Error(t, c.Validate())
}

func TestFlagsRoundTrip(t *testing.T) {
	c := config.Default()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	c.Flags(fs)
	require.NoError(t, fs.Parse([]string{
		"--input-file=particles.bin",
		"--n-readers=4",
		"--decomp-type=SFC",
	}))
	assert.Equal(t, "particles.bin", c.InputFile)
	assert.Equal(t, 4, c.NReaders)
	assert.Equal(t, config.DecompSFC, c.DecompType)
	assert.NoError(t, c.Validate())
}

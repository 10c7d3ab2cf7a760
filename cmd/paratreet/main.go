// Copyright (C) 2024  The paratreet-ng Authors
//
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"os"

	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dlog"
	"github.com/spf13/cobra"

	"git.lukeshu.com/paratreet-ng/lib/config"
	"git.lukeshu.com/paratreet-ng/lib/textui"
)

func main() {
	logLevel := textui.LogLevelFlag{Level: dlog.LogLevelInfo}

	argparser := &cobra.Command{
		Use:   "paratreet {[flags]|SUBCOMMAND}",
		Short: "Run a parallel tree-code particle simulation",

		SilenceErrors: true, // main() handles the error after Execute returns
		SilenceUsage:  true,

		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
	argparser.PersistentFlags().Var(&logLevel, "verbosity", "set the log verbosity: error, warn, info, debug, trace")

	argparser.AddCommand(newRunCommand(&logLevel))
	argparser.AddCommand(newValidateCommand(&logLevel))

	if err := argparser.ExecuteContext(context.Background()); err != nil {
		textui.Fprintf(os.Stderr, "%v: error: %v\n", argparser.CommandPath(), err)
		os.Exit(1)
	}
}

// withLogger wraps cmd's RunE so it runs inside a dgroup with signal
// handling and a dlog.Logger backed by lvl, the way btrfs-rec's
// subcommand wrapper attaches logging before dispatching to the actual
// subcommand body.
func withLogger(lvl *textui.LogLevelFlag, runE func(ctx context.Context, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := dlog.WithLogger(cmd.Context(), textui.NewLogger(os.Stderr, lvl.Level))
		grp := dgroup.NewGroup(ctx, dgroup.GroupConfig{EnableSignalHandling: true})
		grp.Go("main", func(ctx context.Context) error {
			return runE(ctx, cmd, args)
		})
		return grp.Wait()
	}
}

func newRunCommand(lvl *textui.LogLevelFlag) *cobra.Command {
	cfg := config.Default()

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a simulation to completion",
	}
	cfg.Flags(cmd.Flags())
	cmd.RunE = withLogger(lvl, func(ctx context.Context, cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		return runSimulation(ctx, cfg)
	})
	return cmd
}

func newValidateCommand(lvl *textui.LogLevelFlag) *cobra.Command {
	cfg := config.Default()

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Decompose and build the input once and report invariant checks",
	}
	cfg.Flags(cmd.Flags())
	cmd.RunE = withLogger(lvl, func(ctx context.Context, cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		return runValidate(ctx, cfg)
	})
	return cmd
}

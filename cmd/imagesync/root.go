package main

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/starsweep/imagesync/cmd/imagesync/commands"
	"github.com/starsweep/imagesync/cmd/imagesync/opts"
	"github.com/starsweep/imagesync/pkg/config"
	"github.com/starsweep/imagesync/pkg/log"
	"github.com/starsweep/imagesync/pkg/state"
)

var (
	// Flags
	configFile string
	debug      bool
	quiet      bool
	night      string
	dryRun     bool
)

// newRootOpts loads the config and state manager for a command run.
func newRootOpts(ctx context.Context) (*opts.RootOpts, error) {
	cfg, err := config.Load(ctx, configFile)
	if err != nil {
		return nil, errors.Errorf("loading config: %w", err)
	}

	stateManager := state.New(cfg.StateFile)
	if err := stateManager.Load(ctx); err != nil {
		return nil, errors.Errorf("loading state: %w", err)
	}

	return &opts.RootOpts{
		Config:   cfg,
		State:    stateManager,
		Reporter: log.NewReporter(os.Stdout, quiet),
		Night:    night,
		DryRun:   dryRun,
	}, nil
}

// addRootFlags adds shared flags to the root command
func addRootFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", "imagesync.yaml", "config file path (.yaml or .hcl)")
	cmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress per-file output")
	cmd.PersistentFlags().StringVar(&night, "night", "", "override the night token (YYYYMMDD)")
	cmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "report without transferring or recording")
}

// setupLogging configures zerolog based on flags
func setupLogging() {
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	zerolog.DefaultContextLogger = &logger
}

// newRootCmd wires the command tree.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "imagesync",
		Short: "Sync observation files to an archive host as they appear",
		Long: `imagesync watches a directory for finished observation files and copies
them to an archive destination over rsync (with scp and plain-copy
fallbacks). Transfers are tracked in a state file, so files are sent
exactly once unless their content changes.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging()
		},
	}

	addRootFlags(root)

	load := opts.Loader(newRootOpts)
	root.AddCommand(
		commands.NewSyncCmd(load),
		commands.NewWatchCmd(load),
		commands.NewStatusCmd(load),
		commands.NewPruneCmd(load),
		commands.NewInitCmd(&configFile),
	)

	return root
}

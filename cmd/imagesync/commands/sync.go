package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/starsweep/imagesync/cmd/imagesync/opts"
	"github.com/starsweep/imagesync/pkg/lockfile"
	"github.com/starsweep/imagesync/pkg/log"
)

// NewSyncCmd creates the one-shot sync command.
func NewSyncCmd(load opts.Loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run a single scan-and-transfer cycle",
		Long: `Sync runs one cycle and exits. It will:
1. Resolve the night token and expand configured paths
2. Scan the watch directory for stable matching files
3. Transfer each file not already recorded as sent
4. Record every outcome in the state file

The exit code is non-zero when any file fails or the cycle cannot run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			ro, err := load(ctx)
			if err != nil {
				return err
			}

			lock, err := lockfile.Acquire(ctx, lockPath(ro))
			if err != nil {
				return err
			}
			defer lock.Release()

			eng, err := newEngine(ro)
			if err != nil {
				return err
			}

			report, err := eng.Cycle(ctx)
			if err != nil {
				return errors.Errorf("sync cycle: %w", err)
			}
			if report.Failed > 0 {
				return errors.Errorf("%d of %d files failed to transfer", report.Failed, report.Candidates)
			}

			log.Success(fmt.Sprintf("night %s synced: %d copied, %d already current",
				report.Night, report.Copied, report.SkippedUnchanged+report.SkippedDone))
			return nil
		},
	}

	return cmd
}

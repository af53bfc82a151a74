package commands

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/starsweep/imagesync/cmd/imagesync/opts"
	"github.com/starsweep/imagesync/pkg/lockfile"
	"github.com/starsweep/imagesync/pkg/log"
)

// NewWatchCmd creates the continuous-mode command.
func NewWatchCmd(load opts.Loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run sync cycles continuously at the configured interval",
		Long: `Watch runs cycles forever, sleeping scan_interval_seconds between them,
until interrupted. A watch directory that does not exist yet is waited
for rather than treated as an error. Old success records are pruned from
the state file once a day.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

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

			log.Notice("watching " + ro.Config.String())

			err = eng.Watch(ctx)
			if errors.Is(err, context.Canceled) {
				log.Notice("interrupted, shutting down")
				return nil
			}
			return err
		},
	}

	return cmd
}

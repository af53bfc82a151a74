package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/starsweep/imagesync/cmd/imagesync/opts"
	"github.com/starsweep/imagesync/pkg/log"
)

// NewPruneCmd creates the prune command.
func NewPruneCmd(load opts.Loader) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Drop old success records from the state file",
		Long: `Prune removes records of files that transferred successfully more than
the retention window ago. Failed and pending records are kept: their
history is what stops the engine from retrying forever.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			ro, err := load(ctx)
			if err != nil {
				return err
			}

			if days <= 0 {
				days = ro.Config.PruneAfterDays
			}
			cutoff := time.Now().AddDate(0, 0, -days)

			removed := ro.State.Prune(cutoff)
			if removed == 0 {
				log.Notice(fmt.Sprintf("nothing to prune (retention %d days)", days))
				return nil
			}

			if err := ro.State.Save(ctx); err != nil {
				return err
			}
			log.Success(fmt.Sprintf("pruned %d records older than %d days", removed, days))
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "retention in days (default: prune_after_days from config)")
	return cmd
}

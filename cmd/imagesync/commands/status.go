package commands

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/starsweep/imagesync/cmd/imagesync/opts"
)

// NewStatusCmd creates the status command.
func NewStatusCmd(load opts.Loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show what the state file knows about past transfers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			ro, err := load(ctx)
			if err != nil {
				return err
			}

			s := ro.State.Counts()

			fmt.Fprintln(os.Stdout, color.New(color.Bold).Sprint("imagesync status"))
			fmt.Fprintf(os.Stdout, "  flow:       %s\n", ro.Config.String())
			fmt.Fprintf(os.Stdout, "  state file: %s\n", ro.State.Path())

			lastScan := "never"
			if s.LastScan != nil {
				lastScan = s.LastScan.Local().Format("2006-01-02 15:04:05")
			}
			fmt.Fprintf(os.Stdout, "  last scan:  %s\n", lastScan)

			fmt.Fprintf(os.Stdout, "  tracked:    %d (%s, %s, %s)\n",
				s.Total,
				color.GreenString("%d sent", s.Success),
				color.RedString("%d failed", s.Failed),
				color.YellowString("%d pending", s.Pending))
			return nil
		},
	}

	return cmd
}

package commands

import (
	"github.com/spf13/cobra"

	"github.com/starsweep/imagesync/pkg/config"
	"github.com/starsweep/imagesync/pkg/log"
)

// NewInitCmd creates the init command. It takes the config path flag
// directly instead of a Loader: loading is exactly what cannot happen
// before the file exists.
func NewInitCmd(configFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a commented starter config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteDefault(cmd.Context(), *configFile); err != nil {
				return err
			}
			log.Success("wrote " + *configFile + ", edit it and run: imagesync sync")
			return nil
		},
	}

	return cmd
}

// Package commands holds the imagesync subcommands. Each command loads its
// dependencies through an opts.Loader inside RunE, after flags are parsed.
package commands

import (
	"github.com/starsweep/imagesync/cmd/imagesync/opts"
	"github.com/starsweep/imagesync/pkg/engine"
	"github.com/starsweep/imagesync/pkg/transfer"
	"gitlab.com/tozd/go/errors"
)

// newEngine assembles the transport cascade and engine from loaded options.
func newEngine(ro *opts.RootOpts) (*engine.Engine, error) {
	cascade, err := transfer.NewCascade(ro.Config.TransferMethod, transfer.Options{
		Remote: transfer.Remote{
			User: ro.Config.RemoteUser,
			Host: ro.Config.RemoteHost,
		},
		Compression: ro.Config.Compression,
		Timeout:     ro.Config.TransferTimeout(),
		Verify:      ro.Config.ShouldVerify(),
	})
	if err != nil {
		return nil, errors.Errorf("building transport: %w", err)
	}

	eng, err := engine.New(engine.Options{
		Config:    ro.Config,
		State:     ro.State,
		Transport: cascade,
		Reporter:  ro.Reporter,
		Night:     ro.Night,
		DryRun:    ro.DryRun,
	})
	if err != nil {
		return nil, errors.Errorf("building engine: %w", err)
	}
	return eng, nil
}

// lockPath is where the single-instance lock lives, next to the state file.
func lockPath(ro *opts.RootOpts) string {
	return ro.State.Path() + ".lock"
}

package opts

import (
	"context"

	"github.com/starsweep/imagesync/pkg/config"
	"github.com/starsweep/imagesync/pkg/log"
	"github.com/starsweep/imagesync/pkg/state"
)

// RootOpts contains the shared dependencies handed to every command.
type RootOpts struct {
	Config   *config.Config
	State    *state.Manager
	Reporter *log.Reporter

	// Night overrides the computed night token (YYYYMMDD), empty otherwise.
	Night string

	// DryRun reports without transferring or mutating state.
	DryRun bool
}

// Loader builds RootOpts after flag parsing. Commands call it inside RunE
// so the --config and --debug flags have taken effect.
type Loader func(ctx context.Context) (*RootOpts, error)

package transfer

import (
	"context"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// Cascade tries an ordered list of transports, first success wins. This
// replaces the old per-platform "try rsync, fall back to scp, fall back to
// local copy" duplication with one explicit strategy list picked from
// configuration.
type Cascade struct {
	transports []Transport
}

// Method names accepted by NewCascade.
const (
	MethodAuto  = "auto"
	MethodRsync = "rsync"
	MethodScp   = "scp"
	MethodLocal = "local"
)

// NewCascade builds the transport list for the configured method. A local
// destination always uses the local transport regardless of method: there
// is no host to ssh to.
func NewCascade(method string, opts Options) (*Cascade, error) {
	if opts.Remote.IsLocal() || method == MethodLocal {
		return &Cascade{transports: []Transport{&Local{Opts: opts}}}, nil
	}

	switch method {
	case MethodAuto, "":
		return &Cascade{transports: []Transport{
			&Rsync{Opts: opts},
			&Scp{Opts: opts},
		}}, nil
	case MethodRsync:
		return &Cascade{transports: []Transport{&Rsync{Opts: opts}}}, nil
	case MethodScp:
		return &Cascade{transports: []Transport{&Scp{Opts: opts}}}, nil
	default:
		return nil, errors.Errorf("unknown transfer method %q", method)
	}
}

// Available reports whether at least one transport can run here. When this
// is false the whole cycle is doomed, not just one file.
func (c *Cascade) Available() bool {
	for _, t := range c.transports {
		if t.Available() {
			return true
		}
	}
	return false
}

func (c *Cascade) Name() string { return "cascade" }

// Transfer attempts each available transport in order and returns the first
// success. The last failure is returned when every transport fails.
func (c *Cascade) Transfer(ctx context.Context, src, destDir string) (Outcome, error) {
	logger := zerolog.Ctx(ctx)

	var lastErr error
	var lastOutcome Outcome
	attempted := false

	for _, t := range c.transports {
		if !t.Available() {
			logger.Debug().Str("transport", t.Name()).Msg("transport unavailable, skipping")
			continue
		}
		attempted = true

		outcome, err := t.Transfer(ctx, src, destDir)
		if err == nil {
			return outcome, nil
		}

		logger.Warn().Err(err).
			Str("transport", t.Name()).
			Str("src", src).
			Msg("transport failed")
		lastErr = errors.Errorf("%s: %w", t.Name(), err)
		lastOutcome = outcome
	}

	if !attempted {
		return Outcome{}, errors.Errorf("%w", ErrNoTransport)
	}
	return lastOutcome, lastErr
}

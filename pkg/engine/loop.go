package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/sync/errgroup"

	"github.com/starsweep/imagesync/pkg/transfer"
)

// pruneInterval is how often the watch loop trims old success records.
const pruneInterval = 24 * time.Hour

// Watch runs cycles forever at the configured scan interval, with a
// retention prune once a day on a separate goroutine. A missing watch root
// is routine here (the producer has not created tonight's directory yet)
// and only logged; a missing transport aborts, because no later cycle can
// do better until the machine changes.
func (e *Engine) Watch(ctx context.Context) error {
	logger := zerolog.Ctx(ctx)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ticker := time.NewTicker(e.cfg.ScanInterval())
		defer ticker.Stop()

		for {
			report, err := e.Cycle(ctx)
			switch {
			case err == nil:
				logger.Info().
					Str("night", report.Night).
					Int("copied", report.Copied).
					Int("failed", report.Failed).
					Msg("cycle finished")
			case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
				return err
			case errors.Is(err, ErrSourceMissing):
				logger.Info().Err(err).Msg("watch root not there yet, waiting")
			case errors.Is(err, transfer.ErrNoTransport):
				return err
			default:
				logger.Error().Err(err).Msg("cycle failed")
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
	})

	g.Go(func() error {
		ticker := time.NewTicker(pruneInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}

			cutoff := clock().AddDate(0, 0, -e.cfg.PruneAfterDays)
			if removed := e.st.Prune(cutoff); removed > 0 {
				if err := e.st.Save(ctx); err != nil {
					logger.Error().Err(err).Msg("saving state after prune")
					continue
				}
				logger.Info().Int("removed", removed).Msg("pruned old transfer records")
			}
		}
	})

	return g.Wait()
}

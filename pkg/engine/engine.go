// Package engine runs the sync cycle: scan the watch root, filter for
// stable files, transfer each one through the configured transport, and
// book the outcome durably before moving on.
package engine

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/starsweep/imagesync/pkg/config"
	"github.com/starsweep/imagesync/pkg/log"
	"github.com/starsweep/imagesync/pkg/period"
	"github.com/starsweep/imagesync/pkg/scan"
	"github.com/starsweep/imagesync/pkg/state"
	"github.com/starsweep/imagesync/pkg/transfer"
)

// ErrSourceMissing means the expanded watch root does not exist yet. In
// continuous mode this is routine early in the night, before the producer
// creates the directory; in one-shot mode it surfaces to the operator.
var ErrSourceMissing = errors.Base("watch root does not exist")

// Options configures an Engine. Config, State, Transport and Reporter are
// required.
type Options struct {
	Config    *config.Config
	State     *state.Manager
	Transport transfer.Transport
	Reporter  *log.Reporter

	// Night overrides the computed night token (YYYYMMDD). Empty means
	// compute from the clock at the start of each cycle.
	Night string

	// DryRun reports what would be transferred without invoking the
	// transport or touching the state file.
	DryRun bool
}

// Engine drives sync cycles against one watch root.
type Engine struct {
	cfg       *config.Config
	st        *state.Manager
	transport transfer.Transport
	reporter  *log.Reporter
	night     string
	dryRun    bool
}

// New validates the options and creates an engine.
func New(opts Options) (*Engine, error) {
	if opts.Config == nil {
		return nil, errors.Errorf("config is required")
	}
	if opts.State == nil {
		return nil, errors.Errorf("state manager is required")
	}
	if opts.Transport == nil {
		return nil, errors.Errorf("transport is required")
	}
	if opts.Reporter == nil {
		return nil, errors.Errorf("reporter is required")
	}
	if opts.Night != "" {
		if err := period.Validate(opts.Night); err != nil {
			return nil, err
		}
	}
	return &Engine{
		cfg:       opts.Config,
		st:        opts.State,
		transport: opts.Transport,
		reporter:  opts.Reporter,
		night:     opts.Night,
		dryRun:    opts.DryRun,
	}, nil
}

// Report summarizes one completed cycle.
type Report struct {
	Night            string
	Candidates       int
	Copied           int
	SkippedUnchanged int
	SkippedUnstable  int
	SkippedDone      int
	SkippedExhausted int
	Failed           int
}

// clock is swapped out in tests.
var clock = time.Now

// Cycle runs one scan-and-transfer pass. Per-file failures are counted in
// the report, not returned; the returned error is reserved for conditions
// that doom the whole cycle (missing root, no transport, cancellation).
func (e *Engine) Cycle(ctx context.Context) (Report, error) {
	logger := zerolog.Ctx(ctx)

	night := e.night
	if night == "" {
		boundary := period.DefaultBoundaryHour
		if e.cfg.NightBoundaryHour != nil {
			boundary = *e.cfg.NightBoundaryHour
		}
		night = period.Current(clock(), boundary)
	}
	root := period.Expand(e.cfg.WatchPath, night)
	remoteBase := period.Expand(e.cfg.RemoteBasePath, night)
	report := Report{Night: night}

	if _, err := os.Stat(root); err != nil {
		if os.IsNotExist(err) {
			return report, errors.Errorf("%w: %s", ErrSourceMissing, root)
		}
		return report, errors.Errorf("stat watch root %s: %w", root, err)
	}

	scanner := &scan.Scanner{
		Root:     root,
		Includes: e.cfg.FilePatterns,
		Excludes: e.cfg.ExcludePatterns,
	}
	candidates, err := scanner.Scan(ctx)
	if err != nil {
		return report, err
	}
	sort.Strings(candidates)
	report.Candidates = len(candidates)

	e.reporter.Header(night, root)
	logger.Info().
		Str("night", night).
		Int("candidates", len(candidates)).
		Str("root", root).
		Msg("cycle started")

	for _, src := range candidates {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := e.processFile(ctx, src, root, remoteBase, &report); err != nil {
			return report, err
		}
	}

	if !e.dryRun {
		e.st.MarkScanned()
		if err := e.st.Save(ctx); err != nil {
			return report, err
		}
	}

	e.reporter.Summaryf("night %s: %d copied, %d up to date, %d still writing, %d already sent, %d given up, %d failed (%d candidates)",
		night, report.Copied, report.SkippedUnchanged, report.SkippedUnstable,
		report.SkippedDone, report.SkippedExhausted, report.Failed, report.Candidates)
	return report, nil
}

// processFile runs the stability and bookkeeping checks for one candidate
// and transfers it if due. Only cycle-dooming errors are returned.
func (e *Engine) processFile(ctx context.Context, src, root, remoteBase string, report *Report) error {
	logger := zerolog.Ctx(ctx)
	display := displayPath(src, root)

	if !scan.IsStable(src, e.cfg.MinFileAge(), clock()) {
		report.SkippedUnstable++
		e.reporter.File(display, log.ResultSkippedUnstable)
		return nil
	}

	id, err := state.IdentityOf(src)
	if err != nil {
		// Vanished between scan and now. Next cycle decides.
		logger.Debug().Err(err).Str("path", src).Msg("candidate vanished before transfer")
		report.SkippedUnstable++
		return nil
	}

	rec := e.st.Lookup(id)
	if rec.Terminal(e.cfg.RetryAttempts) {
		if rec.Status == state.StatusSuccess {
			report.SkippedDone++
			e.reporter.File(display, log.ResultSkippedDone)
		} else {
			report.SkippedExhausted++
			logger.Debug().Str("path", src).Int("retries", rec.Retries).
				Msg("retry budget exhausted, not attempting")
		}
		return nil
	}

	destDir := e.destFor(src, root, remoteBase)

	if e.dryRun {
		report.Copied++
		e.reporter.File(display, log.ResultCopied)
		logger.Info().Str("path", src).Str("dest", destDir).Msg("dry run, would transfer")
		return nil
	}

	remaining := e.cfg.RetryAttempts
	if rec != nil {
		remaining -= rec.Retries
	}

	for attempt := 0; attempt < remaining; attempt++ {
		outcome, terr := e.transport.Transfer(ctx, src, destDir)
		if terr == nil {
			e.st.RecordAttempt(ctx, id, src, true)
			if err := e.st.Save(ctx); err != nil {
				return err
			}
			if outcome.Copied {
				report.Copied++
				e.reporter.File(display, log.ResultCopied)
			} else {
				report.SkippedUnchanged++
				e.reporter.File(display, log.ResultUnchanged)
			}
			return nil
		}
		if errors.Is(terr, transfer.ErrNoTransport) {
			// Nothing can move on this machine; retrying other files is
			// pointless.
			return terr
		}

		updated := e.st.RecordAttempt(ctx, id, src, false)
		if err := e.st.Save(ctx); err != nil {
			return err
		}
		logger.Warn().Err(terr).
			Str("path", src).
			Int("retries", updated.Retries).
			Int("max_retries", e.cfg.RetryAttempts).
			Msg("transfer attempt failed")

		if attempt < remaining-1 {
			if err := sleepCtx(ctx, e.cfg.RetryDelay()); err != nil {
				return err
			}
		}
	}

	report.Failed++
	e.reporter.File(display, log.ResultFailed)
	return nil
}

// nightDirRe matches an 8-digit leading path component.
var nightDirRe = regexp.MustCompile(`^\d{8}$`)

// destFor builds the destination directory for src. The path relative to
// the watch root is preserved under the remote base. When a camera name is
// configured it is inserted after a leading night directory (or prefixed
// when the file sits directly under the root), so several cameras can feed
// one archive tree without colliding.
func (e *Engine) destFor(src, root, remoteBase string) string {
	rel, err := filepath.Rel(root, src)
	if err != nil {
		rel = filepath.Base(src)
	}
	dir := filepath.ToSlash(filepath.Dir(rel))

	var parts []string
	if dir != "." {
		parts = strings.Split(dir, "/")
	}

	if e.cfg.CameraName != "" {
		if len(parts) > 0 && nightDirRe.MatchString(parts[0]) {
			parts = append(parts[:1], append([]string{e.cfg.CameraName}, parts[1:]...)...)
		} else {
			parts = append([]string{e.cfg.CameraName}, parts...)
		}
	}

	// Remote paths are POSIX regardless of the local platform.
	return path.Join(append([]string{remoteBase}, parts...)...)
}

// displayPath renders a candidate relative to the watch root for console
// output.
func displayPath(src, root string) string {
	rel, err := filepath.Rel(root, src)
	if err != nil {
		return src
	}
	return filepath.ToSlash(rel)
}

// sleepCtx pauses between retry attempts but wakes immediately on
// cancellation.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

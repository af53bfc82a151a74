package engine

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starsweep/imagesync/pkg/config"
	"github.com/starsweep/imagesync/pkg/log"
	"github.com/starsweep/imagesync/pkg/state"
	"github.com/starsweep/imagesync/pkg/transfer"
)

func setupTestLogger(t *testing.T) context.Context {
	logger := zerolog.New(zerolog.TestWriter{T: t}).With().Timestamp().Logger()
	return logger.WithContext(context.Background())
}

// testConfig builds a config directly, without Validate, so retry delays
// stay zero and tests run without sleeping.
func testConfig(watch, remoteBase string) *config.Config {
	noon := 12
	noDelay := 0
	return &config.Config{
		WatchPath:           watch,
		RemoteBasePath:      remoteBase,
		FilePatterns:        []string{"*.fits"},
		MinFileAgeSeconds:   5,
		ScanIntervalSeconds: 1,
		RetryAttempts:       3,
		RetryDelaySeconds:   &noDelay,
		NightBoundaryHour:   &noon,
		PruneAfterDays:      7,
	}
}

// fakeTransport records calls and returns a scripted result.
type fakeTransport struct {
	outcome transfer.Outcome
	err     error
	calls   []string
}

func (f *fakeTransport) Name() string    { return "fake" }
func (f *fakeTransport) Available() bool { return true }

func (f *fakeTransport) Transfer(ctx context.Context, src, destDir string) (transfer.Outcome, error) {
	f.calls = append(f.calls, destDir)
	return f.outcome, f.err
}

func writeAged(t *testing.T, path string, age time.Duration) {
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("frame data"), 0o644))
	old := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, old, old))
}

func newTestEngine(t *testing.T, cfg *config.Config, ft transfer.Transport) (*Engine, *state.Manager) {
	st := state.New(filepath.Join(t.TempDir(), "state.json"))
	eng, err := New(Options{
		Config:    cfg,
		State:     st,
		Transport: ft,
		Reporter:  log.NewReporter(&bytes.Buffer{}, false),
		Night:     "20251006",
	})
	require.NoError(t, err)
	return eng, st
}

func TestNewValidation(t *testing.T) {
	cfg := testConfig("/tmp/watch", "/tmp/dest")
	st := state.New(filepath.Join(t.TempDir(), "state.json"))
	ft := &fakeTransport{}
	reporter := log.NewReporter(&bytes.Buffer{}, true)

	t.Run("missing_config", func(t *testing.T) {
		_, err := New(Options{State: st, Transport: ft, Reporter: reporter})
		assert.Error(t, err)
	})

	t.Run("missing_transport", func(t *testing.T) {
		_, err := New(Options{Config: cfg, State: st, Reporter: reporter})
		assert.Error(t, err)
	})

	t.Run("bad_night_override", func(t *testing.T) {
		_, err := New(Options{Config: cfg, State: st, Transport: ft, Reporter: reporter, Night: "last tuesday"})
		assert.Error(t, err)
	})
}

func TestCycleTransfersStableMatches(t *testing.T) {
	ctx := setupTestLogger(t)
	watch := t.TempDir()

	writeAged(t, filepath.Join(watch, "a.fits"), 10*time.Second)
	writeAged(t, filepath.Join(watch, "b.tmp"), 10*time.Second)
	writeAged(t, filepath.Join(watch, "c.fits"), 1*time.Second)

	ft := &fakeTransport{outcome: transfer.Outcome{Copied: true}}
	eng, _ := newTestEngine(t, testConfig(watch, "/archive"), ft)

	report, err := eng.Cycle(ctx)
	require.NoError(t, err)

	// b.tmp never matched; c.fits matched but is too young.
	assert.Equal(t, 2, report.Candidates)
	assert.Equal(t, 1, report.Copied)
	assert.Equal(t, 1, report.SkippedUnstable)
	assert.Len(t, ft.calls, 1)
}

func TestCycleSecondRunSkipsTransferred(t *testing.T) {
	ctx := setupTestLogger(t)
	watch := t.TempDir()
	writeAged(t, filepath.Join(watch, "a.fits"), 10*time.Second)

	ft := &fakeTransport{outcome: transfer.Outcome{Copied: true}}
	eng, _ := newTestEngine(t, testConfig(watch, "/archive"), ft)

	_, err := eng.Cycle(ctx)
	require.NoError(t, err)

	report, err := eng.Cycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Copied)
	assert.Equal(t, 1, report.SkippedDone)
	assert.Len(t, ft.calls, 1, "no second transfer for an unchanged file")
}

func TestCycleRewrittenFileIsResent(t *testing.T) {
	ctx := setupTestLogger(t)
	watch := t.TempDir()
	target := filepath.Join(watch, "a.fits")
	writeAged(t, target, 10*time.Second)

	ft := &fakeTransport{outcome: transfer.Outcome{Copied: true}}
	eng, _ := newTestEngine(t, testConfig(watch, "/archive"), ft)

	_, err := eng.Cycle(ctx)
	require.NoError(t, err)

	// Same path, new content and mtime: a new identity.
	require.NoError(t, os.WriteFile(target, []byte("reprocessed frame"), 0o644))
	old := time.Now().Add(-10 * time.Second)
	require.NoError(t, os.Chtimes(target, old, old))

	report, err := eng.Cycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Copied)
	assert.Len(t, ft.calls, 2)
}

func TestCycleRetryBudget(t *testing.T) {
	ctx := setupTestLogger(t)
	watch := t.TempDir()
	writeAged(t, filepath.Join(watch, "a.fits"), 10*time.Second)

	ft := &fakeTransport{err: assert.AnError}
	eng, st := newTestEngine(t, testConfig(watch, "/archive"), ft)

	report, err := eng.Cycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Len(t, ft.calls, 3, "three attempts in one cycle")

	id, err := state.IdentityOf(filepath.Join(watch, "a.fits"))
	require.NoError(t, err)
	rec := st.Lookup(id)
	require.NotNil(t, rec)
	assert.Equal(t, state.StatusFailed, rec.Status)
	assert.Equal(t, 3, rec.Retries)

	// Budget exhausted: the next cycle must not attempt a fourth time.
	report, err = eng.Cycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.SkippedExhausted)
	assert.Len(t, ft.calls, 3)
}

func TestCycleBudgetSpansCycles(t *testing.T) {
	ctx := setupTestLogger(t)
	watch := t.TempDir()
	writeAged(t, filepath.Join(watch, "a.fits"), 10*time.Second)

	cfg := testConfig(watch, "/archive")
	cfg.RetryAttempts = 5
	ft := &fakeTransport{err: assert.AnError}
	eng, st := newTestEngine(t, cfg, ft)

	_, err := eng.Cycle(ctx)
	require.NoError(t, err)
	require.Len(t, ft.calls, 5)

	id, err := state.IdentityOf(filepath.Join(watch, "a.fits"))
	require.NoError(t, err)
	require.NotNil(t, st.Lookup(id))

	// Raising the ceiling grants only the difference, not a fresh budget.
	cfg.RetryAttempts = 7
	report, err := eng.Cycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Len(t, ft.calls, 7, "second cycle only spends the remaining budget")
}

func TestCycleUnchangedOutcome(t *testing.T) {
	ctx := setupTestLogger(t)
	watch := t.TempDir()
	writeAged(t, filepath.Join(watch, "a.fits"), 10*time.Second)

	ft := &fakeTransport{outcome: transfer.Outcome{Copied: false}}
	eng, st := newTestEngine(t, testConfig(watch, "/archive"), ft)

	report, err := eng.Cycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Copied)
	assert.Equal(t, 1, report.SkippedUnchanged)

	// Destination already current still counts as success in the ledger.
	id, err := state.IdentityOf(filepath.Join(watch, "a.fits"))
	require.NoError(t, err)
	rec := st.Lookup(id)
	require.NotNil(t, rec)
	assert.Equal(t, state.StatusSuccess, rec.Status)
}

func TestCycleMissingRoot(t *testing.T) {
	ctx := setupTestLogger(t)

	ft := &fakeTransport{}
	eng, _ := newTestEngine(t, testConfig(filepath.Join(t.TempDir(), "nope"), "/archive"), ft)

	_, err := eng.Cycle(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSourceMissing)
	assert.Empty(t, ft.calls)
}

func TestCycleNoTransportAborts(t *testing.T) {
	ctx := setupTestLogger(t)
	watch := t.TempDir()
	writeAged(t, filepath.Join(watch, "a.fits"), 10*time.Second)
	writeAged(t, filepath.Join(watch, "b.fits"), 10*time.Second)

	ft := &fakeTransport{err: transfer.ErrNoTransport}
	eng, _ := newTestEngine(t, testConfig(watch, "/archive"), ft)

	_, err := eng.Cycle(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, transfer.ErrNoTransport)
	assert.Len(t, ft.calls, 1, "aborts after the first file, not once per file")
}

func TestCycleDryRun(t *testing.T) {
	ctx := setupTestLogger(t)
	watch := t.TempDir()
	writeAged(t, filepath.Join(watch, "a.fits"), 10*time.Second)

	ft := &fakeTransport{}
	st := state.New(filepath.Join(t.TempDir(), "state.json"))
	eng, err := New(Options{
		Config:    testConfig(watch, "/archive"),
		State:     st,
		Transport: ft,
		Reporter:  log.NewReporter(&bytes.Buffer{}, true),
		Night:     "20251006",
		DryRun:    true,
	})
	require.NoError(t, err)

	report, err := eng.Cycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Copied)
	assert.Empty(t, ft.calls, "dry run never invokes the transport")
	assert.Equal(t, 0, st.Counts().Total, "dry run never touches the ledger")
	assert.NoFileExists(t, st.Path())
}

func TestCycleSummaryCountsAllSkipReasons(t *testing.T) {
	ctx := setupTestLogger(t)
	watch := t.TempDir()
	writeAged(t, filepath.Join(watch, "done.fits"), 10*time.Second)
	writeAged(t, filepath.Join(watch, "young.fits"), 1*time.Second)

	ft := &fakeTransport{outcome: transfer.Outcome{Copied: true}}
	st := state.New(filepath.Join(t.TempDir(), "state.json"))
	var buf bytes.Buffer
	eng, err := New(Options{
		Config:    testConfig(watch, "/archive"),
		State:     st,
		Transport: ft,
		Reporter:  log.NewReporter(&buf, false),
		Night:     "20251006",
	})
	require.NoError(t, err)

	_, err = eng.Cycle(ctx)
	require.NoError(t, err)

	// Second cycle: done.fits is already sent, young.fits still unstable.
	buf.Reset()
	_, err = eng.Cycle(ctx)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "1 still writing")
	assert.Contains(t, out, "1 already sent")
	assert.Contains(t, out, "0 copied")
}

func TestDestFor(t *testing.T) {
	watch := "/data/frames"

	build := func(camera string) *Engine {
		cfg := testConfig(watch, "/archive")
		cfg.CameraName = camera
		eng, _ := newTestEngine(t, cfg, &fakeTransport{})
		return eng
	}

	t.Run("relative_layout_preserved", func(t *testing.T) {
		eng := build("")
		assert.Equal(t, "/archive/20251006/lights",
			eng.destFor("/data/frames/20251006/lights/a.fits", watch, "/archive"))
	})

	t.Run("camera_inserted_after_night_dir", func(t *testing.T) {
		eng := build("cam1")
		assert.Equal(t, "/archive/20251006/cam1/lights",
			eng.destFor("/data/frames/20251006/lights/a.fits", watch, "/archive"))
	})

	t.Run("camera_prefixed_without_night_dir", func(t *testing.T) {
		eng := build("cam1")
		assert.Equal(t, "/archive/cam1",
			eng.destFor("/data/frames/a.fits", watch, "/archive"))
	})

	t.Run("file_at_root_without_camera", func(t *testing.T) {
		eng := build("")
		assert.Equal(t, "/archive",
			eng.destFor("/data/frames/a.fits", watch, "/archive"))
	})
}

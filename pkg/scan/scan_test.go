package scan

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestLogger(t *testing.T) context.Context {
	logger := zerolog.New(zerolog.TestWriter{T: t}).With().Timestamp().Logger()
	return logger.WithContext(context.Background())
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))
}

func TestScannerMatches(t *testing.T) {
	s := &Scanner{
		Includes: []string{"*.fits"},
		Excludes: []string{"*_bad.fits"},
	}

	tests := []struct {
		name string
		file string
		want bool
	}{
		{"include_match", "light_0001.fits", true},
		{"case_insensitive_include", "LIGHT_0002.FITS", true},
		{"no_include_match", "light_0003.tmp", false},
		{"exclude_wins", "light_0004_bad.fits", false},
		{"case_insensitive_exclude", "LIGHT_0005_BAD.FITS", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Matches(tt.file))
		})
	}
}

func TestScannerScan(t *testing.T) {
	ctx := setupTestLogger(t)

	t.Run("walks_subtree_recursively", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, filepath.Join(root, "a.fits"))
		writeFile(t, filepath.Join(root, "20251006", "b.fits"))
		writeFile(t, filepath.Join(root, "20251006", "cal", "c.FITS"))
		writeFile(t, filepath.Join(root, "20251006", "notes.txt"))

		s := &Scanner{Root: root, Includes: []string{"*.fits"}}
		got, err := s.Scan(ctx)
		require.NoError(t, err)

		sort.Strings(got)
		want := []string{
			filepath.Join(root, "20251006", "b.fits"),
			filepath.Join(root, "20251006", "cal", "c.FITS"),
			filepath.Join(root, "a.fits"),
		}
		assert.Equal(t, want, got)
	})

	t.Run("exclude_patterns_filter_candidates", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, filepath.Join(root, "keep.fits"))
		writeFile(t, filepath.Join(root, "test_frame.fits"))

		s := &Scanner{
			Root:     root,
			Includes: []string{"*.fits"},
			Excludes: []string{"test_*"},
		}
		got, err := s.Scan(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{filepath.Join(root, "keep.fits")}, got)
	})

	t.Run("missing_root_is_an_error", func(t *testing.T) {
		s := &Scanner{
			Root:     filepath.Join(t.TempDir(), "does-not-exist"),
			Includes: []string{"*.fits"},
		}
		_, err := s.Scan(ctx)
		require.Error(t, err)
	})

	t.Run("root_must_be_a_directory", func(t *testing.T) {
		root := t.TempDir()
		file := filepath.Join(root, "plain")
		writeFile(t, file)

		s := &Scanner{Root: file, Includes: []string{"*"}}
		_, err := s.Scan(ctx)
		require.Error(t, err)
	})

	t.Run("directories_are_not_candidates", func(t *testing.T) {
		root := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(root, "archive.fits"), 0o755))

		s := &Scanner{Root: root, Includes: []string{"*.fits"}}
		got, err := s.Scan(ctx)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestIsStable(t *testing.T) {
	now := time.Now()
	minAge := 5 * time.Second

	setMtime := func(t *testing.T, path string, mtime time.Time) {
		t.Helper()
		require.NoError(t, os.Chtimes(path, mtime, mtime))
	}

	t.Run("old_file_is_stable", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "old.fits")
		writeFile(t, path)
		setMtime(t, path, now.Add(-time.Minute))
		assert.True(t, IsStable(path, minAge, now))
	})

	t.Run("exactly_min_age_is_stable", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "edge.fits")
		writeFile(t, path)
		setMtime(t, path, now.Add(-minAge))
		assert.True(t, IsStable(path, minAge, now))
	})

	t.Run("one_second_younger_is_not_stable", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "fresh.fits")
		writeFile(t, path)
		setMtime(t, path, now.Add(-minAge).Add(time.Second))
		assert.False(t, IsStable(path, minAge, now))
	})

	t.Run("missing_file_is_not_stable", func(t *testing.T) {
		assert.False(t, IsStable(filepath.Join(t.TempDir(), "gone.fits"), minAge, now))
	})
}

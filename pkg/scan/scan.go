// Package scan discovers candidate files under the watch root and decides
// when they are stable enough to copy.
package scan

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// Scanner walks a root directory and yields regular files whose base name
// matches at least one include pattern and no exclude pattern. Matching is
// case-insensitive: acquisition software on different platforms disagrees
// about extension casing (.fits vs .FITS).
type Scanner struct {
	Root     string
	Includes []string
	Excludes []string
}

// Matches reports whether a base name passes the include/exclude patterns.
// A malformed pattern never matches.
func (s *Scanner) Matches(name string) bool {
	name = strings.ToLower(name)

	included := false
	for _, pat := range s.Includes {
		ok, err := doublestar.Match(strings.ToLower(pat), name)
		if err == nil && ok {
			included = true
			break
		}
	}
	if !included {
		return false
	}

	for _, pat := range s.Excludes {
		ok, err := doublestar.Match(strings.ToLower(pat), name)
		if err == nil && ok {
			return false
		}
	}
	return true
}

// Scan walks the full subtree of Root and returns the matching file paths.
// Order is whatever the filesystem hands back; callers sort before
// processing. A missing or unreadable root is an error, not an empty scan.
func (s *Scanner) Scan(ctx context.Context) ([]string, error) {
	logger := zerolog.Ctx(ctx)

	info, err := os.Stat(s.Root)
	if err != nil {
		return nil, errors.Errorf("watch root %s: %w", s.Root, err)
	}
	if !info.IsDir() {
		return nil, errors.Errorf("watch root %s is not a directory", s.Root)
	}

	var candidates []string
	err = filepath.WalkDir(s.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Entries can vanish mid-walk while the producer reorganizes
			// its output. Skip them; a later cycle will see the final layout.
			logger.Debug().Err(err).Str("path", path).Msg("skipping unreadable entry")
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if s.Matches(d.Name()) {
			candidates = append(candidates, path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Errorf("walking %s: %w", s.Root, err)
	}

	logger.Debug().Int("count", len(candidates)).Str("root", s.Root).Msg("scan complete")
	return candidates, nil
}

// IsStable reports whether the file's last modification is at least minAge
// in the past. Producers write frames non-atomically; the age threshold
// stands in for a completion signal. A file whose metadata cannot be read
// (deleted between scan and check) counts as not stable and is re-evaluated
// next cycle.
func IsStable(path string, minAge time.Duration, now time.Time) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return now.Sub(info.ModTime()) >= minAge
}

// Package lockfile guards the state file against a second concurrent
// daemon instance. Two engines scanning the same watch root would race on
// the state file and double-transfer; the lock makes the second instance
// fail fast with a message naming the first.
package lockfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// staleTimeout is how old a lock may be before a crashed holder is assumed
// and the lock is taken over. Cycles are short; anything this old is dead.
var staleTimeout = 30 * time.Minute

// content is what the holder writes into the lock file.
type content struct {
	PID      int       `json:"pid"`
	Hostname string    `json:"hostname"`
	Acquired time.Time `json:"acquired"`
}

// ErrLockActive is returned when another live instance holds the lock.
type ErrLockActive struct {
	PID      int
	Hostname string
	Age      time.Duration
}

func (e *ErrLockActive) Error() string {
	return fmt.Sprintf("another instance is running: PID %d on %s, lock acquired %s ago",
		e.PID, e.Hostname, e.Age.Truncate(time.Second))
}

// Lock is a held lock file.
type Lock struct {
	path string
}

// Acquire creates the lock file at path with O_EXCL. A stale or unreadable
// existing lock is removed and acquisition retried once; a fresh lock from
// a live instance returns *ErrLockActive.
func Acquire(ctx context.Context, path string) (*Lock, error) {
	logger := zerolog.Ctx(ctx)

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			if werr := writeContent(f); werr != nil {
				f.Close()
				os.Remove(path)
				return nil, werr
			}
			if cerr := f.Close(); cerr != nil {
				os.Remove(path)
				return nil, errors.Errorf("closing lock file: %w", cerr)
			}
			logger.Debug().Str("path", path).Msg("lock acquired")
			return &Lock{path: path}, nil
		}
		if !os.IsExist(err) {
			return nil, errors.Errorf("creating lock file %s: %w", path, err)
		}

		existing, rerr := readContent(path)
		if rerr != nil {
			logger.Warn().Err(rerr).Str("path", path).Msg("unreadable lock file, treating as stale")
		} else if age := time.Since(existing.Acquired); age < staleTimeout {
			return nil, &ErrLockActive{PID: existing.PID, Hostname: existing.Hostname, Age: age}
		} else {
			logger.Warn().Int("pid", existing.PID).Dur("age", age).Msg("taking over stale lock")
		}

		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			return nil, errors.Errorf("removing stale lock file: %w", rmErr)
		}
	}

	return nil, errors.Errorf("could not acquire lock at %s (contention)", path)
}

// Release removes the lock file. Safe to call once per acquired lock.
func (l *Lock) Release() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return errors.Errorf("releasing lock file: %w", err)
	}
	return nil
}

func writeContent(f *os.File) error {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	data, err := json.MarshalIndent(content{
		PID:      os.Getpid(),
		Hostname: hostname,
		Acquired: time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return errors.Errorf("encoding lock content: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		return errors.Errorf("writing lock content: %w", err)
	}
	return nil
}

func readContent(path string) (*content, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c content
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, errors.Errorf("parsing lock file: %w", err)
	}
	return &c, nil
}

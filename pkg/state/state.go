// Package state tracks which files have already been transferred. The
// ledger is keyed by file identity (path + size + mtime), so rewriting a
// file produces a fresh identity and the file is sent again.
package state

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Status of a tracked file.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Identity is the derived key for one version of a file.
type Identity string

// NewIdentity derives the tracking key from path, size and mtime. The
// format matches the historical state files, so upgraded installs keep
// their transfer history.
func NewIdentity(path string, size int64, mtime time.Time) Identity {
	return Identity(fmt.Sprintf("%s|%d|%d", path, size, mtime.UnixNano()))
}

// IdentityOf stats a file and derives its current identity.
func IdentityOf(path string) (Identity, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	return NewIdentity(path, info.Size(), info.ModTime()), nil
}

// Record is the transfer bookkeeping for one file identity.
type Record struct {
	Path        string     `json:"path"`
	FirstSeen   time.Time  `json:"first_seen"`
	Status      Status     `json:"status"`
	Retries     int        `json:"retries"`
	LastAttempt *time.Time `json:"last_attempt,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Terminal reports whether the record should never be attempted again:
// either it already succeeded, or it burned through the whole retry budget.
func (r *Record) Terminal(maxRetries int) bool {
	if r == nil {
		return false
	}
	if r.Status == StatusSuccess {
		return true
	}
	return r.Status == StatusFailed && r.Retries >= maxRetries
}

// stateFile is the persisted document. Pretty-printed JSON keyed by
// identity so operators can inspect or hand-edit it in emergencies.
type stateFile struct {
	SchemaVersion string              `json:"schema_version"`
	LastScan      *time.Time          `json:"last_scan,omitempty"`
	Files         map[Identity]Record `json:"files"`
}

// Summary holds aggregate counts for the status command.
type Summary struct {
	Total    int
	Pending  int
	Success  int
	Failed   int
	LastScan *time.Time
}

// clock is swapped out in tests.
var clock = time.Now

// Manager owns the state file. Single-writer across processes (enforced
// one level up by the lock file); within the process the mutex lets the
// watch loop prune retention concurrently with the scan cycle.
type Manager struct {
	path string

	mu   sync.Mutex
	file stateFile
}

// New creates a manager for the state file at path. Nothing is read from
// disk until Load.
func New(path string) *Manager {
	return &Manager{
		path: path,
		file: stateFile{
			SchemaVersion: "1.0.0",
			Files:         map[Identity]Record{},
		},
	}
}

// Path returns the state file location.
func (m *Manager) Path() string {
	return m.path
}

// Lookup returns the record for an identity, or nil if untracked.
func (m *Manager) Lookup(id Identity) *Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.file.Files[id]
	if !ok {
		return nil
	}
	return &rec
}

// RecordAttempt books the outcome of one transfer attempt. A success sets
// status and completion time; a failure bumps the retry count. A record is
// created on first sight. Callers must Save before moving to the next file.
func (m *Manager) RecordAttempt(ctx context.Context, id Identity, path string, success bool) Record {
	now := clock()

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.file.Files[id]
	if !ok {
		rec = Record{
			Path:      path,
			FirstSeen: now,
			Status:    StatusPending,
		}
	}

	if success {
		rec.Status = StatusSuccess
		rec.CompletedAt = &now
	} else {
		rec.Status = StatusFailed
		rec.Retries++
		rec.LastAttempt = &now
	}

	m.file.Files[id] = rec

	zerolog.Ctx(ctx).Debug().
		Str("path", path).
		Str("status", string(rec.Status)).
		Int("retries", rec.Retries).
		Msg("recorded transfer attempt")

	return rec
}

// MarkScanned stamps the time of the most recent completed scan.
func (m *Manager) MarkScanned() {
	now := clock()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.file.LastScan = &now
}

// Prune drops success records completed before the cutoff and returns how
// many were removed. Failed and pending records are never pruned: their
// history is what prevents endless retries.
func (m *Manager) Prune(olderThan time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, rec := range m.file.Files {
		if rec.Status != StatusSuccess {
			continue
		}
		if rec.CompletedAt != nil && rec.CompletedAt.Before(olderThan) {
			delete(m.file.Files, id)
			removed++
		}
	}
	return removed
}

// Counts summarizes the ledger for the status command.
func (m *Manager) Counts() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Summary{
		Total:    len(m.file.Files),
		LastScan: m.file.LastScan,
	}
	for _, rec := range m.file.Files {
		switch rec.Status {
		case StatusSuccess:
			s.Success++
		case StatusFailed:
			s.Failed++
		default:
			s.Pending++
		}
	}
	return s
}

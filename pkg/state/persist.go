package state

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// Load reads the persisted state. A missing file yields an empty state. An
// unreadable file also yields an empty state, with a warning: re-sending
// already-transferred files is safe because the copy mechanism is
// idempotent, whereas refusing to run would stop the night's data flow.
func (m *Manager) Load(ctx context.Context) error {
	logger := zerolog.Ctx(ctx)

	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Debug().Str("path", m.path).Msg("no state file yet, starting empty")
			return nil
		}
		return errors.Errorf("reading state file %s: %w", m.path, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var file stateFile
	if err := json.Unmarshal(data, &file); err != nil {
		logger.Warn().Err(err).Str("path", m.path).
			Msg("state file unreadable, falling back to empty state")
		return nil
	}

	if file.Files == nil {
		file.Files = map[Identity]Record{}
	}
	if file.SchemaVersion == "" {
		file.SchemaVersion = m.file.SchemaVersion
	}
	m.file = file

	logger.Debug().Str("path", m.path).Int("tracked", len(file.Files)).Msg("state loaded")
	return nil
}

// Save persists the state durably. The document is written to a temporary
// file in the same directory and renamed over the previous one, so an
// interrupted write leaves the last complete state intact. The mutex is
// held through the rename: two concurrent saves must land on disk in the
// same order they were encoded, or an older snapshot could win.
func (m *Manager) Save(ctx context.Context) error {
	logger := zerolog.Ctx(ctx)

	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return errors.Errorf("creating state directory: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := json.MarshalIndent(&m.file, "", "  ")
	if err != nil {
		return errors.Errorf("encoding state: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(m.path), filepath.Base(m.path)+".tmp-*")
	if err != nil {
		return errors.Errorf("creating temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Errorf("writing temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Errorf("syncing temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Errorf("closing temp state file: %w", err)
	}

	if err := os.Rename(tmpName, m.path); err != nil {
		os.Remove(tmpName)
		return errors.Errorf("replacing state file: %w", err)
	}

	logger.Debug().Str("path", m.path).Int("tracked", len(m.file.Files)).Msg("state saved")
	return nil
}

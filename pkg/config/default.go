package config

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// defaultYAML is the commented starter config written by `imagesync init`.
const defaultYAML = `# imagesync configuration
# Edit this file to match your setup.

# Directory scanned for new frames. {night} expands to the current
# observing-night date (YYYYMMDD).
watch_path: ~/data/images

# Destination. Use localhost (or leave remote_host empty) for a plain
# local copy.
remote_host: localhost
remote_user: user
remote_base_path: /data/images

# Optional camera name inserted into the remote path after the night
# directory, for multi-camera archives.
#camera_name: cam1

file_patterns:
  - "*.fits"
exclude_patterns: []

# A file must be this old before it is copied, so half-written frames are
# never picked up.
min_file_age_seconds: 5

scan_interval_seconds: 30
retry_attempts: 3
retry_delay_seconds: 5
transfer_timeout_seconds: 300

# auto tries rsync first and falls back to scp.
transfer_method: auto
compression: false

# Re-check the destination file size after every copy.
verify_transfer: true

# The {night} token rolls over at this local hour, not at midnight.
night_boundary_hour: 12

# Success records older than this are dropped by "imagesync prune".
prune_after_days: 7
`

// WriteDefault creates a commented default config at path. Refuses to
// overwrite an existing file.
func WriteDefault(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err == nil {
		return errors.Errorf("config file already exists: %s", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultYAML), 0o644); err != nil {
		return errors.Errorf("writing default config: %w", err)
	}

	zerolog.Ctx(ctx).Info().Str("path", path).Msg("wrote default configuration")
	return nil
}

package transfer

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// verifySize confirms the destination copy of src is byte-for-byte complete
// by comparing file sizes after the mechanism reports success. Remote
// destinations are checked with stat over ssh, local ones with a plain
// stat. A missing or short destination fails the attempt.
func verifySize(ctx context.Context, opts Options, src, destDir string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return errors.Errorf("reading source for verification: %w", err)
	}

	dest := path.Join(destDir, filepath.Base(src))

	var destSize int64
	if opts.Remote.IsLocal() {
		destInfo, err := os.Stat(dest)
		if err != nil {
			return errors.Errorf("verifying %s: %w", dest, err)
		}
		destSize = destInfo.Size()
	} else {
		destSize, err = remoteSize(ctx, opts, dest)
		if err != nil {
			return errors.Errorf("verifying %s: %w", dest, err)
		}
	}

	if destSize != srcInfo.Size() {
		return errors.Errorf("%w: %s is %d bytes, source is %d",
			ErrSizeMismatch, dest, destSize, srcInfo.Size())
	}

	zerolog.Ctx(ctx).Debug().
		Str("dest", dest).
		Int64("size", destSize).
		Msg("destination size verified")
	return nil
}

// remoteSize stats a file on the destination host over ssh.
func remoteSize(ctx context.Context, opts Options, dest string) (int64, error) {
	args := []string{
		"-o", "BatchMode=yes",
		"-o", "ConnectTimeout=10",
		opts.Remote.Addr(),
		"stat -c %s '" + dest + "'",
	}
	output, err := runCommand(ctx, opts.Timeout, "ssh", args...)
	if err != nil {
		return 0, err
	}

	size, err := strconv.ParseInt(strings.TrimSpace(output), 10, 64)
	if err != nil {
		return 0, errors.Errorf("parsing remote stat output %q: %w", strings.TrimSpace(output), err)
	}
	return size, nil
}

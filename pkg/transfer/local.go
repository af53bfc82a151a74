package transfer

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// Local copies files within this machine's filesystem, mirroring the copy
// mechanism's contract: incremental (size+mtime match means nothing to do),
// destination directories created recursively, mtime preserved.
type Local struct {
	Opts Options
}

func (l *Local) Name() string { return "local" }

func (l *Local) Available() bool { return true }

func (l *Local) Transfer(ctx context.Context, src, destDir string) (Outcome, error) {
	logger := zerolog.Ctx(ctx)

	if err := mkdirLocal(destDir); err != nil {
		return Outcome{}, errors.Errorf("preparing destination %s: %w", destDir, err)
	}

	srcInfo, err := os.Stat(src)
	if err != nil {
		return Outcome{}, errors.Errorf("reading source %s: %w", src, err)
	}

	dest := filepath.Join(destDir, filepath.Base(src))
	if destInfo, err := os.Stat(dest); err == nil {
		// Same incremental check rsync -a uses: size plus mtime.
		if destInfo.Size() == srcInfo.Size() && destInfo.ModTime().Equal(srcInfo.ModTime()) {
			logger.Debug().Str("dest", dest).Msg("destination already current")
			return Outcome{Copied: false}, nil
		}
	}

	if err := copyFile(src, dest, srcInfo); err != nil {
		return Outcome{}, errors.Errorf("copying %s: %w", src, err)
	}

	if l.Opts.Verify {
		if err := verifySize(ctx, l.Opts, src, destDir); err != nil {
			return Outcome{}, err
		}
	}

	logger.Debug().Str("src", src).Str("dest", dest).Msg("copied locally")
	return Outcome{Copied: true}, nil
}

func mkdirLocal(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Errorf("creating directory %s: %w", dir, err)
	}
	return nil
}

// copyFile writes through a temp file in the destination directory and
// renames into place, so a crash mid-copy never leaves a truncated file
// under the final name.
func copyFile(src, dest string, srcInfo os.FileInfo) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	if err := os.Chmod(tmpName, srcInfo.Mode().Perm()); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chtimes(tmpName, srcInfo.ModTime(), srcInfo.ModTime()); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

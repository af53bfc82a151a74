package transfer

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// Rsync is the primary transport. The flag set is fixed, not configurable:
// archive semantics, destination path creation, and a machine-parsable
// itemized report. -ii forces a report line even for files the destination
// already has, which is what lets us tell "copied" from "already current"
// without a second stat round-trip.
type Rsync struct {
	Opts Options
}

func (r *Rsync) Name() string { return "rsync" }

func (r *Rsync) Available() bool {
	if !commandAvailable("rsync") {
		return false
	}
	// Remote destinations additionally need ssh for directory creation.
	if !r.Opts.Remote.IsLocal() && !commandAvailable("ssh") {
		return false
	}
	return true
}

func (r *Rsync) Transfer(ctx context.Context, src, destDir string) (Outcome, error) {
	logger := zerolog.Ctx(ctx)

	if err := ensureDestDir(ctx, r.Opts, destDir); err != nil {
		return Outcome{}, errors.Errorf("preparing destination %s: %w", destDir, err)
	}

	args := []string{"-a", "-ii", "--out-format=%i %n", "--mkpath"}
	if r.Opts.Compression {
		args = append(args, "-z")
	}

	dest := destDir + "/"
	if !r.Opts.Remote.IsLocal() {
		dest = r.Opts.Remote.Addr() + ":" + dest
	}
	args = append(args, src, dest)

	logger.Debug().Str("src", src).Str("dest", dest).Msg("invoking rsync")

	output, err := runCommand(ctx, r.Opts.Timeout, "rsync", args...)
	if err != nil {
		return Outcome{Output: output}, err
	}

	copied, matched := classifyItemized(output, filepath.Base(src))
	if !matched {
		return Outcome{Output: output}, errors.Errorf("%w: %s", ErrAmbiguousReport, src)
	}

	if r.Opts.Verify {
		if err := verifySize(ctx, r.Opts, src, destDir); err != nil {
			return Outcome{Output: output}, err
		}
	}
	return Outcome{Copied: copied, Output: output}, nil
}

// classifyItemized scans rsync's itemized output for the report line of the
// named file. Item codes starting "<f" (sender transmitted a regular file)
// or ">f" (receiver wrote one) mean bytes moved; any other recognized
// regular-file line (leading '.', 'h', metadata-only attribute changes) is
// an up-to-date destination, not a data copy.
func classifyItemized(output, name string) (copied, matched bool) {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		code, rest, ok := strings.Cut(line, " ")
		if !ok || len(code) < 2 || code[1] != 'f' {
			continue
		}
		if filepath.Base(strings.TrimSpace(rest)) != name {
			continue
		}
		matched = true
		if code[0] == '<' || code[0] == '>' {
			copied = true
		}
		return copied, matched
	}
	return false, false
}

// ensureDestDir creates the destination directory tree before the copy.
// Failure fails this file's attempt only, never the whole cycle.
func ensureDestDir(ctx context.Context, opts Options, destDir string) error {
	if opts.Remote.IsLocal() {
		return mkdirLocal(destDir)
	}

	args := []string{
		"-o", "BatchMode=yes",
		"-o", "ConnectTimeout=10",
		opts.Remote.Addr(),
		"mkdir -p '" + destDir + "'",
	}
	if _, err := runCommand(ctx, opts.Timeout, "ssh", args...); err != nil {
		return errors.Errorf("creating remote directory: %w", err)
	}
	return nil
}

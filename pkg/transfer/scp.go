package transfer

import (
	"context"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// Scp is the fallback transport for hosts without rsync. It produces no
// parsable per-file report, so a clean exit is taken as "copied": scp
// always rewrites the destination, it has no up-to-date short-circuit.
// Size verification is the only positive evidence the copy landed.
type Scp struct {
	Opts Options
}

func (s *Scp) Name() string { return "scp" }

func (s *Scp) Available() bool {
	// scp only makes sense toward a remote host.
	return !s.Opts.Remote.IsLocal() && commandAvailable("scp") && commandAvailable("ssh")
}

func (s *Scp) Transfer(ctx context.Context, src, destDir string) (Outcome, error) {
	logger := zerolog.Ctx(ctx)

	if err := ensureDestDir(ctx, s.Opts, destDir); err != nil {
		return Outcome{}, errors.Errorf("preparing destination %s: %w", destDir, err)
	}

	args := []string{
		"-o", "BatchMode=yes",
		"-o", "ConnectTimeout=30",
	}
	if s.Opts.Compression {
		args = append(args, "-C")
	}
	dest := s.Opts.Remote.Addr() + ":" + destDir + "/"
	args = append(args, src, dest)

	logger.Debug().Str("src", src).Str("dest", dest).Msg("invoking scp")

	output, err := runCommand(ctx, s.Opts.Timeout, "scp", args...)
	if err != nil {
		return Outcome{Output: output}, err
	}

	if s.Opts.Verify {
		if err := verifySize(ctx, s.Opts, src, destDir); err != nil {
			return Outcome{Output: output}, err
		}
	}
	return Outcome{Copied: true, Output: output}, nil
}

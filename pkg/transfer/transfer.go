// Package transfer invokes the external copy mechanism for one file at a
// time and classifies what actually happened. The mechanism is treated as a
// black box: robust incremental copies and destination directory handling
// come for free, but "did any bytes move" has to be inferred from its
// per-file report, because exit code 0 conflates "copied" with "nothing to
// do".
package transfer

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"gitlab.com/tozd/go/errors"
)

// Base errors for outcome classification.
var (
	// ErrNoTransport means no configured copy mechanism exists on this
	// machine at all. Cycle-level: nothing can be transferred.
	ErrNoTransport = errors.Base("no usable transfer mechanism available")

	// ErrAmbiguousReport means the mechanism exited 0 but its report has no
	// recognizable line for the file. Treated as failure: success is never
	// assumed without positive evidence.
	ErrAmbiguousReport = errors.Base("transfer report has no line for the file")

	// ErrSizeMismatch means post-transfer verification found the destination
	// file smaller or larger than the source. The attempt failed even though
	// the mechanism reported success.
	ErrSizeMismatch = errors.Base("destination size does not match source")
)

// Outcome describes one completed invocation of the copy mechanism.
type Outcome struct {
	// Copied is true when bytes were actually sent, false when the
	// destination was already current.
	Copied bool

	// Output is the mechanism's captured stdout+stderr, kept for logging.
	Output string
}

// Transport performs the transfer of one local file into a destination
// directory. Implementations block until the subprocess finishes or the
// per-call timeout expires.
type Transport interface {
	// Name identifies the transport in logs ("rsync", "scp", "local").
	Name() string

	// Available reports whether the transport can run on this machine.
	Available() bool

	// Transfer copies src into destDir, creating destDir first. A nil
	// error means the file is present and current at the destination.
	Transfer(ctx context.Context, src, destDir string) (Outcome, error)
}

// Remote identifies the destination host. An empty or loopback host means
// the destination is the local filesystem.
type Remote struct {
	User string
	Host string
}

// IsLocal reports whether transfers stay on this machine.
func (r Remote) IsLocal() bool {
	switch r.Host {
	case "", "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

// Addr returns the user@host prefix for ssh-style destinations.
func (r Remote) Addr() string {
	if r.User == "" {
		return r.Host
	}
	return r.User + "@" + r.Host
}

// Options carries the per-invocation knobs shared by all transports.
type Options struct {
	Remote      Remote
	Compression bool
	Timeout     time.Duration

	// Verify re-checks the destination file size after every successful
	// invocation (ssh stat for remote hosts, a local stat otherwise). This
	// is the only positive evidence scp ever produces.
	Verify bool
}

// lookPath is indirected for tests.
var lookPath = exec.LookPath

// commandAvailable reports whether a binary is on PATH.
func commandAvailable(name string) bool {
	_, err := lookPath(name)
	return err == nil
}

// runCommand executes a subprocess under the per-call timeout and returns
// its combined output. The timeout is a fixed wall-clock ceiling; on expiry
// the process is killed and the attempt counts as a failure.
func runCommand(ctx context.Context, timeout time.Duration, name string, args ...string) (string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	output := string(out)

	if ctx.Err() == context.DeadlineExceeded {
		return output, errors.Errorf("%s timed out: %w", name, ctx.Err())
	}
	if err != nil {
		return output, errors.Errorf("%s: %w: %s", name, err, strings.TrimSpace(output))
	}
	return output, nil
}

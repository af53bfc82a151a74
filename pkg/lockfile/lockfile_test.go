package lockfile

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestLogger(t *testing.T) context.Context {
	logger := zerolog.New(zerolog.TestWriter{T: t}).With().Timestamp().Logger()
	return logger.WithContext(context.Background())
}

func lockPath(t *testing.T) string {
	return filepath.Join(t.TempDir(), "state.json.lock")
}

func TestAcquireAndRelease(t *testing.T) {
	ctx := setupTestLogger(t)

	t.Run("acquire_creates_lock_file", func(t *testing.T) {
		path := lockPath(t)
		lock, err := Acquire(ctx, path)
		require.NoError(t, err)

		_, err = os.Stat(path)
		require.NoError(t, err)
		require.NoError(t, lock.Release())

		_, err = os.Stat(path)
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("second_instance_fails_with_holder_details", func(t *testing.T) {
		path := lockPath(t)
		lock, err := Acquire(ctx, path)
		require.NoError(t, err)
		defer lock.Release()

		_, err = Acquire(ctx, path)
		require.Error(t, err)

		var active *ErrLockActive
		require.ErrorAs(t, err, &active)
		assert.Equal(t, os.Getpid(), active.PID)
	})

	t.Run("reacquire_after_release", func(t *testing.T) {
		path := lockPath(t)
		lock, err := Acquire(ctx, path)
		require.NoError(t, err)
		require.NoError(t, lock.Release())

		lock2, err := Acquire(ctx, path)
		require.NoError(t, err)
		require.NoError(t, lock2.Release())
	})
}

func TestStaleLockTakeover(t *testing.T) {
	ctx := setupTestLogger(t)

	t.Run("old_lock_is_taken_over", func(t *testing.T) {
		path := lockPath(t)
		stale, err := json.Marshal(content{
			PID:      99999,
			Hostname: "dead-host",
			Acquired: time.Now().UTC().Add(-2 * staleTimeout),
		})
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(path, stale, 0o644))

		lock, err := Acquire(ctx, path)
		require.NoError(t, err)
		defer lock.Release()
	})

	t.Run("corrupt_lock_is_taken_over", func(t *testing.T) {
		path := lockPath(t)
		require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

		lock, err := Acquire(ctx, path)
		require.NoError(t, err)
		defer lock.Release()
	})
}

package log

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReporterFile(t *testing.T) {
	t.Run("prints_path_and_status", func(t *testing.T) {
		var buf bytes.Buffer
		r := NewReporter(&buf, false)

		r.File("20251006/a.fits", ResultCopied)
		out := buf.String()
		assert.Contains(t, out, "20251006/a.fits")
		assert.Contains(t, out, "copied")
	})

	t.Run("failed_files_say_so", func(t *testing.T) {
		var buf bytes.Buffer
		r := NewReporter(&buf, false)

		r.File("a.fits", ResultFailed)
		assert.Contains(t, buf.String(), "failed")
	})

	t.Run("quiet_mode_suppresses_file_lines", func(t *testing.T) {
		var buf bytes.Buffer
		r := NewReporter(&buf, true)

		r.File("a.fits", ResultCopied)
		r.Header("20251006", "/data")
		assert.Empty(t, buf.String())
	})

	t.Run("summary_always_prints", func(t *testing.T) {
		var buf bytes.Buffer
		r := NewReporter(&buf, true)

		r.Summaryf("cycle complete: %d copied", 3)
		assert.Contains(t, buf.String(), "cycle complete: 3 copied")
	})
}

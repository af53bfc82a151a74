// Package log renders user-facing console output: one line per processed
// file and a summary per cycle. Structured diagnostics stay on zerolog;
// this is the operator-friendly view layered on top.
package log

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
	"github.com/pterm/pterm"
)

// 🎨 Display configuration
const (
	fileIndent = 4  // spaces to indent file entries
	nameWidth  = 45 // base width for file paths
)

// FileResult classifies one processed file for display.
type FileResult int

const (
	ResultCopied FileResult = iota
	ResultUnchanged
	ResultSkippedUnstable
	ResultSkippedDone
	ResultFailed
)

// Reporter writes per-file lines and summaries to the console. Quiet mode
// suppresses per-file output and keeps only summaries.
type Reporter struct {
	console io.Writer
	quiet   bool
	mu      sync.Mutex
}

// NewReporter creates a console reporter.
func NewReporter(console io.Writer, quiet bool) *Reporter {
	return &Reporter{console: console, quiet: quiet}
}

// File prints one processed-file line.
func (r *Reporter) File(path string, result FileResult) {
	if r.quiet {
		return
	}

	var symbol rune
	var symbolColor color.Attribute
	var status string
	switch result {
	case ResultCopied:
		symbol = '✓'
		symbolColor = color.FgGreen
		status = "copied"
	case ResultUnchanged:
		symbol = '•'
		symbolColor = color.FgCyan
		status = "up to date"
	case ResultSkippedUnstable:
		symbol = '~'
		symbolColor = color.FgYellow
		status = "still writing"
	case ResultSkippedDone:
		symbol = '-'
		symbolColor = color.FgBlue
		status = "already sent"
	case ResultFailed:
		symbol = '✗'
		symbolColor = color.FgRed
		status = "failed"
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.console, "%*s%s %-*s %s\n",
		fileIndent, "",
		color.New(symbolColor).Sprint(string(symbol)),
		nameWidth, path,
		status)
}

// Header prints a cycle header naming the night being processed.
func (r *Reporter) Header(night, source string) {
	if r.quiet {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.console, "%s %s\n",
		color.New(color.Bold).Sprintf("night %s", night),
		color.New(color.Faint).Sprintf("(%s)", source))
}

// Summaryf prints a formatted cycle summary line.
func (r *Reporter) Summaryf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.console, format+"\n", args...)
}

// Success prints a green result message via pterm.
func Success(msg string) {
	pterm.Success.WithPrefix(pterm.Prefix{Text: "✅"}).Println(msg)
}

// Failure prints a red result message via pterm.
func Failure(msg string) {
	pterm.Error.WithPrefix(pterm.Prefix{Text: "❌"}).Println(msg)
}

// Notice prints an informational message via pterm.
func Notice(msg string) {
	pterm.Info.WithPrefix(pterm.Prefix{Text: "📦"}).Println(msg)
}

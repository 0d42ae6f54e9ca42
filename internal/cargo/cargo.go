// Package cargo wraps `cargo check` for the check_code tool.
package cargo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	apperrors "github.com/flynn-ai/corrode/internal/errors"
	"github.com/flynn-ai/corrode/internal/shell"
)

// Runner executes processes in the session directory.
type Runner interface {
	Dir() string
	RunCommand(ctx context.Context, name string, args []string, timeout time.Duration) (*shell.CommandResult, error)
}

// Options selects what cargo checks.
type Options struct {
	Package    string
	AllTargets bool
	Timeout    time.Duration
}

// Report is the outcome of a check. Compiler errors are reported here, not as
// a Go error; only a missing project or a failed invocation is an error.
type Report struct {
	Dir      string               `json:"dir"`
	Success  bool                 `json:"success"`
	Errors   int                  `json:"errors"`
	Warnings int                  `json:"warnings"`
	Result   *shell.CommandResult `json:"result"`
}

// Summary is a one-line description of the report.
func (r *Report) Summary() string {
	status := "passed"
	if !r.Success {
		status = "failed"
	}
	return fmt.Sprintf("cargo check %s: %d error(s), %d warning(s)", status, r.Errors, r.Warnings)
}

var (
	errorLine   = regexp.MustCompile(`^(?:\S+:\d+:\d+: )?error(?:\[\w+\])?: `)
	warningLine = regexp.MustCompile(`^(?:\S+:\d+:\d+: )?warning(?:\[\w+\])?: `)
	summaryLine = regexp.MustCompile(`could not compile|aborting due to|generated \d+ warnings?|build failed`)
)

// Check runs `cargo check --message-format short` in the runner's directory.
func Check(ctx context.Context, r Runner, opts Options) (*Report, error) {
	dir := r.Dir()
	if _, err := os.Stat(filepath.Join(dir, "Cargo.toml")); err != nil {
		return nil, apperrors.NewBuilder(apperrors.CodeNotRustProject,
			fmt.Sprintf("No Cargo.toml found in '%s'. This doesn't appear to be a Rust project.", dir)).
			User().WithContext("dir", dir).
			WithSuggestion("Use change_directory to move into the crate root first").
			Build()
	}

	args := []string{"check", "--message-format", "short"}
	if opts.Package != "" {
		args = append(args, "--package", opts.Package)
	}
	if opts.AllTargets {
		args = append(args, "--all-targets")
	}

	res, err := r.RunCommand(ctx, "cargo", args, opts.Timeout)
	if err != nil {
		return nil, err
	}

	report := &Report{Dir: dir, Success: res.Success(), Result: res}
	report.Errors, report.Warnings = countDiagnostics(res.Stderr)
	return report, nil
}

func countDiagnostics(output string) (errs, warnings int) {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if summaryLine.MatchString(line) {
			continue
		}
		switch {
		case errorLine.MatchString(line):
			errs++
		case warningLine.MatchString(line):
			warnings++
		}
	}
	return errs, warnings
}

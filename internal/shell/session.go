// Package shell implements the session that shell tools run against.
//
// A Session owns the working directory shared by every call of one server
// process. Execution is serialized: one command or script runs at a time and
// waiting callers give up when their context ends. Directory changes are
// validated before they are committed, so a failed change leaves the session
// where it was.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	apperrors "github.com/flynn-ai/corrode/internal/errors"
	"github.com/flynn-ai/corrode/internal/files"
)

// Defaults applied when Options leaves a field zero.
const (
	DefaultProgram        = "bash"
	DefaultTimeout        = 120 * time.Second
	DefaultMaxTimeout     = 30 * time.Minute
	DefaultMaxOutputBytes = 256 * 1024

	waitDelay = 2 * time.Second
)

// Options configures a Session.
type Options struct {
	Dir            string
	Program        string
	Login          bool
	Env            map[string]string
	DefaultTimeout time.Duration
	MaxTimeout     time.Duration
	MaxOutputBytes int
}

// Session is the persistent shell context. It is safe for concurrent use.
type Session struct {
	sem chan struct{}

	mu  sync.RWMutex
	cwd string

	program        string
	login          bool
	env            []string
	defaultTimeout time.Duration
	maxTimeout     time.Duration
	maxOutput      int
	logger         *slog.Logger
}

// CommandResult is the outcome of one process. A non-zero exit code is data,
// not an error.
type CommandResult struct {
	Command   string        `json:"command"`
	Args      []string      `json:"args,omitempty"`
	Dir       string        `json:"dir"`
	ExitCode  int           `json:"exit_code"`
	Stdout    string        `json:"stdout"`
	Stderr    string        `json:"stderr"`
	Truncated bool          `json:"truncated,omitempty"`
	Duration  time.Duration `json:"-"`
}

// Success reports a zero exit code.
func (r *CommandResult) Success() bool { return r.ExitCode == 0 }

// New creates a Session rooted at opts.Dir (the process directory when empty).
func New(opts Options, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Program == "" {
		opts.Program = DefaultProgram
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = DefaultTimeout
	}
	if opts.MaxTimeout <= 0 {
		opts.MaxTimeout = DefaultMaxTimeout
	}
	if opts.MaxTimeout < opts.DefaultTimeout {
		opts.MaxTimeout = opts.DefaultTimeout
	}
	if opts.MaxOutputBytes <= 0 {
		opts.MaxOutputBytes = DefaultMaxOutputBytes
	}

	start := opts.Dir
	if start == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeShellNotFound, "resolving working directory", apperrors.CategorySystem)
		}
		start = wd
	}
	dir, err := verifyDir(files.Resolve("", start))
	if err != nil {
		return nil, err
	}

	return &Session{
		sem:            make(chan struct{}, 1),
		cwd:            dir,
		program:        opts.Program,
		login:          opts.Login,
		env:            mergeEnv(os.Environ(), opts.Env),
		defaultTimeout: opts.DefaultTimeout,
		maxTimeout:     opts.MaxTimeout,
		maxOutput:      opts.MaxOutputBytes,
		logger:         logger,
	}, nil
}

// Dir returns the current working directory.
func (s *Session) Dir() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cwd
}

// Resolve resolves path against the current working directory.
func (s *Session) Resolve(path string) string {
	return files.Resolve(s.Dir(), path)
}

func (s *Session) setDir(dir string) {
	s.mu.Lock()
	s.cwd = dir
	s.mu.Unlock()
}

func (s *Session) acquire(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) release() { <-s.sem }

// ChangeDirectory moves the session to path and returns the new directory.
// On failure the session keeps its directory and a SHELL_NOT_FOUND error is returned.
func (s *Session) ChangeDirectory(ctx context.Context, path string) (string, error) {
	if err := s.acquire(ctx); err != nil {
		return "", err
	}
	defer s.release()
	return s.changeDir(path)
}

func (s *Session) changeDir(path string) (string, error) {
	target := path
	if strings.TrimSpace(target) == "" {
		target = "~"
	}
	dir, err := verifyDir(s.Resolve(target))
	if err != nil {
		return "", err
	}
	from := s.Dir()
	s.setDir(dir)
	s.logger.Debug("changed directory", slog.String("from", from), slog.String("to", dir))
	return dir, nil
}

func verifyDir(dir string) (string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return "", apperrors.NewBuilder(apperrors.CodeShellNotFound, "directory does not exist: "+dir).
			User().Wrap(err).WithContext("path", dir).Build()
	}
	if !info.IsDir() {
		return "", apperrors.NewBuilder(apperrors.CodeShellNotFound, "not a directory: "+dir).
			User().WithContext("path", dir).Build()
	}
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		dir = resolved
	}
	return dir, nil
}

// RunCommand runs name with args in the current directory. A non-positive
// timeout selects the session default; larger values are capped.
func (s *Session) RunCommand(ctx context.Context, name string, args []string, timeout time.Duration) (*CommandResult, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()

	runCtx, cancel := context.WithTimeout(ctx, s.clampTimeout(timeout))
	defer cancel()
	return s.run(ctx, runCtx, s.Dir(), name, args)
}

func (s *Session) clampTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return s.defaultTimeout
	}
	return min(timeout, s.maxTimeout)
}

// run executes one process. parent is the caller's context, runCtx carries the
// deadline; the distinction tells a timeout from a cancelled call. A deadline
// on parent that fires first is still a timeout, so the partial output survives.
func (s *Session) run(parent, runCtx context.Context, dir, name string, args []string) (*CommandResult, error) {
	start := time.Now()

	cmd := exec.CommandContext(runCtx, name, args...)
	cmd.Dir = dir
	cmd.Env = s.env
	cmd.WaitDelay = waitDelay
	configureProcess(cmd)

	var stdout, stderr bytes.Buffer
	outW := &limitedWriter{w: &stdout, limit: s.maxOutput}
	errW := &limitedWriter{w: &stderr, limit: s.maxOutput}
	cmd.Stdout = outW
	cmd.Stderr = errW

	err := cmd.Run()

	res := &CommandResult{
		Command:   name,
		Args:      args,
		Dir:       dir,
		Stdout:    strings.ToValidUTF8(stdout.String(), "�"),
		Stderr:    strings.ToValidUTF8(stderr.String(), "�"),
		Truncated: outW.truncated || errW.truncated,
		Duration:  time.Since(start),
	}

	s.logger.Debug("command finished",
		slog.String("command", name),
		slog.String("dir", dir),
		slog.Duration("duration", res.Duration),
		slog.Any("error", err))

	if parentErr := parent.Err(); errors.Is(parentErr, context.Canceled) {
		return nil, parentErr
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		res.ExitCode = -1
		return res, timedOut(res)
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return nil, apperrors.NewBuilder(apperrors.CodeCommandFailed, fmt.Sprintf("cannot start %q", name)).
			User().Wrap(err).WithContext("command", name).WithContext("dir", dir).
			WithSuggestion("Check that the program is installed and on PATH").Build()
	}
	return res, nil
}

func timedOut(res *CommandResult) error {
	return apperrors.NewBuilder(apperrors.CodeShellTimedOut,
		fmt.Sprintf("%s timed out after %s", res.Command, res.Duration.Round(time.Millisecond))).
		Temporary().
		WithContext("command", res.Command).
		WithContext("stdout", res.Stdout).
		WithContext("stderr", res.Stderr).
		WithSuggestion("Raise timeout_secs or run a narrower command").
		Build()
}

func mergeEnv(base []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return base
	}
	env := make([]string, 0, len(base)+len(overrides))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, replaced := overrides[key]; !replaced {
			env = append(env, kv)
		}
	}
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+overrides[k])
	}
	return env
}

// limitedWriter keeps the first limit bytes and drops the rest.
type limitedWriter struct {
	w         io.Writer
	limit     int
	written   int
	truncated bool
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	if lw.written >= lw.limit {
		lw.truncated = true
		return n, nil
	}
	if remaining := lw.limit - lw.written; len(p) > remaining {
		p = p[:remaining]
		lw.truncated = true
	}
	written, err := lw.w.Write(p)
	lw.written += written
	return n, err
}

// Package patch applies unified diffs to single files.
//
// Hunk headers written by models are often off by a few lines, so each hunk is
// located by its content near the position its header names, within a bounded
// window. Matching is strict unless whitespace-insensitive matching is asked
// for. A patch is all or nothing: the file on disk is replaced atomically only
// after every hunk has matched.
package patch

import (
	"context"
	"log/slog"

	apperrors "github.com/flynn-ai/corrode/internal/errors"
	"github.com/flynn-ai/corrode/internal/files"
)

// Engine applies diffs to files on disk.
type Engine struct {
	opts   Options
	locks  *files.Locker
	logger *slog.Logger
}

// NewEngine creates an Engine. Writes to the same path are serialized through locks,
// which should be shared with every other writer of the workspace.
func NewEngine(opts Options, locks *files.Locker, logger *slog.Logger) *Engine {
	if opts.MaxDrift <= 0 {
		opts.MaxDrift = DefaultMaxDrift
	}
	if locks == nil {
		locks = &files.Locker{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{opts: opts, locks: locks, logger: logger}
}

// ApplyFile patches the file at path. ignoreWhitespace widens matching for this
// call on top of the engine default. A missing file is created only when every
// hunk is a pure insertion.
func (e *Engine) ApplyFile(ctx context.Context, path, diffText string, ignoreWhitespace bool) (*Outcome, error) {
	hunks, err := Parse(diffText)
	if err != nil {
		return nil, err
	}

	unlock := e.locks.Lock(path)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	content, created, err := e.readTarget(path, hunks)
	if err != nil {
		return nil, err
	}

	opts := e.opts
	opts.IgnoreWhitespace = opts.IgnoreWhitespace || ignoreWhitespace
	updated, outcome, err := applyHunks(content, hunks, opts)
	if err != nil {
		e.logger.Debug("patch rejected",
			slog.String("path", path),
			slog.String("code", apperrors.GetCode(err)))
		return nil, err
	}
	outcome.Path = path
	outcome.Created = created

	if updated != content || created {
		if err := files.WriteAtomic(path, []byte(updated), 0o644); err != nil {
			return nil, err
		}
	}

	e.logger.Info("patch applied",
		slog.String("path", path),
		slog.Int("hunks", outcome.HunksApplied),
		slog.Int("added", outcome.LinesAdded),
		slog.Int("removed", outcome.LinesRemoved))
	return outcome, nil
}

func (e *Engine) readTarget(path string, hunks []Hunk) (string, bool, error) {
	content, err := files.ReadText(path, 0)
	if err == nil {
		return content, false, nil
	}
	if !apperrors.HasCode(err, apperrors.CodeFileNotFound) {
		return "", false, err
	}
	for _, h := range hunks {
		if len(h.source()) > 0 {
			return "", false, apperrors.NewBuilder(apperrors.CodeFileNotFound, "file not found: "+path).
				User().WithContext("path", path).
				WithSuggestion("To create a file, send a diff that only adds lines, or use write_file").
				Build()
		}
	}
	return "", true, nil
}

package executor

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/flynn-ai/corrode/internal/files"
	"github.com/flynn-ai/corrode/internal/patch"
	"github.com/flynn-ai/corrode/internal/shell"
)

// ReadOutcome is the structured result of read_file.
type ReadOutcome struct {
	Path       string `json:"path"`
	TotalLines int    `json:"total_lines"`
	Truncated  bool   `json:"truncated"`
}

// ReadFile reads file contents.
type ReadFile struct {
	Session         *shell.Session
	MaxReadBytes    int64
	DefaultMaxChars int
}

func (t *ReadFile) Name() string        { return "read_file" }
func (t *ReadFile) Description() string { return "Read a text file" }

func (t *ReadFile) Execute(ctx context.Context, input map[string]any) (*Result, error) {
	path := t.Session.Resolve(stringArg(input, "file_path"))

	content, err := files.ReadText(path, t.MaxReadBytes)
	if err != nil {
		return NewErrorResult(err), nil
	}

	maxChars := intArg(input, "max_chars", t.DefaultMaxChars)
	excerpt, total, truncated := files.Excerpt(content, intArg(input, "offset", 0), intArg(input, "limit", 0), maxChars)

	text := fmt.Sprintf("Read %s (%d lines)\n\nContent:\n%s", path, total, excerpt)
	return NewTextResult(text, ReadOutcome{Path: path, TotalLines: total, Truncated: truncated}), nil
}

// WriteOutcome is the structured result of write_file.
type WriteOutcome struct {
	Path    string `json:"path"`
	Bytes   int    `json:"bytes"`
	Created bool   `json:"created"`
}

// WriteFile writes content to a file.
type WriteFile struct {
	Session *shell.Session
	Locks   *files.Locker
}

func (t *WriteFile) Name() string        { return "write_file" }
func (t *WriteFile) Description() string { return "Write content to a file" }

func (t *WriteFile) Execute(ctx context.Context, input map[string]any) (*Result, error) {
	path := t.Session.Resolve(stringArg(input, "file_path"))
	content := stringArg(input, "content")

	unlock := t.Locks.Lock(path)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	_, statErr := os.Stat(path)
	if err := files.WriteAtomic(path, []byte(content), 0o644); err != nil {
		return NewErrorResult(err), nil
	}

	out := WriteOutcome{Path: path, Bytes: len(content), Created: os.IsNotExist(statErr)}
	return NewTextResult(fmt.Sprintf("Successfully wrote %d bytes to file: %s", out.Bytes, path), out), nil
}

// EditFile applies a unified diff to a file.
type EditFile struct {
	Session *shell.Session
	Patches *patch.Engine
}

func (t *EditFile) Name() string        { return "edit_file" }
func (t *EditFile) Description() string { return "Apply a unified diff to a file" }

func (t *EditFile) Execute(ctx context.Context, input map[string]any) (*Result, error) {
	path := t.Session.Resolve(stringArg(input, "file_path"))

	outcome, err := t.Patches.ApplyFile(ctx, path, stringArg(input, "diff"), boolArg(input, "ignore_whitespace"))
	if err != nil {
		return NewErrorResult(err), nil
	}
	return NewTextResult(describePatch(outcome), outcome), nil
}

func describePatch(o *patch.Outcome) string {
	var sb strings.Builder
	verb := "applied diff to"
	if o.Created {
		verb = "created"
	}
	fmt.Fprintf(&sb, "Successfully %s file: %s\n", verb, o.Path)
	fmt.Fprintf(&sb, "%d hunk(s), +%d -%d lines\n", o.HunksApplied, o.LinesAdded, o.LinesRemoved)
	for _, h := range o.Hunks {
		if h.Offset != 0 {
			fmt.Fprintf(&sb, "hunk %d applied at line %d (offset %+d)\n", h.Index, h.AppliedAt, h.Offset)
		}
	}
	return sb.String()
}

package executor

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/flynn-ai/corrode/internal/analyzer"
	"github.com/flynn-ai/corrode/internal/cargo"
	apperrors "github.com/flynn-ai/corrode/internal/errors"
	"github.com/flynn-ai/corrode/internal/files"
	"github.com/flynn-ai/corrode/internal/grammar"
	"github.com/flynn-ai/corrode/internal/shell"
)

// ListFunctionSignatures lists signatures under a directory or in one file.
type ListFunctionSignatures struct {
	Session  *shell.Session
	Analyzer *analyzer.Analyzer
}

func (t *ListFunctionSignatures) Name() string        { return "list_function_signatures" }
func (t *ListFunctionSignatures) Description() string { return "List function signatures" }

func (t *ListFunctionSignatures) Execute(ctx context.Context, input map[string]any) (*Result, error) {
	req := analyzer.Request{
		Root:   t.Session.Resolve(stringArgOr(input, "path", ".")),
		Filter: stringArg(input, "filter"),
	}
	if name := stringArg(input, "language"); name != "" {
		lang, ok := grammar.ParseLanguage(name)
		if !ok {
			return NewErrorResult(apperrors.InvalidArguments(map[string]string{
				"language": "must be one of " + strings.Join(grammar.Names(), ", "),
			})), nil
		}
		req.Languages = []grammar.Language{lang}
	}

	listing, err := t.Analyzer.Analyze(ctx, req)
	if err != nil {
		return NewErrorResult(err), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d signature(s) in %d file(s) under %s\n", len(listing.Signatures), listing.Files, listing.Root)
	if len(listing.Signatures) > 0 {
		sb.WriteString("\n")
	}
	for _, sig := range listing.Signatures {
		fmt.Fprintf(&sb, "%s:%d: %s\n", sig.Path, sig.StartLine, sig.Signature)
	}
	writeDiagnostics(&sb, listing.Diagnostics)
	return NewTextResult(sb.String(), listing), nil
}

// ParseCode outlines a single source file.
type ParseCode struct {
	Session  *shell.Session
	Analyzer *analyzer.Analyzer
}

func (t *ParseCode) Name() string        { return "parse_code" }
func (t *ParseCode) Description() string { return "Outline a source file" }

func (t *ParseCode) Execute(ctx context.Context, input map[string]any) (*Result, error) {
	project := t.Session.Resolve(stringArgOr(input, "project_path", "."))
	info, err := os.Stat(project)
	switch {
	case err != nil:
		return NewErrorResult(apperrors.NewBuilder(apperrors.CodeFileNotFound,
			fmt.Sprintf("project directory '%s' does not exist", project)).
			User().WithContext("path", project).Build()), nil
	case !info.IsDir():
		return NewErrorResult(apperrors.NewBuilder(apperrors.CodeFileReadFailed,
			fmt.Sprintf("'%s' is not a directory", project)).
			User().WithContext("path", project).Build()), nil
	}

	path := projectFile(project, stringArg(input, "file_path"))
	listing, err := t.Analyzer.Analyze(ctx, analyzer.Request{Root: path, Outline: true})
	if err != nil {
		return NewErrorResult(err), nil
	}

	var sb strings.Builder
	if listing.Files == 0 {
		fmt.Fprintf(&sb, "%s is not in a supported language (%s)\n", path, strings.Join(grammar.Names(), ", "))
	} else {
		fmt.Fprintf(&sb, "Outline of %s: %d item(s), %d declaration(s)\n", path, len(listing.Outline), len(listing.Signatures))
	}
	for _, e := range outlineEntries(listing) {
		sb.WriteString("  " + e.text + "\n")
	}
	writeDiagnostics(&sb, listing.Diagnostics)
	return NewTextResult(sb.String(), listing), nil
}

type outlineEntry struct {
	line int
	text string
}

// outlineEntries interleaves items and signatures in source order.
func outlineEntries(listing *analyzer.Listing) []outlineEntry {
	entries := make([]outlineEntry, 0, len(listing.Outline)+len(listing.Signatures))
	for _, it := range listing.Outline {
		entries = append(entries, outlineEntry{
			line: it.StartLine,
			text: fmt.Sprintf("%d-%d %s %s", it.StartLine, it.EndLine, it.Kind, it.Name),
		})
	}
	for _, sig := range listing.Signatures {
		name := sig.Name
		if sig.Parent != "" {
			name = sig.Parent + "." + name
		}
		entries = append(entries, outlineEntry{
			line: sig.StartLine,
			text: fmt.Sprintf("%d-%d %s %s: %s", sig.StartLine, sig.EndLine, sig.Kind, name, sig.Signature),
		})
	}
	slices.SortStableFunc(entries, func(a, b outlineEntry) int { return cmp.Compare(a.line, b.line) })
	return entries
}

// projectFile resolves file against project. Clients often repeat the
// project's own directory name ("demo/src/lib.rs" inside demo); that prefix is
// dropped when the literal path does not exist.
func projectFile(project, file string) string {
	path := files.Resolve(project, file)
	if _, err := os.Stat(path); err == nil || filepath.IsAbs(file) {
		return path
	}
	prefix := filepath.Base(project) + string(filepath.Separator)
	if rest, ok := strings.CutPrefix(filepath.Clean(file), prefix); ok {
		return files.Resolve(project, rest)
	}
	return path
}

func writeDiagnostics(sb *strings.Builder, diags []analyzer.Diagnostic) {
	if len(diags) == 0 {
		return
	}
	sb.WriteString("\nDiagnostics:\n")
	for _, d := range diags {
		fmt.Fprintf(sb, "%s: %s: %s\n", d.Path, d.Severity, d.Message)
	}
}

// CheckCode runs cargo check in the session directory.
type CheckCode struct {
	Session *shell.Session
	Timeout time.Duration
}

func (t *CheckCode) Name() string        { return "check_code" }
func (t *CheckCode) Description() string { return "Run cargo check" }

func (t *CheckCode) Execute(ctx context.Context, input map[string]any) (*Result, error) {
	report, err := cargo.Check(ctx, t.Session, cargo.Options{
		Package:    stringArg(input, "package"),
		AllTargets: boolArg(input, "all_targets"),
		Timeout:    t.Timeout,
	})
	if err != nil {
		return NewErrorResult(err), nil
	}
	return NewTextResult(report.Summary()+"\n\n"+report.Result.Output(), report), nil
}

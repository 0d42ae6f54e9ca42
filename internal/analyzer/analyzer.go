// Package analyzer extracts function and method signatures from source trees,
// and on request a structural outline of types, modules and imports.
//
// Files are parsed in parallel, each with its own tree-sitter parser, against
// the shared read-only grammar set. Results are re-sorted by path and source
// position before they are returned, so the output does not depend on
// scheduling. A file that cannot be read or parsed is skipped and reported as a
// diagnostic; it never fails the whole listing.
package analyzer

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"
	sitter "github.com/smacker/go-tree-sitter"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/flynn-ai/corrode/internal/errors"
	"github.com/flynn-ai/corrode/internal/grammar"
)

// Defaults used when Options leaves a field zero.
const (
	DefaultWorkers      = 4
	DefaultMaxFileBytes = 2 * 1024 * 1024
)

// DefaultExclude lists directories skipped during a walk.
var DefaultExclude = []string{".git", "target", "node_modules"}

// Options configures an Analyzer.
type Options struct {
	Workers      int
	MaxFileBytes int64
	// Exclude holds directory names or doublestar globs (root-relative).
	Exclude []string
}

// Analyzer extracts signatures. It is safe for concurrent use.
type Analyzer struct {
	grammars     *grammar.Set
	workers      int
	maxFileBytes int64
	exclude      []string
	logger       *slog.Logger
}

// New creates an Analyzer over a grammar set.
func New(grammars *grammar.Set, opts Options, logger *slog.Logger) *Analyzer {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.MaxFileBytes <= 0 {
		opts.MaxFileBytes = DefaultMaxFileBytes
	}
	if opts.Exclude == nil {
		opts.Exclude = DefaultExclude
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{
		grammars:     grammars,
		workers:      opts.Workers,
		maxFileBytes: opts.MaxFileBytes,
		exclude:      opts.Exclude,
		logger:       logger,
	}
}

type candidate struct {
	abs     string
	rel     string
	grammar *grammar.Grammar
}

type fileResult struct {
	signatures  []Signature
	outline     []Item
	diagnostics []Diagnostic
}

// Analyze lists the signatures under req.Root.
func (a *Analyzer) Analyze(ctx context.Context, req Request) (*Listing, error) {
	if req.Filter != "" && !doublestar.ValidatePattern(req.Filter) {
		return nil, apperrors.InvalidArguments(map[string]string{"filter": fmt.Sprintf("invalid glob %q", req.Filter)})
	}

	root, err := filepath.Abs(req.Root)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeFileNotFound, "resolving "+req.Root, apperrors.CategoryUser)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, apperrors.NewBuilder(apperrors.CodeFileNotFound, "path does not exist: "+root).
			User().Wrap(err).WithContext("path", root).Build()
	}

	listing := &Listing{
		Root:        root,
		Signatures:  []Signature{},
		Diagnostics: []Diagnostic{},
	}

	var files []candidate
	if info.IsDir() {
		files, listing.Diagnostics, err = a.collect(ctx, root, req)
		if err != nil {
			return nil, err
		}
	} else if c, ok := a.candidateFor(root, filepath.Base(root), req); ok {
		files = []candidate{c}
	}

	results := make([]fileResult, len(files))
	var g errgroup.Group
	g.SetLimit(a.workers)
	for i, f := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = a.parseFile(ctx, f, req.Outline)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, r := range results {
		listing.Signatures = append(listing.Signatures, r.signatures...)
		listing.Outline = append(listing.Outline, r.outline...)
		listing.Diagnostics = append(listing.Diagnostics, r.diagnostics...)
	}
	listing.Files = len(files)

	sortSignatures(listing.Signatures)
	sortItems(listing.Outline)
	sort.SliceStable(listing.Diagnostics, func(i, j int) bool {
		return listing.Diagnostics[i].Path < listing.Diagnostics[j].Path
	})

	a.logger.Debug("analysis complete",
		slog.String("root", root),
		slog.Int("files", listing.Files),
		slog.Int("signatures", len(listing.Signatures)),
		slog.Int("diagnostics", len(listing.Diagnostics)))

	return listing, nil
}

// collect walks root and returns the files to parse, sorted by relative path.
func (a *Analyzer) collect(ctx context.Context, root string, req Request) ([]candidate, []Diagnostic, error) {
	var (
		mu    sync.Mutex
		files []candidate
		diags = []Diagnostic{}
	)

	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if path == root {
			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if err != nil {
			mu.Lock()
			diags = append(diags, Diagnostic{Path: rel, Severity: SeverityError, Code: apperrors.CodeAnalysisError, Message: err.Error()})
			mu.Unlock()
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if a.excluded(rel, d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		if c, ok := a.candidateFor(path, rel, req); ok {
			mu.Lock()
			files = append(files, c)
			mu.Unlock()
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		return nil, nil, apperrors.Wrap(err, apperrors.CodeFileReadFailed, "walking "+root, apperrors.CategorySystem)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].rel < files[j].rel })
	return files, diags, nil
}

// candidateFor applies the language and path filters. Unknown extensions are skipped silently.
func (a *Analyzer) candidateFor(abs, rel string, req Request) (candidate, bool) {
	g, ok := a.grammars.Lookup(abs)
	if !ok {
		return candidate{}, false
	}
	if len(req.Languages) > 0 && !slices.Contains(req.Languages, g.Language) {
		return candidate{}, false
	}
	if req.Filter != "" {
		if match, _ := doublestar.Match(req.Filter, rel); !match {
			return candidate{}, false
		}
	}
	return candidate{abs: abs, rel: rel, grammar: g}, true
}

func (a *Analyzer) excluded(rel, name string) bool {
	for _, pattern := range a.exclude {
		if !strings.ContainsAny(pattern, "/*?[{") {
			if name == pattern {
				return true
			}
			continue
		}
		if match, _ := doublestar.Match(pattern, rel); match {
			return true
		}
	}
	return false
}

func (a *Analyzer) parseFile(ctx context.Context, f candidate, outline bool) fileResult {
	fail := func(format string, args ...any) fileResult {
		msg := fmt.Sprintf(format, args...)
		a.logger.Debug("skipping file", slog.String("file", f.rel), slog.String("reason", msg))
		return fileResult{diagnostics: []Diagnostic{{
			Path: f.rel, Severity: SeverityError, Code: apperrors.CodeAnalysisError, Message: msg,
		}}}
	}

	info, err := os.Stat(f.abs)
	if err != nil {
		return fail("stat failed: %v", err)
	}
	if info.Size() > a.maxFileBytes {
		return fail("file size %d exceeds limit %d", info.Size(), a.maxFileBytes)
	}

	src, err := os.ReadFile(f.abs)
	if err != nil {
		return fail("read failed: %v", err)
	}
	if !utf8.Valid(src) {
		return fail("content is not valid UTF-8")
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(f.grammar.SitterLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return fail("tree-sitter parse failed: %v", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	var res fileResult
	if root.HasError() {
		msg := "syntax errors present; signatures may be incomplete"
		if line := firstErrorLine(root); line > 0 {
			msg = fmt.Sprintf("syntax error near line %d; signatures may be incomplete", line)
		}
		res.diagnostics = append(res.diagnostics, Diagnostic{
			Path: f.rel, Severity: SeverityWarning, Code: apperrors.CodeAnalysisError, Message: msg,
		})
	}

	query := f.grammar.Query()
	cursor := sitter.NewQueryCursor()
	defer cursor.Close()
	cursor.Exec(query, root)

	seen := make(map[uint32]bool)
	for {
		match, ok := cursor.NextMatch()
		if !ok {
			break
		}
		for _, capture := range match.Captures {
			node := capture.Node
			if seen[node.StartByte()] {
				continue
			}
			sig, ok := extract(f.grammar.Language, query.CaptureNameForId(capture.Index), node, src)
			if !ok {
				continue
			}
			seen[node.StartByte()] = true
			sig.Path = f.rel
			res.signatures = append(res.signatures, sig)
		}
	}

	if outline {
		res.outline = outlineFile(f, root, src)
	}
	return res
}

// outlineFile runs the outline query over one parsed file.
func outlineFile(f candidate, root *sitter.Node, src []byte) []Item {
	query := f.grammar.Outline()
	cursor := sitter.NewQueryCursor()
	defer cursor.Close()
	cursor.Exec(query, root)

	var items []Item
	for {
		match, ok := cursor.NextMatch()
		if !ok {
			break
		}
		for _, capture := range match.Captures {
			item, ok := outlineItem(f.grammar.Language, query.CaptureNameForId(capture.Index), capture.Node, src)
			if !ok {
				continue
			}
			item.Path = f.rel
			items = append(items, item)
		}
	}
	return items
}

// firstErrorLine returns the 1-based line of the first ERROR or MISSING node, or 0.
func firstErrorLine(n *sitter.Node) int {
	if n.Type() == "ERROR" || n.IsMissing() {
		return int(n.StartPoint().Row) + 1
	}
	if !n.HasError() {
		return 0
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child == nil {
			continue
		}
		if line := firstErrorLine(child); line > 0 {
			return line
		}
	}
	return 0
}

func sortItems(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Path != items[j].Path {
			return items[i].Path < items[j].Path
		}
		return items[i].startByte < items[j].startByte
	})
}

// sortSignatures orders by path, then by position within the file.
func sortSignatures(sigs []Signature) {
	sort.SliceStable(sigs, func(i, j int) bool {
		if sigs[i].Path != sigs[j].Path {
			return sigs[i].Path < sigs[j].Path
		}
		return sigs[i].startByte < sigs[j].startByte
	})
}

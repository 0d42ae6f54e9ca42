package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/flynn-ai/corrode/internal/crates"
)

// CrateIndex is the crates.io and docs.rs surface the crate tools need.
type CrateIndex interface {
	Search(ctx context.Context, query string, page, perPage int) (*crates.SearchResult, error)
	Crate(ctx context.Context, name string) (*crates.Crate, error)
	Versions(ctx context.Context, name string) ([]crates.Version, error)
	Dependencies(ctx context.Context, name, version string) ([]crates.Dependency, error)
	Docs(ctx context.Context, crate, version string) (*crates.Docs, error)
}

// SearchCrates searches crates.io.
type SearchCrates struct {
	Index CrateIndex
}

func (t *SearchCrates) Name() string        { return "search_crates" }
func (t *SearchCrates) Description() string { return "Search crates.io" }

func (t *SearchCrates) Execute(ctx context.Context, input map[string]any) (*Result, error) {
	query := stringArg(input, "query")
	res, err := t.Index.Search(ctx, query, intArg(input, "page", 0), intArg(input, "per_page", 0))
	if err != nil {
		return NewErrorResult(err), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d crate(s) matching %q", res.Total, query)
	if len(res.Crates) < res.Total {
		fmt.Fprintf(&sb, " (showing %d)", len(res.Crates))
	}
	sb.WriteString("\n")
	for _, c := range res.Crates {
		fmt.Fprintf(&sb, "\n%s %s (%d downloads)\n", c.Name, c.MaxVersion, c.Downloads)
		if desc := strings.TrimSpace(c.Description); desc != "" {
			fmt.Fprintf(&sb, "  %s\n", oneLine(desc))
		}
	}
	return NewTextResult(sb.String(), res), nil
}

// GetCrate fetches one crate's details.
type GetCrate struct {
	Index CrateIndex
}

func (t *GetCrate) Name() string        { return "get_crate" }
func (t *GetCrate) Description() string { return "Get crate details" }

func (t *GetCrate) Execute(ctx context.Context, input map[string]any) (*Result, error) {
	c, err := t.Index.Crate(ctx, stringArg(input, "crate_name"))
	if err != nil {
		return NewErrorResult(err), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s\n", c.Name, c.MaxVersion)
	if c.Description != "" {
		fmt.Fprintf(&sb, "%s\n", oneLine(c.Description))
	}
	sb.WriteString("\n")
	for _, field := range []struct{ label, value string }{
		{"Latest stable", c.MaxStableVersion},
		{"Documentation", c.Documentation},
		{"Repository", c.Repository},
		{"Homepage", c.Homepage},
		{"Keywords", strings.Join(c.Keywords, ", ")},
		{"Updated", c.UpdatedAt},
	} {
		if field.value != "" {
			fmt.Fprintf(&sb, "%s: %s\n", field.label, field.value)
		}
	}
	fmt.Fprintf(&sb, "Downloads: %d\n", c.Downloads)
	return NewTextResult(sb.String(), c), nil
}

// GetCrateVersions lists a crate's versions.
type GetCrateVersions struct {
	Index CrateIndex
}

func (t *GetCrateVersions) Name() string        { return "get_crate_versions" }
func (t *GetCrateVersions) Description() string { return "List crate versions" }

func (t *GetCrateVersions) Execute(ctx context.Context, input map[string]any) (*Result, error) {
	name := stringArg(input, "crate_name")
	versions, err := t.Index.Versions(ctx, name)
	if err != nil {
		return NewErrorResult(err), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d version(s) of %s\n\n", len(versions), name)
	for _, v := range versions {
		sb.WriteString(v.Num)
		if v.Yanked {
			sb.WriteString(" (yanked)")
		}
		if v.RustVersion != "" {
			fmt.Fprintf(&sb, " rust %s", v.RustVersion)
		}
		sb.WriteString("\n")
	}
	return NewTextResult(sb.String(), versions), nil
}

// GetCrateDependencies lists the dependencies of a crate version.
type GetCrateDependencies struct {
	Index CrateIndex
}

func (t *GetCrateDependencies) Name() string        { return "get_crate_dependencies" }
func (t *GetCrateDependencies) Description() string { return "List crate dependencies" }

func (t *GetCrateDependencies) Execute(ctx context.Context, input map[string]any) (*Result, error) {
	name, version := stringArg(input, "crate_name"), stringArg(input, "version")
	deps, err := t.Index.Dependencies(ctx, name, version)
	if err != nil {
		return NewErrorResult(err), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d dependencies of %s %s\n\n", len(deps), name, version)
	for _, d := range deps {
		fmt.Fprintf(&sb, "%s %s [%s", d.CrateID, d.Req, d.Kind)
		if d.Optional {
			sb.WriteString(", optional")
		}
		if d.Target != "" {
			fmt.Fprintf(&sb, ", target %s", d.Target)
		}
		sb.WriteString("]\n")
	}
	return NewTextResult(sb.String(), deps), nil
}

// DocsOutcome is the structured result of lookup_crate_docs; the markdown
// itself is the text block.
type DocsOutcome struct {
	Crate     string `json:"crate"`
	Version   string `json:"version"`
	URL       string `json:"url"`
	Truncated bool   `json:"truncated"`
}

// LookupCrateDocs renders a crate's docs.rs front page.
type LookupCrateDocs struct {
	Index CrateIndex
}

func (t *LookupCrateDocs) Name() string        { return "lookup_crate_docs" }
func (t *LookupCrateDocs) Description() string { return "Fetch crate documentation" }

func (t *LookupCrateDocs) Execute(ctx context.Context, input map[string]any) (*Result, error) {
	docs, err := t.Index.Docs(ctx, stringArgOr(input, "crate_name", "tokio"), stringArg(input, "version"))
	if err != nil {
		return NewErrorResult(err), nil
	}
	return NewTextResult(docs.Markdown, DocsOutcome{
		Crate:     docs.Crate,
		Version:   docs.Version,
		URL:       docs.URL,
		Truncated: docs.Truncated,
	}), nil
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

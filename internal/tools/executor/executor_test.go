package executor

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/flynn-ai/corrode/internal/analyzer"
	"github.com/flynn-ai/corrode/internal/crates"
	apperrors "github.com/flynn-ai/corrode/internal/errors"
	"github.com/flynn-ai/corrode/internal/files"
	"github.com/flynn-ai/corrode/internal/grammar"
	"github.com/flynn-ai/corrode/internal/patch"
	"github.com/flynn-ai/corrode/internal/shell"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newSession(t *testing.T) *shell.Session {
	t.Helper()
	s, err := shell.New(shell.Options{Dir: t.TempDir()}, nil)
	require.NoError(t, err)
	return s
}

func newAnalyzer(t *testing.T) *analyzer.Analyzer {
	t.Helper()
	set, err := grammar.NewSet()
	require.NoError(t, err)
	t.Cleanup(set.Close)
	return analyzer.New(set, analyzer.Options{Workers: 2}, nil)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func requireErrorCode(t *testing.T, res *Result, err error, code string) {
	t.Helper()
	require.NoError(t, err)
	require.NotNil(t, res)
	require.False(t, res.Success)
	assert.Equal(t, code, apperrors.GetCode(res.Err))
}

func TestReadFile(t *testing.T) {
	s := newSession(t)
	writeFile(t, filepath.Join(s.Dir(), "notes.txt"), "one\ntwo\nthree\n")
	tool := &ReadFile{Session: s, DefaultMaxChars: 6}
	ctx := context.Background()

	res, err := tool.Execute(ctx, map[string]any{"file_path": "notes.txt"})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.True(t, strings.HasSuffix(res.Text, "Content:\none\ntw"+files.TruncationNotice))
	assert.Equal(t, ReadOutcome{Path: filepath.Join(s.Dir(), "notes.txt"), TotalLines: 3, Truncated: true}, res.Data)

	res, err = tool.Execute(ctx, map[string]any{"file_path": "notes.txt", "max_chars": 0.0, "offset": 1.0, "limit": 1.0})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(res.Text, "Content:\ntwo\n"))

	res, err = tool.Execute(ctx, map[string]any{"file_path": "missing.txt"})
	requireErrorCode(t, res, err, apperrors.CodeFileNotFound)
}

func TestWriteThenEditFile(t *testing.T) {
	s := newSession(t)
	locks := &files.Locker{}
	write := &WriteFile{Session: s, Locks: locks}
	edit := &EditFile{Session: s, Patches: patch.NewEngine(patch.Options{}, locks, nil)}
	ctx := context.Background()

	res, err := write.Execute(ctx, map[string]any{"file_path": "src/lib.rs", "content": "fn a() {}\nfn b() {}\n"})
	require.NoError(t, err)
	require.True(t, res.Success)
	out := res.Data.(WriteOutcome)
	assert.True(t, out.Created)
	assert.Equal(t, 20, out.Bytes)

	diff := "--- a/src/lib.rs\n+++ b/src/lib.rs\n@@ -1,2 +1,2 @@\n fn a() {}\n-fn b() {}\n+fn b() -> u8 { 0 }\n"
	res, err = edit.Execute(ctx, map[string]any{"file_path": "src/lib.rs", "diff": diff})
	require.NoError(t, err)
	require.True(t, res.Success, "%v", res.Err)
	assert.Contains(t, res.Text, "Successfully applied diff to file:")
	assert.Contains(t, res.Text, "1 hunk(s), +1 -1 lines")

	data, err := os.ReadFile(filepath.Join(s.Dir(), "src", "lib.rs"))
	require.NoError(t, err)
	assert.Equal(t, "fn a() {}\nfn b() -> u8 { 0 }\n", string(data))

	res, err = edit.Execute(ctx, map[string]any{"file_path": "src/lib.rs", "diff": diff})
	requireErrorCode(t, res, err, apperrors.CodeHunkMismatch)
}

func TestListFunctionSignatures(t *testing.T) {
	s := newSession(t)
	writeFile(t, filepath.Join(s.Dir(), "src", "lib.rs"), "pub fn add(a: i32, b: i32) -> i32 {\n    a + b\n}\n")
	writeFile(t, filepath.Join(s.Dir(), "tool.py"), "def run(x):\n    return x\n")
	tool := &ListFunctionSignatures{Session: s, Analyzer: newAnalyzer(t)}
	ctx := context.Background()

	res, err := tool.Execute(ctx, map[string]any{"language": "rust"})
	require.NoError(t, err)
	require.True(t, res.Success, "%v", res.Err)
	listing := res.Data.(*analyzer.Listing)
	require.Len(t, listing.Signatures, 1)
	assert.Equal(t, "add", listing.Signatures[0].Name)
	assert.Contains(t, res.Text, "Found 1 signature(s) in 1 file(s)")
	assert.Contains(t, res.Text, "src/lib.rs:1: pub fn add(a: i32, b: i32) -> i32")

	res, err = tool.Execute(ctx, map[string]any{"filter": "*.py"})
	require.NoError(t, err)
	require.Len(t, res.Data.(*analyzer.Listing).Signatures, 1)
	assert.Equal(t, "run", res.Data.(*analyzer.Listing).Signatures[0].Name)
}

func TestParseCode(t *testing.T) {
	s := newSession(t)
	project := filepath.Join(s.Dir(), "demo")
	writeFile(t, filepath.Join(project, "src", "main.rs"), "struct S;\nimpl S {\n    fn go(&self) {}\n}\nfn main() {}\nuse std::fmt;\n")
	tool := &ParseCode{Session: s, Analyzer: newAnalyzer(t)}
	ctx := context.Background()

	for _, file := range []string{"src/main.rs", "demo/src/main.rs"} {
		res, err := tool.Execute(ctx, map[string]any{"file_path": file, "project_path": "demo"})
		require.NoError(t, err)
		require.True(t, res.Success, "%v", res.Err)
		assert.Contains(t, res.Text, "Outline of "+filepath.Join(project, "src", "main.rs")+": 3 item(s), 2 declaration(s)")
		assert.Contains(t, res.Text, "  1-1 struct S\n  2-4 impl S\n  3-3 method S.go: fn go(&self) {}\n  5-5 function main: fn main() {}\n  6-6 import std::fmt\n")
	}

	res, err := tool.Execute(ctx, map[string]any{"file_path": "src/main.rs", "project_path": "demo"})
	require.NoError(t, err)
	listing := res.Data.(*analyzer.Listing)
	require.Len(t, listing.Outline, 3)
	assert.Equal(t, analyzer.OutlineImpl, listing.Outline[1].Kind)
	assert.Equal(t, "S", listing.Outline[1].Name)

	res, err = tool.Execute(ctx, map[string]any{"file_path": "x.rs", "project_path": "nowhere"})
	requireErrorCode(t, res, err, apperrors.CodeFileNotFound)
}

func TestShellTools(t *testing.T) {
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available")
	}
	s := newSession(t)
	require.NoError(t, os.Mkdir(filepath.Join(s.Dir(), "sub"), 0o755))
	ctx := context.Background()

	res, err := (&ChangeDirectory{Session: s}).Execute(ctx, map[string]any{"path": "sub"})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, "Changed directory to: "+s.Dir(), res.Text)
	assert.Equal(t, "sub", filepath.Base(s.Dir()))

	res, err = (&ChangeDirectory{Session: s}).Execute(ctx, map[string]any{"path": "missing"})
	requireErrorCode(t, res, err, apperrors.CodeShellNotFound)

	res, err = (&RunCommand{Session: s}).Execute(ctx, map[string]any{"command": "pwd"})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, s.Dir()+"\n", res.Data.(*shell.CommandResult).Stdout)

	res, err = (&ExecuteBash{Session: s}).Execute(ctx, map[string]any{"command": "cd .. && echo hi"})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Contains(t, res.Text, "Changed directory to: ")
	assert.Contains(t, res.Text, "Standard output:\nhi\n")
	assert.NotEqual(t, "sub", filepath.Base(s.Dir()))
}

func TestCheckCodeOutsideRustProject(t *testing.T) {
	s := newSession(t)
	res, err := (&CheckCode{Session: s}).Execute(context.Background(), map[string]any{})
	requireErrorCode(t, res, err, apperrors.CodeNotRustProject)
}

type fakeIndex struct {
	docsCrate, docsVersion string
}

func (f *fakeIndex) Search(_ context.Context, query string, page, perPage int) (*crates.SearchResult, error) {
	return &crates.SearchResult{Total: 12, Crates: []crates.Crate{
		{Name: "serde", MaxVersion: "1.0.210", Downloads: 100, Description: "A generic\n  serialization framework"},
	}}, nil
}

func (f *fakeIndex) Crate(_ context.Context, name string) (*crates.Crate, error) {
	if name != "serde" {
		return nil, apperrors.NewBuilder(apperrors.CodeCrateNotFound, "crate not found").Permanent().Build()
	}
	return &crates.Crate{Name: "serde", MaxVersion: "1.0.210", Repository: "https://github.com/serde-rs/serde"}, nil
}

func (f *fakeIndex) Versions(context.Context, string) ([]crates.Version, error) {
	return []crates.Version{{Num: "1.0.210"}, {Num: "1.0.209", Yanked: true}}, nil
}

func (f *fakeIndex) Dependencies(context.Context, string, string) ([]crates.Dependency, error) {
	return []crates.Dependency{{CrateID: "serde_derive", Req: "=1.0.210", Kind: "normal", Optional: true}}, nil
}

func (f *fakeIndex) Docs(_ context.Context, crate, version string) (*crates.Docs, error) {
	f.docsCrate, f.docsVersion = crate, version
	return &crates.Docs{Crate: crate, Version: "latest", URL: "https://docs.rs/" + crate, Markdown: "# " + crate}, nil
}

func TestCrateTools(t *testing.T) {
	index := &fakeIndex{}
	ctx := context.Background()

	res, err := (&SearchCrates{Index: index}).Execute(ctx, map[string]any{"query": "serde"})
	require.NoError(t, err)
	assert.Equal(t, "Found 12 crate(s) matching \"serde\" (showing 1)\n\nserde 1.0.210 (100 downloads)\n  A generic serialization framework\n", res.Text)

	res, err = (&GetCrate{Index: index}).Execute(ctx, map[string]any{"crate_name": "serde"})
	require.NoError(t, err)
	assert.Contains(t, res.Text, "Repository: https://github.com/serde-rs/serde\n")

	res, err = (&GetCrate{Index: index}).Execute(ctx, map[string]any{"crate_name": "serd"})
	requireErrorCode(t, res, err, apperrors.CodeCrateNotFound)

	res, err = (&GetCrateVersions{Index: index}).Execute(ctx, map[string]any{"crate_name": "serde"})
	require.NoError(t, err)
	assert.Equal(t, "2 version(s) of serde\n\n1.0.210\n1.0.209 (yanked)\n", res.Text)

	res, err = (&GetCrateDependencies{Index: index}).Execute(ctx, map[string]any{"crate_name": "serde", "version": "1.0.210"})
	require.NoError(t, err)
	assert.Equal(t, "1 dependencies of serde 1.0.210\n\nserde_derive =1.0.210 [normal, optional]\n", res.Text)

	res, err = (&LookupCrateDocs{Index: index}).Execute(ctx, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "# tokio", res.Text)
	assert.Equal(t, "tokio", index.docsCrate)
	assert.Empty(t, index.docsVersion)
}

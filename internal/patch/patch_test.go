package patch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/flynn-ai/corrode/internal/errors"
)

func numbered(n int) string {
	var sb strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&sb, "l%d\n", i)
	}
	return sb.String()
}

func TestParseRecomputesHeaders(t *testing.T) {
	hunks, err := Parse("Here is the change:\n--- a/main.go\n+++ b/main.go\n" +
		"@@ -1,5 +1,9 @@ func main()\n a\n-b\n+c\n\n" +
		"@@ @@\n-x\n+y\n\\ No newline at end of file\n")
	require.NoError(t, err)
	require.Len(t, hunks, 2)

	first := hunks[0]
	assert.Equal(t, 1, first.Index)
	assert.True(t, first.Anchored)
	assert.Equal(t, 1, first.OldStart)
	assert.Equal(t, 3, first.OldLines)
	assert.Equal(t, 3, first.NewLines)
	assert.Equal(t, []Line{
		{Op: OpContext, Text: "a"},
		{Op: OpRemove, Text: "b"},
		{Op: OpAdd, Text: "c"},
		{Op: OpContext, Text: ""},
	}, first.Lines)

	second := hunks[1]
	assert.Equal(t, 2, second.Index)
	assert.False(t, second.Anchored)
	assert.Equal(t, []Line{{Op: OpRemove, Text: "x"}, {Op: OpAdd, Text: "y"}}, second.Lines)
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		diff string
	}{
		{"no hunks", "just some prose\n"},
		{"unknown prefix", "@@ -1,1 +1,1 @@\n*bad\n"},
		{"empty hunk", "@@ -1,1 +1,1 @@\n@@ -3,1 +3,1 @@\n-a\n+b\n"},
		{"two targets in preamble", "+++ b/x\n+++ b/y\n@@ -1 +1 @@\n-a\n+b\n"},
		{"second file in body", "--- a/x\n+++ b/x\n@@ -1 +1 @@\n-a\n+b\n--- a/y\n+++ b/y\n@@ -1 +1 @@\n-c\n+d\n"},
		{"git header in body", "@@ -1 +1 @@\n-a\n+b\ndiff --git a/y b/y\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.diff)
			require.Error(t, err)
			assert.Equal(t, apperrors.CodeInvalidDiff, apperrors.GetCode(err))
		})
	}
}

func TestApply(t *testing.T) {
	tests := []struct {
		name    string
		content string
		diff    string
		opts    Options
		want    string
	}{
		{
			name:    "exact position",
			content: "a\nb\nc\nd\ne\n",
			diff:    "--- a/f.txt\n+++ b/f.txt\n@@ -2,3 +2,3 @@\n b\n-c\n+C\n d\n",
			want:    "a\nb\nC\nd\ne\n",
		},
		{
			name:    "header off by a few lines",
			content: numbered(10),
			diff:    "@@ -2,3 +2,3 @@\n l6\n-l7\n+L7\n l8\n",
			want:    strings.Replace(numbered(10), "l7\n", "L7\n", 1),
		},
		{
			name:    "drift carries to later hunks",
			content: numbered(20),
			diff:    "@@ -1,2 +1,2 @@\n-l4\n+L4\n l5\n@@ -10,2 +10,2 @@\n-l13\n+L13\n l14\n",
			want:    strings.NewReplacer("l4\n", "L4\n", "l13\n", "L13\n").Replace(numbered(20)),
		},
		{
			name:    "crlf preserved",
			content: "one\r\ntwo\r\nthree\r\n",
			diff:    "@@ -1,3 +1,3 @@\n one\n-two\n+TWO\n three\n",
			want:    "one\r\nTWO\r\nthree\r\n",
		},
		{
			name:    "missing trailing newline preserved",
			content: "x\ny",
			diff:    "@@ -2 +2 @@\n-y\n\\ No newline at end of file\n+z\n\\ No newline at end of file\n",
			want:    "x\nz",
		},
		{
			name:    "blank diff line is blank context",
			content: "a\n\nb\n",
			diff:    "@@ -1,3 +1,3 @@\n a\n\n-b\n+B\n",
			want:    "a\n\nB\n",
		},
		{
			name:    "un-anchored header",
			content: "a\nb\nc\n",
			diff:    "@@ @@\n-b\n+B\n",
			want:    "a\nB\nc\n",
		},
		{
			name:    "pure insertion after a line",
			content: "a\nb\nc\n",
			diff:    "@@ -2,0 +3,1 @@\n+inserted\n",
			want:    "a\nb\ninserted\nc\n",
		},
		{
			name:    "comment lines that look like file headers",
			content: "a\n-- old\nb\n",
			diff:    "@@ -1,3 +1,3 @@\n a\n--- old\n+++ new\n b\n",
			want:    "a\n++ new\nb\n",
		},
		{
			name:    "comment lines that look like file headers, un-anchored",
			content: "a\n-- old\nb\n",
			diff:    "@@ @@\n a\n--- old\n+++ new\n b\n",
			want:    "a\n++ new\nb\n",
		},
		{
			name:    "trailing blank lines after the last hunk",
			content: "a\nb\n",
			diff:    "@@ -1,2 +1,2 @@\n a\n-b\n+c\n\n\n",
			want:    "a\nc\n",
		},
		{
			name:    "trailing blank line between hunks",
			content: "a\nb\nc\nd\n",
			diff:    "@@ -1,1 +1,1 @@\n-a\n+A\n\n@@ @@\n-d\n+D\n\n",
			want:    "A\nb\nc\nD\n",
		},
		{
			name:    "context keeps file text under whitespace matching",
			content: "fn() {\n    return  1\n}\n",
			diff:    "@@ -1,3 +1,3 @@\n  fn() {\n-  return 1\n+    return 2\n }\n",
			opts:    Options{IgnoreWhitespace: true},
			want:    "fn() {\n    return 2\n}\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, outcome, err := Apply(tt.content, tt.diff, tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, len(outcome.Hunks), outcome.HunksApplied)
		})
	}
}

func TestApplyReportsDrift(t *testing.T) {
	_, outcome, err := Apply(numbered(10), "@@ -2,3 +2,3 @@\n l6\n-l7\n+L7\n l8\n", Options{})
	require.NoError(t, err)
	require.Len(t, outcome.Hunks, 1)
	assert.Equal(t, HunkReport{Index: 1, OldStart: 2, AppliedAt: 6, Offset: 4, Added: 1, Removed: 1}, outcome.Hunks[0])
	assert.Equal(t, 1, outcome.LinesAdded)
	assert.Equal(t, 1, outcome.LinesRemoved)
}

func TestApplyMismatch(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		diff     string
		opts     Options
		hunk     int
		line     int
		expected []string
	}{
		{
			name:     "drift beyond limit",
			content:  numbered(10),
			diff:     "@@ -2,3 +2,3 @@\n l6\n-l7\n+L7\n l8\n",
			opts:     Options{MaxDrift: 2},
			hunk:     1,
			line:     6,
			expected: []string{"l6", "l7", "l8"},
		},
		{
			name:     "stale context",
			content:  "a\nb\nc\n",
			diff:     "@@ -1,3 +1,3 @@\n a\n-B\n+X\n c\n",
			hunk:     1,
			line:     1,
			expected: []string{"a", "B", "c"},
		},
		{
			name:     "second hunk fails",
			content:  "a\nb\nc\nd\n",
			diff:     "@@ -1,1 +1,1 @@\n-a\n+A\n@@ -3,1 +3,1 @@\n-zzz\n+Z\n",
			hunk:     2,
			expected: []string{"zzz"},
		},
		{
			name:     "whitespace differs without opt-in",
			content:  "fn() {\n    return  1\n}\n",
			diff:     "@@ -1,3 +1,3 @@\n fn() {\n-  return 1\n+    return 2\n }\n",
			hunk:     1,
			line:     1,
			expected: []string{"fn() {", "  return 1", "}"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Apply(tt.content, tt.diff, tt.opts)
			require.Error(t, err)
			assert.Equal(t, apperrors.CodeHunkMismatch, apperrors.GetCode(err))
			assert.Equal(t, apperrors.CategoryUser, apperrors.GetCategory(err))

			ctx := apperrors.GetContext(err)
			assert.Equal(t, tt.hunk, ctx["hunk"])
			assert.Equal(t, tt.expected, ctx["expected"])
			if tt.line > 0 {
				assert.Equal(t, tt.line, ctx["line"])
			}
		})
	}
}

func TestEngineApplyFile(t *testing.T) {
	dir := t.TempDir()
	engine := NewEngine(Options{}, nil, nil)
	ctx := context.Background()

	path := filepath.Join(dir, "main.rs")
	original := "fn main() {\n    println!(\"hi\");\n}\n"
	require.NoError(t, os.WriteFile(path, []byte(original), 0o600))

	outcome, err := engine.ApplyFile(ctx, path, "@@ -1,3 +1,3 @@\n fn main() {\n-    println!(\"hi\");\n+    println!(\"hello\");\n }\n", false)
	require.NoError(t, err)
	assert.Equal(t, path, outcome.Path)
	assert.False(t, outcome.Created)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "fn main() {\n    println!(\"hello\");\n}\n", string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestEngineLeavesFileUntouchedOnFailure(t *testing.T) {
	dir := t.TempDir()
	engine := NewEngine(Options{}, nil, nil)

	path := filepath.Join(dir, "list.txt")
	original := "one\ntwo\nthree\nfour\n"
	require.NoError(t, os.WriteFile(path, []byte(original), 0o644))

	// The first hunk matches; the second does not.
	diff := "@@ -1,2 +1,2 @@\n-one\n+ONE\n two\n@@ -3,2 +3,2 @@\n three\n-five\n+FIVE\n"
	_, err := engine.ApplyFile(context.Background(), path, diff, false)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeHunkMismatch, apperrors.GetCode(err))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, original, string(data))
}

func TestEngineMissingFile(t *testing.T) {
	dir := t.TempDir()
	engine := NewEngine(Options{}, nil, nil)
	ctx := context.Background()

	created := filepath.Join(dir, "src", "new.txt")
	outcome, err := engine.ApplyFile(ctx, created, "--- /dev/null\n+++ b/src/new.txt\n@@ -0,0 +1,2 @@\n+hello\n+world\n", false)
	require.NoError(t, err)
	assert.True(t, outcome.Created)
	data, err := os.ReadFile(created)
	require.NoError(t, err)
	assert.Equal(t, "hello\nworld\n", string(data))

	_, err = engine.ApplyFile(ctx, filepath.Join(dir, "absent.txt"), "@@ -1,1 +1,1 @@\n-a\n+b\n", false)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeFileNotFound, apperrors.GetCode(err))
	_, statErr := os.Stat(filepath.Join(dir, "absent.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

package shell

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mvdan.cc/sh/v3/syntax"

	apperrors "github.com/flynn-ai/corrode/internal/errors"
)

func parseStmt(t *testing.T, src string) *syntax.Stmt {
	t.Helper()
	f, err := syntax.NewParser().Parse(strings.NewReader(src), "")
	require.NoError(t, err)
	require.Len(t, f.Stmts, 1)
	return f.Stmts[0]
}

func TestCdTarget(t *testing.T) {
	tests := []struct {
		src    string
		target string
		ok     bool
	}{
		{"cd src", "src", true},
		{"cd 'my dir'", "my dir", true},
		{`cd "a b"`, "a b", true},
		{"cd", "~", true},
		{"cd ~/work", "~/work", true},
		{"cd $HOME", "", false},
		{"cd a b", "", false},
		{"FOO=1 cd x", "", false},
		{"cd x > out", "", false},
		{"ls src", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			target, ok := cdTarget(parseStmt(t, tt.src))
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.target, target)
			}
		})
	}
}

func TestAndChain(t *testing.T) {
	assert.Len(t, andChain(parseStmt(t, "a && b && c")), 3)
	assert.Len(t, andChain(parseStmt(t, "a || b")), 1)
	assert.Len(t, andChain(parseStmt(t, "a | b")), 1)
	assert.Len(t, andChain(parseStmt(t, "a && b &")), 1)
}

func TestRunScriptChangesDirectory(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "pkg", "inner"), 0o755))
	s := newSession(t, Options{Dir: root})

	res, err := s.RunScript(context.Background(), "cd pkg && pwd\ncd inner", 0)
	require.NoError(t, err)
	require.Len(t, res.Steps, 3)

	pkg := realPath(t, filepath.Join(root, "pkg"))
	assert.True(t, res.Steps[0].ChangedDir)
	assert.Equal(t, pkg+"\n", res.Steps[1].Stdout)
	assert.Equal(t, realPath(t, filepath.Join(root, "pkg", "inner")), res.Dir)
	assert.Equal(t, res.Dir, s.Dir(), "cd persists after the call")
}

func TestRunScriptStopsChainOnFailure(t *testing.T) {
	s := newSession(t, Options{})

	res, err := s.RunScript(context.Background(), "echo one && false && echo two; echo three", 0)
	require.NoError(t, err)

	var commands []string
	for _, st := range res.Steps {
		commands = append(commands, st.Command)
	}
	assert.Equal(t, []string{"echo one", "false", "echo three"}, commands)
	assert.Equal(t, 1, res.Steps[1].ExitCode)
	assert.Equal(t, 0, res.ExitCode)
}

func TestRunScriptOutputFormat(t *testing.T) {
	s := newSession(t, Options{})

	res, err := s.RunScript(context.Background(), "echo hi; echo oops >&2; exit 2", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, res.ExitCode)

	want := "$ echo hi\nExit code: 0\n\nStandard output:\nhi\n" +
		"\n$ echo oops >&2\nExit code: 0\n\nStandard error:\noops\n" +
		"\n$ exit 2\nExit code: 2\n"
	assert.Equal(t, want, res.Output())
}

func TestRunScriptErrors(t *testing.T) {
	root := t.TempDir()
	s := newSession(t, Options{Dir: root})
	ctx := context.Background()

	_, err := s.RunScript(ctx, "echo 'unterminated", 0)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeCommandFailed, apperrors.GetCode(err))

	_, err = s.RunScript(ctx, "echo before && cd nowhere && echo after", 0)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeShellNotFound, apperrors.GetCode(err))
	output, _ := apperrors.GetContext(err)["output"].(string)
	assert.Contains(t, output, "before")
	assert.NotContains(t, output, "after")
	assert.Equal(t, realPath(t, root), s.Dir())

	_, err = s.RunScript(ctx, "echo partial; sleep 30", 300*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeShellTimedOut, apperrors.GetCode(err))
	output, _ = apperrors.GetContext(err)["output"].(string)
	assert.Contains(t, output, "partial")
}

func TestCommandResultOutput(t *testing.T) {
	res := &CommandResult{Command: "echo", Args: []string{"hi", "two words"}, ExitCode: 0, Stdout: "hi two words\n"}
	assert.Equal(t, "$ echo hi 'two words'\nExit code: 0\n\nStandard output:\nhi two words\n", res.Output())

	res = &CommandResult{Command: "false", ExitCode: 1}
	assert.Equal(t, "$ false\nExit code: 1\n", res.Output())
}

package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/flynn-ai/corrode/internal/errors"
	"github.com/flynn-ai/corrode/internal/shell"
	"github.com/flynn-ai/corrode/internal/tools/executor"
	"github.com/flynn-ai/corrode/internal/tools/schemas"
)

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	session, err := shell.New(shell.Options{Dir: t.TempDir()}, nil)
	require.NoError(t, err)
	reg, err := New(Deps{Session: session, DefaultMaxChars: 1000})
	require.NoError(t, err)
	return reg
}

func TestCatalogOrder(t *testing.T) {
	reg := newRegistry(t)

	var names []string
	for _, s := range reg.List() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{
		"read_file", "write_file", "edit_file",
		"list_function_signatures", "parse_code",
		"change_directory", "run_command", "execute_bash", "check_code",
		"search_crates", "get_crate", "get_crate_versions", "get_crate_dependencies", "lookup_crate_docs",
	}, names)

	for _, name := range names {
		tool, schema, ok := reg.Lookup(name)
		require.True(t, ok, name)
		assert.Equal(t, name, tool.Name())
		assert.Equal(t, name, schema.Name)
		assert.NotEmpty(t, tool.Description())
	}

	maxChars, ok := reg.List()[0].Param("max_chars")
	require.True(t, ok)
	assert.Equal(t, 1000, maxChars.Default)
}

func TestRegisterRejectsConflicts(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&executor.GetCrate{}, schemas.GetCrate()))

	err := reg.Register(&executor.GetCrate{}, schemas.GetCrate())
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeConfigInvalid, apperrors.GetCode(err))

	err = reg.Register(&executor.GetCrateVersions{}, schemas.GetCrate())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "registered with schema")
}

func TestExecuteUnknownTool(t *testing.T) {
	_, err := NewRegistry().Execute(context.Background(), "nope", nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeToolNotFound, apperrors.GetCode(err))

	_, _, ok := NewRegistry().Lookup("nope")
	assert.False(t, ok)
}

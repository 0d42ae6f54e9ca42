package prompts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flynn-ai/corrode/internal/tools/schemas"
)

func catalog() []*schemas.Schema {
	return []*schemas.Schema{
		schemas.ReadFile(8000),
		schemas.EditFile(),
		schemas.CheckCode(),
		schemas.SearchCrates(),
		schemas.GetCrateVersions(),
	}
}

func TestList(t *testing.T) {
	b := NewBuilder(catalog(), "")
	var names []string
	for _, p := range b.List() {
		names = append(names, p.Name)
		assert.NotEmpty(t, p.Description)
	}
	assert.Equal(t, []string{CodeChangeWorkflow, ToolsGuide}, names)
}

func TestRenderWorkflow(t *testing.T) {
	b := NewBuilder(catalog(), "/work")

	text, err := b.Render(CodeChangeWorkflow, nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(text, "# Code Change Workflow\n"))
	assert.Contains(t, text, "3. VERIFY: Run `check_code`")
	assert.Contains(t, text, "RESEARCH: Find candidates with `search_crates`")
	assert.Contains(t, text, "`write_file` (unavailable)")
	assert.NotContains(t, text, "## Available Tools")
	assert.NotContains(t, text, "/work")
}

func TestRenderToolsGuide(t *testing.T) {
	b := NewBuilder(catalog(), "/work")

	text, err := b.Render(ToolsGuide, map[string]string{"task": "add serde support"})
	require.NoError(t, err)
	assert.Contains(t, text, "## Available Tools")
	assert.Contains(t, text, "1. `read_file`: ")
	assert.Contains(t, text, "- Usage: `read_file({\"file_path\":\"<file_path>\"})`")
	assert.Contains(t, text, "- `max_chars` (integer): ")
	assert.Contains(t, text, "5. `get_crate_versions`: ")
	assert.Contains(t, text, "Starting directory: /work")
	assert.True(t, strings.HasSuffix(text, "## Task\nadd serde support\n"))
}

func TestRenderIsStable(t *testing.T) {
	b := NewBuilder(catalog(), "")
	first, err := b.Render(ToolsGuide, nil)
	require.NoError(t, err)
	again, err := b.Render(ToolsGuide, nil)
	require.NoError(t, err)
	assert.Equal(t, first, again)
}

func TestRenderUnknown(t *testing.T) {
	_, err := NewBuilder(nil, "").Render("nope", nil)
	assert.Error(t, err)
}

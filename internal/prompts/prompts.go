// Package prompts renders the MCP prompts that teach a client how to use the
// tool catalog.
package prompts

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/flynn-ai/corrode/internal/tools/schemas"
	"github.com/flynn-ai/corrode/pkg/protocol"
)

// Prompt names.
const (
	CodeChangeWorkflow = "code_change_workflow"
	ToolsGuide         = "tools_guide"
)

// Argument is an optional prompt argument.
type Argument struct {
	Name        string
	Description string
}

// Prompt describes one prompt the server offers.
type Prompt struct {
	Name        string
	Description string
	Arguments   []Argument
}

// Builder renders prompts for one catalog.
type Builder struct {
	// Workspace is shown as the starting directory; empty omits the line.
	Workspace string

	catalog []*schemas.Schema
}

// NewBuilder creates a builder over catalog, which must be in catalog order.
func NewBuilder(catalog []*schemas.Schema, workspace string) *Builder {
	return &Builder{Workspace: workspace, catalog: catalog}
}

// List returns the prompts in a stable order.
func (b *Builder) List() []Prompt {
	task := Argument{Name: "task", Description: "The change you are about to make (optional)"}
	return []Prompt{
		{
			Name:        CodeChangeWorkflow,
			Description: "The read, modify, verify loop for changing Rust code, with the dependency sub-loop",
			Arguments:   []Argument{task},
		},
		{
			Name:        ToolsGuide,
			Description: "The change workflow plus usage notes for every available tool",
			Arguments:   []Argument{task},
		},
	}
}

// Render returns the text of the named prompt.
func (b *Builder) Render(name string, args map[string]string) (string, error) {
	var sections []string
	switch name {
	case CodeChangeWorkflow:
		sections = append(sections, "# Code Change Workflow", b.workflow())
	case ToolsGuide:
		sections = append(sections,
			"# Corrode Tool Usage Guide",
			"You have tools for reading, editing and checking Rust projects and for researching crates.\n"+
				"When changing Rust code, follow the workflow below.",
			b.workflow(),
			b.toolSection(),
		)
		if env := b.environment(); env != "" {
			sections = append(sections, env)
		}
	default:
		return "", fmt.Errorf("unknown prompt %q", name)
	}

	if task := strings.TrimSpace(args["task"]); task != "" {
		sections = append(sections, "## Task\n"+task)
	}
	return strings.Join(sections, "\n\n") + "\n", nil
}

func (b *Builder) workflow() string {
	var bld strings.Builder
	bld.WriteString("## Basic Change Loop\n")
	steps := []string{
		"READ: Understand the current code with " + b.ref("read_file") + " and " + b.ref("list_function_signatures"),
		"MODIFY: Make the change with " + b.ref("edit_file") + " or " + b.ref("write_file"),
		"VERIFY: Run " + b.ref("check_code") + " to make sure the project still compiles",
		"ITERATE: If verification fails, fix the reported errors and verify again",
		"COMPLETE: Report success once verification passes",
	}
	for i, s := range steps {
		fmt.Fprintf(&bld, "%d. %s\n", i+1, s)
	}

	bld.WriteString("\n## Dependency Sub-Loop\n")
	bld.WriteString("When a change needs a new dependency, do this between READ and MODIFY:\n")
	fmt.Fprintf(&bld, "   a. RESEARCH: Find candidates with %s\n", b.ref("search_crates"))
	fmt.Fprintf(&bld, "   b. VERSION: Pick the latest stable release with %s\n", b.ref("get_crate_versions"))
	fmt.Fprintf(&bld, "   c. CHECK: Look for conflicts with %s and read the API with %s\n",
		b.ref("get_crate_dependencies"), b.ref("lookup_crate_docs"))
	bld.WriteString("   d. Continue with MODIFY\n")

	bld.WriteString("\nIMPORTANT:\n")
	bld.WriteString("- Verify every code change.\n")
	bld.WriteString("- An edit_file diff that no longer matches means the file changed; read it again and rebuild the diff.\n")
	bld.WriteString("- Mention any non-obvious decision in your answer.")
	return bld.String()
}

// ref names a tool, marking the ones missing from the catalog.
func (b *Builder) ref(name string) string {
	for _, s := range b.catalog {
		if s.Name == name {
			return "`" + name + "`"
		}
	}
	return "`" + name + "` (unavailable)"
}

func (b *Builder) toolSection() string {
	var bld strings.Builder
	bld.WriteString("## Available Tools")
	for i, s := range b.catalog {
		fmt.Fprintf(&bld, "\n\n%d. `%s`: %s\n", i+1, s.Name, s.Description)
		fmt.Fprintf(&bld, "   - Usage: `%s(%s)`", s.Name, example(s))
		for _, p := range s.Params {
			line := fmt.Sprintf("\n   - `%s` (%s", p.Name, p.Type)
			if p.Required {
				line += ", required"
			}
			line += "): " + p.Description
			if len(p.Enum) > 0 {
				line += " One of: " + strings.Join(p.Enum, ", ") + "."
			}
			bld.WriteString(line)
		}
	}
	return bld.String()
}

// example renders a call with every required argument.
func example(s *schemas.Schema) string {
	args := map[string]any{}
	for _, p := range s.Params {
		if !p.Required {
			continue
		}
		args[p.Name] = placeholder(p)
	}
	data, err := protocol.Marshal(args)
	if err != nil {
		return "{}"
	}
	return strings.TrimSpace(string(data))
}

func placeholder(p schemas.Param) any {
	if p.Default != nil {
		return p.Default
	}
	if len(p.Enum) > 0 {
		return p.Enum[0]
	}
	switch p.Type {
	case schemas.TypeInteger, schemas.TypeNumber:
		return 1
	case schemas.TypeBoolean:
		return false
	case schemas.TypeArray:
		return []any{}
	case schemas.TypeObject:
		return map[string]any{}
	default:
		return "<" + p.Name + ">"
	}
}

func (b *Builder) environment() string {
	if b.Workspace == "" {
		return ""
	}
	return fmt.Sprintf("## Environment\nStarting directory: %s\nRuntime: %s/%s",
		b.Workspace, runtime.GOOS, runtime.GOARCH)
}

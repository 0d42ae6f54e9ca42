// Package executor provides the tool execution interface and the tool handlers.
package executor

import (
	"context"

	apperrors "github.com/flynn-ai/corrode/internal/errors"
)

// Tool represents a callable tool.
type Tool interface {
	// Name returns the tool's identifier.
	Name() string

	// Description returns what the tool does.
	Description() string

	// Execute runs the tool with arguments already checked against its schema.
	Execute(ctx context.Context, input map[string]any) (*Result, error)
}

// Result represents the result of a tool execution. Text is shown to the
// model; Data is the structured form of the same answer.
type Result struct {
	Success bool   `json:"success"`
	Text    string `json:"text,omitempty"`
	Data    any    `json:"data,omitempty"`
	Err     error  `json:"-"`
}

// NewSuccessResult creates a successful result carrying only data.
func NewSuccessResult(data any) *Result {
	return &Result{Success: true, Data: data}
}

// NewTextResult creates a successful result with text and optional data.
func NewTextResult(text string, data any) *Result {
	return &Result{Success: true, Text: text, Data: data}
}

// NewErrorResult creates an error result.
func NewErrorResult(err error) *Result {
	return &Result{Success: false, Err: err}
}

// Registry manages available tools for execution.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry creates a new tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool to the registry. Names must be unique.
func (r *Registry) Register(tool Tool) error {
	if _, exists := r.tools[tool.Name()]; exists {
		return apperrors.Newf(apperrors.CodeConfigInvalid, apperrors.CategorySystem,
			"tool %q is registered twice", tool.Name())
	}
	r.tools[tool.Name()] = tool
	return nil
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Execute runs a tool by name with the given input.
func (r *Registry) Execute(ctx context.Context, name string, input map[string]any) (*Result, error) {
	tool, ok := r.Get(name)
	if !ok {
		return nil, apperrors.NewBuilder(apperrors.CodeToolNotFound, "tool not found: "+name).
			User().WithContext("tool", name).Build()
	}
	return tool.Execute(ctx, input)
}

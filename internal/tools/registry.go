// Package tools provides the tool registry: the fixed catalog of schemas
// paired with their executors.
package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/flynn-ai/corrode/internal/analyzer"
	apperrors "github.com/flynn-ai/corrode/internal/errors"
	"github.com/flynn-ai/corrode/internal/files"
	"github.com/flynn-ai/corrode/internal/patch"
	"github.com/flynn-ai/corrode/internal/shell"
	"github.com/flynn-ai/corrode/internal/tools/executor"
	"github.com/flynn-ai/corrode/internal/tools/schemas"
)

// Deps are the services the handlers are built on.
type Deps struct {
	Session  *shell.Session
	Analyzer *analyzer.Analyzer
	Patches  *patch.Engine
	Crates   executor.CrateIndex
	Locks    *files.Locker

	// DefaultMaxChars is read_file's cut when the call gives none.
	DefaultMaxChars int
	MaxReadBytes    int64
	// CheckTimeout bounds cargo check; zero uses the session default.
	CheckTimeout time.Duration
}

// Registry combines schemas and executors for complete tool management.
type Registry struct {
	schemas   *schemas.Registry
	executors *executor.Registry
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		schemas:   schemas.NewRegistry(),
		executors: executor.NewRegistry(),
	}
}

// New builds the registry holding the full catalog, in catalog order.
func New(deps Deps) (*Registry, error) {
	if deps.Locks == nil {
		deps.Locks = &files.Locker{}
	}

	r := NewRegistry()
	for _, entry := range []struct {
		tool   executor.Tool
		schema *schemas.Schema
	}{
		// === FILE TOOLS ===
		{&executor.ReadFile{Session: deps.Session, MaxReadBytes: deps.MaxReadBytes, DefaultMaxChars: deps.DefaultMaxChars},
			schemas.ReadFile(deps.DefaultMaxChars)},
		{&executor.WriteFile{Session: deps.Session, Locks: deps.Locks}, schemas.WriteFile()},
		{&executor.EditFile{Session: deps.Session, Patches: deps.Patches}, schemas.EditFile()},

		// === CODE TOOLS ===
		{&executor.ListFunctionSignatures{Session: deps.Session, Analyzer: deps.Analyzer}, schemas.ListFunctionSignatures()},
		{&executor.ParseCode{Session: deps.Session, Analyzer: deps.Analyzer}, schemas.ParseCode()},

		// === SHELL TOOLS ===
		{&executor.ChangeDirectory{Session: deps.Session}, schemas.ChangeDirectory()},
		{&executor.RunCommand{Session: deps.Session}, schemas.RunCommand()},
		{&executor.ExecuteBash{Session: deps.Session}, schemas.ExecuteBash()},
		{&executor.CheckCode{Session: deps.Session, Timeout: deps.CheckTimeout}, schemas.CheckCode()},

		// === CRATE TOOLS ===
		{&executor.SearchCrates{Index: deps.Crates}, schemas.SearchCrates()},
		{&executor.GetCrate{Index: deps.Crates}, schemas.GetCrate()},
		{&executor.GetCrateVersions{Index: deps.Crates}, schemas.GetCrateVersions()},
		{&executor.GetCrateDependencies{Index: deps.Crates}, schemas.GetCrateDependencies()},
		{&executor.LookupCrateDocs{Index: deps.Crates}, schemas.LookupCrateDocs()},
	} {
		if err := r.Register(entry.tool, entry.schema); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Schemas returns the schema registry.
func (r *Registry) Schemas() *schemas.Registry {
	return r.schemas
}

// Executors returns the executor registry.
func (r *Registry) Executors() *executor.Registry {
	return r.executors
}

// Register registers both a schema and executor for a tool.
func (r *Registry) Register(tool executor.Tool, schema *schemas.Schema) error {
	if tool.Name() != schema.Name {
		return apperrors.Newf(apperrors.CodeConfigInvalid, apperrors.CategorySystem,
			"executor %q registered with schema %q", tool.Name(), schema.Name)
	}
	if err := r.schemas.Register(schema); err != nil {
		return fmt.Errorf("registering %s: %w", schema.Name, err)
	}
	return r.executors.Register(tool)
}

// Lookup returns the executor and schema of a tool.
func (r *Registry) Lookup(name string) (executor.Tool, *schemas.Schema, bool) {
	schema, ok := r.schemas.Get(name)
	if !ok {
		return nil, nil, false
	}
	tool, ok := r.executors.Get(name)
	return tool, schema, ok
}

// List returns every schema in catalog order.
func (r *Registry) List() []*schemas.Schema {
	return r.schemas.List()
}

// Execute runs a tool by name without argument checks.
func (r *Registry) Execute(ctx context.Context, name string, input map[string]any) (*executor.Result, error) {
	return r.executors.Execute(ctx, name, input)
}

// Package schemas provides the tool descriptors: their parameters, the JSON
// Schema advertised to clients and the argument checks run before a call.
package schemas

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strings"

	apperrors "github.com/flynn-ai/corrode/internal/errors"
)

// ParamType is the JSON type of a parameter.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
	TypeArray   ParamType = "array"
	TypeObject  ParamType = "object"
)

func (t ParamType) known() bool {
	switch t {
	case TypeString, TypeInteger, TypeNumber, TypeBoolean, TypeArray, TypeObject:
		return true
	}
	return false
}

// Param describes one tool parameter.
type Param struct {
	Name        string    `json:"name" yaml:"name"`
	Type        ParamType `json:"type" yaml:"type"`
	Description string    `json:"description" yaml:"description"`
	Required    bool      `json:"required" yaml:"required"`
	Enum        []string  `json:"enum,omitempty" yaml:"enum,omitempty"`
	Items       ParamType `json:"items,omitempty" yaml:"items,omitempty"`
	Default     any       `json:"default,omitempty" yaml:"default,omitempty"`
}

// Schema describes a tool. It is not modified after registration.
type Schema struct {
	Name        string  `json:"name" yaml:"name"`
	Description string  `json:"description" yaml:"description"`
	Params      []Param `json:"params" yaml:"params"`
}

// SchemaBuilder provides a fluent interface for building tool schemas.
type SchemaBuilder struct {
	schema *Schema
}

// NewSchema creates a new schema builder with the given name and description.
func NewSchema(name, description string) *SchemaBuilder {
	return &SchemaBuilder{schema: &Schema{Name: name, Description: description, Params: []Param{}}}
}

// AddParam adds a parameter to the schema.
func (b *SchemaBuilder) AddParam(name string, paramType ParamType, description string, required bool) *SchemaBuilder {
	b.schema.Params = append(b.schema.Params, Param{
		Name:        name,
		Type:        paramType,
		Description: description,
		Required:    required,
	})
	return b
}

// AddParamWithEnum adds a string parameter restricted to enum.
func (b *SchemaBuilder) AddParamWithEnum(name, description string, enum []string, required bool) *SchemaBuilder {
	b.AddParam(name, TypeString, description, required)
	b.last().Enum = slices.Clone(enum)
	return b
}

// AddArrayParam adds an array parameter whose elements have type items.
func (b *SchemaBuilder) AddArrayParam(name string, items ParamType, description string, required bool) *SchemaBuilder {
	b.AddParam(name, TypeArray, description, required)
	b.last().Items = items
	return b
}

// WithDefault documents the default of the parameter added last.
func (b *SchemaBuilder) WithDefault(value any) *SchemaBuilder {
	if p := b.last(); p != nil {
		p.Default = value
	}
	return b
}

func (b *SchemaBuilder) last() *Param {
	if len(b.schema.Params) == 0 {
		return nil
	}
	return &b.schema.Params[len(b.schema.Params)-1]
}

// Build returns the constructed schema.
func (b *SchemaBuilder) Build() *Schema {
	return b.schema
}

// Param returns the named parameter.
func (s *Schema) Param(name string) (Param, bool) {
	for _, p := range s.Params {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// InputSchema renders the parameters as a JSON Schema object.
func (s *Schema) InputSchema() map[string]any {
	props := make(map[string]any, len(s.Params))
	required := make([]string, 0)
	for _, p := range s.Params {
		prop := map[string]any{
			"type":        string(p.Type),
			"description": p.Description,
		}
		if len(p.Enum) > 0 {
			prop["enum"] = slices.Clone(p.Enum)
		}
		if p.Items != "" {
			prop["items"] = map[string]any{"type": string(p.Items)}
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

var toolName = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Validate reports a malformed descriptor.
func (s *Schema) Validate() error {
	invalid := func(format string, args ...any) error {
		return apperrors.Newf(apperrors.CodeConfigInvalid, apperrors.CategorySystem,
			"tool %q: "+format, append([]any{s.Name}, args...)...)
	}

	if !toolName.MatchString(s.Name) {
		return invalid("name must be snake_case")
	}
	if strings.TrimSpace(s.Description) == "" {
		return invalid("description is empty")
	}

	seen := make(map[string]bool, len(s.Params))
	for _, p := range s.Params {
		switch {
		case !toolName.MatchString(p.Name):
			return invalid("parameter %q must be snake_case", p.Name)
		case seen[p.Name]:
			return invalid("parameter %q is declared twice", p.Name)
		case !p.Type.known():
			return invalid("parameter %q has unknown type %q", p.Name, p.Type)
		case len(p.Enum) > 0 && p.Type != TypeString:
			return invalid("parameter %q: enum is only allowed on strings", p.Name)
		case p.Items != "" && p.Type != TypeArray:
			return invalid("parameter %q: items is only allowed on arrays", p.Name)
		case p.Items != "" && (!p.Items.known() || p.Items == TypeArray || p.Items == TypeObject):
			return invalid("parameter %q has unsupported item type %q", p.Name, p.Items)
		case p.Default != nil && checkValue(p, p.Default) != "":
			return invalid("parameter %q: default does not match its type", p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}

// Check validates call arguments and returns one problem per offending
// parameter, keyed by name. Unknown arguments are ignored and a JSON null
// counts as absent.
func (s *Schema) Check(args map[string]any) map[string]string {
	problems := make(map[string]string)
	for _, p := range s.Params {
		v, ok := args[p.Name]
		if !ok || v == nil {
			if p.Required {
				problems[p.Name] = "is required"
			}
			continue
		}
		if msg := checkValue(p, v); msg != "" {
			problems[p.Name] = msg
		}
	}
	return problems
}

func checkValue(p Param, v any) string {
	if !matches(p.Type, v) {
		return fmt.Sprintf("expected %s, got %s", p.Type, kindOf(v))
	}
	if len(p.Enum) > 0 && !slices.Contains(p.Enum, v.(string)) {
		return "must be one of " + strings.Join(p.Enum, ", ")
	}
	if p.Type == TypeArray && p.Items != "" {
		for i, item := range toSlice(v) {
			if !matches(p.Items, item) {
				return fmt.Sprintf("element %d: expected %s, got %s", i, p.Items, kindOf(item))
			}
		}
	}
	return ""
}

func matches(t ParamType, v any) bool {
	switch t {
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeBoolean:
		_, ok := v.(bool)
		return ok
	case TypeNumber:
		_, ok := number(v)
		return ok
	case TypeInteger:
		f, ok := number(v)
		return ok && f == math.Trunc(f) && !math.IsInf(f, 0)
	case TypeArray:
		return toSlice(v) != nil
	case TypeObject:
		_, ok := v.(map[string]any)
		return ok
	}
	return false
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func toSlice(v any) []any {
	switch s := v.(type) {
	case []any:
		if s == nil {
			return []any{}
		}
		return s
	case []string:
		out := make([]any, len(s))
		for i, item := range s {
			out[i] = item
		}
		return out
	}
	return nil
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case map[string]any:
		return "object"
	}
	if _, ok := number(v); ok {
		return "number"
	}
	if toSlice(v) != nil {
		return "array"
	}
	return fmt.Sprintf("%T", v)
}

// Registry holds tool schemas in registration order.
type Registry struct {
	order  []*Schema
	byName map[string]*Schema
}

// NewRegistry creates a new empty schema registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Schema)}
}

// Register validates schema and adds it. Duplicate names are rejected.
func (r *Registry) Register(schema *Schema) error {
	if err := schema.Validate(); err != nil {
		return err
	}
	if _, exists := r.byName[schema.Name]; exists {
		return apperrors.Newf(apperrors.CodeConfigInvalid, apperrors.CategorySystem,
			"tool %q is registered twice", schema.Name)
	}
	r.order = append(r.order, schema)
	r.byName[schema.Name] = schema
	return nil
}

// Get retrieves a schema by name.
func (r *Registry) Get(name string) (*Schema, bool) {
	s, ok := r.byName[name]
	return s, ok
}

// List returns the schemas in registration order.
func (r *Registry) List() []*Schema {
	return slices.Clone(r.order)
}

// Package grammar holds the process-wide table of supported languages.
//
// A Set is built once at startup and is read-only afterwards. Parsers are not
// part of the set: tree-sitter parsers are not safe for concurrent use, so each
// parse creates its own. Compiled queries are immutable and may be shared by
// any number of query cursors.
package grammar

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Language is one of the supported source languages.
type Language uint8

const (
	Go Language = iota
	Python
	JavaScript
	TypeScript
	Rust
	C
	Cpp

	numLanguages
)

// Capture names used by the declaration queries.
const (
	CaptureFunction    = "function"
	CaptureMethod      = "method"
	CaptureDeclaration = "declaration"
)

// Capture names used by the outline queries. Each names the outline kind.
const (
	CaptureClass     = "class"
	CaptureStruct    = "struct"
	CaptureEnum      = "enum"
	CaptureTrait     = "trait"
	CaptureInterface = "interface"
	CaptureImpl      = "impl"
	CaptureType      = "type"
	CaptureModule    = "module"
	CaptureImport    = "import"
)

type langSpec struct {
	name       string
	aliases    []string
	extensions []string
	language   func() *sitter.Language
	query      string
	outline    string
}

const jsQuery = `
(function_declaration) @function
(generator_function_declaration) @function
(method_definition) @method
(variable_declarator value: (arrow_function)) @function
`

const jsOutline = `
(class_declaration) @class
(import_statement) @import
`

// Only specifiers with a body are definitions; the rest are type references.
const cOutline = `
(struct_specifier body: (field_declaration_list)) @struct
(union_specifier body: (field_declaration_list)) @struct
(enum_specifier body: (enumerator_list)) @enum
(preproc_include) @import
`

// specs is indexed by Language; every constant must have an entry.
var specs = [numLanguages]langSpec{
	Go: {
		name:       "go",
		aliases:    []string{"golang"},
		extensions: []string{".go"},
		language:   golang.GetLanguage,
		query: `
(function_declaration) @function
(method_declaration) @method
`,
		outline: `
(type_spec) @type
(import_spec) @import
`,
	},
	Python: {
		name:       "python",
		aliases:    []string{"py"},
		extensions: []string{".py", ".pyi"},
		language:   python.GetLanguage,
		query:      `(function_definition) @function`,
		outline: `
(class_definition) @class
(import_statement) @import
(import_from_statement) @import
`,
	},
	JavaScript: {
		name:       "javascript",
		aliases:    []string{"js"},
		extensions: []string{".js", ".mjs", ".cjs", ".jsx"},
		language:   javascript.GetLanguage,
		query:      jsQuery,
		outline:    jsOutline,
	},
	TypeScript: {
		name:       "typescript",
		aliases:    []string{"ts"},
		extensions: []string{".ts", ".mts", ".cts"},
		language:   typescript.GetLanguage,
		query: jsQuery + `
(function_signature) @declaration
(method_signature) @declaration
`,
		outline: jsOutline + `
(interface_declaration) @interface
(enum_declaration) @enum
(type_alias_declaration) @type
`,
	},
	Rust: {
		name:       "rust",
		aliases:    []string{"rs"},
		extensions: []string{".rs"},
		language:   rust.GetLanguage,
		query: `
(function_item) @function
(function_signature_item) @declaration
`,
		outline: `
(struct_item) @struct
(union_item) @struct
(enum_item) @enum
(trait_item) @trait
(impl_item) @impl
(type_item) @type
(mod_item) @module
(use_declaration) @import
`,
	},
	C: {
		name:       "c",
		extensions: []string{".c", ".h"},
		language:   c.GetLanguage,
		query: `
(function_definition) @function
(declaration declarator: (function_declarator)) @declaration
(declaration declarator: (pointer_declarator declarator: (function_declarator))) @declaration
`,
		outline: cOutline,
	},
	Cpp: {
		name:       "cpp",
		aliases:    []string{"c++", "cxx"},
		extensions: []string{".cpp", ".cc", ".cxx", ".hpp", ".hh", ".hxx"},
		language:   cpp.GetLanguage,
		query: `
(function_definition) @function
(declaration declarator: (function_declarator)) @declaration
(declaration declarator: (pointer_declarator declarator: (function_declarator))) @declaration
(field_declaration declarator: (function_declarator)) @declaration
`,
		outline: cOutline + `
(class_specifier body: (field_declaration_list)) @class
(namespace_definition) @module
`,
	},
}

// String returns the canonical language name.
func (l Language) String() string {
	if l < numLanguages {
		return specs[l].name
	}
	return fmt.Sprintf("language(%d)", uint8(l))
}

// MarshalText encodes the language by name.
func (l Language) MarshalText() ([]byte, error) {
	if l >= numLanguages {
		return nil, fmt.Errorf("unknown language %d", uint8(l))
	}
	return []byte(l.String()), nil
}

// Languages returns every supported language in declaration order.
func Languages() []Language {
	out := make([]Language, 0, numLanguages)
	for l := Language(0); l < numLanguages; l++ {
		out = append(out, l)
	}
	return out
}

// Names returns the canonical names of every supported language.
func Names() []string {
	names := make([]string, 0, numLanguages)
	for _, l := range Languages() {
		names = append(names, l.String())
	}
	return names
}

// ParseLanguage resolves a canonical name or alias, case-insensitively.
func ParseLanguage(name string) (Language, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for l := Language(0); l < numLanguages; l++ {
		if specs[l].name == name {
			return l, true
		}
		for _, alias := range specs[l].aliases {
			if alias == name {
				return l, true
			}
		}
	}
	return 0, false
}

// Grammar is the parser language and the compiled queries of one language.
type Grammar struct {
	Language   Language
	Extensions []string

	lang    *sitter.Language
	query   *sitter.Query
	outline *sitter.Query
}

// SitterLanguage returns the tree-sitter language for new parsers.
func (g *Grammar) SitterLanguage() *sitter.Language { return g.lang }

// Query returns the compiled declaration query.
func (g *Grammar) Query() *sitter.Query { return g.query }

// Outline returns the compiled query for types, modules and imports.
func (g *Grammar) Outline() *sitter.Query { return g.outline }

// Set maps languages and file extensions to grammars.
type Set struct {
	grammars [numLanguages]*Grammar
	byExt    map[string]Language
}

// NewSet compiles the queries of every supported language.
func NewSet() (*Set, error) {
	s := &Set{byExt: make(map[string]Language)}

	for l := Language(0); l < numLanguages; l++ {
		spec := specs[l]
		if spec.language == nil || spec.query == "" || spec.outline == "" {
			s.Close()
			return nil, fmt.Errorf("grammar: %s has no parser or query", l)
		}

		lang := spec.language()
		query, err := sitter.NewQuery([]byte(spec.query), lang)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("grammar: compiling %s query: %w", l, err)
		}
		outline, err := sitter.NewQuery([]byte(spec.outline), lang)
		if err != nil {
			query.Close()
			s.Close()
			return nil, fmt.Errorf("grammar: compiling %s outline query: %w", l, err)
		}

		s.grammars[l] = &Grammar{
			Language:   l,
			Extensions: spec.extensions,
			lang:       lang,
			query:      query,
			outline:    outline,
		}
		for _, ext := range spec.extensions {
			if other, dup := s.byExt[ext]; dup {
				s.Close()
				return nil, fmt.Errorf("grammar: extension %s claimed by %s and %s", ext, other, l)
			}
			s.byExt[ext] = l
		}
	}

	return s, nil
}

// Lookup returns the grammar for a file path, chosen by extension.
func (s *Set) Lookup(path string) (*Grammar, bool) {
	l, ok := s.byExt[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return nil, false
	}
	return s.grammars[l], true
}

// Grammar returns the grammar of a language.
func (s *Set) Grammar(l Language) *Grammar {
	if l >= numLanguages {
		return nil
	}
	return s.grammars[l]
}

// Extensions returns every recognized extension, sorted.
func (s *Set) Extensions() []string {
	exts := make([]string, 0, len(s.byExt))
	for ext := range s.byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Close releases the compiled queries.
func (s *Set) Close() {
	for _, g := range s.grammars {
		if g == nil {
			continue
		}
		if g.query != nil {
			g.query.Close()
		}
		if g.outline != nil {
			g.outline.Close()
		}
	}
}

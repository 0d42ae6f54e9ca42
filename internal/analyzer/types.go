package analyzer

import "github.com/flynn-ai/corrode/internal/grammar"

// Kind classifies an extracted declaration.
type Kind string

const (
	KindFunction    Kind = "function"
	KindMethod      Kind = "method"
	KindDeclaration Kind = "declaration" // prototype or signature without a body
)

// Parameter is one formal parameter. Type is empty when the grammar has none.
type Parameter struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// Signature describes one function-like declaration.
type Signature struct {
	Language   grammar.Language `json:"language"`
	Path       string           `json:"path"`
	Name       string           `json:"name"`
	Kind       Kind             `json:"kind"`
	Parent     string           `json:"parent,omitempty"`
	Parameters []Parameter      `json:"parameters"`
	ReturnType string           `json:"return_type,omitempty"`
	Signature  string           `json:"signature"`
	StartLine  int              `json:"start_line"`
	EndLine    int              `json:"end_line"`

	startByte uint32
}

// OutlineKind classifies an outline item. The values match the grammar capture names.
type OutlineKind string

const (
	OutlineClass     OutlineKind = grammar.CaptureClass
	OutlineStruct    OutlineKind = grammar.CaptureStruct
	OutlineEnum      OutlineKind = grammar.CaptureEnum
	OutlineTrait     OutlineKind = grammar.CaptureTrait
	OutlineInterface OutlineKind = grammar.CaptureInterface
	OutlineImpl      OutlineKind = grammar.CaptureImpl
	OutlineType      OutlineKind = grammar.CaptureType
	OutlineModule    OutlineKind = grammar.CaptureModule
	OutlineImport    OutlineKind = grammar.CaptureImport
)

// Item is one structural element of a file: a type, impl block, module or import.
// For imports Name holds the imported path.
type Item struct {
	Language  grammar.Language `json:"language"`
	Path      string           `json:"path"`
	Kind      OutlineKind      `json:"kind"`
	Name      string           `json:"name"`
	StartLine int              `json:"start_line"`
	EndLine   int              `json:"end_line"`

	startByte uint32
}

// Severity of a diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Diagnostic reports a file that could not be analyzed, or analyzed only partially.
type Diagnostic struct {
	Path     string   `json:"path"`
	Severity Severity `json:"severity"`
	Code     string   `json:"code"`
	Message  string   `json:"message"`
}

// Request selects the files to analyze.
type Request struct {
	// Root is a file or directory. Relative roots resolve against the process cwd.
	Root string

	// Filter is an optional doublestar glob matched against root-relative slash paths.
	Filter string

	// Languages restricts analysis; empty means every supported language.
	Languages []grammar.Language

	// Outline also collects types, modules and imports into Listing.Outline.
	Outline bool
}

// Listing is the result of one analysis.
type Listing struct {
	Root        string       `json:"root"`
	Files       int          `json:"files"`
	Signatures  []Signature  `json:"signatures"`
	Outline     []Item       `json:"outline,omitempty"`
	Diagnostics []Diagnostic `json:"diagnostics"`
}

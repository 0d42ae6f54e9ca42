package schemas

import "github.com/flynn-ai/corrode/internal/grammar"

// ListFunctionSignatures describes list_function_signatures.
func ListFunctionSignatures() *Schema {
	return NewSchema("list_function_signatures", "List function and method signatures found in a file or directory tree. "+
		"Supports Go, Python, JavaScript, TypeScript, Rust, C and C++; other files are skipped.").
		AddParam("path", TypeString, "File or directory to scan (defaults to the session directory)", false).
		AddParam("filter", TypeString, "Glob matched against paths relative to path, e.g. src/**/*.rs", false).
		AddParamWithEnum("language", "Only scan files of this language", grammar.Names(), false).
		Build()
}

// ParseCode describes parse_code.
func ParseCode() *Schema {
	return NewSchema("parse_code", "Outline one source file: its types, impl blocks, modules and imports, and every "+
		"function, method and declaration with its parameters, return type and line span.").
		AddParam("file_path", TypeString, "Source file, relative to project_path", true).
		AddParam("project_path", TypeString, "Project directory (defaults to the session directory)", false).
		Build()
}

// CheckCode describes check_code.
func CheckCode() *Schema {
	return NewSchema("check_code", "Run cargo check in the session directory and report compiler errors and warnings.").
		AddParam("package", TypeString, "Check only this workspace package", false).
		AddParam("all_targets", TypeBoolean, "Also check tests, benches and examples", false).
		WithDefault(false).
		Build()
}

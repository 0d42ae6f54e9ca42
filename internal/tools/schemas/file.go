package schemas

// ReadFile describes read_file. defaultMaxChars is the cut applied when the
// caller passes no max_chars.
func ReadFile(defaultMaxChars int) *Schema {
	return NewSchema("read_file", "Read a UTF-8 text file. Relative paths resolve against the session directory. "+
		"Long content is cut at max_chars characters; use offset and limit to page through large files.").
		AddParam("file_path", TypeString, "Path of the file to read", true).
		AddParam("max_chars", TypeInteger, "Maximum number of characters to return, 0 for no limit", false).
		WithDefault(defaultMaxChars).
		AddParam("offset", TypeInteger, "First line to return (0-based)", false).
		AddParam("limit", TypeInteger, "Maximum number of lines to return", false).
		Build()
}

// WriteFile describes write_file.
func WriteFile() *Schema {
	return NewSchema("write_file", "Create or replace a file with the given content. Missing parent directories are created "+
		"and the file is replaced atomically.").
		AddParam("file_path", TypeString, "Path of the file to write", true).
		AddParam("content", TypeString, "Full new content of the file", true).
		Build()
}

// EditFile describes edit_file.
func EditFile() *Schema {
	return NewSchema("edit_file", "Apply a unified diff to one file. Hunks are matched against the current content, "+
		"tolerating shifted line numbers; on any mismatch nothing is written.").
		AddParam("file_path", TypeString, "Path of the file to patch", true).
		AddParam("diff", TypeString, "Unified diff with one or more @@ hunks for this file", true).
		AddParam("ignore_whitespace", TypeBoolean, "Match lines ignoring differences in whitespace", false).
		WithDefault(false).
		Build()
}

package analyzer

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/flynn-ai/corrode/internal/grammar"
)

// outlineItem names a node captured by an outline query. Anonymous types
// (a C struct not bound by a typedef, an unnamed namespace) are skipped.
func outlineItem(lang grammar.Language, capture string, n *sitter.Node, src []byte) (Item, bool) {
	item := Item{
		Language:  lang,
		Kind:      OutlineKind(capture),
		StartLine: int(n.StartPoint().Row) + 1,
		EndLine:   int(n.EndPoint().Row) + 1,
		startByte: n.StartByte(),
	}

	switch item.Kind {
	case OutlineImport:
		item.Name = importName(lang, n, src)
	case OutlineImpl:
		item.Name = fieldText(n, "type", src)
		if trait := fieldText(n, "trait", src); trait != "" {
			item.Name = trait + " for " + item.Name
		}
	default:
		item.Name = fieldText(n, "name", src)
		if item.Name == "" && (lang == grammar.C || lang == grammar.Cpp) {
			item.Name = typedefName(n, src)
		}
	}

	item.Name = collapseSpace(item.Name)
	if item.Name == "" {
		return Item{}, false
	}
	return item, true
}

// importName returns what an import statement brings in, without keywords or quotes.
func importName(lang grammar.Language, n *sitter.Node, src []byte) string {
	switch lang {
	case grammar.Go:
		path := strings.Trim(fieldText(n, "path", src), "\"`")
		if alias := fieldText(n, "name", src); alias != "" {
			return alias + " " + path
		}
		return path
	case grammar.Rust:
		return fieldText(n, "argument", src)
	case grammar.JavaScript, grammar.TypeScript:
		return strings.Trim(fieldText(n, "source", src), "\"'`")
	case grammar.C, grammar.Cpp:
		return fieldText(n, "path", src)
	}
	// Python: "import os" and "from a import b" read best as written.
	return strings.TrimSuffix(firstLine(n.Content(src)), ";")
}

// typedefName recovers the name of "typedef struct { ... } name;".
func typedefName(n *sitter.Node, src []byte) string {
	p := n.Parent()
	if p == nil || p.Type() != "type_definition" {
		return ""
	}
	return fieldText(p, "declarator", src)
}

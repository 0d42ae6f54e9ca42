package analyzer

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/flynn-ai/corrode/internal/grammar"
)

const maxSignatureLen = 240

// extract builds a Signature from a captured declaration node.
// It reports false when the node is not a function-like declaration after all
// (a C declaration of a plain variable, an arrow function bound to a pattern).
func extract(lang grammar.Language, capture string, n *sitter.Node, src []byte) (Signature, bool) {
	sig := Signature{
		Language:   lang,
		Kind:       kindOf(capture),
		Parameters: []Parameter{},
		StartLine:  int(n.StartPoint().Row) + 1,
		EndLine:    int(n.EndPoint().Row) + 1,
		Signature:  firstLine(n.Content(src)),
		startByte:  n.StartByte(),
	}

	var ok bool
	switch lang {
	case grammar.Go:
		ok = extractGo(n, src, &sig)
	case grammar.Python:
		ok = extractPython(n, src, &sig)
	case grammar.JavaScript, grammar.TypeScript:
		ok = extractJS(n, src, &sig)
	case grammar.Rust:
		ok = extractRust(n, src, &sig)
	case grammar.C, grammar.Cpp:
		ok = extractC(n, src, &sig)
	}
	if !ok || sig.Name == "" {
		return Signature{}, false
	}
	return sig, true
}

func kindOf(capture string) Kind {
	switch capture {
	case grammar.CaptureMethod:
		return KindMethod
	case grammar.CaptureDeclaration:
		return KindDeclaration
	default:
		return KindFunction
	}
}

// ============================================================
// Go
// ============================================================

func extractGo(n *sitter.Node, src []byte, sig *Signature) bool {
	sig.Name = fieldText(n, "name", src)
	sig.Parameters = goParams(n.ChildByFieldName("parameters"), src)
	sig.ReturnType = fieldText(n, "result", src)

	if n.Type() == "method_declaration" {
		sig.Parent = goReceiverType(n.ChildByFieldName("receiver"), src)
	}
	return true
}

func goParams(list *sitter.Node, src []byte) []Parameter {
	params := []Parameter{}
	eachNamedChild(list, func(p *sitter.Node) {
		if p.Type() != "parameter_declaration" && p.Type() != "variadic_parameter_declaration" {
			return
		}
		typ := fieldText(p, "type", src)
		if p.Type() == "variadic_parameter_declaration" {
			typ = "..." + typ
		}

		named := false
		eachNamedChild(p, func(c *sitter.Node) {
			if c.Type() == "identifier" {
				params = append(params, Parameter{Name: c.Content(src), Type: typ})
				named = true
			}
		})
		if !named {
			params = append(params, Parameter{Type: typ})
		}
	})
	return params
}

// goReceiverType returns the receiver's base type name: "*Server[T]" becomes "Server".
func goReceiverType(list *sitter.Node, src []byte) string {
	var typ string
	eachNamedChild(list, func(p *sitter.Node) {
		if typ == "" && p.Type() == "parameter_declaration" {
			typ = fieldText(p, "type", src)
		}
	})
	typ = strings.TrimLeft(typ, "*( ")
	if i := strings.IndexAny(typ, "[)"); i >= 0 {
		typ = typ[:i]
	}
	return strings.TrimSpace(typ)
}

// ============================================================
// Python
// ============================================================

func extractPython(n *sitter.Node, src []byte, sig *Signature) bool {
	sig.Name = fieldText(n, "name", src)
	sig.ReturnType = fieldText(n, "return_type", src)

	eachNamedChild(n.ChildByFieldName("parameters"), func(p *sitter.Node) {
		switch p.Type() {
		case "identifier", "list_splat_pattern", "dictionary_splat_pattern":
			sig.Parameters = append(sig.Parameters, Parameter{Name: p.Content(src)})
		case "typed_parameter":
			name := ""
			if first := p.NamedChild(0); first != nil {
				name = first.Content(src)
			}
			sig.Parameters = append(sig.Parameters, Parameter{Name: name, Type: fieldText(p, "type", src)})
		case "default_parameter", "typed_default_parameter":
			sig.Parameters = append(sig.Parameters, Parameter{Name: fieldText(p, "name", src), Type: fieldText(p, "type", src)})
		}
	})

	if class := enclosing(n, []string{"class_definition"}, []string{"function_definition"}); class != nil {
		sig.Kind = KindMethod
		sig.Parent = fieldText(class, "name", src)
	}
	return true
}

// ============================================================
// JavaScript / TypeScript
// ============================================================

var jsClassTypes = []string{"class_declaration", "class", "abstract_class_declaration", "interface_declaration"}
var jsFunctionTypes = []string{"function_declaration", "generator_function_declaration", "function_expression", "function", "arrow_function"}

func extractJS(n *sitter.Node, src []byte, sig *Signature) bool {
	fn := n
	if n.Type() == "variable_declarator" {
		name := n.ChildByFieldName("name")
		if name == nil || name.Type() != "identifier" {
			return false
		}
		sig.Name = name.Content(src)
		fn = n.ChildByFieldName("value")
		if fn == nil {
			return false
		}
	} else {
		sig.Name = fieldText(n, "name", src)
	}

	if single := fn.ChildByFieldName("parameter"); single != nil {
		sig.Parameters = append(sig.Parameters, Parameter{Name: single.Content(src)})
	} else {
		sig.Parameters = jsParams(fn.ChildByFieldName("parameters"), src)
	}
	sig.ReturnType = typeAnnotation(fn.ChildByFieldName("return_type"), src)

	switch n.Type() {
	case "method_definition", "method_signature":
		if class := enclosing(n, jsClassTypes, jsFunctionTypes); class != nil {
			sig.Parent = fieldText(class, "name", src)
		}
	}
	return true
}

func jsParams(list *sitter.Node, src []byte) []Parameter {
	params := []Parameter{}
	eachNamedChild(list, func(p *sitter.Node) {
		switch p.Type() {
		case "identifier", "rest_pattern", "object_pattern", "array_pattern":
			params = append(params, Parameter{Name: p.Content(src)})
		case "assignment_pattern":
			params = append(params, Parameter{Name: fieldText(p, "left", src)})
		case "required_parameter", "optional_parameter":
			name := fieldText(p, "pattern", src)
			if name == "" {
				name = p.Content(src)
			}
			params = append(params, Parameter{Name: name, Type: typeAnnotation(p.ChildByFieldName("type"), src)})
		}
	})
	return params
}

// typeAnnotation strips the leading colon of a TypeScript annotation.
func typeAnnotation(n *sitter.Node, src []byte) string {
	if n == nil {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(n.Content(src)), ":"))
}

// ============================================================
// Rust
// ============================================================

func extractRust(n *sitter.Node, src []byte, sig *Signature) bool {
	sig.Name = fieldText(n, "name", src)
	sig.ReturnType = fieldText(n, "return_type", src)

	eachNamedChild(n.ChildByFieldName("parameters"), func(p *sitter.Node) {
		switch p.Type() {
		case "self_parameter":
			sig.Parameters = append(sig.Parameters, Parameter{Name: p.Content(src)})
		case "parameter":
			sig.Parameters = append(sig.Parameters, Parameter{Name: fieldText(p, "pattern", src), Type: fieldText(p, "type", src)})
		case "variadic_parameter":
			sig.Parameters = append(sig.Parameters, Parameter{Name: "..."})
		}
	})

	owner := enclosing(n, []string{"impl_item", "trait_item"}, []string{"function_item"})
	if owner == nil {
		return true
	}
	if owner.Type() == "impl_item" {
		sig.Parent = fieldText(owner, "type", src)
	} else {
		sig.Parent = fieldText(owner, "name", src)
	}
	if sig.Kind == KindFunction {
		sig.Kind = KindMethod
	}
	return true
}

// ============================================================
// C / C++
// ============================================================

func extractC(n *sitter.Node, src []byte, sig *Signature) bool {
	fn, pointer := functionDeclarator(n)
	if fn == nil {
		return false
	}

	nameNode := fn.ChildByFieldName("declarator")
	if nameNode == nil {
		return false
	}
	for nameNode.Type() == "qualified_identifier" {
		if scope := fieldText(nameNode, "scope", src); scope != "" {
			sig.Parent = joinScope(sig.Parent, scope)
		}
		next := nameNode.ChildByFieldName("name")
		if next == nil {
			break
		}
		nameNode = next
	}
	sig.Name = nameNode.Content(src)

	if typ := fieldText(n, "type", src); typ != "" {
		sig.ReturnType = strings.TrimSpace(typ + " " + pointer)
	}
	sig.Parameters = cParams(fn.ChildByFieldName("parameters"), src)

	if sig.Parent == "" {
		if class := enclosing(n, []string{"class_specifier", "struct_specifier"}, []string{"function_definition"}); class != nil {
			sig.Parent = fieldText(class, "name", src)
		}
	}
	if sig.Parent != "" && sig.Kind == KindFunction {
		sig.Kind = KindMethod
	}
	return true
}

// functionDeclarator follows the declarator chain to the function declarator,
// collecting pointer and reference markers of the return type.
func functionDeclarator(n *sitter.Node) (*sitter.Node, string) {
	var pointer strings.Builder
	d := n.ChildByFieldName("declarator")
	for d != nil {
		switch d.Type() {
		case "function_declarator":
			return d, pointer.String()
		case "pointer_declarator":
			pointer.WriteString("*")
			d = d.ChildByFieldName("declarator")
		case "reference_declarator":
			pointer.WriteString("&")
			d = d.NamedChild(0)
		case "parenthesized_declarator":
			d = d.NamedChild(0)
		default:
			return nil, ""
		}
	}
	return nil, ""
}

func cParams(list *sitter.Node, src []byte) []Parameter {
	params := []Parameter{}
	eachNamedChild(list, func(p *sitter.Node) {
		switch p.Type() {
		case "variadic_parameter":
			params = append(params, Parameter{Name: "..."})
		case "parameter_declaration", "optional_parameter_declaration", "variadic_parameter_declaration":
			params = append(params, cParam(p, src))
		}
	})
	// (void) declares an empty parameter list.
	if len(params) == 1 && params[0].Name == "" && params[0].Type == "void" {
		return []Parameter{}
	}
	return params
}

// cParam splits a declaration such as "const char *s" into name "s" and type "const char *".
func cParam(p *sitter.Node, src []byte) Parameter {
	end := p.EndByte()
	if def := p.ChildByFieldName("default_value"); def != nil {
		end = def.StartByte()
	}
	text := string(src[p.StartByte():end])
	text = strings.TrimSuffix(strings.TrimSpace(text), "=")

	name := innermostIdentifier(p.ChildByFieldName("declarator"))
	if name == nil {
		return Parameter{Type: collapseSpace(text)}
	}

	start := int(name.StartByte() - p.StartByte())
	stop := int(name.EndByte() - p.StartByte())
	if start < 0 || stop > len(text) {
		return Parameter{Name: name.Content(src), Type: fieldText(p, "type", src)}
	}
	return Parameter{
		Name: name.Content(src),
		Type: collapseSpace(text[:start] + text[stop:]),
	}
}

func innermostIdentifier(d *sitter.Node) *sitter.Node {
	for d != nil {
		switch d.Type() {
		case "identifier", "field_identifier":
			return d
		case "reference_declarator", "parenthesized_declarator":
			d = d.NamedChild(0)
		default:
			d = d.ChildByFieldName("declarator")
		}
	}
	return nil
}

func joinScope(outer, inner string) string {
	if outer == "" {
		return inner
	}
	return outer + "::" + inner
}

// ============================================================
// Tree helpers
// ============================================================

func fieldText(n *sitter.Node, field string, src []byte) string {
	if n == nil {
		return ""
	}
	child := n.ChildByFieldName(field)
	if child == nil {
		return ""
	}
	return strings.TrimSpace(child.Content(src))
}

func eachNamedChild(n *sitter.Node, fn func(*sitter.Node)) {
	if n == nil {
		return
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c != nil {
			fn(c)
		}
	}
}

// enclosing returns the nearest ancestor whose type is in want, stopping at
// any ancestor whose type is in stop.
func enclosing(n *sitter.Node, want, stop []string) *sitter.Node {
	for p := n.Parent(); p != nil; p = p.Parent() {
		t := p.Type()
		for _, w := range want {
			if t == w {
				return p
			}
		}
		for _, s := range stop {
			if t == s {
				return nil
			}
		}
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(s)
	if len(s) > maxSignatureLen {
		s = s[:maxSignatureLen] + "..."
	}
	return s
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

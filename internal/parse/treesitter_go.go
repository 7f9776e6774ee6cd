package parse

import (
	"unicode"
	"unicode/utf8"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/dusk-indust/codepecker/internal/graph"
)

// goBuiltins are predeclared functions that never resolve to a method.
var goBuiltins = map[string]bool{
	"append": true, "cap": true, "clear": true, "close": true, "complex": true,
	"copy": true, "delete": true, "imag": true, "len": true, "make": true,
	"max": true, "min": true, "new": true, "panic": true, "print": true,
	"println": true, "real": true, "recover": true,
}

// goExtractor extracts struct and interface types as classes and receiver
// methods as their methods. Free functions are not recorded.
type goExtractor struct{}

func (e *goExtractor) Extract(root *tree_sitter.Node, source []byte, cs *classSet) {
	walk(root, func(n *tree_sitter.Node) bool {
		switch n.Kind() {
		case "type_spec":
			e.extractType(n, source, cs)
			return false
		case "method_declaration":
			e.extractMethod(n, source, cs)
			return false
		case "function_declaration":
			return false
		}
		return true
	})
}

func (e *goExtractor) extractType(n *tree_sitter.Node, source []byte, cs *classSet) {
	name := fieldText(n, "name", source)
	typ := n.ChildByFieldName("type")
	if name == "" || typ == nil {
		return
	}
	switch typ.Kind() {
	case "struct_type":
		cs.declare(name, goVisibility(name))
	case "interface_type":
		c := cs.declare(name, goVisibility(name))
		for i := uint(0); i < typ.ChildCount(); i++ {
			elem := typ.Child(i)
			if elem == nil || elem.Kind() != "method_elem" {
				continue
			}
			if mname := fieldText(elem, "name", source); mname != "" {
				c.method(mname, goVisibility(mname))
			}
		}
	}
}

func (e *goExtractor) extractMethod(n *tree_sitter.Node, source []byte, cs *classSet) {
	name := fieldText(n, "name", source)
	recv := goReceiverType(n.ChildByFieldName("receiver"), source)
	if name == "" || recv == "" {
		return
	}
	m := cs.class(recv, goVisibility(recv)).method(name, goVisibility(name))
	walk(n.ChildByFieldName("body"), func(c *tree_sitter.Node) bool {
		if c.Kind() != "call_expression" {
			return true
		}
		if callee := goCallee(c.ChildByFieldName("function"), source); callee != "" && !goBuiltins[callee] {
			m.call(callee)
		}
		return true
	})
}

// goReceiverType returns the base type name of a method receiver, stripping
// pointers and type parameters.
func goReceiverType(params *tree_sitter.Node, source []byte) string {
	if params == nil {
		return ""
	}
	decl, ok := hasChildKind(params, "parameter_declaration")
	if !ok {
		return ""
	}
	typ := decl.ChildByFieldName("type")
	for typ != nil {
		switch typ.Kind() {
		case "pointer_type":
			typ = typ.NamedChild(0)
		case "generic_type":
			typ = typ.ChildByFieldName("type")
		case "type_identifier":
			return typ.Utf8Text(source)
		default:
			return ""
		}
	}
	return ""
}

// goCallee returns the bare name being called: the identifier itself or the
// selected field of a selector expression.
func goCallee(fn *tree_sitter.Node, source []byte) string {
	if fn == nil {
		return ""
	}
	switch fn.Kind() {
	case "identifier":
		return fn.Utf8Text(source)
	case "selector_expression":
		return fieldText(fn, "field", source)
	case "generic_type", "index_expression":
		return goCallee(fn.NamedChild(0), source)
	}
	return ""
}

func goVisibility(name string) graph.Visibility {
	r, _ := utf8.DecodeRuneInString(name)
	if unicode.IsUpper(r) {
		return graph.VisibilityPublic
	}
	return graph.VisibilityPrivate
}

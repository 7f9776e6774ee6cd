package parse

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/dusk-indust/codepecker/internal/graph"
)

// tsExtractor extracts classes and interfaces with their methods.
// Exported declarations are public, the rest internal to the module.
type tsExtractor struct{}

func (e *tsExtractor) Extract(root *tree_sitter.Node, source []byte, cs *classSet) {
	walk(root, func(n *tree_sitter.Node) bool {
		switch n.Kind() {
		case "class_declaration", "abstract_class_declaration", "interface_declaration":
			e.extractClass(n, source, cs)
			return false
		case "function_declaration", "arrow_function":
			return false
		}
		return true
	})
}

func (e *tsExtractor) extractClass(n *tree_sitter.Node, source []byte, cs *classSet) {
	name := fieldText(n, "name", source)
	if name == "" {
		return
	}
	vis := graph.VisibilityInternal
	if p := n.Parent(); p != nil && p.Kind() == "export_statement" {
		vis = graph.VisibilityPublic
	}
	c := cs.declare(name, vis)

	body := n.ChildByFieldName("body")
	if body == nil {
		return
	}
	for i := uint(0); i < body.ChildCount(); i++ {
		member := body.Child(i)
		if member == nil {
			continue
		}
		switch member.Kind() {
		case "method_definition", "method_signature", "abstract_method_signature":
		default:
			continue
		}
		mname := fieldText(member, "name", source)
		if mname == "" {
			continue
		}
		m := c.method(strings.TrimPrefix(mname, "#"), tsMemberVisibility(member, mname, source))
		walk(member.ChildByFieldName("body"), func(x *tree_sitter.Node) bool {
			switch x.Kind() {
			case "class_declaration", "class":
				return false
			case "call_expression", "new_expression":
				field := "function"
				if x.Kind() == "new_expression" {
					field = "constructor"
				}
				m.call(tsCallee(x.ChildByFieldName(field), source))
			}
			return true
		})
	}
}

func tsCallee(fn *tree_sitter.Node, source []byte) string {
	if fn == nil {
		return ""
	}
	switch fn.Kind() {
	case "identifier":
		return fn.Utf8Text(source)
	case "member_expression":
		return strings.TrimPrefix(fieldText(fn, "property", source), "#")
	}
	return ""
}

// tsMemberVisibility reads the accessibility modifier. ECMAScript private
// names (#x) are private.
func tsMemberVisibility(member *tree_sitter.Node, name string, source []byte) graph.Visibility {
	if strings.HasPrefix(name, "#") {
		return graph.VisibilityPrivate
	}
	if mod, ok := hasChildKind(member, "accessibility_modifier"); ok {
		return graph.ParseVisibility(mod.Utf8Text(source))
	}
	return graph.VisibilityPublic
}

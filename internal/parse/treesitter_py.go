package parse

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/dusk-indust/codepecker/internal/graph"
)

// pyExtractor extracts class definitions and the functions in their bodies.
// Module-level functions and nested classes are not recorded.
type pyExtractor struct{}

func (e *pyExtractor) Extract(root *tree_sitter.Node, source []byte, cs *classSet) {
	walk(root, func(n *tree_sitter.Node) bool {
		switch n.Kind() {
		case "class_definition":
			e.extractClass(n, source, cs)
			return false
		case "function_definition":
			return false
		}
		return true
	})
}

func (e *pyExtractor) extractClass(n *tree_sitter.Node, source []byte, cs *classSet) {
	name := fieldText(n, "name", source)
	body := n.ChildByFieldName("body")
	if name == "" {
		return
	}
	c := cs.declare(name, pyVisibility(name))
	if body == nil {
		return
	}
	for i := uint(0); i < body.ChildCount(); i++ {
		def := body.Child(i)
		if def == nil {
			continue
		}
		if def.Kind() == "decorated_definition" {
			def = def.ChildByFieldName("definition")
		}
		if def == nil || def.Kind() != "function_definition" {
			continue
		}
		mname := fieldText(def, "name", source)
		if mname == "" {
			continue
		}
		m := c.method(mname, pyVisibility(mname))
		walk(def.ChildByFieldName("body"), func(x *tree_sitter.Node) bool {
			switch x.Kind() {
			case "class_definition":
				return false
			case "call":
				m.call(pyCallee(x.ChildByFieldName("function"), source))
			}
			return true
		})
	}
}

func pyCallee(fn *tree_sitter.Node, source []byte) string {
	if fn == nil {
		return ""
	}
	switch fn.Kind() {
	case "identifier":
		return fn.Utf8Text(source)
	case "attribute":
		return fieldText(fn, "attribute", source)
	}
	return ""
}

// pyVisibility follows Python naming conventions: dunder names are public,
// a double underscore prefix is private and a single one protected.
func pyVisibility(name string) graph.Visibility {
	switch {
	case strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__"):
		return graph.VisibilityPublic
	case strings.HasPrefix(name, "__"):
		return graph.VisibilityPrivate
	case strings.HasPrefix(name, "_"):
		return graph.VisibilityProtected
	}
	return graph.VisibilityPublic
}

package parse

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/dusk-indust/codepecker/internal/graph"
)

// rsExtractor extracts structs, enums and traits as classes. Functions in
// impl blocks and trait signatures become their methods.
type rsExtractor struct{}

func (e *rsExtractor) Extract(root *tree_sitter.Node, source []byte, cs *classSet) {
	walk(root, func(n *tree_sitter.Node) bool {
		switch n.Kind() {
		case "struct_item", "enum_item":
			if name := fieldText(n, "name", source); name != "" {
				cs.declare(name, rsVisibility(n))
			}
			return false
		case "trait_item":
			e.extractTrait(n, source, cs)
			return false
		case "impl_item":
			e.extractImpl(n, source, cs)
			return false
		case "function_item":
			return false
		}
		return true
	})
}

func (e *rsExtractor) extractTrait(n *tree_sitter.Node, source []byte, cs *classSet) {
	name := fieldText(n, "name", source)
	if name == "" {
		return
	}
	c := cs.declare(name, rsVisibility(n))
	body := n.ChildByFieldName("body")
	if body == nil {
		return
	}
	for i := uint(0); i < body.ChildCount(); i++ {
		item := body.Child(i)
		if item == nil {
			continue
		}
		switch item.Kind() {
		case "function_signature_item":
			if mname := fieldText(item, "name", source); mname != "" {
				c.method(mname, graph.VisibilityPublic)
			}
		case "function_item":
			if mname := fieldText(item, "name", source); mname != "" {
				rsCalls(item, source, c.method(mname, graph.VisibilityPublic))
			}
		}
	}
}

func (e *rsExtractor) extractImpl(n *tree_sitter.Node, source []byte, cs *classSet) {
	name := rsTypeName(n.ChildByFieldName("type"), source)
	body := n.ChildByFieldName("body")
	if name == "" || body == nil {
		return
	}
	traitImpl := n.ChildByFieldName("trait") != nil
	c := cs.class(name, graph.VisibilityPrivate)
	for i := uint(0); i < body.ChildCount(); i++ {
		item := body.Child(i)
		if item == nil || item.Kind() != "function_item" {
			continue
		}
		mname := fieldText(item, "name", source)
		if mname == "" {
			continue
		}
		vis := rsVisibility(item)
		if traitImpl {
			vis = graph.VisibilityPublic
		}
		rsCalls(item, source, c.method(mname, vis))
	}
}

func rsCalls(fn *tree_sitter.Node, source []byte, m *methodAcc) {
	walk(fn.ChildByFieldName("body"), func(x *tree_sitter.Node) bool {
		switch x.Kind() {
		case "function_item", "impl_item":
			return false
		case "call_expression":
			m.call(rsCallee(x.ChildByFieldName("function"), source))
		}
		return true
	})
}

func rsCallee(fn *tree_sitter.Node, source []byte) string {
	if fn == nil {
		return ""
	}
	switch fn.Kind() {
	case "identifier":
		return fn.Utf8Text(source)
	case "field_expression":
		return fieldText(fn, "field", source)
	case "scoped_identifier":
		return fieldText(fn, "name", source)
	case "generic_function":
		return rsCallee(fn.ChildByFieldName("function"), source)
	}
	return ""
}

// rsTypeName strips generics and paths from an impl target type.
func rsTypeName(typ *tree_sitter.Node, source []byte) string {
	if typ == nil {
		return ""
	}
	switch typ.Kind() {
	case "type_identifier":
		return typ.Utf8Text(source)
	case "generic_type":
		return rsTypeName(typ.ChildByFieldName("type"), source)
	case "scoped_type_identifier":
		return fieldText(typ, "name", source)
	}
	return ""
}

func rsVisibility(n *tree_sitter.Node) graph.Visibility {
	if _, ok := hasChildKind(n, "visibility_modifier"); ok {
		return graph.VisibilityPublic
	}
	return graph.VisibilityPrivate
}

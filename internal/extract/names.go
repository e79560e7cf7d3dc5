package extract

import (
	"strings"
	"unicode"

	sitter "github.com/smacker/go-tree-sitter"
)

// nameOf resolves the semantic name of a declarative node. Anonymous
// blocks return "".
func (ex *extraction) nameOf(n *sitter.Node, bt BlockType) string {
	if name := n.ChildByFieldName("name"); name != nil {
		return name.Content(ex.source)
	}

	if ex.table.declaratorName {
		if name := declaratorIdentifier(n, ex.source); name != "" {
			return name
		}
	}

	switch n.Type() {
	case "type_declaration": // go: name lives on the type_spec child
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if name := n.NamedChild(i).ChildByFieldName("name"); name != nil {
				return name.Content(ex.source)
			}
		}
	case "lexical_declaration", "variable_declaration", "var_declaration",
		"const_declaration", "field_declaration":
		// First declared identifier names the block.
		if id := firstDescendantOfKind(n, "identifier"); id != nil {
			return id.Content(ex.source)
		}
	case "impl_item": // rust: impl blocks take the implemented type's name
		if t := n.ChildByFieldName("type"); t != nil {
			return t.Content(ex.source)
		}
	case "rule_set": // css
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if n.NamedChild(i).Type() == "selectors" {
				return n.NamedChild(i).Content(ex.source)
			}
		}
	case "element", "script_element", "style_element": // html
		if tag := firstDescendantOfKind(n, "tag_name"); tag != nil {
			return tag.Content(ex.source)
		}
	case "import_statement", "import_from_statement", "import_declaration",
		"use_declaration", "preproc_include":
		return ex.importSource(n)
	}

	if bt == BlockImport {
		return ex.importSource(n)
	}
	return ""
}

// declaratorIdentifier descends nested declarator fields (c, cpp) to the
// declared identifier.
func declaratorIdentifier(n *sitter.Node, source []byte) string {
	for cur := n.ChildByFieldName("declarator"); cur != nil; cur = cur.ChildByFieldName("declarator") {
		switch cur.Type() {
		case "identifier", "field_identifier", "type_identifier":
			return cur.Content(source)
		}
	}
	if name := n.ChildByFieldName("name"); name != nil {
		return name.Content(source)
	}
	return ""
}

// importSource extracts the imported module or symbol path from an
// import-like node, language by language.
func (ex *extraction) importSource(n *sitter.Node) string {
	switch n.Type() {
	case "import_from_statement": // python: from X import ...
		if mod := n.ChildByFieldName("module_name"); mod != nil {
			return mod.Content(ex.source)
		}
	case "import_statement":
		// javascript/typescript keep the source in a field; python uses
		// dotted names.
		if src := n.ChildByFieldName("source"); src != nil {
			return trimQuotes(src.Content(ex.source))
		}
		if dn := firstDescendantOfKind(n, "dotted_name"); dn != nil {
			return dn.Content(ex.source)
		}
	case "import_declaration": // go, java
		if s := firstDescendantOfKind(n, "interpreted_string_literal"); s != nil {
			return trimQuotes(s.Content(ex.source))
		}
		if s := firstDescendantOfKind(n, "scoped_identifier"); s != nil {
			return s.Content(ex.source)
		}
	case "use_declaration": // rust
		if arg := n.ChildByFieldName("argument"); arg != nil {
			return arg.Content(ex.source)
		}
	case "preproc_include": // c, cpp
		if p := n.ChildByFieldName("path"); p != nil {
			return trimQuotes(strings.Trim(p.Content(ex.source), "<>"))
		}
	}
	// css @import and anything else: first string-ish descendant.
	for _, kind := range []string{"string_value", "string_literal", "string"} {
		if s := firstDescendantOfKind(n, kind); s != nil {
			return trimQuotes(s.Content(ex.source))
		}
	}
	return ""
}

// importedNames lists the individual symbols an import brings into scope
// (python "from m import a, b"; go/java single-path imports return nil).
func (ex *extraction) importedNames(n *sitter.Node) []string {
	if n.Type() != "import_from_statement" {
		return nil
	}
	mod := n.ChildByFieldName("module_name")
	var names []string
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if mod != nil && child.StartByte() == mod.StartByte() && child.EndByte() == mod.EndByte() {
			continue
		}
		switch child.Type() {
		case "dotted_name", "identifier":
			names = append(names, child.Content(ex.source))
		case "aliased_import":
			if name := child.ChildByFieldName("name"); name != nil {
				names = append(names, name.Content(ex.source))
			}
		}
	}
	return names
}

// paramsOf reads the parameter list of a function-like node.
func (ex *extraction) paramsOf(n *sitter.Node) []Param {
	var params []Param
	for _, field := range ex.table.paramFields {
		list := n.ChildByFieldName(field)
		if list == nil {
			continue
		}
		for i := 0; i < int(list.NamedChildCount()); i++ {
			p := list.NamedChild(i)
			param := Param{Kind: p.Type()}
			switch p.Type() {
			case "identifier", "field_identifier":
				param.Name = p.Content(ex.source)
			default:
				if name := p.ChildByFieldName("name"); name != nil {
					param.Name = name.Content(ex.source)
				} else if id := firstDescendantOfKind(p, "identifier"); id != nil {
					param.Name = id.Content(ex.source)
				}
				if typ := p.ChildByFieldName("type"); typ != nil {
					param.TypeExpr = typ.Content(ex.source)
				}
			}
			params = append(params, param)
		}
	}
	return params
}

// returnKindOf reports the node kind of the declared return type. The
// kind (not the text) feeds the semantic hash, keeping it stable under
// formatting.
func (ex *extraction) returnKindOf(n *sitter.Node) string {
	for _, field := range ex.table.returnFields {
		if ret := n.ChildByFieldName(field); ret != nil {
			return ret.Type()
		}
	}
	return ""
}

// modifiersOf collects declaration modifiers: keyword tokens among the
// direct children plus any language-specific modifier nodes.
func (ex *extraction) modifiersOf(n *sitter.Node) []string {
	var mods []string
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		kind := child.Type()
		if modifierKeywords[kind] {
			mods = append(mods, kind)
			continue
		}
		if ex.table.modifierKinds[kind] {
			for j := 0; j < int(child.ChildCount()); j++ {
				mods = append(mods, child.Child(j).Type())
			}
		}
	}
	return mods
}

// scopeOf classifies visibility from naming conventions and modifiers.
func scopeOf(name string, modifiers []string) string {
	for _, m := range modifiers {
		switch m {
		case "public", "pub", "export":
			return "public"
		case "private":
			return "private"
		case "protected":
			return "protected"
		}
	}
	if name == "" {
		return "local"
	}
	if strings.HasPrefix(name, "_") {
		return "private"
	}
	if r := []rune(name)[0]; unicode.IsLower(r) {
		return "internal"
	}
	return "public"
}

// calleeName resolves the rightmost identifier of a callee expression:
// obj.method() and pkg.Fn() both yield the member name.
func calleeName(n *sitter.Node, source []byte) string {
	switch n.Type() {
	case "identifier", "field_identifier", "property_identifier", "type_identifier":
		return n.Content(source)
	case "attribute": // python
		if attr := n.ChildByFieldName("attribute"); attr != nil {
			return attr.Content(source)
		}
	case "selector_expression": // go
		if f := n.ChildByFieldName("field"); f != nil {
			return f.Content(source)
		}
	case "member_expression": // javascript
		if p := n.ChildByFieldName("property"); p != nil {
			return p.Content(source)
		}
	case "field_expression": // rust, c, cpp
		if f := n.ChildByFieldName("field"); f != nil {
			return f.Content(source)
		}
	case "scoped_identifier": // rust paths
		if name := n.ChildByFieldName("name"); name != nil {
			return name.Content(source)
		}
	}
	if n.NamedChildCount() > 0 {
		return calleeName(n.NamedChild(int(n.NamedChildCount())-1), source)
	}
	return ""
}

func firstDescendantOfKind(n *sitter.Node, kind string) *sitter.Node {
	if n.Type() == kind {
		return n
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if found := firstDescendantOfKind(n.NamedChild(i), kind); found != nil {
			return found
		}
	}
	return nil
}

func trimQuotes(s string) string {
	return strings.Trim(s, "\"'`")
}

package extract

import (
	sitter "github.com/smacker/go-tree-sitter"
)

// collectHeritage records inherits/implements edges from a class-like
// block's header. Targets are recorded by name and left unresolved; the
// post-ingest pass links them to blocks in other containers only, so a
// base declared in the same file stays unresolved.
func (ex *extraction) collectHeritage(n *sitter.Node, idx int) {
	for _, field := range ex.table.heritageFields {
		for _, name := range ex.heritageNames(n, field) {
			ex.relationships = append(ex.relationships, Relationship{
				SourceIndex: idx,
				TargetIndex: -1,
				TargetName:  name,
				Type:        RelInherits,
				Unresolved:  true,
			})
		}
	}
	for _, field := range ex.table.implementsFields {
		for _, name := range ex.heritageNames(n, field) {
			ex.relationships = append(ex.relationships, Relationship{
				SourceIndex: idx,
				TargetIndex: -1,
				TargetName:  name,
				Type:        RelImplements,
				Unresolved:  true,
			})
		}
	}
}

// heritageNames reads base names from a header field. Some grammars model
// the clause as a field, others as a named child kind; both are checked.
func (ex *extraction) heritageNames(n *sitter.Node, field string) []string {
	clause := n.ChildByFieldName(field)
	if clause == nil {
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if n.NamedChild(i).Type() == field {
				clause = n.NamedChild(i)
				break
			}
		}
	}
	if clause == nil {
		return nil
	}
	// A bare identifier field (java superclass) is itself the base.
	switch clause.Type() {
	case "identifier", "type_identifier", "scoped_identifier", "scoped_type_identifier", "generic_type":
		return []string{baseIdentifier(clause, ex.source)}
	}
	var names []string
	for i := 0; i < int(clause.NamedChildCount()); i++ {
		if name := baseIdentifier(clause.NamedChild(i), ex.source); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// baseIdentifier reduces a base-class expression to its rightmost
// identifier (module.Base -> Base, Generic[T] -> Generic).
func baseIdentifier(n *sitter.Node, source []byte) string {
	switch n.Type() {
	case "identifier", "type_identifier", "constant":
		return n.Content(source)
	case "attribute":
		if attr := n.ChildByFieldName("attribute"); attr != nil {
			return attr.Content(source)
		}
	case "subscript", "generic_type":
		if n.NamedChildCount() > 0 {
			return baseIdentifier(n.NamedChild(0), source)
		}
	case "scoped_identifier", "scoped_type_identifier":
		if name := n.ChildByFieldName("name"); name != nil {
			return name.Content(source)
		}
	case "keyword_argument": // python metaclass=..., skipped
		return ""
	}
	if id := firstDescendantOfKind(n, "identifier"); id != nil {
		return id.Content(source)
	}
	if id := firstDescendantOfKind(n, "type_identifier"); id != nil {
		return id.Content(source)
	}
	return ""
}

// collectImport records the imports edge from the container module to the
// imported source, plus one edge per individually imported symbol.
func (ex *extraction) collectImport(n *sitter.Node, idx int) {
	if ex.blocks[idx].Type != BlockImport {
		return
	}
	source := ex.importSource(n)
	if source == "" {
		return
	}
	ex.relationships = append(ex.relationships, Relationship{
		SourceIndex: 0, // containing module
		TargetIndex: -1,
		TargetName:  source,
		Type:        RelImports,
		Unresolved:  true,
	})
	for _, sym := range ex.importedNames(n) {
		ex.relationships = append(ex.relationships, Relationship{
			SourceIndex: 0,
			TargetIndex: -1,
			TargetName:  sym,
			Type:        RelImports,
			Unresolved:  true,
		})
	}
}

// collectCalls walks a function-like block's subtree and records callee
// names. Descent stops at nested definitions, which attribute their own
// calls.
func (ex *extraction) collectCalls(n *sitter.Node, idx int) {
	seen := make(map[string]bool)
	var walk func(node *sitter.Node, root bool)
	walk = func(node *sitter.Node, root bool) {
		kind := node.Type()
		if !root {
			if bt, mapped := ex.table.kindToType[kind]; mapped {
				switch bt {
				case BlockFunction, BlockMethod, BlockClass:
					return
				}
			}
		}
		if ex.table.callKinds[kind] {
			callee := node
			if ex.table.calleeField != "" {
				if f := node.ChildByFieldName(ex.table.calleeField); f != nil {
					callee = f
				}
			}
			if name := calleeName(callee, ex.source); name != "" && !seen[name] {
				seen[name] = true
				ex.callNames[idx] = append(ex.callNames[idx], name)
			}
		}
		for i := 0; i < int(node.NamedChildCount()); i++ {
			walk(node.NamedChild(i), false)
		}
	}
	walk(n, true)
}

// linkCalls converts collected callee names into calls edges. Targets
// resolve to same-file function, method, class, or interface blocks by semantic
// name; the rest stay unresolved for the post-ingest pass.
func (ex *extraction) linkCalls() {
	byName := ex.declarationIndex()
	for idx, names := range ex.callNames {
		for _, name := range names {
			if target, ok := byName[name]; ok && target != idx {
				ex.relationships = append(ex.relationships, Relationship{
					SourceIndex: idx,
					TargetIndex: target,
					TargetName:  name,
					Type:        RelCalls,
					Strength:    1,
				})
				continue
			}
			ex.relationships = append(ex.relationships, Relationship{
				SourceIndex: idx,
				TargetIndex: -1,
				TargetName:  name,
				Type:        RelCalls,
				Unresolved:  true,
			})
		}
	}
}

// linkTests emits tests edges from test functions to everything they
// call, mirroring the calls targets.
func (ex *extraction) linkTests() {
	byName := ex.declarationIndex()
	for idx, names := range ex.callNames {
		b := ex.blocks[idx]
		if b.Type != BlockFunction && b.Type != BlockMethod {
			continue
		}
		if !ex.tests.Matches(b.SemanticName, ex.path) {
			continue
		}
		for _, name := range names {
			if target, ok := byName[name]; ok && target != idx {
				ex.relationships = append(ex.relationships, Relationship{
					SourceIndex: idx,
					TargetIndex: target,
					TargetName:  name,
					Type:        RelTests,
					Strength:    1,
				})
				continue
			}
			ex.relationships = append(ex.relationships, Relationship{
				SourceIndex: idx,
				TargetIndex: -1,
				TargetName:  name,
				Type:        RelTests,
				Unresolved:  true,
			})
		}
	}
}

// declarationIndex maps semantic names to the first declaring block.
// Earlier (lower-index) declarations win, keeping resolution
// deterministic for duplicate names.
func (ex *extraction) declarationIndex() map[string]int {
	byName := make(map[string]int)
	for _, b := range ex.blocks {
		switch b.Type {
		case BlockFunction, BlockMethod, BlockClass, BlockInterface:
			if b.SemanticName == "" {
				continue
			}
			if _, exists := byName[b.SemanticName]; !exists {
				byName[b.SemanticName] = b.Index
			}
		}
	}
	return byName
}

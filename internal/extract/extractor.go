// Package extract walks concrete syntax trees and emits the
// language-agnostic block model: ordered UniversalBlock records, typed
// relationships, and per-block complexity metrics. Language differences
// are confined to the dispatch tables in tables.go; the walk itself is
// language-polymorphic.
package extract

import (
	"path/filepath"
	"strings"
	"unicode"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/trellis/internal/lang"
)

// modifierKeywords are anonymous keyword tokens lifted into the modifiers
// sequence when they appear as direct children of a declarative node.
var modifierKeywords = map[string]bool{
	"async": true, "static": true, "abstract": true, "const": true,
	"pub": true, "public": true, "private": true, "protected": true,
	"final": true, "export": true, "default": true, "unsafe": true,
	"extern": true, "inline": true, "mut": true,
}

// Extractor turns one parsed tree into an extraction Result. It is
// stateless across files; a single Extractor may be reused by a worker.
type Extractor struct {
	tests TestConfig
}

// NewExtractor creates an Extractor with the given test-detection
// configuration. Use DefaultTestConfig for the stock conventions.
func NewExtractor(tests TestConfig) *Extractor {
	return &Extractor{tests: tests}
}

// extraction carries the in-flight state of one file walk.
type extraction struct {
	source []byte
	path   string
	table  *langTable
	tests  TestConfig

	blocks        []Block
	relationships []Relationship
	childCount    map[int]int      // parent index -> emitted children
	pendingDocs   []string         // comments awaiting the next declarative block
	callNames     map[int][]string // function block index -> callee names
}

// Extract produces the block model for a parsed container. The result is
// deterministic for identical source bytes: block order is preorder over
// the tree, which follows byte order.
func (e *Extractor) Extract(tree *lang.Tree, path string) *Result {
	table, _ := tableForLanguage(tree.Language)
	if table == nil {
		table = &langTable{kindToType: map[string]BlockType{}}
	}

	ex := &extraction{
		source:     tree.Source,
		path:       path,
		table:      table,
		tests:      e.tests,
		childCount: make(map[int]int),
		callNames:  make(map[int][]string),
	}

	root := ex.emitModule(tree.Root, path)
	if tree.Root != nil {
		for i := 0; i < int(tree.Root.NamedChildCount()); i++ {
			ex.walk(tree.Root.NamedChild(i), root, true)
		}
	}

	ex.finishBlocks()
	ex.linkCalls()
	ex.linkTests()

	return &Result{
		Language:      tree.Language,
		Blocks:        ex.blocks,
		Relationships: ex.relationships,
	}
}

// emitModule creates the container root block. Every container has
// exactly one, even when the file is empty.
func (ex *extraction) emitModule(root *sitter.Node, path string) int {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	b := Block{
		Index:        0,
		Type:         BlockModule,
		SemanticName: name,
		ParentIndex:  -1,
		Depth:        0,
	}
	if root != nil {
		b.RawText = root.Content(ex.source)
		b.StartByte = root.StartByte()
		b.EndByte = root.EndByte()
		b.StartLine = root.StartPoint().Row
		b.EndLine = root.EndPoint().Row
		b.Normalized = normalizeSubtree(root, ex.table)
	}
	ex.blocks = append(ex.blocks, b)
	return 0
}

// walk visits one named node. Table-mapped kinds become blocks; at module
// level, unmapped statements and expressions become anonymous blocks.
// Recursion continues inside emitted blocks so nested definitions get
// their own records with correct parent and depth.
func (ex *extraction) walk(n *sitter.Node, parent int, atModuleLevel bool) {
	kind := n.Type()

	// Decorated definitions wrap the real declaration; hoist the
	// decorators onto the inner block.
	if kind == "decorated_definition" {
		var decorators []string
		var def *sitter.Node
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			if ex.table.decoratorKinds[child.Type()] {
				decorators = append(decorators, child.Content(ex.source))
			} else {
				def = child
			}
		}
		if def != nil {
			idx := len(ex.blocks)
			ex.walk(def, parent, atModuleLevel)
			if idx < len(ex.blocks) {
				ex.blocks[idx].Decorators = decorators
			}
		}
		return
	}

	if ex.table.commentKinds[kind] {
		if atModuleLevel {
			ex.pendingDocs = append(ex.pendingDocs, n.Content(ex.source))
			ex.emitBlock(n, parent, BlockComment, "")
		}
		return
	}

	blockType, mapped := ex.table.kindToType[kind]
	if !mapped {
		if atModuleLevel {
			ex.emitUnmapped(n, parent)
		}
		// Descend regardless: nested declarations inside unmapped
		// wrappers (e.g. bodies, blocks) must still be found.
		for i := 0; i < int(n.NamedChildCount()); i++ {
			ex.walk(n.NamedChild(i), parent, false)
		}
		return
	}

	blockType = ex.refineType(n, blockType, parent)
	name := ex.nameOf(n, blockType)
	idx := ex.emitBlock(n, parent, blockType, name)

	ex.collectHeritage(n, idx)
	ex.collectImport(n, idx)
	if blockType == BlockFunction || blockType == BlockMethod {
		ex.collectCalls(n, idx)
	}

	// Recurse for nested definitions. Function, method, class, interface,
	// module and other blocks may declare further blocks; the remaining
	// mapped kinds are leaves.
	switch blockType {
	case BlockFunction, BlockMethod, BlockClass, BlockInterface, BlockModule, BlockOther:
		for i := 0; i < int(n.NamedChildCount()); i++ {
			ex.walk(n.NamedChild(i), idx, false)
		}
	}
}

// emitUnmapped handles module-level nodes with no table mapping.
// Statement-like kinds become anonymous Statement blocks, expression-like
// kinds Expression blocks, everything else Other with the raw kind
// recorded in language_features.
func (ex *extraction) emitUnmapped(n *sitter.Node, parent int) {
	kind := n.Type()

	// Python module-level assignments surface as Variable/Constant.
	if kind == "expression_statement" && n.NamedChildCount() == 1 {
		child := n.NamedChild(0)
		if child.Type() == "assignment" {
			name := ""
			if left := child.ChildByFieldName("left"); left != nil && left.Type() == "identifier" {
				name = left.Content(ex.source)
			}
			bt := BlockVariable
			if name != "" && name == strings.ToUpper(name) && strings.ContainsFunc(name, unicode.IsLetter) {
				bt = BlockConstant
			}
			ex.emitBlock(n, parent, bt, name)
			return
		}
	}

	switch {
	case strings.HasSuffix(kind, "statement"):
		ex.emitBlock(n, parent, BlockStatement, "")
	case strings.HasSuffix(kind, "expression"):
		ex.emitBlock(n, parent, BlockExpression, "")
	default:
		idx := ex.emitBlock(n, parent, BlockOther, "")
		ex.blocks[idx].LanguageFeatures = map[string]any{"raw_kind": kind}
	}
}

// emitBlock appends a block for node n under the given parent and
// records the contains edge. Blocks whose span and type exactly duplicate
// their parent's (a symptom of error recovery) collapse into the parent.
func (ex *extraction) emitBlock(n *sitter.Node, parent int, blockType BlockType, name string) int {
	p := &ex.blocks[parent]
	if n.StartByte() == p.StartByte && n.EndByte() == p.EndByte && blockType == p.Type {
		return parent
	}

	idx := len(ex.blocks)
	b := Block{
		Index:            idx,
		Type:             blockType,
		SemanticName:     name,
		RawText:          n.Content(ex.source),
		Position:         idx,
		IndentLevel:      int(n.StartPoint().Column),
		ParentIndex:      parent,
		PositionInParent: ex.childCount[parent],
		Depth:            p.Depth + 1,
		StartByte:        n.StartByte(),
		EndByte:          n.EndByte(),
		StartLine:        n.StartPoint().Row,
		EndLine:          n.EndPoint().Row,
	}
	ex.childCount[parent]++

	if blockType != BlockComment {
		b.Normalized = normalizeSubtree(n, ex.table)
		b.Tokens = tokenSequence(n, ex.source, ex.table)
		b.Parameters = ex.paramsOf(n)
		b.ReturnType = ex.returnKindOf(n)
		b.Modifiers = ex.modifiersOf(n)
		b.Scope = scopeOf(name, b.Modifiers)
		b.Metrics = Metrics{
			Cyclomatic:  cyclomaticComplexity(n, ex.source, ex.table),
			Cognitive:   cognitiveComplexity(n, ex.source, ex.table),
			LinesOfCode: linesOfCode(b.RawText),
		}
		if len(ex.pendingDocs) > 0 {
			b.AttachedComments = ex.pendingDocs
			ex.pendingDocs = nil
		}
	}

	ex.blocks = append(ex.blocks, b)
	ex.relationships = append(ex.relationships, Relationship{
		SourceIndex: parent,
		TargetIndex: idx,
		Type:        RelContains,
		Strength:    1,
	})
	return idx
}

// refineType adjusts the table mapping where one node kind covers several
// block types.
func (ex *extraction) refineType(n *sitter.Node, bt BlockType, parent int) BlockType {
	switch {
	case n.Type() == "type_declaration": // go: struct vs interface
		for i := 0; i < int(n.NamedChildCount()); i++ {
			spec := n.NamedChild(i)
			if t := spec.ChildByFieldName("type"); t != nil && t.Type() == "interface_type" {
				return BlockInterface
			}
		}
	case bt == BlockFunction:
		// A function declared inside a class-like block is a method.
		for p := parent; p >= 0; p = ex.blocks[p].ParentIndex {
			switch ex.blocks[p].Type {
			case BlockClass, BlockInterface:
				return BlockMethod
			case BlockFunction, BlockMethod:
				return bt
			}
		}
	}
	return bt
}

// finishBlocks computes fingerprints once all structural fields are set.
func (ex *extraction) finishBlocks() {
	for i := range ex.blocks {
		b := &ex.blocks[i]
		if b.Type == BlockComment {
			b.SyntaxHash = SyntaxHash(b.RawText)
			continue
		}
		b.SemanticHash = SemanticHash(b.Type, b.Normalized, b.Parameters, b.ReturnType, b.Modifiers)
		b.SyntaxHash = SyntaxHash(b.RawText)
	}
}

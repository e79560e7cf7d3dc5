package extract

import (
	"crypto/sha256"
	"fmt"
	"sort"

	sitter "github.com/smacker/go-tree-sitter"
)

// maxTokens caps the stored token sequence per block.
const maxTokens = 256

// normalizeSubtree produces the language-agnostic shape of a node's
// subtree: the preorder sequence of named node kinds with identifiers and
// literals erased (their kinds remain, their text never contributes).
// Comment trivia is excluded so whitespace- and comment-only edits leave
// the sequence unchanged.
func normalizeSubtree(n *sitter.Node, table *langTable) []string {
	var kinds []string
	var walk func(node *sitter.Node)
	walk = func(node *sitter.Node) {
		kind := node.Type()
		if table.commentKinds[kind] {
			return
		}
		kinds = append(kinds, kind)
		for i := 0; i < int(node.NamedChildCount()); i++ {
			walk(node.NamedChild(i))
		}
	}
	walk(n)
	return kinds
}

// tokenSequence collects leaf token texts in source order, capped at
// maxTokens. Stored for reconstruction hints; never hashed.
func tokenSequence(n *sitter.Node, source []byte, table *langTable) []string {
	var tokens []string
	var walk func(node *sitter.Node)
	walk = func(node *sitter.Node) {
		if len(tokens) >= maxTokens {
			return
		}
		kind := node.Type()
		if table.commentKinds[kind] {
			return
		}
		if node.NamedChildCount() == 0 {
			tokens = append(tokens, node.Content(source))
			return
		}
		for i := 0; i < int(node.NamedChildCount()); i++ {
			walk(node.NamedChild(i))
		}
	}
	walk(n)
	return tokens
}

// SemanticHash computes the content digest of a block's semantic
// identity: block type, normalized structure, parameter kinds, return
// type kind, and sorted modifiers. The semantic name is deliberately
// excluded so a rename alone never changes the hash. Identical inputs
// produce identical hex digests on every platform.
func SemanticHash(blockType BlockType, normalized []string, params []Param, returnType string, modifiers []string) string {
	h := sha256.New()
	fmt.Fprintf(h, "type:%s\n", blockType)
	for _, k := range normalized {
		fmt.Fprintf(h, "node:%s\n", k)
	}
	for _, p := range params {
		fmt.Fprintf(h, "param:%s\n", p.Kind)
	}
	fmt.Fprintf(h, "return:%s\n", returnType)

	sorted := make([]string, len(modifiers))
	copy(sorted, modifiers)
	sort.Strings(sorted)
	for _, m := range sorted {
		fmt.Fprintf(h, "modifier:%s\n", m)
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// SyntaxHash computes the content digest of a block's raw text.
func SyntaxHash(rawText string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(rawText)))
}

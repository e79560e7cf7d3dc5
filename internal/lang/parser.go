// Package lang drives the per-language tree-sitter grammars. Every
// registered language is parsed through the same contract: bytes in,
// concrete syntax tree plus an error list out. Trees preserve trivia and
// byte spans; malformed input yields a best-effort tree rather than a
// hard failure.
package lang

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/trellis/internal/fault"
)

// ParseError describes one damaged region in an error-tolerant parse.
type ParseError struct {
	Kind      string // "error" or "missing"
	NodeType  string
	StartByte uint32
	EndByte   uint32
	StartLine uint32
	EndLine   uint32
}

// Tree is a parsed concrete syntax tree together with its source bytes.
// The source is retained so callers can slice raw text by byte span.
type Tree struct {
	Language string
	Source   []byte
	Root     *sitter.Node

	tree *sitter.Tree
}

// Close releases the underlying tree-sitter tree.
func (t *Tree) Close() {
	if t.tree != nil {
		t.tree.Close()
	}
}

// Parser wraps a tree-sitter parser instance. A Parser is not safe for
// concurrent use; workers each own one (see the engine's worker pool).
type Parser struct {
	parser *sitter.Parser
}

// NewParser creates a parser. The grammar is selected per Parse call so a
// single worker can handle files of any registered language.
func NewParser() *Parser {
	return &Parser{parser: sitter.NewParser()}
}

// Parse parses source as the given language. The parse is error-tolerant:
// a tree is returned even when the input is malformed, along with the
// list of damaged regions. A nil tree with an error is only produced when
// the grammar is unknown or the parser itself fails (e.g. context
// cancellation).
func (p *Parser) Parse(ctx context.Context, source []byte, language string) (*Tree, []ParseError, error) {
	grammar, ok := GrammarForLanguage(language)
	if !ok {
		return nil, nil, fault.Newf(fault.KindInput, "parse", "unregistered language %q", language)
	}
	p.parser.SetLanguage(grammar)

	tree, err := p.parser.ParseCtx(ctx, nil, source)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, fault.New(fault.KindCancelled, "parse", ctx.Err())
		}
		return nil, nil, fault.New(fault.KindParse, "parse", fmt.Errorf("parse %s: %w", language, err))
	}

	t := &Tree{
		Language: language,
		Source:   source,
		Root:     tree.RootNode(),
		tree:     tree,
	}
	return t, collectParseErrors(t.Root), nil
}

// collectParseErrors walks the tree and records ERROR and MISSING nodes.
// The walk short-circuits subtrees without errors via HasError.
func collectParseErrors(root *sitter.Node) []ParseError {
	if root == nil || !root.HasError() {
		return nil
	}
	var errs []ParseError
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n.IsError() || n.IsMissing() {
			kind := "error"
			if n.IsMissing() {
				kind = "missing"
			}
			errs = append(errs, ParseError{
				Kind:      kind,
				NodeType:  n.Type(),
				StartByte: n.StartByte(),
				EndByte:   n.EndByte(),
				StartLine: n.StartPoint().Row,
				EndLine:   n.EndPoint().Row,
			})
			return
		}
		if !n.HasError() {
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(root)
	return errs
}

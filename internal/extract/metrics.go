package extract

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// cyclomaticComplexity is 1 + the count of decision nodes in the block's
// subtree. Decision kinds come from the language table; boolean
// short-circuit operators count when the operator field matches.
func cyclomaticComplexity(n *sitter.Node, source []byte, table *langTable) int {
	return 1 + countDecisions(n, source, table)
}

func countDecisions(n *sitter.Node, source []byte, table *langTable) int {
	count := 0
	var walk func(node *sitter.Node)
	walk = func(node *sitter.Node) {
		if isDecision(node, source, table) {
			count++
		}
		for i := 0; i < int(node.NamedChildCount()); i++ {
			walk(node.NamedChild(i))
		}
	}
	walk(n)
	return count
}

// cognitiveComplexity is the nesting-weighted decision count: each
// decision adds 1 plus its nesting depth below the block root.
func cognitiveComplexity(n *sitter.Node, source []byte, table *langTable) int {
	total := 0
	var walk func(node *sitter.Node, nesting int)
	walk = func(node *sitter.Node, nesting int) {
		next := nesting
		if isDecision(node, source, table) {
			total += 1 + nesting
			next++
		}
		for i := 0; i < int(node.NamedChildCount()); i++ {
			walk(node.NamedChild(i), next)
		}
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		walk(n.NamedChild(i), 0)
	}
	return total
}

func isDecision(node *sitter.Node, source []byte, table *langTable) bool {
	kind := node.Type()
	if table.decisionKinds[kind] {
		return true
	}
	if table.shortCircuitKinds[kind] {
		if op := node.ChildByFieldName("operator"); op != nil {
			return shortCircuitOps[op.Content(source)]
		}
	}
	return false
}

// linesOfCode counts source lines covered by the block's byte span,
// excluding blank-only lines.
func linesOfCode(rawText string) int {
	if rawText == "" {
		return 0
	}
	count := 0
	for _, line := range strings.Split(rawText, "\n") {
		if strings.TrimSpace(line) != "" {
			count++
		}
	}
	return count
}

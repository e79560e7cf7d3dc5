// Package history implements block-level semantic version control:
// classified diffs, version creation with the breaking-change rule,
// content-addressed commits, branches with fast-forward semantics, and
// three-way merge.
package history

import (
	"sort"

	"github.com/jward/trellis/internal/store"
)

// ChangeKind classifies one aspect of a block edit.
type ChangeKind string

const (
	ChangeRenamed    ChangeKind = "renamed"
	ChangeSignature  ChangeKind = "signature_changed"
	ChangeBody       ChangeKind = "body_changed"
	ChangeModifier   ChangeKind = "modifier_changed"
	ChangeDependency ChangeKind = "dependency_changed"
)

// BlockState is the semantic surface of one block revision, the input to
// diff classification.
type BlockState struct {
	Type         string
	SemanticName string
	Parameters   []store.BlockParam
	ReturnType   string
	Modifiers    []string
	Normalized   []string
	Dependencies []string
	SemanticHash string
	SyntaxHash   string
	RawText      string
}

// Diff classifies the semantic changes between two block states. The
// result is empty when the states are semantically identical. A single
// edit may carry several classifications. The semantic hash excludes the
// name, so a pure rename is detected from the name field even though the
// hashes match.
func Diff(a, b BlockState) []ChangeKind {
	var changes []ChangeKind
	if a.SemanticName != b.SemanticName {
		changes = append(changes, ChangeRenamed)
	}
	if signatureDiffers(a, b) {
		changes = append(changes, ChangeSignature)
	}
	if !equalStrings(a.Normalized, b.Normalized) {
		changes = append(changes, ChangeBody)
	}
	if !equalSorted(a.Modifiers, b.Modifiers) {
		changes = append(changes, ChangeModifier)
	}
	if !equalSorted(a.Dependencies, b.Dependencies) {
		changes = append(changes, ChangeDependency)
	}
	return changes
}

func signatureDiffers(a, b BlockState) bool {
	if a.ReturnType != b.ReturnType {
		return true
	}
	if len(a.Parameters) != len(b.Parameters) {
		return true
	}
	for i := range a.Parameters {
		if a.Parameters[i].Kind != b.Parameters[i].Kind || a.Parameters[i].TypeExpr != b.Parameters[i].TypeExpr {
			return true
		}
	}
	return false
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// equalSorted compares two sets order-insensitively.
func equalSorted(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	return equalStrings(as, bs)
}

// StateOfBlock builds the diffable state from a persisted block.
func StateOfBlock(b *store.Block) BlockState {
	var deps []string
	if b.DependencyInfo != nil {
		if raw, ok := b.DependencyInfo["targets"].([]any); ok {
			for _, d := range raw {
				if s, ok := d.(string); ok {
					deps = append(deps, s)
				}
			}
		}
	}
	return BlockState{
		Type:         b.Type,
		SemanticName: b.SemanticName,
		Parameters:   b.Parameters,
		ReturnType:   b.ReturnType,
		Modifiers:    b.Modifiers,
		Normalized:   b.Normalized,
		Dependencies: deps,
		SemanticHash: b.SemanticHash,
		SyntaxHash:   b.SyntaxHash,
		RawText:      b.RawText,
	}
}

// ChangeKindsString joins classifications for the change_type column.
func ChangeKindsString(kinds []ChangeKind) string {
	if len(kinds) == 0 {
		return ""
	}
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	sort.Strings(out)
	result := out[0]
	for _, s := range out[1:] {
		result += "," + s
	}
	return result
}

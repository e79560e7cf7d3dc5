package history

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jward/trellis/internal/store"
)

func fnState(name string) BlockState {
	return BlockState{
		Type:         "function",
		SemanticName: name,
		Parameters:   []store.BlockParam{{Name: "a", Kind: "identifier"}, {Name: "b", Kind: "identifier"}},
		Normalized:   []string{"function_definition", "parameters", "block", "return_statement"},
	}
}

func TestDiff_SelfIdentity(t *testing.T) {
	s := fnState("add")
	assert.Empty(t, Diff(s, s))
}

func TestDiff_RenameOnly(t *testing.T) {
	a := fnState("add")
	b := fnState("total")
	assert.Equal(t, []ChangeKind{ChangeRenamed}, Diff(a, b))
}

func TestDiff_SignatureChange(t *testing.T) {
	a := fnState("add")
	b := fnState("add")
	b.Parameters = append(b.Parameters, store.BlockParam{Name: "c", Kind: "identifier"})
	assert.Equal(t, []ChangeKind{ChangeSignature}, Diff(a, b))

	c := fnState("add")
	c.ReturnType = "type_identifier"
	assert.Equal(t, []ChangeKind{ChangeSignature}, Diff(a, c))
}

func TestDiff_BodyChange(t *testing.T) {
	a := fnState("add")
	b := fnState("add")
	b.Normalized = append(b.Normalized, "if_statement")
	assert.Equal(t, []ChangeKind{ChangeBody}, Diff(a, b))
}

func TestDiff_ModifiersOrderInsensitive(t *testing.T) {
	a := fnState("add")
	a.Modifiers = []string{"async", "static"}
	b := fnState("add")
	b.Modifiers = []string{"static", "async"}
	assert.Empty(t, Diff(a, b))

	b.Modifiers = []string{"static"}
	assert.Equal(t, []ChangeKind{ChangeModifier}, Diff(a, b))
}

func TestDiff_MultipleClassifications(t *testing.T) {
	a := fnState("add")
	b := fnState("total")
	b.Parameters = b.Parameters[:1]
	b.Normalized = append(b.Normalized, "call")

	changes := Diff(a, b)
	assert.Contains(t, changes, ChangeRenamed)
	assert.Contains(t, changes, ChangeSignature)
	assert.Contains(t, changes, ChangeBody)
}

func TestDiff_DependencyChange(t *testing.T) {
	a := fnState("add")
	a.Dependencies = []string{"hash"}
	b := fnState("add")
	b.Dependencies = []string{"hash", "salt"}
	assert.Equal(t, []ChangeKind{ChangeDependency}, Diff(a, b))
}

func TestChangeKindsString(t *testing.T) {
	assert.Empty(t, ChangeKindsString(nil))
	assert.Equal(t, "body_changed,renamed",
		ChangeKindsString([]ChangeKind{ChangeRenamed, ChangeBody}), "kinds are sorted")
}

func TestComputeCommitHash_PureFunction(t *testing.T) {
	h1 := ComputeCommitHash("parent", "alice", "msg", []string{"1:renamed:1:2", "2:body_changed:1:2"})
	h2 := ComputeCommitHash("parent", "alice", "msg", []string{"2:body_changed:1:2", "1:renamed:1:2"})
	assert.Equal(t, h1, h2, "change order must not matter")
	assert.Len(t, h1, 64)

	assert.NotEqual(t, h1, ComputeCommitHash("other", "alice", "msg", []string{"1:renamed:1:2", "2:body_changed:1:2"}))
	assert.NotEqual(t, h1, ComputeCommitHash("parent", "bob", "msg", []string{"1:renamed:1:2", "2:body_changed:1:2"}))
	assert.NotEqual(t, h1, ComputeCommitHash("parent", "alice", "other", []string{"1:renamed:1:2", "2:body_changed:1:2"}))
	assert.NotEqual(t, h1, ComputeCommitHash("parent", "alice", "msg", []string{"1:renamed:1:2"}))
}

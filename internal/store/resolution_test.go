package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// twoFileFixture commits util.py (module util, defines add) and
// caller.py (an unresolved call to add and an unresolved import of util).
func twoFileFixture(t *testing.T, s *Store, mig string) (addID int64, callerMainID int64) {
	t.Helper()

	utilBatch := moduleBatch(mig, "util.py", &Block{
		Type: "function", SemanticName: "add", RawText: "def add(a, b):\n    return a + b",
		Normalized: []string{"function_definition"}, SemanticHash: "addsem", SyntaxHash: "addsyn",
	})
	utilBatch.Blocks[0].SemanticName = "util" // modules are named after their file stem
	_, utilIDs, err := s.CommitContainer(utilBatch)
	require.NoError(t, err)

	callerBatch := moduleBatch(mig, "caller.py", &Block{
		Type: "function", SemanticName: "main", RawText: "def main():\n    return add(1, 2)",
		Normalized: []string{"function_definition"}, SemanticHash: "mainsem", SyntaxHash: "mainsyn",
	})
	callerBatch.Relationships = []BatchRelationship{
		{SourceIndex: 1, TargetIndex: -1, TargetName: "add", Type: "calls", Unresolved: true},
		{SourceIndex: 0, TargetIndex: -1, TargetName: "util", Type: "imports", Unresolved: true},
	}
	_, callerIDs, err := s.CommitContainer(callerBatch)
	require.NoError(t, err)

	return utilIDs[1], callerIDs[1]
}

func TestResolveMigration_LinksCrossFileTargets(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	mig := newTestMigration(t, s)
	addID, mainID := twoFileFixture(t, s, mig)

	resolved, err := s.ResolveMigration(mig)
	require.NoError(t, err)
	assert.Equal(t, 2, resolved)

	inbound, err := s.RelationshipsByTarget(addID)
	require.NoError(t, err)
	require.Len(t, inbound, 1)
	assert.Equal(t, "calls", inbound[0].Type)
	assert.Equal(t, mainID, inbound[0].SourceBlockID)
	assert.False(t, inbound[0].Unresolved)
	assert.Equal(t, "post_ingest", inbound[0].Metadata["resolved_by"])

	pending, err := s.UnresolvedRelationships()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestResolveMigration_UnmatchedStaysUnresolved(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	mig := newTestMigration(t, s)

	batch := moduleBatch(mig, "solo.py", &Block{
		Type: "function", SemanticName: "f", RawText: "def f():\n    ghost()",
		Normalized: []string{"function_definition"}, SemanticHash: "h", SyntaxHash: "s",
	})
	batch.Relationships = []BatchRelationship{
		{SourceIndex: 1, TargetIndex: -1, TargetName: "ghost", Type: "calls", Unresolved: true},
	}
	_, _, err := s.CommitContainer(batch)
	require.NoError(t, err)

	resolved, err := s.ResolveMigration(mig)
	require.NoError(t, err)
	assert.Zero(t, resolved)

	pending, err := s.UnresolvedRelationships()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "ghost", pending[0].TargetName)
}

func TestResolveMigration_DoesNotResolveWithinSourceContainer(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	mig := newTestMigration(t, s)

	// Same-file resolution is the extractor's job; the pass only links
	// across containers.
	batch := moduleBatch(mig, "self.py", &Block{
		Type: "function", SemanticName: "loop", RawText: "def loop():\n    loop()",
		Normalized: []string{"function_definition"}, SemanticHash: "h", SyntaxHash: "s",
	})
	batch.Relationships = []BatchRelationship{
		{SourceIndex: 1, TargetIndex: -1, TargetName: "loop", Type: "calls", Unresolved: true},
	}
	_, _, err := s.CommitContainer(batch)
	require.NoError(t, err)

	resolved, err := s.ResolveMigration(mig)
	require.NoError(t, err)
	assert.Zero(t, resolved)
}

func TestSearchBlocks_MatchesNameAndBody(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	mig := newTestMigration(t, s)

	batch := moduleBatch(mig, "search.py",
		&Block{Type: "function", SemanticName: "parse_config", RawText: "def parse_config():\n    pass",
			Normalized: []string{"n"}, SemanticHash: "h1", SyntaxHash: "s1"},
		&Block{Type: "function", SemanticName: "helper", RawText: "def helper():\n    parse(x)",
			Normalized: []string{"n"}, SemanticHash: "h2", SyntaxHash: "s2"},
		&Block{Type: "function", SemanticName: "unrelated", RawText: "def unrelated():\n    pass",
			Normalized: []string{"n"}, SemanticHash: "h3", SyntaxHash: "s3"},
	)
	_, _, err := s.CommitContainer(batch)
	require.NoError(t, err)

	hits, err := s.SearchBlocks("parse", SearchFilter{}, 10, 0)
	require.NoError(t, err)
	require.NotEmpty(t, hits)

	var names []string
	for _, h := range hits {
		names = append(names, h.Block.SemanticName)
	}
	assert.Contains(t, names, "parse_config")
	assert.NotContains(t, names, "unrelated")
}

func TestSearchBlocks_FiltersByType(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	mig := newTestMigration(t, s)

	batch := moduleBatch(mig, "mix.py",
		&Block{Type: "function", SemanticName: "parse", RawText: "def parse(): pass",
			Normalized: []string{"n"}, SemanticHash: "h1", SyntaxHash: "s1"},
		&Block{Type: "class", SemanticName: "Parser", RawText: "class Parser: pass",
			Normalized: []string{"n"}, SemanticHash: "h2", SyntaxHash: "s2"},
	)
	_, _, err := s.CommitContainer(batch)
	require.NoError(t, err)

	hits, err := s.SearchBlocks("pars", SearchFilter{BlockType: "class"}, 10, 0)
	require.NoError(t, err)
	for _, h := range hits {
		assert.Equal(t, "class", h.Block.Type)
	}
}

package history

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/trellis/internal/extract"
	"github.com/jward/trellis/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.NewStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return s
}

// seedBlock commits one container holding a single function block and
// returns the function's block id.
func seedBlock(t *testing.T, s *store.Store, name string) int64 {
	t.Helper()
	mig := uuid.NewString()
	fnShape := []string{"function_definition", "parameters", "block"}
	require.NoError(t, s.CreateIngestMigration(&store.IngestMigration{
		ID: mig, RepoName: "repo", Status: store.StatusInProgress,
	}))

	batch := &store.ContainerBatch{
		Container: &store.Container{
			MigrationID: mig, Name: name + ".py", Language: "python",
			OriginalPath: name + ".py", OriginalHash: "hash-" + name,
		},
		Blocks: []*store.Block{
			{Type: "module", SemanticName: name, Normalized: []string{"module"},
				RawText: "", SemanticHash: "m-" + name, SyntaxHash: "ms-" + name, SourceLanguage: "python"},
			{Type: "function", SemanticName: name, DepthLevel: 1, Position: 1, HierarchicalIdx: 1,
				RawText:      "def " + name + "():\n    pass",
				Normalized:   fnShape,
				SemanticHash: extract.SemanticHash(extract.BlockFunction, fnShape, nil, "", nil),
				SyntaxHash:   "fs-" + name, SourceLanguage: "python"},
		},
		Parents: []int{-1, 0},
	}
	_, ids, err := s.CommitContainer(batch)
	require.NoError(t, err)
	return ids[1]
}

func change(blockID int64, kind string, before, after int64) *store.CommitChange {
	ch := &store.CommitChange{BlockID: blockID, ChangeKind: kind}
	if before > 0 {
		ch.BeforeVersion = &before
	}
	if after > 0 {
		ch.AfterVersion = &after
	}
	return ch
}

func TestCreateVersion_RenameIsNotBreakingWithoutCallers(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	blockID := seedBlock(t, s, "add")

	block, err := s.BlockByID(blockID)
	require.NoError(t, err)

	next := StateOfBlock(block)
	next.SemanticName = "total"

	version, changes, err := NewVersioner(s).CreateVersion(blockID, next, VersionOptions{Description: "rename"})
	require.NoError(t, err)
	assert.Equal(t, []ChangeKind{ChangeRenamed}, changes)
	assert.Equal(t, 2, version.VersionNumber)
	assert.False(t, version.Breaking, "no inbound callers, so a rename is not breaking")

	prev, err := s.BlockVersionByID(*version.ParentVersion)
	require.NoError(t, err)
	assert.Equal(t, prev.SemanticHash, version.SemanticHash, "the semantic hash ignores the name")
	assert.Equal(t, prev.SyntaxHash, version.SyntaxHash, "identical raw text keeps the syntax hash")
}

func TestCreateVersion_RenameWithCallersIsBreaking(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	addID := seedBlock(t, s, "add")
	mainID := seedBlock(t, s, "main")

	_, err := s.InsertRelationship(&store.Relationship{
		SourceBlockID: mainID, TargetBlockID: &addID, Type: "calls", Strength: 1,
	})
	require.NoError(t, err)

	block, err := s.BlockByID(addID)
	require.NoError(t, err)
	next := StateOfBlock(block)
	next.SemanticName = "total"

	version, changes, err := NewVersioner(s).CreateVersion(addID, next, VersionOptions{})
	require.NoError(t, err)
	assert.Contains(t, changes, ChangeRenamed)
	assert.True(t, version.Breaking, "an inbound calls edge makes the rename breaking")
}

func TestCreateVersion_BodyChangeIsNeverBreaking(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	addID := seedBlock(t, s, "add")
	mainID := seedBlock(t, s, "main")
	_, err := s.InsertRelationship(&store.Relationship{
		SourceBlockID: mainID, TargetBlockID: &addID, Type: "calls", Strength: 1,
	})
	require.NoError(t, err)

	block, err := s.BlockByID(addID)
	require.NoError(t, err)
	next := StateOfBlock(block)
	next.Normalized = append(next.Normalized, "if_statement")
	next.RawText = "def add():\n    if x:\n        pass"

	version, changes, err := NewVersioner(s).CreateVersion(addID, next, VersionOptions{})
	require.NoError(t, err)
	assert.Equal(t, []ChangeKind{ChangeBody}, changes)
	assert.False(t, version.Breaking)
}

func TestCreateVersion_NoChangeReturnsLatest(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	blockID := seedBlock(t, s, "same")

	block, err := s.BlockByID(blockID)
	require.NoError(t, err)

	version, changes, err := NewVersioner(s).CreateVersion(blockID, StateOfBlock(block), VersionOptions{})
	require.NoError(t, err)
	assert.Empty(t, changes)
	assert.Equal(t, 1, version.VersionNumber, "identical state produces no new version")
}

func TestCreateVersion_RecordsLLMAttribution(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	blockID := seedBlock(t, s, "gen")

	block, err := s.BlockByID(blockID)
	require.NoError(t, err)
	next := StateOfBlock(block)
	next.Normalized = append(next.Normalized, "call")

	version, _, err := NewVersioner(s).CreateVersion(blockID, next, VersionOptions{
		LLM: &store.LLMAttribution{Provider: "acme", Model: "m-1", Temperature: 0.2},
	})
	require.NoError(t, err)

	loaded, err := s.BlockVersionByID(version.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded.LLM)
	assert.Equal(t, "acme", loaded.LLM.Provider)
	assert.Equal(t, "m-1", loaded.LLM.Model)
}

func TestCommit_AdvancesBranchHead(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	blockID := seedBlock(t, s, "f")
	committer := NewCommitter(s)

	c1, err := committer.Commit("repo", "main", "alice", "first", []*store.CommitChange{
		change(blockID, "body_changed", 0, 1),
	})
	require.NoError(t, err)
	assert.Empty(t, c1.ParentHash)

	c2, err := committer.Commit("repo", "main", "alice", "second", []*store.CommitChange{
		change(blockID, "body_changed", 1, 2),
	})
	require.NoError(t, err)
	assert.Equal(t, c1.Hash, c2.ParentHash)

	branch, err := s.BranchByName("repo", "main")
	require.NoError(t, err)
	assert.Equal(t, c2.Hash, branch.HeadCommit)

	chain, err := committer.AncestorChain(c2.Hash)
	require.NoError(t, err)
	assert.Equal(t, []string{c2.Hash, c1.Hash}, chain)
}

func TestCommit_EmptyChangeSetRejected(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	_, err := NewCommitter(s).Commit("repo", "main", "alice", "empty", nil)
	require.Error(t, err)
}

func TestFastForward_RequiresDescendant(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	blockID := seedBlock(t, s, "f")
	committer := NewCommitter(s)
	brancher := NewBrancher(s)

	c1, err := committer.Commit("repo", "main", "alice", "first", []*store.CommitChange{
		change(blockID, "body_changed", 0, 1),
	})
	require.NoError(t, err)

	// Fork a feature branch at c1 and commit there.
	_, err = brancher.CreateBranch("repo", "feature", c1.Hash)
	require.NoError(t, err)
	c2, err := committer.Commit("repo", "feature", "alice", "work", []*store.CommitChange{
		change(blockID, "body_changed", 1, 2),
	})
	require.NoError(t, err)

	// main -> c2 is a fast-forward (c1 is an ancestor of c2).
	require.NoError(t, brancher.FastForward("repo", "main", c2.Hash))
	branch, err := s.BranchByName("repo", "main")
	require.NoError(t, err)
	assert.Equal(t, c2.Hash, branch.HeadCommit)

	// Moving back to an unrelated commit is not a fast-forward.
	other, err := committer.Commit("repo", "sidetrack", "bob", "unrelated", []*store.CommitChange{
		change(blockID, "renamed", 1, 2),
	})
	require.NoError(t, err)
	assert.Error(t, brancher.FastForward("repo", "main", other.Hash))
}

func TestMergeBlock_OneSideWins(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	blockID := seedBlock(t, s, "f")

	base, err := s.LatestBlockVersion(blockID)
	require.NoError(t, err)
	left := &store.BlockVersion{BlockID: blockID, SemanticHash: "changed", SyntaxHash: "x", ChangeType: "body_changed"}
	_, err = s.InsertBlockVersion(left)
	require.NoError(t, err)

	merger := NewMerger(s)
	outcome, err := merger.MergeBlock(blockID, base, left, base)
	require.NoError(t, err)
	require.NotNil(t, outcome.Winner)
	assert.Equal(t, left.ID, outcome.Winner.ID, "the only changed side wins")
	assert.Nil(t, outcome.Conflict)
}

func TestMergeBlock_IdenticalChangesAcceptedOnce(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	blockID := seedBlock(t, s, "f")

	base, err := s.LatestBlockVersion(blockID)
	require.NoError(t, err)
	left := &store.BlockVersion{BlockID: blockID, SemanticHash: "same-change", SyntaxHash: "x"}
	_, err = s.InsertBlockVersion(left)
	require.NoError(t, err)
	right := &store.BlockVersion{BlockID: blockID, SemanticHash: "same-change", SyntaxHash: "y"}
	_, err = s.InsertBlockVersion(right)
	require.NoError(t, err)

	outcome, err := NewMerger(s).MergeBlock(blockID, base, left, right)
	require.NoError(t, err)
	require.NotNil(t, outcome.Winner)
	assert.Equal(t, "same-change", outcome.Winner.SemanticHash)
	assert.Nil(t, outcome.Conflict)
}

func TestMergeBlock_ConflictRecorded(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	blockID := seedBlock(t, s, "f")

	base, err := s.LatestBlockVersion(blockID)
	require.NoError(t, err)
	left := &store.BlockVersion{BlockID: blockID, SemanticHash: "left-change", SyntaxHash: "x"}
	_, err = s.InsertBlockVersion(left)
	require.NoError(t, err)
	right := &store.BlockVersion{BlockID: blockID, SemanticHash: "right-change", SyntaxHash: "y"}
	_, err = s.InsertBlockVersion(right)
	require.NoError(t, err)

	merger := NewMerger(s)
	outcome, err := merger.MergeBlock(blockID, base, left, right)
	require.NoError(t, err)
	assert.Nil(t, outcome.Winner)
	require.NotNil(t, outcome.Conflict)
	assert.Equal(t, left.ID, outcome.Conflict.LeftVersion)
	assert.Equal(t, right.ID, outcome.Conflict.RightVersion)

	open, err := s.OpenMergeConflicts()
	require.NoError(t, err)
	require.Len(t, open, 1)

	// External resolution is recorded as a version citing both parents
	// through the conflict row.
	resolution := &store.BlockVersion{BlockID: blockID, SemanticHash: "resolved", SyntaxHash: "z"}
	_, err = s.InsertBlockVersion(resolution)
	require.NoError(t, err)
	require.NoError(t, merger.ResolveConflict(outcome.Conflict.ID, resolution.ID))

	open, err = s.OpenMergeConflicts()
	require.NoError(t, err)
	assert.Empty(t, open)
}

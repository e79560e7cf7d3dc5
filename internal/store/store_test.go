package store

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestMigration(t *testing.T, s *Store) string {
	t.Helper()
	id := uuid.NewString()
	require.NoError(t, s.CreateIngestMigration(&IngestMigration{
		ID:       id,
		RepoName: "testrepo",
		Status:   StatusInProgress,
	}))
	return id
}

// moduleBatch builds a minimal valid batch: one module root plus the
// given child blocks.
func moduleBatch(migrationID, path string, children ...*Block) *ContainerBatch {
	blocks := []*Block{{
		Type: "module", SemanticName: "mod", RawText: "", Normalized: []string{"module"},
		Position: 0, HierarchicalIdx: 0, SemanticHash: "mh", SyntaxHash: "sh",
		SourceLanguage: "python",
	}}
	parents := []int{-1}
	for i, c := range children {
		c.DepthLevel = 1
		c.Position = i + 1
		c.PositionInParent = i
		c.HierarchicalIdx = i + 1
		if c.SourceLanguage == "" {
			c.SourceLanguage = "python"
		}
		blocks = append(blocks, c)
		parents = append(parents, 0)
	}
	return &ContainerBatch{
		Container: &Container{
			MigrationID:  migrationID,
			Name:         filepath.Base(path),
			Language:     "python",
			OriginalPath: path,
			OriginalHash: "deadbeef",
		},
		Blocks:  blocks,
		Parents: parents,
	}
}

func TestMigrate_AllTablesExist(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	expectedTables := []string{
		"metadata", "ingest_migrations", "containers", "blocks",
		"block_relationships", "block_versions", "diagnostics",
		"branches", "commits", "commit_changes", "merge_conflicts",
		"llm_interactions", "schema_migrations",
	}
	for _, table := range expectedTables {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.Migrate())
}

func TestMigrate_RecordsVersions(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	rows, err := s.db.Query("SELECT version, checksum FROM schema_migrations ORDER BY version")
	require.NoError(t, err)
	defer rows.Close()

	count := 0
	for rows.Next() {
		var version, checksum string
		require.NoError(t, rows.Scan(&version, &checksum))
		assert.Len(t, checksum, 64)
		count++
	}
	assert.Equal(t, len(schemaMigrations), count)
}

func TestMetadata_RoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	v, err := s.GetMetadata("missing")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, s.SetMetadata("key", "one"))
	require.NoError(t, s.SetMetadata("key", "two"))
	v, err = s.GetMetadata("key")
	require.NoError(t, err)
	assert.Equal(t, "two", v)
}

func TestCommitContainer_RoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	mig := newTestMigration(t, s)

	batch := moduleBatch(mig, "util.py", &Block{
		Type: "function", SemanticName: "add",
		RawText:      "def add(a, b):\n    return a + b",
		Normalized:   []string{"function_definition", "parameters"},
		Parameters:   []BlockParam{{Name: "a", Kind: "identifier"}, {Name: "b", Kind: "identifier"}},
		Modifiers:    []string{},
		SemanticHash: "semhash", SyntaxHash: "synhash",
		Cyclomatic: 1, LinesOfCode: 2,
	})
	batch.Relationships = []BatchRelationship{
		{SourceIndex: 0, TargetIndex: 1, Type: "contains", Strength: 1},
	}

	containerID, blockIDs, err := s.CommitContainer(batch)
	require.NoError(t, err)
	require.Len(t, blockIDs, 2)

	container, err := s.ContainerByID(containerID)
	require.NoError(t, err)
	require.NotNil(t, container)
	assert.Equal(t, "util.py", container.OriginalPath)
	assert.Equal(t, 1, container.Version)

	blocks, err := s.BlocksByContainer(containerID)
	require.NoError(t, err)
	require.Len(t, blocks, 2)

	fn := blocks[1]
	assert.Equal(t, "add", fn.SemanticName)
	assert.Equal(t, []string{"function_definition", "parameters"}, fn.Normalized)
	require.Len(t, fn.Parameters, 2)
	assert.Equal(t, "a", fn.Parameters[0].Name)
	require.NotNil(t, fn.ParentBlockID)
	assert.Equal(t, blocks[0].ID, *fn.ParentBlockID)

	// Initial version for every block.
	v, err := s.LatestBlockVersion(fn.ID)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, 1, v.VersionNumber)
	assert.Equal(t, "semhash", v.SemanticHash)
	assert.Nil(t, v.ParentVersion)

	rels, err := s.RelationshipsBySource(blocks[0].ID)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, "contains", rels[0].Type)
}

func TestCommitContainer_RejectsDepthMismatch(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	mig := newTestMigration(t, s)

	batch := moduleBatch(mig, "bad.py", &Block{
		Type: "function", SemanticName: "f", RawText: "def f(): pass",
		Normalized: []string{"function_definition"}, SemanticHash: "a", SyntaxHash: "b",
	})
	batch.Blocks[1].DepthLevel = 3 // parent is depth 0

	_, _, err := s.CommitContainer(batch)
	require.Error(t, err)

	// Nothing was committed.
	containers, err := s.ContainersByMigration(mig)
	require.NoError(t, err)
	assert.Empty(t, containers)
}

func TestCommitContainer_RejectsDuplicateSiblingPositions(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	mig := newTestMigration(t, s)

	batch := moduleBatch(mig, "bad.py",
		&Block{Type: "function", SemanticName: "a", RawText: "x", Normalized: []string{"n"}, SemanticHash: "h1", SyntaxHash: "h2"},
		&Block{Type: "function", SemanticName: "b", RawText: "y", Normalized: []string{"n"}, SemanticHash: "h3", SyntaxHash: "h4"},
	)
	batch.Blocks[2].PositionInParent = 0 // collides with sibling

	_, _, err := s.CommitContainer(batch)
	require.Error(t, err)
}

func TestCommitContainer_UniquePathPerMigration(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	mig := newTestMigration(t, s)

	_, _, err := s.CommitContainer(moduleBatch(mig, "dup.py"))
	require.NoError(t, err)
	_, _, err = s.CommitContainer(moduleBatch(mig, "dup.py"))
	require.Error(t, err, "same (migration, name, path) must violate the unique constraint")
}

func TestDeleteMigration_Cascades(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	mig := newTestMigration(t, s)

	batch := moduleBatch(mig, "util.py", &Block{
		Type: "function", SemanticName: "f", RawText: "def f(): pass",
		Normalized: []string{"n"}, SemanticHash: "h", SyntaxHash: "h2",
	})
	containerID, blockIDs, err := s.CommitContainer(batch)
	require.NoError(t, err)

	require.NoError(t, s.DeleteIngestMigration(mig))

	container, err := s.ContainerByID(containerID)
	require.NoError(t, err)
	assert.Nil(t, container, "containers cascade with their migration")

	block, err := s.BlockByID(blockIDs[0])
	require.NoError(t, err)
	assert.Nil(t, block, "blocks cascade with their container")
}

func TestBlockVersion_MonotonicNumbers(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	mig := newTestMigration(t, s)

	_, blockIDs, err := s.CommitContainer(moduleBatch(mig, "v.py", &Block{
		Type: "function", SemanticName: "f", RawText: "def f(): pass",
		Normalized: []string{"n"}, SemanticHash: "h1", SyntaxHash: "s1",
	}))
	require.NoError(t, err)
	blockID := blockIDs[1]

	v2 := &BlockVersion{BlockID: blockID, SemanticHash: "h2", SyntaxHash: "s2", ChangeType: "body_changed"}
	_, err = s.InsertBlockVersion(v2)
	require.NoError(t, err)
	assert.Equal(t, 2, v2.VersionNumber)
	require.NotNil(t, v2.ParentVersion, "version 2 chains to version 1")

	v1, err := s.BlockVersionByID(*v2.ParentVersion)
	require.NoError(t, err)
	assert.Equal(t, 1, v1.VersionNumber)
	assert.Equal(t, blockID, v1.BlockID)

	// Out-of-order numbers are rejected.
	_, err = s.InsertBlockVersion(&BlockVersion{BlockID: blockID, VersionNumber: 7, SemanticHash: "x", SyntaxHash: "y"})
	require.Error(t, err)
}

func TestDiagnostics_RoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	mig := newTestMigration(t, s)

	require.NoError(t, s.AddDiagnostic(&Diagnostic{
		MigrationID: mig, Path: "big.bin", Kind: "input/too_large", Message: "too big",
	}))
	diags, err := s.DiagnosticsByMigration(mig)
	require.NoError(t, err)
	require.Len(t, diags, 1)
	assert.Equal(t, "input/too_large", diags[0].Kind)
}

func TestMigrationStatus_Lifecycle(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	mig := newTestMigration(t, s)

	stats := &MigrationStats{Files: 3, Blocks: 12, FilesProcessed: 3}
	require.NoError(t, s.UpdateMigrationStatus(mig, StatusCompleted, nil, stats))

	loaded, err := s.IngestMigrationByID(mig)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, StatusCompleted, loaded.Status)
	assert.Equal(t, 3, loaded.Stats.Files)
	assert.Equal(t, 12, loaded.Stats.Blocks)
	assert.False(t, loaded.FinishedAt.IsZero())
}

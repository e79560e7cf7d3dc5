package trellis

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/trellis/internal/extract"
	"github.com/jward/trellis/internal/history"
	"github.com/jward/trellis/internal/store"
)

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	e, err := New(filepath.Join(t.TempDir(), "trellis.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func writeRepo(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for path, content := range files {
		full := filepath.Join(root, path)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	return root
}

func ingestRepo(t *testing.T, e *Engine, files map[string]string) string {
	t.Helper()
	root := writeRepo(t, files)
	migrationID, err := e.Ingest(context.Background(), Source{Path: root}, IngestOptions{IncludeTests: true})
	require.NoError(t, err)
	return migrationID
}

func findBlock(t *testing.T, e *Engine, migrationID, path, name string) *store.Block {
	t.Helper()
	container, err := e.Store().ContainerByPath(migrationID, path)
	require.NoError(t, err)
	require.NotNil(t, container, "container %s", path)
	blocks, err := e.Store().BlocksByContainer(container.ID)
	require.NoError(t, err)
	for _, b := range blocks {
		if b.SemanticName == name && b.Type != "module" {
			return b
		}
	}
	t.Fatalf("block %s not found in %s", name, path)
	return nil
}

func TestIngest_SingleFunction(t *testing.T) {
	e := newTestEngine(t)
	mig := ingestRepo(t, e, map[string]string{
		"util.py": "def add(a, b):\n    return a + b\n",
	})

	migration, err := e.Store().IngestMigrationByID(mig)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, migration.Status)
	assert.Equal(t, 1, migration.Stats.Files)

	container, err := e.Store().ContainerByPath(mig, "util.py")
	require.NoError(t, err)
	require.NotNil(t, container)
	assert.Equal(t, "python", container.Language)

	blocks, err := e.Store().BlocksByContainer(container.ID)
	require.NoError(t, err)
	require.Len(t, blocks, 2, "module root plus the function")

	fn := findBlock(t, e, mig, "util.py", "add")
	assert.Equal(t, "function", fn.Type)
	assert.Equal(t, 1, fn.Cyclomatic)
	assert.Equal(t, 2, fn.LinesOfCode)
	assert.Equal(t, 0, fn.PositionInParent)

	rels, err := e.Store().RelationshipsBySource(blocks[0].ID)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, "contains", rels[0].Type)
}

func TestIngest_WhitespaceOnlyEditKeepsSemanticHash(t *testing.T) {
	e := newTestEngine(t)
	migA := ingestRepo(t, e, map[string]string{"util.py": "def add(a, b):\n    return a + b\n"})
	migB := ingestRepo(t, e, map[string]string{"util.py": "def add(a, b):\n    # sum them\n    return a + b\n"})

	fnA := findBlock(t, e, migA, "util.py", "add")
	fnB := findBlock(t, e, migB, "util.py", "add")
	assert.Equal(t, fnA.SemanticHash, fnB.SemanticHash)
	assert.NotEqual(t, fnA.SyntaxHash, fnB.SyntaxHash)
}

func TestIngest_ParseIdempotence(t *testing.T) {
	files := map[string]string{
		"app.py": "import os\n\ndef main():\n    print(os.getcwd())\n",
	}
	e := newTestEngine(t)
	migA := ingestRepo(t, e, files)
	migB := ingestRepo(t, e, files)

	key := func(mig string) [][3]any {
		container, err := e.Store().ContainerByPath(mig, "app.py")
		require.NoError(t, err)
		blocks, err := e.Store().BlocksByContainer(container.ID)
		require.NoError(t, err)
		var out [][3]any
		for _, b := range blocks {
			out = append(out, [3]any{b.SemanticName, b.SemanticHash, b.Position})
		}
		return out
	}
	assert.Equal(t, key(migA), key(migB))
}

func TestIngest_RenameWithCallerIsBreaking(t *testing.T) {
	e := newTestEngine(t)
	mig := ingestRepo(t, e, map[string]string{
		"util.py":   "def add(a, b):\n    return a + b\n",
		"caller.py": "from util import add\n\ndef main():\n    return add(1, 2)\n",
	})

	add := findBlock(t, e, mig, "util.py", "add")
	main := findBlock(t, e, mig, "caller.py", "main")

	// The resolution pass linked the cross-file call.
	inbound, err := e.Store().RelationshipsByTarget(add.ID)
	require.NoError(t, err)
	var callEdge *store.Relationship
	for _, r := range inbound {
		if r.Type == "calls" {
			callEdge = r
		}
	}
	require.NotNil(t, callEdge, "calls edge from main to add must exist post-ingest")
	assert.Equal(t, main.ID, callEdge.SourceBlockID)
	assert.False(t, callEdge.Unresolved)

	// Rename add -> total: renamed classification, breaking.
	next := history.StateOfBlock(add)
	next.SemanticName = "total"
	version, changes, err := e.Versioner().CreateVersion(add.ID, next, history.VersionOptions{})
	require.NoError(t, err)
	assert.Equal(t, []history.ChangeKind{history.ChangeRenamed}, changes)
	assert.True(t, version.Breaking)

	prev, err := e.Store().BlockVersionByID(*version.ParentVersion)
	require.NoError(t, err)
	assert.Equal(t, prev.SemanticHash, version.SemanticHash)
}

func TestIngest_RenameWithoutCallerNotBreaking(t *testing.T) {
	e := newTestEngine(t)
	mig := ingestRepo(t, e, map[string]string{
		"util.py": "def add(a, b):\n    return a + b\n",
	})

	add := findBlock(t, e, mig, "util.py", "add")
	next := history.StateOfBlock(add)
	next.SemanticName = "total"

	version, changes, err := e.Versioner().CreateVersion(add.ID, next, history.VersionOptions{})
	require.NoError(t, err)
	assert.Equal(t, []history.ChangeKind{history.ChangeRenamed}, changes)
	assert.False(t, version.Breaking)
}

func TestIngest_CyclicImports(t *testing.T) {
	e := newTestEngine(t)
	mig := ingestRepo(t, e, map[string]string{
		"a.py": "import b\n",
		"b.py": "import a\n",
	})

	containerA, err := e.Store().ContainerByPath(mig, "a.py")
	require.NoError(t, err)
	blocksA, err := e.Store().BlocksByContainer(containerA.ID)
	require.NoError(t, err)
	moduleA := blocksA[0]

	graph, err := e.Query().DependencyGraph(moduleA.ID, -1)
	require.NoError(t, err)
	require.NotNil(t, graph)

	assert.Len(t, graph.Nodes, 2, "both modules are reachable")
	require.NotEmpty(t, graph.Cycles, "the a->b->a cycle must be reported")
	cycle := graph.Cycles[0]
	assert.Equal(t, cycle[0], cycle[len(cycle)-1], "cycle paths close on their first element")
	assert.Len(t, cycle, 3)
}

func TestIngest_TestCoverageDetection(t *testing.T) {
	files := map[string]string{
		"impl.py":      "def hash_pwd(x):\n    return x\n",
		"test_impl.py": "def test_hash_pwd():\n    hash_pwd('x')\n",
	}

	// Default test config: the tests edge is created and hash_pwd is
	// covered.
	e := newTestEngine(t)
	mig := ingestRepo(t, e, files)
	hashPwd := findBlock(t, e, mig, "impl.py", "hash_pwd")

	inbound, err := e.Store().RelationshipsByTarget(hashPwd.ID)
	require.NoError(t, err)
	hasTests := false
	for _, r := range inbound {
		if r.Type == "tests" {
			hasTests = true
		}
	}
	assert.True(t, hasTests, "tests edge resolved cross-file")

	matches, err := e.Query().FindPattern("untested_function")
	require.NoError(t, err)
	for _, m := range matches {
		assert.NotEqual(t, hashPwd.ID, m.Block.ID, "covered function must not be reported untested")
	}

	// Disabled test config: no tests edges, hash_pwd is untested.
	e2 := newTestEngine(t, WithTestConfig(extract.TestConfig{}))
	mig2 := ingestRepo(t, e2, files)
	hashPwd2 := findBlock(t, e2, mig2, "impl.py", "hash_pwd")

	matches2, err := e2.Query().FindPattern("untested_function")
	require.NoError(t, err)
	found := false
	for _, m := range matches2 {
		if m.Block.ID == hashPwd2.ID {
			found = true
		}
	}
	assert.True(t, found, "with detection disabled hash_pwd is untested")
}

func TestIngest_PolyglotHashesDiffer(t *testing.T) {
	e := newTestEngine(t)
	mig := ingestRepo(t, e, map[string]string{
		"add.py": "def add(a, b):\n    return a + b\n",
		"add.rs": "fn add(a: i32, b: i32) -> i32 { a + b }\n",
	})

	py := findBlock(t, e, mig, "add.py", "add")
	rs := findBlock(t, e, mig, "add.rs", "add")

	assert.Equal(t, "function", py.Type)
	assert.Equal(t, "function", rs.Type)
	assert.Len(t, py.Parameters, 2)
	assert.Len(t, rs.Parameters, 2)
	assert.NotEqual(t, py.SemanticHash, rs.SemanticHash, "hashes are not portable across languages")
}

func TestIngest_OversizedFileSkipped(t *testing.T) {
	e := newTestEngine(t)
	root := writeRepo(t, map[string]string{
		"ok.py":  "def f():\n    pass\n",
		"big.py": "# " + string(make([]byte, 2048)) + "\n",
	})

	mig, err := e.Ingest(context.Background(), Source{Path: root}, IngestOptions{
		IncludeTests: true,
		MaxFileBytes: 1024,
	})
	require.NoError(t, err)

	migration, err := e.Store().IngestMigrationByID(mig)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, migration.Status)
	assert.Equal(t, 1, migration.Stats.Files, "only the small file is ingested")
	assert.Equal(t, 1, migration.Stats.SkippedByReason["input/too_large"])

	diags, err := e.Store().DiagnosticsByMigration(mig)
	require.NoError(t, err)
	require.Len(t, diags, 1)
	assert.Equal(t, "input/too_large", diags[0].Kind)
	assert.Equal(t, "big.py", diags[0].Path)
}

func TestIngest_TotalBudgetExceededFailsCleanly(t *testing.T) {
	e := newTestEngine(t)
	root := writeRepo(t, map[string]string{
		"a.py": "x = 1\n",
		"b.py": "y = 2\n",
	})

	mig, err := e.Ingest(context.Background(), Source{Path: root}, IngestOptions{
		IncludeTests:  true,
		MaxTotalBytes: 3,
	})
	require.Error(t, err)

	migration, lookupErr := e.Store().IngestMigrationByID(mig)
	require.NoError(t, lookupErr)
	assert.Equal(t, store.StatusFailed, migration.Status)
	assert.NotEmpty(t, migration.ErrorMessages)
}

func TestIngest_CancelledMigration(t *testing.T) {
	e := newTestEngine(t)
	root := writeRepo(t, map[string]string{
		"a.py": "def a():\n    pass\n",
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mig, err := e.Ingest(ctx, Source{Path: root}, IngestOptions{IncludeTests: true})
	require.Error(t, err)

	migration, lookupErr := e.Store().IngestMigrationByID(mig)
	require.NoError(t, lookupErr)
	assert.Equal(t, store.StatusFailed, migration.Status)
	assert.Contains(t, migration.ErrorMessages, "cancelled")
}

func TestIngest_EmptyFileYieldsModuleBlock(t *testing.T) {
	e := newTestEngine(t)
	mig := ingestRepo(t, e, map[string]string{"empty.py": ""})

	container, err := e.Store().ContainerByPath(mig, "empty.py")
	require.NoError(t, err)
	blocks, err := e.Store().BlocksByContainer(container.ID)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, "module", blocks[0].Type)

	rels, err := e.Store().RelationshipsBySource(blocks[0].ID)
	require.NoError(t, err)
	assert.Empty(t, rels)
}

func TestIngest_UnrecognizedExtensionIgnored(t *testing.T) {
	e := newTestEngine(t)
	mig := ingestRepo(t, e, map[string]string{
		"data.bin": "\x00\x01",
		"ok.py":    "x = 1\n",
	})

	migration, err := e.Store().IngestMigrationByID(mig)
	require.NoError(t, err)
	assert.Equal(t, 1, migration.Stats.Files)
}

func TestIngest_MalformedFilePartiallyExtracted(t *testing.T) {
	e := newTestEngine(t)
	mig := ingestRepo(t, e, map[string]string{
		"broken.py": "def ok():\n    return 1\n\ndef broken(:\n",
	})

	migration, err := e.Store().IngestMigrationByID(mig)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, migration.Status)

	ok := findBlock(t, e, mig, "broken.py", "ok")
	assert.Equal(t, "function", ok.Type)

	diags, err := e.Store().DiagnosticsByMigration(mig)
	require.NoError(t, err)
	kinds := make(map[string]bool)
	for _, d := range diags {
		kinds[d.Kind] = true
	}
	assert.True(t, kinds["parse/partial"], "damaged regions surface as a parse/partial diagnostic")
}

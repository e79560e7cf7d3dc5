package trellis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/trellis/internal/extract"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "trellis.db")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "trellis.db", cfg.DatabaseURL)
	assert.Equal(t, 30*time.Second, cfg.ParseTimeout)
	assert.Equal(t, int64(10<<20), cfg.MaxFileBytes)
	assert.Equal(t, int64(500<<20), cfg.MaxTotalBytes)
	assert.Positive(t, cfg.WorkerThreads)
	assert.Empty(t, cfg.CacheURL)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "sqlite:///tmp/engine.db")
	t.Setenv("WORKER_THREADS", "3")
	t.Setenv("PARSE_TIMEOUT_MS", "5000")
	t.Setenv("MAX_FILE_BYTES", "1024")
	t.Setenv("CACHE_URL", "file:///tmp/cache")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "sqlite:///tmp/engine.db", cfg.DatabaseURL)
	assert.Equal(t, 3, cfg.WorkerThreads)
	assert.Equal(t, 5*time.Second, cfg.ParseTimeout)
	assert.Equal(t, int64(1024), cfg.MaxFileBytes)
	assert.Equal(t, "file:///tmp/cache", cfg.CacheURL)
}

func TestLoadConfig_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestDiskCache_RejectsNonFileScheme(t *testing.T) {
	_, err := newDiskCache("redis://localhost:6379")
	require.Error(t, err)
}

func TestDiskCache_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	cache, err := newDiskCache("file://" + dir)
	require.NoError(t, err)

	_, ok := cache.get("missing")
	assert.False(t, ok)

	result := &extract.Result{
		Language: "python",
		Blocks: []extract.Block{{
			Type: extract.BlockModule, SemanticName: "util", ParentIndex: -1,
			SemanticHash: "abc", SyntaxHash: "def",
		}},
	}
	cache.put("python:abc", result)

	loaded, ok := cache.get("python:abc")
	require.True(t, ok)
	require.Len(t, loaded.Blocks, 1)
	assert.Equal(t, "util", loaded.Blocks[0].SemanticName)
	assert.Equal(t, "python", loaded.Language)
}

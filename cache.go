package trellis

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/jward/trellis/internal/extract"
)

// diskCache persists extraction results keyed by content digest under a
// file:// CACHE_URL, so separate processes share parse work. Entries are
// JSON-encoded extraction results named by their cache key.
type diskCache struct {
	dir string
}

func newDiskCache(cacheURL string) (*diskCache, error) {
	u, err := url.Parse(cacheURL)
	if err != nil {
		return nil, fmt.Errorf("parse cache url: %w", err)
	}
	if u.Scheme != "file" {
		return nil, fmt.Errorf("unsupported cache scheme %q (only file://)", u.Scheme)
	}
	dir := u.Path
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &diskCache{dir: dir}, nil
}

func (c *diskCache) get(key string) (*extract.Result, bool) {
	data, err := os.ReadFile(filepath.Join(c.dir, key+".json"))
	if err != nil {
		return nil, false
	}
	var result extract.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, false
	}
	return &result, true
}

func (c *diskCache) put(key string, result *extract.Result) {
	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	tmp := filepath.Join(c.dir, key+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return
	}
	_ = os.Rename(tmp, filepath.Join(c.dir, key+".json"))
}

// lookupDigest checks the in-process memoization first, then the
// optional on-disk cache.
func (e *Engine) lookupDigest(key string) (*extract.Result, bool) {
	if result, ok := e.digests.Get(key); ok {
		return result, true
	}
	if e.diskCache != nil {
		if result, ok := e.diskCache.get(key); ok {
			e.digests.Add(key, result)
			return result, true
		}
	}
	return nil, false
}

// storeDigest records an extraction in both cache tiers.
func (e *Engine) storeDigest(key string, result *extract.Result) {
	e.digests.Add(key, result)
	if e.diskCache != nil {
		e.diskCache.put(key, result)
	}
}

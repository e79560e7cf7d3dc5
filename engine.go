package trellis

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/jward/trellis/internal/extract"
	"github.com/jward/trellis/internal/fault"
	"github.com/jward/trellis/internal/gitio"
	"github.com/jward/trellis/internal/history"
	"github.com/jward/trellis/internal/lang"
	"github.com/jward/trellis/internal/store"
)

// digestCacheSize bounds the in-process extraction memoization.
const digestCacheSize = 512

// Engine orchestrates the pipeline: repository materialization, file
// discovery, parsing, block extraction, transactional persistence,
// relationship resolution, and query access.
type Engine struct {
	store     *store.Store
	log       *slog.Logger
	cfg       Config
	tests     extract.TestConfig
	languages map[string]bool // nil means all registered languages

	// digests memoizes extraction results by content digest so
	// re-ingesting unchanged files skips the parse.
	digests   *lru.Cache[string, *extract.Result]
	diskCache *diskCache
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithConfig overrides the engine configuration.
func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithTestConfig replaces the test-detection predicate set. A zero
// TestConfig disables the tests relationship entirely.
func WithTestConfig(tc extract.TestConfig) Option {
	return func(e *Engine) { e.tests = tc }
}

// WithLanguages restricts which languages the Engine will process.
func WithLanguages(languages ...string) Option {
	return func(e *Engine) {
		e.languages = make(map[string]bool, len(languages))
		for _, l := range languages {
			e.languages[l] = true
		}
	}
}

// New creates an Engine backed by a SQLite database at dsn and applies
// pending schema migrations.
func New(dsn string, opts ...Option) (*Engine, error) {
	s, err := store.NewStore(dsn)
	if err != nil {
		return nil, fmt.Errorf("trellis: create store: %w", err)
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("trellis: migrate: %w", err)
	}

	cache, err := lru.New[string, *extract.Result](digestCacheSize)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("trellis: digest cache: %w", err)
	}

	e := &Engine{
		store:   s,
		log:     slog.Default(),
		cfg:     DefaultConfig(),
		tests:   extract.DefaultTestConfig(),
		digests: cache,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cfg.CacheURL != "" {
		dc, err := newDiskCache(e.cfg.CacheURL)
		if err != nil {
			e.log.Warn("digest cache disabled", "cache_url", e.cfg.CacheURL, "error", err)
		} else {
			e.diskCache = dc
		}
	}
	return e, nil
}

// Close releases the Engine's database resources.
func (e *Engine) Close() error {
	return e.store.Close()
}

// Store returns the underlying store for direct access.
func (e *Engine) Store() *store.Store {
	return e.store
}

// Query returns a new QueryBuilder over the store.
func (e *Engine) Query() *QueryBuilder {
	return &QueryBuilder{store: e.store}
}

// Versioner creates block versions.
func (e *Engine) Versioner() *history.Versioner { return history.NewVersioner(e.store) }

// Committer creates commits and walks commit ancestry.
func (e *Engine) Committer() *history.Committer { return history.NewCommitter(e.store) }

// Brancher manages branch pointers.
func (e *Engine) Brancher() *history.Brancher { return history.NewBrancher(e.store) }

// Merger performs three-way merges.
func (e *Engine) Merger() *history.Merger { return history.NewMerger(e.store) }

// Source identifies a repository to ingest: a filesystem path or a VCS
// URL plus optional ref.
type Source struct {
	Path string
	URL  string
	Ref  string
}

// IngestOptions are the per-run knobs. Zero values inherit the engine
// configuration.
type IngestOptions struct {
	IncludeTests  bool
	MaxFileBytes  int64
	MaxTotalBytes int64
	ParseTimeout  time.Duration
	Languages     []string // empty means all registered
}

func (o *IngestOptions) fill(cfg Config) {
	if o.MaxFileBytes == 0 {
		o.MaxFileBytes = cfg.MaxFileBytes
	}
	if o.MaxTotalBytes == 0 {
		o.MaxTotalBytes = cfg.MaxTotalBytes
	}
	if o.ParseTimeout == 0 {
		o.ParseTimeout = cfg.ParseTimeout
	}
}

// skipDirs are directory names excluded from discovery.
var skipDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
	"target":       true,
}

// Ingest runs the full pipeline for one repository and returns the
// migration id. Per-file failures are recovered locally and recorded as
// diagnostics; the migration fails only on cancellation, a blown total
// byte budget, or storage-level errors. Already-committed per-file data
// survives a failed migration and remains observable.
func (e *Engine) Ingest(ctx context.Context, src Source, opts IngestOptions) (string, error) {
	opts.fill(e.cfg)
	start := time.Now()

	root, commitHash, cleanup, err := e.materialize(ctx, src)
	if err != nil {
		return "", err
	}
	if cleanup != nil {
		defer cleanup()
	}

	migration := &store.IngestMigration{
		ID:         uuid.NewString(),
		RepoName:   repoName(src, root),
		RepoURL:    src.URL,
		CommitHash: commitHash,
		Status:     store.StatusInProgress,
	}
	if err := e.store.CreateIngestMigration(migration); err != nil {
		return "", err
	}
	e.log.Info("ingest started", "migration", migration.ID, "root", root)

	stats, runErr := e.runPipeline(ctx, migration.ID, root, opts)
	stats.DurationMS = time.Since(start).Milliseconds()

	switch {
	case runErr == nil:
		if err := e.store.UpdateMigrationStatus(migration.ID, store.StatusCompleted, nil, stats); err != nil {
			return migration.ID, err
		}
		e.log.Info("ingest completed", "migration", migration.ID,
			"files", stats.Files, "blocks", stats.Blocks, "relationships", stats.Relationships)
		return migration.ID, nil
	case errors.Is(runErr, context.Canceled) || fault.Is(runErr, fault.KindCancelled):
		_ = e.store.UpdateMigrationStatus(migration.ID, store.StatusFailed, []string{"cancelled"}, stats)
		e.log.Warn("ingest cancelled", "migration", migration.ID, "files_processed", stats.FilesProcessed)
		return migration.ID, fault.New(fault.KindCancelled, "ingest", runErr)
	default:
		_ = e.store.UpdateMigrationStatus(migration.ID, store.StatusFailed, []string{runErr.Error()}, stats)
		e.log.Error("ingest failed", "migration", migration.ID, "error", runErr)
		return migration.ID, runErr
	}
}

// materialize resolves the working tree: local paths are used in place,
// URLs are shallow-cloned into a temporary directory.
func (e *Engine) materialize(ctx context.Context, src Source) (root, commitHash string, cleanup func(), err error) {
	if src.URL != "" {
		dest, err := os.MkdirTemp("", "trellis-clone-*")
		if err != nil {
			return "", "", nil, fault.New(fault.KindExternal, "materialize", err)
		}
		hash, err := gitio.Clone(ctx, src.URL, src.Ref, dest)
		if err != nil {
			os.RemoveAll(dest)
			return "", "", nil, err
		}
		return dest, hash, func() { os.RemoveAll(dest) }, nil
	}
	if src.Path == "" {
		return "", "", nil, fault.Newf(fault.KindInput, "materialize", "source has neither path nor url")
	}
	hash, err := gitio.HeadHash(src.Path)
	if err != nil {
		e.log.Warn("head hash unavailable", "path", src.Path, "error", err)
		hash = ""
	}
	return src.Path, hash, nil, nil
}

func repoName(src Source, root string) string {
	if src.URL != "" {
		name := strings.TrimSuffix(filepath.Base(src.URL), ".git")
		if name != "" && name != "." {
			return name
		}
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return filepath.Base(root)
	}
	return filepath.Base(abs)
}

// discoverFiles walks root and returns candidate paths in lexical order,
// applying the extension registry, language filter, per-file size limit,
// and the total byte budget. Oversized files are skipped with a
// diagnostic; blowing the total budget aborts discovery.
func (e *Engine) discoverFiles(migrationID, root string, opts IngestOptions) ([]string, map[string]int, error) {
	langFilter := e.languages
	if len(opts.Languages) > 0 {
		langFilter = make(map[string]bool, len(opts.Languages))
		for _, l := range opts.Languages {
			langFilter[l] = true
		}
	}

	var paths []string
	skipped := make(map[string]int)
	var total int64

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if strings.HasPrefix(name, ".") || skipDirs[name] {
				return filepath.SkipDir
			}
			return nil
		}
		language, ok := lang.LanguageForFile(path)
		if !ok {
			skipped["input/unrecognized"]++
			unrecognized, relErr := filepath.Rel(root, path)
			if relErr != nil {
				unrecognized = path
			}
			e.diagnose(migrationID, unrecognized, "input/unrecognized", "unrecognized file extension")
			return nil
		}
		if langFilter != nil && !langFilter[language] {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}
		if !opts.IncludeTests && e.tests.Enabled() && e.tests.Matches("", rel) {
			skipped["input/test_excluded"]++
			return nil
		}
		info, err := d.Info()
		if err != nil {
			skipped["input/unreadable"]++
			e.diagnose(migrationID, rel, "input/unreadable", err.Error())
			return nil
		}
		if info.Size() > opts.MaxFileBytes {
			skipped["input/too_large"]++
			e.diagnose(migrationID, rel, "input/too_large",
				fmt.Sprintf("%d bytes exceeds limit %d", info.Size(), opts.MaxFileBytes))
			return nil
		}
		total += info.Size()
		if total > opts.MaxTotalBytes {
			return fault.Newf(fault.KindInput, "discover",
				"total bytes %d exceed budget %d", total, opts.MaxTotalBytes)
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		if fault.Is(err, fault.KindInput) {
			return nil, skipped, err
		}
		return nil, skipped, fault.New(fault.KindInput, "discover", err)
	}
	return paths, skipped, nil
}

// fileResult is one file's staged extraction, ready for commit.
type fileResult struct {
	relPath  string
	language string
	digest   string
	bytes    int64
	result   *extract.Result
	parseErrs int
}

// processFile reads, parses, and extracts one file. Recoverable
// failures return a kinded fault; callers convert them to diagnostics.
func (e *Engine) processFile(ctx context.Context, parser *lang.Parser, root, path string, opts IngestOptions) (*fileResult, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	language, _ := lang.LanguageForFile(path)

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fault.New(fault.KindInput, "read "+rel, err)
	}
	digest := fmt.Sprintf("%x", sha256.Sum256(content))
	cacheKey := language + ":" + digest

	if cached, ok := e.lookupDigest(cacheKey); ok {
		return &fileResult{relPath: rel, language: language, digest: digest,
			bytes: int64(len(content)), result: cached}, nil
	}

	parseCtx, cancel := context.WithTimeout(ctx, opts.ParseTimeout)
	defer cancel()
	tree, parseErrs, err := parser.Parse(parseCtx, content, language)
	if err != nil {
		if parseCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return nil, fault.Newf(fault.KindParse, "parse "+rel, "timeout after %s", opts.ParseTimeout)
		}
		return nil, err
	}
	defer tree.Close()

	result := extract.NewExtractor(e.tests).Extract(tree, rel)
	e.storeDigest(cacheKey, result)

	return &fileResult{
		relPath:   rel,
		language:  language,
		digest:    digest,
		bytes:     int64(len(content)),
		result:    result,
		parseErrs: len(parseErrs),
	}, nil
}

// commitFile converts an extraction to a container batch and commits it
// transactionally.
func (e *Engine) commitFile(migrationID string, fr *fileResult) (int, int, error) {
	batch := toContainerBatch(migrationID, fr)
	_, blockIDs, err := e.store.CommitContainer(batch)
	if err != nil {
		return 0, 0, err
	}
	return len(blockIDs), len(batch.Relationships), nil
}

// toContainerBatch maps an extraction result onto store rows.
func toContainerBatch(migrationID string, fr *fileResult) *store.ContainerBatch {
	container := &store.Container{
		MigrationID:  migrationID,
		Name:         filepath.Base(fr.relPath),
		Language:     fr.language,
		OriginalPath: fr.relPath,
		OriginalHash: fr.digest,
		ParseMeta:    map[string]any{"parse_errors": fr.parseErrs},
	}

	blocks := make([]*store.Block, len(fr.result.Blocks))
	parents := make([]int, len(fr.result.Blocks))
	for i, b := range fr.result.Blocks {
		blocks[i] = &store.Block{
			Type:             string(b.Type),
			SemanticName:     b.SemanticName,
			RawText:          b.RawText,
			Normalized:       b.Normalized,
			Tokens:           b.Tokens,
			Position:         b.Position,
			IndentLevel:      b.IndentLevel,
			PositionInParent: b.PositionInParent,
			DepthLevel:       b.Depth,
			HierarchicalIdx:  b.Index,
			Parameters:       toStoreParams(b.Parameters),
			ReturnType:       b.ReturnType,
			Modifiers:        b.Modifiers,
			Decorators:       b.Decorators,
			LanguageFeatures: b.LanguageFeatures,
			ScopeInfo:        b.Scope,
			AttachedComments: b.AttachedComments,
			Cyclomatic:       b.Metrics.Cyclomatic,
			Cognitive:        b.Metrics.Cognitive,
			LinesOfCode:      b.Metrics.LinesOfCode,
			SemanticHash:     b.SemanticHash,
			SyntaxHash:       b.SyntaxHash,
			StartByte:        b.StartByte,
			EndByte:          b.EndByte,
			StartLine:        b.StartLine,
			EndLine:          b.EndLine,
			SourceLanguage:   fr.result.Language,
		}
		parents[i] = b.ParentIndex
	}

	rels := make([]store.BatchRelationship, len(fr.result.Relationships))
	for i, r := range fr.result.Relationships {
		rels[i] = store.BatchRelationship{
			SourceIndex: r.SourceIndex,
			TargetIndex: r.TargetIndex,
			TargetName:  r.TargetName,
			Type:        string(r.Type),
			Strength:    r.Strength,
			Unresolved:  r.Unresolved,
		}
	}

	return &store.ContainerBatch{
		Container:     container,
		Blocks:        blocks,
		Parents:       parents,
		Relationships: rels,
	}
}

func toStoreParams(params []extract.Param) []store.BlockParam {
	out := make([]store.BlockParam, len(params))
	for i, p := range params {
		out[i] = store.BlockParam{Name: p.Name, TypeExpr: p.TypeExpr, Kind: p.Kind}
	}
	return out
}

func (e *Engine) diagnose(migrationID, path, kind, message string) {
	err := e.store.AddDiagnostic(&store.Diagnostic{
		MigrationID: migrationID,
		Path:        path,
		Kind:        kind,
		Message:     message,
	})
	if err != nil {
		e.log.Warn("diagnostic not recorded", "path", path, "kind", kind, "error", err)
	}
}

// diagnosticKind maps a recoverable fault to its diagnostic kind string.
func diagnosticKind(err error) string {
	kind, ok := fault.KindOf(err)
	if !ok {
		return "input/error"
	}
	switch kind {
	case fault.KindParse:
		return "parse/partial"
	case fault.KindInput:
		return "input/unreadable"
	default:
		return string(kind)
	}
}

// Package trellis is a semantic code engine: it ingests polyglot source
// repositories, parses each file into a concrete syntax tree with
// tree-sitter, normalizes the trees into a language-agnostic block
// model, persists that model in a queryable SQLite store, tracks
// block-level version history, and answers semantic queries over the
// resulting graph.
//
// # Pipeline
//
// Ingestion runs in three phases:
//
//  1. Materialize: resolve the repository source (a filesystem path or a
//     VCS URL plus ref, shallow-cloned via go-git) and enumerate files
//     with recognized extensions under the configured size limits.
//
//  2. Extract: parse each file error-tolerantly, walk the concrete
//     syntax tree with per-language dispatch tables, and emit
//     UniversalBlock records with complexity metrics, semantic and
//     syntax fingerprints, and typed relationships. Extraction fans out
//     across a bounded worker pool.
//
//  3. Commit: write each container's blocks, relationships, and initial
//     versions in a single transaction, then run the cross-container
//     resolution pass that replaces placeholder relationship targets
//     with concrete block ids.
//
// # Usage
//
// Create an Engine, ingest a repository, and query:
//
//	e, err := trellis.New("trellis.db")
//	if err != nil { ... }
//	defer e.Close()
//
//	ctx := context.Background()
//	migrationID, err := e.Ingest(ctx, trellis.Source{Path: "path/to/repo"}, trellis.IngestOptions{})
//
//	q := e.Query()
//	hits, err := q.Search("parse", trellis.SearchOptions{Limit: 20})
//
// # Query API
//
// The [QueryBuilder] returned by [Engine.Query] exposes the closed query
// catalog:
//
//   - [QueryBuilder.Search] — ranked full-text search over block names
//     and raw text.
//   - [QueryBuilder.DependencyGraph] — transitive closure over calls,
//     depends_on, and imports edges, with cycle reporting.
//   - [QueryBuilder.FindPattern] — predefined analyses such as
//     untested_function, complex_function, or hardcoded_secret.
//   - [QueryBuilder.Coupling] — efferent/afferent counts and
//     instability for one block.
//   - [QueryBuilder.SemanticDiff] — the classified diff between two
//     block versions.
//
// [QueryBuilder.Dispatch] wraps the same catalog behind a structured
// request/response surface with cursor pagination.
//
// # Version control
//
// Block edits never mutate stored syntax in place: they produce new
// immutable versions with recomputed semantic and syntax hashes, and
// group into commits on named branches. See [Engine.Versioner],
// [Engine.Committer], [Engine.Brancher], and [Engine.Merger].
package trellis

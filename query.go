package trellis

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jward/trellis/internal/fault"
	"github.com/jward/trellis/internal/history"
	"github.com/jward/trellis/internal/store"
)

// maxPageLimit caps any single query page.
const maxPageLimit = 1000

// QueryBuilder exposes the closed query catalog over the store.
type QueryBuilder struct {
	store *store.Store
}

// SearchOptions narrow and page a semantic search.
type SearchOptions struct {
	Language  string
	BlockType string
	Limit     int
	Offset    int
}

// SearchResult is one ranked block.
type SearchResult struct {
	Block *store.Block
	Rank  float64
}

// Search ranks blocks by text relevance of semantic_name and raw_text
// against term. Ordering is deterministic: descending rank, then
// ascending (container name, position).
func (q *QueryBuilder) Search(term string, opts SearchOptions) ([]SearchResult, error) {
	if term == "" {
		return nil, fmt.Errorf("search: empty term")
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > maxPageLimit+1 {
		limit = maxPageLimit + 1
	}
	hits, err := q.store.SearchBlocks(term, store.SearchFilter{
		Language:  opts.Language,
		BlockType: opts.BlockType,
	}, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	results := make([]SearchResult, len(hits))
	for i, h := range hits {
		results[i] = SearchResult{Block: h.Block, Rank: h.Rank}
	}
	return results, nil
}

// SemanticDiff returns the classified diff between two versions of the
// same block. Identical versions yield an empty list. The
// classification aggregates the change kinds recorded along the version
// chain between the two revisions; for versions of different blocks only
// hash-level comparison is possible and body_changed is reported on a
// semantic hash mismatch.
func (q *QueryBuilder) SemanticDiff(versionA, versionB int64) ([]history.ChangeKind, error) {
	a, err := q.store.BlockVersionByID(versionA)
	if err != nil {
		return nil, fmt.Errorf("semantic diff: %w", err)
	}
	b, err := q.store.BlockVersionByID(versionB)
	if err != nil {
		return nil, fmt.Errorf("semantic diff: %w", err)
	}
	if a == nil || b == nil {
		return nil, fault.Newf(fault.KindInput, "semantic diff", "version not found")
	}
	if a.ID == b.ID {
		return nil, nil
	}

	if a.BlockID != b.BlockID {
		if a.SemanticHash == b.SemanticHash {
			return nil, nil
		}
		return []history.ChangeKind{history.ChangeBody}, nil
	}

	// Same block: union the classifications recorded between the two
	// versions, walking from the later down to the earlier.
	lo, hi := a, b
	if lo.VersionNumber > hi.VersionNumber {
		lo, hi = hi, lo
	}
	versions, err := q.store.BlockVersions(a.BlockID)
	if err != nil {
		return nil, fmt.Errorf("semantic diff: %w", err)
	}
	kinds := make(map[history.ChangeKind]bool)
	for _, v := range versions {
		if v.VersionNumber > lo.VersionNumber && v.VersionNumber <= hi.VersionNumber && v.ChangeType != "" {
			for _, k := range strings.Split(v.ChangeType, ",") {
				if k != "" && k != "created" {
					kinds[history.ChangeKind(k)] = true
				}
			}
		}
	}
	var out []history.ChangeKind
	for _, k := range []history.ChangeKind{
		history.ChangeRenamed, history.ChangeSignature, history.ChangeBody,
		history.ChangeModifier, history.ChangeDependency,
	} {
		if kinds[k] {
			out = append(out, k)
		}
	}
	return out, nil
}

// --- Structured request/response surface ---

// Page carries pagination for a dispatch request. Limit is capped at
// 1000; Cursor continues a previous response.
type Page struct {
	Limit  int    `json:"limit"`
	Cursor string `json:"cursor,omitempty"`
}

// Request is a structured query invocation.
type Request struct {
	Query string         `json:"query_name"`
	Args  map[string]any `json:"arguments"`
	Page  Page           `json:"pagination"`
}

// Response carries a page of results. NextCursor is set when more items
// remain; Truncated reports whether the page was cut by the limit.
type Response struct {
	Items      []any  `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
	Truncated  bool   `json:"truncated"`
}

// QueryError is the structured error payload with a stable
// machine-readable kind.
type QueryError struct {
	Kind    string `json:"error_kind"`
	Message string `json:"message"`
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func queryError(err error) *QueryError {
	kind := "input"
	if k, ok := fault.KindOf(err); ok {
		kind = string(k)
	}
	return &QueryError{Kind: kind, Message: err.Error()}
}

// Dispatch routes a structured request to the catalog query it names.
// Query-path errors are always surfaced to the caller as *QueryError.
func (q *QueryBuilder) Dispatch(req Request) (*Response, error) {
	limit := req.Page.Limit
	if limit <= 0 {
		limit = 100
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	offset := 0
	if req.Page.Cursor != "" {
		n, err := strconv.Atoi(req.Page.Cursor)
		if err != nil || n < 0 {
			return nil, &QueryError{Kind: "input", Message: "invalid cursor"}
		}
		offset = n
	}

	items, err := q.dispatchItems(req, limit+1, offset)
	if err != nil {
		return nil, queryError(err)
	}

	resp := &Response{Items: items}
	if len(items) > limit {
		resp.Items = items[:limit]
		resp.Truncated = true
		resp.NextCursor = strconv.Itoa(offset + limit)
	}
	return resp, nil
}

func (q *QueryBuilder) dispatchItems(req Request, limit, offset int) ([]any, error) {
	switch req.Query {
	case "semantic_search":
		term, _ := req.Args["term"].(string)
		lang, _ := req.Args["language"].(string)
		blockType, _ := req.Args["block_type"].(string)
		results, err := q.Search(term, SearchOptions{
			Language: lang, BlockType: blockType, Limit: limit, Offset: offset,
		})
		if err != nil {
			return nil, err
		}
		return toAnySlice(results), nil

	case "dependency_graph":
		blockID, err := argInt64(req.Args, "block_id")
		if err != nil {
			return nil, err
		}
		depth := intArg(req.Args, "depth", -1)
		graph, err := q.DependencyGraph(blockID, depth)
		if err != nil {
			return nil, err
		}
		if graph == nil {
			return nil, nil
		}
		return []any{graph}, nil

	case "find_pattern":
		name, _ := req.Args["pattern_name"].(string)
		matches, err := q.FindPattern(name)
		if err != nil {
			return nil, err
		}
		return paginate(toAnySlice(matches), limit, offset), nil

	case "coupling_metrics":
		blockID, err := argInt64(req.Args, "block_id")
		if err != nil {
			return nil, err
		}
		metrics, err := q.Coupling(blockID)
		if err != nil {
			return nil, err
		}
		return []any{metrics}, nil

	case "semantic_diff":
		va, err := argInt64(req.Args, "version_a")
		if err != nil {
			return nil, err
		}
		vb, err := argInt64(req.Args, "version_b")
		if err != nil {
			return nil, err
		}
		kinds, err := q.SemanticDiff(va, vb)
		if err != nil {
			return nil, err
		}
		return toAnySlice(kinds), nil

	default:
		return nil, fault.Newf(fault.KindInput, "dispatch", "unknown query %q", req.Query)
	}
}

func argInt64(args map[string]any, key string) (int64, error) {
	switch v := args[key].(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fault.Newf(fault.KindInput, "dispatch", "argument %q is not an id", key)
		}
		return n, nil
	default:
		return 0, fault.Newf(fault.KindInput, "dispatch", "missing argument %q", key)
	}
}

func intArg(args map[string]any, key string, def int) int {
	if n, err := argInt64(args, key); err == nil {
		return int(n)
	}
	return def
}

func toAnySlice[T any](in []T) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

func paginate(items []any, limit, offset int) []any {
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

package store

import (
	"fmt"
	"strings"
)

// SearchFilter narrows a full-text search.
type SearchFilter struct {
	Language  string
	BlockType string
}

// SearchHit is one ranked search result.
type SearchHit struct {
	Block *Block
	Rank  float64
}

// SearchBlocks ranks blocks by text relevance of semantic_name and
// raw_text against term. FTS5 ranking is used when available; otherwise
// a LIKE-based score counts name and body matches. Ordering is
// deterministic: rank descending, then (container name, position)
// ascending. limit and offset page the result.
func (s *Store) SearchBlocks(term string, filter SearchFilter, limit, offset int) ([]*SearchHit, error) {
	if limit <= 0 {
		limit = 50
	}
	if s.fts {
		hits, err := s.searchFTS(term, filter, limit, offset)
		if err == nil {
			return hits, nil
		}
		// FTS queries reject some raw user input (operators, quotes);
		// fall through to LIKE.
	}
	return s.searchLike(term, filter, limit, offset)
}

func (s *Store) searchFTS(term string, filter SearchFilter, limit, offset int) ([]*SearchHit, error) {
	where, args := searchFilterClause(filter)
	query := fmt.Sprintf(
		`SELECT %s, -bm25(block_search) AS rank
		 FROM block_search
		 JOIN blocks b ON b.id = block_search.rowid
		 JOIN containers c ON c.id = b.container_id
		 WHERE block_search MATCH ?%s
		 ORDER BY rank DESC, c.name ASC, b.position ASC
		 LIMIT ? OFFSET ?`,
		prefixColumns("b", blockColumns), where,
	)
	allArgs := append([]any{ftsQuote(term)}, args...)
	allArgs = append(allArgs, limit, offset)
	return s.querySearchHits(query, allArgs...)
}

func (s *Store) searchLike(term string, filter SearchFilter, limit, offset int) ([]*SearchHit, error) {
	where, args := searchFilterClause(filter)
	pattern := "%" + escapeLike(term) + "%"
	query := fmt.Sprintf(
		`SELECT %s,
		   (CASE WHEN b.semantic_name LIKE ? ESCAPE '\' THEN 2.0 ELSE 0.0 END +
		    CASE WHEN b.raw_text LIKE ? ESCAPE '\' THEN 1.0 ELSE 0.0 END) AS rank
		 FROM blocks b
		 JOIN containers c ON c.id = b.container_id
		 WHERE (b.semantic_name LIKE ? ESCAPE '\' OR b.raw_text LIKE ? ESCAPE '\')%s
		 ORDER BY rank DESC, c.name ASC, b.position ASC
		 LIMIT ? OFFSET ?`,
		prefixColumns("b", blockColumns), where,
	)
	allArgs := []any{pattern, pattern, pattern, pattern}
	allArgs = append(allArgs, args...)
	allArgs = append(allArgs, limit, offset)
	return s.querySearchHits(query, allArgs...)
}

func (s *Store) querySearchHits(query string, args ...any) ([]*SearchHit, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer rows.Close()

	var hits []*SearchHit
	for rows.Next() {
		b, rank, err := scanBlockWithRank(rows)
		if err != nil {
			return nil, fmt.Errorf("search: scan: %w", err)
		}
		hits = append(hits, &SearchHit{Block: b, Rank: rank})
	}
	return hits, rows.Err()
}

// scanBlockWithRank scans blockColumns plus a trailing rank column.
func scanBlockWithRank(row rowScanner) (*Block, float64, error) {
	var rank float64
	rs := &appendScanner{inner: row, extra: []any{&rank}}
	b, err := scanBlock(rs)
	if err != nil {
		return nil, 0, err
	}
	return b, rank, nil
}

// appendScanner forwards Scan with extra destinations appended, letting
// scanBlock stay the single source of block column order.
type appendScanner struct {
	inner rowScanner
	extra []any
}

func (a *appendScanner) Scan(dest ...any) error {
	return a.inner.Scan(append(dest, a.extra...)...)
}

func searchFilterClause(filter SearchFilter) (string, []any) {
	var where strings.Builder
	var args []any
	if filter.Language != "" {
		where.WriteString(" AND b.source_language = ?")
		args = append(args, filter.Language)
	}
	if filter.BlockType != "" {
		where.WriteString(" AND b.block_type = ?")
		args = append(args, filter.BlockType)
	}
	return where.String(), args
}

// prefixColumns qualifies a comma-separated column list with an alias.
func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

// ftsQuote wraps the term as a quoted FTS5 string so user input is
// matched literally rather than parsed as query syntax.
func ftsQuote(term string) string {
	return `"` + strings.ReplaceAll(term, `"`, `""`) + `"`
}

// escapeLike escapes LIKE wildcards in user input.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	return strings.ReplaceAll(s, "_", `\_`)
}

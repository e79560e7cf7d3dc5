package store

import (
	"database/sql"
	"fmt"
)

const blockColumns = `id, container_id, block_type, semantic_name, raw_text, normalized_structure,
	token_sequence, position, indent_level, parent_block_id, position_in_parent, depth_level,
	hierarchical_index, parameters, return_type, modifiers, decorators, language_features,
	cyclomatic_complexity, cognitive_complexity, lines_of_code, scope_info, semantic_signature,
	attached_comments, dependency_info, semantic_hash, syntax_hash,
	start_byte, end_byte, start_line, end_line, source_language`

func insertBlockTx(e execer, b *Block) (int64, error) {
	res, err := e.Exec(
		`INSERT INTO blocks (container_id, block_type, semantic_name, raw_text, normalized_structure,
		  token_sequence, position, indent_level, parent_block_id, position_in_parent, depth_level,
		  hierarchical_index, parameters, return_type, modifiers, decorators, language_features,
		  cyclomatic_complexity, cognitive_complexity, lines_of_code, scope_info, semantic_signature,
		  attached_comments, dependency_info, semantic_hash, syntax_hash,
		  start_byte, end_byte, start_line, end_line, source_language)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ContainerID, b.Type, nullIfEmpty(b.SemanticName), b.RawText, marshalJSON(b.Normalized),
		nullIfEmpty(marshalJSON(b.Tokens)), b.Position, b.IndentLevel, b.ParentBlockID,
		b.PositionInParent, b.DepthLevel, b.HierarchicalIdx,
		nullIfEmpty(marshalJSON(b.Parameters)), nullIfEmpty(b.ReturnType),
		nullIfEmpty(marshalJSON(b.Modifiers)), nullIfEmpty(marshalJSON(b.Decorators)),
		nullIfEmpty(marshalJSON(b.LanguageFeatures)),
		b.Cyclomatic, b.Cognitive, b.LinesOfCode,
		nullIfEmpty(b.ScopeInfo), nullIfEmpty(b.SemanticSig),
		nullIfEmpty(marshalJSON(b.AttachedComments)), nullIfEmpty(marshalJSON(b.DependencyInfo)),
		b.SemanticHash, b.SyntaxHash,
		b.StartByte, b.EndByte, b.StartLine, b.EndLine, b.SourceLanguage,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func scanBlock(row rowScanner) (*Block, error) {
	b := &Block{}
	var name, tokens, params, retType, mods, decs, feats, scope, sig, comments, deps sql.NullString
	var normalized string
	err := row.Scan(&b.ID, &b.ContainerID, &b.Type, &name, &b.RawText, &normalized,
		&tokens, &b.Position, &b.IndentLevel, &b.ParentBlockID, &b.PositionInParent, &b.DepthLevel,
		&b.HierarchicalIdx, &params, &retType, &mods, &decs, &feats,
		&b.Cyclomatic, &b.Cognitive, &b.LinesOfCode, &scope, &sig,
		&comments, &deps, &b.SemanticHash, &b.SyntaxHash,
		&b.StartByte, &b.EndByte, &b.StartLine, &b.EndLine, &b.SourceLanguage)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan block: %w", err)
	}
	b.SemanticName = stringOrEmpty(name)
	b.Normalized = unmarshalStrings(normalized)
	b.Tokens = unmarshalStrings(stringOrEmpty(tokens))
	b.Parameters = unmarshalParams(stringOrEmpty(params))
	b.ReturnType = stringOrEmpty(retType)
	b.Modifiers = unmarshalStrings(stringOrEmpty(mods))
	b.Decorators = unmarshalStrings(stringOrEmpty(decs))
	b.LanguageFeatures = unmarshalMap(stringOrEmpty(feats))
	b.ScopeInfo = stringOrEmpty(scope)
	b.SemanticSig = stringOrEmpty(sig)
	b.AttachedComments = unmarshalStrings(stringOrEmpty(comments))
	b.DependencyInfo = unmarshalMap(stringOrEmpty(deps))
	return b, nil
}

// BlockByID loads one block, or nil when absent.
func (s *Store) BlockByID(id int64) (*Block, error) {
	return scanBlock(s.db.QueryRow("SELECT "+blockColumns+" FROM blocks WHERE id = ?", id))
}

// BlocksByContainer lists a container's blocks in hierarchical order.
func (s *Store) BlocksByContainer(containerID int64) ([]*Block, error) {
	return s.queryBlocks(
		"SELECT "+blockColumns+" FROM blocks WHERE container_id = ? ORDER BY hierarchical_index",
		containerID,
	)
}

// BlocksByName lists blocks with the given semantic name across all
// containers, ordered by id for determinism.
func (s *Store) BlocksByName(name string) ([]*Block, error) {
	return s.queryBlocks(
		"SELECT "+blockColumns+" FROM blocks WHERE semantic_name = ? ORDER BY id", name,
	)
}

// ChildBlocks lists the direct children of a block in sibling order.
func (s *Store) ChildBlocks(parentID int64) ([]*Block, error) {
	return s.queryBlocks(
		"SELECT "+blockColumns+" FROM blocks WHERE parent_block_id = ? ORDER BY position_in_parent",
		parentID,
	)
}

func (s *Store) queryBlocks(query string, args ...any) ([]*Block, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query blocks: %w", err)
	}
	defer rows.Close()

	var out []*Block
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

package store

import (
	"database/sql"
	"fmt"
)

const relationshipColumns = `id, source_block_id, target_block_id, target_name, relationship_type,
	strength, bidirectional, unresolved, metadata`

func insertRelationshipTx(e execer, r *Relationship) (int64, error) {
	res, err := e.Exec(
		`INSERT OR IGNORE INTO block_relationships
		 (source_block_id, target_block_id, target_name, relationship_type, strength, bidirectional, unresolved, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.SourceBlockID, r.TargetBlockID, nullIfEmpty(r.TargetName), r.Type,
		r.Strength, r.Bidirectional, r.Unresolved, nullIfEmpty(marshalJSON(r.Metadata)),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// InsertRelationship inserts a typed edge. Duplicate
// (source, target, type) triples are ignored.
func (s *Store) InsertRelationship(r *Relationship) (int64, error) {
	id, err := insertRelationshipTx(s.db, r)
	if err != nil {
		return 0, fmt.Errorf("insert relationship: %w", err)
	}
	r.ID = id
	return id, nil
}

func scanRelationship(row rowScanner) (*Relationship, error) {
	r := &Relationship{}
	var targetName, metadata sql.NullString
	err := row.Scan(&r.ID, &r.SourceBlockID, &r.TargetBlockID, &targetName, &r.Type,
		&r.Strength, &r.Bidirectional, &r.Unresolved, &metadata)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan relationship: %w", err)
	}
	r.TargetName = stringOrEmpty(targetName)
	r.Metadata = unmarshalMap(stringOrEmpty(metadata))
	return r, nil
}

// RelationshipsBySource lists outbound edges of a block.
func (s *Store) RelationshipsBySource(blockID int64) ([]*Relationship, error) {
	return s.queryRelationships(
		"SELECT "+relationshipColumns+" FROM block_relationships WHERE source_block_id = ? ORDER BY id",
		blockID,
	)
}

// RelationshipsByTarget lists inbound edges of a block.
func (s *Store) RelationshipsByTarget(blockID int64) ([]*Relationship, error) {
	return s.queryRelationships(
		"SELECT "+relationshipColumns+" FROM block_relationships WHERE target_block_id = ? ORDER BY id",
		blockID,
	)
}

// RelationshipsByType lists all edges of one type.
func (s *Store) RelationshipsByType(relType string) ([]*Relationship, error) {
	return s.queryRelationships(
		"SELECT "+relationshipColumns+" FROM block_relationships WHERE relationship_type = ? ORDER BY id",
		relType,
	)
}

// UnresolvedRelationships lists edges still awaiting a concrete target.
func (s *Store) UnresolvedRelationships() ([]*Relationship, error) {
	return s.queryRelationships(
		"SELECT " + relationshipColumns + " FROM block_relationships WHERE unresolved = 1 ORDER BY id",
	)
}

func (s *Store) queryRelationships(query string, args ...any) ([]*Relationship, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query relationships: %w", err)
	}
	defer rows.Close()

	var out []*Relationship
	for rows.Next() {
		r, err := scanRelationship(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteRelationship removes one edge by id.
func (s *Store) DeleteRelationship(id int64) error {
	if _, err := s.db.Exec("DELETE FROM block_relationships WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete relationship %d: %w", id, err)
	}
	return nil
}

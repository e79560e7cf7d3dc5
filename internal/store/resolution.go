package store

import (
	"database/sql"
	"fmt"
)

// declarativeTypes are the block types an unresolved edge may land on.
// Imports edges may also land on a module block.
var declarativeTypes = []string{"function", "method", "class", "interface"}

// ResolveMigration is the post-ingest pass that replaces placeholder
// targets with concrete block ids. For every unresolved edge whose
// source lives in the migration, the pass looks for a declarative block
// in another container of the same migration whose semantic name matches
// the recorded target name; only imports edges may resolve to a module.
// Matches prefer the same source language, then the lowest block id,
// keeping the outcome deterministic. Edges with no match stay unresolved
// and reportable.
func (s *Store) ResolveMigration(migrationID string) (int, error) {
	rows, err := s.db.Query(
		`SELECT r.id, r.source_block_id, r.target_name, r.relationship_type, b.container_id, b.source_language
		 FROM block_relationships r
		 JOIN blocks b ON b.id = r.source_block_id
		 JOIN containers c ON c.id = b.container_id
		 WHERE r.unresolved = 1 AND r.target_name IS NOT NULL AND c.migration_id = ?
		 ORDER BY r.id`, migrationID,
	)
	if err != nil {
		return 0, fmt.Errorf("resolve migration: load unresolved: %w", err)
	}

	type pending struct {
		relID       int64
		sourceID    int64
		targetName  string
		relType     string
		containerID int64
		language    string
	}
	var work []pending
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.relID, &p.sourceID, &p.targetName, &p.relType, &p.containerID, &p.language); err != nil {
			rows.Close()
			return 0, fmt.Errorf("resolve migration: scan: %w", err)
		}
		work = append(work, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	resolved := 0
	for _, p := range work {
		targetID, err := s.findResolutionTarget(migrationID, p.targetName, p.relType, p.language, p.containerID)
		if err != nil {
			return resolved, err
		}
		if targetID == 0 {
			continue
		}
		if err := s.applyResolution(p.relID, p.sourceID, targetID, p.relType); err != nil {
			return resolved, err
		}
		resolved++
	}
	return resolved, nil
}

// findResolutionTarget picks the concrete block for a name within a
// migration, excluding the source's own container.
func (s *Store) findResolutionTarget(migrationID, name, relType, language string, excludeContainer int64) (int64, error) {
	types := declarativeTypes
	if relType == "imports" {
		types = append(append([]string{}, declarativeTypes...), "module")
	}
	query := `
		SELECT b.id FROM blocks b
		JOIN containers c ON c.id = b.container_id
		WHERE c.migration_id = ? AND b.semantic_name = ? AND b.container_id != ?
		  AND b.block_type IN (` + placeholderList(len(types)) + `)
		ORDER BY (b.source_language = ?) DESC, b.id
		LIMIT 1`
	args := []any{migrationID, name, excludeContainer}
	for _, t := range types {
		args = append(args, t)
	}
	args = append(args, language)

	var id int64
	err := s.db.QueryRow(query, args...).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("find resolution target %q: %w", name, err)
	}
	return id, nil
}

// applyResolution points the edge at its concrete target. When a
// resolved edge with the same (source, target, type) already exists, the
// placeholder is dropped instead to preserve the composite key.
func (s *Store) applyResolution(relID, sourceID, targetID int64, relType string) error {
	var existing int64
	err := s.db.QueryRow(
		`SELECT id FROM block_relationships
		 WHERE source_block_id = ? AND target_block_id = ? AND relationship_type = ?`,
		sourceID, targetID, relType,
	).Scan(&existing)
	switch {
	case err == nil:
		_, err = s.db.Exec("DELETE FROM block_relationships WHERE id = ?", relID)
		if err != nil {
			return fmt.Errorf("drop duplicate unresolved edge %d: %w", relID, err)
		}
		return nil
	case err != sql.ErrNoRows:
		return fmt.Errorf("check duplicate edge: %w", err)
	}

	_, err = s.db.Exec(
		`UPDATE block_relationships
		 SET target_block_id = ?, unresolved = 0,
		     metadata = json_set(COALESCE(metadata, '{}'), '$.unresolved', json('false'), '$.resolved_by', 'post_ingest')
		 WHERE id = ?`,
		targetID, relID,
	)
	if err != nil {
		return fmt.Errorf("apply resolution %d: %w", relID, err)
	}
	return nil
}

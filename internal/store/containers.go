package store

import (
	"database/sql"
	"fmt"
	"time"
)

// InsertContainer inserts a container row and returns its id.
func (s *Store) InsertContainer(c *Container) (int64, error) {
	id, err := insertContainerTx(s.db, c)
	if err != nil {
		return 0, fmt.Errorf("insert container %s: %w", c.OriginalPath, err)
	}
	c.ID = id
	return id, nil
}

// execer covers both *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func insertContainerTx(e execer, c *Container) (int64, error) {
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	if c.Version == 0 {
		c.Version = 1
	}
	if c.ContainerType == "" {
		c.ContainerType = "file"
	}
	res, err := e.Exec(
		`INSERT INTO containers
		 (migration_id, name, container_type, language, original_path, original_hash, version,
		  semantic_summary, parse_meta, format_prefs, reconstruction_hints, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.MigrationID, c.Name, c.ContainerType, c.Language, c.OriginalPath, c.OriginalHash, c.Version,
		nullIfEmpty(c.SemanticSummary), nullIfEmpty(marshalJSON(c.ParseMeta)),
		nullIfEmpty(marshalJSON(c.FormatPrefs)), nullIfEmpty(marshalJSON(c.ReconstructionHints)),
		c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ContainerByID loads one container, or nil when absent.
func (s *Store) ContainerByID(id int64) (*Container, error) {
	return s.scanContainer(s.db.QueryRow(containerSelect+" WHERE id = ?", id))
}

// ContainerByPath loads the container for an original path within a
// migration, or nil when absent.
func (s *Store) ContainerByPath(migrationID, originalPath string) (*Container, error) {
	return s.scanContainer(s.db.QueryRow(
		containerSelect+" WHERE migration_id = ? AND original_path = ?",
		migrationID, originalPath,
	))
}

// ContainersByMigration lists a migration's containers ordered by path.
func (s *Store) ContainersByMigration(migrationID string) ([]*Container, error) {
	rows, err := s.db.Query(containerSelect+" WHERE migration_id = ? ORDER BY original_path", migrationID)
	if err != nil {
		return nil, fmt.Errorf("containers by migration: %w", err)
	}
	defer rows.Close()

	var out []*Container
	for rows.Next() {
		c, err := s.scanContainer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const containerSelect = `SELECT id, migration_id, name, container_type, language, original_path,
	original_hash, version, semantic_summary, parse_meta, format_prefs, reconstruction_hints,
	created_at, updated_at FROM containers`

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanContainer(row rowScanner) (*Container, error) {
	c := &Container{}
	var summary, parseMeta, formatPrefs, hints sql.NullString
	var created, updated sql.NullTime
	err := row.Scan(&c.ID, &c.MigrationID, &c.Name, &c.ContainerType, &c.Language,
		&c.OriginalPath, &c.OriginalHash, &c.Version,
		&summary, &parseMeta, &formatPrefs, &hints, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan container: %w", err)
	}
	c.SemanticSummary = stringOrEmpty(summary)
	c.ParseMeta = unmarshalMap(stringOrEmpty(parseMeta))
	c.FormatPrefs = unmarshalMap(stringOrEmpty(formatPrefs))
	c.ReconstructionHints = unmarshalMap(stringOrEmpty(hints))
	if created.Valid {
		c.CreatedAt = created.Time
	}
	if updated.Valid {
		c.UpdatedAt = updated.Time
	}
	return c, nil
}

// DeleteContainer removes a container; blocks, relationships, and
// versions follow via cascade.
func (s *Store) DeleteContainer(id int64) error {
	if _, err := s.db.Exec("DELETE FROM containers WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete container %d: %w", id, err)
	}
	return nil
}

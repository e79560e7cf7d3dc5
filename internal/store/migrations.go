package store

import (
	"database/sql"
	"fmt"
	"time"
)

// CreateIngestMigration inserts a new migration row.
func (s *Store) CreateIngestMigration(m *IngestMigration) error {
	if m.StartedAt.IsZero() {
		m.StartedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO ingest_migrations
		 (id, repo_name, repo_url, commit_hash, source_language, target_language, status, error_messages, stats, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.RepoName, nullIfEmpty(m.RepoURL), nullIfEmpty(m.CommitHash),
		nullIfEmpty(m.SourceLanguage), nullIfEmpty(m.TargetLanguage),
		m.Status, nullIfEmpty(marshalJSON(m.ErrorMessages)), nullIfEmpty(marshalJSON(m.Stats)),
		m.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("create ingest migration: %w", err)
	}
	return nil
}

// UpdateMigrationStatus finalizes a migration's status, errors, and
// statistics.
func (s *Store) UpdateMigrationStatus(id, status string, errs []string, stats *MigrationStats) error {
	var statsJSON any
	if stats != nil {
		statsJSON = nullIfEmpty(marshalJSON(*stats))
	}
	_, err := s.db.Exec(
		`UPDATE ingest_migrations
		 SET status = ?, error_messages = ?, stats = COALESCE(?, stats), finished_at = ?
		 WHERE id = ?`,
		status, nullIfEmpty(marshalJSON(errs)), statsJSON, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update migration %s: %w", id, err)
	}
	return nil
}

// IngestMigrationByID loads one migration, or nil when absent.
func (s *Store) IngestMigrationByID(id string) (*IngestMigration, error) {
	row := s.db.QueryRow(
		`SELECT id, repo_name, repo_url, commit_hash, source_language, target_language,
		        status, error_messages, stats, started_at, finished_at
		 FROM ingest_migrations WHERE id = ?`, id,
	)
	m := &IngestMigration{}
	var repoURL, commitHash, srcLang, tgtLang, errsJSON, statsJSON sql.NullString
	var started, finished sql.NullTime
	err := row.Scan(&m.ID, &m.RepoName, &repoURL, &commitHash, &srcLang, &tgtLang,
		&m.Status, &errsJSON, &statsJSON, &started, &finished)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("migration by id: %w", err)
	}
	m.RepoURL = stringOrEmpty(repoURL)
	m.CommitHash = stringOrEmpty(commitHash)
	m.SourceLanguage = stringOrEmpty(srcLang)
	m.TargetLanguage = stringOrEmpty(tgtLang)
	m.ErrorMessages = unmarshalStrings(stringOrEmpty(errsJSON))
	if statsJSON.Valid {
		var stats MigrationStats
		if err := unmarshalInto(statsJSON.String, &stats); err == nil {
			m.Stats = stats
		}
	}
	if started.Valid {
		m.StartedAt = started.Time
	}
	if finished.Valid {
		m.FinishedAt = finished.Time
	}
	return m, nil
}

// DeleteIngestMigration removes a migration and, through ownership
// cascades, all of its containers, blocks, relationships, and versions.
func (s *Store) DeleteIngestMigration(id string) error {
	if _, err := s.db.Exec("DELETE FROM ingest_migrations WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete migration %s: %w", id, err)
	}
	return nil
}

// AddDiagnostic attaches a per-file notice to a migration.
func (s *Store) AddDiagnostic(d *Diagnostic) error {
	_, err := s.db.Exec(
		"INSERT INTO diagnostics (migration_id, path, kind, message) VALUES (?, ?, ?, ?)",
		d.MigrationID, nullIfEmpty(d.Path), d.Kind, nullIfEmpty(d.Message),
	)
	if err != nil {
		return fmt.Errorf("add diagnostic: %w", err)
	}
	return nil
}

// DiagnosticsByMigration lists diagnostics in insertion order.
func (s *Store) DiagnosticsByMigration(migrationID string) ([]*Diagnostic, error) {
	rows, err := s.db.Query(
		"SELECT id, migration_id, path, kind, message FROM diagnostics WHERE migration_id = ? ORDER BY id",
		migrationID,
	)
	if err != nil {
		return nil, fmt.Errorf("diagnostics: %w", err)
	}
	defer rows.Close()

	var out []*Diagnostic
	for rows.Next() {
		d := &Diagnostic{}
		var path, msg sql.NullString
		if err := rows.Scan(&d.ID, &d.MigrationID, &path, &d.Kind, &msg); err != nil {
			return nil, fmt.Errorf("diagnostics: scan: %w", err)
		}
		d.Path = stringOrEmpty(path)
		d.Message = stringOrEmpty(msg)
		out = append(out, d)
	}
	return out, rows.Err()
}

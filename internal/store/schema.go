package store

import (
	"crypto/sha256"
	"fmt"
	"time"
)

// schemaMigration is one forward-only schema change. Migrations are
// identified by a timestamp version, applied at most once, each inside
// its own transaction, and recorded in schema_migrations with a content
// checksum. Structural changes are additive; data is never dropped.
type schemaMigration struct {
	Version string
	Name    string
	DDL     string
}

var schemaMigrations = []schemaMigration{
	{
		Version: "20250301000000",
		Name:    "core_graph",
		DDL: `
CREATE TABLE IF NOT EXISTS metadata (
  key             TEXT PRIMARY KEY,
  value           TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS ingest_migrations (
  id              TEXT PRIMARY KEY,
  repo_name       TEXT NOT NULL,
  repo_url        TEXT,
  commit_hash     TEXT,
  source_language TEXT,
  target_language TEXT,
  status          TEXT NOT NULL DEFAULT 'pending',
  error_messages  TEXT,
  stats           TEXT,
  started_at      TIMESTAMP,
  finished_at     TIMESTAMP
);

CREATE TABLE IF NOT EXISTS containers (
  id              INTEGER PRIMARY KEY,
  migration_id    TEXT NOT NULL REFERENCES ingest_migrations(id) ON DELETE CASCADE,
  name            TEXT NOT NULL,
  container_type  TEXT NOT NULL DEFAULT 'file',
  language        TEXT NOT NULL,
  original_path   TEXT NOT NULL,
  original_hash   TEXT NOT NULL,
  version         INTEGER NOT NULL DEFAULT 1,
  semantic_summary TEXT,
  parse_meta      TEXT,
  format_prefs    TEXT,
  reconstruction_hints TEXT,
  created_at      TIMESTAMP,
  updated_at      TIMESTAMP,
  UNIQUE(migration_id, name, original_path)
);

CREATE TABLE IF NOT EXISTS blocks (
  id              INTEGER PRIMARY KEY,
  container_id    INTEGER NOT NULL REFERENCES containers(id) ON DELETE CASCADE,
  block_type      TEXT NOT NULL,
  semantic_name   TEXT,
  raw_text        TEXT NOT NULL,
  normalized_structure TEXT NOT NULL,
  token_sequence  TEXT,
  position        INTEGER NOT NULL,
  indent_level    INTEGER NOT NULL DEFAULT 0,
  parent_block_id INTEGER REFERENCES blocks(id) ON DELETE CASCADE,
  position_in_parent INTEGER NOT NULL DEFAULT 0,
  depth_level     INTEGER NOT NULL DEFAULT 0,
  hierarchical_index INTEGER NOT NULL,
  parameters      TEXT,
  return_type     TEXT,
  modifiers       TEXT,
  decorators      TEXT,
  language_features TEXT,
  cyclomatic_complexity INTEGER NOT NULL DEFAULT 1,
  cognitive_complexity INTEGER NOT NULL DEFAULT 0,
  lines_of_code   INTEGER NOT NULL DEFAULT 0,
  scope_info      TEXT,
  semantic_signature TEXT,
  attached_comments TEXT,
  dependency_info TEXT,
  semantic_hash   TEXT NOT NULL,
  syntax_hash     TEXT NOT NULL,
  start_byte      INTEGER NOT NULL DEFAULT 0,
  end_byte        INTEGER NOT NULL DEFAULT 0,
  start_line      INTEGER NOT NULL DEFAULT 0,
  end_line        INTEGER NOT NULL DEFAULT 0,
  source_language TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS block_relationships (
  id              INTEGER PRIMARY KEY,
  source_block_id INTEGER NOT NULL REFERENCES blocks(id) ON DELETE CASCADE,
  target_block_id INTEGER REFERENCES blocks(id) ON DELETE CASCADE,
  target_name     TEXT,
  relationship_type TEXT NOT NULL,
  strength        REAL NOT NULL DEFAULT 1.0,
  bidirectional   INTEGER NOT NULL DEFAULT 0,
  unresolved      INTEGER NOT NULL DEFAULT 0,
  metadata        TEXT,
  UNIQUE(source_block_id, target_block_id, relationship_type)
);

CREATE TABLE IF NOT EXISTS block_versions (
  id              INTEGER PRIMARY KEY,
  block_id        INTEGER NOT NULL REFERENCES blocks(id) ON DELETE CASCADE,
  version_number  INTEGER NOT NULL,
  semantic_hash   TEXT NOT NULL,
  syntax_hash     TEXT NOT NULL,
  parent_version  INTEGER REFERENCES block_versions(id) ON DELETE CASCADE,
  breaking_change INTEGER NOT NULL DEFAULT 0,
  change_type     TEXT,
  change_description TEXT,
  llm_provider    TEXT,
  llm_model       TEXT,
  llm_prompt_id   TEXT,
  llm_temperature REAL,
  llm_reasoning   TEXT,
  created_at      TIMESTAMP,
  UNIQUE(block_id, version_number)
);

CREATE TABLE IF NOT EXISTS diagnostics (
  id              INTEGER PRIMARY KEY,
  migration_id    TEXT NOT NULL REFERENCES ingest_migrations(id) ON DELETE CASCADE,
  path            TEXT,
  kind            TEXT NOT NULL,
  message         TEXT
);

CREATE INDEX IF NOT EXISTS idx_containers_migration ON containers(migration_id);
CREATE INDEX IF NOT EXISTS idx_blocks_container ON blocks(container_id);
CREATE INDEX IF NOT EXISTS idx_blocks_parent ON blocks(parent_block_id);
CREATE INDEX IF NOT EXISTS idx_blocks_name ON blocks(semantic_name);
CREATE INDEX IF NOT EXISTS idx_blocks_language ON blocks(source_language);
CREATE INDEX IF NOT EXISTS idx_relationships_source ON block_relationships(source_block_id);
CREATE INDEX IF NOT EXISTS idx_relationships_target ON block_relationships(target_block_id);
CREATE INDEX IF NOT EXISTS idx_relationships_type ON block_relationships(relationship_type);
CREATE INDEX IF NOT EXISTS idx_versions_block ON block_versions(block_id);
CREATE INDEX IF NOT EXISTS idx_versions_semantic_hash ON block_versions(semantic_hash);
CREATE INDEX IF NOT EXISTS idx_diagnostics_migration ON diagnostics(migration_id);
`,
	},
	{
		Version: "20250301000001",
		Name:    "semantic_vcs",
		DDL: `
CREATE TABLE IF NOT EXISTS branches (
  repo            TEXT NOT NULL,
  name            TEXT NOT NULL,
  head_commit     TEXT,
  base_commit     TEXT,
  created_at      TIMESTAMP,
  PRIMARY KEY(repo, name)
);

CREATE TABLE IF NOT EXISTS commits (
  hash            TEXT PRIMARY KEY,
  branch          TEXT,
  parent_hash     TEXT,
  author          TEXT NOT NULL,
  message         TEXT,
  created_at      TIMESTAMP
);

CREATE TABLE IF NOT EXISTS commit_changes (
  id              INTEGER PRIMARY KEY,
  commit_hash     TEXT NOT NULL REFERENCES commits(hash) ON DELETE CASCADE,
  block_id        INTEGER NOT NULL,
  change_kind     TEXT NOT NULL,
  before_version  INTEGER,
  after_version   INTEGER
);

CREATE TABLE IF NOT EXISTS merge_conflicts (
  id              INTEGER PRIMARY KEY,
  block_id        INTEGER NOT NULL,
  base_version    INTEGER,
  left_version    INTEGER NOT NULL,
  right_version   INTEGER NOT NULL,
  resolved_version INTEGER,
  created_at      TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_commits_branch ON commits(branch);
CREATE INDEX IF NOT EXISTS idx_commit_changes_commit ON commit_changes(commit_hash);
CREATE INDEX IF NOT EXISTS idx_commit_changes_block ON commit_changes(block_id);
`,
	},
	{
		Version: "20250301000002",
		Name:    "llm_interactions",
		DDL: `
CREATE TABLE IF NOT EXISTS llm_interactions (
  id              TEXT PRIMARY KEY,
  block_version_id INTEGER REFERENCES block_versions(id) ON DELETE SET NULL,
  provider        TEXT NOT NULL,
  model           TEXT NOT NULL,
  prompt_id       TEXT,
  temperature     REAL,
  request         TEXT,
  response        TEXT,
  tokens_used     INTEGER,
  latency_ms      INTEGER,
  created_at      TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_llm_interactions_version ON llm_interactions(block_version_id);
`,
	},
}

// Migrate applies all pending schema migrations in order. Each runs in
// its own transaction and is recorded with a checksum; a checksum
// mismatch against a previously applied version is an error. The FTS5
// search table is created best-effort afterwards.
func (s *Store) Migrate() error {
	if _, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS schema_migrations (
  version         TEXT PRIMARY KEY,
  name            TEXT NOT NULL,
  checksum        TEXT NOT NULL,
  applied_at      TIMESTAMP NOT NULL
)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	for _, m := range schemaMigrations {
		checksum := fmt.Sprintf("%x", sha256.Sum256([]byte(m.DDL)))

		var applied string
		err := s.db.QueryRow("SELECT checksum FROM schema_migrations WHERE version = ?", m.Version).Scan(&applied)
		if err == nil {
			if applied != checksum {
				return fmt.Errorf("migration %s (%s): checksum mismatch, applied %s != current %s",
					m.Version, m.Name, applied[:8], checksum[:8])
			}
			continue
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("migration %s: begin: %w", m.Version, err)
		}
		if _, err := tx.Exec(m.DDL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %s (%s): %w", m.Version, m.Name, err)
		}
		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, name, checksum, applied_at) VALUES (?, ?, ?, ?)",
			m.Version, m.Name, checksum, time.Now().UTC(),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %s: record: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %s: commit: %w", m.Version, err)
		}
	}

	s.ensureFTS()
	return nil
}

// ensureFTS creates the FTS5 search table and its sync triggers. Not all
// SQLite builds ship FTS5, so failure just disables ranked search.
func (s *Store) ensureFTS() {
	_, err := s.db.Exec(`
CREATE VIRTUAL TABLE IF NOT EXISTS block_search USING fts5(
  semantic_name, raw_text, content='blocks', content_rowid='id'
);
CREATE TRIGGER IF NOT EXISTS blocks_fts_insert AFTER INSERT ON blocks BEGIN
  INSERT INTO block_search(rowid, semantic_name, raw_text)
  VALUES (new.id, COALESCE(new.semantic_name, ''), new.raw_text);
END;
CREATE TRIGGER IF NOT EXISTS blocks_fts_delete AFTER DELETE ON blocks BEGIN
  INSERT INTO block_search(block_search, rowid, semantic_name, raw_text)
  VALUES ('delete', old.id, COALESCE(old.semantic_name, ''), old.raw_text);
END;
`)
	s.fts = err == nil
}

package store

import (
	"database/sql"
	"fmt"
	"time"
)

// --- Branches ---

// UpsertBranch creates a branch or moves its head.
func (s *Store) UpsertBranch(b *Branch) error {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO branches (repo, name, head_commit, base_commit, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(repo, name) DO UPDATE SET head_commit = excluded.head_commit`,
		b.Repo, b.Name, nullIfEmpty(b.HeadCommit), nullIfEmpty(b.BaseCommit), b.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert branch %s/%s: %w", b.Repo, b.Name, err)
	}
	return nil
}

// BranchByName loads one branch, or nil when absent.
func (s *Store) BranchByName(repo, name string) (*Branch, error) {
	row := s.db.QueryRow(
		"SELECT repo, name, head_commit, base_commit, created_at FROM branches WHERE repo = ? AND name = ?",
		repo, name,
	)
	b := &Branch{}
	var head, base sql.NullString
	var created sql.NullTime
	err := row.Scan(&b.Repo, &b.Name, &head, &base, &created)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("branch %s/%s: %w", repo, name, err)
	}
	b.HeadCommit = stringOrEmpty(head)
	b.BaseCommit = stringOrEmpty(base)
	if created.Valid {
		b.CreatedAt = created.Time
	}
	return b, nil
}

// --- Commits ---

// InsertCommit records an immutable commit with its changes in one
// transaction.
func (s *Store) InsertCommit(c *Commit, changes []*CommitChange) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("insert commit: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO commits (hash, branch, parent_hash, author, message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		c.Hash, nullIfEmpty(c.Branch), nullIfEmpty(c.ParentHash), c.Author, c.Message, c.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert commit %s: %w", c.Hash, err)
	}
	for _, ch := range changes {
		if _, err := tx.Exec(
			`INSERT INTO commit_changes (commit_hash, block_id, change_kind, before_version, after_version)
			 VALUES (?, ?, ?, ?, ?)`,
			c.Hash, ch.BlockID, ch.ChangeKind, ch.BeforeVersion, ch.AfterVersion,
		); err != nil {
			return fmt.Errorf("insert commit change: %w", err)
		}
	}
	return tx.Commit()
}

// CommitByHash loads one commit, or nil when absent.
func (s *Store) CommitByHash(hash string) (*Commit, error) {
	row := s.db.QueryRow(
		"SELECT hash, branch, parent_hash, author, message, created_at FROM commits WHERE hash = ?", hash,
	)
	c := &Commit{}
	var branch, parent sql.NullString
	var created sql.NullTime
	err := row.Scan(&c.Hash, &branch, &parent, &c.Author, &c.Message, &created)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("commit %s: %w", hash, err)
	}
	c.Branch = stringOrEmpty(branch)
	c.ParentHash = stringOrEmpty(parent)
	if created.Valid {
		c.CreatedAt = created.Time
	}
	return c, nil
}

// ChangesByCommit lists a commit's changes in insertion order.
func (s *Store) ChangesByCommit(hash string) ([]*CommitChange, error) {
	rows, err := s.db.Query(
		`SELECT id, commit_hash, block_id, change_kind, before_version, after_version
		 FROM commit_changes WHERE commit_hash = ? ORDER BY id`, hash,
	)
	if err != nil {
		return nil, fmt.Errorf("changes by commit: %w", err)
	}
	defer rows.Close()

	var out []*CommitChange
	for rows.Next() {
		ch := &CommitChange{}
		if err := rows.Scan(&ch.ID, &ch.CommitHash, &ch.BlockID, &ch.ChangeKind,
			&ch.BeforeVersion, &ch.AfterVersion); err != nil {
			return nil, fmt.Errorf("changes by commit: scan: %w", err)
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

// --- Merge conflicts ---

// InsertMergeConflict records a both-sides-changed block.
func (s *Store) InsertMergeConflict(mc *MergeConflict) (int64, error) {
	if mc.CreatedAt.IsZero() {
		mc.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.Exec(
		`INSERT INTO merge_conflicts (block_id, base_version, left_version, right_version, resolved_version, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		mc.BlockID, mc.BaseVersion, mc.LeftVersion, mc.RightVersion, mc.ResolvedVersion, mc.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert merge conflict: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	mc.ID = id
	return id, nil
}

// ResolveMergeConflict records the externally supplied resolution
// version for a conflict.
func (s *Store) ResolveMergeConflict(id, resolvedVersion int64) error {
	res, err := s.db.Exec(
		"UPDATE merge_conflicts SET resolved_version = ? WHERE id = ? AND resolved_version IS NULL",
		resolvedVersion, id,
	)
	if err != nil {
		return fmt.Errorf("resolve conflict %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("resolve conflict %d: not found or already resolved", id)
	}
	return nil
}

// OpenMergeConflicts lists unresolved conflicts in creation order.
func (s *Store) OpenMergeConflicts() ([]*MergeConflict, error) {
	rows, err := s.db.Query(
		`SELECT id, block_id, base_version, left_version, right_version, resolved_version, created_at
		 FROM merge_conflicts WHERE resolved_version IS NULL ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("open conflicts: %w", err)
	}
	defer rows.Close()

	var out []*MergeConflict
	for rows.Next() {
		mc := &MergeConflict{}
		var created sql.NullTime
		if err := rows.Scan(&mc.ID, &mc.BlockID, &mc.BaseVersion, &mc.LeftVersion,
			&mc.RightVersion, &mc.ResolvedVersion, &created); err != nil {
			return nil, fmt.Errorf("open conflicts: scan: %w", err)
		}
		if created.Valid {
			mc.CreatedAt = created.Time
		}
		out = append(out, mc)
	}
	return out, rows.Err()
}

// --- LLM interactions ---

// InsertLLMInteraction records one exchange with an external model.
func (s *Store) InsertLLMInteraction(li *LLMInteraction) error {
	if li.CreatedAt.IsZero() {
		li.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO llm_interactions
		 (id, block_version_id, provider, model, prompt_id, temperature, request, response, tokens_used, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		li.ID, li.BlockVersionID, li.Provider, li.Model, nullIfEmpty(li.PromptID),
		li.Temperature, nullIfEmpty(li.Request), nullIfEmpty(li.Response),
		li.TokensUsed, li.LatencyMS, li.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert llm interaction: %w", err)
	}
	return nil
}

// LLMInteractionsByVersion lists interactions attributed to a version.
func (s *Store) LLMInteractionsByVersion(versionID int64) ([]*LLMInteraction, error) {
	rows, err := s.db.Query(
		`SELECT id, block_version_id, provider, model, prompt_id, temperature, request, response,
		        tokens_used, latency_ms, created_at
		 FROM llm_interactions WHERE block_version_id = ? ORDER BY created_at`, versionID,
	)
	if err != nil {
		return nil, fmt.Errorf("llm interactions: %w", err)
	}
	defer rows.Close()

	var out []*LLMInteraction
	for rows.Next() {
		li := &LLMInteraction{}
		var promptID, request, response sql.NullString
		var created sql.NullTime
		if err := rows.Scan(&li.ID, &li.BlockVersionID, &li.Provider, &li.Model, &promptID,
			&li.Temperature, &request, &response, &li.TokensUsed, &li.LatencyMS, &created); err != nil {
			return nil, fmt.Errorf("llm interactions: scan: %w", err)
		}
		li.PromptID = stringOrEmpty(promptID)
		li.Request = stringOrEmpty(request)
		li.Response = stringOrEmpty(response)
		if created.Valid {
			li.CreatedAt = created.Time
		}
		out = append(out, li)
	}
	return out, rows.Err()
}

package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jward/trellis/internal/fault"
)

const versionColumns = `id, block_id, version_number, semantic_hash, syntax_hash, parent_version,
	breaking_change, change_type, change_description, llm_provider, llm_model, llm_prompt_id,
	llm_temperature, llm_reasoning, created_at`

// InsertBlockVersion appends an immutable version row. The version
// number must be exactly one past the block's latest; versions after the
// first must chain to their parent.
func (s *Store) InsertBlockVersion(v *BlockVersion) (int64, error) {
	latest, err := s.LatestBlockVersion(v.BlockID)
	if err != nil {
		return 0, err
	}
	next := 1
	if latest != nil {
		next = latest.VersionNumber + 1
	}
	if v.VersionNumber == 0 {
		v.VersionNumber = next
	}
	if v.VersionNumber != next {
		return 0, fault.Newf(fault.KindSemantic, "insert version",
			"block %d: version %d out of order, next is %d", v.BlockID, v.VersionNumber, next)
	}
	if v.VersionNumber > 1 {
		if v.ParentVersion == nil {
			v.ParentVersion = &latest.ID
		} else if *v.ParentVersion != latest.ID {
			return 0, fault.Newf(fault.KindSemantic, "insert version",
				"block %d: parent version %d is not the latest (%d)", v.BlockID, *v.ParentVersion, latest.ID)
		}
	}
	return insertBlockVersionTx(s.db, v)
}

func insertBlockVersionTx(e execer, v *BlockVersion) (int64, error) {
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	var provider, model, promptID, reasoning any
	var temperature any
	if v.LLM != nil {
		provider = v.LLM.Provider
		model = v.LLM.Model
		promptID = nullIfEmpty(v.LLM.PromptID)
		temperature = v.LLM.Temperature
		reasoning = nullIfEmpty(v.LLM.Reasoning)
	}
	res, err := e.Exec(
		`INSERT INTO block_versions
		 (block_id, version_number, semantic_hash, syntax_hash, parent_version, breaking_change,
		  change_type, change_description, llm_provider, llm_model, llm_prompt_id, llm_temperature,
		  llm_reasoning, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.BlockID, v.VersionNumber, v.SemanticHash, v.SyntaxHash, v.ParentVersion, v.Breaking,
		nullIfEmpty(v.ChangeType), nullIfEmpty(v.ChangeDesc),
		provider, model, promptID, temperature, reasoning, v.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert block version: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	v.ID = id
	return id, nil
}

func scanBlockVersion(row rowScanner) (*BlockVersion, error) {
	v := &BlockVersion{}
	var changeType, changeDesc, provider, model, promptID, reasoning sql.NullString
	var temperature sql.NullFloat64
	var created sql.NullTime
	err := row.Scan(&v.ID, &v.BlockID, &v.VersionNumber, &v.SemanticHash, &v.SyntaxHash,
		&v.ParentVersion, &v.Breaking, &changeType, &changeDesc,
		&provider, &model, &promptID, &temperature, &reasoning, &created)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan block version: %w", err)
	}
	v.ChangeType = stringOrEmpty(changeType)
	v.ChangeDesc = stringOrEmpty(changeDesc)
	if provider.Valid {
		v.LLM = &LLMAttribution{
			Provider:    provider.String,
			Model:       stringOrEmpty(model),
			PromptID:    stringOrEmpty(promptID),
			Temperature: temperature.Float64,
			Reasoning:   stringOrEmpty(reasoning),
		}
	}
	if created.Valid {
		v.CreatedAt = created.Time
	}
	return v, nil
}

// BlockVersionByID loads one version, or nil when absent.
func (s *Store) BlockVersionByID(id int64) (*BlockVersion, error) {
	return scanBlockVersion(s.db.QueryRow("SELECT "+versionColumns+" FROM block_versions WHERE id = ?", id))
}

// LatestBlockVersion returns the highest-numbered version of a block, or
// nil when the block has none.
func (s *Store) LatestBlockVersion(blockID int64) (*BlockVersion, error) {
	return scanBlockVersion(s.db.QueryRow(
		"SELECT "+versionColumns+" FROM block_versions WHERE block_id = ? ORDER BY version_number DESC LIMIT 1",
		blockID,
	))
}

// BlockVersions lists a block's versions in ascending order.
func (s *Store) BlockVersions(blockID int64) ([]*BlockVersion, error) {
	rows, err := s.db.Query(
		"SELECT "+versionColumns+" FROM block_versions WHERE block_id = ? ORDER BY version_number",
		blockID,
	)
	if err != nil {
		return nil, fmt.Errorf("block versions: %w", err)
	}
	defer rows.Close()

	var out []*BlockVersion
	for rows.Next() {
		v, err := scanBlockVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// VersionsBySemanticHash lists versions sharing a semantic hash, used to
// spot semantically identical edits across branches.
func (s *Store) VersionsBySemanticHash(hash string) ([]*BlockVersion, error) {
	rows, err := s.db.Query(
		"SELECT "+versionColumns+" FROM block_versions WHERE semantic_hash = ? ORDER BY id", hash,
	)
	if err != nil {
		return nil, fmt.Errorf("versions by hash: %w", err)
	}
	defer rows.Close()

	var out []*BlockVersion
	for rows.Next() {
		v, err := scanBlockVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

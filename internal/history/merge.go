package history

import (
	"fmt"

	"github.com/jward/trellis/internal/store"
)

// MergeOutcome is the per-block result of a three-way merge.
type MergeOutcome struct {
	BlockID  int64
	Winner   *store.BlockVersion // nil when conflicted
	Conflict *store.MergeConflict
}

// MergeResult aggregates a branch-level merge.
type MergeResult struct {
	Outcomes  []MergeOutcome
	Conflicts int
}

// Merger performs three-way merges between branch heads.
type Merger struct {
	store     *store.Store
	committer *Committer
}

// NewMerger wraps a store.
func NewMerger(s *store.Store) *Merger {
	return &Merger{store: s, committer: NewCommitter(s)}
}

// MergeBlock merges one block given its common-ancestor, left, and right
// versions:
//
//   - only one side changed relative to the ancestor: that side wins;
//   - both sides made semantically identical changes: accepted once;
//   - both changed with differing hashes: a conflict record is written
//     referencing both versions. Resolution is external and recorded via
//     ResolveConflict as a new version citing both parents.
func (m *Merger) MergeBlock(blockID int64, ancestor, left, right *store.BlockVersion) (MergeOutcome, error) {
	ancestorHash := ""
	var baseID *int64
	if ancestor != nil {
		ancestorHash = ancestor.SemanticHash
		baseID = &ancestor.ID
	}

	leftChanged := left != nil && left.SemanticHash != ancestorHash
	rightChanged := right != nil && right.SemanticHash != ancestorHash

	switch {
	case !leftChanged && !rightChanged:
		return MergeOutcome{BlockID: blockID, Winner: ancestor}, nil
	case leftChanged && !rightChanged:
		return MergeOutcome{BlockID: blockID, Winner: left}, nil
	case !leftChanged && rightChanged:
		return MergeOutcome{BlockID: blockID, Winner: right}, nil
	case left.SemanticHash == right.SemanticHash:
		return MergeOutcome{BlockID: blockID, Winner: left}, nil
	}

	conflict := &store.MergeConflict{
		BlockID:      blockID,
		BaseVersion:  baseID,
		LeftVersion:  left.ID,
		RightVersion: right.ID,
	}
	if _, err := m.store.InsertMergeConflict(conflict); err != nil {
		return MergeOutcome{}, fmt.Errorf("merge block %d: %w", blockID, err)
	}
	return MergeOutcome{BlockID: blockID, Conflict: conflict}, nil
}

// Merge performs a per-block three-way merge of two branch heads on the
// same repository. Blocks touched by either side since the common
// ancestor are merged individually; the result lists winners and
// conflict records.
func (m *Merger) Merge(repo, leftBranch, rightBranch string) (*MergeResult, error) {
	left, err := m.store.BranchByName(repo, leftBranch)
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	right, err := m.store.BranchByName(repo, rightBranch)
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	if left == nil || right == nil {
		return nil, fmt.Errorf("merge: branch not found on %s", repo)
	}

	ancestorHash, err := m.committer.CommonAncestor(left.HeadCommit, right.HeadCommit)
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}

	leftHeads, err := m.blockHeads(left.HeadCommit, ancestorHash)
	if err != nil {
		return nil, err
	}
	rightHeads, err := m.blockHeads(right.HeadCommit, ancestorHash)
	if err != nil {
		return nil, err
	}
	baseHeads, err := m.blockHeads(ancestorHash, "")
	if err != nil {
		return nil, err
	}

	touched := make(map[int64]bool)
	for id := range leftHeads {
		touched[id] = true
	}
	for id := range rightHeads {
		touched[id] = true
	}

	result := &MergeResult{}
	for blockID := range touched {
		outcome, err := m.MergeBlock(blockID,
			m.versionOrNil(baseHeads[blockID]),
			m.versionOrNil(leftHeads[blockID]),
			m.versionOrNil(rightHeads[blockID]))
		if err != nil {
			return nil, err
		}
		if outcome.Conflict != nil {
			result.Conflicts++
		}
		result.Outcomes = append(result.Outcomes, outcome)
	}
	return result, nil
}

// blockHeads maps block id to the latest version id recorded by the
// commit chain from head back to (exclusive) stop.
func (m *Merger) blockHeads(head, stop string) (map[int64]int64, error) {
	heads := make(map[int64]int64)
	chain, err := m.committer.AncestorChain(head)
	if err != nil {
		return nil, err
	}
	for _, hash := range chain {
		if hash == stop {
			break
		}
		changes, err := m.store.ChangesByCommit(hash)
		if err != nil {
			return nil, err
		}
		for _, ch := range changes {
			if _, seen := heads[ch.BlockID]; seen {
				continue // a newer commit already claimed this block
			}
			if ch.AfterVersion != nil {
				heads[ch.BlockID] = *ch.AfterVersion
			}
		}
	}
	return heads, nil
}

func (m *Merger) versionOrNil(id int64) *store.BlockVersion {
	if id == 0 {
		return nil
	}
	v, err := m.store.BlockVersionByID(id)
	if err != nil {
		return nil
	}
	return v
}

// ResolveConflict records an externally supplied resolution as the
// conflict's outcome. The resolution version cites both parents through
// the conflict row.
func (m *Merger) ResolveConflict(conflictID, resolvedVersionID int64) error {
	return m.store.ResolveMergeConflict(conflictID, resolvedVersionID)
}

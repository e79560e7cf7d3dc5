package store

import (
	"fmt"

	"github.com/jward/trellis/internal/fault"
)

// BatchRelationship is an edge staged for a container commit. Indexes
// refer into the batch's Blocks slice; TargetIndex of -1 marks an
// unresolved edge carried by name.
type BatchRelationship struct {
	SourceIndex int
	TargetIndex int
	TargetName  string
	Type        string
	Strength    float64
	Unresolved  bool
	Metadata    map[string]any
}

// ContainerBatch stages one container and its full block tree for a
// single-transaction commit. Blocks are in hierarchical (preorder)
// order; Parents[i] is the index of block i's parent, -1 for the root.
type ContainerBatch struct {
	Container     *Container
	Blocks        []*Block
	Parents       []int
	Relationships []BatchRelationship
}

// Validate enforces the structural invariants before any row is
// written: preorder parents, matched depths, and unique sibling
// positions. Violations are semantic faults.
func (cb *ContainerBatch) Validate() error {
	if len(cb.Blocks) != len(cb.Parents) {
		return fault.Newf(fault.KindSemantic, "validate batch",
			"blocks/parents length mismatch: %d != %d", len(cb.Blocks), len(cb.Parents))
	}
	seenSibling := make(map[[2]int]bool) // (parent, position_in_parent)
	seenRoot := make(map[int]bool)
	for i, b := range cb.Blocks {
		p := cb.Parents[i]
		if p >= i {
			return fault.Newf(fault.KindSemantic, "validate batch",
				"block %d: parent %d does not precede it", i, p)
		}
		if p < 0 {
			if b.DepthLevel != 0 {
				return fault.Newf(fault.KindSemantic, "validate batch",
					"root block %d has depth %d", i, b.DepthLevel)
			}
			if seenRoot[b.Position] {
				return fault.Newf(fault.KindSemantic, "validate batch",
					"duplicate root position %d", b.Position)
			}
			seenRoot[b.Position] = true
			continue
		}
		parent := cb.Blocks[p]
		if b.DepthLevel != parent.DepthLevel+1 {
			return fault.Newf(fault.KindSemantic, "validate batch",
				"block %d: depth %d != parent depth %d + 1", i, b.DepthLevel, parent.DepthLevel)
		}
		key := [2]int{p, b.PositionInParent}
		if seenSibling[key] {
			return fault.Newf(fault.KindSemantic, "validate batch",
				"duplicate sibling position %d under parent %d", b.PositionInParent, p)
		}
		seenSibling[key] = true
	}
	for _, r := range cb.Relationships {
		if r.SourceIndex < 0 || r.SourceIndex >= len(cb.Blocks) {
			return fault.Newf(fault.KindSemantic, "validate batch",
				"relationship source index %d out of range", r.SourceIndex)
		}
		if r.TargetIndex >= len(cb.Blocks) {
			return fault.Newf(fault.KindSemantic, "validate batch",
				"relationship target index %d out of range", r.TargetIndex)
		}
	}
	return nil
}

// CommitContainer writes a staged container in a single transaction:
// the container row, every block, every relationship, and the initial
// version of each block commit together or not at all. Returns the
// container id and the block ids in batch order.
func (s *Store) CommitContainer(cb *ContainerBatch) (int64, []int64, error) {
	if err := cb.Validate(); err != nil {
		return 0, nil, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, nil, fault.New(fault.KindStorage, "commit container", err)
	}
	defer tx.Rollback()

	containerID, err := insertContainerTx(tx, cb.Container)
	if err != nil {
		return 0, nil, fault.New(fault.KindStorage, "commit container",
			fmt.Errorf("container %s: %w", cb.Container.OriginalPath, err))
	}

	// Preorder guarantees parents are inserted before children.
	blockIDs := make([]int64, len(cb.Blocks))
	for i, b := range cb.Blocks {
		b.ContainerID = containerID
		if p := cb.Parents[i]; p >= 0 {
			b.ParentBlockID = &blockIDs[p]
		}
		id, err := insertBlockTx(tx, b)
		if err != nil {
			return 0, nil, fault.New(fault.KindStorage, "commit container",
				fmt.Errorf("block %d (%s): %w", i, b.SemanticName, err))
		}
		blockIDs[i] = id
		b.ID = id
	}

	for _, r := range cb.Relationships {
		rel := &Relationship{
			SourceBlockID: blockIDs[r.SourceIndex],
			TargetName:    r.TargetName,
			Type:          r.Type,
			Strength:      r.Strength,
			Unresolved:    r.Unresolved,
			Metadata:      r.Metadata,
		}
		if r.TargetIndex >= 0 {
			rel.TargetBlockID = &blockIDs[r.TargetIndex]
		}
		if r.Unresolved {
			if rel.Metadata == nil {
				rel.Metadata = map[string]any{}
			}
			rel.Metadata["unresolved"] = true
		}
		if _, err := insertRelationshipTx(tx, rel); err != nil {
			return 0, nil, fault.New(fault.KindStorage, "commit container",
				fmt.Errorf("relationship %s: %w", r.Type, err))
		}
	}

	// Initial version for every block.
	for i, b := range cb.Blocks {
		v := &BlockVersion{
			BlockID:       blockIDs[i],
			VersionNumber: 1,
			SemanticHash:  b.SemanticHash,
			SyntaxHash:    b.SyntaxHash,
			ChangeType:    "created",
		}
		if _, err := insertBlockVersionTx(tx, v); err != nil {
			return 0, nil, fault.New(fault.KindStorage, "commit container",
				fmt.Errorf("initial version for block %d: %w", i, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, nil, fault.New(fault.KindStorage, "commit container", err)
	}
	return containerID, blockIDs, nil
}

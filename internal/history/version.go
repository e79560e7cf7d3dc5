package history

import (
	"fmt"

	"github.com/jward/trellis/internal/extract"
	"github.com/jward/trellis/internal/store"
)

// inboundBreakingTypes are the relationship types whose presence turns a
// rename or signature change into a breaking one.
var inboundBreakingTypes = map[string]bool{
	"calls":      true,
	"implements": true,
	"inherits":   true,
}

// VersionOptions carries optional metadata for a new version.
type VersionOptions struct {
	Description string
	LLM         *store.LLMAttribution
}

// Versioner creates block versions against the store.
type Versioner struct {
	store *store.Store
}

// NewVersioner wraps a store.
func NewVersioner(s *store.Store) *Versioner {
	return &Versioner{store: s}
}

// CreateVersion records a new revision of a block from its edited state.
// The diff against the block's current state is classified, hashes are
// recomputed from the new state, and the breaking-change rule is
// applied: a version is breaking iff the diff includes a rename or
// signature change and at least one inbound calls, implements, or
// inherits edge targets the block. The version chains to the block's
// latest; version numbers stay strictly monotonic.
func (v *Versioner) CreateVersion(blockID int64, next BlockState, opts VersionOptions) (*store.BlockVersion, []ChangeKind, error) {
	block, err := v.store.BlockByID(blockID)
	if err != nil {
		return nil, nil, fmt.Errorf("create version: %w", err)
	}
	if block == nil {
		return nil, nil, fmt.Errorf("create version: block %d not found", blockID)
	}

	prev := StateOfBlock(block)
	changes := Diff(prev, next)
	if len(changes) == 0 {
		latest, err := v.store.LatestBlockVersion(blockID)
		if err != nil {
			return nil, nil, fmt.Errorf("create version: %w", err)
		}
		return latest, nil, nil
	}

	if next.Type == "" {
		next.Type = prev.Type
	}
	semanticHash := extract.SemanticHash(
		extract.BlockType(next.Type),
		next.Normalized,
		toExtractParams(next.Parameters),
		next.ReturnType,
		next.Modifiers,
	)
	syntaxHash := next.SyntaxHash
	if syntaxHash == "" || next.RawText != prev.RawText {
		syntaxHash = extract.SyntaxHash(next.RawText)
	}

	breaking, err := v.isBreaking(blockID, changes)
	if err != nil {
		return nil, nil, err
	}

	version := &store.BlockVersion{
		BlockID:      blockID,
		SemanticHash: semanticHash,
		SyntaxHash:   syntaxHash,
		Breaking:     breaking,
		ChangeType:   ChangeKindsString(changes),
		ChangeDesc:   opts.Description,
		LLM:          opts.LLM,
	}
	if _, err := v.store.InsertBlockVersion(version); err != nil {
		return nil, nil, fmt.Errorf("create version: %w", err)
	}
	return version, changes, nil
}

// isBreaking applies the breaking-change rule.
func (v *Versioner) isBreaking(blockID int64, changes []ChangeKind) (bool, error) {
	interfaceChanged := false
	for _, c := range changes {
		if c == ChangeRenamed || c == ChangeSignature {
			interfaceChanged = true
			break
		}
	}
	if !interfaceChanged {
		return false, nil
	}
	inbound, err := v.store.RelationshipsByTarget(blockID)
	if err != nil {
		return false, fmt.Errorf("breaking check: %w", err)
	}
	for _, r := range inbound {
		if inboundBreakingTypes[r.Type] {
			return true, nil
		}
	}
	return false, nil
}

func toExtractParams(params []store.BlockParam) []extract.Param {
	out := make([]extract.Param, len(params))
	for i, p := range params {
		out[i] = extract.Param{Name: p.Name, TypeExpr: p.TypeExpr, Kind: p.Kind}
	}
	return out
}

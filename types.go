package trellis

import (
	"github.com/jward/trellis/internal/history"
	"github.com/jward/trellis/internal/store"
)

// Public type aliases for internal types used in the Engine and
// QueryBuilder APIs. These are Go type aliases (=) — identical to the
// internal types at compile time. External consumers use these names;
// no conversion is needed.

type Store = store.Store
type Container = store.Container
type Block = store.Block
type BlockParam = store.BlockParam
type Relationship = store.Relationship
type BlockVersion = store.BlockVersion
type Branch = store.Branch
type Commit = store.Commit
type CommitChange = store.CommitChange
type MergeConflict = store.MergeConflict
type IngestMigration = store.IngestMigration
type MigrationStats = store.MigrationStats
type Diagnostic = store.Diagnostic
type LLMAttribution = store.LLMAttribution
type LLMInteraction = store.LLMInteraction

type ChangeKind = history.ChangeKind
type BlockState = history.BlockState
type MergeResult = history.MergeResult

package store

import "time"

// Migration statuses.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusRolledBack = "rolled_back"
)

// Container is one persisted source file or translation unit.
type Container struct {
	ID            int64
	MigrationID   string
	Name          string
	ContainerType string // file, module, package
	Language      string
	OriginalPath  string
	OriginalHash  string
	Version       int

	SemanticSummary     string
	ParseMeta           map[string]any
	FormatPrefs         map[string]any
	ReconstructionHints map[string]any

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Block is one persisted semantic unit of a container.
type Block struct {
	ID           int64
	ContainerID  int64
	Type         string
	SemanticName string // "" persists as NULL (anonymous block)

	RawText    string
	Normalized []string
	Tokens     []string

	Position         int
	IndentLevel      int
	ParentBlockID    *int64
	PositionInParent int
	DepthLevel       int
	HierarchicalIdx  int

	Parameters       []BlockParam
	ReturnType       string
	Modifiers        []string
	Decorators       []string
	LanguageFeatures map[string]any
	ScopeInfo        string
	SemanticSig      string
	AttachedComments []string
	DependencyInfo   map[string]any

	Cyclomatic  int
	Cognitive   int
	LinesOfCode int

	SemanticHash string
	SyntaxHash   string

	StartByte uint32
	EndByte   uint32
	StartLine uint32
	EndLine   uint32

	SourceLanguage string
}

// BlockParam is one declared parameter persisted with a block.
type BlockParam struct {
	Name     string `json:"name,omitempty"`
	TypeExpr string `json:"type,omitempty"`
	Kind     string `json:"kind"`
}

// Relationship is a typed edge between two blocks. TargetBlockID is nil
// while the edge is unresolved; TargetName then records the referenced
// symbol for the resolution pass.
type Relationship struct {
	ID            int64
	SourceBlockID int64
	TargetBlockID *int64
	TargetName    string
	Type          string
	Strength      float64
	Bidirectional bool
	Unresolved    bool
	Metadata      map[string]any
}

// LLMAttribution records which model produced a version, when any did.
type LLMAttribution struct {
	Provider    string
	Model       string
	PromptID    string
	Temperature float64
	Reasoning   string
}

// BlockVersion is one immutable revision of a block.
type BlockVersion struct {
	ID            int64
	BlockID       int64
	VersionNumber int
	SemanticHash  string
	SyntaxHash    string
	ParentVersion *int64
	Breaking      bool
	ChangeType    string
	ChangeDesc    string
	LLM           *LLMAttribution
	CreatedAt     time.Time
}

// Branch is a named pointer to a head commit on a repository.
type Branch struct {
	Repo       string
	Name       string
	HeadCommit string
	BaseCommit string
	CreatedAt  time.Time
}

// Commit groups a set of block changes under a content-derived hash.
type Commit struct {
	Hash       string
	Branch     string
	ParentHash string
	Author     string
	Message    string
	CreatedAt  time.Time
}

// CommitChange is one block-level change belonging to a commit.
type CommitChange struct {
	ID            int64
	CommitHash    string
	BlockID       int64
	ChangeKind    string
	BeforeVersion *int64
	AfterVersion  *int64
}

// MergeConflict records a both-sides-changed block awaiting external
// resolution.
type MergeConflict struct {
	ID              int64
	BlockID         int64
	BaseVersion     *int64
	LeftVersion     int64
	RightVersion    int64
	ResolvedVersion *int64
	CreatedAt       time.Time
}

// MigrationStats are the end-of-run counters for one ingestion.
type MigrationStats struct {
	Files           int            `json:"files"`
	Blocks          int            `json:"blocks"`
	Relationships   int            `json:"relationships"`
	Bytes           int64          `json:"bytes"`
	DurationMS      int64          `json:"duration_ms"`
	FilesProcessed  int            `json:"files_processed"`
	SkippedByReason map[string]int `json:"skipped_by_reason,omitempty"`
}

// IngestMigration is one end-to-end ingestion run.
type IngestMigration struct {
	ID             string
	RepoName       string
	RepoURL        string
	CommitHash     string
	SourceLanguage string
	TargetLanguage string
	Status         string
	ErrorMessages  []string
	Stats          MigrationStats
	StartedAt      time.Time
	FinishedAt     time.Time
}

// Diagnostic is one per-file notice attached to a migration, keyed by a
// stable machine-readable kind such as "input/too_large".
type Diagnostic struct {
	ID          int64
	MigrationID string
	Path        string
	Kind        string
	Message     string
}

// LLMInteraction is one recorded exchange with an external model.
type LLMInteraction struct {
	ID             string
	BlockVersionID *int64
	Provider       string
	Model          string
	PromptID       string
	Temperature    float64
	Request        string
	Response       string
	TokensUsed     int64
	LatencyMS      int64
	CreatedAt      time.Time
}

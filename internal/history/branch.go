package history

import (
	"fmt"

	"github.com/jward/trellis/internal/store"
)

// Brancher manages named branch pointers.
type Brancher struct {
	store     *store.Store
	committer *Committer
}

// NewBrancher wraps a store.
func NewBrancher(s *store.Store) *Brancher {
	return &Brancher{store: s, committer: NewCommitter(s)}
}

// CreateBranch creates a branch pointing at baseCommit. The base commit
// is recorded and becomes the initial head.
func (b *Brancher) CreateBranch(repo, name, baseCommit string) (*store.Branch, error) {
	existing, err := b.store.BranchByName(repo, name)
	if err != nil {
		return nil, fmt.Errorf("create branch: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("create branch: %s/%s already exists", repo, name)
	}
	branch := &store.Branch{
		Repo:       repo,
		Name:       name,
		HeadCommit: baseCommit,
		BaseCommit: baseCommit,
	}
	if err := b.store.UpsertBranch(branch); err != nil {
		return nil, fmt.Errorf("create branch: %w", err)
	}
	return branch, nil
}

// FastForward moves the branch head to newHead. Permitted only when the
// new head's ancestor chain contains the current head; otherwise the
// caller must supply a merge commit via Merge.
func (b *Brancher) FastForward(repo, name, newHead string) error {
	branch, err := b.store.BranchByName(repo, name)
	if err != nil {
		return fmt.Errorf("fast-forward: %w", err)
	}
	if branch == nil {
		return fmt.Errorf("fast-forward: branch %s/%s not found", repo, name)
	}
	ok, err := b.committer.IsAncestor(branch.HeadCommit, newHead)
	if err != nil {
		return fmt.Errorf("fast-forward: %w", err)
	}
	if !ok {
		return fmt.Errorf("fast-forward: %s is not a descendant of current head %s", newHead, branch.HeadCommit)
	}
	branch.HeadCommit = newHead
	if err := b.store.UpsertBranch(branch); err != nil {
		return fmt.Errorf("fast-forward: %w", err)
	}
	return nil
}

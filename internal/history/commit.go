package history

import (
	"crypto/sha256"
	"fmt"
	"sort"

	"github.com/jward/trellis/internal/store"
)

// ComputeCommitHash derives the content hash of a commit from its parent
// hash, author, message, and the sorted set of change identities. The
// hash is a pure function of those inputs.
func ComputeCommitHash(parentHash, author, message string, changeIDs []string) string {
	sorted := append([]string(nil), changeIDs...)
	sort.Strings(sorted)

	h := sha256.New()
	fmt.Fprintf(h, "parent:%s\n", parentHash)
	fmt.Fprintf(h, "author:%s\n", author)
	fmt.Fprintf(h, "message:%s\n", message)
	for _, id := range sorted {
		fmt.Fprintf(h, "change:%s\n", id)
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// changeID is the stable identity of one commit change.
func changeID(ch *store.CommitChange) string {
	before, after := int64(0), int64(0)
	if ch.BeforeVersion != nil {
		before = *ch.BeforeVersion
	}
	if ch.AfterVersion != nil {
		after = *ch.AfterVersion
	}
	return fmt.Sprintf("%d:%s:%d:%d", ch.BlockID, ch.ChangeKind, before, after)
}

// Committer creates commits and moves branch heads.
type Committer struct {
	store *store.Store
}

// NewCommitter wraps a store.
func NewCommitter(s *store.Store) *Committer {
	return &Committer{store: s}
}

// Commit groups the given block changes into an immutable commit on a
// branch. The parent is the branch's current head; the branch head
// advances to the new commit. Creates the branch implicitly when it does
// not exist yet.
func (c *Committer) Commit(repo, branchName, author, message string, changes []*store.CommitChange) (*store.Commit, error) {
	if len(changes) == 0 {
		return nil, fmt.Errorf("commit: empty change set")
	}
	branch, err := c.store.BranchByName(repo, branchName)
	if err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	parentHash := ""
	if branch != nil {
		parentHash = branch.HeadCommit
	}

	ids := make([]string, len(changes))
	for i, ch := range changes {
		ids[i] = changeID(ch)
	}
	hash := ComputeCommitHash(parentHash, author, message, ids)

	commit := &store.Commit{
		Hash:       hash,
		Branch:     branchName,
		ParentHash: parentHash,
		Author:     author,
		Message:    message,
	}
	if err := c.store.InsertCommit(commit, changes); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	if err := c.store.UpsertBranch(&store.Branch{
		Repo:       repo,
		Name:       branchName,
		HeadCommit: hash,
		BaseCommit: baseOf(branch, parentHash),
	}); err != nil {
		return nil, fmt.Errorf("commit: advance branch: %w", err)
	}
	return commit, nil
}

func baseOf(branch *store.Branch, parentHash string) string {
	if branch != nil {
		return branch.BaseCommit
	}
	return parentHash
}

// AncestorChain walks parent hashes from a commit back to the root. The
// chain includes the starting hash.
func (c *Committer) AncestorChain(hash string) ([]string, error) {
	var chain []string
	seen := make(map[string]bool)
	for cur := hash; cur != "" && !seen[cur]; {
		seen[cur] = true
		chain = append(chain, cur)
		commit, err := c.store.CommitByHash(cur)
		if err != nil {
			return nil, fmt.Errorf("ancestor chain: %w", err)
		}
		if commit == nil {
			break
		}
		cur = commit.ParentHash
	}
	return chain, nil
}

// IsAncestor reports whether ancestor appears in the parent chain of
// descendant (inclusive).
func (c *Committer) IsAncestor(ancestor, descendant string) (bool, error) {
	if ancestor == "" {
		return true, nil
	}
	chain, err := c.AncestorChain(descendant)
	if err != nil {
		return false, err
	}
	for _, h := range chain {
		if h == ancestor {
			return true, nil
		}
	}
	return false, nil
}

// CommonAncestor returns the nearest commit present in both parent
// chains, or "" when the histories are unrelated.
func (c *Committer) CommonAncestor(a, b string) (string, error) {
	chainA, err := c.AncestorChain(a)
	if err != nil {
		return "", err
	}
	inA := make(map[string]bool, len(chainA))
	for _, h := range chainA {
		inA[h] = true
	}
	chainB, err := c.AncestorChain(b)
	if err != nil {
		return "", err
	}
	for _, h := range chainB {
		if inA[h] {
			return h, nil
		}
	}
	return "", nil
}

// Package gitio materializes repository working trees using go-git:
// shallow clones for remote URLs and head-hash resolution for trees
// already on disk.
package gitio

import (
	"context"
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/jward/trellis/internal/fault"
)

// Clone shallow-clones url at ref into dest and returns the head commit
// hash. An empty ref clones the remote default branch.
func Clone(ctx context.Context, url, ref, dest string) (string, error) {
	opts := &git.CloneOptions{
		URL:          url,
		Depth:        1,
		SingleBranch: true,
	}
	if ref != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(ref)
	}
	repo, err := git.PlainCloneContext(ctx, dest, false, opts)
	if err != nil && ref != "" {
		// The ref may be a tag rather than a branch.
		opts.ReferenceName = plumbing.NewTagReferenceName(ref)
		repo, err = git.PlainCloneContext(ctx, dest, false, opts)
	}
	if err != nil {
		if ctx.Err() != nil {
			return "", fault.New(fault.KindCancelled, "clone", ctx.Err())
		}
		return "", fault.New(fault.KindExternal, "clone", fmt.Errorf("clone %s: %w", url, err))
	}

	head, err := repo.Head()
	if err != nil {
		return "", fault.New(fault.KindExternal, "clone", fmt.Errorf("head of %s: %w", url, err))
	}
	return head.Hash().String(), nil
}

// HeadHash resolves the head commit hash of a working tree already on
// disk. Returns "" without error when the path is not a git repository.
func HeadHash(path string) (string, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err == git.ErrRepositoryNotExists {
		return "", nil
	}
	if err != nil {
		return "", fault.New(fault.KindExternal, "head hash", err)
	}
	head, err := repo.Head()
	if err != nil {
		return "", nil // empty repository
	}
	return head.Hash().String(), nil
}

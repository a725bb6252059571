// Package gitws exposes the Git operations the improvement pipeline relies
// on behind an abstract interface. The default implementation shells out to
// the git binary.
package gitws

import (
	"context"
	"errors"
)

// ErrMergeConflict is returned when a merge cannot complete cleanly. The
// implementation aborts the merge and restores a clean state before
// surfacing it.
var ErrMergeConflict = errors.New("git merge conflict")

// Worktree describes one additional checkout.
type Worktree struct {
	Path   string
	Branch string
}

// Workspace is the abstract Git surface consumed by the core.
type Workspace interface {
	// Init initializes the repository if it is not one already.
	Init(ctx context.Context) error

	CreateBranch(ctx context.Context, name string) error
	CheckoutBranch(ctx context.Context, name string) error
	DeleteBranch(ctx context.Context, name string) error
	BranchExists(ctx context.Context, name string) (bool, error)
	CurrentBranch(ctx context.Context) (string, error)

	// MainBranch reports the auto-detected default branch (main or master).
	MainBranch(ctx context.Context) (string, error)

	Add(ctx context.Context, paths ...string) error
	Commit(ctx context.Context, message string) (string, error)

	// MergeBranch merges name into the current branch, fast-forwarding when
	// possible. On conflict the merge is aborted and ErrMergeConflict
	// returned.
	MergeBranch(ctx context.Context, name string) error

	// Diff returns the unified diff between two branches.
	Diff(ctx context.Context, from, to string) (string, error)

	// ReadFile reads a file from the working tree.
	ReadFile(ctx context.Context, path string) (string, error)

	AddWorktree(ctx context.Context, path, branch string) error
	RemoveWorktree(ctx context.Context, path string) error
	ListWorktrees(ctx context.Context) ([]Worktree, error)
}

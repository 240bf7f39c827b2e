package git

import "context"

// Runner is the subset of git the checkpoint needs.
type Runner interface {
	// Status returns the working tree status.
	Status(ctx context.Context) (*Status, error)

	// Add stages paths. An empty list is a no-op.
	Add(ctx context.Context, paths []string) error

	// Commit creates a commit of the staged changes.
	Commit(ctx context.Context, message string) error

	// Head returns the full revision of HEAD.
	Head(ctx context.Context) (string, error)
}

package interfaces

import (
	"context"
)

// RepositoryClient is the capability set the release workflow needs from the
// repository hosting service. Implementations must be safe for concurrent use
// by many workflows and must not retry internally.
type RepositoryClient interface {
	// ListRootFiles lists the entries at the root of the origin branch.
	ListRootFiles(ctx context.Context, ref RepositoryRef) ([]RootFile, error)
	// ReadFile returns the decoded content and identity token of path on the
	// origin branch.
	ReadFile(ctx context.Context, ref RepositoryRef, path string) (RootFile, error)
	// BranchExists reports whether branch exists in the repository.
	BranchExists(ctx context.Context, ref RepositoryRef, branch string) (bool, error)
	// OpenChangeRequest opens a request from the origin branch into the target branch.
	OpenChangeRequest(ctx context.Context, ref RepositoryRef, title, body string) (ChangeRequest, error)
	UpdateFile(ctx context.Context, ref RepositoryRef, update FileUpdate) error
	// MergeChangeRequest merges the request and returns the merge commit sha.
	MergeChangeRequest(ctx context.Context, ref RepositoryRef, id int) (string, error)
	// CreateRelease tags version at targetSHA, marks it latest and generates notes.
	CreateRelease(ctx context.Context, ref RepositoryRef, version, targetSHA string) error
	CreateBranch(ctx context.Context, ref RepositoryRef, name, fromSHA string) error
}

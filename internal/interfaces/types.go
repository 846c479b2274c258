package interfaces

import (
	"fmt"
	"time"
)

// RepositoryRef identifies one repository and the branch pair used for its
// change request.
type RepositoryRef struct {
	Owner        string
	Repo         string
	OriginBranch string
	TargetBranch string
	// Wait delays the start of this repository's workflow.
	Wait time.Duration
}

// FullName returns the repository in "owner/repo" form.
func (r RepositoryRef) FullName() string {
	return fmt.Sprintf("%s/%s", r.Owner, r.Repo)
}

func (r RepositoryRef) String() string {
	return fmt.Sprintf("%s/%s:%s->%s", r.Owner, r.Repo, r.OriginBranch, r.TargetBranch)
}

// ReleaseIntent is the text applied to every change request of a run.
type ReleaseIntent struct {
	Title string
	Body  string
	// CommitMessage is used for the version bump commit. "{{version}}" is
	// replaced with the target version.
	CommitMessage string
}

// RootFile is an entry at the root of a repository. Content is empty for
// listings that do not carry file bodies.
type RootFile struct {
	Name      string
	Path      string
	Type      string
	ContentID string
	Content   string
}

// IsFile reports whether the entry is a regular file.
func (f RootFile) IsFile() bool {
	return f.Type == "" || f.Type == "file"
}

// FileUpdate describes a content-addressed update of a single file.
type FileUpdate struct {
	Path    string
	Content string
	// ContentID must be the identity token of the content being replaced.
	ContentID string
	Branch    string
	Message   string
}

// ChangeRequest is the handle returned when a change request is opened.
type ChangeRequest struct {
	ID      int
	HeadSHA string
	URL     string
}

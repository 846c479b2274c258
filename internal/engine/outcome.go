package engine

import (
	"time"

	"github.com/dangazineu/reposync/internal/errors"
	"github.com/dangazineu/reposync/internal/interfaces"
	"github.com/dangazineu/reposync/internal/manifest"
)

// WorkflowOutcome is the terminal record of one repository's release. Exactly
// one is produced per executed repository.
type WorkflowOutcome struct {
	Ref     interfaces.RepositoryRef
	Success bool
	Err     error
	// State is terminal: StateBranchCreated, StateFailed, or StateFileDetected
	// for a dry run.
	State State
	// Reached is the last state completed before the workflow stopped.
	Reached State
	DryRun  bool

	Path            string
	Ecosystem       manifest.Kind
	PreviousVersion string
	PullRequest     int
	PullRequestURL  string
	MergeSHA        string

	Duration time.Duration
}

// ErrorCode returns the code of a failed outcome's error, or "" on success.
func (o WorkflowOutcome) ErrorCode() string {
	if o.Err == nil {
		return ""
	}
	return errors.CodeOf(o.Err)
}

// Message returns the failure message, or "" on success.
func (o WorkflowOutcome) Message() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

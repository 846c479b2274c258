package github

import (
	stderrors "errors"
	"fmt"
	"net"
	"net/http"

	"github.com/google/go-github/v63/github"

	"github.com/dangazineu/reposync/internal/errors"
	"github.com/dangazineu/reposync/internal/interfaces"
)

// Operation names used in APIError.
const (
	opListRootFiles      = "list root files"
	opReadFile           = "read file"
	opBranchExists       = "get branch"
	opOpenChangeRequest  = "open pull request"
	opUpdateFile         = "update file"
	opMergeChangeRequest = "merge pull request"
	opCreateRelease      = "create release"
	opCreateBranch       = "create branch"
)

// APIError is a failed call to the GitHub API.
type APIError struct {
	Operation  string
	Repository string
	// StatusCode is zero when no HTTP response was received.
	StatusCode int
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s on %s: HTTP %d: %v", e.Operation, e.Repository, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s on %s: %v", e.Operation, e.Repository, e.Err)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// IsConflict reports a rejected write, such as a stale content sha or an
// existing tag or branch.
func (e *APIError) IsConflict() bool {
	return e.StatusCode == http.StatusConflict || e.StatusCode == http.StatusUnprocessableEntity
}

func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsMoved reports a permanent redirect, which GitHub answers for the old name
// of a renamed branch or repository.
func (e *APIError) IsMoved() bool {
	return e.StatusCode == http.StatusMovedPermanently
}

// IsUnauthorized reports a rejected or insufficient credential.
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// Temporary reports a failure that may succeed when repeated: throttling, a
// server error or a transport failure.
func (e *APIError) Temporary() bool {
	var rateErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	if stderrors.As(e.Err, &rateErr) || stderrors.As(e.Err, &abuseErr) {
		return true
	}
	if e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError {
		return true
	}
	if e.StatusCode == 0 {
		var netErr net.Error
		return stderrors.As(e.Err, &netErr)
	}
	return false
}

func newAPIError(operation string, ref interfaces.RepositoryRef, resp *github.Response, err error) *APIError {
	return &APIError{
		Operation:  operation,
		Repository: ref.FullName(),
		StatusCode: statusCode(resp, err),
		Err:        err,
	}
}

func wrapError(operation string, ref interfaces.RepositoryRef, resp *github.Response, err error) error {
	return wrapAPIError(newAPIError(operation, ref, resp, err))
}

func wrapAPIError(apiErr *APIError) error {
	return errors.Wrap(apiErr, errors.CodeRemoteAPI, apiErr.Operation+" failed")
}

func statusCode(resp *github.Response, err error) int {
	if resp != nil && resp.Response != nil {
		return resp.StatusCode
	}
	var errResp *github.ErrorResponse
	if stderrors.As(err, &errResp) && errResp.Response != nil {
		return errResp.Response.StatusCode
	}
	return 0
}

// Package github implements the repository client on top of the GitHub REST
// API.
package github

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v63/github"

	"github.com/dangazineu/reposync/internal/interfaces"
)

const branchRefPrefix = "refs/heads/"

var _ interfaces.RepositoryClient = (*Client)(nil)

// Options configures a Client.
type Options struct {
	// Token is a personal access token. Requests are anonymous when empty.
	Token string
	// BaseURL overrides the API endpoint, e.g. for GitHub Enterprise or a
	// test server. Defaults to https://api.github.com/.
	BaseURL    string
	HTTPClient *http.Client
	UserAgent  string
}

// Client is a RepositoryClient backed by go-github. It holds no per-call
// state and is safe for concurrent use.
type Client struct {
	gh *github.Client
}

// NewClient creates a Client from opts.
func NewClient(opts Options) (*Client, error) {
	gh := github.NewClient(opts.HTTPClient)
	if opts.Token != "" {
		gh = gh.WithAuthToken(opts.Token)
	}

	if opts.BaseURL != "" {
		base := opts.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("invalid API base URL %q: %w", opts.BaseURL, err)
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("invalid API base URL %q: scheme and host are required", opts.BaseURL)
		}
		gh.BaseURL = u
	}

	if opts.UserAgent != "" {
		gh.UserAgent = opts.UserAgent
	}

	return &Client{gh: gh}, nil
}

// ListRootFiles lists the root directory of the origin branch.
func (c *Client) ListRootFiles(ctx context.Context, ref interfaces.RepositoryRef) ([]interfaces.RootFile, error) {
	_, entries, resp, err := c.gh.Repositories.GetContents(ctx, ref.Owner, ref.Repo, "", &github.RepositoryContentGetOptions{
		Ref: ref.OriginBranch,
	})
	if err != nil {
		return nil, wrapError(opListRootFiles, ref, resp, err)
	}

	files := make([]interfaces.RootFile, 0, len(entries))
	for _, entry := range entries {
		file, err := toRootFile(entry)
		if err != nil {
			return nil, wrapError(opListRootFiles, ref, nil, err)
		}
		files = append(files, file)
	}
	return files, nil
}

// ReadFile reads path from the origin branch.
func (c *Client) ReadFile(ctx context.Context, ref interfaces.RepositoryRef, path string) (interfaces.RootFile, error) {
	content, _, resp, err := c.gh.Repositories.GetContents(ctx, ref.Owner, ref.Repo, path, &github.RepositoryContentGetOptions{
		Ref: ref.OriginBranch,
	})
	if err != nil {
		return interfaces.RootFile{}, wrapError(opReadFile, ref, resp, err)
	}
	if content == nil {
		return interfaces.RootFile{}, wrapError(opReadFile, ref, nil, fmt.Errorf("%s is a directory", path))
	}

	file, err := toRootFile(content)
	if err != nil {
		return interfaces.RootFile{}, wrapError(opReadFile, ref, nil, err)
	}
	return file, nil
}

// BranchExists reports whether branch exists under exactly that name. A 404
// is not an error, and neither is the redirect GitHub answers for a renamed
// branch.
func (c *Client) BranchExists(ctx context.Context, ref interfaces.RepositoryRef, branch string) (bool, error) {
	_, resp, err := c.gh.Repositories.GetBranch(ctx, ref.Owner, ref.Repo, branch, 0)
	if err != nil {
		apiErr := newAPIError(opBranchExists, ref, resp, err)
		if apiErr.IsNotFound() || apiErr.IsMoved() {
			return false, nil
		}
		return false, wrapAPIError(apiErr)
	}
	return true, nil
}

// OpenChangeRequest opens a pull request from the origin branch into the
// target branch.
func (c *Client) OpenChangeRequest(ctx context.Context, ref interfaces.RepositoryRef, title, body string) (interfaces.ChangeRequest, error) {
	pr, resp, err := c.gh.PullRequests.Create(ctx, ref.Owner, ref.Repo, &github.NewPullRequest{
		Title: github.String(title),
		Head:  github.String(ref.OriginBranch),
		Base:  github.String(ref.TargetBranch),
		Body:  github.String(body),
	})
	if err != nil {
		return interfaces.ChangeRequest{}, wrapError(opOpenChangeRequest, ref, resp, err)
	}

	return interfaces.ChangeRequest{
		ID:      pr.GetNumber(),
		HeadSHA: pr.GetHead().GetSHA(),
		URL:     pr.GetHTMLURL(),
	}, nil
}

// UpdateFile commits new content for update.Path on update.Branch. The API
// rejects the update when update.ContentID is stale.
func (c *Client) UpdateFile(ctx context.Context, ref interfaces.RepositoryRef, update interfaces.FileUpdate) error {
	_, resp, err := c.gh.Repositories.UpdateFile(ctx, ref.Owner, ref.Repo, update.Path, &github.RepositoryContentFileOptions{
		Message: github.String(update.Message),
		Content: []byte(update.Content),
		SHA:     github.String(update.ContentID),
		Branch:  github.String(update.Branch),
	})
	if err != nil {
		return wrapError(opUpdateFile, ref, resp, err)
	}
	return nil
}

// MergeChangeRequest merges pull request id and returns the merge commit sha.
func (c *Client) MergeChangeRequest(ctx context.Context, ref interfaces.RepositoryRef, id int) (string, error) {
	result, resp, err := c.gh.PullRequests.Merge(ctx, ref.Owner, ref.Repo, id, "", nil)
	if err != nil {
		return "", wrapError(opMergeChangeRequest, ref, resp, err)
	}
	if !result.GetMerged() || result.GetSHA() == "" {
		return "", wrapError(opMergeChangeRequest, ref, nil, fmt.Errorf("pull request #%d was not merged: %s", id, result.GetMessage()))
	}
	return result.GetSHA(), nil
}

// CreateRelease creates a release named and tagged version at targetSHA,
// marked as latest and with generated notes.
func (c *Client) CreateRelease(ctx context.Context, ref interfaces.RepositoryRef, version, targetSHA string) error {
	_, resp, err := c.gh.Repositories.CreateRelease(ctx, ref.Owner, ref.Repo, &github.RepositoryRelease{
		TagName:              github.String(version),
		Name:                 github.String(version),
		TargetCommitish:      github.String(targetSHA),
		MakeLatest:           github.String("true"),
		GenerateReleaseNotes: github.Bool(true),
	})
	if err != nil {
		return wrapError(opCreateRelease, ref, resp, err)
	}
	return nil
}

// CreateBranch creates branch name pointing at fromSHA.
func (c *Client) CreateBranch(ctx context.Context, ref interfaces.RepositoryRef, name, fromSHA string) error {
	_, resp, err := c.gh.Git.CreateRef(ctx, ref.Owner, ref.Repo, &github.Reference{
		Ref:    github.String(branchRefPrefix + name),
		Object: &github.GitObject{SHA: github.String(fromSHA)},
	})
	if err != nil {
		return wrapError(opCreateBranch, ref, resp, err)
	}
	return nil
}

func toRootFile(entry *github.RepositoryContent) (interfaces.RootFile, error) {
	file := interfaces.RootFile{
		Name:      entry.GetName(),
		Path:      entry.GetPath(),
		Type:      entry.GetType(),
		ContentID: entry.GetSHA(),
	}
	if entry.Content != nil {
		content, err := entry.GetContent()
		if err != nil {
			return interfaces.RootFile{}, fmt.Errorf("decoding %s: %w", entry.GetPath(), err)
		}
		file.Content = content
	}
	return file, nil
}

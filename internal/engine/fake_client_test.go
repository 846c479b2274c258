package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dangazineu/reposync/internal/interfaces"
)

// fakeClient is an in-memory RepositoryClient recording every call.
type fakeClient struct {
	mu        sync.Mutex
	repos     map[string]*fakeRepo
	failures  map[string]error
	panics    map[string]bool
	delay     func(ref interfaces.RepositoryRef) time.Duration
	prCounter int
	active    int
	maxActive int
}

type fakeRepo struct {
	files    []interfaces.RootFile
	branches map[string]bool
	calls    []string
	updates  []interfaces.FileUpdate
	pulls    map[int]string
	releases []string
	created  []string
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		repos:    make(map[string]*fakeRepo),
		failures: make(map[string]error),
		panics:   make(map[string]bool),
	}
}

// addRepo registers ref with both of its branches and the given root files.
// Files are listed without content, like the hosting API does.
func (c *fakeClient) addRepo(ref interfaces.RepositoryRef, files ...interfaces.RootFile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.repos[ref.FullName()] = &fakeRepo{
		files:    files,
		branches: map[string]bool{ref.OriginBranch: true, ref.TargetBranch: true},
		pulls:    make(map[int]string),
	}
}

func (c *fakeClient) fail(ref interfaces.RepositoryRef, method string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[ref.FullName()+"#"+method] = err
}

func (c *fakeClient) panicOn(ref interfaces.RepositoryRef, method string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.panics[ref.FullName()+"#"+method] = true
}

func (c *fakeClient) repo(ref interfaces.RepositoryRef) *fakeRepo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.repos[ref.FullName()]
}

func (c *fakeClient) calls(ref interfaces.RepositoryRef) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r := c.repos[ref.FullName()]; r != nil {
		return append([]string(nil), r.calls...)
	}
	return nil
}

// enter records method, applies the configured delay and returns the
// injected failure, if any.
func (c *fakeClient) enter(ctx context.Context, ref interfaces.RepositoryRef, method string) (*fakeRepo, error) {
	c.mu.Lock()
	c.active++
	if c.active > c.maxActive {
		c.maxActive = c.active
	}
	delay := c.delay
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.active--
		c.mu.Unlock()
	}()

	if delay != nil {
		select {
		case <-time.After(delay(ref)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	r := c.repos[ref.FullName()]
	if r == nil {
		return nil, fmt.Errorf("unknown repository %s", ref.FullName())
	}
	r.calls = append(r.calls, method)
	if c.panics[ref.FullName()+"#"+method] {
		panic(fmt.Sprintf("%s exploded", method))
	}
	return r, c.failures[ref.FullName()+"#"+method]
}

func (c *fakeClient) ListRootFiles(ctx context.Context, ref interfaces.RepositoryRef) ([]interfaces.RootFile, error) {
	r, err := c.enter(ctx, ref, "ListRootFiles")
	if err != nil {
		return nil, err
	}
	listing := make([]interfaces.RootFile, 0, len(r.files))
	for _, f := range r.files {
		f.Content = ""
		listing = append(listing, f)
	}
	return listing, nil
}

func (c *fakeClient) ReadFile(ctx context.Context, ref interfaces.RepositoryRef, path string) (interfaces.RootFile, error) {
	r, err := c.enter(ctx, ref, "ReadFile")
	if err != nil {
		return interfaces.RootFile{}, err
	}
	for _, f := range r.files {
		if f.Path == path {
			return f, nil
		}
	}
	return interfaces.RootFile{}, fmt.Errorf("%s not found", path)
}

func (c *fakeClient) BranchExists(ctx context.Context, ref interfaces.RepositoryRef, branch string) (bool, error) {
	r, err := c.enter(ctx, ref, "BranchExists")
	if err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return r.branches[branch], nil
}

func (c *fakeClient) OpenChangeRequest(ctx context.Context, ref interfaces.RepositoryRef, title, body string) (interfaces.ChangeRequest, error) {
	r, err := c.enter(ctx, ref, "OpenChangeRequest")
	if err != nil {
		return interfaces.ChangeRequest{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prCounter++
	r.pulls[c.prCounter] = title
	return interfaces.ChangeRequest{
		ID:      c.prCounter,
		HeadSHA: "head-" + ref.Repo,
		URL:     fmt.Sprintf("https://example.com/%s/pull/%d", ref.FullName(), c.prCounter),
	}, nil
}

func (c *fakeClient) UpdateFile(ctx context.Context, ref interfaces.RepositoryRef, update interfaces.FileUpdate) error {
	r, err := c.enter(ctx, ref, "UpdateFile")
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	r.updates = append(r.updates, update)
	return nil
}

func (c *fakeClient) MergeChangeRequest(ctx context.Context, ref interfaces.RepositoryRef, id int) (string, error) {
	r, err := c.enter(ctx, ref, "MergeChangeRequest")
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := r.pulls[id]; !ok {
		return "", fmt.Errorf("no pull request %d", id)
	}
	return "merge-" + ref.Repo, nil
}

func (c *fakeClient) CreateRelease(ctx context.Context, ref interfaces.RepositoryRef, version, targetSHA string) error {
	r, err := c.enter(ctx, ref, "CreateRelease")
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	r.releases = append(r.releases, version+"@"+targetSHA)
	return nil
}

func (c *fakeClient) CreateBranch(ctx context.Context, ref interfaces.RepositoryRef, name, fromSHA string) error {
	r, err := c.enter(ctx, ref, "CreateBranch")
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	r.created = append(r.created, name+"@"+fromSHA)
	return nil
}

func rootFile(name, content string) interfaces.RootFile {
	return interfaces.RootFile{Name: name, Path: name, Type: "file", ContentID: "sha-" + name, Content: content}
}

var fullSequence = []string{
	"BranchExists",
	"BranchExists",
	"ListRootFiles",
	"ReadFile",
	"OpenChangeRequest",
	"UpdateFile",
	"MergeChangeRequest",
	"CreateRelease",
	"CreateBranch",
}

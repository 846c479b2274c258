package e2e

import (
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
)

// Operations that can be failed or inspected on a mock repository.
const (
	OpListContents  = "list-contents"
	OpGetContent    = "get-content"
	OpGetBranch     = "get-branch"
	OpCreatePull    = "create-pull"
	OpUpdateFile    = "update-file"
	OpMergePull     = "merge-pull"
	OpCreateRelease = "create-release"
	OpCreateRef     = "create-ref"
)

// MockGitHubServer is an in-memory implementation of the subset of the GitHub
// REST API used by the release client.
type MockGitHubServer struct {
	server *httptest.Server

	mu        sync.RWMutex
	repos     map[string]*mockRepo
	prCounter int
	shaSeq    int
	failures  map[string]int
	latency   func(owner, repo string) time.Duration
}

// PullRequest is a mock pull request.
type PullRequest struct {
	Number  int    `json:"number"`
	Title   string `json:"title"`
	Body    string `json:"body"`
	State   string `json:"state"`
	Merged  bool   `json:"merged"`
	HTMLURL string `json:"html_url"`
	Head    Branch `json:"head"`
	Base    Branch `json:"base"`
}

// Branch is a pull request endpoint.
type Branch struct {
	Ref string `json:"ref"`
	SHA string `json:"sha"`
}

// Release is a mock release.
type Release struct {
	ID                   int64  `json:"id"`
	TagName              string `json:"tag_name"`
	Name                 string `json:"name"`
	TargetCommitish      string `json:"target_commitish"`
	MakeLatest           string `json:"make_latest"`
	GenerateReleaseNotes bool   `json:"generate_release_notes"`
}

type mockFile struct {
	content string
	sha     string
}

type mockRepo struct {
	owner    string
	name     string
	branches map[string]string
	files    map[string]map[string]*mockFile
	pulls    map[int]*PullRequest
	releases []*Release
	calls    []string
	messages []string

	// snapshots holds the tree of every commit a branch has pointed at.
	snapshots map[string]map[string]*mockFile
	// renamed maps the old name of a renamed branch to its new name.
	renamed map[string]string
}

// setHead moves branch to sha and records the branch tree as sha's snapshot.
func (r *mockRepo) setHead(branch, sha string) {
	r.branches[branch] = sha
	tree := make(map[string]*mockFile, len(r.files[branch]))
	for path, file := range r.files[branch] {
		tree[path] = file
	}
	r.snapshots[sha] = tree
}

// NewMockGitHubServer creates an empty mock server.
func NewMockGitHubServer() *MockGitHubServer {
	return &MockGitHubServer{
		repos:     make(map[string]*mockRepo),
		prCounter: 1000,
		failures:  make(map[string]int),
	}
}

// Start serves the mock on a loopback listener and returns its base URL.
func (m *MockGitHubServer) Start() string {
	m.server = httptest.NewServer(m.Router())
	return m.server.URL + "/"
}

// Stop shuts the listener down.
func (m *MockGitHubServer) Stop() {
	if m.server != nil {
		m.server.Close()
	}
}

// Router returns the HTTP handler of the mock.
func (m *MockGitHubServer) Router() http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/repos/{owner}/{repo}/contents/", m.handleListContents).Methods(http.MethodGet)
	router.HandleFunc("/repos/{owner}/{repo}/contents/{path:.+}", m.handleGetContent).Methods(http.MethodGet)
	router.HandleFunc("/repos/{owner}/{repo}/contents/{path:.+}", m.handleUpdateFile).Methods(http.MethodPut)
	router.HandleFunc("/repos/{owner}/{repo}/branches/{branch:.+}", m.handleGetBranch).Methods(http.MethodGet)
	router.HandleFunc("/repos/{owner}/{repo}/pulls", m.handleCreatePR).Methods(http.MethodPost)
	router.HandleFunc("/repos/{owner}/{repo}/pulls/{pr}/merge", m.handleMergePR).Methods(http.MethodPut)
	router.HandleFunc("/repos/{owner}/{repo}/releases", m.handleCreateRelease).Methods(http.MethodPost)
	router.HandleFunc("/repos/{owner}/{repo}/git/refs", m.handleCreateRef).Methods(http.MethodPost)

	return router
}

// AddRepository registers owner/repo with the given branches, all pointing at
// the same initial commit.
func (m *MockGitHubServer) AddRepository(owner, repo string, branches ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := &mockRepo{
		owner:     owner,
		name:      repo,
		branches:  make(map[string]string),
		files:     make(map[string]map[string]*mockFile),
		pulls:     make(map[int]*PullRequest),
		snapshots: make(map[string]map[string]*mockFile),
		renamed:   make(map[string]string),
	}
	root := m.nextSHA()
	for _, branch := range branches {
		r.files[branch] = make(map[string]*mockFile)
		r.setHead(branch, root)
	}
	m.repos[repoKey(owner, repo)] = r
}

// SetFile writes path on branch without creating a commit.
func (m *MockGitHubServer) SetFile(owner, repo, branch, path, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := m.repos[repoKey(owner, repo)]
	if r == nil {
		panic(fmt.Sprintf("unknown repository %s/%s", owner, repo))
	}
	if _, ok := r.files[branch]; !ok {
		panic(fmt.Sprintf("unknown branch %s in %s/%s", branch, owner, repo))
	}
	r.files[branch][path] = &mockFile{content: content, sha: blobSHA(content)}
	r.setHead(branch, r.branches[branch])
}

// RenameBranch moves branch from to the name to. Requests for the old name
// are answered with a permanent redirect, as GitHub does.
func (m *MockGitHubServer) RenameBranch(owner, repo, from, to string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := m.repos[repoKey(owner, repo)]
	if r == nil {
		panic(fmt.Sprintf("unknown repository %s/%s", owner, repo))
	}
	sha, ok := r.branches[from]
	if !ok {
		panic(fmt.Sprintf("unknown branch %s in %s/%s", from, owner, repo))
	}
	r.branches[to] = sha
	r.files[to] = r.files[from]
	delete(r.branches, from)
	delete(r.files, from)
	r.renamed[from] = to
}

// File returns the content of path on branch.
func (m *MockGitHubServer) File(owner, repo, branch, path string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r := m.repos[repoKey(owner, repo)]
	if r == nil || r.files[branch] == nil || r.files[branch][path] == nil {
		return "", false
	}
	return r.files[branch][path].content, true
}

// BranchSHA returns the head commit of branch.
func (m *MockGitHubServer) BranchSHA(owner, repo, branch string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r := m.repos[repoKey(owner, repo)]
	if r == nil {
		return "", false
	}
	sha, ok := r.branches[branch]
	return sha, ok
}

// PullRequests returns the pull requests of a repository ordered by number.
func (m *MockGitHubServer) PullRequests(owner, repo string) []PullRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r := m.repos[repoKey(owner, repo)]
	if r == nil {
		return nil
	}
	prs := make([]PullRequest, 0, len(r.pulls))
	for _, pr := range r.pulls {
		prs = append(prs, *pr)
	}
	sort.Slice(prs, func(i, j int) bool { return prs[i].Number < prs[j].Number })
	return prs
}

// Releases returns the releases of a repository in creation order.
func (m *MockGitHubServer) Releases(owner, repo string) []Release {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r := m.repos[repoKey(owner, repo)]
	if r == nil {
		return nil
	}
	releases := make([]Release, 0, len(r.releases))
	for _, rel := range r.releases {
		releases = append(releases, *rel)
	}
	return releases
}

// Calls returns the operations served for a repository, in order.
func (m *MockGitHubServer) Calls(owner, repo string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r := m.repos[repoKey(owner, repo)]
	if r == nil {
		return nil
	}
	return append([]string(nil), r.calls...)
}

// CommitMessages returns the messages of the file update commits of a
// repository, in order.
func (m *MockGitHubServer) CommitMessages(owner, repo string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r := m.repos[repoKey(owner, repo)]
	if r == nil {
		return nil
	}
	return append([]string(nil), r.messages...)
}

// FailOperation makes every subsequent op on owner/repo answer with status.
func (m *MockGitHubServer) FailOperation(owner, repo, op string, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[repoKey(owner, repo)+"#"+op] = status
}

// SetLatency delays every request by the duration returned for its repository.
func (m *MockGitHubServer) SetLatency(latency func(owner, repo string) time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latency = latency
}

// begin applies latency and failure injection and records the call. It
// returns the repository, or nil when a response was already written.
func (m *MockGitHubServer) begin(w http.ResponseWriter, r *http.Request, op string) *mockRepo {
	vars := mux.Vars(r)
	owner, name := vars["owner"], vars["repo"]

	m.mu.RLock()
	latency := m.latency
	m.mu.RUnlock()
	if latency != nil {
		if d := latency(owner, name); d > 0 {
			select {
			case <-time.After(d):
			case <-r.Context().Done():
				return nil
			}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	repo := m.repos[repoKey(owner, name)]
	if repo == nil {
		writeError(w, http.StatusNotFound, "Not Found")
		return nil
	}
	repo.calls = append(repo.calls, op)

	if status, ok := m.failures[repoKey(owner, name)+"#"+op]; ok {
		writeError(w, status, fmt.Sprintf("injected failure for %s", op))
		return nil
	}
	return repo
}

func (m *MockGitHubServer) handleListContents(w http.ResponseWriter, r *http.Request) {
	repo := m.begin(w, r, OpListContents)
	if repo == nil {
		return
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	files, ok := repo.files[refParam(r)]
	if !ok {
		writeError(w, http.StatusNotFound, "No commit found for the ref")
		return
	}

	paths := make([]string, 0, len(files))
	for path := range files {
		if !strings.Contains(path, "/") {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)

	entries := make([]map[string]interface{}, 0, len(paths))
	for _, path := range paths {
		entries = append(entries, map[string]interface{}{
			"type": "file",
			"name": path,
			"path": path,
			"sha":  files[path].sha,
			"size": len(files[path].content),
		})
	}
	writeJSON(w, http.StatusOK, entries)
}

func (m *MockGitHubServer) handleGetContent(w http.ResponseWriter, r *http.Request) {
	repo := m.begin(w, r, OpGetContent)
	if repo == nil {
		return
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	path := mux.Vars(r)["path"]
	files, ok := repo.files[refParam(r)]
	if !ok || files[path] == nil {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	writeJSON(w, http.StatusOK, fileJSON(path, files[path]))
}

func (m *MockGitHubServer) handleUpdateFile(w http.ResponseWriter, r *http.Request) {
	repo := m.begin(w, r, OpUpdateFile)
	if repo == nil {
		return
	}

	var req struct {
		Message string `json:"message"`
		Content []byte `json:"content"`
		SHA     string `json:"sha"`
		Branch  string `json:"branch"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Problems parsing JSON")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	path := mux.Vars(r)["path"]
	files, ok := repo.files[req.Branch]
	if !ok {
		writeError(w, http.StatusNotFound, "Branch not found")
		return
	}
	if current := files[path]; current != nil && current.sha != req.SHA {
		writeError(w, http.StatusConflict, fmt.Sprintf("%s does not match %s", path, req.SHA))
		return
	}

	file := &mockFile{content: string(req.Content), sha: blobSHA(string(req.Content))}
	files[path] = file
	commit := m.nextSHA()
	repo.setHead(req.Branch, commit)
	repo.messages = append(repo.messages, req.Message)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"content": fileJSON(path, file),
		"commit":  map[string]interface{}{"sha": commit, "message": req.Message},
	})
}

func (m *MockGitHubServer) handleGetBranch(w http.ResponseWriter, r *http.Request) {
	repo := m.begin(w, r, OpGetBranch)
	if repo == nil {
		return
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	branch := mux.Vars(r)["branch"]
	sha, ok := repo.branches[branch]
	if !ok {
		if to, moved := repo.renamed[branch]; moved {
			w.Header().Set("Location", fmt.Sprintf("/repos/%s/%s/branches/%s", repo.owner, repo.name, to))
			writeError(w, http.StatusMovedPermanently, "Moved Permanently")
			return
		}
		writeError(w, http.StatusNotFound, "Branch not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":   branch,
		"commit": map[string]interface{}{"sha": sha},
	})
}

func (m *MockGitHubServer) handleCreatePR(w http.ResponseWriter, r *http.Request) {
	repo := m.begin(w, r, OpCreatePull)
	if repo == nil {
		return
	}

	var req struct {
		Title string `json:"title"`
		Body  string `json:"body"`
		Head  string `json:"head"`
		Base  string `json:"base"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Problems parsing JSON")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	headSHA, headOK := repo.branches[req.Head]
	baseSHA, baseOK := repo.branches[req.Base]
	if !headOK || !baseOK || req.Head == req.Base {
		writeError(w, http.StatusUnprocessableEntity, "Validation Failed")
		return
	}

	m.prCounter++
	pr := &PullRequest{
		Number:  m.prCounter,
		Title:   req.Title,
		Body:    req.Body,
		State:   "open",
		HTMLURL: fmt.Sprintf("https://github.com/%s/%s/pull/%d", repo.owner, repo.name, m.prCounter),
		Head:    Branch{Ref: req.Head, SHA: headSHA},
		Base:    Branch{Ref: req.Base, SHA: baseSHA},
	}
	repo.pulls[pr.Number] = pr

	writeJSON(w, http.StatusCreated, pr)
}

func (m *MockGitHubServer) handleMergePR(w http.ResponseWriter, r *http.Request) {
	repo := m.begin(w, r, OpMergePull)
	if repo == nil {
		return
	}

	number, err := strconv.Atoi(mux.Vars(r)["pr"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid PR number")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	pr := repo.pulls[number]
	if pr == nil {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	if pr.State != "open" {
		writeError(w, http.StatusMethodNotAllowed, "Pull Request is not mergeable")
		return
	}

	merged := make(map[string]*mockFile, len(repo.files[pr.Head.Ref]))
	for path, file := range repo.files[pr.Head.Ref] {
		merged[path] = file
	}
	repo.files[pr.Base.Ref] = merged

	sha := m.nextSHA()
	repo.setHead(pr.Base.Ref, sha)
	pr.State = "closed"
	pr.Merged = true

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"merged":  true,
		"sha":     sha,
		"message": "Pull Request successfully merged",
	})
}

func (m *MockGitHubServer) handleCreateRelease(w http.ResponseWriter, r *http.Request) {
	repo := m.begin(w, r, OpCreateRelease)
	if repo == nil {
		return
	}

	var rel Release
	if err := json.NewDecoder(r.Body).Decode(&rel); err != nil {
		writeError(w, http.StatusBadRequest, "Problems parsing JSON")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range repo.releases {
		if existing.TagName == rel.TagName {
			writeError(w, http.StatusUnprocessableEntity, "Validation Failed: tag_name already_exists")
			return
		}
	}
	rel.ID = int64(len(repo.releases) + 1)
	repo.releases = append(repo.releases, &rel)

	writeJSON(w, http.StatusCreated, rel)
}

func (m *MockGitHubServer) handleCreateRef(w http.ResponseWriter, r *http.Request) {
	repo := m.begin(w, r, OpCreateRef)
	if repo == nil {
		return
	}

	var req struct {
		Ref string `json:"ref"`
		SHA string `json:"sha"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Problems parsing JSON")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	name := strings.TrimPrefix(req.Ref, "refs/heads/")
	if name == req.Ref || name == "" || req.SHA == "" {
		writeError(w, http.StatusUnprocessableEntity, "Validation Failed")
		return
	}
	if _, exists := repo.branches[name]; exists {
		writeError(w, http.StatusUnprocessableEntity, "Reference already exists")
		return
	}

	tree, ok := repo.snapshots[req.SHA]
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "Object does not exist")
		return
	}
	files := make(map[string]*mockFile, len(tree))
	for path, file := range tree {
		files[path] = file
	}
	repo.files[name] = files
	repo.branches[name] = req.SHA

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"ref":    req.Ref,
		"object": map[string]interface{}{"sha": req.SHA, "type": "commit"},
	})
}

// nextSHA must be called with m.mu held.
func (m *MockGitHubServer) nextSHA() string {
	m.shaSeq++
	return blobSHA("commit " + strconv.Itoa(m.shaSeq))
}

func refParam(r *http.Request) string {
	if ref := r.URL.Query().Get("ref"); ref != "" {
		return ref
	}
	return "main"
}

func fileJSON(path string, file *mockFile) map[string]interface{} {
	name := path
	if i := strings.LastIndex(path, "/"); i >= 0 {
		name = path[i+1:]
	}
	return map[string]interface{}{
		"type":     "file",
		"encoding": "base64",
		"name":     name,
		"path":     path,
		"sha":      file.sha,
		"size":     len(file.content),
		"content":  base64.StdEncoding.EncodeToString([]byte(file.content)),
	}
}

func blobSHA(content string) string {
	sum := sha1.Sum([]byte(fmt.Sprintf("blob %d\x00%s", len(content), content)))
	return hex.EncodeToString(sum[:])
}

func repoKey(owner, repo string) string {
	return owner + "/" + repo
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dangazineu/reposync/internal/errors"
	"github.com/dangazineu/reposync/internal/interfaces"
	"github.com/dangazineu/reposync/internal/manifest"
)

// DefaultCommitMessage is used for the version bump commit when the release
// intent does not set one.
const DefaultCommitMessage = "Bump version to {{version}}"

const versionPlaceholder = "{{version}}"

// WorkflowOptions are the run-wide inputs shared by every repository workflow.
type WorkflowOptions struct {
	RunID   string
	Version string
	Intent  interfaces.ReleaseIntent
	// DryRun stops every workflow after detection, before any mutation.
	DryRun bool
}

// Workflow releases a single repository. One Workflow value is shared by all
// repositories of a run; per-repository state lives in a release value that
// never escapes Execute.
type Workflow struct {
	client   interfaces.RepositoryClient
	detector *manifest.Detector
	logger   *zap.Logger
	metrics  *MetricsCollector
	opts     WorkflowOptions
}

// NewWorkflow creates a workflow. A nil detector uses the default ecosystems;
// nil logger and metrics are replaced with no-op values.
func NewWorkflow(client interfaces.RepositoryClient, detector *manifest.Detector, logger *zap.Logger, metrics *MetricsCollector, opts WorkflowOptions) *Workflow {
	if detector == nil {
		detector = manifest.NewDetector()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewMetricsCollector()
	}
	if opts.Intent.CommitMessage == "" {
		opts.Intent.CommitMessage = DefaultCommitMessage
	}
	return &Workflow{
		client:   client,
		detector: detector,
		logger:   logger,
		metrics:  metrics,
		opts:     opts,
	}
}

// release is the state owned by one repository's execution.
type release struct {
	ref      interfaces.RepositoryRef
	state    State
	file     manifest.VersionFile
	request  interfaces.ChangeRequest
	mergeSHA string
}

type transition struct {
	to State
	fn func(ctx context.Context, r *release) error
}

func (w *Workflow) transitions() []transition {
	return []transition{
		{to: StateFileDetected, fn: w.detect},
		{to: StateRequestOpened, fn: w.openRequest},
		{to: StateFileUpdated, fn: w.updateFile},
		{to: StateMerged, fn: w.merge},
		{to: StateReleased, fn: w.createRelease},
		{to: StateBranchCreated, fn: w.createBranch},
	}
}

// Execute drives ref through the release states and returns its outcome.
// It never panics and never returns without a terminal outcome; a failure at
// any step leaves earlier remote changes in place.
func (w *Workflow) Execute(ctx context.Context, ref interfaces.RepositoryRef) (outcome WorkflowOutcome) {
	start := time.Now()
	r := &release{ref: ref, state: StateStart}
	logger := w.logger.With(
		zap.String("run_id", w.opts.RunID),
		zap.String("repository", ref.FullName()),
	)

	w.metrics.RecordWorkflowStarted()
	defer func() {
		if p := recover(); p != nil {
			logger.Error("workflow panicked",
				zap.Any("panic", p),
				zap.ByteString("stack", debug.Stack()),
			)
			outcome = w.outcome(r, errors.New(errors.CodePanic, fmt.Sprintf("panic in state %s: %v", r.state, p)))
		}
		outcome.Duration = time.Since(start)
		w.metrics.RecordWorkflowCompleted(outcome.Duration, outcome.Success, outcome.ErrorCode())
	}()

	logger.Info("starting release",
		zap.String("origin", ref.OriginBranch),
		zap.String("target", ref.TargetBranch),
		zap.String("version", w.opts.Version),
		zap.Bool("dry_run", w.opts.DryRun),
	)

	for _, t := range w.transitions() {
		if w.opts.DryRun && t.to > StateFileDetected {
			break
		}
		if err := ctx.Err(); err != nil {
			return w.fail(logger, r, t.to, err)
		}

		stepStart := time.Now()
		err := t.fn(ctx, r)
		w.metrics.RecordStep(t.to, time.Since(stepStart), err == nil)
		if err != nil {
			return w.fail(logger, r, t.to, err)
		}

		r.state = t.to
		logger.Info("state reached",
			zap.Stringer("state", t.to),
			zap.Int64("step_ms", time.Since(stepStart).Milliseconds()),
		)
	}

	logger.Info("release finished", zap.Stringer("state", r.state))
	return w.outcome(r, nil)
}

func (w *Workflow) fail(logger *zap.Logger, r *release, attempted State, err error) WorkflowOutcome {
	logger.Error("release failed",
		zap.Stringer("state", r.state),
		zap.Stringer("attempted", attempted),
		zap.String("code", errors.CodeOf(err)),
		zap.Error(err),
	)
	return w.outcome(r, err)
}

func (w *Workflow) outcome(r *release, err error) WorkflowOutcome {
	outcome := WorkflowOutcome{
		Ref:             r.ref,
		Success:         err == nil,
		Err:             err,
		State:           r.state,
		Reached:         r.state,
		DryRun:          w.opts.DryRun,
		Path:            r.file.Path,
		Ecosystem:       r.file.Kind,
		PreviousVersion: r.file.CurrentVersion,
		PullRequest:     r.request.ID,
		PullRequestURL:  r.request.URL,
		MergeSHA:        r.mergeSHA,
	}
	if err != nil {
		outcome.State = StateFailed
	}
	return outcome
}

// detect verifies both branches exist, then locates and rewrites the version
// file of the origin branch.
func (w *Workflow) detect(ctx context.Context, r *release) error {
	for _, branch := range []string{r.ref.OriginBranch, r.ref.TargetBranch} {
		exists, err := w.client.BranchExists(ctx, r.ref, branch)
		if err != nil {
			return err
		}
		if !exists {
			return errors.New(errors.CodeBranchNotFound,
				fmt.Sprintf("branch %q does not exist in %s", branch, r.ref.FullName()))
		}
	}

	files, err := w.client.ListRootFiles(ctx, r.ref)
	if err != nil {
		return err
	}

	ecosystem, file, err := w.detector.Locate(files)
	if err != nil {
		return err
	}

	if file.Content == "" {
		read, err := w.client.ReadFile(ctx, r.ref, file.Path)
		if err != nil {
			return err
		}
		file.Content = read.Content
		if read.ContentID != "" {
			file.ContentID = read.ContentID
		}
	}

	vf, err := ecosystem.Apply(file, w.opts.Version)
	if err != nil {
		return err
	}
	r.file = vf
	if !vf.FieldFound {
		return errors.New(errors.CodeVersionFieldNotFound,
			fmt.Sprintf("%s has no recognisable version field", vf.Path))
	}
	return nil
}

func (w *Workflow) openRequest(ctx context.Context, r *release) error {
	request, err := w.client.OpenChangeRequest(ctx, r.ref,
		w.expand(w.opts.Intent.Title), w.expand(w.opts.Intent.Body))
	if err != nil {
		return err
	}
	r.request = request
	return nil
}

func (w *Workflow) updateFile(ctx context.Context, r *release) error {
	return w.client.UpdateFile(ctx, r.ref, interfaces.FileUpdate{
		Path:      r.file.Path,
		Content:   r.file.Rewritten,
		ContentID: r.file.ContentID,
		Branch:    r.ref.OriginBranch,
		Message:   w.expand(w.opts.Intent.CommitMessage),
	})
}

func (w *Workflow) merge(ctx context.Context, r *release) error {
	sha, err := w.client.MergeChangeRequest(ctx, r.ref, r.request.ID)
	if err != nil {
		return err
	}
	r.mergeSHA = sha
	return nil
}

func (w *Workflow) createRelease(ctx context.Context, r *release) error {
	return w.client.CreateRelease(ctx, r.ref, w.opts.Version, r.mergeSHA)
}

// createBranch roots the version branch at the change request's head as it
// was when the request was opened.
func (w *Workflow) createBranch(ctx context.Context, r *release) error {
	return w.client.CreateBranch(ctx, r.ref, w.opts.Version, r.request.HeadSHA)
}

func (w *Workflow) expand(text string) string {
	return strings.ReplaceAll(text, versionPlaceholder, w.opts.Version)
}

package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dangazineu/reposync/internal/errors"
	"github.com/dangazineu/reposync/internal/interfaces"
	"github.com/dangazineu/reposync/internal/manifest"
)

// Orchestrator runs one release Workflow per repository concurrently and
// collects their outcomes. A repository's failure never cancels or blocks
// its siblings, and Run returns only once every workflow is terminal.
//
// Example usage:
//
//	client, err := github.NewClient(github.Options{Token: token})
//	if err != nil {
//		return err
//	}
//	orchestrator, err := engine.NewOrchestrator(client, logger, engine.Config{ConcurrencyLimit: 8})
//	if err != nil {
//		return err
//	}
//	report, err := orchestrator.Run(ctx, engine.Plan{
//		Version:      "2.0.0",
//		Intent:       interfaces.ReleaseIntent{Title: "Release 2.0.0"},
//		Repositories: refs,
//	})
//
// err is only returned for problems detected before any workflow starts;
// per-repository failures are reported in the Report.
type Orchestrator struct {
	client interfaces.RepositoryClient
	logger *zap.Logger
	config Config
}

// Config contains configuration options for orchestrator behavior.
type Config struct {
	// ConcurrencyLimit bounds the number of workflows running at once. Zero
	// or negative runs every repository in parallel.
	ConcurrencyLimit int
	// DryRun detects and rewrites version files without any mutation.
	DryRun bool
	// Filter restricts the run to matching repositories. Nil selects all.
	Filter *RepositoryFilter
	// Detector overrides the version file detection order.
	Detector *manifest.Detector
}

// Plan is the input of one run.
type Plan struct {
	Version      string
	Intent       interfaces.ReleaseIntent
	Repositories []interfaces.RepositoryRef
}

// Report is the result of one run. Outcomes are in plan order, one per
// repository that was not filtered out.
type Report struct {
	RunID      string
	Version    string
	DryRun     bool
	Outcomes   []WorkflowOutcome
	Skipped    []interfaces.RepositoryRef
	StartedAt  time.Time
	FinishedAt time.Time
	Metrics    ReleaseMetrics
}

// Total is the number of repositories a workflow ran for.
func (r *Report) Total() int {
	return len(r.Outcomes)
}

func (r *Report) Succeeded() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Success {
			n++
		}
	}
	return n
}

func (r *Report) Failed() int {
	return r.Total() - r.Succeeded()
}

// Failures returns the failed outcomes in plan order.
func (r *Report) Failures() []WorkflowOutcome {
	var failures []WorkflowOutcome
	for _, o := range r.Outcomes {
		if !o.Success {
			failures = append(failures, o)
		}
	}
	return failures
}

func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// NewOrchestrator creates an Orchestrator sharing client between all
// workflows. client must be safe for concurrent use.
func NewOrchestrator(client interfaces.RepositoryClient, logger *zap.Logger, config Config) (*Orchestrator, error) {
	if client == nil {
		return nil, fmt.Errorf("repository client cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		client: client,
		logger: logger,
		config: config,
	}, nil
}

// Run releases plan.Version in every selected repository.
func (o *Orchestrator) Run(ctx context.Context, plan Plan) (*Report, error) {
	if plan.Version == "" {
		return nil, errors.New(errors.CodeConfiguration, "target version is required")
	}

	selected, skipped, err := o.selectRepositories(plan.Repositories)
	if err != nil {
		return nil, err
	}

	report := &Report{
		RunID:     GenerateRunID(),
		Version:   plan.Version,
		DryRun:    o.config.DryRun,
		Outcomes:  make([]WorkflowOutcome, len(selected)),
		Skipped:   skipped,
		StartedAt: time.Now(),
	}
	logger := o.logger.With(zap.String("run_id", report.RunID))

	for _, ref := range skipped {
		logger.Info("repository skipped by filter", zap.String("repository", ref.FullName()))
	}

	metrics := NewMetricsCollector()
	workflow := NewWorkflow(o.client, o.config.Detector, o.logger, metrics, WorkflowOptions{
		RunID:   report.RunID,
		Version: plan.Version,
		Intent:  plan.Intent,
		DryRun:  o.config.DryRun,
	})

	concurrencyLimit := o.config.ConcurrencyLimit
	if concurrencyLimit <= 0 || concurrencyLimit > len(selected) {
		concurrencyLimit = len(selected)
	}

	logger.Info("starting release run",
		zap.String("version", plan.Version),
		zap.Int("repositories", len(selected)),
		zap.Int("skipped", len(skipped)),
		zap.Int("concurrency", concurrencyLimit),
		zap.Bool("dry_run", o.config.DryRun),
	)

	semaphore := make(chan struct{}, max(concurrencyLimit, 1))
	var wg sync.WaitGroup

	for i, ref := range selected {
		wg.Add(1)
		go func(i int, ref interfaces.RepositoryRef) {
			defer wg.Done()

			if ref.Wait > 0 {
				logger.Debug("delaying workflow start",
					zap.String("repository", ref.FullName()),
					zap.Duration("wait", ref.Wait),
				)
				timer := time.NewTimer(ref.Wait)
				select {
				case <-timer.C:
				case <-ctx.Done():
					timer.Stop()
				}
			}

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			// Each goroutine owns its slot; no lock is needed.
			report.Outcomes[i] = workflow.Execute(ctx, ref)
		}(i, ref)
	}

	wg.Wait()

	report.FinishedAt = time.Now()
	report.Metrics = metrics.GetMetrics()

	logger.Info("release run finished",
		zap.Int("total", report.Total()),
		zap.Int("succeeded", report.Succeeded()),
		zap.Int("failed", report.Failed()),
		zap.Int("skipped", len(report.Skipped)),
		zap.Int64("duration_ms", report.Duration().Milliseconds()),
		zap.Float64("p50_ms", report.Metrics.WorkflowLatencyP50),
		zap.Float64("p95_ms", report.Metrics.WorkflowLatencyP95),
		zap.Float64("p99_ms", report.Metrics.WorkflowLatencyP99),
		zap.Int64("max_concurrent", report.Metrics.MaxConcurrentWorkflows),
		zap.Float64("error_rate", report.Metrics.ErrorRate),
		zap.Any("failures_by_code", report.Metrics.FailuresByCode),
		zap.Any("failures_by_state", report.Metrics.FailuresByState),
		zap.Any("step_latency_avg_ms", report.Metrics.StepLatencyAvg),
	)

	return report, nil
}

// selectRepositories splits refs by the configured filter, preserving order.
func (o *Orchestrator) selectRepositories(refs []interfaces.RepositoryRef) ([]interfaces.RepositoryRef, []interfaces.RepositoryRef, error) {
	if o.config.Filter == nil {
		return refs, nil, nil
	}

	var selected, skipped []interfaces.RepositoryRef
	for _, ref := range refs {
		ok, err := o.config.Filter.Match(ref)
		if err != nil {
			return nil, nil, err
		}
		if ok {
			selected = append(selected, ref)
		} else {
			skipped = append(skipped, ref)
		}
	}
	return selected, skipped, nil
}

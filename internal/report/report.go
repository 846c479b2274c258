// Package report renders the result of a release run for the terminal.
package report

import (
	stderrors "errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/rodaine/table"

	"github.com/dangazineu/reposync/internal/engine"
	"github.com/dangazineu/reposync/internal/github"
)

// Options control rendering.
type Options struct {
	NoColor bool
}

// Render writes one table row per outcome, then the failures, a summary line
// and the run metrics.
func Render(w io.Writer, r *engine.Report, opts Options) error {
	green := color.New(color.FgGreen, color.Bold)
	red := color.New(color.FgRed, color.Bold)
	yellow := color.New(color.FgYellow)
	header := color.New(color.FgCyan, color.Underline)
	if opts.NoColor {
		for _, c := range []*color.Color{green, red, yellow, header} {
			c.DisableColor()
		}
	}

	tbl := table.New("Repository", "Origin", "Target", "File", "Previous", "State", "Request", "Result").
		WithWriter(w).
		WithHeaderFormatter(header.SprintfFunc())

	for _, o := range r.Outcomes {
		tbl.AddRow(
			o.Ref.FullName(),
			o.Ref.OriginBranch,
			o.Ref.TargetBranch,
			dash(o.Path),
			dash(o.PreviousVersion),
			stateLabel(o),
			requestLabel(o),
			result(o),
		)
	}
	tbl.Print()

	if failures := r.Failures(); len(failures) > 0 {
		if _, err := fmt.Fprintln(w, "\nFailures:"); err != nil {
			return err
		}
		for _, o := range failures {
			if _, err := fmt.Fprintf(w, "  %s  %s\n", red.Sprint(o.Ref.FullName()), o.Message()); err != nil {
				return err
			}
		}
	}

	if len(r.Skipped) > 0 {
		if _, err := fmt.Fprintln(w, "\nSkipped by filter:"); err != nil {
			return err
		}
		for _, ref := range r.Skipped {
			if _, err := fmt.Fprintf(w, "  %s\n", yellow.Sprint(ref.FullName())); err != nil {
				return err
			}
		}
	}

	verb := "Released"
	if r.DryRun {
		verb = "Dry run for"
	}
	summary := green
	if r.Failed() > 0 {
		summary = red
	}
	if _, err := fmt.Fprintf(w, "\n%s\n", summary.Sprintf("%s %s: %d/%d succeeded, %d failed, %d skipped in %s (run %s)",
		verb, r.Version, r.Succeeded(), r.Total(), r.Failed(), len(r.Skipped),
		r.Duration().Round(time.Millisecond), r.RunID)); err != nil {
		return err
	}
	return renderMetrics(w, r.Metrics)
}

func renderMetrics(w io.Writer, m engine.ReleaseMetrics) error {
	if m.TotalWorkflows == 0 {
		return nil
	}
	if _, err := fmt.Fprintf(w, "Latency p50 %.0fms, p95 %.0fms, p99 %.0fms; max concurrent %d; error rate %.1f%%\n",
		m.WorkflowLatencyP50, m.WorkflowLatencyP95, m.WorkflowLatencyP99, m.MaxConcurrentWorkflows, m.ErrorRate); err != nil {
		return err
	}

	var steps []string
	for _, state := range engine.ReleaseStates() {
		if avg, ok := m.StepLatencyAvg[state.String()]; ok {
			steps = append(steps, fmt.Sprintf("%s %.0fms", state, avg))
		}
	}
	if len(steps) > 0 {
		if _, err := fmt.Fprintf(w, "Step latency: %s\n", strings.Join(steps, ", ")); err != nil {
			return err
		}
	}

	if len(m.FailuresByCode) > 0 {
		codes := make([]string, 0, len(m.FailuresByCode))
		for code := range m.FailuresByCode {
			codes = append(codes, code)
		}
		sort.Strings(codes)
		counts := make([]string, len(codes))
		for i, code := range codes {
			counts[i] = fmt.Sprintf("%s %d", code, m.FailuresByCode[code])
		}
		if _, err := fmt.Fprintf(w, "Failures by code: %s\n", strings.Join(counts, ", ")); err != nil {
			return err
		}
	}
	return nil
}

func stateLabel(o engine.WorkflowOutcome) string {
	if o.Success {
		return o.State.String()
	}
	return fmt.Sprintf("%s (after %s)", o.State, o.Reached)
}

func requestLabel(o engine.WorkflowOutcome) string {
	if o.PullRequest == 0 {
		return "-"
	}
	return "#" + strconv.Itoa(o.PullRequest)
}

func result(o engine.WorkflowOutcome) string {
	switch {
	case o.Success && o.DryRun:
		return "dry-run"
	case o.Success:
		return "ok"
	case isUnauthorized(o.Err):
		return o.ErrorCode() + " (credentials)"
	case o.ErrorCode() != "":
		return o.ErrorCode()
	default:
		return "failed"
	}
}

func isUnauthorized(err error) bool {
	var apiErr *github.APIError
	return stderrors.As(err, &apiErr) && apiErr.IsUnauthorized()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

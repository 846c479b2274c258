package engine

import (
	"sort"
	"sync"
	"time"
)

// ReleaseMetrics contains metrics for one or more release runs.
type ReleaseMetrics struct {
	TotalWorkflows      int64 `json:"total_workflows"`
	SuccessfulWorkflows int64 `json:"successful_workflows"`
	FailedWorkflows     int64 `json:"failed_workflows"`

	// Latency metrics (in milliseconds)
	WorkflowLatencyP50 float64 `json:"workflow_latency_p50"`
	WorkflowLatencyP95 float64 `json:"workflow_latency_p95"`
	WorkflowLatencyP99 float64 `json:"workflow_latency_p99"`

	// StepLatencyAvg is the average latency in milliseconds of the
	// transition into each state, keyed by state name.
	StepLatencyAvg map[string]float64 `json:"step_latency_avg"`
	// FailuresByState counts failed transitions keyed by the target state.
	FailuresByState map[string]int64 `json:"failures_by_state"`
	FailuresByCode  map[string]int64 `json:"failures_by_code"`

	ErrorRate float64 `json:"error_rate"`

	ActiveWorkflows        int64 `json:"active_workflows"`
	MaxConcurrentWorkflows int64 `json:"max_concurrent_workflows"`

	LastUpdated time.Time `json:"last_updated"`
}

type stepTotals struct {
	count int64
	total time.Duration
}

// MetricsCollector aggregates workflow and step metrics. It is safe for
// concurrent use by all workflows of a run.
type MetricsCollector struct {
	metrics           ReleaseMetrics
	workflowLatencies []time.Duration
	steps             map[State]*stepTotals
	mu                sync.RWMutex
	maxSamples        int
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	mc := &MetricsCollector{maxSamples: 1000}
	mc.reset()
	return mc
}

// RecordWorkflowStarted records the start of a repository workflow.
func (mc *MetricsCollector) RecordWorkflowStarted() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.metrics.TotalWorkflows++
	mc.metrics.ActiveWorkflows++
	if mc.metrics.ActiveWorkflows > mc.metrics.MaxConcurrentWorkflows {
		mc.metrics.MaxConcurrentWorkflows = mc.metrics.ActiveWorkflows
	}
	mc.metrics.LastUpdated = time.Now()
}

// RecordWorkflowCompleted records a workflow reaching a terminal state. code
// is the error code of a failure and ignored on success.
func (mc *MetricsCollector) RecordWorkflowCompleted(duration time.Duration, success bool, code string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.metrics.ActiveWorkflows--
	if success {
		mc.metrics.SuccessfulWorkflows++
	} else {
		mc.metrics.FailedWorkflows++
		if code == "" {
			code = "UNKNOWN"
		}
		mc.metrics.FailuresByCode[code]++
	}

	mc.workflowLatencies = append(mc.workflowLatencies, duration)
	if len(mc.workflowLatencies) > mc.maxSamples {
		mc.workflowLatencies = mc.workflowLatencies[len(mc.workflowLatencies)-mc.maxSamples:]
	}
	mc.updatePercentiles()

	completed := mc.metrics.SuccessfulWorkflows + mc.metrics.FailedWorkflows
	mc.metrics.ErrorRate = float64(mc.metrics.FailedWorkflows) / float64(completed) * 100.0

	mc.metrics.LastUpdated = time.Now()
}

// RecordStep records one attempted transition into state.
func (mc *MetricsCollector) RecordStep(state State, duration time.Duration, success bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	totals, ok := mc.steps[state]
	if !ok {
		totals = &stepTotals{}
		mc.steps[state] = totals
	}
	totals.count++
	totals.total += duration
	mc.metrics.StepLatencyAvg[state.String()] = float64(totals.total) / float64(totals.count) / float64(time.Millisecond)

	if !success {
		mc.metrics.FailuresByState[state.String()]++
	}
	mc.metrics.LastUpdated = time.Now()
}

func (mc *MetricsCollector) updatePercentiles() {
	if len(mc.workflowLatencies) == 0 {
		return
	}

	sorted := make([]time.Duration, len(mc.workflowLatencies))
	copy(sorted, mc.workflowLatencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	mc.metrics.WorkflowLatencyP50 = float64(sorted[len(sorted)*50/100]) / float64(time.Millisecond)
	mc.metrics.WorkflowLatencyP95 = float64(sorted[len(sorted)*95/100]) / float64(time.Millisecond)
	mc.metrics.WorkflowLatencyP99 = float64(sorted[len(sorted)*99/100]) / float64(time.Millisecond)
}

// GetMetrics returns a snapshot of current metrics.
func (mc *MetricsCollector) GetMetrics() ReleaseMetrics {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	snapshot := mc.metrics
	snapshot.StepLatencyAvg = make(map[string]float64, len(mc.metrics.StepLatencyAvg))
	for k, v := range mc.metrics.StepLatencyAvg {
		snapshot.StepLatencyAvg[k] = v
	}
	snapshot.FailuresByState = make(map[string]int64, len(mc.metrics.FailuresByState))
	for k, v := range mc.metrics.FailuresByState {
		snapshot.FailuresByState[k] = v
	}
	snapshot.FailuresByCode = make(map[string]int64, len(mc.metrics.FailuresByCode))
	for k, v := range mc.metrics.FailuresByCode {
		snapshot.FailuresByCode[k] = v
	}
	return snapshot
}

func (mc *MetricsCollector) reset() {
	mc.metrics = ReleaseMetrics{
		StepLatencyAvg:  make(map[string]float64),
		FailuresByState: make(map[string]int64),
		FailuresByCode:  make(map[string]int64),
		LastUpdated:     time.Now(),
	}
	mc.workflowLatencies = make([]time.Duration, 0, mc.maxSamples)
	mc.steps = make(map[State]*stepTotals)
}

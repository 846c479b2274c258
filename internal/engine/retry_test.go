package engine

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"
	"time"

	"github.com/dangazineu/reposync/internal/errors"
	"github.com/dangazineu/reposync/internal/interfaces"
)

type temporaryError struct {
	temporary bool
}

func (e *temporaryError) Error() string   { return "remote failure" }
func (e *temporaryError) Temporary() bool { return e.temporary }

func fastRetryConfig(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:    maxRetries,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"plain error", stderrors.New("boom"), false},
		{"temporary", &temporaryError{temporary: true}, true},
		{"permanent", &temporaryError{temporary: false}, false},
		{"wrapped temporary", errors.Wrap(&temporaryError{temporary: true}, errors.CodeRemoteAPI, "list failed"), true},
		{"cancelled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.expected {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestRetryableExecutorRetriesTemporaryErrors(t *testing.T) {
	executor := NewRetryableExecutor(fastRetryConfig(3))

	attempts := 0
	var retried []int
	err := executor.Execute(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return &temporaryError{temporary: true}
		}
		return nil
	}, func(attempt int, err error) {
		retried = append(retried, attempt)
	})

	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
	if len(retried) != 2 || retried[0] != 1 || retried[1] != 2 {
		t.Errorf("Unexpected retry callbacks: %v", retried)
	}
}

func TestRetryableExecutorStopsOnPermanentError(t *testing.T) {
	executor := NewRetryableExecutor(fastRetryConfig(3))

	attempts := 0
	permanent := &temporaryError{temporary: false}
	err := executor.Execute(context.Background(), func() error {
		attempts++
		return permanent
	}, nil)

	if err != permanent {
		t.Errorf("Expected the permanent error unchanged, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}

func TestRetryableExecutorReturnsPermanentErrorOnLastAttempt(t *testing.T) {
	executor := NewRetryableExecutor(fastRetryConfig(2))

	attempts := 0
	permanent := &temporaryError{temporary: false}
	err := executor.Execute(context.Background(), func() error {
		attempts++
		if attempts <= 2 {
			return &temporaryError{temporary: true}
		}
		return permanent
	}, nil)

	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
	if err != permanent {
		t.Fatalf("Expected the permanent error unchanged, got %v", err)
	}
	if strings.Contains(err.Error(), "giving up") {
		t.Errorf("A permanent failure must not be reported as exhausted retries: %v", err)
	}
}

func TestRetryableExecutorGivesUpKeepingCode(t *testing.T) {
	executor := NewRetryableExecutor(fastRetryConfig(2))

	attempts := 0
	err := executor.Execute(context.Background(), func() error {
		attempts++
		return errors.Wrap(&temporaryError{temporary: true}, errors.CodeRemoteAPI, "list failed")
	}, nil)

	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
	if errors.CodeOf(err) != errors.CodeRemoteAPI {
		t.Errorf("Expected REMOTE_API code to survive, got %q (%v)", errors.CodeOf(err), err)
	}
}

func TestRetryableExecutorHonoursCancellation(t *testing.T) {
	executor := NewRetryableExecutor(RetryConfig{MaxRetries: 5, InitialDelay: time.Hour, MaxDelay: time.Hour, BackoffFactor: 1})

	ctx, cancel := context.WithCancel(context.Background())
	err := executor.Execute(ctx, func() error {
		cancel()
		return &temporaryError{temporary: true}
	}, nil)

	if !stderrors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestCalculateDelayIsCapped(t *testing.T) {
	executor := NewRetryableExecutor(RetryConfig{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, BackoffFactor: 2})

	expected := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond, time.Second, time.Second}
	for attempt, want := range expected {
		if got := executor.calculateDelay(attempt); got != want {
			t.Errorf("calculateDelay(%d) = %v, want %v", attempt, got, want)
		}
	}
}

func TestRetryingClientRetriesOnlyReads(t *testing.T) {
	client := newFakeClient()
	client.addRepo(acmeSvc, rootFile("package.json", "{\"version\": \"1.0.0\"}\n"))
	client.fail(acmeSvc, "ListRootFiles", &temporaryError{temporary: true})
	client.fail(acmeSvc, "OpenChangeRequest", &temporaryError{temporary: true})

	retrying := NewRetryingClient(client, fastRetryConfig(2), nil)
	ctx := context.Background()

	if _, err := retrying.ListRootFiles(ctx, acmeSvc); err == nil {
		t.Fatal("Expected ListRootFiles to keep failing")
	}
	if _, err := retrying.OpenChangeRequest(ctx, acmeSvc, "t", "b"); err == nil {
		t.Fatal("Expected OpenChangeRequest to fail")
	}

	counts := map[string]int{}
	for _, call := range client.calls(acmeSvc) {
		counts[call]++
	}
	if counts["ListRootFiles"] != 3 {
		t.Errorf("Expected ListRootFiles to be attempted 3 times, got %d", counts["ListRootFiles"])
	}
	if counts["OpenChangeRequest"] != 1 {
		t.Errorf("Mutations must not be retried, got %d attempts", counts["OpenChangeRequest"])
	}
}

func TestRetryingClientRecoversWorkflow(t *testing.T) {
	client := newFakeClient()
	client.addRepo(acmeSvc, rootFile("package.json", "{\"version\": \"1.0.0\"}\n"))
	flaky := &flakyClient{fakeClient: client, failures: 2}

	var repositoryClient interfaces.RepositoryClient = NewRetryingClient(flaky, fastRetryConfig(3), nil)
	outcome := newTestWorkflow(repositoryClient, WorkflowOptions{}).Execute(context.Background(), acmeSvc)

	if !outcome.Success {
		t.Fatalf("Expected workflow to recover from transient read failures: %v", outcome.Err)
	}
}

// flakyClient fails the first ReadFile calls with a temporary error.
type flakyClient struct {
	*fakeClient
	failures int
}

func (c *flakyClient) ReadFile(ctx context.Context, ref interfaces.RepositoryRef, path string) (interfaces.RootFile, error) {
	if c.failures > 0 {
		c.failures--
		return interfaces.RootFile{}, &temporaryError{temporary: true}
	}
	return c.fakeClient.ReadFile(ctx, ref, path)
}

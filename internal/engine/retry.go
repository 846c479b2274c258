package engine

import (
	"context"
	stderrors "errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/dangazineu/reposync/internal/interfaces"
)

// RetryConfig defines the configuration for retrying remote reads.
type RetryConfig struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	// JitterPercent is the fraction of the delay added or removed at random (0-1).
	JitterPercent float64
}

// DefaultRetryConfig returns the backoff used when retries are enabled.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		InitialDelay:  200 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
		JitterPercent: 0.1,
	}
}

// RetryableExecutor executes functions with retry logic and exponential backoff.
type RetryableExecutor struct {
	config RetryConfig
}

// NewRetryableExecutor creates a new retryable executor with the given configuration.
func NewRetryableExecutor(config RetryConfig) *RetryableExecutor {
	return &RetryableExecutor{config: config}
}

// Execute runs fn until it succeeds, fails with an error IsRetryable rejects,
// or MaxRetries retries have been made. onRetry may be nil.
func (re *RetryableExecutor) Execute(ctx context.Context, fn func() error, onRetry func(attempt int, err error)) error {
	var lastErr error

	for attempt := 0; attempt <= re.config.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if !IsRetryable(lastErr) {
			return lastErr
		}

		if attempt == re.config.MaxRetries {
			break
		}

		if onRetry != nil {
			onRetry(attempt+1, lastErr)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(re.calculateDelay(attempt)):
		}
	}

	if re.config.MaxRetries == 0 {
		return lastErr
	}
	return fmt.Errorf("giving up after %d retries: %w", re.config.MaxRetries, lastErr)
}

// IsRetryable reports whether err carries a temporary failure. Context
// cancellation is never retryable.
func IsRetryable(err error) bool {
	if err == nil || stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var temporary interface{ Temporary() bool }
	return stderrors.As(err, &temporary) && temporary.Temporary()
}

// calculateDelay calculates the delay for the next retry attempt with exponential backoff and jitter.
func (re *RetryableExecutor) calculateDelay(attempt int) time.Duration {
	delay := float64(re.config.InitialDelay) * math.Pow(re.config.BackoffFactor, float64(attempt))

	if delay > float64(re.config.MaxDelay) {
		delay = float64(re.config.MaxDelay)
	}

	if re.config.JitterPercent > 0 {
		delay += delay * re.config.JitterPercent * (rand.Float64()*2 - 1)
	}

	if delay < 0 {
		delay = float64(re.config.InitialDelay)
	}

	return time.Duration(delay)
}

// RetryingClient retries the read operations of a RepositoryClient.
// Mutations are passed through unchanged and never repeated.
type RetryingClient struct {
	interfaces.RepositoryClient
	executor *RetryableExecutor
	logger   *zap.Logger
}

// NewRetryingClient wraps client.
func NewRetryingClient(client interfaces.RepositoryClient, config RetryConfig, logger *zap.Logger) *RetryingClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryingClient{
		RepositoryClient: client,
		executor:         NewRetryableExecutor(config),
		logger:           logger,
	}
}

func (c *RetryingClient) ListRootFiles(ctx context.Context, ref interfaces.RepositoryRef) ([]interfaces.RootFile, error) {
	var files []interfaces.RootFile
	err := c.executor.Execute(ctx, func() error {
		var err error
		files, err = c.RepositoryClient.ListRootFiles(ctx, ref)
		return err
	}, c.onRetry("list root files", ref))
	return files, err
}

func (c *RetryingClient) ReadFile(ctx context.Context, ref interfaces.RepositoryRef, path string) (interfaces.RootFile, error) {
	var file interfaces.RootFile
	err := c.executor.Execute(ctx, func() error {
		var err error
		file, err = c.RepositoryClient.ReadFile(ctx, ref, path)
		return err
	}, c.onRetry("read file", ref))
	return file, err
}

func (c *RetryingClient) BranchExists(ctx context.Context, ref interfaces.RepositoryRef, branch string) (bool, error) {
	var exists bool
	err := c.executor.Execute(ctx, func() error {
		var err error
		exists, err = c.RepositoryClient.BranchExists(ctx, ref, branch)
		return err
	}, c.onRetry("get branch", ref))
	return exists, err
}

func (c *RetryingClient) onRetry(operation string, ref interfaces.RepositoryRef) func(int, error) {
	return func(attempt int, err error) {
		c.logger.Warn("retrying remote read",
			zap.String("operation", operation),
			zap.String("repository", ref.FullName()),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}

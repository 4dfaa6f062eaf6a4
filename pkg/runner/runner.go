package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/stepflow"
	"github.com/aretw0/stepflow/internal/logging"
	"github.com/aretw0/stepflow/pkg/domain"
	"github.com/aretw0/stepflow/pkg/graph"
	"github.com/aretw0/stepflow/pkg/session"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

// Executor runs one attempt of a compiled graph. *stepflow.Engine implements it.
type Executor interface {
	Execute(ctx context.Context, g *graph.Compiled, initial map[string]any, opts stepflow.RunOptions) (*stepflow.Result, error)
}

// RetryPolicy controls how failed attempts are repeated.
type RetryPolicy struct {
	MaxAttempts     int           // Total attempts, including the first. Values below 1 mean 1.
	InitialInterval time.Duration // Wait before the second attempt.
	MaxInterval     time.Duration // Upper bound of a single wait.
	Multiplier      float64
	Retryable       func(error) bool // Defaults to IsRetryable.
}

// DefaultRetryPolicy makes a single attempt.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     1,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Multiplier:      2,
		Retryable:       IsRetryable,
	}
}

// IsRetryable reports whether a failed run may succeed when repeated: only step
// failures qualify, and not when the run was cancelled or ran out of time.
func IsRetryable(err error) bool {
	return errors.Is(err, domain.ErrStepExecution) &&
		!errors.Is(err, domain.ErrCancelled) &&
		!errors.Is(err, domain.ErrDeadlineExceeded)
}

// Runner executes graphs with retries and persists their records.
type Runner struct {
	exec     Executor
	sessions *session.Manager
	policy   RetryPolicy
	logger   *slog.Logger
}

// Option defines a functional option for configuring the Runner.
type Option func(*Runner)

// WithSessions persists run records through m.
func WithSessions(m *session.Manager) Option {
	return func(r *Runner) {
		r.sessions = m
	}
}

// WithRetryPolicy replaces the whole retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(r *Runner) {
		r.policy = p
	}
}

// WithMaxAttempts sets the total number of attempts.
func WithMaxAttempts(n int) Option {
	return func(r *Runner) {
		r.policy.MaxAttempts = n
	}
}

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates a Runner.
func New(exec Executor, opts ...Option) *Runner {
	r := &Runner{
		exec:   exec,
		policy: DefaultRetryPolicy(),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.policy.Retryable == nil {
		r.policy.Retryable = IsRetryable
	}
	return r
}

// Report is the outcome of Run: the last attempt's result and the persisted record.
type Report struct {
	Result   *stepflow.Result
	Record   *domain.RunRecord
	Attempts int
}

// Run executes g, retrying according to the policy. Every attempt starts from
// initial and shares one run ID. The error is the last attempt's error, joined
// with any persistence failure.
func (r *Runner) Run(ctx context.Context, g *graph.Compiled, initial map[string]any, opts stepflow.RunOptions) (*Report, error) {
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	logger := r.logger.With("graph", g.Name(), "run_id", opts.RunID)
	report := &Report{}

	if err := r.markRunning(ctx, g, opts.RunID); err != nil {
		return report, err
	}

	var lastErr error
	op := func() error {
		attemptOpts := opts
		if report.Attempts > 0 {
			attemptOpts.Trace = nil
		}
		report.Attempts++

		report.Result, lastErr = r.exec.Execute(ctx, g, initial, attemptOpts)
		if lastErr == nil {
			return nil
		}
		if !r.policy.Retryable(lastErr) {
			return backoff.Permanent(lastErr)
		}
		return lastErr
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn("run attempt failed, retrying", "attempt", report.Attempts, "wait", wait, "err", err)
	}

	// The outcome is carried by lastErr; a cancellation during a wait keeps the
	// last attempt's error.
	_ = backoff.RetryNotify(op, r.backoff(ctx), notify)

	if report.Result != nil {
		report.Record = report.Result.Record()
		report.Record.Attempts = report.Attempts
		if err := r.persist(ctx, report.Record); err != nil {
			logger.Error("failed to persist run", "err", err)
			return report, errors.Join(lastErr, err)
		}
	}
	return report, lastErr
}

func (r *Runner) backoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.policy.InitialInterval
	b.MaxInterval = r.policy.MaxInterval
	if r.policy.Multiplier > 0 {
		b.Multiplier = r.policy.Multiplier
	}
	b.MaxElapsedTime = 0

	retries := max(r.policy.MaxAttempts-1, 0)
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

func (r *Runner) markRunning(ctx context.Context, g *graph.Compiled, runID string) error {
	if r.sessions == nil {
		return nil
	}
	_, err := r.sessions.Update(ctx, runID, func(rec *domain.RunRecord) error {
		rec.Graph = g.Name()
		rec.Status = domain.StatusRunning
		rec.StartedAt = time.Now()
		return nil
	})
	if err != nil {
		return fmt.Errorf("persist run start: %w", err)
	}
	return nil
}

func (r *Runner) persist(ctx context.Context, rec *domain.RunRecord) error {
	if r.sessions == nil {
		return nil
	}
	// Cancelled runs are still recorded.
	if err := r.sessions.Save(context.WithoutCancel(ctx), rec); err != nil {
		return fmt.Errorf("persist run: %w", err)
	}
	return nil
}

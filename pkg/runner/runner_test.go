package runner_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/stepflow"
	"github.com/aretw0/stepflow/pkg/adapters/memory"
	"github.com/aretw0/stepflow/pkg/domain"
	"github.com/aretw0/stepflow/pkg/graph"
	"github.com/aretw0/stepflow/pkg/registry"
	"github.com/aretw0/stepflow/pkg/runner"
	"github.com/aretw0/stepflow/pkg/schema"
	"github.com/aretw0/stepflow/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyGraph fails its only step until it has been called failures+1 times.
func flakyGraph(t *testing.T, failures int32) (*stepflow.Engine, *graph.Compiled, *atomic.Int32) {
	t.Helper()
	calls := &atomic.Int32{}
	reg := registry.NewRegistry()
	require.NoError(t, reg.RegisterStep("flaky", "test", func(ctx context.Context, _ domain.View, _ registry.Config) (domain.Update, error) {
		n := calls.Add(1)
		if n <= failures {
			return nil, errors.New("transient")
		}
		return domain.Update{"attempt": int(n)}, nil
	}, registry.Writes("attempt")))

	eng, err := stepflow.New(stepflow.WithRegistry(reg))
	require.NoError(t, err)

	fields := domain.MustSchema(domain.Field{Name: "attempt", Type: schema.Int()})
	g, err := eng.Add(graph.New("flaky", fields).
		AddNode("call", "flaky").
		MarkTerminal("call").
		SetEntry("call"))
	require.NoError(t, err)
	return eng, g, calls
}

func fastRetries(n int) runner.Option {
	return runner.WithRetryPolicy(runner.RetryPolicy{
		MaxAttempts:     n,
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
	})
}

func TestRunner_Run(t *testing.T) {
	ctx := context.Background()

	t.Run("success persists record", func(t *testing.T) {
		eng, g, _ := flakyGraph(t, 0)
		sessions := session.NewManager(memory.NewStore())
		r := runner.New(eng, runner.WithSessions(sessions))

		report, err := r.Run(ctx, g, nil, stepflow.RunOptions{})
		require.NoError(t, err)
		assert.Equal(t, 1, report.Attempts)
		assert.NotEmpty(t, report.Record.ID)

		saved, err := sessions.Load(ctx, report.Record.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCompleted, saved.Status)
		assert.Equal(t, "flaky", saved.Graph)
		assert.Equal(t, 1, saved.State["attempt"])
		assert.Len(t, saved.Trace, 1)
		assert.Equal(t, 1, saved.Attempts)
	})

	t.Run("retries step failures", func(t *testing.T) {
		eng, g, calls := flakyGraph(t, 1)
		sessions := session.NewManager(memory.NewStore())
		r := runner.New(eng, runner.WithSessions(sessions), fastRetries(3))

		report, err := r.Run(ctx, g, nil, stepflow.RunOptions{RunID: "run-1"})
		require.NoError(t, err)
		assert.Equal(t, 2, report.Attempts)
		assert.EqualValues(t, 2, calls.Load())
		assert.Equal(t, "run-1", report.Record.ID)
		assert.Len(t, report.Record.Trace, 1, "each attempt starts a fresh trace")

		saved, err := sessions.Load(ctx, "run-1")
		require.NoError(t, err)
		assert.Equal(t, 2, saved.Attempts)
		assert.Equal(t, 2, saved.State["attempt"])
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		eng, g, calls := flakyGraph(t, 10)
		store := memory.NewStore()
		r := runner.New(eng, runner.WithSessions(session.NewManager(store)), fastRetries(3))

		report, err := r.Run(ctx, g, nil, stepflow.RunOptions{RunID: "run-2"})
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrStepExecution)
		assert.Equal(t, 3, report.Attempts)
		assert.EqualValues(t, 3, calls.Load())

		saved, err := store.Load(ctx, "run-2")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusFailed, saved.Status)
		assert.Contains(t, saved.Error, "transient")
	})

	t.Run("does not retry invalid initial state", func(t *testing.T) {
		eng, g, calls := flakyGraph(t, 0)
		r := runner.New(eng, fastRetries(3))

		report, err := r.Run(ctx, g, map[string]any{"unknown": 1}, stepflow.RunOptions{})
		require.Error(t, err)
		assert.Equal(t, 1, report.Attempts)
		assert.EqualValues(t, 0, calls.Load())
		assert.Equal(t, domain.StatusFailed, report.Record.Status)
	})

	t.Run("cancelled run is recorded", func(t *testing.T) {
		eng, g, _ := flakyGraph(t, 0)
		store := memory.NewStore()
		r := runner.New(eng, runner.WithSessions(session.NewManager(store)), fastRetries(3))

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		report, err := r.Run(cctx, g, nil, stepflow.RunOptions{RunID: "run-3"})
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrCancelled)
		assert.Equal(t, 1, report.Attempts)

		saved, loadErr := store.Load(ctx, "run-3")
		require.NoError(t, loadErr)
		assert.Equal(t, domain.StatusCancelled, saved.Status)
	})
}

func TestIsRetryable(t *testing.T) {
	stepErr := &domain.StepExecutionError{Node: "n", Step: "s", Cause: errors.New("boom")}

	assert.True(t, runner.IsRetryable(stepErr))
	assert.True(t, runner.IsRetryable(&domain.ExecutionError{Err: stepErr}))
	assert.False(t, runner.IsRetryable(&domain.StepLimitExceededError{Limit: 1}))
	assert.False(t, runner.IsRetryable(errors.Join(domain.ErrCancelled, stepErr)))
	assert.False(t, runner.IsRetryable(errors.Join(&domain.DeadlineExceededError{}, stepErr)))
}

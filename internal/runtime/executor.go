package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/stepflow/internal/logging"
	"github.com/aretw0/stepflow/pkg/domain"
	"github.com/aretw0/stepflow/pkg/graph"
	"github.com/aretw0/stepflow/pkg/trace"
	"github.com/google/uuid"
)

// Executor drives compiled graphs. It holds no per-run state and is safe for
// concurrent use; each Execute call owns its state and trace.
type Executor struct {
	logger    *slog.Logger
	observers []trace.Observer
	now       func() time.Time
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger used for run lifecycle and observer failures.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithObservers adds observers notified on every run.
func WithObservers(obs ...trace.Observer) Option {
	return func(e *Executor) { e.observers = append(e.observers, obs...) }
}

// WithClock replaces time.Now for timestamps and deadline checks.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// New creates an executor.
func New(opts ...Option) *Executor {
	e := &Executor{
		logger: logging.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunOptions bounds and instruments a single run.
type RunOptions struct {
	RunID       string        // Generated when empty.
	MaxSteps    int           // Maximum step invocations. Zero means unbounded.
	Deadline    time.Time     // Absolute run deadline. Zero means none.
	Timeout     time.Duration // Relative run deadline. The earlier of Deadline and Timeout wins.
	StepTimeout time.Duration // Default per-invocation bound. Node timeouts override it.
	Trace       *trace.Trace  // Destination trace. A new one is created when nil.
	Observers   []trace.Observer
}

// Result is the outcome of one run. It is returned on failure too.
type Result struct {
	RunID      string
	Graph      string
	Status     domain.ExecutionStatus
	State      *domain.State
	Trace      *trace.Trace
	Steps      int
	StartedAt  time.Time
	FinishedAt time.Time
	Err        error
}

// Record converts the result into its persisted form.
func (r *Result) Record() *domain.RunRecord {
	rec := &domain.RunRecord{
		ID:         r.RunID,
		Graph:      r.Graph,
		Status:     r.Status,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Attempts:   1,
	}
	if r.State != nil {
		rec.State = r.State.Snapshot()
	}
	if r.Trace != nil {
		rec.Trace = r.Trace.Records()
	}
	if r.Err != nil {
		rec.Error = r.Err.Error()
	}
	return rec
}

// run is the mutable bookkeeping of a single Execute call.
type run struct {
	exec      *Executor
	graph     *graph.Compiled
	opts      RunOptions
	result    *Result
	observers []trace.Observer
	deadline  time.Time
	logger    *slog.Logger
}

// Execute runs g from its entry node until the terminal marker or a failure.
// On failure both the partial Result and an *domain.ExecutionError are returned.
func (e *Executor) Execute(ctx context.Context, g *graph.Compiled, initial map[string]any, opts RunOptions) (*Result, error) {
	if g == nil {
		return nil, errors.New("executor: nil graph")
	}

	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	tr := opts.Trace
	if tr == nil {
		tr = trace.New()
	}

	r := &run{
		exec:  e,
		graph: g,
		opts:  opts,
		result: &Result{
			RunID:     runID,
			Graph:     g.Name(),
			Status:    domain.StatusPending,
			Trace:     tr,
			StartedAt: e.now(),
		},
		observers: append(append([]trace.Observer{}, e.observers...), opts.Observers...),
		logger:    e.logger.With("graph", g.Name(), "run_id", runID),
	}

	state, err := g.Schema().NewState(initial)
	if err != nil {
		return r.finish(domain.StatusFailed, "", err)
	}
	r.result.State = state

	r.deadline = opts.Deadline
	if opts.Timeout > 0 {
		if d := r.result.StartedAt.Add(opts.Timeout); r.deadline.IsZero() || d.Before(r.deadline) {
			r.deadline = d
		}
	}
	if !r.deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, r.deadline)
		defer cancel()
	}

	r.result.Status = domain.StatusRunning
	r.logger.DebugContext(ctx, "run started", "entry", g.Entry(), "max_steps", opts.MaxSteps)

	current := g.Entry()
	for {
		if err := r.checkBounds(ctx); err != nil {
			return r.finish(statusFor(err), current, err)
		}

		node, ok := g.Node(current)
		if !ok {
			// Compile guarantees every target exists; reaching this is a bug.
			return r.finish(domain.StatusFailed, current, &domain.NotFoundError{Kind: "node", Name: current, Available: g.Nodes()})
		}

		next, err := r.step(ctx, node)
		if err != nil {
			status := r.classify(ctx, err)
			if status == domain.StatusFailed && errors.Is(ctx.Err(), context.DeadlineExceeded) {
				err = fmt.Errorf("%w: %w", r.deadlineError(), err)
			}
			return r.finish(status, current, err)
		}
		if next == domain.End {
			return r.finish(domain.StatusCompleted, "", nil)
		}
		current = next
	}
}

// checkBounds runs before every invocation: cancellation, run deadline, step budget.
func (r *run) checkBounds(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("%w: %w", domain.ErrCancelled, context.Cause(ctx))
		}
		return r.deadlineError()
	}
	if !r.deadline.IsZero() && !r.exec.now().Before(r.deadline) {
		return r.deadlineError()
	}
	if r.opts.MaxSteps > 0 && r.result.Steps >= r.opts.MaxSteps {
		return &domain.StepLimitExceededError{Limit: r.opts.MaxSteps}
	}
	return nil
}

func (r *run) deadlineError() error {
	return &domain.DeadlineExceededError{
		Deadline: r.deadline,
		Elapsed:  r.exec.now().Sub(r.result.StartedAt),
	}
}

// classify maps a failed step to the terminal status. A step that failed because
// the caller cancelled, or because the run deadline passed, is reported as such.
func (r *run) classify(ctx context.Context, err error) domain.ExecutionStatus {
	if errors.Is(err, domain.ErrStepExecution) {
		switch ctxErr := ctx.Err(); {
		case errors.Is(ctxErr, context.Canceled):
			return domain.StatusCancelled
		case errors.Is(ctxErr, context.DeadlineExceeded):
			return domain.StatusFailed
		}
	}
	return statusFor(err)
}

func statusFor(err error) domain.ExecutionStatus {
	if errors.Is(err, domain.ErrCancelled) {
		return domain.StatusCancelled
	}
	return domain.StatusFailed
}

// finish seals the result. err is nil only for completed runs.
func (r *run) finish(status domain.ExecutionStatus, node string, err error) (*Result, error) {
	res := r.result
	res.Status = status
	res.FinishedAt = r.exec.now()

	if err == nil {
		r.logger.Info("run completed", "steps", res.Steps, "duration", res.FinishedAt.Sub(res.StartedAt))
		return res, nil
	}

	if status == domain.StatusCancelled && !errors.Is(err, domain.ErrCancelled) {
		err = fmt.Errorf("%w: %w", domain.ErrCancelled, err)
	}
	execErr := &domain.ExecutionError{
		Graph:  res.Graph,
		Status: status,
		Node:   node,
		Steps:  res.Steps,
		State:  res.State,
		Err:    err,
	}
	res.Err = execErr
	r.logger.Warn("run ended without completing", "status", status, "node", node, "steps", res.Steps, "error", err)
	return res, execErr
}

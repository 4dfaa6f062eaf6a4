package runtime_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/stepflow/internal/runtime"
	"github.com/aretw0/stepflow/pkg/domain"
	"github.com/aretw0/stepflow/pkg/graph"
	"github.com/aretw0/stepflow/pkg/registry"
	"github.com/aretw0/stepflow/pkg/schema"
	"github.com/aretw0/stepflow/pkg/trace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterSchema() *domain.Schema {
	return domain.MustSchema(
		domain.Field{Name: "count", Type: schema.Int(), Policy: domain.Sum(), Default: 0},
		domain.Field{Name: "log", Type: schema.Slice(schema.String()), Policy: domain.Append()},
		domain.Field{Name: "note", Type: schema.String()},
	)
}

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.NewRegistry()

	require.NoError(t, reg.RegisterStep("noop", "test", func(context.Context, domain.View, registry.Config) (domain.Update, error) {
		return nil, nil
	}))
	require.NoError(t, reg.RegisterStep("inc", "test", func(_ context.Context, _ domain.View, _ registry.Config) (domain.Update, error) {
		return domain.Update{"count": 1}, nil
	}, registry.Writes("count")))
	require.NoError(t, reg.RegisterStep("log", "test", func(_ context.Context, _ domain.View, cfg registry.Config) (domain.Update, error) {
		return domain.Update{"log": []string{cfg.String("msg", "?")}}, nil
	}, registry.Writes("log")))
	require.NoError(t, reg.RegisterStep("sneaky", "test", func(context.Context, domain.View, registry.Config) (domain.Update, error) {
		return domain.Update{"note": "not allowed"}, nil
	}, registry.Writes("log")))
	require.NoError(t, reg.RegisterStep("fail", "test", func(context.Context, domain.View, registry.Config) (domain.Update, error) {
		return nil, errors.New("upstream unavailable")
	}))
	require.NoError(t, reg.RegisterStep("panic", "test", func(context.Context, domain.View, registry.Config) (domain.Update, error) {
		panic("kaboom")
	}))
	require.NoError(t, reg.RegisterStep("slow", "test", func(context.Context, domain.View, registry.Config) (domain.Update, error) {
		time.Sleep(30 * time.Millisecond)
		return nil, nil
	}))
	require.NoError(t, reg.RegisterStep("measure", "test", func(ctx context.Context, _ domain.View, _ registry.Config) (domain.Update, error) {
		trace.Report(ctx, "hits", 7)
		return nil, nil
	}))
	require.NoError(t, reg.RegisterStep("bad_type", "test", func(context.Context, domain.View, registry.Config) (domain.Update, error) {
		return domain.Update{"note": 42}, nil
	}))

	require.NoError(t, reg.RegisterRouter("under3", "test", func(_ context.Context, s domain.View, _ registry.Config) (string, error) {
		v, err := s.Get("count")
		if err != nil {
			return "", err
		}
		if v.(int) < 3 {
			return "again", nil
		}
		return "done", nil
	}, registry.Labels("again", "done")))
	require.NoError(t, reg.RegisterRouter("constant", "test", func(_ context.Context, _ domain.View, cfg registry.Config) (string, error) {
		return cfg.String("label", ""), nil
	}))
	return reg
}

func compile(t *testing.T, reg *registry.Registry, g *graph.Definition) *graph.Compiled {
	t.Helper()
	c, err := g.Compile(reg)
	require.NoError(t, err)
	return c
}

func TestExecute_Linear(t *testing.T) {
	reg := testRegistry(t)
	g := compile(t, reg, graph.New("linear", counterSchema()).
		AddNode("a", "log", graph.WithConfig(registry.Config{"msg": "a"})).
		AddNode("b", "log", graph.WithConfig(registry.Config{"msg": "b"})).
		AddNode("c", "log", graph.WithConfig(registry.Config{"msg": "c"})).
		AddEdge("a", "b").
		AddEdge("b", "c").
		MarkTerminal("c").
		SetEntry("a"))

	res, err := runtime.New().Execute(context.Background(), g, nil, runtime.RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCompleted, res.Status)
	assert.Equal(t, 3, res.Steps)
	assert.Equal(t, 3, res.Trace.Len())
	assert.Equal(t, []string{"a", "b", "c"}, res.Trace.Path())
	assert.NotEmpty(t, res.RunID)

	last, ok := res.Trace.Last()
	require.True(t, ok)
	assert.Equal(t, "c", last.Node)
	assert.Equal(t, domain.End, last.Next)
	assert.Equal(t, domain.OutcomeSuccess, last.Outcome)

	v, err := res.State.Get("log")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, v)

	first := res.Trace.Records()[0]
	assert.Equal(t, 1, first.Seq)
	assert.Equal(t, map[string]any{"count": 0}, first.Input)
	assert.Equal(t, map[string]any{"log": []string{"a"}}, first.Changes)
}

func TestExecute_Counter(t *testing.T) {
	reg := testRegistry(t)
	g := compile(t, reg, graph.New("counter", counterSchema()).
		AddNode("A", "inc").
		AddConditionalEdge("A", "under3", map[string]string{"again": "A", "done": domain.End}).
		SetEntry("A"))

	res, err := runtime.New().Execute(context.Background(), g, nil, runtime.RunOptions{MaxSteps: 10})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCompleted, res.Status)
	assert.Equal(t, 3, res.Trace.Visits("A"))
	v, _ := res.State.Get("count")
	assert.Equal(t, 3, v)

	routes := []string{}
	for rec := range res.Trace.All() {
		routes = append(routes, rec.Route)
	}
	assert.Equal(t, []string{"again", "again", "done"}, routes)
}

func TestExecute_StepLimit(t *testing.T) {
	reg := testRegistry(t)
	g := compile(t, reg, graph.New("loop", counterSchema()).
		AddNode("A", "inc").
		AddConditionalEdge("A", "constant", map[string]string{"loop": "A", "stop": domain.End},
			graph.WithRouterConfig(registry.Config{"label": "loop"})).
		SetEntry("A"))

	res, err := runtime.New().Execute(context.Background(), g, nil, runtime.RunOptions{MaxSteps: 5})
	require.Error(t, err)

	assert.ErrorIs(t, err, domain.ErrStepLimitExceeded)
	var limitErr *domain.StepLimitExceededError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, 5, limitErr.Limit)

	require.NotNil(t, res)
	assert.Equal(t, domain.StatusFailed, res.Status)
	assert.Equal(t, 5, res.Trace.Len())
	v, _ := res.State.Get("count")
	assert.Equal(t, 5, v)

	var execErr *domain.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "A", execErr.Node)
	assert.Equal(t, domain.StatusFailed, execErr.Status)
	assert.Same(t, res.State, execErr.State)
}

func TestExecute_UnconditionalSelfLoopNeverCompiles(t *testing.T) {
	_, err := graph.New("loop", counterSchema()).
		AddNode("A", "inc").
		AddEdge("A", "A").
		SetEntry("A").
		Compile(testRegistry(t))
	assert.ErrorIs(t, err, domain.ErrNoTerminalPath)
}

func TestExecute_RoutingErrors(t *testing.T) {
	reg := testRegistry(t)

	t.Run("Unknown Label", func(t *testing.T) {
		g := compile(t, reg, graph.New("g", counterSchema()).
			AddNode("A", "noop").
			AddConditionalEdge("A", "constant", map[string]string{"ok": domain.End},
				graph.WithRouterConfig(registry.Config{"label": "surprise"})).
			SetEntry("A"))

		res, err := runtime.New().Execute(context.Background(), g, nil, runtime.RunOptions{})
		assert.ErrorIs(t, err, domain.ErrUnknownRouteLabel)
		var labelErr *domain.UnknownRouteLabelError
		require.ErrorAs(t, err, &labelErr)
		assert.Equal(t, "surprise", labelErr.Label)
		assert.Equal(t, []string{"ok"}, labelErr.Known)
		assert.Equal(t, domain.StatusFailed, res.Status)

		last, _ := res.Trace.Last()
		assert.Equal(t, domain.OutcomeError, last.Outcome)
		assert.Equal(t, "surprise", last.Route)
	})

	t.Run("Dead End", func(t *testing.T) {
		g := compile(t, reg, graph.New("g", counterSchema()).
			AddNode("A", "noop").
			AddNode("B", "noop").
			AddConditionalEdge("A", "constant", map[string]string{"go": "B", "stop": domain.End},
				graph.WithRouterConfig(registry.Config{"label": "go"})).
			SetEntry("A"))

		res, err := runtime.New().Execute(context.Background(), g, nil, runtime.RunOptions{})
		assert.ErrorIs(t, err, domain.ErrDeadEnd)
		assert.Equal(t, []string{"A", "B"}, res.Trace.Path())
	})
}

func TestExecute_StepFailures(t *testing.T) {
	reg := testRegistry(t)

	build := func(step string) *graph.Compiled {
		return compile(t, reg, graph.New("g", counterSchema()).
			AddNode("first", "inc").
			AddNode("second", step).
			AddEdge("first", "second").
			MarkTerminal("second").
			SetEntry("first"))
	}

	tests := []struct {
		step    string
		message string
	}{
		{"fail", "upstream unavailable"},
		{"panic", "panic: kaboom"},
		{"sneaky", "undeclared write"},
		{"bad_type", "expected string"},
	}

	for _, tt := range tests {
		t.Run(tt.step, func(t *testing.T) {
			res, err := runtime.New().Execute(context.Background(), build(tt.step), nil, runtime.RunOptions{})
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrStepExecution)
			assert.ErrorContains(t, err, tt.message)

			var stepErr *domain.StepExecutionError
			require.ErrorAs(t, err, &stepErr)
			assert.Equal(t, "second", stepErr.Node)
			assert.Equal(t, tt.step, stepErr.Step)

			// State reflects the last successful merge
			assert.Equal(t, domain.StatusFailed, res.Status)
			v, _ := res.State.Get("count")
			assert.Equal(t, 1, v)
			assert.Equal(t, 2, res.Trace.Len())
		})
	}

	t.Run("Undeclared Write Sentinel", func(t *testing.T) {
		_, err := runtime.New().Execute(context.Background(), build("sneaky"), nil, runtime.RunOptions{})
		assert.ErrorIs(t, err, domain.ErrUndeclaredWrite)
	})
}

func TestExecute_InvalidInitialState(t *testing.T) {
	reg := testRegistry(t)
	g := compile(t, reg, graph.New("g", counterSchema()).AddNode("A", "noop").MarkTerminal("A").SetEntry("A"))

	res, err := runtime.New().Execute(context.Background(), g, map[string]any{"count": "three"}, runtime.RunOptions{})
	require.Error(t, err)
	assert.Equal(t, domain.StatusFailed, res.Status)
	assert.Equal(t, 0, res.Trace.Len())
}

func TestExecute_Timeouts(t *testing.T) {
	reg := testRegistry(t)
	g := compile(t, reg, graph.New("g", counterSchema()).
		AddNode("A", "slow").
		AddNode("B", "noop").
		AddEdge("A", "B").
		MarkTerminal("B").
		SetEntry("A"))

	t.Run("Step Timeout", func(t *testing.T) {
		res, err := runtime.New().Execute(context.Background(), g, nil, runtime.RunOptions{StepTimeout: 5 * time.Millisecond})
		assert.ErrorIs(t, err, domain.ErrStepExecution)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, domain.StatusFailed, res.Status)
		assert.Equal(t, 1, res.Trace.Len())
	})

	t.Run("Node Timeout Overrides", func(t *testing.T) {
		gl := compile(t, reg, graph.New("g", counterSchema()).
			AddNode("A", "slow", graph.WithTimeout(time.Second)).
			MarkTerminal("A").
			SetEntry("A"))
		res, err := runtime.New().Execute(context.Background(), gl, nil, runtime.RunOptions{StepTimeout: time.Millisecond})
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCompleted, res.Status)
	})

	t.Run("Run Deadline", func(t *testing.T) {
		res, err := runtime.New().Execute(context.Background(), g, nil, runtime.RunOptions{Timeout: 10 * time.Millisecond})
		assert.ErrorIs(t, err, domain.ErrDeadlineExceeded)
		assert.Equal(t, domain.StatusFailed, res.Status)
		// A finished, B never started
		assert.Equal(t, []string{"A"}, res.Trace.Path())
	})

	t.Run("Deadline Already Passed", func(t *testing.T) {
		res, err := runtime.New().Execute(context.Background(), g, nil, runtime.RunOptions{Deadline: time.Now().Add(-time.Second)})
		assert.ErrorIs(t, err, domain.ErrDeadlineExceeded)
		assert.Equal(t, 0, res.Trace.Len())
	})
}

func TestExecute_Cancellation(t *testing.T) {
	reg := testRegistry(t)

	t.Run("Before Start", func(t *testing.T) {
		g := compile(t, reg, graph.New("g", counterSchema()).AddNode("A", "inc").MarkTerminal("A").SetEntry("A"))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		res, err := runtime.New().Execute(ctx, g, nil, runtime.RunOptions{})
		assert.ErrorIs(t, err, domain.ErrCancelled)
		assert.Equal(t, domain.StatusCancelled, res.Status)
		assert.Equal(t, 0, res.Trace.Len())
	})

	t.Run("Between Steps", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		local := registry.NewRegistry()
		require.NoError(t, local.RegisterStep("stop", "test", func(context.Context, domain.View, registry.Config) (domain.Update, error) {
			cancel()
			return domain.Update{"note": "stopping"}, nil
		}))
		require.NoError(t, local.RegisterStep("noop", "test", func(context.Context, domain.View, registry.Config) (domain.Update, error) {
			return nil, nil
		}))
		g := compile(t, local, graph.New("g", counterSchema()).
			AddNode("A", "stop").
			AddNode("B", "noop").
			AddEdge("A", "B").
			MarkTerminal("B").
			SetEntry("A"))

		res, err := runtime.New().Execute(ctx, g, nil, runtime.RunOptions{})
		assert.ErrorIs(t, err, domain.ErrCancelled)
		assert.Equal(t, domain.StatusCancelled, res.Status)
		assert.Equal(t, []string{"A"}, res.Trace.Path())

		// The in-flight step finished and merged
		v, _ := res.State.Get("note")
		assert.Equal(t, "stopping", v)
	})
}

func TestExecute_Observers(t *testing.T) {
	reg := testRegistry(t)
	g := compile(t, reg, graph.New("g", counterSchema()).
		AddNode("A", "measure").
		AddNode("B", "inc").
		AddEdge("A", "B").
		MarkTerminal("B").
		SetEntry("A"))

	var mu sync.Mutex
	var events []string
	recorder := trace.Hooks{
		OnStepStarted: func(_ context.Context, r domain.StepRecord) error {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, "start:"+r.Node)
			return nil
		},
		OnStepFinished: func(_ context.Context, r domain.StepRecord) error {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, fmt.Sprintf("finish:%s:%s", r.Node, r.Outcome))
			return errors.New("ignored")
		},
	}
	panicky := trace.Hooks{
		OnStepStarted: func(context.Context, domain.StepRecord) error { panic("observer bug") },
	}

	exec := runtime.New(runtime.WithObservers(panicky))
	res, err := exec.Execute(context.Background(), g, nil, runtime.RunOptions{Observers: []trace.Observer{recorder}})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, res.Status)
	assert.Equal(t, []string{"start:A", "finish:A:success", "start:B", "finish:B:success"}, events)

	first := res.Trace.Records()[0]
	assert.Equal(t, map[string]any{"hits": 7}, first.Metrics)
}

func TestExecute_ObserversCannotMutateTrace(t *testing.T) {
	reg := testRegistry(t)
	g := compile(t, reg, graph.New("g", counterSchema()).
		AddNode("A", "measure").
		AddNode("B", "inc").
		AddEdge("A", "B").
		MarkTerminal("B").
		SetEntry("A"))

	vandal := trace.Hooks{
		OnStepStarted: func(_ context.Context, r domain.StepRecord) error {
			r.Input["count"] = 99
			return nil
		},
		OnStepFinished: func(_ context.Context, r domain.StepRecord) error {
			r.Input["count"] = 99
			if r.Metrics != nil {
				r.Metrics["hits"] = 0
			}
			if r.Changes != nil {
				r.Changes["count"] = 99
			}
			return nil
		},
	}
	var seen []any
	witness := trace.Hooks{
		OnStepFinished: func(_ context.Context, r domain.StepRecord) error {
			seen = append(seen, r.Input["count"])
			return nil
		},
	}

	res, err := runtime.New().Execute(context.Background(), g, nil,
		runtime.RunOptions{Observers: []trace.Observer{vandal, witness}})
	require.NoError(t, err)
	assert.Equal(t, []any{0, 0}, seen)

	records := res.Trace.Records()
	require.Len(t, records, 2)
	assert.Equal(t, map[string]any{"count": 0}, records[0].Input)
	assert.Equal(t, map[string]any{"hits": 7}, records[0].Metrics)
	assert.Equal(t, map[string]any{"count": 0}, records[1].Input)
	assert.Equal(t, map[string]any{"count": 1}, records[1].Changes)
}

func TestExecute_ConcurrentRuns(t *testing.T) {
	reg := testRegistry(t)
	g := compile(t, reg, graph.New("counter", counterSchema()).
		AddNode("A", "inc").
		AddConditionalEdge("A", "under3", map[string]string{"again": "A", "done": domain.End}).
		SetEntry("A"))
	exec := runtime.New()

	var wg sync.WaitGroup
	results := make([]*runtime.Result, 20)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := exec.Execute(context.Background(), g, nil, runtime.RunOptions{})
			if err == nil {
				results[i] = res
			}
		}()
	}
	wg.Wait()

	for _, res := range results {
		require.NotNil(t, res)
		v, _ := res.State.Get("count")
		assert.Equal(t, 3, v)
		assert.Equal(t, 3, res.Trace.Len())
	}
}

func TestResult_Record(t *testing.T) {
	reg := testRegistry(t)
	g := compile(t, reg, graph.New("g", counterSchema()).
		AddNode("A", "fail").
		MarkTerminal("A").
		SetEntry("A"))

	res, err := runtime.New().Execute(context.Background(), g, map[string]any{"note": "hi"}, runtime.RunOptions{RunID: "run-1"})
	require.Error(t, err)

	rec := res.Record()
	assert.Equal(t, "run-1", rec.ID)
	assert.Equal(t, "g", rec.Graph)
	assert.Equal(t, domain.StatusFailed, rec.Status)
	assert.Equal(t, "hi", rec.State["note"])
	assert.Len(t, rec.Trace, 1)
	assert.Contains(t, rec.Error, "upstream unavailable")
	assert.False(t, rec.FinishedAt.Before(rec.StartedAt))
}

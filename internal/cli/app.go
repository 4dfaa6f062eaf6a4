package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/stepflow"
	"github.com/aretw0/stepflow/internal/config"
	"github.com/aretw0/stepflow/internal/logging"
	"github.com/aretw0/stepflow/pkg/adapters/process"
	"github.com/aretw0/stepflow/pkg/graph"
	"github.com/aretw0/stepflow/pkg/observability"
	"github.com/aretw0/stepflow/pkg/runner"
	"github.com/aretw0/stepflow/pkg/session"
	"github.com/aretw0/stepflow/pkg/steps"
	"github.com/aretw0/stepflow/pkg/trace"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gopkg.in/yaml.v3"
)

// App is everything a command needs, built once from the configuration.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Engine   *stepflow.Engine
	Storage  *Storage
	Sessions *session.Manager
	Runner   *runner.Runner
	Metrics  *prometheus.Registry
	Stats    *observability.Aggregator
}

// NewLogger builds the application logger from the log settings.
func NewLogger(cfg config.LogConfig) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(cfg.Format)
	if err != nil {
		return nil, err
	}
	return logging.New(level, format), nil
}

// NewApp wires logger, storage, engine and runner.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	app := &App{
		Config: cfg,
		Logger: logger,
		Stats:  observability.NewAggregator(observability.WithLimit(10_000)),
	}

	app.Metrics = prometheus.NewRegistry()
	app.Metrics.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom, err := observability.NewPrometheusObserver(app.Metrics)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	deps, err := stepDeps(cfg.Steps)
	if err != nil {
		return nil, err
	}

	observers := []trace.Observer{prom, app.Stats}
	// Per-step lines are only useful when debugging.
	if logger.Enabled(context.Background(), slog.LevelDebug) {
		observers = append(observers, observability.NewLogObserver(logger))
	}

	app.Engine, err = stepflow.New(
		stepflow.WithLogger(logger),
		stepflow.WithBuiltinSteps(deps),
		stepflow.WithObservers(observers...),
	)
	if err != nil {
		return nil, err
	}

	app.Storage, err = OpenStorage(cfg.Store, logger)
	if err != nil {
		return nil, err
	}
	sessionOpts := []session.Option{session.WithLogger(logger)}
	if app.Storage.Locker != nil {
		sessionOpts = append(sessionOpts, session.WithLocker(app.Storage.Locker))
	}
	app.Sessions = session.NewManager(app.Storage.Store, sessionOpts...)

	app.Runner = runner.New(app.Engine,
		runner.WithSessions(app.Sessions),
		runner.WithLogger(logger),
		runner.WithMaxAttempts(cfg.Run.Retries+1),
	)
	return app, nil
}

// Close releases the storage backend.
func (a *App) Close() error {
	if a.Storage == nil {
		return nil
	}
	return a.Storage.Close()
}

// RunOptions returns the configured run limits.
func (a *App) RunOptions() stepflow.RunOptions {
	return stepflow.RunOptions{
		MaxSteps:    a.Config.Run.MaxSteps,
		Timeout:     a.Config.Run.Timeout,
		StepTimeout: a.Config.Run.StepTimeout,
	}
}

// LoadWorkflows loads files and directories of workflow documents into the engine.
func (a *App) LoadWorkflows(paths ...string) ([]*graph.Compiled, error) {
	var out []*graph.Compiled
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("workflow %s: %w", p, err)
		}
		if info.IsDir() {
			gs, err := a.Engine.LoadDir(p)
			if err != nil {
				return nil, err
			}
			out = append(out, gs...)
			continue
		}
		g, err := a.Engine.Load(p)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	if len(out) == 0 {
		return nil, errors.New("no workflows found")
	}
	return out, nil
}

// Run executes g through the runner with sanitized initial values.
func (a *App) Run(ctx context.Context, g *graph.Compiled, initial map[string]any, opts stepflow.RunOptions) (*runner.Report, error) {
	clean, err := runner.SanitizeValues(initial)
	if err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	return a.Runner.Run(ctx, g, g.Schema().Coerce(clean), opts)
}

func stepDeps(cfg config.StepsConfig) (steps.Deps, error) {
	var deps steps.Deps

	searcher := &steps.MockSearcher{}
	if cfg.SearchFixtures != "" {
		data, err := os.ReadFile(cfg.SearchFixtures)
		if err != nil {
			return deps, fmt.Errorf("steps.search_fixtures: %w", err)
		}
		if err := yaml.Unmarshal(data, &searcher.Results); err != nil {
			return deps, fmt.Errorf("steps.search_fixtures: %w", err)
		}
	}
	deps.Searcher = searcher

	summarizer, err := steps.NewTemplateSummarizer(cfg.SummaryTemplate)
	if err != nil {
		return deps, fmt.Errorf("steps.summary_template: %w", err)
	}
	deps.Summarizer = summarizer

	if cfg.Commands != "" {
		commands, err := process.LoadCommands(cfg.Commands)
		if err != nil {
			return deps, fmt.Errorf("steps.commands: %w", err)
		}
		deps.Commands = process.NewRunner(process.WithCommands(commands), process.WithBaseDir(cfg.WorkDir))
	}

	if cfg.OutputDir != "" {
		files, err := steps.NewFileSystem(cfg.OutputDir)
		if err != nil {
			return deps, fmt.Errorf("steps.output_dir: %w", err)
		}
		deps.Files = files
	}
	return deps, nil
}

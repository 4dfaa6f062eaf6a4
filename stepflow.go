package stepflow

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/aretw0/stepflow/internal/logging"
	"github.com/aretw0/stepflow/internal/runtime"
	"github.com/aretw0/stepflow/pkg/domain"
	"github.com/aretw0/stepflow/pkg/graph"
	"github.com/aretw0/stepflow/pkg/registry"
	"github.com/aretw0/stepflow/pkg/steps"
	"github.com/aretw0/stepflow/pkg/trace"
	"github.com/aretw0/stepflow/pkg/workflow"
)

// Version is the library version reported by the CLI and the HTTP service.
const Version = "0.4.0"

// End is the terminal marker used as an edge target.
const End = domain.End

type (
	// RunOptions bounds and instruments a single run.
	RunOptions = runtime.RunOptions
	// Result is the outcome of a run, returned on failure too.
	Result = runtime.Result
)

// Engine is the high-level entry point: a step registry, a catalog of compiled
// graphs and an executor sharing one logger and one set of observers.
type Engine struct {
	registry  *registry.Registry
	executor  *runtime.Executor
	logger    *slog.Logger
	observers []trace.Observer
	builtins  *steps.Deps

	mu     sync.RWMutex
	graphs map[string]*graph.Compiled
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithRegistry uses reg instead of a fresh registry.
func WithRegistry(reg *registry.Registry) Option {
	return func(e *Engine) {
		e.registry = reg
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithObservers registers observers notified on every run.
func WithObservers(obs ...trace.Observer) Option {
	return func(e *Engine) {
		e.observers = append(e.observers, obs...)
	}
}

// WithBuiltinSteps registers the steps of pkg/steps, backed by deps.
func WithBuiltinSteps(deps steps.Deps) Option {
	return func(e *Engine) {
		e.builtins = &deps
	}
}

// New initializes an Engine.
func New(opts ...Option) (*Engine, error) {
	eng := &Engine{graphs: make(map[string]*graph.Compiled)}
	for _, opt := range opts {
		opt(eng)
	}

	if eng.logger == nil {
		eng.logger = logging.NewNop()
	}
	if eng.registry == nil {
		eng.registry = registry.NewRegistry()
	}
	if eng.builtins != nil {
		if err := steps.Register(eng.registry, *eng.builtins); err != nil {
			return nil, fmt.Errorf("register builtin steps: %w", err)
		}
	}

	eng.executor = runtime.New(
		runtime.WithLogger(eng.logger),
		runtime.WithObservers(eng.observers...),
	)
	return eng, nil
}

// Registry returns the step registry used to resolve nodes.
func (e *Engine) Registry() *registry.Registry { return e.registry }

// Logger returns the engine logger.
func (e *Engine) Logger() *slog.Logger { return e.logger }

// Compile validates def against the engine registry.
func (e *Engine) Compile(def *graph.Definition) (*graph.Compiled, error) {
	return def.Compile(e.registry, graph.WithLogger(e.logger))
}

// Add compiles def and adds it to the catalog.
func (e *Engine) Add(def *graph.Definition) (*graph.Compiled, error) {
	g, err := e.Compile(def)
	if err != nil {
		return nil, err
	}
	if err := e.Register(g); err != nil {
		return nil, err
	}
	return g, nil
}

// Load reads a workflow document, compiles it and adds it to the catalog.
func (e *Engine) Load(path string) (*graph.Compiled, error) {
	doc, err := workflow.Load(path)
	if err != nil {
		return nil, err
	}
	g, err := doc.Compile(e.registry, graph.WithLogger(e.logger))
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", path, err)
	}
	if err := e.Register(g); err != nil {
		return nil, err
	}
	return g, nil
}

// LoadDir loads every workflow document in dir. Nothing is added when one fails.
func (e *Engine) LoadDir(dir string) ([]*graph.Compiled, error) {
	docs, err := workflow.LoadDir(dir)
	if err != nil {
		return nil, err
	}
	compiled := make([]*graph.Compiled, 0, len(docs))
	for _, doc := range docs {
		g, err := doc.Compile(e.registry, graph.WithLogger(e.logger))
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", doc.Name, err)
		}
		compiled = append(compiled, g)
	}
	if err := e.registerAll(compiled); err != nil {
		return nil, err
	}
	return compiled, nil
}

// Register adds a compiled graph to the catalog under its name.
func (e *Engine) Register(g *graph.Compiled) error {
	return e.registerAll([]*graph.Compiled{g})
}

// registerAll adds every graph or none of them.
func (e *Engine) registerAll(graphs []*graph.Compiled) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	seen := make(map[string]bool, len(graphs))
	for _, g := range graphs {
		if _, dup := e.graphs[g.Name()]; dup || seen[g.Name()] {
			return &domain.DuplicateNameError{Kind: "graph", Name: g.Name()}
		}
		seen[g.Name()] = true
	}
	for _, g := range graphs {
		e.graphs[g.Name()] = g
		e.logger.Debug("graph registered", "graph", g.Name(), "nodes", len(g.Nodes()))
	}
	return nil
}

// Graph returns a cataloged graph by name.
func (e *Engine) Graph(name string) (*graph.Compiled, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	g, ok := e.graphs[name]
	if !ok {
		return nil, &domain.NotFoundError{Kind: "graph", Name: name, Available: e.graphNamesLocked()}
	}
	return g, nil
}

// Graphs returns the cataloged graph names in sorted order.
func (e *Engine) Graphs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.graphNamesLocked()
}

func (e *Engine) graphNamesLocked() []string {
	names := make([]string, 0, len(e.graphs))
	for name := range e.graphs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Execute runs g from its entry node. On failure both the partial Result and a
// *domain.ExecutionError are returned.
func (e *Engine) Execute(ctx context.Context, g *graph.Compiled, initial map[string]any, opts RunOptions) (*Result, error) {
	return e.executor.Execute(ctx, g, initial, opts)
}

// Run executes a cataloged graph by name.
func (e *Engine) Run(ctx context.Context, name string, initial map[string]any, opts RunOptions) (*Result, error) {
	g, err := e.Graph(name)
	if err != nil {
		return nil, err
	}
	return e.Execute(ctx, g, initial, opts)
}

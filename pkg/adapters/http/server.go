package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/stepflow"
	"github.com/aretw0/stepflow/internal/logging"
	presentation "github.com/aretw0/stepflow/internal/presentation/graph"
	"github.com/aretw0/stepflow/pkg/domain"
	"github.com/aretw0/stepflow/pkg/graph"
	"github.com/aretw0/stepflow/pkg/registry"
	"github.com/aretw0/stepflow/pkg/runner"
	"github.com/aretw0/stepflow/pkg/session"
	"github.com/aretw0/stepflow/pkg/trace"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Catalog resolves graphs and steps. *stepflow.Engine implements it.
type Catalog interface {
	Graph(name string) (*graph.Compiled, error)
	Graphs() []string
	Registry() *registry.Registry
}

// Server serves the HTTP API.
type Server struct {
	catalog  Catalog
	runner   *runner.Runner
	sessions *session.Manager
	gatherer prometheus.Gatherer
	defaults stepflow.RunOptions
	streams  *StreamManager
	logger   *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithSessions enables the run history routes. The runner should persist
// through the same manager.
func WithSessions(m *session.Manager) Option {
	return func(s *Server) { s.sessions = m }
}

// WithGatherer serves g on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithRunDefaults sets the limits applied when a request leaves them out.
func WithRunDefaults(opts stepflow.RunOptions) Option {
	return func(s *Server) { s.defaults = opts }
}

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates a Server.
func NewServer(catalog Catalog, r *runner.Runner, opts ...Option) *Server {
	s := &Server{
		catalog: catalog,
		runner:  r,
		streams: NewStreamManager(),
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.streams.logger = s.logger
	return s
}

// NewHandler creates the HTTP handler for catalog and r.
func NewHandler(catalog Catalog, r *runner.Runner, opts ...Option) http.Handler {
	return NewServer(catalog, r, opts...).Routes()
}

// Streams returns the manager of live run event subscriptions.
func (s *Server) Streams() *StreamManager { return s.streams }

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/steps", s.ListSteps)
	r.Route("/graphs", func(r chi.Router) {
		r.Get("/", s.ListGraphs)
		r.Get("/{name}", s.GetGraph)
		r.Post("/{name}/runs", s.StartRun)
	})
	r.Route("/runs", func(r chi.Router) {
		r.Get("/", s.ListRuns)
		r.Get("/{id}", s.GetRun)
		r.Get("/{id}/events", s.SubscribeEvents)
	})
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"app":     "stepflow-http",
		"version": stepflow.Version,
		"graphs":  len(s.catalog.Graphs()),
	})
}

// ListSteps handles GET /steps.
func (s *Server) ListSteps(w http.ResponseWriter, r *http.Request) {
	out := []StepView{}
	for e := range s.catalog.Registry().List(r.URL.Query().Get("category")) {
		out = append(out, NewStepView(e))
	}
	s.writeJSON(w, http.StatusOK, out)
}

// ListGraphs handles GET /graphs.
func (s *Server) ListGraphs(w http.ResponseWriter, r *http.Request) {
	out := []GraphSummary{}
	for _, name := range s.catalog.Graphs() {
		g, err := s.catalog.Graph(name)
		if err != nil {
			continue
		}
		out = append(out, GraphSummary{Name: g.Name(), Entry: g.Entry(), Nodes: len(g.Nodes())})
	}
	s.writeJSON(w, http.StatusOK, out)
}

// GetGraph handles GET /graphs/{name}.
func (s *Server) GetGraph(w http.ResponseWriter, r *http.Request) {
	g, err := s.catalog.Graph(chi.URLParam(r, "name"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	view := NewGraphView(g)
	view.Mermaid = presentation.GenerateMermaid(g, nil)
	s.writeJSON(w, http.StatusOK, view)
}

// StartRun handles POST /graphs/{name}/runs. The run executes synchronously;
// the response carries the record with 200 when it completed and 422 otherwise.
func (s *Server) StartRun(w http.ResponseWriter, r *http.Request) {
	g, err := s.catalog.Graph(chi.URLParam(r, "name"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	var body RunRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			s.logger.Warn("StartRun: invalid request body", "err", err)
			s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
			return
		}
	}

	initial, err := runner.SanitizeValues(body.State)
	if err != nil {
		s.logger.Warn("StartRun: input rejected", "err", err)
		s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("invalid input: %v", err)})
		return
	}

	opts, err := s.runOptions(body)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	if body.RunID != "" && s.sessions != nil {
		_, err := s.sessions.Load(r.Context(), body.RunID)
		switch {
		case err == nil:
			s.writeJSON(w, http.StatusConflict, ErrorResponse{Error: fmt.Sprintf("run %q already exists", body.RunID)})
			return
		case !errors.Is(err, domain.ErrRunNotFound):
			s.writeError(w, err)
			return
		}
	}
	opts.Observers = append(opts.Observers, s.streams.Observer(opts.RunID))
	defer s.streams.Close(opts.RunID)

	report, runErr := s.runner.Run(r.Context(), g, g.Schema().Coerce(initial), opts)
	if report == nil || report.Record == nil {
		if runErr == nil {
			runErr = errors.New("run produced no record")
		}
		s.writeError(w, runErr)
		return
	}

	status := http.StatusOK
	if runErr != nil {
		status = http.StatusUnprocessableEntity
	}
	s.writeJSON(w, status, report.Record)
}

func (s *Server) runOptions(body RunRequest) (stepflow.RunOptions, error) {
	opts := s.defaults
	opts.RunID = body.RunID
	opts.Observers = append([]trace.Observer(nil), s.defaults.Observers...)
	// Request limits may tighten the server defaults but never lift them.
	if body.MaxSteps != nil {
		n := *body.MaxSteps
		if n <= 0 {
			return opts, fmt.Errorf("max_steps must be positive, got %d", n)
		}
		if s.defaults.MaxSteps > 0 && n > s.defaults.MaxSteps {
			return opts, fmt.Errorf("max_steps %d exceeds the server limit of %d", n, s.defaults.MaxSteps)
		}
		opts.MaxSteps = n
	}
	if body.Timeout != "" {
		d, err := time.ParseDuration(body.Timeout)
		if err != nil {
			return opts, fmt.Errorf("invalid timeout %q: %w", body.Timeout, err)
		}
		if d <= 0 {
			return opts, fmt.Errorf("timeout must be positive, got %s", d)
		}
		if s.defaults.Timeout > 0 && d > s.defaults.Timeout {
			return opts, fmt.Errorf("timeout %s exceeds the server limit of %s", d, s.defaults.Timeout)
		}
		opts.Timeout = d
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	return opts, nil
}

// ListRuns handles GET /runs.
func (s *Server) ListRuns(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		s.writeJSON(w, http.StatusNotImplemented, ErrorResponse{Error: "run history is not enabled"})
		return
	}
	records, err := s.sessions.Records(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	graphName := r.URL.Query().Get("graph")
	out := []RunSummary{}
	for _, rec := range records {
		if graphName != "" && rec.Graph != graphName {
			continue
		}
		out = append(out, newRunSummary(rec))
	}
	s.writeJSON(w, http.StatusOK, out)
}

// GetRun handles GET /runs/{id}.
func (s *Server) GetRun(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		s.writeJSON(w, http.StatusNotImplemented, ErrorResponse{Error: "run history is not enabled"})
		return
	}
	rec, err := s.sessions.Load(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrRunNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrCancelled):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "err", err)
	}
	s.writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

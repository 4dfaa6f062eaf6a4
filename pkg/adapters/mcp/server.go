// Package mcp exposes compiled graphs as Model Context Protocol tools, so an
// agent can list workflows, inspect them and start runs.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/stepflow"
	"github.com/aretw0/stepflow/internal/logging"
	presentation "github.com/aretw0/stepflow/internal/presentation/graph"
	httpadapter "github.com/aretw0/stepflow/pkg/adapters/http"
	"github.com/aretw0/stepflow/pkg/runner"
	"github.com/aretw0/stepflow/pkg/session"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// GraphsURI is the resource listing the served graphs.
const GraphsURI = "stepflow://graphs"

// Server wraps the engine catalog and runner as an MCP server.
type Server struct {
	catalog   httpadapter.Catalog
	runner    *runner.Runner
	sessions  *session.Manager
	defaults  stepflow.RunOptions
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// Option configures a Server.
type Option func(*Server)

// WithSessions enables the get_run tool.
func WithSessions(m *session.Manager) Option {
	return func(s *Server) { s.sessions = m }
}

// WithRunDefaults sets the limits applied to every run.
func WithRunDefaults(opts stepflow.RunOptions) Option {
	return func(s *Server) { s.defaults = opts }
}

// WithLogger sets the logger. Under stdio it must not write to stdout.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(catalog httpadapter.Catalog, r *runner.Runner, opts ...Option) *Server {
	s := &Server{
		catalog: catalog,
		runner:  r,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.mcpServer = server.NewMCPServer("stepflow-mcp", stepflow.Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithRecovery(),
	)
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying protocol server.
func (s *Server) MCPServer() *server.MCPServer { return s.mcpServer }

// ServeStdio serves on stdin/stdout until the input closes.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves over Server-Sent Events until ctx is cancelled.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer.SSEHandler())
	mux.Handle("/message", sseServer.MessageHandler())
	httpServer := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP server listening (SSE)", "addr", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("list_graphs",
		mcp.WithDescription("List the workflow graphs that can be run."),
	), s.handleListGraphs)

	s.mcpServer.AddTool(mcp.NewTool("describe_graph",
		mcp.WithDescription("Describe a graph: state fields, nodes, edges and a Mermaid diagram."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Graph name")),
	), s.handleDescribeGraph)

	s.mcpServer.AddTool(mcp.NewTool("list_steps",
		mcp.WithDescription("List the registered steps and routers."),
		mcp.WithString("category", mcp.Description("Only list entries of this category")),
	), s.handleListSteps)

	s.mcpServer.AddTool(mcp.NewTool("run_graph",
		mcp.WithDescription("Run a graph to completion and return the run record (final state and trace)."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Graph name")),
		mcp.WithObject("state", mcp.Description("Initial field values")),
		mcp.WithNumber("max_steps", mcp.Description("Maximum step invocations")),
	), s.handleRunGraph)

	if s.sessions != nil {
		s.mcpServer.AddTool(mcp.NewTool("get_run",
			mcp.WithDescription("Fetch a stored run record."),
			mcp.WithString("run_id", mcp.Required(), mcp.Description("Run identifier")),
		), s.handleGetRun)
	}
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(GraphsURI, "Served graphs",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		data, err := json.Marshal(s.summaries())
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: GraphsURI, MIMEType: "application/json", Text: string(data)},
		}, nil
	})
}

func (s *Server) summaries() []httpadapter.GraphSummary {
	out := []httpadapter.GraphSummary{}
	for _, name := range s.catalog.Graphs() {
		g, err := s.catalog.Graph(name)
		if err != nil {
			continue
		}
		out = append(out, httpadapter.GraphSummary{Name: g.Name(), Entry: g.Entry(), Nodes: len(g.Nodes())})
	}
	return out
}

func (s *Server) handleListGraphs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.summaries())
}

func (s *Server) handleDescribeGraph(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	g, err := s.catalog.Graph(request.GetString("name", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	view := httpadapter.NewGraphView(g)
	view.Mermaid = presentation.GenerateMermaid(g, nil)
	return jsonResult(view)
}

func (s *Server) handleListSteps(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	out := []httpadapter.StepView{}
	for e := range s.catalog.Registry().List(request.GetString("category", "")) {
		out = append(out, httpadapter.NewStepView(e))
	}
	return jsonResult(out)
}

func (s *Server) handleRunGraph(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	g, err := s.catalog.Graph(request.GetString("name", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var initial map[string]any
	switch v := request.GetArguments()["state"].(type) {
	case nil:
	case map[string]any:
		initial = v
	case string:
		// Some clients send objects as JSON text.
		if err := json.Unmarshal([]byte(v), &initial); err != nil {
			return mcp.NewToolResultError("state must be a JSON object"), nil
		}
	default:
		return mcp.NewToolResultError(fmt.Sprintf("state must be an object, got %T", v)), nil
	}
	initial, err = runner.SanitizeValues(initial)
	if err != nil {
		s.logger.Warn("run_graph: input rejected", "err", err)
		return mcp.NewToolResultError(fmt.Sprintf("invalid input: %v", err)), nil
	}

	opts := s.defaults
	if n, ok := request.GetArguments()["max_steps"]; ok {
		steps := request.GetInt("max_steps", 0)
		switch {
		case steps <= 0:
			return mcp.NewToolResultError(fmt.Sprintf("max_steps must be positive, got %v", n)), nil
		case s.defaults.MaxSteps > 0 && steps > s.defaults.MaxSteps:
			return mcp.NewToolResultError(fmt.Sprintf("max_steps %d exceeds the server limit of %d", steps, s.defaults.MaxSteps)), nil
		}
		opts.MaxSteps = steps
	}

	report, runErr := s.runner.Run(ctx, g, g.Schema().Coerce(initial), opts)
	if report == nil || report.Record == nil {
		if runErr == nil {
			runErr = errors.New("run produced no record")
		}
		return mcp.NewToolResultError(runErr.Error()), nil
	}
	res, err := jsonResult(report.Record)
	if err != nil {
		return nil, err
	}
	res.IsError = runErr != nil
	return res, nil
}

func (s *Server) handleGetRun(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rec, err := s.sessions.Load(ctx, request.GetString("run_id", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(rec)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

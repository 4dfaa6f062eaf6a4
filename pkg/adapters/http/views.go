package http

import (
	"time"

	"github.com/aretw0/stepflow/pkg/domain"
	"github.com/aretw0/stepflow/pkg/graph"
	"github.com/aretw0/stepflow/pkg/registry"
)

// RunRequest is the body of POST /graphs/{name}/runs.
type RunRequest struct {
	RunID    string         `json:"run_id,omitempty"`
	State    map[string]any `json:"state,omitempty"`
	MaxSteps *int           `json:"max_steps,omitempty"`
	Timeout  string         `json:"timeout,omitempty"` // Go duration, e.g. "30s".
}

// ErrorResponse is the body of every non-2xx response without a run record.
type ErrorResponse struct {
	Error string `json:"error"`
}

type StepView struct {
	Name        string   `json:"name"`
	Kind        string   `json:"kind"`
	Category    string   `json:"category,omitempty"`
	Description string   `json:"description,omitempty"`
	Writes      []string `json:"writes,omitempty"`
	Labels      []string `json:"labels,omitempty"`
}

// NewStepView describes a registry entry.
func NewStepView(e registry.Entry) StepView {
	return StepView{
		Name:        e.Name,
		Kind:        string(e.Kind),
		Category:    e.Category,
		Description: e.Description,
		Writes:      e.Writes,
		Labels:      e.Labels,
	}
}

type GraphSummary struct {
	Name  string `json:"name"`
	Entry string `json:"entry"`
	Nodes int    `json:"nodes"`
}

type FieldView struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Merge   string `json:"merge"`
	Default any    `json:"default,omitempty"`
}

type NodeView struct {
	Name        string            `json:"name"`
	Step        string            `json:"step"`
	Description string            `json:"description,omitempty"`
	Writes      []string          `json:"writes,omitempty"`
	Timeout     string            `json:"timeout,omitempty"`
	Next        string            `json:"next,omitempty"`
	Router      string            `json:"router,omitempty"`
	Routes      map[string]string `json:"routes,omitempty"`
}

// GraphView is the body of GET /graphs/{name}.
type GraphView struct {
	Name     string      `json:"name"`
	Entry    string      `json:"entry"`
	Fields   []FieldView `json:"fields"`
	Nodes    []NodeView  `json:"nodes"`
	Warnings []string    `json:"warnings,omitempty"`
	Mermaid  string      `json:"mermaid"`
}

// NewGraphView describes a compiled graph without its diagram.
func NewGraphView(g *graph.Compiled) GraphView {
	v := GraphView{
		Name:     g.Name(),
		Entry:    g.Entry(),
		Warnings: g.Warnings(),
	}
	for _, f := range g.Schema().Fields() {
		v.Fields = append(v.Fields, FieldView{
			Name:    f.Name,
			Type:    f.Type.Name(),
			Merge:   f.Policy.Name(),
			Default: f.Default,
		})
	}
	for _, name := range g.Nodes() {
		n, _ := g.Node(name)
		nv := NodeView{
			Name:        n.Name,
			Step:        n.Step,
			Description: n.Description,
			Writes:      n.Writes,
			Next:        n.Next,
		}
		if n.Timeout > 0 {
			nv.Timeout = n.Timeout.String()
		}
		if n.Branch != nil {
			nv.Router = n.Branch.Router
			nv.Routes = n.Branch.Routes
		}
		v.Nodes = append(v.Nodes, nv)
	}
	return v
}

// RunSummary is one entry of GET /runs.
type RunSummary struct {
	ID         string                 `json:"id"`
	Graph      string                 `json:"graph"`
	Status     domain.ExecutionStatus `json:"status"`
	Steps      int                    `json:"steps"`
	Attempts   int                    `json:"attempts,omitempty"`
	Error      string                 `json:"error,omitempty"`
	StartedAt  time.Time              `json:"started_at"`
	FinishedAt time.Time              `json:"finished_at,omitempty"`
}

func newRunSummary(rec *domain.RunRecord) RunSummary {
	return RunSummary{
		ID:         rec.ID,
		Graph:      rec.Graph,
		Status:     rec.Status,
		Steps:      len(rec.Trace),
		Attempts:   rec.Attempts,
		Error:      rec.Error,
		StartedAt:  rec.StartedAt,
		FinishedAt: rec.FinishedAt,
	}
}

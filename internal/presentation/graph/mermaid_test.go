package graph_test

import (
	"context"
	"strings"
	"testing"

	presentation "github.com/aretw0/stepflow/internal/presentation/graph"
	"github.com/aretw0/stepflow/pkg/domain"
	"github.com/aretw0/stepflow/pkg/graph"
	"github.com/aretw0/stepflow/pkg/registry"
	"github.com/aretw0/stepflow/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compileSample(t *testing.T) *graph.Compiled {
	t.Helper()
	reg := registry.NewRegistry()
	noop := func(context.Context, domain.View, registry.Config) (domain.Update, error) { return nil, nil }
	require.NoError(t, reg.RegisterStep("noop", "test", noop))
	require.NoError(t, reg.RegisterRouter("pick", "test", func(context.Context, domain.View, registry.Config) (string, error) {
		return "done", nil
	}, registry.Labels("again", "done")))

	fields := domain.MustSchema(domain.Field{Name: "n", Type: schema.Int()})
	g, err := graph.New("sample", fields).
		AddNode("fetch-data", "noop").
		AddNode("check", "noop").
		AddEdge("fetch-data", "check").
		AddConditionalEdge("check", "pick", map[string]string{
			"again": "fetch-data",
			"done":  domain.End,
		}).
		SetEntry("fetch-data").
		Compile(reg)
	require.NoError(t, err)
	return g
}

func TestGenerateMermaid(t *testing.T) {
	g := compileSample(t)

	tests := []struct {
		name     string
		overlay  *presentation.Overlay
		contains []string
		excludes []string
	}{
		{
			name: "Shapes and Edges",
			contains: []string{
				"graph TD",
				`fetch_data(("fetch-data <br/> <i>noop</i>"))`,
				`check{{"check <br/> <i>noop</i>"}}`,
				"fetch_data --> check",
				`check -- "again" --> fetch_data`,
				`check -- "done" --> END`,
				`END(["end"])`,
			},
			excludes: []string{"classDef"},
		},
		{
			name: "Overlay",
			overlay: &presentation.Overlay{
				VisitedNodes: []string{"fetch-data", "check", "fetch-data", "ghost"},
				CurrentNode:  "check",
			},
			contains: []string{
				"class fetch_data visited;",
				"class check visited;",
				"class check current;",
			},
			excludes: []string{"ghost"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := presentation.GenerateMermaid(g, tt.overlay)
			for _, s := range tt.contains {
				assert.Contains(t, out, s)
			}
			for _, s := range tt.excludes {
				assert.NotContains(t, out, s)
			}
			if tt.overlay != nil {
				assert.Equal(t, 1, strings.Count(out, "class fetch_data visited;"))
			}
		})
	}
}

func TestOverlayFromRecord(t *testing.T) {
	rec := &domain.RunRecord{
		Status: domain.StatusFailed,
		Trace: []domain.StepRecord{
			{Seq: 1, Node: "fetch-data"},
			{Seq: 2, Node: "check", Outcome: domain.OutcomeError},
		},
	}
	o := presentation.OverlayFromRecord(rec)
	assert.Equal(t, []string{"fetch-data", "check"}, o.VisitedNodes)
	assert.Equal(t, "check", o.CurrentNode)

	rec.Status = domain.StatusCompleted
	assert.Empty(t, presentation.OverlayFromRecord(rec).CurrentNode)
}

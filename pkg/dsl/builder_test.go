package dsl_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/stepflow"
	"github.com/aretw0/stepflow/pkg/domain"
	"github.com/aretw0/stepflow/pkg/dsl"
	"github.com/aretw0/stepflow/pkg/registry"
	"github.com/aretw0/stepflow/pkg/schema"
	"github.com/aretw0/stepflow/pkg/steps"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T) *stepflow.Engine {
	t.Helper()
	eng, err := stepflow.New(stepflow.WithBuiltinSteps(steps.Deps{}))
	require.NoError(t, err)
	return eng
}

func TestBuilder_Counter(t *testing.T) {
	b := dsl.New("counter")
	b.Field("count", schema.Int()).Merge(domain.Sum()).Default(0)

	b.Add("tick").
		Do("increment", registry.Config{"field": "count"}).
		Describe("adds one").
		Timeout(time.Second).
		Route("threshold", registry.Config{"field": "count", "threshold": 3, "above": "done", "below": "again"}).
		When("again", "tick").
		When("done", dsl.End)

	def, err := b.Build()
	require.NoError(t, err)

	nodes := def.Nodes()
	require.Len(t, nodes, 1)
	assert.Equal(t, "increment", nodes[0].Step)
	assert.Equal(t, "adds one", nodes[0].Description)
	assert.Equal(t, time.Second, nodes[0].Timeout)

	eng := newEngine(t)
	g, err := eng.Add(def)
	require.NoError(t, err)
	assert.Equal(t, "tick", g.Entry())

	res, err := eng.Execute(context.Background(), g, nil, stepflow.RunOptions{MaxSteps: 10})
	require.NoError(t, err)
	count, err := res.State.Get("count")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestBuilder_LinearFlow(t *testing.T) {
	b := dsl.New("greeting")
	b.Field("greeting", schema.String())
	b.Field("log", schema.Slice(schema.Any())).Merge(domain.Append())

	b.Add("start").Do("passthrough", nil).Go("greet").
		Add("greet").
		Do("set", registry.Config{"values": map[string]any{"greeting": "hello", "log": "greeted"}}).
		Writes("greeting", "log").
		Terminal()

	eng := newEngine(t)
	g, err := eng.Add(b.MustBuild())
	require.NoError(t, err)
	assert.Equal(t, "start", g.Entry())

	res, err := eng.Execute(context.Background(), g, nil, stepflow.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "greet"}, res.Trace.Path())
	assert.Equal(t, map[string]any{"greeting": "hello", "log": []any{"greeted"}}, res.State.Snapshot())
}

func TestBuilder_Entry(t *testing.T) {
	b := dsl.New("pick").Entry("second")
	b.Add("first").Do("passthrough", nil).Terminal()
	b.Add("second").Do("passthrough", nil).Go("first")

	g, err := newEngine(t).Add(b.MustBuild())
	require.NoError(t, err)
	assert.Equal(t, "second", g.Entry())
}

func TestBuilder_Errors(t *testing.T) {
	t.Run("missing step", func(t *testing.T) {
		b := dsl.New("broken")
		b.Add("a").Terminal()
		_, err := b.Build()
		assert.ErrorContains(t, err, `node "a" has no step`)
	})

	t.Run("duplicate field", func(t *testing.T) {
		b := dsl.New("broken")
		b.Field("x", schema.Int())
		b.Field("x", schema.Int())
		_, err := b.Build()
		assert.ErrorIs(t, err, domain.ErrDuplicateName)
	})

	t.Run("router-less branch fails to compile", func(t *testing.T) {
		b := dsl.New("broken")
		b.Add("a").Do("passthrough", nil).When("x", dsl.End)
		def, err := b.Build()
		require.NoError(t, err)
		_, err = newEngine(t).Add(def)
		assert.Error(t, err)
	})

	t.Run("Add returns existing node", func(t *testing.T) {
		b := dsl.New("g")
		first := b.Add("a")
		assert.Same(t, first, b.Add("a"))
	})
}

func TestNodeBuilder_Build(t *testing.T) {
	nb := dsl.New("g").Add("a").
		Do("threshold", registry.Config{"field": "n"}).
		Route("threshold", nil).
		When("above", dsl.End)

	node, branch := nb.Build()
	assert.Equal(t, "a", node.Name)
	require.NotNil(t, branch)
	assert.Equal(t, map[string]string{"above": dsl.End}, branch.Routes)

	branch.Routes["below"] = "a"
	_, again := nb.Build()
	assert.NotContains(t, again.Routes, "below")
}

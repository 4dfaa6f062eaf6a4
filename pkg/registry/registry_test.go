package registry_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/stepflow/pkg/domain"
	"github.com/aretw0/stepflow/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(context.Context, domain.View, registry.Config) (domain.Update, error) {
	return nil, nil
}

func always(label string) registry.RouterFunc {
	return func(context.Context, domain.View, registry.Config) (string, error) { return label, nil }
}

func TestRegistry_Register(t *testing.T) {
	t.Run("Duplicate Rejected", func(t *testing.T) {
		reg := registry.NewRegistry()
		require.NoError(t, reg.RegisterStep("fetch", "io", noop))

		err := reg.RegisterStep("fetch", "io", noop)
		assert.ErrorIs(t, err, domain.ErrDuplicateName)
		var dup *domain.DuplicateNameError
		require.ErrorAs(t, err, &dup)
		assert.Equal(t, "fetch", dup.Name)
	})

	t.Run("Overwrite", func(t *testing.T) {
		reg := registry.NewRegistry()
		require.NoError(t, reg.RegisterStep("fetch", "io", noop))
		require.NoError(t, reg.RegisterStep("fetch", "net", noop, registry.WithOverwrite()))

		e, err := reg.Lookup("fetch")
		require.NoError(t, err)
		assert.Equal(t, "net", e.Category)
		assert.Equal(t, 1, reg.Len())
	})

	t.Run("Options", func(t *testing.T) {
		reg := registry.NewRegistry()
		require.NoError(t, reg.RegisterStep("count", "math", noop,
			registry.Describe("adds one"), registry.Writes("count")))
		require.NoError(t, reg.RegisterRouter("gate", "flow", always("yes"), registry.Labels("yes", "no")))

		step, _ := reg.Lookup("count")
		assert.Equal(t, registry.KindStep, step.Kind)
		assert.Equal(t, "adds one", step.Description)
		assert.Equal(t, []string{"count"}, step.Writes)

		router, _ := reg.Lookup("gate")
		assert.Equal(t, registry.KindRouter, router.Kind)
		assert.Equal(t, []string{"yes", "no"}, router.Labels)
	})

	t.Run("Invalid Entries", func(t *testing.T) {
		reg := registry.NewRegistry()
		assert.Error(t, reg.RegisterStep("", "x", noop))
		assert.Error(t, reg.RegisterStep("nil", "x", nil))
		assert.Error(t, reg.Register(registry.Entry{Name: "odd", Kind: "widget"}))
		assert.Equal(t, 0, reg.Len())
	})
}

func TestRegistry_Lookup(t *testing.T) {
	reg := registry.NewRegistry()
	require.NoError(t, reg.RegisterStep("b", "", noop))
	require.NoError(t, reg.RegisterStep("a", "", noop))

	_, err := reg.Lookup("missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	var nf *domain.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, []string{"a", "b"}, nf.Available)
	assert.Contains(t, err.Error(), "a, b")
}

func TestRegistry_LookupReturnsCopy(t *testing.T) {
	reg := registry.NewRegistry()
	require.NoError(t, reg.RegisterStep("s", "", noop, registry.Writes("x")))

	e, _ := reg.Lookup("s")
	e.Writes[0] = "mutated"

	again, _ := reg.Lookup("s")
	assert.Equal(t, []string{"x"}, again.Writes)
}

func TestRegistry_List(t *testing.T) {
	reg := registry.NewRegistry()
	require.NoError(t, reg.RegisterStep("zeta", "io", noop))
	require.NoError(t, reg.RegisterStep("alpha", "math", noop))
	require.NoError(t, reg.RegisterRouter("mid", "io", always("x")))

	var all []string
	for e := range reg.List("") {
		all = append(all, e.Name)
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, all)

	var io []string
	for e := range reg.List("io") {
		io = append(io, e.Name)
	}
	assert.Equal(t, []string{"mid", "zeta"}, io)

	// Restartable and reflects later changes
	reg.Unregister("mid")
	var again []string
	for e := range reg.List("io") {
		again = append(again, e.Name)
	}
	assert.Equal(t, []string{"zeta"}, again)

	assert.Equal(t, []string{"io", "math"}, reg.Categories())
}

func TestRegistry_Unregister(t *testing.T) {
	reg := registry.NewRegistry()
	require.NoError(t, reg.RegisterStep("s", "", noop))
	assert.True(t, reg.Has("s"))
	assert.True(t, reg.Unregister("s"))
	assert.False(t, reg.Unregister("s"))
	assert.False(t, reg.Has("s"))
}

func TestRegistry_Concurrent(t *testing.T) {
	reg := registry.NewRegistry()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = reg.RegisterStep(fmt.Sprintf("step-%d", i), "c", noop)
		}()
		go func() {
			defer wg.Done()
			for range reg.List("c") {
			}
			_, _ = reg.Lookup("step-0")
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, reg.Len())
}

func TestDefault(t *testing.T) {
	assert.Same(t, registry.Default(), registry.Default())
}

func TestConfig_Decode(t *testing.T) {
	var opts struct {
		Field     string        `mapstructure:"field"`
		Threshold float64       `mapstructure:"threshold"`
		Limit     int           `mapstructure:"limit"`
		Wait      time.Duration `mapstructure:"wait"`
	}
	cfg := registry.Config{"field": "count", "threshold": 3, "limit": float64(5), "wait": "2s"}
	require.NoError(t, cfg.Decode(&opts))
	assert.Equal(t, "count", opts.Field)
	assert.Equal(t, 3.0, opts.Threshold)
	assert.Equal(t, 5, opts.Limit)
	assert.Equal(t, 2*time.Second, opts.Wait)

	err := registry.Config{"unknown": true}.Decode(&opts)
	assert.Error(t, err)

	assert.Equal(t, "count", cfg.String("field", "x"))
	assert.Equal(t, "x", cfg.String("missing", "x"))
}

package domain_test

import (
	"testing"

	"github.com/aretw0/stepflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergePolicy_ZeroValueIsReplace(t *testing.T) {
	var p domain.MergePolicy
	assert.Equal(t, domain.PolicyReplace, p.Kind())
	assert.Equal(t, "replace", p.Name())

	got, err := p.Apply("old", true, "new")
	require.NoError(t, err)
	assert.Equal(t, "new", got)
}

func TestMergePolicy_Append(t *testing.T) {
	p := domain.Append()

	t.Run("Same Slice Type", func(t *testing.T) {
		got, err := p.Apply([]string{"a"}, true, []string{"b", "c"})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, got)
	})

	t.Run("Single Element", func(t *testing.T) {
		got, err := p.Apply([]any{1}, true, 2)
		require.NoError(t, err)
		assert.Equal(t, []any{1, 2}, got)
	})

	t.Run("Mixed Types", func(t *testing.T) {
		got, err := p.Apply([]int{1}, true, []string{"x"})
		require.NoError(t, err)
		assert.Equal(t, []any{1, "x"}, got)
	})

	t.Run("Unset", func(t *testing.T) {
		got, err := p.Apply(nil, false, []int{7})
		require.NoError(t, err)
		assert.Equal(t, []int{7}, got)
	})

	t.Run("Current Not A List", func(t *testing.T) {
		_, err := p.Apply("scalar", true, []int{1})
		assert.Error(t, err)
	})

	t.Run("Does Not Alias Old", func(t *testing.T) {
		old := make([]int, 1, 10)
		got, err := p.Apply(old, true, []int{2})
		require.NoError(t, err)
		got.([]int)[0] = 99
		assert.Equal(t, 0, old[0])
	})
}

func TestMergePolicy_Reducers(t *testing.T) {
	tests := []struct {
		name     string
		policy   domain.MergePolicy
		old      any
		set      bool
		incoming any
		want     any
	}{
		{"sum ints", domain.Sum(), 2, true, 3, 5},
		{"sum floats", domain.Sum(), 1.5, true, 1, 2.5},
		{"sum unset", domain.Sum(), nil, false, 4, 4},
		{"max", domain.Max(), 2, true, 9, 9},
		{"min", domain.Min(), 2, true, 9, 2},
		{"append unique", domain.AppendUnique(), []any{"a", "b"}, true, []any{"b", "c"}, []any{"a", "b", "c"}},
		{
			"deep merge",
			domain.DeepMerge(),
			map[string]any{"a": 1, "nested": map[string]any{"x": 1}},
			true,
			map[string]any{"b": 2, "nested": map[string]any{"y": 2}},
			map[string]any{"a": 1, "b": 2, "nested": map[string]any{"x": 1, "y": 2}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.policy.Apply(tt.old, tt.set, tt.incoming)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMergePolicy_Commutativity(t *testing.T) {
	assert.True(t, domain.Sum().IsCommutative())
	assert.True(t, domain.Max().IsCommutative())
	assert.False(t, domain.DeepMerge().IsCommutative())
	assert.False(t, domain.Append().IsCommutative())
	assert.False(t, domain.Replace().IsCommutative())
}

func TestLookupPolicy(t *testing.T) {
	p, err := domain.LookupPolicy("")
	require.NoError(t, err)
	assert.Equal(t, domain.PolicyReplace, p.Kind())

	p, err = domain.LookupPolicy("sum")
	require.NoError(t, err)
	assert.Equal(t, "sum", p.Name())
	assert.Equal(t, domain.PolicyCustom, p.Kind())

	_, err = domain.LookupPolicy("median")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Contains(t, domain.Policies(), "append")
}

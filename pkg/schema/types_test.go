package schema_test

import (
	"errors"
	"testing"

	"github.com/aretw0/stepflow/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypes_Validate(t *testing.T) {
	tests := []struct {
		name   string
		typ    schema.Type
		accept []any
		reject []any
	}{
		{"string", schema.String(), []any{"", "x"}, []any{1, nil, []byte("x")}},
		{"int", schema.Int(), []any{0, int64(-3), uint8(7), 2.0}, []any{2.5, "3", nil, true}},
		{"float", schema.Float(), []any{1.5, float32(2), 3}, []any{"1.5", nil}},
		{"bool", schema.Bool(), []any{true, false}, []any{"true", 0, nil}},
		{"any", schema.Any(), []any{1, "x", map[string]any{}}, []any{nil}},
		{"map", schema.Map(), []any{map[string]any{}, map[string]int{"a": 1}}, []any{map[int]string{}, []any{}, nil}},
		{"[string]", schema.Slice(schema.String()), []any{[]string{"a"}, []any{"a", "b"}, [1]string{"a"}}, []any{[]any{"a", 1}, "a", nil}},
		{"[[int]]", schema.Slice(schema.Slice(schema.Int())), []any{[][]int{{1}, {2, 3}}}, []any{[]any{1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.typ.Name())
			for _, v := range tt.accept {
				assert.NoError(t, tt.typ.Validate(v), "%#v", v)
			}
			for _, v := range tt.reject {
				assert.Error(t, tt.typ.Validate(v), "%#v", v)
			}
		})
	}
}

func TestSlice_ReportsElement(t *testing.T) {
	err := schema.Slice(schema.Int()).Validate([]any{1, "two"})
	assert.ErrorContains(t, err, "element 1")
}

func TestCustom(t *testing.T) {
	even := schema.Custom("even", func(v any) error {
		n, ok := v.(int)
		if !ok || n%2 != 0 {
			return errors.New("not an even int")
		}
		return nil
	})
	assert.Equal(t, "even", even.Name())
	assert.NoError(t, even.Validate(4))
	assert.EqualError(t, even.Validate(3), "not an even int")
}

func TestParseType(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"string", "string"},
		{"int", "int"},
		{"float", "float"},
		{"bool", "bool"},
		{"any", "any"},
		{"map", "map"},
		{"list", "[any]"},
		{"[map]", "[map]"},
		{" [string] ", "[string]"},
		{"[[int]]", "[[int]]"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			typ, err := schema.ParseType(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, typ.Name())
		})
	}

	for _, bad := range []string{"", "[]", "[string", "object", "[object]"} {
		t.Run("reject "+bad, func(t *testing.T) {
			_, err := schema.ParseType(bad)
			assert.Error(t, err)
		})
	}
}

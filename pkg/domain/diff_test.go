package domain

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/aretw0/stepflow/pkg/schema"
)

func diffSchema() *Schema {
	return MustSchema(
		Field{Name: "a", Type: schema.Int()},
		Field{Name: "b", Type: schema.Int()},
		Field{Name: "tags", Type: schema.Slice(schema.String()), Policy: Append()},
	)
}

func mustState(t *testing.T, s *Schema, values map[string]any) *State {
	t.Helper()
	st, err := s.NewState(values)
	if err != nil {
		t.Fatalf("NewState(%v) error = %v", values, err)
	}
	return st
}

func TestDiff(t *testing.T) {
	s := diffSchema()

	tests := []struct {
		name string
		old  *State
		new  *State
		want map[string]any
	}{
		{
			name: "Initial Load (Old is Nil)",
			old:  nil,
			new:  mustState(t, s, map[string]any{"a": 1}),
			want: map[string]any{"a": 1},
		},
		{
			name: "No Changes",
			old:  mustState(t, s, map[string]any{"a": 1}),
			new:  mustState(t, s, map[string]any{"a": 1}),
			want: nil,
		},
		{
			name: "Modified and Added",
			old:  mustState(t, s, map[string]any{"a": 1}),
			new:  mustState(t, s, map[string]any{"a": 2, "b": 3}),
			want: map[string]any{"a": 2, "b": 3},
		},
		{
			name: "Slice Append",
			old:  mustState(t, s, map[string]any{"tags": []string{"x"}}),
			new:  mustState(t, s, map[string]any{"tags": []string{"x", "y"}}),
			want: map[string]any{"tags": []string{"x", "y"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Diff(tt.old, tt.new)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Diff() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDiff_NilAfter(t *testing.T) {
	if got := Diff(mustState(t, diffSchema(), nil), nil); got != nil {
		t.Errorf("Diff(_, nil) = %v, want nil", got)
	}
}

func TestDiffJSONSerialization(t *testing.T) {
	t.Run("Deletions as Null", func(t *testing.T) {
		s := diffSchema()
		s1 := mustState(t, s, map[string]any{"a": 1, "b": 2})
		s2 := mustState(t, s, map[string]any{"a": 1}) // 'b' unset
		diff := Diff(s1, s2)

		if diff == nil {
			t.Fatal("Expected diff, got nil")
		}

		bytes, _ := json.Marshal(diff)
		if !strings.Contains(string(bytes), `"b":null`) {
			t.Errorf("JSON should contain 'b':null for deletion, got: %s", string(bytes))
		}
	})
}

package domain

import (
	"fmt"
	"reflect"
	"sort"
)

// PolicyKind classifies a merge policy.
type PolicyKind string

const (
	PolicyReplace PolicyKind = "replace"
	PolicyAppend  PolicyKind = "append"
	PolicyCustom  PolicyKind = "custom"
)

// MergeFunc combines the current value of a field with an incoming one.
// old is nil when the field is unset.
type MergeFunc func(old, incoming any) (any, error)

// MergePolicy decides how an update to a field is combined with its current value.
// The zero value is the replace policy.
type MergePolicy struct {
	name        string
	kind        PolicyKind
	commutative bool
	fn          MergeFunc
}

// Replace overwrites the old value with the new one.
func Replace() MergePolicy {
	return MergePolicy{name: string(PolicyReplace), kind: PolicyReplace}
}

// Append concatenates the new value onto the old list.
// A non-list incoming value is appended as a single element.
// Appending to an unset field appends to an empty list.
func Append() MergePolicy {
	return MergePolicy{name: string(PolicyAppend), kind: PolicyAppend, fn: appendValues}
}

// Custom builds a policy from a user reducer. Commutative reducers may be
// written by more than one node on the same path.
func Custom(name string, fn MergeFunc, commutative bool) MergePolicy {
	return MergePolicy{name: name, kind: PolicyCustom, commutative: commutative, fn: fn}
}

// Name returns the policy name used in errors, documents and diagrams.
func (p MergePolicy) Name() string {
	if p.name == "" {
		return string(PolicyReplace)
	}
	return p.name
}

// Kind returns the policy classification.
func (p MergePolicy) Kind() PolicyKind {
	if p.kind == "" {
		return PolicyReplace
	}
	return p.kind
}

// IsCommutative reports whether the reducer result is independent of write order.
// Replace and append are order dependent but are never reported as conflicts.
func (p MergePolicy) IsCommutative() bool { return p.commutative }

// Apply merges incoming into old. set reports whether the field currently holds a value.
func (p MergePolicy) Apply(old any, set bool, incoming any) (any, error) {
	if p.fn == nil {
		return incoming, nil
	}
	if !set {
		old = nil
	}
	return p.fn(old, incoming)
}

func appendValues(old, incoming any) (any, error) {
	in := reflect.ValueOf(incoming)
	if incoming == nil {
		return cloneValue(old), nil
	}
	if !isList(in) {
		in = reflect.ValueOf([]any{incoming})
	}
	if old == nil {
		return copyList(in, in.Type()), nil
	}

	cur := reflect.ValueOf(old)
	if !isList(cur) {
		return nil, fmt.Errorf("append: current value %T is not a list", old)
	}

	if cur.Type() == in.Type() && cur.Kind() == reflect.Slice {
		out := reflect.MakeSlice(cur.Type(), 0, cur.Len()+in.Len())
		out = reflect.AppendSlice(out, cur)
		out = reflect.AppendSlice(out, in)
		return out.Interface(), nil
	}

	out := make([]any, 0, cur.Len()+in.Len())
	for i := 0; i < cur.Len(); i++ {
		out = append(out, cur.Index(i).Interface())
	}
	for i := 0; i < in.Len(); i++ {
		out = append(out, in.Index(i).Interface())
	}
	return out, nil
}

func isList(v reflect.Value) bool {
	return v.IsValid() && (v.Kind() == reflect.Slice || v.Kind() == reflect.Array)
}

func copyList(v reflect.Value, t reflect.Type) any {
	if t.Kind() == reflect.Array {
		t = reflect.SliceOf(t.Elem())
	}
	out := reflect.MakeSlice(t, v.Len(), v.Len())
	reflect.Copy(out, v)
	return out.Interface()
}

// --- Built-in reducers ---

// AppendUnique appends incoming elements that are not already present.
func AppendUnique() MergePolicy {
	return Custom("append_unique", func(old, incoming any) (any, error) {
		merged, err := appendValues(nil, incoming)
		if err != nil {
			return nil, err
		}
		var out []any
		if old != nil {
			cur := reflect.ValueOf(old)
			if !isList(cur) {
				return nil, fmt.Errorf("append_unique: current value %T is not a list", old)
			}
			for i := 0; i < cur.Len(); i++ {
				out = append(out, cur.Index(i).Interface())
			}
		}
		in := reflect.ValueOf(merged)
		for i := 0; i < in.Len(); i++ {
			item := in.Index(i).Interface()
			if !containsValue(out, item) {
				out = append(out, item)
			}
		}
		if out == nil {
			out = []any{}
		}
		return out, nil
	}, false)
}

func containsValue(list []any, item any) bool {
	for _, v := range list {
		if reflect.DeepEqual(v, item) {
			return true
		}
	}
	return false
}

// DeepMerge recursively merges string-keyed maps. Lists under the same key are
// concatenated; any other incoming value wins on conflict.
func DeepMerge() MergePolicy {
	return Custom("deep_merge", func(old, incoming any) (any, error) {
		in, ok := toStringMap(incoming)
		if !ok {
			return nil, fmt.Errorf("deep_merge: incoming value %T is not a map", incoming)
		}
		if old == nil {
			return deepMerge(map[string]any{}, in), nil
		}
		cur, ok := toStringMap(old)
		if !ok {
			return nil, fmt.Errorf("deep_merge: current value %T is not a map", old)
		}
		return deepMerge(cur, in), nil
	}, false)
}

func deepMerge(dst, src map[string]any) map[string]any {
	out := make(map[string]any, len(dst)+len(src))
	for k, v := range dst {
		out[k] = cloneValue(v)
	}
	for k, v := range src {
		if srcMap, ok := toStringMap(v); ok {
			if dstMap, ok := toStringMap(out[k]); ok {
				out[k] = deepMerge(dstMap, srcMap)
				continue
			}
		}
		if cur, ok := out[k]; ok && isList(reflect.ValueOf(cur)) && isList(reflect.ValueOf(v)) {
			if joined, err := appendValues(cur, v); err == nil {
				out[k] = joined
				continue
			}
		}
		out[k] = cloneValue(v)
	}
	return out
}

func toStringMap(v any) (map[string]any, bool) {
	if m, ok := v.(map[string]any); ok {
		return m, true
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}

// Sum adds numbers. Integers stay integers; any float operand yields a float64.
func Sum() MergePolicy {
	return Custom("sum", numericReducer("sum", func(a, b float64) float64 { return a + b },
		func(a, b int64) int64 { return a + b }), true)
}

// Max keeps the larger number.
func Max() MergePolicy {
	return Custom("max", numericReducer("max", func(a, b float64) float64 { return max(a, b) },
		func(a, b int64) int64 { return max(a, b) }), true)
}

// Min keeps the smaller number.
func Min() MergePolicy {
	return Custom("min", numericReducer("min", func(a, b float64) float64 { return min(a, b) },
		func(a, b int64) int64 { return min(a, b) }), true)
}

func numericReducer(name string, floats func(a, b float64) float64, ints func(a, b int64) int64) MergeFunc {
	return func(old, incoming any) (any, error) {
		if old == nil {
			if _, _, ok := toNumber(incoming); !ok {
				return nil, fmt.Errorf("%s: incoming value %T is not a number", name, incoming)
			}
			return incoming, nil
		}
		oi, of, ok := toNumber(old)
		if !ok {
			return nil, fmt.Errorf("%s: current value %T is not a number", name, old)
		}
		ii, inf, ok := toNumber(incoming)
		if !ok {
			return nil, fmt.Errorf("%s: incoming value %T is not a number", name, incoming)
		}
		if of == nil && inf == nil {
			return int(ints(*oi, *ii)), nil
		}
		return floats(asFloat(oi, of), asFloat(ii, inf)), nil
	}
}

// toNumber returns exactly one of the integer or float forms of v.
func toNumber(v any) (*int64, *float64, bool) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return nil, nil, false
	}
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i := rv.Int()
		return &i, nil, true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		i := int64(rv.Uint())
		return &i, nil, true
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		return nil, &f, true
	}
	return nil, nil, false
}

func asFloat(i *int64, f *float64) float64 {
	if f != nil {
		return *f
	}
	return float64(*i)
}

// --- Policy lookup ---

var builtinPolicies = map[string]func() MergePolicy{
	"replace":       Replace,
	"append":        Append,
	"append_unique": AppendUnique,
	"deep_merge":    DeepMerge,
	"sum":           Sum,
	"max":           Max,
	"min":           Min,
}

// LookupPolicy resolves a policy by the name used in workflow documents.
// The empty name resolves to replace.
func LookupPolicy(name string) (MergePolicy, error) {
	if name == "" {
		return Replace(), nil
	}
	ctor, ok := builtinPolicies[name]
	if !ok {
		return MergePolicy{}, &NotFoundError{Kind: "merge policy", Name: name, Available: Policies()}
	}
	return ctor(), nil
}

// Policies returns the names of the built-in policies in sorted order.
func Policies() []string {
	names := make([]string, 0, len(builtinPolicies))
	for name := range builtinPolicies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

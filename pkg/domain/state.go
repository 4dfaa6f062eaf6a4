package domain

import (
	"encoding/json"
	"fmt"
	"iter"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/aretw0/stepflow/pkg/schema"
)

// Field declares one named, typed slot of the state.
type Field struct {
	Name    string
	Type    schema.Type
	Policy  MergePolicy
	Default any // Applied by NewState when set and the initial values omit the field.
}

// Schema is the ordered, immutable set of fields a graph's state carries.
type Schema struct {
	fields []Field
	index  map[string]int
	types  schema.Schema
}

// NewSchema validates and freezes a field declaration list.
// Field order is preserved for iteration and rendering.
func NewSchema(fields ...Field) (*Schema, error) {
	s := &Schema{
		fields: make([]Field, 0, len(fields)),
		index:  make(map[string]int, len(fields)),
		types:  make(schema.Schema, len(fields)),
	}
	for _, f := range fields {
		if f.Name == "" {
			return nil, fmt.Errorf("field name cannot be empty")
		}
		if _, dup := s.index[f.Name]; dup {
			return nil, &DuplicateNameError{Kind: "field", Name: f.Name}
		}
		if f.Type == nil {
			f.Type = schema.Any()
		}
		if f.Default != nil {
			if err := f.Type.Validate(f.Default); err != nil {
				return nil, fmt.Errorf("field %q default: %w", f.Name, err)
			}
			f.Default = cloneValue(f.Default)
		}
		s.index[f.Name] = len(s.fields)
		s.fields = append(s.fields, f)
		s.types[f.Name] = f.Type
	}
	return s, nil
}

// MustSchema is NewSchema that panics on error. Intended for tests and static declarations.
func MustSchema(fields ...Field) *Schema {
	s, err := NewSchema(fields...)
	if err != nil {
		panic(err)
	}
	return s
}

// Field returns the declaration of the named field.
func (s *Schema) Field(name string) (Field, bool) {
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// Fields returns the declarations in declaration order.
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Names returns field names in declaration order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.Name
	}
	return names
}

// Len returns the number of declared fields.
func (s *Schema) Len() int { return len(s.fields) }

// Has reports whether the field is declared.
func (s *Schema) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

// Types exposes the field types as a validation schema.
func (s *Schema) Types() schema.Schema { return s.types }

// NewState builds the initial state: declared defaults first, then initial values
// replace them. Unknown keys and type mismatches are rejected.
func (s *Schema) NewState(initial map[string]any) (*State, error) {
	if err := schema.Validate(s.types, initial); err != nil {
		return nil, fmt.Errorf("initial state: %w", err)
	}
	values := make(map[string]any, len(s.fields))
	for _, f := range s.fields {
		if f.Default != nil {
			values[f.Name] = cloneValue(f.Default)
		}
	}
	for k, v := range initial {
		values[k] = cloneValue(v)
	}
	return &State{schema: s, values: values}, nil
}

// Update is a partial write produced by a step: field name to new value.
type Update map[string]any

// Fields returns the written field names in sorted order.
func (u Update) Fields() []string {
	keys := make([]string, 0, len(u))
	for k := range u {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// View is the read-only face of a State handed to steps and routers.
type View interface {
	Get(name string) (any, error)
	Lookup(name string) (any, bool)
	Has(name string) bool
	Fields() []string
	Snapshot() map[string]any
}

// State is an immutable snapshot of field values. Merge never mutates the receiver.
type State struct {
	schema *Schema
	values map[string]any
}

var _ View = (*State)(nil)

// Schema returns the schema this state conforms to.
func (st *State) Schema() *Schema { return st.schema }

// Get returns the value of a declared field.
// It fails with a NotFoundError for undeclared names and ErrFieldUnset for unset ones.
func (st *State) Get(name string) (any, error) {
	if !st.schema.Has(name) {
		return nil, &NotFoundError{Kind: "field", Name: name, Available: st.schema.Names()}
	}
	v, ok := st.values[name]
	if !ok {
		return nil, fmt.Errorf("field %q: %w", name, ErrFieldUnset)
	}
	return cloneValue(v), nil
}

// Lookup returns the value and whether it is set. Undeclared names report false.
func (st *State) Lookup(name string) (any, bool) {
	v, ok := st.values[name]
	if !ok {
		return nil, false
	}
	return cloneValue(v), true
}

// Has reports whether the field currently holds a value.
func (st *State) Has(name string) bool {
	_, ok := st.values[name]
	return ok
}

// Fields returns the names of set fields in declaration order.
func (st *State) Fields() []string {
	names := make([]string, 0, len(st.values))
	for _, f := range st.schema.fields {
		if _, ok := st.values[f.Name]; ok {
			names = append(names, f.Name)
		}
	}
	return names
}

// All iterates set fields in declaration order.
func (st *State) All() iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		for _, name := range st.Fields() {
			if !yield(name, cloneValue(st.values[name])) {
				return
			}
		}
	}
}

// Snapshot returns a deep copy of the set values.
func (st *State) Snapshot() map[string]any {
	out := make(map[string]any, len(st.values))
	for k, v := range st.values {
		out[k] = cloneValue(v)
	}
	return out
}

// Merge applies a partial update under each field's merge policy and returns the new state.
// Fields are merged in sorted order; the first failure aborts and the receiver is unchanged.
func (st *State) Merge(update Update) (*State, error) {
	if len(update) == 0 {
		return st, nil
	}
	next := make(map[string]any, len(st.values)+len(update))
	for k, v := range st.values {
		next[k] = v
	}
	for _, name := range update.Fields() {
		field, ok := st.schema.Field(name)
		if !ok {
			return nil, fmt.Errorf("merge field %q: %w", name,
				&NotFoundError{Kind: "field", Name: name, Available: st.schema.Names()})
		}
		incoming := update[name]
		if field.Policy.Kind() == PolicyReplace {
			if err := field.Type.Validate(incoming); err != nil {
				return nil, fmt.Errorf("merge field %q: %w", name, err)
			}
		}
		old, set := next[name]
		merged, err := field.Policy.Apply(old, set, cloneValue(incoming))
		if err != nil {
			return nil, fmt.Errorf("merge field %q: %w", name, err)
		}
		if err := field.Type.Validate(merged); err != nil {
			return nil, fmt.Errorf("merge field %q (%s): %w", name, field.Policy.Name(), err)
		}
		next[name] = merged
	}
	return &State{schema: st.schema, values: next}, nil
}

// MarshalJSON encodes the set values as a JSON object.
func (st *State) MarshalJSON() ([]byte, error) {
	return json.Marshal(st.values)
}

// cloneValue deep-copies maps and slices so callers never alias state internals.
func cloneValue(v any) any {
	if v == nil {
		return nil
	}
	return cloneReflect(reflect.ValueOf(v)).Interface()
}

func cloneReflect(v reflect.Value) reflect.Value {
	switch v.Kind() {
	case reflect.Slice:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(cloneReflect(v.Index(i)))
		}
		return out
	case reflect.Map:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), cloneReflect(iter.Value()))
		}
		return out
	case reflect.Interface:
		if v.IsNil() {
			return v
		}
		inner := cloneReflect(v.Elem())
		out := reflect.New(v.Type()).Elem()
		out.Set(inner)
		return out
	default:
		return v
	}
}

// Coerce converts loosely typed input, such as decoded JSON or command-line
// strings, to the declared scalar types: whole floats and numeric strings
// become int for int fields, numeric strings become float64 for float fields
// and "true"/"false" become bool. Values that cannot be converted, and
// undeclared keys, are returned unchanged for NewState to reject.
func (s *Schema) Coerce(values map[string]any) map[string]any {
	if values == nil {
		return nil
	}
	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = v
		f, ok := s.Field(k)
		if !ok {
			continue
		}
		if c, ok := coerceScalar(f.Type.Name(), v); ok {
			out[k] = c
		}
	}
	return out
}

func coerceScalar(typ string, v any) (any, bool) {
	switch typ {
	case "int":
		switch val := v.(type) {
		case float64:
			if val == float64(int64(val)) {
				return int(val), true
			}
		case string:
			if i, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
				return i, true
			}
		}
	case "float":
		if s, ok := v.(string); ok {
			if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
				return f, true
			}
		}
	case "bool":
		if s, ok := v.(string); ok {
			if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
				return b, true
			}
		}
	}
	return nil, false
}

package schema

import (
	"fmt"
	"reflect"
	"strings"
)

// Type is the declared type of a state field.
type Type interface {
	// Name is the spelling used in workflow documents, e.g. "int" or "[string]".
	Name() string
	// Validate reports whether value may be stored in a field of this type.
	Validate(value any) error
}

// kind is a built-in type checked by a predicate over the dynamic value.
type kind struct {
	name  string
	check func(reflect.Value) bool
}

func (k kind) Name() string { return k.name }

func (k kind) Validate(value any) error {
	if value == nil {
		return fmt.Errorf("expected %s, got nil", k.name)
	}
	if !k.check(reflect.ValueOf(value)) {
		return fmt.Errorf("expected %s, got %T", k.name, value)
	}
	return nil
}

var (
	stringKind = kind{name: "string", check: func(v reflect.Value) bool { return v.Kind() == reflect.String }}
	boolKind   = kind{name: "bool", check: func(v reflect.Value) bool { return v.Kind() == reflect.Bool }}
	intKind    = kind{name: "int", check: isWhole}
	floatKind  = kind{name: "float", check: func(v reflect.Value) bool { return isInteger(v) || isFloat(v) }}
	anyKind    = kind{name: "any", check: func(reflect.Value) bool { return true }}
	mapKind    = kind{name: "map", check: isStringMap}
)

func isStringMap(v reflect.Value) bool {
	return v.Kind() == reflect.Map && v.Type().Key().Kind() == reflect.String
}

func isInteger(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

func isFloat(v reflect.Value) bool {
	return v.Kind() == reflect.Float32 || v.Kind() == reflect.Float64
}

// isWhole accepts integers and whole floats, which is how JSON decodes them.
func isWhole(v reflect.Value) bool {
	if isInteger(v) {
		return true
	}
	if isFloat(v) {
		f := v.Float()
		return f == float64(int64(f))
	}
	return false
}

// list is a homogeneous list of elem.
type list struct {
	elem Type
}

func (l list) Name() string { return "[" + l.elem.Name() + "]" }

func (l list) Validate(value any) error {
	rv := reflect.ValueOf(value)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return fmt.Errorf("expected %s, got %T", l.Name(), value)
	}
	for i := 0; i < rv.Len(); i++ {
		if err := l.elem.Validate(rv.Index(i).Interface()); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
	}
	return nil
}

// custom delegates to a caller-supplied check.
type custom struct {
	name  string
	check func(any) error
}

func (c custom) Name() string { return c.name }

func (c custom) Validate(value any) error { return c.check(value) }

// String accepts strings.
func String() Type { return stringKind }

// Int accepts any integer kind and floats without a fractional part.
func Int() Type { return intKind }

// Float accepts any numeric kind.
func Float() Type { return floatKind }

// Bool accepts booleans.
func Bool() Type { return boolKind }

// Any accepts every non-nil value.
func Any() Type { return anyKind }

// Map accepts maps with string keys.
func Map() Type { return mapKind }

// Slice accepts slices and arrays whose elements all satisfy elem.
func Slice(elem Type) Type { return list{elem: elem} }

// Custom builds a type from a validation function.
func Custom(name string, check func(any) error) Type {
	return custom{name: name, check: check}
}

var named = map[string]Type{
	"string": stringKind,
	"int":    intKind,
	"float":  floatKind,
	"bool":   boolKind,
	"any":    anyKind,
	"map":    mapKind,
	"list":   list{elem: anyKind},
}

// ParseType resolves a type name from a workflow document: one of string, int,
// float, bool, any, map, list (an alias of [any]), or a bracketed element type
// such as [string] or [[int]].
func ParseType(name string) (Type, error) {
	name = strings.TrimSpace(name)
	if inner, ok := strings.CutPrefix(name, "["); ok {
		if inner, ok = strings.CutSuffix(inner, "]"); ok && inner != "" {
			elem, err := ParseType(inner)
			if err != nil {
				return nil, err
			}
			return Slice(elem), nil
		}
	}
	if t, ok := named[name]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("unsupported type: %q", name)
}

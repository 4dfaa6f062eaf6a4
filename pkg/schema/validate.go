package schema

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Schema maps field names to their declared types.
type Schema map[string]Type

// ValidationError is one field that failed validation.
type ValidationError struct {
	Key    string
	Reason string
	Value  any // nil when the field is undeclared.
}

func (e *ValidationError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("field %q: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("field %q: %s (got %T)", e.Key, e.Reason, e.Value)
}

// FieldErrors collects every failing field of one Validate call, in key order.
type FieldErrors []*ValidationError

func (fe FieldErrors) Error() string {
	if len(fe) == 1 {
		return fe[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d invalid fields:", len(fe))
	for _, e := range fe {
		sb.WriteString("\n  ")
		sb.WriteString(e.Error())
	}
	return sb.String()
}

// Unwrap lets errors.As reach the individual failures.
func (fe FieldErrors) Unwrap() []error {
	out := make([]error, len(fe))
	for i, e := range fe {
		out[i] = e
	}
	return out
}

// Invalid returns the failing fields carried by err, or nil.
func Invalid(err error) FieldErrors {
	var fe FieldErrors
	if errors.As(err, &fe) {
		return fe
	}
	return nil
}

// Validate checks every key of values against s. Undeclared keys are rejected;
// declared fields missing from values are not.
func Validate(s Schema, values map[string]any) error {
	var fe FieldErrors
	for _, key := range slices.Sorted(maps.Keys(values)) {
		v := values[key]
		t, ok := s[key]
		if !ok {
			fe = append(fe, &ValidationError{Key: key, Reason: "not declared"})
			continue
		}
		if err := t.Validate(v); err != nil {
			fe = append(fe, &ValidationError{Key: key, Reason: err.Error(), Value: v})
		}
	}
	if len(fe) > 0 {
		return fe
	}
	return nil
}

package domain

import (
	"reflect"
)

// Diff calculates the fields that changed between before and after.
// Added or modified fields carry their new value; fields that became unset
// are present with a nil value. If before is nil, every set field of after is
// reported. It returns nil when nothing changed.
func Diff(before, after *State) map[string]any {
	if after == nil {
		return nil
	}

	delta := make(map[string]any)

	if before == nil {
		for k, v := range after.values {
			delta[k] = cloneValue(v)
		}
		return nilIfEmpty(delta)
	}

	// Added or modified
	for k, newVal := range after.values {
		oldVal, exists := before.values[k]
		if !exists || !reflect.DeepEqual(oldVal, newVal) {
			delta[k] = cloneValue(newVal)
		}
	}

	// Deletions
	for k := range before.values {
		if _, exists := after.values[k]; !exists {
			delta[k] = nil
		}
	}

	return nilIfEmpty(delta)
}

func nilIfEmpty(m map[string]any) map[string]any {
	if len(m) == 0 {
		return nil
	}
	return m
}

// Package meta implements a generic typed accessor over a plain
// map[string]any metadata bag, used by pkg/store to back per-entity tags
// (store.Entity.Tags / store.Tag) — debugger-front-end display hints that
// don't belong on an entity's payload type.
package meta

import (
	"errors"
	"reflect"
)

// Get retrieves a metadata value from a source, converting it to T via
// reflection if it isn't already one.
func Get[T any](source map[string]any, key string) (T, error) {
	if source == nil {
		var zero T
		return zero, errors.New("metadata source is nil")
	}

	value, ok := source[key]
	if !ok {
		var zero T
		return zero, errors.New("metadata key not found")
	}

	// Try to convert the value to the requested type
	if result, ok := value.(T); ok {
		return result, nil
	}

	// Try to use reflection to convert the value
	sourceValue := reflect.ValueOf(value)
	targetType := reflect.TypeOf((*T)(nil)).Elem()

	if sourceValue.Type().ConvertibleTo(targetType) {
		convertedValue := sourceValue.Convert(targetType)
		return convertedValue.Interface().(T), nil
	}

	var zero T
	return zero, errors.New("metadata value cannot be converted to requested type")
}

// Set sets a metadata value in a source
func Set(source map[string]any, key string, value any) {
	if source == nil {
		return
	}

	source[key] = value
}

// Find finds all metadata entries with a given key
func Find(source map[string]any, key string) []any {
	if source == nil {
		return nil
	}

	value, ok := source[key]
	if !ok {
		return nil
	}

	return []any{value}
}


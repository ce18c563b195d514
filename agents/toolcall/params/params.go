/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package params

import (
	"errors"
	"fmt"
	"maps"
)

// ErrMalformedInput marks tool input that could not be decoded.
var ErrMalformedInput = errors.New("malformed tool input")

// Extract returns the named argument converted to T.
func Extract[T any](args map[string]any, name string) (T, error) {
	raw, ok := args[name]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%s parameter is required", name)
	}
	return convert[T](name, raw)
}

// ExtractOptional returns the named argument converted to T, or def when the
// argument is absent or null.
func ExtractOptional[T any](args map[string]any, name string, def T) (T, error) {
	raw, ok := args[name]
	if !ok || raw == nil {
		return def, nil
	}
	return convert[T](name, raw)
}

func convert[T any](name string, raw any) (T, error) {
	if v, ok := raw.(T); ok {
		return v, nil
	}
	// JSON decodes every number as float64.
	var zero T
	if f, ok := raw.(float64); ok {
		switch any(zero).(type) {
		case int:
			return any(int(f)).(T), nil
		case int32:
			return any(int32(f)).(T), nil
		case int64:
			return any(int64(f)).(T), nil
		}
	}
	return zero, fmt.Errorf("%s parameter must be of type %T, got %T", name, zero, raw)
}

// Error returns a tool response carrying an error message.
func Error(format string, args ...any) map[string]any {
	return map[string]any{"error": fmt.Sprintf(format, args...)}
}

// ErrorWithContext returns a tool response carrying err and extra fields.
func ErrorWithContext(err error, fields map[string]any) map[string]any {
	resp := map[string]any{"error": err.Error()}
	maps.Copy(resp, fields)
	return resp
}

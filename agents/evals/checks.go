/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package evals

import (
	"fmt"
	"reflect"
	"slices"

	"chainguard.dev/sandboxagent/agents/agenttrace"
)

// NoToolErrors fails traces that ended in an error or made a tool call
// that failed.
func NoToolErrors[T any]() Check[T] {
	return func(o Observer, tr *agenttrace.Trace[T]) {
		if tr.Error != nil {
			o.Fail(fmt.Sprintf("trace error: got = %v, wanted = nil", tr.Error))
			return
		}
		for _, tc := range tr.ToolCalls {
			if tc.Error != nil {
				o.Fail(fmt.Sprintf("tool call %s error: got = %v, wanted = nil", tc.Name, tc.Error))
				return
			}
		}
	}
}

// MaxToolCalls fails traces with more than n tool calls.
func MaxToolCalls[T any](n int) Check[T] {
	return func(o Observer, tr *agenttrace.Trace[T]) {
		if got := len(tr.ToolCalls); got > n {
			o.Fail(fmt.Sprintf("tool call count: got = %d, wanted <= %d", got, n))
		}
	}
}

// RequiredTools fails traces that never called one of names.
func RequiredTools[T any](names ...string) Check[T] {
	return func(o Observer, tr *agenttrace.Trace[T]) {
		var missing []string
		for _, name := range names {
			if !slices.ContainsFunc(tr.ToolCalls, func(tc *agenttrace.ToolCall[T]) bool { return tc.Name == name }) {
				missing = append(missing, name)
			}
		}
		if len(missing) > 0 {
			o.Fail(fmt.Sprintf("missing required tool calls: %v", missing))
		}
	}
}

// OnlyTools fails traces that called a tool outside names.
func OnlyTools[T any](names ...string) Check[T] {
	return func(o Observer, tr *agenttrace.Trace[T]) {
		for _, tc := range tr.ToolCalls {
			if !slices.Contains(names, tc.Name) {
				o.Fail(fmt.Sprintf("unexpected tool call %q, only allowed: %v", tc.Name, names))
				return
			}
		}
	}
}

// AtMostOnce fails traces that called tool more than once.
func AtMostOnce[T any](tool string) Check[T] {
	return func(o Observer, tr *agenttrace.Trace[T]) {
		n := 0
		for _, tc := range tr.ToolCalls {
			if tc.Name == tool {
				n++
			}
		}
		if n > 1 {
			o.Fail(fmt.Sprintf("%s called %d times, wanted at most once", tool, n))
		}
	}
}

// ReadBeforeWrite fails traces where a file was modified by one of
// writers before it was read by reader. Both tools must take a "path"
// argument.
func ReadBeforeWrite[T any](reader string, writers ...string) Check[T] {
	return func(o Observer, tr *agenttrace.Trace[T]) {
		read := map[string]bool{}
		for _, tc := range tr.ToolCalls {
			path, _ := tc.Params["path"].(string)
			switch {
			case tc.Name == reader && tc.Error == nil:
				read[path] = true
			case slices.Contains(writers, tc.Name) && !read[path]:
				o.Fail(fmt.Sprintf("%s on %q before %s", tc.Name, path, reader))
				return
			}
		}
	}
}

// ResultValidator fails traces whose result is nil or rejected by
// validate.
func ResultValidator[T any](validate func(T) error) Check[T] {
	return func(o Observer, tr *agenttrace.Trace[T]) {
		v := reflect.ValueOf(tr.Result)
		if !v.IsValid() || (v.Kind() == reflect.Pointer && v.IsNil()) {
			o.Fail("result is nil")
			return
		}
		if err := validate(tr.Result); err != nil {
			o.Fail(err.Error())
		}
	}
}

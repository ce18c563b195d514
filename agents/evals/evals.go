/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package evals grades completed agent traces.
//
// A Check inspects one trace and reports problems to an Observer. Checks
// are grouped into a Suite by name and turned into trace callbacks, so the
// same suite can run online (reporting to Prometheus) and in tests
// (reporting to a *testing.T):
//
//	suite := evals.Suite[*Result]{
//		"no_tool_errors": evals.NoToolErrors[*Result](),
//		"bounded":        evals.MaxToolCalls[*Result](40),
//	}
//	tracer := agenttrace.ByCode(suite.Callbacks(evals.NewMetricsObserver)...)
package evals

import (
	"sort"

	"chainguard.dev/sandboxagent/agents/agenttrace"
)

// Observer receives the outcome of a check.
type Observer interface {
	// Fail records that the check failed. Called at most once per trace.
	Fail(msg string)
	// Log records an informational message.
	Log(msg string)
	// Grade records a score in [0, 1].
	Grade(score float64, reasoning string)
	// Increment counts one evaluated trace.
	Increment()
}

// Check evaluates one completed trace.
type Check[T any] func(Observer, *agenttrace.Trace[T])

// Inject binds obs to check.
func Inject[T any](obs Observer, check Check[T]) agenttrace.TraceCallback[T] {
	return func(tr *agenttrace.Trace[T]) {
		obs.Increment()
		check(obs, tr)
	}
}

// Suite is a named set of checks.
type Suite[T any] map[string]Check[T]

// Names returns the check names in order.
func (s Suite[T]) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Callbacks binds every check to the observer newObserver returns for its
// name.
func (s Suite[T]) Callbacks(newObserver func(name string) Observer) []agenttrace.TraceCallback[T] {
	cbs := make([]agenttrace.TraceCallback[T], 0, len(s))
	for _, name := range s.Names() {
		cbs = append(cbs, Inject(newObserver(name), s[name]))
	}
	return cbs
}

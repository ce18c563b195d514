/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package agenttrace

import (
	"context"

	"github.com/chainguard-dev/clog"
	"golang.org/x/sync/errgroup"
)

// Tracer creates traces and receives them once complete.
type Tracer[T any] interface {
	NewTrace(ctx context.Context, prompt string) *Trace[T]
	RecordTrace(trace *Trace[T])
}

type tracerKey[T any] struct{}

// WithTracer attaches tracer to ctx.
func WithTracer[T any](ctx context.Context, tracer Tracer[T]) context.Context {
	return context.WithValue(ctx, tracerKey[T]{}, tracer)
}

// TracerFromContext returns the tracer attached to ctx, or the default
// logging tracer.
func TracerFromContext[T any](ctx context.Context) Tracer[T] {
	if t, ok := ctx.Value(tracerKey[T]{}).(Tracer[T]); ok {
		return t
	}
	return NewDefaultTracer[T](ctx)
}

// StartTrace starts a trace with the tracer attached to ctx.
func StartTrace[T any](ctx context.Context, prompt string) *Trace[T] {
	return TracerFromContext[T](ctx).NewTrace(ctx, prompt)
}

// TraceCallback receives completed traces.
type TraceCallback[T any] func(*Trace[T])

type byCode[T any] struct {
	callbacks []TraceCallback[T]
}

// ByCode returns a Tracer that invokes every callback, concurrently, with
// each completed trace.
func ByCode[T any](callbacks ...TraceCallback[T]) Tracer[T] {
	return &byCode[T]{callbacks: callbacks}
}

func (b *byCode[T]) NewTrace(ctx context.Context, prompt string) *Trace[T] {
	return newTrace[T](ctx, b, prompt)
}

func (b *byCode[T]) RecordTrace(trace *Trace[T]) {
	var g errgroup.Group
	for _, cb := range b.callbacks {
		if cb == nil {
			continue
		}
		g.Go(func() error {
			cb(trace)
			return nil
		})
	}
	_ = g.Wait()
}

// NewDefaultTracer returns a Tracer that logs a summary of each trace.
func NewDefaultTracer[T any](ctx context.Context) Tracer[T] {
	log := clog.FromContext(ctx)
	return ByCode(func(tr *Trace[T]) {
		log.With("trace_id", tr.ID).
			With("duration_ms", tr.Duration().Milliseconds()).
			With("tool_calls", len(tr.ToolCalls)).
			Info("Agent trace completed", "trace", tr.String())
	})
}

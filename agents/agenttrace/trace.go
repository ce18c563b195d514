/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package agenttrace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const instrumentationName = "chainguard.dev/sandboxagent/agents/agenttrace"

// ReasoningContent is a block of model reasoning surfaced by the provider.
type ReasoningContent struct {
	Thinking string `json:"thinking"`
}

// ToolCall is one tool invocation within a trace.
type ToolCall[T any] struct {
	ID        string
	Name      string
	Params    map[string]any
	Result    any
	Error     error
	StartTime time.Time
	EndTime   time.Time

	mu    sync.Mutex
	trace *Trace[T]
	span  oteltrace.Span
}

// Trace is one agent execution.
type Trace[T any] struct {
	ID          string
	InputPrompt string
	Request     RequestContext
	ToolCalls   []*ToolCall[T]
	Reasoning   []ReasoningContent
	Result      T
	Error       error
	StartTime   time.Time
	EndTime     time.Time
	Usage       map[string]TokenUsage

	mu     sync.Mutex
	tracer Tracer[T]
	ctx    context.Context
	span   oteltrace.Span
}

// TokenUsage accumulates the tokens consumed by one model.
type TokenUsage struct {
	Input  int64 `json:"input"`
	Output int64 `json:"output"`
}

func tracer() oteltrace.Tracer {
	return otel.Tracer(instrumentationName)
}

func newTrace[T any](ctx context.Context, t Tracer[T], prompt string) *Trace[T] {
	rc := GetRequestContext(ctx)
	attrs := append(rc.spanAttributes(), attribute.Int("agent.prompt_length", len(prompt)))
	ctx, span := tracer().Start(ctx, "agent.execution", oteltrace.WithAttributes(attrs...))

	return &Trace[T]{
		ID:          newID(),
		InputPrompt: prompt,
		Request:     rc,
		StartTime:   time.Now(),
		Usage:       map[string]TokenUsage{},
		tracer:      t,
		ctx:         ctx,
		span:        span,
	}
}

// StartToolCall opens a tool call. It is added to the trace when completed.
func (t *Trace[T]) StartToolCall(id, name string, params map[string]any) *ToolCall[T] {
	_, span := tracer().Start(t.ctx, "agent.tool_call", oteltrace.WithAttributes(
		attribute.String("tool.name", name),
		attribute.String("tool.id", id),
	))
	return &ToolCall[T]{
		ID:        id,
		Name:      name,
		Params:    params,
		StartTime: time.Now(),
		trace:     t,
		span:      span,
	}
}

// BadToolCall records a call the agent could not dispatch: an unknown tool
// or malformed arguments.
func (t *Trace[T]) BadToolCall(id, name string, params map[string]any, err error) {
	tc := t.StartToolCall(id, name, params)
	tc.Complete(nil, err)
}

// RecordTokenUsage adds a model response's token counts to the trace.
func (t *Trace[T]) RecordTokenUsage(model string, input, output int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	u := t.Usage[model]
	u.Input += input
	u.Output += output
	t.Usage[model] = u

	t.span.SetAttributes(
		attribute.String("model", model),
		attribute.Int64("tokens.input", u.Input),
		attribute.Int64("tokens.output", u.Output),
	)
}

// AddReasoning appends reasoning surfaced by the model.
func (t *Trace[T]) AddReasoning(thinking string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Reasoning = append(t.Reasoning, ReasoningContent{Thinking: thinking})
}

// Complete closes the tool call and adds it to its trace.
func (tc *ToolCall[T]) Complete(result any, err error) {
	tc.mu.Lock()
	tc.Result = result
	tc.Error = err
	tc.EndTime = time.Now()
	tc.mu.Unlock()

	endSpan(tc.span, err)

	tc.trace.mu.Lock()
	defer tc.trace.mu.Unlock()
	tc.trace.ToolCalls = append(tc.trace.ToolCalls, tc)
}

// Duration returns how long the tool call ran, or has been running.
func (tc *ToolCall[T]) Duration() time.Duration {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return elapsed(tc.StartTime, tc.EndTime)
}

// Complete closes the trace and hands it to its Tracer.
func (t *Trace[T]) Complete(result T, err error) {
	t.mu.Lock()
	t.Result = result
	t.Error = err
	t.EndTime = time.Now()
	t.mu.Unlock()

	endSpan(t.span, err)
	t.tracer.RecordTrace(t)
}

// Duration returns how long the execution ran, or has been running.
func (t *Trace[T]) Duration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return elapsed(t.StartTime, t.EndTime)
}

// String renders a human-readable summary of the trace.
func (t *Trace[T]) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var sb strings.Builder
	fmt.Fprintf(&sb, "=== Trace %s ===\n", t.ID)
	fmt.Fprintf(&sb, "Prompt: %s\n", truncate(t.InputPrompt, 200))
	fmt.Fprintf(&sb, "Duration: %v\n", elapsed(t.StartTime, t.EndTime))
	for model, u := range t.Usage {
		fmt.Fprintf(&sb, "Tokens (%s): %d in, %d out\n", model, u.Input, u.Output)
	}

	fmt.Fprintf(&sb, "\nTool Calls (%d):\n", len(t.ToolCalls))
	for i, tc := range t.ToolCalls {
		fmt.Fprintf(&sb, "  [%d] %s (%s) %v\n", i+1, tc.Name, tc.ID, elapsed(tc.StartTime, tc.EndTime))
		if tc.Error != nil {
			fmt.Fprintf(&sb, "      Error: %v\n", tc.Error)
		}
	}

	if t.Error != nil {
		fmt.Fprintf(&sb, "\nError: %v\n", t.Error)
	} else {
		fmt.Fprintf(&sb, "\nResult: %s\n", truncate(fmt.Sprintf("%+v", t.Result), 500))
	}
	return sb.String()
}

func endSpan(span oteltrace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func elapsed(start, end time.Time) time.Duration {
	if end.IsZero() {
		return time.Since(start)
	}
	return end.Sub(start)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// newID returns a sortable trace ID: a timestamp and random suffix.
func newID() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return time.Now().UTC().Format("20060102-150405.000000")
	}
	return time.Now().UTC().Format("20060102-150405") + "-" + hex.EncodeToString(b)
}

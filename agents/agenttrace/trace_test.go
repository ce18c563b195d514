/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package agenttrace

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestTracerFromContext(t *testing.T) {
	ctx := context.Background()
	if TracerFromContext[string](ctx) == nil {
		t.Fatal("TracerFromContext() = nil, want default tracer")
	}

	tracer := ByCode[string]()
	if got := TracerFromContext[string](WithTracer[string](ctx, tracer)); got != tracer {
		t.Errorf("TracerFromContext() = %v, want attached tracer", got)
	}
	// Tracers are keyed by result type.
	if got := TracerFromContext[int](WithTracer[string](ctx, tracer)); got == nil {
		t.Error("TracerFromContext[int]() = nil, want default tracer")
	}
}

func TestTraceLifecycle(t *testing.T) {
	var got *Trace[string]
	ctx := WithTracer[string](context.Background(), ByCode(func(tr *Trace[string]) { got = tr }))
	ctx = WithRequestContext(ctx, RequestContext{RequestID: "req-1", Repository: "acme/demo"})

	tr := StartTrace[string](ctx, "Tell me about this project")
	tr.StartToolCall("tc1", "read_file", map[string]any{"path": "README.md"}).Complete("# Demo", nil)
	tr.BadToolCall("tc2", "nope", nil, errors.New("unknown tool"))
	tr.RecordTokenUsage("claude-sonnet-4", 10, 5)
	tr.RecordTokenUsage("claude-sonnet-4", 3, 1)
	tr.AddReasoning("look at the readme")

	if got != nil {
		t.Fatal("trace recorded before completion")
	}
	tr.Complete("done", nil)
	if got != tr {
		t.Fatal("completed trace was not recorded")
	}

	if diff := cmp.Diff(RequestContext{RequestID: "req-1", Repository: "acme/demo"}, tr.Request); diff != "" {
		t.Errorf("Request mismatch (-want +got):\n%s", diff)
	}
	if len(tr.ToolCalls) != 2 {
		t.Fatalf("ToolCalls = %d, want 2", len(tr.ToolCalls))
	}
	if tr.ToolCalls[1].Error == nil {
		t.Error("bad tool call recorded without error")
	}
	if diff := cmp.Diff(TokenUsage{Input: 13, Output: 6}, tr.Usage["claude-sonnet-4"]); diff != "" {
		t.Errorf("Usage mismatch (-want +got):\n%s", diff)
	}
	if s := tr.String(); !strings.Contains(s, "read_file") || !strings.Contains(s, "Result: done") {
		t.Errorf("String() = %q", s)
	}
}

func TestByCodeRunsEveryCallback(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	cb := func(*Trace[int]) {
		mu.Lock()
		defer mu.Unlock()
		calls++
	}
	tracer := ByCode(cb, nil, cb, cb)
	tracer.NewTrace(context.Background(), "p").Complete(1, nil)

	if calls != 3 {
		t.Errorf("callbacks = %d, want 3", calls)
	}
}

func TestRecord(t *testing.T) {
	tracer := ByCode[map[string]string]()
	tr := tracer.NewTrace(context.Background(), "prompt")
	tr.StartToolCall("tc1", "list_files", map[string]any{"path": "."}).Complete("listing", nil)
	tr.Complete(nil, errors.New("model gave up"))

	var buf bytes.Buffer
	if err := tr.WriteJSON(&buf); err != nil {
		t.Fatalf("WriteJSON() = %v", err)
	}
	var rec Record
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decoding record: %v", err)
	}
	if rec.ID != tr.ID || rec.Error != "model gave up" {
		t.Errorf("Record = %+v", rec)
	}
	if len(rec.ToolCalls) != 1 || rec.ToolCalls[0].Name != "list_files" {
		t.Errorf("ToolCalls = %+v", rec.ToolCalls)
	}
}

func TestObjectName(t *testing.T) {
	rec := Record{ID: "20260102-030405-abcd", StartTime: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	if got, want := ObjectName("traces", rec), "traces/2026/01/02/20260102-030405-abcd.json"; got != want {
		t.Errorf("ObjectName() = %q, want %q", got, want)
	}
}

/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package claudetool

import (
	"context"
	"encoding/json"
	"testing"

	"chainguard.dev/sandboxagent/agents/agenttrace"
	"chainguard.dev/sandboxagent/agents/toolcall"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/google/go-cmp/cmp"
)

var echo = toolcall.Tool[string]{
	Def: toolcall.Definition{
		Name:        "echo",
		Description: "Echo the message.",
		Parameters: []toolcall.Parameter{
			{Name: "message", Type: "string", Description: "Text to echo.", Required: true},
			{Name: "times", Type: "integer", Description: "Repetitions."},
		},
	},
	Handler: func(_ context.Context, call toolcall.ToolCall, _ *agenttrace.Trace[string], result *string) map[string]any {
		*result = call.Args["message"].(string)
		return map[string]any{"echo": call.Args["message"], "id": call.ID}
	},
}

func TestFromToolDefinition(t *testing.T) {
	md := FromTool(echo)

	if md.Definition.Name != "echo" || md.Definition.Description.Value != "Echo the message." {
		t.Errorf("Definition = %+v", md.Definition)
	}
	wantProps := map[string]any{
		"message": map[string]any{"type": "string", "description": "Text to echo."},
		"times":   map[string]any{"type": "integer", "description": "Repetitions."},
	}
	if diff := cmp.Diff(wantProps, md.Definition.InputSchema.Properties); diff != "" {
		t.Errorf("Properties mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"message"}, md.Definition.InputSchema.Required); diff != "" {
		t.Errorf("Required mismatch (-want +got):\n%s", diff)
	}
}

func TestFromToolHandler(t *testing.T) {
	md := FromTools(map[string]toolcall.Tool[string]{"echo": echo})["echo"]
	trace := agenttrace.ByCode[string]().NewTrace(context.Background(), "p")

	var result string
	resp := md.Handler(context.Background(), anthropic.ToolUseBlock{
		ID:    "toolu_1",
		Name:  "echo",
		Input: json.RawMessage(`{"message":"hi"}`),
	}, trace, &result)

	if diff := cmp.Diff(map[string]any{"echo": "hi", "id": "toolu_1"}, resp); diff != "" {
		t.Errorf("Handler() mismatch (-want +got):\n%s", diff)
	}
	if result != "hi" {
		t.Errorf("result = %q, want hi", result)
	}

	resp = md.Handler(context.Background(), anthropic.ToolUseBlock{ID: "toolu_2", Name: "echo", Input: json.RawMessage(`{`)}, trace, &result)
	if _, ok := resp["error"]; !ok {
		t.Errorf("Handler(malformed) = %v, want error", resp)
	}
	if len(trace.ToolCalls) != 1 || trace.ToolCalls[0].Error == nil {
		t.Errorf("malformed input not recorded: %+v", trace.ToolCalls)
	}
}

func TestParams(t *testing.T) {
	p, errResp := NewParams(anthropic.ToolUseBlock{Input: json.RawMessage(`{"path":"a.go","limit":10}`)})
	if errResp != nil {
		t.Fatalf("NewParams() = %v", errResp)
	}
	if v, errResp := Param[string](p, "path"); errResp != nil || v != "a.go" {
		t.Errorf("Param(path) = %q, %v", v, errResp)
	}
	if v, errResp := Param[int](p, "limit"); errResp != nil || v != 10 {
		t.Errorf("Param(limit) = %d, %v", v, errResp)
	}
	if _, errResp := Param[string](p, "missing"); errResp == nil {
		t.Error("Param(missing) succeeded")
	}
	if v, errResp := OptionalParam(p, "depth", 2); errResp != nil || v != 2 {
		t.Errorf("OptionalParam(depth) = %d, %v", v, errResp)
	}

	raw := p.RawInputs()
	raw["path"] = "changed"
	if v, _ := p.Get("path"); v != "a.go" {
		t.Error("RawInputs() aliases the decoded arguments")
	}
}

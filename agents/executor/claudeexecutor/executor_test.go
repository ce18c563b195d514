/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package claudeexecutor

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"chainguard.dev/sandboxagent/agents/agenttrace"
	"chainguard.dev/sandboxagent/agents/promptbuilder"
	"chainguard.dev/sandboxagent/agents/toolcall/claudetool"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

type request struct{ Task string }

func (r request) Bind(p *promptbuilder.Prompt) (*promptbuilder.Prompt, error) {
	return p.BindXML("task", r.Task)
}

type answer struct {
	Summary string `json:"summary"`
}

var prompt = promptbuilder.MustNewPrompt("Do this: {{task}}")

func message(t *testing.T, content string) anthropic.Message {
	t.Helper()
	var m anthropic.Message
	raw := `{"id":"msg","type":"message","role":"assistant","model":"claude-sonnet-4","stop_reason":"end_turn",` +
		`"usage":{"input_tokens":10,"output_tokens":5},"content":` + content + `}`
	require.NoError(t, json.Unmarshal([]byte(raw), &m))
	return m
}

// scripted replays responses and records the requests it saw.
type scripted struct {
	responses []anthropic.Message
	requests  []anthropic.MessageNewParams
}

func (s *scripted) send(_ context.Context, p anthropic.MessageNewParams) (anthropic.Message, error) {
	s.requests = append(s.requests, p)
	if len(s.responses) == 0 {
		return anthropic.Message{}, errors.New("script exhausted")
	}
	m := s.responses[0]
	s.responses = s.responses[1:]
	return m, nil
}

func newExecutor(t *testing.T, s *scripted, opts ...Option[request, *answer]) *executor[request, *answer] {
	t.Helper()
	i, err := New(anthropic.NewClient(), prompt, opts...)
	require.NoError(t, err)
	e := i.(*executor[request, *answer])
	e.send = s.send
	return e
}

func readTool(calls *[]string) claudetool.Metadata[*answer] {
	return claudetool.Metadata[*answer]{
		Definition: anthropic.ToolParam{Name: "read_file"},
		Handler: func(_ context.Context, block anthropic.ToolUseBlock, _ *agenttrace.Trace[*answer], _ **answer) map[string]any {
			*calls = append(*calls, string(block.Input))
			return map[string]any{"content": "# Demo"}
		},
	}
}

func TestExecuteToolLoop(t *testing.T) {
	s := &scripted{responses: []anthropic.Message{
		message(t, `[{"type":"text","text":"Let me look."},{"type":"tool_use","id":"toolu_1","name":"read_file","input":{"path":"README.md"}}]`),
		message(t, "[{\"type\":\"text\",\"text\":\"```json\\n{\\\"summary\\\":\\\"read it\\\"}\\n```\"}]"),
	}}
	e := newExecutor(t, s)

	var calls []string
	got, err := e.Execute(context.Background(), request{Task: "read <README>"}, map[string]claudetool.Metadata[*answer]{"read_file": readTool(&calls)})
	require.NoError(t, err)

	if diff := cmp.Diff(&answer{Summary: "read it"}, got); diff != "" {
		t.Errorf("Execute() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{`{"path":"README.md"}`}, calls); diff != "" {
		t.Errorf("tool calls mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, s.requests, 2)
	first := s.requests[0].Messages[0].Content[0].OfText.Text
	if first != "Do this: <value>read &lt;README&gt;</value>" {
		t.Errorf("prompt = %q", first)
	}
	second := s.requests[1].Messages
	require.Len(t, second, 3)
	res := second[2].Content[0].OfToolResult
	require.NotNil(t, res, "third message is not a tool result")
	if res.ToolUseID != "toolu_1" || res.Content[0].OfText.Text != `{"content":"# Demo"}` {
		t.Errorf("tool result = %+v", res)
	}
}

func TestExecuteSubmitTool(t *testing.T) {
	s := &scripted{responses: []anthropic.Message{
		message(t, `[{"type":"tool_use","id":"toolu_1","name":"finish","input":{}}]`),
	}}
	submit := claudetool.Metadata[*answer]{
		Definition: anthropic.ToolParam{Name: "finish"},
		Handler: func(_ context.Context, _ anthropic.ToolUseBlock, _ *agenttrace.Trace[*answer], result **answer) map[string]any {
			*result = &answer{Summary: "submitted"}
			return map[string]any{"success": true}
		},
	}
	e := newExecutor(t, s, WithSubmitTool[request](submit))

	got, err := e.Execute(context.Background(), request{Task: "x"}, nil)
	require.NoError(t, err)
	if got == nil || got.Summary != "submitted" {
		t.Errorf("Execute() = %+v", got)
	}
	if n := len(s.requests[0].Tools); n != 1 {
		t.Errorf("tools sent = %d, want 1", n)
	}
}

func TestExecuteUnknownTool(t *testing.T) {
	s := &scripted{responses: []anthropic.Message{
		message(t, `[{"type":"tool_use","id":"toolu_1","name":"rm_rf","input":{}}]`),
		message(t, `[{"type":"text","text":"gave up"}]`),
	}}
	e := newExecutor(t, s, WithTextResult[request](func(text string) (*answer, error) {
		return &answer{Summary: text}, nil
	}))

	got, err := e.Execute(context.Background(), request{Task: "x"}, nil)
	require.NoError(t, err)
	if got.Summary != "gave up" {
		t.Errorf("Summary = %q", got.Summary)
	}
	res := s.requests[1].Messages[2].Content[0].OfToolResult
	if !res.IsError.Value || !strings.Contains(res.Content[0].OfText.Text, "unknown tool") {
		t.Errorf("tool result = %+v", res)
	}
}

func TestExecuteMaxTurns(t *testing.T) {
	loop := `[{"type":"tool_use","id":"toolu_1","name":"read_file","input":{}}]`
	s := &scripted{responses: []anthropic.Message{message(t, loop), message(t, loop)}}
	e := newExecutor(t, s, WithMaxTurns[request, *answer](2))

	var calls []string
	_, err := e.Execute(context.Background(), request{Task: "x"}, map[string]claudetool.Metadata[*answer]{"read_file": readTool(&calls)})
	if err == nil || !strings.Contains(err.Error(), "exceeded 2 turns") {
		t.Errorf("Execute() = %v, want turn limit error", err)
	}
}

func TestExecuteEmptyResponse(t *testing.T) {
	e := newExecutor(t, &scripted{responses: []anthropic.Message{message(t, `[]`)}})
	if _, err := e.Execute(context.Background(), request{Task: "x"}, nil); err == nil {
		t.Error("Execute() = nil, want error for empty response")
	}
}

func TestOptions(t *testing.T) {
	tests := []struct {
		name string
		opt  Option[request, *answer]
	}{
		{"gemini model", WithModel[request, *answer]("gemini-2.5-flash")},
		{"zero tokens", WithMaxTokens[request, *answer](0)},
		{"hot", WithTemperature[request, *answer](1.5)},
		{"small thinking", WithThinking[request, *answer](100)},
		{"nil system", WithSystemInstructions[request, *answer](nil)},
		{"zero turns", WithMaxTurns[request, *answer](0)},
		{"empty submit", WithSubmitTool[request](claudetool.Metadata[*answer]{})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(anthropic.NewClient(), prompt, tt.opt); err == nil {
				t.Error("New() = nil, want error")
			}
		})
	}

	if _, err := New[request, *answer](anthropic.NewClient(), nil); err == nil {
		t.Error("New(nil prompt) = nil, want error")
	}
}

func TestIsRetryable(t *testing.T) {
	for code, want := range map[int]bool{429: true, 529: true, 503: true, 504: true, 400: false, 500: false} {
		if got := isRetryable(&anthropic.Error{StatusCode: code}); got != want {
			t.Errorf("isRetryable(%d) = %v, want %v", code, got, want)
		}
	}
	if isRetryable(errors.New("boom")) {
		t.Error("isRetryable(plain error) = true")
	}
}

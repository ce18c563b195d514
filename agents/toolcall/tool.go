/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package toolcall

import (
	"context"
	"fmt"
	"maps"

	"chainguard.dev/sandboxagent/agents/agenttrace"
	"chainguard.dev/sandboxagent/agents/toolcall/params"
	"github.com/chainguard-dev/clog"
)

// ToolCall is a provider-independent tool invocation.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// Definition describes a tool to the model.
type Definition struct {
	Name        string
	Description string
	Parameters  []Parameter
}

// Parameter describes one argument. Type is a JSON schema scalar type:
// "string", "integer", "number" or "boolean".
type Parameter struct {
	Name        string
	Type        string
	Description string
	Required    bool

	// Schema, when set, is the complete JSON schema of an object or array
	// argument and takes precedence over Type.
	Schema map[string]any
}

// JSONSchema returns the JSON schema of p.
func (p Parameter) JSONSchema() map[string]any {
	if p.Schema != nil {
		s := maps.Clone(p.Schema)
		if p.Description != "" {
			s["description"] = p.Description
		}
		return s
	}
	return map[string]any{"type": p.Type, "description": p.Description}
}

// Handler runs a tool call and returns the response shown to the model.
// Failures are reported as an "error" key, never as a Go error. A handler
// that sets *result to a non-zero value ends the conversation.
type Handler[Resp any] func(ctx context.Context, call ToolCall, trace *agenttrace.Trace[Resp], result *Resp) map[string]any

// Tool pairs a definition with its handler.
type Tool[Resp any] struct {
	Def     Definition
	Handler Handler[Resp]
}

// Param extracts a required argument. On failure the call is recorded on
// trace as a bad tool call and the returned map is the error response.
func Param[T, Resp any](call ToolCall, trace *agenttrace.Trace[Resp], name string) (T, map[string]any) {
	v, err := params.Extract[T](call.Args, name)
	if err != nil {
		trace.BadToolCall(call.ID, call.Name, call.Args, fmt.Errorf("missing %s parameter", name))
		return v, params.Error("%s", err)
	}
	return v, nil
}

// OptionalParam extracts an optional argument, returning def when absent.
func OptionalParam[T any](call ToolCall, name string, def T) (T, map[string]any) {
	v, err := params.ExtractOptional(call.Args, name, def)
	if err != nil {
		return v, params.Error("%s", err)
	}
	return v, nil
}

// reasoningParam is accepted by every tool so the model can explain itself.
var reasoningParam = Parameter{
	Name:        "reasoning",
	Type:        "string",
	Description: "Briefly explain why you are making this call.",
}

// logReasoning logs the optional reasoning argument and returns the logger.
func logReasoning(ctx context.Context, call ToolCall) *clog.Logger {
	log := clog.FromContext(ctx).With("tool", call.Name)
	if r, _ := params.ExtractOptional(call.Args, "reasoning", ""); r != "" {
		log = log.With("reasoning", r)
	}
	return log
}

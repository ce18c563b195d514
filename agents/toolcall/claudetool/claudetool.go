/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package claudetool adapts toolcall tools to the Anthropic Messages API.
package claudetool

import (
	"context"
	"encoding/json"
	"maps"

	"chainguard.dev/sandboxagent/agents/agenttrace"
	"chainguard.dev/sandboxagent/agents/toolcall"
	"chainguard.dev/sandboxagent/agents/toolcall/params"
	"github.com/anthropics/anthropic-sdk-go"
)

// Metadata is a tool as the Claude executor consumes it.
type Metadata[Response any] struct {
	Definition anthropic.ToolParam

	// Handler runs one tool_use block. Setting *result to a non-zero value
	// ends the conversation with that response.
	Handler func(ctx context.Context, block anthropic.ToolUseBlock, trace *agenttrace.Trace[Response], result *Response) map[string]any
}

// FromTool converts a provider-independent tool.
func FromTool[Response any](t toolcall.Tool[Response]) Metadata[Response] {
	props := make(map[string]any, len(t.Def.Parameters))
	var required []string
	for _, p := range t.Def.Parameters {
		props[p.Name] = p.JSONSchema()
		if p.Required {
			required = append(required, p.Name)
		}
	}

	return Metadata[Response]{
		Definition: anthropic.ToolParam{
			Name:        t.Def.Name,
			Description: anthropic.String(t.Def.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Type:       "object",
				Properties: props,
				Required:   required,
			},
		},
		Handler: func(ctx context.Context, block anthropic.ToolUseBlock, trace *agenttrace.Trace[Response], result *Response) map[string]any {
			p, errResp := NewParams(block)
			if errResp != nil {
				trace.BadToolCall(block.ID, block.Name, nil, params.ErrMalformedInput)
				return errResp
			}
			return t.Handler(ctx, toolcall.ToolCall{ID: block.ID, Name: block.Name, Args: p.RawInputs()}, trace, result)
		},
	}
}

// FromTools converts every tool in ts.
func FromTools[Response any](ts map[string]toolcall.Tool[Response]) map[string]Metadata[Response] {
	out := make(map[string]Metadata[Response], len(ts))
	for name, t := range ts {
		out[name] = FromTool(t)
	}
	return out
}

// Params holds the decoded input of a tool_use block.
type Params struct {
	args map[string]any
}

// NewParams decodes block.Input. On failure the second result is the error
// response to return to the model.
func NewParams(block anthropic.ToolUseBlock) (*Params, map[string]any) {
	args := map[string]any{}
	if len(block.Input) > 0 {
		if err := json.Unmarshal(block.Input, &args); err != nil {
			return nil, params.Error("Failed to parse tool input: %v", err)
		}
	}
	return &Params{args: args}, nil
}

// Get returns the raw value of name.
func (p *Params) Get(name string) (any, bool) {
	v, ok := p.args[name]
	return v, ok
}

// RawInputs returns a copy of the decoded arguments.
func (p *Params) RawInputs() map[string]any {
	return maps.Clone(p.args)
}

// Param extracts a required argument.
func Param[T any](p *Params, name string) (T, map[string]any) {
	v, err := params.Extract[T](p.args, name)
	if err != nil {
		return v, params.Error("%s", err)
	}
	return v, nil
}

// OptionalParam extracts an optional argument, returning def when absent.
func OptionalParam[T any](p *Params, name string, def T) (T, map[string]any) {
	v, err := params.ExtractOptional(p.args, name, def)
	if err != nil {
		return v, params.Error("%s", err)
	}
	return v, nil
}

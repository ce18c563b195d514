/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package googletool adapts toolcall tools to Gemini function calling.
package googletool

import (
	"context"
	"fmt"

	"chainguard.dev/sandboxagent/agents/agenttrace"
	"chainguard.dev/sandboxagent/agents/toolcall"
	"chainguard.dev/sandboxagent/agents/toolcall/params"
	"google.golang.org/genai"
)

// Metadata is a tool as the Gemini executor consumes it.
type Metadata[Response any] struct {
	Definition *genai.FunctionDeclaration

	// Handler runs one function call. Setting *result to a non-zero value
	// ends the conversation with that response.
	Handler func(ctx context.Context, call *genai.FunctionCall, trace *agenttrace.Trace[Response], result *Response) *genai.FunctionResponse
}

var schemaTypes = map[string]genai.Type{
	"string":  genai.TypeString,
	"integer": genai.TypeInteger,
	"number":  genai.TypeNumber,
	"boolean": genai.TypeBoolean,
	"object":  genai.TypeObject,
	"array":   genai.TypeArray,
}

// Schema converts a JSON schema in map form into Gemini's schema subset.
// Keywords Gemini does not support are dropped.
func Schema(js map[string]any) *genai.Schema {
	s := &genai.Schema{}
	switch typ := js["type"].(type) {
	case string:
		s.Type = schemaTypes[typ]
	case []any:
		// ["string", "null"] style unions.
		for _, v := range typ {
			if name, _ := v.(string); name == "null" {
				s.Nullable = boolPtr(true)
			} else if t, ok := schemaTypes[name]; ok {
				s.Type = t
			}
		}
	}
	if s.Type == "" {
		s.Type = genai.TypeString
	}
	s.Description, _ = js["description"].(string)

	if props, ok := js["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, v := range props {
			if m, ok := v.(map[string]any); ok {
				s.Properties[name] = Schema(m)
			}
		}
	}
	if items, ok := js["items"].(map[string]any); ok {
		s.Items = Schema(items)
	}
	for _, v := range asSlice(js["required"]) {
		if name, ok := v.(string); ok {
			s.Required = append(s.Required, name)
		}
	}
	for _, v := range asSlice(js["enum"]) {
		s.Enum = append(s.Enum, fmt.Sprint(v))
	}
	return s
}

func asSlice(v any) []any {
	switch vs := v.(type) {
	case []any:
		return vs
	case []string:
		out := make([]any, len(vs))
		for i, s := range vs {
			out[i] = s
		}
		return out
	}
	return nil
}

// FromTool converts a provider-independent tool.
func FromTool[Response any](t toolcall.Tool[Response]) Metadata[Response] {
	schema := &genai.Schema{Type: genai.TypeObject, Properties: map[string]*genai.Schema{}}
	for _, p := range t.Def.Parameters {
		schema.Properties[p.Name] = Schema(p.JSONSchema())
		if p.Required {
			schema.Required = append(schema.Required, p.Name)
		}
	}

	return Metadata[Response]{
		Definition: &genai.FunctionDeclaration{
			Name:        t.Def.Name,
			Description: t.Def.Description,
			Parameters:  schema,
		},
		Handler: func(ctx context.Context, call *genai.FunctionCall, trace *agenttrace.Trace[Response], result *Response) *genai.FunctionResponse {
			resp := t.Handler(ctx, toolcall.ToolCall{ID: call.ID, Name: call.Name, Args: call.Args}, trace, result)
			return &genai.FunctionResponse{ID: call.ID, Name: call.Name, Response: resp}
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

// Param extracts a required argument. On failure the second result is the
// response to send back to the model.
func Param[T any](call *genai.FunctionCall, name string) (T, *genai.FunctionResponse) {
	v, err := params.Extract[T](call.Args, name)
	if err != nil {
		return v, Error(call, "%s", err)
	}
	return v, nil
}

// OptionalParam extracts an optional argument, returning def when absent.
func OptionalParam[T any](call *genai.FunctionCall, name string, def T) (T, *genai.FunctionResponse) {
	v, err := params.ExtractOptional(call.Args, name, def)
	if err != nil {
		return v, Error(call, "%s", err)
	}
	return v, nil
}

// Error returns a function response carrying an error message.
func Error(call *genai.FunctionCall, format string, args ...any) *genai.FunctionResponse {
	return &genai.FunctionResponse{
		ID:       call.ID,
		Name:     call.Name,
		Response: map[string]any{"error": fmt.Sprintf(format, args...)},
	}
}

func boolPtr(b bool) *bool { return &b }

/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package submitresult provides the tool through which a model hands back
// its final structured answer.
//
// The payload schema is reflected from the response type, so models see
// the same field names and required markers the Go type declares:
//
//	type Result struct {
//		Summary string `json:"summary" jsonschema:"required,description=What changed"`
//	}
//
//	tool, err := submitresult.Tool[*Result](submitresult.Options{})
//
// Calling the tool stores the decoded payload in the executor's result,
// which ends the conversation.
package submitresult

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"chainguard.dev/sandboxagent/agents/agenttrace"
	"chainguard.dev/sandboxagent/agents/schema"
	"chainguard.dev/sandboxagent/agents/toolcall"
	"chainguard.dev/sandboxagent/agents/toolcall/params"
	"github.com/chainguard-dev/clog"
)

// Options customizes the tool. Zero fields take defaults.
type Options struct {
	ToolName           string
	Description        string
	SuccessMessage     string
	PayloadFieldName   string
	PayloadDescription string
	Generator          *schema.Generator
}

func (o Options) withDefaults() Options {
	if o.ToolName == "" {
		o.ToolName = "submit_result"
	}
	if o.Description == "" {
		o.Description = "Submit the final result once the task is complete. This ends the session."
	}
	if o.SuccessMessage == "" {
		o.SuccessMessage = "Result submitted successfully."
	}
	if o.PayloadFieldName == "" {
		o.PayloadFieldName = "result"
	}
	if o.PayloadDescription == "" {
		o.PayloadDescription = "Structured result payload."
	}
	if o.Generator == nil {
		o.Generator = schema.NewGenerator()
	}
	return o
}

// Tool builds the submit tool for Response.
func Tool[Response any](opts Options) (toolcall.Tool[Response], error) {
	opts = opts.withDefaults()
	if opts.PayloadFieldName == "reasoning" {
		return toolcall.Tool[Response]{}, errors.New("payload field name collides with reasoning")
	}

	typ := reflect.TypeFor[Response]()
	for typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	payload, err := schema.ToMap(opts.Generator.Reflect(reflect.New(typ).Interface()))
	if err != nil {
		return toolcall.Tool[Response]{}, fmt.Errorf("reflecting %s: %w", typ, err)
	}

	return toolcall.Tool[Response]{
		Def: toolcall.Definition{
			Name:        opts.ToolName,
			Description: opts.Description,
			Parameters: []toolcall.Parameter{
				{
					Name:        "reasoning",
					Type:        "string",
					Description: "Explain why you are confident the result is complete and accurate.",
					Required:    true,
				},
				{
					Name:        opts.PayloadFieldName,
					Description: opts.PayloadDescription,
					Required:    true,
					Schema:      payload,
				},
			},
		},
		Handler: func(ctx context.Context, call toolcall.ToolCall, trace *agenttrace.Trace[Response], result *Response) map[string]any {
			reasoning, errResp := toolcall.Param[string](call, trace, "reasoning")
			if errResp != nil {
				return errResp
			}
			raw, errResp := toolcall.Param[map[string]any](call, trace, opts.PayloadFieldName)
			if errResp != nil {
				return errResp
			}
			clog.FromContext(ctx).With("reasoning", reasoning).Info("Submitting result")

			tc := trace.StartToolCall(call.ID, call.Name, call.Args)
			parsed, err := decode[Response](raw)
			if err != nil {
				tc.Complete(nil, err)
				return params.Error("invalid %s: %v", opts.PayloadFieldName, err)
			}
			*result = parsed

			resp := map[string]any{"success": true, "message": opts.SuccessMessage}
			tc.Complete(resp, nil)
			return resp
		},
	}, nil
}

// decode round-trips raw through JSON. Pointer response types are
// allocated by the decoder.
func decode[Response any](raw map[string]any) (Response, error) {
	var out Response
	b, err := json.Marshal(raw)
	if err != nil {
		return out, err
	}
	err = json.Unmarshal(b, &out)
	return out, err
}

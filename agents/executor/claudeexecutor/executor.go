/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package claudeexecutor runs tool-using conversations with Claude.
//
// The executor streams each model turn, dispatches tool_use blocks to the
// registered handlers and feeds their results back until the model stops
// calling tools or a handler sets the final result:
//
//	client := anthropic.NewClient(vertex.WithGoogleAuth(ctx, region, projectID))
//	exec, err := claudeexecutor.New[*Request, *Result](client, prompt,
//		claudeexecutor.WithModel[*Request, *Result]("claude-sonnet-4@20250514"))
//	res, err := exec.Execute(ctx, req, claudetool.FromTools(tools))
package claudeexecutor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"chainguard.dev/sandboxagent/agents/agenttrace"
	"chainguard.dev/sandboxagent/agents/executor/retry"
	"chainguard.dev/sandboxagent/agents/metrics"
	"chainguard.dev/sandboxagent/agents/promptbuilder"
	"chainguard.dev/sandboxagent/agents/result"
	"chainguard.dev/sandboxagent/agents/toolcall/claudetool"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/chainguard-dev/clog"
)

// Interface runs a conversation for one request.
type Interface[Request promptbuilder.Bindable, Response any] interface {
	Execute(ctx context.Context, request Request, tools map[string]claudetool.Metadata[Response]) (Response, error)
}

type sender func(ctx context.Context, params anthropic.MessageNewParams) (anthropic.Message, error)

type executor[Request promptbuilder.Bindable, Response any] struct {
	client      anthropic.Client
	model       string
	prompt      *promptbuilder.Prompt
	system      *promptbuilder.Prompt
	maxTokens   int64
	temperature float64
	thinking    int64 // 0 disables extended thinking
	maxTurns    int
	submit      *claudetool.Metadata[Response]
	textResult  func(string) (Response, error)
	metrics     *metrics.GenAI
	retry       retry.Config
	send        sender
}

// New returns an executor for prompt. The request's Bind fills in the
// prompt's placeholders on every Execute.
func New[Request promptbuilder.Bindable, Response any](client anthropic.Client, prompt *promptbuilder.Prompt, opts ...Option[Request, Response]) (Interface[Request, Response], error) {
	if prompt == nil {
		return nil, errors.New("prompt cannot be nil")
	}
	e := &executor[Request, Response]{
		client:      client,
		model:       "claude-sonnet-4@20250514",
		prompt:      prompt,
		maxTokens:   8192,
		temperature: 0.1,
		maxTurns:    50,
		metrics:     metrics.NewGenAI(metrics.MeterName),
		retry:       retry.Default(),
	}
	e.send = e.stream
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, fmt.Errorf("applying option: %w", err)
		}
	}
	return e, nil
}

func (e *executor[Request, Response]) stream(ctx context.Context, params anthropic.MessageNewParams) (anthropic.Message, error) {
	s := e.client.Messages.NewStreaming(ctx, params)
	defer s.Close()

	var msg anthropic.Message
	for s.Next() {
		if err := msg.Accumulate(s.Current()); err != nil {
			return msg, fmt.Errorf("accumulating stream event: %w", err)
		}
	}
	return msg, s.Err()
}

func (e *executor[Request, Response]) params(prompt string, tools map[string]claudetool.Metadata[Response]) (anthropic.MessageNewParams, error) {
	p := anthropic.MessageNewParams{
		Model:     anthropic.Model(e.model),
		MaxTokens: e.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
		Temperature: anthropic.Float(e.temperature),
	}
	for _, md := range tools {
		def := md.Definition
		p.Tools = append(p.Tools, anthropic.ToolUnionParam{OfTool: &def})
	}
	if e.system != nil {
		sys, err := e.system.Build()
		if err != nil {
			return p, fmt.Errorf("building system prompt: %w", err)
		}
		p.System = []anthropic.TextBlockParam{{Text: sys}}
	}
	if e.thinking > 0 {
		// Extended thinking requires temperature 1.
		p.Temperature = anthropic.Float(1)
		p.Thinking = anthropic.ThinkingConfigParamUnion{
			OfEnabled: &anthropic.ThinkingConfigEnabledParam{BudgetTokens: e.thinking},
		}
	}
	return p, nil
}

func (e *executor[Request, Response]) Execute(ctx context.Context, request Request, tools map[string]claudetool.Metadata[Response]) (response Response, err error) {
	log := clog.FromContext(ctx).With("model", e.model)

	bound, err := request.Bind(e.prompt)
	if err != nil {
		return response, fmt.Errorf("binding request: %w", err)
	}
	prompt, err := bound.Build()
	if err != nil {
		return response, fmt.Errorf("building prompt: %w", err)
	}

	trace := agenttrace.StartTrace[Response](ctx, prompt)
	defer func() { trace.Complete(response, err) }()

	if e.submit != nil {
		if _, ok := tools[e.submit.Definition.Name]; !ok {
			merged := make(map[string]claudetool.Metadata[Response], len(tools)+1)
			for k, v := range tools {
				merged[k] = v
			}
			merged[e.submit.Definition.Name] = *e.submit
			tools = merged
		}
	}

	params, err := e.params(prompt, tools)
	if err != nil {
		return response, err
	}
	log.With("prompt_length", len(prompt)).With("tools", len(tools)).Info("Starting Claude conversation")

	var final Response
	for turn := range e.maxTurns {
		msg, err := retry.Do(ctx, e.retry, "claude_message", isRetryable, func() (anthropic.Message, error) {
			return e.send(ctx, params)
		})
		if err != nil {
			return response, fmt.Errorf("streaming Claude response: %w", err)
		}
		if msg.Usage.InputTokens > 0 || msg.Usage.OutputTokens > 0 {
			e.metrics.RecordTokens(ctx, e.model, msg.Usage.InputTokens, msg.Usage.OutputTokens)
			trace.RecordTokenUsage(e.model, msg.Usage.InputTokens, msg.Usage.OutputTokens)
		}

		var (
			text  []string
			calls []anthropic.ToolUseBlock
		)
		for _, block := range msg.Content {
			switch block.Type {
			case "text":
				text = append(text, block.Text)
			case "tool_use":
				calls = append(calls, anthropic.ToolUseBlock{ID: block.ID, Name: block.Name, Input: block.Input})
			case "thinking":
				trace.AddReasoning(block.Thinking)
			}
		}

		if len(calls) == 0 {
			log.With("turns", turn+1).Info("Claude conversation finished")
			return e.finish(strings.Join(text, "\n"))
		}

		params.Messages = append(params.Messages, msg.ToParam())
		results := make([]anthropic.ContentBlockParamUnion, 0, len(calls))
		for _, call := range calls {
			block, err := e.runTool(ctx, call, tools, trace, &final)
			if err != nil {
				return response, err
			}
			if !reflect.ValueOf(&final).Elem().IsZero() {
				log.With("tool", call.Name).Info("Tool submitted the final result")
				return final, nil
			}
			results = append(results, block)
		}
		params.Messages = append(params.Messages, anthropic.MessageParam{
			Role:    anthropic.MessageParamRoleUser,
			Content: results,
		})
	}
	return response, fmt.Errorf("conversation exceeded %d turns", e.maxTurns)
}

func (e *executor[Request, Response]) runTool(ctx context.Context, call anthropic.ToolUseBlock, tools map[string]claudetool.Metadata[Response], trace *agenttrace.Trace[Response], final *Response) (anthropic.ContentBlockParamUnion, error) {
	clog.FromContext(ctx).With("tool", call.Name).With("id", call.ID).Info("Executing tool call")
	e.metrics.RecordToolCall(ctx, e.model, call.Name)

	start := time.Now()
	var out map[string]any
	if md, ok := tools[call.Name]; ok {
		out = md.Handler(ctx, call, trace, final)
	} else {
		err := fmt.Errorf("unknown tool: %q", call.Name)
		trace.BadToolCall(call.ID, call.Name, map[string]any{"input": string(call.Input)}, err)
		out = map[string]any{"error": err.Error()}
	}
	_, failed := out["error"]
	e.metrics.RecordToolResult(ctx, call.Name, time.Since(start), failed)

	b, err := json.Marshal(out)
	if err != nil {
		return anthropic.ContentBlockParamUnion{}, fmt.Errorf("encoding %s result: %w", call.Name, err)
	}
	return anthropic.NewToolResultBlock(call.ID, string(b), failed), nil
}

// finish turns the model's closing text into a Response.
func (e *executor[Request, Response]) finish(text string) (Response, error) {
	if e.textResult != nil {
		return e.textResult(text)
	}
	if strings.TrimSpace(text) == "" {
		var zero Response
		return zero, errors.New("no content in Claude's response")
	}
	resp, err := result.Extract[Response](text)
	if err != nil {
		return resp, fmt.Errorf("parsing response: %w", err)
	}
	return resp, nil
}

// isRetryable matches rate limiting, overload and gateway errors.
func isRetryable(err error) bool {
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.StatusCode {
	case 429, 503, 504, 529:
		return true
	}
	return false
}

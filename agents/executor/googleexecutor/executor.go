/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package googleexecutor runs tool-using conversations with Gemini.
package googleexecutor

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"time"

	"chainguard.dev/sandboxagent/agents/agenttrace"
	"chainguard.dev/sandboxagent/agents/executor/retry"
	"chainguard.dev/sandboxagent/agents/metrics"
	"chainguard.dev/sandboxagent/agents/promptbuilder"
	"chainguard.dev/sandboxagent/agents/result"
	"chainguard.dev/sandboxagent/agents/toolcall/googletool"
	"github.com/chainguard-dev/clog"
	"google.golang.org/genai"
)

// Interface runs a conversation for one request.
type Interface[Request promptbuilder.Bindable, Response any] interface {
	Execute(ctx context.Context, request Request, tools map[string]googletool.Metadata[Response]) (Response, error)
}

type generator func(ctx context.Context, history []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)

type executor[Request promptbuilder.Bindable, Response any] struct {
	client          *genai.Client
	model           string
	prompt          *promptbuilder.Prompt
	system          *promptbuilder.Prompt
	temperature     float32
	maxOutputTokens int32
	thinking        *int32
	maxTurns        int
	submit          *googletool.Metadata[Response]
	textResult      func(string) (Response, error)
	labels          map[string]string
	metrics         *metrics.GenAI
	retry           retry.Config
	generate        generator
}

// New returns an executor for prompt.
func New[Request promptbuilder.Bindable, Response any](client *genai.Client, prompt *promptbuilder.Prompt, opts ...Option[Request, Response]) (Interface[Request, Response], error) {
	if client == nil {
		return nil, errors.New("client cannot be nil")
	}
	if prompt == nil {
		return nil, errors.New("prompt cannot be nil")
	}
	e := &executor[Request, Response]{
		client:          client,
		model:           "gemini-2.5-flash",
		prompt:          prompt,
		temperature:     0.1,
		maxOutputTokens: 8192,
		maxTurns:        50,
		metrics:         metrics.NewGenAI(metrics.MeterName),
		retry:           retry.Default(),
	}
	e.generate = func(ctx context.Context, history []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		return e.client.Models.GenerateContent(ctx, e.model, history, config)
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, fmt.Errorf("applying option: %w", err)
		}
	}
	return e, nil
}

func (e *executor[Request, Response]) config(tools map[string]googletool.Metadata[Response]) (*genai.GenerateContentConfig, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature:     &e.temperature,
		MaxOutputTokens: e.maxOutputTokens,
		Labels:          e.labels,
	}
	if e.system != nil {
		sys, err := e.system.Build()
		if err != nil {
			return nil, fmt.Errorf("building system prompt: %w", err)
		}
		cfg.SystemInstruction = genai.NewContentFromText(sys, genai.RoleUser)
	}
	if len(tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(tools))
		for _, md := range tools {
			decls = append(decls, md.Definition)
		}
		slices.SortFunc(decls, func(a, b *genai.FunctionDeclaration) int { return strings.Compare(a.Name, b.Name) })
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	if e.thinking != nil {
		cfg.ThinkingConfig = &genai.ThinkingConfig{IncludeThoughts: true, ThinkingBudget: e.thinking}
	}
	return cfg, nil
}

func (e *executor[Request, Response]) Execute(ctx context.Context, request Request, tools map[string]googletool.Metadata[Response]) (response Response, err error) {
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
			merged := make(map[string]googletool.Metadata[Response], len(tools)+1)
			for k, v := range tools {
				merged[k] = v
			}
			merged[e.submit.Definition.Name] = *e.submit
			tools = merged
		}
	}

	cfg, err := e.config(tools)
	if err != nil {
		return response, err
	}
	history := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	log.With("prompt_length", len(prompt)).With("tools", len(tools)).Info("Starting Gemini conversation")

	var final Response
	for turn := range e.maxTurns {
		resp, err := retry.Do(ctx, e.retry, "gemini_generate", isRetryable, func() (*genai.GenerateContentResponse, error) {
			return e.generate(ctx, history, cfg)
		})
		if err != nil {
			return response, fmt.Errorf("generating Gemini response: %w", err)
		}
		if u := resp.UsageMetadata; u != nil {
			e.metrics.RecordTokens(ctx, e.model, int64(u.PromptTokenCount), int64(u.CandidatesTokenCount))
			trace.RecordTokenUsage(e.model, int64(u.PromptTokenCount), int64(u.CandidatesTokenCount))
		}
		if len(resp.Candidates) == 0 {
			return response, errors.New("no candidates in Gemini response")
		}
		candidate := resp.Candidates[0]

		if candidate.FinishReason == genai.FinishReasonMalformedFunctionCall {
			log.With("finish_message", candidate.FinishMessage).Warn("Malformed function call, asking the model to retry")
			names := make([]string, 0, len(tools))
			for name := range tools {
				names = append(names, name)
			}
			slices.Sort(names)
			history = append(history, genai.NewContentFromText(
				fmt.Sprintf("The function call was malformed. Please try again using one of: %s", strings.Join(names, ", ")),
				genai.RoleUser))
			continue
		}
		if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
			return response, errors.New("no content in Gemini response")
		}

		var (
			text  []string
			calls []*genai.FunctionCall
		)
		for _, part := range candidate.Content.Parts {
			switch {
			case part.Thought:
				trace.AddReasoning(part.Text)
			case part.FunctionCall != nil:
				calls = append(calls, part.FunctionCall)
			case part.Text != "":
				text = append(text, part.Text)
			}
		}

		if len(calls) == 0 {
			log.With("turns", turn+1).Info("Gemini conversation finished")
			return e.finish(strings.Join(text, "\n"))
		}

		history = append(history, candidate.Content)
		parts := make([]*genai.Part, 0, len(calls))
		for _, call := range calls {
			parts = append(parts, &genai.Part{FunctionResponse: e.runTool(ctx, call, tools, trace, &final)})
			if !reflect.ValueOf(&final).Elem().IsZero() {
				log.With("tool", call.Name).Info("Tool submitted the final result")
				return final, nil
			}
		}
		history = append(history, &genai.Content{Role: "user", Parts: parts})
	}
	return response, fmt.Errorf("conversation exceeded %d turns", e.maxTurns)
}

func (e *executor[Request, Response]) runTool(ctx context.Context, call *genai.FunctionCall, tools map[string]googletool.Metadata[Response], trace *agenttrace.Trace[Response], final *Response) *genai.FunctionResponse {
	clog.FromContext(ctx).With("tool", call.Name).With("id", call.ID).Info("Executing tool call")
	e.metrics.RecordToolCall(ctx, e.model, call.Name)

	start := time.Now()
	var out *genai.FunctionResponse
	if md, ok := tools[call.Name]; ok {
		out = md.Handler(ctx, call, trace, final)
	} else {
		trace.BadToolCall(call.ID, call.Name, call.Args, fmt.Errorf("unknown function: %q", call.Name))
		out = googletool.Error(call, "Unknown function: %s", call.Name)
	}
	_, failed := out.Response["error"]
	e.metrics.RecordToolResult(ctx, call.Name, time.Since(start), failed)
	return out
}

func (e *executor[Request, Response]) finish(text string) (Response, error) {
	if e.textResult != nil {
		return e.textResult(text)
	}
	if strings.TrimSpace(text) == "" {
		var zero Response
		return zero, errors.New("no text in Gemini response")
	}
	resp, err := result.Extract[Response](text)
	if err != nil {
		return resp, fmt.Errorf("parsing response: %w", err)
	}
	return resp, nil
}

// isRetryable matches quota exhaustion and transient server errors.
func isRetryable(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 429, 500, 503, 504:
			return true
		}
		return false
	}
	msg := err.Error()
	for _, s := range []string{"RESOURCE_EXHAUSTED", "Resource exhausted", "quota exceeded", "rate limit", "Overloaded"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package codingagent

import (
	"context"
	"fmt"

	"chainguard.dev/sandboxagent/agents/agenttrace"
	"chainguard.dev/sandboxagent/agents/executor/claudeexecutor"
	"chainguard.dev/sandboxagent/agents/executor/googleexecutor"
	"chainguard.dev/sandboxagent/agents/submitresult"
	"chainguard.dev/sandboxagent/agents/toolcall"
	"chainguard.dev/sandboxagent/agents/toolcall/claudetool"
	"chainguard.dev/sandboxagent/agents/toolcall/googletool"
	"github.com/anthropics/anthropic-sdk-go"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/genai"
)

func enrich(ctx context.Context, base []attribute.KeyValue) []attribute.KeyValue {
	return agenttrace.GetRequestContext(ctx).EnrichAttributes(base)
}

func submitTool() (toolcall.Tool[*Result], error) {
	return submitresult.Tool[*Result](submitresult.Options{
		Description:        "Finish the session and report what was done. Call this exactly once, after all changes are made.",
		PayloadDescription: "Summary of the work.",
	})
}

type claudeExecutor struct {
	exec claudeexecutor.Interface[*Request, *Result]
}

// NewClaudeExecutor runs sessions on Claude, directly or through Vertex AI
// depending on how client was built.
func NewClaudeExecutor(client anthropic.Client, opts ...claudeexecutor.Option[*Request, *Result]) (Executor, error) {
	submit, err := submitTool()
	if err != nil {
		return nil, err
	}
	base := []claudeexecutor.Option[*Request, *Result]{
		claudeexecutor.WithSystemInstructions[*Request, *Result](systemInstructions),
		claudeexecutor.WithSubmitTool[*Request](claudetool.FromTool(submit)),
		claudeexecutor.WithTextResult[*Request](textResult),
		claudeexecutor.WithAttributeEnricher[*Request, *Result](enrich),
	}
	exec, err := claudeexecutor.New[*Request, *Result](client, taskPrompt, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("creating Claude executor: %w", err)
	}
	return &claudeExecutor{exec: exec}, nil
}

func (c *claudeExecutor) Execute(ctx context.Context, req *Request, tools map[string]toolcall.Tool[*Result]) (*Result, error) {
	return c.exec.Execute(ctx, req, claudetool.FromTools(tools))
}

type geminiExecutor struct {
	exec googleexecutor.Interface[*Request, *Result]
}

// NewGeminiExecutor runs sessions on Gemini.
func NewGeminiExecutor(client *genai.Client, opts ...googleexecutor.Option[*Request, *Result]) (Executor, error) {
	submit, err := submitTool()
	if err != nil {
		return nil, err
	}
	base := []googleexecutor.Option[*Request, *Result]{
		googleexecutor.WithSystemInstructions[*Request, *Result](systemInstructions),
		googleexecutor.WithSubmitTool[*Request](googletool.FromTool(submit)),
		googleexecutor.WithTextResult[*Request](textResult),
		googleexecutor.WithAttributeEnricher[*Request, *Result](enrich),
	}
	exec, err := googleexecutor.New[*Request, *Result](client, taskPrompt, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("creating Gemini executor: %w", err)
	}
	return &geminiExecutor{exec: exec}, nil
}

func (g *geminiExecutor) Execute(ctx context.Context, req *Request, tools map[string]toolcall.Tool[*Result]) (*Result, error) {
	return g.exec.Execute(ctx, req, googletool.FromTools(tools))
}

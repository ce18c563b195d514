/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package claudeexecutor

import (
	"errors"
	"fmt"
	"strings"

	"chainguard.dev/sandboxagent/agents/executor/retry"
	"chainguard.dev/sandboxagent/agents/metrics"
	"chainguard.dev/sandboxagent/agents/promptbuilder"
	"chainguard.dev/sandboxagent/agents/toolcall/claudetool"
)

// Option configures an executor.
type Option[Request promptbuilder.Bindable, Response any] func(*executor[Request, Response]) error

// WithModel selects a Claude model.
func WithModel[Request promptbuilder.Bindable, Response any](model string) Option[Request, Response] {
	return func(e *executor[Request, Response]) error {
		if !strings.HasPrefix(model, "claude-") {
			return fmt.Errorf("model %q is not a Claude model", model)
		}
		e.model = model
		return nil
	}
}

// WithMaxTokens bounds each response.
func WithMaxTokens[Request promptbuilder.Bindable, Response any](tokens int64) Option[Request, Response] {
	return func(e *executor[Request, Response]) error {
		if tokens <= 0 || tokens > 64000 {
			return fmt.Errorf("max tokens must be in (0, 64000], got %d", tokens)
		}
		e.maxTokens = tokens
		return nil
	}
}

// WithTemperature sets the sampling temperature in [0, 1].
func WithTemperature[Request promptbuilder.Bindable, Response any](temp float64) Option[Request, Response] {
	return func(e *executor[Request, Response]) error {
		if temp < 0 || temp > 1 {
			return fmt.Errorf("temperature must be between 0 and 1, got %g", temp)
		}
		e.temperature = temp
		return nil
	}
}

// WithSystemInstructions sets the system prompt. It must be fully bound.
func WithSystemInstructions[Request promptbuilder.Bindable, Response any](p *promptbuilder.Prompt) Option[Request, Response] {
	return func(e *executor[Request, Response]) error {
		if p == nil {
			return errors.New("system instructions cannot be nil")
		}
		e.system = p
		return nil
	}
}

// WithThinking enables extended thinking with the given token budget.
// Apply it after WithMaxTokens.
func WithThinking[Request promptbuilder.Bindable, Response any](budget int64) Option[Request, Response] {
	return func(e *executor[Request, Response]) error {
		if budget < 1024 || budget >= e.maxTokens {
			return fmt.Errorf("thinking budget must be at least 1024 and below max tokens (%d), got %d", e.maxTokens, budget)
		}
		e.thinking = budget
		return nil
	}
}

// WithMaxTurns bounds the number of model calls per Execute.
func WithMaxTurns[Request promptbuilder.Bindable, Response any](n int) Option[Request, Response] {
	return func(e *executor[Request, Response]) error {
		if n <= 0 {
			return fmt.Errorf("max turns must be positive, got %d", n)
		}
		e.maxTurns = n
		return nil
	}
}

// WithSubmitTool registers a tool that ends the conversation by setting
// the result, typically built with submitresult.
func WithSubmitTool[Request promptbuilder.Bindable, Response any](md claudetool.Metadata[Response]) Option[Request, Response] {
	return func(e *executor[Request, Response]) error {
		if md.Handler == nil || md.Definition.Name == "" {
			return errors.New("submit tool needs a name and a handler")
		}
		e.submit = &md
		return nil
	}
}

// WithTextResult converts the model's closing text into the response when
// it finishes without submitting a result. By default the text must hold
// the response as JSON.
func WithTextResult[Request promptbuilder.Bindable, Response any](fn func(text string) (Response, error)) Option[Request, Response] {
	return func(e *executor[Request, Response]) error {
		e.textResult = fn
		return nil
	}
}

// WithAttributeEnricher adds labels to every metric the executor records.
func WithAttributeEnricher[Request promptbuilder.Bindable, Response any](enricher metrics.AttributeEnricher) Option[Request, Response] {
	return func(e *executor[Request, Response]) error {
		e.metrics.SetAttributeEnricher(enricher)
		return nil
	}
}

// WithRetryConfig overrides retry behavior for rate limit and overload errors.
func WithRetryConfig[Request promptbuilder.Bindable, Response any](cfg retry.Config) Option[Request, Response] {
	return func(e *executor[Request, Response]) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		e.retry = cfg
		return nil
	}
}

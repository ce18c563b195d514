/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package googleexecutor

import (
	"errors"
	"fmt"
	"strings"

	"chainguard.dev/sandboxagent/agents/executor/retry"
	"chainguard.dev/sandboxagent/agents/metrics"
	"chainguard.dev/sandboxagent/agents/promptbuilder"
	"chainguard.dev/sandboxagent/agents/toolcall/googletool"
)

// Option configures an executor.
type Option[Request promptbuilder.Bindable, Response any] func(*executor[Request, Response]) error

// WithModel selects a Gemini model.
func WithModel[Request promptbuilder.Bindable, Response any](model string) Option[Request, Response] {
	return func(e *executor[Request, Response]) error {
		if !strings.HasPrefix(model, "gemini-") {
			return fmt.Errorf("model %q is not a Gemini model", model)
		}
		e.model = model
		return nil
	}
}

// WithTemperature sets the sampling temperature in [0, 2].
func WithTemperature[Request promptbuilder.Bindable, Response any](temp float32) Option[Request, Response] {
	return func(e *executor[Request, Response]) error {
		if temp < 0 || temp > 2 {
			return fmt.Errorf("temperature must be between 0 and 2, got %g", temp)
		}
		e.temperature = temp
		return nil
	}
}

// WithMaxOutputTokens bounds each response.
func WithMaxOutputTokens[Request promptbuilder.Bindable, Response any](tokens int32) Option[Request, Response] {
	return func(e *executor[Request, Response]) error {
		if tokens <= 0 {
			return fmt.Errorf("max output tokens must be positive, got %d", tokens)
		}
		e.maxOutputTokens = tokens
		return nil
	}
}

// WithSystemInstructions sets the system instruction. It must be fully bound.
func WithSystemInstructions[Request promptbuilder.Bindable, Response any](p *promptbuilder.Prompt) Option[Request, Response] {
	return func(e *executor[Request, Response]) error {
		if p == nil {
			return errors.New("system instructions cannot be nil")
		}
		e.system = p
		return nil
	}
}

// WithThinking enables thoughts with the given budget; -1 lets the model decide.
func WithThinking[Request promptbuilder.Bindable, Response any](budget int32) Option[Request, Response] {
	return func(e *executor[Request, Response]) error {
		if budget < -1 {
			return fmt.Errorf("thinking budget must be -1 or more, got %d", budget)
		}
		e.thinking = &budget
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
// the result.
func WithSubmitTool[Request promptbuilder.Bindable, Response any](md googletool.Metadata[Response]) Option[Request, Response] {
	return func(e *executor[Request, Response]) error {
		if md.Handler == nil || md.Definition == nil || md.Definition.Name == "" {
			return errors.New("submit tool needs a declaration and a handler")
		}
		e.submit = &md
		return nil
	}
}

// WithTextResult converts the model's closing text into the response when
// it finishes without submitting a result.
func WithTextResult[Request promptbuilder.Bindable, Response any](fn func(text string) (Response, error)) Option[Request, Response] {
	return func(e *executor[Request, Response]) error {
		e.textResult = fn
		return nil
	}
}

// WithResourceLabels attaches Vertex AI billing labels to every request.
func WithResourceLabels[Request promptbuilder.Bindable, Response any](labels map[string]string) Option[Request, Response] {
	return func(e *executor[Request, Response]) error {
		e.labels = labels
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

// WithRetryConfig overrides retry behavior for quota and transient errors.
func WithRetryConfig[Request promptbuilder.Bindable, Response any](cfg retry.Config) Option[Request, Response] {
	return func(e *executor[Request, Response]) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		e.retry = cfg
		return nil
	}
}

/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package metrics records model token usage and tool activity as
// OpenTelemetry instruments.
package metrics

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// MeterName is the meter shared by every executor; the model is a label.
const MeterName = "chainguard.dev/sandboxagent/agents"

// AttributeEnricher adds labels derived from ctx to a measurement.
type AttributeEnricher func(ctx context.Context, base []attribute.KeyValue) []attribute.KeyValue

// GenAI holds the instruments for one meter. Instruments that fail to
// register degrade to no-ops.
type GenAI struct {
	promptTokens     metric.Int64Counter
	completionTokens metric.Int64Counter
	toolCalls        metric.Int64Counter
	toolErrors       metric.Int64Counter
	toolDuration     metric.Float64Histogram
	enrich           AttributeEnricher
}

// NewGenAI registers the instruments on the global meter provider.
func NewGenAI(meterName string) *GenAI {
	return NewGenAIWithProvider(otel.GetMeterProvider(), meterName)
}

// NewGenAIWithProvider registers the instruments on mp.
func NewGenAIWithProvider(mp metric.MeterProvider, meterName string) *GenAI {
	meter := mp.Meter(meterName)
	m := &GenAI{
		promptTokens:     counter(meter, "genai.token.prompt", "Prompt tokens sent to the model", "{tokens}"),
		completionTokens: counter(meter, "genai.token.completion", "Completion tokens produced by the model", "{tokens}"),
		toolCalls:        counter(meter, "genai.tool.calls", "Tool calls requested by the model", "{calls}"),
		toolErrors:       counter(meter, "genai.tool.errors", "Tool calls that returned an error", "{calls}"),
	}
	h, err := meter.Float64Histogram("genai.tool.duration",
		metric.WithDescription("Tool call latency"),
		metric.WithUnit("s"))
	if err != nil {
		slog.Warn("Failed to create histogram, recording disabled", "name", "genai.tool.duration", "error", err)
		h = noop.Float64Histogram{}
	}
	m.toolDuration = h
	return m
}

func counter(meter metric.Meter, name, desc, unit string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
	if err != nil {
		slog.Warn("Failed to create counter, recording disabled", "name", name, "error", err)
		return noop.Int64Counter{}
	}
	return c
}

// SetAttributeEnricher installs e for all later measurements.
func (m *GenAI) SetAttributeEnricher(e AttributeEnricher) {
	m.enrich = e
}

func (m *GenAI) attrs(ctx context.Context, base ...attribute.KeyValue) metric.MeasurementOption {
	if m.enrich != nil {
		base = m.enrich(ctx, base)
	}
	return metric.WithAttributes(base...)
}

// RecordTokens records the tokens consumed by one model response.
func (m *GenAI) RecordTokens(ctx context.Context, model string, prompt, completion int64) {
	opt := m.attrs(ctx, attribute.String("model", model))
	m.promptTokens.Add(ctx, prompt, opt)
	m.completionTokens.Add(ctx, completion, opt)
}

// RecordToolCall records that the model requested tool.
func (m *GenAI) RecordToolCall(ctx context.Context, model, tool string) {
	m.toolCalls.Add(ctx, 1, m.attrs(ctx, attribute.String("model", model), attribute.String("tool", tool)))
}

// RecordToolResult records how long tool took and whether it failed.
func (m *GenAI) RecordToolResult(ctx context.Context, tool string, d time.Duration, failed bool) {
	opt := m.attrs(ctx, attribute.String("tool", tool), attribute.Bool("error", failed))
	m.toolDuration.Record(ctx, d.Seconds(), opt)
	if failed {
		m.toolErrors.Add(ctx, 1, opt)
	}
}

/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package agenttrace

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
)

// RequestContext describes the request an agent execution serves.
type RequestContext struct {
	RequestID  string `json:"request_id,omitempty"`
	Repository string `json:"repository,omitempty"` // owner/repo
	SandboxID  string `json:"sandbox_id,omitempty"`
}

// spanAttributes returns every non-empty field as a span attribute.
func (r RequestContext) spanAttributes() []attribute.KeyValue {
	var attrs []attribute.KeyValue
	if r.RequestID != "" {
		attrs = append(attrs, attribute.String("request_id", r.RequestID))
	}
	if r.Repository != "" {
		attrs = append(attrs, attribute.String("repository", r.Repository))
	}
	if r.SandboxID != "" {
		attrs = append(attrs, attribute.String("sandbox_id", r.SandboxID))
	}
	return attrs
}

// EnrichAttributes appends the bounded request attributes to base for use
// as metric labels. Request and sandbox IDs are left to spans.
func (r RequestContext) EnrichAttributes(base []attribute.KeyValue) []attribute.KeyValue {
	attrs := append(make([]attribute.KeyValue, 0, len(base)+1), base...)
	if r.Repository != "" {
		attrs = append(attrs, attribute.String("repository", r.Repository))
	}
	return attrs
}

type requestContextKey struct{}

// WithRequestContext attaches rc to ctx.
func WithRequestContext(ctx context.Context, rc RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// GetRequestContext returns the RequestContext attached to ctx, if any.
func GetRequestContext(ctx context.Context) RequestContext {
	rc, _ := ctx.Value(requestContextKey{}).(RequestContext)
	return rc
}

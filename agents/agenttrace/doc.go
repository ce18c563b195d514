/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

/*
Package agenttrace records what an agent did while serving one prompt.

A Trace covers a single execution from the bound prompt to the final result
and collects a ToolCall for every tool the model invoked. Each trace and
tool call is also an OpenTelemetry span, so a request shows up end to end in
the configured trace backend.

Completed traces are handed to the Tracer found on the context:

	ctx = agenttrace.WithTracer[*Result](ctx, agenttrace.ByCode(func(tr *agenttrace.Trace[*Result]) {
		log.Infof("agent made %d tool calls", len(tr.ToolCalls))
	}))

Without one, NewDefaultTracer logs a summary through clog. GCSCallback
archives every trace as a JSON object in a Cloud Storage bucket and
combines with other callbacks in ByCode.

RequestContext carries per-request metadata (request ID, repository,
sandbox) that is attached to spans and used to label metrics.
*/
package agenttrace

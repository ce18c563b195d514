/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package agenttrace

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"path"
	"time"

	"cloud.google.com/go/storage"
	"github.com/chainguard-dev/clog"
)

// Record is the serialized form of a completed trace.
type Record struct {
	ID        string                `json:"id"`
	Prompt    string                `json:"prompt"`
	Request   RequestContext        `json:"request"`
	ToolCalls []ToolCallRecord      `json:"tool_calls"`
	Reasoning []ReasoningContent    `json:"reasoning,omitempty"`
	Result    any                   `json:"result,omitempty"`
	Error     string                `json:"error,omitempty"`
	Usage     map[string]TokenUsage `json:"usage,omitempty"`
	StartTime time.Time             `json:"start_time"`
	EndTime   time.Time             `json:"end_time"`
}

// ToolCallRecord is the serialized form of a tool call.
type ToolCallRecord struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Params     map[string]any `json:"params,omitempty"`
	Result     any            `json:"result,omitempty"`
	Error      string         `json:"error,omitempty"`
	DurationMS int64          `json:"duration_ms"`
}

// Record returns a snapshot of the trace suitable for encoding.
func (t *Trace[T]) Record() Record {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec := Record{
		ID:        t.ID,
		Prompt:    t.InputPrompt,
		Request:   t.Request,
		ToolCalls: make([]ToolCallRecord, 0, len(t.ToolCalls)),
		Reasoning: t.Reasoning,
		Result:    t.Result,
		Usage:     maps.Clone(t.Usage),
		StartTime: t.StartTime,
		EndTime:   t.EndTime,
	}
	if t.Error != nil {
		rec.Error = t.Error.Error()
	}
	for _, tc := range t.ToolCalls {
		tcr := ToolCallRecord{
			ID:         tc.ID,
			Name:       tc.Name,
			Params:     tc.Params,
			Result:     tc.Result,
			DurationMS: elapsed(tc.StartTime, tc.EndTime).Milliseconds(),
		}
		if tc.Error != nil {
			tcr.Error = tc.Error.Error()
		}
		rec.ToolCalls = append(rec.ToolCalls, tcr)
	}
	return rec
}

// WriteJSON encodes the trace record to w.
func (t *Trace[T]) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(t.Record())
}

// ObjectName returns the object path a trace is archived under:
// prefix/YYYY/MM/DD/<id>.json.
func ObjectName(prefix string, rec Record) string {
	return path.Join(prefix, rec.StartTime.UTC().Format("2006/01/02"), rec.ID+".json")
}

// GCSCallback archives each completed trace as JSON in bucket under
// prefix. Upload failures are logged and otherwise ignored.
func GCSCallback[T any](ctx context.Context, client *storage.Client, bucket, prefix string) TraceCallback[T] {
	log := clog.FromContext(ctx)
	bkt := client.Bucket(bucket)

	return func(tr *Trace[T]) {
		// The request context is usually done by the time a trace completes.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()

		rec := tr.Record()
		name := ObjectName(prefix, rec)
		if err := upload(ctx, bkt.Object(name), rec); err != nil {
			log.With("trace_id", tr.ID).With("object", name).Errorf("Failed to archive trace: %v", err)
			return
		}
		log.With("trace_id", tr.ID).Infof("Archived trace to gs://%s/%s", bucket, name)
	}
}

func upload(ctx context.Context, obj *storage.ObjectHandle, rec Record) error {
	w := obj.NewWriter(ctx)
	w.ContentType = "application/json"
	if err := json.NewEncoder(w).Encode(rec); err != nil {
		_ = w.Close()
		return fmt.Errorf("encoding trace: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing object writer: %w", err)
	}
	return nil
}

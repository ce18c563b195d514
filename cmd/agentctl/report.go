/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"chainguard.dev/sandboxagent/agents/agenttrace"
	"chainguard.dev/sandboxagent/agents/evals"
	"chainguard.dev/sandboxagent/codingagent"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
)

const maxCell = 60

func newTable(w io.Writer, headers ...string) *tablewriter.Table {
	return tablewriter.NewTable(w,
		tablewriter.WithConfig(tablewriter.Config{
			Header: tw.CellConfig{
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
				Formatting: tw.CellFormatting{AutoFormat: tw.Off},
			},
			Row: tw.CellConfig{
				Alignment: tw.CellAlignment{Global: tw.AlignLeft},
			},
			Behavior: tw.Behavior{TrimSpace: tw.Off},
		}),
		tablewriter.WithHeader(headers),
		tablewriter.WithRenderer(renderer.NewBlueprint()),
		tablewriter.WithRendition(tw.Rendition{
			Symbols: tw.NewSymbols(tw.StyleMarkdown),
			Borders: tw.Border{Left: tw.On, Top: tw.Off, Right: tw.On, Bottom: tw.Off},
		}),
		tablewriter.WithRowAutoWrap(tw.WrapNone),
	)
}

// writeTrace prints the tool calls and token usage of a finished trace.
func writeTrace(w io.Writer, tr *agenttrace.Trace[*codingagent.Result]) {
	fmt.Fprintf(w, "Trace %s (%s)\n\n", tr.ID, tr.Duration().Round(time.Millisecond))

	calls := newTable(w, "#", "Tool", "Arguments", "Outcome", "Duration")
	for i, tc := range tr.ToolCalls {
		outcome := "ok"
		if tc.Error != nil {
			outcome = "error: " + tc.Error.Error()
		}
		_ = calls.Append([]string{
			fmt.Sprint(i + 1),
			tc.Name,
			clip(formatParams(tc.Params)),
			clip(outcome),
			tc.Duration().Round(time.Millisecond).String(),
		})
	}
	_ = calls.Render()

	if len(tr.Usage) == 0 {
		return
	}
	fmt.Fprintln(w)
	usage := newTable(w, "Model", "Input tokens", "Output tokens")
	models := make([]string, 0, len(tr.Usage))
	for m := range tr.Usage {
		models = append(models, m)
	}
	sort.Strings(models)
	for _, m := range models {
		u := tr.Usage[m]
		_ = usage.Append([]string{m, fmt.Sprint(u.Input), fmt.Sprint(u.Output)})
	}
	_ = usage.Render()
	fmt.Fprintln(w)
}

// formatParams renders tool arguments as sorted key=value pairs, leaving
// out the model's reasoning.
func formatParams(params map[string]any) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k != "reasoning" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, params[k]))
	}
	return strings.Join(parts, " ")
}

func clip(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= maxCell {
		return s
	}
	return s[:maxCell-3] + "..."
}

func writeResult(w io.Writer, res *codingagent.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// writeEvals summarizes the evaluation checks run against the trace.
func writeEvals(w io.Writer, total int, failures []evals.Failure) {
	fmt.Fprintf(w, "\nEvaluations: %d/%d passed\n", total-len(failures), total)
	if len(failures) == 0 {
		return
	}
	sort.Slice(failures, func(i, j int) bool { return failures[i].Check < failures[j].Check })
	t := newTable(w, "Check", "Failure")
	for _, f := range failures {
		_ = t.Append([]string{f.Check, clip(f.Message)})
	}
	_ = t.Render()
}

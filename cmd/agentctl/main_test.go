/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"chainguard.dev/sandboxagent/agents/agenttrace"
	"chainguard.dev/sandboxagent/agents/evals"
	"chainguard.dev/sandboxagent/codingagent"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestCallServer(t *testing.T) {
	var gotPrompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/agent" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotPrompt = body["prompt"]
		_, _ = w.Write([]byte(`{"result":{"summary":"done","files_changed":["README.md"]}}`))
	}))
	t.Cleanup(srv.Close)

	var out bytes.Buffer
	require.NoError(t, callServer(context.Background(), srv.Client(), &out, srv.URL+"/", "fix it"))

	if gotPrompt != "fix it" {
		t.Errorf("prompt = %q", gotPrompt)
	}
	var res codingagent.Result
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	if diff := cmp.Diff(codingagent.Result{Summary: "done", FilesChanged: []string{"README.md"}}, res); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
}

func TestCallServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"An error occurred"}`))
	}))
	t.Cleanup(srv.Close)

	err := callServer(context.Background(), srv.Client(), &bytes.Buffer{}, srv.URL, "fix it")
	if err == nil || !strings.Contains(err.Error(), "An error occurred") {
		t.Errorf("callServer() = %v, want the server error", err)
	}
}

func TestRunOverrides(t *testing.T) {
	got := runOptions{repo: "https://github.com/acme/demo", sandbox: "local"}.overrides()
	want := map[string]string{"REPO_URL": "https://github.com/acme/demo", "SANDBOX_PROVIDER": "local"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("overrides() mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteTrace(t *testing.T) {
	tr := agenttrace.ByCode[*codingagent.Result]().NewTrace(context.Background(), "fix it")
	tr.StartToolCall("1", "read_file", map[string]any{"path": "README.md", "reasoning": "look first"}).Complete(map[string]any{"content": "x"}, nil)
	tr.StartToolCall("2", "edit_file", map[string]any{"path": "main.go"}).Complete(nil, errors.New("String not found in file"))
	tr.RecordTokenUsage("claude-sonnet-4", 100, 20)
	tr.Complete(&codingagent.Result{Summary: "done"}, nil)

	var out bytes.Buffer
	writeTrace(&out, tr)
	s := out.String()
	for _, want := range []string{"read_file", "path=README.md", "edit_file", "error: String not found in file", "claude-sonnet-4", "100"} {
		if !strings.Contains(s, want) {
			t.Errorf("trace output lacks %q:\n%s", want, s)
		}
	}
	if strings.Contains(s, "look first") {
		t.Errorf("trace output includes reasoning:\n%s", s)
	}
}

func TestClip(t *testing.T) {
	long := strings.Repeat("a", 100)
	if got := clip(long); len(got) != maxCell || !strings.HasSuffix(got, "...") {
		t.Errorf("clip() = %q", got)
	}
	if got := clip("a\n  b"); got != "a b" {
		t.Errorf("clip() = %q, want whitespace collapsed", got)
	}
}

func TestWriteEvals(t *testing.T) {
	var buf bytes.Buffer
	writeEvals(&buf, 5, nil)
	if got, want := buf.String(), "\nEvaluations: 5/5 passed\n"; got != want {
		t.Errorf("writeEvals() = %q, want %q", got, want)
	}

	buf.Reset()
	writeEvals(&buf, 5, []evals.Failure{
		{Check: "read_before_edit", Message: `edit_file on "a.go" before read_file`},
		{Check: "has_summary", Message: "result has no summary"},
	})
	out := buf.String()
	require.Contains(t, out, "Evaluations: 3/5 passed")
	if i, j := strings.Index(out, "has_summary"), strings.Index(out, "read_before_edit"); i < 0 || j < 0 || i > j {
		t.Errorf("failures not sorted by check:\n%s", out)
	}
}

/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package codingagent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"chainguard.dev/sandboxagent/agents/agenttrace"
	"chainguard.dev/sandboxagent/agents/evals"
	"chainguard.dev/sandboxagent/agents/evals/evalstest"
	"chainguard.dev/sandboxagent/agents/toolcall"
	"chainguard.dev/sandboxagent/publisher"
	"chainguard.dev/sandboxagent/sandbox"
	"chainguard.dev/sandboxagent/sandbox/sandboxtest"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const repoURL = "https://github.com/acme/demo"

// scriptedExecutor plays the model: it calls tools in order and returns
// the configured result.
type scriptedExecutor struct {
	calls  []toolcall.ToolCall
	result *Result
	err    error

	req       *Request
	responses []map[string]any
	repo      string
}

func (s *scriptedExecutor) Execute(ctx context.Context, req *Request, tools map[string]toolcall.Tool[*Result]) (*Result, error) {
	s.req = req
	s.repo = agenttrace.GetRequestContext(ctx).Repository
	trace := agenttrace.StartTrace[*Result](ctx, req.Prompt)
	var final *Result
	// Handlers record their own tool calls on the trace.
	for _, c := range s.calls {
		s.responses = append(s.responses, tools[c.Name].Handler(ctx, c, trace, &final))
	}
	trace.Complete(s.result, s.err)
	return s.result, s.err
}

type fakePublisher struct {
	res *publisher.Result
}

func (f *fakePublisher) Publish(context.Context, sandbox.Runner, string, publisher.Request) (*publisher.Result, error) {
	return f.res, nil
}

func TestInvoke(t *testing.T) {
	provider := &sandboxtest.Provider{Seed: map[string]string{"README.md": "# Demo\nfoo\n"}}
	pr := &publisher.Result{Branch: "feature/ai-changes-1", URL: "https://github.com/acme/demo/pull/1", Number: 1}
	exec := &scriptedExecutor{
		calls: []toolcall.ToolCall{
			{ID: "1", Name: "read_file", Args: map[string]any{"path": "README.md"}},
			{ID: "2", Name: "edit_file", Args: map[string]any{"path": "README.md", "old_text": "foo", "new_text": "bar"}},
			{ID: "3", Name: "create_pr", Args: map[string]any{"title": "Replace foo"}},
		},
		result: &Result{Summary: "Replaced foo with bar", FilesChanged: []string{"README.md"}},
	}

	a, err := New(Config{RepoURL: repoURL, Sandboxes: provider, Publisher: &fakePublisher{res: pr}}, exec)
	require.NoError(t, err)

	var recorded []string
	cbs := append(Evals().Callbacks(evalstest.Factory(t)), func(tr *agenttrace.Trace[*Result]) {
		for _, tc := range tr.ToolCalls {
			recorded = append(recorded, tc.Name)
		}
	})
	ctx := agenttrace.WithTracer(context.Background(), agenttrace.ByCode(cbs...))
	got, err := a.Invoke(ctx, "Replace foo with bar in the README")
	require.NoError(t, err)

	if diff := cmp.Diff([]string{"read_file", "edit_file", "create_pr"}, recorded); diff != "" {
		t.Errorf("recorded tool calls mismatch (-want +got):\n%s", diff)
	}

	want := &Result{Summary: "Replaced foo with bar", FilesChanged: []string{"README.md"}, PullRequest: pr}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Invoke() mismatch (-want +got):\n%s", diff)
	}
	for i, resp := range exec.responses {
		if _, failed := resp["error"]; failed {
			t.Errorf("tool call %d failed: %v", i, resp)
		}
	}
	if content, _ := provider.Last.File("README.md"); content != "# Demo\nbar\n" {
		t.Errorf("README.md = %q", content)
	}
	if !provider.Last.Stopped {
		t.Error("sandbox was not stopped")
	}
	if exec.repo != "acme/demo" {
		t.Errorf("request repository = %q, want acme/demo", exec.repo)
	}

	wantOpts := sandbox.DefaultCreateOptions(repoURL)
	if diff := cmp.Diff([]sandbox.CreateOptions{wantOpts}, provider.Created); diff != "" {
		t.Errorf("sandbox options mismatch (-want +got):\n%s", diff)
	}
}

func TestInvokeWithoutPublisher(t *testing.T) {
	provider := &sandboxtest.Provider{}
	exec := &scriptedExecutor{
		calls:  []toolcall.ToolCall{{ID: "1", Name: "create_pr", Args: map[string]any{"title": "x"}}},
		result: &Result{Summary: "could not open a PR"},
	}
	a, err := New(Config{RepoURL: repoURL, Sandboxes: provider}, exec)
	require.NoError(t, err)

	got, err := a.Invoke(context.Background(), "open a PR")
	require.NoError(t, err)
	if got.PullRequest != nil {
		t.Errorf("PullRequest = %+v, want nil", got.PullRequest)
	}
	if diff := cmp.Diff(map[string]any{"error": "GITHUB_TOKEN environment variable is required"}, exec.responses[0]); diff != "" {
		t.Errorf("create_pr mismatch (-want +got):\n%s", diff)
	}
}

func TestInvokeFillsFilesChangedFromDiff(t *testing.T) {
	provider := &sandboxtest.Provider{Setup: func(s *sandboxtest.Sandbox) {
		s.Output("git diff", "diff --git a/main.go b/main.go\nindex 1111111..2222222 100644\n--- a/main.go\n+++ b/main.go\n@@ -1 +1 @@\n-a\n+b\n")
	}}
	exec := &scriptedExecutor{result: &Result{Summary: "edited"}}
	a, err := New(Config{RepoURL: repoURL, Sandboxes: provider}, exec)
	require.NoError(t, err)

	got, err := a.Invoke(context.Background(), "edit main.go")
	require.NoError(t, err)
	if diff := cmp.Diff([]string{"main.go"}, got.FilesChanged); diff != "" {
		t.Errorf("FilesChanged mismatch (-want +got):\n%s", diff)
	}
}

func TestInvokeFailures(t *testing.T) {
	t.Run("sandbox", func(t *testing.T) {
		a, err := New(Config{RepoURL: repoURL, Sandboxes: &sandboxtest.Provider{Err: errors.New("quota")}}, &scriptedExecutor{})
		require.NoError(t, err)
		if _, err := a.Invoke(context.Background(), "x"); err == nil || !strings.Contains(err.Error(), "quota") {
			t.Errorf("Invoke() = %v, want sandbox error", err)
		}
	})

	t.Run("executor", func(t *testing.T) {
		provider := &sandboxtest.Provider{}
		a, err := New(Config{RepoURL: repoURL, Sandboxes: provider}, &scriptedExecutor{err: errors.New("model down")})
		require.NoError(t, err)
		if _, err := a.Invoke(context.Background(), "x"); err == nil {
			t.Error("Invoke() = nil, want error")
		}
		if !provider.Last.Stopped {
			t.Error("sandbox not stopped after failure")
		}
	})

	t.Run("empty prompt", func(t *testing.T) {
		provider := &sandboxtest.Provider{}
		a, err := New(Config{RepoURL: repoURL, Sandboxes: provider}, &scriptedExecutor{})
		require.NoError(t, err)
		if _, err := a.Invoke(context.Background(), "  "); err == nil {
			t.Error("Invoke() = nil, want error")
		}
		if len(provider.Created) != 0 {
			t.Error("sandbox created for an empty prompt")
		}
	})
}

func TestNewValidates(t *testing.T) {
	exec := &scriptedExecutor{}
	for name, cfg := range map[string]Config{
		"no repo":     {Sandboxes: &sandboxtest.Provider{}},
		"no provider": {RepoURL: repoURL},
	} {
		if _, err := New(cfg, exec); err == nil {
			t.Errorf("%s: New() = nil, want error", name)
		}
	}
	if _, err := New(Config{RepoURL: repoURL, Sandboxes: &sandboxtest.Provider{}}, nil); err == nil {
		t.Error("New(nil executor) = nil, want error")
	}
}

func TestCreateOptionsOverrides(t *testing.T) {
	cfg := Config{RepoURL: repoURL, Sandbox: sandbox.CreateOptions{
		Resources: sandbox.Resources{VCPUs: 4},
		Timeout:   5 * time.Minute,
		Runtime:   "python3.13",
	}}
	got := cfg.createOptions()
	if got.Resources.VCPUs != 4 || got.Timeout != 5*time.Minute || got.Runtime != "python3.13" {
		t.Errorf("createOptions() = %+v", got)
	}
	if diff := cmp.Diff([]int{3000}, got.Ports); diff != "" {
		t.Errorf("Ports mismatch (-want +got):\n%s", diff)
	}
}

func TestRequestBind(t *testing.T) {
	p, err := (&Request{Prompt: "fix {{it}} & more", Repository: repoURL}).Bind(taskPrompt)
	require.NoError(t, err)
	got, err := p.Build()
	require.NoError(t, err)
	want := "Repository: \"https://github.com/acme/demo\"\n\nTask:\n<value>fix {{it}} &amp; more</value>"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Build() mismatch (-want +got):\n%s", diff)
	}
}

func TestTextResult(t *testing.T) {
	got, err := textResult("I updated the README.")
	require.NoError(t, err)
	if got.Summary != "I updated the README." {
		t.Errorf("Summary = %q", got.Summary)
	}

	got, err = textResult("```json\n{\"summary\":\"done\",\"files_changed\":[\"a.go\"]}\n```")
	require.NoError(t, err)
	if diff := cmp.Diff(&Result{Summary: "done", FilesChanged: []string{"a.go"}}, got); diff != "" {
		t.Errorf("textResult() mismatch (-want +got):\n%s", diff)
	}

	if _, err := textResult(" "); err == nil {
		t.Error("textResult(blank) = nil, want error")
	}
}

func TestSubmitTool(t *testing.T) {
	tool, err := submitTool()
	require.NoError(t, err)
	if tool.Def.Name != "submit_result" {
		t.Errorf("Name = %q", tool.Def.Name)
	}
	payload := tool.Def.Parameters[1].JSONSchema()
	props, _ := payload["properties"].(map[string]any)
	for _, field := range []string{"summary", "files_changed", "pull_request"} {
		if _, ok := props[field]; !ok {
			t.Errorf("payload schema lacks %q", field)
		}
	}
	// publisher.Result shares the bare type name and must stay nested.
	if _, ok := props["branch"]; ok {
		t.Errorf("payload schema expanded the pull request fields: %v", props)
	}
	if diff := cmp.Diff([]any{"summary"}, payload["required"]); diff != "" {
		t.Errorf("required mismatch (-want +got):\n%s", diff)
	}
	pr, _ := props["pull_request"].(map[string]any)
	prProps, _ := pr["properties"].(map[string]any)
	if _, ok := prProps["pr_url"]; !ok {
		t.Errorf("pull_request schema = %v, want the pull request fields", pr)
	}
}

func TestEvalsFlagEditWithoutRead(t *testing.T) {
	provider := &sandboxtest.Provider{Seed: map[string]string{"README.md": "foo"}}
	exec := &scriptedExecutor{
		calls: []toolcall.ToolCall{
			{ID: "1", Name: "edit_file", Args: map[string]any{"path": "README.md", "old_text": "foo", "new_text": "bar"}},
			{ID: "2", Name: "edit_file", Args: map[string]any{"path": "README.md", "old_text": "missing", "new_text": "x"}},
		},
		result: &Result{},
	}
	a, err := New(Config{RepoURL: repoURL, Sandboxes: provider}, exec)
	require.NoError(t, err)

	var c evals.Collector
	ctx := agenttrace.WithTracer(context.Background(), agenttrace.ByCode(Evals().Callbacks(c.Observer)...))
	_, err = a.Invoke(ctx, "edit blindly")
	require.NoError(t, err)

	failed := map[string]bool{}
	for _, f := range c.Failures() {
		failed[f.Check] = true
	}
	want := map[string]bool{"read_before_edit": true, "no_tool_errors": true, "has_summary": true}
	if diff := cmp.Diff(want, failed); diff != "" {
		t.Errorf("failed checks mismatch (-want +got):\n%s", diff)
	}
}

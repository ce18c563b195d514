/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package toolcall

import (
	"context"
	"errors"
	"strings"

	"chainguard.dev/sandboxagent/agents/agenttrace"
	"chainguard.dev/sandboxagent/failure"
	"chainguard.dev/sandboxagent/fileops"
	"chainguard.dev/sandboxagent/publisher"
	"chainguard.dev/sandboxagent/sandbox"
)

// Publisher opens a pull request from a sandbox working tree.
type Publisher interface {
	Publish(ctx context.Context, sb sandbox.Runner, repoURL string, req publisher.Request) (*publisher.Result, error)
}

// Workspace is what the sandbox tools operate on.
type Workspace struct {
	Sandbox sandbox.Runner
	RepoURL string

	// Publisher is nil when no GitHub credentials are configured; create_pr
	// then reports a configuration failure.
	Publisher Publisher

	// OnPublished, if set, observes every pull request opened by create_pr.
	OnPublished func(*publisher.Result)
}

// errNoPublisher is what create_pr reports without GitHub credentials.
var errNoPublisher = failure.New(failure.Config, "GITHUB_TOKEN environment variable is required")

// SandboxTools returns the tools that read, change and publish the
// repository checked out in ws.Sandbox, keyed by name.
func SandboxTools[Resp any](ws Workspace) map[string]Tool[Resp] {
	tools := []Tool[Resp]{
		{
			Def: Definition{
				Name:        "read_file",
				Description: "Read the complete content of a file in the repository.",
				Parameters: []Parameter{
					reasoningParam,
					{Name: "path", Type: "string", Description: "Path of the file, relative to the repository root.", Required: true},
				},
			},
			Handler: readFile[Resp](ws),
		},
		{
			Def: Definition{
				Name:        "list_files",
				Description: "List a directory with `ls -la`. Defaults to the repository root.",
				Parameters: []Parameter{
					reasoningParam,
					{Name: "path", Type: "string", Description: "Directory to list, relative to the repository root."},
				},
			},
			Handler: listFiles[Resp](ws),
		},
		{
			Def: Definition{
				Name: "edit_file",
				Description: "Replace the first occurrence of old_text with new_text in an existing file. " +
					"The match is literal. Fails if old_text does not occur in the file.",
				Parameters: []Parameter{
					reasoningParam,
					{Name: "path", Type: "string", Description: "Path of the file to edit.", Required: true},
					{Name: "old_text", Type: "string", Description: "Exact text to replace.", Required: true},
					{Name: "new_text", Type: "string", Description: "Replacement text.", Required: true},
				},
			},
			Handler: editFile[Resp](ws),
		},
		{
			Def: Definition{
				Name:        "write_file",
				Description: "Create a file or overwrite it with the given content.",
				Parameters: []Parameter{
					reasoningParam,
					{Name: "path", Type: "string", Description: "Path of the file to write.", Required: true},
					{Name: "content", Type: "string", Description: "Complete new content of the file.", Required: true},
				},
			},
			Handler: writeFile[Resp](ws),
		},
		{
			Def: Definition{
				Name:        "run_command",
				Description: "Run a shell command in the repository root and return its exit code and output.",
				Parameters: []Parameter{
					reasoningParam,
					{Name: "command", Type: "string", Description: "Command line passed to `sh -c`.", Required: true},
				},
			},
			Handler: runCommand[Resp](ws),
		},
		{
			Def: Definition{
				Name:        "show_diff",
				Description: "Summarize the uncommitted changes to tracked files.",
				Parameters:  []Parameter{reasoningParam},
			},
			Handler: showDiff[Resp](ws),
		},
		{
			Def: Definition{
				Name:        "create_pr",
				Description: "Commit every change on a new branch, push it and open a pull request.",
				Parameters: []Parameter{
					reasoningParam,
					{Name: "title", Type: "string", Description: "Pull request title, also used as the commit message.", Required: true},
					{Name: "body", Type: "string", Description: "Pull request description."},
					{Name: "branch", Type: "string", Description: "Branch name prefix. A timestamp is appended."},
				},
			},
			Handler: createPR[Resp](ws),
		},
	}

	out := make(map[string]Tool[Resp], len(tools))
	for _, t := range tools {
		out[t.Def.Name] = t
	}
	return out
}

func readFile[Resp any](ws Workspace) Handler[Resp] {
	return func(ctx context.Context, call ToolCall, trace *agenttrace.Trace[Resp], _ *Resp) map[string]any {
		path, errResp := Param[string](call, trace, "path")
		if errResp != nil {
			return errResp
		}
		logReasoning(ctx, call).With("path", path).Info("Reading file")

		tc := trace.StartToolCall(call.ID, call.Name, call.Args)
		f, err := fileops.ReadFile(ctx, ws.Sandbox, path)
		if err != nil {
			tc.Complete(nil, err)
			return errorResponse(err)
		}
		resp := map[string]any{"path": f.Path, "content": f.Content}
		tc.Complete(resp, nil)
		return resp
	}
}

func listFiles[Resp any](ws Workspace) Handler[Resp] {
	return func(ctx context.Context, call ToolCall, trace *agenttrace.Trace[Resp], _ *Resp) map[string]any {
		// A missing or null path lists the root.
		path, errResp := OptionalParam(call, "path", "")
		if errResp != nil {
			return errResp
		}
		logReasoning(ctx, call).With("path", path).Info("Listing files")

		tc := trace.StartToolCall(call.ID, call.Name, call.Args)
		listing, err := fileops.ListFiles(ctx, ws.Sandbox, path)
		if err != nil {
			tc.Complete(nil, err)
			return errorResponse(err)
		}
		resp := map[string]any{"listing": listing}
		tc.Complete(resp, nil)
		return resp
	}
}

func editFile[Resp any](ws Workspace) Handler[Resp] {
	return func(ctx context.Context, call ToolCall, trace *agenttrace.Trace[Resp], _ *Resp) map[string]any {
		var e fileops.Edit
		var errResp map[string]any
		if e.Path, errResp = Param[string](call, trace, "path"); errResp != nil {
			return errResp
		}
		if e.OldText, errResp = Param[string](call, trace, "old_text"); errResp != nil {
			return errResp
		}
		if e.NewText, errResp = Param[string](call, trace, "new_text"); errResp != nil {
			return errResp
		}
		logReasoning(ctx, call).With("path", e.Path).Info("Editing file")

		tc := trace.StartToolCall(call.ID, call.Name, call.Args)
		if err := fileops.EditFile(ctx, ws.Sandbox, e); err != nil {
			tc.Complete(nil, err)
			return errorResponse(err)
		}
		resp := map[string]any{"success": true, "path": e.Path}
		tc.Complete(resp, nil)
		return resp
	}
}

func writeFile[Resp any](ws Workspace) Handler[Resp] {
	return func(ctx context.Context, call ToolCall, trace *agenttrace.Trace[Resp], _ *Resp) map[string]any {
		path, errResp := Param[string](call, trace, "path")
		if errResp != nil {
			return errResp
		}
		content, errResp := Param[string](call, trace, "content")
		if errResp != nil {
			return errResp
		}
		logReasoning(ctx, call).With("path", path).Info("Writing file")

		tc := trace.StartToolCall(call.ID, call.Name, call.Args)
		if err := fileops.WriteFile(ctx, ws.Sandbox, path, content); err != nil {
			tc.Complete(nil, err)
			return errorResponse(err)
		}
		resp := map[string]any{"success": true, "path": path, "bytes": len(content)}
		tc.Complete(resp, nil)
		return resp
	}
}

func runCommand[Resp any](ws Workspace) Handler[Resp] {
	return func(ctx context.Context, call ToolCall, trace *agenttrace.Trace[Resp], _ *Resp) map[string]any {
		command, errResp := Param[string](call, trace, "command")
		if errResp != nil {
			return errResp
		}
		if strings.TrimSpace(command) == "" {
			trace.BadToolCall(call.ID, call.Name, call.Args, errors.New("empty command"))
			return map[string]any{"error": "command must not be empty"}
		}
		logReasoning(ctx, call).With("command", command).Info("Running command")

		tc := trace.StartToolCall(call.ID, call.Name, call.Args)
		res, err := ws.Sandbox.RunCommand(ctx, "sh", "-c", command)
		// A non-zero exit is a result for the model, not a tool failure.
		var cerr *sandbox.CommandError
		if err != nil && !(errors.As(err, &cerr) && res != nil) {
			err = failure.Wrap(failure.RemoteCommand, err, "")
			tc.Complete(nil, err)
			return errorResponse(err)
		}
		resp := map[string]any{"exit_code": res.ExitCode, "stdout": res.Stdout, "stderr": res.Stderr}
		tc.Complete(resp, nil)
		return resp
	}
}

func showDiff[Resp any](ws Workspace) Handler[Resp] {
	return func(ctx context.Context, call ToolCall, trace *agenttrace.Trace[Resp], _ *Resp) map[string]any {
		logReasoning(ctx, call).Info("Summarizing changes")

		tc := trace.StartToolCall(call.ID, call.Name, call.Args)
		changes, err := publisher.Diff(ctx, ws.Sandbox)
		if err != nil {
			tc.Complete(nil, err)
			return errorResponse(err)
		}
		if changes == nil {
			changes = []publisher.FileChange{}
		}
		resp := map[string]any{"changes": changes}
		tc.Complete(resp, nil)
		return resp
	}
}

func createPR[Resp any](ws Workspace) Handler[Resp] {
	return func(ctx context.Context, call ToolCall, trace *agenttrace.Trace[Resp], _ *Resp) map[string]any {
		var req publisher.Request
		var errResp map[string]any
		if req.Title, errResp = Param[string](call, trace, "title"); errResp != nil {
			return errResp
		}
		if req.Body, errResp = OptionalParam(call, "body", ""); errResp != nil {
			return errResp
		}
		if req.Branch, errResp = OptionalParam(call, "branch", ""); errResp != nil {
			return errResp
		}
		logReasoning(ctx, call).With("title", req.Title).Info("Creating pull request")

		tc := trace.StartToolCall(call.ID, call.Name, call.Args)
		if ws.Publisher == nil {
			tc.Complete(nil, errNoPublisher)
			return errorResponse(errNoPublisher)
		}
		res, err := ws.Publisher.Publish(ctx, ws.Sandbox, ws.RepoURL, req)
		if err != nil {
			tc.Complete(nil, err)
			return errorResponse(err)
		}
		if ws.OnPublished != nil {
			ws.OnPublished(res)
		}
		resp := map[string]any{
			"success":   true,
			"branch":    res.Branch,
			"pr_url":    res.URL,
			"pr_number": res.Number,
		}
		tc.Complete(resp, nil)
		return resp
	}
}

// errorResponse renders err for the model. Typed failures show only their
// message; anything else shows the full error chain.
func errorResponse(err error) map[string]any {
	return map[string]any{"error": failure.Message(err)}
}

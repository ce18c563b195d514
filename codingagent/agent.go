/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package codingagent answers a natural-language request by running a
// model-driven coding session against a fresh sandbox checkout.
package codingagent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"chainguard.dev/sandboxagent/agents/agenttrace"
	"chainguard.dev/sandboxagent/agents/promptbuilder"
	"chainguard.dev/sandboxagent/agents/result"
	"chainguard.dev/sandboxagent/agents/toolcall"
	"chainguard.dev/sandboxagent/publisher"
	"chainguard.dev/sandboxagent/sandbox"
	"github.com/chainguard-dev/clog"
)

// Result is what an invocation produced.
type Result struct {
	Summary      string            `json:"summary" jsonschema:"required,description=What was done and why, in a few sentences."`
	FilesChanged []string          `json:"files_changed,omitempty" jsonschema:"description=Paths of the files that were created or modified."`
	PullRequest  *publisher.Result `json:"pull_request,omitempty" jsonschema:"description=The pull request opened for the change, if any."`
}

// Agent handles one prompt at a time per call; calls may run concurrently.
type Agent interface {
	Invoke(ctx context.Context, prompt string) (*Result, error)
}

// Request is the input bound into the task prompt.
type Request struct {
	Prompt     string
	Repository string
}

var _ promptbuilder.Bindable = (*Request)(nil)

// Bind fills the task prompt. The prompt is user input and is bound as XML
// so it cannot inject template syntax.
func (r *Request) Bind(p *promptbuilder.Prompt) (*promptbuilder.Prompt, error) {
	p, err := p.BindJSON("repository", r.Repository)
	if err != nil {
		return nil, err
	}
	return p.BindXML("task", r.Prompt)
}

// Executor runs the model conversation over the given tools.
type Executor interface {
	Execute(ctx context.Context, req *Request, tools map[string]toolcall.Tool[*Result]) (*Result, error)
}

// Config wires an agent to its collaborators.
type Config struct {
	// RepoURL is the GitHub repository every sandbox is cloned from.
	RepoURL string

	Sandboxes sandbox.Provider

	// Sandbox overrides the creation options. Zero fields fall back to
	// sandbox.DefaultCreateOptions.
	Sandbox sandbox.CreateOptions

	// Publisher is optional; without it create_pr reports a configuration
	// failure to the model.
	Publisher toolcall.Publisher
}

func (c Config) createOptions() sandbox.CreateOptions {
	opts := sandbox.DefaultCreateOptions(c.RepoURL)
	if c.Sandbox.Source.Revision != "" {
		opts.Source.Revision = c.Sandbox.Source.Revision
	}
	if c.Sandbox.Resources.VCPUs > 0 {
		opts.Resources = c.Sandbox.Resources
	}
	if c.Sandbox.Timeout > 0 {
		opts.Timeout = c.Sandbox.Timeout
	}
	if c.Sandbox.Ports != nil {
		opts.Ports = c.Sandbox.Ports
	}
	if c.Sandbox.Runtime != "" {
		opts.Runtime = c.Sandbox.Runtime
	}
	return opts
}

type agent struct {
	cfg  Config
	exec Executor
}

// New returns an Agent that runs exec for every prompt.
func New(cfg Config, exec Executor) (Agent, error) {
	switch {
	case cfg.RepoURL == "":
		return nil, errors.New("repository URL is required")
	case cfg.Sandboxes == nil:
		return nil, errors.New("sandbox provider is required")
	case exec == nil:
		return nil, errors.New("executor is required")
	}
	if err := cfg.createOptions().Validate(); err != nil {
		return nil, fmt.Errorf("sandbox options: %w", err)
	}
	return &agent{cfg: cfg, exec: exec}, nil
}

func (a *agent) Invoke(ctx context.Context, prompt string) (_ *Result, err error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, errors.New("prompt cannot be empty")
	}

	rc := agenttrace.GetRequestContext(ctx)
	if owner, repo, err := publisher.ParseRepoURL(a.cfg.RepoURL); err == nil {
		rc.Repository = owner + "/" + repo
	}

	sb, err := a.cfg.Sandboxes.Create(ctx, a.cfg.createOptions())
	if err != nil {
		return nil, fmt.Errorf("creating sandbox: %w", err)
	}
	rc.SandboxID = sb.Handle().ID
	ctx = agenttrace.WithRequestContext(ctx, rc)
	log := clog.FromContext(ctx).With("sandbox", rc.SandboxID)
	ctx = clog.WithLogger(ctx, log)
	defer func() {
		// Stop even when ctx was cancelled.
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if serr := sb.Stop(stopCtx); serr != nil {
			log.With("error", serr).Warn("Failed to stop sandbox")
		}
	}()

	var published *publisher.Result
	tools := toolcall.SandboxTools[*Result](toolcall.Workspace{
		Sandbox:     sb,
		RepoURL:     a.cfg.RepoURL,
		Publisher:   a.cfg.Publisher,
		OnPublished: func(r *publisher.Result) { published = r },
	})

	log.With("prompt_length", len(prompt)).Info("Invoking coding agent")
	res, err := a.exec.Execute(ctx, &Request{Prompt: prompt, Repository: a.cfg.RepoURL}, tools)
	if err != nil {
		return nil, fmt.Errorf("running agent: %w", err)
	}
	if res == nil {
		res = &Result{}
	}
	// Trust what create_pr returned over what the model reports.
	if published != nil {
		res.PullRequest = published
	}
	if len(res.FilesChanged) == 0 && published == nil {
		changes, err := publisher.Diff(ctx, sb)
		if err != nil {
			log.With("error", err).Warn("Failed to summarize changes")
		}
		for _, c := range changes {
			res.FilesChanged = append(res.FilesChanged, c.Path)
		}
	}
	log.With("files_changed", len(res.FilesChanged)).With("pull_request", published != nil).Info("Coding agent finished")
	return res, nil
}

// textResult accepts a closing message in place of submit_result: JSON is
// decoded as a Result, anything else becomes the summary.
func textResult(text string) (*Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("model finished without a result")
	}
	if res, err := result.Extract[*Result](text); err == nil && res != nil && res.Summary != "" {
		return res, nil
	}
	return &Result{Summary: text}, nil
}

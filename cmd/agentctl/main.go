/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package main is a command line driver for the coding agent. "run"
// executes a prompt in-process and "call" sends it to a running server.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"chainguard.dev/sandboxagent/agentconfig"
	"chainguard.dev/sandboxagent/agents/agenttrace"
	"chainguard.dev/sandboxagent/agents/evals"
	"chainguard.dev/sandboxagent/codingagent"
	"github.com/chainguard-dev/clog"
	"github.com/sethvargo/go-envconfig"
	"github.com/spf13/cobra"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		clog.FatalContextf(ctx, "%v", err)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "agentctl",
		Short:         "Drive the sandbox coding agent",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.AddCommand(newRunCmd(), newCallCmd())
	return root
}

type runOptions struct {
	repo     string
	provider string
	sandbox  string
	timeout  time.Duration
	trace    bool
}

func newRunCmd() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run <prompt>",
		Short: "Run a prompt in-process using the environment configuration",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrompt(cmd.Context(), cmd.OutOrStdout(), opts, strings.Join(args, " "))
		},
	}
	cmd.Flags().StringVar(&opts.repo, "repo", "", "Repository URL (overrides REPO_URL)")
	cmd.Flags().StringVar(&opts.provider, "provider", "", "Model provider: claude or gemini (overrides AGENT_PROVIDER)")
	cmd.Flags().StringVar(&opts.sandbox, "sandbox", "", "Sandbox provider: remote or local (overrides SANDBOX_PROVIDER)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 10*time.Minute, "Overall deadline")
	cmd.Flags().BoolVar(&opts.trace, "trace", true, "Print the tool calls made by the agent")
	return cmd
}

// overrides maps the flags that were set onto their environment names.
func (o runOptions) overrides() map[string]string {
	m := map[string]string{}
	for k, v := range map[string]string{
		"REPO_URL":         o.repo,
		"AGENT_PROVIDER":   o.provider,
		"SANDBOX_PROVIDER": o.sandbox,
	} {
		if v != "" {
			m[k] = v
		}
	}
	return m
}

func runPrompt(ctx context.Context, out io.Writer, opts runOptions, prompt string) error {
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	cfg, err := agentconfig.LoadWith(ctx, envconfig.MultiLookuper(
		envconfig.MapLookuper(opts.overrides()),
		envconfig.OsLookuper(),
	))
	if err != nil {
		return err
	}
	agent, err := cfg.Build(ctx)
	if err != nil {
		return err
	}
	defer agent.Close()

	var collector evals.Collector
	cbs := codingagent.Evals().Callbacks(collector.Observer)
	if opts.trace {
		cbs = append(cbs, func(tr *agenttrace.Trace[*codingagent.Result]) {
			writeTrace(out, tr)
		})
	}
	// Replaces the configured tracer: evaluations are printed, not exported.
	ictx := agenttrace.WithRequestContext(agent.Context, agenttrace.RequestContext{RequestID: "agentctl"})
	ictx = agenttrace.WithTracer(ictx, agenttrace.ByCode(cbs...))

	res, err := agent.Invoke(ictx, prompt)
	if err != nil {
		return err
	}
	if err := writeResult(out, res); err != nil {
		return err
	}
	writeEvals(out, collector.Total(), collector.Failures())
	return nil
}

func newCallCmd() *cobra.Command {
	var (
		server  string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "call <prompt>",
		Short: "Send a prompt to a running agent server",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return callServer(ctx, http.DefaultClient, cmd.OutOrStdout(), server, strings.Join(args, " "))
		},
	}
	cmd.Flags().StringVar(&server, "server", "http://localhost:8080", "Agent server base URL")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "Request deadline")
	return cmd
}

func callServer(ctx context.Context, client *http.Client, out io.Writer, server, prompt string) error {
	body, err := json.Marshal(map[string]string{"prompt": prompt})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(server, "/")+"/api/agent", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("calling agent server: %w", err)
	}
	defer resp.Body.Close()

	var payload struct {
		Result *codingagent.Result `json:"result"`
		Error  string              `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("decoding response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("agent server returned %d: %s", resp.StatusCode, payload.Error)
	}
	if payload.Result == nil {
		return errors.New("agent server returned no result")
	}
	return writeResult(out, payload.Result)
}

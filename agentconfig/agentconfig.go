/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package agentconfig builds a codingagent.Agent from environment
// variables. Both the HTTP server and the CLI are configured through it.
package agentconfig

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"chainguard.dev/sandboxagent/agents/agenttrace"
	"chainguard.dev/sandboxagent/agents/evals"
	"chainguard.dev/sandboxagent/agents/executor/claudeexecutor"
	"chainguard.dev/sandboxagent/agents/executor/googleexecutor"
	"chainguard.dev/sandboxagent/codingagent"
	"chainguard.dev/sandboxagent/failure"
	"chainguard.dev/sandboxagent/publisher"
	"chainguard.dev/sandboxagent/sandbox"
	"chainguard.dev/sandboxagent/sandbox/local"
	"cloud.google.com/go/compute/metadata"
	"cloud.google.com/go/storage"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/vertex"
	"github.com/chainguard-dev/clog"
	"github.com/sethvargo/go-envconfig"
	"golang.org/x/oauth2"
	"google.golang.org/genai"
)

// Sandbox providers.
const (
	SandboxRemote = "remote"
	SandboxLocal  = "local"
)

// Model providers.
const (
	ProviderClaude = "claude"
	ProviderGemini = "gemini"
)

// Config is the agent configuration shared by every binary.
type Config struct {
	RepoURL string `env:"REPO_URL,required"`

	// GitHub credentials. A token takes precedence over App credentials;
	// with neither, create_pr reports a configuration failure.
	GitHubToken          string `env:"GITHUB_TOKEN"`
	GitHubAppID          int64  `env:"GITHUB_APP_ID"`
	GitHubInstallationID int64  `env:"GITHUB_INSTALLATION_ID"`
	GitHubAppPrivateKey  string `env:"GITHUB_APP_PRIVATE_KEY"`
	GitHubBaseBranch     string `env:"GITHUB_BASE_BRANCH,default=main"`

	SandboxProvider string        `env:"SANDBOX_PROVIDER,default=remote"`
	SandboxAPIURL   string        `env:"SANDBOX_API_URL"`
	SandboxToken    string        `env:"SANDBOX_TOKEN"`
	SandboxTeamID   string        `env:"SANDBOX_TEAM_ID"`
	SandboxDir      string        `env:"SANDBOX_DIR"`
	SandboxVCPUs    int           `env:"SANDBOX_VCPUS,default=2"`
	SandboxTimeout  time.Duration `env:"SANDBOX_TIMEOUT,default=1m"`
	SandboxRuntime  string        `env:"SANDBOX_RUNTIME,default=node22"`

	AgentProvider   string `env:"AGENT_PROVIDER,default=claude"`
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	GCPProjectID    string `env:"GCP_PROJECT_ID"`
	GCPRegion       string `env:"GCP_REGION,default=us-east5"`
	ClaudeModel     string `env:"CLAUDE_MODEL"`
	GeminiModel     string `env:"GEMINI_MODEL"`

	// TraceBucket, when set, archives every agent trace to GCS.
	TraceBucket string `env:"TRACE_BUCKET"`
	TracePrefix string `env:"TRACE_PREFIX,default=traces"`

	// EvalsEnabled grades every completed trace and exports the outcome
	// as Prometheus metrics.
	EvalsEnabled bool `env:"EVALS_ENABLED,default=true"`
}

// Load reads the configuration from the environment.
func Load(ctx context.Context) (*Config, error) {
	return LoadWith(ctx, envconfig.OsLookuper())
}

// LoadWith reads the configuration through l.
func LoadWith(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return nil, failure.Wrap(failure.Config, err, "")
	}
	return &cfg, nil
}

// GitHubTokenSource returns the configured GitHub credentials, or nil when
// there are none.
func (c *Config) GitHubTokenSource() (oauth2.TokenSource, error) {
	switch {
	case c.GitHubToken != "":
		return publisher.StaticTokenSource(c.GitHubToken), nil
	case c.GitHubAppID != 0 && c.GitHubInstallationID != 0 && c.GitHubAppPrivateKey != "":
		return publisher.AppTokenSource(c.GitHubAppID, c.GitHubInstallationID, []byte(c.GitHubAppPrivateKey))
	default:
		return nil, nil
	}
}

// Sandboxes returns the configured sandbox provider.
func (c *Config) Sandboxes(ctx context.Context, github oauth2.TokenSource) (sandbox.Provider, error) {
	switch c.SandboxProvider {
	case SandboxRemote:
		if c.SandboxToken == "" {
			return nil, failure.New(failure.Config, "SANDBOX_TOKEN environment variable is required")
		}
		var opts []sandbox.ClientOption
		if c.SandboxAPIURL != "" {
			opts = append(opts, sandbox.WithBaseURL(c.SandboxAPIURL))
		}
		if c.SandboxTeamID != "" {
			opts = append(opts, sandbox.WithTeamID(c.SandboxTeamID))
		}
		return sandbox.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: c.SandboxToken}), opts...)
	case SandboxLocal:
		opts := []local.Option{local.WithBaseDir(c.SandboxDir)}
		if github != nil {
			opts = append(opts, local.WithTokenSource(github))
		}
		return local.New(opts...), nil
	default:
		return nil, failure.New(failure.Config, "unknown sandbox provider %q", c.SandboxProvider)
	}
}

// CreateOptions returns the sandbox overrides.
func (c *Config) CreateOptions() sandbox.CreateOptions {
	return sandbox.CreateOptions{
		Resources: sandbox.Resources{VCPUs: c.SandboxVCPUs},
		Timeout:   c.SandboxTimeout,
		Runtime:   c.SandboxRuntime,
	}
}

// needsProject reports whether any configured component talks to Google
// Cloud.
func (c *Config) needsProject() bool {
	return c.TraceBucket != "" ||
		c.AgentProvider == ProviderGemini ||
		(c.AgentProvider == ProviderClaude && c.AnthropicAPIKey == "")
}

// ProjectID returns GCP_PROJECT_ID, falling back to the metadata server.
func (c *Config) ProjectID(ctx context.Context) (string, error) {
	if c.GCPProjectID != "" {
		return c.GCPProjectID, nil
	}
	id, err := metadata.ProjectIDWithContext(ctx)
	if err != nil {
		return "", failure.Wrap(failure.Config, err, "GCP_PROJECT_ID is unset and the metadata server is unavailable")
	}
	return id, nil
}

// Executor returns the model executor for the configured provider.
func (c *Config) Executor(ctx context.Context, projectID string) (codingagent.Executor, error) {
	switch c.AgentProvider {
	case ProviderClaude:
		var ropts []option.RequestOption
		if c.AnthropicAPIKey != "" {
			ropts = append(ropts, option.WithAPIKey(c.AnthropicAPIKey))
		} else {
			ropts = append(ropts, vertex.WithGoogleAuth(ctx, c.GCPRegion, projectID))
		}
		var opts []claudeexecutor.Option[*codingagent.Request, *codingagent.Result]
		if c.ClaudeModel != "" {
			opts = append(opts, claudeexecutor.WithModel[*codingagent.Request, *codingagent.Result](c.ClaudeModel))
		}
		return codingagent.NewClaudeExecutor(anthropic.NewClient(ropts...), opts...)

	case ProviderGemini:
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			Project:  projectID,
			Location: c.GCPRegion,
			Backend:  genai.BackendVertexAI,
		})
		if err != nil {
			return nil, fmt.Errorf("creating genai client: %w", err)
		}
		var opts []googleexecutor.Option[*codingagent.Request, *codingagent.Result]
		if c.GeminiModel != "" {
			opts = append(opts, googleexecutor.WithModel[*codingagent.Request, *codingagent.Result](c.GeminiModel))
		}
		return codingagent.NewGeminiExecutor(client, opts...)

	default:
		return nil, failure.New(failure.Config, "unknown agent provider %q", c.AgentProvider)
	}
}

// TraceCallbacks returns the callbacks run on every completed trace: the
// evaluation suite when EVALS_ENABLED is set and the GCS archiver when
// TRACE_BUCKET is. The returned close function releases the storage client.
func (c *Config) TraceCallbacks(ctx context.Context) ([]agenttrace.TraceCallback[*codingagent.Result], func() error, error) {
	var cbs []agenttrace.TraceCallback[*codingagent.Result]
	if c.EvalsEnabled {
		cbs = append(cbs, codingagent.Evals().Callbacks(evals.NewMetricsObserver)...)
	}
	if c.TraceBucket == "" {
		return cbs, func() error { return nil }, nil
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("creating storage client: %w", err)
	}
	cbs = append(cbs, agenttrace.GCSCallback[*codingagent.Result](ctx, client, c.TraceBucket, c.TracePrefix))
	return cbs, client.Close, nil
}

// Agent is a built agent and the context its requests should derive from.
type Agent struct {
	codingagent.Agent

	// Context carries the tracer for evaluations and trace archiving.
	Context context.Context

	close []func() error
}

// Close releases the clients held by the agent.
func (a *Agent) Close() error {
	var errs []error
	for _, fn := range a.close {
		errs = append(errs, fn())
	}
	return errors.Join(errs...)
}

// Build wires every component described by c.
func (c *Config) Build(ctx context.Context) (*Agent, error) {
	log := clog.FromContext(ctx)

	gh, err := c.GitHubTokenSource()
	if err != nil {
		return nil, err
	}
	sandboxes, err := c.Sandboxes(ctx, gh)
	if err != nil {
		return nil, err
	}

	acfg := codingagent.Config{
		RepoURL:   c.RepoURL,
		Sandboxes: sandboxes,
		Sandbox:   c.CreateOptions(),
	}
	if pub, err := publisher.New(ctx, publisher.Config{TokenSource: gh, BaseBranch: c.GitHubBaseBranch}); err != nil {
		log.Warnf("Pull requests disabled: %s", failure.Message(err))
	} else {
		acfg.Publisher = pub
	}

	var projectID string
	if c.needsProject() {
		if projectID, err = c.ProjectID(ctx); err != nil {
			return nil, err
		}
		log.With("project_id", projectID).Info("Using Google Cloud project")
	}

	exec, err := c.Executor(ctx, projectID)
	if err != nil {
		return nil, err
	}
	agent, err := codingagent.New(acfg, exec)
	if err != nil {
		return nil, err
	}

	out := &Agent{Agent: agent, Context: ctx}
	cbs, closeTraces, err := c.TraceCallbacks(ctx)
	if err != nil {
		return nil, err
	}
	out.close = append(out.close, closeTraces)
	if len(cbs) > 0 {
		out.Context = agenttrace.WithTracer(ctx, agenttrace.ByCode(cbs...))
		log.With("evals", c.EvalsEnabled).With("bucket", c.TraceBucket).Info("Recording agent traces")
	}

	log.With("provider", c.AgentProvider).
		With("sandbox", c.SandboxProvider).
		With("repository", strings.TrimSuffix(c.RepoURL, ".git")).
		Info("Coding agent configured")
	return out, nil
}

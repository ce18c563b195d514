/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package publisher

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"chainguard.dev/sandboxagent/failure"
	"chainguard.dev/sandboxagent/sandbox"
	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"
	"golang.org/x/oauth2"
)

const (
	DefaultAuthorName   = "AI Coding Agent"
	DefaultAuthorEmail  = "ai-agent@example.com"
	DefaultBaseBranch   = "main"
	DefaultBranchPrefix = "feature/ai-changes"
	DefaultMarkerFile   = ".ai-activity.md"
)

// excludedArchives are pathspecs keeping archives out of every commit.
var excludedArchives = []string{
	":!*.tar", ":!*.tar.gz", ":!*.tar.bz2", ":!*.tar.xz",
	":!*.tgz", ":!*.tbz", ":!*.tbz2", ":!*.txz",
}

// The repository name may itself contain dots; only a trailing .git is dropped.
var repoURLPattern = regexp.MustCompile(`github\.com[/:]([^/]+)/([^/?#]+?)(?:\.git)?(?:[/?#]|$)`)

// Config configures a Publisher.
type Config struct {
	// TokenSource provides the GitHub token used to push and open pull
	// requests. Required.
	TokenSource oauth2.TokenSource

	AuthorName   string
	AuthorEmail  string
	BaseBranch   string
	BranchPrefix string
	MarkerFile   string

	// GitHubClient overrides the client built from TokenSource.
	GitHubClient *github.Client
}

// Request describes the pull request to open.
type Request struct {
	Title string
	Body  string
	// Branch is the branch name prefix; DefaultBranchPrefix when empty.
	Branch string
}

// Result describes an opened pull request.
type Result struct {
	Branch string `json:"branch"`
	URL    string `json:"pr_url"`
	Number int    `json:"pr_number"`
}

// Publisher commits the changes in a sandbox working tree to a new branch
// and opens a pull request for it.
type Publisher struct {
	cfg Config
	gh  *github.Client
	now func() time.Time

	mu     sync.Mutex
	lastMS int64
}

// New returns a Publisher, or a config failure when no token source is
// configured.
func New(ctx context.Context, cfg Config) (*Publisher, error) {
	if cfg.TokenSource == nil {
		return nil, failure.New(failure.Config, "GITHUB_TOKEN environment variable is required")
	}
	if cfg.AuthorName == "" {
		cfg.AuthorName = DefaultAuthorName
	}
	if cfg.AuthorEmail == "" {
		cfg.AuthorEmail = DefaultAuthorEmail
	}
	if cfg.BaseBranch == "" {
		cfg.BaseBranch = DefaultBaseBranch
	}
	if cfg.BranchPrefix == "" {
		cfg.BranchPrefix = DefaultBranchPrefix
	}
	if cfg.MarkerFile == "" {
		cfg.MarkerFile = DefaultMarkerFile
	}

	gh := cfg.GitHubClient
	if gh == nil {
		gh = github.NewClient(oauth2.NewClient(ctx, cfg.TokenSource))
	}
	return &Publisher{cfg: cfg, gh: gh, now: time.Now}, nil
}

// ParseRepoURL extracts the owner and repository name from a GitHub URL in
// https or scp form. A trailing .git is dropped.
func ParseRepoURL(repoURL string) (owner, repo string, err error) {
	m := repoURLPattern.FindStringSubmatch(repoURL)
	if m == nil {
		return "", "", failure.New(failure.InvalidURL, "Invalid GitHub repository URL")
	}
	return m[1], m[2], nil
}

// branchName returns prefix suffixed with the current unix time in
// milliseconds. Names are strictly increasing across calls.
func (p *Publisher) branchName(prefix string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ms := p.now().UnixMilli()
	if ms <= p.lastMS {
		ms = p.lastMS + 1
	}
	p.lastMS = ms
	return fmt.Sprintf("%s-%d", prefix, ms)
}

// Publish commits everything in the sandbox working tree (except archives)
// to a fresh branch, pushes it, and opens a pull request against the base
// branch. When nothing changed, a marker file is committed so that the pull
// request is never empty.
//
// Steps run in order and the first failure aborts; nothing is rolled back.
func (p *Publisher) Publish(ctx context.Context, sb sandbox.Runner, repoURL string, req Request) (*Result, error) {
	log := clog.FromContext(ctx)

	tok, err := p.cfg.TokenSource.Token()
	if err != nil {
		return nil, failure.Wrap(failure.Config, err, "could not obtain GitHub token")
	}
	if tok.AccessToken == "" {
		return nil, failure.New(failure.Config, "GITHUB_TOKEN environment variable is required")
	}
	token := tok.AccessToken

	owner, repo, err := ParseRepoURL(repoURL)
	if err != nil {
		return nil, err
	}

	prefix := req.Branch
	if prefix == "" {
		prefix = p.cfg.BranchPrefix
	}
	branch := p.branchName(prefix)
	log = log.With("owner", owner).With("repo", repo).With("branch", branch)
	log.Infof("Creating PR with title: %s", req.Title)

	g := &gitRunner{sb: sb, secret: token}
	remote := fmt.Sprintf("https://x-access-token:%s@github.com/%s/%s.git", token, owner, repo)

	steps := [][]string{
		{"config", "user.email", p.cfg.AuthorEmail},
		{"config", "user.name", p.cfg.AuthorName},
		{"remote", "set-url", "origin", remote},
		{"checkout", "-b", branch},
		addArgs(),
	}
	for _, args := range steps {
		if _, err := g.run(ctx, args...); err != nil {
			return nil, err
		}
	}

	staged, err := g.run(ctx, "diff", "--cached", "--name-only")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(staged) == "" {
		log.Info("No changes staged, writing activity marker")
		marker := fmt.Sprintf("AI Agent Activity: %s\n", p.now().UTC().Format(time.RFC3339))
		if err := sb.WriteFiles(ctx, sandbox.File{Path: p.cfg.MarkerFile, Content: []byte(marker)}); err != nil {
			return nil, failure.Wrap(failure.RemoteCommand, g.redact(err), "")
		}
		if _, err := g.run(ctx, addArgs()...); err != nil {
			return nil, err
		}
	}

	if _, err := g.run(ctx, "commit", "-m", req.Title); err != nil {
		return nil, err
	}
	if _, err := g.run(ctx, "push", "origin", branch); err != nil {
		return nil, err
	}

	pr, _, err := p.gh.PullRequests.Create(ctx, owner, repo, &github.NewPullRequest{
		Title: github.Ptr(req.Title),
		Body:  github.Ptr(req.Body),
		Head:  github.Ptr(branch),
		Base:  github.Ptr(p.cfg.BaseBranch),
	})
	if err != nil {
		var ghErr *github.ErrorResponse
		if errors.As(err, &ghErr) && ghErr.Message != "" {
			return nil, failure.Wrap(failure.Provider, g.redact(err), "%s", ghErr.Message)
		}
		return nil, failure.Wrap(failure.Provider, g.redact(err), "Failed to create PR")
	}
	if pr.GetHTMLURL() == "" {
		return nil, failure.New(failure.Provider, "Failed to create PR")
	}

	log.Infof("Created PR #%d: %s", pr.GetNumber(), pr.GetHTMLURL())
	return &Result{Branch: branch, URL: pr.GetHTMLURL(), Number: pr.GetNumber()}, nil
}

func addArgs() []string {
	return append([]string{"add", "."}, excludedArchives...)
}

// gitRunner runs git in the sandbox and scrubs secret from failures.
type gitRunner struct {
	sb     sandbox.Runner
	secret string
}

func (g *gitRunner) run(ctx context.Context, args ...string) (string, error) {
	res, err := g.sb.RunCommand(ctx, "git", args...)
	if err != nil {
		return "", failure.Wrap(failure.RemoteCommand, g.redact(err), "")
	}
	return res.Stdout, nil
}

func (g *gitRunner) redact(err error) error {
	if err == nil || g.secret == "" || !strings.Contains(err.Error(), g.secret) {
		return err
	}
	return &redactedError{err: err, secret: g.secret}
}

type redactedError struct {
	err    error
	secret string
}

func (e *redactedError) Error() string {
	return strings.ReplaceAll(e.err.Error(), e.secret, "***")
}

func (e *redactedError) Unwrap() error { return e.err }

/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package local implements a sandbox.Provider that clones the source
// repository into a temporary directory and runs commands on the host.
//
// It exists for development and integration tests; it offers no isolation.
package local

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"chainguard.dev/sandboxagent/sandbox"
	"github.com/chainguard-dev/clog"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"golang.org/x/oauth2"
)

const dirPrefix = "sandbox-"

// Provider creates local sandboxes.
type Provider struct {
	tokenSource oauth2.TokenSource
	baseDir     string
}

var _ sandbox.Provider = (*Provider)(nil)

// Option configures a Provider.
type Option func(*Provider)

// WithTokenSource authenticates clones of private repositories.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(p *Provider) { p.tokenSource = ts }
}

// WithBaseDir places sandbox directories under dir instead of os.TempDir.
func WithBaseDir(dir string) Option {
	return func(p *Provider) { p.baseDir = dir }
}

// New returns a local Provider.
func New(opts ...Option) *Provider {
	p := &Provider{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Create clones opts.Source into a fresh directory. Resources and Ports are
// recorded on the handle but not enforced; Timeout is enforced on every
// subsequent operation.
func (p *Provider) Create(ctx context.Context, opts sandbox.CreateOptions) (sandbox.Sandbox, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp(p.baseDir, dirPrefix)
	if err != nil {
		return nil, fmt.Errorf("creating temp dir: %w", err)
	}

	cloneOpts := &git.CloneOptions{URL: opts.Source.URL}
	if opts.Source.Revision != "" {
		cloneOpts.ReferenceName = plumbing.NewBranchReferenceName(opts.Source.Revision)
		cloneOpts.SingleBranch = true
	}
	if p.tokenSource != nil {
		token, err := p.tokenSource.Token()
		if err != nil {
			os.RemoveAll(dir)
			return nil, fmt.Errorf("getting token: %w", err)
		}
		cloneOpts.Auth = &githttp.BasicAuth{
			Username: "x-access-token",
			Password: token.AccessToken,
		}
	}

	clog.FromContext(ctx).Infof("Cloning repository %s into %s", opts.Source.URL, dir)
	if _, err := git.PlainCloneContext(ctx, dir, false, cloneOpts); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("cloning repository: %w", err)
	}

	return &Sandbox{
		root:    dir,
		expires: time.Now().Add(opts.Timeout),
		handle: sandbox.Handle{
			ID:        filepath.Base(dir),
			Status:    sandbox.StatusRunning,
			Resources: opts.Resources,
			Timeout:   opts.Timeout,
			Ports:     opts.Ports,
			Runtime:   opts.Runtime,
			WorkDir:   dir,
		},
	}, nil
}

// Sandbox is a working directory on the host.
type Sandbox struct {
	mu      sync.Mutex
	root    string
	expires time.Time
	handle  sandbox.Handle
}

var _ sandbox.Sandbox = (*Sandbox)(nil)

// ErrStopped is returned by operations on a stopped or expired sandbox.
var ErrStopped = errors.New("sandbox is not running")

func (s *Sandbox) Handle() sandbox.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

// Dir returns the sandbox working directory.
func (s *Sandbox) Dir() string { return s.root }

func (s *Sandbox) checkRunning() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle.Status == sandbox.StatusRunning && time.Now().After(s.expires) {
		s.handle.Status = sandbox.StatusStopped
	}
	if s.handle.Status != sandbox.StatusRunning {
		return ErrStopped
	}
	return nil
}

func (s *Sandbox) RunCommand(ctx context.Context, name string, args ...string) (*sandbox.CommandResult, error) {
	if err := s.checkRunning(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithDeadline(ctx, s.expires)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = s.root
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := &sandbox.CommandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr) && ctx.Err() == nil:
		res.ExitCode = exitErr.ExitCode()
	default:
		return nil, fmt.Errorf("running %s: %w", name, err)
	}
	return res, sandbox.CheckExit(name, args, res)
}

func (s *Sandbox) WriteFiles(_ context.Context, files ...sandbox.File) error {
	if err := s.checkRunning(); err != nil {
		return err
	}
	for _, f := range files {
		full, err := s.resolve(f.Path)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return fmt.Errorf("creating parent of %s: %w", f.Path, err)
		}
		mode := os.FileMode(f.Mode)
		if mode == 0 {
			mode = 0o644
		}
		if err := os.WriteFile(full, f.Content, mode); err != nil {
			return fmt.Errorf("writing %s: %w", f.Path, err)
		}
	}
	return nil
}

// resolve maps a sandbox-relative path to a host path, rejecting paths that
// escape the sandbox directory.
func (s *Sandbox) resolve(path string) (string, error) {
	if path == "" {
		return "", errors.New("file path cannot be empty")
	}
	full := filepath.Join(s.root, filepath.Clean(path))
	if filepath.IsAbs(path) {
		full = filepath.Clean(path)
	}
	rel, err := filepath.Rel(s.root, full)
	if err != nil {
		return "", fmt.Errorf("invalid path %q: %w", path, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the sandbox", path)
	}
	return full, nil
}

// Stop removes the sandbox directory.
func (s *Sandbox) Stop(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handle.Status = sandbox.StatusStopped
	if err := os.RemoveAll(s.root); err != nil {
		return fmt.Errorf("removing %s: %w", s.root, err)
	}
	return nil
}

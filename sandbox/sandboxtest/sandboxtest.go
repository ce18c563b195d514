/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package sandboxtest provides an in-memory sandbox for tests.
package sandboxtest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"chainguard.dev/sandboxagent/sandbox"
)

// Call records a single RunCommand invocation.
type Call struct {
	Name string
	Args []string
}

// String renders the call as a shell-like command line.
func (c Call) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Handler scripts the result of a command. Returning a result with a
// non-zero exit code produces a *sandbox.CommandError from RunCommand.
type Handler func(s *Sandbox, args []string) (*sandbox.CommandResult, error)

// Sandbox is a fake sandbox.Sandbox backed by an in-memory filesystem.
//
// cat and ls are served from Files unless scripted with On. Any other
// unscripted command succeeds with empty output.
type Sandbox struct {
	mu       sync.Mutex
	Files    map[string]string
	Calls    []Call
	Writes   []sandbox.File
	Stopped  bool
	handle   sandbox.Handle
	handlers map[string]Handler

	// WriteErr, when set, is returned by WriteFiles.
	WriteErr error
}

var _ sandbox.Sandbox = (*Sandbox)(nil)

// New returns a running fake sandbox seeded with files.
func New(files map[string]string) *Sandbox {
	s := &Sandbox{
		Files:    map[string]string{},
		handlers: map[string]Handler{},
		handle: sandbox.Handle{
			ID:      "sbx_test",
			Status:  sandbox.StatusRunning,
			WorkDir: "/vercel/sandbox",
		},
	}
	for k, v := range files {
		s.Files[k] = v
	}
	return s
}

// On scripts the named command. The key is either a command name ("git") or
// a command name and its first argument ("git push").
func (s *Sandbox) On(key string, h Handler) *Sandbox {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[key] = h
	return s
}

// Fail scripts key to exit with the given code and stderr.
func (s *Sandbox) Fail(key string, code int, stderr string) *Sandbox {
	return s.On(key, func(*Sandbox, []string) (*sandbox.CommandResult, error) {
		return &sandbox.CommandResult{ExitCode: code, Stderr: stderr}, nil
	})
}

// Output scripts key to succeed with the given stdout.
func (s *Sandbox) Output(key, stdout string) *Sandbox {
	return s.On(key, func(*Sandbox, []string) (*sandbox.CommandResult, error) {
		return &sandbox.CommandResult{Stdout: stdout}, nil
	})
}

// CommandLines returns every recorded call rendered with Call.String.
func (s *Sandbox) CommandLines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.Calls))
	for _, c := range s.Calls {
		out = append(out, c.String())
	}
	return out
}

// File returns the content of path and whether it exists.
func (s *Sandbox) File(path string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.Files[path]
	return v, ok
}

// SetFile creates or replaces path. Handlers use it to simulate commands
// that modify the filesystem.
func (s *Sandbox) SetFile(path, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Files[path] = content
}

func (s *Sandbox) Handle() sandbox.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

func (s *Sandbox) RunCommand(ctx context.Context, name string, args ...string) (*sandbox.CommandResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.Stopped {
		s.mu.Unlock()
		return nil, errors.New("sandbox is stopped")
	}
	s.Calls = append(s.Calls, Call{Name: name, Args: append([]string(nil), args...)})
	h := s.lookup(name, args)
	s.mu.Unlock()

	var (
		res *sandbox.CommandResult
		err error
	)
	switch {
	case h != nil:
		res, err = h(s, args)
	case name == "cat":
		res = s.cat(args)
	case name == "ls":
		res = s.ls(args)
	default:
		res = &sandbox.CommandResult{}
	}
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = &sandbox.CommandResult{}
	}
	return res, sandbox.CheckExit(name, args, res)
}

func (s *Sandbox) lookup(name string, args []string) Handler {
	if len(args) > 0 {
		if h, ok := s.handlers[name+" "+args[0]]; ok {
			return h
		}
	}
	return s.handlers[name]
}

func (s *Sandbox) cat(args []string) *sandbox.CommandResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out strings.Builder
	for _, p := range args {
		content, ok := s.Files[p]
		if !ok {
			return &sandbox.CommandResult{ExitCode: 1, Stderr: fmt.Sprintf("cat: %s: No such file or directory\n", p)}
		}
		out.WriteString(content)
	}
	return &sandbox.CommandResult{Stdout: out.String()}
}

// ls lists the files under the directory named by the last argument in a
// format resembling ls -la.
func (s *Sandbox) ls(args []string) *sandbox.CommandResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	dir := "."
	for _, a := range args {
		if !strings.HasPrefix(a, "-") {
			dir = a
		}
	}
	prefix := ""
	if dir != "." {
		prefix = strings.TrimSuffix(dir, "/") + "/"
	}

	var names []string
	for p := range s.Files {
		if rel, ok := strings.CutPrefix(p, prefix); ok {
			names = append(names, rel)
		}
	}
	if len(names) == 0 && prefix != "" {
		return &sandbox.CommandResult{ExitCode: 2, Stderr: fmt.Sprintf("ls: cannot access '%s': No such file or directory\n", dir)}
	}
	sort.Strings(names)

	var out strings.Builder
	fmt.Fprintf(&out, "total %d\n", len(names))
	for _, n := range names {
		fmt.Fprintf(&out, "-rw-r--r-- 1 user user %d Jan  1 00:00 %s\n", len(s.Files[prefix+n]), n)
	}
	return &sandbox.CommandResult{Stdout: out.String()}
}

func (s *Sandbox) WriteFiles(ctx context.Context, files ...sandbox.File) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Stopped {
		return errors.New("sandbox is stopped")
	}
	if s.WriteErr != nil {
		return s.WriteErr
	}
	for _, f := range files {
		s.Writes = append(s.Writes, f)
		s.Files[f.Path] = string(f.Content)
	}
	return nil
}

func (s *Sandbox) Stop(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Stopped = true
	s.handle.Status = sandbox.StatusStopped
	return nil
}

// Provider hands out fake sandboxes and records the options they were
// created with.
type Provider struct {
	mu      sync.Mutex
	Seed    map[string]string
	Created []sandbox.CreateOptions
	Last    *Sandbox

	// Setup, when set, is applied to each new sandbox before it is returned.
	Setup func(*Sandbox)
	// Err, when set, is returned by Create.
	Err error
}

var _ sandbox.Provider = (*Provider)(nil)

func (p *Provider) Create(_ context.Context, opts sandbox.CreateOptions) (sandbox.Sandbox, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return nil, p.Err
	}
	p.Created = append(p.Created, opts)
	s := New(p.Seed)
	s.handle.Timeout = opts.Timeout
	s.handle.Resources = opts.Resources
	s.handle.Ports = opts.Ports
	s.handle.Runtime = opts.Runtime
	if p.Setup != nil {
		p.Setup(s)
	}
	p.Last = s
	return s, nil
}

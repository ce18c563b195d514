/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Runner is the subset of a sandbox needed to operate on its filesystem:
// command execution and whole-file writes.
type Runner interface {
	// RunCommand runs name with args in the sandbox working directory and
	// waits for it to exit. A non-zero exit returns both the result and a
	// *CommandError.
	RunCommand(ctx context.Context, name string, args ...string) (*CommandResult, error)

	// WriteFiles creates or overwrites the given files. Paths are relative
	// to the sandbox working directory.
	WriteFiles(ctx context.Context, files ...File) error
}

// Sandbox is a running remote environment owned by the caller that created it.
type Sandbox interface {
	Runner

	// Handle describes the running sandbox.
	Handle() Handle

	// Stop releases the sandbox. Commands issued after Stop fail.
	Stop(ctx context.Context) error
}

// Provider provisions sandboxes.
type Provider interface {
	Create(ctx context.Context, opts CreateOptions) (Sandbox, error)
}

// Handle is an opaque reference to a running sandbox.
type Handle struct {
	ID        string
	Status    Status
	Routes    []Route
	Resources Resources
	Timeout   time.Duration
	Ports     []int
	Runtime   string
	WorkDir   string
}

// Endpoint returns the URL of the first exposed route, or "" when the
// sandbox exposes no ports.
func (h Handle) Endpoint() string {
	if len(h.Routes) == 0 {
		return ""
	}
	return h.Routes[0].URL
}

// Status is the lifecycle state reported by the provider.
type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
	StatusStopped  Status = "stopped"
	StatusFailed   Status = "failed"
)

// Route maps an exposed port to a public URL.
type Route struct {
	URL       string `json:"url"`
	Subdomain string `json:"subdomain"`
	Port      int    `json:"port"`
}

// Resources are the compute resources allocated to a sandbox.
type Resources struct {
	VCPUs int `json:"vcpus"`
}

// Source is the git repository a sandbox is seeded from.
type Source struct {
	URL      string
	Revision string
}

// CreateOptions configures a new sandbox.
type CreateOptions struct {
	Source    Source
	Resources Resources
	Timeout   time.Duration
	Ports     []int
	Runtime   string
}

// DefaultCreateOptions returns the options used for agent sandboxes: two
// vCPUs, a one minute lifetime, port 3000 exposed, and the node22 runtime.
func DefaultCreateOptions(repoURL string) CreateOptions {
	return CreateOptions{
		Source:    Source{URL: repoURL},
		Resources: Resources{VCPUs: 2},
		Timeout:   time.Minute,
		Ports:     []int{3000},
		Runtime:   "node22",
	}
}

// Validate checks that the options describe a creatable sandbox.
func (o CreateOptions) Validate() error {
	switch {
	case o.Source.URL == "":
		return errors.New("source url cannot be empty")
	case o.Resources.VCPUs <= 0:
		return fmt.Errorf("vcpus must be positive, got %d", o.Resources.VCPUs)
	case o.Timeout <= 0:
		return fmt.Errorf("timeout must be positive, got %v", o.Timeout)
	}
	return nil
}

// File is a file to write into a sandbox.
type File struct {
	Path    string
	Content []byte
	Mode    int64 // permission bits, 0644 when zero
}

// CommandResult is the outcome of a finished command.
type CommandResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Output returns the command's standard output.
func (r *CommandResult) Output() string {
	if r == nil {
		return ""
	}
	return r.Stdout
}

// CommandError reports a command that exited non-zero.
type CommandError struct {
	Command  string
	Args     []string
	ExitCode int
	Stderr   string
}

func (e *CommandError) Error() string {
	// Only the subcommand is included: later arguments may carry credentials.
	name := e.Command
	if len(e.Args) > 0 {
		name += " " + e.Args[0]
	}
	msg := fmt.Sprintf("command %q exited with code %d", name, e.ExitCode)
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += ": " + stderr
	}
	return msg
}

// CheckExit returns a *CommandError when res reports a non-zero exit.
func CheckExit(name string, args []string, res *CommandResult) error {
	if res.ExitCode == 0 {
		return nil
	}
	return &CommandError{Command: name, Args: args, ExitCode: res.ExitCode, Stderr: res.Stderr}
}

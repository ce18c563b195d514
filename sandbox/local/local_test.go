/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package local

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"chainguard.dev/sandboxagent/sandbox"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"
)

// sourceRepo creates a repository with a single commit containing files.
func sourceRepo(t *testing.T, files map[string]string) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)

	for name, content := range files {
		full := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
		_, err := wt.Add(name)
		require.NoError(t, err)
	}
	_, err = wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)
	return dir
}

func TestCreateRunAndStop(t *testing.T) {
	src := sourceRepo(t, map[string]string{"README.md": "# Demo\nfoo\n"})
	ctx := context.Background()

	p := New(WithBaseDir(t.TempDir()))
	sb, err := p.Create(ctx, sandbox.DefaultCreateOptions(src))
	require.NoError(t, err)

	h := sb.Handle()
	if h.Status != sandbox.StatusRunning {
		t.Errorf("Status = %q, want running", h.Status)
	}
	if h.Runtime != "node22" || h.Resources.VCPUs != 2 {
		t.Errorf("Handle() = %+v, want defaults recorded", h)
	}

	res, err := sb.RunCommand(ctx, "cat", "README.md")
	require.NoError(t, err)
	if got, want := res.Stdout, "# Demo\nfoo\n"; got != want {
		t.Errorf("cat = %q, want %q", got, want)
	}

	require.NoError(t, sb.WriteFiles(ctx, sandbox.File{Path: "docs/new.md", Content: []byte("new")}))
	res, err = sb.RunCommand(ctx, "ls", "-la", "docs")
	require.NoError(t, err)
	if !strings.Contains(res.Stdout, "new.md") {
		t.Errorf("ls docs = %q, want new.md listed", res.Stdout)
	}

	_, err = sb.RunCommand(ctx, "cat", "missing.txt")
	var cmdErr *sandbox.CommandError
	if !errors.As(err, &cmdErr) || cmdErr.ExitCode == 0 {
		t.Errorf("cat missing = %v, want *CommandError", err)
	}

	dir := sb.(*Sandbox).Dir()
	require.NoError(t, sb.Stop(ctx))
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("Stat(%s) = %v, want not exist", dir, err)
	}
	if _, err := sb.RunCommand(ctx, "ls"); !errors.Is(err, ErrStopped) {
		t.Errorf("RunCommand after Stop = %v, want ErrStopped", err)
	}
}

func TestExpiredSandboxRejectsCommands(t *testing.T) {
	root := t.TempDir()
	sb := &Sandbox{
		root:    root,
		expires: time.Now().Add(-time.Second),
		handle:  sandbox.Handle{Status: sandbox.StatusRunning, WorkDir: root},
	}
	if _, err := sb.RunCommand(context.Background(), "ls"); !errors.Is(err, ErrStopped) {
		t.Errorf("RunCommand() = %v, want ErrStopped", err)
	}
	if got := sb.Handle().Status; got != sandbox.StatusStopped {
		t.Errorf("Status = %q, want stopped", got)
	}
}

func TestResolve(t *testing.T) {
	root := t.TempDir()
	sb := &Sandbox{root: root}

	tests := []struct {
		path    string
		want    string
		wantErr bool
	}{
		{path: "README.md", want: filepath.Join(root, "README.md")},
		{path: "a/../b.txt", want: filepath.Join(root, "b.txt")},
		{path: filepath.Join(root, "c.txt"), want: filepath.Join(root, "c.txt")},
		{path: "../outside", wantErr: true},
		{path: "/etc/passwd", wantErr: true},
		{path: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := sb.resolve(tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("resolve(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("resolve(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package fileops reads, lists and edits files inside a sandbox.
//
// Every operation is a sandbox command (cat, ls) or a whole-file write;
// nothing is cached between calls.
package fileops

import (
	"context"
	"strings"

	"chainguard.dev/sandboxagent/failure"
	"chainguard.dev/sandboxagent/sandbox"
	"github.com/chainguard-dev/clog"
)

// File is the content of a file read from a sandbox.
type File struct {
	Path    string
	Content string
}

// Edit replaces the first occurrence of OldText in the file at Path with
// NewText. Matching is literal.
type Edit struct {
	Path    string
	OldText string
	NewText string
}

// ReadFile returns the content of path.
func ReadFile(ctx context.Context, sb sandbox.Runner, path string) (*File, error) {
	clog.FromContext(ctx).With("path", path).Info("Reading file")

	res, err := sb.RunCommand(ctx, "cat", path)
	if err != nil {
		return nil, failure.Wrap(failure.NotFound, err, "File not found: %s", path)
	}
	return &File{Path: path, Content: res.Stdout}, nil
}

// ListFiles returns the raw `ls -la` listing of path. An empty path lists
// the sandbox working directory.
func ListFiles(ctx context.Context, sb sandbox.Runner, path string) (string, error) {
	if path == "" {
		path = "."
	}
	clog.FromContext(ctx).With("path", path).Info("Listing files")

	res, err := sb.RunCommand(ctx, "ls", "-la", path)
	if err != nil {
		return "", failure.Wrap(failure.RemoteCommand, err, "")
	}
	return res.Stdout, nil
}

type editOptions struct {
	rewriteUnchanged bool
}

// EditOption configures EditFile.
type EditOption func(*editOptions)

// WithRewriteUnchanged makes an edit whose OldText equals its NewText write
// the file back anyway, refreshing it in the sandbox.
func WithRewriteUnchanged() EditOption {
	return func(o *editOptions) { o.rewriteUnchanged = true }
}

// EditFile applies e to the file in the sandbox. The file is rewritten as a
// whole; nothing is written when the edit fails.
func EditFile(ctx context.Context, sb sandbox.Runner, e Edit, opts ...EditOption) error {
	var o editOptions
	for _, opt := range opts {
		opt(&o)
	}
	log := clog.FromContext(ctx).With("path", e.Path)
	log.Info("Editing file")

	res, err := sb.RunCommand(ctx, "cat", e.Path)
	if err != nil {
		return failure.Wrap(failure.Read, err, "Could not read file: %s", e.Path)
	}
	content := res.Stdout

	if e.OldText == e.NewText {
		if !o.rewriteUnchanged {
			log.Debug("Edit is a no-op, skipping write")
			return nil
		}
		return write(ctx, sb, e.Path, content)
	}

	updated, found := replaceFirst(content, e.OldText, e.NewText)
	if !found {
		return failure.New(failure.StringNotFound, `String "%s" not found in file`, e.OldText)
	}
	if err := write(ctx, sb, e.Path, updated); err != nil {
		return err
	}

	if res, err := sb.RunCommand(ctx, "cat", e.Path); err == nil {
		log.Debugf("File updated, now %d bytes", len(res.Stdout))
	}
	return nil
}

// WriteFile creates or overwrites path with content.
func WriteFile(ctx context.Context, sb sandbox.Runner, path, content string) error {
	clog.FromContext(ctx).With("path", path).Info("Writing file")
	return write(ctx, sb, path, content)
}

func write(ctx context.Context, sb sandbox.Runner, path, content string) error {
	if err := sb.WriteFiles(ctx, sandbox.File{Path: path, Content: []byte(content)}); err != nil {
		return failure.Wrap(failure.RemoteCommand, err, "Could not write file: %s", path)
	}
	return nil
}

func replaceFirst(s, old, repl string) (string, bool) {
	before, after, found := strings.Cut(s, old)
	if !found {
		return s, false
	}
	return before + repl + after, true
}

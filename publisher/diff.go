/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package publisher

import (
	"context"
	"fmt"

	"chainguard.dev/sandboxagent/failure"
	"chainguard.dev/sandboxagent/sandbox"
	"github.com/waigani/diffparser"
)

// ChangeMode classifies a changed file.
type ChangeMode string

const (
	Added    ChangeMode = "added"
	Deleted  ChangeMode = "deleted"
	Modified ChangeMode = "modified"
)

// FileChange summarizes the changes to one tracked file.
type FileChange struct {
	Path    string     `json:"path"`
	Mode    ChangeMode `json:"mode"`
	Added   int        `json:"added"`
	Removed int        `json:"removed"`
}

// Diff summarizes the uncommitted changes to tracked files in the sandbox
// working tree relative to HEAD.
func Diff(ctx context.Context, sb sandbox.Runner) ([]FileChange, error) {
	res, err := sb.RunCommand(ctx, "git", "diff", "HEAD")
	if err != nil {
		return nil, failure.Wrap(failure.RemoteCommand, err, "")
	}
	return ParseDiff(res.Stdout)
}

// ParseDiff summarizes a unified diff.
func ParseDiff(raw string) ([]FileChange, error) {
	if raw == "" {
		return nil, nil
	}
	d, err := diffparser.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing diff: %w", err)
	}

	changes := make([]FileChange, 0, len(d.Files))
	for _, f := range d.Files {
		fc := FileChange{Path: f.NewName, Mode: Modified}
		switch f.Mode {
		case diffparser.NEW:
			fc.Mode = Added
		case diffparser.DELETED:
			fc.Mode = Deleted
			fc.Path = f.OrigName
		}
		for _, h := range f.Hunks {
			for _, l := range h.WholeRange.Lines {
				switch l.Mode {
				case diffparser.ADDED:
					fc.Added++
				case diffparser.REMOVED:
					fc.Removed++
				}
			}
		}
		changes = append(changes, fc)
	}
	return changes, nil
}

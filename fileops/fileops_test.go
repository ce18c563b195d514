/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package fileops_test

import (
	"context"
	"errors"
	"testing"

	"chainguard.dev/sandboxagent/failure"
	"chainguard.dev/sandboxagent/fileops"
	"chainguard.dev/sandboxagent/sandbox/sandboxtest"
	"github.com/google/go-cmp/cmp"
)

func TestReadFile(t *testing.T) {
	sb := sandboxtest.New(map[string]string{"README.md": "# Demo\n"})

	got, err := fileops.ReadFile(context.Background(), sb, "README.md")
	if err != nil {
		t.Fatalf("ReadFile() = %v", err)
	}
	if diff := cmp.Diff(&fileops.File{Path: "README.md", Content: "# Demo\n"}, got); diff != "" {
		t.Errorf("ReadFile() mismatch (-want +got):\n%s", diff)
	}

	_, err = fileops.ReadFile(context.Background(), sb, "missing.md")
	if !failure.Is(err, failure.NotFound) {
		t.Errorf("ReadFile(missing) = %v, want not_found", err)
	}
	if got, want := failure.Message(err), "File not found: missing.md"; got != want {
		t.Errorf("Message() = %q, want %q", got, want)
	}
}

func TestListFilesDefaultsToWorkingDirectory(t *testing.T) {
	files := map[string]string{"README.md": "x", "src/main.go": "package main"}

	for _, path := range []string{"", "."} {
		sb := sandboxtest.New(files)
		if _, err := fileops.ListFiles(context.Background(), sb, path); err != nil {
			t.Fatalf("ListFiles(%q) = %v", path, err)
		}
		if diff := cmp.Diff([]string{"ls -la ."}, sb.CommandLines()); diff != "" {
			t.Errorf("ListFiles(%q) commands (-want +got):\n%s", path, diff)
		}
	}

	empty, _ := fileops.ListFiles(context.Background(), sandboxtest.New(files), "")
	dot, _ := fileops.ListFiles(context.Background(), sandboxtest.New(files), ".")
	if empty != dot {
		t.Errorf("ListFiles(\"\") = %q, ListFiles(\".\") = %q", empty, dot)
	}
}

func TestListFilesFailure(t *testing.T) {
	sb := sandboxtest.New(nil)
	_, err := fileops.ListFiles(context.Background(), sb, "nope")
	if !failure.Is(err, failure.RemoteCommand) {
		t.Errorf("ListFiles(nope) = %v, want remote_command", err)
	}
}

func TestEditFile(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		edit      fileops.Edit
		opts      []fileops.EditOption
		want      string
		wantKind  failure.Kind
		wantMsg   string
		wantWrite bool
	}{{
		name:      "replaces single occurrence",
		content:   "# Demo\nfoo\n",
		edit:      fileops.Edit{Path: "README.md", OldText: "foo", NewText: "bar"},
		want:      "# Demo\nbar\n",
		wantWrite: true,
	}, {
		name:      "replaces first occurrence only",
		content:   "foo foo foo",
		edit:      fileops.Edit{Path: "README.md", OldText: "foo", NewText: "bar"},
		want:      "bar foo foo",
		wantWrite: true,
	}, {
		name:      "literal match",
		content:   "a.b a*b",
		edit:      fileops.Edit{Path: "README.md", OldText: "a*b", NewText: "c"},
		want:      "a.b c",
		wantWrite: true,
	}, {
		name:     "missing string",
		content:  "# Demo\n",
		edit:     fileops.Edit{Path: "README.md", OldText: "missing-string", NewText: "x"},
		want:     "# Demo\n",
		wantKind: failure.StringNotFound,
		wantMsg:  `String "missing-string" not found in file`,
	}, {
		name:    "identical text is a no-op",
		content: "# Demo\n",
		edit:    fileops.Edit{Path: "README.md", OldText: "absent", NewText: "absent"},
		want:    "# Demo\n",
	}, {
		name:      "identical text rewrites when asked",
		content:   "# Demo\n",
		edit:      fileops.Edit{Path: "README.md", OldText: "absent", NewText: "absent"},
		opts:      []fileops.EditOption{fileops.WithRewriteUnchanged()},
		want:      "# Demo\n",
		wantWrite: true,
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sb := sandboxtest.New(map[string]string{"README.md": tt.content})

			err := fileops.EditFile(context.Background(), sb, tt.edit, tt.opts...)
			if got := failure.KindOf(err); got != tt.wantKind {
				t.Fatalf("EditFile() error = %v, want kind %q", err, tt.wantKind)
			}
			if tt.wantMsg != "" {
				if got := failure.Message(err); got != tt.wantMsg {
					t.Errorf("Message() = %q, want %q", got, tt.wantMsg)
				}
			}

			got, _ := sb.File("README.md")
			if got != tt.want {
				t.Errorf("content = %q, want %q", got, tt.want)
			}
			if wrote := len(sb.Writes) > 0; wrote != tt.wantWrite {
				t.Errorf("wrote = %v, want %v", wrote, tt.wantWrite)
			}
		})
	}
}

func TestEditFileReadFailureFailsClosed(t *testing.T) {
	sb := sandboxtest.New(nil)

	err := fileops.EditFile(context.Background(), sb, fileops.Edit{Path: "new.txt", OldText: "a", NewText: "b"})
	if !failure.Is(err, failure.Read) {
		t.Fatalf("EditFile() = %v, want read failure", err)
	}
	if len(sb.Writes) != 0 {
		t.Errorf("Writes = %v, want none", sb.Writes)
	}
	if _, ok := sb.File("new.txt"); ok {
		t.Error("new.txt was created")
	}
}

func TestEditFileWriteFailure(t *testing.T) {
	sb := sandboxtest.New(map[string]string{"README.md": "foo"})
	sb.WriteErr = errors.New("disk full")

	err := fileops.EditFile(context.Background(), sb, fileops.Edit{Path: "README.md", OldText: "foo", NewText: "bar"})
	if !failure.Is(err, failure.RemoteCommand) {
		t.Errorf("EditFile() = %v, want remote_command", err)
	}
}

func TestWriteFile(t *testing.T) {
	sb := sandboxtest.New(nil)
	if err := fileops.WriteFile(context.Background(), sb, "docs/new.md", "hello"); err != nil {
		t.Fatalf("WriteFile() = %v", err)
	}
	if got, _ := sb.File("docs/new.md"); got != "hello" {
		t.Errorf("content = %q, want hello", got)
	}
}

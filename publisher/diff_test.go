/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package publisher

import (
	"context"
	"testing"

	"chainguard.dev/sandboxagent/failure"
	"chainguard.dev/sandboxagent/sandbox/sandboxtest"
	"github.com/google/go-cmp/cmp"
)

const sampleDiff = `diff --git a/README.md b/README.md
index 3b18e51..a042389 100644
--- a/README.md
+++ b/README.md
@@ -1,2 +1,3 @@
 # Demo
-foo
+bar
+baz
`

func TestDiff(t *testing.T) {
	sb := sandboxtest.New(nil)
	sb.Output("git diff", sampleDiff)

	got, err := Diff(context.Background(), sb)
	if err != nil {
		t.Fatalf("Diff() = %v", err)
	}
	want := []FileChange{{Path: "README.md", Mode: Modified, Added: 2, Removed: 1}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Diff() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"git diff HEAD"}, sb.CommandLines()); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
}

func TestDiffClean(t *testing.T) {
	got, err := Diff(context.Background(), sandboxtest.New(nil))
	if err != nil {
		t.Fatalf("Diff() = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Diff() = %v, want no changes", got)
	}
}

func TestDiffCommandFailure(t *testing.T) {
	sb := sandboxtest.New(nil)
	sb.Fail("git diff", 128, "fatal: not a git repository")

	if _, err := Diff(context.Background(), sb); !failure.Is(err, failure.RemoteCommand) {
		t.Errorf("Diff() = %v, want remote_command", err)
	}
}

/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package result

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare", `  {"a":1}  `, `{"a":1}`},
		{"fenced", "Here you go:\n```json\n{\"a\": 1}\n```\ntrailing", `{"a": 1}`},
		{"first block wins", "```json\n{\"a\":1}\n```\n```json\n{\"a\":2}\n```", `{"a":1}`},
		{"plain fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"unterminated", "```json\n{\"a\":1}", `{"a":1}`},
		{"empty block", "```json\n```", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractJSON(tt.in); got != tt.want {
				t.Errorf("ExtractJSON() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtract(t *testing.T) {
	type summary struct {
		Summary string   `json:"summary"`
		Files   []string `json:"files_changed"`
	}
	got, err := Extract[summary]("Done.\n```json\n{\"summary\":\"updated readme\",\"files_changed\":[\"README.md\"]}\n```")
	if err != nil {
		t.Fatalf("Extract() = %v", err)
	}
	want := summary{Summary: "updated readme", Files: []string{"README.md"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Extract() mismatch (-want +got):\n%s", diff)
	}

	if _, err := Extract[summary]("no json here"); err == nil {
		t.Error("Extract() = nil, want decode error")
	}
}

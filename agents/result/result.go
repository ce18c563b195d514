/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package result recovers structured values from free-form model text.
package result

import (
	"encoding/json"
	"strings"
)

// ExtractJSON returns the body of the first ```json fenced block in text.
// Without such a block, surrounding whitespace and bare ``` fences are
// stripped and the remainder returned.
func ExtractJSON(text string) string {
	var (
		body    []string
		inBlock bool
	)
	for _, line := range strings.Split(text, "\n") {
		switch {
		case !inBlock && strings.TrimSpace(line) == "```json":
			inBlock = true
		case inBlock && strings.TrimSpace(line) == "```":
			return strings.TrimSpace(strings.Join(body, "\n"))
		case inBlock:
			body = append(body, line)
		}
	}
	if inBlock {
		// Unterminated fence.
		return strings.TrimSpace(strings.Join(body, "\n"))
	}

	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

// Extract decodes the JSON found by ExtractJSON into a T.
func Extract[T any](text string) (T, error) {
	var out T
	err := json.Unmarshal([]byte(ExtractJSON(text)), &out)
	return out, err
}

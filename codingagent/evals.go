/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package codingagent

import (
	"errors"

	"chainguard.dev/sandboxagent/agents/evals"
)

// maxToolCalls is well above what a focused change needs; runs past it
// usually mean the model is looping.
const maxToolCalls = 40

// Evals returns the checks run against every completed invocation.
func Evals() evals.Suite[*Result] {
	return evals.Suite[*Result]{
		"no_tool_errors":      evals.NoToolErrors[*Result](),
		"bounded_tool_calls":  evals.MaxToolCalls[*Result](maxToolCalls),
		"read_before_edit":    evals.ReadBeforeWrite[*Result]("read_file", "edit_file"),
		"single_pull_request": evals.AtMostOnce[*Result]("create_pr"),
		"has_summary": evals.ResultValidator(func(r *Result) error {
			if r.Summary == "" {
				return errors.New("result has no summary")
			}
			return nil
		}),
	}
}

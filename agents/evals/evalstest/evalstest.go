/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package evalstest reports evaluation outcomes through a *testing.T, so
// an evals.Suite can be asserted against traces produced in tests.
package evalstest

import (
	"fmt"
	"testing"

	"chainguard.dev/sandboxagent/agents/evals"
)

type observer struct {
	t      testing.TB
	prefix string
}

// New returns an Observer failing t for every failed check.
func New(t testing.TB) evals.Observer {
	return &observer{t: t}
}

// Factory returns a Suite.Callbacks factory prefixing each message with
// the check name.
func Factory(t testing.TB) func(string) evals.Observer {
	return func(check string) evals.Observer {
		return &observer{t: t, prefix: check}
	}
}

func (o *observer) msg(s string) string {
	if o.prefix == "" {
		return s
	}
	return fmt.Sprintf("%s: %s", o.prefix, s)
}

func (o *observer) Fail(s string) {
	o.t.Helper()
	o.t.Error(o.msg(s))
}

func (o *observer) Log(s string) {
	o.t.Helper()
	o.t.Log(o.msg(s))
}

func (o *observer) Grade(score float64, reasoning string) {
	o.t.Helper()
	o.t.Log(o.msg(fmt.Sprintf("Grade: %.2f - %s", score, reasoning)))
}

func (o *observer) Increment() {}

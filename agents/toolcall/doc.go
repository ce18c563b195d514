/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

/*
Package toolcall defines agent tools once, independent of the model
provider.

A Tool pairs a Definition (name, description, scalar parameters) with a
Handler that receives the decoded arguments. The claudetool and googletool
subpackages convert tools into the shapes the Anthropic and Gemini SDKs
expect.

SandboxTools builds the coding tool set over a sandbox checkout:

	tools := toolcall.SandboxTools[Result](toolcall.Workspace{
		Sandbox:   sb,
		RepoURL:   "https://github.com/acme/demo",
		Publisher: pub,
	})

Handlers never return Go errors. Failures reach the model as a map with an
"error" key so it can correct itself and try again.
*/
package toolcall

/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package sandbox provides access to ephemeral remote environments seeded
// from a git repository.
//
// A Provider creates a Sandbox; the Sandbox runs commands and writes files in
// its working directory until it is stopped or its timeout expires. Client is
// the Provider backed by the hosted sandbox REST API:
//
//	client, err := sandbox.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
//	if err != nil {
//		return err
//	}
//	sb, err := client.Create(ctx, sandbox.DefaultCreateOptions(repoURL))
//	if err != nil {
//		return err
//	}
//	defer sb.Stop(context.WithoutCancel(ctx))
//
//	res, err := sb.RunCommand(ctx, "ls", "-la", ".")
//
// The local subpackage provides a Provider that clones into a temporary
// directory and runs commands on the host, and sandboxtest provides a
// scripted in-memory fake for tests.
package sandbox

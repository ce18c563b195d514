/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

/*
Package publisher turns the working tree of a sandbox into a GitHub pull
request.

Publish configures the git identity, points origin at an authenticated
remote, creates a timestamped branch, stages everything except archives,
commits (adding an activity marker file when nothing changed), pushes, and
opens the pull request through the GitHub API:

	pub, err := publisher.New(ctx, publisher.Config{
		TokenSource: publisher.StaticTokenSource(os.Getenv("GITHUB_TOKEN")),
	})
	if err != nil {
		return err // failure.Config when no token is configured
	}

	res, err := pub.Publish(ctx, sb, "https://github.com/acme/demo.git", publisher.Request{
		Title: "Update README",
		Body:  "Generated change",
	})

Failures are *failure.Error values; the token never appears in their
messages.

Diff summarizes pending changes so an agent can review them before
publishing.
*/
package publisher

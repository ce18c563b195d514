/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package publisher

import (
	"context"
	"fmt"
	"net/http"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"golang.org/x/oauth2"
)

// StaticTokenSource returns a token source for a personal access token, or
// nil when token is empty.
func StaticTokenSource(token string) oauth2.TokenSource {
	if token == "" {
		return nil
	}
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
}

// AppTokenSource returns a token source minting installation tokens for a
// GitHub App. Tokens are cached until shortly before they expire.
func AppTokenSource(appID, installationID int64, privateKey []byte) (oauth2.TokenSource, error) {
	tr, err := ghinstallation.New(http.DefaultTransport, appID, installationID, privateKey)
	if err != nil {
		return nil, fmt.Errorf("creating installation transport: %w", err)
	}
	return oauth2.ReuseTokenSource(nil, &installationTokenSource{tr: tr}), nil
}

type installationTokenSource struct {
	tr *ghinstallation.Transport
}

func (s *installationTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.tr.Token(context.Background())
	if err != nil {
		return nil, fmt.Errorf("fetching installation token: %w", err)
	}
	expiresAt, _, err := s.tr.Expiry()
	if err != nil {
		return nil, fmt.Errorf("reading installation token expiry: %w", err)
	}
	return &oauth2.Token{AccessToken: token, TokenType: "token", Expiry: expiresAt}, nil
}

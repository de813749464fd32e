/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package oauthbroker

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
)

// StandardRefresher refreshes access tokens via the standard OAuth2
// refresh-token grant using golang.org/x/oauth2, covering every provider
// under original_source/core/src/oauth/providers/* whose refresh flow is
// plain OAuth2 (discord, microsoft, snowflake, databricks, vanta,
// ukg_ready). GitHub's connection.rs provider is the one exception — it
// mints short-lived installation access tokens from a signed JWT rather
// than exchanging a refresh token, so it needs its own TokenRefresher
// rather than this one.
type StandardRefresher struct {
	config oauth2.Config
}

// NewStandardRefresher builds a refresher for one provider's OAuth2
// endpoint.
func NewStandardRefresher(config oauth2.Config) *StandardRefresher {
	return &StandardRefresher{config: config}
}

// Refresh implements TokenRefresher.
func (r *StandardRefresher) Refresh(ctx context.Context, conn Connection) (*oauth2.Token, error) {
	if conn.RefreshToken == "" {
		return nil, fmt.Errorf("connection %q has no refresh token", conn.ConnectionID)
	}
	src := r.config.TokenSource(ctx, &oauth2.Token{RefreshToken: conn.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("refresh token for %q: %w", conn.ConnectionID, err)
	}
	return tok, nil
}

/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package oauthbroker holds and refreshes encrypted third-party OAuth
// tokens on behalf of `external_call` blocks. Grounded on
// original_source/core/src/oauth/connection.rs's Connection type (sealed
// token fields, pending/finalized status, lock-then-refresh-then-reload
// flow), extending the teacher's HTTPCredentialStore prefix-matching idea
// (internal/tools/http.go) from a static URL-prefix map to a dynamic,
// refreshable credential source keyed by connection ID.
package oauthbroker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// Status mirrors the teacher connection's Pending/Finalized lifecycle.
type Status string

const (
	StatusPending   Status = "pending"
	StatusFinalized Status = "finalized"
)

// Connection is one OAuth grant held on behalf of a project. Tokens are
// never held in the clear outside of a brief in-memory window during
// refresh; Store is responsible for encrypting them at rest.
type Connection struct {
	ConnectionID string
	Provider     string
	Status       Status
	Metadata     json.RawMessage

	AccessToken  string
	RefreshToken string
	Expiry       time.Time // zero means the access token never expires
}

// valid reports whether the held access token can still be used without a
// refresh round trip.
func (c *Connection) valid() bool {
	if c.AccessToken == "" {
		return false
	}
	return c.Expiry.IsZero() || time.Now().Before(c.Expiry)
}

// TokenRefresher exchanges a refresh token for a new access token. One
// implementation per OAuth provider (github, discord, microsoft, ...); the
// broker itself is provider-agnostic.
type TokenRefresher interface {
	Refresh(ctx context.Context, conn Connection) (*oauth2.Token, error)
}

// Store persists connections, encrypting access/refresh tokens at rest.
type Store interface {
	Load(ctx context.Context, connectionID string) (*Connection, error)
	Save(ctx context.Context, conn Connection) error
}

// Broker resolves a connection ID to a live Authorization header,
// refreshing the underlying token when it has expired. Satisfies
// blocks.OAuthResolver.
type Broker struct {
	store       Store
	refreshers  map[string]TokenRefresher
	connMu      sync.Map // connectionID -> *sync.Mutex
}

// New creates a broker backed by store, dispatching refreshes to
// refreshers keyed by provider name.
func New(store Store, refreshers map[string]TokenRefresher) *Broker {
	return &Broker{store: store, refreshers: refreshers}
}

func (b *Broker) lockFor(connectionID string) *sync.Mutex {
	v, _ := b.connMu.LoadOrStore(connectionID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// AuthHeader returns "Bearer <access_token>" for connectionID,
// refreshing first if the held access token has expired. A single-process
// per-connection mutex serializes concurrent refreshes for the same
// connection; this broker runs inside one run-manager process (C7), so the
// distributed lock the original implementation takes via Redis is
// unnecessary here.
func (b *Broker) AuthHeader(ctx context.Context, connectionID string) (string, error) {
	lock := b.lockFor(connectionID)
	lock.Lock()
	defer lock.Unlock()

	conn, err := b.store.Load(ctx, connectionID)
	if err != nil {
		return "", fmt.Errorf("load oauth connection %q: %w", connectionID, err)
	}
	if conn.Status != StatusFinalized {
		return "", fmt.Errorf("oauth connection %q is not finalized", connectionID)
	}
	if conn.valid() {
		return "Bearer " + conn.AccessToken, nil
	}

	refresher, ok := b.refreshers[conn.Provider]
	if !ok {
		return "", fmt.Errorf("no token refresher registered for provider %q", conn.Provider)
	}
	tok, err := refresher.Refresh(ctx, *conn)
	if err != nil {
		return "", fmt.Errorf("refresh oauth connection %q: %w", connectionID, err)
	}

	conn.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		conn.RefreshToken = tok.RefreshToken
	}
	conn.Expiry = tok.Expiry

	if err := b.store.Save(ctx, *conn); err != nil {
		return "", fmt.Errorf("persist refreshed oauth connection %q: %w", connectionID, err)
	}
	return "Bearer " + conn.AccessToken, nil
}

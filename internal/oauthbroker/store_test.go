/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package oauthbroker

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
)

func openTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	key := bytes.Repeat([]byte{0x42}, chacha20poly1305.KeySize)
	dir := t.TempDir()
	s, err := OpenSQLiteStore(filepath.Join(dir, "oauth.db"), key)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_SaveAndLoadRoundTripsTokens(t *testing.T) {
	s := openTestSQLiteStore(t)
	ctx := context.Background()

	conn := Connection{
		ConnectionID: "conn1",
		Provider:     "github",
		Status:       StatusFinalized,
		Metadata:     []byte(`{"installation_id":"123"}`),
		AccessToken:  "super-secret-access",
		RefreshToken: "super-secret-refresh",
		Expiry:       time.Now().Add(time.Hour).Truncate(time.Second),
	}
	if err := s.Save(ctx, conn); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := s.Load(ctx, "conn1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.AccessToken != conn.AccessToken {
		t.Errorf("expected access token %q, got %q", conn.AccessToken, loaded.AccessToken)
	}
	if loaded.RefreshToken != conn.RefreshToken {
		t.Errorf("expected refresh token %q, got %q", conn.RefreshToken, loaded.RefreshToken)
	}
	if !loaded.Expiry.Equal(conn.Expiry) {
		t.Errorf("expected expiry %v, got %v", conn.Expiry, loaded.Expiry)
	}
}

func TestSQLiteStore_TokensAreEncryptedAtRest(t *testing.T) {
	s := openTestSQLiteStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, Connection{
		ConnectionID: "conn1", Provider: "github", Status: StatusFinalized,
		AccessToken: "plaintext-marker-value",
	}); err != nil {
		t.Fatalf("save: %v", err)
	}

	var sealed []byte
	row := s.db.QueryRowContext(ctx, `SELECT sealed_access FROM oauth_connections WHERE connection_id = ?`, "conn1")
	if err := row.Scan(&sealed); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if bytes.Contains(sealed, []byte("plaintext-marker-value")) {
		t.Fatal("expected the access token to be sealed, found plaintext in stored bytes")
	}
}

func TestSQLiteStore_LoadMissingConnectionReturnsErrNotFound(t *testing.T) {
	s := openTestSQLiteStore(t)
	if _, err := s.Load(context.Background(), "missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

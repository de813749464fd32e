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
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a connection ID has no stored row.
var ErrNotFound = errors.New("oauth connection not found")

// SQLiteStore persists connections in an embedded SQLite database, sealing
// the access and refresh tokens with ChaCha20-Poly1305 before they ever
// touch disk — the same AEAD construction
// original_source/core/src/oauth/connection.rs uses (CHACHA20_POLY1305 via
// ring), expressed with golang.org/x/crypto/chacha20poly1305. Metadata and
// status are kept in the clear; only the two token fields are sealed.
type SQLiteStore struct {
	db  *sql.DB
	aead chacha20poly1305.AEAD
}

// OpenSQLiteStore opens or creates a connection store at dbPath, sealing
// tokens with key (must be exactly chacha20poly1305.KeySize bytes).
func OpenSQLiteStore(dbPath string, key []byte) (*SQLiteStore, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("init encryption key: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open oauth store db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS oauth_connections (
		connection_id     TEXT PRIMARY KEY,
		provider          TEXT NOT NULL,
		status            TEXT NOT NULL,
		metadata          BLOB,
		sealed_access     BLOB,
		sealed_refresh    BLOB,
		access_expiry     TEXT,
		updated_at        TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db, aead: aead}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) seal(plaintext string) ([]byte, error) {
	if plaintext == "" {
		return nil, nil
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	sealed := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealed, nil
}

func (s *SQLiteStore) unseal(sealed []byte) (string, error) {
	if len(sealed) == 0 {
		return "", nil
	}
	n := s.aead.NonceSize()
	if len(sealed) < n {
		return "", fmt.Errorf("sealed token too short")
	}
	nonce, ciphertext := sealed[:n], sealed[n:]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt token: %w", err)
	}
	return string(plaintext), nil
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context, connectionID string) (*Connection, error) {
	row := s.db.QueryRowContext(ctx, `SELECT provider, status, metadata, sealed_access,
		sealed_refresh, access_expiry FROM oauth_connections WHERE connection_id = ?`, connectionID)

	var provider, status string
	var metadata, sealedAccess, sealedRefresh []byte
	var expiryStr sql.NullString
	if err := row.Scan(&provider, &status, &metadata, &sealedAccess, &sealedRefresh, &expiryStr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load connection %q: %w", connectionID, err)
	}

	access, err := s.unseal(sealedAccess)
	if err != nil {
		return nil, fmt.Errorf("unseal access token for %q: %w", connectionID, err)
	}
	refresh, err := s.unseal(sealedRefresh)
	if err != nil {
		return nil, fmt.Errorf("unseal refresh token for %q: %w", connectionID, err)
	}

	var expiry time.Time
	if expiryStr.Valid && expiryStr.String != "" {
		expiry, err = time.Parse(time.RFC3339Nano, expiryStr.String)
		if err != nil {
			return nil, fmt.Errorf("parse access_expiry for %q: %w", connectionID, err)
		}
	}

	return &Connection{
		ConnectionID: connectionID,
		Provider:     provider,
		Status:       Status(status),
		Metadata:     json.RawMessage(metadata),
		AccessToken:  access,
		RefreshToken: refresh,
		Expiry:       expiry,
	}, nil
}

// Save implements Store, upserting the connection row.
func (s *SQLiteStore) Save(ctx context.Context, conn Connection) error {
	sealedAccess, err := s.seal(conn.AccessToken)
	if err != nil {
		return fmt.Errorf("seal access token: %w", err)
	}
	sealedRefresh, err := s.seal(conn.RefreshToken)
	if err != nil {
		return fmt.Errorf("seal refresh token: %w", err)
	}
	var expiryStr string
	if !conn.Expiry.IsZero() {
		expiryStr = conn.Expiry.Format(time.RFC3339Nano)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO oauth_connections
		(connection_id, provider, status, metadata, sealed_access, sealed_refresh, access_expiry, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(connection_id) DO UPDATE SET
			provider = excluded.provider,
			status = excluded.status,
			metadata = excluded.metadata,
			sealed_access = excluded.sealed_access,
			sealed_refresh = excluded.sealed_refresh,
			access_expiry = excluded.access_expiry,
			updated_at = excluded.updated_at`,
		conn.ConnectionID, conn.Provider, string(conn.Status), []byte(conn.Metadata),
		sealedAccess, sealedRefresh, expiryStr, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save connection %q: %w", conn.ConnectionID, err)
	}
	return nil
}

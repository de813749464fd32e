/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package cache implements the content-addressed response cache: a
// (project, request fingerprint) to response mapping consulted by llm,
// chat, and external_call blocks before they make an outbound call.
package cache

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store is a SQLite-backed, append-only content-addressed cache. Writes
// never overwrite an existing (project, fingerprint) row — a second Store
// call for the same key records another row, and Lookup returns the most
// recently written one. This keeps historical responses available for
// inspection without a migration path for "the cache was wrong".
type Store struct {
	db *sql.DB
}

// Open creates or opens a SQLite-backed cache at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS response_cache (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id  INTEGER NOT NULL,
		fingerprint TEXT NOT NULL,
		response    BLOB NOT NULL,
		created_at  TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_response_cache_lookup
		ON response_cache (project_id, fingerprint, id DESC)`); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Lookup returns the most recently stored response for (project,
// fingerprint), if any.
func (s *Store) Lookup(ctx context.Context, project int64, fingerprint []byte) ([]byte, bool, error) {
	key := hex.EncodeToString(fingerprint)
	row := s.db.QueryRowContext(ctx, `SELECT response FROM response_cache
		WHERE project_id = ? AND fingerprint = ?
		ORDER BY id DESC LIMIT 1`, project, key)

	var response []byte
	if err := row.Scan(&response); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}
	return response, true, nil
}

// Store appends a new cache row for (project, fingerprint). Existing rows
// for the same key are left in place.
func (s *Store) Store(ctx context.Context, project int64, fingerprint []byte, response []byte) error {
	key := hex.EncodeToString(fingerprint)
	_, err := s.db.ExecContext(ctx, `INSERT INTO response_cache
		(project_id, fingerprint, response, created_at) VALUES (?, ?, ?, ?)`,
		project, key, response, time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

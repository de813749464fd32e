/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package runstore

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Specification is an immutable (project, hash, text) triple. Duplicate
// registrations of the same text under the same project are no-ops —
// RegisterSpec reuses the deterministic app hash as the primary key.
type Specification struct {
	Project    int64
	Hash       string
	Text       string
	BlockCount int
	CreatedAt  time.Time
}

// Dataset is an ordered list of input rows, addressed by (project, name,
// hash) where hash is computed over the canonical JSON of the rows.
// "Latest" is the most recently created dataset row under a given name.
type Dataset struct {
	Project   int64
	Name      string
	Hash      string
	Rows      []byte // JSON array
	CreatedAt time.Time
}

func (s *Store) createSpecSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS specifications (
			project     BIGINT NOT NULL,
			hash        TEXT NOT NULL,
			text        TEXT NOT NULL,
			block_count INT NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (project, hash)
		)`,
		`CREATE TABLE IF NOT EXISTS datasets (
			project     BIGINT NOT NULL,
			name        TEXT NOT NULL,
			hash        TEXT NOT NULL,
			rows        JSONB NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (project, name, hash)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_datasets_latest ON datasets(project, name, created_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create spec/dataset schema: %w", err)
		}
	}
	return nil
}

// RegisterSpec stores specText under appHash, or is a silent no-op if the
// same (project, hash) already exists. It does not parse specText: the
// caller has already validated and hashed it via specparser, and passes
// appHash and blockCount in rather than having them re-derived here, since
// C1 hashing has no reason to live twice.
func (s *Store) RegisterSpec(ctx context.Context, project int64, appHash []byte, specText string, blockCount int) (*Specification, error) {
	hashHex := hex.EncodeToString(appHash)
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO specifications (project, hash, text, block_count, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (project, hash) DO NOTHING`,
		project, hashHex, specText, blockCount, now)
	if err != nil {
		return nil, fmt.Errorf("register spec: %w", err)
	}
	return s.LoadSpec(ctx, project, hashHex)
}

// LoadSpec returns the registered specification for (project, hash).
func (s *Store) LoadSpec(ctx context.Context, project int64, hash string) (*Specification, error) {
	var spec Specification
	spec.Project, spec.Hash = project, hash
	err := s.pool.QueryRow(ctx,
		`SELECT text, block_count, created_at FROM specifications WHERE project = $1 AND hash = $2`,
		project, hash).Scan(&spec.Text, &spec.BlockCount, &spec.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("spec %q: %w", hash, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load spec %q: %w", hash, err)
	}
	return &spec, nil
}

// RegisterDataset stores rows (already canonicalized and hashed by the
// caller via block.Hash(block.CanonicalJSON(rows))) under (project, name,
// hash), or is a no-op if that exact version already exists.
func (s *Store) RegisterDataset(ctx context.Context, project int64, name string, hash []byte, rows []byte) (*Dataset, error) {
	hashHex := hex.EncodeToString(hash)
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO datasets (project, name, hash, rows, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (project, name, hash) DO NOTHING`,
		project, name, hashHex, rows, now)
	if err != nil {
		return nil, fmt.Errorf("register dataset %q: %w", name, err)
	}
	return s.LoadDataset(ctx, project, name, hashHex)
}

// LoadDataset returns a specific version of a named dataset.
func (s *Store) LoadDataset(ctx context.Context, project int64, name, hash string) (*Dataset, error) {
	ds := Dataset{Project: project, Name: name, Hash: hash}
	err := s.pool.QueryRow(ctx,
		`SELECT rows, created_at FROM datasets WHERE project = $1 AND name = $2 AND hash = $3`,
		project, name, hash).Scan(&ds.Rows, &ds.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("dataset %q@%q: %w", name, hash, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load dataset %q@%q: %w", name, hash, err)
	}
	return &ds, nil
}

// LoadLatestDataset returns the most recently registered version of a named
// dataset.
func (s *Store) LoadLatestDataset(ctx context.Context, project int64, name string) (*Dataset, error) {
	ds := Dataset{Project: project, Name: name}
	err := s.pool.QueryRow(ctx,
		`SELECT hash, rows, created_at FROM datasets WHERE project = $1 AND name = $2
		 ORDER BY created_at DESC LIMIT 1`,
		project, name).Scan(&ds.Hash, &ds.Rows, &ds.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("dataset %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load latest dataset %q: %w", name, err)
	}
	return &ds, nil
}

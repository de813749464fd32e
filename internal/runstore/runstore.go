/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package runstore implements the run store (C6): persists run metadata,
// block executions deduplicated by execution hash, and status updates.
// Grounded on the teacher's modernc.org/sqlite embedded-store idiom
// (internal/controlplane/webhook/store.go), retargeted to
// github.com/jackc/pgx/v5 — the run store is the one component SPEC_FULL.md
// calls for pooled Postgres rather than the embedded SQLite C5 uses, since
// run history is expected to outlive and outgrow a single process's disk.
package runstore

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marcus-qen/appcore/internal/block"
)

// Run is the persisted identity and status of one run.
type Run struct {
	ID        string
	Project   int64
	RunType   block.RunType
	AppHash   string
	Config    block.RunConfig
	Status    block.RunStatus
	CreatedAt time.Time
}

// Selector narrows LoadRun's reassembly to a subset of the trace grid.
type Selector struct {
	StatusOnly  bool
	SingleBlock *block.BlockKey
}

// Store persists runs, block executions, and the join rows linking them,
// against a pooled Postgres connection.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to dsn and creates the schema if it does not already exist.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open run store: %w", err)
	}
	s := &Store{pool: pool}
	if err := s.createSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if err := s.createSpecSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) createSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id          TEXT PRIMARY KEY,
			project     BIGINT NOT NULL,
			run_type    TEXT NOT NULL,
			app_hash    TEXT NOT NULL,
			config      JSONB NOT NULL DEFAULT '{}',
			status      JSONB NOT NULL DEFAULT '{"run":"running","blocks":[]}',
			created_at  TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_project_type ON runs(project, run_type, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS block_executions (
			hash  TEXT PRIMARY KEY,
			value JSONB,
			error TEXT,
			meta  JSONB
		)`,
		`CREATE TABLE IF NOT EXISTS runs_joins (
			run_id       TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			block_idx    INT NOT NULL,
			kind         TEXT NOT NULL,
			name         TEXT NOT NULL,
			input_idx    INT NOT NULL,
			map_idx      INT NOT NULL,
			execution_id TEXT NOT NULL REFERENCES block_executions(hash),
			PRIMARY KEY (run_id, block_idx, input_idx, map_idx)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_joins_lookup ON runs_joins(run_id, kind, name)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create run store schema: %w", err)
		}
	}
	return nil
}

// CreateRunEmpty persists a new run's identity and initial status. Fails if
// run.ID already exists.
func (s *Store) CreateRunEmpty(ctx context.Context, run Run) error {
	cfg, err := json.Marshal(run.Config)
	if err != nil {
		return fmt.Errorf("marshal run config: %w", err)
	}
	status, err := json.Marshal(run.Status)
	if err != nil {
		return fmt.Errorf("marshal run status: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, project, run_type, app_hash, config, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.ID, run.Project, string(run.RunType), run.AppHash, cfg, status, run.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("create run %q: %w", run.ID, err)
	}
	return nil
}

// UpdateRunStatus idempotently replaces the stored RunStatus for project/runID.
func (s *Store) UpdateRunStatus(ctx context.Context, project int64, runID string, status block.RunStatus) error {
	raw, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("marshal run status: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE runs SET status = $1 WHERE id = $2 AND project = $3`,
		raw, runID, project)
	if err != nil {
		return fmt.Errorf("update run status %q: %w", runID, err)
	}
	return nil
}

// AppendRunBlock records one block's execution for one (input, map)
// coordinate, deduplicating the execution row by its content hash and
// writing a join row pointing at it.
func (s *Store) AppendRunBlock(ctx context.Context, project int64, runID string, blockIdx int, kind block.Kind, name string, inputIdx, mapIdx int, exec block.BlockExecution) error {
	execHash, err := block.ExecutionHash(exec)
	if err != nil {
		return fmt.Errorf("hash block execution: %w", err)
	}
	hashHex := hex.EncodeToString(execHash)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin append-run-block tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO block_executions (hash, value, error, meta) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (hash) DO NOTHING`,
		hashHex, exec.Value, exec.Error, exec.Meta)
	if err != nil {
		return fmt.Errorf("upsert block execution: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO runs_joins (run_id, block_idx, kind, name, input_idx, map_idx, execution_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (run_id, block_idx, input_idx, map_idx) DO UPDATE SET execution_id = excluded.execution_id`,
		runID, blockIdx, string(kind), name, inputIdx, mapIdx, hashHex)
	if err != nil {
		return fmt.Errorf("insert run join row: %w", err)
	}

	return tx.Commit(ctx)
}

// LoadedRun is a run reassembled from storage: identity/status plus, unless
// Selector.StatusOnly was set, the trace grid sorted by (block_idx,
// input_idx, map_idx) and pivoted into nested per-block arrays.
type LoadedRun struct {
	Run    Run
	Traces []LoadedTrace
}

// LoadedTrace is one block's reassembled 2-D execution grid.
type LoadedTrace struct {
	Kind block.Kind
	Name string
	Grid [][]block.BlockExecution
}

// LoadRun reassembles a run's identity, status, and (unless selector narrows
// it) trace grid.
func (s *Store) LoadRun(ctx context.Context, project int64, runID string, selector Selector) (*LoadedRun, error) {
	var (
		runType, appHash string
		cfgRaw, statusRaw []byte
		createdAt        time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT run_type, app_hash, config, status, created_at FROM runs WHERE id = $1 AND project = $2`,
		runID, project).Scan(&runType, &appHash, &cfgRaw, &statusRaw, &createdAt)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("run %q: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load run %q: %w", runID, err)
	}

	var cfg block.RunConfig
	if err := json.Unmarshal(cfgRaw, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal run config: %w", err)
	}
	var status block.RunStatus
	if err := json.Unmarshal(statusRaw, &status); err != nil {
		return nil, fmt.Errorf("unmarshal run status: %w", err)
	}

	loaded := &LoadedRun{Run: Run{
		ID: runID, Project: project, RunType: block.RunType(runType), AppHash: appHash,
		Config: cfg, Status: status, CreatedAt: createdAt,
	}}
	if selector.StatusOnly {
		return loaded, nil
	}

	query := `SELECT j.block_idx, j.kind, j.name, j.input_idx, j.map_idx, e.value, e.error, e.meta
	          FROM runs_joins j JOIN block_executions e ON e.hash = j.execution_id
	          WHERE j.run_id = $1`
	args := []interface{}{runID}
	if selector.SingleBlock != nil {
		query += ` AND j.kind = $2 AND j.name = $3`
		args = append(args, string(selector.SingleBlock.Kind), selector.SingleBlock.Name)
	}
	query += ` ORDER BY j.block_idx, j.input_idx, j.map_idx`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load run blocks %q: %w", runID, err)
	}
	defer rows.Close()

	byKey := map[block.BlockKey]*LoadedTrace{}
	var order []block.BlockKey
	for rows.Next() {
		var (
			blockIdx, inputIdx, mapIdx int
			kind, name                 string
			value, errField, meta     []byte
		)
		if err := rows.Scan(&blockIdx, &kind, &name, &inputIdx, &mapIdx, &value, &errField, &meta); err != nil {
			return nil, fmt.Errorf("scan run block row: %w", err)
		}
		key := block.BlockKey{Kind: block.Kind(kind), Name: name}
		t, ok := byKey[key]
		if !ok {
			t = &LoadedTrace{Kind: key.Kind, Name: key.Name}
			byKey[key] = t
			order = append(order, key)
		}
		exec := block.BlockExecution{Value: value, Meta: meta}
		if errField != nil {
			msg := string(errField)
			exec.Error = &msg
		}
		for len(t.Grid) <= inputIdx {
			t.Grid = append(t.Grid, nil)
		}
		for len(t.Grid[inputIdx]) <= mapIdx {
			t.Grid[inputIdx] = append(t.Grid[inputIdx], block.BlockExecution{})
		}
		t.Grid[inputIdx][mapIdx] = exec
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	loaded.Traces = make([]LoadedTrace, 0, len(order))
	for _, k := range order {
		loaded.Traces = append(loaded.Traces, *byKey[k])
	}
	return loaded, nil
}

// ListRuns returns a page of run identities for project/runType, most
// recent first, plus the total matching count.
func (s *Store) ListRuns(ctx context.Context, project int64, runType block.RunType, limit, offset int) ([]Run, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM runs WHERE project = $1 AND run_type = $2`,
		project, string(runType)).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count runs: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, app_hash, config, status, created_at FROM runs
		 WHERE project = $1 AND run_type = $2
		 ORDER BY created_at DESC LIMIT $3 OFFSET $4`,
		project, string(runType), limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			id, appHash       string
			cfgRaw, statusRaw []byte
			createdAt         time.Time
		)
		if err := rows.Scan(&id, &appHash, &cfgRaw, &statusRaw, &createdAt); err != nil {
			return nil, 0, fmt.Errorf("scan run row: %w", err)
		}
		var cfg block.RunConfig
		_ = json.Unmarshal(cfgRaw, &cfg)
		var status block.RunStatus
		_ = json.Unmarshal(statusRaw, &status)
		out = append(out, Run{ID: id, Project: project, RunType: runType, AppHash: appHash, Config: cfg, Status: status, CreatedAt: createdAt})
	}
	return out, total, rows.Err()
}

// DeleteRun removes a run, its join rows, and any block-execution rows left
// orphaned as a result.
func (s *Store) DeleteRun(ctx context.Context, project int64, runID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin delete-run tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM runs WHERE id = $1 AND project = $2`, runID, project)
	if err != nil {
		return fmt.Errorf("delete run %q: %w", runID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %q: %w", runID, ErrNotFound)
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM block_executions e WHERE NOT EXISTS (
			SELECT 1 FROM runs_joins j WHERE j.execution_id = e.hash
		)`); err != nil {
		return fmt.Errorf("clean up orphaned block executions: %w", err)
	}

	return tx.Commit(ctx)
}

// ErrNotFound is returned when a run id has no matching row.
var ErrNotFound = fmt.Errorf("run not found")

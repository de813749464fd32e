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
	"os"
	"testing"
	"time"

	"github.com/marcus-qen/appcore/internal/block"
)

// openTestStore skips the test unless a live Postgres DSN is supplied — this
// package is the one store in the core that talks to an external service
// rather than an embedded file, so its tests run as an opt-in integration
// suite against APPCORE_TEST_POSTGRES_DSN rather than unconditionally.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("APPCORE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("APPCORE_TEST_POSTGRES_DSN not set; skipping run store integration test")
	}
	s, err := Open(context.Background(), dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_CreateAndLoadRun(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	run := Run{
		ID:      "run-" + time.Now().UTC().Format(time.RFC3339Nano),
		Project: 1,
		RunType: block.RunTypeExecute,
		AppHash: "apphash123",
		Config:  block.RunConfig{},
		Status:  block.RunStatus{Run: block.StatusRunning},
		CreatedAt: time.Now().UTC(),
	}
	if err := s.CreateRunEmpty(ctx, run); err != nil {
		t.Fatalf("create run: %v", err)
	}
	t.Cleanup(func() { _ = s.DeleteRun(ctx, run.Project, run.ID) })

	loaded, err := s.LoadRun(ctx, run.Project, run.ID, Selector{})
	if err != nil {
		t.Fatalf("load run: %v", err)
	}
	if loaded.Run.AppHash != run.AppHash {
		t.Errorf("expected app hash %q, got %q", run.AppHash, loaded.Run.AppHash)
	}
	if len(loaded.Traces) != 0 {
		t.Errorf("expected no traces on a fresh run, got %d", len(loaded.Traces))
	}
}

func TestStore_AppendRunBlockDedupesByExecutionHash(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	run := Run{
		ID: "run-dedup-" + time.Now().UTC().Format(time.RFC3339Nano),
		Project: 1, RunType: block.RunTypeExecute, AppHash: "h", Config: block.RunConfig{},
		Status: block.RunStatus{Run: block.StatusRunning}, CreatedAt: time.Now().UTC(),
	}
	if err := s.CreateRunEmpty(ctx, run); err != nil {
		t.Fatalf("create run: %v", err)
	}
	t.Cleanup(func() { _ = s.DeleteRun(ctx, run.Project, run.ID) })

	exec := block.BlockExecution{Value: []byte(`"same value"`)}
	if err := s.AppendRunBlock(ctx, run.Project, run.ID, 0, block.KindData, "b", 0, 0, exec); err != nil {
		t.Fatalf("append block 0: %v", err)
	}
	if err := s.AppendRunBlock(ctx, run.Project, run.ID, 0, block.KindData, "b", 1, 0, exec); err != nil {
		t.Fatalf("append block 1: %v", err)
	}

	loaded, err := s.LoadRun(ctx, run.Project, run.ID, Selector{})
	if err != nil {
		t.Fatalf("load run: %v", err)
	}
	if len(loaded.Traces) != 1 {
		t.Fatalf("expected a single trace entry, got %d", len(loaded.Traces))
	}
	if len(loaded.Traces[0].Grid) != 2 {
		t.Fatalf("expected two input rows in the grid, got %d", len(loaded.Traces[0].Grid))
	}
}

func TestStore_DeleteRunRemovesOrphanedExecutions(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	run := Run{
		ID: "run-delete-" + time.Now().UTC().Format(time.RFC3339Nano),
		Project: 1, RunType: block.RunTypeExecute, AppHash: "h", Config: block.RunConfig{},
		Status: block.RunStatus{Run: block.StatusRunning}, CreatedAt: time.Now().UTC(),
	}
	if err := s.CreateRunEmpty(ctx, run); err != nil {
		t.Fatalf("create run: %v", err)
	}
	if err := s.AppendRunBlock(ctx, run.Project, run.ID, 0, block.KindData, "b", 0, 0, block.BlockExecution{Value: []byte("1")}); err != nil {
		t.Fatalf("append block: %v", err)
	}
	if err := s.DeleteRun(ctx, run.Project, run.ID); err != nil {
		t.Fatalf("delete run: %v", err)
	}
	if _, err := s.LoadRun(ctx, run.Project, run.ID, Selector{}); err == nil {
		t.Fatal("expected loading a deleted run to fail")
	}
}

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
	"errors"
	"testing"
	"time"

	"lukechampine.com/blake3"
)

func TestStore_RegisterAndLoadSpec(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	text := "input foo\nend bar = foo"
	appHash := blake3.Sum256([]byte(text))

	spec, err := s.RegisterSpec(ctx, 1, appHash[:], text, 2)
	if err != nil {
		t.Fatalf("register spec: %v", err)
	}
	if spec.Text != text {
		t.Errorf("spec text = %q, want %q", spec.Text, text)
	}
	if spec.BlockCount != 2 {
		t.Errorf("block count = %d, want 2", spec.BlockCount)
	}

	loaded, err := s.LoadSpec(ctx, 1, spec.Hash)
	if err != nil {
		t.Fatalf("load spec: %v", err)
	}
	if loaded.Text != text {
		t.Errorf("loaded text = %q, want %q", loaded.Text, text)
	}
}

func TestStore_RegisterSpecIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	text := "input only"
	appHash := blake3.Sum256([]byte(text))

	first, err := s.RegisterSpec(ctx, 2, appHash[:], text, 1)
	if err != nil {
		t.Fatalf("register spec first: %v", err)
	}
	second, err := s.RegisterSpec(ctx, 2, appHash[:], text, 1)
	if err != nil {
		t.Fatalf("register spec second: %v", err)
	}
	if first.Hash != second.Hash || first.CreatedAt != second.CreatedAt {
		t.Error("re-registering the same spec text should be a no-op, not a new row")
	}
}

func TestStore_LoadSpecMissingReturnsErrNotFound(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.LoadSpec(ctx, 1, "deadbeef"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_RegisterAndLoadDataset(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rows := []byte(`[{"foo":"bar"},{"foo":"baz"}]`)
	hash := blake3.Sum256(rows)

	ds, err := s.RegisterDataset(ctx, 1, "customers", hash[:], rows)
	if err != nil {
		t.Fatalf("register dataset: %v", err)
	}

	loaded, err := s.LoadDataset(ctx, 1, "customers", ds.Hash)
	if err != nil {
		t.Fatalf("load dataset: %v", err)
	}
	if string(loaded.Rows) != string(rows) {
		t.Errorf("loaded rows = %s, want %s", loaded.Rows, rows)
	}
}

func TestStore_LoadLatestDatasetReturnsMostRecentVersion(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	older := []byte(`[{"v":1}]`)
	olderHash := blake3.Sum256(older)
	if _, err := s.RegisterDataset(ctx, 3, "events", olderHash[:], older); err != nil {
		t.Fatalf("register older dataset: %v", err)
	}

	time.Sleep(10 * time.Millisecond)

	newer := []byte(`[{"v":2}]`)
	newerHash := blake3.Sum256(newer)
	if _, err := s.RegisterDataset(ctx, 3, "events", newerHash[:], newer); err != nil {
		t.Fatalf("register newer dataset: %v", err)
	}

	latest, err := s.LoadLatestDataset(ctx, 3, "events")
	if err != nil {
		t.Fatalf("load latest dataset: %v", err)
	}
	if string(latest.Rows) != string(newer) {
		t.Errorf("latest rows = %s, want %s", latest.Rows, newer)
	}
}

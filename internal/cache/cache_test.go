/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package cache

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "cache.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_LookupMiss(t *testing.T) {
	s := openTestStore(t)
	_, hit, err := s.Lookup(context.Background(), 1, []byte("fp"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hit {
		t.Error("expected a miss on an empty cache")
	}
}

func TestStore_StoreThenLookup(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.Store(ctx, 1, []byte("fp"), []byte(`{"a":1}`)); err != nil {
		t.Fatalf("store: %v", err)
	}
	got, hit, err := s.Lookup(ctx, 1, []byte("fp"))
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !hit {
		t.Fatal("expected a hit")
	}
	if string(got) != `{"a":1}` {
		t.Errorf("got %s", got)
	}
}

func TestStore_ScopedByProject(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.Store(ctx, 1, []byte("fp"), []byte(`"proj1"`)); err != nil {
		t.Fatalf("store: %v", err)
	}
	_, hit, err := s.Lookup(ctx, 2, []byte("fp"))
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if hit {
		t.Error("expected no cross-project leakage")
	}
}

func TestStore_AppendOnlyReturnsLatest(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.Store(ctx, 1, []byte("fp"), []byte(`"first"`)); err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := s.Store(ctx, 1, []byte("fp"), []byte(`"second"`)); err != nil {
		t.Fatalf("store: %v", err)
	}
	got, hit, err := s.Lookup(ctx, 1, []byte("fp"))
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !hit {
		t.Fatal("expected a hit")
	}
	if string(got) != `"second"` {
		t.Errorf("expected the latest write, got %s", got)
	}
}

/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package specparser

import (
	"errors"
	"testing"

	"github.com/marcus-qen/appcore/internal/block"
)

func TestParse_TrivialPassthrough(t *testing.T) {
	spec := `
input IN {
}
code ECHO {
  code = "return env.state.IN;"
}
`
	parsed, err := Parse(spec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(parsed.Blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(parsed.Blocks))
	}
	if parsed.Blocks[0].Kind != block.KindInput || parsed.Blocks[0].Name != "IN" {
		t.Errorf("unexpected first block: %+v", parsed.Blocks[0])
	}
	if parsed.Blocks[1].Kind != block.KindCode || parsed.Blocks[1].Name != "ECHO" {
		t.Errorf("unexpected second block: %+v", parsed.Blocks[1])
	}
	if len(parsed.AppHash) != 32 {
		t.Errorf("expected 32-byte app hash, got %d bytes", len(parsed.AppHash))
	}
}

func TestParse_HashDeterminism(t *testing.T) {
	spec := `
input IN {
}
code ECHO {
  code = "return env.state.IN;"
}
`
	a, err := Parse(spec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := Parse(spec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(a.AppHash) != string(b.AppHash) {
		t.Error("expected identical app hash for identical spec text")
	}
}

func TestParse_HashInsensitiveToWhitespace(t *testing.T) {
	a, err := Parse("input IN {\n}\ncode ECHO {\n  code = \"1\"\n}\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := Parse("input   IN   {\n}\n\ncode ECHO {\n    code   =   \"1\"\n}\n\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(a.AppHash) != string(b.AppHash) {
		t.Error("expected equal app_hash for semantically-equal specs with differing whitespace")
	}
}

func TestParse_MapReduce(t *testing.T) {
	spec := `
input IN {
}
data ARR {
  value = [10, 20, 30]
}
map M {
  from = "ARR"
}
code DBL {
  code = "return env.state.M * 2;"
}
reduce M {
}
`
	parsed, err := Parse(spec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(parsed.Blocks) != 5 {
		t.Fatalf("expected 5 blocks, got %d", len(parsed.Blocks))
	}
}

func TestParse_DuplicateNameRejected(t *testing.T) {
	spec := `
code X {
  code = "1"
}
code X {
  code = "2"
}
`
	_, err := Parse(spec)
	if err == nil {
		t.Fatal("expected InvalidSpec for duplicate (kind, name)")
	}
	if !errors.Is(err, block.ErrInvalidSpec) {
		t.Errorf("expected ErrInvalidSpec, got %v", err)
	}
}

func TestParse_MultipleInputRejected(t *testing.T) {
	spec := `
input A {
}
input B {
}
`
	_, err := Parse(spec)
	if !errors.Is(err, block.ErrInvalidSpec) {
		t.Fatalf("expected ErrInvalidSpec, got %v", err)
	}
}

func TestParse_NestedMapRejected(t *testing.T) {
	spec := `
map OUTER {
}
map INNER {
}
reduce INNER {
}
reduce OUTER {
}
`
	_, err := Parse(spec)
	if !errors.Is(err, block.ErrInvalidSpec) {
		t.Fatalf("expected ErrInvalidSpec for nested map, got %v", err)
	}
}

func TestParse_ReduceWithoutMapRejected(t *testing.T) {
	_, err := Parse("reduce M {\n}\n")
	if !errors.Is(err, block.ErrInvalidSpec) {
		t.Fatalf("expected ErrInvalidSpec, got %v", err)
	}
}

func TestParse_MismatchedReduceNameRejected(t *testing.T) {
	spec := `
map M {
}
reduce N {
}
`
	_, err := Parse(spec)
	if !errors.Is(err, block.ErrInvalidSpec) {
		t.Fatalf("expected ErrInvalidSpec, got %v", err)
	}
}

func TestParse_UnclosedMapRejected(t *testing.T) {
	_, err := Parse("map M {\n}\n")
	if !errors.Is(err, block.ErrInvalidSpec) {
		t.Fatalf("expected ErrInvalidSpec for unclosed map, got %v", err)
	}
}

func TestParse_UnknownKindRejected(t *testing.T) {
	_, err := Parse("frobnicate X {\n}\n")
	if !errors.Is(err, block.ErrInvalidSpec) {
		t.Fatalf("expected ErrInvalidSpec, got %v", err)
	}
}

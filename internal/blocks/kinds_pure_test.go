/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package blocks

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/marcus-qen/appcore/internal/block"
)

func TestExecInput_MissingRow(t *testing.T) {
	env := block.NewRootEnv(1, nil, nil, nil)
	_, err := execInput(context.Background(), block.Block{Kind: block.KindInput, Name: "IN"}, env, nil)
	if !errors.Is(err, block.ErrInvalidSpec) {
		t.Fatalf("expected ErrInvalidSpec, got %v", err)
	}
}

func TestExecInput_ReturnsBoundRow(t *testing.T) {
	env := block.NewRootEnv(1, nil, nil, nil).WithInput(json.RawMessage(`{"x":1}`), 0)
	out, err := execInput(context.Background(), block.Block{Kind: block.KindInput, Name: "IN"}, env, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != `{"x":1}` {
		t.Errorf("got %s", out)
	}
}

func TestExecData_ResolvesReference(t *testing.T) {
	env := block.NewRootEnv(1, nil, nil, nil).With("UPSTREAM", json.RawMessage(`{"greeting":"hello"}`))
	cfg := json.RawMessage(`{"value":"${UPSTREAM.greeting}, world"}`)
	out, err := execData(context.Background(), block.Block{Kind: block.KindData, Name: "D", Config: cfg}, env, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got string
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got != "hello, world" {
		t.Errorf("got %q", got)
	}
}

func TestExecMap_RejectsNonArray(t *testing.T) {
	env := block.NewRootEnv(1, nil, nil, nil).With("SRC", json.RawMessage(`{"not":"an array"}`))
	cfg := json.RawMessage(`{"from":"SRC"}`)
	_, err := execMap(context.Background(), block.Block{Kind: block.KindMap, Name: "M", Config: cfg}, env, nil)
	if err == nil {
		t.Fatal("expected error for non-array source")
	}
}

func TestExecWhile_EvaluatesTruthiness(t *testing.T) {
	env := block.NewRootEnv(1, nil, nil, nil).With("COND", json.RawMessage(`true`))
	cfg := json.RawMessage(`{"condition":"COND"}`)
	out, err := execWhile(context.Background(), block.Block{Kind: block.KindWhile, Name: "W", Config: cfg}, env, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var truthy bool
	if err := json.Unmarshal(out, &truthy); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !truthy {
		t.Error("expected true")
	}
}

func TestIsTruthy(t *testing.T) {
	cases := []struct {
		v    interface{}
		want bool
	}{
		{nil, false},
		{false, false},
		{true, true},
		{float64(0), false},
		{float64(1), true},
		{"", false},
		{"x", true},
		{[]interface{}{}, false},
		{[]interface{}{1}, true},
	}
	for _, c := range cases {
		if got := isTruthy(c.v); got != c.want {
			t.Errorf("isTruthy(%#v) = %v, want %v", c.v, got, c.want)
		}
	}
}

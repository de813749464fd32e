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
	"testing"

	"github.com/marcus-qen/appcore/internal/block"
)

func TestExecCode_Passthrough(t *testing.T) {
	env := block.NewRootEnv(1, nil, nil, nil).With("IN", json.RawMessage(`{"value":"hi"}`))
	cfg := json.RawMessage(`{"code":"return env.state.IN.value;"}`)
	out, err := execCode(context.Background(), block.Block{Kind: block.KindCode, Name: "C", Config: cfg}, env, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got string
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got != "hi" {
		t.Errorf("got %q", got)
	}
}

func TestExecCode_Arithmetic(t *testing.T) {
	env := block.NewRootEnv(1, nil, nil, nil).With("N", json.RawMessage(`5`))
	cfg := json.RawMessage(`{"code":"return env.state.N * 2 + 1;"}`)
	out, err := execCode(context.Background(), block.Block{Kind: block.KindCode, Name: "C", Config: cfg}, env, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got float64
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got != 11 {
		t.Errorf("got %v, want 11", got)
	}
}

func TestExecCode_MissingReference(t *testing.T) {
	env := block.NewRootEnv(1, nil, nil, nil)
	cfg := json.RawMessage(`{"code":"return env.state.MISSING;"}`)
	_, err := execCode(context.Background(), block.Block{Kind: block.KindCode, Name: "C", Config: cfg}, env, nil)
	if err == nil {
		t.Fatal("expected an error for missing reference")
	}
}

func TestExecCode_RejectsMissingReturn(t *testing.T) {
	env := block.NewRootEnv(1, nil, nil, nil)
	cfg := json.RawMessage(`{"code":"env.state.X;"}`)
	_, err := execCode(context.Background(), block.Block{Kind: block.KindCode, Name: "C", Config: cfg}, env, nil)
	if err == nil {
		t.Fatal("expected an error for a statement without return")
	}
}

func TestEvalExpr_Parentheses(t *testing.T) {
	env := block.NewRootEnv(1, nil, nil, nil)
	got, err := evalExpr(`(1 + 2) * 3`, env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != float64(9) {
		t.Errorf("got %v, want 9", got)
	}
}

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
	"fmt"
	"sync"
	"testing"

	"github.com/marcus-qen/appcore/internal/block"
	"github.com/marcus-qen/appcore/internal/provider"
)

type fakeCache struct {
	mu    sync.Mutex
	store map[string][]byte
}

func newFakeCache() *fakeCache { return &fakeCache{store: map[string][]byte{}} }

func (c *fakeCache) Lookup(_ context.Context, project int64, fingerprint []byte) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.store[cacheKey(project, fingerprint)]
	return v, ok, nil
}

func (c *fakeCache) Store(_ context.Context, project int64, fingerprint []byte, response []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[cacheKey(project, fingerprint)] = response
	return nil
}

func cacheKey(project int64, fingerprint []byte) string {
	return fmt.Sprintf("%d:%x", project, fingerprint)
}

type fixedRetryPolicy struct{ attempts int }

func (p fixedRetryPolicy) MaxAttempts() int                  { return p.attempts }
func (p fixedRetryPolicy) Backoff(attempt int) (waitMillis int64) { return 0 }

func TestExecLLM_CallsProviderOnCacheMiss(t *testing.T) {
	mock := provider.NewMockProviderSimple("hello there")
	reg := provider.Registry{"mock": mock}
	cache := newFakeCache()
	deps := &Deps{Providers: reg, Cache: cache, Retries: fixedRetryPolicy{attempts: 1}}

	env := block.NewRootEnv(1, block.RunConfig{"L": {ProviderID: "mock", ModelID: "test"}}, nil, nil)
	cfg := json.RawMessage(`{"prompt":"say hi"}`)
	out, err := execLLM(context.Background(), block.Block{Kind: block.KindLLM, Name: "L", Config: cfg}, env, deps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var resp provider.CompletionResponse
	if err := json.Unmarshal(out, &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Content != "hello there" {
		t.Errorf("got content %q", resp.Content)
	}
	if mock.CallCount() != 1 {
		t.Errorf("expected 1 provider call, got %d", mock.CallCount())
	}

	// Second call with identical request must hit the cache, not the provider.
	if _, err := execLLM(context.Background(), block.Block{Kind: block.KindLLM, Name: "L", Config: cfg}, env, deps); err != nil {
		t.Fatalf("unexpected error on second call: %v", err)
	}
	if mock.CallCount() != 1 {
		t.Errorf("expected cache hit to avoid a second provider call, got %d calls", mock.CallCount())
	}
}

func TestExecLLM_MissingProviderID(t *testing.T) {
	deps := &Deps{Providers: provider.Registry{}, Cache: newFakeCache(), Retries: fixedRetryPolicy{attempts: 1}}
	env := block.NewRootEnv(1, nil, nil, nil)
	cfg := json.RawMessage(`{"prompt":"say hi"}`)
	_, err := execLLM(context.Background(), block.Block{Kind: block.KindLLM, Name: "L", Config: cfg}, env, deps)
	if err == nil {
		t.Fatal("expected an error with no provider configured")
	}
}

func TestExecChat_ResolvesMessageHistory(t *testing.T) {
	mock := provider.NewMockProviderSimple("ack")
	reg := provider.Registry{"mock": mock}
	deps := &Deps{Providers: reg, Cache: newFakeCache(), Retries: fixedRetryPolicy{attempts: 1}}

	env := block.NewRootEnv(1, block.RunConfig{"CHAT": {ProviderID: "mock"}}, nil, nil).
		With("PRIOR", json.RawMessage(`{"text":"earlier"}`))
	cfg := json.RawMessage(`{"messages":[{"role":"user","content":"recall: ${PRIOR.text}"}]}`)

	out, err := execChat(context.Background(), block.Block{Kind: block.KindChat, Name: "CHAT", Config: cfg}, env, deps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp provider.CompletionResponse
	if err := json.Unmarshal(out, &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Content != "ack" {
		t.Errorf("got %q", resp.Content)
	}
}

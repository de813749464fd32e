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
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/marcus-qen/appcore/internal/block"
)

type fakeOAuth struct{ header string }

func (f fakeOAuth) AuthHeader(_ context.Context, _ string) (string, error) {
	return f.header, nil
}

func TestExecExternalCall_RendersAndCaches(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if r.Header.Get("Authorization") != "Bearer tok123" {
			t.Errorf("missing expected Authorization header, got %q", r.Header.Get("Authorization"))
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	env := block.NewRootEnv(1, nil, nil, nil)
	cache := newFakeCache()
	deps := &Deps{Cache: cache, OAuth: fakeOAuth{header: "Bearer tok123"}}

	cfg := json.RawMessage(`{"method":"GET","url":"` + srv.URL + `","oauth_connection":"conn1"}`)
	b := block.Block{Kind: block.KindExternalCall, Name: "E", Config: cfg}

	out, err := execExternalCall(context.Background(), b, env, deps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var result struct {
		StatusCode int             `json:"status_code"`
		Body       json.RawMessage `json:"body"`
	}
	if err := json.Unmarshal(out, &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if result.StatusCode != 200 {
		t.Errorf("got status %d", result.StatusCode)
	}

	if _, err := execExternalCall(context.Background(), b, env, deps); err != nil {
		t.Fatalf("unexpected error on second call: %v", err)
	}
	if hits != 1 {
		t.Errorf("expected cache hit to avoid a second HTTP call, got %d hits", hits)
	}
}

func TestExecExternalCall_MissingURL(t *testing.T) {
	env := block.NewRootEnv(1, nil, nil, nil)
	cfg := json.RawMessage(`{"method":"GET"}`)
	_, err := execExternalCall(context.Background(), block.Block{Kind: block.KindExternalCall, Name: "E", Config: cfg}, env, &Deps{Cache: newFakeCache()})
	if err == nil {
		t.Fatal("expected an error for a missing url")
	}
}

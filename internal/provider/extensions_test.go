/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package provider

import (
	"context"
	"testing"
)

func TestMockProvider_Embed(t *testing.T) {
	mock := NewMockProviderSimple("unused")
	resp, err := mock.Embed(context.Background(), &EmbedRequest{Texts: []string{"ab", "abcd"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Vectors) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(resp.Vectors))
	}
	if resp.Vectors[0][0] != 2 || resp.Vectors[1][0] != 4 {
		t.Errorf("unexpected vectors: %+v", resp.Vectors)
	}
}

func TestMockProvider_StreamChat_TerminalSentinel(t *testing.T) {
	mock := NewMockProviderSimple("abcdefgh")
	events, err := mock.StreamChat(context.Background(), &CompletionRequest{Model: "test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var seenFinal bool
	var tokenCount int
	for ev := range events {
		if seenFinal {
			t.Fatal("event received after final")
		}
		switch ev.Type {
		case "tokens":
			tokenCount++
		case "final":
			seenFinal = true
		}
	}
	if !seenFinal {
		t.Error("expected exactly one final event")
	}
	if tokenCount == 0 {
		t.Error("expected at least one tokens event before final")
	}
}

func TestRegistry_Get_Unknown(t *testing.T) {
	reg := Registry{"mock": NewMockProviderSimple("x")}
	if _, err := reg.Get("missing"); err == nil {
		t.Error("expected error for unknown provider_id")
	}
	if _, err := reg.Get("mock"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

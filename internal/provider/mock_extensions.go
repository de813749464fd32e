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
	"strconv"
	"strings"
)

// Embed returns one deterministic vector per input text — a single-element
// vector holding the byte length of the text — so tests can assert on
// embeddings without a real model.
func (m *MockProvider) Embed(_ context.Context, req *EmbedRequest) (*EmbedResponse, error) {
	vectors := make([][]float32, len(req.Texts))
	for i, text := range req.Texts {
		vectors[i] = []float32{float32(len(text))}
	}
	return &EmbedResponse{Vectors: vectors, Usage: UsageInfo{InputTokens: int64(len(req.Texts))}}, nil
}

// Tokenize splits on whitespace and assigns sequential IDs — not a real
// tokenizer, but deterministic and sufficient for exercising callers.
func (m *MockProvider) Tokenize(_ context.Context, texts []string) ([][]TokenPiece, error) {
	out := make([][]TokenPiece, len(texts))
	for i, text := range texts {
		var pieces []TokenPiece
		for id, word := range strings.Fields(text) {
			pieces = append(pieces, TokenPiece{ID: id, Piece: word})
		}
		out[i] = pieces
	}
	return out, nil
}

// Decode is the inverse of Tokenize for IDs this mock itself produced; it has
// no vocabulary, so it renders each token ID as a placeholder word.
func (m *MockProvider) Decode(_ context.Context, tokens []int) (string, error) {
	words := make([]string, len(tokens))
	for i, id := range tokens {
		words[i] = "tok" + strconv.Itoa(id)
	}
	return strings.Join(words, " "), nil
}

// StreamChat fragments the queued Complete response into ~4-char token
// events followed by a terminal final event, matching the bridge's
// fallback-streaming contract for non-native-streaming adapters.
func (m *MockProvider) StreamChat(ctx context.Context, req *CompletionRequest) (<-chan StreamEvent, error) {
	resp, err := m.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	ch := make(chan StreamEvent, 16)
	go func() {
		defer close(ch)
		const chunkSize = 4
		text := resp.Content
		for len(text) > 0 {
			n := chunkSize
			if n > len(text) {
				n = len(text)
			}
			select {
			case ch <- StreamEvent{Type: "tokens", TextDelta: text[:n]}:
			case <-ctx.Done():
				return
			}
			text = text[n:]
		}
		for _, tc := range resp.ToolCalls {
			tc := tc
			select {
			case ch <- StreamEvent{Type: "tool_call", ToolCall: &tc}:
			case <-ctx.Done():
				return
			}
		}
		select {
		case ch <- StreamEvent{Type: "final", Final: resp}:
		case <-ctx.Done():
		}
	}()
	return ch, nil
}

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
	"errors"
	"fmt"
)

// ErrStreamingUnsupported is returned by StreamChat on adapters with no
// native streaming support. The executor's streaming bridge (internal/
// streaming) falls back to fragmenting the final response into small
// chunks at a bounded cadence so callers observe uniform behavior either
// way.
var ErrStreamingUnsupported = errors.New("provider does not support streaming")

// Embedder is implemented by providers that can turn text into vectors.
// Not every Provider supports embeddings — callers type-assert.
type Embedder interface {
	Embed(ctx context.Context, req *EmbedRequest) (*EmbedResponse, error)
}

// EmbedRequest is the input to an embedding call.
type EmbedRequest struct {
	Texts  []string
	Model  string
	Extras map[string]interface{}
}

// EmbedResponse carries one vector per input text, in order.
type EmbedResponse struct {
	Vectors [][]float32
	Usage   UsageInfo
}

// Tokenizer is implemented by providers that can tokenize text without a
// round trip to the model.
type Tokenizer interface {
	Tokenize(ctx context.Context, texts []string) ([][]TokenPiece, error)
}

// TokenPiece is one token of a tokenized string.
type TokenPiece struct {
	ID    int
	Piece string
}

// Decoder is implemented by providers that can decode token IDs back to text.
type Decoder interface {
	Decode(ctx context.Context, tokens []int) (string, error)
}

// StreamChatter is implemented by providers with native streaming support.
type StreamChatter interface {
	StreamChat(ctx context.Context, req *CompletionRequest) (<-chan StreamEvent, error)
}

// StreamEvent is one event in a streamed completion.
type StreamEvent struct {
	// Type is one of "tokens", "tool_call", "final".
	Type string

	// TextDelta is set for Type == "tokens".
	TextDelta string

	// ToolCall is set for Type == "tool_call" (the call's name is known;
	// arguments may still be accumulating in subsequent events keyed by the
	// same ToolCall.ID).
	ToolCall *ToolCall

	// Final is set exactly once, for Type == "final".
	Final *CompletionResponse

	// Err terminates the stream early if non-nil.
	Err error
}

// Error is a provider-call failure carrying enough information for the
// block-level retry loop (completeWithRetry in internal/blocks) to decide
// whether to try again. The Anthropic and OpenAI adapters' Complete also
// retries transport failures, 429 and 5xx responses internally (up to
// ProviderConfig.MaxRetries, backoff 1s, 2s, 4s, ...) before returning an
// Error with Retryable set.
type Error struct {
	RequestID string
	Message   string
	Retryable bool
	RetryHint *RetryHint
}

// RetryHint suggests how the executor should space retries.
type RetryHint struct {
	SleepMillis int64
	Factor      float64
	Attempts    int
}

func (e *Error) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("provider error (request %s): %s", e.RequestID, e.Message)
	}
	return fmt.Sprintf("provider error: %s", e.Message)
}

// Registry resolves a configured provider_id to a live Provider.
type Registry map[string]Provider

// Get returns the provider registered under id, or an error naming the
// unknown id.
func (r Registry) Get(id string) (Provider, error) {
	p, ok := r[id]
	if !ok {
		return nil, fmt.Errorf("unknown provider_id %q", id)
	}
	return p, nil
}

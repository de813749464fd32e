/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package provider defines the LLM provider abstraction the execution
// core's `llm` and `chat` blocks dispatch through (E1), plus the narrower
// tokenizer/decoder/embedder surface the knowledge subsystem's document
// ingestion pipeline (E2) uses to chunk and embed text for the vector
// store. `search` queries are answered by the full-text node index, not by
// a provider.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
)

// Provider is the interface for LLM backends.
// Implementations must be safe for concurrent use.
type Provider interface {
	// Complete sends a completion request and returns the response.
	// The response may contain text content, tool calls, or both.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// Name returns the provider identifier (e.g. "anthropic", "openai").
	Name() string
}

// CompletionRequest is the input to an LLM completion call. Every field
// here is also what the C5 cache layer fingerprints a request by (see
// runCompletion in internal/blocks/kinds_llm.go), so a field that affects
// the model's response belongs on this struct, not threaded around it.
type CompletionRequest struct {
	// ProviderID is the configured provider identifier the run resolved
	// this request against (e.g. "anthropic", "openai"); included so two
	// otherwise-identical requests routed to different providers never
	// collide on the same cache entry.
	ProviderID string `json:"provider_id,omitempty"`

	// SystemPrompt is the system-level instruction (assembled prompt).
	SystemPrompt string `json:"system_prompt,omitempty"`

	// Messages is the conversation history.
	Messages []Message `json:"messages,omitempty"`

	// Tools is the list of available tools the LLM may call.
	Tools []ToolDefinition `json:"tools,omitempty"`

	// Model is the specific model ID (e.g. "claude-sonnet-4-20250514").
	Model string `json:"model"`

	// MaxTokens is the maximum output tokens.
	MaxTokens int32 `json:"max_tokens"`

	// Temperature controls sampling randomness; nil means "provider default".
	Temperature *float64 `json:"temperature,omitempty"`

	// TopP is nucleus sampling mass; nil means "provider default".
	TopP *float64 `json:"top_p,omitempty"`

	// Stop is the set of sequences that end generation early.
	Stop []string `json:"stop,omitempty"`

	// Extras carries any additional provider-specific knobs a block
	// declares that still affect the model's response (and must therefore
	// still be part of the cache fingerprint) without widening this
	// struct for every provider-specific option.
	Extras map[string]interface{} `json:"extras,omitempty"`
}

// Message represents a single message in the conversation.
type Message struct {
	// Role is "user", "assistant", or "tool".
	Role string

	// Content is the text content (for user/assistant messages).
	Content string

	// ToolCalls is populated when the assistant requests tool execution.
	ToolCalls []ToolCall

	// ToolResults is populated when returning tool execution results.
	ToolResults []ToolResult
}

// ToolCall represents the LLM requesting execution of a tool (e.g. a
// `search` or `datasource_query` block exposed to the model as a callable
// function).
type ToolCall struct {
	// ID is a unique identifier for this tool call (provider-assigned).
	ID string

	// Name is the tool function name.
	Name string

	// Args is the parsed arguments.
	Args map[string]interface{}

	// RawArgs is the raw JSON arguments string (for logging).
	RawArgs string
}

// ToolResult represents the result of executing a tool.
type ToolResult struct {
	// ToolCallID links back to the originating ToolCall.
	ToolCallID string

	// Content is the tool output.
	Content string

	// IsError indicates the tool returned an error.
	IsError bool
}

// ToolDefinition describes a tool the LLM may call.
type ToolDefinition struct {
	// Name is the tool function name.
	Name string

	// Description explains what the tool does.
	Description string

	// Parameters is the JSON Schema for the tool's parameters.
	Parameters map[string]interface{}
}

// CompletionResponse is the output of an LLM completion call.
type CompletionResponse struct {
	// Content is the text response (may be empty if only tool calls).
	Content string

	// ToolCalls is populated when the LLM wants to execute tools.
	ToolCalls []ToolCall

	// Usage reports token consumption.
	Usage UsageInfo

	// StopReason explains why the LLM stopped generating.
	// Common values: "end_turn", "tool_use", "max_tokens".
	StopReason string
}

// HasToolCalls returns true if the response contains tool call requests.
func (r *CompletionResponse) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

// UsageInfo reports token consumption for a single completion call.
type UsageInfo struct {
	InputTokens  int64
	OutputTokens int64
}

// TotalTokens returns input + output.
func (u UsageInfo) TotalTokens() int64 {
	return u.InputTokens + u.OutputTokens
}

// ProviderConfig holds configuration for creating a provider.
type ProviderConfig struct {
	// Type is the provider type: "anthropic", "openai".
	Type string

	// Endpoint is the API base URL (empty for default).
	Endpoint string

	// APIKey is the API key (for apiKey auth).
	APIKey string

	// CustomHeaders are additional headers to send.
	CustomHeaders map[string]string

	// MaxRetries is the number of retries on transient failure (default 3).
	MaxRetries int

	// TimeoutSeconds is the per-request timeout (default 120).
	TimeoutSeconds int

	// EmbeddingModel is not read by the adapters in this package:
	// OpenAIProvider.Embed uses EmbedRequest.Model, or
	// "text-embedding-3-small" when that is empty.
	EmbeddingModel string
}

// NewProvider creates a provider from config.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	switch cfg.Type {
	case "anthropic":
		return NewAnthropicProvider(cfg)
	case "openai":
		return NewOpenAIProvider(cfg)
	default:
		return nil, fmt.Errorf("unsupported provider type: %q", cfg.Type)
	}
}

// mergeExtras marshals apiReq and, if extras is non-empty, shallow-merges
// its keys into the resulting JSON object so a block's provider-specific
// knobs (e.g. "anthropic_version", "reasoning_effort") reach the wire
// request without every provider adapter growing a bespoke field for each
// one. Keys in extras never overwrite fields apiReq itself set.
func mergeExtras(apiReq interface{}, extras map[string]interface{}) ([]byte, error) {
	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, err
	}
	if len(extras) == 0 {
		return body, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(body, &merged); err != nil {
		return nil, err
	}
	for k, v := range extras {
		if _, exists := merged[k]; exists {
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal extra %q: %w", k, err)
		}
		merged[k] = raw
	}
	return json.Marshal(merged)
}

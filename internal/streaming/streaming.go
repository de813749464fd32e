/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package streaming implements the streaming bridge (C8): a bounded event
// channel per run that the executor's EventSink interface writes to, and
// that the HTTP API drains into a server-sent-events response.
package streaming

import (
	"context"
	"time"

	"github.com/marcus-qen/appcore/internal/block"
)

// channelCapacity bounds how many events can queue before tokens start
// getting dropped. Status/error/final never drop — they block briefly
// instead, per the bridge's ordering guarantee.
const channelCapacity = 64

// blockingSendDeadline bounds how long a status/error/final send will wait
// for a slow consumer before giving up; a stuck consumer should not hang the
// run indefinitely.
const blockingSendDeadline = 5 * time.Second

// EventType discriminates the Event union.
type EventType string

const (
	EventTokens       EventType = "tokens"
	EventFunctionCall EventType = "function_call"
	EventBlockStatus  EventType = "block_status"
	EventError        EventType = "error"
	EventFinal        EventType = "final"
)

// Event is one frame on the bridge channel.
type Event struct {
	Type         EventType         `json:"type"`
	BlockName    string            `json:"block_name,omitempty"`
	TokenDelta   string            `json:"token_delta,omitempty"`
	FunctionName string            `json:"function_name,omitempty"`
	Status       *block.BlockStatus `json:"status,omitempty"`
	ErrorCode    string            `json:"error_code,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
}

// Bridge is a per-run event channel satisfying executor.EventSink
// structurally (Tokens, FunctionCall, BlockStatus, Error, Final).
type Bridge struct {
	events chan Event
	closed chan struct{}
}

// NewBridge allocates a bridge with the fixed channel capacity described in
// SPEC_FULL.md's re-architecture guidance for C8.
func NewBridge() *Bridge {
	return &Bridge{
		events: make(chan Event, channelCapacity),
		closed: make(chan struct{}),
	}
}

// Events returns the receive side for the HTTP layer to drain.
func (b *Bridge) Events() <-chan Event {
	return b.events
}

// Tokens emits an incremental text delta. Non-blocking: under backpressure
// the delta is silently dropped rather than stalling block execution.
func (b *Bridge) Tokens(blockName, delta string) {
	select {
	case b.events <- Event{Type: EventTokens, BlockName: blockName, TokenDelta: delta}:
	default:
	}
}

// FunctionCall emits the start of a tool/function invocation. Best-effort,
// same drop semantics as Tokens — a missed function_call notification in a
// slow consumer does not change the run's outcome.
func (b *Bridge) FunctionCall(blockName, toolName string) {
	select {
	case b.events <- Event{Type: EventFunctionCall, BlockName: blockName, FunctionName: toolName}:
	default:
	}
}

// BlockStatus emits a block status transition. Blocking (with a bounded
// deadline) — status events are never silently dropped.
func (b *Bridge) BlockStatus(status block.BlockStatus) {
	b.blockingSend(Event{Type: EventBlockStatus, Status: &status})
}

// Error emits a terminal failure. Blocking, same guarantee as BlockStatus.
func (b *Bridge) Error(code, message string) {
	b.blockingSend(Event{Type: EventError, ErrorCode: code, ErrorMessage: message})
}

// Final emits the terminal sentinel and closes the channel. Guaranteed to be
// the last event a consumer observes; calling any method after Final is a
// caller bug, not something the bridge needs to guard against.
func (b *Bridge) Final() {
	b.blockingSend(Event{Type: EventFinal})
	close(b.events)
	close(b.closed)
}

func (b *Bridge) blockingSend(evt Event) {
	timer := time.NewTimer(blockingSendDeadline)
	defer timer.Stop()
	select {
	case b.events <- evt:
	case <-timer.C:
	}
}

// Done reports when Final has been called, for callers that need to stop
// draining without relying on channel-closed detection alone.
func (b *Bridge) Done() <-chan struct{} {
	return b.closed
}

// chunkSize is the fallback fragment length used when a provider can't
// stream natively (SPEC_FULL.md's ~4-char chunking).
const chunkSize = 4

// ChunkText splits text into uniformly sized runs for adapters without
// native token streaming, so clients observe the same cadence either way.
func ChunkText(ctx context.Context, text string, emit func(delta string)) {
	runes := []rune(text)
	for i := 0; i < len(runes); i += chunkSize {
		select {
		case <-ctx.Done():
			return
		default:
		}
		end := i + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		emit(string(runes[i:end]))
	}
}

/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package mcp bridges an `external_call` block to a remote MCP (Model
// Context Protocol) tool server over the Streamable HTTP transport, so a
// specification can invoke a tool on an MCP server the same way it calls a
// plain HTTP endpoint. Sessions are opened lazily, one per distinct server
// endpoint, and reused across calls.
package mcp

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Bridge holds live sessions to MCP servers, keyed by endpoint.
type Bridge struct {
	client *mcpsdk.Client

	mu          sync.Mutex
	sessions    map[string]*mcpsdk.ClientSession
	httpTimeout time.Duration
}

// NewBridge creates a Bridge identifying itself to MCP servers as appcore.
func NewBridge() *Bridge {
	return &Bridge{
		client: mcpsdk.NewClient(&mcpsdk.Implementation{
			Name:    "appcore",
			Version: "0.1.0",
		}, nil),
		sessions:    make(map[string]*mcpsdk.ClientSession),
		httpTimeout: 60 * time.Second,
	}
}

// Call invokes tool on the MCP server at endpoint with args, returning the
// joined text content of the result. A non-nil error wraps the MCP error
// returned by the server when result.IsError is set, so callers can treat it
// like any other block execution failure.
func (b *Bridge) Call(ctx context.Context, endpoint, tool string, args map[string]interface{}) (string, error) {
	session, err := b.sessionFor(ctx, endpoint)
	if err != nil {
		return "", fmt.Errorf("connect to mcp server %s: %w", endpoint, err)
	}

	result, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      tool,
		Arguments: args,
	})
	if err != nil {
		// A dead session can't be reused; drop it so the next call reconnects.
		b.dropSession(endpoint)
		return "", fmt.Errorf("mcp call %s/%s: %w", endpoint, tool, err)
	}

	text := extractTextContent(result)
	if result.IsError {
		return text, fmt.Errorf("mcp tool %s/%s returned an error: %s", endpoint, tool, text)
	}
	return text, nil
}

func (b *Bridge) sessionFor(ctx context.Context, endpoint string) (*mcpsdk.ClientSession, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if session, ok := b.sessions[endpoint]; ok {
		return session, nil
	}

	transport := &mcpsdk.StreamableClientTransport{
		Endpoint:             endpoint,
		HTTPClient:           &http.Client{Timeout: b.httpTimeout},
		DisableStandaloneSSE: true,
	}
	session, err := b.client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, err
	}
	b.sessions[endpoint] = session
	return session, nil
}

func (b *Bridge) dropSession(endpoint string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sessions, endpoint)
}

// Close closes every open session. Called during process shutdown.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for endpoint, session := range b.sessions {
		_ = session.Close()
		delete(b.sessions, endpoint)
	}
}

func extractTextContent(result *mcpsdk.CallToolResult) string {
	if result == nil {
		return ""
	}
	var parts []string
	for _, content := range result.Content {
		if tc, ok := content.(*mcpsdk.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

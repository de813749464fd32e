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

	"github.com/marcus-qen/appcore/internal/provider"
)

// Cache is the narrow surface C5 exposes to block execution: fingerprint a
// request, look up prior responses, and record a new one. Block kinds never
// talk to storage directly — only through this interface and Knowledge/
// OAuth below — so they stay swappable and unit-testable.
type Cache interface {
	Lookup(ctx context.Context, project int64, fingerprint []byte) ([]byte, bool, error)
	Store(ctx context.Context, project int64, fingerprint []byte, response []byte) error
}

// Knowledge is the external-collaborator surface for `search` and
// `datasource_query` blocks.
type Knowledge interface {
	Search(ctx context.Context, project int64, dataSource, query string, topK int) ([]byte, error)
	QueryTable(ctx context.Context, project int64, table, query string, args []interface{}) ([]byte, error)
}

// OAuthResolver resolves a named connection to a live Authorization header
// value, refreshing the underlying token if needed.
type OAuthResolver interface {
	AuthHeader(ctx context.Context, connectionID string) (string, error)
}

// MCPCaller is the external-collaborator surface an `external_call` block
// uses when its config names an "mcp_server" instead of a plain "url" —
// the request is dispatched to a Model Context Protocol tool server rather
// than over raw HTTP. See internal/mcp.Bridge.
type MCPCaller interface {
	Call(ctx context.Context, endpoint, tool string, args map[string]interface{}) (string, error)
}

// Deps bundles every external collaborator a block Execute function may
// need. A nil field means that capability is unavailable; kinds that need it
// return a descriptive error rather than panicking.
type Deps struct {
	Providers provider.Registry
	Cache     Cache
	Knowledge Knowledge
	OAuth     OAuthResolver
	MCP       MCPCaller
	Retries   RetryPolicy
}

// RetryPolicy is consulted by llm/chat blocks (completeWithRetry) to decide
// how many attempts to make and how long to wait between them. Whether an
// error is retryable is read from the adapter's provider.Error.Retryable
// flag; external_call blocks make a single attempt.
type RetryPolicy interface {
	MaxAttempts() int
	Backoff(attempt int) (waitMillis int64)
}

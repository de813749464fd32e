/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package blocks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/marcus-qen/appcore/internal/block"
)

// externalRequest is the canonicalized, fingerprintable shape of an
// external_call block's resolved request — method, URL, headers, and body,
// after every ${...} reference has been substituted. Caching keys off this
// rather than the raw net/http.Request, which isn't comparable or
// marshalable in a stable way.
type externalRequest struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

// mcpRequest is the canonicalized, fingerprintable shape of an
// external_call block dispatched through an MCP tool server instead of raw
// HTTP — the server endpoint, tool name, and resolved arguments.
type mcpRequest struct {
	Server string                 `json:"mcp_server"`
	Tool   string                 `json:"mcp_tool"`
	Args   map[string]interface{} `json:"args,omitempty"`
}

// execExternalCall renders an HTTP request template, optionally attaches an
// OAuth bearer header, consults the cache under the resolved request's
// fingerprint, and on a miss performs the call. When the block config names
// "mcp_server" and "mcp_tool" instead of "url", the call is dispatched to an
// MCP tool server through deps.MCP rather than over raw HTTP.
func execExternalCall(ctx context.Context, b block.Block, env block.Env, deps *Deps) ([]byte, error) {
	if serverRaw, ok := configField(b.Config, "mcp_server"); ok {
		return execMCPCall(ctx, b, env, deps, serverRaw)
	}

	req, err := buildExternalRequest(b, env)
	if err != nil {
		return nil, err
	}

	if connRaw, ok := configField(b.Config, "oauth_connection"); ok {
		connID, ok := connRaw.(string)
		if !ok {
			return nil, fmt.Errorf("external_call block %q \"oauth_connection\" must be a string", b.Name)
		}
		if deps.OAuth == nil {
			return nil, fmt.Errorf("external_call block %q references an oauth connection but no resolver is configured", b.Name)
		}
		header, err := deps.OAuth.AuthHeader(ctx, connID)
		if err != nil {
			return nil, fmt.Errorf("external_call block %q: %w", b.Name, err)
		}
		if req.Headers == nil {
			req.Headers = map[string]string{}
		}
		req.Headers["Authorization"] = header
	}

	canon, err := block.CanonicalJSON(req)
	if err != nil {
		return nil, err
	}
	fingerprint := block.Hash(canon)

	useCache := true
	if cfg, ok := env.Config[b.Name]; ok && cfg.UseCache != nil {
		useCache = *cfg.UseCache
	}
	if useCache && deps.Cache != nil {
		if cached, hit, err := deps.Cache.Lookup(ctx, env.Project, fingerprint); err == nil && hit {
			return cached, nil
		}
	}

	result, err := performExternalCall(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("external_call block %q: %w", b.Name, err)
	}

	if useCache && deps.Cache != nil {
		_ = deps.Cache.Store(ctx, env.Project, fingerprint, result)
	}
	return result, nil
}

// execMCPCall resolves an MCP-bridged external_call block's server, tool,
// and arguments, consults the cache under the same fingerprint/use_cache
// rules as the plain-HTTP path, and on a miss dispatches through deps.MCP.
func execMCPCall(ctx context.Context, b block.Block, env block.Env, deps *Deps, serverRaw interface{}) ([]byte, error) {
	req, err := buildMCPRequest(b, env, serverRaw)
	if err != nil {
		return nil, err
	}
	if deps.MCP == nil {
		return nil, fmt.Errorf("external_call block %q names an mcp_server but no MCP bridge is configured", b.Name)
	}

	canon, err := block.CanonicalJSON(req)
	if err != nil {
		return nil, err
	}
	fingerprint := block.Hash(canon)

	useCache := true
	if cfg, ok := env.Config[b.Name]; ok && cfg.UseCache != nil {
		useCache = *cfg.UseCache
	}
	if useCache && deps.Cache != nil {
		if cached, hit, err := deps.Cache.Lookup(ctx, env.Project, fingerprint); err == nil && hit {
			return cached, nil
		}
	}

	text, err := deps.MCP.Call(ctx, req.Server, req.Tool, req.Args)
	if err != nil {
		return nil, fmt.Errorf("external_call block %q: %w", b.Name, err)
	}
	result, err := json.Marshal(struct {
		Result string `json:"result"`
	}{Result: text})
	if err != nil {
		return nil, err
	}

	if useCache && deps.Cache != nil {
		_ = deps.Cache.Store(ctx, env.Project, fingerprint, result)
	}
	return result, nil
}

func buildMCPRequest(b block.Block, env block.Env, serverRaw interface{}) (*mcpRequest, error) {
	serverStr, ok := serverRaw.(string)
	if !ok {
		return nil, fmt.Errorf("external_call block %q \"mcp_server\" must be a string", b.Name)
	}
	resolvedServer, err := ResolveString(serverStr, env)
	if err != nil {
		return nil, fmt.Errorf("external_call block %q mcp_server: %w", b.Name, err)
	}

	toolRaw, ok := configField(b.Config, "mcp_tool")
	if !ok {
		return nil, fmt.Errorf("external_call block %q names an mcp_server but is missing \"mcp_tool\"", b.Name)
	}
	toolStr, ok := toolRaw.(string)
	if !ok {
		return nil, fmt.Errorf("external_call block %q \"mcp_tool\" must be a string", b.Name)
	}

	req := &mcpRequest{Server: resolvedServer, Tool: toolStr}

	if argsRaw, ok := configField(b.Config, "args"); ok {
		resolved, err := ResolveValue(argsRaw, env)
		if err != nil {
			return nil, fmt.Errorf("external_call block %q args: %w", b.Name, err)
		}
		argsMap, ok := resolved.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("external_call block %q \"args\" must be an object", b.Name)
		}
		req.Args = argsMap
	}

	return req, nil
}

func buildExternalRequest(b block.Block, env block.Env) (*externalRequest, error) {
	req := &externalRequest{Method: "GET"}

	if methodRaw, ok := configField(b.Config, "method"); ok {
		method, ok := methodRaw.(string)
		if !ok {
			return nil, fmt.Errorf("external_call block %q \"method\" must be a string", b.Name)
		}
		req.Method = method
	}

	urlRaw, ok := configField(b.Config, "url")
	if !ok {
		return nil, fmt.Errorf("external_call block %q missing \"url\"", b.Name)
	}
	urlStr, ok := urlRaw.(string)
	if !ok {
		return nil, fmt.Errorf("external_call block %q \"url\" must be a string", b.Name)
	}
	resolvedURL, err := ResolveString(urlStr, env)
	if err != nil {
		return nil, fmt.Errorf("external_call block %q url: %w", b.Name, err)
	}
	req.URL = resolvedURL

	if headersRaw, ok := configField(b.Config, "headers"); ok {
		headerMap, ok := headersRaw.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("external_call block %q \"headers\" must be an object", b.Name)
		}
		resolved := make(map[string]string, len(headerMap))
		for k, v := range headerMap {
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("external_call block %q header %q must be a string", b.Name, k)
			}
			rv, err := ResolveString(s, env)
			if err != nil {
				return nil, fmt.Errorf("external_call block %q header %q: %w", b.Name, k, err)
			}
			resolved[k] = rv
		}
		req.Headers = resolved
	}

	if bodyRaw, ok := configField(b.Config, "body"); ok {
		resolved, err := ResolveValue(bodyRaw, env)
		if err != nil {
			return nil, fmt.Errorf("external_call block %q body: %w", b.Name, err)
		}
		encoded, err := json.Marshal(resolved)
		if err != nil {
			return nil, err
		}
		req.Body = string(encoded)
	}

	return req, nil
}

var externalHTTPClient = &http.Client{Timeout: 60 * time.Second}

func performExternalCall(ctx context.Context, er *externalRequest) ([]byte, error) {
	var bodyReader io.Reader
	if er.Body != "" {
		bodyReader = bytes.NewBufferString(er.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, er.Method, er.URL, bodyReader)
	if err != nil {
		return nil, err
	}
	for k, v := range er.Headers {
		httpReq.Header.Set(k, v)
	}
	if er.Body != "" && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := externalHTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", block.ErrProviderRetryable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	result := struct {
		StatusCode int             `json:"status_code"`
		Body       json.RawMessage `json:"body"`
	}{StatusCode: resp.StatusCode}

	if json.Valid(respBody) {
		result.Body = respBody
	} else {
		encoded, err := json.Marshal(string(respBody))
		if err != nil {
			return nil, err
		}
		result.Body = encoded
	}

	return json.Marshal(result)
}

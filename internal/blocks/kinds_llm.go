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
	"time"

	"github.com/marcus-qen/appcore/internal/block"
	"github.com/marcus-qen/appcore/internal/provider"
	"github.com/marcus-qen/appcore/internal/retry"
)

// execLLM builds a single-turn completion request from the block's
// templated fields, consults the cache under the request's content
// fingerprint, and on a miss dispatches to the configured provider, storing
// the response for future identical requests.
func execLLM(ctx context.Context, b block.Block, env block.Env, deps *Deps) ([]byte, error) {
	req, err := buildCompletionRequest(b, env, false)
	if err != nil {
		return nil, err
	}
	return runCompletion(ctx, b, env, deps, req)
}

// execChat is execLLM over the full conversation history in "messages"
// rather than a single rendered prompt — the block config shapes differ,
// the dispatch/cache/retry path is identical.
func execChat(ctx context.Context, b block.Block, env block.Env, deps *Deps) ([]byte, error) {
	req, err := buildCompletionRequest(b, env, true)
	if err != nil {
		return nil, err
	}
	return runCompletion(ctx, b, env, deps, req)
}

func buildCompletionRequest(b block.Block, env block.Env, chat bool) (*provider.CompletionRequest, error) {
	req := &provider.CompletionRequest{MaxTokens: 1024}

	if cfg, ok := env.Config[b.Name]; ok {
		req.Model = cfg.ModelID
		req.ProviderID = cfg.ProviderID
		req.Temperature = cfg.Temperature
		req.TopP = cfg.TopP
		if cfg.MaxTokens != nil {
			req.MaxTokens = int32(*cfg.MaxTokens)
		}
		if len(cfg.Extra) > 0 {
			var extras map[string]interface{}
			if err := json.Unmarshal(cfg.Extra, &extras); err != nil {
				return nil, fmt.Errorf("llm block %q: decode extra config: %w", b.Name, err)
			}
			req.Extras = extras
		}
	}

	if stop, ok := configField(b.Config, "stop"); ok {
		switch v := stop.(type) {
		case string:
			req.Stop = []string{v}
		case []interface{}:
			for _, s := range v {
				if str, ok := s.(string); ok {
					req.Stop = append(req.Stop, str)
				}
			}
		}
	}

	if system, ok := configField(b.Config, "instructions"); ok {
		if s, ok := system.(string); ok {
			resolved, err := ResolveString(s, env)
			if err != nil {
				return nil, fmt.Errorf("llm block %q instructions: %w", b.Name, err)
			}
			req.SystemPrompt = resolved
		}
	}

	if chat {
		msgsRaw, ok := configField(b.Config, "messages")
		if !ok {
			return nil, fmt.Errorf("chat block %q missing \"messages\"", b.Name)
		}
		msgs, err := resolveMessages(msgsRaw, env)
		if err != nil {
			return nil, fmt.Errorf("chat block %q: %w", b.Name, err)
		}
		req.Messages = msgs
		return req, nil
	}

	promptRaw, ok := configField(b.Config, "prompt")
	if !ok {
		return nil, fmt.Errorf("llm block %q missing \"prompt\"", b.Name)
	}
	prompt, ok := promptRaw.(string)
	if !ok {
		return nil, fmt.Errorf("llm block %q \"prompt\" must be a string", b.Name)
	}
	resolved, err := ResolveString(prompt, env)
	if err != nil {
		return nil, fmt.Errorf("llm block %q prompt: %w", b.Name, err)
	}
	req.Messages = []provider.Message{{Role: "user", Content: resolved}}
	return req, nil
}

func resolveMessages(raw interface{}, env block.Env) ([]provider.Message, error) {
	list, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("\"messages\" must be an array")
	}
	out := make([]provider.Message, 0, len(list))
	for _, item := range list {
		entry, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("each message must be an object")
		}
		role, _ := entry["role"].(string)
		content, _ := entry["content"].(string)
		resolved, err := ResolveString(content, env)
		if err != nil {
			return nil, err
		}
		out = append(out, provider.Message{Role: role, Content: resolved})
	}
	return out, nil
}

// runCompletion fingerprints req, consults the cache, and on a miss invokes
// the configured provider with the executor-owned retry policy.
func runCompletion(ctx context.Context, b block.Block, env block.Env, deps *Deps, req *provider.CompletionRequest) ([]byte, error) {
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

	providerID := ""
	retries := 0
	if cfg, ok := env.Config[b.Name]; ok {
		providerID = cfg.ProviderID
		retries = cfg.Retries
	}
	if providerID == "" {
		return nil, fmt.Errorf("llm block %q has no provider_id configured", b.Name)
	}
	p, err := deps.Providers.Get(providerID)
	if err != nil {
		return nil, fmt.Errorf("llm block %q: %w", b.Name, err)
	}

	policy := deps.Retries
	if retries > 0 {
		resolved, err := retry.Resolve(&retry.Override{MaxAttempts: retries})
		if err != nil {
			return nil, fmt.Errorf("llm block %q: %w", b.Name, err)
		}
		policy = resolved
	}

	resp, err := completeWithRetry(ctx, p, req, policy)
	if err != nil {
		return nil, fmt.Errorf("llm block %q: %w", b.Name, err)
	}

	out, err := json.Marshal(resp)
	if err != nil {
		return nil, err
	}
	if useCache && deps.Cache != nil {
		_ = deps.Cache.Store(ctx, env.Project, fingerprint, out)
	}
	return out, nil
}

// completeWithRetry retries a provider call according to policy. An error
// is retried only if the adapter marked it retryable (provider.Error with
// Retryable set); any other error ends the call at once.
func completeWithRetry(ctx context.Context, p provider.Provider, req *provider.CompletionRequest, policy RetryPolicy) (*provider.CompletionResponse, error) {
	attempts := 1
	if policy != nil {
		attempts = policy.MaxAttempts()
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err := p.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		var perr *provider.Error
		retryable := false
		if asProviderError(err, &perr) {
			retryable = perr.Retryable
		}
		if !retryable || attempt == attempts {
			if perr != nil {
				return nil, fmt.Errorf("%w: %s", block.ErrProviderFatal, perr.Message)
			}
			return nil, fmt.Errorf("%w: %v", block.ErrProviderFatal, err)
		}

		waitMillis := int64(500 * attempt)
		if policy != nil {
			waitMillis = policy.Backoff(attempt)
		}
		select {
		case <-time.After(time.Duration(waitMillis) * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func asProviderError(err error, target **provider.Error) bool {
	if pe, ok := err.(*provider.Error); ok {
		*target = pe
		return true
	}
	return false
}

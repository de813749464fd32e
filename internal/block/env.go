/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package block

import "encoding/json"

// InputState holds the current dataset row and its position, once the input
// block has fanned out.
type InputState struct {
	Value json.RawMessage
	Index int
}

// MapState records which map is currently open for this env lineage and the
// iteration index within it.
type MapState struct {
	Name      string
	Iteration int
}

// Env is the per-evaluation context threaded through block execution: prior
// block outputs, the current input row, the current map iteration, run
// configuration, credentials, and a store handle.
//
// State uses persistent, copy-on-write semantics: Fork shares the underlying
// map by reference until the child writes, at which point With copies. This
// avoids the accidental cross-env sharing that in-place mutation would cause
// at input fan-out and map-expansion points, where many envs are derived from
// one parent in a tight loop.
type Env struct {
	Config      RunConfig
	state       map[string]json.RawMessage
	Input       *InputState
	Map         *MapState
	Project     int64
	Credentials map[string]string
	Store       StoreHandle
}

// StoreHandle is the narrow surface Env exposes to block kinds that need to
// reach back into project-scoped storage (e.g. datasource_query, search).
// The concrete implementation is internal/httpapi's projectHandle; Env only
// needs an opaque, concurrency-safe handle to pass through.
type StoreHandle interface {
	ProjectID() int64
}

// RunConfig is the frozen per-run configuration: a mapping from block name to
// a free-form per-block object.
type RunConfig map[string]BlockConfig

// BlockConfig holds the recognized per-block configuration keys; unknown
// keys are preserved in Extra but may be ignored by the block kind.
type BlockConfig struct {
	ProviderID  string          `json:"provider_id,omitempty"`
	ModelID     string          `json:"model_id,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
	TopP        *float64        `json:"top_p,omitempty"`
	MaxTokens   *int            `json:"max_tokens,omitempty"`
	Concurrency int             `json:"concurrency,omitempty"`
	UseCache    *bool           `json:"use_cache,omitempty"`
	Retries     int             `json:"retries,omitempty"`
	Extra       json.RawMessage `json:"-"`
}

// blockConfigKnownKeys are the JSON keys already captured by a named
// BlockConfig field; everything else a block's run config carries is
// unknown and ends up in Extra instead of being silently dropped.
var blockConfigKnownKeys = map[string]bool{
	"provider_id": true,
	"model_id":    true,
	"temperature": true,
	"top_p":       true,
	"max_tokens":  true,
	"concurrency": true,
	"use_cache":   true,
	"retries":     true,
}

// UnmarshalJSON decodes the recognized fields normally and stashes every
// other top-level key into Extra, so a provider-specific knob (e.g.
// "reasoning_effort") that isn't one of the fields above still reaches the
// provider request (and therefore the cache fingerprint) instead of
// silently vanishing.
func (c *BlockConfig) UnmarshalJSON(data []byte) error {
	type alias BlockConfig
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*c = BlockConfig(a)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for k := range raw {
		if blockConfigKnownKeys[k] {
			delete(raw, k)
		}
	}
	if len(raw) == 0 {
		c.Extra = nil
		return nil
	}
	extra, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	c.Extra = extra
	return nil
}

// MarshalJSON restores the recognized fields plus whatever Extra carries,
// so round-tripping a BlockConfig (e.g. through runstore persistence)
// doesn't drop the unknown keys UnmarshalJSON captured.
func (c BlockConfig) MarshalJSON() ([]byte, error) {
	type alias BlockConfig
	base, err := json.Marshal(alias(c))
	if err != nil {
		return nil, err
	}
	if len(c.Extra) == 0 {
		return base, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	var extra map[string]json.RawMessage
	if err := json.Unmarshal(c.Extra, &extra); err != nil {
		return nil, err
	}
	for k, v := range extra {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// NewRootEnv creates the single root env a run begins with: empty state, no
// input, no open map.
func NewRootEnv(project int64, cfg RunConfig, creds map[string]string, store StoreHandle) Env {
	return Env{
		Config:      cfg,
		state:       map[string]json.RawMessage{},
		Project:     project,
		Credentials: creds,
		Store:       store,
	}
}

// Get returns the most recent output of block name within this env lineage.
func (e Env) Get(name string) (json.RawMessage, bool) {
	v, ok := e.state[name]
	return v, ok
}

// With returns a copy of e with name bound to value. The parent's state map
// is left untouched — this is the copy-on-write point.
func (e Env) With(name string, value json.RawMessage) Env {
	next := make(map[string]json.RawMessage, len(e.state)+1)
	for k, v := range e.state {
		next[k] = v
	}
	next[name] = value
	e.state = next
	return e
}

// Fork returns a shallow copy of e sharing the same state map by reference —
// cheap, safe until the child calls With, which copies on first write.
func (e Env) Fork() Env {
	return e
}

// WithInput returns a copy of e bound to one dataset row.
func (e Env) WithInput(value json.RawMessage, index int) Env {
	next := e.Fork()
	next.Input = &InputState{Value: value, Index: index}
	return next
}

// WithMap returns a copy of e with an open map iteration recorded.
func (e Env) WithMap(name string, iteration int) Env {
	next := e.Fork()
	next.Map = &MapState{Name: name, Iteration: iteration}
	return next
}

// StateSnapshot returns a defensive copy of the full state map, for callers
// (e.g. trace persistence) that must not observe later mutation.
func (e Env) StateSnapshot() map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(e.state))
	for k, v := range e.state {
		out[k] = v
	}
	return out
}

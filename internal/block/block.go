/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package block defines the shared vocabulary of the execution core: block
// kinds, the per-evaluation Env, execution records, and run/block status.
// Every other core package (specparser, blocks, executor, cache, runstore)
// builds on these types rather than redeclaring them.
package block

import (
	"encoding/json"
	"fmt"
)

// Kind identifies a block's behavior. The set is closed — an unknown kind is
// a parse error, not an extension point.
type Kind string

const (
	KindInput            Kind = "input"
	KindData             Kind = "data"
	KindCode             Kind = "code"
	KindLLM              Kind = "llm"
	KindChat             Kind = "chat"
	KindExternalCall     Kind = "external_call"
	KindMap              Kind = "map"
	KindReduce           Kind = "reduce"
	KindWhile            Kind = "while"
	KindEnd              Kind = "end"
	KindSearch           Kind = "search"
	KindDatasourceQuery  Kind = "datasource_query"
)

// ValidKinds lists every recognized block kind, in no particular order.
var ValidKinds = map[Kind]bool{
	KindInput: true, KindData: true, KindCode: true, KindLLM: true,
	KindChat: true, KindExternalCall: true, KindMap: true, KindReduce: true,
	KindWhile: true, KindEnd: true, KindSearch: true, KindDatasourceQuery: true,
}

// Block is one declarative stage of a pipeline: a kind, a name, the literal
// configuration fragment, and its content hash.
type Block struct {
	Kind      Kind
	Name      string
	Config    json.RawMessage
	InnerHash []byte
	// Cumulative is the chained hash after this block (prev ∥ name ∥ inner).
	// Set by the parser once the full ordered list is known.
	Cumulative []byte
}

// Key identifies a block by (kind, name) — the uniqueness scope within a spec.
func (b Block) Key() BlockKey { return BlockKey{Kind: b.Kind, Name: b.Name} }

// BlockKey is the (kind, name) identity used for duplicate detection, trace
// grid addressing, and status upserts.
type BlockKey struct {
	Kind Kind
	Name string
}

func (k BlockKey) String() string { return fmt.Sprintf("%s:%s", k.Kind, k.Name) }

// BlockExecution is the result of evaluating a block once for one (input,
// map) coordinate. Exactly one of Value/Error is non-nil for a completed
// execution.
type BlockExecution struct {
	Value json.RawMessage `json:"value,omitempty"`
	Error *string         `json:"error,omitempty"`
	Meta  json.RawMessage `json:"meta,omitempty"`
}

// Succeeded reports whether the execution completed without error.
func (e BlockExecution) Succeeded() bool { return e.Error == nil }

// Status is a block or run's lifecycle state.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusErrored   Status = "errored"
)

// BlockStatus is upserted by (kind, name) identity as the executor advances.
type BlockStatus struct {
	Kind         Kind   `json:"kind"`
	Name         string `json:"name"`
	Status       Status `json:"status"`
	SuccessCount int    `json:"success_count"`
	ErrorCount   int    `json:"error_count"`
}

// RunStatus aggregates the run-level status and every block's status.
type RunStatus struct {
	Run    Status        `json:"run"`
	Blocks []BlockStatus `json:"blocks"`
}

// Upsert inserts or replaces the status entry for key, preserving the slice's
// existing order otherwise.
func (rs *RunStatus) Upsert(bs BlockStatus) {
	for i := range rs.Blocks {
		if rs.Blocks[i].Kind == bs.Kind && rs.Blocks[i].Name == bs.Name {
			rs.Blocks[i] = bs
			return
		}
	}
	rs.Blocks = append(rs.Blocks, bs)
}

// Get returns the status entry for (kind, name), if present.
func (rs RunStatus) Get(k BlockKey) (BlockStatus, bool) {
	for _, bs := range rs.Blocks {
		if bs.Kind == k.Kind && bs.Name == k.Name {
			return bs, true
		}
	}
	return BlockStatus{}, false
}

// RunType classifies why a run was submitted.
type RunType string

const (
	RunTypeDeploy  RunType = "deploy"
	RunTypeLocal   RunType = "local"
	RunTypeExecute RunType = "execute"
)

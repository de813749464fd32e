/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package blocks implements the C2 block registry: per-kind execute
// functions sharing a common signature, each safely callable from many
// worker goroutines against distinct envs (blocks carry no mutable state of
// their own — everything mutable lives in the Env or in Deps' own
// concurrency-safe handles).
package blocks

import (
	"context"
	"fmt"

	"github.com/marcus-qen/appcore/internal/block"
)

// ExecuteFunc evaluates one block once, for one (input, map) coordinate.
type ExecuteFunc func(ctx context.Context, b block.Block, env block.Env, deps *Deps) ([]byte, error)

// Registry maps block kinds to their execute function.
type Registry struct {
	execs map[block.Kind]ExecuteFunc
}

// New builds a Registry with every block kind from spec §4.2 wired in.
func New() *Registry {
	r := &Registry{execs: map[block.Kind]ExecuteFunc{}}
	r.execs[block.KindInput] = execInput
	r.execs[block.KindData] = execData
	r.execs[block.KindCode] = execCode
	r.execs[block.KindLLM] = execLLM
	r.execs[block.KindChat] = execChat
	r.execs[block.KindExternalCall] = execExternalCall
	r.execs[block.KindMap] = execMap
	r.execs[block.KindReduce] = execReduce
	r.execs[block.KindWhile] = execWhile
	r.execs[block.KindEnd] = execEnd
	r.execs[block.KindSearch] = execSearch
	r.execs[block.KindDatasourceQuery] = execDatasourceQuery
	return r
}

// Execute dispatches to the registered function for b.Kind.
func (r *Registry) Execute(ctx context.Context, b block.Block, env block.Env, deps *Deps) ([]byte, error) {
	fn, ok := r.execs[b.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: no executor registered for kind %q", block.ErrInvalidSpec, b.Kind)
	}
	return fn(ctx, b, env, deps)
}

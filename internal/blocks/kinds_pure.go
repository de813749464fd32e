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

	"github.com/marcus-qen/appcore/internal/block"
)

// execInput produces the current input row. The env is expected to already
// carry it — fan-out per dataset row happens in the executor (C4), one env
// per row, before input's Execute is ever called.
func execInput(_ context.Context, _ block.Block, env block.Env, _ *Deps) ([]byte, error) {
	if env.Input == nil {
		return nil, fmt.Errorf("%w: input block evaluated without a bound dataset row", block.ErrInvalidSpec)
	}
	return env.Input.Value, nil
}

// execData emits a literal or referenced value — pure, no suspension.
func execData(_ context.Context, b block.Block, env block.Env, _ *Deps) ([]byte, error) {
	raw, ok := configField(b.Config, "value")
	if !ok {
		return nil, fmt.Errorf("data block %q missing \"value\"", b.Name)
	}
	resolved, err := ResolveValue(raw, env)
	if err != nil {
		return nil, err
	}
	return json.Marshal(resolved)
}

// execMap resolves the "from" reference to an array and emits it unchanged.
// The env replication across array elements, and marking the map name open,
// happens in the executor, which needs cross-env bookkeeping this function
// doesn't have access to.
func execMap(_ context.Context, b block.Block, env block.Env, _ *Deps) ([]byte, error) {
	from, ok := configField(b.Config, "from")
	if !ok {
		return nil, fmt.Errorf("map block %q missing \"from\"", b.Name)
	}
	fromName, ok := from.(string)
	if !ok {
		return nil, fmt.Errorf("map block %q \"from\" must be a block name", b.Name)
	}
	raw, ok := env.Get(fromName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", block.ErrMissingReference, fromName)
	}
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err != nil {
		return nil, fmt.Errorf("map block %q: referenced value is not an array: %w", b.Name, err)
	}
	return raw, nil
}

// execReduce is a no-op at the per-env level: the fold-back of per-iteration
// outputs into the parent env's state (§4.3) is cross-env bookkeeping owned
// by the executor, not by a single block evaluation.
func execReduce(_ context.Context, _ block.Block, _ block.Env, _ *Deps) ([]byte, error) {
	return json.Marshal(nil)
}

// execWhile evaluates the loop condition block referenced by "condition" and
// reports its truthiness; the executor uses this to decide whether to
// re-execute the bracketed range.
func execWhile(_ context.Context, b block.Block, env block.Env, _ *Deps) ([]byte, error) {
	condRef, ok := configField(b.Config, "condition")
	if !ok {
		return nil, fmt.Errorf("while block %q missing \"condition\"", b.Name)
	}
	condName, ok := condRef.(string)
	if !ok {
		return nil, fmt.Errorf("while block %q \"condition\" must be a block name", b.Name)
	}
	raw, ok := env.Get(condName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", block.ErrMissingReference, condName)
	}
	var truthy interface{}
	if err := json.Unmarshal(raw, &truthy); err != nil {
		return nil, err
	}
	return json.Marshal(isTruthy(truthy))
}

// execEnd closes a while bracket; like reduce, the iteration bookkeeping
// lives in the executor.
func execEnd(_ context.Context, _ block.Block, _ block.Env, _ *Deps) ([]byte, error) {
	return json.Marshal(nil)
}

func isTruthy(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case float64:
		return val != 0
	case string:
		return val != ""
	case []interface{}:
		return len(val) > 0
	case map[string]interface{}:
		return len(val) > 0
	default:
		return true
	}
}

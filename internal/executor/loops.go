/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package executor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/marcus-qen/appcore/internal/block"
)

// whileIterationCap bounds a while loop's iteration count so a condition
// that never turns falsy cannot run a block sequence forever.
const whileIterationCap = 1000

// mapOpenState records a map fan-out so the matching reduce can fold its
// per-iteration outputs back into the parent frame list.
type mapOpenState struct {
	name         string
	parentFrames []frame
	parentIdxOf  []int
	blockNames   []string
}

// trackMapBlock records that a block executed while a map is open, so its
// per-iteration outputs get folded at the matching reduce. A no-op outside
// any open map.
func trackMapBlock(stack []mapOpenState, name string) {
	if len(stack) == 0 {
		return
	}
	top := &stack[len(stack)-1]
	for _, n := range top.blockNames {
		if n == name {
			return
		}
	}
	top.blockNames = append(top.blockNames, name)
}

// openMap executes the map block itself (binding its "from" array into
// state), then replicates every current frame once per array element,
// recording the fan-out shape for the matching reduce.
func openMap(ctx context.Context, b block.Block, current []frame, opts Options) ([]frame, mapOpenState, []block.BlockExecution, error) {
	next, execs, err := runOne(ctx, b, current, opts)
	if err != nil {
		return nil, mapOpenState{}, execs, err
	}

	open := mapOpenState{name: b.Name, parentFrames: next}
	var fanned []frame
	for parentIdx, f := range next {
		raw, ok := f.env.Get(b.Name)
		if !ok {
			return nil, mapOpenState{}, execs, fmt.Errorf("map block %q produced no value", b.Name)
		}
		var arr []json.RawMessage
		if err := json.Unmarshal(raw, &arr); err != nil {
			return nil, mapOpenState{}, execs, fmt.Errorf("map block %q: %w", b.Name, err)
		}
		for iter, elem := range arr {
			child := f.env.WithMap(b.Name, iter).With(b.Name, elem)
			fanned = append(fanned, frame{env: child, inputIdx: f.inputIdx, mapIdx: iter})
			open.parentIdxOf = append(open.parentIdxOf, parentIdx)
		}
	}

	return fanned, open, execs, nil
}

// closeMap folds every block name seen during the map's open period into
// an array (preserving iteration order) bound into the parent frame's env,
// and returns the collapsed frame list.
func closeMap(open mapOpenState, current []frame) []frame {
	children := make([][]frame, len(open.parentFrames))
	for idx, f := range current {
		p := open.parentIdxOf[idx]
		children[p] = append(children[p], f)
	}

	out := make([]frame, len(open.parentFrames))
	for p, parent := range open.parentFrames {
		env := parent.env
		for _, name := range open.blockNames {
			arr := make([]json.RawMessage, len(children[p]))
			for iter, c := range children[p] {
				v, _ := c.env.Get(name)
				arr[iter] = v
			}
			raw, err := json.Marshal(arr)
			if err != nil {
				raw = []byte("[]")
			}
			env = env.With(name, raw)
		}
		out[p] = frame{env: env, inputIdx: parent.inputIdx, mapIdx: parent.mapIdx}
	}
	return out
}

// runWhileBracket re-executes the blocks strictly between a while/end pair
// against the current frame list until every frame's condition evaluates
// falsy (or the iteration cap is hit), then folds the bracket's per-
// iteration outputs into the frame list exactly as a map/reduce would.
//
// All current frames advance together: a frame whose own condition has
// already gone falsy keeps re-executing alongside its siblings until the
// whole group stops. This is a deliberate simplification — true per-frame
// early exit would need independent iteration counts per frame, which the
// trace grid (uniform per-block shape) doesn't represent.
func runWhileBracket(ctx context.Context, bracket []block.Block, current []frame, opts Options, record func(block.Block, []frame, []block.BlockExecution), status *block.RunStatus, mapStack []mapOpenState) ([]frame, error) {
	whileBlock := bracket[0]
	inner := bracket[1 : len(bracket)-1]
	// folded carries every block name whose per-iteration output gets
	// aggregated into an array at loop close — the while header's own
	// truthiness history plus every bracketed block.
	folded := append([]block.Block{whileBlock}, inner...)

	groups := make([][]frame, len(current))
	iterFrames := current

	for iter := 0; iter < whileIterationCap; iter++ {
		for _, inb := range inner {
			if inb.Kind == block.KindMap || inb.Kind == block.KindReduce || inb.Kind == block.KindWhile || inb.Kind == block.KindEnd {
				return nil, fmt.Errorf("while block %q: nested loop constructs are not supported inside a while bracket", whileBlock.Name)
			}
			next, execs, err := runOne(ctx, inb, iterFrames, opts)
			if err != nil {
				return nil, err
			}
			record(inb, iterFrames, execs)
			status.Upsert(succeeded(inb, len(next)))
			trackMapBlock(mapStack, inb.Name)
			iterFrames = next
		}

		// Re-evaluate the while header itself through the registry (the
		// same execWhile used for a standalone condition check), so its
		// truthiness reflects whatever the bracket just updated.
		next, execs, err := runOne(ctx, whileBlock, iterFrames, opts)
		if err != nil {
			return nil, err
		}
		record(whileBlock, iterFrames, execs)
		status.Upsert(succeeded(whileBlock, len(next)))
		iterFrames = next

		allFalse := true
		for idx, f := range iterFrames {
			groups[idx] = append(groups[idx], f)
			raw, ok := f.env.Get(whileBlock.Name)
			if ok && isTruthyRaw(raw) {
				allFalse = false
			}
		}
		if allFalse {
			break
		}
	}

	out := make([]frame, len(current))
	for idx, parent := range current {
		env := parent.env
		for _, fb := range folded {
			arr := make([]json.RawMessage, len(groups[idx]))
			for iter, f := range groups[idx] {
				v, _ := f.env.Get(fb.Name)
				arr[iter] = v
			}
			raw, err := json.Marshal(arr)
			if err != nil {
				raw = []byte("[]")
			}
			env = env.With(fb.Name, raw)
		}
		out[idx] = frame{env: env, inputIdx: parent.inputIdx, mapIdx: parent.mapIdx}
	}
	return out, nil
}

func isTruthyRaw(raw json.RawMessage) bool {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
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

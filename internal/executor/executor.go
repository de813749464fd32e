/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package executor implements the run executor (C4): it drives block
// evaluation in spec order, fans envs out across dataset rows and map/while
// iterations with bounded concurrency, and assembles the trace grid and
// run status the caller persists to the run store.
package executor

import (
	"context"
	"fmt"

	"github.com/marcus-qen/appcore/internal/block"
	"github.com/marcus-qen/appcore/internal/blocks"
)

// EventSink receives streaming notifications as the executor progresses.
// A nil Sink in Options disables streaming entirely. internal/streaming's
// Bridge satisfies this interface structurally.
type EventSink interface {
	Tokens(blockName, delta string)
	FunctionCall(blockName, toolName string)
	BlockStatus(status block.BlockStatus)
	Error(code, message string)
	Final()
}

// Dataset is the ordered list of input rows an input block fans out across.
type Dataset []interface{}

// Options configures a single run.
type Options struct {
	Project     int64
	Credentials map[string]string
	Store       block.StoreHandle
	Config      block.RunConfig
	Registry    *blocks.Registry
	Deps        *blocks.Deps
	Sink        EventSink
}

// BlockTrace is one block's 2-D trace grid: outer axis is dataset row,
// inner axis is map/while iteration (length 1 for blocks outside any loop).
type BlockTrace struct {
	Kind block.Kind
	Name string
	Grid [][]block.BlockExecution
}

// Result is the outcome of a completed or aborted run.
type Result struct {
	Status block.RunStatus
	Traces []BlockTrace
}

// frame is one (dataset-row, map-iteration) coordinate's env, carried
// through the block sequence.
type frame struct {
	env      block.Env
	inputIdx int
	mapIdx   int
}

// Run drives blockList to completion (a succeeded status), to the first
// erroring block, or to context cancellation — the last two end the run
// with an errored status and whatever traces were collected so far,
// matching the cancellation semantics of the run executor. A non-nil error return is reserved for a
// malformed while/end bracket the parser should already have rejected.
func Run(ctx context.Context, blockList []block.Block, dataset Dataset, opts Options) (*Result, error) {
	status := block.RunStatus{Run: block.StatusRunning}
	traceByKey := map[block.BlockKey]*BlockTrace{}
	var traceOrder []block.BlockKey

	root := block.NewRootEnv(opts.Project, opts.Config, opts.Credentials, opts.Store)
	current := []frame{{env: root}}
	var mapStack []mapOpenState

	recordTrace := func(b block.Block, frames []frame, execs []block.BlockExecution) {
		key := b.Key()
		t, ok := traceByKey[key]
		if !ok {
			t = &BlockTrace{Kind: b.Kind, Name: b.Name}
			traceByKey[key] = t
			traceOrder = append(traceOrder, key)
		}
		appendGrid(t, frames, execs)
	}

	i := 0
	for i < len(blockList) {
		b := blockList[i]

		switch b.Kind {
		case block.KindInput:
			// Bind each dataset row into its own frame first, then run the
			// input block itself against the bound frames — its own output
			// is the row, which it can only read once Input is set.
			fanned := fanOutInput(current, dataset)
			next, execs, err := runOne(ctx, b, fanned, opts)
			if err != nil {
				return abort(status, traceByKey, traceOrder, b, fanned, execs, opts), nil
			}
			recordTrace(b, fanned, execs)
			status.Upsert(succeeded(b, len(next)))
			current = next
			i++

		case block.KindMap:
			nextCurrent, openState, execs, err := openMap(ctx, b, current, opts)
			if err != nil {
				return abort(status, traceByKey, traceOrder, b, current, execs, opts), nil
			}
			recordTrace(b, current, execs)
			status.Upsert(succeeded(b, len(current)))
			mapStack = append(mapStack, openState)
			current = nextCurrent
			i++

		case block.KindReduce:
			open := mapStack[len(mapStack)-1]
			mapStack = mapStack[:len(mapStack)-1]
			folded := closeMap(open, current)
			next, execs, err := runOne(ctx, b, folded, opts)
			if err != nil {
				return abort(status, traceByKey, traceOrder, b, folded, execs, opts), nil
			}
			recordTrace(b, folded, execs)
			status.Upsert(succeeded(b, len(next)))
			current = next
			i++

		case block.KindWhile:
			end := findMatchingEnd(blockList, i)
			if end < 0 {
				return nil, fmt.Errorf("while block %q has no matching end", b.Name)
			}
			folded, err := runWhileBracket(ctx, blockList[i:end+1], current, opts, recordTrace, &status, mapStack)
			if err != nil {
				return abort(status, traceByKey, traceOrder, b, current, nil, opts), nil
			}
			current = folded
			i = end + 1

		case block.KindEnd:
			// Reached only if a while bracket was malformed upstream; the
			// parser already rejects unmatched end blocks, so this is a
			// pure no-op advance.
			i++

		default:
			next, execs, err := runOne(ctx, b, current, opts)
			if err != nil {
				return abort(status, traceByKey, traceOrder, b, current, execs, opts), nil
			}
			recordTrace(b, current, execs)
			status.Upsert(succeeded(b, len(next)))
			trackMapBlock(mapStack, b.Name)
			current = next
			i++
		}
	}

	status.Run = block.StatusSucceeded
	if opts.Sink != nil {
		opts.Sink.Final()
	}

	return &Result{Status: status, Traces: orderedTraces(traceByKey, traceOrder)}, nil
}

func succeeded(b block.Block, n int) block.BlockStatus {
	return block.BlockStatus{Kind: b.Kind, Name: b.Name, Status: block.StatusSucceeded, SuccessCount: n}
}

func abort(status block.RunStatus, traceByKey map[block.BlockKey]*BlockTrace, traceOrder []block.BlockKey, b block.Block, frames []frame, execs []block.BlockExecution, opts Options) *Result {
	successCount, errorCount := 0, 0
	for _, e := range execs {
		if e.Succeeded() {
			successCount++
		} else {
			errorCount++
		}
	}
	status.Upsert(block.BlockStatus{Kind: b.Kind, Name: b.Name, Status: block.StatusErrored, SuccessCount: successCount, ErrorCount: errorCount})
	status.Run = block.StatusErrored

	if len(execs) > 0 {
		key := b.Key()
		t, ok := traceByKey[key]
		if !ok {
			t = &BlockTrace{Kind: b.Kind, Name: b.Name}
			traceByKey[key] = t
			traceOrder = append(traceOrder, key)
		}
		appendGrid(t, frames, execs)
	}

	if opts.Sink != nil {
		opts.Sink.BlockStatus(block.BlockStatus{Kind: b.Kind, Name: b.Name, Status: block.StatusErrored, SuccessCount: successCount, ErrorCount: errorCount})
		opts.Sink.Error("block_error", fmt.Sprintf("block %q failed", b.Name))
	}

	return &Result{Status: status, Traces: orderedTraces(traceByKey, traceOrder)}
}

func orderedTraces(traceByKey map[block.BlockKey]*BlockTrace, order []block.BlockKey) []BlockTrace {
	out := make([]BlockTrace, 0, len(order))
	for _, k := range order {
		out = append(out, *traceByKey[k])
	}
	return out
}

func fanOutInput(frames []frame, dataset Dataset) []frame {
	if len(dataset) == 0 {
		return frames
	}
	out := make([]frame, 0, len(frames)*len(dataset))
	for _, f := range frames {
		for idx, row := range dataset {
			raw, err := block.CanonicalJSON(row)
			if err != nil {
				raw = []byte("null")
			}
			out = append(out, frame{env: f.env.WithInput(raw, idx), inputIdx: idx, mapIdx: f.mapIdx})
		}
	}
	return out
}

func findMatchingEnd(blockList []block.Block, whileIdx int) int {
	depth := 0
	for j := whileIdx; j < len(blockList); j++ {
		switch blockList[j].Kind {
		case block.KindWhile:
			depth++
		case block.KindEnd:
			depth--
			if depth == 0 {
				return j
			}
		}
	}
	return -1
}

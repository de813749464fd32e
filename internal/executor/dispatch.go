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

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/marcus-qen/appcore/internal/block"
)

// ioHeavyKinds default to a lower per-block concurrency ceiling than pure
// in-process kinds, reflecting the cost of an outbound call vs. a map
// lookup or arithmetic evaluation.
var ioHeavyKinds = map[block.Kind]bool{
	block.KindLLM:             true,
	block.KindChat:            true,
	block.KindExternalCall:    true,
	block.KindSearch:          true,
	block.KindDatasourceQuery: true,
}

func defaultConcurrency(kind block.Kind) int {
	if ioHeavyKinds[kind] {
		return 16
	}
	return 64
}

// runOne executes b against every frame with bounded concurrency, merges
// each success into its frame's env, and returns the updated frame list
// alongside the per-frame BlockExecution records for tracing. All frames
// run to completion regardless of individual failures — only after every
// worker finishes does the caller decide whether to abort the run.
func runOne(ctx context.Context, b block.Block, frames []frame, opts Options) ([]frame, []block.BlockExecution, error) {
	concurrency := defaultConcurrency(b.Kind)
	if cfg, ok := opts.Config[b.Name]; ok && cfg.Concurrency > 0 {
		concurrency = cfg.Concurrency
	}

	sem := semaphore.NewWeighted(int64(concurrency))
	g, gctx := errgroup.WithContext(ctx)

	values := make([][]byte, len(frames))
	errs := make([]error, len(frames))

	if opts.Sink != nil {
		opts.Sink.BlockStatus(block.BlockStatus{Kind: b.Kind, Name: b.Name, Status: block.StatusRunning})
	}

	for idx := range frames {
		idx := idx
		f := frames[idx]
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)
			val, err := opts.Registry.Execute(gctx, b, f.env, opts.Deps)
			values[idx] = val
			errs[idx] = err
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	execs := make([]block.BlockExecution, len(frames))
	newFrames := make([]frame, len(frames))
	anyErr := false
	for idx, f := range frames {
		newFrames[idx] = f
		if errs[idx] != nil {
			anyErr = true
			msg := errs[idx].Error()
			execs[idx] = block.BlockExecution{Error: &msg}
			continue
		}
		execs[idx] = block.BlockExecution{Value: values[idx]}
		newFrames[idx].env = f.env.With(b.Name, values[idx])
	}

	if anyErr {
		return newFrames, execs, errAborted
	}
	return newFrames, execs, nil
}

var errAborted = blockExecutionError{}

// blockExecutionError is a sentinel distinguishing "a block execution
// failed, stop the run" (handled by the caller via the returned execs) from
// genuine infrastructure errors (context cancellation, panics recovered
// elsewhere). It carries no message because the real error text lives in
// the per-frame BlockExecution.Error fields already returned alongside it.
type blockExecutionError struct{}

func (blockExecutionError) Error() string { return "one or more block executions failed" }

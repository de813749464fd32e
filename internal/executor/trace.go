/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package executor

import "github.com/marcus-qen/appcore/internal/block"

// appendGrid merges one block execution pass into t's trace grid, indexed
// by each frame's (inputIdx, mapIdx) coordinate. The grid grows to fit the
// largest observed indices; a single-frame block (no dataset or map fan-out
// yet) produces a 1x1 grid.
func appendGrid(t *BlockTrace, frames []frame, execs []block.BlockExecution) {
	maxInput := 0
	for _, f := range frames {
		if f.inputIdx+1 > maxInput {
			maxInput = f.inputIdx + 1
		}
	}
	if maxInput == 0 {
		maxInput = 1
	}

	if len(t.Grid) < maxInput {
		grown := make([][]block.BlockExecution, maxInput)
		copy(grown, t.Grid)
		t.Grid = grown
	}

	for idx, f := range frames {
		row := f.inputIdx
		for len(t.Grid[row]) <= f.mapIdx {
			t.Grid[row] = append(t.Grid[row], block.BlockExecution{})
		}
		t.Grid[row][f.mapIdx] = execs[idx]
	}
}

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
	"testing"

	"github.com/marcus-qen/appcore/internal/block"
	"github.com/marcus-qen/appcore/internal/blocks"
)

func dataBlock(name string, value interface{}) block.Block {
	raw, _ := json.Marshal(map[string]interface{}{"value": value})
	return block.Block{Kind: block.KindData, Name: name, Config: raw}
}

func codeBlock(name, script string) block.Block {
	raw, _ := json.Marshal(map[string]interface{}{"code": script})
	return block.Block{Kind: block.KindCode, Name: name, Config: raw}
}

func newTestOptions() Options {
	return Options{
		Project:  1,
		Config:   block.RunConfig{},
		Registry: blocks.New(),
		Deps:     &blocks.Deps{},
	}
}

func TestRun_SequentialDataBlocks(t *testing.T) {
	seq := []block.Block{
		dataBlock("a", 1),
		dataBlock("b", 2),
	}
	res, err := Run(context.Background(), seq, nil, newTestOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status.Run != block.StatusSucceeded {
		t.Fatalf("expected run to succeed, got %s", res.Status.Run)
	}
	if len(res.Traces) != 2 {
		t.Fatalf("expected 2 traces, got %d", len(res.Traces))
	}
	if string(res.Traces[1].Grid[0][0].Value) != "2" {
		t.Errorf("expected block b's trace to be 2, got %s", res.Traces[1].Grid[0][0].Value)
	}
}

func TestRun_InputFansOutAcrossDataset(t *testing.T) {
	seq := []block.Block{
		{Kind: block.KindInput, Name: "row"},
		dataBlock("tag", "x"),
	}
	dataset := Dataset{"r1", "r2", "r3"}
	res, err := Run(context.Background(), seq, dataset, newTestOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status.Run != block.StatusSucceeded {
		t.Fatalf("expected success, got %s", res.Status.Run)
	}
	rowTrace := res.Traces[0]
	if len(rowTrace.Grid) != 3 {
		t.Fatalf("expected 3 rows in the input trace, got %d", len(rowTrace.Grid))
	}
	if string(rowTrace.Grid[1][0].Value) != `"r2"` {
		t.Errorf("expected row 1 to be r2, got %s", rowTrace.Grid[1][0].Value)
	}
}

func TestRun_MapReduceFoldsPerIterationOutputs(t *testing.T) {
	seq := []block.Block{
		dataBlock("items", []interface{}{1, 2, 3}),
		{Kind: block.KindMap, Name: "iter", Config: jsonCfg(map[string]interface{}{"from": "items"})},
		codeBlock("doubled", "return env.state.iter * 2;"),
		{Kind: block.KindReduce, Name: "collected", Config: jsonCfg(map[string]interface{}{"from": "doubled"})},
	}
	res, err := Run(context.Background(), seq, nil, newTestOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status.Run != block.StatusSucceeded {
		t.Fatalf("expected success, got %s: %+v", res.Status.Run, res.Status.Blocks)
	}

	var doubledTrace *BlockTrace
	for i := range res.Traces {
		if res.Traces[i].Name == "doubled" {
			doubledTrace = &res.Traces[i]
		}
	}
	if doubledTrace == nil {
		t.Fatal("expected a trace entry for the doubled block")
	}
	if len(doubledTrace.Grid[0]) != 3 {
		t.Fatalf("expected 3 map iterations recorded, got %d", len(doubledTrace.Grid[0]))
	}
	if string(doubledTrace.Grid[0][1].Value) != "4" {
		t.Errorf("expected the second iteration to double to 4, got %s", doubledTrace.Grid[0][1].Value)
	}
}

func TestRun_WhileLoopStopsWhenConditionFalse(t *testing.T) {
	seq := []block.Block{
		dataBlock("counter", 0),
		{Kind: block.KindWhile, Name: "loop", Config: jsonCfg(map[string]interface{}{"condition": "keepGoing"})},
		codeBlock("counter", "return env.state.counter + 1;"),
		codeBlock("keepGoing", "return 3 - env.state.counter;"),
		{Kind: block.KindEnd, Name: "loop_end"},
	}
	res, err := Run(context.Background(), seq, nil, newTestOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status.Run != block.StatusSucceeded {
		t.Fatalf("expected success, got %s: %+v", res.Status.Run, res.Status.Blocks)
	}

	var loopTrace *BlockTrace
	for i := range res.Traces {
		if res.Traces[i].Name == "loop" {
			loopTrace = &res.Traces[i]
		}
	}
	if loopTrace == nil {
		t.Fatal("expected a trace entry for the while block itself")
	}
	if len(loopTrace.Grid[0]) == 0 {
		t.Fatal("expected at least one recorded while-condition evaluation")
	}
	last := loopTrace.Grid[0][len(loopTrace.Grid[0])-1]
	if string(last.Value) != "false" {
		t.Errorf("expected the loop's final recorded condition to be false, got %s", last.Value)
	}
}

func TestRun_AbortsOnBlockError(t *testing.T) {
	seq := []block.Block{
		codeBlock("broken", "1 + 1;"), // missing "return" keyword rejected by execCode
	}
	res, err := Run(context.Background(), seq, nil, newTestOptions())
	if err != nil {
		t.Fatalf("unexpected infra error: %v", err)
	}
	if res.Status.Run != block.StatusErrored {
		t.Fatalf("expected the run to be marked errored, got %s", res.Status.Run)
	}
}

func jsonCfg(v interface{}) json.RawMessage {
	raw, _ := json.Marshal(v)
	return raw
}

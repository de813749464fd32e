/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package runmanager

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestManager_DrainsSubmittedRuns(t *testing.T) {
	var ran int32
	var wg sync.WaitGroup
	wg.Add(3)

	m := New(func(ctx context.Context, app PendingApp) {
		atomic.AddInt32(&ran, 1)
		wg.Done()
	}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	for i := 0; i < 3; i++ {
		m.Submit(PendingApp{RunID: "run-" + string(rune('a'+i)), Project: 1})
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for all submitted runs to drain")
	}
	if got := atomic.LoadInt32(&ran); got != 3 {
		t.Errorf("expected 3 runs to execute, got %d", got)
	}
}

func TestManager_StopWaitsForPendingRuns(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})

	m := New(func(ctx context.Context, app PendingApp) {
		close(started)
		<-release
	}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	m.Submit(PendingApp{RunID: "slow-run", Project: 1})

	<-started
	if m.PendingRunCount() != 1 {
		t.Fatalf("expected 1 pending run while the worker blocks, got %d", m.PendingRunCount())
	}

	stopped := make(chan struct{})
	go func() {
		m.Stop(context.Background())
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned before the in-flight run released")
	case <-time.After(200 * time.Millisecond):
	}

	close(release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the in-flight run completed")
	}
}

func TestManager_SubmitAfterStopIsIgnored(t *testing.T) {
	var ran int32
	m := New(func(ctx context.Context, app PendingApp) {
		atomic.AddInt32(&ran, 1)
	}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)
	m.Stop(context.Background())
	cancel()

	m.Submit(PendingApp{RunID: "too-late", Project: 1})
	time.Sleep(50 * time.Millisecond)
	if atomic.LoadInt32(&ran) != 0 {
		t.Error("expected a submission after Stop to be ignored")
	}
}

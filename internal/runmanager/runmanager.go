/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package runmanager implements the run manager / scheduler (C7): a
// process-wide queue of pending runs, a single drain loop that spawns a
// worker per pending run, and graceful-shutdown accounting. Grounded on the
// teacher's internal/controlplane/jobs/scheduler.go drain-loop/ticker/
// mutex-guarded bookkeeping idiom, generalized from job-dispatch semantics
// (per-target claim map, 30s dispatch ticker) to run-dispatch semantics (a
// pending_runs set, a ~4-minute knowledge-subsystem cleanup ticker).
package runmanager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/marcus-qen/appcore/internal/block"
	"github.com/marcus-qen/appcore/internal/executor"
)

// cleanupInterval matches SPEC_FULL.md's "every ≈4 minutes" periodic
// knowledge-subsystem cleanup cadence.
const cleanupInterval = 4 * time.Minute

// shutdownPollInterval is how often Stop samples pending_runs while
// draining.
const shutdownPollInterval = time.Second

// PendingApp is one queued request to execute a run: the app/spec identity,
// its parsed block list and input dataset, credentials/secrets to thread
// through block execution, and whether the run store should persist
// per-block results.
type PendingApp struct {
	RunID             string
	Project           int64
	RunType           block.RunType
	Blocks            []block.Block
	Dataset           executor.Dataset
	Config            block.RunConfig
	Credentials       map[string]string
	Secrets           map[string]string
	StoreBlockResults bool
}

// Worker runs one pending app to completion. The manager does not know or
// care how a run executes — it only tracks that one is in flight.
type Worker func(ctx context.Context, app PendingApp)

// Cleanup is invoked periodically to reclaim dead knowledge-subsystem
// workers (e.g. abandoned ingestion jobs); a nil Cleanup disables the tick.
type Cleanup func(ctx context.Context)

// RecurringJob is re-fired every time its Schedule comes due, for as long as
// the manager is running. Factory mints a fresh PendingApp (and creates its
// run-store row) on each firing — recurring runs are never reused across
// firings, so each is tracked in pending_runs independently like any other
// submitted run.
type RecurringJob struct {
	ID       string
	Schedule string
	Factory  func() (PendingApp, error)
}

// Manager holds the process-wide pending-apps queue and pending-runs set.
type Manager struct {
	worker  Worker
	cleanup Cleanup
	logger  *zap.Logger

	mu          sync.Mutex
	pendingApps []PendingApp
	pendingRuns map[string]struct{}
	notify      chan struct{}
	recurring   []RecurringJob

	loopCtx  context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	draining bool
}

// New creates a run manager. worker is invoked once per drained app, in its
// own goroutine; cleanup may be nil.
func New(worker Worker, cleanup Cleanup, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		worker:      worker,
		cleanup:     cleanup,
		logger:      logger,
		pendingRuns: make(map[string]struct{}),
		notify:      make(chan struct{}, 1),
	}
}

// Submit enqueues a pending app for the drain loop to pick up. Safe to call
// concurrently with Start/Stop.
func (m *Manager) Submit(app PendingApp) {
	m.mu.Lock()
	if m.draining {
		m.mu.Unlock()
		return
	}
	m.pendingApps = append(m.pendingApps, app)
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// PendingRunCount reports how many runs are currently in flight.
func (m *Manager) PendingRunCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pendingRuns)
}

// Start launches the drain loop and, if configured, the periodic cleanup
// ticker and any recurring jobs already registered. Safe to call once; a
// second call is a no-op.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	m.loopCtx = loopCtx
	m.cancel = cancel
	jobs := m.recurring
	m.mu.Unlock()

	m.wg.Add(1)
	go m.drainLoop(loopCtx)

	if m.cleanup != nil {
		m.wg.Add(1)
		go m.cleanupLoop(loopCtx)
	}

	for _, job := range jobs {
		m.wg.Add(1)
		go m.recurringLoop(loopCtx, job)
	}
}

// AddRecurring validates job's schedule and registers it. If the manager is
// already running, the job starts firing immediately; otherwise it starts
// once Start is called.
func (m *Manager) AddRecurring(job RecurringJob) error {
	if _, err := nextScheduledRun(job.Schedule, time.Now().UTC()); err != nil {
		return fmt.Errorf("recurring job %q: invalid schedule %q: %w", job.ID, job.Schedule, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.recurring = append(m.recurring, job)
	if m.cancel != nil {
		m.wg.Add(1)
		go m.recurringLoop(m.loopCtx, job)
	}
	return nil
}

func (m *Manager) recurringLoop(ctx context.Context, job RecurringJob) {
	defer m.wg.Done()
	last := time.Now().UTC()
	for {
		next, err := nextScheduledRun(job.Schedule, last)
		if err != nil {
			m.logger.Error("recurring job has an invalid schedule, stopping", zap.String("job_id", job.ID), zap.Error(err))
			return
		}
		wait := time.Until(next)
		if wait < 0 {
			wait = 0
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		app, err := job.Factory()
		if err != nil {
			m.logger.Error("recurring job factory failed", zap.String("job_id", job.ID), zap.Error(err))
		} else {
			m.Submit(app)
		}
		last = next
	}
}

// nextScheduledRun computes the next time schedule comes due after last.
// schedule is either a Go duration ("5m") or a standard 5-field cron
// expression, following the teacher's internal/controlplane/jobs/
// scheduler.go isScheduleDue convention.
func nextScheduledRun(schedule string, last time.Time) (time.Time, error) {
	if interval, err := time.ParseDuration(schedule); err == nil {
		if interval <= 0 {
			return time.Time{}, fmt.Errorf("interval must be > 0")
		}
		return last.Add(interval), nil
	}
	spec, err := cron.ParseStandard(schedule)
	if err != nil {
		return time.Time{}, fmt.Errorf("not a duration or a standard cron expression: %w", err)
	}
	return spec.Next(last), nil
}

func (m *Manager) drainLoop(ctx context.Context) {
	defer m.wg.Done()
	for {
		m.drainOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-m.notify:
		case <-time.After(shutdownPollInterval):
			// Periodic wake in case Submit raced the select above and its
			// notify was already consumed by a prior iteration.
		}
	}
}

func (m *Manager) drainOnce(ctx context.Context) {
	m.mu.Lock()
	apps := m.pendingApps
	m.pendingApps = nil
	m.mu.Unlock()

	for _, app := range apps {
		m.mu.Lock()
		m.pendingRuns[app.RunID] = struct{}{}
		m.mu.Unlock()

		m.wg.Add(1)
		go func(app PendingApp) {
			defer m.wg.Done()
			defer func() {
				m.mu.Lock()
				delete(m.pendingRuns, app.RunID)
				m.mu.Unlock()
			}()
			m.worker(ctx, app)
		}(app)
	}
}

func (m *Manager) cleanupLoop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.cleanup(ctx)
		}
	}
}

// Stop stops accepting new runs, then blocks until every in-flight run
// completes, sampling pending_runs roughly once a second — the graceful
// shutdown sequence SPEC_FULL.md describes for a terminate signal.
func (m *Manager) Stop(ctx context.Context) {
	m.mu.Lock()
	m.draining = true
	cancel := m.cancel
	m.mu.Unlock()

	if cancel == nil {
		return
	}

	for m.PendingRunCount() > 0 {
		select {
		case <-ctx.Done():
			m.logger.Warn("run manager shutdown deadline exceeded with runs still pending", zap.Int("pending", m.PendingRunCount()))
		case <-time.After(shutdownPollInterval):
			continue
		}
		break
	}
	cancel()
	m.wg.Wait()
}

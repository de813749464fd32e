/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marcus-qen/appcore/internal/block"
	"github.com/marcus-qen/appcore/internal/executor"
	"github.com/marcus-qen/appcore/internal/metrics"
	"github.com/marcus-qen/appcore/internal/runmanager"
	"github.com/marcus-qen/appcore/internal/runstore"
	"github.com/marcus-qen/appcore/internal/streaming"
	"github.com/marcus-qen/appcore/internal/telemetry"
)

type submitRunRequest struct {
	SpecHash          string                     `json:"spec_hash"`
	DatasetName       string                     `json:"dataset_name,omitempty"`
	DatasetHash       string                     `json:"dataset_hash,omitempty"`
	Rows              []json.RawMessage          `json:"rows,omitempty"`
	RunType           block.RunType              `json:"run_type"`
	Config            block.RunConfig            `json:"config,omitempty"`
	Credentials       map[string]string          `json:"credentials,omitempty"`
	Secrets           map[string]string          `json:"secrets,omitempty"`
	StoreBlockResults bool                       `json:"store_block_results"`
}

type scheduleRecurringRunRequest struct {
	submitRunRequest
	JobID    string `json:"job_id"`
	Schedule string `json:"schedule"`
}

type runResponse struct {
	ID      string          `json:"id"`
	Project int64           `json:"project"`
	RunType block.RunType   `json:"run_type"`
	AppHash string          `json:"app_hash"`
	Status  block.RunStatus `json:"status"`
}

// projectHandle is the minimal block.StoreHandle implementation the HTTP
// layer threads into every root Env — block kinds that need project-scoped
// storage reach it through the blocks.Knowledge interface instead,
// so this handle only ever needs to answer ProjectID.
type projectHandle int64

func (p projectHandle) ProjectID() int64 { return int64(p) }

// handleSubmitRun resolves the spec and dataset named in the request,
// creates the run row, and either executes it synchronously while streaming
// progress as server-sent events (Accept: text/event-stream) or hands it to
// the run manager for asynchronous execution.
func (s *Server) handleSubmitRun(w http.ResponseWriter, r *http.Request) {
	project, err := projectFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var req submitRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.RunType == "" {
		req.RunType = block.RunTypeExecute
	}

	spec, err := s.Store.LoadSpec(r.Context(), project, req.SpecHash)
	if errors.Is(err, runstore.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Errorf("specification %q: %w", req.SpecHash, err))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	blockList, _, err := parseBlockList(spec.Text)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}

	rows, err := s.resolveDatasetRows(r.Context(), project, req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	run := runstore.Run{
		ID:        uuid.NewString(),
		Project:   project,
		RunType:   req.RunType,
		AppHash:   spec.Hash,
		Config:    req.Config,
		Status:    block.RunStatus{Run: block.StatusRunning},
		CreatedAt: time.Now().UTC(),
	}
	if err := s.Store.CreateRunEmpty(r.Context(), run); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	if r.Header.Get("Accept") == "text/event-stream" {
		s.streamRun(w, r, run, blockList, rows, req)
		return
	}

	s.Manager.Submit(runmanager.PendingApp{
		RunID:             run.ID,
		Project:           project,
		RunType:           req.RunType,
		Blocks:            blockList,
		Dataset:           executor.Dataset(rows),
		Config:            req.Config,
		Credentials:       req.Credentials,
		Secrets:           req.Secrets,
		StoreBlockResults: req.StoreBlockResults,
	})
	metrics.PendingRuns.Inc()

	writeJSON(w, http.StatusAccepted, toRunResponse(run))
}

// handleScheduleRecurringRun registers a run to be resubmitted every time
// schedule comes due (a Go duration like "5m" or a standard cron
// expression), re-resolving the spec and dataset fresh on each firing so a
// newer spec registration or dataset version is picked up without having to
// re-register the schedule.
func (s *Server) handleScheduleRecurringRun(w http.ResponseWriter, r *http.Request) {
	project, err := projectFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var req scheduleRecurringRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Schedule == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("schedule is required"))
		return
	}
	if req.JobID == "" {
		req.JobID = uuid.NewString()
	}
	if req.RunType == "" {
		req.RunType = block.RunTypeExecute
	}

	job := runmanager.RecurringJob{
		ID:       req.JobID,
		Schedule: req.Schedule,
		Factory: func() (runmanager.PendingApp, error) {
			ctx := context.Background()

			spec, err := s.Store.LoadSpec(ctx, project, req.SpecHash)
			if err != nil {
				return runmanager.PendingApp{}, fmt.Errorf("resolve specification %q: %w", req.SpecHash, err)
			}
			blockList, _, err := parseBlockList(spec.Text)
			if err != nil {
				return runmanager.PendingApp{}, fmt.Errorf("parse specification %q: %w", req.SpecHash, err)
			}
			rows, err := s.resolveDatasetRows(ctx, project, req.submitRunRequest)
			if err != nil {
				return runmanager.PendingApp{}, err
			}

			run := runstore.Run{
				ID:        uuid.NewString(),
				Project:   project,
				RunType:   req.RunType,
				AppHash:   spec.Hash,
				Config:    req.Config,
				Status:    block.RunStatus{Run: block.StatusRunning},
				CreatedAt: time.Now().UTC(),
			}
			if err := s.Store.CreateRunEmpty(ctx, run); err != nil {
				return runmanager.PendingApp{}, fmt.Errorf("create recurring run row: %w", err)
			}

			return runmanager.PendingApp{
				RunID:             run.ID,
				Project:           project,
				RunType:           req.RunType,
				Blocks:            blockList,
				Dataset:           executor.Dataset(rows),
				Config:            req.Config,
				Credentials:       req.Credentials,
				Secrets:           req.Secrets,
				StoreBlockResults: req.StoreBlockResults,
			}, nil
		},
	}

	if err := s.Manager.AddRecurring(job); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"job_id": req.JobID, "schedule": req.Schedule, "status": "scheduled"})
}

func (s *Server) resolveDatasetRows(ctx context.Context, project int64, req submitRunRequest) ([]interface{}, error) {
	if len(req.Rows) > 0 {
		return datasetToExecutorRows(req.Rows), nil
	}
	if req.DatasetName == "" {
		return nil, nil
	}

	var (
		ds  *runstore.Dataset
		err error
	)
	if req.DatasetHash != "" {
		ds, err = s.Store.LoadDataset(ctx, project, req.DatasetName, req.DatasetHash)
	} else {
		ds, err = s.Store.LoadLatestDataset(ctx, project, req.DatasetName)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve dataset %q: %w", req.DatasetName, err)
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(ds.Rows, &rows); err != nil {
		return nil, err
	}
	return datasetToExecutorRows(rows), nil
}

// streamRun executes the run inline and relays its progress as
// server-sent events, persisting the final result once the run completes.
func (s *Server) streamRun(w http.ResponseWriter, r *http.Request, run runstore.Run, blockList []block.Block, rows []interface{}, req submitRunRequest) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("streaming unsupported by this response writer"))
		return
	}

	bridge := streaming.NewBridge()
	opts := executor.Options{
		Project:     run.Project,
		Credentials: req.Credentials,
		Store:       projectHandle(run.Project),
		Config:      req.Config,
		Registry:    s.Registry,
		Deps:        s.Deps,
		Sink:        bridge,
	}

	ctx, span := telemetry.StartRunSpan(r.Context(), run.ID, string(run.RunType))
	defer span.End()

	resultCh := make(chan *executor.Result, 1)
	go func() {
		result, err := executor.Run(ctx, blockList, executor.Dataset(rows), opts)
		if err != nil {
			s.Logger.Error("run execution failed", zap.Error(err))
		}
		resultCh <- result
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	events := bridge.Events()
	for {
		select {
		case evt, open := <-events:
			if !open {
				s.finishRun(ctx, run, blockList, <-resultCh)
				return
			}
			writeSSE(w, evt)
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}

func writeSSE(w http.ResponseWriter, evt streaming.Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, data)
}

func (s *Server) finishRun(ctx context.Context, run runstore.Run, blockList []block.Block, result *executor.Result) {
	if result == nil {
		return
	}
	if err := s.persistResult(ctx, run, blockList, result); err != nil {
		s.Logger.Error("persist run result failed", zap.Error(err))
	}
}

// persistResult writes the executor's final status and trace grid into the
// run store, indexing each trace by its block's position in blockList.
func (s *Server) persistResult(ctx context.Context, run runstore.Run, blockList []block.Block, result *executor.Result) error {
	indexOf := map[block.BlockKey]int{}
	for i, b := range blockList {
		if _, ok := indexOf[b.Key()]; !ok {
			indexOf[b.Key()] = i
		}
	}

	for _, trace := range result.Traces {
		blockIdx := indexOf[block.BlockKey{Kind: trace.Kind, Name: trace.Name}]
		for inputIdx, row := range trace.Grid {
			for mapIdx, exec := range row {
				if err := s.Store.AppendRunBlock(ctx, run.Project, run.ID, blockIdx, trace.Kind, trace.Name, inputIdx, mapIdx, exec); err != nil {
					return err
				}
				status := "succeeded"
				if !exec.Succeeded() {
					status = "errored"
				}
				metrics.RecordBlockExecution(string(trace.Kind), status)
			}
		}
	}

	runStatus := "succeeded"
	if result.Status.Run == block.StatusErrored {
		runStatus = "errored"
	}
	metrics.RecordRunComplete(string(run.RunType), runStatus, 0)

	return s.Store.UpdateRunStatus(ctx, run.Project, run.ID, result.Status)
}

// NewWorker adapts persistResult into a runmanager.Worker for asynchronous
// (non-streamed) run submission.
func (s *Server) NewWorker() runmanager.Worker {
	return func(ctx context.Context, app runmanager.PendingApp) {
		defer metrics.PendingRuns.Dec()

		ctx, span := telemetry.StartRunSpan(ctx, app.RunID, string(app.RunType))
		defer span.End()

		opts := executor.Options{
			Project:     app.Project,
			Credentials: app.Credentials,
			Store:       projectHandle(app.Project),
			Config:      app.Config,
			Registry:    s.Registry,
			Deps:        s.Deps,
		}
		result, err := executor.Run(ctx, app.Blocks, app.Dataset, opts)
		if err != nil {
			s.Logger.Error("async run execution failed", zap.String("run_id", app.RunID), zap.Error(err))
			return
		}
		run := runstore.Run{ID: app.RunID, Project: app.Project, RunType: app.RunType}
		if err := s.persistResult(ctx, run, app.Blocks, result); err != nil {
			s.Logger.Error("persist async run result failed", zap.Error(err))
		}
	}
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	project, err := projectFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	runID := r.PathValue("run_id")

	selector := runstore.Selector{StatusOnly: r.URL.Query().Get("status_only") == "true"}
	if kind := r.URL.Query().Get("block_kind"); kind != "" {
		selector.SingleBlock = &block.BlockKey{Kind: block.Kind(kind), Name: r.URL.Query().Get("block_name")}
	}

	loaded, err := s.Store.LoadRun(r.Context(), project, runID, selector)
	if errors.Is(err, runstore.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, loaded)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	project, err := projectFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	runType := block.RunType(r.URL.Query().Get("run_type"))
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	runs, total, err := s.Store.ListRuns(r.Context(), project, runType, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs, "total": total})
}

func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	project, err := projectFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	runID := r.PathValue("run_id")

	if err := s.Store.DeleteRun(r.Context(), project, runID); errors.Is(err, runstore.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	} else if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toRunResponse(run runstore.Run) runResponse {
	return runResponse{ID: run.ID, Project: run.Project, RunType: run.RunType, AppHash: run.AppHash, Status: run.Status}
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

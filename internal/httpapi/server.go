/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package httpapi implements the execution core's HTTP API (E4): a thin
// REST surface over the specification/dataset registries and the run
// executor, plus a server-sent-events path for live run streaming.
//
// Grounded on the teacher's cmd/control-plane/main.go — a method-prefixed
// http.ServeMux, an http.Server with explicit Read/Write/Idle timeouts, and
// no framework in between. This project carries no authentication
// middleware, per SPEC_FULL.md's Non-goals.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/marcus-qen/appcore/internal/blocks"
	"github.com/marcus-qen/appcore/internal/knowledge"
	"github.com/marcus-qen/appcore/internal/retry"
	"github.com/marcus-qen/appcore/internal/runmanager"
	"github.com/marcus-qen/appcore/internal/runstore"
)

// Server holds every collaborator the route handlers need.
type Server struct {
	Store     *runstore.Store
	Manager   *runmanager.Manager
	Registry  *blocks.Registry
	Deps      *blocks.Deps
	Logger    *zap.Logger

	// Knowledge is the concrete knowledge subsystem collaborator, distinct
	// from Deps.Knowledge (the narrow blocks.Knowledge interface) because
	// the ingestion/table-registration routes below need Ingest and
	// RegisterTable, which aren't part of what block execution needs. Nil
	// when the process wasn't configured with a knowledge backend.
	Knowledge *knowledge.Service
}

// NewServer constructs a Server; a nil Logger is replaced with a no-op one.
func NewServer(store *runstore.Store, manager *runmanager.Manager, registry *blocks.Registry, deps *blocks.Deps, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Retries == nil {
		deps.Retries = retry.Default()
	}
	return &Server{Store: store, Manager: manager, Registry: registry, Deps: deps, Logger: logger}
}

// Routes builds the method-prefixed mux the teacher's control plane uses,
// retargeted from fleet-management routes to specification/dataset/run
// routes.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealthz)

	mux.HandleFunc("POST /v1/projects/{project}/specifications", s.handleRegisterSpecification)
	mux.HandleFunc("GET /v1/projects/{project}/specifications/{hash}", s.handleGetSpecification)

	mux.HandleFunc("POST /v1/projects/{project}/datasets", s.handleRegisterDataset)
	mux.HandleFunc("GET /v1/projects/{project}/datasets/{name}", s.handleGetDataset)

	mux.HandleFunc("POST /v1/projects/{project}/runs", s.handleSubmitRun)
	mux.HandleFunc("POST /v1/projects/{project}/runs/recurring", s.handleScheduleRecurringRun)
	mux.HandleFunc("GET /v1/projects/{project}/runs/{run_id}", s.handleGetRun)
	mux.HandleFunc("GET /v1/projects/{project}/runs", s.handleListRuns)
	mux.HandleFunc("DELETE /v1/projects/{project}/runs/{run_id}", s.handleDeleteRun)

	mux.HandleFunc("POST /v1/projects/{project}/knowledge/documents", s.handleIngestDocument)
	mux.HandleFunc("POST /v1/projects/{project}/knowledge/tables", s.handleRegisterTable)

	return mux
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

// NewHTTPServer wraps mux in an http.Server with the teacher's timeout
// values, listening on addr.
func NewHTTPServer(addr string, mux http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // SSE responses on /runs stream for the lifetime of a run
		IdleTimeout:  120 * time.Second,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

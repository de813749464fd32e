/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package httpapi

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/marcus-qen/appcore/internal/knowledge"
)

type ingestDocumentRequest struct {
	DataSource string `json:"data_source"`
	Text       string `json:"text"`
}

// handleIngestDocument chunks, embeds, and indexes a document under
// data_source, making it reachable by subsequent `search` block calls
// against the same data source. Requires the server to have been built with
// a knowledge ingestion pipeline (see cmd/appcore's buildKnowledge); a
// deployment with no provider configured for embeddings returns 503.
func (s *Server) handleIngestDocument(w http.ResponseWriter, r *http.Request) {
	if _, err := projectFromPath(r); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if s.Knowledge == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("knowledge subsystem not configured"))
		return
	}

	var req ingestDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.DataSource == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("data_source is required"))
		return
	}

	if err := s.Knowledge.Ingest(r.Context(), req.DataSource, req.Text); err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"data_source": req.DataSource, "status": "ingested"})
}

type registerTableRequest struct {
	Name    string `json:"name"`
	DSN     string `json:"dsn"`
	Dialect string `json:"dialect"`
	MaxRows int    `json:"max_rows"`
}

// handleRegisterTable opens dsn (a postgres connection string — the only
// goqu dialect internal/knowledge.TableStore currently wires) and attaches
// it as a `datasource_query` table group under name.
//
// A DSN reaches this handler only over an operator-controlled API call, the
// same trust boundary specification/dataset registration already crosses;
// it is never templated from run input.
func (s *Server) handleRegisterTable(w http.ResponseWriter, r *http.Request) {
	if _, err := projectFromPath(r); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if s.Knowledge == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("knowledge subsystem not configured"))
		return
	}

	var req registerTableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Name == "" || req.DSN == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("name and dsn are required"))
		return
	}
	dialect := req.Dialect
	if dialect == "" {
		dialect = "postgres"
	}

	db, err := sql.Open("pgx", req.DSN)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("open table source: %w", err))
		return
	}
	if err := db.PingContext(r.Context()); err != nil {
		db.Close()
		writeError(w, http.StatusBadRequest, fmt.Errorf("ping table source: %w", err))
		return
	}

	s.Knowledge.RegisterTable(req.Name, knowledge.NewTableStore(db, dialect, req.MaxRows))
	writeJSON(w, http.StatusCreated, map[string]string{"name": req.Name, "status": "registered"})
}

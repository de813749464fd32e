/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/marcus-qen/appcore/internal/block"
	"github.com/marcus-qen/appcore/internal/runstore"
)

type registerDatasetRequest struct {
	Name string            `json:"name"`
	Rows []json.RawMessage `json:"rows"`
}

type datasetResponse struct {
	Project int64             `json:"project"`
	Name    string            `json:"name"`
	Hash    string            `json:"hash"`
	Rows    []json.RawMessage `json:"rows"`
}

// handleRegisterDataset canonicalizes rows, hashes them, and stores the
// resulting version under name — a re-registration of identical rows under
// the same name is a no-op, returning the existing version.
func (s *Server) handleRegisterDataset(w http.ResponseWriter, r *http.Request) {
	project, err := projectFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var req registerDatasetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("name is required"))
		return
	}

	canon, err := block.CanonicalJSON(req.Rows)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	hash := block.Hash(canon)

	raw, err := json.Marshal(req.Rows)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	ds, err := s.Store.RegisterDataset(r.Context(), project, req.Name, hash, raw)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDatasetResponse(*ds))
}

// handleGetDataset returns a dataset's latest registered version, or a
// specific version when ?hash= is supplied.
func (s *Server) handleGetDataset(w http.ResponseWriter, r *http.Request) {
	project, err := projectFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	name := r.PathValue("name")

	var ds *runstore.Dataset
	if hash := r.URL.Query().Get("hash"); hash != "" {
		ds, err = s.Store.LoadDataset(r.Context(), project, name, hash)
	} else {
		ds, err = s.Store.LoadLatestDataset(r.Context(), project, name)
	}
	if errors.Is(err, runstore.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, toDatasetResponse(*ds))
}

func toDatasetResponse(ds runstore.Dataset) datasetResponse {
	var rows []json.RawMessage
	_ = json.Unmarshal(ds.Rows, &rows)
	return datasetResponse{Project: ds.Project, Name: ds.Name, Hash: ds.Hash, Rows: rows}
}

func datasetToExecutorRows(rows []json.RawMessage) []interface{} {
	out := make([]interface{}, len(rows))
	for i, row := range rows {
		out[i] = row
	}
	return out
}

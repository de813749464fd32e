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
	"net/http"
	"strconv"

	"github.com/marcus-qen/appcore/internal/block"
	"github.com/marcus-qen/appcore/internal/runstore"
	"github.com/marcus-qen/appcore/internal/specparser"
)

type registerSpecRequest struct {
	Text string `json:"text"`
}

type specificationResponse struct {
	Project    int64  `json:"project"`
	Hash       string `json:"hash"`
	Text       string `json:"text"`
	BlockCount int    `json:"block_count"`
}

// handleRegisterSpecification parses the posted spec text, computing its
// content hash, and stores it if this (project, hash) hasn't been seen
// before — registration is idempotent on the parsed app hash.
func (s *Server) handleRegisterSpecification(w http.ResponseWriter, r *http.Request) {
	project, err := projectFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var req registerSpecRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	parsed, err := specparser.Parse(req.Text)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}

	spec, err := s.Store.RegisterSpec(r.Context(), project, parsed.AppHash, req.Text, len(parsed.Blocks))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusCreated, toSpecificationResponse(*spec))
}

func (s *Server) handleGetSpecification(w http.ResponseWriter, r *http.Request) {
	project, err := projectFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	hash := r.PathValue("hash")

	spec, err := s.Store.LoadSpec(r.Context(), project, hash)
	if errors.Is(err, runstore.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, toSpecificationResponse(*spec))
}

func toSpecificationResponse(spec runstore.Specification) specificationResponse {
	return specificationResponse{
		Project:    spec.Project,
		Hash:       spec.Hash,
		Text:       spec.Text,
		BlockCount: spec.BlockCount,
	}
}

func projectFromPath(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("project"), 10, 64)
}

// parseBlockList is a small wrapper handlers use to re-derive a run's block
// list from its registered specification text before executing it.
func parseBlockList(specText string) ([]block.Block, []byte, error) {
	parsed, err := specparser.Parse(specText)
	if err != nil {
		return nil, nil, err
	}
	return parsed.Blocks, parsed.AppHash, nil
}

/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// APIClient is a thin REST client for the appcore HTTP API.
type APIClient struct {
	server string
	http   *http.Client
}

func NewAPIClient(server string) *APIClient {
	return &APIClient{server: server, http: &http.Client{}}
}

type apiError struct {
	Error string `json:"error"`
}

func (c *APIClient) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.server+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr apiError
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s", method, path, apiErr.Error)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type Specification struct {
	Project    int64  `json:"project"`
	Hash       string `json:"hash"`
	Text       string `json:"text"`
	BlockCount int    `json:"block_count"`
}

func (c *APIClient) RegisterSpec(ctx context.Context, project int64, text string) (*Specification, error) {
	var spec Specification
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/projects/%d/specifications", project),
		map[string]string{"text": text}, &spec)
	return &spec, err
}

func (c *APIClient) GetSpec(ctx context.Context, project int64, hash string) (*Specification, error) {
	var spec Specification
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v1/projects/%d/specifications/%s", project, hash), nil, &spec)
	return &spec, err
}

type Dataset struct {
	Project int64             `json:"project"`
	Name    string            `json:"name"`
	Hash    string            `json:"hash"`
	Rows    []json.RawMessage `json:"rows"`
}

func (c *APIClient) RegisterDataset(ctx context.Context, project int64, name string, rows []json.RawMessage) (*Dataset, error) {
	var ds Dataset
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/projects/%d/datasets", project),
		map[string]interface{}{"name": name, "rows": rows}, &ds)
	return &ds, err
}

func (c *APIClient) GetDataset(ctx context.Context, project int64, name, hash string) (*Dataset, error) {
	path := fmt.Sprintf("/v1/projects/%d/datasets/%s", project, name)
	if hash != "" {
		path += "?hash=" + hash
	}
	var ds Dataset
	err := c.do(ctx, http.MethodGet, path, nil, &ds)
	return &ds, err
}

type BlockStatus struct {
	Kind         string `json:"kind"`
	Name         string `json:"name"`
	Status       string `json:"status"`
	SuccessCount int    `json:"success_count"`
	ErrorCount   int    `json:"error_count"`
}

type RunStatus struct {
	Run    string        `json:"run"`
	Blocks []BlockStatus `json:"blocks"`
}

type Run struct {
	ID      string    `json:"id"`
	Project int64     `json:"project"`
	RunType string    `json:"run_type"`
	AppHash string    `json:"app_hash"`
	Status  RunStatus `json:"status"`
}

type SubmitRunRequest struct {
	SpecHash    string            `json:"spec_hash"`
	DatasetName string            `json:"dataset_name,omitempty"`
	RunType     string            `json:"run_type,omitempty"`
	Credentials map[string]string `json:"credentials,omitempty"`
}

func (c *APIClient) SubmitRun(ctx context.Context, project int64, req SubmitRunRequest) (*Run, error) {
	var run Run
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/projects/%d/runs", project), req, &run)
	return &run, err
}

func (c *APIClient) GetRun(ctx context.Context, project int64, runID string) (map[string]interface{}, error) {
	var out map[string]interface{}
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v1/projects/%d/runs/%s", project, runID), nil, &out)
	return out, err
}

type RunList struct {
	Runs  []Run `json:"runs"`
	Total int   `json:"total"`
}

func (c *APIClient) ListRuns(ctx context.Context, project int64, runType string) (*RunList, error) {
	path := fmt.Sprintf("/v1/projects/%d/runs", project)
	if runType != "" {
		path += "?run_type=" + runType
	}
	var list RunList
	err := c.do(ctx, http.MethodGet, path, nil, &list)
	return &list, err
}

func (c *APIClient) DeleteRun(ctx context.Context, project int64, runID string) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/v1/projects/%d/runs/%s", project, runID), nil, nil)
}

/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package blocks

import (
	"context"
	"fmt"

	"github.com/marcus-qen/appcore/internal/block"
)

// execSearch resolves a templated query string against a named data source
// through the knowledge collaborator (C2 owns rendering; E2 owns retrieval).
func execSearch(ctx context.Context, b block.Block, env block.Env, deps *Deps) ([]byte, error) {
	if deps.Knowledge == nil {
		return nil, fmt.Errorf("search block %q: no knowledge subsystem configured", b.Name)
	}

	dsRaw, ok := configField(b.Config, "data_source")
	if !ok {
		return nil, fmt.Errorf("search block %q missing \"data_source\"", b.Name)
	}
	dataSource, ok := dsRaw.(string)
	if !ok {
		return nil, fmt.Errorf("search block %q \"data_source\" must be a string", b.Name)
	}

	queryRaw, ok := configField(b.Config, "query")
	if !ok {
		return nil, fmt.Errorf("search block %q missing \"query\"", b.Name)
	}
	query, ok := queryRaw.(string)
	if !ok {
		return nil, fmt.Errorf("search block %q \"query\" must be a string", b.Name)
	}
	resolvedQuery, err := ResolveString(query, env)
	if err != nil {
		return nil, fmt.Errorf("search block %q query: %w", b.Name, err)
	}

	topK := 10
	if topKRaw, ok := configField(b.Config, "top_k"); ok {
		if f, ok := topKRaw.(float64); ok {
			topK = int(f)
		}
	}

	result, err := deps.Knowledge.Search(ctx, env.Project, dataSource, resolvedQuery, topK)
	if err != nil {
		return nil, fmt.Errorf("search block %q: %w", b.Name, err)
	}
	return result, nil
}

// execDatasourceQuery resolves a templated SQL statement and its bound
// parameters against a named structured table through the knowledge
// collaborator.
func execDatasourceQuery(ctx context.Context, b block.Block, env block.Env, deps *Deps) ([]byte, error) {
	if deps.Knowledge == nil {
		return nil, fmt.Errorf("datasource_query block %q: no knowledge subsystem configured", b.Name)
	}

	tableRaw, ok := configField(b.Config, "table")
	if !ok {
		return nil, fmt.Errorf("datasource_query block %q missing \"table\"", b.Name)
	}
	table, ok := tableRaw.(string)
	if !ok {
		return nil, fmt.Errorf("datasource_query block %q \"table\" must be a string", b.Name)
	}

	queryRaw, ok := configField(b.Config, "query")
	if !ok {
		return nil, fmt.Errorf("datasource_query block %q missing \"query\"", b.Name)
	}
	query, ok := queryRaw.(string)
	if !ok {
		return nil, fmt.Errorf("datasource_query block %q \"query\" must be a string", b.Name)
	}
	resolvedQuery, err := ResolveString(query, env)
	if err != nil {
		return nil, fmt.Errorf("datasource_query block %q query: %w", b.Name, err)
	}

	var args []interface{}
	if argsRaw, ok := configField(b.Config, "args"); ok {
		argList, ok := argsRaw.([]interface{})
		if !ok {
			return nil, fmt.Errorf("datasource_query block %q \"args\" must be an array", b.Name)
		}
		resolved, err := ResolveValue(argList, env)
		if err != nil {
			return nil, fmt.Errorf("datasource_query block %q args: %w", b.Name, err)
		}
		args = resolved.([]interface{})
	}

	result, err := deps.Knowledge.QueryTable(ctx, env.Project, table, resolvedQuery, args)
	if err != nil {
		return nil, fmt.Errorf("datasource_query block %q: %w", b.Name, err)
	}
	return result, nil
}

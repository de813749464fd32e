/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package knowledge

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
)

// queryTier classifies a structured-table query the same way the tool
// surface this is adapted from classifies ad hoc SQL: only reads ever reach
// the wire, everything else is blocked before a connection is even opened.
type queryTier int

const (
	tierRead queryTier = iota
	tierMutation
)

var readPrefixes = []string{"SELECT", "SHOW", "DESCRIBE", "DESC", "EXPLAIN", "WITH"}

// classifyQuery fail-closes to tierMutation for anything it doesn't
// recognize as a read.
func classifyQuery(query string) queryTier {
	normalized := strings.TrimSpace(strings.ToUpper(query))
	for _, prefix := range readPrefixes {
		if strings.HasPrefix(normalized, prefix) {
			return tierRead
		}
	}
	return tierMutation
}

// containsSuspiciousPattern flags stacked statements and comment-based
// injection attempts in a templated query before it ever reaches the driver.
func containsSuspiciousPattern(query string) bool {
	upper := strings.ToUpper(query)
	trimmed := strings.TrimSpace(strings.TrimRight(strings.TrimSpace(query), ";"))
	if strings.Contains(trimmed, ";") {
		return true
	}
	if strings.Contains(upper, "--") || strings.Contains(upper, "/*") {
		return true
	}
	if strings.Contains(upper, "UNION") && strings.Contains(upper, "SELECT") && strings.Contains(upper, "'") {
		return true
	}
	return false
}

// TableStore runs read-only queries against registered structured data
// sources, one *sql.DB per named table group, fronted by goqu so callers that
// build queries programmatically (rather than templating raw SQL) get a
// portable query builder instead of hand-joined strings.
type TableStore struct {
	dialect string
	db      *sql.DB
	maxRows int
}

// NewTableStore wraps an already-open database handle. dialect is a goqu
// dialect name ("postgres"); maxRows bounds how many rows a single query
// result set carries back into a run.
func NewTableStore(db *sql.DB, dialect string, maxRows int) *TableStore {
	if maxRows <= 0 {
		maxRows = 500
	}
	return &TableStore{dialect: dialect, db: db, maxRows: maxRows}
}

// Query runs a read-only statement and returns its rows JSON-encoded as an
// array of objects keyed by column name. table is accepted for interface
// symmetry with Knowledge.QueryTable and future per-table routing; the
// current implementation runs every query against the single wrapped
// database.
func (s *TableStore) Query(ctx context.Context, table, query string, args []interface{}) ([]byte, error) {
	if classifyQuery(query) != tierRead {
		return nil, fmt.Errorf("table %q: only read-only queries are allowed (SELECT, SHOW, DESCRIBE, EXPLAIN, WITH)", table)
	}
	if containsSuspiciousPattern(query) {
		return nil, fmt.Errorf("table %q: query rejected, contains stacked statements or comment-based injection pattern", table)
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin read-only transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	return rowsToJSON(rows, s.maxRows)
}

// Select builds a read-only goqu SELECT against table, for callers that want
// a structured filter rather than a raw templated query string.
func (s *TableStore) Select(ctx context.Context, table string, columns []interface{}, where goqu.Expression, limit uint) ([]byte, error) {
	dialect := goqu.Dialect(s.dialect)
	ds := dialect.From(table)
	if len(columns) > 0 {
		ds = ds.Select(columns...)
	}
	if where != nil {
		ds = ds.Where(where)
	}
	if limit == 0 || limit > uint(s.maxRows) {
		limit = uint(s.maxRows)
	}
	ds = ds.Limit(limit)

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build select for table %q: %w", table, err)
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin read-only transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("execute select: %w", err)
	}
	defer rows.Close()

	return rowsToJSON(rows, s.maxRows)
}

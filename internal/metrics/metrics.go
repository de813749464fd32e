/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package metrics defines Prometheus metrics for the execution core.
//
// All metrics are registered with prometheus.DefaultRegisterer, so any
// handler serving that registry exposes them; httpapi's router registers no
// /metrics route of its own. The teacher
// registered against controller-runtime's own registry
// (sigs.k8s.io/controller-runtime/pkg/metrics); this project carries no
// controller-runtime manager to piggyback on, so registration happens
// directly against the default Prometheus registry instead — see DESIGN.md
// for the full controller-runtime drop rationale.
//
// Metric naming follows Prometheus conventions:
//   - no project-specific prefix; names describe runs, blocks, and cache
//   - _total suffix for counters
//   - _seconds suffix for duration histograms
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// RunsTotal counts runs by run type and terminal status.
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runs_total",
			Help: "Total number of runs by run type and status.",
		},
		[]string{"run_type", "status"},
	)

	// RunDurationSeconds is a histogram of run duration by run type.
	RunDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "run_duration_seconds",
			Help:    "Duration of runs in seconds.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 2400},
		},
		[]string{"run_type"},
	)

	// BlockExecutionsTotal counts block executions by kind and status.
	BlockExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "block_executions_total",
			Help: "Total block executions by kind and status.",
		},
		[]string{"kind", "status"},
	)

	// TokensUsedTotal counts tokens consumed by provider and model.
	TokensUsedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokens_used_total",
			Help: "Total tokens consumed by llm/chat block executions.",
		},
		[]string{"provider", "model"},
	)

	// CacheHitTotal counts C5 cache lookups that found a prior response.
	CacheHitTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hit_total",
			Help: "Total cache lookups that returned a cached response.",
		},
		[]string{"block_name"},
	)

	// CacheMissTotal counts C5 cache lookups that found nothing.
	CacheMissTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_miss_total",
			Help: "Total cache lookups that found no cached response.",
		},
		[]string{"block_name"},
	)

	// PendingRuns is the number of runs currently queued or in flight in the
	// run manager (C7).
	PendingRuns = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pending_runs",
			Help: "Number of runs currently queued or executing.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RunsTotal,
		RunDurationSeconds,
		BlockExecutionsTotal,
		TokensUsedTotal,
		CacheHitTotal,
		CacheMissTotal,
		PendingRuns,
	)
}

// RecordRunComplete records metrics for a completed run.
func RecordRunComplete(runType, status string, duration time.Duration) {
	RunsTotal.WithLabelValues(runType, status).Inc()
	RunDurationSeconds.WithLabelValues(runType).Observe(duration.Seconds())
}

// RecordBlockExecution records one block execution's outcome.
func RecordBlockExecution(kind, status string) {
	BlockExecutionsTotal.WithLabelValues(kind, status).Inc()
}

// RecordTokensUsed records tokens consumed by one llm/chat block call.
func RecordTokensUsed(provider, model string, inputTokens, outputTokens int64) {
	TokensUsedTotal.WithLabelValues(provider, model).Add(float64(inputTokens + outputTokens))
}

// RecordCacheLookup records a C5 cache lookup outcome.
func RecordCacheLookup(blockName string, hit bool) {
	if hit {
		CacheHitTotal.WithLabelValues(blockName).Inc()
		return
	}
	CacheMissTotal.WithLabelValues(blockName).Inc()
}

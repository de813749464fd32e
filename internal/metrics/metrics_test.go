/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func getCounterValue(cv *prometheus.CounterVec, labels ...string) float64 {
	m := &dto.Metric{}
	if err := cv.WithLabelValues(labels...).Write(m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

func getGaugeValue(g prometheus.Gauge) float64 {
	m := &dto.Metric{}
	if err := g.Write(m); err != nil {
		return 0
	}
	return m.GetGauge().GetValue()
}

func getHistogramCount(hv *prometheus.HistogramVec, labels ...string) uint64 {
	m := &dto.Metric{}
	observer := hv.WithLabelValues(labels...)
	if c, ok := observer.(prometheus.Metric); ok {
		if err := c.Write(m); err != nil {
			return 0
		}
		return m.GetHistogram().GetSampleCount()
	}
	return 0
}

func TestRecordRunComplete(t *testing.T) {
	RecordRunComplete("execute", "succeeded", 42*time.Second)

	val := getCounterValue(RunsTotal, "execute", "succeeded")
	if val < 1 {
		t.Errorf("RunsTotal = %f, want >= 1", val)
	}

	count := getHistogramCount(RunDurationSeconds, "execute")
	if count < 1 {
		t.Errorf("RunDurationSeconds sample count = %d, want >= 1", count)
	}
}

func TestRecordBlockExecution(t *testing.T) {
	RecordBlockExecution("llm", "succeeded")
	RecordBlockExecution("llm", "succeeded")

	val := getCounterValue(BlockExecutionsTotal, "llm", "succeeded")
	if val < 2 {
		t.Errorf("BlockExecutionsTotal = %f, want >= 2", val)
	}
}

func TestRecordTokensUsed(t *testing.T) {
	RecordTokensUsed("anthropic", "claude-sonnet-4-5", 1000, 500)

	val := getCounterValue(TokensUsedTotal, "anthropic", "claude-sonnet-4-5")
	if val < 1500 {
		t.Errorf("TokensUsedTotal = %f, want >= 1500", val)
	}
}

func TestRecordCacheLookup(t *testing.T) {
	RecordCacheLookup("summarize", true)
	RecordCacheLookup("summarize", false)

	hit := getCounterValue(CacheHitTotal, "summarize")
	miss := getCounterValue(CacheMissTotal, "summarize")
	if hit < 1 {
		t.Errorf("CacheHitTotal = %f, want >= 1", hit)
	}
	if miss < 1 {
		t.Errorf("CacheMissTotal = %f, want >= 1", miss)
	}
}

func TestPendingRuns(t *testing.T) {
	PendingRuns.Set(0)

	PendingRuns.Inc()
	PendingRuns.Inc()

	val := getGaugeValue(PendingRuns)
	if val != 2 {
		t.Errorf("PendingRuns = %f, want 2", val)
	}

	PendingRuns.Dec()
	val = getGaugeValue(PendingRuns)
	if val != 1 {
		t.Errorf("PendingRuns after Dec = %f, want 1", val)
	}
}

func TestMultipleRunTypesIsolated(t *testing.T) {
	RecordRunComplete("deploy", "succeeded", 10*time.Second)
	RecordRunComplete("local", "errored", 5*time.Second)

	deploySucceeded := getCounterValue(RunsTotal, "deploy", "succeeded")
	localErrored := getCounterValue(RunsTotal, "local", "errored")
	deployErrored := getCounterValue(RunsTotal, "deploy", "errored")

	if deploySucceeded < 1 {
		t.Error("deploy succeeded should be >= 1")
	}
	if localErrored < 1 {
		t.Error("local errored should be >= 1")
	}
	if deployErrored != 0 {
		t.Errorf("deploy errored = %f, want 0", deployErrored)
	}
}

/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package telemetry configures OpenTelemetry tracing for the execution core.
//
// Spans follow the OTel GenAI semantic conventions where applicable:
//   - gen_ai.system — the LLM provider
//   - gen_ai.request.model — the model name
//   - gen_ai.usage.input_tokens — tokens consumed
//   - gen_ai.usage.output_tokens — tokens generated
//
// Custom span attributes use the `appcore.` prefix.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName = "appcore.io/executor"
)

// Tracer returns the package-level tracer.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// InitTraceProvider initialises the OTel trace provider with an OTLP gRPC exporter.
// If endpoint is empty, tracing is disabled (noop provider is used).
// Returns a shutdown function that must be called on application exit.
func InitTraceProvider(ctx context.Context, endpoint string, version string) (func(context.Context) error, error) {
	if endpoint == "" {
		// No-op: tracing disabled
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(), // TLS configurable via env (OTEL_EXPORTER_OTLP_INSECURE)
	)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String("appcore-executor"),
			semconv.ServiceVersionKey.String(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// --- Span helpers ---

// StartRunSpan creates the parent span for a run.
func StartRunSpan(ctx context.Context, runID string, runType string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "run.execute",
		trace.WithAttributes(
			attribute.String("appcore.run_id", runID),
			attribute.String("appcore.run_type", runType),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartBlockSpan creates a child span for one block's execution at one
// (input, map) coordinate.
func StartBlockSpan(ctx context.Context, kind, name string, inputIdx, mapIdx int) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "block.execute",
		trace.WithAttributes(
			attribute.String("appcore.block_kind", kind),
			attribute.String("appcore.block_name", name),
			attribute.Int("appcore.input_idx", inputIdx),
			attribute.Int("appcore.map_idx", mapIdx),
		),
	)
}

// EndBlockSpan enriches and closes a block span with its outcome.
func EndBlockSpan(span trace.Span, succeeded bool) {
	span.SetAttributes(attribute.Bool("appcore.block_succeeded", succeeded))
	span.End()
}

// StartLLMCallSpan creates a child span for an LLM call, following GenAI conventions.
func StartLLMCallSpan(ctx context.Context, model, provider string, attempt int) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "gen_ai.chat",
		trace.WithAttributes(
			attribute.String("gen_ai.system", provider),
			attribute.String("gen_ai.request.model", model),
			attribute.Int("appcore.attempt", attempt),
		),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// EndLLMCallSpan enriches the LLM span with usage data.
func EndLLMCallSpan(span trace.Span, inputTokens, outputTokens int64, hasToolCalls bool) {
	span.SetAttributes(
		attribute.Int64("gen_ai.usage.input_tokens", inputTokens),
		attribute.Int64("gen_ai.usage.output_tokens", outputTokens),
		attribute.Bool("appcore.has_tool_calls", hasToolCalls),
	)
	span.End()
}

// StartExternalCallSpan creates a child span for an external_call block's
// HTTP dispatch.
func StartExternalCallSpan(ctx context.Context, method, url string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "external_call.dispatch",
		trace.WithAttributes(
			attribute.String("appcore.http_method", method),
			attribute.String("appcore.http_url", url),
		),
	)
}

// EndExternalCallSpan enriches the external_call span with its result.
func EndExternalCallSpan(span trace.Span, statusCode int, retried bool) {
	span.SetAttributes(
		attribute.Int("appcore.http_status", statusCode),
		attribute.Bool("appcore.retried", retried),
	)
	span.End()
}

// StartCacheLookupSpan creates a child span for a C5 cache lookup.
func StartCacheLookupSpan(ctx context.Context, blockName string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "cache.lookup",
		trace.WithAttributes(
			attribute.String("appcore.block_name", blockName),
		),
	)
}

// EndCacheLookupSpan enriches the cache span with whether it hit.
func EndCacheLookupSpan(span trace.Span, hit bool) {
	span.SetAttributes(attribute.Bool("appcore.cache_hit", hit))
	span.End()
}

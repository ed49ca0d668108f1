// Copyright (C) 2025 DealDesk AI (engineering@dealdesk.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the context
// pipeline.
//
// Metrics cover the three stages (retrieval, summarization, isolation)
// plus the shared caches, and are exposed on /metrics for Prometheus +
// Grafana. All operations are thread-safe via Prometheus's internal
// locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics.
const metricsNamespace = "dealdesk"

// Subsystem for context pipeline metrics.
const contextSubsystem = "context"

// Stage labels the pipeline stage a metric belongs to.
type Stage string

const (
	StageRetrieval     Stage = "retrieval"
	StageSummarization Stage = "summarization"
	StageIsolation     Stage = "isolation"
)

// PipelineMetrics holds all Prometheus metrics for context assembly.
//
// Initialize once at startup via InitMetrics(); duplicate registration
// panics.
type PipelineMetrics struct {
	// AssembliesTotal counts context assembly requests.
	// Labels: status (success, error)
	AssembliesTotal *prometheus.CounterVec

	// StageDurationSeconds measures per-stage latency.
	// Labels: stage
	StageDurationSeconds *prometheus.HistogramVec

	// RetrievalsTotal counts retrieval outcomes.
	// Labels: outcome (injected, cache_hit, skipped, degraded)
	RetrievalsTotal *prometheus.CounterVec

	// RetrievalSlowTotal counts passes over the latency target.
	RetrievalSlowTotal prometheus.Counter

	// SummarizationsTotal counts summarization passes by method.
	// Labels: method (none, cache, llm, fallback, truncation)
	SummarizationsTotal *prometheus.CounterVec

	// SummarizationFallbacksTotal counts passes that left the LLM path.
	SummarizationFallbacksTotal prometheus.Counter

	// TokensSavedTotal counts tokens kept out of the model context.
	// Labels: stage (summarization, isolation)
	TokensSavedTotal *prometheus.CounterVec

	// IsolationsTotal counts isolated tool calls by kind.
	// Labels: tool
	IsolationsTotal *prometheus.CounterVec

	// CacheRequestsTotal counts cache probes.
	// Labels: cache (retrieval, summarization, isolation), result (hit, miss)
	CacheRequestsTotal *prometheus.CounterVec
}

// DefaultMetrics is the singleton instance, set by InitMetrics().
var DefaultMetrics *PipelineMetrics

// InitMetrics creates and registers all pipeline metrics on the default
// registry. Call once at startup.
func InitMetrics() *PipelineMetrics {
	DefaultMetrics = &PipelineMetrics{
		AssembliesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: contextSubsystem,
				Name:      "assemblies_total",
				Help:      "Total context assembly requests by status",
			},
			[]string{"status"},
		),

		StageDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: contextSubsystem,
				Name:      "stage_duration_seconds",
				Help:      "Latency of each pipeline stage in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 3.0, 10.0},
			},
			[]string{"stage"},
		),

		RetrievalsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: contextSubsystem,
				Name:      "retrievals_total",
				Help:      "Total retrieval passes by outcome",
			},
			[]string{"outcome"},
		),

		RetrievalSlowTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: contextSubsystem,
				Name:      "retrieval_slow_total",
				Help:      "Retrieval passes that exceeded the latency target",
			},
		),

		SummarizationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: contextSubsystem,
				Name:      "summarizations_total",
				Help:      "Total summarization passes by method",
			},
			[]string{"method"},
		),

		SummarizationFallbacksTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: contextSubsystem,
				Name:      "summarization_fallbacks_total",
				Help:      "Summarization passes that fell off the LLM path",
			},
		),

		TokensSavedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: contextSubsystem,
				Name:      "tokens_saved_total",
				Help:      "Estimated tokens kept out of the model context",
			},
			[]string{"stage"},
		),

		IsolationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: contextSubsystem,
				Name:      "isolations_total",
				Help:      "Total isolated tool calls by tool kind",
			},
			[]string{"tool"},
		),

		CacheRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: contextSubsystem,
				Name:      "cache_requests_total",
				Help:      "Cache probes by cache and result",
			},
			[]string{"cache", "result"},
		),
	}

	return DefaultMetrics
}

// =============================================================================
// Helper Methods
// =============================================================================

// RecordAssembly records one completed assembly request.
func (m *PipelineMetrics) RecordAssembly(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.AssembliesTotal.WithLabelValues(status).Inc()
}

// RecordStageDuration records one stage's latency.
func (m *PipelineMetrics) RecordStageDuration(stage Stage, seconds float64) {
	m.StageDurationSeconds.WithLabelValues(string(stage)).Observe(seconds)
}

// RecordRetrieval records a retrieval pass outcome. Exactly one of the
// flags applies per pass; injected is the none-of-the-above case.
func (m *PipelineMetrics) RecordRetrieval(skipped, cacheHit, degraded, slow bool) {
	outcome := "injected"
	switch {
	case skipped:
		outcome = "skipped"
	case cacheHit:
		outcome = "cache_hit"
	case degraded:
		outcome = "degraded"
	}
	m.RetrievalsTotal.WithLabelValues(outcome).Inc()
	if slow {
		m.RetrievalSlowTotal.Inc()
	}
}

// RecordSummarization records one summarization pass.
func (m *PipelineMetrics) RecordSummarization(method string, tokensSaved int) {
	m.SummarizationsTotal.WithLabelValues(method).Inc()
	if tokensSaved > 0 {
		m.TokensSavedTotal.WithLabelValues(string(StageSummarization)).Add(float64(tokensSaved))
	}
}

// RecordFallback counts one pass that left the LLM path.
func (m *PipelineMetrics) RecordFallback() {
	m.SummarizationFallbacksTotal.Inc()
}

// RecordIsolation records one isolated tool call.
func (m *PipelineMetrics) RecordIsolation(tool string, tokensSaved int) {
	m.IsolationsTotal.WithLabelValues(tool).Inc()
	if tokensSaved > 0 {
		m.TokensSavedTotal.WithLabelValues(string(StageIsolation)).Add(float64(tokensSaved))
	}
}

// RecordCacheProbe records one cache hit or miss.
func (m *PipelineMetrics) RecordCacheProbe(cacheName string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheRequestsTotal.WithLabelValues(cacheName, result).Inc()
}

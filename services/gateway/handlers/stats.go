// Copyright (C) 2025 DealDesk AI (engineering@dealdesk.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"

	"github.com/dealdesk-ai/dealdesk/services/contextengine/cache"
	"github.com/dealdesk-ai/dealdesk/services/contextengine/isolate"
	"github.com/dealdesk-ai/dealdesk/services/contextengine/retrieval"
	"github.com/dealdesk-ai/dealdesk/services/contextengine/summarize"
	"github.com/gin-gonic/gin"
)

// CacheReport is the wire view of one cache's counters.
type CacheReport struct {
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	Evictions   int64   `json:"evictions"`
	Expirations int64   `json:"expirations"`
	Size        int     `json:"size"`
	MaxSize     int     `json:"maxSize"`
	HitRate     float64 `json:"hitRate"`
}

// StatsResponse is the body of GET /v1/context/stats.
type StatsResponse struct {
	Retrieval     CacheReport `json:"retrieval"`
	Summarization CacheReport `json:"summarization"`
	Isolation     CacheReport `json:"isolation"`
	Fallbacks     int64       `json:"summarizationFallbacks"`
}

// HandleStats exposes the pipeline's cache counters and fallback count.
// Complements /metrics for humans poking at a running instance.
func HandleStats(orchestrator *retrieval.Orchestrator, engine *summarize.Engine, isolator *isolate.Isolator) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, StatsResponse{
			Retrieval:     toReport(orchestrator.CacheStats()),
			Summarization: toReport(engine.CacheStats()),
			Isolation:     toReport(isolator.CacheStats()),
			Fallbacks:     engine.FallbackCount(),
		})
	}
}

func toReport(s cache.Stats) CacheReport {
	r := CacheReport{
		Hits:        s.Hits,
		Misses:      s.Misses,
		Evictions:   s.Evictions,
		Expirations: s.Expirations,
		Size:        s.Size,
		MaxSize:     s.MaxSize,
	}
	if total := s.Hits + s.Misses; total > 0 {
		r.HitRate = float64(s.Hits) / float64(total)
	}
	return r
}

// HealthCheck reports liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

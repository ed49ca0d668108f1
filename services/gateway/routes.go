// Copyright (C) 2025 DealDesk AI (engineering@dealdesk.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package gateway wires the context pipeline behind a gin router.
package gateway

import (
	"github.com/dealdesk-ai/dealdesk/services/contextengine/assemble"
	"github.com/dealdesk-ai/dealdesk/services/contextengine/isolate"
	"github.com/dealdesk-ai/dealdesk/services/contextengine/observability"
	"github.com/dealdesk-ai/dealdesk/services/contextengine/retrieval"
	"github.com/dealdesk-ai/dealdesk/services/contextengine/summarize"
	"github.com/dealdesk-ai/dealdesk/services/gateway/handlers"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pipeline bundles the engine components a router serves.
type Pipeline struct {
	Assembler    *assemble.Assembler
	Orchestrator *retrieval.Orchestrator
	Engine       *summarize.Engine
	Isolator     *isolate.Isolator
	Metrics      *observability.PipelineMetrics
}

// SetupRoutes registers all gateway endpoints on the router.
func SetupRoutes(router *gin.Engine, p Pipeline) {
	handlers.RegisterValidations()

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	{
		v1.POST("/context/assemble", handlers.HandleAssemble(p.Assembler, p.Isolator, p.Metrics))
		v1.GET("/context/stats", handlers.HandleStats(p.Orchestrator, p.Engine, p.Isolator))
		v1.GET("/tools/results/:call_id", handlers.HandleToolResult(p.Isolator, p.Metrics))
	}
}

// Copyright (C) 2025 DealDesk AI (engineering@dealdesk.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/dealdesk-ai/dealdesk/services/contextengine/isolate"
	"github.com/dealdesk-ai/dealdesk/services/contextengine/observability"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// HandleToolResult returns the full stored payload for an isolated tool
// call. 404 covers unknown, expired, and evicted IDs alike; the caller
// re-runs the tool if the data still matters.
func HandleToolResult(isolator *isolate.Isolator, metrics *observability.PipelineMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, span := gatewayTracer.Start(c.Request.Context(), "HandleToolResult")
		defer span.End()

		callID := c.Param("call_id")
		span.SetAttributes(attribute.String("call_id", callID))

		if _, err := uuid.Parse(callID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "call_id must be a UUID"})
			return
		}

		full, err := isolator.FullResult(callID)
		if metrics != nil {
			metrics.RecordCacheProbe("isolation", err == nil)
		}
		if err != nil {
			slog.Debug("Tool result lookup missed", "callId", callID)
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"callId": callID, "result": full})
	}
}

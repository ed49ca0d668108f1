// Copyright (C) 2025 DealDesk AI (engineering@dealdesk.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers exposes the context pipeline over HTTP.
package handlers

import (
	"log/slog"
	"net/http"
	"regexp"

	"github.com/dealdesk-ai/dealdesk/services/contextengine/assemble"
	"github.com/dealdesk-ai/dealdesk/services/contextengine/datatypes"
	"github.com/dealdesk-ai/dealdesk/services/contextengine/isolate"
	"github.com/dealdesk-ai/dealdesk/services/contextengine/observability"
	"github.com/dealdesk-ai/dealdesk/services/contextengine/summarize"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var gatewayTracer = otel.Tracer("dealdesk.gateway.handlers")

// namespacePattern is the accepted tenant/deal identifier shape.
var namespacePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// RegisterValidations installs the gateway's custom binding rules on
// gin's validator. Call once at startup, before serving.
func RegisterValidations() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("namespace", func(fl validator.FieldLevel) bool {
			return namespacePattern.MatchString(fl.Field().String())
		})
	}
}

// AssembleRequest is the body of POST /v1/context/assemble.
type AssembleRequest struct {
	// Namespace scopes caches and search to one deal workspace.
	Namespace string `json:"namespace" binding:"required,namespace"`

	// Messages is the conversation history to prepare.
	Messages []datatypes.Message `json:"messages" binding:"required,min=1,dive"`

	// ToolResults are raw tool payloads from the caller's last turn; each
	// is isolated and only its summary is returned.
	ToolResults []ToolResultInput `json:"toolResults,omitempty" binding:"omitempty,dive"`
}

// ToolResultInput is one raw tool payload to isolate.
type ToolResultInput struct {
	Tool   isolate.ToolKind `json:"tool" binding:"required"`
	Result any              `json:"result"`
}

// AssembleResponse is the body returned by the assemble endpoint.
type AssembleResponse struct {
	Messages      []datatypes.Message `json:"messages"`
	Summarization summarize.Metrics   `json:"summarization"`
	Retrieval     RetrievalReport     `json:"retrieval"`
	ToolResults   []*isolate.Isolated `json:"toolResults,omitempty"`
}

// RetrievalReport is the wire view of a retrieval pass, without the
// message list the top-level response already carries.
type RetrievalReport struct {
	Skipped   bool     `json:"skipped"`
	Degraded  bool     `json:"degraded"`
	CacheHit  bool     `json:"cacheHit"`
	Intent    string   `json:"intent,omitempty"`
	Entities  []string `json:"entities,omitempty"`
	LatencyMs float64  `json:"latencyMs"`
}

// HandleAssemble runs the pipeline for one turn.
//
// Description:
//
//	Validates the body, assembles the context (summarize, then retrieve),
//	isolates any supplied tool payloads, and reports the turn's token
//	savings in the X-Token-Savings header using the accumulator's
//	"saved=N;calls=M;percent=P" format.
func HandleAssemble(assembler *assemble.Assembler, isolator *isolate.Isolator, metrics *observability.PipelineMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := gatewayTracer.Start(c.Request.Context(), "HandleAssemble")
		defer span.End()

		var request AssembleRequest
		if err := c.BindJSON(&request); err != nil {
			span.RecordError(err)
			slog.Error("Failed to bind assemble request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
			return
		}
		span.SetAttributes(
			attribute.String("namespace", request.Namespace),
			attribute.Int("messages", len(request.Messages)),
			attribute.Int("tool_results", len(request.ToolResults)),
		)

		turn := assembler.Assemble(ctx, request.Messages, request.Namespace)

		var acc isolate.TurnAccumulator
		isolated := make([]*isolate.Isolated, 0, len(request.ToolResults))
		for _, tr := range request.ToolResults {
			iso := isolator.Isolate(ctx, tr.Tool, tr.Result)
			acc.Record(iso)
			isolated = append(isolated, iso)
			if metrics != nil {
				metrics.RecordIsolation(string(iso.Tool), iso.FullTokens-iso.SummaryTokens)
			}
		}

		if metrics != nil {
			metrics.RecordAssembly(true)
			metrics.RecordSummarization(turn.Summarization.Method, turn.Summarization.TokensSaved)
			switch turn.Summarization.Method {
			case summarize.MethodFallback, summarize.MethodTruncation:
				metrics.RecordFallback()
			}
			// The engines only probe their caches past the trigger and
			// the intent gate respectively.
			if turn.Summarization.Method != summarize.MethodNone {
				metrics.RecordCacheProbe("summarization", turn.Summarization.CacheHit)
			}
			if !turn.Retrieval.Skipped {
				metrics.RecordCacheProbe("retrieval", turn.Retrieval.CacheHit)
			}
			metrics.RecordRetrieval(
				turn.Retrieval.Skipped,
				turn.Retrieval.CacheHit,
				turn.Retrieval.Degraded,
				turn.Retrieval.SlowWarning,
			)
			metrics.RecordStageDuration(observability.StageSummarization, turn.Summarization.LatencyMs/1000.0)
			metrics.RecordStageDuration(observability.StageRetrieval, turn.Retrieval.LatencyMs/1000.0)
		}

		c.Header("X-Token-Savings", acc.Line())
		c.JSON(http.StatusOK, AssembleResponse{
			Messages:      turn.Messages,
			Summarization: turn.Summarization,
			Retrieval: RetrievalReport{
				Skipped:   turn.Retrieval.Skipped,
				Degraded:  turn.Retrieval.Degraded,
				CacheHit:  turn.Retrieval.CacheHit,
				Intent:    string(turn.Retrieval.Intent),
				Entities:  turn.Retrieval.Entities,
				LatencyMs: turn.Retrieval.LatencyMs,
			},
			ToolResults: isolated,
		})
	}
}

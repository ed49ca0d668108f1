// Copyright (C) 2025 DealDesk AI (engineering@dealdesk.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package assemble runs the per-turn context pipeline in its required
// order: summarize first, then retrieve on the shortened history.
//
// The order is load-bearing. Summarizing after retrieval would count the
// injected context toward the summarization trigger and could fold the
// retrieved text into the summary; retrieving first would also rank the
// just-injected chunks against the user's question a second time.
// Retrieval therefore always sees the compressed history.
package assemble

import (
	"context"

	"github.com/dealdesk-ai/dealdesk/services/contextengine/datatypes"
	"github.com/dealdesk-ai/dealdesk/services/contextengine/retrieval"
	"github.com/dealdesk-ai/dealdesk/services/contextengine/summarize"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var assembleTracer = otel.Tracer("dealdesk.contextengine.assemble")

// Turn is the assembled context for one model call, with the metric
// records of both pipeline stages.
type Turn struct {
	// Messages is the final history to send to the model.
	Messages []datatypes.Message

	// Summarization reports the compression stage.
	Summarization summarize.Metrics

	// Retrieval reports the retrieval stage.
	Retrieval *retrieval.Result
}

// Assembler owns the two pipeline stages.
//
// Thread Safety: Safe for concurrent use; both stages are.
type Assembler struct {
	engine       *summarize.Engine
	orchestrator *retrieval.Orchestrator
}

// NewAssembler wires the summarization engine and retrieval orchestrator
// into one pipeline. Both must be non-nil.
func NewAssembler(engine *summarize.Engine, orchestrator *retrieval.Orchestrator) *Assembler {
	return &Assembler{engine: engine, orchestrator: orchestrator}
}

// Assemble prepares the context for one turn.
//
// Description:
//
//	Runs summarization, then retrieval on its output, and returns the
//	final message list with both stages' metrics. Neither stage can fail
//	the turn: summarization always succeeds by construction and retrieval
//	degrades to a pass-through.
func (a *Assembler) Assemble(ctx context.Context, msgs []datatypes.Message, namespace string) *Turn {
	ctx, span := assembleTracer.Start(ctx, "assemble.Assembler.Assemble")
	defer span.End()

	// Pass-through paths hand the history back as-is, so clone up front:
	// the returned turn must stay stable when the caller later edits its
	// own slice.
	msgs = datatypes.CloneHistory(msgs)

	summarized := a.engine.Summarize(ctx, msgs, namespace)
	retrieved := a.orchestrator.PreRetrieve(ctx, summarized.Messages, namespace)

	span.SetAttributes(
		attribute.String("assemble.summarize_method", summarized.Metrics.Method),
		attribute.Bool("assemble.retrieval_skipped", retrieved.Skipped),
		attribute.Int("assemble.final_messages", len(retrieved.Messages)),
	)

	return &Turn{
		Messages:      retrieved.Messages,
		Summarization: summarized.Metrics,
		Retrieval:     retrieved,
	}
}

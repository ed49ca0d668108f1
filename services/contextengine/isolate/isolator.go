// Copyright (C) 2025 DealDesk AI (engineering@dealdesk.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package isolate keeps bulky tool outputs out of the model's context.
//
// After a tool runs, only a short summary of its result enters the
// conversation; the full payload is parked in a TTL cache under a call
// ID and fetched on demand. The model never pays tokens for data it may
// never read.
package isolate

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dealdesk-ai/dealdesk/services/contextengine/cache"
	"github.com/dealdesk-ai/dealdesk/services/contextengine/tokens"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var isolateTracer = otel.Tracer("dealdesk.contextengine.isolate")

// Defaults. Overridable via Config.
const (
	DefaultCacheTTL  = 30 * time.Minute
	DefaultCacheSize = 50
)

// Config tunes the isolator. Zero values take the defaults above.
type Config struct {
	CacheTTL  time.Duration
	CacheSize int
}

func (c Config) withDefaults() Config {
	if c.CacheTTL <= 0 {
		c.CacheTTL = DefaultCacheTTL
	}
	if c.CacheSize <= 0 {
		c.CacheSize = DefaultCacheSize
	}
	return c
}

// Isolated is the model-facing view of one tool invocation: the summary
// plus enough metadata to fetch or account for the full payload.
type Isolated struct {
	Tool          ToolKind  `json:"tool"`
	CallID        string    `json:"callId"`
	Summary       string    `json:"summary"`
	FullTokens    int       `json:"fullTokens"`
	SummaryTokens int       `json:"summaryTokens"`
	Timestamp     time.Time `json:"timestamp"`
}

// record is what the isolation cache actually stores.
type record struct {
	tool    ToolKind
	full    any
	summary string
	ts      time.Time
}

// Isolator summarizes tool results and parks the full payloads.
//
// Thread Safety: Safe for concurrent use.
type Isolator struct {
	cache  *cache.Cache[record]
	config Config
}

// NewIsolator creates an isolator with its own payload cache.
func NewIsolator(config Config) *Isolator {
	cfg := config.withDefaults()
	return &Isolator{
		cache:  cache.New[record](cfg.CacheTTL, cfg.CacheSize),
		config: cfg,
	}
}

// Isolate summarizes one tool result and stores the full payload.
//
// Description:
//
//	Dispatches on kind to the matching summarizer (unknown kinds get the
//	generic one), counts tokens for both forms, and stores the payload
//	under a fresh UUID call ID. The caller forwards only the returned
//	summary to the model; the payload is reachable via FullResult until
//	the TTL lapses. summaryTokens exceeding fullTokens is legal (tiny
//	payloads) and merely shows up in the stats.
//
// Outputs:
//   - *Isolated: Always non-nil; never an error.
func (i *Isolator) Isolate(ctx context.Context, kind ToolKind, rawResult any) *Isolated {
	_, span := isolateTracer.Start(ctx, "isolate.Isolator.Isolate")
	defer span.End()

	callID := uuid.NewString()
	summary := summarize(kind, rawResult)
	now := time.Now()

	i.cache.Set(callID, record{
		tool:    kind,
		full:    rawResult,
		summary: summary,
		ts:      now,
	})

	out := &Isolated{
		Tool:          kind,
		CallID:        callID,
		Summary:       summary,
		FullTokens:    tokens.EstimateText(rawTokensText(rawResult)),
		SummaryTokens: tokens.EstimateText(summary),
		Timestamp:     now,
	}

	span.SetAttributes(
		attribute.String("isolate.tool", string(kind)),
		attribute.String("isolate.call_id", callID),
		attribute.Int("isolate.full_tokens", out.FullTokens),
		attribute.Int("isolate.summary_tokens", out.SummaryTokens),
	)
	return out
}

// FullResult returns the stored payload for a call ID.
//
// The payload is served from the cache without re-invoking the tool. An
// expired or unknown ID is an error: the tool must be re-run by the
// caller if the data is still wanted.
func (i *Isolator) FullResult(callID string) (any, error) {
	rec, ok := i.cache.Get(callID)
	if !ok {
		return nil, fmt.Errorf("no stored result for call %q (expired or never isolated)", callID)
	}
	return rec.full, nil
}

// CacheStats exposes the isolation cache counters for the stats surface.
func (i *Isolator) CacheStats() cache.Stats {
	return i.cache.Stats()
}

// rawTokensText renders a payload the way it would have entered the
// context: its JSON form. Strings are costed as-is.
func rawTokensText(raw any) string {
	if s, ok := raw.(string); ok {
		return s
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return fmt.Sprintf("%v", raw)
	}
	return string(b)
}

// =============================================================================
// Turn accumulator
// =============================================================================

// TurnAccumulator aggregates isolation savings across the tool calls of
// one turn and renders the observability line for it.
//
// Thread Safety: Safe for concurrent use; tool calls within a turn may
// run in parallel.
type TurnAccumulator struct {
	mu         sync.Mutex
	calls      int
	fullTokens int
	saved      int
}

// Record folds one isolated result into the turn totals. Negative
// savings (summary longer than payload) are counted as zero saved.
func (a *TurnAccumulator) Record(iso *Isolated) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.calls++
	a.fullTokens += iso.FullTokens
	if d := iso.FullTokens - iso.SummaryTokens; d > 0 {
		a.saved += d
	}
}

// TokensSaved reports the total tokens kept out of the context this turn.
func (a *TurnAccumulator) TokensSaved() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.saved
}

// Calls reports how many tool invocations were isolated this turn.
func (a *TurnAccumulator) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// Line renders the per-turn savings in the fixed log/header format
// "saved=N;calls=M;percent=P". Percent is of the full payload tokens,
// rounded down; zero calls renders percent=0.
func (a *TurnAccumulator) Line() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	percent := 0
	if a.fullTokens > 0 {
		percent = a.saved * 100 / a.fullTokens
	}
	return fmt.Sprintf("saved=%d;calls=%d;percent=%d", a.saved, a.calls, percent)
}

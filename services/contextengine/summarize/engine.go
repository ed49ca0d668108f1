// Copyright (C) 2025 DealDesk AI (engineering@dealdesk.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package summarize compresses long conversation histories into a single
// synthetic system message plus the most recent turns.
//
// Summarization never blocks a turn on a slow or broken model: LLM
// generation is raced against a hard timeout, and two deterministic
// fallbacks sit below it. The bottom rung is a fixed template that works
// on any input, so Summarize cannot fail.
package summarize

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dealdesk-ai/dealdesk/services/contextengine/cache"
	"github.com/dealdesk-ai/dealdesk/services/contextengine/datatypes"
	"github.com/dealdesk-ai/dealdesk/services/contextengine/tokens"
	"github.com/dealdesk-ai/dealdesk/services/llm"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var summarizeTracer = otel.Tracer("dealdesk.contextengine.summarize")

// Defaults. All overridable via Config.
const (
	// DefaultTriggerMessageCount summarizes once a conversation reaches
	// this many messages.
	DefaultTriggerMessageCount = 20

	// DefaultTriggerTokenCount summarizes once the estimated token total
	// reaches this, regardless of message count.
	DefaultTriggerTokenCount = 7000

	// DefaultKeepRecent is how many trailing messages stay verbatim.
	DefaultKeepRecent = 10

	// DefaultTimeout bounds LLM generation. The race loser is abandoned,
	// not awaited.
	DefaultTimeout = 3 * time.Second

	// DefaultCacheTTL is how long a generated summary stays reusable.
	DefaultCacheTTL = 30 * time.Minute

	// DefaultCacheSize bounds the summary cache.
	DefaultCacheSize = 50

	// targetSummaryTokens is the length hint given to the model.
	targetSummaryTokens = 400
)

// Method names the path that produced a summarization result.
const (
	MethodNone       = "none"
	MethodCache      = "cache"
	MethodLLM        = "llm"
	MethodFallback   = "fallback"
	MethodTruncation = "truncation"
)

// Config tunes the engine. Zero values take the defaults above.
type Config struct {
	TriggerMessageCount int
	TriggerTokenCount   int
	KeepRecent          int
	Timeout             time.Duration
	CacheTTL            time.Duration
	CacheSize           int
}

func (c Config) withDefaults() Config {
	if c.TriggerMessageCount <= 0 {
		c.TriggerMessageCount = DefaultTriggerMessageCount
	}
	if c.TriggerTokenCount <= 0 {
		c.TriggerTokenCount = DefaultTriggerTokenCount
	}
	if c.KeepRecent <= 0 {
		c.KeepRecent = DefaultKeepRecent
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = DefaultCacheTTL
	}
	if c.CacheSize <= 0 {
		c.CacheSize = DefaultCacheSize
	}
	return c
}

// Metrics records one summarization pass end to end.
type Metrics struct {
	TokensBefore       int     `json:"tokensBefore"`
	TokensAfter        int     `json:"tokensAfter"`
	TokensSaved        int     `json:"tokensSaved"`
	CompressionRatio   float64 `json:"compressionRatio"`
	LatencyMs          float64 `json:"latencyMs"`
	MessagesBefore     int     `json:"messagesBefore"`
	MessagesAfter      int     `json:"messagesAfter"`
	MessagesSummarized int     `json:"messagesSummarized"`
	CacheHit           bool    `json:"cacheHit"`
	Success            bool    `json:"success"`
	Method             string  `json:"method"`
}

// Result is the uniform output of Summarize. Every path fills it.
type Result struct {
	Messages    []datatypes.Message
	SummaryText string
	Metrics     Metrics
}

// Engine compresses conversation histories.
//
// Thread Safety: Safe for concurrent use. The summary cache is shared;
// the fallback counter is atomic.
type Engine struct {
	llm           llm.LLMClient
	cache         *cache.Cache[string]
	config        Config
	fallbackCount atomic.Int64
}

// NewEngine creates a summarization engine.
//
// Inputs:
//   - client: Text generator for the primary path. Nil skips straight to
//     the deterministic fallbacks.
//   - config: Tuning knobs; zero values take package defaults.
func NewEngine(client llm.LLMClient, config Config) *Engine {
	cfg := config.withDefaults()
	return &Engine{
		llm:    client,
		cache:  cache.New[string](cfg.CacheTTL, cfg.CacheSize),
		config: cfg,
	}
}

// ShouldSummarize reports whether a history is long enough to compress.
func (e *Engine) ShouldSummarize(msgs []datatypes.Message) bool {
	if len(msgs) >= e.config.TriggerMessageCount {
		return true
	}
	return tokens.EstimateMessages(msgs) >= e.config.TriggerTokenCount
}

// Summarize compresses a conversation when it crosses the trigger.
//
// Description:
//
//	Below both triggers the history passes through untouched. Above them
//	the older portion (everything but the last KeepRecent messages) is
//	replaced with one synthetic system summary: from cache when the
//	conversation state matches a prior pass, otherwise generated by the
//	LLM under a hard timeout, otherwise assembled by a keyword scan, and
//	as a last resort a fixed truncation notice. Summarize never returns
//	an error; Metrics.Method says which rung ran.
//
// Inputs:
//   - ctx: Cancellation and tracing. Generation stops at ctx or timeout,
//     whichever is first.
//   - msgs: The conversation history. Never mutated.
//   - namespace: Tenant/deal scope for the cache key.
//
// Outputs:
//   - *Result: Always non-nil. Messages holds either the original
//     history (Method "none") or summary + recent.
func (e *Engine) Summarize(ctx context.Context, msgs []datatypes.Message, namespace string) *Result {
	ctx, span := summarizeTracer.Start(ctx, "summarize.Engine.Summarize")
	defer span.End()

	started := time.Now()
	tokensBefore := tokens.EstimateMessages(msgs)

	finish := func(r *Result) *Result {
		r.Metrics.LatencyMs = float64(time.Since(started).Microseconds()) / 1000.0
		r.Metrics.TokensBefore = tokensBefore
		r.Metrics.TokensAfter = tokens.EstimateMessages(r.Messages)
		r.Metrics.TokensSaved = r.Metrics.TokensBefore - r.Metrics.TokensAfter
		if r.Metrics.TokensBefore > 0 {
			r.Metrics.CompressionRatio = float64(r.Metrics.TokensAfter) / float64(r.Metrics.TokensBefore)
		}
		r.Metrics.MessagesBefore = len(msgs)
		r.Metrics.MessagesAfter = len(r.Messages)
		span.SetAttributes(
			attribute.String("summarize.method", r.Metrics.Method),
			attribute.Int("summarize.tokens_saved", r.Metrics.TokensSaved),
			attribute.Bool("summarize.cache_hit", r.Metrics.CacheHit),
		)
		return r
	}

	if !e.ShouldSummarize(msgs) {
		return finish(&Result{
			Messages: msgs,
			Metrics:  Metrics{Method: MethodNone, Success: true},
		})
	}

	older, recent := e.split(msgs)
	if len(older) == 0 {
		// A token-heavy history that fits inside the keep-recent tail
		// has nothing to fold into a summary; compressing it would only
		// prepend notices turn after turn.
		return finish(&Result{
			Messages: msgs,
			Metrics:  Metrics{Method: MethodNone, Success: true},
		})
	}
	key := cacheKey(namespace, msgs)

	if summary, ok := e.cache.Get(key); ok {
		return finish(&Result{
			Messages:    rebuild(summary, recent),
			SummaryText: summary,
			Metrics: Metrics{
				Method:             MethodCache,
				Success:            true,
				CacheHit:           true,
				MessagesSummarized: len(older),
			},
		})
	}

	if summary, err := e.generate(ctx, older); err == nil {
		e.cache.Set(key, summary)
		return finish(&Result{
			Messages:    rebuild(summary, recent),
			SummaryText: summary,
			Metrics: Metrics{
				Method:             MethodLLM,
				Success:            true,
				MessagesSummarized: len(older),
			},
		})
	} else {
		slog.Warn("summary generation failed, falling back", "error", err, "namespace", namespace)
	}

	e.fallbackCount.Add(1)
	if summary, ok := keywordSummary(older); ok {
		return finish(&Result{
			Messages:    rebuild(summary, recent),
			SummaryText: summary,
			Metrics: Metrics{
				Method:             MethodFallback,
				Success:            true,
				MessagesSummarized: len(older),
			},
		})
	}

	summary := truncationNotice(len(older))
	return finish(&Result{
		Messages:    rebuild(summary, recent),
		SummaryText: summary,
		Metrics: Metrics{
			Method:             MethodTruncation,
			Success:            true,
			MessagesSummarized: len(older),
		},
	})
}

// FallbackCount reports how many passes dropped off the LLM path.
func (e *Engine) FallbackCount() int64 {
	return e.fallbackCount.Load()
}

// CacheStats exposes the summary cache counters for the stats surface.
func (e *Engine) CacheStats() cache.Stats {
	return e.cache.Stats()
}

// split divides a history into the older portion to summarize and the
// recent tail kept verbatim.
func (e *Engine) split(msgs []datatypes.Message) (older, recent []datatypes.Message) {
	k := e.config.KeepRecent
	if len(msgs) <= k {
		return nil, msgs
	}
	return msgs[:len(msgs)-k], msgs[len(msgs)-k:]
}

// cacheKey identifies a conversation state: same tenant, same length,
// same last message content. Any appended turn changes the key.
func cacheKey(namespace string, msgs []datatypes.Message) string {
	var last string
	if len(msgs) > 0 {
		last = msgs[len(msgs)-1].Content
	}
	return fmt.Sprintf("%s::%d::%x", namespace, len(msgs), sha256.Sum256([]byte(last)))
}

// rebuild assembles the compressed history: one system summary ahead of
// the verbatim recent tail.
func rebuild(summary string, recent []datatypes.Message) []datatypes.Message {
	out := make([]datatypes.Message, 0, len(recent)+1)
	out = append(out, datatypes.SystemMessage("Summary of earlier conversation:\n"+summary))
	out = append(out, recent...)
	return out
}

// =============================================================================
// LLM path
// =============================================================================

// generate runs the model with a hard deadline. The generation goroutine
// is cancelled on timeout and its eventual result discarded; a buffered
// channel keeps it from leaking.
func (e *Engine) generate(ctx context.Context, older []datatypes.Message) (string, error) {
	if e.llm == nil {
		return "", fmt.Errorf("no LLM client configured")
	}

	genCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type genResult struct {
		text string
		err  error
	}
	done := make(chan genResult, 1)

	go func() {
		text, err := e.llm.Generate(genCtx, buildPrompt(older), llm.GenerationParams{
			MaxTokens: ptr(targetSummaryTokens + 100),
		})
		done <- genResult{text: text, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return "", r.err
		}
		if strings.TrimSpace(r.text) == "" {
			return "", fmt.Errorf("model returned an empty summary")
		}
		return strings.TrimSpace(r.text), nil
	case <-time.After(e.config.Timeout):
		return "", fmt.Errorf("summary generation timed out after %s", e.config.Timeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func ptr[T any](v T) *T { return &v }

// buildPrompt renders the summarization instruction plus the transcript.
// Priority order in the instruction mirrors what diligence users lose
// hardest when it is dropped: corrections first, pleasantries never.
func buildPrompt(older []datatypes.Message) string {
	var b strings.Builder
	b.WriteString("Summarize the following conversation between an analyst and a ")
	b.WriteString("document-intelligence assistant for an M&A diligence workspace.\n\n")
	b.WriteString("Preserve, in priority order:\n")
	b.WriteString("1. Corrections or clarifications the analyst made.\n")
	b.WriteString("2. Quantitative facts: figures, dates, percentages, amounts.\n")
	b.WriteString("3. Risks and findings that were surfaced.\n")
	b.WriteString("4. Companies, people, and reporting periods discussed.\n")
	b.WriteString("5. Questions asked and answers given, when still relevant.\n\n")
	b.WriteString("Exclude greetings and conversation about the conversation. ")
	fmt.Fprintf(&b, "Target roughly %d tokens.\n\nConversation:\n", targetSummaryTokens)

	for _, m := range older {
		fmt.Fprintf(&b, "[%s] %s\n", m.Role, m.Content)
	}
	return b.String()
}

// =============================================================================
// Deterministic fallbacks
// =============================================================================

// keywordFamily groups the terms that signal one topic worth naming in a
// degraded summary.
type keywordFamily struct {
	label    string
	keywords []string
}

var keywordFamilies = []keywordFamily{
	{"financial figures", []string{"revenue", "ebitda", "margin", "profit", "cash flow", "cost", "capex", "arr", "growth"}},
	{"companies and organizations", []string{"company", "subsidiary", "acquirer", "target", "vendor", "customer", "competitor"}},
	{"financial statements", []string{"balance sheet", "income statement", "10-k", "10-q", "annual report", "quarterly", "audit"}},
	{"risk factors", []string{"risk", "liability", "litigation", "compliance", "exposure", "concern", "contingency"}},
	{"deal terms", []string{"valuation", "purchase price", "earnout", "escrow", "closing", "term sheet", "loi", "diligence"}},
}

// keywordSummary scans the older messages for topic families and names
// the ones present. ok is false when no family matched, which sends the
// caller to the truncation rung.
func keywordSummary(older []datatypes.Message) (string, bool) {
	var corpus strings.Builder
	for _, m := range older {
		corpus.WriteString(strings.ToLower(m.Content))
		corpus.WriteByte('\n')
	}
	text := corpus.String()

	var found []string
	for _, fam := range keywordFamilies {
		for _, kw := range fam.keywords {
			if strings.Contains(text, kw) {
				found = append(found, fam.label)
				break
			}
		}
	}
	if len(found) == 0 {
		return "", false
	}

	return fmt.Sprintf("Earlier discussion (%d messages) covered: %s.",
		len(older), strings.Join(found, ", ")), true
}

// truncationNotice is the bottom rung: a fixed template that works on
// any input, including an empty older slice.
func truncationNotice(count int) string {
	return fmt.Sprintf("[%d earlier messages were truncated to keep the conversation within limits.]", count)
}

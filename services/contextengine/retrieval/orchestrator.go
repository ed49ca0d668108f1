// Copyright (C) 2025 DealDesk AI (engineering@dealdesk.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package retrieval decides, per turn, whether a knowledge-base search is
// worth a remote call, and injects a token-bounded slice of results into
// the conversation when it is.
//
// The main cost lever is the topic cache: keys are derived from the
// significant words of the query, sorted, so "Q3 revenue" and "revenue
// Q3" (and close paraphrases) reuse the same cached context instead of
// re-querying the search backend.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/dealdesk-ai/dealdesk/services/contextengine/cache"
	"github.com/dealdesk-ai/dealdesk/services/contextengine/datatypes"
	"github.com/dealdesk-ai/dealdesk/services/contextengine/intent"
	"github.com/dealdesk-ai/dealdesk/services/contextengine/tokens"
	"github.com/dealdesk-ai/dealdesk/services/search"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"
)

var retrievalTracer = otel.Tracer("dealdesk.contextengine.retrieval")

// Defaults. All overridable via Config.
const (
	// DefaultNumResults is how many ranked hits to request per search.
	DefaultNumResults = 5

	// DefaultMaxContextTokens bounds the injected context message.
	DefaultMaxContextTokens = 2000

	// DefaultCacheTTL is how long a cached topic context stays valid.
	DefaultCacheTTL = 5 * time.Minute

	// DefaultCacheSize bounds the topic cache.
	DefaultCacheSize = 20

	// LatencyTarget is the soft budget for one preRetrieve pass. Slower
	// passes are a warning in metrics, never an error and never a retry.
	LatencyTarget = 500 * time.Millisecond
)

// Config tunes the orchestrator. Zero values take the defaults above.
type Config struct {
	NumResults       int
	MaxContextTokens int
	CacheTTL         time.Duration
	CacheSize        int
}

func (c Config) withDefaults() Config {
	if c.NumResults <= 0 {
		c.NumResults = DefaultNumResults
	}
	if c.MaxContextTokens <= 0 {
		c.MaxContextTokens = DefaultMaxContextTokens
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = DefaultCacheTTL
	}
	if c.CacheSize <= 0 {
		c.CacheSize = DefaultCacheSize
	}
	return c
}

// Entry is one cached retrieval payload.
type Entry struct {
	Context  string
	Entities []string
}

// Result reports one preRetrieve pass. Every path fills the same shape;
// callers never branch on which path ran to consume it.
type Result struct {
	// Messages is the (possibly context-prefixed) history.
	Messages []datatypes.Message

	// LatencyMs is the wall time of the whole pass.
	LatencyMs float64

	// CacheHit is true when the topic cache supplied the context.
	CacheHit bool

	// Skipped is true when no retrieval was attempted (empty query or
	// non-retrieval intent).
	Skipped bool

	// Degraded is true when retrieval was attempted but failed or found
	// nothing; the history passed through unchanged.
	Degraded bool

	// Intent is the classified intent of the last user message.
	Intent intent.Intent

	// Entities are the entities attached to the injected context, if any.
	Entities []string

	// SlowWarning is true when the pass exceeded LatencyTarget.
	SlowWarning bool
}

// Orchestrator gates and executes pre-turn knowledge retrieval.
//
// Thread Safety: Safe for concurrent use. The topic cache is shared
// across requests; concurrent misses for the same topic are collapsed
// into a single backend call.
type Orchestrator struct {
	searcher   search.HybridSearcher
	classifier intent.Classifier
	cache      *cache.Cache[Entry]
	config     Config
	group      singleflight.Group
}

// NewOrchestrator creates a retrieval orchestrator.
//
// Inputs:
//   - searcher: The hybrid search backend. Must not be nil.
//   - classifier: Intent classifier. Nil uses the rule-only classifier.
//   - config: Tuning knobs; zero values take package defaults.
func NewOrchestrator(searcher search.HybridSearcher, classifier intent.Classifier, config Config) *Orchestrator {
	if classifier == nil {
		classifier = intent.NewRuleClassifier()
	}
	cfg := config.withDefaults()
	return &Orchestrator{
		searcher:   searcher,
		classifier: classifier,
		cache:      cache.New[Entry](cfg.CacheTTL, cfg.CacheSize),
		config:     cfg,
	}
}

// PreRetrieve runs the per-turn retrieval decision for a conversation.
//
// Description:
//
//	Classifies the last user message, probes the topic cache, and only on
//	a miss calls the search backend. Search failure and empty result sets
//	degrade gracefully: the original messages come back unchanged and the
//	turn continues with less context, never an error.
//
// Inputs:
//   - ctx: Cancellation and tracing.
//   - msgs: The conversation history. Never mutated.
//   - namespace: Tenant/deal scope for the cache key and the search.
//
// Outputs:
//   - *Result: Always non-nil; see Result for field semantics.
func (o *Orchestrator) PreRetrieve(ctx context.Context, msgs []datatypes.Message, namespace string) *Result {
	ctx, span := retrievalTracer.Start(ctx, "retrieval.Orchestrator.PreRetrieve")
	defer span.End()

	started := time.Now()
	finish := func(r *Result) *Result {
		r.LatencyMs = float64(time.Since(started).Microseconds()) / 1000.0
		r.SlowWarning = time.Since(started) > LatencyTarget
		if r.SlowWarning {
			slog.Warn("preRetrieve exceeded latency target",
				"latencyMs", r.LatencyMs,
				"targetMs", LatencyTarget.Milliseconds(),
				"namespace", namespace,
			)
		}
		span.SetAttributes(
			attribute.Bool("retrieval.skipped", r.Skipped),
			attribute.Bool("retrieval.cache_hit", r.CacheHit),
			attribute.String("retrieval.intent", string(r.Intent)),
			attribute.Float64("retrieval.latency_ms", r.LatencyMs),
		)
		return r
	}

	query := datatypes.LastUserText(msgs)
	if strings.TrimSpace(query) == "" {
		return finish(&Result{Messages: msgs, Skipped: true})
	}

	classified := o.classifier.Classify(ctx, query)
	if !intent.ShouldRetrieve(classified) {
		return finish(&Result{Messages: msgs, Skipped: true, Intent: classified})
	}

	key := TopicKey(query, namespace)
	if entry, ok := o.cache.Get(key); ok {
		return finish(&Result{
			Messages: prependContext(msgs, entry.Context),
			CacheHit: true,
			Intent:   classified,
			Entities: entry.Entities,
		})
	}

	entry, ok := o.fetchAndFormat(ctx, key, query, namespace)
	if !ok {
		// Graceful degradation: the turn proceeds without injected
		// context.
		return finish(&Result{Messages: msgs, Intent: classified, Degraded: true})
	}

	return finish(&Result{
		Messages: prependContext(msgs, entry.Context),
		Intent:   classified,
		Entities: entry.Entities,
	})
}

// fetchAndFormat calls the search backend (deduplicated per topic key),
// formats the results under the token budget, and populates the cache.
// Returns ok=false for any failure or an empty result set.
func (o *Orchestrator) fetchAndFormat(ctx context.Context, key, query, namespace string) (Entry, bool) {
	v, err, _ := o.group.Do(key, func() (any, error) {
		// Every collapsed waiter shares this one fetch, so it must not
		// die with whichever caller happened to start it. Detach from
		// that caller's cancellation and bound the fetch on its own.
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), search.DefaultSearchTimeout)
		defer cancel()

		resp, err := o.searcher.Search(fetchCtx, &search.SearchRequest{
			Query:      query,
			Namespace:  namespace,
			NumResults: o.config.NumResults,
		})
		if err != nil {
			return nil, err
		}
		if len(resp.Results) == 0 {
			return nil, fmt.Errorf("no results")
		}

		entry := Entry{
			Context:  FormatContext(resp.Results, o.config.MaxContextTokens),
			Entities: resp.Entities,
		}
		o.cache.Set(key, entry)
		return entry, nil
	})
	if err != nil {
		slog.Warn("hybrid search degraded", "error", err, "namespace", namespace)
		return Entry{}, false
	}
	return v.(Entry), true
}

// CacheStats exposes the topic cache counters for the stats surface.
func (o *Orchestrator) CacheStats() cache.Stats {
	return o.cache.Stats()
}

// prependContext builds a new history with one synthetic system message
// carrying the retrieved context ahead of the conversation.
func prependContext(msgs []datatypes.Message, contextText string) []datatypes.Message {
	out := make([]datatypes.Message, 0, len(msgs)+1)
	out = append(out, datatypes.SystemMessage(contextText))
	out = append(out, msgs...)
	return out
}

// =============================================================================
// Topic Key
// =============================================================================

// stopwords are dropped when deriving a topic key. Question scaffolding
// and articles carry no topical signal, so paraphrases of the same
// question collapse onto one key.
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "of": true, "for": true,
	"to": true, "in": true, "on": true, "at": true, "and": true,
	"or": true, "is": true, "are": true, "was": true, "were": true,
	"be": true, "been": true, "do": true, "does": true, "did": true,
	"what": true, "whats": true, "which": true, "who": true,
	"when": true, "where": true, "how": true, "why": true,
	"about": true, "with": true, "can": true, "could": true,
	"would": true, "should": true, "tell": true, "show": true,
	"give": true, "please": true, "this": true, "that": true,
	"these": true, "those": true, "you": true, "our": true, "their": true,
}

var nonWord = regexp.MustCompile(`[^a-z0-9]+`)

// TopicKey derives the cache key for a query within a namespace.
//
// Description:
//
//	Lowercases the query, strips punctuation, drops stopwords and words
//	of fewer than three characters, sorts the remainder alphabetically,
//	and joins them under a namespace prefix. Word order is deliberately
//	discarded: "Q3 revenue" and "revenue Q3" must collide. The namespace
//	prefix guarantees identical text in different deals never collides.
//
// Example:
//
//	TopicKey("What's the revenue?", "deal-7")   // "deal-7::revenue"
//	TopicKey("What about revenue?", "deal-7")   // "deal-7::revenue"
func TopicKey(query, namespace string) string {
	words := nonWord.Split(strings.ToLower(query), -1)

	kept := make([]string, 0, len(words))
	for _, w := range words {
		if len(w) < 3 || stopwords[w] {
			continue
		}
		kept = append(kept, w)
	}
	sort.Strings(kept)

	return namespace + "::" + strings.Join(kept, "|")
}

// =============================================================================
// Context Formatting
// =============================================================================

// contextHeader opens every injected context message.
const contextHeader = "Relevant knowledge base context:"

// FormatContext renders ranked results under a token budget.
//
// Description:
//
//	Results are taken in ranked order; each formatted line's estimated
//	token cost is added to a running total, and the first line that would
//	push the total past maxTokens ends the scan. Lines are kept whole —
//	a partially included result is worse than none.
//
// Outputs:
//   - string: The formatted context. Estimated tokens never exceed
//     maxTokens.
func FormatContext(results []search.SearchResult, maxTokens int) string {
	var b strings.Builder
	b.WriteString(contextHeader)

	total := tokens.EstimateText(contextHeader)
	for i, r := range results {
		line := formatResultLine(i+1, r)
		cost := tokens.EstimateText(line)
		if total+cost > maxTokens {
			break
		}
		b.WriteString(line)
		total += cost
	}

	return b.String()
}

// formatResultLine renders one ranked hit, citation included when known.
func formatResultLine(rank int, r search.SearchResult) string {
	line := fmt.Sprintf("\n[%d] %s", rank, strings.TrimSpace(r.Content))
	if c := r.Citation; c != nil && c.Title != "" {
		if c.Page > 0 {
			line += fmt.Sprintf(" (source: %s, p.%d)", c.Title, c.Page)
		} else {
			line += fmt.Sprintf(" (source: %s)", c.Title)
		}
	}
	return line
}

// Copyright (C) 2025 DealDesk AI (engineering@dealdesk.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package intent classifies user utterances to gate knowledge retrieval.
//
// The classifier exists purely for latency and cost: greetings and
// meta-conversation ("summarize our chat") never need a knowledge-base
// search, so the retrieval orchestrator consults Classify before spending
// a remote call. The rule path is dependency-free and never touches the
// network; an optional semantic fallback refines ambiguous inputs and
// degrades back to the rule result on any failure.
package intent

import (
	"context"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var intentTracer = otel.Tracer("dealdesk.contextengine.intent")

// Intent is one of a small closed set of utterance categories.
type Intent string

const (
	// IntentGreeting covers salutations and pleasantries.
	IntentGreeting Intent = "greeting"

	// IntentMeta covers conversation about the conversation itself.
	IntentMeta Intent = "meta"

	// IntentFactual covers direct questions answerable from documents.
	IntentFactual Intent = "factual"

	// IntentExploratory covers open-ended analysis requests.
	IntentExploratory Intent = "exploratory"
)

// ShouldRetrieve reports whether an intent warrants a knowledge-base
// search. Pure lookup, no I/O.
func ShouldRetrieve(i Intent) bool {
	switch i {
	case IntentGreeting, IntentMeta:
		return false
	default:
		return true
	}
}

// greetingPatterns match salutations and small talk.
var greetingPatterns = []string{
	`^\s*(hi|hello|hey|yo|howdy)\b`,
	`^\s*good\s+(morning|afternoon|evening)\b`,
	`\bhow\s+are\s+you\b`,
	`^\s*(thanks|thank\s+you|cheers)\b[.! ]*$`,
	`^\s*(bye|goodbye|see\s+you)\b`,
}

// metaPatterns match conversation about the conversation.
var metaPatterns = []string{
	`\bsummar(y|ize|ise)\b.*\b(chat|conversation|discussion|our)\b`,
	`\bwhat\s+(did|have)\s+(we|i)\s+(discuss|talk|say|cover)`,
	`\b(repeat|rephrase|restate)\s+(that|your\s+last)\b`,
	`\bwhat\s+can\s+you\s+do\b`,
	`\bwho\s+are\s+you\b`,
	`\b(clear|reset|start\s+over|new)\s+(the\s+)?(chat|conversation|session)\b`,
}

// exploratoryPatterns match open-ended analysis requests.
var exploratoryPatterns = []string{
	`\b(analyz|analys)e?\b`,
	`\bcompare\b`,
	`\b(walk|talk)\s+me\s+through\b`,
	`\bgive\s+me\s+an?\s+overview\b`,
	`\btell\s+me\s+(more\s+)?about\b`,
	`\bwhat\s+are\s+the\s+(risks|concerns|implications|trends)\b`,
	`\bdeep\s+dive\b`,
	`\bexplore\b`,
}

// Classifier maps an utterance to an Intent.
//
// Thread Safety: Implementations must be safe for concurrent use.
type Classifier interface {
	// Classify returns the intent category of an utterance. It must be
	// cheap on its default path and must never fail: unrecognized inputs
	// fall back to IntentFactual.
	Classify(ctx context.Context, utterance string) Intent
}

// RuleClassifier implements Classifier with ordered compiled patterns.
//
// Order matters: greeting and meta patterns are checked before the
// exploratory family so "hello, summarize our chat" gates on the first
// match. Anything unmatched is factual, which errs on the side of
// retrieving.
//
// Thread Safety: Safe for concurrent use after construction.
type RuleClassifier struct {
	greeting    *regexp.Regexp
	meta        *regexp.Regexp
	exploratory *regexp.Regexp
}

// NewRuleClassifier compiles the pattern families into one matcher per
// category.
func NewRuleClassifier() *RuleClassifier {
	return &RuleClassifier{
		greeting:    compileFamily(greetingPatterns),
		meta:        compileFamily(metaPatterns),
		exploratory: compileFamily(exploratoryPatterns),
	}
}

func compileFamily(patterns []string) *regexp.Regexp {
	return regexp.MustCompile("(?i)(" + strings.Join(patterns, "|") + ")")
}

// Classify returns the intent of an utterance using pattern matching only.
//
// Thread Safety: Safe for concurrent use.
func (c *RuleClassifier) Classify(ctx context.Context, utterance string) Intent {
	intent, _ := c.classifyWithConfidence(ctx, utterance)
	return intent
}

// classifyWithConfidence also reports whether the rule matcher is
// confident in its answer. The factual default on an unmatched short
// utterance is a guess, not a match; the semantic fallback may overrule
// guesses but never matches.
func (c *RuleClassifier) classifyWithConfidence(ctx context.Context, utterance string) (Intent, bool) {
	_, span := intentTracer.Start(ctx, "intent.RuleClassifier.Classify")
	defer span.End()

	trimmed := strings.TrimSpace(utterance)
	if trimmed == "" {
		span.SetAttributes(attribute.String("intent", string(IntentMeta)))
		return IntentMeta, true
	}

	var intent Intent
	confident := true
	switch {
	case c.greeting.MatchString(trimmed):
		intent = IntentGreeting
	case c.meta.MatchString(trimmed):
		intent = IntentMeta
	case c.exploratory.MatchString(trimmed):
		intent = IntentExploratory
	default:
		intent = IntentFactual
		// Short unmatched fragments ("ok?", "ebitda") carry too little
		// signal for the rules to be sure.
		confident = len(strings.Fields(trimmed)) >= 3
	}

	span.SetAttributes(
		attribute.String("intent", string(intent)),
		attribute.Bool("confident", confident),
	)
	return intent, confident
}

// HybridClassifier runs the rule matcher first and consults a semantic
// classifier only for low-confidence results.
//
// The semantic path is optional: a nil SemanticClassifier, or any error
// from it, degrades to the rule result. The rule matcher is therefore
// always the available baseline.
//
// Thread Safety: Safe for concurrent use.
type HybridClassifier struct {
	rules    *RuleClassifier
	semantic SemanticClassifier
}

// NewHybridClassifier creates a classifier with an optional semantic
// fallback. Pass nil for pattern-only classification.
func NewHybridClassifier(semantic SemanticClassifier) *HybridClassifier {
	return &HybridClassifier{
		rules:    NewRuleClassifier(),
		semantic: semantic,
	}
}

// Classify implements Classifier.
func (c *HybridClassifier) Classify(ctx context.Context, utterance string) Intent {
	ctx, span := intentTracer.Start(ctx, "intent.HybridClassifier.Classify")
	defer span.End()

	intent, confident := c.rules.classifyWithConfidence(ctx, utterance)
	if confident || c.semantic == nil {
		span.SetAttributes(attribute.String("path", "rules"))
		return intent
	}

	refined, err := c.semantic.ClassifyIntent(ctx, utterance)
	if err != nil {
		span.SetAttributes(attribute.String("path", "rules_degraded"))
		return intent
	}

	span.SetAttributes(
		attribute.String("path", "semantic"),
		attribute.String("intent", string(refined)),
	)
	return refined
}

// Ensure both classifiers implement Classifier.
var (
	_ Classifier = (*RuleClassifier)(nil)
	_ Classifier = (*HybridClassifier)(nil)
)

// Copyright (C) 2025 DealDesk AI (engineering@dealdesk.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package intent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dealdesk-ai/dealdesk/services/llm"
)

// SemanticClassifier refines ambiguous utterances using semantic
// similarity or a model call.
//
// Thread Safety: Implementations must be safe for concurrent use.
type SemanticClassifier interface {
	// ClassifyIntent returns a refined intent or an error. Errors are
	// expected (timeouts, unavailable backend) and always degrade to the
	// rule-based result; implementations should bound their own latency.
	ClassifyIntent(ctx context.Context, utterance string) (Intent, error)
}

// llmClassifierTimeout bounds the semantic path so an unavailable model
// backend cannot stall the turn. The rule result is already in hand when
// this call starts.
const llmClassifierTimeout = 1500 * time.Millisecond

// classifyPrompt asks for a single label from the closed set.
const classifyPrompt = `Classify the user message into exactly one category.
Categories:
- greeting: salutations, small talk, thanks, goodbyes
- meta: questions about this conversation or about the assistant itself
- factual: a specific question answerable from deal documents
- exploratory: an open-ended analysis or overview request

Reply with only the category name.

User message: %q`

// LLMClassifier implements SemanticClassifier on top of the shared
// LLMClient boundary.
type LLMClassifier struct {
	client llm.LLMClient
}

// NewLLMClassifier wraps an LLM client as a semantic classifier.
func NewLLMClassifier(client llm.LLMClient) *LLMClassifier {
	return &LLMClassifier{client: client}
}

// ClassifyIntent implements SemanticClassifier.
func (c *LLMClassifier) ClassifyIntent(ctx context.Context, utterance string) (Intent, error) {
	if c.client == nil {
		return "", fmt.Errorf("no llm client configured")
	}

	ctx, cancel := context.WithTimeout(ctx, llmClassifierTimeout)
	defer cancel()

	maxTokens := 8
	raw, err := c.client.Generate(ctx, fmt.Sprintf(classifyPrompt, utterance), llm.GenerationParams{
		MaxTokens: &maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("semantic classification failed: %w", err)
	}

	return parseIntentLabel(raw)
}

// parseIntentLabel maps a model reply onto the closed intent set. Replies
// outside the set are an error so the caller keeps the rule result.
func parseIntentLabel(raw string) (Intent, error) {
	label := strings.ToLower(strings.TrimSpace(raw))
	label = strings.Trim(label, `"'.`)

	switch {
	case strings.HasPrefix(label, "greeting"):
		return IntentGreeting, nil
	case strings.HasPrefix(label, "meta"):
		return IntentMeta, nil
	case strings.HasPrefix(label, "factual"):
		return IntentFactual, nil
	case strings.HasPrefix(label, "explor"):
		return IntentExploratory, nil
	default:
		return "", fmt.Errorf("unrecognized intent label %q", raw)
	}
}

var _ SemanticClassifier = (*LLMClassifier)(nil)

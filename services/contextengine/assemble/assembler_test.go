// Copyright (C) 2025 DealDesk AI (engineering@dealdesk.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package assemble

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/dealdesk-ai/dealdesk/services/contextengine/datatypes"
	"github.com/dealdesk-ai/dealdesk/services/contextengine/retrieval"
	"github.com/dealdesk-ai/dealdesk/services/contextengine/summarize"
	"github.com/dealdesk-ai/dealdesk/services/llm"
	"github.com/dealdesk-ai/dealdesk/services/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLLM struct{ response string }

func (s *stubLLM) Generate(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
	return s.response, nil
}

type stubSearcher struct {
	mu       sync.Mutex
	calls    int
	response *search.SearchResponse
	err      error
}

func (s *stubSearcher) Search(ctx context.Context, req *search.SearchRequest) (*search.SearchResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.response, nil
}

func newAssembler(gen llm.LLMClient, searcher search.HybridSearcher) *Assembler {
	return NewAssembler(
		summarize.NewEngine(gen, summarize.Config{}),
		retrieval.NewOrchestrator(searcher, nil, retrieval.Config{}),
	)
}

// longConversation builds n alternating messages of roughly tokensEach
// tokens, ending on a user question that warrants retrieval.
func longConversation(n, tokensEach int) []datatypes.Message {
	msgs := make([]datatypes.Message, 0, n)
	for i := 0; i < n-1; i++ {
		role := datatypes.RoleUser
		if i%2 == 1 {
			role = datatypes.RoleAssistant
		}
		msgs = append(msgs, datatypes.Message{
			Role:    role,
			Content: fmt.Sprintf("turn %d: %s", i, strings.Repeat("revenue detail ", tokensEach/4)),
		})
	}
	return append(msgs, datatypes.Message{Role: datatypes.RoleUser, Content: "What were the final deal terms?"})
}

func TestAssembleOrdering(t *testing.T) {
	searcher := &stubSearcher{response: &search.SearchResponse{
		Results: []search.SearchResult{{Content: "Earnout capped at $30M."}},
	}}
	a := newAssembler(&stubLLM{response: "Earlier turns covered revenue detail."}, searcher)

	turn := a.Assemble(context.Background(), longConversation(25, 50), "deal-1")

	// Summarize ran first (25 → 11), then retrieval prepended context.
	assert.Equal(t, summarize.MethodLLM, turn.Summarization.Method)
	require.False(t, turn.Retrieval.Skipped)
	require.Len(t, turn.Messages, 12)
	assert.Contains(t, turn.Messages[0].Content, "Earnout")
	assert.Contains(t, turn.Messages[1].Content, "Summary of earlier conversation")
}

func TestAssembleShortHistory(t *testing.T) {
	searcher := &stubSearcher{response: &search.SearchResponse{
		Results: []search.SearchResult{{Content: "Revenue was $120M."}},
	}}
	a := newAssembler(&stubLLM{response: "unused"}, searcher)

	msgs := []datatypes.Message{{Role: datatypes.RoleUser, Content: "What was the Q3 revenue?"}}
	turn := a.Assemble(context.Background(), msgs, "deal-1")

	assert.Equal(t, summarize.MethodNone, turn.Summarization.Method)
	require.Len(t, turn.Messages, 2)
	assert.Equal(t, datatypes.RoleSystem, turn.Messages[0].Role)
}

func TestAssembleGreetingSkipsEverything(t *testing.T) {
	searcher := &stubSearcher{response: &search.SearchResponse{}}
	a := newAssembler(&stubLLM{response: "unused"}, searcher)

	msgs := []datatypes.Message{{Role: datatypes.RoleUser, Content: "hello!"}}
	turn := a.Assemble(context.Background(), msgs, "deal-1")

	assert.True(t, turn.Retrieval.Skipped)
	assert.Equal(t, msgs, turn.Messages)
	assert.Equal(t, 0, searcher.calls)
}

func TestAssembleScenarioCompression(t *testing.T) {
	// 25 messages of ~50 tokens end as 1 summary + 10 recent even when
	// both downstream services are down.
	searcher := &stubSearcher{err: fmt.Errorf("search down")}
	a := newAssembler(nil, searcher)

	turn := a.Assemble(context.Background(), longConversation(25, 50), "deal-1")

	assert.Len(t, turn.Messages, 11)
	assert.True(t, turn.Summarization.Success)
}

func TestAssembleDetachesFromCallerHistory(t *testing.T) {
	searcher := &stubSearcher{response: &search.SearchResponse{}}
	a := newAssembler(&stubLLM{response: "unused"}, searcher)

	msgs := []datatypes.Message{{Role: datatypes.RoleUser, Content: "hello!"}}
	turn := a.Assemble(context.Background(), msgs, "deal-1")

	// The greeting passes straight through, but the turn must not alias
	// a slice the caller keeps editing.
	msgs[0].Content = "edited afterwards"
	assert.Equal(t, "hello!", turn.Messages[0].Content)
}

func TestAssembleParaphraseCacheHit(t *testing.T) {
	searcher := &stubSearcher{response: &search.SearchResponse{
		Results: []search.SearchResult{{Content: "Revenue was $120M."}},
	}}
	a := newAssembler(&stubLLM{response: "unused"}, searcher)

	ask := func(text string) *Turn {
		return a.Assemble(context.Background(),
			[]datatypes.Message{{Role: datatypes.RoleUser, Content: text}}, "deal-1")
	}

	ask("What's the revenue?")
	second := ask("What about revenue?")

	assert.True(t, second.Retrieval.CacheHit)
	assert.Equal(t, 1, searcher.calls, "paraphrase must not trigger a second remote call")
}

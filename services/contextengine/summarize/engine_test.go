// Copyright (C) 2025 DealDesk AI (engineering@dealdesk.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package summarize

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dealdesk-ai/dealdesk/services/contextengine/datatypes"
	"github.com/dealdesk-ai/dealdesk/services/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLLM returns a canned summary, an error, or sleeps past any deadline.
type fakeLLM struct {
	calls    atomic.Int64
	response string
	err      error
	delay    time.Duration
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

// conversation builds n alternating user/assistant messages of roughly
// tokensEach tokens apiece.
func conversation(n, tokensEach int) []datatypes.Message {
	msgs := make([]datatypes.Message, 0, n)
	for i := 0; i < n; i++ {
		role := datatypes.RoleUser
		if i%2 == 1 {
			role = datatypes.RoleAssistant
		}
		content := fmt.Sprintf("turn %d: %s", i, strings.Repeat("revenue figures ", tokensEach/4))
		msgs = append(msgs, datatypes.Message{Role: role, Content: content})
	}
	return msgs
}

func TestSummarizeTrigger(t *testing.T) {
	t.Run("below both thresholds is a no-op", func(t *testing.T) {
		fake := &fakeLLM{response: "summary"}
		e := NewEngine(fake, Config{})

		msgs := conversation(19, 40)
		res := e.Summarize(context.Background(), msgs, "deal-1")

		assert.Equal(t, MethodNone, res.Metrics.Method)
		assert.True(t, res.Metrics.Success)
		assert.Equal(t, msgs, res.Messages)
		assert.Equal(t, int64(0), fake.calls.Load())
	})

	t.Run("message count boundary", func(t *testing.T) {
		e := NewEngine(&fakeLLM{response: "summary"}, Config{})

		assert.False(t, e.ShouldSummarize(conversation(19, 10)))
		assert.True(t, e.ShouldSummarize(conversation(20, 10)))
	})

	t.Run("token threshold triggers below message count", func(t *testing.T) {
		e := NewEngine(&fakeLLM{response: "summary"}, Config{})

		// 12 messages at ~700 tokens each clears 7000 estimated tokens.
		assert.True(t, e.ShouldSummarize(conversation(12, 700)))
	})

	t.Run("token trigger with nothing older than the tail", func(t *testing.T) {
		fake := &fakeLLM{response: "summary"}
		e := NewEngine(fake, Config{})

		// A few huge messages clear the token trigger but all sit inside
		// the keep-recent tail. There is nothing to compress, and the
		// history must come back unchanged rather than grow a notice.
		msgs := conversation(5, 2000)
		res := e.Summarize(context.Background(), msgs, "deal-1")

		assert.Equal(t, MethodNone, res.Metrics.Method)
		assert.Equal(t, msgs, res.Messages)
		assert.Equal(t, int64(0), fake.calls.Load())
		assert.Equal(t, int64(0), e.FallbackCount())
	})
}

func TestSummarizeLLMPath(t *testing.T) {
	fake := &fakeLLM{response: "Analyst asked about Q3 revenue; it was $120M."}
	e := NewEngine(fake, Config{})

	msgs := conversation(25, 50)
	res := e.Summarize(context.Background(), msgs, "deal-1")

	assert.Equal(t, MethodLLM, res.Metrics.Method)
	assert.True(t, res.Metrics.Success)

	// 25 messages collapse to 1 summary + 10 recent.
	require.Len(t, res.Messages, 11)
	assert.Equal(t, datatypes.RoleSystem, res.Messages[0].Role)
	assert.Contains(t, res.Messages[0].Content, "$120M")
	assert.Equal(t, msgs[len(msgs)-10:], res.Messages[1:])

	assert.Equal(t, 15, res.Metrics.MessagesSummarized)
	assert.Equal(t, 25, res.Metrics.MessagesBefore)
	assert.Equal(t, 11, res.Metrics.MessagesAfter)
	assert.Greater(t, res.Metrics.TokensSaved, 0)
	assert.Less(t, res.Metrics.CompressionRatio, 1.0)
}

func TestSummarizeCache(t *testing.T) {
	t.Run("identical state hits", func(t *testing.T) {
		fake := &fakeLLM{response: "cached summary"}
		e := NewEngine(fake, Config{})

		msgs := conversation(25, 50)
		first := e.Summarize(context.Background(), msgs, "deal-1")
		second := e.Summarize(context.Background(), msgs, "deal-1")

		assert.Equal(t, MethodLLM, first.Metrics.Method)
		assert.Equal(t, MethodCache, second.Metrics.Method)
		assert.True(t, second.Metrics.CacheHit)
		assert.Equal(t, int64(1), fake.calls.Load())
		assert.Equal(t, first.SummaryText, second.SummaryText)
	})

	t.Run("appended turn misses", func(t *testing.T) {
		fake := &fakeLLM{response: "summary"}
		e := NewEngine(fake, Config{})

		msgs := conversation(25, 50)
		e.Summarize(context.Background(), msgs, "deal-1")

		extended := append(append([]datatypes.Message{}, msgs...),
			datatypes.Message{Role: datatypes.RoleUser, Content: "and what about churn?"})
		res := e.Summarize(context.Background(), extended, "deal-1")

		assert.Equal(t, MethodLLM, res.Metrics.Method)
		assert.Equal(t, int64(2), fake.calls.Load())
	})

	t.Run("namespaces are separate", func(t *testing.T) {
		fake := &fakeLLM{response: "summary"}
		e := NewEngine(fake, Config{})

		msgs := conversation(25, 50)
		e.Summarize(context.Background(), msgs, "deal-1")
		res := e.Summarize(context.Background(), msgs, "deal-2")

		assert.False(t, res.Metrics.CacheHit)
		assert.Equal(t, int64(2), fake.calls.Load())
	})
}

func TestSummarizeFallbacks(t *testing.T) {
	t.Run("keyword fallback on LLM error", func(t *testing.T) {
		fake := &fakeLLM{err: fmt.Errorf("model unavailable")}
		e := NewEngine(fake, Config{})

		msgs := conversation(25, 50) // content mentions "revenue"
		res := e.Summarize(context.Background(), msgs, "deal-1")

		assert.Equal(t, MethodFallback, res.Metrics.Method)
		assert.True(t, res.Metrics.Success)
		assert.Contains(t, res.SummaryText, "financial figures")
		assert.Len(t, res.Messages, 11)
		assert.Equal(t, int64(1), e.FallbackCount())
	})

	t.Run("truncation when no keywords match", func(t *testing.T) {
		fake := &fakeLLM{err: fmt.Errorf("model unavailable")}
		e := NewEngine(fake, Config{})

		msgs := make([]datatypes.Message, 25)
		for i := range msgs {
			msgs[i] = datatypes.Message{Role: datatypes.RoleUser, Content: fmt.Sprintf("note %d", i)}
		}
		res := e.Summarize(context.Background(), msgs, "deal-1")

		assert.Equal(t, MethodTruncation, res.Metrics.Method)
		assert.True(t, res.Metrics.Success)
		assert.Contains(t, res.SummaryText, "15 earlier messages")
		assert.Len(t, res.Messages, 11)
	})

	t.Run("nil LLM client falls back", func(t *testing.T) {
		e := NewEngine(nil, Config{})

		res := e.Summarize(context.Background(), conversation(25, 50), "deal-1")

		assert.Equal(t, MethodFallback, res.Metrics.Method)
		assert.True(t, res.Metrics.Success)
	})
}

func TestSummarizeTimeout(t *testing.T) {
	// An always-slow generator must not stall the turn: the race falls
	// through to a fallback at the configured deadline.
	fake := &fakeLLM{response: "too late", delay: 10 * time.Second}
	e := NewEngine(fake, Config{Timeout: 100 * time.Millisecond})

	started := time.Now()
	res := e.Summarize(context.Background(), conversation(25, 50), "deal-1")
	elapsed := time.Since(started)

	assert.Equal(t, MethodFallback, res.Metrics.Method)
	assert.True(t, res.Metrics.Success)
	assert.Less(t, elapsed, 2*time.Second)
	assert.Len(t, res.Messages, 11)
}

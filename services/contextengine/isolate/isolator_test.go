// Copyright (C) 2025 DealDesk AI (engineering@dealdesk.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package isolate

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/dealdesk-ai/dealdesk/services/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsolateRoundTrip(t *testing.T) {
	iso := NewIsolator(Config{})

	// A payload the size of a real search response. The model-facing
	// summary must stay small while the full payload survives intact.
	payload := &search.SearchResponse{
		Results: []search.SearchResult{{
			Content:  strings.Repeat("due diligence finding ", 250), // ~5000 chars
			Score:    0.91,
			Citation: &search.Citation{Type: "10-K", Title: "Annual Report 2024", Page: 88},
		}},
	}

	out := iso.Isolate(context.Background(), ToolKindDocumentSearch, payload)

	require.NotEmpty(t, out.CallID)
	assert.Less(t, len(out.Summary), 300)
	assert.NotContains(t, out.Summary, "due diligence finding",
		"payload content must never reach the model-facing value")
	assert.Greater(t, out.FullTokens, out.SummaryTokens)

	full, err := iso.FullResult(out.CallID)
	require.NoError(t, err)
	assert.Same(t, payload, full)
}

func TestFullResultUnknownID(t *testing.T) {
	iso := NewIsolator(Config{})

	_, err := iso.FullResult("no-such-call")
	assert.Error(t, err)
}

func TestFullResultExpires(t *testing.T) {
	iso := NewIsolator(Config{CacheTTL: 10 * time.Millisecond})

	out := iso.Isolate(context.Background(), ToolKindUnknown, map[string]string{"ok": "yes"})
	time.Sleep(30 * time.Millisecond)

	_, err := iso.FullResult(out.CallID)
	assert.Error(t, err)
}

func TestSummarizers(t *testing.T) {
	t.Run("document search names sources", func(t *testing.T) {
		resp := &search.SearchResponse{Results: []search.SearchResult{
			{Citation: &search.Citation{Title: "Term Sheet"}},
			{Citation: &search.Citation{Title: "Q3 Financials"}},
		}}

		s := summarize(ToolKindDocumentSearch, resp)
		assert.Contains(t, s, "2 matches")
		assert.Contains(t, s, "Term Sheet")
		assert.Contains(t, s, "Q3 Financials")
	})

	t.Run("document search empty", func(t *testing.T) {
		s := summarize(ToolKindDocumentSearch, &search.SearchResponse{})
		assert.Contains(t, s, "no matches")
	})

	t.Run("qa lookup trims long answers", func(t *testing.T) {
		qa := &QAResult{Answer: strings.Repeat("a", 500), Source: "SPA draft"}

		s := summarize(ToolKindQALookup, qa)
		assert.Less(t, len(s), 300)
		assert.Contains(t, s, "SPA draft")
	})

	t.Run("qa lookup trims on rune boundaries", func(t *testing.T) {
		// Multi-byte runes placed so a byte-oriented cut would split one.
		qa := &QAResult{Answer: strings.Repeat("€", 300)}

		s := summarize(ToolKindQALookup, qa)
		assert.True(t, utf8.ValidString(s))
		assert.Contains(t, s, "…")
	})

	t.Run("financial metrics sorted stable", func(t *testing.T) {
		m := &MetricsResult{
			Period:  "Q3 2025",
			Metrics: map[string]float64{"revenue": 120e6, "ebitda": 31e6},
		}

		s := summarize(ToolKindFinancialMetrics, m)
		assert.Contains(t, s, "Q3 2025")
		assert.Less(t, strings.Index(s, "ebitda"), strings.Index(s, "revenue"))
	})

	t.Run("unknown kind reports field names only", func(t *testing.T) {
		raw := map[string]any{"status": "ok", "rows": []int{1, 2, 3}}

		s := summarize(ToolKindUnknown, raw)
		assert.Contains(t, s, "rows")
		assert.Contains(t, s, "status")
		assert.NotContains(t, s, "ok")
	})

	t.Run("mismatched shape falls through to generic", func(t *testing.T) {
		s := summarize(ToolKindFinancialMetrics, map[string]string{"oops": "wrong shape"})
		assert.Contains(t, s, "oops")
	})

	t.Run("error payload", func(t *testing.T) {
		s := summarize(ToolKindUnknown, fmt.Errorf("upstream 502"))
		assert.Contains(t, s, "failed")
		assert.Contains(t, s, "upstream 502")
	})
}

func TestTurnAccumulator(t *testing.T) {
	t.Run("empty turn", func(t *testing.T) {
		var acc TurnAccumulator
		assert.Equal(t, "saved=0;calls=0;percent=0", acc.Line())
	})

	t.Run("aggregates and formats", func(t *testing.T) {
		var acc TurnAccumulator
		acc.Record(&Isolated{FullTokens: 1000, SummaryTokens: 100})
		acc.Record(&Isolated{FullTokens: 500, SummaryTokens: 200})

		assert.Equal(t, 1200, acc.TokensSaved())
		assert.Equal(t, 2, acc.Calls())
		assert.Equal(t, "saved=1200;calls=2;percent=80", acc.Line())
	})

	t.Run("summary longer than payload counts zero saved", func(t *testing.T) {
		var acc TurnAccumulator
		acc.Record(&Isolated{FullTokens: 10, SummaryTokens: 50})

		assert.Equal(t, 0, acc.TokensSaved())
		assert.Equal(t, "saved=0;calls=1;percent=0", acc.Line())
	})
}

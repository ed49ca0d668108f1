// Copyright (C) 2025 DealDesk AI (engineering@dealdesk.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package isolate

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/dealdesk-ai/dealdesk/services/search"
)

// ToolKind names a tool whose results the isolator knows how to
// summarize. Unknown kinds are legal and get the generic summarizer, so
// new tools work before they get a dedicated one.
type ToolKind string

const (
	// ToolKindDocumentSearch is a knowledge-base document search.
	ToolKindDocumentSearch ToolKind = "document_search"

	// ToolKindQALookup is a question answered from a specific document.
	ToolKindQALookup ToolKind = "qa_lookup"

	// ToolKindFinancialMetrics is a structured financial-metrics fetch.
	ToolKindFinancialMetrics ToolKind = "financial_metrics"

	// ToolKindUnknown routes to the generic summarizer.
	ToolKindUnknown ToolKind = "unknown"
)

// QAResult is the payload shape of a Q&A lookup tool.
type QAResult struct {
	Answer     string  `json:"answer"`
	Source     string  `json:"source,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// MetricsResult is the payload shape of a financial-metrics tool.
type MetricsResult struct {
	Period  string             `json:"period,omitempty"`
	Metrics map[string]float64 `json:"metrics"`
}

// maxAnswerChars bounds how much of a Q&A answer survives into the
// summary.
const maxAnswerChars = 200

// summarize dispatches to the summarizer for the tool kind. A payload
// that does not match the kind's expected shape falls through to the
// generic summarizer rather than failing the isolation.
func summarize(kind ToolKind, raw any) string {
	switch kind {
	case ToolKindDocumentSearch:
		if resp, ok := raw.(*search.SearchResponse); ok && resp != nil {
			return summarizeDocumentSearch(resp)
		}
	case ToolKindQALookup:
		if qa, ok := raw.(*QAResult); ok && qa != nil {
			return summarizeQALookup(qa)
		}
	case ToolKindFinancialMetrics:
		if m, ok := raw.(*MetricsResult); ok && m != nil {
			return summarizeFinancialMetrics(m)
		}
	}
	return summarizeGeneric(raw)
}

// summarizeDocumentSearch names the hit count and the top citations, not
// the content.
func summarizeDocumentSearch(resp *search.SearchResponse) string {
	if len(resp.Results) == 0 {
		return "Document search returned no matches."
	}

	var titles []string
	for _, r := range resp.Results {
		if r.Citation != nil && r.Citation.Title != "" {
			titles = append(titles, r.Citation.Title)
		}
		if len(titles) == 3 {
			break
		}
	}

	s := fmt.Sprintf("Document search returned %d matches", len(resp.Results))
	if len(titles) > 0 {
		s += "; top sources: " + strings.Join(titles, ", ")
	}
	return s + "."
}

// summarizeQALookup keeps the answer itself, trimmed, with its source.
func summarizeQALookup(qa *QAResult) string {
	answer := strings.TrimSpace(qa.Answer)
	if answer == "" {
		return "Q&A lookup returned no answer."
	}
	if runes := []rune(answer); len(runes) > maxAnswerChars {
		answer = string(runes[:maxAnswerChars]) + "…"
	}
	if qa.Source != "" {
		return fmt.Sprintf("Answer: %s (source: %s)", answer, qa.Source)
	}
	return "Answer: " + answer
}

// summarizeFinancialMetrics lists metric names with values, sorted for a
// stable rendering.
func summarizeFinancialMetrics(m *MetricsResult) string {
	if len(m.Metrics) == 0 {
		return "Financial metrics lookup returned no metrics."
	}

	names := make([]string, 0, len(m.Metrics))
	for name := range m.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%.4g", name, m.Metrics[name]))
	}

	s := "Financial metrics"
	if m.Period != "" {
		s += " for " + m.Period
	}
	return s + ": " + strings.Join(parts, ", ")
}

// summarizeGeneric reports shape, not content: success plus the
// top-level field names of the payload. It must work on anything.
func summarizeGeneric(raw any) string {
	if raw == nil {
		return "Tool call completed with an empty result."
	}
	if err, ok := raw.(error); ok {
		return "Tool call failed: " + err.Error()
	}

	b, err := json.Marshal(raw)
	if err != nil {
		return fmt.Sprintf("Tool call completed (unserializable %T result).", raw)
	}

	var m map[string]json.RawMessage
	if json.Unmarshal(b, &m) == nil && len(m) > 0 {
		fields := make([]string, 0, len(m))
		for k := range m {
			fields = append(fields, k)
		}
		sort.Strings(fields)
		return fmt.Sprintf("Tool call completed with fields: %s.", strings.Join(fields, ", "))
	}

	return fmt.Sprintf("Tool call completed (%d-byte result).", len(b))
}

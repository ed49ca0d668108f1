// Copyright (C) 2025 DealDesk AI (engineering@dealdesk.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package tokens provides a cheap, deterministic token estimator.
//
// The estimator trades precision for portability: a real tokenizer is not
// available in every runtime target this engine must support, so every
// component budgets against the same characters-per-token heuristic. The
// numbers only need to be consistent, not exact.
package tokens

import "github.com/dealdesk-ai/dealdesk/services/contextengine/datatypes"

const (
	// CharsPerToken approximates characters per token for English prose.
	CharsPerToken = 4

	// MessageOverhead accounts for role and framing cost when a string is
	// sent as a chat message rather than raw text.
	MessageOverhead = 4
)

// EstimateText estimates the token count of raw text.
//
// Pure and deterministic; returns 0 for the empty string and is never
// negative.
func EstimateText(s string) int {
	return len(s) / CharsPerToken
}

// EstimateMessage estimates the token count of a whole message, including
// the fixed per-message framing overhead. A message with empty content
// still costs MessageOverhead.
func EstimateMessage(m datatypes.Message) int {
	n := EstimateText(m.Content) + MessageOverhead
	for _, tc := range m.ToolCalls {
		n += EstimateText(tc.Name) + EstimateText(tc.Arguments)
	}
	return n
}

// EstimateMessages sums EstimateMessage over a history.
func EstimateMessages(msgs []datatypes.Message) int {
	total := 0
	for _, m := range msgs {
		total += EstimateMessage(m)
	}
	return total
}

// Copyright (C) 2025 DealDesk AI (engineering@dealdesk.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm defines the text-generation boundary.
//
// The context engine treats generation as an opaque remote service: the
// summarization engine and the semantic intent fallback both go through
// LLMClient and never depend on a concrete backend.
package llm

import "context"

// GenerationParams are optional sampling controls. Nil fields use the
// backend's defaults.
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// LLMClient is the standard interface for any generation backend.
//
// Generate sends a single prompt and returns the assistant text. Callers
// own timeout and cancellation via ctx; implementations must honor it.
//
// Thread Safety: Implementations must be safe for concurrent use.
type LLMClient interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
}

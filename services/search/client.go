// Copyright (C) 2025 DealDesk AI (engineering@dealdesk.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package search defines the hybrid-search boundary consumed by the
// retrieval orchestrator.
//
// The engine treats search as an opaque remote service. Two
// implementations ship: an HTTP client for the standalone hybrid-search
// service, and a Weaviate-backed client that issues hybrid GraphQL
// queries directly. The orchestrator degrades gracefully on any error
// from either, so implementations report failures instead of retrying.
package search

import (
	"context"
	"fmt"
)

// SearchRequest is the query sent to a hybrid search backend.
type SearchRequest struct {
	// Query is the raw user question.
	Query string `json:"query"`

	// Namespace scopes the search to one tenant/deal. Required: results
	// must never cross tenants.
	Namespace string `json:"namespace"`

	// NumResults caps how many ranked results come back.
	NumResults int `json:"numResults"`
}

// Citation points a result back at its source document.
type Citation struct {
	Type  string `json:"type"`
	Title string `json:"title"`
	Page  int    `json:"page,omitempty"`
}

// SearchResult is one ranked hit.
type SearchResult struct {
	Content  string    `json:"content"`
	Score    float64   `json:"score"`
	Citation *Citation `json:"citation,omitempty"`
}

// SearchResponse is the full backend answer.
type SearchResponse struct {
	Results   []SearchResult `json:"results"`
	Entities  []string       `json:"entities,omitempty"`
	LatencyMs float64        `json:"latencyMs"`
}

// HybridSearcher is the contract for retrieving ranked knowledge-base
// hits for a query within a namespace.
//
// Thread Safety: Implementations must be safe for concurrent use.
type HybridSearcher interface {
	// Search executes one hybrid (lexical + vector) query. An empty
	// result slice with a nil error is a valid "nothing relevant" answer.
	Search(ctx context.Context, req *SearchRequest) (*SearchResponse, error)
}

// SearchError wraps a failed search call with its HTTP status, letting
// callers distinguish transport failures from backend rejections when
// deciding what to log. The orchestrator treats both the same way:
// degrade, never abort the turn.
type SearchError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *SearchError) Error() string {
	return fmt.Sprintf("search error (status %d): %s", e.StatusCode, e.Message)
}

// IsSearchError checks if an error is a *SearchError.
func IsSearchError(err error) bool {
	_, ok := err.(*SearchError)
	return ok
}

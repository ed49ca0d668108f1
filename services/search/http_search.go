// Copyright (C) 2025 DealDesk AI (engineering@dealdesk.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var httpSearchTracer = otel.Tracer("dealdesk.search.http")

// DefaultSearchTimeout bounds a single search call. The reference design
// had no explicit timeout and leaned on transport failure; a hung backend
// would stall the whole turn, so every request here carries one.
const DefaultSearchTimeout = 10 * time.Second

// HTTPSearcher calls the standalone hybrid-search service over JSON/HTTP.
//
// Thread Safety: Safe for concurrent use.
type HTTPSearcher struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
}

// NewHTTPSearcher creates an HTTP search client.
//
// The service URL is read from SEARCH_SERVICE_URL, defaulting to
// "http://dealdesk-search:8000" when unset. Pass timeout <= 0 for
// DefaultSearchTimeout.
func NewHTTPSearcher(timeout time.Duration) *HTTPSearcher {
	baseURL := os.Getenv("SEARCH_SERVICE_URL")
	if baseURL == "" {
		baseURL = "http://dealdesk-search:8000"
		slog.Warn("SEARCH_SERVICE_URL not set, using default", "url", baseURL)
	}
	if timeout <= 0 {
		timeout = DefaultSearchTimeout
	}
	return &HTTPSearcher{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{},
		timeout: timeout,
	}
}

// Search implements HybridSearcher.
//
// Any non-200 status or malformed body is returned as an error; the
// caller decides whether that degrades the turn.
func (s *HTTPSearcher) Search(ctx context.Context, req *SearchRequest) (*SearchResponse, error) {
	ctx, span := httpSearchTracer.Start(ctx, "HTTPSearcher.Search")
	defer span.End()

	if req == nil || req.Query == "" {
		err := fmt.Errorf("query is required")
		span.RecordError(err)
		span.SetStatus(codes.Error, "empty query")
		return nil, err
	}

	span.SetAttributes(
		attribute.String("search.namespace", req.Namespace),
		attribute.Int("search.num_results", req.NumResults),
	)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	payloadBytes, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search request: %w", err)
	}

	searchURL := s.baseURL + "/search/hybrid"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, searchURL, bytes.NewBuffer(payloadBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport failure")
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		span.SetAttributes(attribute.Int("search.status_code", resp.StatusCode))
		span.SetStatus(codes.Error, "non-200 from search service")
		return nil, &SearchError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	var searchResp SearchResponse
	if err := json.Unmarshal(body, &searchResp); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}

	span.SetAttributes(attribute.Int("search.results_count", len(searchResp.Results)))
	return &searchResp, nil
}

var _ HybridSearcher = (*HTTPSearcher)(nil)

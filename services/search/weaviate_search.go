// Copyright (C) 2025 DealDesk AI (engineering@dealdesk.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var weaviateSearchTracer = otel.Tracer("dealdesk.search.weaviate")

// chunkClassName is the Weaviate class holding ingested document chunks.
const chunkClassName = "DealChunk"

// WeaviateSearcher issues hybrid (BM25 + vector) GraphQL queries directly
// against a Weaviate instance, for deployments that skip the standalone
// search service.
//
// Thread Safety: Safe for concurrent use.
type WeaviateSearcher struct {
	client  *weaviate.Client
	timeout time.Duration
}

// NewWeaviateSearcher wraps a Weaviate client as a HybridSearcher.
// Pass timeout <= 0 for DefaultSearchTimeout.
func NewWeaviateSearcher(client *weaviate.Client, timeout time.Duration) *WeaviateSearcher {
	if timeout <= 0 {
		timeout = DefaultSearchTimeout
	}
	return &WeaviateSearcher{client: client, timeout: timeout}
}

// chunkQueryResponse mirrors the GraphQL response shape for DealChunk.
type chunkQueryResponse struct {
	Get struct {
		DealChunk []struct {
			Content    string   `json:"content"`
			DocTitle   string   `json:"doc_title"`
			DocType    string   `json:"doc_type"`
			Page       int      `json:"page"`
			Entities   []string `json:"entities"`
			Additional struct {
				Score string `json:"score"`
			} `json:"_additional"`
		} `json:"DealChunk"`
	} `json:"Get"`
}

// Search implements HybridSearcher.
//
// The namespace is enforced as a where-filter on the chunk class, so
// identical queries in different deals can never share results.
func (s *WeaviateSearcher) Search(ctx context.Context, req *SearchRequest) (*SearchResponse, error) {
	ctx, span := weaviateSearchTracer.Start(ctx, "WeaviateSearcher.Search")
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

	started := time.Now()

	hybrid := (&graphql.HybridArgumentBuilder{}).
		WithQuery(req.Query).
		WithAlpha(0.5)

	where := filters.Where().
		WithPath([]string{"namespace"}).
		WithOperator(filters.Equal).
		WithValueString(req.Namespace)

	fields := []graphql.Field{
		{Name: "content"},
		{Name: "doc_title"},
		{Name: "doc_type"},
		{Name: "page"},
		{Name: "entities"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "score"}}},
	}

	resp, err := s.client.GraphQL().Get().
		WithClassName(chunkClassName).
		WithHybrid(hybrid).
		WithWhere(where).
		WithFields(fields...).
		WithLimit(req.NumResults).
		Do(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "weaviate query failed")
		return nil, fmt.Errorf("weaviate hybrid query failed: %w", err)
	}

	parsed, err := parseGraphQLResponse[chunkQueryResponse](resp)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to parse weaviate response: %w", err)
	}

	out := &SearchResponse{LatencyMs: float64(time.Since(started).Milliseconds())}
	seen := make(map[string]bool)
	for _, chunk := range parsed.Get.DealChunk {
		score, _ := strconv.ParseFloat(chunk.Additional.Score, 64)
		result := SearchResult{
			Content: chunk.Content,
			Score:   score,
		}
		if chunk.DocTitle != "" {
			result.Citation = &Citation{
				Type:  chunk.DocType,
				Title: chunk.DocTitle,
				Page:  chunk.Page,
			}
		}
		out.Results = append(out.Results, result)
		for _, e := range chunk.Entities {
			if !seen[e] {
				seen[e] = true
				out.Entities = append(out.Entities, e)
			}
		}
	}

	span.SetAttributes(attribute.Int("search.results_count", len(out.Results)))
	return out, nil
}

// parseGraphQLResponse converts Weaviate's dynamic response payload into
// a typed struct via the marshal/unmarshal round trip the client API
// requires.
func parseGraphQLResponse[T any](resp *models.GraphQLResponse) (*T, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil GraphQL response")
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("GraphQL error: %s", resp.Errors[0].Message)
	}

	respBytes, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response data: %w", err)
	}

	var parsed T
	if err := json.Unmarshal(respBytes, &parsed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response data: %w", err)
	}
	return &parsed, nil
}

var _ HybridSearcher = (*WeaviateSearcher)(nil)

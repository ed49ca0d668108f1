// Copyright (C) 2025 DealDesk AI (engineering@dealdesk.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// contextd is the context engineering service for the DealDesk assistant.
// It exposes the assemble/stats/tool-result endpoints and Prometheus
// metrics over HTTP.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/dealdesk-ai/dealdesk/pkg/logging"
	"github.com/dealdesk-ai/dealdesk/services/contextengine"
	"github.com/dealdesk-ai/dealdesk/services/contextengine/assemble"
	"github.com/dealdesk-ai/dealdesk/services/contextengine/intent"
	"github.com/dealdesk-ai/dealdesk/services/contextengine/isolate"
	"github.com/dealdesk-ai/dealdesk/services/contextengine/observability"
	"github.com/dealdesk-ai/dealdesk/services/contextengine/retrieval"
	"github.com/dealdesk-ai/dealdesk/services/contextengine/summarize"
	"github.com/dealdesk-ai/dealdesk/services/gateway"
	"github.com/dealdesk-ai/dealdesk/services/llm"
	"github.com/dealdesk-ai/dealdesk/services/search"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"google.golang.org/grpc/credentials/insecure"

	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
)

const serviceName = "contextd"

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "dealdesk-otel-collector:4317"
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

// newSearcher picks the search backend from the environment.
//
// SEARCH_BACKEND=weaviate queries Weaviate directly; anything else uses
// the standalone hybrid-search service over HTTP.
func newSearcher() search.HybridSearcher {
	if os.Getenv("SEARCH_BACKEND") != "weaviate" {
		return search.NewHTTPSearcher(0)
	}

	weaviateURL := strings.Trim(os.Getenv("WEAVIATE_SERVICE_URL"), "\"' ")
	parsedURL, err := url.Parse(weaviateURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		slog.Warn("WEAVIATE_SERVICE_URL is invalid, falling back to the HTTP search service",
			"url", weaviateURL, "error", err)
		return search.NewHTTPSearcher(0)
	}

	client, err := weaviate.NewClient(weaviate.Config{
		Host:   parsedURL.Host,
		Scheme: parsedURL.Scheme,
	})
	if err != nil {
		slog.Error("Failed to create Weaviate client, falling back to the HTTP search service",
			"error", err)
		return search.NewHTTPSearcher(0)
	}
	return search.NewWeaviateSearcher(client, 0)
}

// newLLMClient builds the text generator, or nil when no backend is
// usable. The pipeline runs on its deterministic fallbacks without one.
func newLLMClient() llm.LLMClient {
	client, err := llm.NewOpenAIClient()
	if err != nil {
		slog.Warn("No LLM backend available; summarization will use deterministic fallbacks",
			"error", err)
		return nil
	}
	return client
}

func serve(configPath, port string) error {
	cfg, err := contextengine.LoadConfig(configPath)
	if err != nil {
		return err
	}

	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	metrics := observability.InitMetrics()
	generator := newLLMClient()

	var semantic intent.SemanticClassifier
	if generator != nil {
		semantic = intent.NewLLMClassifier(generator)
	}

	engine := summarize.NewEngine(generator, cfg.SummarizeConfig())
	orchestrator := retrieval.NewOrchestrator(newSearcher(),
		intent.NewHybridClassifier(semantic), cfg.RetrievalConfig())
	isolator := isolate.NewIsolator(cfg.IsolateConfig())

	router := gin.Default()
	router.Use(otelgin.Middleware(serviceName))

	gateway.SetupRoutes(router, gateway.Pipeline{
		Assembler:    assemble.NewAssembler(engine, orchestrator),
		Orchestrator: orchestrator,
		Engine:       engine,
		Isolator:     isolator,
		Metrics:      metrics,
	})

	slog.Info("Starting the context service", "port", port)
	return router.Run(":" + port)
}

func main() {
	logging.Setup(serviceName)

	var configPath string
	var port string

	rootCmd := &cobra.Command{
		Use:   "contextd",
		Short: "DealDesk conversation context service",
		Long: "contextd prepares conversation context for the DealDesk assistant: " +
			"selective retrieval, conversation summarization, and tool-result isolation.",
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath, port)
		},
	}
	serveCmd.Flags().StringVar(&configPath, "config", os.Getenv("CONTEXTD_CONFIG"),
		"path to the engine YAML config")
	serveCmd.Flags().StringVar(&port, "port", defaultPort(), "HTTP listen port")

	rootCmd.AddCommand(serveCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func defaultPort() string {
	if p := os.Getenv("CONTEXTD_PORT"); p != "" {
		return p
	}
	return "12300"
}

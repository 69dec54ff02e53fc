// Package otelexport ships spans to an OTLP collector (Jaeger, Grafana Tempo,
// Datadog, ...) over gRPC or HTTP.
package otelexport

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Config configures the OpenTelemetry OTLP exporter.
type Config struct {
	Endpoint string            // OTLP endpoint (e.g. "localhost:4317")
	Protocol string            // "grpc" (default) or "http"
	Insecure bool              // skip TLS for local dev
	Headers  map[string]string // extra headers (auth tokens, etc.)
}

// Exporter wraps an OTLP span exporter.
type Exporter struct {
	exporter sdktrace.SpanExporter
}

// New creates an OTLP exporter with the given config.
func New(ctx context.Context, cfg Config) (*Exporter, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("OTLP endpoint is required")
	}

	var (
		exporter sdktrace.SpanExporter
		err      error
	)
	switch cfg.Protocol {
	case "http":
		opts := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(cfg.Endpoint),
		}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
		}
		exporter, err = otlptracehttp.New(ctx, opts...)
	case "", "grpc":
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
		}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unknown OTLP protocol %q", cfg.Protocol)
	}
	if err != nil {
		return nil, fmt.Errorf("otel exporter: %w", err)
	}
	return &Exporter{exporter: exporter}, nil
}

// ProviderOption attaches the exporter to a TracerProvider through a batcher.
func (e *Exporter) ProviderOption() sdktrace.TracerProviderOption {
	return sdktrace.WithBatcher(e.exporter,
		sdktrace.WithMaxExportBatchSize(100),
		sdktrace.WithBatchTimeout(5*time.Second),
	)
}

// Shutdown flushes and closes the exporter. Normally the TracerProvider's
// Shutdown does this; call it only when the exporter was never attached.
func (e *Exporter) Shutdown(ctx context.Context) error {
	if e == nil {
		return nil
	}
	slog.Info("otel exporter shutting down")
	return e.exporter.Shutdown(ctx)
}

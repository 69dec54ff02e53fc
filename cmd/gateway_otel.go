//go:build otel

package cmd

import (
	"context"
	"log/slog"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/nextlevelbuilder/aivoice/internal/config"
	"github.com/nextlevelbuilder/aivoice/internal/tracing/otelexport"
)

// initOTelExporter creates the OpenTelemetry OTLP exporter when the
// telemetry config is enabled. Only compiled with -tags otel.
func initOTelExporter(ctx context.Context, cfg *config.Config) []sdktrace.TracerProviderOption {
	if !cfg.Telemetry.Enabled || cfg.Telemetry.Endpoint == "" {
		slog.Debug("OTel export available but not enabled (set telemetry.enabled + telemetry.endpoint)")
		return nil
	}

	otelExp, err := otelexport.New(ctx, otelexport.Config{
		Endpoint: cfg.Telemetry.Endpoint,
		Protocol: cfg.Telemetry.Protocol,
		Insecure: cfg.Telemetry.Insecure,
		Headers:  cfg.Telemetry.Headers,
	})
	if err != nil {
		slog.Warn("failed to create OTel exporter", "error", err)
		return nil
	}

	slog.Info("OpenTelemetry OTLP export enabled",
		"endpoint", cfg.Telemetry.Endpoint,
		"protocol", cfg.Telemetry.Protocol,
	)
	return []sdktrace.TracerProviderOption{otelExp.ProviderOption()}
}

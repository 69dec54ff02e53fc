package otelexport

import (
	"context"
	"testing"
)

func TestNew_EmptyEndpoint(t *testing.T) {
	_, err := New(context.Background(), Config{})
	if err == nil {
		t.Error("expected error for empty endpoint")
	}
}

func TestNew_UnknownProtocol(t *testing.T) {
	_, err := New(context.Background(), Config{Endpoint: "localhost:4317", Protocol: "udp"})
	if err == nil {
		t.Error("expected error for unknown protocol")
	}
}

// Exporters connect lazily, so construction succeeds without a collector.
func TestNew_Protocols(t *testing.T) {
	for _, protocol := range []string{"", "grpc", "http"} {
		t.Run(protocol, func(t *testing.T) {
			exp, err := New(context.Background(), Config{
				Endpoint: "localhost:4317",
				Protocol: protocol,
				Insecure: true,
				Headers:  map[string]string{"x-api-key": "k"},
			})
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if exp.ProviderOption() == nil {
				t.Error("nil provider option")
			}
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			_ = exp.Shutdown(ctx)
		})
	}
}

func TestExporter_Shutdown_NilExporter(t *testing.T) {
	var exp *Exporter
	if err := exp.Shutdown(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

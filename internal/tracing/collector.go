// Package tracing installs the process TracerProvider. Spans from the
// pipeline, character cache and voice dispatcher always pass through the
// Collector, which logs failed and slow spans; an OTLP exporter can be added
// on top (see otelexport).
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const (
	defaultSlowThreshold = 5 * time.Second
	previewMaxLen        = 200
)

// Stats counts the spans seen by a Collector.
type Stats struct {
	Spans  int64
	Errors int64
	Slow   int64
}

// Collector is a span processor that logs failed and slow spans through slog
// and keeps per-name counters.
type Collector struct {
	slow atomic.Int64 // threshold, nanoseconds

	spans  atomic.Int64
	errors atomic.Int64
	slowN  atomic.Int64

	mu     sync.Mutex
	byName map[string]int64
}

var _ sdktrace.SpanProcessor = (*Collector)(nil)

// NewCollector creates a collector. slowThreshold <= 0 uses 5s.
func NewCollector(slowThreshold time.Duration) *Collector {
	c := &Collector{byName: make(map[string]int64)}
	c.SetSlowThreshold(slowThreshold)
	return c
}

// SetSlowThreshold changes the duration above which a span is logged as slow.
func (c *Collector) SetSlowThreshold(d time.Duration) {
	if d <= 0 {
		d = defaultSlowThreshold
	}
	c.slow.Store(int64(d))
}

// OnStart implements sdktrace.SpanProcessor.
func (c *Collector) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

// OnEnd implements sdktrace.SpanProcessor.
func (c *Collector) OnEnd(s sdktrace.ReadOnlySpan) {
	c.spans.Add(1)
	c.mu.Lock()
	c.byName[s.Name()]++
	c.mu.Unlock()

	dur := s.EndTime().Sub(s.StartTime())
	attrs := spanAttrs(s.Attributes())

	if s.Status().Code == codes.Error {
		c.errors.Add(1)
		slog.Warn("tracing: span failed",
			append([]any{"span", s.Name(), "duration_ms", dur.Milliseconds(), "error", truncatePreview(s.Status().Description)}, attrs...)...)
		return
	}
	if dur > time.Duration(c.slow.Load()) {
		c.slowN.Add(1)
		slog.Info("tracing: slow span",
			append([]any{"span", s.Name(), "duration_ms", dur.Milliseconds()}, attrs...)...)
	}
}

// Shutdown implements sdktrace.SpanProcessor.
func (c *Collector) Shutdown(context.Context) error { return nil }

// ForceFlush implements sdktrace.SpanProcessor.
func (c *Collector) ForceFlush(context.Context) error { return nil }

// Stats returns the counters.
func (c *Collector) Stats() Stats {
	return Stats{Spans: c.spans.Load(), Errors: c.errors.Load(), Slow: c.slowN.Load()}
}

// Count returns how many spans with the given name have ended.
func (c *Collector) Count(name string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.byName[name]
}

// Setup builds a TracerProvider that feeds the collector plus any extra
// options (exporters), and installs it as the global provider.
func Setup(ctx context.Context, serviceName, version string, collector *Collector, extra ...sdktrace.TracerProviderOption) (*sdktrace.TracerProvider, error) {
	if serviceName == "" {
		serviceName = "aivoice"
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, err
	}

	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if collector != nil {
		opts = append(opts, sdktrace.WithSpanProcessor(collector))
	}
	opts = append(opts, extra...)

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	return tp, nil
}

func spanAttrs(kvs []attribute.KeyValue) []any {
	out := make([]any, 0, len(kvs)*2)
	for _, kv := range kvs {
		out = append(out, string(kv.Key), truncatePreview(kv.Value.Emit()))
	}
	return out
}

func truncatePreview(s string) string {
	if len(s) <= previewMaxLen {
		return s
	}
	cut := previewMaxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

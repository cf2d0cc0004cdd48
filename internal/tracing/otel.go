// Package tracing provides distributed tracing support using OpenTelemetry.
package tracing

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// OTelConfig holds OpenTelemetry configuration
type OTelConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	Enabled        bool
}

// Global tracer
var globalTracer trace.Tracer

// InitOTel initializes OpenTelemetry with the given configuration.
// Returns a shutdown function that should be called on application exit.
func InitOTel(cfg OTelConfig) (func(context.Context) error, error) {
	if !cfg.Enabled {
		// Return no-op shutdown
		return func(context.Context) error { return nil }, nil
	}

	// Create stdout exporter for now (can be replaced with OTLP exporter)
	exporter, err := stdouttrace.New(
		stdouttrace.WithWriter(os.Stderr),
		stdouttrace.WithPrettyPrint(),
	)
	if err != nil {
		return nil, err
	}

	// Create resource with service information
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			attribute.String("environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, err
	}

	// Create tracer provider
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	// Set global tracer provider
	otel.SetTracerProvider(tp)

	// Create global tracer
	globalTracer = tp.Tracer(cfg.ServiceName)

	// Return shutdown function
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return tp.Shutdown(ctx)
	}, nil
}

// GetTracer returns the global tracer
func GetTracer() trace.Tracer {
	if globalTracer == nil {
		// Return no-op tracer if not initialized
		return otel.Tracer("noop")
	}
	return globalTracer
}

// SpanKind represents the role of a span
type SpanKind string

// Span kinds for categorizing trace spans
const (
	SpanKindParse    SpanKind = "parse"
	SpanKindAnalysis SpanKind = "analysis"
	SpanKindOracle   SpanKind = "oracle"
	SpanKindTool     SpanKind = "tool"
	SpanKindAPI      SpanKind = "api"
	SpanKindInternal SpanKind = "internal"
)

// ParseSpan starts a new span for parsing a single log source
func ParseSpan(ctx context.Context, source string) (context.Context, trace.Span) {
	return GetTracer().Start(ctx, "clarity.parse",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("clarity.source", source),
			attribute.String("clarity.span.kind", string(SpanKindParse)),
		),
	)
}

// AnalysisSpan starts a new span covering a full analysis run
func AnalysisSpan(ctx context.Context, sourceCount int) (context.Context, trace.Span) {
	return GetTracer().Start(ctx, "clarity.analysis",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.Int("clarity.source.count", sourceCount),
			attribute.String("clarity.span.kind", string(SpanKindAnalysis)),
		),
	)
}

// OracleSpan starts a new span for an oracle consultation
func OracleSpan(ctx context.Context, model string) (context.Context, trace.Span) {
	return GetTracer().Start(ctx, "clarity.oracle",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("clarity.oracle.model", model),
			attribute.String("clarity.span.kind", string(SpanKindOracle)),
		),
	)
}

// ToolSpan starts a new span for a remediation tool execution
func ToolSpan(ctx context.Context, toolName string) (context.Context, trace.Span) {
	return GetTracer().Start(ctx, "clarity.tool."+toolName,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("clarity.tool.name", toolName),
			attribute.String("clarity.span.kind", string(SpanKindTool)),
		),
	)
}

// APISpan starts a new span for an outbound HTTP call
func APISpan(ctx context.Context, method, path string) (context.Context, trace.Span) {
	return GetTracer().Start(ctx, "clarity.api."+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.url", path),
			attribute.String("clarity.span.kind", string(SpanKindAPI)),
		),
	)
}

// RecordError records an error on the span
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("error", true))
	}
}

// SetSuccess marks the span as successful
func SetSuccess(span trace.Span) {
	span.SetAttributes(attribute.Bool("clarity.success", true))
}

// SetEventCounts records parse output volume on a span
func SetEventCounts(span trace.Span, parsed, malformed int) {
	span.SetAttributes(
		attribute.Int("clarity.events.parsed", parsed),
		attribute.Int("clarity.events.malformed", malformed),
	)
}

// SetToolResult records the result type of a tool execution
func SetToolResult(span trace.Span, resultType string, itemCount int) {
	span.SetAttributes(
		attribute.String("clarity.result.type", resultType),
		attribute.Int("clarity.result.count", itemCount),
	)
}

// TraceInfo provides trace and span IDs for audit logging and HTTP header propagation
type TraceInfo struct {
	TraceID      string
	SpanID       string
	ParentSpanID string
}

// HTTP headers for trace propagation
const (
	TraceIDHeader      = "X-Trace-ID"
	SpanIDHeader       = "X-Span-ID"
	ParentSpanIDHeader = "X-Parent-Span-ID"
	RequestIDHeader    = "X-Request-ID"
)

// NewTraceInfo creates a new TraceInfo with generated IDs
func NewTraceInfo() *TraceInfo {
	return &TraceInfo{
		TraceID: generateID(),
		SpanID:  generateShortID(),
	}
}

// NewSpan creates a child TraceInfo under the same trace
func (t *TraceInfo) NewSpan() *TraceInfo {
	return &TraceInfo{
		TraceID:      t.TraceID,
		SpanID:       generateShortID(),
		ParentSpanID: t.SpanID,
	}
}

// generateID creates a 32-char hex string for trace IDs
func generateID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "00000000000000000000000000000000"
	}
	return hex.EncodeToString(b)
}

// generateShortID creates a 16-char hex string for span IDs
func generateShortID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "0000000000000000"
	}
	return hex.EncodeToString(b)
}

// Headers returns trace info as HTTP headers for propagation
func (t *TraceInfo) Headers() map[string]string {
	headers := map[string]string{
		TraceIDHeader:   t.TraceID,
		SpanIDHeader:    t.SpanID,
		RequestIDHeader: t.TraceID,
	}
	if t.ParentSpanID != "" {
		headers[ParentSpanIDHeader] = t.ParentSpanID
	}
	return headers
}

// FromContext extracts trace information from context for audit logging
func FromContext(ctx context.Context) *TraceInfo {
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.SpanContext().IsValid() {
		return &TraceInfo{}
	}

	sc := span.SpanContext()
	return &TraceInfo{
		TraceID: sc.TraceID().String(),
		SpanID:  sc.SpanID().String(),
	}
}

// Package tracing wires OpenTelemetry spans for the relay. Until InitTracer
// installs an exporter every span handed out is a no-op.
package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/folio/contact-relay/config"
	"github.com/folio/contact-relay/pkg/logger"
)

const initTimeout = 10 * time.Second

var tracer trace.Tracer

type ShutdownFunc func(context.Context) error

func noopShutdown(context.Context) error { return nil }

// sampler keeps the caller's sampling decision and samples root spans at ratio
func sampler(ratio float64) sdktrace.Sampler {
	switch {
	case ratio >= 1:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case ratio <= 0:
		return sdktrace.ParentBased(sdktrace.NeverSample())
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	}
}

func serviceResource(ctx context.Context, cfg config.ObservabilityConfig, environment string) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceNamespace(cfg.ServiceNamespace),
		semconv.ServiceVersion(cfg.ServiceVersion),
		attribute.String("deployment.environment.name", environment),
	}
	if cfg.ServiceInstanceID != "" {
		attrs = append(attrs, semconv.ServiceInstanceID(cfg.ServiceInstanceID))
	}
	return resource.New(ctx, resource.WithAttributes(attrs...))
}

// InitTracer exports spans over OTLP/HTTP to cfg.ExporterEndpoint.
// An empty endpoint leaves tracing off.
func InitTracer(cfg config.ObservabilityConfig, environment string) (ShutdownFunc, error) {
	if cfg.ExporterEndpoint == "" {
		logger.Info("Tracing disabled, no exporter endpoint configured")
		return noopShutdown, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.ExporterEndpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	res, err := serviceResource(ctx, cfg, environment)
	if err != nil {
		return nil, fmt.Errorf("build trace resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(2*time.Second),
			sdktrace.WithExportTimeout(5*time.Second),
		),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.TraceSampleRatio)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	tracer = tp.Tracer(cfg.ServiceName)

	logger.Info("Tracing enabled",
		zap.String("service", cfg.ServiceName),
		zap.String("endpoint", cfg.ExporterEndpoint),
		zap.Float64("sample_ratio", cfg.TraceSampleRatio),
		zap.String("environment", environment))

	return tp.Shutdown, nil
}

// StartSpan opens a child span of whatever span ctx carries
func StartSpan(ctx context.Context, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(context.Background())
	}
	return tracer.Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// EndSpan marks the span failed when err is set, then ends it
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

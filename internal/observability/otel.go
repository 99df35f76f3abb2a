// Package observability wires OpenTelemetry tracing for the server binaries.
package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"

	"github.com/clinical-kg-server/internal/domain"
)

// ServiceInfo describes the process in exported spans.
type ServiceInfo struct {
	Name        string
	Version     string
	Environment string
	// SpanWriter receives stdout-exporter output. Defaults to os.Stderr so
	// the stdio MCP transport keeps exclusive use of stdout.
	SpanWriter io.Writer
}

// ShutdownFunc flushes and stops the tracer provider.
type ShutdownFunc func(context.Context) error

func noopShutdown(context.Context) error { return nil }

// InitTracing installs a global tracer provider. With tracing disabled it
// returns a no-op shutdown and leaves the global provider untouched.
func InitTracing(ctx context.Context, cfg domain.TracingConfig, info ServiceInfo, logger *logrus.Logger) (ShutdownFunc, error) {
	if !cfg.Enabled {
		return noopShutdown, nil
	}

	exporter, err := buildExporter(ctx, cfg, info.SpanWriter)
	if err != nil {
		return noopShutdown, fmt.Errorf("creating trace exporter: %w", err)
	}

	name := strings.TrimSpace(info.Name)
	if name == "" {
		name = "clinical-kg-server"
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(name),
			semconv.ServiceVersionKey.String(info.Version),
			attribute.String("deployment.environment", info.Environment),
		),
	)
	if err != nil {
		logger.WithError(err).Warn("OpenTelemetry resource init failed, continuing")
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(clampRatio(cfg.SampleRatio)))),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.WithFields(logrus.Fields{
		"service":  name,
		"exporter": exporterName(cfg),
		"ratio":    clampRatio(cfg.SampleRatio),
	}).Info("OpenTelemetry tracing initialized")

	return tp.Shutdown, nil
}

func buildExporter(ctx context.Context, cfg domain.TracingConfig, stdout io.Writer) (sdktrace.SpanExporter, error) {
	if exporterName(cfg) == "otlp" {
		opts := []otlptracehttp.Option{}
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(cfg.OTLPEndpoint))
		}
		if strings.HasPrefix(cfg.OTLPEndpoint, "localhost") || strings.HasPrefix(cfg.OTLPEndpoint, "127.0.0.1") {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	}
	if stdout == nil {
		stdout = os.Stderr
	}
	return stdouttrace.New(stdouttrace.WithWriter(stdout))
}

// exporterName resolves the exporter: an OTLP endpoint implies otlp.
func exporterName(cfg domain.TracingConfig) string {
	name := strings.ToLower(strings.TrimSpace(cfg.Exporter))
	if name == "" && cfg.OTLPEndpoint != "" {
		return "otlp"
	}
	if name == "" {
		return "stdout"
	}
	return name
}

func clampRatio(r float64) float64 {
	switch {
	case r <= 0:
		return 0
	case r > 1:
		return 1
	default:
		return r
	}
}

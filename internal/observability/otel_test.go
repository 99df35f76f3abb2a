package observability

import (
	"bytes"
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/clinical-kg-server/internal/domain"
)

func TestInitTracing_Disabled(t *testing.T) {
	before := otel.GetTracerProvider()

	shutdown, err := InitTracing(context.Background(), domain.TracingConfig{}, ServiceInfo{}, logrus.New())
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
	assert.Equal(t, before, otel.GetTracerProvider())
}

func TestInitTracing_StdoutExporter(t *testing.T) {
	var out, spans bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&out)

	shutdown, err := InitTracing(context.Background(), domain.TracingConfig{
		Enabled:     true,
		Exporter:    "stdout",
		SampleRatio: 1,
	}, ServiceInfo{Name: "clinical-kg-test", Version: "test", SpanWriter: &spans}, logger)
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "graph.build")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, out.String(), "OpenTelemetry tracing initialized")
	assert.Contains(t, spans.String(), "graph.build")
}

func TestExporterName(t *testing.T) {
	assert.Equal(t, "stdout", exporterName(domain.TracingConfig{}))
	assert.Equal(t, "otlp", exporterName(domain.TracingConfig{OTLPEndpoint: "collector:4318"}))
	assert.Equal(t, "otlp", exporterName(domain.TracingConfig{Exporter: "OTLP"}))
}

func TestClampRatio(t *testing.T) {
	assert.Equal(t, 0.0, clampRatio(-1))
	assert.Equal(t, 0.25, clampRatio(0.25))
	assert.Equal(t, 1.0, clampRatio(7))
}

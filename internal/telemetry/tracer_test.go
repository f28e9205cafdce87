package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestNewProvider_Disabled(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{Enabled: false, ExporterType: "grpc"})
	require.NoError(t, err)
	assert.Nil(t, provider.tp)

	_, span := otel.Tracer("test").Start(context.Background(), "noop-check")
	assert.False(t, span.IsRecording())
	span.End()
	assert.NoError(t, provider.Shutdown(context.Background()))
}

func TestNewProvider_InvalidExporter(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{Enabled: true, ServiceName: "test", ExporterType: "invalid"})
	require.Error(t, err)
	assert.Equal(t, "unsupported exporter type: invalid (supported: grpc, http)", err.Error())
}

func TestNewProvider_HTTPExporter(t *testing.T) {
	ctx := context.Background()
	p, err := NewProvider(ctx, Config{
		Enabled:      true,
		ServiceName:  "robohub-test",
		ExporterType: "http",
		Endpoint:     "127.0.0.1:4318",
		SamplingRate: 1,
	})
	require.NoError(t, err)
	require.NotNil(t, p.tp)
	t.Cleanup(func() { otel.SetTracerProvider(noop.NewTracerProvider()) })

	_, span := Tracer("test").Start(ctx, "recording")
	assert.True(t, span.IsRecording())
	span.End()
	// The collector is absent; shutdown may report the failed export.
	_ = p.Shutdown(ctx)
}

func TestSamplerFor(t *testing.T) {
	assert.Contains(t, samplerFor(1).Description(), "AlwaysOnSampler")
	assert.Contains(t, samplerFor(0).Description(), "AlwaysOffSampler")
	assert.Contains(t, samplerFor(0.5).Description(), "TraceIDRatioBased")
}

func TestSessionAttributes(t *testing.T) {
	assert.Equal(t, []attribute.KeyValue{
		attribute.String(SessionIDKey, "s1"),
		attribute.String(PolicyKindKey, "act"),
		attribute.Int(QueueLenKey, 3),
	}, SessionAttributes("s1", "act", 3))
	assert.Equal(t, []attribute.KeyValue{attribute.Int(QueueLenKey, 0)}, SessionAttributes("", "", 0))
}

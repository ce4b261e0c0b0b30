package telemetry

import (
	"context"
	"testing"

	"github.com/Togather-Foundation/historia/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func restoreGlobalProvider(t *testing.T) {
	t.Helper()
	previous := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(previous) })
}

func TestInitTracing_DisabledIsNoop(t *testing.T) {
	restoreGlobalProvider(t)
	before := otel.GetTracerProvider()

	shutdown, err := InitTracing(context.Background(), config.TracingConfig{Enabled: false, SampleRate: 7}, "test")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
	assert.Equal(t, before, otel.GetTracerProvider())
}

func TestInitTracing_InstallsProvider(t *testing.T) {
	restoreGlobalProvider(t)

	shutdown, err := InitTracing(context.Background(), config.TracingConfig{
		Enabled:     true,
		Exporter:    "none",
		ServiceName: "historia-test",
		SampleRate:  1,
	}, "v0.0.1")
	require.NoError(t, err)
	t.Cleanup(func() { _ = shutdown(context.Background()) })

	_, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	assert.True(t, ok)

	_, span := GetTracer("test").Start(context.Background(), "history.import.run")
	assert.True(t, span.SpanContext().IsSampled())
	span.End()
}

func TestInitTracing_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.TracingConfig
		want string
	}{
		{name: "sample rate above one", cfg: config.TracingConfig{Enabled: true, Exporter: "none", SampleRate: 1.5}, want: "invalid sample rate"},
		{name: "negative sample rate", cfg: config.TracingConfig{Enabled: true, Exporter: "none", SampleRate: -0.1}, want: "invalid sample rate"},
		{name: "unknown exporter", cfg: config.TracingConfig{Enabled: true, Exporter: "zipkin", SampleRate: 1}, want: "unsupported exporter"},
		{name: "otlp without endpoint", cfg: config.TracingConfig{Enabled: true, Exporter: "otlp", SampleRate: 1}, want: "TRACING_OTLP_ENDPOINT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			restoreGlobalProvider(t)
			_, err := InitTracing(context.Background(), tt.cfg, "test")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestNewSampler(t *testing.T) {
	for _, rate := range []float64{0, 0.25, 1} {
		sampler, err := newSampler(rate)
		require.NoError(t, err)
		assert.Contains(t, sampler.Description(), "ParentBased")
	}
}

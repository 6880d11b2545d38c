// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNewProvider_DisabledInstallsNoop(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{Enabled: false, Exporter: "grpc"})
	require.NoError(t, err)
	assert.Nil(t, p.tp)

	_, span := otel.Tracer("test").Start(context.Background(), "noop-check")
	assert.False(t, span.IsRecording())
	span.End()

	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProvider_UnsupportedExporter(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{Enabled: true, ServiceName: "embedbridge", Exporter: "zipkin"})
	require.Error(t, err)
	assert.Equal(t, "unsupported exporter type: zipkin (supported: grpc, http)", err.Error())
}

func TestSampler(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{rate: 1, want: "root:AlwaysOnSampler"},
		{rate: 2, want: "root:AlwaysOnSampler"},
		{rate: 0, want: "root:AlwaysOffSampler"},
		{rate: -1, want: "root:AlwaysOffSampler"},
		{rate: 0.25, want: "root:TraceIDRatioBased{0.25}"},
	}
	for _, tt := range tests {
		desc := Sampler(tt.rate).Description()
		assert.Contains(t, desc, "ParentBased")
		assert.Contains(t, desc, tt.want, "rate %v", tt.rate)
	}
}

func TestServiceAttributes(t *testing.T) {
	attrs := serviceAttributes(Config{ServiceName: "embedbridge", ServiceVersion: "1.2.3"})
	assert.Len(t, attrs, 2)

	attrs = serviceAttributes(Config{ServiceName: "embedbridge", Instance: "bridge-a"})
	require.Len(t, attrs, 3)
	assert.Equal(t, semconv.ServiceInstanceIDKey, attrs[2].Key)
	assert.Equal(t, "bridge-a", attrs[2].Value.AsString())
}

func TestExporterNames(t *testing.T) {
	assert.Equal(t, []string{"grpc", "http"}, ExporterNames())
}

func TestEnd_RecordsErrorOnSpan(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	_, failed := tp.Tracer("test").Start(context.Background(), "acquire")
	End(failed, errors.New("network down"), "auth")
	_, ok := tp.Tracer("test").Start(context.Background(), "ok")
	End(ok, nil, "")

	ended := rec.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.NotEmpty(t, ended[0].Events(), "error event")
	assert.NotEqual(t, codes.Error, ended[1].Status().Code)
}

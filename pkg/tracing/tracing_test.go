package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "streamwatch", cfg.ServiceName)
	assert.Equal(t, "http://localhost:14268/api/traces", cfg.JaegerURL)
	assert.Equal(t, 1.0, cfg.SampleRate)
}

func TestInit_Disabled(t *testing.T) {
	tp, err := Init(DefaultConfig())
	require.NoError(t, err)
	assert.NoError(t, tp.Shutdown(context.Background()))
}

func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tracesdk.NewTracerProvider(tracesdk.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return recorder
}

func TestTraceRemoteCall(t *testing.T) {
	recorder := withRecorder(t)

	ctx, span := TraceRemoteCall(context.Background(), "streams", 42)
	RecordError(ctx, errors.New("status 500"))
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "twitch.streams", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), BatchSizeKey.Int(42))
}

func TestTraceWebSocketMessage(t *testing.T) {
	recorder := withRecorder(t)

	_, span := TraceWebSocketMessage(context.Background(), "ASK_STREAMS", "client-1")
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "websocket.ASK_STREAMS", spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), ClientIDKey.String("client-1"))
}

func TestTraceHTTPRequest(t *testing.T) {
	_, span := TraceHTTPRequest(context.Background(), "GET", "/api/v1/streamers")
	require.NotNil(t, span)
	span.End()
}

package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecordingProvider(t *testing.T) (*Provider, *tracetest.SpanRecorder) {
	t.Helper()

	recorder := tracetest.NewSpanRecorder()
	provider, err := NewProvider("solution-server-test", "test", sdktrace.WithSpanProcessor(recorder))
	require.NoError(t, err)
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return provider, recorder
}

func attrValue(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestTaskSpanSuccess(t *testing.T) {
	provider, recorder := newRecordingProvider(t)
	tracer := provider.Tracer()

	_, span := tracer.StartTaskSpan(context.Background(), TaskSpanOptions{
		TaskID:        "4",
		CorrelationID: "abc",
		WorkerID:      1,
	})
	tracer.EndTaskSpan(span, "FINISHED", nil)

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "task.execute", ended[0].Name())
	assert.Equal(t, codes.Ok, ended[0].Status().Code)

	id, ok := attrValue(ended[0].Attributes(), "task.id")
	require.True(t, ok)
	assert.Equal(t, "4", id.AsString())
	status, ok := attrValue(ended[0].Attributes(), "task.status")
	require.True(t, ok)
	assert.Equal(t, "FINISHED", status.AsString())
}

func TestTaskSpanFailure(t *testing.T) {
	provider, recorder := newRecordingProvider(t)
	tracer := provider.Tracer()

	_, span := tracer.StartTaskSpan(context.Background(), TaskSpanOptions{TaskID: "9"})
	tracer.EndTaskSpan(span, "FAILED", errors.New("solution crashed"))

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, "solution crashed", ended[0].Status().Description)
	require.NotEmpty(t, ended[0].Events(), "error is recorded as a span event")
}

func TestNoopTracer(t *testing.T) {
	t.Parallel()

	tracer := NoopTracer()
	ctx, span := tracer.StartSpan(context.Background(), "noop")
	assert.NotNil(t, ctx)
	assert.False(t, span.SpanContext().IsValid())
	tracer.EndTaskSpan(span, "FINISHED", nil)
}

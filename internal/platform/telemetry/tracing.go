package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// InstrumentationName identifies spans created by this module.
const InstrumentationName = "github.com/phrazzld/solution-server"

// Tracer wraps an OpenTelemetry tracer with task-specific helpers.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer returns a tracer backed by the global provider.
func NewTracer() *Tracer {
	return newTracerFrom(otel.Tracer(InstrumentationName))
}

// NoopTracer returns a tracer that records nothing.
func NoopTracer() *Tracer {
	return newTracerFrom(noop.NewTracerProvider().Tracer(""))
}

func newTracerFrom(t trace.Tracer) *Tracer {
	return &Tracer{tracer: t}
}

// TaskSpanOptions describes the task a span covers.
type TaskSpanOptions struct {
	TaskID        string
	CorrelationID string
	WorkerID      int
}

// StartTaskSpan starts a span around one task execution.
func (t *Tracer) StartTaskSpan(ctx context.Context, opts TaskSpanOptions) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "task.execute",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("task.id", opts.TaskID),
			attribute.String("task.correlation_id", opts.CorrelationID),
			attribute.Int("task.worker_id", opts.WorkerID),
		),
	)
}

// EndTaskSpan records the outcome and ends the span.
func (t *Tracer) EndTaskSpan(span trace.Span, status string, err error) {
	span.SetAttributes(attribute.String("task.status", status))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// StartSpan starts a generic span, used by the solution service for
// operations that are not tasks.
func (t *Tracer) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

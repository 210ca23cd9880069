package emit

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/ragforge/flowengine/flow/emit"

// OTelEmitter turns each event into an OpenTelemetry span. Node events
// become spans covering the step's duration (the span start is back-dated
// by the event's DurationMS); execution events become point-in-time spans.
// An event carrying an error marks its span with codes.Error.
type OTelEmitter struct {
	tracer trace.Tracer
}

// NewOTelEmitter builds an emitter over tp, falling back to the global
// tracer provider when tp is nil.
func NewOTelEmitter(tp trace.TracerProvider) *OTelEmitter {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &OTelEmitter{tracer: tp.Tracer(instrumentationName)}
}

func (o *OTelEmitter) Emit(event Event) {
	attrs := []attribute.KeyValue{
		attribute.String("flow.execution_id", event.ExecutionID),
		attribute.String("flow.workflow_id", event.WorkflowID),
	}
	if event.NodeID != "" {
		attrs = append(attrs, attribute.String("flow.node_id", event.NodeID))
	}
	if event.StepID != "" {
		attrs = append(attrs, attribute.String("flow.step_id", event.StepID))
	}
	if event.Status != "" {
		attrs = append(attrs, attribute.String("flow.status", event.Status))
	}
	if event.DurationMS > 0 {
		attrs = append(attrs, attribute.Float64("flow.duration_ms", event.DurationMS))
	}
	for k, v := range event.Meta {
		attrs = append(attrs, attribute.String("flow.meta."+k, toAttrString(v)))
	}

	start := event.Time
	if event.DurationMS > 0 {
		start = start.Add(-durationFromMS(event.DurationMS))
	}
	_, span := o.tracer.Start(context.Background(), string(event.Type),
		trace.WithTimestamp(start),
		trace.WithAttributes(attrs...),
	)
	if event.Error != "" {
		span.SetStatus(codes.Error, event.Error)
	}
	span.End(trace.WithTimestamp(event.Time))
}

func (o *OTelEmitter) Close() error { return nil }

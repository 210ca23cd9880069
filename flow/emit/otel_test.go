package emit

import (
	"testing"
	"time"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestOTel() (*OTelEmitter, *tracetest.InMemoryExporter) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	return NewOTelEmitter(tp), exporter
}

func TestOTelEmitterRecordsSpan(t *testing.T) {
	o, exporter := newTestOTel()
	now := time.Now()
	o.Emit(Event{
		Type:        NodeCompleted,
		Time:        now,
		ExecutionID: "exec-1",
		WorkflowID:  "wf-1",
		NodeID:      "B",
		StepID:      "step-1",
		Status:      "completed",
		DurationMS:  250,
	})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name != "node_completed" {
		t.Errorf("span name %q", span.Name)
	}
	attrs := map[string]string{}
	for _, kv := range span.Attributes {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	if attrs["flow.execution_id"] != "exec-1" || attrs["flow.node_id"] != "B" {
		t.Errorf("attributes %v", attrs)
	}
	if !span.StartTime.Before(span.EndTime) {
		t.Error("node span should be back-dated to cover the step duration")
	}
}

func TestOTelEmitterMarksErrorStatus(t *testing.T) {
	o, exporter := newTestOTel()
	o.Emit(Event{
		Type:        NodeError,
		Time:        time.Now(),
		ExecutionID: "exec-1",
		WorkflowID:  "wf-1",
		NodeID:      "B",
		Error:       "connection refused",
	})
	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("status code %v", spans[0].Status.Code)
	}
	if spans[0].Status.Description != "connection refused" {
		t.Errorf("status description %q", spans[0].Status.Description)
	}
}

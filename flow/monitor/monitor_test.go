package monitor

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecordStep(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.RecordStep("wf1", "A", 150*time.Millisecond, false)
	m.RecordStep("wf1", "A", 50*time.Millisecond, true)
	m.RecordStep("wf1", "B", 10*time.Millisecond, false)

	if got := testutil.ToFloat64(m.CallCounter().WithLabelValues("wf1", "A")); got != 2 {
		t.Errorf("node_calls_total{A} = %v", got)
	}
	if got := testutil.ToFloat64(m.ErrorCounter().WithLabelValues("wf1", "A")); got != 1 {
		t.Errorf("node_errors_total{A} = %v", got)
	}
	if got := testutil.ToFloat64(m.CallCounter().WithLabelValues("wf1", "B")); got != 1 {
		t.Errorf("node_calls_total{B} = %v", got)
	}
}

func TestMetricsDisableStopsRecording(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.Disable()
	m.RecordStep("wf1", "A", time.Millisecond, false)
	m.RecordWorkflowRun("wf1", "completed")
	if got := testutil.ToFloat64(m.CallCounter().WithLabelValues("wf1", "A")); got != 0 {
		t.Errorf("disabled monitor recorded %v calls", got)
	}
	m.Enable()
	m.RecordWorkflowRun("wf1", "completed")
	if got := testutil.ToFloat64(m.WorkflowRunCounter().WithLabelValues("wf1", "completed")); got != 1 {
		t.Errorf("re-enabled monitor recorded %v runs", got)
	}
}

func TestAlertRuleEvaluate(t *testing.T) {
	cases := []struct {
		cmp   Comparison
		value float64
		want  bool
	}{
		{CompareGreater, 11, true},
		{CompareGreater, 10, false},
		{CompareLess, 9, true},
		{CompareGreaterEqual, 10, true},
		{CompareLessEqual, 10, true},
		{CompareEqual, 10, true},
		{CompareEqual, 9, false},
	}
	for _, tc := range cases {
		rule := AlertRule{Comparison: tc.cmp, Threshold: 10}
		if got := rule.Evaluate(tc.value); got != tc.want {
			t.Errorf("%v %s 10 = %v, want %v", tc.value, tc.cmp, got, tc.want)
		}
	}
}

func TestAlertManagerFiresOncePerOpenAlert(t *testing.T) {
	a := NewAlertManager()
	now := time.Now()

	fired := a.Evaluate("node_error_rate", "wf1", "B", 0.5, now)
	if len(fired) != 1 {
		t.Fatalf("expected 1 fired alert, got %d", len(fired))
	}
	if fired[0].Severity != SeverityError {
		t.Errorf("severity %s", fired[0].Severity)
	}
	if !strings.Contains(fired[0].Message, "0.5") {
		t.Errorf("message %q should carry the observed value", fired[0].Message)
	}

	// same key while open: no re-trigger
	if again := a.Evaluate("node_error_rate", "wf1", "B", 0.6, now.Add(time.Minute)); len(again) != 0 {
		t.Errorf("open alert re-fired: %v", again)
	}
	// below threshold: nothing
	if none := a.Evaluate("node_error_rate", "wf1", "C", 0.01, now); len(none) != 0 {
		t.Errorf("sub-threshold value fired: %v", none)
	}
	if len(a.Open()) != 1 {
		t.Errorf("open alerts %v", a.Open())
	}
}

func TestAlertManagerAutoResolvesAfterWindow(t *testing.T) {
	a := NewAlertManager()
	now := time.Now()
	a.Evaluate("node_error_rate", "wf1", "B", 0.5, now)

	later := now.Add(alertResolveAfter + time.Minute)
	fired := a.Evaluate("node_error_rate", "wf1", "B", 0.5, later)
	if len(fired) != 1 {
		t.Fatalf("expected stale alert to resolve and a fresh one to fire, got %d", len(fired))
	}
	history := a.History()
	if len(history) != 1 || !history[0].Resolved {
		t.Errorf("history %+v", history)
	}
}

func TestAlertManagerExplicitResolve(t *testing.T) {
	a := NewAlertManager()
	now := time.Now()
	a.Evaluate("workflow_failure_rate", "wf1", "", 0.9, now)
	a.Resolve("workflow_failure_rate_high", "wf1", "", now.Add(time.Second))

	if len(a.Open()) != 0 {
		t.Errorf("alert still open after Resolve")
	}
	history := a.History()
	if len(history) != 1 || !history[0].Resolved || history[0].ResolvedAt.IsZero() {
		t.Errorf("history %+v", history)
	}
}

func TestAlertManagerCustomRule(t *testing.T) {
	a := NewAlertManager()
	a.AddRule(AlertRule{
		Name:       "queue_depth_high",
		MetricName: "queue_depth",
		Threshold:  100,
		Comparison: CompareGreaterEqual,
		Severity:   SeverityCritical,
	})
	fired := a.Evaluate("queue_depth", "wf1", "", 250, time.Now())
	if len(fired) != 1 || fired[0].Severity != SeverityCritical {
		t.Errorf("fired %v", fired)
	}
}

func TestAlertHistoryRingWraps(t *testing.T) {
	h := NewAlertHistory(3)
	for i := 0; i < 5; i++ {
		h.record(Alert{Value: float64(i)})
	}
	snap := h.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("snapshot len %d", len(snap))
	}
	if snap[0].Value != 2 || snap[2].Value != 4 {
		t.Errorf("ring order %v", snap)
	}
}

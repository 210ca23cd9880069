package emit

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestLogEmitterTextMode(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogEmitter(&buf, false)
	l.Emit(Event{
		Type:        NodeCompleted,
		ExecutionID: "exec-1",
		WorkflowID:  "wf-1",
		NodeID:      "B",
		Status:      "completed",
		DurationMS:  12.5,
	})
	line := buf.String()
	for _, want := range []string{"[node_completed]", "execution=exec-1", "node=B", "duration_ms=12.5"} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
}

func TestLogEmitterJSONMode(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogEmitter(&buf, true)
	l.Emit(Event{Type: ExecutionError, ExecutionID: "exec-2", WorkflowID: "wf-1", Error: "boom"})

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("not a JSON line: %v", err)
	}
	if decoded["type"] != "execution_error" || decoded["error"] != "boom" {
		t.Errorf("unexpected payload: %v", decoded)
	}
	if _, present := decoded["node_id"]; present {
		t.Error("empty node_id should be omitted")
	}
}

func TestBufferedEmitterHistoryAndFilter(t *testing.T) {
	b := NewBufferedEmitter()
	b.Emit(Event{Type: ExecutionStarted, ExecutionID: "e1", WorkflowID: "wf"})
	b.Emit(Event{Type: NodeCompleted, ExecutionID: "e1", WorkflowID: "wf", NodeID: "A"})
	b.Emit(Event{Type: NodeError, ExecutionID: "e1", WorkflowID: "wf", NodeID: "B", Error: "fail"})
	b.Emit(Event{Type: NodeCompleted, ExecutionID: "e2", WorkflowID: "wf", NodeID: "A"})

	if got := len(b.History("e1")); got != 3 {
		t.Fatalf("expected 3 events for e1, got %d", got)
	}
	errs := b.HistoryWithFilter("e1", HistoryFilter{ErrorOnly: true})
	if len(errs) != 1 || errs[0].NodeID != "B" {
		t.Errorf("error filter returned %v", errs)
	}
	byNode := b.HistoryWithFilter("e1", HistoryFilter{NodeID: "A", Type: NodeCompleted})
	if len(byNode) != 1 {
		t.Errorf("combined filter returned %v", byNode)
	}

	b.Clear("e1")
	if len(b.History("e1")) != 0 {
		t.Error("Clear left events behind")
	}
	if len(b.History("e2")) != 1 {
		t.Error("Clear removed another execution's events")
	}
}

func TestBufferedEmitterConcurrentEmit(t *testing.T) {
	b := NewBufferedEmitter()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				b.Emit(Event{Type: NodeCompleted, ExecutionID: "e1", WorkflowID: "wf"})
			}
		}()
	}
	wg.Wait()
	if got := len(b.History("e1")); got != 1000 {
		t.Errorf("expected 1000 events, got %d", got)
	}
}

func TestMultiFansOut(t *testing.T) {
	a := NewBufferedEmitter()
	b := NewBufferedEmitter()
	m := Multi(a, b)
	m.Emit(Event{Type: ExecutionCompleted, ExecutionID: "e1", WorkflowID: "wf", Time: time.Now()})
	if len(a.History("e1")) != 1 || len(b.History("e1")) != 1 {
		t.Error("event was not delivered to every emitter")
	}
	if err := m.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestEventIsTerminal(t *testing.T) {
	terminal := []Type{ExecutionCompleted, ExecutionError, ExecutionStopped}
	for _, typ := range terminal {
		if !(Event{Type: typ}).IsTerminal() {
			t.Errorf("%s should be terminal", typ)
		}
	}
	if (Event{Type: NodeCompleted}).IsTerminal() {
		t.Error("node events are not terminal")
	}
}

func TestNullEmitterIsSilent(t *testing.T) {
	var n Null
	n.Emit(Event{Type: ExecutionStarted})
	if err := n.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

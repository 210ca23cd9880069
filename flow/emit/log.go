package emit

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

// LogEmitter writes one line per event to a writer, either as a terse
// human-readable record or as a JSON object (one per line, suitable for
// log shippers).
type LogEmitter struct {
	mu       sync.Mutex
	writer   io.Writer
	jsonMode bool
}

// NewLogEmitter builds a LogEmitter over writer (os.Stdout when nil).
// With jsonMode set, every event is serialized as a single JSON line;
// otherwise a compact text form is written.
func NewLogEmitter(writer io.Writer, jsonMode bool) *LogEmitter {
	if writer == nil {
		writer = os.Stdout
	}
	return &LogEmitter{writer: writer, jsonMode: jsonMode}
}

func (l *LogEmitter) Emit(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.jsonMode {
		b, err := json.Marshal(event)
		if err != nil {
			return
		}
		_, _ = l.writer.Write(append(b, '\n'))
		return
	}
	line := fmt.Sprintf("[%s] execution=%s workflow=%s", event.Type, event.ExecutionID, event.WorkflowID)
	if event.NodeID != "" {
		line += " node=" + event.NodeID
	}
	if event.Status != "" {
		line += " status=" + event.Status
	}
	if event.DurationMS > 0 {
		line += fmt.Sprintf(" duration_ms=%.1f", event.DurationMS)
	}
	if event.Error != "" {
		line += fmt.Sprintf(" error=%q", event.Error)
	}
	_, _ = fmt.Fprintln(l.writer, line)
}

func (l *LogEmitter) Close() error { return nil }

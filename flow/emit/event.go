package emit

import "time"

// Type classifies an Event. Execution-level events carry no node fields;
// node-level events carry the node and step identifiers of the step they
// describe.
type Type string

const (
	ExecutionStarted   Type = "execution_started"
	ExecutionCompleted Type = "execution_completed"
	ExecutionError     Type = "execution_error"
	ExecutionStopped   Type = "execution_stopped"
	NodeCompleted      Type = "node_completed"
	NodeRecovered      Type = "node_recovered"
	NodeIgnored        Type = "node_ignored"
	NodeError          Type = "node_error"
)

// Event is one observability record from the execution engine: an
// execution starting or reaching a terminal state, or a node step
// finalizing. Events are published to an Emitter as they happen; the
// engine never blocks on a slow emitter beyond the emitter's own Emit
// call, so implementations that do I/O should buffer or drop rather
// than stall.
type Event struct {
	Type        Type           `json:"type"`
	Time        time.Time      `json:"time"`
	ExecutionID string         `json:"execution_id"`
	WorkflowID  string         `json:"workflow_id"`
	NodeID      string         `json:"node_id,omitempty"`
	StepID      string         `json:"step_id,omitempty"`
	Status      string         `json:"status,omitempty"`
	Error       string         `json:"error,omitempty"`
	DurationMS  float64        `json:"duration_ms,omitempty"`
	Meta        map[string]any `json:"meta,omitempty"`
}

// IsTerminal reports whether the event describes an execution reaching a
// terminal state.
func (e Event) IsTerminal() bool {
	switch e.Type {
	case ExecutionCompleted, ExecutionError, ExecutionStopped:
		return true
	default:
		return false
	}
}

// Package flow provides the core graph execution engine for the workflow
// orchestration system.
package flow

import "errors"

// Sentinel errors returned by Validate, the engine, and the scheduler.
// One var block, short doc per error.
var (
	// ErrCyclicGraph indicates the node/edge set is not a DAG.
	ErrCyclicGraph = errors.New("workflow graph contains a cycle")

	// ErrUnknownNodeType indicates a node references a type tag that is not
	// registered in the Registry (the closed set is open for extension via
	// RegisterNodeType, but an unregistered tag is still a definition error).
	ErrUnknownNodeType = errors.New("unknown node type")

	// ErrDanglingEdge indicates an edge references a node id absent from
	// the definition's node list.
	ErrDanglingEdge = errors.New("edge references a non-existent node")

	// ErrValidationFailed is returned by Execute when the definition fails
	// Validate; the execution is never started.
	ErrValidationFailed = errors.New("workflow definition failed validation")

	// ErrExecutionNotFound names an unknown or already-finished execution
	// id. Stop and GetStatus report that case through their bool result
	// and do not return this error.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrMaxRetriesExceeded is the cause RecoveryManager.Execute reports if
	// its attempt loop ends without a decision. A node whose retry budget
	// runs out reports its last underlying error in step.Error instead.
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")

	// ErrCircuitOpen names an open circuit breaker. The recovery layer does
	// not return it: a node called while its breaker is open is recorded as
	// a recovered step carrying the fallback value and the text
	// "circuit breaker open for node <id>".
	ErrCircuitOpen = errors.New("circuit breaker open")

	// ErrUnsupportedExpression names disallowed condition or transform
	// syntax. Parse failures are reported by flow/exprsafe with its own
	// error value and surface as Validate report errors; this package does
	// not return ErrUnsupportedExpression.
	ErrUnsupportedExpression = errors.New("unsupported expression syntax")
)

// ValidationIssue is one finding from Validate: an error, warning, or
// suggestion attached to a specific node or edge.
type ValidationIssue struct {
	Severity string `json:"severity"` // "error" | "warning" | "suggestion"
	Message  string `json:"message"`
	NodeID   string `json:"node_id,omitempty"`
	EdgeID   string `json:"edge_id,omitempty"`
}

// Report is the result of Validate: never mutates the input, only reports.
type Report struct {
	OK          bool               `json:"ok"`
	Errors      []ValidationIssue  `json:"errors,omitempty"`
	Warnings    []ValidationIssue  `json:"warnings,omitempty"`
	Suggestions []ValidationIssue  `json:"suggestions,omitempty"`
}

func (r *Report) addError(msg, nodeID, edgeID string) {
	r.Errors = append(r.Errors, ValidationIssue{Severity: "error", Message: msg, NodeID: nodeID, EdgeID: edgeID})
	r.OK = false
}

func (r *Report) addWarning(msg, nodeID, edgeID string) {
	r.Warnings = append(r.Warnings, ValidationIssue{Severity: "warning", Message: msg, NodeID: nodeID, EdgeID: edgeID})
}

func (r *Report) addSuggestion(msg, nodeID, edgeID string) {
	r.Suggestions = append(r.Suggestions, ValidationIssue{Severity: "suggestion", Message: msg, NodeID: nodeID, EdgeID: edgeID})
}

// WorkflowError is the taxonomy entry recorded in a node's error history and
// carried (as plain text) in step.Error.
type WorkflowError struct {
	Message string
	NodeID  string
	Kind    string
}

func (e *WorkflowError) Error() string {
	if e.NodeID != "" {
		return "node " + e.NodeID + ": " + e.Message
	}
	return e.Message
}

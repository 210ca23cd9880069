package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// StreamEvent is one event of the progress protocol. Exactly one of
// Step/Progress, Result, or Err is populated, keyed by Type.
type StreamEvent struct {
	Type     string           `json:"type"`
	Step     *StepPayload     `json:"step,omitempty"`
	Progress *ProgressPayload `json:"progress,omitempty"`
	Result   *ResultPayload   `json:"result,omitempty"`
	Err      *ErrorPayload    `json:"error,omitempty"`
}

// Stream event type tags.
const (
	StreamStarted  = "started"
	StreamProgress = "progress"
	StreamComplete = "complete"
	StreamError    = "error"
)

// StepPayload is the step summary carried by progress events. In normal
// mode only the output key names are exposed; with debug enabled the full
// input and output payloads replace OutputKeys.
type StepPayload struct {
	ID         string         `json:"id"`
	NodeID     string         `json:"nodeId"`
	NodeName   string         `json:"nodeName"`
	Status     string         `json:"status"`
	StartTime  time.Time      `json:"startTime"`
	EndTime    time.Time      `json:"endTime"`
	Duration   float64        `json:"duration"`
	Error      string         `json:"error,omitempty"`
	Memory     int64          `json:"memory,omitempty"`
	OutputKeys []string       `json:"outputKeys,omitempty"`
	Input      map[string]any `json:"input,omitempty"`
	Output     map[string]any `json:"output,omitempty"`
}

// ProgressPayload counts completed steps against the workflow total.
type ProgressPayload struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// ResultPayload is the terminal summary of a completed execution.
type ResultPayload struct {
	ExecutionID string         `json:"execution_id"`
	Status      string         `json:"status"`
	OutputData  map[string]any `json:"output_data"`
	Error       string         `json:"error,omitempty"`
	Metrics     map[string]any `json:"metrics,omitempty"`
}

// ErrorPayload is the terminal summary of a failed execution.
type ErrorPayload struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func stepPayload(step ExecutionStep, debug bool) *StepPayload {
	p := &StepPayload{
		ID:        step.StepID,
		NodeID:    step.NodeID,
		NodeName:  step.NodeName,
		Status:    string(step.Status),
		StartTime: step.StartTime,
		EndTime:   step.EndTime,
		Duration:  step.Duration.Seconds(),
		Error:     step.Error,
		Memory:    step.MemoryUsage,
	}
	if debug {
		p.Input = step.InputData
		p.Output = step.OutputData
		return p
	}
	for k := range step.OutputData {
		p.OutputKeys = append(p.OutputKeys, k)
	}
	return p
}

// ExecuteStream runs def serially and returns the progress event stream:
// started, one progress per finalized step in topological order, then a
// terminal complete or error event, after which the channel is closed.
// The caller owns draining the channel; the execution goroutine blocks
// on an unread stream, which gives SSE consumers natural backpressure.
func (e *Engine) ExecuteStream(ctx context.Context, def *WorkflowDefinition, input map[string]any, opts ExecuteOptions) <-chan StreamEvent {
	events := make(chan StreamEvent, 1)

	opts.ForceSerial = true
	userOnStep := opts.OnStep
	go func() {
		defer close(events)
		events <- StreamEvent{Type: StreamStarted}

		opts.OnStep = func(step ExecutionStep, completed, total int) {
			if userOnStep != nil {
				userOnStep(step, completed, total)
			}
			events <- StreamEvent{
				Type:     StreamProgress,
				Step:     stepPayload(step, opts.Debug),
				Progress: &ProgressPayload{Current: completed, Total: total},
			}
		}

		execCtx, err := e.Execute(ctx, def, input, opts)
		if err != nil {
			events <- StreamEvent{Type: StreamError, Err: &ErrorPayload{
				Message: err.Error(),
				Type:    string(ClassifyError(err)),
			}}
			return
		}
		events <- StreamEvent{Type: StreamComplete, Result: &ResultPayload{
			ExecutionID: execCtx.ExecutionID,
			Status:      string(execCtx.GetStatus()),
			OutputData:  execCtx.OutputData,
			Error:       execCtx.Error,
			Metrics:     execCtx.Metrics,
		}}
	}()
	return events
}

// WriteSSE drains events onto w in SSE framing: each event is a JSON
// object on a "data:" line followed by a blank line, and the stream is
// terminated by "data: [DONE]". If w implements http.Flusher, every
// event is flushed as it is written.
func WriteSSE(w io.Writer, events <-chan StreamEvent) error {
	flusher, _ := w.(http.Flusher)
	for ev := range events {
		b, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", b); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
	_, err := fmt.Fprint(w, "data: [DONE]\n\n")
	if flusher != nil {
		flusher.Flush()
	}
	return err
}

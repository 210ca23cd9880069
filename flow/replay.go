package flow

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ragforge/flowengine/flow/emit"
)

// RetryFrom implements partial re-execution: it builds a new execution
// that re-runs only startNodeID and its descendants, reusing base's
// recorded step outputs for every other node.
func (e *Engine) RetryFrom(ctx context.Context, def *WorkflowDefinition, base *ExecutionContext, startNodeID string, opts ExecuteOptions) (*ExecutionContext, error) {
	report := Validate(def, e.cfg.registry, e.exprCache)

	executionID := opts.ExecutionID
	if executionID == "" {
		executionID = uuid.NewString()
	}
	globalContext := opts.GlobalContext
	if globalContext == nil {
		globalContext = map[string]any{}
	}
	execCtx := NewExecutionContext(executionID, def.ID, base.InputData, globalContext)

	if !report.OK {
		execCtx.Finish(ExecError, formatReportErrors(report), time.Now())
		return execCtx, ErrValidationFailed
	}

	affected := Descendants(def, startNodeID)
	affected[startNodeID] = true

	baseOutputs := make(map[string]map[string]any)
	for _, s := range base.Steps() {
		baseOutputs[s.NodeID] = s.OutputData
	}

	e.registerExecution(execCtx)
	defer e.unregisterExecution(executionID)
	defer e.releaseExecution(execCtx)
	execCtx.SetStatus(ExecRunning)
	execCtx.StartTime = time.Now()
	e.cfg.emitter.Emit(emit.Event{
		Type: emit.ExecutionStarted, Time: execCtx.StartTime,
		ExecutionID: executionID, WorkflowID: def.ID,
		Status: string(ExecRunning),
	})

	snapshot := def.Clone()
	order, err := TopoSort(snapshot)
	if err != nil {
		execCtx.Finish(ExecError, err.Error(), time.Now())
		return execCtx, err
	}

	nodeData := make(map[string]map[string]any, len(order))
	for id, out := range baseOutputs {
		if !affected[id] {
			nodeData[id] = out
		}
	}

	total := len(affected)
	completed := 0
	for _, id := range order {
		if !affected[id] {
			continue
		}
		n := snapshot.NodeByID(id)
		result := e.runNode(ctx, snapshot, n, nodeData, execCtx, opts)
		nodeData[id] = result.output
		completed++
		e.invokeOnStep(opts, result.step, completed, total)
		if result.fatal != nil {
			execCtx.Finish(ExecError, result.fatal.Error(), time.Now())
			return execCtx, result.fatal
		}
	}

	now := time.Now()
	execCtx.Finish(ExecCompleted, "", now)
	execCtx.OutputData = assembleOutputReplay(snapshot, nodeData, affected, order)
	e.cfg.emitter.Emit(emit.Event{
		Type: emit.ExecutionCompleted, Time: now,
		ExecutionID: executionID, WorkflowID: def.ID,
		Status: string(ExecCompleted),
		DurationMS: float64(now.Sub(execCtx.StartTime)) / float64(time.Millisecond),
	})
	if e.cfg.metrics != nil {
		e.cfg.metrics.RecordWorkflowRun(def.ID, string(ExecCompleted))
	}
	e.persist(ctx, execCtx, opts)
	return execCtx, nil
}

// assembleOutputReplay applies the same output-assembly rule as Execute,
// but
// falls back to the last AFFECTED node in topological order rather than
// the overall last node.
func assembleOutputReplay(def *WorkflowDefinition, nodeData map[string]map[string]any, affected map[string]bool, order []string) map[string]any {
	out := map[string]any{}
	found := false
	for i := range def.Nodes {
		n := &def.Nodes[i]
		if n.Type != "output" {
			continue
		}
		if data, ok := nodeData[n.ID]; ok {
			for k, v := range data {
				out[k] = v
			}
			found = true
		}
	}
	if found {
		return out
	}
	for i := len(order) - 1; i >= 0; i-- {
		id := order[i]
		if !affected[id] {
			continue
		}
		if data, ok := nodeData[id]; ok {
			return data
		}
	}
	return map[string]any{}
}

package flow

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ragforge/flowengine/flow/emit"
)

// ExecuteOptions carries the per-call knobs for Execute.
type ExecuteOptions struct {
	ExecutionID    string
	Debug          bool
	EnableParallel *bool // nil resolves to "true if node_count > 2"
	ForceSerial    bool  // set by the streaming wrapper: keeps on_step in topological order
	GlobalContext  map[string]any
	OnStep         func(step ExecutionStep, completed, total int)
	TenantID       string
	UserID         string
	ExecutorID     string
	Config         map[string]any
}

// Engine is the execution driver: it owns the process-wide resource
// pool, recovery manager, and expression cache, and tracks live
// executions plus each node's recent duration history.
type Engine struct {
	cfg       engineConfig
	pool      *ResourcePool
	recovery  *RecoveryManager
	exprCache *ExprCache

	mu         sync.Mutex
	executions map[string]*ExecutionContext
	durations  map[string][]float64                 // nodeID -> up to last 100 durations (seconds)
	outputs    map[string]map[string]map[string]any // executionID -> nodeID -> output
}

// New constructs an Engine from the given options.
func New(opts ...Option) (*Engine, error) {
	cfg := defaultEngineConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	rm := cfg.recovery
	if rm == nil {
		rm = NewRecoveryManager(cfg.clock)
	}
	if cfg.breakerThreshold > 0 || cfg.breakerTimeout > 0 {
		rm.SetBreakerConfig(cfg.breakerThreshold, cfg.breakerTimeout)
	}
	return &Engine{
		cfg:        *cfg,
		pool:       NewResourcePool(cfg.poolTotal),
		recovery:   rm,
		exprCache:  NewExprCache(),
		executions: map[string]*ExecutionContext{},
		durations:  map[string][]float64{},
		outputs:    map[string]map[string]map[string]any{},
	}, nil
}

func (e *Engine) cacheOutput(executionID, nodeID string, out map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	slice, ok := e.outputs[executionID]
	if !ok {
		slice = map[string]map[string]any{}
		e.outputs[executionID] = slice
	}
	slice[nodeID] = out
}

// CachedOutput returns the node output recorded for a live execution, if
// still cached (the execution's slice is cleared once it terminates).
func (e *Engine) CachedOutput(executionID, nodeID string) (map[string]any, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out, ok := e.outputs[executionID][nodeID]
	return out, ok
}

// ClearCache drops the node-output cache for one execution, or for every
// execution when executionID is empty (admin operation).
func (e *Engine) ClearCache(executionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if executionID == "" {
		e.outputs = map[string]map[string]map[string]any{}
		return
	}
	delete(e.outputs, executionID)
}

// releaseExecution clears the terminated execution's output-cache slice
// and drops its steps' retry counters.
func (e *Engine) releaseExecution(execCtx *ExecutionContext) {
	e.ClearCache(execCtx.ExecutionID)
	steps := execCtx.Steps()
	stepIDs := make([]string, len(steps))
	for i, s := range steps {
		stepIDs[i] = s.StepID
	}
	e.recovery.ReleaseSteps(stepIDs)
}

// Recovery exposes the recovery manager for admin operations
// (clear_error_history, reset_circuit_breakers, clear_retry_counts).
func (e *Engine) Recovery() *RecoveryManager { return e.recovery }

// Pool exposes the resource pool for monitoring.
func (e *Engine) Pool() *ResourcePool { return e.pool }

// Mean implements DurationHistory for the scheduler.
func (e *Engine) Mean(nodeID string) (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ds, ok := e.durations[nodeID]
	if !ok || len(ds) == 0 {
		return 0, false
	}
	sum := 0.0
	for _, d := range ds {
		sum += d
	}
	return sum / float64(len(ds)), true
}

func (e *Engine) recordDuration(nodeID string, seconds float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ds := append(e.durations[nodeID], seconds)
	if len(ds) > 100 {
		ds = ds[len(ds)-100:]
	}
	e.durations[nodeID] = ds
}

func (e *Engine) registerExecution(c *ExecutionContext) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.executions[c.ExecutionID] = c
}

func (e *Engine) unregisterExecution(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.executions, id)
}

// GetStatus returns the live execution context for id, if it is still
// registered (Execute unregisters a context once it reaches a terminal
// state).
func (e *Engine) GetStatus(id string) (*ExecutionContext, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.executions[id]
	return c, ok
}

// Stop marks a live execution stopped and unregisters it. It does not
// preempt any in-flight node call.
func (e *Engine) Stop(id string) bool {
	e.mu.Lock()
	c, ok := e.executions[id]
	if ok {
		delete(e.executions, id)
	}
	e.mu.Unlock()
	if !ok {
		return false
	}
	now := time.Now()
	c.Finish(ExecStopped, "", now)
	e.cfg.emitter.Emit(emit.Event{
		Type: emit.ExecutionStopped, Time: now,
		ExecutionID: c.ExecutionID, WorkflowID: c.WorkflowID,
		Status: string(ExecStopped),
	})
	if e.cfg.metrics != nil {
		e.cfg.metrics.RecordWorkflowRun(c.WorkflowID, string(ExecStopped))
	}
	return true
}

// nodeResult is what a batch worker returns through the result channel.
type nodeResult struct {
	id     string
	output map[string]any
	step   ExecutionStep
	fatal  error
}

// Execute runs def against input_data: validate, snapshot, dispatch
// serial or parallel, assemble the final output, persist.
func (e *Engine) Execute(ctx context.Context, def *WorkflowDefinition, input map[string]any, opts ExecuteOptions) (*ExecutionContext, error) {
	report := Validate(def, e.cfg.registry, e.exprCache)

	executionID := opts.ExecutionID
	if executionID == "" {
		executionID = uuid.NewString()
	}
	globalContext := opts.GlobalContext
	if globalContext == nil {
		globalContext = map[string]any{}
	}
	execCtx := NewExecutionContext(executionID, def.ID, input, globalContext)

	if !report.OK {
		now := time.Now()
		execCtx.Finish(ExecError, formatReportErrors(report), now)
		e.cfg.emitter.Emit(emit.Event{
			Type: emit.ExecutionError, Time: now,
			ExecutionID: executionID, WorkflowID: def.ID,
			Status: string(ExecError), Error: execCtx.Error,
		})
		return execCtx, ErrValidationFailed
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
	nodeCount := len(snapshot.Nodes)
	parallel := nodeCount > 2
	if opts.EnableParallel != nil {
		parallel = *opts.EnableParallel && nodeCount > 2
	}
	if opts.ForceSerial {
		parallel = false
	}

	var nodeData map[string]map[string]any
	var runErr error
	if parallel {
		nodeData, runErr = e.executeParallel(ctx, snapshot, execCtx, opts)
	} else {
		nodeData, runErr = e.executeSerial(ctx, snapshot, execCtx, opts)
	}

	now := time.Now()
	if runErr != nil {
		execCtx.Finish(ExecError, runErr.Error(), now)
	} else if execCtx.GetStatus() != ExecStopped {
		execCtx.Finish(ExecCompleted, "", now)
	}
	execCtx.OutputData = assembleOutput(snapshot, nodeData)

	terminal := execCtx.GetStatus()
	eventType := emit.ExecutionCompleted
	if terminal == ExecError {
		eventType = emit.ExecutionError
	} else if terminal == ExecStopped {
		eventType = emit.ExecutionStopped
	}
	if terminal != ExecStopped { // Stop already emitted its own terminal event
		e.cfg.emitter.Emit(emit.Event{
			Type: eventType, Time: now,
			ExecutionID: executionID, WorkflowID: def.ID,
			Status: string(terminal), Error: execCtx.Error,
			DurationMS: float64(now.Sub(execCtx.StartTime)) / float64(time.Millisecond),
		})
	}
	if e.cfg.metrics != nil && terminal != ExecStopped {
		e.cfg.metrics.RecordWorkflowRun(def.ID, string(terminal))
	}

	e.persist(ctx, execCtx, opts)
	return execCtx, runErr
}

func formatReportErrors(r *Report) string {
	var parts []string
	for _, issue := range r.Errors {
		parts = append(parts, issue.Message)
	}
	return strings.Join(parts, "; ")
}

// executeSerial implements the topological, single-goroutine path used
// for streaming and for workflows with <= 2 nodes.
func (e *Engine) executeSerial(ctx context.Context, def *WorkflowDefinition, execCtx *ExecutionContext, opts ExecuteOptions) (map[string]map[string]any, error) {
	order, err := TopoSort(def)
	if err != nil {
		return nil, err
	}
	nodeData := make(map[string]map[string]any, len(order))
	total := len(order)

	for i, id := range order {
		n := def.NodeByID(id)
		result := e.runNode(ctx, def, n, nodeData, execCtx, opts)
		nodeData[id] = result.output
		e.invokeOnStep(opts, result.step, i+1, total)
		if result.fatal != nil {
			return nodeData, result.fatal
		}
	}
	return nodeData, nil
}

// executeParallel implements the scheduled, batch-concurrent path.
func (e *Engine) executeParallel(ctx context.Context, def *WorkflowDefinition, execCtx *ExecutionContext, opts ExecuteOptions) (map[string]map[string]any, error) {
	levels, err := computeLevels(def)
	if err != nil {
		return nil, err
	}
	meta, err := buildScheduledNodes(def, e.cfg.registry, e)
	if err != nil {
		return nil, err
	}

	nodeData := make(map[string]map[string]any, len(def.Nodes))
	total := len(def.Nodes)
	completed := 0
	poolTotal, _ := e.pool.Snapshot()

	for _, level := range levels {
		batches := buildBatches(level, meta, poolTotal, e.cfg.maxWorkers)
		for _, batch := range batches {
			want := Resources{}
			for _, id := range batch {
				want = want.Add(meta[id].resources)
			}
			for !e.pool.Allocate(want) {
				select {
				case <-ctx.Done():
					return nodeData, ctx.Err()
				case <-time.After(25 * time.Millisecond):
				}
			}

			results := make(chan nodeResult, len(batch))
			var wg sync.WaitGroup
			for _, id := range batch {
				wg.Add(1)
				go func(id string) {
					defer wg.Done()
					n := def.NodeByID(id)
					results <- e.runNode(ctx, def, n, nodeData, execCtx, opts)
				}(id)
			}
			wg.Wait()
			close(results)
			e.pool.Release(want)

			var fatal error
			for r := range results {
				nodeData[r.id] = r.output
				completed++
				e.invokeOnStep(opts, r.step, completed, total)
				if r.fatal != nil && fatal == nil {
					fatal = r.fatal
				}
			}
			if fatal != nil {
				return nodeData, fatal
			}
		}
	}
	return nodeData, nil
}

// runNode resolves n's input, appends its step, runs it through the
// recovery loop, and finalizes the step. It never panics: a panic from
// the node runner is recovered in runWithRecovery and handled by the
// recovery loop like any other node failure.
func (e *Engine) runNode(ctx context.Context, def *WorkflowDefinition, n *Node, nodeData map[string]map[string]any, execCtx *ExecutionContext, opts ExecuteOptions) nodeResult {
	stepID := uuid.NewString()
	step := ExecutionStep{StepID: stepID, NodeID: n.ID, NodeName: n.Name, Status: StepRunning, StartTime: time.Now()}
	execCtx.AppendStep(step)

	input, err := ResolveInput(def, n, nodeData, execCtx.InputData, execCtx.GlobalContext, e.exprCache, func(edgeID string, err error) {
		log.Printf("flow: edge %s transform failed, keeping untransformed value: %v", edgeID, err)
	})
	if err != nil {
		step.Finalize(StepError, time.Now())
		step.Error = err.Error()
		execCtx.FinalizeStep(step)
		e.emitStep(execCtx, step)
		return nodeResult{id: n.ID, output: map[string]any{}, step: step, fatal: err}
	}
	if opts.Debug {
		step.InputData = input
	}

	runner, _, err := e.cfg.registry.Build(n)
	if err != nil {
		step.Finalize(StepError, time.Now())
		step.Error = err.Error()
		execCtx.FinalizeStep(step)
		e.emitStep(execCtx, step)
		return nodeResult{id: n.ID, output: map[string]any{}, step: step, fatal: err}
	}

	outcome := e.runWithRecovery(ctx, n, stepID, input, execCtx, runner)
	now := time.Now()
	step.Finalize(outcome.status, now)
	step.Error = outcome.errText
	step.OutputData = outcome.output
	if opts.Debug {
		step.Metrics = map[string]any{}
		if outcome.recovery != nil {
			step.Metrics["recovery"] = outcome.recovery
		}
	} else if outcome.recovery != nil {
		step.Metrics = map[string]any{"recovery": outcome.recovery}
	}
	execCtx.FinalizeStep(step)
	e.cacheOutput(execCtx.ExecutionID, n.ID, outcome.output)
	e.recordDuration(n.ID, step.Duration.Seconds())
	e.emitStep(execCtx, step)
	if e.cfg.metrics != nil {
		e.cfg.metrics.RecordStep(execCtx.WorkflowID, n.ID, step.Duration, step.Status == StepError)
	}

	return nodeResult{id: n.ID, output: outcome.output, step: step, fatal: outcome.fatal}
}

// emitStep publishes a finalized step as a node-level event.
func (e *Engine) emitStep(execCtx *ExecutionContext, step ExecutionStep) {
	var eventType emit.Type
	switch step.Status {
	case StepRecovered:
		eventType = emit.NodeRecovered
	case StepIgnored:
		eventType = emit.NodeIgnored
	case StepError:
		eventType = emit.NodeError
	default:
		eventType = emit.NodeCompleted
	}
	e.cfg.emitter.Emit(emit.Event{
		Type: eventType, Time: step.EndTime,
		ExecutionID: execCtx.ExecutionID, WorkflowID: execCtx.WorkflowID,
		NodeID: step.NodeID, StepID: step.StepID,
		Status: string(step.Status), Error: step.Error,
		DurationMS: float64(step.Duration) / float64(time.Millisecond),
	})
}

// runWithRecovery wraps the runner.Run panic-safely and delegates the
// classify/retry/fallback decision to the RecoveryManager.
func (e *Engine) runWithRecovery(ctx context.Context, n *Node, stepID string, input map[string]any, execCtx *ExecutionContext, runner NodeRunner) (outcome recoveryOutcome) {
	safeRunner := NodeRunnerFunc(func(ctx context.Context, n *Node, input map[string]any, execCtx *ExecutionContext) (out map[string]any, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("node %s panicked: %v", n.ID, r)
			}
		}()
		return runner.Run(ctx, n, input, execCtx)
	})
	return e.recovery.Execute(ctx, n, stepID, input, execCtx, safeRunner)
}

// invokeOnStep calls the caller's on_step hook, if any, swallowing any
// panic so a misbehaving callback cannot break execution.
func (e *Engine) invokeOnStep(opts ExecuteOptions, step ExecutionStep, completed, total int) {
	if opts.OnStep == nil {
		return
	}
	defer func() { _ = recover() }()
	opts.OnStep(step, completed, total)
}

// assembleOutput implements the final-output rule shared by Execute and
// RetryFrom:
// merge output-type node outputs in declaration order; else use the last
// topological node's output; else {}.
func assembleOutput(def *WorkflowDefinition, nodeData map[string]map[string]any) map[string]any {
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
	if order, err := TopoSort(def); err == nil && len(order) > 0 {
		lastID := order[len(order)-1]
		if data, ok := nodeData[lastID]; ok {
			return data
		}
	}
	return map[string]any{}
}

// persist fire-and-forgets the execution to the persistence collaborator,
// if any. Persistence errors are logged and never
// propagate — panics are recovered for the same reason.
func (e *Engine) persist(ctx context.Context, execCtx *ExecutionContext, opts ExecuteOptions) {
	if e.cfg.persistence == nil {
		return
	}
	defer func() { _ = recover() }()
	snapshot := map[string]any{
		"execution_id": execCtx.ExecutionID,
		"workflow_id":  execCtx.WorkflowID,
		"status":       string(execCtx.GetStatus()),
		"output_data":  execCtx.OutputData,
		"error":        execCtx.Error,
	}
	enableParallel := opts.EnableParallel != nil && *opts.EnableParallel
	if err := e.cfg.persistence.SaveExecution(ctx, execCtx.ExecutionID, snapshot, opts.TenantID, opts.ExecutorID, opts.Config, opts.Debug, enableParallel); err != nil {
		log.Printf("flow: persist execution %s: %v", execCtx.ExecutionID, err)
	}
}

package nodes

import (
	"context"

	"github.com/ragforge/flowengine/flow"
	"github.com/ragforge/flowengine/flow/sandbox"
)

// registerCodeExecutor installs the code_executor node type, delegating to
// the isolated sandbox package for validation and process execution, per
// the sandbox package's isolation discipline.
func registerCodeExecutor(reg *flow.Registry, deps Dependencies) {
	flow.RegisterNodeType(reg, "code_executor", func(n *flow.Node) (flow.NodeRunner, error) {
		return flow.NodeRunnerFunc(func(ctx context.Context, n *flow.Node, input map[string]any, execCtx *flow.ExecutionContext) (map[string]any, error) {
			return runCodeExecutor(ctx, n, input, execCtx, deps.Sandbox)
		}), nil
	}, flow.TypeDefaults{
		Priority:       flow.PriorityNormal,
		Resources:      flow.Resources{CPUCores: 1, MemoryMB: 256},
		Parallelizable: true,
		Exclusive:      true,
	})
}

func runCodeExecutor(ctx context.Context, n *flow.Node, input map[string]any, execCtx *flow.ExecutionContext, exec sandbox.Executor) (map[string]any, error) {
	code := n.ConfigString("code")
	if code == "" {
		code, _ = input["code"].(string)
	}

	cfg := sandboxConfigFromNode(n)

	globalContext := map[string]any{}
	if execCtx != nil {
		globalContext = execCtx.GlobalContext
	}

	data, _ := input["data"].(map[string]any)
	if data == nil {
		data = input
	}

	res := exec.Run(ctx, code, data, globalContext, cfg)
	if !res.Success {
		return nil, &flow.WorkflowError{Message: "code_executor: " + res.Error, Kind: string(flow.KindExecution)}
	}

	return map[string]any{
		"result":           res.Result,
		"stdout":           res.Stdout,
		"execution_output": res.Result,
		"sandbox":          true,
	}, nil
}

func sandboxConfigFromNode(n *flow.Node) sandbox.Config {
	cfg := sandbox.Config{}
	if v, ok := n.Config["timeout"].(float64); ok {
		cfg.Timeout = secondsToDuration(v)
	}
	if v, ok := n.Config["max_memory_mb"].(float64); ok {
		cfg.MaxMemoryMB = int(v)
	}
	if v, ok := n.Config["max_input_bytes"].(float64); ok {
		cfg.MaxInputBytes = int(v)
	}
	if v, ok := n.Config["max_stdout_chars"].(float64); ok {
		cfg.MaxStdoutChars = int(v)
	}
	if v, ok := n.Config["max_result_bytes"].(float64); ok {
		cfg.MaxResultBytes = int(v)
	}
	return cfg
}

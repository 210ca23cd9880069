package nodes

import (
	"context"
	"encoding/json"

	"github.com/ragforge/flowengine/flow"
)

// registerDataTransformer installs the data_transformer node type, per
// either serialize the whole payload to a single
// json_output string, or project it down to a named field list.
func registerDataTransformer(reg *flow.Registry) {
	flow.RegisterNodeType(reg, "data_transformer", func(n *flow.Node) (flow.NodeRunner, error) {
		return flow.NodeRunnerFunc(runDataTransformer), nil
	}, flow.TypeDefaults{
		Priority:       flow.PriorityNormal,
		Resources:      flow.Resources{CPUCores: 0.1, MemoryMB: 32},
		Parallelizable: true,
	})
}

func runDataTransformer(ctx context.Context, n *flow.Node, input map[string]any, execCtx *flow.ExecutionContext) (map[string]any, error) {
	data, ok := input["data"].(map[string]any)
	if !ok {
		data = input
	}

	transformType := n.ConfigString("transform_type")
	if transformType == "" {
		transformType = "json"
	}

	if transformType == "extract" {
		fields, _ := n.Config["fields"].([]any)
		out := map[string]any{}
		for _, f := range fields {
			name, _ := f.(string)
			if name == "" {
				continue
			}
			out[name] = data[name]
		}
		return out, nil
	}

	b, err := json.Marshal(data)
	if err != nil {
		return nil, &flow.WorkflowError{Message: "data_transformer: encode failed: " + err.Error(), Kind: string(flow.KindData)}
	}
	return map[string]any{"json_output": string(b)}, nil
}

package nodes

import (
	"context"
	"encoding/json"

	"github.com/ragforge/flowengine/flow"
	"github.com/ragforge/flowengine/flow/tmpl"
	"github.com/tidwall/gjson"
)

// registerOutput installs the output node type: select a
// nested path, render a template, or pass the payload through untouched.
func registerOutput(reg *flow.Registry) {
	flow.RegisterNodeType(reg, "output", func(n *flow.Node) (flow.NodeRunner, error) {
		return flow.NodeRunnerFunc(runOutput), nil
	}, flow.TypeDefaults{
		Priority:       flow.PriorityNormal,
		Resources:      flow.Resources{CPUCores: 0.1, MemoryMB: 16},
		Parallelizable: true,
	})
}

func runOutput(ctx context.Context, n *flow.Node, input map[string]any, execCtx *flow.ExecutionContext) (map[string]any, error) {
	data, _ := input["data"].(map[string]any)
	if data == nil {
		data = input
	}

	selectPath := n.ConfigString("select_path")
	template := n.ConfigString("template")

	if template == "" && selectPath != "" {
		if raw, ok := selectDataPath(data, selectPath); ok {
			return map[string]any{"result": raw}, nil
		}
		return map[string]any{"result": data}, nil
	}

	if template != "" {
		globalContext := map[string]any{}
		if execCtx != nil {
			globalContext = execCtx.GlobalContext
		}
		rendered := tmpl.Render(template, tmpl.Roots{Data: data, Input: input, Context: globalContext})
		if rendered == "" {
			return map[string]any{"result": data}, nil
		}
		return map[string]any{"result": rendered}, nil
	}

	return map[string]any{"result": data}, nil
}

// selectDataPath resolves a dotted path against data using gjson, which
// natively understands the bracket-free "a.b.0.c" array-index notation
// select_path uses — there is no reason to re-derive the tmpl package's
// hand-rolled walker here since select_path has no need for the template
// delimiters, only path lookup.
func selectDataPath(data map[string]any, path string) (any, bool) {
	b, err := json.Marshal(data)
	if err != nil {
		return nil, false
	}
	result := gjson.GetBytes(b, path)
	if !result.Exists() {
		return nil, false
	}
	var out any
	if err := json.Unmarshal([]byte(result.Raw), &out); err == nil {
		return out, true
	}
	return result.Value(), true
}

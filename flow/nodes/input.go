package nodes

import (
	"context"

	"github.com/ragforge/flowengine/flow"
)

// registerInput installs the input node type: it flattens the caller's
// execution input and fills the universal string aliases so downstream
// edges that target "prompt"/"query"/"text" resolve deterministically
// even when the caller supplied a single unlabeled string.
func registerInput(reg *flow.Registry) {
	flow.RegisterNodeType(reg, "input", func(n *flow.Node) (flow.NodeRunner, error) {
		return flow.NodeRunnerFunc(runInput), nil
	}, flow.TypeDefaults{
		Priority:       flow.PriorityNormal,
		Resources:      flow.Resources{CPUCores: 0.1, MemoryMB: 16},
		Parallelizable: true,
	})
}

func runInput(ctx context.Context, n *flow.Node, input map[string]any, execCtx *flow.ExecutionContext) (map[string]any, error) {
	out := map[string]any{"data": map[string]any{}}
	if execCtx != nil && execCtx.InputData != nil {
		out["data"] = execCtx.InputData
	}
	text := firstStringValue(out["data"], input)
	out["input"] = out["data"]
	out["prompt"] = text
	out["query"] = text
	out["text"] = text
	return out, nil
}

// firstStringValue picks a representative string for the string-valued
// aliases: a bare string payload is used directly; an object payload
// contributes its first string-shaped value; anything else defaults to
// empty rather than nil so downstream template substitution never sees
// a missing root.
func firstStringValue(data any, input map[string]any) string {
	switch v := data.(type) {
	case string:
		return v
	case map[string]any:
		for _, key := range []string{"text", "prompt", "query", "content"} {
			if s, ok := v[key].(string); ok {
				return s
			}
		}
		for _, val := range v {
			if s, ok := val.(string); ok {
				return s
			}
		}
	}
	for _, key := range []string{"text", "prompt", "query"} {
		if s, ok := input[key].(string); ok {
			return s
		}
	}
	return ""
}

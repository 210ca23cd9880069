package nodes

import (
	"context"

	"github.com/ragforge/flowengine/flow"
	"github.com/ragforge/flowengine/flow/collab"
)

// registerEmbeddings installs the embeddings node type:
// a one-shot embed call over input.text.
func registerEmbeddings(reg *flow.Registry, deps Dependencies) {
	flow.RegisterNodeType(reg, "embeddings", func(n *flow.Node) (flow.NodeRunner, error) {
		return flow.NodeRunnerFunc(func(ctx context.Context, n *flow.Node, input map[string]any, execCtx *flow.ExecutionContext) (map[string]any, error) {
			return runEmbeddings(ctx, n, input, execCtx, deps.Embeddings)
		}), nil
	}, flow.TypeDefaults{
		Priority:       flow.PriorityNormal,
		Resources:      flow.Resources{CPUCores: 0.1, MemoryMB: 32, NetworkMbps: 1},
		Parallelizable: true,
	})
}

func runEmbeddings(ctx context.Context, n *flow.Node, input map[string]any, execCtx *flow.ExecutionContext, provider collab.EmbeddingProvider) (map[string]any, error) {
	if provider == nil {
		return nil, depErr("embeddings", "embedding provider")
	}
	text, _ := input["text"].(string)

	model := n.ConfigString("model")
	tenantID, userID := tenantUser(execCtx)

	res, err := provider.Embed(ctx, []string{text}, model, tenantID, userID)
	if err != nil {
		return nil, &flow.WorkflowError{Message: "embeddings: " + err.Error(), NodeID: n.ID, Kind: string(flow.KindExecution)}
	}
	if !res.Success || len(res.Embeddings) == 0 {
		msg := res.Error
		if msg == "" {
			msg = "embeddings: provider returned no vectors"
		}
		return nil, &flow.WorkflowError{Message: msg, NodeID: n.ID, Kind: string(flow.KindExecution)}
	}

	vec := res.Embeddings[0]
	return map[string]any{
		"embedding":  vec,
		"dimensions": len(vec),
		"model":      model,
		"text":       text,
	}, nil
}

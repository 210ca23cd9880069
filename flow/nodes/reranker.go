package nodes

import (
	"context"

	"github.com/ragforge/flowengine/flow"
	"github.com/ragforge/flowengine/flow/collab"
)

// registerReranker installs the reranker node type:
// rescore an already-retrieved document set against the query and
// truncate to the configured top_k.
func registerReranker(reg *flow.Registry, deps Dependencies) {
	flow.RegisterNodeType(reg, "reranker", func(n *flow.Node) (flow.NodeRunner, error) {
		return flow.NodeRunnerFunc(func(ctx context.Context, n *flow.Node, input map[string]any, execCtx *flow.ExecutionContext) (map[string]any, error) {
			return runReranker(ctx, n, input, execCtx, deps.Rerank)
		}), nil
	}, flow.TypeDefaults{
		Priority:       flow.PriorityNormal,
		Resources:      flow.Resources{CPUCores: 0.2, MemoryMB: 64, NetworkMbps: 1},
		Parallelizable: true,
	})
}

func runReranker(ctx context.Context, n *flow.Node, input map[string]any, execCtx *flow.ExecutionContext, rerank collab.RerankProvider) (map[string]any, error) {
	if rerank == nil {
		return nil, depErr("reranker", "rerank provider")
	}
	query, _ := input["query"].(string)
	docs := asMapSlice(input["documents"])

	provider := n.ConfigString("provider")
	topK := defaultTopK(n)
	tenantID, _ := tenantUser(execCtx)

	reranked, err := rerank.Rerank(ctx, query, docs, provider, topK, tenantID)
	if err != nil {
		return nil, &flow.WorkflowError{Message: "reranker: " + err.Error(), NodeID: n.ID, Kind: string(flow.KindExecution)}
	}

	return map[string]any{
		"documents":          reranked,
		"reranked_documents": reranked,
		"query":              query,
		"total_results":      len(reranked),
	}, nil
}

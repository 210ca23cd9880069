package nodes

import (
	"context"
	"strings"
	"sync"

	"github.com/ragforge/flowengine/flow"
	"github.com/ragforge/flowengine/flow/collab"
)

// registerRAGRetriever installs the rag_retriever node type: embed the
// query, search the tenant-scoped collection, and
// convert vector distance to a similarity score.
func registerRAGRetriever(reg *flow.Registry, deps Dependencies) {
	flow.RegisterNodeType(reg, "rag_retriever", func(n *flow.Node) (flow.NodeRunner, error) {
		return flow.NodeRunnerFunc(func(ctx context.Context, n *flow.Node, input map[string]any, execCtx *flow.ExecutionContext) (map[string]any, error) {
			return runRAGRetriever(ctx, n, input, execCtx, deps)
		}), nil
	}, flow.TypeDefaults{
		Priority:         flow.PriorityNormal,
		Resources:        flow.Resources{CPUCores: 0.3, MemoryMB: 128, NetworkMbps: 2},
		DurationEstimate: 1,
		Parallelizable:   true,
		Exclusive:        true,
	})
}

// registerHybridRetriever installs the hybrid_retriever node type.
func registerHybridRetriever(reg *flow.Registry, deps Dependencies) {
	flow.RegisterNodeType(reg, "hybrid_retriever", func(n *flow.Node) (flow.NodeRunner, error) {
		return flow.NodeRunnerFunc(func(ctx context.Context, n *flow.Node, input map[string]any, execCtx *flow.ExecutionContext) (map[string]any, error) {
			return runHybridRetriever(ctx, n, input, execCtx, deps)
		}), nil
	}, flow.TypeDefaults{
		Priority:         flow.PriorityNormal,
		Resources:        flow.Resources{CPUCores: 0.4, MemoryMB: 128, NetworkMbps: 2},
		DurationEstimate: 1.5,
		Parallelizable:   true,
		Exclusive:        true,
	})
}

// registerRetrieverDispatch installs the retriever node type, which
// merely dispatches to the vector, keyword, or hybrid path by
// config.mode.
func registerRetrieverDispatch(reg *flow.Registry, deps Dependencies) {
	flow.RegisterNodeType(reg, "retriever", func(n *flow.Node) (flow.NodeRunner, error) {
		return flow.NodeRunnerFunc(func(ctx context.Context, n *flow.Node, input map[string]any, execCtx *flow.ExecutionContext) (map[string]any, error) {
			switch n.ConfigString("mode") {
			case "keyword":
				return runKeywordRetriever(ctx, n, input, execCtx, deps)
			case "hybrid":
				return runHybridRetriever(ctx, n, input, execCtx, deps)
			default:
				return runRAGRetriever(ctx, n, input, execCtx, deps)
			}
		}), nil
	}, flow.TypeDefaults{
		Priority:       flow.PriorityNormal,
		Resources:      flow.Resources{CPUCores: 0.3, MemoryMB: 128, NetworkMbps: 2},
		Parallelizable: true,
		Exclusive:      true,
	})
}

func runKeywordRetriever(ctx context.Context, n *flow.Node, input map[string]any, execCtx *flow.ExecutionContext, deps Dependencies) (map[string]any, error) {
	if deps.Keyword == nil {
		return nil, depErr("retriever", "keyword index")
	}
	query, _ := input["query"].(string)
	kb := n.ConfigString("kb")
	topK := defaultTopK(n)
	tenantID, _ := tenantUser(execCtx)

	if err := checkKBAccess(ctx, deps.Identity, execCtx, kb); err != nil {
		return nil, err
	}

	index := flow.TenantCollection(tenantID, kb)
	hits, err := deps.Keyword.Search(ctx, index, query, topK, nil)
	if err != nil {
		return nil, &flow.WorkflowError{Message: "retriever: " + err.Error(), NodeID: n.ID, Kind: string(flow.KindExecution)}
	}
	docs := make([]map[string]any, 0, len(hits))
	for _, h := range hits {
		docs = append(docs, map[string]any{"text": h.Text, "score": h.Score, "metadata": h.Metadata, "source": "keyword"})
	}
	return map[string]any{"documents": docs, "query": query, "total_results": len(docs)}, nil
}

func defaultTopK(n *flow.Node) int {
	return configInt(n.Config, "top_k", 5)
}

func checkKBAccess(ctx context.Context, identity collab.IdentityService, execCtx *flow.ExecutionContext, kb string) error {
	if identity == nil {
		return nil
	}
	tenantID, userID := tenantUser(execCtx)
	if err := identity.CheckKBRead(ctx, tenantID, userID, kb); err != nil {
		return &flow.WorkflowError{Message: "permission: " + err.Error(), Kind: string(flow.KindPermission)}
	}
	return nil
}

func runRAGRetriever(ctx context.Context, n *flow.Node, input map[string]any, execCtx *flow.ExecutionContext, deps Dependencies) (map[string]any, error) {
	if deps.Embeddings == nil || deps.Vector == nil {
		return nil, depErr("rag_retriever", "embedding/vector provider")
	}
	query, _ := input["query"].(string)
	kb := n.ConfigString("kb")
	topK := defaultTopK(n)
	tenantID, userID := tenantUser(execCtx)

	if err := checkKBAccess(ctx, deps.Identity, execCtx, kb); err != nil {
		return nil, err
	}

	embRes, err := deps.Embeddings.Embed(ctx, []string{query}, n.ConfigString("model"), tenantID, userID)
	if err != nil || !embRes.Success || len(embRes.Embeddings) == 0 {
		return nil, &flow.WorkflowError{Message: "rag_retriever: embedding failed", NodeID: n.ID, Kind: string(flow.KindExecution)}
	}

	collection := flow.TenantCollection(tenantID, kb)
	hits, err := deps.Vector.Search(ctx, collection, embRes.Embeddings[0], topK)
	if err != nil {
		return nil, &flow.WorkflowError{Message: "rag_retriever: " + err.Error(), NodeID: n.ID, Kind: string(flow.KindExecution)}
	}

	docs := make([]map[string]any, 0, len(hits))
	for _, h := range hits {
		docs = append(docs, map[string]any{
			"text":       h.Text,
			"similarity": 1 / (1 + h.Distance),
			"metadata":   h.Metadata,
			"source":     "vector",
		})
	}

	return map[string]any{
		"documents":     docs,
		"query":         query,
		"total_results": len(docs),
	}, nil
}

func runHybridRetriever(ctx context.Context, n *flow.Node, input map[string]any, execCtx *flow.ExecutionContext, deps Dependencies) (map[string]any, error) {
	if deps.Embeddings == nil || deps.Vector == nil {
		return nil, depErr("hybrid_retriever", "embedding/vector provider")
	}
	query, _ := input["query"].(string)
	kb := n.ConfigString("kb")
	topK := defaultTopK(n)
	tenantID, userID := tenantUser(execCtx)

	if err := checkKBAccess(ctx, deps.Identity, execCtx, kb); err != nil {
		return nil, err
	}

	embRes, err := deps.Embeddings.Embed(ctx, []string{query}, n.ConfigString("model"), tenantID, userID)
	if err != nil || !embRes.Success || len(embRes.Embeddings) == 0 {
		return nil, &flow.WorkflowError{Message: "hybrid_retriever: embedding failed", NodeID: n.ID, Kind: string(flow.KindExecution)}
	}
	vec := embRes.Embeddings[0]
	collection := flow.TenantCollection(tenantID, kb)

	var vectorHits []collab.VectorHit
	var keywordHits []collab.KeywordHit
	var vectorErr error

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		vectorHits, vectorErr = searchVectorSelfHealing(ctx, deps.Vector, collection, vec, topK)
	}()
	if deps.Keyword != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			keywordHits, _ = deps.Keyword.Search(ctx, collection, query, topK, nil)
		}()
	}
	wg.Wait()

	if vectorErr != nil {
		return nil, &flow.WorkflowError{Message: "hybrid_retriever: " + vectorErr.Error(), NodeID: n.ID, Kind: string(flow.KindExecution)}
	}

	seen := make(map[string]bool, len(vectorHits))
	docs := make([]map[string]any, 0, len(vectorHits)+len(keywordHits))
	for _, h := range vectorHits {
		seen[h.Text] = true
		docs = append(docs, map[string]any{
			"text":       h.Text,
			"similarity": 1 / (1 + h.Distance),
			"metadata":   h.Metadata,
			"source":     "vector",
		})
	}
	for _, h := range keywordHits {
		if seen[h.Text] {
			continue
		}
		docs = append(docs, map[string]any{
			"text":     h.Text,
			"score":    h.Score,
			"metadata": h.Metadata,
			"source":   "keyword",
		})
	}

	return map[string]any{
		"documents":     docs,
		"query":         query,
		"total_results": len(docs),
	}, nil
}

// searchVectorSelfHealing retries once after recreating the collection
// when the store reports a dimension mismatch, implementing the
// hybrid_retriever note.
func searchVectorSelfHealing(ctx context.Context, store collab.VectorStore, collection string, vec []float64, topK int) ([]collab.VectorHit, error) {
	hits, err := store.Search(ctx, collection, vec, topK)
	if err == nil {
		return hits, nil
	}
	if !isDimensionMismatch(err) {
		return nil, err
	}
	if recreateErr := store.Recreate(ctx, collection, len(vec)); recreateErr != nil {
		return nil, err
	}
	return store.Search(ctx, collection, vec, topK)
}

func isDimensionMismatch(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, kw := range []string{"dimension", "dim mismatch", "vector size"} {
		if strings.Contains(msg, kw) {
			return true
		}
	}
	return false
}

// Package collab declares the capability interfaces the execution engine
// consumes but does not implement: identity/authorization, embeddings,
// chat completion, reranking, vector and keyword search, timekeeping, and
// execution persistence. These are collaborators — the
// engine is built against these interfaces and a deployment wires in
// concrete adapters (an auth service, a vector database client, an LLM
// SDK, a KB metadata store). flow/store, flow/gateway and flow/model
// provide implementations of some of them; flow/nodes accepts them as
// constructor dependencies.
package collab

import "context"

// EmbeddingResult is the outcome of one embed call.
type EmbeddingResult struct {
	Success    bool
	Embeddings [][]float64
	Error      string
}

// EmbeddingProvider turns text into vectors for retrieval and indexing.
type EmbeddingProvider interface {
	Embed(ctx context.Context, texts []string, model, tenantID, userID string) (EmbeddingResult, error)
}

// ChatUsage mirrors the token accounting a provider reports back.
type ChatUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ChatResult is the outcome of one non-streaming chat call.
type ChatResult struct {
	Success bool
	Message string
	Usage   ChatUsage
	Model   string
	Error   string
}

// ChatChunk is one event of a streamed chat response.
type ChatChunk struct {
	Success bool
	Content string
	Error   string
}

// ChatProvider is the llm node's collaborator. Concrete adapters typically
// wrap a flow/model.ChatModel internally, translating its Message/ChatOut
// shapes to this tenant-aware, usage-reporting one.
type ChatProvider interface {
	Chat(ctx context.Context, message, model string, temperature float64, maxTokens int, tenantID, userID string) (ChatResult, error)
	StreamChat(ctx context.Context, message, model string, temperature float64, maxTokens int, tenantID, userID string) (<-chan ChatChunk, error)
}

// RerankProvider rescores a document set against a query.
type RerankProvider interface {
	Rerank(ctx context.Context, query string, documents []map[string]any, provider string, topK int, tenantID string) ([]map[string]any, error)
}

// VectorHit is one result from a VectorStore.Search call.
type VectorHit struct {
	Text     string
	Distance float64
	Metadata map[string]any
}

// VectorStore is the tenant-scoped vector similarity backend. Collection
// names follow the shared tenant_{id}_{kb} convention (see
// flow.TenantCollection) so both rag_retriever and hybrid_retriever, and
// any index-management tooling, agree on naming without flow/nodes
// duplicating the format.
type VectorStore interface {
	Search(ctx context.Context, collection string, vector []float64, topK int) ([]VectorHit, error)
	Recreate(ctx context.Context, collection string, dim int) error
}

// KeywordHit is one result from a KeywordIndex.Search call.
type KeywordHit struct {
	Text     string
	Score    float64
	Metadata map[string]any
}

// KeywordIndex is the optional lexical-search collaborator hybrid_retriever
// merges with vector results. A deployment without keyword search simply
// passes a nil KeywordIndex; hybrid_retriever treats that as zero hits
// rather than an error.
type KeywordIndex interface {
	Search(ctx context.Context, index, query string, topK int, filter map[string]any) ([]KeywordHit, error)
}

// IdentityService authorizes knowledge-base reads for the retrieval node
// types.
type IdentityService interface {
	CheckKBRead(ctx context.Context, tenantID, userID, kbName string) error
}

// Clock abstracts wall-clock reads and sleeps so the recovery layer's
// backoff sleeps and breaker failure timestamps are deterministic under
// test. Production code wires in a real-time implementation. The
// breaker's open-state timeout and the monitor's alert-resolution
// windows do not go through Clock.
type Clock interface {
	NowSeconds() float64
	Sleep(ctx context.Context, d float64) error
}

// Persistence durably records executions. This is
// fire-and-forget from the engine's perspective: SaveExecution failures
// are logged by the caller and never alter execution status or roll back
// any in-memory state.
type Persistence interface {
	SaveExecution(ctx context.Context, contextID string, snapshot map[string]any, tenantID, executorID string, config map[string]any, debug, enableParallel bool) error
}

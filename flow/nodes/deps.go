// Package nodes is the node runtime: one file per node type tag,
// each self-registering into a flow.Registry the way a database/sql
// driver registers into the sql package — flow/nodes imports flow, never
// the reverse, so there is no import cycle between the registry and its
// registrants.
//
// Node types that need no external collaborator (condition, parser,
// data_transformer, http_request, code_executor, and the four
// supplemental types) register themselves in init() against
// flow.DefaultRegistry. Node types that call out to a provider (llm,
// rag_retriever, hybrid_retriever, retriever, reranker, classifier,
// embeddings) also self-register in init() so Validate never rejects
// them as unknown, but their zero-value collaborator dependency errors
// out at run time until a deployment calls Configure with real adapters.
package nodes

import (
	"net/http"
	"time"

	"github.com/ragforge/flowengine/flow"
	"github.com/ragforge/flowengine/flow/collab"
	"github.com/ragforge/flowengine/flow/sandbox"
)

// Dependencies bundles every collaborator the registry-based node types
// consume. A deployment constructs one Dependencies
// value and calls Configure to wire it into a flow.Registry (defaulting
// to flow.DefaultRegistry).
type Dependencies struct {
	Chat       collab.ChatProvider
	Embeddings collab.EmbeddingProvider
	Rerank     collab.RerankProvider
	Vector     collab.VectorStore
	Keyword    collab.KeywordIndex // optional; nil means "no keyword search available"
	Identity   collab.IdentityService

	// HTTPClient backs the http_request node type. Defaults to a client
	// with no global timeout (the node applies its own per-call timeout
	// from config).
	HTTPClient *http.Client

	// Sandbox backs the code_executor node type. Defaults to
	// sandbox.PythonExecutor{}.
	Sandbox sandbox.Executor
}

func (d Dependencies) withDefaults() Dependencies {
	if d.HTTPClient == nil {
		d.HTTPClient = &http.Client{}
	}
	if d.Sandbox == nil {
		d.Sandbox = sandbox.PythonExecutor{}
	}
	return d
}

// depErr formats the "no collaborator configured" runtime error a
// dependency-needing node type returns until Configure wires a real one.
// These surface as a KindConfiguration-classified error (keyword
// "missing"/"configuration"), which the recovery layer's default policy
// turns into use_default_value — a deliberately soft landing rather than
// a panic.
func depErr(nodeType, collaborator string) error {
	return &flow.WorkflowError{
		Message: nodeType + ": missing configuration — no " + collaborator + " configured",
		Kind:    string(flow.KindConfiguration),
	}
}

// Register installs every node type this package knows about into reg,
// using deps for the types that need a collaborator. Stateless types are
// re-registered too (replacing their init()-installed zero-dependency
// factories), so a deployment that calls Register always gets a fully
// wired registry regardless of init() ordering.
func Register(reg *flow.Registry, deps Dependencies) {
	deps = deps.withDefaults()
	registerInput(reg)
	registerOutput(reg)
	registerLLM(reg, deps)
	registerRAGRetriever(reg, deps)
	registerHybridRetriever(reg, deps)
	registerRetrieverDispatch(reg, deps)
	registerReranker(reg, deps)
	registerClassifier(reg, deps)
	registerParser(reg)
	registerCondition(reg)
	registerDataTransformer(reg)
	registerEmbeddings(reg, deps)
	registerHTTPRequest(reg, deps)
	registerCodeExecutor(reg, deps)
	registerTextSplitter(reg)
	registerDataFilter(reg)
	registerDataAggregator(reg)
	registerCrypto(reg)
}

// Configure wires deps into flow.DefaultRegistry. Call this once at
// startup after constructing the concrete collaborator adapters.
func Configure(deps Dependencies) {
	Register(flow.DefaultRegistry, deps)
}

func init() {
	// Register every type against the zero-value Dependencies so an
	// unconfigured deployment still passes Validate; dependency-needing
	// runners return depErr until Configure replaces them.
	Register(flow.DefaultRegistry, Dependencies{})
}

// defaultHTTPTimeout is used by http_request when config.timeout is
// absent.
const defaultHTTPTimeout = 30 * time.Second

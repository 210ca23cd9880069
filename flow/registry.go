package flow

import (
	"context"
	"fmt"
	"sync"
)

// NodeRunner executes one node type. Implementations live in flow/nodes
// and are registered into a Registry via RegisterNodeType; the wiring is
// name-keyed (closed tag set, open registry)
// rather than constructor-injected per node instance.
type NodeRunner interface {
	// Run executes the node given its resolved input and returns its
	// published output map. execCtx is the owning execution, provided so
	// runners can read global_context or (rarely) append diagnostic
	// metrics; runners must never mutate execCtx.Steps directly.
	Run(ctx context.Context, n *Node, input map[string]any, execCtx *ExecutionContext) (map[string]any, error)
}

// NodeRunnerFunc adapts a plain function to NodeRunner.
type NodeRunnerFunc func(ctx context.Context, n *Node, input map[string]any, execCtx *ExecutionContext) (map[string]any, error)

// Run implements NodeRunner.
func (f NodeRunnerFunc) Run(ctx context.Context, n *Node, input map[string]any, execCtx *ExecutionContext) (map[string]any, error) {
	return f(ctx, n, input, execCtx)
}

// Priority is the scheduler's coarse ordering class.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// TypeDefaults carries the scheduler inputs that are properties of a node
// type rather than of any one instance: its default priority, baseline
// resource estimate, whether it is parallelizable at all, and whether it
// is an "exclusive" type that may not share a batch with another instance
// of the same exclusive type (llm, rag_retriever).
type TypeDefaults struct {
	Priority        Priority
	Resources       Resources
	DurationEstimate float64 // seconds
	Parallelizable  bool
	Exclusive       bool
}

// Factory builds a NodeRunner for one node instance; most node types
// ignore the instance and return a stateless runner; http_request and
// code_executor runners close over a shared HTTP client or sandbox and
// read their timeouts from the node's config on each call.
type Factory func(n *Node) (NodeRunner, error)

type registeredType struct {
	factory  Factory
	defaults TypeDefaults
}

// Registry is the process-wide, open set of node type tags the engine
// knows how to run. One Registry instance backs one Engine; node types
// self-register via RegisterNodeType from an init() in flow/nodes,
// mirroring database/sql driver registration so flow/nodes can import
// flow without flow importing flow/nodes back (see flow/nodes doc
// comment for the full rationale).
type Registry struct {
	mu    sync.RWMutex
	types map[string]registeredType
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]registeredType)}
}

// DefaultRegistry is the shared registry flow/nodes types self-register
// into. An Engine uses this unless constructed WithRegistry(custom).
var DefaultRegistry = NewRegistry()

// RegisterNodeType adds or replaces the factory and scheduler defaults for
// a type tag. Called from flow/nodes package init()s.
func RegisterNodeType(r *Registry, typeTag string, factory Factory, defaults TypeDefaults) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[typeTag] = registeredType{factory: factory, defaults: defaults}
}

// Lookup returns the factory and defaults for typeTag, or ok=false if the
// tag is unregistered.
func (r *Registry) Lookup(typeTag string) (Factory, TypeDefaults, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.types[typeTag]
	if !ok {
		return nil, TypeDefaults{}, false
	}
	return rt.factory, rt.defaults, true
}

// Has reports whether typeTag is registered.
func (r *Registry) Has(typeTag string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.types[typeTag]
	return ok
}

// Build constructs a runner for n, returning ErrUnknownNodeType if n.Type
// is not registered.
func (r *Registry) Build(n *Node) (NodeRunner, TypeDefaults, error) {
	factory, defaults, ok := r.Lookup(n.Type)
	if !ok {
		return nil, TypeDefaults{}, fmt.Errorf("%w: %q (node %s)", ErrUnknownNodeType, n.Type, n.ID)
	}
	runner, err := factory(n)
	if err != nil {
		return nil, defaults, err
	}
	return runner, defaults, nil
}

// TenantCollection is the single shared naming helper both VectorStore
// and KeywordIndex callers use so the tenant_{id}_{kb} convention cannot
// drift between the vector and keyword retrieval paths.
func TenantCollection(tenantID, kb string) string {
	return "tenant_" + tenantID + "_" + kb
}

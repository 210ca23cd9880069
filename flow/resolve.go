package flow

import (
	"fmt"
	"sync"

	"github.com/ragforge/flowengine/flow/exprsafe"
	"github.com/ragforge/flowengine/flow/tmpl"
)

// ExprCache compiles and memoizes per-edge condition and transform
// expressions. One ExprCache is shared by an Engine across executions —
// a definition's edges never change after Validate accepts it, so
// compiled expressions are reused for the lifetime of the process.
type ExprCache struct {
	mu         sync.Mutex
	conditions map[string]*exprsafe.Condition
	transforms map[string]*exprsafe.Transform
}

// NewExprCache returns an empty cache.
func NewExprCache() *ExprCache {
	return &ExprCache{
		conditions: make(map[string]*exprsafe.Condition),
		transforms: make(map[string]*exprsafe.Transform),
	}
}

func (c *ExprCache) condition(edgeID, src string) (*exprsafe.Condition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cond, ok := c.conditions[edgeID]; ok {
		return cond, nil
	}
	cond, err := exprsafe.CompileCondition(src)
	if err != nil {
		return nil, err
	}
	c.conditions[edgeID] = cond
	return cond, nil
}

func (c *ExprCache) transform(edgeID, src string) (*exprsafe.Transform, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if tr, ok := c.transforms[edgeID]; ok {
		return tr, nil
	}
	tr, err := exprsafe.CompileTransform(src)
	if err != nil {
		return nil, err
	}
	c.transforms[edgeID] = tr
	return tr, nil
}

// sourceKeyPriority and targetKeyPriority implement the universal-alias
// resolution order for incoming edges.
var sourceKeyPriority = []string{"content", "result", "documents", "data"}
var targetKeyPrimary = []string{"prompt", "query", "text"}
var targetKeyFallback = []string{"data", "prompt", "text"}

// ResolveInput produces the input mapping delivered to node n for one
// execution. outputs maps each already-executed node id to its published
// output map; execInput and globalContext are the execution's overall
// input_data and global_context. onTransformError, if non-nil, receives
// any transform evaluation failure (logged by the caller, never fatal).
func ResolveInput(def *WorkflowDefinition, n *Node, outputs map[string]map[string]any, execInput, globalContext map[string]any, cache *ExprCache, onTransformError func(edgeID string, err error)) (map[string]any, error) {
	input := map[string]any{}
	contributed := false

	for i := range def.Edges {
		edge := def.Edges[i]
		if edge.Target != n.ID {
			continue
		}
		O, ok := outputs[edge.Source]
		if !ok {
			continue // source hasn't run (e.g. skipped by its own condition upstream)
		}
		srcNode := def.NodeByID(edge.Source)
		key := resolveSourceKey(edge.SourceOutput, srcNode, O)
		var value any
		if v, present := O[key]; present {
			value = v
		} else {
			value = O
		}

		if edge.Condition != "" {
			cond, err := cache.condition(edge.ID, edge.Condition)
			if err != nil {
				return nil, fmt.Errorf("edge %s: %w", edge.ID, err)
			}
			// value binds to the resolved source output so conditions
			// like `value == "active"` gate on real data.
			if !cond.Eval(exprsafe.Roots{Value: value, Input: execInput, Context: globalContext}) {
				continue
			}
		}

		if edge.Transform != "" {
			tr, err := cache.transform(edge.ID, edge.Transform)
			if err != nil {
				return nil, fmt.Errorf("edge %s: %w", edge.ID, err)
			}
			value = tr.Eval(exprsafe.Roots{Value: value, Input: execInput, Context: globalContext}, func(err error) {
				if onTransformError != nil {
					onTransformError(edge.ID, err)
				}
			})
			if value == nil {
				// Eval reported failure via onTransformError; fall back to
				// the untransformed value.
				if v, present := O[key]; present {
					value = v
				} else {
					value = O
				}
			}
		}

		targetKey := resolveTargetKey(edge.TargetInput, n)
		assignInput(input, targetKey, value)
		contributed = true
	}

	if !contributed {
		input = cloneMap(execInput)
		if input == nil {
			input = map[string]any{}
		}
	}

	applyConfigOverrides(input, n, execInput, globalContext)
	return input, nil
}

func resolveSourceKey(k string, srcNode *Node, O map[string]any) string {
	if !IsOutputAlias(k) {
		return k
	}
	if _, ok := O[k]; ok {
		return k
	}
	for _, cand := range sourceKeyPriority {
		if _, ok := O[cand]; ok {
			return cand
		}
	}
	if srcNode != nil && srcNode.Signature != nil && len(srcNode.Signature.Outputs) > 0 {
		return srcNode.Signature.Outputs[0].Name
	}
	return k
}

func resolveTargetKey(k string, n *Node) string {
	if !IsInputAlias(k) {
		return k
	}
	declared := map[string]bool{}
	var firstDeclared string
	if n.Signature != nil {
		for i, p := range n.Signature.Inputs {
			declared[p.Name] = true
			if i == 0 {
				firstDeclared = p.Name
			}
		}
	}
	for _, want := range targetKeyPrimary {
		if declared[want] {
			return want
		}
	}
	for _, want := range targetKeyFallback {
		if declared[want] {
			return want
		}
	}
	if firstDeclared != "" {
		return firstDeclared
	}
	return AliasInput
}

func assignInput(input map[string]any, key string, value any) {
	if key == "data" {
		if existing, ok := input[key].(map[string]any); ok {
			if incoming, ok := value.(map[string]any); ok {
				merged := make(map[string]any, len(existing)+len(incoming))
				for k, v := range existing {
					merged[k] = v
				}
				for k, v := range incoming {
					merged[k] = v
				}
				input[key] = merged
				return
			}
		}
	}
	input[key] = value
}

func applyConfigOverrides(input map[string]any, n *Node, execInput, globalContext map[string]any) {
	overrides := n.ConfigOverrides()
	for k, v := range overrides {
		existing, present := input[k]
		if present && !isEmptyValue(existing) {
			continue
		}
		if s, ok := v.(string); ok {
			v = tmpl.Render(s, tmpl.Roots{Data: input, Input: execInput, Context: globalContext})
		}
		input[k] = v
	}
}

func isEmptyValue(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	}
	return false
}

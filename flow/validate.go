package flow

import (
	"fmt"

	"github.com/ragforge/flowengine/flow/exprsafe"
)

// Validate checks a definition for structural soundness before any
// execution is accepted: every node type is registered, every edge
// references existing nodes, the graph is acyclic, and every
// condition/transform expression parses. Edge port names are not checked
// against node signatures. It never mutates def — validation failures
// abort before execution starts; they are never runtime errors.
func Validate(def *WorkflowDefinition, reg *Registry, cache *ExprCache) *Report {
	report := &Report{OK: true}
	ids := make(map[string]bool, len(def.Nodes))

	for i := range def.Nodes {
		n := &def.Nodes[i]
		if n.ID == "" {
			report.addError("node has empty id", "", "")
			continue
		}
		if ids[n.ID] {
			report.addError(fmt.Sprintf("duplicate node id %q", n.ID), n.ID, "")
			continue
		}
		ids[n.ID] = true
		if !reg.Has(n.Type) {
			report.addError(fmt.Sprintf("%v: %q", ErrUnknownNodeType, n.Type), n.ID, "")
		}
	}

	for i := range def.Edges {
		e := &def.Edges[i]
		if !ids[e.Source] {
			report.addError(fmt.Sprintf("%v: source %q", ErrDanglingEdge, e.Source), "", e.ID)
		}
		if !ids[e.Target] {
			report.addError(fmt.Sprintf("%v: target %q", ErrDanglingEdge, e.Target), "", e.ID)
		}
		if e.Condition != "" {
			if _, err := exprsafe.CompileCondition(e.Condition); err != nil {
				report.addError(fmt.Sprintf("edge %s: invalid condition: %v", e.ID, err), "", e.ID)
			} else if cache != nil {
				_, _ = cache.condition(e.ID, e.Condition)
			}
		}
		if e.Transform != "" {
			if _, err := exprsafe.CompileTransform(e.Transform); err != nil {
				report.addError(fmt.Sprintf("edge %s: invalid transform: %v", e.ID, err), "", e.ID)
			} else if cache != nil {
				_, _ = cache.transform(e.ID, e.Transform)
			}
		}
	}

	if report.OK {
		if _, err := TopoSort(def); err != nil {
			report.addError(err.Error(), "", "")
		}
	}

	validateRequiredInputs(def, report)

	return report
}

// validateRequiredInputs reports a warning, not an error, for each
// required input port declared in a node's signature that receives no
// contribution from any inbound edge (neither by name nor through the
// input alias). `input` nodes, which flatten the caller's payload, are
// skipped.
func validateRequiredInputs(def *WorkflowDefinition, report *Report) {
	hasInbound := make(map[string]map[string]bool)
	for i := range def.Edges {
		e := &def.Edges[i]
		if hasInbound[e.Target] == nil {
			hasInbound[e.Target] = map[string]bool{}
		}
		hasInbound[e.Target][e.TargetInput] = true
	}
	for i := range def.Nodes {
		n := &def.Nodes[i]
		if n.Type == "input" || n.Signature == nil {
			continue
		}
		for _, p := range n.Signature.Inputs {
			if !p.Required {
				continue
			}
			ports := hasInbound[n.ID]
			if ports[p.Name] || ports[AliasInput] || ports[AliasInput0] {
				continue
			}
			report.addWarning(fmt.Sprintf("required input %q has no contributing edge", p.Name), n.ID, "")
		}
	}
}

// TopoSort returns a topological order of def's nodes, or ErrCyclicGraph
// if the graph is not a DAG. Implemented as Kahn's algorithm — repeatedly
// remove zero-in-degree nodes — no recursion, so deep
// on recursive traversal for potentially deep graphs.
func TopoSort(def *WorkflowDefinition) ([]string, error) {
	indeg := make(map[string]int, len(def.Nodes))
	succ := make(map[string][]string, len(def.Nodes))
	for i := range def.Nodes {
		indeg[def.Nodes[i].ID] = 0
	}
	for i := range def.Edges {
		e := &def.Edges[i]
		if _, ok := indeg[e.Target]; !ok {
			continue // dangling edge; Validate reports this separately
		}
		indeg[e.Target]++
		succ[e.Source] = append(succ[e.Source], e.Target)
	}

	var queue []string
	for i := range def.Nodes {
		id := def.Nodes[i].ID
		if indeg[id] == 0 {
			queue = append(queue, id)
		}
	}

	var order []string
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, next := range succ[id] {
			indeg[next]--
			if indeg[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(order) != len(def.Nodes) {
		return nil, ErrCyclicGraph
	}
	return order, nil
}

// Descendants returns the set of node ids reachable from startID
// (exclusive of startID itself), used by partial re-execution.
func Descendants(def *WorkflowDefinition, startID string) map[string]bool {
	succ := make(map[string][]string, len(def.Nodes))
	for i := range def.Edges {
		e := &def.Edges[i]
		succ[e.Source] = append(succ[e.Source], e.Target)
	}
	visited := map[string]bool{}
	queue := append([]string(nil), succ[startID]...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true
		queue = append(queue, succ[id]...)
	}
	return visited
}

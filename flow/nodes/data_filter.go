package nodes

import (
	"context"
	"fmt"

	"github.com/ragforge/flowengine/flow"
	"github.com/ragforge/flowengine/flow/exprsafe"
)

// registerDataFilter installs the data_filter node type, per
// a predicate over a collection input. Unlike data_transformer's
// advanced_node_executors.execute_data_filter_node, the "condition"
// filter_type is evaluated through the exprsafe restricted grammar
// rather than Python eval — a deliberate safety fix, not a faithful
// port.
func registerDataFilter(reg *flow.Registry) {
	flow.RegisterNodeType(reg, "data_filter", func(n *flow.Node) (flow.NodeRunner, error) {
		return flow.NodeRunnerFunc(runDataFilter), nil
	}, flow.TypeDefaults{
		Priority:       flow.PriorityNormal,
		Resources:      flow.Resources{CPUCores: 0.1, MemoryMB: 32},
		Parallelizable: true,
	})
}

func runDataFilter(ctx context.Context, n *flow.Node, input map[string]any, execCtx *flow.ExecutionContext) (map[string]any, error) {
	items := toItemSlice(input["data"])
	filterType := n.ConfigString("filter_type")

	var filtered []any
	var err error
	switch filterType {
	case "key_exists":
		filtered = filterKeyExists(items, n.ConfigString("key"))
	case "value_range":
		filtered = filterValueRange(items, n.ConfigString("field"), n.Config["min"], n.Config["max"])
	case "unique":
		filtered = filterUnique(items, n.ConfigString("field"))
	default:
		filtered, err = filterByCondition(items, n.ConfigString("condition"))
	}
	if err != nil {
		return nil, &flow.WorkflowError{Message: "data_filter: " + err.Error(), NodeID: n.ID, Kind: string(flow.KindValidation)}
	}

	return map[string]any{
		"filtered_data":  filtered,
		"original_count": len(items),
		"filtered_count": len(filtered),
		"filter_type":    filterType,
	}, nil
}

func toItemSlice(data any) []any {
	if arr, ok := data.([]any); ok {
		return arr
	}
	if data == nil {
		return nil
	}
	return []any{data}
}

func filterByCondition(items []any, src string) ([]any, error) {
	if src == "" {
		return items, nil
	}
	cond, err := exprsafe.CompileCondition(src)
	if err != nil {
		return nil, fmt.Errorf("invalid condition: %w", err)
	}
	out := make([]any, 0, len(items))
	for _, item := range items {
		if cond.Eval(exprsafe.Roots{Value: item}) {
			out = append(out, item)
		}
	}
	return out, nil
}

func filterKeyExists(items []any, key string) []any {
	out := make([]any, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if _, present := m[key]; present {
			out = append(out, item)
		}
	}
	return out
}

func filterValueRange(items []any, field string, min, max any) []any {
	minF, hasMin := asFloat(min)
	maxF, hasMax := asFloat(max)
	out := make([]any, 0, len(items))
	for _, item := range items {
		v := fieldOf(item, field)
		f, ok := asFloat(v)
		if !ok {
			continue
		}
		if hasMin && f < minF {
			continue
		}
		if hasMax && f > maxF {
			continue
		}
		out = append(out, item)
	}
	return out
}

func filterUnique(items []any, field string) []any {
	seen := map[string]bool{}
	out := make([]any, 0, len(items))
	for _, item := range items {
		var key string
		if field != "" {
			key = fmt.Sprint(fieldOf(item, field))
		} else {
			key = fmt.Sprint(item)
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, item)
	}
	return out
}

func fieldOf(item any, field string) any {
	if field == "" {
		return item
	}
	m, ok := item.(map[string]any)
	if !ok {
		return nil
	}
	return m[field]
}

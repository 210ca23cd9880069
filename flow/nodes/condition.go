package nodes

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ragforge/flowengine/flow"
	"github.com/ragforge/flowengine/flow/tmpl"
)

// registerCondition installs the condition node type: a
// fixed four-operator comparison (plus truthiness fallback) over a value
// pulled either directly from input.value or from input.data via a dotted
// field_path, distinct from the exprsafe grammar edges use for branch
// gating — this node type exists so a workflow author can branch on one
// named field without writing an expression at all.
func registerCondition(reg *flow.Registry) {
	flow.RegisterNodeType(reg, "condition", func(n *flow.Node) (flow.NodeRunner, error) {
		return flow.NodeRunnerFunc(runCondition), nil
	}, flow.TypeDefaults{
		Priority:       flow.PriorityNormal,
		Resources:      flow.Resources{CPUCores: 0.1, MemoryMB: 16},
		Parallelizable: true,
	})
}

func runCondition(ctx context.Context, n *flow.Node, input map[string]any, execCtx *flow.ExecutionContext) (map[string]any, error) {
	data, _ := input["data"].(map[string]any)

	var evaluated any
	if v, ok := input["value"]; ok {
		evaluated = v
	} else if fieldPath, ok := n.Config["field_path"].(string); ok && fieldPath != "" {
		v, _ := tmpl.Lookup(fieldPath, tmpl.Roots{Data: data})
		evaluated = v
	} else {
		evaluated = data
	}

	condType := n.ConfigString("condition_type")
	condValue := n.Config["condition_value"]

	var result bool
	switch condType {
	case "equals":
		result = fmt.Sprint(evaluated) == fmt.Sprint(condValue)
	case "contains":
		result = containsValue(evaluated, condValue)
	case "greater_than":
		a, aok := asFloat(evaluated)
		b, bok := asFloat(condValue)
		result = aok && bok && a > b
	case "less_than":
		a, aok := asFloat(evaluated)
		b, bok := asFloat(condValue)
		result = aok && bok && a < b
	default:
		result = truthy(evaluated)
	}

	return map[string]any{
		"condition_result": result,
		"evaluated_value":  evaluated,
		"condition_type":   condType,
		"condition_value":  condValue,
		"data":             data,
	}, nil
}

func containsValue(haystack, needle any) bool {
	switch h := haystack.(type) {
	case string:
		return strings.Contains(h, fmt.Sprint(needle))
	case []any:
		for _, v := range h {
			if fmt.Sprint(v) == fmt.Sprint(needle) {
				return true
			}
		}
		return false
	case map[string]any:
		_, ok := h[fmt.Sprint(needle)]
		return ok
	default:
		return false
	}
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case float64:
		return x != 0
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	default:
		return true
	}
}

package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/ragforge/flowengine/flow"
)

// registerDataAggregator installs the data_aggregator node type, per
// grouping and numeric aggregation over a collection input.
func registerDataAggregator(reg *flow.Registry) {
	flow.RegisterNodeType(reg, "data_aggregator", func(n *flow.Node) (flow.NodeRunner, error) {
		return flow.NodeRunnerFunc(runDataAggregator), nil
	}, flow.TypeDefaults{
		Priority:       flow.PriorityNormal,
		Resources:      flow.Resources{CPUCores: 0.1, MemoryMB: 32},
		Parallelizable: true,
	})
}

func runDataAggregator(ctx context.Context, n *flow.Node, input map[string]any, execCtx *flow.ExecutionContext) (map[string]any, error) {
	items := toItemSlice(input["data"])
	field := n.ConfigString("field")
	aggregation := n.ConfigString("aggregation")
	if aggregation == "" {
		aggregation = "count"
	}

	result, err := aggregate(items, field, aggregation)
	if err != nil {
		return nil, &flow.WorkflowError{Message: "data_aggregator: " + err.Error(), NodeID: n.ID, Kind: string(flow.KindData)}
	}

	return map[string]any{
		"result":      result,
		"count":       len(items),
		"aggregation": aggregation,
	}, nil
}

func aggregate(items []any, field, aggregation string) (any, error) {
	switch aggregation {
	case "count":
		return len(items), nil
	case "concat":
		parts := make([]string, 0, len(items))
		for _, item := range items {
			v := fieldOf(item, field)
			if v == nil {
				v = item
			}
			parts = append(parts, fmt.Sprint(v))
		}
		return strings.Join(parts, ""), nil
	case "sum", "avg", "min", "max":
		return aggregateNumeric(items, field, aggregation)
	default:
		return nil, fmt.Errorf("unsupported aggregation %q", aggregation)
	}
}

func aggregateNumeric(items []any, field, aggregation string) (any, error) {
	var nums []float64
	for _, item := range items {
		v := fieldOf(item, field)
		if v == nil {
			v = item
		}
		f, ok := asFloat(v)
		if !ok {
			continue
		}
		nums = append(nums, f)
	}
	if len(nums) == 0 {
		return 0.0, nil
	}
	switch aggregation {
	case "sum":
		var sum float64
		for _, f := range nums {
			sum += f
		}
		return sum, nil
	case "avg":
		var sum float64
		for _, f := range nums {
			sum += f
		}
		return sum / float64(len(nums)), nil
	case "min":
		min := nums[0]
		for _, f := range nums[1:] {
			if f < min {
				min = f
			}
		}
		return min, nil
	case "max":
		max := nums[0]
		for _, f := range nums[1:] {
			if f > max {
				max = f
			}
		}
		return max, nil
	}
	return nil, fmt.Errorf("unsupported aggregation %q", aggregation)
}

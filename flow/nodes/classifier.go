package nodes

import (
	"context"
	"strings"

	"github.com/ragforge/flowengine/flow"
	"github.com/ragforge/flowengine/flow/collab"
)

// registerClassifier installs the classifier node type: prompt an LLM
// with the candidate labels and derive a heuristic
// confidence from how cleanly the response matches one of them.
func registerClassifier(reg *flow.Registry, deps Dependencies) {
	flow.RegisterNodeType(reg, "classifier", func(n *flow.Node) (flow.NodeRunner, error) {
		return flow.NodeRunnerFunc(func(ctx context.Context, n *flow.Node, input map[string]any, execCtx *flow.ExecutionContext) (map[string]any, error) {
			return runClassifier(ctx, n, input, execCtx, deps.Chat)
		}), nil
	}, flow.TypeDefaults{
		Priority:       flow.PriorityNormal,
		Resources:      flow.Resources{CPUCores: 0.2, MemoryMB: 64, NetworkMbps: 1},
		Parallelizable: true,
	})
}

func runClassifier(ctx context.Context, n *flow.Node, input map[string]any, execCtx *flow.ExecutionContext, chat collab.ChatProvider) (map[string]any, error) {
	if chat == nil {
		return nil, depErr("classifier", "chat provider")
	}
	text, _ := input["text"].(string)
	classes := configStringList(n.Config, "classes")
	if len(classes) == 0 {
		return nil, &flow.WorkflowError{Message: "classifier: missing configuration — no classes configured", Kind: string(flow.KindConfiguration)}
	}

	prompt := "Classify the following text into exactly one of these categories: " +
		strings.Join(classes, ", ") + ".\nRespond with only the category name.\n\nText: " + text

	model := n.ConfigString("model")
	tenantID, userID := tenantUser(execCtx)
	result, err := chat.Chat(ctx, prompt, model, 0, 64, tenantID, userID)
	if err != nil || !result.Success {
		return nil, &flow.WorkflowError{Message: "classifier: LLM call failed", NodeID: n.ID, Kind: string(flow.KindExecution)}
	}

	class, confidence := matchClass(result.Message, classes)

	return map[string]any{
		"class":        class,
		"confidence":   confidence,
		"all_classes":  classes,
		"raw_response": result.Message,
	}, nil
}

// matchClass picks the candidate class that appears in response, giving
// an exact (trimmed, case-insensitive) match the highest confidence and
// a merely-contained match a lower one; no match at all reports the
// first candidate with zero confidence rather than an empty class.
func matchClass(response string, classes []string) (string, float64) {
	trimmed := strings.ToLower(strings.TrimSpace(response))
	for _, c := range classes {
		if strings.ToLower(c) == trimmed {
			return c, 0.95
		}
	}
	for _, c := range classes {
		if strings.Contains(trimmed, strings.ToLower(c)) {
			return c, 0.6
		}
	}
	return classes[0], 0.0
}

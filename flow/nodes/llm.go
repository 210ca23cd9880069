package nodes

import (
	"context"

	"github.com/ragforge/flowengine/flow"
	"github.com/ragforge/flowengine/flow/collab"
	"github.com/ragforge/flowengine/flow/tmpl"
)

// registerLLM installs the llm node type: render the
// system and user prompts against data/input/context, call the
// configured ChatProvider, and publish its token/finish-reason metadata.
func registerLLM(reg *flow.Registry, deps Dependencies) {
	flow.RegisterNodeType(reg, "llm", func(n *flow.Node) (flow.NodeRunner, error) {
		return flow.NodeRunnerFunc(func(ctx context.Context, n *flow.Node, input map[string]any, execCtx *flow.ExecutionContext) (map[string]any, error) {
			return runLLM(ctx, n, input, execCtx, deps.Chat)
		}), nil
	}, flow.TypeDefaults{
		Priority:         flow.PriorityHigh,
		Resources:        flow.Resources{CPUCores: 0.2, MemoryMB: 64, NetworkMbps: 2},
		DurationEstimate: 3,
		Parallelizable:   true,
		Exclusive:        true,
	})
}

func runLLM(ctx context.Context, n *flow.Node, input map[string]any, execCtx *flow.ExecutionContext, chat collab.ChatProvider) (map[string]any, error) {
	if chat == nil {
		return nil, depErr("llm", "chat provider")
	}

	promptKey := n.ConfigString("prompt_key")
	if promptKey == "" {
		promptKey = "prompt"
	}
	prompt, _ := input[promptKey].(string)
	if prompt == "" {
		prompt, _ = input["prompt"].(string)
	}
	if prompt == "" {
		return nil, &flow.WorkflowError{Message: "llm: missing required prompt", Kind: string(flow.KindValidation)}
	}

	systemPrompt, _ := input["system_prompt"].(string)
	if systemPrompt == "" {
		systemPrompt = n.ConfigString("system_prompt")
	}

	r := roots(input, execCtx)
	prompt = tmpl.Render(prompt, r)
	message := prompt
	if systemPrompt != "" {
		message = tmpl.Render(systemPrompt, r) + "\n\n" + prompt
	}

	model := n.ConfigString("model")
	temperature := configFloat(n.Config, "temperature", 0.7)
	maxTokens := configInt(n.Config, "max_tokens", 1024)
	tenantID, userID := tenantUser(execCtx)

	result, err := chat.Chat(ctx, message, model, temperature, maxTokens, tenantID, userID)
	if err != nil {
		return nil, &flow.WorkflowError{Message: "LLMError: " + err.Error(), NodeID: n.ID, Kind: string(flow.KindExecution)}
	}
	if !result.Success {
		return nil, &flow.WorkflowError{Message: "LLMError: " + result.Error, NodeID: n.ID, Kind: string(flow.KindExecution)}
	}

	return map[string]any{
		"content": result.Message,
		"metadata": map[string]any{
			"tokens_used":   result.Usage.TotalTokens,
			"model":         result.Model,
			"finish_reason": "stop",
		},
	}, nil
}

// tenantUser reads the tenant/user identifiers the caller merged into
// global_context at execution start (the engine's snapshot
// convention: the engine itself carries no tenancy concept).
func tenantUser(execCtx *flow.ExecutionContext) (tenantID, userID string) {
	if execCtx == nil || execCtx.GlobalContext == nil {
		return "", ""
	}
	tenantID, _ = execCtx.GlobalContext["tenant_id"].(string)
	userID, _ = execCtx.GlobalContext["user_id"].(string)
	return tenantID, userID
}

// roots builds the standard Data/Input/Context template roots a node
// uses to render its own config strings (distinct from ResolveInput's
// edge-level template application, which only covers config.overrides).
func roots(input map[string]any, execCtx *flow.ExecutionContext) tmpl.Roots {
	r := tmpl.Roots{Data: input, Input: input}
	if execCtx != nil {
		r.Context = execCtx.GlobalContext
	}
	return r
}

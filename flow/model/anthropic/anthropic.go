// Package anthropic implements model.ChatModel over the official
// Anthropic SDK.
package anthropic

import (
	"context"
	"errors"
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ragforge/flowengine/flow/model"
)

const defaultModel = "claude-sonnet-4-5-20250929"

// ChatModel calls Anthropic's Messages API. The system prompt is
// extracted from the message list since Anthropic takes it as a
// separate parameter.
type ChatModel struct {
	modelName string
	client    messagesClient
}

// messagesClient is the seam between request shaping and the SDK, so
// tests can substitute a fake without network access.
type messagesClient interface {
	createMessage(ctx context.Context, systemPrompt string, req model.Request) (model.ChatOut, error)
}

// NewChatModel builds a ChatModel for the given key and model name
// (empty modelName selects a current Claude Sonnet default).
func NewChatModel(apiKey, modelName string) *ChatModel {
	if modelName == "" {
		modelName = defaultModel
	}
	return &ChatModel{
		modelName: modelName,
		client:    &sdkClient{apiKey: apiKey, modelName: modelName},
	}
}

var _ model.ChatModel = (*ChatModel)(nil)

// Chat implements model.ChatModel.
func (m *ChatModel) Chat(ctx context.Context, req model.Request) (model.ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return model.ChatOut{}, err
	}
	systemPrompt, conversation := splitSystemPrompt(req.Messages)
	req.Messages = conversation
	return m.client.createMessage(ctx, systemPrompt, req)
}

// splitSystemPrompt concatenates system messages (Anthropic takes them
// as a separate parameter) and returns the remaining conversation.
func splitSystemPrompt(messages []model.Message) (string, []model.Message) {
	var systemPrompt string
	var conversation []model.Message
	for _, msg := range messages {
		if msg.Role == model.RoleSystem {
			if systemPrompt != "" {
				systemPrompt += "\n\n"
			}
			systemPrompt += msg.Content
			continue
		}
		conversation = append(conversation, msg)
	}
	return systemPrompt, conversation
}

// sdkClient is the real SDK-backed messagesClient.
type sdkClient struct {
	apiKey    string
	modelName string
}

func (c *sdkClient) createMessage(ctx context.Context, systemPrompt string, req model.Request) (model.ChatOut, error) {
	if c.apiKey == "" {
		return model.ChatOut{}, errors.New("anthropic API key is required")
	}
	client := anthropicsdk.NewClient(option.WithAPIKey(c.apiKey))

	modelName := req.Model
	if modelName == "" {
		modelName = c.modelName
	}
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(modelName),
		Messages:  convertMessages(req.Messages),
		MaxTokens: maxTokens,
	}
	if systemPrompt != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: systemPrompt}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropicsdk.Float(req.Temperature)
	}

	resp, err := client.Messages.New(ctx, params)
	if err != nil {
		return model.ChatOut{}, fmt.Errorf("anthropic API error: %w", err)
	}
	return convertResponse(resp), nil
}

func convertMessages(messages []model.Message) []anthropicsdk.MessageParam {
	result := make([]anthropicsdk.MessageParam, len(messages))
	for i, msg := range messages {
		switch msg.Role {
		case model.RoleAssistant:
			result[i] = anthropicsdk.NewAssistantMessage(anthropicsdk.NewTextBlock(msg.Content))
		default:
			result[i] = anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(msg.Content))
		}
	}
	return result
}

func convertResponse(resp *anthropicsdk.Message) model.ChatOut {
	out := model.ChatOut{
		Model:        string(resp.Model),
		FinishReason: string(resp.StopReason),
		Usage: model.Usage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}
	for _, block := range resp.Content {
		if text, ok := block.AsAny().(anthropicsdk.TextBlock); ok {
			if out.Text != "" {
				out.Text += "\n"
			}
			out.Text += text.Text
		}
	}
	return out
}

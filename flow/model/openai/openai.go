// Package openai implements model.ChatModel and model.EmbeddingModel
// over the official OpenAI SDK.
package openai

import (
	"context"
	"errors"
	"fmt"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/ragforge/flowengine/flow/model"
)

const (
	defaultChatModel      = "gpt-4o"
	defaultEmbeddingModel = "text-embedding-3-small"
)

// ChatModel calls OpenAI's chat completions API.
type ChatModel struct {
	modelName string
	client    completionsClient
}

// completionsClient is the seam between request shaping and the SDK, so
// tests can substitute a fake without network access.
type completionsClient interface {
	createChatCompletion(ctx context.Context, req model.Request) (model.ChatOut, error)
}

// NewChatModel builds a ChatModel for the given key and model name
// (empty modelName selects gpt-4o).
func NewChatModel(apiKey, modelName string) *ChatModel {
	if modelName == "" {
		modelName = defaultChatModel
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
	return m.client.createChatCompletion(ctx, req)
}

// sdkClient is the real SDK-backed completionsClient.
type sdkClient struct {
	apiKey    string
	modelName string
}

func (c *sdkClient) createChatCompletion(ctx context.Context, req model.Request) (model.ChatOut, error) {
	if c.apiKey == "" {
		return model.ChatOut{}, errors.New("OpenAI API key is required")
	}
	client := openaisdk.NewClient(option.WithAPIKey(c.apiKey))

	modelName := req.Model
	if modelName == "" {
		modelName = c.modelName
	}
	params := openaisdk.ChatCompletionNewParams{
		Model:    openaisdk.ChatModel(modelName),
		Messages: convertMessages(req.Messages),
	}
	if req.Temperature > 0 {
		params.Temperature = openaisdk.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openaisdk.Int(int64(req.MaxTokens))
	}

	resp, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return model.ChatOut{}, fmt.Errorf("OpenAI API error: %w", err)
	}
	return convertResponse(resp), nil
}

func convertMessages(messages []model.Message) []openaisdk.ChatCompletionMessageParamUnion {
	result := make([]openaisdk.ChatCompletionMessageParamUnion, len(messages))
	for i, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			result[i] = openaisdk.SystemMessage(msg.Content)
		case model.RoleAssistant:
			result[i] = openaisdk.AssistantMessage(msg.Content)
		default:
			result[i] = openaisdk.UserMessage(msg.Content)
		}
	}
	return result
}

func convertResponse(resp *openaisdk.ChatCompletion) model.ChatOut {
	out := model.ChatOut{
		Model: resp.Model,
		Usage: model.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}
	if len(resp.Choices) == 0 {
		return out
	}
	choice := resp.Choices[0]
	out.Text = choice.Message.Content
	out.FinishReason = choice.FinishReason
	return out
}

// EmbeddingModel calls OpenAI's embeddings API.
type EmbeddingModel struct {
	modelName string
	client    embeddingsClient
}

type embeddingsClient interface {
	createEmbeddings(ctx context.Context, texts []string, modelName string) ([][]float64, error)
}

// NewEmbeddingModel builds an EmbeddingModel for the given key and model
// name (empty modelName selects text-embedding-3-small).
func NewEmbeddingModel(apiKey, modelName string) *EmbeddingModel {
	if modelName == "" {
		modelName = defaultEmbeddingModel
	}
	return &EmbeddingModel{
		modelName: modelName,
		client:    &sdkEmbeddingsClient{apiKey: apiKey},
	}
}

var _ model.EmbeddingModel = (*EmbeddingModel)(nil)

// Embed implements model.EmbeddingModel.
func (m *EmbeddingModel) Embed(ctx context.Context, texts []string, modelName string) ([][]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if modelName == "" {
		modelName = m.modelName
	}
	return m.client.createEmbeddings(ctx, texts, modelName)
}

type sdkEmbeddingsClient struct {
	apiKey string
}

func (c *sdkEmbeddingsClient) createEmbeddings(ctx context.Context, texts []string, modelName string) ([][]float64, error) {
	if c.apiKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}
	client := openaisdk.NewClient(option.WithAPIKey(c.apiKey))

	resp, err := client.Embeddings.New(ctx, openaisdk.EmbeddingNewParams{
		Model: openaisdk.EmbeddingModel(modelName),
		Input: openaisdk.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	})
	if err != nil {
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}
	out := make([][]float64, len(resp.Data))
	for i, item := range resp.Data {
		out[i] = append([]float64(nil), item.Embedding...)
	}
	return out, nil
}
